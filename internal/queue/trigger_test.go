package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"weatherproof/internal/config"
	"weatherproof/internal/types"
)

// --- Mock SQS Client ---

// mockSQSSender captures SendMessage calls for test assertions.
type mockSQSSender struct {
	// calls records every SendMessageInput passed to SendMessage.
	calls []*sqs.SendMessageInput
	// err is returned by SendMessage if non-nil (simulates SQS failures).
	err error
	// failAfter, when >0, succeeds that many calls and then returns err.
	failAfter int
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil && (m.failAfter == 0 || len(m.calls) > m.failAfter) {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

// --- Test Helpers ---

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/eval-requests"

func newTestTrigger(mock *mockSQSSender) *EvalTrigger {
	awsCfg := config.AWSConfig{
		EvalQueueURL: testQueueURL,
	}
	logger := slog.Default()
	return NewEvalTrigger(mock, awsCfg, logger)
}

// --- Tests ---

func TestTriggerEvaluation_SendsToQueue(t *testing.T) {
	mock := &mockSQSSender{}
	trigger := newTestTrigger(mock)

	err := trigger.TriggerEvaluation(context.Background(), "prj_123", types.ReasonManualTrigger, nil)
	if err != nil {
		t.Fatalf("TriggerEvaluation returned unexpected error: %v", err)
	}

	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 SQS call, got %d", len(mock.calls))
	}

	if *mock.calls[0].QueueUrl != testQueueURL {
		t.Errorf("expected queue URL %q, got %q", testQueueURL, *mock.calls[0].QueueUrl)
	}
}

func TestTriggerEvaluation_MessagePayload(t *testing.T) {
	mock := &mockSQSSender{}
	trigger := newTestTrigger(mock)

	err := trigger.TriggerEvaluation(context.Background(), "prj_abc", types.ReasonManualTrigger, []string{"tsk_1", "tsk_2"})
	if err != nil {
		t.Fatalf("TriggerEvaluation returned unexpected error: %v", err)
	}

	var msg types.EvalMessage
	if err := json.Unmarshal([]byte(*mock.calls[0].MessageBody), &msg); err != nil {
		t.Fatalf("failed to unmarshal message body: %v", err)
	}

	if msg.ProjectID != "prj_abc" {
		t.Errorf("expected project ID 'prj_abc', got %q", msg.ProjectID)
	}
	if msg.Reason != types.ReasonManualTrigger {
		t.Errorf("expected reason %q, got %q", types.ReasonManualTrigger, msg.Reason)
	}
	if len(msg.SpecificTaskIDs) != 2 || msg.SpecificTaskIDs[0] != "tsk_1" {
		t.Errorf("expected specific task IDs [tsk_1 tsk_2], got %v", msg.SpecificTaskIDs)
	}
	if !strings.HasPrefix(msg.BatchID, "single_") {
		t.Errorf("expected BatchID to start with 'single_', got %q", msg.BatchID)
	}
	if msg.TraceID == "" {
		t.Error("expected non-empty TraceID")
	}
}

func TestTriggerEvaluation_PropagatesRequestID(t *testing.T) {
	mock := &mockSQSSender{}
	trigger := newTestTrigger(mock)

	ctx := types.WithRequestID(context.Background(), "req-trace-42")
	err := trigger.TriggerEvaluation(ctx, "prj_abc", types.ReasonManualTrigger, nil)
	if err != nil {
		t.Fatalf("TriggerEvaluation returned unexpected error: %v", err)
	}

	var msg types.EvalMessage
	if err := json.Unmarshal([]byte(*mock.calls[0].MessageBody), &msg); err != nil {
		t.Fatalf("failed to unmarshal message body: %v", err)
	}

	if msg.TraceID != "req-trace-42" {
		t.Errorf("expected trace ID from request context, got %q", msg.TraceID)
	}
}

func TestTriggerEvaluation_SetsReasonMessageAttribute(t *testing.T) {
	mock := &mockSQSSender{}
	trigger := newTestTrigger(mock)

	err := trigger.TriggerEvaluation(context.Background(), "prj_123", types.ReasonWeatherUpdate, nil)
	if err != nil {
		t.Fatalf("TriggerEvaluation returned unexpected error: %v", err)
	}

	attr, ok := mock.calls[0].MessageAttributes["reason"]
	if !ok {
		t.Fatal("expected 'reason' message attribute to be set")
	}
	if *attr.StringValue != string(types.ReasonWeatherUpdate) {
		t.Errorf("expected reason attribute %q, got %q", types.ReasonWeatherUpdate, *attr.StringValue)
	}
	if *attr.DataType != "String" {
		t.Errorf("expected DataType 'String', got %q", *attr.DataType)
	}
}

func TestTriggerEvaluation_SetsRequestedAt(t *testing.T) {
	mock := &mockSQSSender{}
	trigger := newTestTrigger(mock)

	before := time.Now().UTC()
	err := trigger.TriggerEvaluation(context.Background(), "prj_123", types.ReasonManualTrigger, nil)
	if err != nil {
		t.Fatalf("TriggerEvaluation returned unexpected error: %v", err)
	}
	after := time.Now().UTC()

	var msg types.EvalMessage
	if err := json.Unmarshal([]byte(*mock.calls[0].MessageBody), &msg); err != nil {
		t.Fatalf("failed to unmarshal message body: %v", err)
	}

	if msg.RequestedAt.Before(before) || msg.RequestedAt.After(after) {
		t.Errorf("RequestedAt %v not in expected range [%v, %v]", msg.RequestedAt, before, after)
	}
}

func TestTriggerSweep_FansOutOneMessagePerProject(t *testing.T) {
	mock := &mockSQSSender{}
	trigger := newTestTrigger(mock)

	projectIDs := []string{"prj_1", "prj_2", "prj_3"}
	batchID, sent, err := trigger.TriggerSweep(context.Background(), projectIDs, types.ReasonScheduledSweep)
	if err != nil {
		t.Fatalf("TriggerSweep returned unexpected error: %v", err)
	}

	if sent != 3 {
		t.Errorf("expected 3 messages sent, got %d", sent)
	}
	if !strings.HasPrefix(batchID, "sweep_") {
		t.Errorf("expected batch ID to start with 'sweep_', got %q", batchID)
	}
	if len(mock.calls) != 3 {
		t.Fatalf("expected 3 SQS calls, got %d", len(mock.calls))
	}

	// Every message shares the batch ID and carries exactly one project.
	for i, call := range mock.calls {
		var msg types.EvalMessage
		if err := json.Unmarshal([]byte(*call.MessageBody), &msg); err != nil {
			t.Fatalf("failed to unmarshal message %d: %v", i, err)
		}
		if msg.BatchID != batchID {
			t.Errorf("message %d: expected batch ID %q, got %q", i, batchID, msg.BatchID)
		}
		if msg.ProjectID != projectIDs[i] {
			t.Errorf("message %d: expected project %q, got %q", i, projectIDs[i], msg.ProjectID)
		}
		if msg.Reason != types.ReasonScheduledSweep {
			t.Errorf("message %d: expected reason %q, got %q", i, types.ReasonScheduledSweep, msg.Reason)
		}
	}
}

func TestTriggerSweep_AbortsOnFirstSendFailure(t *testing.T) {
	mock := &mockSQSSender{err: fmt.Errorf("service unavailable"), failAfter: 1}
	trigger := newTestTrigger(mock)

	_, sent, err := trigger.TriggerSweep(context.Background(), []string{"prj_1", "prj_2", "prj_3"}, types.ReasonScheduledSweep)
	if err == nil {
		t.Fatal("expected error when a send fails")
	}

	// First send succeeded; the failing second send aborts the fan-out.
	if sent != 1 {
		t.Errorf("expected 1 successful send before the failure, got %d", sent)
	}
	if len(mock.calls) != 2 {
		t.Errorf("expected fan-out to stop after the failed call, got %d calls", len(mock.calls))
	}
}

func TestTriggerEvaluation_SQSErrorMapsToQueueError(t *testing.T) {
	mock := &mockSQSSender{err: fmt.Errorf("access denied")}
	trigger := newTestTrigger(mock)

	err := trigger.TriggerEvaluation(context.Background(), "prj_123", types.ReasonManualTrigger, nil)
	if err == nil {
		t.Fatal("expected error from TriggerEvaluation, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamQueue {
		t.Errorf("expected error code %s, got %s", types.ErrCodeUpstreamQueue, appErr.Code)
	}
	if !strings.Contains(appErr.Message, testQueueURL) {
		t.Errorf("expected error message to contain queue URL, got %q", appErr.Message)
	}
}
