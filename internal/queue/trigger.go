// Package queue provides the SQS-based producer for dispatching project
// evaluation requests to the evaluation worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"weatherproof/internal/config"
	"weatherproof/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// EvalTrigger serializes EvalMessages and sends them to the evaluation queue.
// One message evaluates one project; a sweep fans out into one message per
// active project so a slow project never holds up the others.
type EvalTrigger struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewEvalTrigger creates a new EvalTrigger with the given SQS client and
// configuration.
func NewEvalTrigger(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *EvalTrigger {
	return &EvalTrigger{
		client:   client,
		queueURL: awsCfg.EvalQueueURL,
		logger:   logger,
	}
}

// TriggerEvaluation enqueues an evaluation request for one project. taskIDs
// restricts the run to specific tasks; empty means every eligible task.
func (t *EvalTrigger) TriggerEvaluation(ctx context.Context, projectID string, reason types.EvalReason, taskIDs []string) error {
	msg := types.EvalMessage{
		BatchID:         fmt.Sprintf("single_%s", uuid.New().String()),
		TraceID:         t.traceID(ctx),
		ProjectID:       projectID,
		Reason:          reason,
		RequestedAt:     time.Now().UTC(),
		SpecificTaskIDs: taskIDs,
	}

	return t.sendMessage(ctx, msg)
}

// TriggerSweep enqueues one evaluation message per project ID under a shared
// batch ID. Returns the batch ID and the count of messages sent; the first
// send failure aborts the fan-out.
func (t *EvalTrigger) TriggerSweep(ctx context.Context, projectIDs []string, reason types.EvalReason) (string, int, error) {
	batchID := fmt.Sprintf("sweep_%s", uuid.New().String())
	requestedAt := time.Now().UTC()

	for i, projectID := range projectIDs {
		msg := types.EvalMessage{
			BatchID:     batchID,
			TraceID:     t.traceID(ctx),
			ProjectID:   projectID,
			Reason:      reason,
			RequestedAt: requestedAt,
		}
		if err := t.sendMessage(ctx, msg); err != nil {
			return batchID, i, err
		}
	}

	return batchID, len(projectIDs), nil
}

// traceID propagates the inbound request ID when present so worker logs can be
// correlated with the API call that triggered them.
func (t *EvalTrigger) traceID(ctx context.Context) string {
	if id := types.GetRequestID(ctx); id != "" {
		return id
	}
	return uuid.New().String()
}

// sendMessage serializes the EvalMessage to JSON and dispatches it.
func (t *EvalTrigger) sendMessage(ctx context.Context, msg types.EvalMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal eval message", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Reason)),
			},
		},
	}

	if _, err := t.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to send eval message to %s", t.queueURL), err)
	}

	t.logger.InfoContext(ctx, "evaluation message sent",
		"queue_url", t.queueURL,
		"batch_id", msg.BatchID,
		"trace_id", msg.TraceID,
		"project_id", msg.ProjectID,
		"reason", string(msg.Reason),
		"specific_task_ids", msg.SpecificTaskIDs,
	)

	return nil
}
