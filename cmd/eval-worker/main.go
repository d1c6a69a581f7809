// Package main is the entrypoint for the evaluation worker.
//
// The worker consumes EvalMessage payloads from the SQS eval queue, one
// message per project, and runs the delay evaluation cycle for that project.
// Lambda SQS integration uses partial batch responses: messages that fail are
// returned in batchItemFailures so SQS retries only those.
//
// In local mode (APP_ENV=local) the worker reads a JSON SQS event from stdin
// instead of starting the Lambda runtime, which enables integration testing
// without the Lambda RIE.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"weatherproof/internal/config"
	"weatherproof/internal/db"
	"weatherproof/internal/delays"
	"weatherproof/internal/observability"
	"weatherproof/internal/types"
)

// projectEvaluator is the slice of the delay engine the worker consumes.
type projectEvaluator interface {
	EvaluateProjectTasks(ctx context.Context, projectID string, onlyTaskIDs []string) (*types.ProjectEvaluationSummary, error)
}

// Handler holds the dependencies for the evaluation worker.
type Handler struct {
	engine  projectEvaluator
	metrics observability.MetricsRecorder
	logger  *slog.Logger
}

// Handle processes an SQS event containing one or more evaluation messages.
// Each message is processed independently; a failing project is reported as
// a partial batch failure and retried by SQS without blocking the rest.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("failed to process eval message",
				"message_id", record.MessageId,
				"error", err,
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage evaluates one project from one SQS message.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var msg types.EvalMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.Error("failed to unmarshal eval message",
			"message_id", record.MessageId,
			"error", err,
		)
		// Permanent parse failure, do not retry.
		return nil
	}
	if msg.ProjectID == "" {
		h.logger.Error("eval message has no project_id", "message_id", record.MessageId)
		return nil
	}

	logger := h.logger.With(
		"project_id", msg.ProjectID,
		"batch_id", msg.BatchID,
		"trace_id", msg.TraceID,
		"reason", string(msg.Reason),
	)
	logger.Info("processing eval message", "task_ids", len(msg.SpecificTaskIDs))

	if sentTimestamp, ok := record.Attributes["SentTimestamp"]; ok {
		if sentAt, err := parseMillisTimestamp(sentTimestamp); err == nil {
			logger.Info("queue lag", "lag_ms", time.Since(sentAt).Milliseconds())
		}
	}

	start := time.Now()
	summary, err := h.engine.EvaluateProjectTasks(ctx, msg.ProjectID, msg.SpecificTaskIDs)
	if err != nil {
		return fmt.Errorf("evaluating project %s: %w", msg.ProjectID, err)
	}

	h.metrics.RecordProjectEvaluation(ctx, summary, msg.Reason)

	logger.Info("project evaluated",
		"tasks_evaluated", summary.TasksEvaluated,
		"tasks_delayed", summary.TasksDelayed,
		"tasks_skipped", summary.TasksSkipped,
		"event_opened", summary.DelayEventOpened != nil,
		"event_closed", summary.DelayEventClosed != nil,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// parseMillisTimestamp converts an SQS SentTimestamp attribute (epoch millis)
// to a time.Time.
func parseMillisTimestamp(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("eval worker initializing (cold start)")

	var provider config.SecretProvider
	if env := os.Getenv("APP_ENV"); env != "" && env != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to open database pool", "error", err)
		os.Exit(1)
	}
	repos := db.NewRepositories(pool)

	var metrics observability.MetricsRecorder = observability.NoopMetrics{}
	if cfg.Observability.EnableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		metrics = observability.NewCloudWatchMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			logger,
		)
	}

	engine := delays.NewEngine(delays.EngineDeps{
		Projects:    repos.Projects,
		Tasks:       repos.Tasks,
		Weather:     repos.Weather,
		DailyLogs:   repos.DailyLogs,
		DelayEvents: repos.DelayEvents,
		Assignments: repos.Assignments,
		Logger:      logger,
	}, delays.Config{
		LookaheadWindow:    cfg.Engine.LookaheadWindow,
		TaskConcurrency:    cfg.Engine.TaskConcurrency,
		ProjectConcurrency: cfg.Engine.ProjectConcurrency,
	})

	handler := &Handler{engine: engine, metrics: metrics, logger: logger}

	logger.Info("eval worker initialized",
		"environment", cfg.Environment,
		"eval_queue", cfg.AWS.EvalQueueURL,
	)

	// Local mode: read a JSON SQS event from stdin instead of starting the
	// Lambda runtime.
	// Usage: echo '{"Records":[{"messageId":"1","body":"{...}"}]}' | eval-worker
	if cfg.Environment == "local" {
		logger.Info("APP_ENV=local: reading SQS event from stdin")
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("failed to read stdin", "error", err)
			os.Exit(1)
		}
		if len(payload) == 0 {
			logger.Error("no input received on stdin")
			os.Exit(1)
		}
		var sqsEvent events.SQSEvent
		if err := json.Unmarshal(payload, &sqsEvent); err != nil {
			logger.Error("failed to parse stdin as SQS event", "error", err)
			os.Exit(1)
		}
		response, err := handler.Handle(ctx, sqsEvent)
		if err != nil {
			logger.Error("handler execution failed", "error", err)
			os.Exit(1)
		}
		if len(response.BatchItemFailures) > 0 {
			respJSON, _ := json.MarshalIndent(response, "", "  ")
			fmt.Fprintln(os.Stderr, string(respJSON))
		}
		logger.Info("handler execution completed",
			"records_processed", len(sqsEvent.Records),
			"failures", len(response.BatchItemFailures),
		)
		pool.Close()
		return
	}

	lambda.Start(handler.Handle)
}
