// Package main is the entrypoint for the sweeper, the cron-driven binary
// behind the daily evaluation cycle. Each run collects fresh weather for
// every active project, then either fans the evaluation out to the SQS eval
// queue (one message per project) or, when fan-out is disabled, runs the
// full sweep inline.
//
// Deployed as an EventBridge-scheduled Lambda; APP_ENV=local runs the cycle
// once and exits, which is also how the container cron variant invokes it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"weatherproof/internal/config"
	"weatherproof/internal/db"
	"weatherproof/internal/delays"
	"weatherproof/internal/observability"
	"weatherproof/internal/queue"
	"weatherproof/internal/thresholds"
	"weatherproof/internal/types"
	"weatherproof/internal/weather"
)

// snapshotRetention bounds how long raw weather snapshots are kept. Daily
// logs preserve the categorical conditions, so pruned snapshots lose no
// claim documentation.
const snapshotRetention = 90 * 24 * time.Hour

// Sweeper runs one collect-then-evaluate cycle.
type Sweeper struct {
	collector *weather.Collector
	engine    *delays.Engine
	trigger   *queue.EvalTrigger
	projects  *db.ProjectRepository
	metrics   observability.MetricsRecorder
	logger    *slog.Logger

	// fanOut dispatches evaluation to the worker queue instead of running
	// it in-process.
	fanOut bool
}

// Run executes one full cycle. Weather collection failures are logged per
// project by the collector and never abort the evaluation phase; stale
// weather is better documented as a skipped check than not evaluated at all.
func (s *Sweeper) Run(ctx context.Context) error {
	start := time.Now()
	s.logger.Info("sweep cycle starting", "fan_out", s.fanOut)

	if err := s.collector.CollectAll(ctx); err != nil {
		s.logger.Error("weather collection pass failed", "error", err)
	}

	if s.fanOut {
		projects, err := s.projects.ListActive(ctx)
		if err != nil {
			return fmt.Errorf("listing active projects: %w", err)
		}
		ids := make([]string, len(projects))
		for i, p := range projects {
			ids[i] = p.ID
		}
		sweepID, enqueued, err := s.trigger.TriggerSweep(ctx, ids, types.ReasonScheduledSweep)
		if err != nil {
			return fmt.Errorf("enqueueing sweep: %w", err)
		}
		s.logger.Info("sweep fanned out",
			"sweep_id", sweepID,
			"projects", enqueued,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}

	summary, err := s.engine.EvaluateAll(ctx)
	if err != nil {
		return fmt.Errorf("running sweep: %w", err)
	}
	s.metrics.RecordSweep(ctx, summary)

	s.logger.Info("sweep completed",
		"projects_evaluated", summary.ProjectsEvaluated,
		"tasks_evaluated", summary.TasksEvaluated,
		"tasks_delayed", summary.TasksDelayed,
		"failures", len(summary.Failures),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	for _, f := range summary.Failures {
		s.logger.Error("project evaluation failed during sweep",
			"project_id", f.ProjectID,
			"error", f.Error,
		)
	}
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("sweeper initializing (cold start)")

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

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	var metrics observability.MetricsRecorder = observability.NoopMetrics{}
	if cfg.Observability.EnableMetrics {
		metrics = observability.NewCloudWatchMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			logger,
		)
	}

	nws := weather.NewNWSClient(
		&http.Client{Timeout: cfg.Weather.Timeout},
		cfg.Weather.BaseURL,
		cfg.Weather.UserAgent,
	)
	collector := weather.NewCollector(repos.Projects, repos.Weather, nws, nil, logger, weather.CollectorConfig{
		LookaheadWindow: cfg.Engine.LookaheadWindow,
		Retention:       snapshotRetention,
	})

	engine := delays.NewEngine(delays.EngineDeps{
		Projects:    repos.Projects,
		Tasks:       repos.Tasks,
		Weather:     repos.Weather,
		DailyLogs:   repos.DailyLogs,
		DelayEvents: repos.DelayEvents,
		Assignments: repos.Assignments,
		Evaluator:   thresholds.New(logger),
		Logger:      logger,
	}, delays.Config{
		LookaheadWindow:    cfg.Engine.LookaheadWindow,
		TaskConcurrency:    cfg.Engine.TaskConcurrency,
		ProjectConcurrency: cfg.Engine.ProjectConcurrency,
	})

	fanOut := os.Getenv("SWEEP_FAN_OUT") == "true"
	var trigger *queue.EvalTrigger
	if fanOut {
		trigger = queue.NewEvalTrigger(sqs.NewFromConfig(awsCfg), cfg.AWS, logger)
	}

	sweeper := &Sweeper{
		collector: collector,
		engine:    engine,
		trigger:   trigger,
		projects:  repos.Projects,
		metrics:   metrics,
		logger:    logger,
		fanOut:    fanOut,
	}

	logger.Info("sweeper initialized", "environment", cfg.Environment)

	if cfg.Environment == "local" {
		if err := sweeper.Run(ctx); err != nil {
			logger.Error("sweep cycle failed", "error", err)
			pool.Close()
			os.Exit(1)
		}
		pool.Close()
		return
	}

	lambda.Start(func(ctx context.Context) error {
		return sweeper.Run(ctx)
	})
}
