// Package main is the entry point for the WeatherProof API server.
//
// It loads configuration (resolving secrets from SSM outside local mode),
// opens the Postgres pool, builds the delay evaluation engine and the HTTP
// chassis (middleware, routing, health checks), and serves until SIGINT or
// SIGTERM, then shuts down gracefully.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"weatherproof/internal/api/handlers"
	"weatherproof/internal/config"
	"weatherproof/internal/core"
	"weatherproof/internal/db"
	"weatherproof/internal/delays"
	"weatherproof/internal/observability"
	"weatherproof/internal/queue"
	"weatherproof/internal/reports"
	"weatherproof/internal/thresholds"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	var provider config.SecretProvider
	if env := os.Getenv("APP_ENV"); env != "" && env != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}

	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("weatherproof API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}
	repos := db.NewRepositories(pool)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("loading AWS SDK config: %w", err)
	}

	var metrics observability.MetricsRecorder = observability.NoopMetrics{}
	if cfg.Observability.EnableMetrics {
		metrics = observability.NewCloudWatchMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			logger,
		)
	}

	// The eval queue is optional: without it, evaluation and sweep requests
	// run inline in the API process.
	var trigger *queue.EvalTrigger
	if cfg.AWS.EvalQueueURL != "" {
		trigger = queue.NewEvalTrigger(sqs.NewFromConfig(awsCfg), cfg.AWS, logger)
	}

	evaluator := thresholds.New(logger)
	engine := delays.NewEngine(delays.EngineDeps{
		Projects:    repos.Projects,
		Tasks:       repos.Tasks,
		Weather:     repos.Weather,
		DailyLogs:   repos.DailyLogs,
		DelayEvents: repos.DelayEvents,
		Assignments: repos.Assignments,
		Evaluator:   evaluator,
		Logger:      logger,
	}, delays.Config{
		LookaheadWindow:    cfg.Engine.LookaheadWindow,
		TaskConcurrency:    cfg.Engine.TaskConcurrency,
		ProjectConcurrency: cfg.Engine.ProjectConcurrency,
	})

	srv, err := core.NewServer(cfg, repos, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = requestMetrics{rec: metrics}
	srv.HealthProbes = []core.HealthProbe{
		&core.DatabaseProbe{Repos: repos},
	}

	exporter := reports.NewExporter(repos.DailyLogs, repos.DelayEvents, repos.Tasks)

	evalHandler := handlers.NewEvaluationHandler(engine, enqueuerOrNil(trigger), repos.Projects, srv.Validator, logger)
	checkHandler := handlers.NewThresholdCheckHandler(evaluator, srv.Validator, logger)
	costHandler := handlers.NewDelayCostHandler(srv.Validator, logger)
	eventHandler := handlers.NewDelayEventHandler(repos.DelayEvents, repos.Projects, exporter, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		evalHandler.RegisterRoutes,
		checkHandler.RegisterRoutes,
		costHandler.RegisterRoutes,
		eventHandler.RegisterRoutes,
	)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// enqueuerOrNil avoids handing the handler a non-nil interface wrapping a nil
// *EvalTrigger.
func enqueuerOrNil(t *queue.EvalTrigger) handlers.EvalEnqueuer {
	if t == nil {
		return nil
	}
	return t
}

// requestMetrics adapts the CloudWatch recorder to the middleware's
// per-request hook.
type requestMetrics struct {
	rec observability.MetricsRecorder
}

func (m requestMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	code, _ := strconv.Atoi(status)
	m.rec.RecordAPIRequest(context.Background(), endpoint, method, code, duration)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Shutdown server resources (DB pool).
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
