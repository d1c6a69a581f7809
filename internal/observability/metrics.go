// Package observability publishes operational metrics to CloudWatch.
// Emission is best-effort: a metrics failure is logged and never fails the
// operation that produced the numbers.
package observability

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"weatherproof/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricsRecorder is consumed by the engine, workers, and HTTP middleware.
type MetricsRecorder interface {
	RecordProjectEvaluation(ctx context.Context, summary *types.ProjectEvaluationSummary, reason types.EvalReason)
	RecordSweep(ctx context.Context, summary *types.SweepSummary)
	RecordWeatherFetchError(ctx context.Context, provider string)
	RecordAPIRequest(ctx context.Context, endpoint, method string, status int, latency time.Duration)
}

// CloudWatchMetrics implements MetricsRecorder against AWS CloudWatch.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ MetricsRecorder = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates a recorder publishing to the given namespace.
// An empty namespace falls back to types.MetricNamespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordProjectEvaluation emits the per-project evaluation counters, plus
// delay event open/close markers when the run changed the project's open
// event.
func (m *CloudWatchMetrics) RecordProjectEvaluation(ctx context.Context, summary *types.ProjectEvaluationSummary, reason types.EvalReason) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimProjectID), Value: aws.String(summary.ProjectID)},
		{Name: aws.String(types.DimReason), Value: aws.String(string(reason))},
	}

	data := []cwtypes.MetricDatum{
		counter(types.MetricTasksEvaluated, float64(summary.TasksEvaluated), dims),
		counter(types.MetricTasksDelayed, float64(summary.TasksDelayed), dims),
		counter(types.MetricTasksSkipped, float64(summary.TasksSkipped), dims),
	}
	if summary.DelayEventOpened != nil {
		data = append(data, counter(types.MetricDelayEventOpened, 1, dims))
	}
	if summary.DelayEventClosed != nil {
		data = append(data, counter(types.MetricDelayEventClosed, 1, dims))
	}

	m.put(ctx, data, "project evaluation")
}

// RecordSweep emits the sweep duration and failure count.
func (m *CloudWatchMetrics) RecordSweep(ctx context.Context, summary *types.SweepSummary) {
	duration := summary.FinishedAt.Sub(summary.StartedAt)

	data := []cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricSweepDuration),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
		},
		counter(types.MetricSweepFailures, float64(len(summary.Failures)), nil),
	}

	m.put(ctx, data, "sweep")
}

// RecordWeatherFetchError counts upstream weather failures per provider.
func (m *CloudWatchMetrics) RecordWeatherFetchError(ctx context.Context, provider string) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimProvider), Value: aws.String(provider)},
	}
	m.put(ctx, []cwtypes.MetricDatum{counter(types.MetricWeatherFetchError, 1, dims)}, "weather fetch error")
}

// RecordAPIRequest emits request count and latency dimensioned by endpoint,
// method and status.
func (m *CloudWatchMetrics) RecordAPIRequest(ctx context.Context, endpoint, method string, status int, latency time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(types.DimMethod), Value: aws.String(method)},
		{Name: aws.String(types.DimStatus), Value: aws.String(strconv.Itoa(status))},
	}

	data := []cwtypes.MetricDatum{
		counter(types.MetricAPIRequestCount, 1, dims),
		{
			MetricName: aws.String(types.MetricAPILatency),
			Value:      aws.Float64(float64(latency.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
		},
	}

	m.put(ctx, data, "api request")
}

func (m *CloudWatchMetrics) put(ctx context.Context, data []cwtypes.MetricDatum, what string) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.WarnContext(ctx, "failed to publish metrics",
			"metrics", what,
			"error", err,
		)
	}
}

func counter(name string, value float64, dims []cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims,
	}
}

// NoopMetrics discards all metrics. Used when metrics are disabled and in
// tests that do not assert on telemetry.
type NoopMetrics struct{}

var _ MetricsRecorder = (*NoopMetrics)(nil)

func (NoopMetrics) RecordProjectEvaluation(context.Context, *types.ProjectEvaluationSummary, types.EvalReason) {
}

func (NoopMetrics) RecordSweep(context.Context, *types.SweepSummary) {}

func (NoopMetrics) RecordWeatherFetchError(context.Context, string) {}

func (NoopMetrics) RecordAPIRequest(context.Context, string, string, int, time.Duration) {}
