package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricTasksEvaluated    = "TasksEvaluated"
	MetricTasksDelayed      = "TasksDelayed"
	MetricTasksSkipped      = "TasksSkipped"
	MetricDelayEventOpened  = "DelayEventOpened"
	MetricDelayEventClosed  = "DelayEventClosed"
	MetricSweepDuration     = "SweepDuration"
	MetricSweepFailures     = "SweepFailures"
	MetricWeatherFetchError = "WeatherFetchError"
	MetricAPILatency        = "APILatency"
	MetricAPIRequestCount   = "APIRequestCount"

	// Dimension Keys
	DimProjectID = "ProjectID"
	DimReason    = "Reason"
	DimEndpoint  = "Endpoint"
	DimMethod    = "Method"
	DimStatus    = "Status"
	DimProvider  = "Provider"

	// Metric Namespace
	MetricNamespace = "WeatherProof"
)
