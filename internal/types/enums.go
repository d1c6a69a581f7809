package types

// TaskStatus represents the delay-lifecycle state of a construction task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusOnTrack    TaskStatus = "on_track"
	TaskStatusAtRisk     TaskStatus = "at_risk"
	TaskStatusDelayed    TaskStatus = "delayed"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether the status is final. Terminal tasks are never
// re-evaluated by the delay engine.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// DataSource discriminates how a weather snapshot was obtained.
type DataSource string

const (
	SourceForecast    DataSource = "forecast"
	SourceObservation DataSource = "observation"
	SourceRealtime    DataSource = "realtime"
	SourceManual      DataSource = "manual"
)

// ViolationType identifies the threshold dimension that was exceeded.
// The declaration order here is also the fixed evaluation order.
type ViolationType string

const (
	ViolationWindSpeed      ViolationType = "wind_speed"
	ViolationPrecipitation  ViolationType = "precipitation"
	ViolationTemperatureMin ViolationType = "temperature_min"
	ViolationTemperatureMax ViolationType = "temperature_max"
	ViolationHumidity       ViolationType = "humidity"
	ViolationVisibility     ViolationType = "visibility"
)

// Measurement units used in violation records and reports.
const (
	UnitMPH     = "mph"
	UnitInches  = "in"
	UnitDegF    = "F"
	UnitPercent = "%"
	UnitMiles   = "mi"
)

// DelayCause categorizes why work stopped during a delay event.
type DelayCause string

const (
	CauseWeather   DelayCause = "weather"
	CauseLabor     DelayCause = "labor"
	CauseEquipment DelayCause = "equipment"
	CauseOther     DelayCause = "other"
)

// RateType distinguishes how a crew or equipment rate is quoted.
type RateType string

const (
	RateHourly RateType = "hourly"
	RateDaily  RateType = "daily"
)

// Ownership distinguishes owned from rented equipment. Rented equipment bills
// at the full rental rate whether idle or not; owned equipment idles at a
// reduced standby rate.
type Ownership string

const (
	OwnershipOwned  Ownership = "owned"
	OwnershipRented Ownership = "rented"
)

// SkipReason explains why the engine left a task untouched in an evaluation cycle.
type SkipReason string

const (
	SkipTerminalStatus      SkipReason = "terminal_status"
	SkipNotWeatherSensitive SkipReason = "not_weather_sensitive"
	SkipNoWeatherData       SkipReason = "no_weather_data"
)

// EvalReason tags what initiated an evaluation run, for logs and metrics.
type EvalReason string

const (
	ReasonScheduledSweep EvalReason = "scheduled_sweep"
	ReasonManualTrigger  EvalReason = "manual_trigger"
	ReasonWeatherUpdate  EvalReason = "weather_update"
)
