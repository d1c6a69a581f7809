package types

import (
	"time"
)

// Location represents a job-site coordinate with an optional display name.
type Location struct {
	Lat         float64 `json:"lat" db:"location_lat"`
	Lon         float64 `json:"lon" db:"location_lon"`
	DisplayName string  `json:"display_name,omitempty" db:"location_display_name"`
}

// Project identifies a construction job site. It carries the default weather
// thresholds applied to tasks without their own override and the cadence at
// which weather is collected for the site. Projects are soft-deleted via the
// Active flag; evaluation and collection both skip inactive projects.
type Project struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`

	Location Location `json:"location" db:"-"`
	Timezone string   `json:"timezone" db:"timezone"`

	DefaultThresholds  WeatherThresholds `json:"default_thresholds" db:"default_thresholds"`
	CollectionInterval time.Duration     `json:"collection_interval" db:"collection_interval"`

	// DailyOverhead is the project's daily overhead cost in dollars, spread
	// over the nominal work day when pricing a delay window.
	DailyOverhead float64 `json:"daily_overhead" db:"daily_overhead"`

	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Task is a unit of schedulable, possibly weather-sensitive work belonging to
// a project. Tasks are created by template expansion at project setup and are
// mutated daily by the evaluator and by crew progress updates. They are never
// physically deleted except on project task regeneration.
type Task struct {
	ID        string `json:"id" db:"id"`
	ProjectID string `json:"project_id" db:"project_id"`

	Name          string `json:"name" db:"name"`
	Type          string `json:"type" db:"type"`
	SequenceOrder int    `json:"sequence_order" db:"sequence_order"`

	ExpectedStart *time.Time `json:"expected_start,omitempty" db:"expected_start"`
	ExpectedEnd   *time.Time `json:"expected_end,omitempty" db:"expected_end"`
	ActualStart   *time.Time `json:"actual_start,omitempty" db:"actual_start"`
	ActualEnd     *time.Time `json:"actual_end,omitempty" db:"actual_end"`

	WeatherSensitive bool `json:"weather_sensitive" db:"weather_sensitive"`
	// Thresholds overrides the project default when set. Nil means "use the
	// project's default thresholds".
	Thresholds *WeatherThresholds `json:"thresholds,omitempty" db:"thresholds"`

	Status             TaskStatus `json:"status" db:"status"`
	DelayedToday       bool       `json:"delayed_today" db:"delayed_today"`
	DelayReason        string     `json:"delay_reason,omitempty" db:"delay_reason"`
	TotalDelayDays     int        `json:"total_delay_days" db:"total_delay_days"`
	ProgressPercentage int        `json:"progress_percentage" db:"progress_percentage"`

	// Dependency links by task ID. A plain list, not a DAG engine: the only
	// rule consuming DependsOn is "stay pending while a predecessor is
	// incomplete".
	DependsOn []string `json:"depends_on,omitempty" db:"depends_on"`
	Blocks    []string `json:"blocks,omitempty" db:"blocks"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// EffectiveThresholds resolves the thresholds to evaluate this task against:
// the task override when present, otherwise the project default.
func (t *Task) EffectiveThresholds(p *Project) WeatherThresholds {
	if t.Thresholds != nil {
		return *t.Thresholds
	}
	return p.DefaultThresholds
}

// DelayEvent represents an open or closed window during which weather (or
// another cause) stopped work on a project.
//
// Invariant: at most one open event (EndTime == nil) exists per project at any
// time. The schema enforces this with a partial unique index on project_id
// where end_time is null.
type DelayEvent struct {
	ID        string `json:"id" db:"id"`
	ProjectID string `json:"project_id" db:"project_id"`

	Cause       DelayCause `json:"cause" db:"cause"`
	Description string     `json:"description,omitempty" db:"description"`

	StartTime     time.Time  `json:"start_time" db:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty" db:"end_time"`
	DurationHours float64    `json:"duration_hours" db:"duration_hours"`

	// WeatherSnapshotID references the reading that opened the event.
	WeatherSnapshotID string `json:"weather_snapshot_id,omitempty" db:"weather_snapshot_id"`

	LaborCost     float64 `json:"labor_cost" db:"labor_cost"`
	EquipmentCost float64 `json:"equipment_cost" db:"equipment_cost"`
	OverheadCost  float64 `json:"overhead_cost" db:"overhead_cost"`
	TotalCost     float64 `json:"total_cost" db:"total_cost"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsOpen reports whether the delay window has not yet been closed.
func (e *DelayEvent) IsOpen() bool { return e.EndTime == nil }

// TaskDailyLog records the outcome of one evaluation day for one task. Exactly
// one row exists per (task, calendar day); same-day re-runs upsert with
// last-write-wins semantics.
type TaskDailyLog struct {
	ID     string `json:"id" db:"id"`
	TaskID string `json:"task_id" db:"task_id"`

	// LogDate is the calendar day in the project's timezone, stored truncated
	// to midnight UTC.
	LogDate time.Time `json:"log_date" db:"log_date"`

	Delayed     bool   `json:"delayed" db:"delayed"`
	DelayReason string `json:"delay_reason,omitempty" db:"delay_reason"`

	// WeatherSnapshotID points at the reading that drove the decision.
	WeatherSnapshotID string `json:"weather_snapshot_id,omitempty" db:"weather_snapshot_id"`
	// Conditions preserves the categorical weather at evaluation time so the
	// log survives snapshot retention cleanup.
	Conditions string `json:"conditions,omitempty" db:"conditions"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CrewAssignment is a crew member attached to a project delay window, carrying
// the rate data needed to price idled labor.
type CrewAssignment struct {
	CrewMemberID string   `json:"crew_member_id" db:"crew_member_id"`
	Name         string   `json:"name" db:"name"`
	Rate         float64  `json:"rate" db:"rate"`
	RateType     RateType `json:"rate_type" db:"rate_type"`

	// BurdenMultiplier covers taxes, benefits and insurance on top of the base
	// wage. Nil means "use the default burden".
	BurdenMultiplier *float64 `json:"burden_multiplier,omitempty" db:"burden_multiplier"`

	HoursIdled float64 `json:"hours_idled" db:"hours_idled"`
}

// EquipmentAssignment is an equipment item attached to a project delay window.
type EquipmentAssignment struct {
	EquipmentID string    `json:"equipment_id" db:"equipment_id"`
	Name        string    `json:"name" db:"name"`
	Ownership   Ownership `json:"ownership" db:"ownership"`

	// Rate is the operational/daily rate for owned equipment or the rental
	// rate for rented equipment.
	Rate     float64  `json:"rate" db:"rate"`
	RateType RateType `json:"rate_type" db:"rate_type"`

	// StandbyRate, when set, overrides the derived standby rate
	// (50% of Rate for owned, 100% for rented).
	StandbyRate *float64 `json:"standby_rate,omitempty" db:"standby_rate"`

	HoursIdled float64 `json:"hours_idled" db:"hours_idled"`
}

// DelayWindow is the bounded period being priced by the cost calculator.
type DelayWindow struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	HoursIdled float64   `json:"hours_idled"`
}

// CostBreakdown is the output of the delay cost calculator. Values are carried
// unrounded; two-decimal formatting happens at presentation time only.
type CostBreakdown struct {
	LaborCost     float64 `json:"labor_cost"`
	EquipmentCost float64 `json:"equipment_cost"`
	OverheadCost  float64 `json:"overhead_cost"`
	TotalCost     float64 `json:"total_cost"`
}

// TaskEvaluation is the per-task outcome of an evaluation cycle.
type TaskEvaluation struct {
	TaskID         string     `json:"task_id"`
	PreviousStatus TaskStatus `json:"previous_status"`
	NewStatus      TaskStatus `json:"new_status"`
	Delayed        bool       `json:"delayed"`
	Violations     []Violation `json:"violations,omitempty"`
	Skipped        bool       `json:"skipped"`
	SkipReason     SkipReason `json:"skip_reason,omitempty"`
	// ChecksSkipped counts threshold dimensions that could not be evaluated
	// because the reading was missing. Surfaced so silent skips stay visible.
	ChecksSkipped int    `json:"checks_skipped,omitempty"`
	Error         string `json:"error,omitempty"`
}

// ProjectEvaluationSummary aggregates one project's evaluation cycle.
type ProjectEvaluationSummary struct {
	ProjectID      string           `json:"project_id"`
	EvaluatedAt    time.Time        `json:"evaluated_at"`
	TasksEvaluated int              `json:"tasks_evaluated"`
	TasksDelayed   int              `json:"tasks_delayed"`
	TasksSkipped   int              `json:"tasks_skipped"`
	Tasks          []TaskEvaluation `json:"tasks"`

	// DelayEventOpened / DelayEventClosed carry the event touched this cycle,
	// if any. At most one of the two is set.
	DelayEventOpened *DelayEvent `json:"delay_event_opened,omitempty"`
	DelayEventClosed *DelayEvent `json:"delay_event_closed,omitempty"`

	// Warnings carries non-fatal conditions (missing weather data, skipped
	// threshold dimensions) that did not stop the cycle.
	Warnings []string `json:"warnings,omitempty"`
}

// ProjectFailure records a project whose evaluation failed during a sweep.
type ProjectFailure struct {
	ProjectID string `json:"project_id"`
	Error     string `json:"error"`
}

// SweepSummary aggregates an all-projects evaluation sweep. Failures on one
// project never abort the sweep for the rest.
type SweepSummary struct {
	StartedAt         time.Time        `json:"started_at"`
	FinishedAt        time.Time        `json:"finished_at"`
	ProjectsEvaluated int              `json:"projects_evaluated"`
	TasksEvaluated    int              `json:"tasks_evaluated"`
	TasksDelayed      int              `json:"tasks_delayed"`
	Failures          []ProjectFailure `json:"failures,omitempty"`
}
