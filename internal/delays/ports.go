package delays

import (
	"context"
	"time"

	"weatherproof/internal/types"
)

// The engine depends on narrow storage ports rather than concrete
// repositories. The pgx implementations in internal/db satisfy these; tests
// substitute in-memory fakes.

// ProjectRepo provides read access to job sites.
type ProjectRepo interface {
	// GetByID returns the project or a not_found AppError.
	GetByID(ctx context.Context, id string) (*types.Project, error)
	// ListActive returns every project whose Active flag is set.
	ListActive(ctx context.Context) ([]*types.Project, error)
}

// TaskRepo provides task reads and the single-row update the state machine
// performs per task per cycle.
type TaskRepo interface {
	// ListForEvaluation returns the project's non-terminal tasks in sequence order.
	ListForEvaluation(ctx context.Context, projectID string) ([]*types.Task, error)
	Update(ctx context.Context, task *types.Task) error
}

// WeatherRepo provides snapshot reads for evaluation.
type WeatherRepo interface {
	// LatestForProject returns the most recent observation-grade snapshot, or
	// (nil, nil) when the project has no weather data yet.
	LatestForProject(ctx context.Context, projectID string) (*types.WeatherSnapshot, error)
	// ForecastBetween returns forecast-sourced snapshots whose collection time
	// falls inside [from, to), ordered by collection time.
	ForecastBetween(ctx context.Context, projectID string, from, to time.Time) ([]*types.WeatherSnapshot, error)
}

// DailyLogRepo provides the (task, calendar day) upsert that makes same-day
// re-runs idempotent.
type DailyLogRepo interface {
	// Get returns the log row for the task and day, or (nil, nil) when absent.
	Get(ctx context.Context, taskID string, day time.Time) (*types.TaskDailyLog, error)
	// Upsert writes the row, replacing any existing row for the same
	// (task_id, log_date) key. Last write wins.
	Upsert(ctx context.Context, log *types.TaskDailyLog) error
}

// DelayEventRepo manages the open/close lifecycle of project delay windows.
type DelayEventRepo interface {
	// GetOpen returns the project's open event, or (nil, nil) when none is open.
	GetOpen(ctx context.Context, projectID string) (*types.DelayEvent, error)
	// Open inserts a new open event. If another evaluation already opened one,
	// it returns a conflict_delay_event_open AppError; the caller re-reads the
	// now-open event instead of creating a duplicate.
	Open(ctx context.Context, event *types.DelayEvent) error
	// Close sets the end time, duration, and computed costs on an open event.
	Close(ctx context.Context, id string, endTime time.Time, durationHours float64, costs types.CostBreakdown) error
}

// AssignmentRepo loads the crew and equipment rate rows priced by the cost
// calculator when a delay window closes.
type AssignmentRepo interface {
	CrewForProject(ctx context.Context, projectID string) ([]types.CrewAssignment, error)
	EquipmentForProject(ctx context.Context, projectID string) ([]types.EquipmentAssignment, error)
}
