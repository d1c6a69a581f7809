package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"weatherproof/internal/types"
)

// TaskRepository provides data access for the tasks table.
//
// The thresholds column is nullable JSONB; NULL means "inherit the project
// default". depends_on and blocks are text[] columns of task IDs.
type TaskRepository struct {
	db DBTX
}

// NewTaskRepository creates a new TaskRepository backed by the given database
// connection (pool or transaction).
func NewTaskRepository(db DBTX) *TaskRepository {
	return &TaskRepository{db: db}
}

// taskColumns defines the standard set of columns selected for task queries.
const taskColumns = `t.id, t.project_id, t.name, t.type, t.sequence_order,
	t.expected_start, t.expected_end, t.actual_start, t.actual_end,
	t.weather_sensitive, t.thresholds,
	t.status, t.delayed_today, t.delay_reason, t.total_delay_days,
	t.progress_percentage, t.depends_on, t.blocks,
	t.created_at, t.updated_at`

// scanTask scans a single task row. The columns must match the order defined
// in taskColumns.
func scanTask(row pgx.Row) (*types.Task, error) {
	var t types.Task
	var (
		thresholds  *types.WeatherThresholds
		delayReason *string
	)

	err := row.Scan(
		&t.ID,
		&t.ProjectID,
		&t.Name,
		&t.Type,
		&t.SequenceOrder,
		&t.ExpectedStart,
		&t.ExpectedEnd,
		&t.ActualStart,
		&t.ActualEnd,
		&t.WeatherSensitive,
		&thresholds,
		&t.Status,
		&t.DelayedToday,
		&delayReason,
		&t.TotalDelayDays,
		&t.ProgressPercentage,
		&t.DependsOn,
		&t.Blocks,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Thresholds = thresholds
	if delayReason != nil {
		t.DelayReason = *delayReason
	}

	return &t, nil
}

// Create inserts a new task record. The caller must set the ID, project ID and
// required fields before calling.
func (r *TaskRepository) Create(ctx context.Context, t *types.Task) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO tasks (
			id, project_id, name, type, sequence_order,
			expected_start, expected_end, actual_start, actual_end,
			weather_sensitive, thresholds,
			status, delayed_today, delay_reason, total_delay_days,
			progress_percentage, depends_on, blocks,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11,
			$12, $13, $14, $15,
			$16, $17, $18,
			COALESCE($19, NOW()), COALESCE($20, NOW())
		)`,
		t.ID,
		t.ProjectID,
		t.Name,
		t.Type,
		t.SequenceOrder,
		t.ExpectedStart,
		t.ExpectedEnd,
		t.ActualStart,
		t.ActualEnd,
		t.WeatherSensitive,
		t.Thresholds,
		t.Status,
		t.DelayedToday,
		nilIfEmpty(t.DelayReason),
		t.TotalDelayDays,
		t.ProgressPercentage,
		t.DependsOn,
		t.Blocks,
		nilIfZeroTime(t.CreatedAt),
		nilIfZeroTime(t.UpdatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create task", err)
	}
	return nil
}

// GetByID retrieves a task by its ID, scoped to the given project. Returns
// ErrCodeNotFoundTask if no row matches.
func (r *TaskRepository) GetByID(ctx context.Context, id string, projectID string) (*types.Task, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks t
		 WHERE t.id = $1 AND t.project_id = $2`,
		id, projectID,
	)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTask, "task not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve task", err)
	}
	return t, nil
}

// ListForEvaluation retrieves the project's tasks eligible for an evaluation
// cycle: everything except tasks in a terminal status. Ordered by
// sequence_order so results are deterministic.
func (r *TaskRepository) ListForEvaluation(ctx context.Context, projectID string) ([]*types.Task, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks t
		 WHERE t.project_id = $1
		   AND t.status NOT IN ('completed', 'cancelled')
		 ORDER BY t.sequence_order, t.id`,
		projectID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list tasks for evaluation", err)
	}
	defer rows.Close()

	var results []*types.Task
	for rows.Next() {
		t, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan task row", scanErr)
		}
		results = append(results, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating task rows", err)
	}

	return results, nil
}

// ListByProject retrieves all tasks for a project regardless of status.
func (r *TaskRepository) ListByProject(ctx context.Context, projectID string) ([]*types.Task, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks t
		 WHERE t.project_id = $1
		 ORDER BY t.sequence_order, t.id`,
		projectID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list tasks", err)
	}
	defer rows.Close()

	var results []*types.Task
	for rows.Next() {
		t, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan task row", scanErr)
		}
		results = append(results, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating task rows", err)
	}

	return results, nil
}

// Update persists the mutable evaluation fields of a task. The updated_at
// timestamp is set by the database.
func (r *TaskRepository) Update(ctx context.Context, t *types.Task) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tasks SET
			name = $1,
			type = $2,
			sequence_order = $3,
			expected_start = $4,
			expected_end = $5,
			actual_start = $6,
			actual_end = $7,
			weather_sensitive = $8,
			thresholds = $9,
			status = $10,
			delayed_today = $11,
			delay_reason = $12,
			total_delay_days = $13,
			progress_percentage = $14,
			depends_on = $15,
			blocks = $16,
			updated_at = NOW()
		 WHERE id = $17 AND project_id = $18`,
		t.Name,
		t.Type,
		t.SequenceOrder,
		t.ExpectedStart,
		t.ExpectedEnd,
		t.ActualStart,
		t.ActualEnd,
		t.WeatherSensitive,
		t.Thresholds,
		t.Status,
		t.DelayedToday,
		nilIfEmpty(t.DelayReason),
		t.TotalDelayDays,
		t.ProgressPercentage,
		t.DependsOn,
		t.Blocks,
		t.ID,
		t.ProjectID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update task", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTask, "task not found", nil)
	}
	return nil
}
