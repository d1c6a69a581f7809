package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"weatherproof/internal/types"
)

// DailyLogRepository provides data access for the task_daily_logs table.
//
// Exactly one row exists per (task_id, log_date): Upsert relies on the unique
// constraint over that pair, so same-day re-evaluations overwrite rather than
// duplicate.
type DailyLogRepository struct {
	db DBTX
}

// NewDailyLogRepository creates a new DailyLogRepository backed by the given
// database connection (pool or transaction).
func NewDailyLogRepository(db DBTX) *DailyLogRepository {
	return &DailyLogRepository{db: db}
}

const dailyLogColumns = `l.id, l.task_id, l.log_date,
	l.delayed, l.delay_reason,
	l.weather_snapshot_id, l.conditions,
	l.created_at, l.updated_at`

func scanDailyLog(row pgx.Row) (*types.TaskDailyLog, error) {
	var l types.TaskDailyLog
	var (
		delayReason *string
		snapshotID  *string
		conditions  *string
	)

	err := row.Scan(
		&l.ID,
		&l.TaskID,
		&l.LogDate,
		&l.Delayed,
		&delayReason,
		&snapshotID,
		&conditions,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if delayReason != nil {
		l.DelayReason = *delayReason
	}
	if snapshotID != nil {
		l.WeatherSnapshotID = *snapshotID
	}
	if conditions != nil {
		l.Conditions = *conditions
	}

	return &l, nil
}

// Get retrieves the daily log for a task on a given calendar day, or
// (nil, nil) when no log exists yet.
func (r *DailyLogRepository) Get(ctx context.Context, taskID string, day time.Time) (*types.TaskDailyLog, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+dailyLogColumns+`
		 FROM task_daily_logs l
		 WHERE l.task_id = $1 AND l.log_date = $2`,
		taskID, day,
	)

	l, err := scanDailyLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve daily log", err)
	}
	return l, nil
}

// Upsert writes the daily log for (task_id, log_date) with last-write-wins
// semantics. A missing ID is generated so callers can pass a bare log.
func (r *DailyLogRepository) Upsert(ctx context.Context, l *types.TaskDailyLog) error {
	id := l.ID
	if id == "" {
		id = uuid.New().String()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO task_daily_logs (
			id, task_id, log_date,
			delayed, delay_reason,
			weather_snapshot_id, conditions,
			created_at, updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5,
			$6, $7,
			NOW(), NOW()
		)
		ON CONFLICT (task_id, log_date) DO UPDATE SET
			delayed = EXCLUDED.delayed,
			delay_reason = EXCLUDED.delay_reason,
			weather_snapshot_id = EXCLUDED.weather_snapshot_id,
			conditions = EXCLUDED.conditions,
			updated_at = NOW()`,
		id,
		l.TaskID,
		l.LogDate,
		l.Delayed,
		nilIfEmpty(l.DelayReason),
		nilIfEmpty(l.WeatherSnapshotID),
		nilIfEmpty(l.Conditions),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert daily log", err)
	}
	return nil
}

// ListForProjectBetween retrieves daily logs for all of a project's tasks with
// log_date in [from, to), ordered by date then task. Used by the delay report
// export.
func (r *DailyLogRepository) ListForProjectBetween(ctx context.Context, projectID string, from, to time.Time) ([]*types.TaskDailyLog, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+dailyLogColumns+`
		 FROM task_daily_logs l
		 JOIN tasks t ON t.id = l.task_id
		 WHERE t.project_id = $1
		   AND l.log_date >= $2
		   AND l.log_date < $3
		 ORDER BY l.log_date, l.task_id`,
		projectID, from, to,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list daily logs", err)
	}
	defer rows.Close()

	var results []*types.TaskDailyLog
	for rows.Next() {
		l, scanErr := scanDailyLog(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan daily log row", scanErr)
		}
		results = append(results, l)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating daily log rows", err)
	}

	return results, nil
}
