package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"weatherproof/internal/types"
)

// ListDelayEventsParams defines the filtering and pagination parameters for
// listing delay events.
type ListDelayEventsParams struct {
	OpenOnly bool      `json:"open_only"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Limit    int       `json:"limit"`
	Cursor   string    `json:"cursor"`
}

// DelayEventRepository provides data access for the delay_events table.
//
// Invariant: at most one open event (end_time IS NULL) exists per project.
// The schema enforces this with a partial unique index on (project_id) WHERE
// end_time IS NULL; Open maps the resulting unique violation to
// ErrCodeConflictDelayEventOpen so the losing writer can re-read and adopt
// the winner's event.
type DelayEventRepository struct {
	db DBTX
}

// NewDelayEventRepository creates a new DelayEventRepository backed by the
// given database connection (pool or transaction).
func NewDelayEventRepository(db DBTX) *DelayEventRepository {
	return &DelayEventRepository{db: db}
}

const delayEventColumns = `e.id, e.project_id, e.cause, e.description,
	e.start_time, e.end_time, e.duration_hours,
	e.weather_snapshot_id,
	e.labor_cost, e.equipment_cost, e.overhead_cost, e.total_cost,
	e.created_at, e.updated_at`

func scanDelayEvent(row pgx.Row) (*types.DelayEvent, error) {
	var e types.DelayEvent
	var (
		description *string
		snapshotID  *string
	)

	err := row.Scan(
		&e.ID,
		&e.ProjectID,
		&e.Cause,
		&description,
		&e.StartTime,
		&e.EndTime,
		&e.DurationHours,
		&snapshotID,
		&e.LaborCost,
		&e.EquipmentCost,
		&e.OverheadCost,
		&e.TotalCost,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description != nil {
		e.Description = *description
	}
	if snapshotID != nil {
		e.WeatherSnapshotID = *snapshotID
	}

	return &e, nil
}

// GetOpen returns the project's open delay event, or (nil, nil) when no event
// is currently open.
func (r *DelayEventRepository) GetOpen(ctx context.Context, projectID string) (*types.DelayEvent, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+delayEventColumns+`
		 FROM delay_events e
		 WHERE e.project_id = $1 AND e.end_time IS NULL`,
		projectID,
	)

	e, err := scanDelayEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve open delay event", err)
	}
	return e, nil
}

// GetByID retrieves a delay event by its ID, scoped to the project. Returns
// ErrCodeNotFoundDelayEvent if no row matches.
func (r *DelayEventRepository) GetByID(ctx context.Context, id string, projectID string) (*types.DelayEvent, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+delayEventColumns+`
		 FROM delay_events e
		 WHERE e.id = $1 AND e.project_id = $2`,
		id, projectID,
	)

	e, err := scanDelayEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundDelayEvent, "delay event not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve delay event", err)
	}
	return e, nil
}

// Open inserts a new open delay event. A concurrent writer that already opened
// an event for the same project trips the partial unique index; that unique
// violation is returned as ErrCodeConflictDelayEventOpen.
func (r *DelayEventRepository) Open(ctx context.Context, e *types.DelayEvent) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO delay_events (
			id, project_id, cause, description,
			start_time, weather_snapshot_id,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6,
			COALESCE($7, NOW()), COALESCE($8, NOW())
		)`,
		e.ID,
		e.ProjectID,
		e.Cause,
		nilIfEmpty(e.Description),
		e.StartTime,
		nilIfEmpty(e.WeatherSnapshotID),
		nilIfZeroTime(e.CreatedAt),
		nilIfZeroTime(e.UpdatedAt),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return types.NewAppError(types.ErrCodeConflictDelayEventOpen,
				"an open delay event already exists for this project", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to open delay event", err)
	}
	return nil
}

// Close stamps the event's end time, duration, and computed costs. Only open
// events can be closed; closing an already-closed event returns
// ErrCodeNotFoundDelayEvent.
func (r *DelayEventRepository) Close(ctx context.Context, id string, endTime time.Time, durationHours float64, costs types.CostBreakdown) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE delay_events SET
			end_time = $1,
			duration_hours = $2,
			labor_cost = $3,
			equipment_cost = $4,
			overhead_cost = $5,
			total_cost = $6,
			updated_at = NOW()
		 WHERE id = $7 AND end_time IS NULL`,
		endTime,
		durationHours,
		costs.LaborCost,
		costs.EquipmentCost,
		costs.OverheadCost,
		costs.TotalCost,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to close delay event", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundDelayEvent, "open delay event not found", nil)
	}
	return nil
}

// List retrieves delay events for a project with optional filtering and
// cursor-based pagination. Results are ordered by start_time DESC (newest
// first). Uses limit+1 fetch strategy to determine HasMore without a separate
// COUNT query.
func (r *DelayEventRepository) List(ctx context.Context, projectID string, params ListDelayEventsParams) ([]*types.DelayEvent, types.PageInfo, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("e.project_id = $%d", argIdx))
	args = append(args, projectID)
	argIdx++

	if params.OpenOnly {
		conditions = append(conditions, "e.end_time IS NULL")
	}
	if !params.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("e.start_time >= $%d", argIdx))
		args = append(args, params.From)
		argIdx++
	}
	if !params.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("e.start_time < $%d", argIdx))
		args = append(args, params.To)
		argIdx++
	}

	// Cursor-based pagination: fetch events older than the cursor timestamp.
	if params.Cursor != "" {
		cursorTime, err := time.Parse(time.RFC3339Nano, params.Cursor)
		if err != nil {
			return nil, types.PageInfo{}, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"invalid cursor format; expected RFC3339 timestamp",
				err,
			)
		}
		conditions = append(conditions, fmt.Sprintf("e.start_time < $%d", argIdx))
		args = append(args, cursorTime)
		argIdx++
	}

	query := fmt.Sprintf(
		`SELECT %s
		 FROM delay_events e
		 WHERE %s
		 ORDER BY e.start_time DESC
		 LIMIT $%d`,
		delayEventColumns,
		strings.Join(conditions, " AND "),
		argIdx,
	)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to list delay events", err)
	}
	defer rows.Close()

	var results []*types.DelayEvent
	for rows.Next() {
		e, scanErr := scanDelayEvent(rows)
		if scanErr != nil {
			return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to scan delay event row", scanErr)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "error iterating delay event rows", err)
	}

	pageInfo := types.PageInfo{}
	if len(results) > limit {
		pageInfo.HasMore = true
		pageInfo.NextCursor = results[limit-1].StartTime.Format(time.RFC3339Nano)
		results = results[:limit]
	}

	return results, pageInfo, nil
}
