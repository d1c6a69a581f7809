package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"weatherproof/internal/types"
)

// ProjectRepository provides data access for the projects table.
//
// The default_thresholds column is JSONB; types.WeatherThresholds implements
// sql.Scanner and driver.Valuer so it round-trips transparently.
// collection_interval is stored as whole seconds.
type ProjectRepository struct {
	db DBTX
}

// NewProjectRepository creates a new ProjectRepository backed by the given
// database connection (pool or transaction).
func NewProjectRepository(db DBTX) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// projectColumns defines the standard set of columns selected for project queries.
const projectColumns = `p.id, p.name,
	p.location_lat, p.location_lon, p.location_display_name,
	p.timezone, p.default_thresholds, p.collection_interval,
	p.daily_overhead, p.active,
	p.created_at, p.updated_at`

// scanProject scans a single project row. The columns must match the order
// defined in projectColumns. Works for both pgx.Row and pgx.Rows since both
// expose Scan.
func scanProject(row pgx.Row) (*types.Project, error) {
	var p types.Project
	var (
		displayName     *string
		intervalSeconds int64
	)

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Location.Lat,
		&p.Location.Lon,
		&displayName,
		&p.Timezone,
		&p.DefaultThresholds,
		&intervalSeconds,
		&p.DailyOverhead,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if displayName != nil {
		p.Location.DisplayName = *displayName
	}
	p.CollectionInterval = secondsToDuration(intervalSeconds)

	return &p, nil
}

// Create inserts a new project record. The caller must set the ID and required
// fields before calling.
func (r *ProjectRepository) Create(ctx context.Context, p *types.Project) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO projects (
			id, name,
			location_lat, location_lon, location_display_name,
			timezone, default_thresholds, collection_interval,
			daily_overhead, active,
			created_at, updated_at
		) VALUES (
			$1, $2,
			$3, $4, $5,
			$6, $7, $8,
			$9, $10,
			COALESCE($11, NOW()), COALESCE($12, NOW())
		)`,
		p.ID,
		p.Name,
		p.Location.Lat,
		p.Location.Lon,
		nilIfEmpty(p.Location.DisplayName),
		p.Timezone,
		p.DefaultThresholds,
		durationToSeconds(p.CollectionInterval),
		p.DailyOverhead,
		p.Active,
		nilIfZeroTime(p.CreatedAt),
		nilIfZeroTime(p.UpdatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create project", err)
	}
	return nil
}

// GetByID retrieves a project by its ID. Returns ErrCodeNotFoundProject if
// no row matches.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*types.Project, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+projectColumns+`
		 FROM projects p
		 WHERE p.id = $1`,
		id,
	)

	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProject, "project not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve project", err)
	}
	return p, nil
}

// ListActive retrieves every active project, ordered by creation time so sweep
// output is stable across runs.
func (r *ProjectRepository) ListActive(ctx context.Context) ([]*types.Project, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+projectColumns+`
		 FROM projects p
		 WHERE p.active
		 ORDER BY p.created_at`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active projects", err)
	}
	defer rows.Close()

	var results []*types.Project
	for rows.Next() {
		p, scanErr := scanProject(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan project row", scanErr)
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating project rows", err)
	}

	return results, nil
}

// Update applies changes to an existing project. The updated_at timestamp is
// set by the database.
func (r *ProjectRepository) Update(ctx context.Context, p *types.Project) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE projects SET
			name = $1,
			location_lat = $2,
			location_lon = $3,
			location_display_name = $4,
			timezone = $5,
			default_thresholds = $6,
			collection_interval = $7,
			daily_overhead = $8,
			active = $9,
			updated_at = NOW()
		 WHERE id = $10`,
		p.Name,
		p.Location.Lat,
		p.Location.Lon,
		nilIfEmpty(p.Location.DisplayName),
		p.Timezone,
		p.DefaultThresholds,
		durationToSeconds(p.CollectionInterval),
		p.DailyOverhead,
		p.Active,
		p.ID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update project", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProject, "project not found", nil)
	}
	return nil
}

// Deactivate soft-disables a project. Evaluation and weather collection skip
// inactive projects; historical logs and delay events are retained.
func (r *ProjectRepository) Deactivate(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE projects SET active = FALSE, updated_at = NOW()
		 WHERE id = $1 AND active`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to deactivate project", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProject, "project not found or already inactive", nil)
	}
	return nil
}
