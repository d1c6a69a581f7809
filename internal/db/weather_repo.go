package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"weatherproof/internal/types"
)

// WeatherRepository provides data access for the weather_snapshots table.
// Snapshots are append-only: rows are inserted by the collector and never
// updated. Retention cleanup is the only delete path.
type WeatherRepository struct {
	db DBTX
}

// NewWeatherRepository creates a new WeatherRepository backed by the given
// database connection (pool or transaction).
func NewWeatherRepository(db DBTX) *WeatherRepository {
	return &WeatherRepository{db: db}
}

const snapshotColumns = `s.id, s.project_id, s.collected_at,
	s.temperature, s.wind_speed, s.wind_gust,
	s.precipitation, s.precipitation_type,
	s.humidity, s.visibility,
	s.conditions, s.data_source, s.created_at`

func scanSnapshot(row pgx.Row) (*types.WeatherSnapshot, error) {
	var s types.WeatherSnapshot
	var (
		precipType *string
		conditions *string
	)

	err := row.Scan(
		&s.ID,
		&s.ProjectID,
		&s.CollectedAt,
		&s.Temperature,
		&s.WindSpeed,
		&s.WindGust,
		&s.Precipitation,
		&precipType,
		&s.Humidity,
		&s.Visibility,
		&conditions,
		&s.DataSource,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if precipType != nil {
		s.PrecipitationType = *precipType
	}
	if conditions != nil {
		s.Conditions = *conditions
	}

	return &s, nil
}

// Insert appends a new weather snapshot. The caller must set the ID,
// project ID, collected_at and data_source.
func (r *WeatherRepository) Insert(ctx context.Context, s *types.WeatherSnapshot) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO weather_snapshots (
			id, project_id, collected_at,
			temperature, wind_speed, wind_gust,
			precipitation, precipitation_type,
			humidity, visibility,
			conditions, data_source, created_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8,
			$9, $10,
			$11, $12, COALESCE($13, NOW())
		)`,
		s.ID,
		s.ProjectID,
		s.CollectedAt,
		s.Temperature,
		s.WindSpeed,
		s.WindGust,
		s.Precipitation,
		nilIfEmpty(s.PrecipitationType),
		s.Humidity,
		s.Visibility,
		nilIfEmpty(s.Conditions),
		s.DataSource,
		nilIfZeroTime(s.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert weather snapshot", err)
	}
	return nil
}

// LatestForProject returns the most recent observation snapshot for the
// project, or (nil, nil) when no observation has been collected yet. Forecast
// rows are excluded: the current-conditions check must never run against a
// prediction.
func (r *WeatherRepository) LatestForProject(ctx context.Context, projectID string) (*types.WeatherSnapshot, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+snapshotColumns+`
		 FROM weather_snapshots s
		 WHERE s.project_id = $1 AND s.data_source = 'observation'
		 ORDER BY s.collected_at DESC
		 LIMIT 1`,
		projectID,
	)

	s, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve latest weather snapshot", err)
	}
	return s, nil
}

// GetByID retrieves a snapshot by its ID. Returns ErrCodeNotFoundSnapshot if
// no row matches.
func (r *WeatherRepository) GetByID(ctx context.Context, id string) (*types.WeatherSnapshot, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+snapshotColumns+`
		 FROM weather_snapshots s
		 WHERE s.id = $1`,
		id,
	)

	s, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSnapshot, "weather snapshot not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve weather snapshot", err)
	}
	return s, nil
}

// ForecastBetween returns forecast snapshots for the project whose valid time
// falls in [from, to), ordered chronologically. Used by the look-ahead check.
func (r *WeatherRepository) ForecastBetween(ctx context.Context, projectID string, from, to time.Time) ([]*types.WeatherSnapshot, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+snapshotColumns+`
		 FROM weather_snapshots s
		 WHERE s.project_id = $1
		   AND s.data_source = 'forecast'
		   AND s.collected_at >= $2
		   AND s.collected_at < $3
		 ORDER BY s.collected_at`,
		projectID, from, to,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query forecast snapshots", err)
	}
	defer rows.Close()

	var results []*types.WeatherSnapshot
	for rows.Next() {
		s, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan forecast row", scanErr)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating forecast rows", err)
	}

	return results, nil
}

// DeleteOlderThan removes snapshots collected before the cutoff. Daily logs
// carry their own conditions copy, so old snapshots are safe to drop.
// Returns the number of rows removed.
func (r *WeatherRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM weather_snapshots WHERE collected_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to prune weather snapshots", err)
	}
	return tag.RowsAffected(), nil
}
