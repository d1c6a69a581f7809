package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"weatherproof/internal/config"
)

// Repositories bundles every repository backed by a shared connection pool.
// The HTTP server and the background workers receive this as a single
// dependency instead of individual constructors.
type Repositories struct {
	Projects    *ProjectRepository
	Tasks       *TaskRepository
	DelayEvents *DelayEventRepository
	Weather     *WeatherRepository
	DailyLogs   *DailyLogRepository
	Assignments *AssignmentRepository

	pool *pgxpool.Pool
}

// NewPool creates a pgx connection pool from the database configuration and
// verifies connectivity with a ping before returning.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// NewRepositories constructs every repository on top of the given pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Projects:    NewProjectRepository(pool),
		Tasks:       NewTaskRepository(pool),
		DelayEvents: NewDelayEventRepository(pool),
		Weather:     NewWeatherRepository(pool),
		DailyLogs:   NewDailyLogRepository(pool),
		Assignments: NewAssignmentRepository(pool),
		pool:        pool,
	}
}

// Ping verifies database connectivity. Used by the health endpoint.
func (r *Repositories) Ping(ctx context.Context) error {
	if r.pool == nil {
		return nil
	}
	return r.pool.Ping(ctx)
}

// Close releases the underlying connection pool.
func (r *Repositories) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}
