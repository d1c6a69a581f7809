package weather

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"weatherproof/internal/types"
)

// SnapshotStore persists collected readings.
type SnapshotStore interface {
	Insert(ctx context.Context, s *types.WeatherSnapshot) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ProjectLister provides the set of projects to collect weather for.
type ProjectLister interface {
	ListActive(ctx context.Context) ([]*types.Project, error)
}

// Collector polls the weather provider for each active project and stores the
// resulting observation and forecast snapshots. One failing project never
// blocks the rest of the collection run.
type Collector struct {
	projects  ProjectLister
	store     SnapshotStore
	provider  Provider
	clock     clockwork.Clock
	logger    *slog.Logger
	lookahead time.Duration
	retention time.Duration
}

// CollectorConfig tunes a Collector.
type CollectorConfig struct {
	// LookaheadWindow bounds how far ahead forecasts are fetched.
	LookaheadWindow time.Duration
	// Retention bounds how long old snapshots are kept before pruning.
	// Zero disables pruning.
	Retention time.Duration
}

// NewCollector creates a Collector. A nil clock defaults to the real clock;
// a nil logger defaults to slog.Default().
func NewCollector(projects ProjectLister, store SnapshotStore, provider Provider, clock clockwork.Clock, logger *slog.Logger, cfg CollectorConfig) *Collector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LookaheadWindow <= 0 {
		cfg.LookaheadWindow = 72 * time.Hour
	}
	return &Collector{
		projects:  projects,
		store:     store,
		provider:  provider,
		clock:     clock,
		logger:    logger,
		lookahead: cfg.LookaheadWindow,
		retention: cfg.Retention,
	}
}

// CollectProject fetches and stores the current observation and the hourly
// forecast for one project.
func (c *Collector) CollectProject(ctx context.Context, p *types.Project) error {
	obs, err := c.provider.CurrentConditions(ctx, p.Location)
	if err != nil {
		return err
	}

	obs.ID = uuid.New().String()
	obs.ProjectID = p.ID
	if err := c.store.Insert(ctx, obs); err != nil {
		return err
	}

	forecasts, err := c.provider.HourlyForecast(ctx, p.Location, c.lookahead)
	if err != nil {
		// The observation is already stored; a forecast failure degrades the
		// look-ahead check but must not lose the current reading.
		c.logger.WarnContext(ctx, "forecast fetch failed",
			"project_id", p.ID,
			"error", err,
		)
		return nil
	}

	for _, f := range forecasts {
		f.ID = uuid.New().String()
		f.ProjectID = p.ID
		if err := c.store.Insert(ctx, f); err != nil {
			return err
		}
	}

	c.logger.InfoContext(ctx, "weather collected",
		"project_id", p.ID,
		"forecast_periods", len(forecasts),
	)
	return nil
}

// CollectAll runs a collection cycle over every active project. Per-project
// failures are logged and skipped; the first storage-level error listing
// projects aborts the cycle.
func (c *Collector) CollectAll(ctx context.Context) error {
	projects, err := c.projects.ListActive(ctx)
	if err != nil {
		return err
	}

	for _, p := range projects {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.CollectProject(ctx, p); err != nil {
			c.logger.ErrorContext(ctx, "weather collection failed",
				"project_id", p.ID,
				"error", err,
			)
		}
	}

	if c.retention > 0 {
		cutoff := c.clock.Now().Add(-c.retention)
		pruned, err := c.store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			c.logger.WarnContext(ctx, "snapshot pruning failed", "error", err)
		} else if pruned > 0 {
			c.logger.InfoContext(ctx, "pruned old snapshots", "count", pruned)
		}
	}

	return nil
}
