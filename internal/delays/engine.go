// Package delays implements the task delay state machine and the project
// evaluation batch: the engine that turns weather snapshots into task status
// transitions, daily delay logs, and open/closed delay events with computed
// cost impact.
//
// Each evaluation cycle is stateless and idempotent. Re-running the same
// calendar day with unchanged weather produces identical task state and
// exactly one daily-log row per task (the second run upserts, it does not
// duplicate). Tasks within a project are evaluated concurrently because each
// transition only touches its own row and its own (task, day) log row; the
// single-open-delay-event invariant is the one per-project serialization
// point and is enforced by the event repository.
package delays

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"weatherproof/internal/costing"
	"weatherproof/internal/thresholds"
	"weatherproof/internal/types"
)

const (
	// DefaultLookaheadWindow is how far ahead the forecast check looks when
	// deciding whether a currently-clear task should be flagged at_risk.
	DefaultLookaheadWindow = 72 * time.Hour

	// DefaultTaskConcurrency bounds concurrent task evaluations within one project.
	DefaultTaskConcurrency = 8

	// DefaultProjectConcurrency bounds concurrent project evaluations in a sweep.
	DefaultProjectConcurrency = 4
)

// Config holds the engine tunables.
type Config struct {
	// LookaheadWindow drives the at_risk forecast check. Zero takes the
	// package default; negative disables the check.
	LookaheadWindow    time.Duration
	TaskConcurrency    int
	ProjectConcurrency int
}

// EngineDeps holds the dependencies for constructing an Engine.
type EngineDeps struct {
	Projects    ProjectRepo
	Tasks       TaskRepo
	Weather     WeatherRepo
	DailyLogs   DailyLogRepo
	DelayEvents DelayEventRepo
	Assignments AssignmentRepo
	Evaluator   *thresholds.Evaluator
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

// Engine runs the daily delay evaluation for projects and tasks.
type Engine struct {
	projects    ProjectRepo
	tasks       TaskRepo
	weather     WeatherRepo
	dailyLogs   DailyLogRepo
	delayEvents DelayEventRepo
	assignments AssignmentRepo

	evaluator *thresholds.Evaluator
	clock     clockwork.Clock
	logger    *slog.Logger
	cfg       Config
}

// NewEngine creates an Engine. Nil Evaluator, Clock, or Logger fall back to
// working defaults; zero Config fields take the package defaults.
func NewEngine(deps EngineDeps, cfg Config) *Engine {
	if deps.Evaluator == nil {
		deps.Evaluator = thresholds.New(deps.Logger)
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.LookaheadWindow == 0 {
		cfg.LookaheadWindow = DefaultLookaheadWindow
	}
	if cfg.TaskConcurrency <= 0 {
		cfg.TaskConcurrency = DefaultTaskConcurrency
	}
	if cfg.ProjectConcurrency <= 0 {
		cfg.ProjectConcurrency = DefaultProjectConcurrency
	}
	return &Engine{
		projects:    deps.Projects,
		tasks:       deps.Tasks,
		weather:     deps.Weather,
		dailyLogs:   deps.DailyLogs,
		delayEvents: deps.DelayEvents,
		assignments: deps.Assignments,
		evaluator:   deps.Evaluator,
		clock:       deps.Clock,
		logger:      deps.Logger,
		cfg:         cfg,
	}
}

// EvaluateProject evaluates every eligible task for one project and reconciles
// the project's delay event. Per-task errors are collected into the summary
// rather than aborting the batch; only project-level failures (project lookup,
// task listing) return an error.
func (e *Engine) EvaluateProject(ctx context.Context, projectID string) (*types.ProjectEvaluationSummary, error) {
	return e.EvaluateProjectTasks(ctx, projectID, nil)
}

// EvaluateProjectTasks is EvaluateProject restricted to the given task IDs.
// An empty filter evaluates every eligible task.
func (e *Engine) EvaluateProjectTasks(ctx context.Context, projectID string, onlyTaskIDs []string) (*types.ProjectEvaluationSummary, error) {
	now := e.clock.Now().UTC()
	summary := &types.ProjectEvaluationSummary{
		ProjectID:   projectID,
		EvaluatedAt: now,
	}

	project, err := e.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.Active {
		summary.Warnings = append(summary.Warnings, "project is inactive; evaluation skipped")
		return summary, nil
	}

	tasks, err := e.tasks.ListForEvaluation(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing tasks for project %s: %w", projectID, err)
	}
	if len(onlyTaskIDs) > 0 {
		tasks = filterTasks(tasks, onlyTaskIDs)
	}

	snapshot, err := e.weather.LatestForProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading latest weather for project %s: %w", projectID, err)
	}
	if snapshot == nil {
		summary.Warnings = append(summary.Warnings, "no weather snapshot available; weather-sensitive tasks skipped")
	}

	var forecasts []*types.WeatherSnapshot
	if e.cfg.LookaheadWindow > 0 {
		forecasts, err = e.weather.ForecastBetween(ctx, projectID, now, now.Add(e.cfg.LookaheadWindow))
		if err != nil {
			// Forecast data is advisory; its absence only disables the
			// at_risk check.
			e.logger.WarnContext(ctx, "forecast lookup failed; at_risk check disabled for this cycle",
				"project_id", projectID,
				"error", err,
			)
			forecasts = nil
		}
	}

	// Snapshot of pre-evaluation statuses for the predecessor rule. Reading
	// the pre-cycle state keeps task evaluations order-independent.
	statusByID := make(map[string]types.TaskStatus, len(tasks))
	for _, t := range tasks {
		statusByID[t.ID] = t.Status
	}

	day := calendarDay(now, project.Timezone)

	results := make([]types.TaskEvaluation, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.TaskConcurrency)
	for i, task := range tasks {
		g.Go(func() error {
			results[i] = e.evaluateTask(gctx, project, task, snapshot, forecasts, statusByID, day)
			// Per-task failures are recorded in the result, never propagated:
			// one bad task must not abort the batch.
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		summary.Tasks = append(summary.Tasks, r)
		switch {
		case r.Skipped:
			summary.TasksSkipped++
			if r.SkipReason == types.SkipNoWeatherData {
				summary.Warnings = append(summary.Warnings,
					fmt.Sprintf("task %s skipped: no weather data", r.TaskID))
			}
		default:
			summary.TasksEvaluated++
			if r.Delayed {
				summary.TasksDelayed++
			}
		}
	}

	fullRun := len(onlyTaskIDs) == 0
	if err := e.reconcileDelayEvent(ctx, project, snapshot, summary, now, fullRun); err != nil {
		// Event reconciliation failure is project-scoped but non-fatal for
		// the task updates already persisted.
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("delay event reconciliation failed: %v", err))
		e.logger.ErrorContext(ctx, "delay event reconciliation failed",
			"project_id", projectID,
			"error", err,
		)
	}

	e.logger.InfoContext(ctx, "project evaluation complete",
		"project_id", projectID,
		"tasks_evaluated", summary.TasksEvaluated,
		"tasks_delayed", summary.TasksDelayed,
		"tasks_skipped", summary.TasksSkipped,
	)
	return summary, nil
}

// evaluateTask applies the single-task transition rule. It touches only the
// task's own row and its own (task, day) daily-log row.
func (e *Engine) evaluateTask(
	ctx context.Context,
	project *types.Project,
	task *types.Task,
	snapshot *types.WeatherSnapshot,
	forecasts []*types.WeatherSnapshot,
	statusByID map[string]types.TaskStatus,
	day time.Time,
) types.TaskEvaluation {
	out := types.TaskEvaluation{
		TaskID:         task.ID,
		PreviousStatus: task.Status,
		NewStatus:      task.Status,
	}

	if task.Status.IsTerminal() {
		out.Skipped = true
		out.SkipReason = types.SkipTerminalStatus
		return out
	}
	if !task.WeatherSensitive {
		// Non-sensitive tasks move only on manual progress updates.
		out.Skipped = true
		out.SkipReason = types.SkipNotWeatherSensitive
		return out
	}
	if snapshot == nil {
		// Nothing to compare: leave the task unchanged and report a soft skip.
		out.Skipped = true
		out.SkipReason = types.SkipNoWeatherData
		return out
	}

	limits := task.EffectiveThresholds(project)
	res := e.evaluator.Evaluate(snapshot, limits)
	out.Violations = res.Violations
	out.ChecksSkipped = res.ChecksSkipped
	for _, dim := range res.InvalidLimits {
		e.logger.WarnContext(ctx, "malformed threshold limit skipped",
			"task_id", task.ID,
			"dimension", string(dim),
		)
	}

	if res.Triggered() {
		e.applyDelay(ctx, task, res.Violations, day, &out)
		// A failed lookup means the delay-day counter could not be resolved;
		// persisting anyway would suppress the increment on the re-run.
		if out.Error != "" {
			return out
		}
	} else {
		e.applyClear(ctx, task, limits, forecasts, statusByID, &out)
	}

	log := &types.TaskDailyLog{
		TaskID:            task.ID,
		LogDate:           day,
		Delayed:           res.Triggered(),
		DelayReason:       types.JoinViolations(res.Violations),
		WeatherSnapshotID: snapshot.ID,
		Conditions:        snapshot.Conditions,
	}
	if err := e.dailyLogs.Upsert(ctx, log); err != nil {
		out.Error = fmt.Sprintf("daily log upsert: %v", err)
		return out
	}

	if err := e.tasks.Update(ctx, task); err != nil {
		out.Error = fmt.Sprintf("task update: %v", err)
		return out
	}

	out.NewStatus = task.Status
	out.Delayed = task.DelayedToday
	return out
}

// applyDelay marks the task delayed for the day. The delay-day counter is
// incremented at most once per calendar day, keyed by the existing daily log.
func (e *Engine) applyDelay(ctx context.Context, task *types.Task, violations []types.Violation, day time.Time, out *types.TaskEvaluation) {
	prior, err := e.dailyLogs.Get(ctx, task.ID, day)
	if err != nil {
		out.Error = fmt.Sprintf("daily log lookup: %v", err)
		return
	}
	alreadyCounted := prior != nil && prior.Delayed
	if !alreadyCounted {
		task.TotalDelayDays++
	}

	task.DelayedToday = true
	task.DelayReason = types.JoinViolations(violations)
	task.Status = types.TaskStatusDelayed
}

// applyClear advances a task with no current violation: forecast look-ahead
// may flag it at_risk; otherwise status follows progress, with delayed tasks
// reverting to on_track unless a predecessor is still incomplete.
func (e *Engine) applyClear(
	ctx context.Context,
	task *types.Task,
	limits types.WeatherThresholds,
	forecasts []*types.WeatherSnapshot,
	statusByID map[string]types.TaskStatus,
	out *types.TaskEvaluation,
) {
	task.DelayedToday = false

	if e.forecastViolates(forecasts, limits) {
		task.Status = types.TaskStatusAtRisk
		return
	}

	switch {
	case task.ProgressPercentage >= 100:
		task.Status = types.TaskStatusCompleted
		if task.ActualEnd == nil {
			now := e.clock.Now().UTC()
			task.ActualEnd = &now
		}
	case task.ProgressPercentage == 0:
		if task.Status == types.TaskStatusDelayed || task.Status == types.TaskStatusAtRisk {
			task.Status = e.revertedStatus(task, statusByID)
		} else {
			task.Status = types.TaskStatusPending
		}
	default:
		if task.Status == types.TaskStatusDelayed || task.Status == types.TaskStatusAtRisk {
			task.Status = e.revertedStatus(task, statusByID)
		} else if task.Status == types.TaskStatusPending {
			task.Status = types.TaskStatusInProgress
		}
		// in_progress and on_track hold steady.
	}
}

// revertedStatus resolves where a previously delayed task lands once weather
// clears: on_track, unless a predecessor is still incomplete, in which case
// the task stays pending.
func (e *Engine) revertedStatus(task *types.Task, statusByID map[string]types.TaskStatus) types.TaskStatus {
	for _, depID := range task.DependsOn {
		status, ok := statusByID[depID]
		if !ok {
			// Predecessor not in this evaluation set (e.g., terminal and
			// filtered out). Terminal-filtered predecessors are complete.
			continue
		}
		if status != types.TaskStatusCompleted {
			return types.TaskStatusPending
		}
	}
	return types.TaskStatusOnTrack
}

// forecastViolates reports whether any forecast snapshot inside the look-ahead
// window would violate the task's thresholds.
func (e *Engine) forecastViolates(forecasts []*types.WeatherSnapshot, limits types.WeatherThresholds) bool {
	for _, f := range forecasts {
		if len(e.evaluator.Check(f, limits)) > 0 {
			return true
		}
	}
	return false
}

// reconcileDelayEvent opens or closes the project's delay event based on the
// cycle outcome, enforcing the at-most-one-open-event invariant. The losing
// writer of a concurrent open re-reads the now-open event rather than
// creating a duplicate.
//
// Closing requires positive evidence that conditions returned to normal: a
// weather snapshot, a full (unfiltered) run, and at least one task actually
// evaluated. A missing-data cycle soft-skips every task and must leave the
// event open; so must a targeted subset run, since unevaluated tasks may
// still be delayed.
func (e *Engine) reconcileDelayEvent(
	ctx context.Context,
	project *types.Project,
	snapshot *types.WeatherSnapshot,
	summary *types.ProjectEvaluationSummary,
	now time.Time,
	fullRun bool,
) error {
	open, err := e.delayEvents.GetOpen(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("reading open delay event: %w", err)
	}

	anyDelayed := summary.TasksDelayed > 0
	clearEvidence := fullRun && snapshot != nil && summary.TasksEvaluated > 0

	switch {
	case anyDelayed && open == nil:
		event := &types.DelayEvent{
			ID:          uuid.New().String(),
			ProjectID:   project.ID,
			Cause:       types.CauseWeather,
			Description: firstDelayReason(summary),
			StartTime:   now,
		}
		if snapshot != nil {
			event.WeatherSnapshotID = snapshot.ID
		}
		if err := e.delayEvents.Open(ctx, event); err != nil {
			var appErr *types.AppError
			if errors.As(err, &appErr) && appErr.Code == types.ErrCodeConflictDelayEventOpen {
				// Lost the race: adopt the event the winner opened.
				existing, readErr := e.delayEvents.GetOpen(ctx, project.ID)
				if readErr != nil {
					return fmt.Errorf("re-reading delay event after conflict: %w", readErr)
				}
				summary.DelayEventOpened = existing
				return nil
			}
			return fmt.Errorf("opening delay event: %w", err)
		}
		summary.DelayEventOpened = event
		e.logger.InfoContext(ctx, "delay event opened",
			"project_id", project.ID,
			"event_id", event.ID,
		)

	case !anyDelayed && open != nil && clearEvidence:
		hours := now.Sub(open.StartTime).Hours()
		costs, err := e.priceDelayWindow(ctx, project, open.StartTime, now, hours)
		if err != nil {
			return fmt.Errorf("pricing delay window: %w", err)
		}
		if err := e.delayEvents.Close(ctx, open.ID, now, hours, costs); err != nil {
			return fmt.Errorf("closing delay event: %w", err)
		}
		closed := *open
		closed.EndTime = &now
		closed.DurationHours = hours
		closed.LaborCost = costs.LaborCost
		closed.EquipmentCost = costs.EquipmentCost
		closed.OverheadCost = costs.OverheadCost
		closed.TotalCost = costs.TotalCost
		summary.DelayEventClosed = &closed
		e.logger.InfoContext(ctx, "delay event closed",
			"project_id", project.ID,
			"event_id", open.ID,
			"duration_hours", hours,
			"total_cost", costs.TotalCost,
		)
	}

	return nil
}

// priceDelayWindow loads the project's assignments and runs the cost
// calculator over the closing window.
func (e *Engine) priceDelayWindow(ctx context.Context, project *types.Project, start, end time.Time, hours float64) (types.CostBreakdown, error) {
	crew, err := e.assignments.CrewForProject(ctx, project.ID)
	if err != nil {
		return types.CostBreakdown{}, fmt.Errorf("loading crew assignments: %w", err)
	}
	equipment, err := e.assignments.EquipmentForProject(ctx, project.ID)
	if err != nil {
		return types.CostBreakdown{}, fmt.Errorf("loading equipment assignments: %w", err)
	}
	window := types.DelayWindow{Start: start, End: end, HoursIdled: hours}
	return costing.ComputeDelayCost(window, crew, equipment, project.DailyOverhead), nil
}

// calendarDay resolves "today" in the project's timezone, stored as midnight
// UTC so the (task_id, log_date) key is stable regardless of server locale.
func calendarDay(now time.Time, tz string) time.Time {
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func firstDelayReason(summary *types.ProjectEvaluationSummary) string {
	for _, t := range summary.Tasks {
		if t.Delayed && len(t.Violations) > 0 {
			return types.JoinViolations(t.Violations)
		}
	}
	return ""
}

func filterTasks(tasks []*types.Task, ids []string) []*types.Task {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	var out []*types.Task
	for _, t := range tasks {
		if _, ok := keep[t.ID]; ok {
			out = append(out, t)
		}
	}
	return out
}
