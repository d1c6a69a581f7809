package delays

import (
	"context"
	"sync"

	"weatherproof/internal/types"
)

// EvaluateAll runs the evaluation cycle across every active project. Projects
// are processed concurrently up to the configured bound; a failure on one
// project is recorded in the summary and never aborts the sweep for the rest.
func (e *Engine) EvaluateAll(ctx context.Context) (*types.SweepSummary, error) {
	started := e.clock.Now().UTC()
	summary := &types.SweepSummary{StartedAt: started}

	projects, err := e.projects.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	sem := make(chan struct{}, e.cfg.ProjectConcurrency)
	var wg sync.WaitGroup

	for _, project := range projects {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			projSummary, err := e.EvaluateProject(ctx, project.ID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failures = append(summary.Failures, types.ProjectFailure{
					ProjectID: project.ID,
					Error:     err.Error(),
				})
				e.logger.ErrorContext(ctx, "project evaluation failed during sweep",
					"project_id", project.ID,
					"error", err,
				)
				return
			}
			summary.ProjectsEvaluated++
			summary.TasksEvaluated += projSummary.TasksEvaluated
			summary.TasksDelayed += projSummary.TasksDelayed
		}()
	}
	wg.Wait()

	summary.FinishedAt = e.clock.Now().UTC()
	e.logger.InfoContext(ctx, "sweep complete",
		"projects_evaluated", summary.ProjectsEvaluated,
		"tasks_evaluated", summary.TasksEvaluated,
		"tasks_delayed", summary.TasksDelayed,
		"failures", len(summary.Failures),
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
	)
	return summary, nil
}
