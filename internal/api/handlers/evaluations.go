// Package handlers contains the HTTP handlers for the WeatherProof v1 API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"weatherproof/internal/core"
	"weatherproof/internal/types"
)

// ProjectEvaluator runs a delay evaluation cycle for one project, optionally
// restricted to a subset of its tasks.
type ProjectEvaluator interface {
	EvaluateProjectTasks(ctx context.Context, projectID string, onlyTaskIDs []string) (*types.ProjectEvaluationSummary, error)
	EvaluateAll(ctx context.Context) (*types.SweepSummary, error)
}

// EvalEnqueuer fans evaluation work out to the worker queue instead of
// running it inline.
type EvalEnqueuer interface {
	TriggerEvaluation(ctx context.Context, projectID string, reason types.EvalReason, taskIDs []string) error
	TriggerSweep(ctx context.Context, projectIDs []string, reason types.EvalReason) (string, int, error)
}

// ActiveProjectSource lists the projects eligible for a sweep.
type ActiveProjectSource interface {
	ListActive(ctx context.Context) ([]*types.Project, error)
}

// EvaluationHandler exposes the evaluation trigger endpoints. When an
// enqueuer is configured, requests are accepted and dispatched to the worker
// queue; without one (local or single-binary deployments) evaluation runs
// inline and the full summary comes back in the response.
type EvaluationHandler struct {
	engine    ProjectEvaluator
	enqueuer  EvalEnqueuer
	projects  ActiveProjectSource
	validator *core.Validator
	logger    *slog.Logger
}

// NewEvaluationHandler creates an EvaluationHandler. engine, projects and
// validator are required; enqueuer may be nil to force inline execution.
func NewEvaluationHandler(
	engine ProjectEvaluator,
	enqueuer EvalEnqueuer,
	projects ActiveProjectSource,
	validator *core.Validator,
	logger *slog.Logger,
) *EvaluationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EvaluationHandler{
		engine:    engine,
		enqueuer:  enqueuer,
		projects:  projects,
		validator: validator,
		logger:    logger,
	}
}

// RegisterRoutes mounts the evaluation routes on the provided chi.Router.
func (h *EvaluationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/projects/{projectID}/evaluations", h.RunProject)
	r.Post("/evaluations/sweep", h.RunSweep)
}

// RunEvaluationRequest is the optional body for a project evaluation trigger.
// An empty body evaluates every weather-sensitive task in the project.
type RunEvaluationRequest struct {
	// TaskIDs restricts the run to the named tasks.
	TaskIDs []string `json:"task_ids,omitempty" validate:"omitempty,max=500,dive,required"`

	// Async enqueues the run instead of executing it inline. Ignored when no
	// queue is configured.
	Async bool `json:"async,omitempty"`
}

// EvaluationAccepted is returned when a run was enqueued rather than executed.
type EvaluationAccepted struct {
	ProjectID string           `json:"project_id,omitempty"`
	SweepID   string           `json:"sweep_id,omitempty"`
	Enqueued  int              `json:"enqueued"`
	Reason    types.EvalReason `json:"reason"`
}

// RunProject handles POST /v1/projects/{projectID}/evaluations.
//
// The body is optional; when present it may restrict the run to specific
// tasks or request async dispatch. Inline runs return the full per-task
// summary, with non-fatal conditions (missing readings, skipped checks)
// surfaced as response warnings.
func (h *EvaluationHandler) RunProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req RunEvaluationRequest
	if r.ContentLength != 0 {
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
		if err := h.validator.ValidateStruct(req); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	if req.Async && h.enqueuer != nil {
		if err := h.enqueuer.TriggerEvaluation(r.Context(), projectID, types.ReasonManualTrigger, req.TaskIDs); err != nil {
			core.Error(w, r, err)
			return
		}
		h.logger.InfoContext(r.Context(), "evaluation enqueued",
			"project_id", projectID,
			"task_ids", len(req.TaskIDs),
		)
		core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: EvaluationAccepted{
			ProjectID: projectID,
			Enqueued:  1,
			Reason:    types.ReasonManualTrigger,
		}})
		return
	}

	summary, err := h.engine.EvaluateProjectTasks(r.Context(), projectID, req.TaskIDs)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var meta *types.ResponseMeta
	if len(summary.Warnings) > 0 {
		meta = &types.ResponseMeta{Warnings: summary.Warnings}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: summary, Meta: meta})
}

// RunSweep handles POST /v1/evaluations/sweep.
//
// With a queue configured the sweep fans one message per active project out
// to the eval workers and returns 202 with the sweep ID. Without one the
// sweep runs inline and returns the aggregate summary; per-project failures
// are reported in the summary but never abort the rest of the sweep.
func (h *EvaluationHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer != nil {
		projects, err := h.projects.ListActive(r.Context())
		if err != nil {
			core.Error(w, r, err)
			return
		}
		ids := make([]string, len(projects))
		for i, p := range projects {
			ids[i] = p.ID
		}

		sweepID, enqueued, err := h.enqueuer.TriggerSweep(r.Context(), ids, types.ReasonScheduledSweep)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		h.logger.InfoContext(r.Context(), "sweep enqueued",
			"sweep_id", sweepID,
			"projects", enqueued,
		)
		core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: EvaluationAccepted{
			SweepID:  sweepID,
			Enqueued: enqueued,
			Reason:   types.ReasonScheduledSweep,
		}})
		return
	}

	summary, err := h.engine.EvaluateAll(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: summary})
}
