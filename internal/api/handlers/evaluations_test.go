package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weatherproof/internal/core"
	"weatherproof/internal/types"
)

type mockEvaluator struct {
	evaluateFn    func(ctx context.Context, projectID string, onlyTaskIDs []string) (*types.ProjectEvaluationSummary, error)
	evaluateAllFn func(ctx context.Context) (*types.SweepSummary, error)

	lastProjectID string
	lastTaskIDs   []string
	sweepCalls    int
}

func (m *mockEvaluator) EvaluateProjectTasks(ctx context.Context, projectID string, onlyTaskIDs []string) (*types.ProjectEvaluationSummary, error) {
	m.lastProjectID = projectID
	m.lastTaskIDs = onlyTaskIDs
	if m.evaluateFn != nil {
		return m.evaluateFn(ctx, projectID, onlyTaskIDs)
	}
	return &types.ProjectEvaluationSummary{
		ProjectID:      projectID,
		EvaluatedAt:    time.Now().UTC(),
		TasksEvaluated: 3,
		TasksDelayed:   1,
	}, nil
}

func (m *mockEvaluator) EvaluateAll(ctx context.Context) (*types.SweepSummary, error) {
	m.sweepCalls++
	if m.evaluateAllFn != nil {
		return m.evaluateAllFn(ctx)
	}
	return &types.SweepSummary{
		StartedAt:         time.Now().UTC().Add(-time.Second),
		FinishedAt:        time.Now().UTC(),
		ProjectsEvaluated: 2,
		TasksEvaluated:    7,
	}, nil
}

type mockEnqueuer struct {
	triggerFn func(ctx context.Context, projectID string, reason types.EvalReason, taskIDs []string) error
	sweepFn   func(ctx context.Context, projectIDs []string, reason types.EvalReason) (string, int, error)

	triggered  []string
	sweepedIDs []string
}

func (m *mockEnqueuer) TriggerEvaluation(ctx context.Context, projectID string, reason types.EvalReason, taskIDs []string) error {
	m.triggered = append(m.triggered, projectID)
	if m.triggerFn != nil {
		return m.triggerFn(ctx, projectID, reason, taskIDs)
	}
	return nil
}

func (m *mockEnqueuer) TriggerSweep(ctx context.Context, projectIDs []string, reason types.EvalReason) (string, int, error) {
	m.sweepedIDs = projectIDs
	if m.sweepFn != nil {
		return m.sweepFn(ctx, projectIDs, reason)
	}
	return "swp_test", len(projectIDs), nil
}

type mockProjectSource struct {
	listActiveFn func(ctx context.Context) ([]*types.Project, error)
	getByIDFn    func(ctx context.Context, id string) (*types.Project, error)
}

func (m *mockProjectSource) ListActive(ctx context.Context) ([]*types.Project, error) {
	if m.listActiveFn != nil {
		return m.listActiveFn(ctx)
	}
	return []*types.Project{
		{ID: "prj_1", Name: "North Tower", Active: true},
		{ID: "prj_2", Name: "South Annex", Active: true},
	}, nil
}

func (m *mockProjectSource) GetByID(ctx context.Context, id string) (*types.Project, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return &types.Project{ID: id, Name: "North Tower", Timezone: "America/Denver", Active: true}, nil
}

func newEvalRouter(h *EvaluationHandler) *chi.Mux {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func newTestEvaluationHandler(enqueuer EvalEnqueuer) (*EvaluationHandler, *mockEvaluator, *mockProjectSource) {
	engine := &mockEvaluator{}
	projects := &mockProjectSource{}
	logger := slog.Default()
	h := NewEvaluationHandler(engine, enqueuer, projects, core.NewValidator(logger), logger)
	return h, engine, projects
}

func TestEvaluationHandler_RunProject_Inline(t *testing.T) {
	h, engine, _ := newTestEvaluationHandler(nil)
	r := newEvalRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/projects/prj_1/evaluations", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "prj_1", engine.lastProjectID)
	assert.Nil(t, engine.lastTaskIDs)

	var resp struct {
		Data types.ProjectEvaluationSummary `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "prj_1", resp.Data.ProjectID)
	assert.Equal(t, 3, resp.Data.TasksEvaluated)
}

func TestEvaluationHandler_RunProject_TaskSubset(t *testing.T) {
	h, engine, _ := newTestEvaluationHandler(nil)
	r := newEvalRouter(h)

	body, _ := json.Marshal(RunEvaluationRequest{TaskIDs: []string{"tsk_1", "tsk_2"}})
	req := httptest.NewRequest(http.MethodPost, "/projects/prj_1/evaluations", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"tsk_1", "tsk_2"}, engine.lastTaskIDs)
}

func TestEvaluationHandler_RunProject_EmptyTaskIDRejected(t *testing.T) {
	h, _, _ := newTestEvaluationHandler(nil)
	r := newEvalRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/projects/prj_1/evaluations",
		bytes.NewReader([]byte(`{"task_ids": ["tsk_1", ""]}`)))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEvaluationHandler_RunProject_AsyncEnqueues(t *testing.T) {
	enq := &mockEnqueuer{}
	h, engine, _ := newTestEvaluationHandler(enq)
	r := newEvalRouter(h)

	body, _ := json.Marshal(RunEvaluationRequest{Async: true})
	req := httptest.NewRequest(http.MethodPost, "/projects/prj_1/evaluations", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, []string{"prj_1"}, enq.triggered)
	assert.Empty(t, engine.lastProjectID, "inline engine must not run on async dispatch")
}

func TestEvaluationHandler_RunProject_AsyncWithoutQueueRunsInline(t *testing.T) {
	h, engine, _ := newTestEvaluationHandler(nil)
	r := newEvalRouter(h)

	body, _ := json.Marshal(RunEvaluationRequest{Async: true})
	req := httptest.NewRequest(http.MethodPost, "/projects/prj_1/evaluations", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "prj_1", engine.lastProjectID)
}

func TestEvaluationHandler_RunProject_NotFound(t *testing.T) {
	h, engine, _ := newTestEvaluationHandler(nil)
	engine.evaluateFn = func(ctx context.Context, projectID string, onlyTaskIDs []string) (*types.ProjectEvaluationSummary, error) {
		return nil, types.NewAppError(types.ErrCodeNotFoundProject, "project not found", nil)
	}
	r := newEvalRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/projects/prj_missing/evaluations", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestEvaluationHandler_RunProject_WarningsSurfaced(t *testing.T) {
	h, engine, _ := newTestEvaluationHandler(nil)
	engine.evaluateFn = func(ctx context.Context, projectID string, onlyTaskIDs []string) (*types.ProjectEvaluationSummary, error) {
		return &types.ProjectEvaluationSummary{
			ProjectID: projectID,
			Warnings:  []string{"no weather reading within lookback window"},
		}, nil
	}
	r := newEvalRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/projects/prj_1/evaluations", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Meta *types.ResponseMeta `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.NotNil(t, resp.Meta)
	assert.Contains(t, resp.Meta.Warnings, "no weather reading within lookback window")
}

func TestEvaluationHandler_RunSweep_Enqueued(t *testing.T) {
	enq := &mockEnqueuer{}
	h, engine, _ := newTestEvaluationHandler(enq)
	r := newEvalRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/evaluations/sweep", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, []string{"prj_1", "prj_2"}, enq.sweepedIDs)
	assert.Zero(t, engine.sweepCalls)

	var resp struct {
		Data EvaluationAccepted `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "swp_test", resp.Data.SweepID)
	assert.Equal(t, 2, resp.Data.Enqueued)
}

func TestEvaluationHandler_RunSweep_Inline(t *testing.T) {
	h, engine, _ := newTestEvaluationHandler(nil)
	r := newEvalRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/evaluations/sweep", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, engine.sweepCalls)

	var resp struct {
		Data types.SweepSummary `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Data.ProjectsEvaluated)
}

func TestEvaluationHandler_RunSweep_QueueFailure(t *testing.T) {
	enq := &mockEnqueuer{
		sweepFn: func(ctx context.Context, projectIDs []string, reason types.EvalReason) (string, int, error) {
			return "", 0, types.NewAppError(types.ErrCodeUpstreamQueue, "queue send failed", nil)
		},
	}
	h, _, _ := newTestEvaluationHandler(enq)
	r := newEvalRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/evaluations/sweep", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
}
