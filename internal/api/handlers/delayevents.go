package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"weatherproof/internal/core"
	"weatherproof/internal/db"
	"weatherproof/internal/types"
)

// DelayEventLister provides paginated access to a project's delay events.
type DelayEventLister interface {
	List(ctx context.Context, projectID string, params db.ListDelayEventsParams) ([]*types.DelayEvent, types.PageInfo, error)
}

// ProjectGetter resolves a project by ID, used to 404 on unknown projects
// before touching the event tables.
type ProjectGetter interface {
	GetByID(ctx context.Context, id string) (*types.Project, error)
}

// DelayReportWriter streams claim documentation CSVs.
type DelayReportWriter interface {
	WriteDailyLogCSV(ctx context.Context, w io.Writer, projectID string, from, to time.Time) (int, error)
	WriteDelayEventCSV(ctx context.Context, w io.Writer, projectID string, from, to time.Time) (int, error)
}

// DelayEventHandler exposes the delay event listing and CSV export endpoints.
type DelayEventHandler struct {
	events   DelayEventLister
	projects ProjectGetter
	reports  DelayReportWriter
	logger   *slog.Logger
}

// NewDelayEventHandler creates a DelayEventHandler.
func NewDelayEventHandler(events DelayEventLister, projects ProjectGetter, reports DelayReportWriter, logger *slog.Logger) *DelayEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DelayEventHandler{events: events, projects: projects, reports: reports, logger: logger}
}

// RegisterRoutes mounts the delay event routes on the provided chi.Router.
func (h *DelayEventHandler) RegisterRoutes(r chi.Router) {
	r.Route("/projects/{projectID}", func(r chi.Router) {
		r.Get("/delay-events", h.List)
		r.Get("/reports/delays.csv", h.ExportCSV)
	})
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// errCodeInvalidQueryParam covers malformed query parameters; the prefix maps
// it to a 400 like the body validation codes.
const errCodeInvalidQueryParam = types.ErrorCode("validation_invalid_field")

// List handles GET /v1/projects/{projectID}/delay-events.
//
// Query parameters: open_only (bool), from / to (RFC 3339), limit (1..200,
// default 50), cursor (opaque, from a previous page).
func (h *DelayEventHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	if _, err := h.projects.GetByID(r.Context(), projectID); err != nil {
		core.Error(w, r, err)
		return
	}

	params, err := parseListParams(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	events, page, err := h.events.List(r.Context(), projectID, params)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if events == nil {
		events = []*types.DelayEvent{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: events,
		Meta: &types.ResponseMeta{Pagination: &page},
	})
}

// ExportCSV handles GET /v1/projects/{projectID}/reports/delays.csv.
//
// Query parameters: from / to (RFC 3339, default last 30 days) and view,
// either "events" (costed delay events, the default) or "daily" (per-task
// daily delay log). The response streams as text/csv with an attachment
// disposition.
func (h *DelayEventHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	if _, err := h.projects.GetByID(r.Context(), projectID); err != nil {
		core.Error(w, r, err)
		return
	}

	q := r.URL.Query()
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now

	if s := q.Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			core.Error(w, r, invalidWindowParam("from", s))
			return
		}
		from = t
	}
	if s := q.Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			core.Error(w, r, invalidWindowParam("to", s))
			return
		}
		to = t
	}
	if to.Before(from) {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidWindow,
			"report range end must not precede its start",
			nil,
		))
		return
	}

	view := q.Get("view")
	if view == "" {
		view = "events"
	}

	filename := fmt.Sprintf("delays_%s_%s_%s.csv", projectID, from.Format("20060102"), to.Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	var (
		rows int
		err  error
	)
	switch view {
	case "events":
		rows, err = h.reports.WriteDelayEventCSV(r.Context(), w, projectID, from, to)
	case "daily":
		rows, err = h.reports.WriteDailyLogCSV(r.Context(), w, projectID, from, to)
	default:
		w.Header().Del("Content-Type")
		w.Header().Del("Content-Disposition")
		core.Error(w, r, types.NewAppErrorWithDetails(
			errCodeInvalidQueryParam,
			`view must be "events" or "daily"`,
			nil,
			map[string]any{"view": view},
		))
		return
	}
	if err != nil {
		// Headers may already be out; log rather than attempt a JSON error
		// mid-stream.
		h.logger.ErrorContext(r.Context(), "csv export failed",
			"project_id", projectID,
			"view", view,
			"rows_written", rows,
			"error", err,
		)
		return
	}

	h.logger.InfoContext(r.Context(), "csv export written",
		"project_id", projectID,
		"view", view,
		"rows", rows,
	)
}

func parseListParams(r *http.Request) (db.ListDelayEventsParams, error) {
	q := r.URL.Query()
	params := db.ListDelayEventsParams{Limit: defaultListLimit}

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxListLimit {
			return params, types.NewAppErrorWithDetails(
				errCodeInvalidQueryParam,
				fmt.Sprintf("limit must be an integer between 1 and %d", maxListLimit),
				nil,
				map[string]any{"limit": s},
			)
		}
		params.Limit = n
	}
	if s := q.Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return params, invalidWindowParam("from", s)
		}
		params.From = t
	}
	if s := q.Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return params, invalidWindowParam("to", s)
		}
		params.To = t
	}
	params.OpenOnly = q.Get("open_only") == "true"
	params.Cursor = q.Get("cursor")

	return params, nil
}

func invalidWindowParam(name, value string) error {
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationInvalidWindow,
		name+" must be an RFC 3339 timestamp",
		nil,
		map[string]any{name: value},
	)
}
