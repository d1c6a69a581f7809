package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"weatherproof/internal/core"
	"weatherproof/internal/thresholds"
	"weatherproof/internal/types"
)

// ThresholdCheckHandler exposes the stateless threshold preview endpoint.
// Nothing is persisted: callers submit a reading and a set of limits and get
// back the violations the evaluator would record.
type ThresholdCheckHandler struct {
	evaluator *thresholds.Evaluator
	validator *core.Validator
	logger    *slog.Logger
}

// NewThresholdCheckHandler creates a ThresholdCheckHandler.
func NewThresholdCheckHandler(evaluator *thresholds.Evaluator, validator *core.Validator, logger *slog.Logger) *ThresholdCheckHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ThresholdCheckHandler{evaluator: evaluator, validator: validator, logger: logger}
}

// RegisterRoutes mounts the threshold routes on the provided chi.Router.
func (h *ThresholdCheckHandler) RegisterRoutes(r chi.Router) {
	r.Post("/thresholds/check", h.Check)
}

// ThresholdReading carries the measurements for a preview check. Every field
// is optional; a missing measurement skips that dimension rather than
// counting as zero.
type ThresholdReading struct {
	Temperature   *float64 `json:"temperature,omitempty"`
	WindSpeed     *float64 `json:"wind_speed,omitempty"`
	WindGust      *float64 `json:"wind_gust,omitempty"`
	Precipitation *float64 `json:"precipitation,omitempty"`
	Humidity      *float64 `json:"humidity,omitempty" validate:"omitempty,gte=0,lte=100"`
	Visibility    *float64 `json:"visibility,omitempty" validate:"omitempty,gte=0"`
	Conditions    string   `json:"conditions,omitempty"`
}

// ThresholdCheckRequest is the body for POST /v1/thresholds/check. Both an
// empty reading and empty thresholds are accepted: the former skips every
// configured check, the latter draws a warning instead of an error.
type ThresholdCheckRequest struct {
	Reading    ThresholdReading        `json:"reading"`
	Thresholds types.WeatherThresholds `json:"thresholds"`
}

// ValidationWarnings implements core.Warner.
func (r ThresholdCheckRequest) ValidationWarnings() []string {
	if r.Thresholds.IsZero() {
		return []string{"no limits configured; the check can never trigger"}
	}
	return nil
}

// ThresholdCheckResponse reports the outcome of a preview check.
type ThresholdCheckResponse struct {
	Triggered  bool              `json:"triggered"`
	Violations []types.Violation `json:"violations"`

	// ChecksSkipped counts dimensions that had a configured limit but no
	// measurement in the reading.
	ChecksSkipped int `json:"checks_skipped"`

	// InvalidLimits names limits that were ignored because they were not
	// finite numbers.
	InvalidLimits []types.ViolationType `json:"invalid_limits,omitempty"`

	// DelayReason is the human-readable reason string the evaluator would
	// store on a delayed task, empty when nothing triggered.
	DelayReason string `json:"delay_reason,omitempty"`
}

// Check handles POST /v1/thresholds/check.
func (h *ThresholdCheckHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req ThresholdCheckRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	result := h.validator.ValidateStructWithWarnings(req)
	if !result.IsValid() {
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrorCode(result.Errors[0].Code),
			"request validation failed",
			nil,
			map[string]any{"validation_errors": result.Errors},
		))
		return
	}

	snapshot := req.Reading.snapshot()
	out := h.evaluator.Evaluate(snapshot, req.Thresholds)

	resp := ThresholdCheckResponse{
		Triggered:     out.Triggered(),
		Violations:    out.Violations,
		ChecksSkipped: out.ChecksSkipped,
		InvalidLimits: out.InvalidLimits,
		DelayReason:   types.JoinViolations(out.Violations),
	}
	if resp.Violations == nil {
		resp.Violations = []types.Violation{}
	}

	var meta *types.ResponseMeta
	if len(result.Warnings) > 0 {
		meta = &types.ResponseMeta{Warnings: result.Warnings}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp, Meta: meta})
}

// snapshot adapts the request reading to the evaluator's input type.
func (tr ThresholdReading) snapshot() *types.WeatherSnapshot {
	return &types.WeatherSnapshot{
		CollectedAt:   time.Now().UTC(),
		Temperature:   tr.Temperature,
		WindSpeed:     tr.WindSpeed,
		WindGust:      tr.WindGust,
		Precipitation: tr.Precipitation,
		Humidity:      tr.Humidity,
		Visibility:    tr.Visibility,
		Conditions:    tr.Conditions,
		DataSource:    types.SourceManual,
	}
}
