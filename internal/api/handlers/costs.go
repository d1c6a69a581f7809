package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"weatherproof/internal/core"
	"weatherproof/internal/costing"
	"weatherproof/internal/types"
)

// DelayCostHandler exposes the stateless delay pricing endpoint. Like the
// threshold check it persists nothing; estimators use it to price a
// hypothetical window before any delay event exists.
type DelayCostHandler struct {
	validator *core.Validator
	logger    *slog.Logger
}

// NewDelayCostHandler creates a DelayCostHandler.
func NewDelayCostHandler(validator *core.Validator, logger *slog.Logger) *DelayCostHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DelayCostHandler{validator: validator, logger: logger}
}

// RegisterRoutes mounts the cost routes on the provided chi.Router.
func (h *DelayCostHandler) RegisterRoutes(r chi.Router) {
	r.Post("/delays/cost", h.Compute)
}

// DelayCostRequest is the body for POST /v1/delays/cost.
type DelayCostRequest struct {
	Window        types.DelayWindow           `json:"window" validate:"required"`
	Crew          []types.CrewAssignment      `json:"crew,omitempty" validate:"omitempty,max=500"`
	Equipment     []types.EquipmentAssignment `json:"equipment,omitempty" validate:"omitempty,max=500"`
	DailyOverhead float64                     `json:"daily_overhead" validate:"gte=0"`
}

// Compute handles POST /v1/delays/cost.
func (h *DelayCostHandler) Compute(w http.ResponseWriter, r *http.Request) {
	var req DelayCostRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := validateWindow(req.Window); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := validateAssignments(req.Crew, req.Equipment); err != nil {
		core.Error(w, r, err)
		return
	}

	breakdown := costing.ComputeDelayCost(req.Window, req.Crew, req.Equipment, req.DailyOverhead)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: breakdown})
}

func validateWindow(win types.DelayWindow) error {
	if win.HoursIdled < 0 {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidWindow,
			"hours_idled must not be negative",
			nil,
			map[string]any{"hours_idled": win.HoursIdled},
		)
	}
	if !win.End.IsZero() && !win.Start.IsZero() && win.End.Before(win.Start) {
		return types.NewAppError(
			types.ErrCodeValidationInvalidWindow,
			"window end must not precede its start",
			nil,
		)
	}
	return nil
}

// validateAssignments rejects negative rates and unknown rate types before
// pricing. The calculator itself never validates; garbage in would price as
// garbage out.
func validateAssignments(crew []types.CrewAssignment, equipment []types.EquipmentAssignment) error {
	for _, c := range crew {
		if c.Rate < 0 {
			return types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidRate,
				"crew rate must not be negative",
				nil,
				map[string]any{"crew_member_id": c.CrewMemberID, "rate": c.Rate},
			)
		}
		if !validRateType(c.RateType) {
			return types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidRate,
				"unknown crew rate type",
				nil,
				map[string]any{"crew_member_id": c.CrewMemberID, "rate_type": string(c.RateType)},
			)
		}
		if c.BurdenMultiplier != nil && *c.BurdenMultiplier < 1 {
			return types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidRate,
				"burden multiplier must be at least 1.0",
				nil,
				map[string]any{"crew_member_id": c.CrewMemberID, "burden_multiplier": *c.BurdenMultiplier},
			)
		}
	}
	for _, eq := range equipment {
		if eq.Rate < 0 {
			return types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidRate,
				"equipment rate must not be negative",
				nil,
				map[string]any{"equipment_id": eq.EquipmentID, "rate": eq.Rate},
			)
		}
		if !validRateType(eq.RateType) {
			return types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidRate,
				"unknown equipment rate type",
				nil,
				map[string]any{"equipment_id": eq.EquipmentID, "rate_type": string(eq.RateType)},
			)
		}
		if eq.Ownership != types.OwnershipOwned && eq.Ownership != types.OwnershipRented {
			return types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidRate,
				"unknown equipment ownership",
				nil,
				map[string]any{"equipment_id": eq.EquipmentID, "ownership": string(eq.Ownership)},
			)
		}
	}
	return nil
}

func validRateType(rt types.RateType) bool {
	return rt == types.RateHourly || rt == types.RateDaily
}
