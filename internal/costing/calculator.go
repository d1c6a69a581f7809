// Package costing implements the delay cost calculator. Given a bounded delay
// window and the crew and equipment assigned to the project, it prices the
// idled labor, standby equipment, and pro-rated overhead for the window.
//
// The calculator is pure: it never fetches data itself. Callers load
// assignments and rates from storage and pass them in, which keeps the math
// trivially unit-testable.
package costing

import (
	"weatherproof/internal/types"
)

const (
	// DefaultBurdenMultiplier covers taxes, benefits and insurance on top of
	// base wage when a crew member has no explicit burden configured.
	DefaultBurdenMultiplier = 1.35

	// OwnedStandbyFraction is the share of the operational rate charged for
	// idle owned equipment. Rented equipment bills at the full rental rate
	// whether idle or not.
	OwnedStandbyFraction = 0.5

	// NominalWorkDayHours converts daily rates and daily overhead into the
	// hourly domain of a delay window.
	NominalWorkDayHours = 8.0
)

// rateForHours normalizes a quoted rate to a cost over the given idle hours.
// Hourly rates multiply directly; daily rates are pro-rated against the
// nominal work day.
func rateForHours(rate float64, rt types.RateType, hours float64) float64 {
	if rt == types.RateDaily {
		return rate * (hours / NominalWorkDayHours)
	}
	return rate * hours
}

// standbyRate resolves the idle rate for an equipment item: an explicit
// standby rate wins; otherwise owned equipment idles at half its rate and
// rented equipment at the full rental rate.
func standbyRate(eq types.EquipmentAssignment) float64 {
	if eq.StandbyRate != nil {
		return *eq.StandbyRate
	}
	if eq.Ownership == types.OwnershipOwned {
		return eq.Rate * OwnedStandbyFraction
	}
	return eq.Rate
}

// ComputeDelayCost prices a delay window. The total is exactly the sum of the
// three components -- no hidden terms. Values are carried unrounded; display
// formatting is the caller's concern.
func ComputeDelayCost(
	window types.DelayWindow,
	crew []types.CrewAssignment,
	equipment []types.EquipmentAssignment,
	dailyOverhead float64,
) types.CostBreakdown {
	var out types.CostBreakdown

	for _, c := range crew {
		hours := c.HoursIdled
		if hours == 0 {
			hours = window.HoursIdled
		}
		burden := DefaultBurdenMultiplier
		if c.BurdenMultiplier != nil {
			burden = *c.BurdenMultiplier
		}
		out.LaborCost += rateForHours(c.Rate, c.RateType, hours) * burden
	}

	for _, eq := range equipment {
		hours := eq.HoursIdled
		if hours == 0 {
			hours = window.HoursIdled
		}
		out.EquipmentCost += rateForHours(standbyRate(eq), eq.RateType, hours)
	}

	out.OverheadCost = dailyOverhead * (window.HoursIdled / NominalWorkDayHours)
	out.TotalCost = out.LaborCost + out.EquipmentCost + out.OverheadCost
	return out
}
