// Package thresholds implements the weather threshold evaluator: the pure
// rules check that decides whether a weather reading exceeds a project's or
// task's configured limits.
//
// Evaluation is deterministic for identical inputs, which the delay engine
// relies on for idempotent same-day re-runs. Dimensions are checked in a fixed
// order (wind, precipitation, temperature-min, temperature-max, humidity,
// visibility) so violation lists compare stably across runs.
package thresholds

import (
	"log/slog"
	"math"

	"weatherproof/internal/types"
)

// Result is the detailed outcome of a threshold evaluation.
type Result struct {
	Violations []types.Violation

	// ChecksSkipped counts dimensions that had a configured limit but no
	// reading to compare. Missing data is skipped, not treated as a
	// violation; the count keeps the skips visible to callers.
	ChecksSkipped int

	// InvalidLimits lists dimensions whose configured limit was malformed
	// (NaN, infinite, out of canonical range) and therefore not checked.
	InvalidLimits []types.ViolationType
}

// Triggered reports whether any dimension was violated.
func (r Result) Triggered() bool { return len(r.Violations) > 0 }

// Evaluator checks weather snapshots against threshold configuration.
// The zero value is usable; a logger enables warnings for malformed limits.
type Evaluator struct {
	logger *slog.Logger
}

// New creates an Evaluator. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{logger: logger}
}

// Check returns the ordered violations for a snapshot against a thresholds
// value. It is the plain contract most callers want; Evaluate returns the
// detailed result including skip accounting.
func (e *Evaluator) Check(w *types.WeatherSnapshot, t types.WeatherThresholds) []types.Violation {
	return e.Evaluate(w, t).Violations
}

// Evaluate runs every configured dimension check in the fixed evaluation
// order. An absent limit is never violated; a missing reading skips that
// dimension silently (counted in ChecksSkipped). No side effects beyond
// warning logs for malformed limits.
func (e *Evaluator) Evaluate(w *types.WeatherSnapshot, t types.WeatherThresholds) Result {
	var res Result
	if w == nil {
		return res
	}

	type dimension struct {
		vt      types.ViolationType
		limit   *float64
		reading *float64
		unit    string
		// violated decides direction: true when the reading breaks the limit.
		violated func(reading, limit float64) bool
	}

	exceeds := func(reading, limit float64) bool { return reading > limit }
	below := func(reading, limit float64) bool { return reading < limit }

	dims := []dimension{
		{types.ViolationWindSpeed, t.WindSpeedMax, w.WindSpeed, types.UnitMPH, exceeds},
		{types.ViolationPrecipitation, t.PrecipitationMax, w.Precipitation, types.UnitInches, exceeds},
		{types.ViolationTemperatureMin, t.TemperatureMin, w.Temperature, types.UnitDegF, below},
		{types.ViolationTemperatureMax, t.TemperatureMax, w.Temperature, types.UnitDegF, exceeds},
		{types.ViolationHumidity, t.HumidityMax, w.Humidity, types.UnitPercent, exceeds},
		{types.ViolationVisibility, t.VisibilityMin, w.Visibility, types.UnitMiles, below},
	}

	for _, d := range dims {
		if d.limit == nil {
			continue
		}
		if !finite(*d.limit) {
			res.InvalidLimits = append(res.InvalidLimits, d.vt)
			e.logger.Warn("skipping malformed threshold limit",
				"dimension", string(d.vt),
				"limit", *d.limit,
			)
			continue
		}
		if d.reading == nil {
			res.ChecksSkipped++
			continue
		}
		if d.violated(*d.reading, *d.limit) {
			res.Violations = append(res.Violations, types.Violation{
				Type:      d.vt,
				Value:     *d.reading,
				Threshold: *d.limit,
				Unit:      d.unit,
			})
		}
	}

	return res
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
