package types

import (
	"fmt"
	"math"
)

// Validation constraint constants.
const (
	MinLat        = -90.0
	MaxLat        = 90.0
	MinLon        = -180.0
	MaxLon        = 180.0
	MaxNameLength = 200
)

// ThresholdMetadata defines the canonical rules for a threshold dimension.
type ThresholdMetadata struct {
	ID          string     `json:"id"`
	Unit        string     `json:"unit"`
	Range       [2]float64 `json:"valid_range"`
	Description string     `json:"description"`
}

// StandardThresholds defines the authoritative constraints for each
// configurable threshold dimension. All components MUST validate against
// these ranges.
var StandardThresholds = map[ViolationType]ThresholdMetadata{
	ViolationWindSpeed:      {ID: "wind_speed", Unit: UnitMPH, Range: [2]float64{0, 200}, Description: "Sustained wind speed limit"},
	ViolationPrecipitation:  {ID: "precipitation", Unit: UnitInches, Range: [2]float64{0, 30}, Description: "Accumulated precipitation limit"},
	ViolationTemperatureMin: {ID: "temperature_min", Unit: UnitDegF, Range: [2]float64{-60, 140}, Description: "Minimum workable temperature"},
	ViolationTemperatureMax: {ID: "temperature_max", Unit: UnitDegF, Range: [2]float64{-60, 140}, Description: "Maximum workable temperature"},
	ViolationHumidity:       {ID: "humidity", Unit: UnitPercent, Range: [2]float64{0, 100}, Description: "Maximum relative humidity"},
	ViolationVisibility:     {ID: "visibility", Unit: UnitMiles, Range: [2]float64{0, 50}, Description: "Minimum visibility"},
}

// validLimit reports whether a configured limit is a usable number within the
// dimension's canonical range. NaN, infinities and out-of-range values are
// rejected; the evaluator skips such dimensions with a warning rather than
// failing the evaluation.
func validLimit(dim ViolationType, limit float64) error {
	if math.IsNaN(limit) || math.IsInf(limit, 0) {
		return fmt.Errorf("%s: limit for %s is not a finite number", ErrCodeValidationInvalidThreshold, dim)
	}
	meta := StandardThresholds[dim]
	if limit < meta.Range[0] || limit > meta.Range[1] {
		return fmt.Errorf("%s: limit %.2f outside valid range [%.2f, %.2f] for %s",
			ErrCodeValidationInvalidThreshold, limit, meta.Range[0], meta.Range[1], dim)
	}
	return nil
}

// ValidateThresholds is the single validation boundary for threshold
// configuration. It returns one error per malformed dimension; callers decide
// whether to reject the config outright (API writes) or skip the bad
// dimensions with a warning (evaluation).
func ValidateThresholds(t WeatherThresholds) []error {
	var errs []error
	check := func(dim ViolationType, limit *float64) {
		if limit == nil {
			return
		}
		if err := validLimit(dim, *limit); err != nil {
			errs = append(errs, err)
		}
	}
	check(ViolationWindSpeed, t.WindSpeedMax)
	check(ViolationPrecipitation, t.PrecipitationMax)
	check(ViolationTemperatureMin, t.TemperatureMin)
	check(ViolationTemperatureMax, t.TemperatureMax)
	check(ViolationHumidity, t.HumidityMax)
	check(ViolationVisibility, t.VisibilityMin)

	if t.TemperatureMin != nil && t.TemperatureMax != nil && *t.TemperatureMin > *t.TemperatureMax {
		errs = append(errs, fmt.Errorf("%s: temperature_min %.1f exceeds temperature_max %.1f",
			ErrCodeValidationInvalidThreshold, *t.TemperatureMin, *t.TemperatureMax))
	}
	return errs
}

// ValidateSnapshot enforces the evaluator's input constraint: a snapshot must
// supply at least a temperature and a precipitation amount to be evaluable.
func ValidateSnapshot(w *WeatherSnapshot) error {
	if w == nil {
		return NewAppError(ErrCodeMissingWeatherData, "weather snapshot is nil", nil)
	}
	if w.Temperature == nil {
		return NewAppError(ErrCodeValidationInvalidSnapshot, "snapshot missing temperature reading", nil)
	}
	if w.Precipitation == nil {
		return NewAppError(ErrCodeValidationInvalidSnapshot, "snapshot missing precipitation reading", nil)
	}
	return nil
}

// ValidateLocation checks coordinate bounds for a job site.
func ValidateLocation(loc Location) error {
	if loc.Lat < MinLat || loc.Lat > MaxLat {
		return NewAppError(ErrCodeValidationInvalidLat, fmt.Sprintf("latitude %.4f out of range", loc.Lat), nil)
	}
	if loc.Lon < MinLon || loc.Lon > MaxLon {
		return NewAppError(ErrCodeValidationInvalidLon, fmt.Sprintf("longitude %.4f out of range", loc.Lon), nil)
	}
	return nil
}
