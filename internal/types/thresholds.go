package types

import (
	"database/sql/driver"
)

// WeatherThresholds is the value object holding the configured weather limits
// for a project or an individual task. Every field is optional; an absent
// limit is never violated. A thresholds value is immutable once attached to a
// project or task -- edits replace the whole value rather than mutating it.
//
// Units: wind in mph, precipitation in inches, temperature in degrees
// Fahrenheit, humidity in percent, visibility in miles.
type WeatherThresholds struct {
	WindSpeedMax     *float64 `json:"wind_speed_max,omitempty"`
	PrecipitationMax *float64 `json:"precipitation_max,omitempty"`
	TemperatureMin   *float64 `json:"temperature_min,omitempty"`
	TemperatureMax   *float64 `json:"temperature_max,omitempty"`
	HumidityMax      *float64 `json:"humidity_max,omitempty"`
	VisibilityMin    *float64 `json:"visibility_min,omitempty"`
}

// IsZero reports whether no limit is configured at all.
func (t WeatherThresholds) IsZero() bool {
	return t.WindSpeedMax == nil && t.PrecipitationMax == nil &&
		t.TemperatureMin == nil && t.TemperatureMax == nil &&
		t.HumidityMax == nil && t.VisibilityMin == nil
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (t *WeatherThresholds) Scan(value interface{}) error {
	return scanJSONB(t, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (t WeatherThresholds) Value() (driver.Value, error) {
	return valueJSONB(t)
}
