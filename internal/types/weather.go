package types

import (
	"fmt"
	"time"
)

// WeatherSnapshot is a single weather reading for a project site. Readings are
// append-only: once inserted they are never mutated. Individual measurements
// are pointers because upstream providers frequently omit dimensions; a nil
// reading means "not measured", not zero.
//
// Units: temperature in Fahrenheit, wind in mph, precipitation in inches,
// humidity in percent, visibility in miles.
type WeatherSnapshot struct {
	ID        string `json:"id" db:"id"`
	ProjectID string `json:"project_id" db:"project_id"`

	CollectedAt time.Time `json:"collected_at" db:"collected_at"`

	Temperature       *float64 `json:"temperature,omitempty" db:"temperature"`
	WindSpeed         *float64 `json:"wind_speed,omitempty" db:"wind_speed"`
	WindGust          *float64 `json:"wind_gust,omitempty" db:"wind_gust"`
	Precipitation     *float64 `json:"precipitation,omitempty" db:"precipitation"`
	PrecipitationType string   `json:"precipitation_type,omitempty" db:"precipitation_type"`
	Humidity          *float64 `json:"humidity,omitempty" db:"humidity"`
	Visibility        *float64 `json:"visibility,omitempty" db:"visibility"`

	// Conditions is the categorical description from the provider
	// (e.g., "Light Rain", "Partly Cloudy").
	Conditions string     `json:"conditions,omitempty" db:"conditions"`
	DataSource DataSource `json:"data_source" db:"data_source"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Violation records a single threshold dimension exceeded by a weather reading.
type Violation struct {
	Type      ViolationType `json:"type"`
	Value     float64       `json:"value"`
	Threshold float64       `json:"threshold"`
	Unit      string        `json:"unit"`
}

// Description renders the violation as the human-readable delay reason stored
// on tasks and daily logs.
func (v Violation) Description() string {
	switch v.Type {
	case ViolationWindSpeed:
		return fmt.Sprintf("wind %.1f %s exceeds limit of %.1f %s", v.Value, v.Unit, v.Threshold, v.Unit)
	case ViolationPrecipitation:
		return fmt.Sprintf("precipitation %.2f %s exceeds limit of %.2f %s", v.Value, v.Unit, v.Threshold, v.Unit)
	case ViolationTemperatureMin:
		return fmt.Sprintf("temperature %.0f%s below minimum of %.0f%s", v.Value, v.Unit, v.Threshold, v.Unit)
	case ViolationTemperatureMax:
		return fmt.Sprintf("temperature %.0f%s above maximum of %.0f%s", v.Value, v.Unit, v.Threshold, v.Unit)
	case ViolationHumidity:
		return fmt.Sprintf("humidity %.0f%% exceeds limit of %.0f%%", v.Value, v.Threshold)
	case ViolationVisibility:
		return fmt.Sprintf("visibility %.1f %s below minimum of %.1f %s", v.Value, v.Unit, v.Threshold, v.Unit)
	default:
		return fmt.Sprintf("%s: %.2f against limit %.2f", v.Type, v.Value, v.Threshold)
	}
}

// JoinViolations renders a list of violations as a single delay reason string.
func JoinViolations(violations []Violation) string {
	if len(violations) == 0 {
		return ""
	}
	out := violations[0].Description()
	for _, v := range violations[1:] {
		out += "; " + v.Description()
	}
	return out
}
