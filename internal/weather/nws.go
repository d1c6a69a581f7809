// Package weather integrates with the National Weather Service API
// (api.weather.gov) to collect site conditions and hourly forecasts for
// project locations. Readings are normalized to the imperial units the
// threshold evaluator works in: °F, mph, inches, miles.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"weatherproof/internal/external"
	"weatherproof/internal/types"
)

// Provider fetches weather readings for a geographic location.
type Provider interface {
	// CurrentConditions returns the latest observation near the location.
	CurrentConditions(ctx context.Context, loc types.Location) (*types.WeatherSnapshot, error)
	// HourlyForecast returns forecast snapshots covering the next `window`
	// from now, ordered chronologically.
	HourlyForecast(ctx context.Context, loc types.Location, window time.Duration) ([]*types.WeatherSnapshot, error)
}

// NWSClient is a Provider backed by the National Weather Service API. All
// requests go through the shared BaseClient for circuit breaking and retries.
type NWSClient struct {
	base    *external.BaseClient
	baseURL string
}

// NewNWSClient creates an NWSClient. The userAgent is mandatory for
// api.weather.gov; requests without one are rejected upstream.
func NewNWSClient(httpClient *http.Client, baseURL string, userAgent string, opts ...external.BaseClientOption) *NWSClient {
	return &NWSClient{
		base: external.NewBaseClient(
			httpClient,
			"nws-api",
			external.DefaultRetryPolicy(),
			userAgent,
			opts...,
		),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// quantitativeValue is the NWS unit-tagged measurement wrapper. Value is null
// when the station did not report that dimension.
type quantitativeValue struct {
	Value    *float64 `json:"value"`
	UnitCode string   `json:"unitCode"`
}

type pointsResponse struct {
	Properties struct {
		ObservationStations string `json:"observationStations"`
		ForecastHourly      string `json:"forecastHourly"`
	} `json:"properties"`
}

type stationsResponse struct {
	Features []struct {
		ID string `json:"id"`
	} `json:"features"`
}

type observationResponse struct {
	Properties struct {
		Timestamp             time.Time         `json:"timestamp"`
		TextDescription       string            `json:"textDescription"`
		Temperature           quantitativeValue `json:"temperature"`
		WindSpeed             quantitativeValue `json:"windSpeed"`
		WindGust              quantitativeValue `json:"windGust"`
		PrecipitationLastHour quantitativeValue `json:"precipitationLastHour"`
		RelativeHumidity      quantitativeValue `json:"relativeHumidity"`
		Visibility            quantitativeValue `json:"visibility"`
	} `json:"properties"`
}

type forecastHourlyResponse struct {
	Properties struct {
		Periods []struct {
			StartTime                  time.Time         `json:"startTime"`
			Temperature                float64           `json:"temperature"`
			TemperatureUnit            string            `json:"temperatureUnit"`
			WindSpeed                  string            `json:"windSpeed"`
			WindGust                   string            `json:"windGust"`
			ProbabilityOfPrecipitation quantitativeValue `json:"probabilityOfPrecipitation"`
			RelativeHumidity           quantitativeValue `json:"relativeHumidity"`
			ShortForecast              string            `json:"shortForecast"`
		} `json:"periods"`
	} `json:"properties"`
}

// CurrentConditions resolves the nearest observation station for the location
// and returns its latest reading as an observation snapshot.
func (c *NWSClient) CurrentConditions(ctx context.Context, loc types.Location) (*types.WeatherSnapshot, error) {
	var points pointsResponse
	if err := c.getJSON(ctx, c.pointsURL(loc), &points); err != nil {
		return nil, err
	}
	if points.Properties.ObservationStations == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamWeather,
			"no observation stations available for location", nil)
	}

	var stations stationsResponse
	if err := c.getJSON(ctx, points.Properties.ObservationStations, &stations); err != nil {
		return nil, err
	}
	if len(stations.Features) == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamWeather,
			"no observation stations available for location", nil)
	}

	var obs observationResponse
	if err := c.getJSON(ctx, stations.Features[0].ID+"/observations/latest", &obs); err != nil {
		return nil, err
	}

	p := obs.Properties
	snap := &types.WeatherSnapshot{
		CollectedAt:   p.Timestamp,
		Temperature:   convertTemperature(p.Temperature),
		WindSpeed:     convertSpeed(p.WindSpeed),
		WindGust:      convertSpeed(p.WindGust),
		Precipitation: convertPrecipitation(p.PrecipitationLastHour),
		Humidity:      p.RelativeHumidity.Value,
		Visibility:    convertDistance(p.Visibility),
		Conditions:    p.TextDescription,
		DataSource:    types.SourceObservation,
	}
	if snap.CollectedAt.IsZero() {
		return nil, types.NewAppError(types.ErrCodeUpstreamWeather,
			"observation has no timestamp", nil)
	}
	return snap, nil
}

// HourlyForecast returns the hourly forecast periods falling inside
// [now, now+window), one snapshot per period.
func (c *NWSClient) HourlyForecast(ctx context.Context, loc types.Location, window time.Duration) ([]*types.WeatherSnapshot, error) {
	var points pointsResponse
	if err := c.getJSON(ctx, c.pointsURL(loc), &points); err != nil {
		return nil, err
	}
	if points.Properties.ForecastHourly == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamWeather,
			"no hourly forecast available for location", nil)
	}

	var forecast forecastHourlyResponse
	if err := c.getJSON(ctx, points.Properties.ForecastHourly, &forecast); err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(window)
	var results []*types.WeatherSnapshot
	for _, period := range forecast.Properties.Periods {
		if period.StartTime.After(cutoff) {
			break
		}

		temp := period.Temperature
		if period.TemperatureUnit == "C" {
			temp = temp*9/5 + 32
		}

		results = append(results, &types.WeatherSnapshot{
			CollectedAt: period.StartTime,
			Temperature: &temp,
			WindSpeed:   parseWindSpeedText(period.WindSpeed),
			WindGust:    parseWindSpeedText(period.WindGust),
			Humidity:    period.RelativeHumidity.Value,
			Conditions:  period.ShortForecast,
			DataSource:  types.SourceForecast,
		})
	}
	return results, nil
}

func (c *NWSClient) pointsURL(loc types.Location) string {
	return fmt.Sprintf("%s/points/%.4f,%.4f", c.baseURL, loc.Lat, loc.Lon)
}

// getJSON fetches a URL through the resilient base client and decodes the
// response body. Non-2xx statuses that survive retry policy (plain 4xx) are
// mapped to an upstream error here.
func (c *NWSClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build weather request", err)
	}
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.NewAppError(types.ErrCodeUpstreamWeather,
			fmt.Sprintf("weather API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamWeather, "failed to decode weather response", err)
	}
	return nil
}

// Unit conversion. Observations come back SI-tagged; the evaluator and every
// stored threshold are imperial.

func convertTemperature(qv quantitativeValue) *float64 {
	if qv.Value == nil {
		return nil
	}
	v := *qv.Value
	if strings.HasSuffix(qv.UnitCode, "degC") {
		v = v*9/5 + 32
	}
	return &v
}

func convertSpeed(qv quantitativeValue) *float64 {
	if qv.Value == nil {
		return nil
	}
	v := *qv.Value
	switch {
	case strings.HasSuffix(qv.UnitCode, "km_h-1"):
		v *= 0.621371
	case strings.HasSuffix(qv.UnitCode, "m_s-1"):
		v *= 2.236936
	}
	return &v
}

func convertPrecipitation(qv quantitativeValue) *float64 {
	if qv.Value == nil {
		return nil
	}
	v := *qv.Value
	if strings.HasSuffix(qv.UnitCode, "mm") {
		v /= 25.4
	}
	return &v
}

func convertDistance(qv quantitativeValue) *float64 {
	if qv.Value == nil {
		return nil
	}
	v := *qv.Value
	if strings.HasSuffix(qv.UnitCode, ":m") {
		v *= 0.000621371
	}
	return &v
}

// parseWindSpeedText handles the forecast wind format, e.g. "15 mph" or
// "10 to 20 mph" (the upper bound wins). Returns nil when absent.
func parseWindSpeedText(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	fields := strings.Fields(strings.TrimSuffix(s, "mph"))
	for i := len(fields) - 1; i >= 0; i-- {
		if v, err := strconv.ParseFloat(fields[i], 64); err == nil {
			return &v
		}
	}
	return nil
}
