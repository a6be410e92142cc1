package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dispatch/internal/domain"
)

// HTTPWeather queries a JSON weather endpoint of the form
// GET <base>?lat=..&lng=.. returning {"condition": "...", "temperature_c": ..}.
type HTTPWeather struct {
	baseURL string
	client  *http.Client
}

// NewHTTPWeather creates an HTTPWeather provider.
func NewHTTPWeather(baseURL string, client *http.Client) *HTTPWeather {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPWeather{baseURL: baseURL, client: client}
}

type weatherResponse struct {
	Condition    string  `json:"condition"`
	TemperatureC float64 `json:"temperature_c"`
}

// Weather fetches the current weather at loc.
func (w *HTTPWeather) Weather(ctx context.Context, loc domain.Location) (domain.WeatherReport, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(loc.Lat, 'f', 4, 64))
	q.Set("lng", strconv.FormatFloat(loc.Lng, 'f', 4, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return domain.WeatherReport{}, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return domain.WeatherReport{}, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.WeatherReport{}, fmt.Errorf("weather request: unexpected status %d", resp.StatusCode)
	}

	var body weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.WeatherReport{}, fmt.Errorf("decode weather: %w", err)
	}

	return domain.WeatherReport{
		Condition:    parseCondition(body.Condition),
		TemperatureC: body.TemperatureC,
		ObservedAt:   time.Now(),
		Live:         true,
	}, nil
}

func parseCondition(s string) domain.WeatherCondition {
	switch c := domain.WeatherCondition(strings.ToLower(strings.TrimSpace(s))); c {
	case domain.WeatherClear, domain.WeatherCloudy, domain.WeatherRain,
		domain.WeatherHeavyRain, domain.WeatherSnow, domain.WeatherStorm:
		return c
	}
	return domain.WeatherUnknown
}
