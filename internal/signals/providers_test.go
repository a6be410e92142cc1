package signals

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"

	"dispatch/internal/domain"
)

func TestHTTPWeather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "13.7563", r.URL.Query().Get("lat"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"condition":"Heavy_Rain","temperature_c":24.5}`))
	}))
	defer srv.Close()

	report, err := NewHTTPWeather(srv.URL, srv.Client()).Weather(context.Background(), here)
	require.NoError(t, err)
	assert.Equal(t, domain.WeatherHeavyRain, report.Condition)
	assert.Equal(t, 24.5, report.TemperatureC)
	assert.True(t, report.Live)
}

func TestHTTPWeatherErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPWeather(srv.URL, nil).Weather(context.Background(), here)
	assert.Error(t, err)
}

func TestParseCondition(t *testing.T) {
	assert.Equal(t, domain.WeatherStorm, parseCondition(" storm "))
	assert.Equal(t, domain.WeatherUnknown, parseCondition("hail"))
}

type fakeDirections struct {
	routes []maps.Route
	err    error
	req    *maps.DirectionsRequest
}

func (f *fakeDirections) Directions(_ context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error) {
	f.req = r
	return f.routes, nil, f.err
}

func TestMapsTrafficDelayFactor(t *testing.T) {
	fake := &fakeDirections{routes: []maps.Route{{
		Legs: []*maps.Leg{{Duration: 10 * time.Minute, DurationInTraffic: 15 * time.Minute}},
	}}}
	m := &MapsTraffic{client: fake}

	report, err := m.Traffic(context.Background(), here)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, report.DelayFactor, 1e-9)
	assert.True(t, report.Live)
	assert.Equal(t, "now", fake.req.DepartureTime)
}

func TestMapsTrafficNeverBelowOne(t *testing.T) {
	fake := &fakeDirections{routes: []maps.Route{{
		Legs: []*maps.Leg{{Duration: 10 * time.Minute, DurationInTraffic: 8 * time.Minute}},
	}}}
	report, err := (&MapsTraffic{client: fake}).Traffic(context.Background(), here)
	require.NoError(t, err)
	assert.Equal(t, 1.0, report.DelayFactor)
}

func TestMapsTrafficErrors(t *testing.T) {
	_, err := (&MapsTraffic{client: &fakeDirections{err: errors.New("quota")}}).Traffic(context.Background(), here)
	assert.Error(t, err)

	_, err = (&MapsTraffic{client: &fakeDirections{}}).Traffic(context.Background(), here)
	assert.Error(t, err)
}
