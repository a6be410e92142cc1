// Package signals fetches and caches the live traffic and weather signals
// used by pricing and ETA. Lookups never fail: slow or unavailable
// providers degrade to the last known value and then to neutral values.
package signals

import (
	"context"
	"fmt"
	"math"
	"time"

	"dispatch/internal/domain"
)

// TrafficProvider reports traffic conditions around a location.
type TrafficProvider interface {
	Traffic(ctx context.Context, loc domain.Location) (domain.TrafficReport, error)
}

// WeatherProvider reports weather conditions around a location.
type WeatherProvider interface {
	Weather(ctx context.Context, loc domain.Location) (domain.WeatherReport, error)
}

// Store is a cache shared between instances, e.g. Redis.
type Store interface {
	GetSignals(ctx context.Context, cell string) (*domain.TrafficReport, *domain.WeatherReport, error)
	SetTraffic(ctx context.Context, cell string, report domain.TrafficReport, ttl time.Duration) error
	SetWeather(ctx context.Context, cell string, report domain.WeatherReport, ttl time.Duration) error
}

// Conditions bundles the signals for one location.
type Conditions struct {
	Traffic domain.TrafficReport
	Weather domain.WeatherReport
}

// Neutral returns conditions that do not influence price or ETA.
func Neutral() Conditions {
	return Conditions{Traffic: domain.NeutralTraffic(), Weather: domain.NeutralWeather()}
}

// Cell returns the cache key for a location, about 1 km square.
func Cell(loc domain.Location) string {
	return fmt.Sprintf("%.2f:%.2f", math.Round(loc.Lat*100)/100, math.Round(loc.Lng*100)/100)
}
