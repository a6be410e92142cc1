package redis

import (
	"context"
	"time"

	"dispatch/internal/domain"
)

// LocationStoreInterface defines the interface for courier location operations.
type LocationStoreInterface interface {
	UpdateLocation(ctx context.Context, courierID string, loc domain.Location) error
	FindNearby(ctx context.Context, center domain.Location, radiusKm float64) ([]string, error)
	RemoveLocation(ctx context.Context, courierID string) error
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireRequestLock(ctx context.Context, requestID string, ttl time.Duration) (bool, error)
	ReleaseRequestLock(ctx context.Context, requestID string) error
}

// SignalStoreInterface defines the interface for the shared signal cache.
type SignalStoreInterface interface {
	GetSignals(ctx context.Context, cell string) (*domain.TrafficReport, *domain.WeatherReport, error)
	SetTraffic(ctx context.Context, cell string, report domain.TrafficReport, ttl time.Duration) error
	SetWeather(ctx context.Context, cell string, report domain.WeatherReport, ttl time.Duration) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ LockStoreInterface     = (*LockStore)(nil)
	_ SignalStoreInterface   = (*CacheStore)(nil)
)
