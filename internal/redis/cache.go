package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/domain"
)

// CacheStore shares live signals between dispatch instances.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// Key prefixes
const (
	trafficCachePrefix = "cache:traffic:"
	weatherCachePrefix = "cache:weather:"
)

// SetTraffic stores a traffic report.
func (s *CacheStore) SetTraffic(ctx context.Context, cell string, report domain.TrafficReport, ttl time.Duration) error {
	return s.set(ctx, trafficCachePrefix+cell, report, ttl)
}

// SetWeather stores a weather report.
func (s *CacheStore) SetWeather(ctx context.Context, cell string, report domain.WeatherReport, ttl time.Duration) error {
	return s.set(ctx, weatherCachePrefix+cell, report, ttl)
}

// GetSignals fetches traffic and weather for a cell in one round trip.
// Missing entries are returned as nil.
func (s *CacheStore) GetSignals(ctx context.Context, cell string) (*domain.TrafficReport, *domain.WeatherReport, error) {
	pipe := s.client.Pipeline()
	trafficCmd := pipe.Get(ctx, trafficCachePrefix+cell)
	weatherCmd := pipe.Get(ctx, weatherCachePrefix+cell)

	// Exec reports redis.Nil when any key is missing; per-command errors
	// are inspected below.
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, err
	}

	var traffic *domain.TrafficReport
	if data, err := trafficCmd.Bytes(); err == nil {
		var r domain.TrafficReport
		if json.Unmarshal(data, &r) == nil {
			traffic = &r
		}
	}

	var weather *domain.WeatherReport
	if data, err := weatherCmd.Bytes(); err == nil {
		var r domain.WeatherReport
		if json.Unmarshal(data, &r) == nil {
			weather = &r
		}
	}

	return traffic, weather, nil
}

func (s *CacheStore) set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}
