package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/domain"
)

const courierLocationKey = "couriers:locations"

// LocationStore handles courier location operations in Redis.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// UpdateLocation stores a courier's location using GEOADD.
func (s *LocationStore) UpdateLocation(ctx context.Context, courierID string, loc domain.Location) error {
	return s.client.GeoAdd(ctx, courierLocationKey, &redis.GeoLocation{
		Name:      courierID,
		Longitude: loc.Lng,
		Latitude:  loc.Lat,
	}).Err()
}

// FindNearby returns courier IDs within radiusKm of center, nearest first.
func (s *LocationStore) FindNearby(ctx context.Context, center domain.Location, radiusKm float64) ([]string, error) {
	return s.client.GeoSearch(ctx, courierLocationKey, &redis.GeoSearchQuery{
		Longitude:  center.Lng,
		Latitude:   center.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
}

// RemoveLocation removes a courier from the geo index.
func (s *LocationStore) RemoveLocation(ctx context.Context, courierID string) error {
	return s.client.ZRem(ctx, courierLocationKey, courierID).Err()
}
