package repository

import (
	"context"

	"dispatch/internal/domain"
)

// RestaurantRepository exposes restaurant preparation statistics.
type RestaurantRepository interface {
	// GetStats retrieves the statistics of a restaurant.
	GetStats(ctx context.Context, restaurantID string) (*domain.RestaurantStats, error)

	// UpsertStats creates or replaces restaurant statistics.
	UpsertStats(ctx context.Context, stats *domain.RestaurantStats) error
}
