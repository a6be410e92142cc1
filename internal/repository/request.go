package repository

import (
	"context"

	"dispatch/internal/domain"
)

// RequestRepository defines the persistence operations for delivery requests.
type RequestRepository interface {
	// Create persists a new request.
	Create(ctx context.Context, req *domain.DeliveryRequest) error

	// GetByID retrieves a request by ID.
	GetByID(ctx context.Context, id string) (*domain.DeliveryRequest, error)

	// Update stores the lifecycle fields of an existing request.
	Update(ctx context.Context, req *domain.DeliveryRequest) error

	// ListActiveByCourier returns the assigned and in-transit requests of a courier.
	ListActiveByCourier(ctx context.Context, courierID string) ([]*domain.DeliveryRequest, error)

	// CountOpenWithin counts pending and bidding requests whose pickup lies
	// within radiusKm of center.
	CountOpenWithin(ctx context.Context, center domain.Location, radiusKm float64) (int, error)

	// CountActiveByRestaurant counts non-terminal requests for a restaurant.
	CountActiveByRestaurant(ctx context.Context, restaurantID string) (int, error)
}
