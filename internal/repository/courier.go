package repository

import (
	"context"

	"dispatch/internal/domain"
)

// CourierRepository defines the persistence operations for couriers.
type CourierRepository interface {
	// Upsert creates or replaces a courier profile.
	Upsert(ctx context.Context, courier *domain.CourierProfile) error

	// GetByID retrieves a courier by ID.
	GetByID(ctx context.Context, id string) (*domain.CourierProfile, error)

	// GetAll retrieves all couriers.
	GetAll(ctx context.Context) ([]*domain.CourierProfile, error)
}
