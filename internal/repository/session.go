package repository

import (
	"context"

	"dispatch/internal/domain"
)

// SessionRepository persists bidding sessions together with their bids.
type SessionRepository interface {
	// Save creates or replaces a session.
	Save(ctx context.Context, session *domain.BiddingSession) error

	// GetByID retrieves a session by ID.
	GetByID(ctx context.Context, id string) (*domain.BiddingSession, error)
}
