package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"dispatch/internal/domain"
)

// SessionRepository is a PostgreSQL implementation of repository.SessionRepository.
// Bids are stored inline as JSONB since they are only read with their session.
type SessionRepository struct {
	q Querier
}

// NewSessionRepository creates a new PostgreSQL session repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{q: db}
}

// Save creates or replaces a session.
func (r *SessionRepository) Save(ctx context.Context, s *domain.BiddingSession) error {
	bids := s.Bids
	if bids == nil {
		bids = []domain.Bid{}
	}
	data, err := json.Marshal(bids)
	if err != nil {
		return err
	}

	var closedAt sql.NullTime
	if !s.ClosedAt.IsZero() {
		closedAt = sql.NullTime{Time: s.ClosedAt, Valid: true}
	}

	query := `
		INSERT INTO bidding_sessions (id, request_id, revision, mode, minimum_bid, quoted_price,
			created_at, expires_at, status, winner_courier_id, winning_fee, closed_at, bids, target_eta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			winner_courier_id = EXCLUDED.winner_courier_id,
			winning_fee = EXCLUDED.winning_fee,
			closed_at = EXCLUDED.closed_at,
			bids = EXCLUDED.bids
	`
	_, err = r.q.ExecContext(ctx, query,
		s.ID, s.RequestID, s.Revision, s.Mode, s.MinimumBid, s.QuotedPrice,
		s.CreatedAt, s.ExpiresAt, s.Status, nullString(s.WinnerCourierID), s.WinningFee, closedAt, data,
		int64(s.TargetETA),
	)
	return mapError(err)
}

// GetByID retrieves a session by ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.BiddingSession, error) {
	query := `
		SELECT id, request_id, revision, mode, minimum_bid, quoted_price, created_at, expires_at,
			status, winner_courier_id, winning_fee, closed_at, bids, target_eta
		FROM bidding_sessions WHERE id = $1
	`
	var (
		s        domain.BiddingSession
		winner   sql.NullString
		closedAt sql.NullTime
		data     []byte
		target   int64
	)
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.RequestID, &s.Revision, &s.Mode, &s.MinimumBid, &s.QuotedPrice, &s.CreatedAt, &s.ExpiresAt,
		&s.Status, &winner, &s.WinningFee, &closedAt, &data, &target,
	)
	if err != nil {
		return nil, mapError(err)
	}
	if err := json.Unmarshal(data, &s.Bids); err != nil {
		return nil, err
	}
	s.WinnerCourierID = winner.String
	s.TargetETA = time.Duration(target)
	if closedAt.Valid {
		s.ClosedAt = closedAt.Time
	}
	return &s, nil
}
