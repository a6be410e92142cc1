package postgres

import (
	"context"
	"database/sql"
	"time"

	"dispatch/internal/domain"
)

// RestaurantRepository is a PostgreSQL implementation of repository.RestaurantRepository.
type RestaurantRepository struct {
	q Querier
}

// NewRestaurantRepository creates a new PostgreSQL restaurant repository.
func NewRestaurantRepository(db *sql.DB) *RestaurantRepository {
	return &RestaurantRepository{q: db}
}

// GetStats retrieves the statistics of a restaurant. ActiveOrders is
// derived from the request table.
func (r *RestaurantRepository) GetStats(ctx context.Context, restaurantID string) (*domain.RestaurantStats, error) {
	query := `
		SELECT r.id, r.avg_prep_seconds, r.reliability,
			(SELECT COUNT(*) FROM delivery_requests d
			 WHERE d.restaurant_id = r.id AND d.status NOT IN ('delivered', 'cancelled', 'expired'))
		FROM restaurants r WHERE r.id = $1
	`
	var (
		stats       domain.RestaurantStats
		prepSeconds int64
	)
	err := r.q.QueryRowContext(ctx, query, restaurantID).Scan(&stats.ID, &prepSeconds, &stats.Reliability, &stats.ActiveOrders)
	if err != nil {
		return nil, mapError(err)
	}
	stats.AvgPrepTime = time.Duration(prepSeconds) * time.Second
	return &stats, nil
}

// UpsertStats creates or replaces restaurant statistics.
func (r *RestaurantRepository) UpsertStats(ctx context.Context, stats *domain.RestaurantStats) error {
	query := `
		INSERT INTO restaurants (id, avg_prep_seconds, reliability) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET avg_prep_seconds = EXCLUDED.avg_prep_seconds, reliability = EXCLUDED.reliability
	`
	_, err := r.q.ExecContext(ctx, query, stats.ID, int64(stats.AvgPrepTime/time.Second), stats.Reliability)
	return mapError(err)
}
