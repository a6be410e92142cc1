package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"dispatch/internal/domain"
)

// CourierRepository is a PostgreSQL implementation of repository.CourierRepository.
type CourierRepository struct {
	q Querier
}

// NewCourierRepository creates a new PostgreSQL courier repository.
func NewCourierRepository(db *sql.DB) *CourierRepository {
	return &CourierRepository{q: db}
}

// NewCourierRepositoryWithTx creates a courier repository using a transaction.
func NewCourierRepositoryWithTx(tx *sql.Tx) *CourierRepository {
	return &CourierRepository{q: tx}
}

const courierColumns = `id, name, lat, lng, last_update, vehicle, capacity,
	on_time_rate, rating, cancellation_rate, completed, active_requests, available,
	max_distance_km, min_fee, work_start_hour, work_end_hour`

// Upsert creates or replaces a courier profile.
func (r *CourierRepository) Upsert(ctx context.Context, c *domain.CourierProfile) error {
	query := `
		INSERT INTO couriers (` + courierColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			last_update = EXCLUDED.last_update,
			vehicle = EXCLUDED.vehicle,
			capacity = EXCLUDED.capacity,
			on_time_rate = EXCLUDED.on_time_rate,
			rating = EXCLUDED.rating,
			cancellation_rate = EXCLUDED.cancellation_rate,
			completed = EXCLUDED.completed,
			active_requests = EXCLUDED.active_requests,
			available = EXCLUDED.available,
			max_distance_km = EXCLUDED.max_distance_km,
			min_fee = EXCLUDED.min_fee,
			work_start_hour = EXCLUDED.work_start_hour,
			work_end_hour = EXCLUDED.work_end_hour
	`
	active := c.ActiveRequests
	if active == nil {
		active = []string{}
	}
	_, err := r.q.ExecContext(ctx, query,
		c.ID, c.Name, c.Location.Lat, c.Location.Lng, c.LastUpdate, c.Vehicle, c.Capacity,
		c.Stats.OnTimeRate, c.Stats.Rating, c.Stats.CancellationRate, c.Stats.CompletedDeliveries,
		pq.Array(active), c.Available,
		c.Preferences.MaxDistanceKm, c.Preferences.MinFee, c.Preferences.WorkStartHour, c.Preferences.WorkEndHour,
	)
	return mapError(err)
}

// GetByID retrieves a courier by ID.
func (r *CourierRepository) GetByID(ctx context.Context, id string) (*domain.CourierProfile, error) {
	query := `SELECT ` + courierColumns + ` FROM couriers WHERE id = $1`
	c, err := scanCourier(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

// GetAll retrieves all couriers.
func (r *CourierRepository) GetAll(ctx context.Context) ([]*domain.CourierProfile, error) {
	query := `SELECT ` + courierColumns + ` FROM couriers ORDER BY id`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var couriers []*domain.CourierProfile
	for rows.Next() {
		c, err := scanCourier(rows)
		if err != nil {
			return nil, err
		}
		couriers = append(couriers, c)
	}
	return couriers, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourier(row rowScanner) (*domain.CourierProfile, error) {
	var c domain.CourierProfile
	var active []string
	err := row.Scan(
		&c.ID, &c.Name, &c.Location.Lat, &c.Location.Lng, &c.LastUpdate, &c.Vehicle, &c.Capacity,
		&c.Stats.OnTimeRate, &c.Stats.Rating, &c.Stats.CancellationRate, &c.Stats.CompletedDeliveries,
		pq.Array(&active), &c.Available,
		&c.Preferences.MaxDistanceKm, &c.Preferences.MinFee, &c.Preferences.WorkStartHour, &c.Preferences.WorkEndHour,
	)
	if err != nil {
		return nil, err
	}
	c.ActiveRequests = active
	c.CurrentLoad = len(active)
	return &c, nil
}
