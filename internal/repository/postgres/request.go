package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"time"

	"github.com/lib/pq"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
)

// RequestRepository is a PostgreSQL implementation of repository.RequestRepository.
type RequestRepository struct {
	q Querier
}

// NewRequestRepository creates a new PostgreSQL request repository.
func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{q: db}
}

// NewRequestRepositoryWithTx creates a request repository using a transaction.
func NewRequestRepositoryWithTx(tx *sql.Tx) *RequestRepository {
	return &RequestRepository{q: tx}
}

const requestColumns = `id, restaurant_id, customer_id, pickup_lat, pickup_lng, pickup_address,
	dropoff_lat, dropoff_lng, dropoff_address, order_value, priority, required_vehicles,
	prep_seconds, window_start, window_end, status, courier_id, revision, created_at, updated_at`

// Create persists a new request.
func (r *RequestRepository) Create(ctx context.Context, req *domain.DeliveryRequest) error {
	pickupAddr, err := json.Marshal(req.Pickup.Address)
	if err != nil {
		return err
	}
	dropoffAddr, err := json.Marshal(req.Dropoff.Address)
	if err != nil {
		return err
	}

	var windowStart, windowEnd sql.NullTime
	if req.Window != nil {
		windowStart = sql.NullTime{Time: req.Window.Start, Valid: true}
		windowEnd = sql.NullTime{Time: req.Window.End, Valid: true}
	}

	vehicles := make([]string, len(req.RequiredVehicles))
	for i, v := range req.RequiredVehicles {
		vehicles[i] = string(v)
	}

	query := `INSERT INTO delivery_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`
	_, err = r.q.ExecContext(ctx, query,
		req.ID, req.RestaurantID, req.CustomerID,
		req.Pickup.Location.Lat, req.Pickup.Location.Lng, pickupAddr,
		req.Dropoff.Location.Lat, req.Dropoff.Location.Lng, dropoffAddr,
		req.OrderValue, req.Priority, pq.Array(vehicles),
		int64(req.PrepTime/time.Second), windowStart, windowEnd,
		req.Status, nullString(req.CourierID), req.Revision, req.CreatedAt, req.UpdatedAt,
	)
	return mapError(err)
}

// GetByID retrieves a request by ID.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*domain.DeliveryRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM delivery_requests WHERE id = $1`
	req, err := scanRequest(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err)
	}
	return req, nil
}

// Update stores the lifecycle fields of an existing request.
func (r *RequestRepository) Update(ctx context.Context, req *domain.DeliveryRequest) error {
	var windowStart, windowEnd sql.NullTime
	if req.Window != nil {
		windowStart = sql.NullTime{Time: req.Window.Start, Valid: true}
		windowEnd = sql.NullTime{Time: req.Window.End, Valid: true}
	}

	query := `
		UPDATE delivery_requests
		SET status = $1, courier_id = $2, revision = $3, window_start = $4, window_end = $5, updated_at = $6
		WHERE id = $7
	`
	result, err := r.q.ExecContext(ctx, query,
		req.Status, nullString(req.CourierID), req.Revision, windowStart, windowEnd, req.UpdatedAt, req.ID,
	)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

// ListActiveByCourier returns the assigned and in-transit requests of a courier.
func (r *RequestRepository) ListActiveByCourier(ctx context.Context, courierID string) ([]*domain.DeliveryRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM delivery_requests
		WHERE courier_id = $1 AND status IN ('assigned', 'in_transit')
		ORDER BY created_at`
	rows, err := r.q.QueryContext(ctx, query, courierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*domain.DeliveryRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// CountOpenWithin counts pending and bidding requests whose pickup lies
// within radiusKm of center. A bounding box narrows the rows in SQL and the
// exact distance is checked here.
func (r *RequestRepository) CountOpenWithin(ctx context.Context, center domain.Location, radiusKm float64) (int, error) {
	dLat := radiusKm / 111.0
	dLng := radiusKm / (111.0 * math.Max(math.Cos(center.Lat*math.Pi/180), 0.01))

	query := `SELECT pickup_lat, pickup_lng FROM delivery_requests
		WHERE status IN ('pending', 'bidding')
		AND pickup_lat BETWEEN $1 AND $2 AND pickup_lng BETWEEN $3 AND $4`
	rows, err := r.q.QueryContext(ctx, query, center.Lat-dLat, center.Lat+dLat, center.Lng-dLng, center.Lng+dLng)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var p domain.Location
		if err := rows.Scan(&p.Lat, &p.Lng); err != nil {
			return 0, err
		}
		if geo.HaversineKm(center, p) <= radiusKm {
			count++
		}
	}
	return count, rows.Err()
}

// CountActiveByRestaurant counts non-terminal requests for a restaurant.
func (r *RequestRepository) CountActiveByRestaurant(ctx context.Context, restaurantID string) (int, error) {
	query := `SELECT COUNT(*) FROM delivery_requests
		WHERE restaurant_id = $1 AND status NOT IN ('delivered', 'cancelled', 'expired')`
	var count int
	if err := r.q.QueryRowContext(ctx, query, restaurantID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanRequest(row rowScanner) (*domain.DeliveryRequest, error) {
	var (
		req                     domain.DeliveryRequest
		pickupAddr, dropoffAddr []byte
		vehicles                []string
		prepSeconds             int64
		windowStart, windowEnd  sql.NullTime
		courierID               sql.NullString
	)
	err := row.Scan(
		&req.ID, &req.RestaurantID, &req.CustomerID,
		&req.Pickup.Location.Lat, &req.Pickup.Location.Lng, &pickupAddr,
		&req.Dropoff.Location.Lat, &req.Dropoff.Location.Lng, &dropoffAddr,
		&req.OrderValue, &req.Priority, pq.Array(&vehicles),
		&prepSeconds, &windowStart, &windowEnd,
		&req.Status, &courierID, &req.Revision, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pickupAddr, &req.Pickup.Address); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(dropoffAddr, &req.Dropoff.Address); err != nil {
		return nil, err
	}
	for _, v := range vehicles {
		req.RequiredVehicles = append(req.RequiredVehicles, domain.VehicleType(v))
	}
	req.PrepTime = time.Duration(prepSeconds) * time.Second
	if windowStart.Valid && windowEnd.Valid {
		req.Window = &domain.TimeWindow{Start: windowStart.Time, End: windowEnd.Time}
	}
	req.CourierID = courierID.String
	return &req, nil
}
