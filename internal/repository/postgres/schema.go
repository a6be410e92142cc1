package postgres

import (
	"context"
	"fmt"
)

// schema creates the tables used by the repositories. Statements are
// idempotent so EnsureSchema can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS couriers (
		id                 TEXT PRIMARY KEY,
		name               TEXT NOT NULL DEFAULT '',
		lat                DOUBLE PRECISION NOT NULL,
		lng                DOUBLE PRECISION NOT NULL,
		last_update        TIMESTAMPTZ NOT NULL,
		vehicle            TEXT NOT NULL,
		capacity           INTEGER NOT NULL,
		on_time_rate       DOUBLE PRECISION NOT NULL DEFAULT 0,
		rating             DOUBLE PRECISION NOT NULL DEFAULT 0,
		cancellation_rate  DOUBLE PRECISION NOT NULL DEFAULT 0,
		completed          INTEGER NOT NULL DEFAULT 0,
		active_requests    TEXT[] NOT NULL DEFAULT '{}',
		available          BOOLEAN NOT NULL DEFAULT FALSE,
		max_distance_km    DOUBLE PRECISION NOT NULL DEFAULT 0,
		min_fee            BIGINT NOT NULL DEFAULT 0,
		work_start_hour    INTEGER NOT NULL DEFAULT 0,
		work_end_hour      INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS delivery_requests (
		id                 TEXT PRIMARY KEY,
		restaurant_id      TEXT NOT NULL,
		customer_id        TEXT NOT NULL,
		pickup_lat         DOUBLE PRECISION NOT NULL,
		pickup_lng         DOUBLE PRECISION NOT NULL,
		pickup_address     JSONB NOT NULL DEFAULT '{}',
		dropoff_lat        DOUBLE PRECISION NOT NULL,
		dropoff_lng        DOUBLE PRECISION NOT NULL,
		dropoff_address    JSONB NOT NULL DEFAULT '{}',
		order_value        BIGINT NOT NULL,
		priority           TEXT NOT NULL,
		required_vehicles  TEXT[] NOT NULL DEFAULT '{}',
		prep_seconds       INTEGER NOT NULL DEFAULT 0,
		window_start       TIMESTAMPTZ,
		window_end         TIMESTAMPTZ,
		status             TEXT NOT NULL,
		courier_id         TEXT,
		revision           INTEGER NOT NULL DEFAULT 0,
		created_at         TIMESTAMPTZ NOT NULL,
		updated_at         TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS delivery_requests_courier_idx ON delivery_requests (courier_id, status)`,
	`CREATE INDEX IF NOT EXISTS delivery_requests_restaurant_idx ON delivery_requests (restaurant_id, status)`,
	`CREATE TABLE IF NOT EXISTS bidding_sessions (
		id                 TEXT PRIMARY KEY,
		request_id         TEXT NOT NULL,
		revision           INTEGER NOT NULL,
		mode               TEXT NOT NULL,
		minimum_bid        BIGINT NOT NULL,
		quoted_price       BIGINT NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL,
		expires_at         TIMESTAMPTZ NOT NULL,
		status             TEXT NOT NULL,
		winner_courier_id  TEXT,
		winning_fee        BIGINT NOT NULL DEFAULT 0,
		closed_at          TIMESTAMPTZ,
		bids               JSONB NOT NULL DEFAULT '[]',
		target_eta         BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS delivery_issues (
		id                 TEXT PRIMARY KEY,
		courier_id         TEXT NOT NULL,
		request_id         TEXT NOT NULL,
		type               TEXT NOT NULL,
		severity           TEXT NOT NULL,
		lat                DOUBLE PRECISION NOT NULL,
		lng                DOUBLE PRECISION NOT NULL,
		description        TEXT NOT NULL DEFAULT '',
		reported_at        TIMESTAMPTZ NOT NULL,
		resolution         JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS restaurants (
		id                 TEXT PRIMARY KEY,
		avg_prep_seconds   INTEGER NOT NULL DEFAULT 0,
		reliability        DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
}

// EnsureSchema creates any missing tables and indexes.
func EnsureSchema(ctx context.Context, q Querier) error {
	for _, stmt := range schema {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
