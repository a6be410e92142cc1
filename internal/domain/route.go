package domain

import "time"

// WaypointKind tags a stop as a pickup or a delivery.
type WaypointKind string

const (
	WaypointPickup   WaypointKind = "pickup"
	WaypointDelivery WaypointKind = "delivery"
)

// Waypoint is a single stop in a courier's route.
type Waypoint struct {
	Kind      WaypointKind `json:"kind"`
	RequestID string       `json:"request_id"`
	Location  Location     `json:"location"`
	Priority  Priority     `json:"priority"`
	ETA       time.Time    `json:"eta"`
}

// RouteOptimization is the batched multi-drop plan for one courier.
type RouteOptimization struct {
	CourierID          string     `json:"courier_id"`
	Waypoints          []Waypoint `json:"waypoints"`
	TotalDistanceKm    float64    `json:"total_distance_km"`
	TotalMinutes       float64    `json:"total_minutes"`
	BaselineDistanceKm float64    `json:"baseline_distance_km"`
	BaselineMinutes    float64    `json:"baseline_minutes"`
	SavingsKm          float64    `json:"savings_km"`
	SavingsMinutes     float64    `json:"savings_minutes"`
	Feasible           bool       `json:"feasible"`
	ComputedAt         time.Time  `json:"computed_at"`
}
