package domain

import "time"

// Priority is the urgency tier requested for a delivery.
type Priority string

const (
	PriorityNormal      Priority = "normal"
	PriorityExpress     Priority = "express"
	PriorityVIP         Priority = "vip"
	PrioritySuperUrgent Priority = "super_urgent"
)

// Valid reports whether p is a known tier.
func (p Priority) Valid() bool {
	switch p {
	case PriorityNormal, PriorityExpress, PriorityVIP, PrioritySuperUrgent:
		return true
	}
	return false
}

// RequestStatus represents the lifecycle state of a delivery request.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusBidding   RequestStatus = "bidding"
	RequestStatusAssigned  RequestStatus = "assigned"
	RequestStatusInTransit RequestStatus = "in_transit"
	RequestStatusDelivered RequestStatus = "delivered"
	RequestStatusCancelled RequestStatus = "cancelled"
	RequestStatusExpired   RequestStatus = "expired"
)

// Terminal reports whether no further transitions are allowed.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestStatusDelivered, RequestStatusCancelled, RequestStatusExpired:
		return true
	}
	return false
}

// TimeWindow is the customer's acceptable delivery window.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DeliveryRequest represents a confirmed order waiting for a courier.
// The order content is immutable; lifecycle changes produce copies.
type DeliveryRequest struct {
	ID               string
	RestaurantID     string
	CustomerID       string
	Pickup           Place
	Dropoff          Place
	OrderValue       int64 // minor currency units
	Priority         Priority
	RequiredVehicles []VehicleType // empty means any vehicle
	PrepTime         time.Duration
	Window           *TimeWindow
	Status           RequestStatus
	CourierID        string
	Revision         int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AcceptsVehicle reports whether v satisfies the request's vehicle constraint.
func (r DeliveryRequest) AcceptsVehicle(v VehicleType) bool {
	if len(r.RequiredVehicles) == 0 {
		return true
	}
	for _, rv := range r.RequiredVehicles {
		if rv == v {
			return true
		}
	}
	return false
}

// WithStatus returns a copy of the request in the given state.
func (r DeliveryRequest) WithStatus(status RequestStatus, courierID string, at time.Time) DeliveryRequest {
	r.Status = status
	r.CourierID = courierID
	r.UpdatedAt = at
	r.RequiredVehicles = append([]VehicleType(nil), r.RequiredVehicles...)
	return r
}

// NextRevision returns a copy with the revision bumped, used when pricing
// conditions change materially and a new quote is needed.
func (r DeliveryRequest) NextRevision(window *TimeWindow, at time.Time) DeliveryRequest {
	r.Revision++
	if window != nil {
		w := *window
		r.Window = &w
	}
	r.Status = RequestStatusPending
	r.CourierID = ""
	r.UpdatedAt = at
	r.RequiredVehicles = append([]VehicleType(nil), r.RequiredVehicles...)
	return r
}
