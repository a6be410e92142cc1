package domain

import "time"

// VehicleType is the courier's means of transport.
type VehicleType string

const (
	VehicleBicycle    VehicleType = "bicycle"
	VehicleScooter    VehicleType = "scooter"
	VehicleMotorcycle VehicleType = "motorcycle"
	VehicleCar        VehicleType = "car"
	VehicleVan        VehicleType = "van"
)

// SpeedKmh returns the average urban speed used for travel estimates.
func (v VehicleType) SpeedKmh() float64 {
	switch v {
	case VehicleBicycle:
		return 15
	case VehicleScooter:
		return 25
	case VehicleMotorcycle:
		return 30
	case VehicleCar:
		return 28
	case VehicleVan:
		return 24
	default:
		return 20
	}
}

// DefaultCapacity is the number of concurrent jobs a vehicle can carry
// when the courier has not declared one.
func (v VehicleType) DefaultCapacity() int {
	switch v {
	case VehicleBicycle:
		return 2
	case VehicleScooter, VehicleMotorcycle:
		return 3
	case VehicleCar:
		return 4
	case VehicleVan:
		return 8
	default:
		return 1
	}
}

// Valid reports whether v is a known vehicle type.
func (v VehicleType) Valid() bool {
	switch v {
	case VehicleBicycle, VehicleScooter, VehicleMotorcycle, VehicleCar, VehicleVan:
		return true
	}
	return false
}

// CourierStats holds historical performance figures.
type CourierStats struct {
	OnTimeRate          float64 `json:"on_time_rate"`      // 0..1
	Rating              float64 `json:"rating"`            // 0..5
	CancellationRate    float64 `json:"cancellation_rate"` // 0..1
	CompletedDeliveries int     `json:"completed_deliveries"`
}

// CourierPreferences are the courier's self-declared working constraints.
type CourierPreferences struct {
	MaxDistanceKm float64 `json:"max_distance_km"`
	MinFee        int64   `json:"min_fee"`
	WorkStartHour int     `json:"work_start_hour"` // 0..23, equal start and end means always
	WorkEndHour   int     `json:"work_end_hour"`
}

// Works reports whether hour falls inside the courier's working hours.
func (p CourierPreferences) Works(hour int) bool {
	if p.WorkStartHour == p.WorkEndHour {
		return true
	}
	if p.WorkStartHour < p.WorkEndHour {
		return hour >= p.WorkStartHour && hour < p.WorkEndHour
	}
	// Overnight shift, e.g. 20..4.
	return hour >= p.WorkStartHour || hour < p.WorkEndHour
}

// CourierProfile is the registry's view of a courier.
// Invariant: CurrentLoad == len(ActiveRequests) <= Capacity.
type CourierProfile struct {
	ID             string
	Name           string
	Location       Location
	LastUpdate     time.Time
	Vehicle        VehicleType
	Capacity       int
	Stats          CourierStats
	CurrentLoad    int
	ActiveRequests []string
	Available      bool
	Preferences    CourierPreferences
}

// Remaining returns the number of free job slots.
func (c CourierProfile) Remaining() int {
	if c.CurrentLoad >= c.Capacity {
		return 0
	}
	return c.Capacity - c.CurrentLoad
}

// Clone returns a deep copy safe to hand out of the registry.
func (c CourierProfile) Clone() CourierProfile {
	c.ActiveRequests = append([]string(nil), c.ActiveRequests...)
	return c
}
