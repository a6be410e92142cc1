package matching

import (
	"math"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
)

// Features are the normalised [0,1] inputs to a scoring strategy.
type Features struct {
	Proximity    float64 `json:"proximity"`
	Performance  float64 `json:"performance"`
	Availability float64 `json:"availability"`
	Vehicle      float64 `json:"vehicle"`
	Priority     float64 `json:"priority"`
}

// Vector returns the features in weight order.
func (f Features) Vector() []float64 {
	return []float64{f.Proximity, f.Performance, f.Availability, f.Vehicle, f.Priority}
}

// comfortable trip lengths per vehicle, in km
var vehicleRangeKm = map[domain.VehicleType]float64{
	domain.VehicleBicycle:    3,
	domain.VehicleScooter:    8,
	domain.VehicleMotorcycle: 15,
	domain.VehicleCar:        30,
	domain.VehicleVan:        30,
}

// Extract computes the features of courier c for req. radiusKm is the
// search radius proximity is normalised against.
func Extract(req domain.DeliveryRequest, c domain.CourierProfile, radiusKm float64) Features {
	toPickup := geo.HaversineKm(c.Location, req.Pickup.Location)
	trip := geo.HaversineKm(req.Pickup.Location, req.Dropoff.Location)

	return Features{
		Proximity:    clamp01(1 - toPickup/radiusKm),
		Performance:  performance(c.Stats),
		Availability: availability(c),
		Vehicle:      vehicleFit(c.Vehicle, trip),
		Priority:     priorityFit(req.Priority, c),
	}
}

func performance(s domain.CourierStats) float64 {
	return clamp01(0.4*s.OnTimeRate + 0.4*(s.Rating/5) + 0.2*(1-s.CancellationRate))
}

func availability(c domain.CourierProfile) float64 {
	if c.Capacity <= 0 {
		return 0
	}
	return clamp01(float64(c.Remaining()) / float64(c.Capacity))
}

func vehicleFit(v domain.VehicleType, tripKm float64) float64 {
	r, ok := vehicleRangeKm[v]
	if !ok {
		return 0
	}
	if tripKm <= r {
		return 1
	}
	return clamp01(1 - (tripKm-r)/r)
}

// priorityFit favours fast vehicles for express work and well rated
// couriers for VIP customers. Normal requests are neutral.
func priorityFit(p domain.Priority, c domain.CourierProfile) float64 {
	speed := clamp01(c.Vehicle.SpeedKmh() / 30)
	rating := clamp01(c.Stats.Rating / 5)
	switch p {
	case domain.PriorityExpress:
		return speed
	case domain.PriorityVIP:
		return rating
	case domain.PrioritySuperUrgent:
		return (speed + rating) / 2
	default:
		return 1
	}
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
