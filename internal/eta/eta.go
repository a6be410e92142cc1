// Package eta estimates delivery times from preparation, travel legs and
// live conditions.
package eta

import (
	"math"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
)

const (
	baselineConfidence = 60
	perSignalBonus     = 10
	maxConfidence      = 95

	defaultPrepMinutes  = 15.0
	queueFreeOrders     = 5
	queuePerOrderMinute = 1.0
	maxQueueMinutes     = 20.0

	// DefaultLocationFreshness is how recent a courier fix must be to count
	// as a live signal.
	DefaultLocationFreshness = 2 * time.Minute
)

// dropoffVehicle is assumed for the delivery leg before a courier is known.
const dropoffVehicle = domain.VehicleMotorcycle

// Breakdown holds the components of an estimate in minutes.
type Breakdown struct {
	Preparation float64 `json:"preparation"`
	ToPickup    float64 `json:"to_pickup"`
	ToDropoff   float64 `json:"to_dropoff"`
	QueueWait   float64 `json:"queue_wait"`
	Buffer      float64 `json:"buffer"`
}

// Estimate is a delivery time estimate.
type Estimate struct {
	Minutes       int       `json:"minutes"`
	Breakdown     Breakdown `json:"breakdown"`
	ConfidencePct int       `json:"confidence_pct"`
}

// Duration returns the estimate as a time.Duration.
func (e Estimate) Duration() time.Duration {
	return time.Duration(e.Minutes) * time.Minute
}

// Conditions are the live inputs to an estimate.
type Conditions struct {
	Traffic    domain.TrafficReport
	Weather    domain.WeatherReport
	Restaurant *domain.RestaurantStats
	Now        time.Time
}

// Estimator computes ETAs.
type Estimator struct {
	locationFreshFor time.Duration
}

// NewEstimator creates an Estimator. A zero freshness uses the default.
func NewEstimator(locationFreshFor time.Duration) *Estimator {
	if locationFreshFor <= 0 {
		locationFreshFor = DefaultLocationFreshness
	}
	return &Estimator{locationFreshFor: locationFreshFor}
}

// BufferMinutes is the fixed slack added per priority tier.
func BufferMinutes(p domain.Priority) float64 {
	switch p {
	case domain.PriorityExpress, domain.PriorityVIP:
		return 3
	case domain.PrioritySuperUrgent:
		return 2
	default:
		return 5
	}
}

// Estimate computes the ETA of req, optionally for a specific courier.
// The courier travels to the pickup while the order is prepared, so the
// longer of the two legs counts.
func (e *Estimator) Estimate(req domain.DeliveryRequest, courier *domain.CourierProfile, c Conditions) Estimate {
	traffic := c.Traffic.DelayFactor
	weather := c.Weather.Condition.TravelDelay()

	b := Breakdown{
		Preparation: prepMinutes(req, c.Restaurant),
		QueueWait:   queueMinutes(c.Restaurant),
		Buffer:      BufferMinutes(req.Priority),
	}

	vehicle := dropoffVehicle
	if courier != nil {
		vehicle = courier.Vehicle
		b.ToPickup = geo.TravelMinutes(geo.HaversineKm(courier.Location, req.Pickup.Location), vehicle, traffic, weather)
	}
	b.ToDropoff = geo.TravelMinutes(geo.HaversineKm(req.Pickup.Location, req.Dropoff.Location), vehicle, traffic, weather)

	total := math.Max(b.Preparation+b.QueueWait, b.ToPickup) + b.ToDropoff + b.Buffer

	return Estimate{
		Minutes:       int(math.Ceil(total)),
		Breakdown:     b,
		ConfidencePct: e.confidence(courier, c),
	}
}

func (e *Estimator) confidence(courier *domain.CourierProfile, c Conditions) int {
	live := 0
	if c.Traffic.Live {
		live++
	}
	if c.Weather.Live {
		live++
	}
	if courier != nil && !courier.LastUpdate.IsZero() && c.Now.Sub(courier.LastUpdate) <= e.locationFreshFor {
		live++
	}
	if c.Restaurant != nil && c.Restaurant.Reliability > 0 {
		live++
	}
	pct := baselineConfidence + live*perSignalBonus
	if pct > maxConfidence {
		pct = maxConfidence
	}
	return pct
}

func prepMinutes(req domain.DeliveryRequest, r *domain.RestaurantStats) float64 {
	if req.PrepTime > 0 {
		return req.PrepTime.Minutes()
	}
	if r != nil && r.AvgPrepTime > 0 {
		return r.AvgPrepTime.Minutes()
	}
	return defaultPrepMinutes
}

func queueMinutes(r *domain.RestaurantStats) float64 {
	if r == nil || r.ActiveOrders <= queueFreeOrders {
		return 0
	}
	return math.Min(float64(r.ActiveOrders-queueFreeOrders)*queuePerOrderMinute, maxQueueMinutes)
}
