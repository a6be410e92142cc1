// Package pricing computes multi-factor price quotes. Quote is a pure
// function of the request and the collected Signals.
package pricing

import (
	"math"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
)

// SurgeThreshold is the final/base ratio above which a quote is surge priced.
const SurgeThreshold = 1.3

// Signals are the external inputs to a quote, captured at one instant.
type Signals struct {
	OpenRequests           int
	AvailableCouriers      int
	Weather                domain.WeatherCondition
	At                     time.Time
	RestaurantActiveOrders int
}

// Engine prices delivery requests.
type Engine struct {
	basePrice int64
}

// NewEngine creates an Engine. basePrice is in minor currency units.
func NewEngine(basePrice int64) *Engine {
	return &Engine{basePrice: basePrice}
}

// Quote prices one revision of a request.
func (e *Engine) Quote(req domain.DeliveryRequest, s Signals) domain.PricingQuote {
	distanceKm := geo.HaversineKm(req.Pickup.Location, req.Dropoff.Location)

	factors := []domain.PriceFactor{
		{Name: domain.FactorDemand, Value: demandFactor(s.OpenRequests, s.AvailableCouriers)},
		{Name: domain.FactorWeather, Value: weatherFactor(s.Weather)},
		{Name: domain.FactorTimeOfDay, Value: timeOfDayFactor(s.At.Hour())},
		{Name: domain.FactorDistance, Value: distanceFactor(distanceKm)},
		{Name: domain.FactorUrgency, Value: urgencyFactor(req.Priority)},
		{Name: domain.FactorRestaurantLoad, Value: restaurantLoadFactor(s.RestaurantActiveOrders)},
		{Name: domain.FactorCourierScarcity, Value: courierScarcityFactor(s.AvailableCouriers)},
	}

	multiplier := 1.0
	for _, f := range factors {
		multiplier *= f.Value
	}

	final := int64(math.Round(float64(e.basePrice) * multiplier))
	ratio := float64(final) / float64(e.basePrice)

	return domain.PricingQuote{
		RequestID:  req.ID,
		Revision:   req.Revision,
		BasePrice:  e.basePrice,
		Factors:    factors,
		Multiplier: multiplier,
		FinalPrice: final,
		Surge: domain.Surge{
			IsActive: ratio > SurgeThreshold,
			Ratio:    ratio,
		},
		ComputedAt: s.At,
	}
}
