package pricing

import (
	"math"

	"dispatch/internal/domain"
)

// Bounds is the inclusive range a factor is clamped to.
type Bounds struct {
	Min, Max float64
}

func (b Bounds) clamp(v float64) float64 {
	return math.Min(math.Max(v, b.Min), b.Max)
}

// Factor ranges.
var (
	DemandBounds          = Bounds{1.0, 2.0}
	WeatherBounds         = Bounds{0.8, 2.0}
	TimeOfDayBounds       = Bounds{0.9, 1.5}
	DistanceBounds        = Bounds{1.0, 2.0}
	UrgencyBounds         = Bounds{1.0, 2.5}
	RestaurantLoadBounds  = Bounds{1.0, 1.5}
	CourierScarcityBounds = Bounds{1.0, 1.8}
)

const (
	freeDistanceKm       = 3.0
	perKmSurcharge       = 0.05
	restaurantLoadFree   = 5
	perOrderSurcharge    = 0.02
	scarcityComfortLevel = 5
	perMissingCourier    = 0.15
)

// demandFactor grows with open requests per available courier once
// demand exceeds supply.
func demandFactor(openRequests, availableCouriers int) float64 {
	if availableCouriers <= 0 {
		if openRequests > 0 {
			return DemandBounds.Max
		}
		return 1
	}
	ratio := float64(openRequests) / float64(availableCouriers)
	if ratio <= 1 {
		return 1
	}
	return DemandBounds.clamp(1 + (ratio-1)*0.5)
}

func weatherFactor(c domain.WeatherCondition) float64 {
	var v float64
	switch c {
	case domain.WeatherRain:
		v = 1.2
	case domain.WeatherHeavyRain:
		v = 1.5
	case domain.WeatherSnow:
		v = 1.6
	case domain.WeatherStorm:
		v = 2.0
	default:
		v = 1.0
	}
	return WeatherBounds.clamp(v)
}

// timeOfDayFactor marks up the lunch and dinner peaks and late night.
func timeOfDayFactor(hour int) float64 {
	var v float64
	switch {
	case hour >= 11 && hour < 14:
		v = 1.2
	case hour >= 18 && hour < 21:
		v = 1.3
	case hour >= 22 || hour < 5:
		v = 1.15
	default:
		v = 1.0
	}
	return TimeOfDayBounds.clamp(v)
}

func distanceFactor(km float64) float64 {
	if km <= freeDistanceKm {
		return 1
	}
	return DistanceBounds.clamp(1 + (km-freeDistanceKm)*perKmSurcharge)
}

func urgencyFactor(p domain.Priority) float64 {
	var v float64
	switch p {
	case domain.PriorityExpress:
		v = 1.3
	case domain.PriorityVIP:
		v = 1.5
	case domain.PrioritySuperUrgent:
		v = 2.0
	default:
		v = 1.0
	}
	return UrgencyBounds.clamp(v)
}

func restaurantLoadFactor(activeOrders int) float64 {
	if activeOrders <= restaurantLoadFree {
		return 1
	}
	return RestaurantLoadBounds.clamp(1 + float64(activeOrders-restaurantLoadFree)*perOrderSurcharge)
}

func courierScarcityFactor(available int) float64 {
	if available <= 0 {
		return CourierScarcityBounds.Max
	}
	if available >= scarcityComfortLevel {
		return 1
	}
	return CourierScarcityBounds.clamp(1 + float64(scarcityComfortLevel-available)*perMissingCourier)
}
