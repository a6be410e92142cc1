// Package geo holds the distance and travel-time primitives shared by
// pricing, ETA, matching and routing.
package geo

import (
	"math"

	"dispatch/internal/domain"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between a and b.
func HaversineKm(a, b domain.Location) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// TravelMinutes converts a distance into minutes for the given vehicle,
// inflated by the traffic and weather delay factors. Factors below 1 are
// treated as 1.
func TravelMinutes(distanceKm float64, vehicle domain.VehicleType, trafficFactor, weatherFactor float64) float64 {
	if distanceKm <= 0 {
		return 0
	}
	minutes := distanceKm / vehicle.SpeedKmh() * 60
	return minutes * math.Max(trafficFactor, 1) * math.Max(weatherFactor, 1)
}

// WithinRadius reports whether p lies within meters of center.
func WithinRadius(center, p domain.Location, meters float64) bool {
	return HaversineKm(center, p)*1000 <= meters
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
