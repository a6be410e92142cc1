package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dispatch/internal/domain"
)

func TestHaversineKm(t *testing.T) {
	bangkok := domain.Location{Lat: 13.7563, Lng: 100.5018}
	silom := domain.Location{Lat: 13.7278, Lng: 100.5241}

	d := HaversineKm(bangkok, silom)
	assert.InDelta(t, 3.98, d, 0.1)
	assert.InDelta(t, d, HaversineKm(silom, bangkok), 1e-9)
	assert.Zero(t, HaversineKm(bangkok, bangkok))
}

func TestTravelMinutes(t *testing.T) {
	// 15 km on a bicycle at 15 km/h is an hour.
	assert.InDelta(t, 60, TravelMinutes(15, domain.VehicleBicycle, 1, 1), 1e-9)
	assert.InDelta(t, 90, TravelMinutes(15, domain.VehicleBicycle, 1.5, 1), 1e-9)
	assert.InDelta(t, 60, TravelMinutes(15, domain.VehicleBicycle, 0.5, 0.9), 1e-9)
	assert.Zero(t, TravelMinutes(0, domain.VehicleCar, 2, 2))
}

func TestWithinRadius(t *testing.T) {
	center := domain.Location{Lat: 13.75, Lng: 100.50}
	near := domain.Location{Lat: 13.7509, Lng: 100.50} // ~100 m north
	assert.True(t, WithinRadius(center, near, 150))
	assert.False(t, WithinRadius(center, near, 50))
}
