package eta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"dispatch/internal/domain"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// 15 km due north of the pickup, so the leg time is easy to reason about.
func longRequest(p domain.Priority) domain.DeliveryRequest {
	return domain.DeliveryRequest{
		ID:       "r1",
		Pickup:   domain.Place{Location: domain.Location{Lat: 0, Lng: 0}},
		Dropoff:  domain.Place{Location: domain.Location{Lat: 15.0 / 111.195, Lng: 0}},
		Priority: p,
		PrepTime: 10 * time.Minute,
	}
}

func neutral() Conditions {
	return Conditions{Traffic: domain.NeutralTraffic(), Weather: domain.NeutralWeather(), Now: now}
}

func TestEstimateWithoutCourier(t *testing.T) {
	e := NewEstimator(0)
	est := e.Estimate(longRequest(domain.PriorityNormal), nil, neutral())

	assert.Equal(t, 10.0, est.Breakdown.Preparation)
	assert.Zero(t, est.Breakdown.ToPickup)
	// 15 km by motorcycle at 30 km/h.
	assert.InDelta(t, 30, est.Breakdown.ToDropoff, 0.1)
	assert.Equal(t, 5.0, est.Breakdown.Buffer)
	assert.Equal(t, 45, est.Minutes)
	assert.Equal(t, 60, est.ConfidencePct)
}

func TestEstimateCourierLegOverlapsPreparation(t *testing.T) {
	e := NewEstimator(0)
	req := longRequest(domain.PriorityExpress)

	// A bicycle 5 km away needs 20 minutes, longer than the 10 minute prep.
	far := &domain.CourierProfile{
		Vehicle:    domain.VehicleBicycle,
		Location:   domain.Location{Lat: -5.0 / 111.195, Lng: 0},
		LastUpdate: now,
	}
	est := e.Estimate(req, far, neutral())
	assert.InDelta(t, 20, est.Breakdown.ToPickup, 0.1)
	// max(10, 20) + 60 (15 km by bicycle) + 3
	assert.Equal(t, 83, est.Minutes)

	near := &domain.CourierProfile{Vehicle: domain.VehicleBicycle, Location: req.Pickup.Location, LastUpdate: now}
	est = e.Estimate(req, near, neutral())
	// max(10, 0) + 60 + 3
	assert.Equal(t, 73, est.Minutes)
}

func TestEstimateInflatesForTrafficAndWeather(t *testing.T) {
	e := NewEstimator(0)
	c := neutral()
	c.Traffic = domain.TrafficReport{DelayFactor: 1.5, Live: true}
	c.Weather = domain.WeatherReport{Condition: domain.WeatherStorm, Live: true}

	est := e.Estimate(longRequest(domain.PriorityNormal), nil, c)
	// 30 * 1.5 * 1.5
	assert.InDelta(t, 67.5, est.Breakdown.ToDropoff, 0.2)
	assert.Equal(t, 80, est.ConfidencePct)
}

func TestEstimateUsesRestaurantStats(t *testing.T) {
	e := NewEstimator(0)
	req := longRequest(domain.PriorityNormal)
	req.PrepTime = 0
	c := neutral()
	c.Restaurant = &domain.RestaurantStats{AvgPrepTime: 18 * time.Minute, ActiveOrders: 9, Reliability: 0.8}

	est := e.Estimate(req, nil, c)
	assert.Equal(t, 18.0, est.Breakdown.Preparation)
	assert.Equal(t, 4.0, est.Breakdown.QueueWait)
	assert.Equal(t, 70, est.ConfidencePct)

	c.Restaurant = nil
	est = e.Estimate(req, nil, c)
	assert.Equal(t, defaultPrepMinutes, est.Breakdown.Preparation)
}

func TestConfidenceCappedAt95(t *testing.T) {
	e := NewEstimator(0)
	c := Conditions{
		Traffic:    domain.TrafficReport{DelayFactor: 1, Live: true},
		Weather:    domain.WeatherReport{Condition: domain.WeatherClear, Live: true},
		Restaurant: &domain.RestaurantStats{Reliability: 0.9},
		Now:        now,
	}
	courier := &domain.CourierProfile{Vehicle: domain.VehicleCar, LastUpdate: now.Add(-30 * time.Second)}
	assert.Equal(t, 95, e.Estimate(longRequest(domain.PriorityVIP), courier, c).ConfidencePct)

	stale := &domain.CourierProfile{Vehicle: domain.VehicleCar, LastUpdate: now.Add(-10 * time.Minute)}
	assert.Equal(t, 90, e.Estimate(longRequest(domain.PriorityVIP), stale, c).ConfidencePct)
}

func TestBufferByPriority(t *testing.T) {
	assert.Equal(t, 5.0, BufferMinutes(domain.PriorityNormal))
	assert.Equal(t, 3.0, BufferMinutes(domain.PriorityExpress))
	assert.Equal(t, 3.0, BufferMinutes(domain.PriorityVIP))
	assert.Equal(t, 2.0, BufferMinutes(domain.PrioritySuperUrgent))
}

func TestConfidenceNeverCertain(t *testing.T) {
	e := NewEstimator(0)
	rapid.Check(t, func(t *rapid.T) {
		c := Conditions{
			Traffic: domain.TrafficReport{DelayFactor: rapid.Float64Range(0.5, 3).Draw(t, "traffic"), Live: rapid.Bool().Draw(t, "tl")},
			Weather: domain.WeatherReport{Condition: domain.WeatherRain, Live: rapid.Bool().Draw(t, "wl")},
			Now:     now,
		}
		if rapid.Bool().Draw(t, "restaurant") {
			c.Restaurant = &domain.RestaurantStats{Reliability: rapid.Float64Range(0, 1).Draw(t, "rel")}
		}
		est := e.Estimate(longRequest(domain.PriorityNormal), &domain.CourierProfile{Vehicle: domain.VehicleCar, LastUpdate: now}, c)
		if est.ConfidencePct < baselineConfidence || est.ConfidencePct > maxConfidence {
			t.Fatalf("confidence %d out of range", est.ConfidencePct)
		}
		if est.Minutes <= 0 {
			t.Fatalf("non-positive estimate %d", est.Minutes)
		}
	})
}
