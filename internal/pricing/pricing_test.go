package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"dispatch/internal/domain"
)

var quiet = time.Date(2024, 5, 1, 15, 30, 0, 0, time.UTC)

func shortRequest(p domain.Priority) domain.DeliveryRequest {
	return domain.DeliveryRequest{
		ID:       "r1",
		Revision: 1,
		Pickup:   domain.Place{Location: domain.Location{Lat: 13.7563, Lng: 100.5018}},
		Dropoff:  domain.Place{Location: domain.Location{Lat: 13.7650, Lng: 100.5100}}, // ~1.3 km
		Priority: p,
	}
}

func calm() Signals {
	return Signals{
		OpenRequests:      2,
		AvailableCouriers: 8,
		Weather:           domain.WeatherClear,
		At:                quiet,
	}
}

func TestQuoteNormalWithoutSurgeSignals(t *testing.T) {
	e := NewEngine(1500)
	q := e.Quote(shortRequest(domain.PriorityNormal), calm())

	assert.GreaterOrEqual(t, q.FinalPrice, int64(1500))
	assert.LessOrEqual(t, q.FinalPrice, int64(2000))
	assert.False(t, q.Surge.IsActive)
	assert.Equal(t, "r1", q.RequestID)
	assert.Equal(t, 1, q.Revision)
}

func TestQuoteFactorOrder(t *testing.T) {
	q := NewEngine(1500).Quote(shortRequest(domain.PriorityNormal), calm())
	names := make([]string, len(q.Factors))
	for i, f := range q.Factors {
		names[i] = f.Name
	}
	assert.Equal(t, []string{
		domain.FactorDemand,
		domain.FactorWeather,
		domain.FactorTimeOfDay,
		domain.FactorDistance,
		domain.FactorUrgency,
		domain.FactorRestaurantLoad,
		domain.FactorCourierScarcity,
	}, names)
}

func TestQuoteSurgeUnderStormAtDinner(t *testing.T) {
	s := calm()
	s.Weather = domain.WeatherStorm
	s.At = time.Date(2024, 5, 1, 19, 0, 0, 0, time.UTC)

	q := NewEngine(1500).Quote(shortRequest(domain.PriorityExpress), s)
	assert.True(t, q.Surge.IsActive)
	assert.Equal(t, 2.0, q.Factor(domain.FactorWeather))
	assert.Equal(t, 1.3, q.Factor(domain.FactorTimeOfDay))
	assert.Equal(t, 1.3, q.Factor(domain.FactorUrgency))
	// 1500 * 2.0 * 1.3 * 1.3 = 5070
	assert.EqualValues(t, 5070, q.FinalPrice)
}

func TestFactors(t *testing.T) {
	assert.Equal(t, 1.0, demandFactor(3, 5))
	assert.Equal(t, 1.5, demandFactor(10, 5))
	assert.Equal(t, 2.0, demandFactor(100, 5))
	assert.Equal(t, 2.0, demandFactor(1, 0))
	assert.Equal(t, 1.0, demandFactor(0, 0))

	assert.Equal(t, 1.0, distanceFactor(2))
	assert.InDelta(t, 1.35, distanceFactor(10), 1e-9)
	assert.Equal(t, 2.0, distanceFactor(100))

	assert.Equal(t, 1.0, restaurantLoadFactor(5))
	assert.InDelta(t, 1.1, restaurantLoadFactor(10), 1e-9)
	assert.Equal(t, 1.5, restaurantLoadFactor(100))

	assert.Equal(t, 1.8, courierScarcityFactor(0))
	assert.InDelta(t, 1.6, courierScarcityFactor(1), 1e-9)
	assert.Equal(t, 1.0, courierScarcityFactor(5))

	assert.Equal(t, 1.15, timeOfDayFactor(23))
	assert.Equal(t, 1.15, timeOfDayFactor(3))
	assert.Equal(t, 1.2, timeOfDayFactor(12))
	assert.Equal(t, 1.0, timeOfDayFactor(9))

	assert.Equal(t, 2.0, urgencyFactor(domain.PrioritySuperUrgent))
	assert.Equal(t, 1.0, weatherFactor(domain.WeatherUnknown))
}

func drawSignals(t *rapid.T) Signals {
	return Signals{
		OpenRequests:      rapid.IntRange(0, 200).Draw(t, "open"),
		AvailableCouriers: rapid.IntRange(0, 50).Draw(t, "available"),
		Weather: rapid.SampledFrom([]domain.WeatherCondition{
			domain.WeatherClear, domain.WeatherCloudy, domain.WeatherRain,
			domain.WeatherHeavyRain, domain.WeatherSnow, domain.WeatherStorm, domain.WeatherUnknown,
		}).Draw(t, "weather"),
		At:                     quiet.Add(time.Duration(rapid.IntRange(0, 23).Draw(t, "hour")) * time.Hour),
		RestaurantActiveOrders: rapid.IntRange(0, 100).Draw(t, "orders"),
	}
}

func drawRequest(t *rapid.T) domain.DeliveryRequest {
	req := shortRequest(rapid.SampledFrom([]domain.Priority{
		domain.PriorityNormal, domain.PriorityExpress, domain.PriorityVIP, domain.PrioritySuperUrgent,
	}).Draw(t, "priority"))
	req.Dropoff.Location.Lat += rapid.Float64Range(0, 0.5).Draw(t, "dLat")
	return req
}

func TestQuoteIsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := NewEngine(rapid.Int64Range(100, 10000).Draw(t, "base"))
		req, s := drawRequest(t), drawSignals(t)
		a, b := e.Quote(req, s), e.Quote(req, s)
		if !assert.ObjectsAreEqual(a, b) {
			t.Fatalf("quotes differ: %+v vs %+v", a, b)
		}
	})
}

func TestSurgeIffRatioAboveThreshold(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := NewEngine(rapid.Int64Range(100, 10000).Draw(t, "base"))
		q := e.Quote(drawRequest(t), drawSignals(t))
		above := float64(q.FinalPrice)/float64(q.BasePrice) > SurgeThreshold
		if q.Surge.IsActive != above {
			t.Fatalf("surge=%v but final/base=%v", q.Surge.IsActive, float64(q.FinalPrice)/float64(q.BasePrice))
		}
	})
}

func TestFactorsStayWithinBounds(t *testing.T) {
	bounds := map[string]Bounds{
		domain.FactorDemand:          DemandBounds,
		domain.FactorWeather:         WeatherBounds,
		domain.FactorTimeOfDay:       TimeOfDayBounds,
		domain.FactorDistance:        DistanceBounds,
		domain.FactorUrgency:         UrgencyBounds,
		domain.FactorRestaurantLoad:  RestaurantLoadBounds,
		domain.FactorCourierScarcity: CourierScarcityBounds,
	}
	rapid.Check(t, func(t *rapid.T) {
		q := NewEngine(1500).Quote(drawRequest(t), drawSignals(t))
		for _, f := range q.Factors {
			b := bounds[f.Name]
			if f.Value < b.Min || f.Value > b.Max {
				t.Fatalf("%s=%v outside [%v,%v]", f.Name, f.Value, b.Min, b.Max)
			}
		}
	})
}

type fakeCounts struct {
	couriers   int
	open       int
	restaurant int
	err        error
}

func (f fakeCounts) CountAvailableWithin(context.Context, domain.Location, float64) int {
	return f.couriers
}

func (f fakeCounts) CountOpenWithin(context.Context, domain.Location, float64) (int, error) {
	return f.open, f.err
}

func (f fakeCounts) CountActiveByRestaurant(context.Context, string) (int, error) {
	return f.restaurant, f.err
}

type fixedWeather domain.WeatherCondition

func (w fixedWeather) Weather(context.Context, domain.Location) domain.WeatherReport {
	return domain.WeatherReport{Condition: domain.WeatherCondition(w), Live: true}
}

func TestSignalCollector(t *testing.T) {
	counts := fakeCounts{couriers: 3, open: 7, restaurant: 9}
	c := NewSignalCollector(counts, counts, fixedWeather(domain.WeatherRain), 5, nil).
		WithClock(func() time.Time { return quiet })

	req := shortRequest(domain.PriorityNormal)
	req.RestaurantID = "rest-1"
	s := c.Collect(context.Background(), req)

	assert.Equal(t, Signals{
		OpenRequests:           7,
		AvailableCouriers:      3,
		Weather:                domain.WeatherRain,
		At:                     quiet,
		RestaurantActiveOrders: 9,
	}, s)
}

func TestSignalCollectorDegradesOnErrors(t *testing.T) {
	counts := fakeCounts{couriers: 4, err: errors.New("db down")}
	c := NewSignalCollector(counts, counts, nil, 5, nil).WithClock(func() time.Time { return quiet })

	req := shortRequest(domain.PriorityNormal)
	req.RestaurantID = "rest-1"
	s := c.Collect(context.Background(), req)

	require.Equal(t, 4, s.AvailableCouriers)
	assert.Zero(t, s.OpenRequests)
	assert.Zero(t, s.RestaurantActiveOrders)
	assert.Equal(t, domain.WeatherUnknown, s.Weather)
}
