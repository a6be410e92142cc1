package pricing

import (
	"context"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/logger"
)

// CourierCounter counts couriers able to take work near a point.
type CourierCounter interface {
	CountAvailableWithin(ctx context.Context, center domain.Location, radiusKm float64) int
}

// DemandCounter counts open work near a point and per restaurant.
type DemandCounter interface {
	CountOpenWithin(ctx context.Context, center domain.Location, radiusKm float64) (int, error)
	CountActiveByRestaurant(ctx context.Context, restaurantID string) (int, error)
}

// WeatherSource reports the cached weather at a point.
type WeatherSource interface {
	Weather(ctx context.Context, loc domain.Location) domain.WeatherReport
}

// SignalCollector gathers Signals for a request from the live collaborators.
// Failing collaborators degrade to neutral values.
type SignalCollector struct {
	couriers CourierCounter
	demand   DemandCounter
	weather  WeatherSource
	radiusKm float64
	now      func() time.Time
	log      logger.Logger
}

// NewSignalCollector creates a SignalCollector. weather may be nil.
func NewSignalCollector(couriers CourierCounter, demand DemandCounter, weather WeatherSource, radiusKm float64, log logger.Logger) *SignalCollector {
	if log == nil {
		log = logger.Nop{}
	}
	return &SignalCollector{
		couriers: couriers,
		demand:   demand,
		weather:  weather,
		radiusKm: radiusKm,
		now:      time.Now,
		log:      log,
	}
}

// WithClock overrides the time source.
func (c *SignalCollector) WithClock(now func() time.Time) *SignalCollector {
	c.now = now
	return c
}

// Collect captures the pricing signals for req.
func (c *SignalCollector) Collect(ctx context.Context, req domain.DeliveryRequest) Signals {
	pickup := req.Pickup.Location
	s := Signals{
		At:                c.now(),
		Weather:           domain.WeatherUnknown,
		AvailableCouriers: c.couriers.CountAvailableWithin(ctx, pickup, c.radiusKm),
	}

	if n, err := c.demand.CountOpenWithin(ctx, pickup, c.radiusKm); err != nil {
		c.log.Warnf("count open requests near %s: %v", req.ID, err)
	} else {
		s.OpenRequests = n
	}

	if req.RestaurantID != "" {
		if n, err := c.demand.CountActiveByRestaurant(ctx, req.RestaurantID); err != nil {
			c.log.Warnf("count restaurant %s orders: %v", req.RestaurantID, err)
		} else {
			s.RestaurantActiveOrders = n
		}
	}

	if c.weather != nil {
		s.Weather = c.weather.Weather(ctx, pickup).Condition
	}
	return s
}
