package domain

import "time"

// WeatherCondition is a coarse weather classification.
type WeatherCondition string

const (
	WeatherClear     WeatherCondition = "clear"
	WeatherCloudy    WeatherCondition = "cloudy"
	WeatherRain      WeatherCondition = "rain"
	WeatherHeavyRain WeatherCondition = "heavy_rain"
	WeatherSnow      WeatherCondition = "snow"
	WeatherStorm     WeatherCondition = "storm"
	WeatherUnknown   WeatherCondition = "unknown"
)

// TravelDelay is the multiplicative slowdown weather imposes on travel.
func (w WeatherCondition) TravelDelay() float64 {
	switch w {
	case WeatherRain:
		return 1.15
	case WeatherHeavyRain:
		return 1.3
	case WeatherSnow:
		return 1.4
	case WeatherStorm:
		return 1.5
	default:
		return 1.0
	}
}

// WeatherReport is a weather observation for an area.
type WeatherReport struct {
	Condition    WeatherCondition `json:"condition"`
	TemperatureC float64          `json:"temperature_c"`
	ObservedAt   time.Time        `json:"observed_at"`
	Live         bool             `json:"live"`
}

// TrafficReport is a traffic observation for an area. DelayFactor is the
// ratio of in-traffic travel time to free-flow travel time.
type TrafficReport struct {
	DelayFactor float64   `json:"delay_factor"`
	ObservedAt  time.Time `json:"observed_at"`
	Live        bool      `json:"live"`
}

// NeutralWeather is used when no provider data is available.
func NeutralWeather() WeatherReport {
	return WeatherReport{Condition: WeatherUnknown}
}

// NeutralTraffic is used when no provider data is available.
func NeutralTraffic() TrafficReport {
	return TrafficReport{DelayFactor: 1.0}
}

// RestaurantStats are the restaurant-side inputs to pricing and ETA.
type RestaurantStats struct {
	ID           string
	AvgPrepTime  time.Duration
	Reliability  float64 // 0..1, 0 means unknown
	ActiveOrders int
}
