package domain

import "time"

// Factor names used in PricingQuote.Factors, in evaluation order.
const (
	FactorDemand          = "demand"
	FactorWeather         = "weather"
	FactorTimeOfDay       = "time_of_day"
	FactorDistance        = "distance"
	FactorUrgency         = "urgency"
	FactorRestaurantLoad  = "restaurant_load"
	FactorCourierScarcity = "courier_scarcity"
)

// PriceFactor is one named multiplicative component of a quote.
type PriceFactor struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Surge describes the surge state of a quote.
type Surge struct {
	IsActive bool    `json:"is_active"`
	Ratio    float64 `json:"ratio"`
}

// PricingQuote is a priced offer for one revision of a request.
type PricingQuote struct {
	RequestID  string        `json:"request_id"`
	Revision   int           `json:"revision"`
	BasePrice  int64         `json:"base_price"`
	Factors    []PriceFactor `json:"factors"`
	Multiplier float64       `json:"multiplier"`
	FinalPrice int64         `json:"final_price"`
	Surge      Surge         `json:"surge_pricing"`
	ComputedAt time.Time     `json:"computed_at"`
}

// Factor returns the value of the named factor, or 1 when absent.
func (q PricingQuote) Factor(name string) float64 {
	for _, f := range q.Factors {
		if f.Name == name {
			return f.Value
		}
	}
	return 1
}
