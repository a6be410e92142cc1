package events

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// PromSink turns events into Prometheus metrics.
type PromSink struct {
	events      *prometheus.CounterVec
	matchETA    prometheus.Histogram
	routeSaving prometheus.Histogram
	issues      *prometheus.CounterVec
}

var _ Sink = (*PromSink)(nil)

// NewPromSink registers the dispatch collectors on reg, reusing any that
// are already registered. A nil reg uses the default registerer.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_events_total",
			Help: "Total number of dispatch lifecycle events",
		}, []string{"type"}),
		matchETA: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_match_eta_minutes",
			Help:    "Estimated delivery minutes at the time of matching",
			Buckets: []float64{10, 15, 20, 30, 45, 60, 90},
		}),
		routeSaving: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_route_savings_km",
			Help:    "Distance saved by batching compared to solo delivery",
			Buckets: []float64{0, 0.5, 1, 2, 5, 10},
		}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_issues_total",
			Help: "Delivery issues by severity and resolution",
		}, []string{"severity", "action"}),
	}

	var err error
	if s.events, err = register(reg, s.events); err != nil {
		return nil, err
	}
	if s.matchETA, err = register(reg, s.matchETA); err != nil {
		return nil, err
	}
	if s.routeSaving, err = register(reg, s.routeSaving); err != nil {
		return nil, err
	}
	if s.issues, err = register(reg, s.issues); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (s *PromSink) Handle(_ context.Context, e Event) error {
	s.events.WithLabelValues(string(e.Type)).Inc()
	switch e.Type {
	case MatchFound:
		if v, ok := number(e.Data["eta_minutes"]); ok {
			s.matchETA.Observe(v)
		}
	case RouteOptimized:
		if v, ok := number(e.Data["savings_km"]); ok {
			s.routeSaving.Observe(v)
		}
	case DeliveryIssue:
		sev, _ := e.Data["severity"].(string)
		action, _ := e.Data["action"].(string)
		s.issues.WithLabelValues(sev, action).Inc()
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
