package signals

import (
	"context"
	"sync/atomic"
	"time"

	"dispatch/internal/domain"
)

// Static is a fixed provider for tests and local runs.
type Static struct {
	TrafficReport domain.TrafficReport
	WeatherReport domain.WeatherReport
	Err           error
	Delay         time.Duration

	calls atomic.Int64
}

var (
	_ TrafficProvider = (*Static)(nil)
	_ WeatherProvider = (*Static)(nil)
)

// Traffic returns the configured traffic report.
func (s *Static) Traffic(ctx context.Context, _ domain.Location) (domain.TrafficReport, error) {
	if err := s.wait(ctx); err != nil {
		return domain.TrafficReport{}, err
	}
	return s.TrafficReport, nil
}

// Weather returns the configured weather report.
func (s *Static) Weather(ctx context.Context, _ domain.Location) (domain.WeatherReport, error) {
	if err := s.wait(ctx); err != nil {
		return domain.WeatherReport{}, err
	}
	return s.WeatherReport, nil
}

// Calls returns the number of provider calls made.
func (s *Static) Calls() int64 { return s.calls.Load() }

func (s *Static) wait(ctx context.Context) error {
	s.calls.Add(1)
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.Err
}
