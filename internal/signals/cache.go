package signals

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"dispatch/internal/domain"
	"dispatch/internal/logger"
)

// Default cache settings.
const (
	DefaultTrafficTTL      = 5 * time.Minute
	DefaultWeatherTTL      = 30 * time.Minute
	DefaultFetchTimeout    = 300 * time.Millisecond
	DefaultProviderTimeout = 5 * time.Second
)

type entry[T any] struct {
	report    T
	fetchedAt time.Time
}

type table[T any] struct {
	mu      sync.RWMutex
	entries map[string]entry[T]
}

func newTable[T any]() *table[T] {
	return &table[T]{entries: make(map[string]entry[T])}
}

func (t *table[T]) get(cell string) (entry[T], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[cell]
	return e, ok
}

func (t *table[T]) put(cell string, report T, at time.Time) {
	t.mu.Lock()
	t.entries[cell] = entry[T]{report: report, fetchedAt: at}
	t.mu.Unlock()
}

// Cache serves live signals per ~1 km cell. A fresh entry is returned as
// is. A stale entry is returned marked non-live while a refresh runs in
// the background. A miss waits for the provider at most FetchTimeout and
// falls back to neutral values; the provider call keeps running so its
// result is available to the next caller.
type Cache struct {
	traffic TrafficProvider
	weather WeatherProvider
	store   Store
	log     logger.Logger
	now     func() time.Time

	trafficTTL      time.Duration
	weatherTTL      time.Duration
	fetchTimeout    time.Duration
	providerTimeout time.Duration

	trafficByCell *table[domain.TrafficReport]
	weatherByCell *table[domain.WeatherReport]
	group         singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithStore shares entries with other instances through s.
func WithStore(s Store) Option { return func(c *Cache) { c.store = s } }

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(c *Cache) { c.log = l } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// WithTTLs overrides the freshness windows. Zero values keep the defaults.
func WithTTLs(traffic, weather time.Duration) Option {
	return func(c *Cache) {
		if traffic > 0 {
			c.trafficTTL = traffic
		}
		if weather > 0 {
			c.weatherTTL = weather
		}
	}
}

// WithFetchTimeout bounds how long a cache miss waits for a provider.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// NewCache creates a Cache. Either provider may be nil, in which case the
// corresponding signal is always neutral.
func NewCache(traffic TrafficProvider, weather WeatherProvider, opts ...Option) *Cache {
	c := &Cache{
		traffic:         traffic,
		weather:         weather,
		log:             logger.Nop{},
		now:             time.Now,
		trafficTTL:      DefaultTrafficTTL,
		weatherTTL:      DefaultWeatherTTL,
		fetchTimeout:    DefaultFetchTimeout,
		providerTimeout: DefaultProviderTimeout,
		trafficByCell:   newTable[domain.TrafficReport](),
		weatherByCell:   newTable[domain.WeatherReport](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Conditions returns traffic and weather for loc, looked up concurrently.
func (c *Cache) Conditions(ctx context.Context, loc domain.Location) Conditions {
	var out Conditions
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.Traffic = c.Traffic(gctx, loc)
		return nil
	})
	g.Go(func() error {
		out.Weather = c.Weather(gctx, loc)
		return nil
	})
	_ = g.Wait()
	return out
}

// Traffic returns the traffic report for loc.
func (c *Cache) Traffic(ctx context.Context, loc domain.Location) domain.TrafficReport {
	if c.traffic == nil {
		return domain.NeutralTraffic()
	}
	return lookup(ctx, c, c.trafficByCell, "traffic", Cell(loc), c.trafficTTL,
		func(ctx context.Context) (domain.TrafficReport, error) { return c.traffic.Traffic(ctx, loc) },
		func(ctx context.Context, cell string, r domain.TrafficReport) error {
			return c.store.SetTraffic(ctx, cell, r, c.trafficTTL)
		},
		func(r domain.TrafficReport) domain.TrafficReport { r.Live = false; return r },
		domain.NeutralTraffic(),
	)
}

// Weather returns the weather report for loc.
func (c *Cache) Weather(ctx context.Context, loc domain.Location) domain.WeatherReport {
	if c.weather == nil {
		return domain.NeutralWeather()
	}
	return lookup(ctx, c, c.weatherByCell, "weather", Cell(loc), c.weatherTTL,
		func(ctx context.Context) (domain.WeatherReport, error) { return c.weather.Weather(ctx, loc) },
		func(ctx context.Context, cell string, r domain.WeatherReport) error {
			return c.store.SetWeather(ctx, cell, r, c.weatherTTL)
		},
		func(r domain.WeatherReport) domain.WeatherReport { r.Live = false; return r },
		domain.NeutralWeather(),
	)
}

func lookup[T any](
	ctx context.Context,
	c *Cache,
	t *table[T],
	kind, cell string,
	ttl time.Duration,
	fetch func(context.Context) (T, error),
	persist func(context.Context, string, T) error,
	stale func(T) T,
	neutral T,
) T {
	if e, ok := t.get(cell); ok {
		if c.now().Sub(e.fetchedAt) < ttl {
			return e.report
		}
		refresh(c, t, kind, cell, fetch, persist)
		return stale(e.report)
	}

	if c.loadShared(ctx, cell) {
		if e, ok := t.get(cell); ok {
			return e.report
		}
	}

	ch := refresh(c, t, kind, cell, fetch, persist)
	timer := time.NewTimer(c.fetchTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			c.log.Warnf("%s provider failed for cell %s: %v", kind, cell, res.Err)
			return neutral
		}
		return res.Val.(T)
	case <-timer.C:
		c.log.Warnf("%s provider slow for cell %s, using neutral value", kind, cell)
		return neutral
	case <-ctx.Done():
		return neutral
	}
}

// refresh fetches a signal once per cell at a time and stores the result.
// The provider call is detached from the caller's context.
func refresh[T any](
	c *Cache,
	t *table[T],
	kind, cell string,
	fetch func(context.Context) (T, error),
	persist func(context.Context, string, T) error,
) <-chan singleflight.Result {
	return c.group.DoChan(kind+":"+cell, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), c.providerTimeout)
		defer cancel()

		report, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		t.put(cell, report, c.now())
		if c.store != nil {
			if err := persist(ctx, cell, report); err != nil {
				c.log.Debugf("share %s for cell %s: %v", kind, cell, err)
			}
		}
		return report, nil
	})
}

// loadShared copies entries for cell from the shared store into the local
// tables. It reports whether anything was found.
func (c *Cache) loadShared(ctx context.Context, cell string) bool {
	if c.store == nil {
		return false
	}
	traffic, weather, err := c.store.GetSignals(ctx, cell)
	if err != nil {
		c.log.Debugf("shared signal lookup for cell %s: %v", cell, err)
		return false
	}
	now := c.now()
	if traffic != nil {
		c.trafficByCell.put(cell, *traffic, observedOr(traffic.ObservedAt, now))
	}
	if weather != nil {
		c.weatherByCell.put(cell, *weather, observedOr(weather.ObservedAt, now))
	}
	return traffic != nil || weather != nil
}

func observedOr(observed, now time.Time) time.Time {
	if observed.IsZero() || observed.After(now) {
		return now
	}
	return observed
}
