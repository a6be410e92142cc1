package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dispatch/internal/bidding"
	"dispatch/internal/config"
	"dispatch/internal/dispatch"
	"dispatch/internal/eta"
	"dispatch/internal/events"
	"dispatch/internal/geofence"
	"dispatch/internal/issue"
	"dispatch/internal/logger"
	"dispatch/internal/matching"
	"dispatch/internal/notify"
	"dispatch/internal/pricing"
	internalRedis "dispatch/internal/redis"
	"dispatch/internal/registry"
	"dispatch/internal/repository"
	"dispatch/internal/repository/memory"
	"dispatch/internal/repository/postgres"
	"dispatch/internal/routing"
	"dispatch/internal/signals"
)

// Stores are the persistence backends of the engine.
type Stores struct {
	Requests    repository.RequestRepository
	Couriers    repository.CourierRepository
	Sessions    repository.SessionRepository
	Issues      repository.IssueRepository
	Restaurants repository.RestaurantRepository
}

// MemoryStores returns in-process stores.
func MemoryStores() Stores {
	requests := memory.NewRequestRepository()
	return Stores{
		Requests:    requests,
		Couriers:    memory.NewCourierRepository(),
		Sessions:    memory.NewSessionRepository(),
		Issues:      memory.NewIssueRepository(),
		Restaurants: memory.NewRestaurantRepository(requests),
	}
}

// PostgresStores returns stores backed by db.
func PostgresStores(db *sql.DB) Stores {
	return Stores{
		Requests:    postgres.NewRequestRepository(db),
		Couriers:    postgres.NewCourierRepository(db),
		Sessions:    postgres.NewSessionRepository(db),
		Issues:      postgres.NewIssueRepository(db),
		Restaurants: postgres.NewRestaurantRepository(db),
	}
}

// External are the optional outside collaborators. Nil fields fall back
// to in-process implementations.
type External struct {
	Index       registry.LocationIndex
	Locker      internalRedis.LockStoreInterface
	SignalStore signals.Store
	Traffic     signals.TrafficProvider
	Weather     signals.WeatherProvider
	Notifier    notify.Notifier
	Clock       bidding.Clock
	Now         func() time.Time
}

// Engine holds the wired components.
type Engine struct {
	Service  *dispatch.Service
	Registry *registry.Registry
	Bidding  *bidding.Coordinator
	Signals  *signals.Cache
	Bus      *events.Bus
	Strategy string
}

// NewEngine wires the dispatch components from configuration and loads the
// courier registry from its store.
func NewEngine(ctx context.Context, cfg *config.Config, stores Stores, ext External) (*Engine, error) {
	now := ext.Now
	if now == nil {
		now = time.Now
	}
	notifier := ext.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger.New("notify"))
	}
	d := cfg.Dispatch

	bus := events.NewBus(0)

	reg := registry.New(
		registry.WithIndex(ext.Index),
		registry.WithRepository(stores.Couriers),
		registry.WithSearchRadius(d.SearchRadiusKm),
		registry.WithClock(now),
		registry.WithLogger(logger.New("registry")),
	)
	if err := reg.Load(ctx); err != nil {
		return nil, err
	}

	cacheOpts := []signals.Option{
		signals.WithTTLs(cfg.Signals.TrafficTTL, cfg.Signals.WeatherTTL),
		signals.WithFetchTimeout(cfg.Signals.FetchTimeout),
		signals.WithClock(now),
		signals.WithLogger(logger.New("signals")),
	}
	if ext.SignalStore != nil {
		cacheOpts = append(cacheOpts, signals.WithStore(ext.SignalStore))
	}
	cache := signals.NewCache(ext.Traffic, ext.Weather, cacheOpts...)

	strategy := matching.ScoringStrategy(matching.NewRuleBased())
	if d.ModelWeightsFile != "" {
		learned, err := matching.LoadLearned(d.ModelWeightsFile)
		if err != nil {
			return nil, fmt.Errorf("load scoring model: %w", err)
		}
		strategy = matching.SelectStrategy(learned)
	}

	estimator := eta.NewEstimator(d.LocationFreshFor)
	matcher := matching.NewEngine(reg, strategy, estimator, matching.Config{
		MinAcceptScore: d.MinAcceptScore,
		SearchRadiusKm: d.SearchRadiusKm,
	}, logger.New("matching"))

	biddingOpts := []bidding.Option{
		bidding.WithNotifier(notifier),
		bidding.WithRepository(stores.Sessions),
		bidding.WithPublisher(bus),
		bidding.WithLogger(logger.New("bidding")),
	}
	if ext.Clock != nil {
		biddingOpts = append(biddingOpts, bidding.WithClock(ext.Clock))
	}
	coordinator := bidding.NewCoordinator(reg, bidding.Config{
		SealedWindow:    d.SealedWindow,
		FCFSWindow:      d.FCFSWindow,
		MinimumBidRatio: d.MinimumBidRatio,
		MaxBidRatio:     d.MaxBidRatio,
		EarlyClose:      d.EarlyClose,
	}, biddingOpts...)

	resolver := issue.NewResolver(stores.Issues, stores.Requests,
		issue.WithNotifier(notifier),
		issue.WithPublisher(bus),
		issue.WithLogger(logger.New("issue")),
		issue.WithClock(now),
	)

	opts := []dispatch.Option{
		dispatch.WithPublisher(bus),
		dispatch.WithLogger(logger.New("dispatch")),
		dispatch.WithClock(now),
	}
	if ext.Locker != nil {
		opts = append(opts, dispatch.WithLocker(ext.Locker, d.RequestLockTTL))
	}

	svc := dispatch.NewService(dispatch.Deps{
		Requests:    stores.Requests,
		Restaurants: stores.Restaurants,
		Registry:    reg,
		Pricing:     pricing.NewEngine(d.BasePrice),
		Collector:   pricing.NewSignalCollector(reg, stores.Requests, cache, d.SearchRadiusKm, logger.New("pricing")).WithClock(now),
		Conditions:  cache,
		Estimator:   estimator,
		Matcher:     matcher,
		Bidding:     coordinator,
		Router: routing.NewOptimizer(reg, stores.Requests,
			routing.WithConditions(cache),
			routing.WithClock(now),
			routing.WithLogger(logger.New("routing")),
		),
		Geofence: geofence.NewMonitor(
			geofence.WithPublisher(bus),
			geofence.WithLogger(logger.New("geofence")),
		),
		Resolver: resolver,
		Notifier: notifier,
	}, opts...)

	return &Engine{
		Service:  svc,
		Registry: reg,
		Bidding:  coordinator,
		Signals:  cache,
		Bus:      bus,
		Strategy: matcher.Strategy(),
	}, nil
}
