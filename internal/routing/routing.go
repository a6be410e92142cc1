// Package routing plans multi-drop routes for couriers carrying several
// jobs. It reads courier and request state and never changes either.
package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
	"dispatch/internal/logger"
	"dispatch/internal/repository"
	"dispatch/internal/signals"
)

var (
	// ErrRouteInfeasible means batching would make a job miss its window.
	ErrRouteInfeasible = errors.New("route infeasible")
	ErrUnknownCourier  = errors.New("unknown courier")
)

// CourierSource reads courier snapshots.
type CourierSource interface {
	Get(id string) (domain.CourierProfile, bool)
}

// ConditionsSource supplies live traffic and weather.
type ConditionsSource interface {
	Conditions(ctx context.Context, loc domain.Location) signals.Conditions
}

// Optimizer plans courier routes.
type Optimizer struct {
	couriers   CourierSource
	requests   repository.RequestRepository
	conditions ConditionsSource
	log        logger.Logger
	now        func() time.Time

	mu     sync.RWMutex
	latest map[string]domain.RouteOptimization
}

// Option configures an Optimizer.
type Option func(*Optimizer)

func WithConditions(c ConditionsSource) Option { return func(o *Optimizer) { o.conditions = c } }
func WithLogger(l logger.Logger) Option        { return func(o *Optimizer) { o.log = l } }
func WithClock(now func() time.Time) Option    { return func(o *Optimizer) { o.now = now } }

// NewOptimizer creates an Optimizer.
func NewOptimizer(couriers CourierSource, requests repository.RequestRepository, opts ...Option) *Optimizer {
	o := &Optimizer{
		couriers: couriers,
		requests: requests,
		log:      logger.Nop{},
		now:      time.Now,
		latest:   make(map[string]domain.RouteOptimization),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize plans a route over the courier's active jobs plus the
// candidates. When the batched route would miss a delivery window it
// returns the one-job-at-a-time route with Feasible=false together with
// ErrRouteInfeasible.
func (o *Optimizer) Optimize(ctx context.Context, courierID string, candidateRequestIDs []string) (domain.RouteOptimization, error) {
	c, ok := o.couriers.Get(courierID)
	if !ok {
		return domain.RouteOptimization{}, fmt.Errorf("%w: %s", ErrUnknownCourier, courierID)
	}
	now := o.now()

	jobs, err := o.loadJobs(ctx, append(append([]string(nil), c.ActiveRequests...), candidateRequestIDs...))
	if err != nil {
		return domain.RouteOptimization{}, err
	}

	result := domain.RouteOptimization{CourierID: courierID, Feasible: true, ComputedAt: now}
	if len(jobs) == 0 {
		result.Waypoints = []domain.Waypoint{}
		o.store(result)
		return result, nil
	}

	leg := o.legFunc(ctx, c)
	solo := soloOrder(jobs)
	soloEval := evaluate(c.Location, solo, jobs, leg, now)

	best := twoOpt(c.Location, nearestNeighbor(c.Location, buildStops(jobs), jobs, leg), jobs, leg, now)
	bestEval := evaluate(c.Location, best, jobs, leg, now)
	// starting from the solo order guarantees we never do worse than it
	alt := twoOpt(c.Location, solo, jobs, leg, now)
	if altEval := evaluate(c.Location, alt, jobs, leg, now); altEval.cost() < bestEval.cost() {
		best, bestEval = alt, altEval
	}

	result.BaselineDistanceKm = round2(soloEval.distanceKm)
	result.BaselineMinutes = round2(soloEval.minutes)

	if bestEval.lateMinutes > 0 {
		fill(&result, solo, soloEval, jobs)
		result.Feasible = false
		o.store(result)
		o.log.Infof("courier %s: batching infeasible, request %s late by %.1f min", courierID, bestEval.lateJob, bestEval.lateMinutes)
		return result, fmt.Errorf("%w: request %s would be %.1f minutes late", ErrRouteInfeasible, bestEval.lateJob, bestEval.lateMinutes)
	}

	fill(&result, best, bestEval, jobs)
	o.store(result)
	return result, nil
}

// Latest returns the last route planned for a courier.
func (o *Optimizer) Latest(courierID string) (domain.RouteOptimization, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, ok := o.latest[courierID]
	return r, ok
}

// Forget drops the stored route of a courier.
func (o *Optimizer) Forget(courierID string) {
	o.mu.Lock()
	delete(o.latest, courierID)
	o.mu.Unlock()
}

func (o *Optimizer) store(r domain.RouteOptimization) {
	o.mu.Lock()
	o.latest[r.CourierID] = r
	o.mu.Unlock()
}

func (o *Optimizer) loadJobs(ctx context.Context, ids []string) ([]job, error) {
	seen := make(map[string]bool, len(ids))
	var jobs []job
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		req, err := o.requests.GetByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			o.log.Warnf("route skips unknown request %s", id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load request %s: %w", id, err)
		}
		if req.Status.Terminal() {
			continue
		}
		jobs = append(jobs, job{req: *req, pickedUp: req.Status == domain.RequestStatusInTransit})
	}
	return jobs, nil
}

func (o *Optimizer) legFunc(ctx context.Context, c domain.CourierProfile) legFunc {
	cond := signals.Neutral()
	if o.conditions != nil {
		cond = o.conditions.Conditions(ctx, c.Location)
	}
	traffic := cond.Traffic.DelayFactor
	weather := cond.Weather.Condition.TravelDelay()
	return func(a, b domain.Location) (float64, float64) {
		km := geo.HaversineKm(a, b)
		return km, geo.TravelMinutes(km, c.Vehicle, traffic, weather)
	}
}

func fill(r *domain.RouteOptimization, route []stop, ev evaluation, jobs []job) {
	r.Waypoints = make([]domain.Waypoint, len(route))
	for i, s := range route {
		kind := domain.WaypointDelivery
		if s.pickup {
			kind = domain.WaypointPickup
		}
		r.Waypoints[i] = domain.Waypoint{
			Kind:      kind,
			RequestID: jobs[s.job].req.ID,
			Location:  s.loc,
			Priority:  jobs[s.job].req.Priority,
			ETA:       ev.etas[i],
		}
	}
	r.TotalDistanceKm = round2(ev.distanceKm)
	r.TotalMinutes = round2(ev.minutes)
	r.SavingsKm = round2(r.BaselineDistanceKm - r.TotalDistanceKm)
	r.SavingsMinutes = round2(r.BaselineMinutes - r.TotalMinutes)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
