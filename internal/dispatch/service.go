// Package dispatch runs the request lifecycle: pricing, matching, bidding,
// routing, geofencing and issue handling.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"dispatch/internal/bidding"
	"dispatch/internal/domain"
	"dispatch/internal/eta"
	"dispatch/internal/events"
	"dispatch/internal/geofence"
	"dispatch/internal/issue"
	"dispatch/internal/logger"
	"dispatch/internal/matching"
	"dispatch/internal/notify"
	"dispatch/internal/pricing"
	"dispatch/internal/redis"
	"dispatch/internal/registry"
	"dispatch/internal/repository"
	"dispatch/internal/routing"
	"dispatch/internal/signals"
)

const defaultRequestLockTTL = 30 * time.Second

// ConditionsSource supplies live traffic and weather for a location.
type ConditionsSource interface {
	Conditions(ctx context.Context, loc domain.Location) signals.Conditions
}

// Deps are the collaborators of a Service. Conditions, Restaurants,
// Router, Geofence and Resolver may be nil.
type Deps struct {
	Requests    repository.RequestRepository
	Restaurants repository.RestaurantRepository
	Registry    *registry.Registry
	Pricing     *pricing.Engine
	Collector   *pricing.SignalCollector
	Conditions  ConditionsSource
	Estimator   *eta.Estimator
	Matcher     *matching.Engine
	Bidding     *bidding.Coordinator
	Router      *routing.Optimizer
	Geofence    *geofence.Monitor
	Resolver    *issue.Resolver
	Notifier    notify.Notifier
}

// Outcome is the result of dispatching one request revision.
type Outcome struct {
	Request    domain.DeliveryRequest
	Quote      domain.PricingQuote
	ETA        eta.Estimate
	Assignment *matching.Assignment
	Session    *domain.BiddingSession
	Route      *domain.RouteOptimization
}

// Service coordinates the dispatch components.
type Service struct {
	requests    repository.RequestRepository
	restaurants repository.RestaurantRepository
	registry    *registry.Registry
	pricing     *pricing.Engine
	collector   *pricing.SignalCollector
	conditions  ConditionsSource
	estimator   *eta.Estimator
	matcher     *matching.Engine
	bidding     *bidding.Coordinator
	router      *routing.Optimizer
	geofence    *geofence.Monitor
	resolver    *issue.Resolver
	notifier    notify.Notifier

	locker  redis.LockStoreInterface
	lockTTL time.Duration
	events  events.Publisher
	log     logger.Logger
	now     func() time.Time

	locks *keyedMutex

	mu         sync.Mutex
	quotes     map[string]domain.PricingQuote
	failures   map[string]error
	cancelling map[string]bool
}

var (
	_ issue.Reassigner       = (*Service)(nil)
	_ geofence.ActionHandler = (*Service)(nil)
)

// Option configures a Service.
type Option func(*Service)

// WithLocker enables the distributed per-request lock.
func WithLocker(l redis.LockStoreInterface, ttl time.Duration) Option {
	return func(s *Service) {
		s.locker = l
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.events = p } }
func WithLogger(l logger.Logger) Option       { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) Option   { return func(s *Service) { s.now = now } }

// NewService creates a Service and registers it as the bidding outcome
// handler, the geofence action handler and the issue reassigner.
func NewService(d Deps, opts ...Option) *Service {
	s := &Service{
		requests:    d.Requests,
		restaurants: d.Restaurants,
		registry:    d.Registry,
		pricing:     d.Pricing,
		collector:   d.Collector,
		conditions:  d.Conditions,
		estimator:   d.Estimator,
		matcher:     d.Matcher,
		bidding:     d.Bidding,
		router:      d.Router,
		geofence:    d.Geofence,
		resolver:    d.Resolver,
		notifier:    d.Notifier,
		lockTTL:     defaultRequestLockTTL,
		events:      events.Nop{},
		log:         logger.Nop{},
		now:         time.Now,
		locks:       newKeyedMutex(),
		quotes:      make(map[string]domain.PricingQuote),
		failures:    make(map[string]error),
		cancelling:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.bidding.OnOutcome(s.handleOutcome)
	if s.geofence != nil {
		s.geofence.SetHandler(s)
	}
	if s.resolver != nil {
		s.resolver.SetReassigner(s)
	}
	return s
}

// Submit stores a new request and dispatches it: an automatic match when
// a courier scores high enough, bidding otherwise. A *matching.MatchError
// means nobody is eligible; the request stays pending for Resubmit.
func (s *Service) Submit(ctx context.Context, req domain.DeliveryRequest) (Outcome, error) {
	if err := validate(req); err != nil {
		return Outcome{}, err
	}
	now := s.now()
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Priority == "" {
		req.Priority = domain.PriorityNormal
	}
	req.Status = domain.RequestStatusPending
	req.CourierID = ""
	req.Revision = 1
	req.CreatedAt = now
	req.UpdatedAt = now

	unlock, err := s.lock(ctx, req.ID)
	if err != nil {
		return Outcome{}, err
	}
	defer unlock()

	if err := s.requests.Create(ctx, &req); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return Outcome{}, fmt.Errorf("%w: request %s already submitted", ErrInvalidRequest, req.ID)
		}
		return Outcome{}, fmt.Errorf("store request: %w", err)
	}
	s.log.Infof("request %s submitted (%s)", req.ID, req.Priority)
	return s.dispatch(ctx, req)
}

// Resubmit dispatches a pending or expired request again under a new
// revision, with a fresh quote.
func (s *Service) Resubmit(ctx context.Context, requestID string) (Outcome, error) {
	unlock, err := s.lock(ctx, requestID)
	if err != nil {
		return Outcome{}, err
	}
	defer unlock()

	req, err := s.load(ctx, requestID)
	if err != nil {
		return Outcome{}, err
	}
	if req.Status != domain.RequestStatusPending && req.Status != domain.RequestStatusExpired {
		return Outcome{}, fmt.Errorf("%w: request %s is %s", ErrInvalidTransition, requestID, req.Status)
	}

	next := req.NextRevision(nil, s.now())
	if err := s.requests.Update(ctx, &next); err != nil {
		return Outcome{}, fmt.Errorf("store request %s: %w", requestID, err)
	}
	s.mu.Lock()
	delete(s.failures, requestID)
	s.mu.Unlock()
	return s.dispatch(ctx, next)
}

// Reassign takes a request away from its courier and dispatches it again
// without that courier. It returns the new courier, or "" when the request
// went to bidding. A request being cancelled in transit is released and
// closed instead.
func (s *Service) Reassign(ctx context.Context, requestID, fromCourierID string) (string, error) {
	unlock, err := s.lock(ctx, requestID)
	if err != nil {
		return "", err
	}
	defer unlock()

	req, err := s.load(ctx, requestID)
	if err != nil {
		return "", err
	}
	if req.Status != domain.RequestStatusAssigned && req.Status != domain.RequestStatusInTransit {
		return "", fmt.Errorf("%w: request %s is %s", ErrInvalidTransition, requestID, req.Status)
	}
	if fromCourierID != "" && req.CourierID != fromCourierID {
		return "", fmt.Errorf("%w: request %s is held by %s, not %s", ErrInvalidTransition, requestID, req.CourierID, fromCourierID)
	}

	s.releaseCourier(ctx, *req)

	s.mu.Lock()
	cancelling := s.cancelling[requestID]
	delete(s.cancelling, requestID)
	s.mu.Unlock()
	if cancelling {
		cancelled := req.WithStatus(domain.RequestStatusCancelled, "", s.now())
		if err := s.requests.Update(ctx, &cancelled); err != nil {
			return "", fmt.Errorf("store request %s: %w", requestID, err)
		}
		s.forget(requestID)
		s.notifyRestaurant(ctx, cancelled, notify.NotificationRequestCancelled, "Order cancelled",
			fmt.Sprintf("Order %s was cancelled while in transit.", requestID))
		s.log.Infof("request %s cancelled in transit, courier %s released", requestID, req.CourierID)
		return "", nil
	}

	next := req.NextRevision(nil, s.now())
	if err := s.requests.Update(ctx, &next); err != nil {
		return "", fmt.Errorf("store request %s: %w", requestID, err)
	}
	out, err := s.dispatch(ctx, next, req.CourierID)
	if err != nil {
		return "", err
	}
	if out.Assignment != nil {
		return out.Assignment.CourierID, nil
	}
	return "", nil
}

// Cancel cancels a request. An active bidding session is cancelled and an
// assigned courier released. Once the courier is in transit the
// cancellation goes through the issue resolver so support is involved.
func (s *Service) Cancel(ctx context.Context, requestID, reason string) error {
	unlock, err := s.lock(ctx, requestID)
	if err != nil {
		return err
	}
	req, err := s.load(ctx, requestID)
	if err != nil {
		unlock()
		return err
	}
	if req.Status == domain.RequestStatusInTransit {
		unlock()
		return s.cancelInTransit(ctx, *req, reason)
	}
	defer unlock()

	switch req.Status {
	case domain.RequestStatusBidding:
		if _, err := s.bidding.Cancel(ctx, requestID); err != nil && !errors.Is(err, bidding.ErrNoActiveSession) {
			return fmt.Errorf("cancel bidding for %s: %w", requestID, err)
		}
	case domain.RequestStatusAssigned:
		s.releaseCourier(ctx, *req)
		s.notifyRestaurant(ctx, *req, notify.NotificationRequestCancelled, "Order cancelled",
			fmt.Sprintf("Order %s was cancelled.", requestID))
	case domain.RequestStatusPending:
	default:
		return fmt.Errorf("%w: request %s is %s", ErrInvalidTransition, requestID, req.Status)
	}

	cancelled := req.WithStatus(domain.RequestStatusCancelled, "", s.now())
	if err := s.requests.Update(ctx, &cancelled); err != nil {
		return fmt.Errorf("store request %s: %w", requestID, err)
	}
	s.forget(requestID)
	s.log.Infof("request %s cancelled from %s: %s", requestID, req.Status, reason)
	return nil
}

func (s *Service) cancelInTransit(ctx context.Context, req domain.DeliveryRequest, reason string) error {
	s.mu.Lock()
	s.cancelling[req.ID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.cancelling, req.ID)
		s.mu.Unlock()
	}()

	if s.resolver == nil {
		if _, err := s.Reassign(ctx, req.ID, req.CourierID); err != nil {
			return err
		}
	} else {
		report := domain.DeliveryIssue{
			CourierID:   req.CourierID,
			RequestID:   req.ID,
			Type:        domain.IssueOrderCancelled,
			Severity:    domain.SeverityHigh,
			Description: reason,
		}
		if c, ok := s.registry.Get(req.CourierID); ok {
			report.Location = c.Location
		}
		if _, err := s.resolver.Report(ctx, report); err != nil {
			return err
		}
	}

	after, err := s.load(ctx, req.ID)
	if err != nil {
		return err
	}
	if after.Status != domain.RequestStatusCancelled {
		return fmt.Errorf("%w: request %s is %s after cancellation", ErrInvalidTransition, req.ID, after.Status)
	}
	return nil
}

// ReportLocation records a courier position and evaluates its geofences.
func (s *Service) ReportLocation(ctx context.Context, courierID string, lat, lng float64) ([]geofence.Trigger, error) {
	loc := domain.Location{Lat: lat, Lng: lng}
	if err := s.registry.UpdateLocation(ctx, courierID, loc, s.now()); err != nil {
		return nil, err
	}
	if s.geofence == nil {
		return nil, nil
	}
	return s.geofence.OnLocation(ctx, courierID, loc), nil
}

// SubmitBid forwards a courier's bid to its session.
func (s *Service) SubmitBid(ctx context.Context, sessionID, courierID string, fee int64, eta time.Duration) (domain.Bid, error) {
	return s.bidding.SubmitBid(ctx, sessionID, courierID, fee, eta)
}

// Session returns a bidding session.
func (s *Service) Session(ctx context.Context, sessionID string) (domain.BiddingSession, error) {
	return s.bidding.Session(ctx, sessionID)
}

// CloseSession closes a bidding session before its window ends.
func (s *Service) CloseSession(ctx context.Context, sessionID string) (domain.BiddingSession, error) {
	return s.bidding.Close(ctx, sessionID)
}

// Complete marks a request delivered and frees its courier. Completing a
// delivered request is a no-op.
func (s *Service) Complete(ctx context.Context, requestID string) (domain.DeliveryRequest, error) {
	unlock, err := s.lock(ctx, requestID)
	if err != nil {
		return domain.DeliveryRequest{}, err
	}
	defer unlock()

	req, err := s.load(ctx, requestID)
	if err != nil {
		return domain.DeliveryRequest{}, err
	}
	switch req.Status {
	case domain.RequestStatusDelivered:
		return *req, nil
	case domain.RequestStatusAssigned, domain.RequestStatusInTransit:
	default:
		return domain.DeliveryRequest{}, fmt.Errorf("%w: request %s is %s", ErrInvalidTransition, requestID, req.Status)
	}

	delivered := req.WithStatus(domain.RequestStatusDelivered, req.CourierID, s.now())
	if err := s.requests.Update(ctx, &delivered); err != nil {
		return domain.DeliveryRequest{}, fmt.Errorf("store request %s: %w", requestID, err)
	}
	s.forget(requestID)
	s.releaseCourier(ctx, *req)
	s.notifyCustomer(ctx, delivered, notify.NotificationDelivered, "Delivered", "Your order has been delivered.")
	s.log.Infof("request %s delivered by %s", requestID, req.CourierID)
	return delivered, nil
}

// Request returns a request.
func (s *Service) Request(ctx context.Context, requestID string) (domain.DeliveryRequest, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return domain.DeliveryRequest{}, err
	}
	return *req, nil
}

// LastFailure returns why the last dispatch of a request failed, if it did.
// It is a *matching.MatchError or a *bidding.OutcomeError.
func (s *Service) LastFailure(requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[requestID]
}

// Quote returns the quote of the request's current revision, pricing it
// when none is cached.
func (s *Service) Quote(ctx context.Context, requestID string) (domain.PricingQuote, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return domain.PricingQuote{}, err
	}
	s.mu.Lock()
	q, ok := s.quotes[requestID]
	s.mu.Unlock()
	if ok && q.Revision == req.Revision {
		return q, nil
	}
	q = s.pricing.Quote(*req, s.collector.Collect(ctx, *req))
	if req.Status != domain.RequestStatusDelivered && req.Status != domain.RequestStatusCancelled {
		s.storeQuote(q)
	}
	return q, nil
}

// Route returns the latest route of a courier, planning one if needed.
func (s *Service) Route(ctx context.Context, courierID string) (domain.RouteOptimization, error) {
	if s.router == nil {
		return domain.RouteOptimization{}, routing.ErrUnknownCourier
	}
	if r, ok := s.router.Latest(courierID); ok {
		return r, nil
	}
	r, err := s.router.Optimize(ctx, courierID, nil)
	if errors.Is(err, routing.ErrRouteInfeasible) {
		return r, nil
	}
	return r, err
}

// ReportIssue hands a delivery issue to the resolver.
func (s *Service) ReportIssue(ctx context.Context, in domain.DeliveryIssue) (domain.Resolution, error) {
	if s.resolver == nil {
		return domain.Resolution{}, errors.New("issue resolver not configured")
	}
	return s.resolver.Report(ctx, in)
}

// UpsertCourier registers or updates a courier profile.
func (s *Service) UpsertCourier(ctx context.Context, c domain.CourierProfile) (domain.CourierProfile, error) {
	return s.registry.Upsert(ctx, c)
}

// SetAvailability toggles whether a courier takes new work.
func (s *Service) SetAvailability(ctx context.Context, courierID string, available bool) error {
	return s.registry.SetAvailability(ctx, courierID, available)
}

// dispatch prices a request revision and either assigns it or opens
// bidding. The caller holds the request lock.
func (s *Service) dispatch(ctx context.Context, req domain.DeliveryRequest, exclude ...string) (Outcome, error) {
	cond := s.etaConditions(ctx, req)
	quote := s.pricing.Quote(req, s.collector.Collect(ctx, req))
	s.storeQuote(quote)
	out := Outcome{Request: req, Quote: quote, ETA: s.estimator.Estimate(req, nil, cond)}

	res, err := s.matcher.FindMatch(ctx, req,
		matching.WithConditions(cond),
		matching.WithQuote(quote),
		matching.WithExclude(exclude...),
	)
	if err != nil {
		s.recordFailure(req.ID, err)
		return out, err
	}

	if a := res.Automatic; a != nil {
		assigned, route, err := s.assign(ctx, req, a.CourierID, quote.FinalPrice, a.ETA, "automatic")
		if err != nil {
			return out, err
		}
		out.Request, out.Assignment, out.ETA, out.Route = assigned, a, a.ETA, route
		return out, nil
	}

	open := req.WithStatus(domain.RequestStatusBidding, "", s.now())
	if err := s.requests.Update(ctx, &open); err != nil {
		return out, fmt.Errorf("store request %s: %w", req.ID, err)
	}
	session, err := s.bidding.Open(ctx, open, quote, bidding.ModeFor(req.Priority), bidding.WithTargetETA(out.ETA.Duration()))
	if err != nil {
		if rerr := s.requests.Update(ctx, &req); rerr != nil {
			s.log.Errorf("failed to restore request %s: %v", req.ID, rerr)
		}
		return out, fmt.Errorf("open bidding for %s: %w", req.ID, err)
	}
	out.Request, out.Session = open, &session
	return out, nil
}

// assign records a reserved courier on the request and starts tracking
// the job. The courier must already be reserved in the registry.
func (s *Service) assign(ctx context.Context, req domain.DeliveryRequest, courierID string, fee int64, est eta.Estimate, via string) (domain.DeliveryRequest, *domain.RouteOptimization, error) {
	assigned := req.WithStatus(domain.RequestStatusAssigned, courierID, s.now())
	if err := s.requests.Update(ctx, &assigned); err != nil {
		s.registry.Release(courierID, req.ID)
		return domain.DeliveryRequest{}, nil, fmt.Errorf("store assignment of %s: %w", req.ID, err)
	}
	if s.geofence != nil {
		s.geofence.Arm(courierID, assigned)
	}
	route := s.replan(ctx, courierID)

	s.notifyCustomer(ctx, assigned, notify.NotificationCourierAssigned, "Courier assigned",
		fmt.Sprintf("A courier is on the way, arriving in about %d minutes.", est.Minutes))
	s.events.Publish(ctx, events.Event{
		Type:      events.MatchFound,
		RequestID: req.ID,
		CourierID: courierID,
		Data: map[string]any{
			"via":         via,
			"fee":         fee,
			"eta_minutes": est.Minutes,
			"confidence":  est.ConfidencePct,
			"priority":    string(req.Priority),
			"revision":    req.Revision,
		},
	})
	s.log.Infof("request %s assigned to %s via %s (fee %d, eta %d min)", req.ID, courierID, via, fee, est.Minutes)
	return assigned, route, nil
}

// handleOutcome applies a closed bidding session to its request.
func (s *Service) handleOutcome(out bidding.Outcome) {
	sess := out.Session
	if sess.Status != domain.SessionStatusClosedMatched && sess.Status != domain.SessionStatusClosedExpired {
		return
	}
	ctx := context.Background()
	unlock := s.locks.Lock(sess.RequestID)
	defer unlock()

	req, err := s.load(ctx, sess.RequestID)
	if err != nil {
		s.log.Errorf("bidding outcome for %s: %v", sess.RequestID, err)
		if sess.Status == domain.SessionStatusClosedMatched {
			s.registry.Release(sess.WinnerCourierID, sess.RequestID)
		}
		return
	}
	stale := req.Status != domain.RequestStatusBidding || req.Revision != sess.Revision

	switch sess.Status {
	case domain.SessionStatusClosedMatched:
		if stale {
			s.registry.Release(sess.WinnerCourierID, req.ID)
			s.log.Infof("session %s matched %s but request %s is now %s, courier released",
				sess.ID, sess.WinnerCourierID, req.ID, req.Status)
			return
		}
		var est eta.Estimate
		if c, ok := s.registry.Get(sess.WinnerCourierID); ok {
			est = s.estimator.Estimate(*req, &c, s.etaConditions(ctx, *req))
		}
		if _, _, err := s.assign(ctx, *req, sess.WinnerCourierID, sess.WinningFee, est, "bidding"); err != nil {
			s.log.Errorf("assign bidding winner for %s: %v", req.ID, err)
		}
	case domain.SessionStatusClosedExpired:
		if stale {
			return
		}
		expired := req.WithStatus(domain.RequestStatusExpired, "", s.now())
		if err := s.requests.Update(ctx, &expired); err != nil {
			s.log.Errorf("store expired request %s: %v", req.ID, err)
		}
		s.recordFailure(req.ID, out.Err)
		s.notifyCustomer(ctx, expired, notify.NotificationRequestCancelled, "No courier found",
			"No courier accepted your delivery in time. We will try again.")
	}
}

// releaseCourier frees the courier of a request and replans its route.
func (s *Service) releaseCourier(ctx context.Context, req domain.DeliveryRequest) {
	if s.geofence != nil {
		s.geofence.Disarm(req.ID)
	}
	if req.CourierID == "" {
		return
	}
	s.registry.Release(req.CourierID, req.ID)
	s.replan(ctx, req.CourierID)
}

// replan recomputes a courier's route. An infeasible batch falls back to
// solo dispatch.
func (s *Service) replan(ctx context.Context, courierID string) *domain.RouteOptimization {
	if s.router == nil {
		return nil
	}
	r, err := s.router.Optimize(ctx, courierID, nil)
	switch {
	case errors.Is(err, routing.ErrRouteInfeasible):
		s.log.Infof("courier %s dispatched solo: %v", courierID, err)
	case err != nil:
		s.log.Warnf("route for courier %s: %v", courierID, err)
		return nil
	}
	if len(r.Waypoints) == 0 {
		s.router.Forget(courierID)
		return nil
	}
	s.events.Publish(ctx, events.Event{
		Type:      events.RouteOptimized,
		CourierID: courierID,
		Data: map[string]any{
			"feasible":        r.Feasible,
			"waypoints":       len(r.Waypoints),
			"total_km":        r.TotalDistanceKm,
			"savings_km":      r.SavingsKm,
			"savings_minutes": r.SavingsMinutes,
		},
	})
	return &r
}

func (s *Service) etaConditions(ctx context.Context, req domain.DeliveryRequest) eta.Conditions {
	cond := signals.Neutral()
	if s.conditions != nil {
		cond = s.conditions.Conditions(ctx, req.Pickup.Location)
	}
	return eta.Conditions{
		Traffic:    cond.Traffic,
		Weather:    cond.Weather,
		Restaurant: s.restaurantStats(ctx, req.RestaurantID),
		Now:        s.now(),
	}
}

func (s *Service) restaurantStats(ctx context.Context, restaurantID string) *domain.RestaurantStats {
	if s.restaurants == nil || restaurantID == "" {
		return nil
	}
	stats, err := s.restaurants.GetStats(ctx, restaurantID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Warnf("restaurant %s stats: %v", restaurantID, err)
		}
		return nil
	}
	return stats
}

// lock serialises work on a request: the in-process mutex first, then the
// distributed lock shared with other instances.
func (s *Service) lock(ctx context.Context, requestID string) (func(), error) {
	unlock := s.locks.Lock(requestID)
	release, err := s.acquire(ctx, requestID)
	if err != nil {
		unlock()
		return nil, err
	}
	return func() {
		release()
		unlock()
	}, nil
}

func (s *Service) acquire(ctx context.Context, requestID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	locked, err := s.locker.AcquireRequestLock(ctx, requestID, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("request lock %s: %w", requestID, err)
	}
	if !locked {
		return nil, ErrRequestLocked
	}
	return func() {
		if err := s.locker.ReleaseRequestLock(ctx, requestID); err != nil {
			s.log.Warnf("release request lock %s: %v", requestID, err)
		}
	}, nil
}

func (s *Service) load(ctx context.Context, requestID string) (*domain.DeliveryRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("load request %s: %w", requestID, err)
	}
	return req, nil
}

func (s *Service) storeQuote(q domain.PricingQuote) {
	s.mu.Lock()
	s.quotes[q.RequestID] = q
	s.mu.Unlock()
}

// forget drops the cached quote and failure of a finished request.
func (s *Service) forget(requestID string) {
	s.mu.Lock()
	delete(s.quotes, requestID)
	delete(s.failures, requestID)
	s.mu.Unlock()
}

func (s *Service) recordFailure(requestID string, err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.failures[requestID] = err
	s.mu.Unlock()
}

func validate(req domain.DeliveryRequest) error {
	switch {
	case req.RestaurantID == "":
		return fmt.Errorf("%w: restaurant id is required", ErrInvalidRequest)
	case req.CustomerID == "":
		return fmt.Errorf("%w: customer id is required", ErrInvalidRequest)
	case !req.Pickup.Location.Valid():
		return fmt.Errorf("%w: invalid pickup location", ErrInvalidRequest)
	case !req.Dropoff.Location.Valid():
		return fmt.Errorf("%w: invalid dropoff location", ErrInvalidRequest)
	case req.Priority != "" && !req.Priority.Valid():
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidRequest, req.Priority)
	case req.OrderValue < 0:
		return fmt.Errorf("%w: negative order value", ErrInvalidRequest)
	case req.Window != nil && !req.Window.End.After(req.Window.Start):
		return fmt.Errorf("%w: time window ends before it starts", ErrInvalidRequest)
	}
	for _, v := range req.RequiredVehicles {
		if !v.Valid() {
			return fmt.Errorf("%w: unknown vehicle %q", ErrInvalidRequest, v)
		}
	}
	return nil
}
