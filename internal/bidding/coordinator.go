// Package bidding runs time-bounded negotiation rounds for requests that
// were not matched automatically. Sessions are state machines driven by
// bid arrivals and timer callbacks; no goroutine waits on a session.
package bidding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"

	"dispatch/internal/domain"
	"dispatch/internal/events"
	"dispatch/internal/logger"
	"dispatch/internal/notify"
	"dispatch/internal/repository"
	"dispatch/internal/repository/memory"
)

const (
	DefaultSealedWindow = 5 * time.Minute
	DefaultFCFSWindow   = 10 * time.Minute

	defaultMinimumBidRatio = 0.8
	defaultMaxBidRatio     = 2.0
	retention              = 30 * time.Minute
)

// Bid rejection reasons.
const (
	ReasonWindowExpired      = "window_expired"
	ReasonSessionClosed      = "session_closed"
	ReasonSessionCancelled   = "session_cancelled"
	ReasonInvalid            = "invalid_bid"
	ReasonDuplicate          = "duplicate_bid"
	ReasonBelowMinimum       = "below_minimum"
	ReasonAboveMaximum       = "above_maximum"
	ReasonCourierUnavailable = "courier_unavailable"
	ReasonOutbid             = "outbid"
)

// Registry is the part of the courier registry bidding needs.
type Registry interface {
	FindEligible(ctx context.Context, req domain.DeliveryRequest) []domain.CourierProfile
	TryReserve(courierID, requestID string) bool
}

// Config tunes session windows and bid bounds.
type Config struct {
	SealedWindow    time.Duration
	FCFSWindow      time.Duration
	MinimumBidRatio float64
	MaxBidRatio     float64
	EarlyClose      bool
}

func (c *Config) defaults() {
	if c.SealedWindow <= 0 {
		c.SealedWindow = DefaultSealedWindow
	}
	if c.FCFSWindow <= 0 {
		c.FCFSWindow = DefaultFCFSWindow
	}
	if c.MinimumBidRatio <= 0 {
		c.MinimumBidRatio = defaultMinimumBidRatio
	}
	if c.MaxBidRatio <= 0 {
		c.MaxBidRatio = defaultMaxBidRatio
	}
}

// Outcome is delivered to the outcome callback whenever a session leaves
// the active state. Err is an *OutcomeError when no bid won.
type Outcome struct {
	Session domain.BiddingSession
	Err     error
}

type session struct {
	mu     sync.Mutex
	data   domain.BiddingSession
	ranked *btree.BTreeG[rankedBid]
	stop   func() bool
}

// Coordinator owns all bidding sessions.
type Coordinator struct {
	mu        sync.Mutex // guards sessions, active and onOutcome; taken before any session lock
	sessions  map[string]*session
	active    map[string]string // request ID to session ID
	onOutcome func(Outcome)

	seq      atomic.Uint64
	registry Registry
	notifier notify.Notifier
	repo     repository.SessionRepository
	events   events.Publisher
	clock    Clock
	cfg      Config
	log      logger.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithNotifier(n notify.Notifier) Option { return func(c *Coordinator) { c.notifier = n } }

func WithRepository(r repository.SessionRepository) Option {
	return func(c *Coordinator) { c.repo = r }
}

func WithPublisher(p events.Publisher) Option { return func(c *Coordinator) { c.events = p } }

func WithClock(clk Clock) Option { return func(c *Coordinator) { c.clock = clk } }

func WithLogger(l logger.Logger) Option { return func(c *Coordinator) { c.log = l } }

// NewCoordinator creates a Coordinator.
func NewCoordinator(reg Registry, cfg Config, opts ...Option) *Coordinator {
	cfg.defaults()
	c := &Coordinator{
		sessions: make(map[string]*session),
		active:   make(map[string]string),
		registry: reg,
		cfg:      cfg,
		clock:    systemClock{},
		events:   events.Nop{},
		log:      logger.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = notify.NewLogNotifier(c.log)
	}
	if c.repo == nil {
		c.repo = memory.NewSessionRepository()
	}
	return c
}

// OnOutcome registers the callback invoked after a session closes.
func (c *Coordinator) OnOutcome(fn func(Outcome)) {
	c.mu.Lock()
	c.onOutcome = fn
	c.mu.Unlock()
}

// ModeFor picks FCFS for the most urgent requests and sealed bidding
// otherwise.
func ModeFor(p domain.Priority) domain.BiddingMode {
	if p == domain.PrioritySuperUrgent {
		return domain.BiddingModeFCFS
	}
	return domain.BiddingModeSealed
}

// MinimumBid derives the lowest acceptable fee from a quote.
func (c *Coordinator) MinimumBid(q domain.PricingQuote) int64 {
	return int64(math.Round(float64(q.FinalPrice) * c.cfg.MinimumBidRatio))
}

func (c *Coordinator) window(mode domain.BiddingMode) time.Duration {
	if mode == domain.BiddingModeFCFS {
		return c.cfg.FCFSWindow
	}
	return c.cfg.SealedWindow
}

type openOptions struct {
	targetETA time.Duration
}

// OpenOption adjusts a new session.
type OpenOption func(*openOptions)

// WithTargetETA sets the ETA a bid must meet to close a sealed session
// early.
func WithTargetETA(d time.Duration) OpenOption {
	return func(o *openOptions) { o.targetETA = d }
}

// Open starts a session for req, cancelling any session still active for
// the same request, and broadcasts the offer to eligible couriers.
func (c *Coordinator) Open(ctx context.Context, req domain.DeliveryRequest, quote domain.PricingQuote, mode domain.BiddingMode, opts ...OpenOption) (domain.BiddingSession, error) {
	if mode != domain.BiddingModeSealed && mode != domain.BiddingModeFCFS {
		return domain.BiddingSession{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	now := c.clock.Now()
	window := c.window(mode)
	st := &session{
		data: domain.BiddingSession{
			ID:          uuid.New().String(),
			RequestID:   req.ID,
			Revision:    req.Revision,
			Mode:        mode,
			MinimumBid:  c.MinimumBid(quote),
			QuotedPrice: quote.FinalPrice,
			TargetETA:   o.targetETA,
			CreatedAt:   now,
			ExpiresAt:   now.Add(window),
			Bids:        []domain.Bid{},
			Status:      domain.SessionStatusActive,
		},
		ranked: newRanking(),
	}
	st.stop = c.clock.AfterFunc(window, func() { c.expire(st) })

	var replaced *Outcome
	c.mu.Lock()
	c.prune(now)
	if prevID, ok := c.active[req.ID]; ok {
		if prev := c.sessions[prevID]; prev != nil {
			prev.mu.Lock()
			if prev.data.Status == domain.SessionStatusActive {
				c.cancelLocked(prev, now)
				c.persist(ctx, prev)
				replaced = &Outcome{Session: prev.data.Clone()}
			}
			prev.mu.Unlock()
		}
	}
	c.sessions[st.data.ID] = st
	c.active[req.ID] = st.data.ID
	c.mu.Unlock()

	if replaced != nil {
		c.log.Infof("session %s replaced by %s for request %s", replaced.Session.ID, st.data.ID, req.ID)
		c.finish(ctx, *replaced)
	}

	st.mu.Lock()
	c.persist(ctx, st)
	snapshot := st.data.Clone()
	st.mu.Unlock()

	invited := c.broadcast(ctx, req, snapshot)
	c.events.Publish(ctx, events.Event{
		Type:      events.BiddingOpened,
		RequestID: req.ID,
		SessionID: snapshot.ID,
		Data: map[string]any{
			"mode":         string(mode),
			"minimum_bid":  snapshot.MinimumBid,
			"quoted_price": snapshot.QuotedPrice,
			"expires_at":   snapshot.ExpiresAt,
			"invited":      invited,
		},
	})
	c.log.Infof("bidding session %s opened for request %s (%s, %d invited)", snapshot.ID, req.ID, mode, invited)
	return snapshot, nil
}

func (c *Coordinator) broadcast(ctx context.Context, req domain.DeliveryRequest, s domain.BiddingSession) int {
	var ids []string
	for _, p := range c.registry.FindEligible(ctx, req) {
		if p.Preferences.MinFee > s.QuotedPrice {
			continue
		}
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		return 0
	}
	offer := notify.Offer{
		SessionID:   s.ID,
		RequestID:   s.RequestID,
		Mode:        s.Mode,
		MinimumBid:  s.MinimumBid,
		QuotedPrice: s.QuotedPrice,
		Pickup:      req.Pickup.Location,
		Dropoff:     req.Dropoff.Location,
		ExpiresAt:   s.ExpiresAt,
	}
	if err := c.notifier.NotifyCouriers(ctx, ids, offer); err != nil {
		c.log.Warnf("broadcast for session %s incomplete: %v", s.ID, err)
	}
	return len(ids)
}

// SubmitBid records a bid. Every bid gets a sequence number from a single
// counter, and all decisions for a session are made in that order. The
// returned bid carries its final status; a non-nil error explains a
// rejected or expired bid.
func (c *Coordinator) SubmitBid(ctx context.Context, sessionID, courierID string, fee int64, eta time.Duration) (domain.Bid, error) {
	st, ok := c.lookup(sessionID)
	if !ok {
		return c.bidOnArchived(ctx, sessionID, courierID, fee, eta)
	}

	st.mu.Lock()
	now := c.clock.Now()
	s := &st.data
	bid := domain.Bid{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		CourierID:   courierID,
		Fee:         fee,
		ETA:         eta,
		SubmittedAt: now,
		Seq:         c.seq.Add(1),
		Status:      domain.BidStatusPending,
	}
	idx := len(s.Bids)

	var (
		err    error
		closed bool
	)
	reject := func(reason string, cause error) {
		bid.Status = domain.BidStatusRejected
		bid.Reason = reason
		err = fmt.Errorf("%w: %s", cause, reason)
	}

	switch {
	case now.After(s.ExpiresAt):
		bid.Status = domain.BidStatusExpired
		bid.Reason = ReasonWindowExpired
		err = fmt.Errorf("session %s: %w", sessionID, ErrBidWindowExpired)
	case s.Status != domain.SessionStatusActive:
		reject(ReasonSessionClosed, ErrSessionClosed)
	case courierID == "" || eta < 0:
		reject(ReasonInvalid, ErrBidRejected)
	case hasOpenBid(s.Bids, courierID):
		reject(ReasonDuplicate, ErrBidRejected)
	case fee < s.MinimumBid:
		reject(ReasonBelowMinimum, ErrBidRejected)
	case fee > c.maximumBid(s.QuotedPrice):
		reject(ReasonAboveMaximum, ErrBidRejected)
	case s.Mode == domain.BiddingModeFCFS:
		if c.registry.TryReserve(courierID, s.RequestID) {
			bid.Status = domain.BidStatusAccepted
		} else {
			reject(ReasonCourierUnavailable, ErrBidRejected)
		}
	}
	s.Bids = append(s.Bids, bid)

	switch {
	case bid.Status == domain.BidStatusExpired && s.Status == domain.SessionStatusActive:
		// the timer has not fired yet; the window is over regardless
		c.settle(st, now)
		closed = true
	case bid.Status == domain.BidStatusAccepted:
		c.closeMatched(st, idx, now)
		closed = true
	case bid.Status == domain.BidStatusPending:
		st.ranked.ReplaceOrInsert(rankedBid{fee: fee, eta: eta, seq: bid.Seq, idx: idx})
		if c.cfg.EarlyClose && c.goodEnough(s, fee, eta) {
			c.settle(st, now)
			closed = true
		}
	}

	c.persist(ctx, st)
	result := s.Bids[idx]
	outcome := c.outcome(st)
	st.mu.Unlock()

	if closed {
		c.finish(ctx, outcome)
	}
	return result, err
}

// bidOnArchived answers a bid on a session that was pruned from memory.
// Such a session is closed, so the bid is never recorded.
func (c *Coordinator) bidOnArchived(ctx context.Context, sessionID, courierID string, fee int64, eta time.Duration) (domain.Bid, error) {
	s, err := c.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Bid{}, ErrSessionNotFound
		}
		return domain.Bid{}, err
	}
	now := c.clock.Now()
	bid := domain.Bid{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		CourierID:   courierID,
		Fee:         fee,
		ETA:         eta,
		SubmittedAt: now,
		Seq:         c.seq.Add(1),
	}
	if now.After(s.ExpiresAt) {
		bid.Status = domain.BidStatusExpired
		bid.Reason = ReasonWindowExpired
		return bid, fmt.Errorf("session %s: %w", sessionID, ErrBidWindowExpired)
	}
	bid.Status = domain.BidStatusRejected
	bid.Reason = ReasonSessionClosed
	return bid, fmt.Errorf("%w: %s", ErrSessionClosed, ReasonSessionClosed)
}

func (c *Coordinator) maximumBid(quoted int64) int64 {
	return int64(math.Round(float64(quoted) * c.cfg.MaxBidRatio))
}

func (c *Coordinator) goodEnough(s *domain.BiddingSession, fee int64, eta time.Duration) bool {
	if fee < s.QuotedPrice {
		return false
	}
	return s.TargetETA <= 0 || eta <= s.TargetETA
}

func hasOpenBid(bids []domain.Bid, courierID string) bool {
	for _, b := range bids {
		if b.CourierID == courierID && (b.Status == domain.BidStatusPending || b.Status == domain.BidStatusAccepted) {
			return true
		}
	}
	return false
}

// Close ends an active session now and selects the best bid. It returns
// an *OutcomeError when no bid could be matched.
func (c *Coordinator) Close(ctx context.Context, sessionID string) (domain.BiddingSession, error) {
	st, ok := c.lookup(sessionID)
	if !ok {
		return domain.BiddingSession{}, ErrSessionNotFound
	}

	st.mu.Lock()
	if st.data.Status != domain.SessionStatusActive {
		snapshot := st.data.Clone()
		st.mu.Unlock()
		return snapshot, ErrSessionClosed
	}
	c.settle(st, c.clock.Now())
	c.persist(ctx, st)
	out := c.outcome(st)
	st.mu.Unlock()

	c.finish(ctx, out)
	return out.Session, out.Err
}

// Cancel moves the active session of a request to cancelled.
func (c *Coordinator) Cancel(ctx context.Context, requestID string) (domain.BiddingSession, error) {
	c.mu.Lock()
	id, ok := c.active[requestID]
	st := c.sessions[id]
	if !ok || st == nil {
		c.mu.Unlock()
		return domain.BiddingSession{}, ErrNoActiveSession
	}
	st.mu.Lock()
	if st.data.Status != domain.SessionStatusActive {
		st.mu.Unlock()
		c.mu.Unlock()
		return domain.BiddingSession{}, ErrNoActiveSession
	}
	c.cancelLocked(st, c.clock.Now())
	c.persist(ctx, st)
	out := c.outcome(st)
	st.mu.Unlock()
	c.mu.Unlock()

	c.finish(ctx, out)
	return out.Session, nil
}

// cancelLocked requires st.mu.
func (c *Coordinator) cancelLocked(st *session, now time.Time) {
	s := &st.data
	for i := range s.Bids {
		if s.Bids[i].Status == domain.BidStatusPending {
			s.Bids[i].Status = domain.BidStatusRejected
			s.Bids[i].Reason = ReasonSessionCancelled
		}
	}
	s.Status = domain.SessionStatusCancelled
	s.ClosedAt = now
	st.ranked.Clear(false)
	st.stop()
}

// expire is the timer callback. A session that already left the active
// state is left alone.
func (c *Coordinator) expire(st *session) {
	st.mu.Lock()
	if st.data.Status != domain.SessionStatusActive {
		st.mu.Unlock()
		return
	}
	ctx := context.Background()
	c.settle(st, c.clock.Now())
	c.persist(ctx, st)
	out := c.outcome(st)
	st.mu.Unlock()

	c.finish(ctx, out)
}

// settle walks pending bids best first and accepts the first whose
// courier can still be reserved. Requires st.mu.
func (c *Coordinator) settle(st *session, now time.Time) {
	s := &st.data
	winner := -1
	st.ranked.Ascend(func(rb rankedBid) bool {
		b := &s.Bids[rb.idx]
		if b.Status != domain.BidStatusPending {
			return true
		}
		switch {
		case winner >= 0:
			b.Status = domain.BidStatusRejected
			b.Reason = ReasonOutbid
		case c.registry.TryReserve(b.CourierID, s.RequestID):
			b.Status = domain.BidStatusAccepted
			winner = rb.idx
		default:
			b.Status = domain.BidStatusRejected
			b.Reason = ReasonCourierUnavailable
		}
		return true
	})
	st.ranked.Clear(false)

	if winner >= 0 {
		c.closeMatched(st, winner, now)
		return
	}
	s.Status = domain.SessionStatusClosedExpired
	s.ClosedAt = now
	st.stop()
}

// closeMatched requires st.mu.
func (c *Coordinator) closeMatched(st *session, winner int, now time.Time) {
	s := &st.data
	w := s.Bids[winner]
	for i := range s.Bids {
		if i != winner && s.Bids[i].Status == domain.BidStatusPending {
			s.Bids[i].Status = domain.BidStatusRejected
			s.Bids[i].Reason = ReasonOutbid
		}
	}
	s.Status = domain.SessionStatusClosedMatched
	s.WinnerCourierID = w.CourierID
	s.WinningFee = w.Fee
	s.ClosedAt = now
	st.ranked.Clear(false)
	st.stop()
}

// outcome requires st.mu.
func (c *Coordinator) outcome(st *session) Outcome {
	out := Outcome{Session: st.data.Clone()}
	if st.data.Status == domain.SessionStatusClosedExpired {
		valid := 0
		for _, b := range st.data.Bids {
			if b.Reason == ReasonCourierUnavailable || b.Reason == ReasonOutbid {
				valid++
			}
		}
		out.Err = &OutcomeError{
			SessionID: st.data.ID,
			RequestID: st.data.RequestID,
			Factors: map[string]any{
				"mode":          string(st.data.Mode),
				"bids_received": len(st.data.Bids),
				"valid_bids":    valid,
				"minimum_bid":   st.data.MinimumBid,
				"quoted_price":  st.data.QuotedPrice,
			},
		}
	}
	return out
}

// persist requires st.mu so saves reach the repository in transition
// order.
func (c *Coordinator) persist(ctx context.Context, st *session) {
	s := st.data.Clone()
	if err := c.repo.Save(ctx, &s); err != nil {
		c.log.Errorf("failed to save session %s: %v", s.ID, err)
	}
}

// finish publishes the closing event and runs the outcome callback. It
// must be called without holding any session lock.
func (c *Coordinator) finish(ctx context.Context, out Outcome) {
	s := out.Session
	if s.Status == domain.SessionStatusActive {
		return
	}
	c.mu.Lock()
	if c.active[s.RequestID] == s.ID {
		delete(c.active, s.RequestID)
	}
	fn := c.onOutcome
	c.mu.Unlock()

	c.events.Publish(ctx, events.Event{
		Type:      events.BiddingClosed,
		RequestID: s.RequestID,
		CourierID: s.WinnerCourierID,
		SessionID: s.ID,
		Data: map[string]any{
			"status":      string(s.Status),
			"mode":        string(s.Mode),
			"bids":        len(s.Bids),
			"winning_fee": s.WinningFee,
		},
	})
	if out.Err != nil {
		c.log.Warnf("%v", out.Err)
	} else {
		c.log.Infof("bidding session %s closed as %s", s.ID, s.Status)
	}
	if fn != nil {
		fn(out)
	}
}

func (c *Coordinator) lookup(id string) (*session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.sessions[id]
	return st, ok
}

// prune drops closed sessions from memory after the retention period.
// They stay readable through the repository. Requires c.mu.
func (c *Coordinator) prune(now time.Time) {
	for id, st := range c.sessions {
		if !st.mu.TryLock() {
			continue
		}
		drop := st.data.Status != domain.SessionStatusActive && now.Sub(st.data.ClosedAt) > retention
		st.mu.Unlock()
		if drop {
			delete(c.sessions, id)
		}
	}
}

// Session returns a session by ID.
func (c *Coordinator) Session(ctx context.Context, id string) (domain.BiddingSession, error) {
	if st, ok := c.lookup(id); ok {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.data.Clone(), nil
	}
	s, err := c.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.BiddingSession{}, ErrSessionNotFound
		}
		return domain.BiddingSession{}, err
	}
	return *s, nil
}

// ActiveFor returns the active session of a request, if any.
func (c *Coordinator) ActiveFor(requestID string) (domain.BiddingSession, bool) {
	c.mu.Lock()
	st := c.sessions[c.active[requestID]]
	c.mu.Unlock()
	if st == nil {
		return domain.BiddingSession{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.data.Status != domain.SessionStatusActive {
		return domain.BiddingSession{}, false
	}
	return st.data.Clone(), true
}
