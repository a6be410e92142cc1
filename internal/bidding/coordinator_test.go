package bidding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"dispatch/internal/domain"
	"dispatch/internal/events"
	"dispatch/internal/testutil"
)

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeRegistry struct {
	mu       sync.Mutex
	eligible []domain.CourierProfile
	refuse   map[string]bool
	reserved map[string]string // courier to request
}

func newFakeRegistry(eligible ...domain.CourierProfile) *fakeRegistry {
	return &fakeRegistry{eligible: eligible, refuse: map[string]bool{}, reserved: map[string]string{}}
}

func (f *fakeRegistry) FindEligible(context.Context, domain.DeliveryRequest) []domain.CourierProfile {
	return f.eligible
}

func (f *fakeRegistry) TryReserve(courierID, requestID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse[courierID] {
		return false
	}
	if r, ok := f.reserved[courierID]; ok && r != requestID {
		return false
	}
	f.reserved[courierID] = requestID
	return true
}

func (f *fakeRegistry) reservations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reserved)
}

type outcomes struct {
	mu  sync.Mutex
	got []Outcome
}

func (o *outcomes) record(out Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got = append(o.got, out)
}

func (o *outcomes) all() []Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Outcome(nil), o.got...)
}

type fixture struct {
	coord    *Coordinator
	clock    *testutil.Clock
	reg      *fakeRegistry
	notifier *testutil.Notifier
	events   *testutil.Events
	outcomes *outcomes
}

func newFixture(cfg Config, eligible ...domain.CourierProfile) *fixture {
	f := &fixture{
		clock:    testutil.NewClock(start),
		reg:      newFakeRegistry(eligible...),
		notifier: testutil.NewNotifier(),
		events:   &testutil.Events{},
		outcomes: &outcomes{},
	}
	f.coord = NewCoordinator(f.reg, cfg,
		WithClock(f.clock),
		WithNotifier(f.notifier),
		WithPublisher(f.events),
	)
	f.coord.OnOutcome(f.outcomes.record)
	return f
}

func request(id string) domain.DeliveryRequest {
	return domain.DeliveryRequest{ID: id, Priority: domain.PriorityNormal, Status: domain.RequestStatusBidding}
}

func quote(price int64) domain.PricingQuote {
	return domain.PricingQuote{FinalPrice: price, BasePrice: price, Multiplier: 1}
}

func TestSealedSessionPicksHighestValidBid(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()

	s, err := f.coord.Open(ctx, request("r1"), quote(25), domain.BiddingModeSealed)
	require.NoError(t, err)
	assert.Equal(t, int64(20), s.MinimumBid)
	assert.Equal(t, start.Add(DefaultSealedWindow), s.ExpiresAt)

	b, err := f.coord.SubmitBid(ctx, s.ID, "c18", 18, 10*time.Minute)
	assert.ErrorIs(t, err, ErrBidRejected)
	assert.Equal(t, domain.BidStatusRejected, b.Status)
	assert.Equal(t, ReasonBelowMinimum, b.Reason)

	b, err = f.coord.SubmitBid(ctx, s.ID, "c22", 22, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.BidStatusPending, b.Status)
	_, err = f.coord.SubmitBid(ctx, s.ID, "c25", 25, 10*time.Minute)
	require.NoError(t, err)

	f.clock.Advance(DefaultSealedWindow)

	got, err := f.coord.Session(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusClosedMatched, got.Status)
	assert.Equal(t, "c25", got.WinnerCourierID)
	assert.Equal(t, int64(25), got.WinningFee)
	assert.Equal(t, domain.BidStatusRejected, got.Bids[1].Status)
	assert.Equal(t, ReasonOutbid, got.Bids[1].Reason)
	assert.Equal(t, domain.BidStatusAccepted, got.Bids[2].Status)

	outs := f.outcomes.all()
	require.Len(t, outs, 1)
	assert.NoError(t, outs[0].Err)
	assert.Equal(t, []events.Type{events.BiddingOpened, events.BiddingClosed}, f.events.Types())
}

func TestSealedSelectionFallsThroughOnReservationFailure(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()
	f.reg.refuse["c25"] = true

	s, err := f.coord.Open(ctx, request("r1"), quote(25), domain.BiddingModeSealed)
	require.NoError(t, err)
	_, _ = f.coord.SubmitBid(ctx, s.ID, "c22", 22, 10*time.Minute)
	_, _ = f.coord.SubmitBid(ctx, s.ID, "c25", 25, 10*time.Minute)

	got, err := f.coord.Close(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "c22", got.WinnerCourierID)
	assert.Equal(t, ReasonCourierUnavailable, got.Bids[1].Reason)
	assert.Equal(t, 0, f.clock.Pending())
}

func TestSealedTieBreaksByETAThenSequence(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()

	s, _ := f.coord.Open(ctx, request("r1"), quote(25), domain.BiddingModeSealed)
	_, _ = f.coord.SubmitBid(ctx, s.ID, "slow", 24, 20*time.Minute)
	_, _ = f.coord.SubmitBid(ctx, s.ID, "first", 24, 10*time.Minute)
	_, _ = f.coord.SubmitBid(ctx, s.ID, "second", 24, 10*time.Minute)

	got, err := f.coord.Close(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.WinnerCourierID)
}

func TestSessionWithoutBidsExpires(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()

	s, _ := f.coord.Open(ctx, request("r1"), quote(1500), domain.BiddingModeSealed)
	f.clock.Advance(DefaultSealedWindow)

	got, err := f.coord.Session(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusClosedExpired, got.Status)

	outs := f.outcomes.all()
	require.Len(t, outs, 1)
	assert.True(t, errors.Is(outs[0].Err, ErrBidWindowExpired))

	var oe *OutcomeError
	require.ErrorAs(t, outs[0].Err, &oe)
	assert.Equal(t, "r1", oe.RequestID)
	assert.Equal(t, 0, oe.Factors["bids_received"])

	_, ok := f.coord.ActiveFor("r1")
	assert.False(t, ok)
}

func TestExpiryFiresOnceAfterEarlyClose(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()

	s, _ := f.coord.Open(ctx, request("r1"), quote(25), domain.BiddingModeSealed)
	_, _ = f.coord.SubmitBid(ctx, s.ID, "c1", 25, time.Minute)
	_, err := f.coord.Close(ctx, s.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.coord.Close(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Len(t, f.outcomes.all(), 1)
	assert.Equal(t, 1, f.events.Count(events.BiddingClosed))
}

func TestFCFSSimultaneousBidsOnlyOneAccepted(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()

	s, err := f.coord.Open(ctx, request("r1"), quote(1500), domain.BiddingModeFCFS)
	require.NoError(t, err)
	assert.Equal(t, start.Add(DefaultFCFSWindow), s.ExpiresAt)

	var wg sync.WaitGroup
	results := make([]domain.Bid, 2)
	for i, courier := range []string{"X", "Y"} {
		wg.Add(1)
		go func(i int, courier string) {
			defer wg.Done()
			results[i], _ = f.coord.SubmitBid(ctx, s.ID, courier, 1500, 10*time.Minute)
		}(i, courier)
	}
	wg.Wait()

	accepted, rejected := 0, 0
	for _, b := range results {
		switch b.Status {
		case domain.BidStatusAccepted:
			accepted++
		case domain.BidStatusRejected:
			rejected++
			assert.Equal(t, ReasonSessionClosed, b.Reason)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 1, f.reg.reservations())
	assert.NotEqual(t, results[0].Seq, results[1].Seq)
}

func TestFCFSUnavailableCourierDoesNotCloseSession(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()
	f.reg.refuse["busy"] = true

	s, _ := f.coord.Open(ctx, request("r1"), quote(1500), domain.BiddingModeFCFS)
	b, err := f.coord.SubmitBid(ctx, s.ID, "busy", 1500, time.Minute)
	assert.ErrorIs(t, err, ErrBidRejected)
	assert.Equal(t, ReasonCourierUnavailable, b.Reason)

	_, ok := f.coord.ActiveFor("r1")
	assert.True(t, ok)

	b, err = f.coord.SubmitBid(ctx, s.ID, "free", 1500, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.BidStatusAccepted, b.Status)
}

func TestBidValidation(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()
	s, _ := f.coord.Open(ctx, request("r1"), quote(1000), domain.BiddingModeSealed)

	b, err := f.coord.SubmitBid(ctx, s.ID, "c1", 2500, time.Minute)
	assert.ErrorIs(t, err, ErrBidRejected)
	assert.Equal(t, ReasonAboveMaximum, b.Reason)

	_, err = f.coord.SubmitBid(ctx, s.ID, "c1", 1000, time.Minute)
	require.NoError(t, err)
	b, _ = f.coord.SubmitBid(ctx, s.ID, "c1", 1100, time.Minute)
	assert.Equal(t, ReasonDuplicate, b.Reason)

	b, _ = f.coord.SubmitBid(ctx, s.ID, "", 1000, time.Minute)
	assert.Equal(t, ReasonInvalid, b.Reason)

	_, err = f.coord.SubmitBid(ctx, "missing", "c1", 1000, time.Minute)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLateBidIsExpiredAfterMatch(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()

	s, _ := f.coord.Open(ctx, request("r1"), quote(1500), domain.BiddingModeFCFS)
	_, err := f.coord.SubmitBid(ctx, s.ID, "c1", 1500, time.Minute)
	require.NoError(t, err)

	f.clock.Advance(DefaultFCFSWindow + time.Second)
	b, err := f.coord.SubmitBid(ctx, s.ID, "c2", 1500, time.Minute)
	assert.ErrorIs(t, err, ErrBidWindowExpired)
	assert.Equal(t, domain.BidStatusExpired, b.Status)
}

func TestEarlyCloseOnGoodEnoughBid(t *testing.T) {
	f := newFixture(Config{EarlyClose: true})
	ctx := context.Background()

	s, _ := f.coord.Open(ctx, request("r1"), quote(1500), domain.BiddingModeSealed, WithTargetETA(20*time.Minute))
	b, _ := f.coord.SubmitBid(ctx, s.ID, "slow", 1500, 30*time.Minute)
	assert.Equal(t, domain.BidStatusPending, b.Status)

	b, err := f.coord.SubmitBid(ctx, s.ID, "fast", 1500, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.BidStatusAccepted, b.Status)

	got, _ := f.coord.Session(ctx, s.ID)
	assert.Equal(t, domain.SessionStatusClosedMatched, got.Status)
	assert.Equal(t, "fast", got.WinnerCourierID)
}

func TestCancelActiveSession(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()

	s, _ := f.coord.Open(ctx, request("r1"), quote(1500), domain.BiddingModeSealed)
	_, _ = f.coord.SubmitBid(ctx, s.ID, "c1", 1500, time.Minute)

	got, err := f.coord.Cancel(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusCancelled, got.Status)
	assert.Equal(t, ReasonSessionCancelled, got.Bids[0].Reason)
	assert.Equal(t, 0, f.clock.Pending())
	assert.Equal(t, 0, f.reg.reservations())

	_, err = f.coord.Cancel(ctx, "r1")
	assert.ErrorIs(t, err, ErrNoActiveSession)

	b, err := f.coord.SubmitBid(ctx, s.ID, "c2", 1500, time.Minute)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, ReasonSessionClosed, b.Reason)
}

func TestOpenReplacesActiveSession(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()

	first, _ := f.coord.Open(ctx, request("r1"), quote(1500), domain.BiddingModeSealed)
	second, err := f.coord.Open(ctx, request("r1"), quote(1800), domain.BiddingModeSealed)
	require.NoError(t, err)

	old, _ := f.coord.Session(ctx, first.ID)
	assert.Equal(t, domain.SessionStatusCancelled, old.Status)

	active, ok := f.coord.ActiveFor("r1")
	require.True(t, ok)
	assert.Equal(t, second.ID, active.ID)
	assert.Equal(t, 1, f.clock.Pending())
}

func TestOpenBroadcastsToEligibleCouriers(t *testing.T) {
	picky := domain.CourierProfile{ID: "picky", Preferences: domain.CourierPreferences{MinFee: 5000}}
	f := newFixture(Config{}, domain.CourierProfile{ID: "a"}, domain.CourierProfile{ID: "b"}, picky)
	ctx := context.Background()

	_, err := f.coord.Open(ctx, request("r1"), quote(1500), domain.BiddingModeSealed)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, f.notifier.OfferedTo())

	opened := f.events.All()[0]
	assert.Equal(t, events.BiddingOpened, opened.Type)
	assert.Equal(t, 2, opened.Data["invited"])
}

func TestOpenRejectsUnknownMode(t *testing.T) {
	f := newFixture(Config{})
	_, err := f.coord.Open(context.Background(), request("r1"), quote(1500), "auction")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestModeFor(t *testing.T) {
	assert.Equal(t, domain.BiddingModeFCFS, ModeFor(domain.PrioritySuperUrgent))
	assert.Equal(t, domain.BiddingModeSealed, ModeFor(domain.PriorityExpress))
	assert.Equal(t, domain.BiddingModeSealed, ModeFor(domain.PriorityNormal))
}

func TestLateBidIsExpiredAfterSessionLeavesMemory(t *testing.T) {
	f := newFixture(Config{})
	ctx := context.Background()

	s, err := f.coord.Open(ctx, request("r1"), quote(1500), domain.BiddingModeSealed)
	require.NoError(t, err)
	f.clock.Advance(DefaultSealedWindow + time.Minute)

	b, err := f.coord.SubmitBid(ctx, s.ID, "c1", 1500, time.Minute)
	assert.ErrorIs(t, err, ErrBidWindowExpired)
	assert.Equal(t, domain.BidStatusExpired, b.Status)

	// opening another session prunes the closed one
	f.clock.Advance(retention + time.Minute)
	_, err = f.coord.Open(ctx, request("r2"), quote(1500), domain.BiddingModeSealed)
	require.NoError(t, err)
	_, ok := f.coord.lookup(s.ID)
	require.False(t, ok)

	b, err = f.coord.SubmitBid(ctx, s.ID, "c1", 1500, time.Minute)
	assert.ErrorIs(t, err, ErrBidWindowExpired)
	assert.Equal(t, domain.BidStatusExpired, b.Status)
	assert.Equal(t, ReasonWindowExpired, b.Reason)
	assert.Equal(t, s.ID, b.SessionID)

	got, err := f.coord.Session(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusClosedExpired, got.Status)
}

func TestMinimumBidFollowsConfiguredRatio(t *testing.T) {
	assert.EqualValues(t, 2000, newFixture(Config{}).coord.MinimumBid(quote(2500)))
	assert.EqualValues(t, 1500, newFixture(Config{MinimumBidRatio: 0.6}).coord.MinimumBid(quote(2500)))
}

func TestSessionLookupMisses(t *testing.T) {
	f := newFixture(Config{})
	_, err := f.coord.Session(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestBidExpiryMonotonicity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mode := rapid.SampledFrom([]domain.BiddingMode{domain.BiddingModeSealed, domain.BiddingModeFCFS}).Draw(t, "mode")
		f := newFixture(Config{})
		ctx := context.Background()
		s, err := f.coord.Open(ctx, request("r1"), quote(1000), mode)
		if err != nil {
			t.Fatalf("open: %v", err)
		}

		steps := rapid.SliceOfN(rapid.IntRange(0, 240), 1, 20).Draw(t, "steps")
		accepted := 0
		for i, step := range steps {
			f.clock.Advance(time.Duration(step) * time.Second)
			fee := rapid.Int64Range(700, 2100).Draw(t, "fee")
			b, _ := f.coord.SubmitBid(ctx, s.ID, string(rune('a'+i)), fee, time.Minute)

			late := f.clock.Now().After(s.ExpiresAt)
			if late != (b.Status == domain.BidStatusExpired) {
				t.Fatalf("bid at %v: late=%v status=%s", f.clock.Now().Sub(start), late, b.Status)
			}
			if b.Status == domain.BidStatusAccepted {
				accepted++
			}
		}
		got, _ := f.coord.Session(ctx, s.ID)
		for _, b := range got.Bids {
			if b.Status == domain.BidStatusAccepted && b.SubmittedAt.After(s.ExpiresAt) {
				t.Fatalf("late bid %s accepted", b.ID)
			}
		}
		if mode == domain.BiddingModeFCFS && accepted > 1 {
			t.Fatalf("%d FCFS bids accepted", accepted)
		}
	})
}

func TestSingleActiveSessionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(Config{})
		ctx := context.Background()
		requests := []string{"r1", "r2", "r3"}
		var created []string

		ops := rapid.SliceOfN(rapid.IntRange(0, 2), 1, 30).Draw(t, "ops")
		for _, op := range ops {
			req := rapid.SampledFrom(requests).Draw(t, "request")
			switch op {
			case 0:
				s, err := f.coord.Open(ctx, request(req), quote(1000), domain.BiddingModeSealed)
				if err != nil {
					t.Fatalf("open: %v", err)
				}
				created = append(created, s.ID)
			case 1:
				_, _ = f.coord.Cancel(ctx, req)
			case 2:
				f.clock.Advance(time.Duration(rapid.IntRange(0, 400).Draw(t, "advance")) * time.Second)
			}

			active := map[string]int{}
			for _, id := range created {
				s, err := f.coord.Session(ctx, id)
				if err != nil {
					t.Fatalf("session %s: %v", id, err)
				}
				if s.Status == domain.SessionStatusActive {
					active[s.RequestID]++
				}
			}
			for r, n := range active {
				if n > 1 {
					t.Fatalf("request %s has %d active sessions", r, n)
				}
			}
		}
	})
}
