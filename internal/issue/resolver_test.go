package issue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch/internal/domain"
	"dispatch/internal/events"
	"dispatch/internal/notify"
	"dispatch/internal/repository/memory"
	"dispatch/internal/testutil"
)

type fakeReassigner struct {
	calls [][2]string
	next  string
	err   error
}

func (f *fakeReassigner) Reassign(_ context.Context, requestID, fromCourierID string) (string, error) {
	f.calls = append(f.calls, [2]string{requestID, fromCourierID})
	return f.next, f.err
}

type fixture struct {
	resolver   *Resolver
	issues     *memory.IssueRepository
	notifier   *testutil.Notifier
	events     *testutil.Events
	reassigner *fakeReassigner
}

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	requests := memory.NewRequestRepository()
	require.NoError(t, requests.Create(context.Background(), &domain.DeliveryRequest{
		ID:           "r1",
		CustomerID:   "cust-1",
		RestaurantID: "rest-1",
		Priority:     domain.PriorityNormal,
		Status:       domain.RequestStatusInTransit,
		CourierID:    "c1",
	}))
	f := &fixture{
		issues:     memory.NewIssueRepository(),
		notifier:   testutil.NewNotifier(),
		events:     &testutil.Events{},
		reassigner: &fakeReassigner{next: "c2"},
	}
	f.resolver = NewResolver(f.issues, requests,
		WithNotifier(f.notifier),
		WithReassigner(f.reassigner),
		WithPublisher(f.events),
		WithClock(func() time.Time { return now }),
	)
	return f
}

func report(sev domain.Severity, typ domain.IssueType) domain.DeliveryIssue {
	return domain.DeliveryIssue{
		CourierID: "c1",
		RequestID: "r1",
		Type:      typ,
		Severity:  sev,
		Location:  domain.Location{Lat: 25.2, Lng: 55.27},
	}
}

func TestDecisionTable(t *testing.T) {
	tests := []struct {
		severity domain.Severity
		action   domain.ResolutionAction
		wait     time.Duration
	}{
		{domain.SeverityLow, domain.ResolutionRetry, 5 * time.Minute},
		{domain.SeverityMedium, domain.ResolutionWait, 15 * time.Minute},
		{domain.SeverityHigh, domain.ResolutionReassign, 0},
		{domain.SeverityCritical, domain.ResolutionReassign, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			action, wait := Decide(tt.severity)
			assert.Equal(t, tt.action, action)
			assert.Equal(t, tt.wait, wait)
		})
	}
}

func TestLowSeverityRetriesAndNotifiesCustomer(t *testing.T) {
	f := newFixture(t)

	res, err := f.resolver.Report(context.Background(), report(domain.SeverityLow, domain.IssueCustomerNoShow))
	require.NoError(t, err)

	assert.Equal(t, domain.ResolutionRetry, res.Action)
	assert.Equal(t, 5*time.Minute, res.WaitFor)
	assert.False(t, res.Escalated)
	assert.Equal(t, now, res.DecidedAt)
	assert.Empty(t, f.reassigner.calls)
	assert.Equal(t, []notify.NotificationType{notify.NotificationIssueUpdate}, f.notifier.CustomerTypes("cust-1"))
	assert.Zero(t, f.notifier.EscalationCount())
}

func TestMediumSeverityWaits(t *testing.T) {
	f := newFixture(t)

	res, err := f.resolver.Report(context.Background(), report(domain.SeverityMedium, domain.IssueRestaurantDelay))
	require.NoError(t, err)

	assert.Equal(t, domain.ResolutionWait, res.Action)
	assert.Equal(t, 15*time.Minute, res.WaitFor)
	assert.Len(t, f.notifier.CustomerTypes("cust-1"), 1)
	assert.Empty(t, f.reassigner.calls)
}

func TestCriticalIssueReassignsAndEscalates(t *testing.T) {
	f := newFixture(t)

	res, err := f.resolver.Report(context.Background(), report(domain.SeverityCritical, domain.IssueAccident))
	require.NoError(t, err)

	assert.Equal(t, domain.ResolutionReassign, res.Action)
	assert.True(t, res.Escalated)
	assert.Equal(t, "c2", res.NewCourier)
	assert.Equal(t, [][2]string{{"r1", "c1"}}, f.reassigner.calls)
	assert.Equal(t, 1, f.notifier.EscalationCount())

	require.Equal(t, 1, f.events.Count(events.DeliveryIssue))
	ev := f.events.All()[0]
	assert.Equal(t, "r1", ev.RequestID)
	assert.Equal(t, "critical", ev.Data["severity"])
	assert.Equal(t, "reassign", ev.Data["action"])
	assert.Equal(t, true, ev.Data["escalated"])

	stored, err := f.resolver.History(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.NotNil(t, stored[0].Resolution)
	assert.Equal(t, "c2", stored[0].Resolution.NewCourier)
	assert.Equal(t, now, stored[0].ReportedAt)
	assert.NotEmpty(t, stored[0].ID)
}

func TestReassignmentToBidding(t *testing.T) {
	f := newFixture(t)
	f.reassigner.next = ""

	res, err := f.resolver.Report(context.Background(), report(domain.SeverityHigh, domain.IssueVehicleBreakdown))
	require.NoError(t, err)

	assert.Empty(t, res.NewCourier)
	assert.Equal(t, "resubmitted for bidding", res.Outcome)
}

func TestFailedReassignmentStillEscalates(t *testing.T) {
	f := newFixture(t)
	f.reassigner.err = errors.New("registry offline")

	res, err := f.resolver.Report(context.Background(), report(domain.SeverityHigh, domain.IssueCourierUnreachable))
	require.NoError(t, err)

	assert.True(t, res.Escalated)
	assert.Contains(t, res.Outcome, "registry offline")
	assert.Equal(t, 1, f.notifier.EscalationCount())
	assert.Equal(t, 1, f.events.Count(events.DeliveryIssue))
}

func TestReportValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := report("severe", domain.IssueAccident)
	_, err := f.resolver.Report(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidIssue)

	bad = report(domain.SeverityLow, domain.IssueAccident)
	bad.CourierID = ""
	_, err = f.resolver.Report(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidIssue)

	bad = report(domain.SeverityLow, domain.IssueAccident)
	bad.RequestID = "missing"
	_, err = f.resolver.Report(ctx, bad)
	assert.ErrorIs(t, err, ErrRequestNotFound)

	assert.Zero(t, f.events.Count(events.DeliveryIssue))
}
