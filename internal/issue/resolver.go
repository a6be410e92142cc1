// Package issue decides how delivery exceptions are handled.
package issue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dispatch/internal/domain"
	"dispatch/internal/events"
	"dispatch/internal/logger"
	"dispatch/internal/notify"
	"dispatch/internal/repository"
)

const (
	RetryWait  = 5 * time.Minute
	MediumWait = 15 * time.Minute
)

var (
	// ErrInvalidIssue is returned when a report is missing required fields.
	ErrInvalidIssue = errors.New("invalid issue")

	// ErrRequestNotFound is returned when the issue names an unknown request.
	ErrRequestNotFound = errors.New("request not found")
)

// Reassigner takes a request away from a courier and matches it again.
// It returns the new courier, or "" when the request went to bidding.
type Reassigner interface {
	Reassign(ctx context.Context, requestID, fromCourierID string) (string, error)
}

// Resolver applies the severity decision table to reported issues.
type Resolver struct {
	issues     repository.IssueRepository
	requests   repository.RequestRepository
	notifier   notify.Notifier
	reassigner Reassigner
	events     events.Publisher
	log        logger.Logger
	now        func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithNotifier(n notify.Notifier) Option   { return func(r *Resolver) { r.notifier = n } }
func WithReassigner(a Reassigner) Option      { return func(r *Resolver) { r.reassigner = a } }
func WithPublisher(p events.Publisher) Option { return func(r *Resolver) { r.events = p } }
func WithLogger(l logger.Logger) Option       { return func(r *Resolver) { r.log = l } }
func WithClock(now func() time.Time) Option   { return func(r *Resolver) { r.now = now } }

// NewResolver creates a Resolver.
func NewResolver(issues repository.IssueRepository, requests repository.RequestRepository, opts ...Option) *Resolver {
	r := &Resolver{
		issues:   issues,
		requests: requests,
		events:   events.Nop{},
		log:      logger.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetReassigner sets the reassignment collaborator after construction.
func (r *Resolver) SetReassigner(a Reassigner) {
	r.reassigner = a
}

// Decide maps a severity to its action and wait time.
func Decide(s domain.Severity) (domain.ResolutionAction, time.Duration) {
	switch s {
	case domain.SeverityLow:
		return domain.ResolutionRetry, RetryWait
	case domain.SeverityMedium:
		return domain.ResolutionWait, MediumWait
	default:
		return domain.ResolutionReassign, 0
	}
}

// Report records an issue and resolves it. The issue is persisted before
// any action runs, so a failing reassignment still leaves a record.
func (r *Resolver) Report(ctx context.Context, in domain.DeliveryIssue) (domain.Resolution, error) {
	if err := validate(in); err != nil {
		return domain.Resolution{}, err
	}

	req, err := r.requests.GetByID(ctx, in.RequestID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Resolution{}, fmt.Errorf("%w: %s", ErrRequestNotFound, in.RequestID)
	}
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("load request %s: %w", in.RequestID, err)
	}

	issue := in
	issue.Resolution = nil
	if issue.ID == "" {
		issue.ID = uuid.New().String()
	}
	if issue.ReportedAt.IsZero() {
		issue.ReportedAt = r.now()
	}
	if err := r.issues.Create(ctx, &issue); err != nil {
		return domain.Resolution{}, fmt.Errorf("store issue: %w", err)
	}

	action, wait := Decide(issue.Severity)
	res := domain.Resolution{Action: action, WaitFor: wait}

	switch action {
	case domain.ResolutionRetry:
		res.Outcome = fmt.Sprintf("courier retries in %s", wait)
		r.notifyCustomer(ctx, req, issue, fmt.Sprintf("Your delivery is slightly delayed (%s). The courier will retry shortly.", issue.Type))
	case domain.ResolutionWait:
		res.Outcome = fmt.Sprintf("waiting up to %s", wait)
		r.notifyCustomer(ctx, req, issue, fmt.Sprintf("Your delivery is delayed (%s). We expect an update within %d minutes.", issue.Type, int(wait.Minutes())))
	case domain.ResolutionReassign:
		res.Escalated = true
		res.Outcome = r.reassign(ctx, issue, &res)
		r.escalate(ctx, req, issue, res)
		if issue.Type != domain.IssueOrderCancelled {
			r.notifyCustomer(ctx, req, issue, "We are arranging another courier for your delivery.")
		}
	}
	res.DecidedAt = r.now()

	if err := r.issues.SetResolution(ctx, issue.ID, res); err != nil {
		r.log.Errorf("failed to store resolution of issue %s: %v", issue.ID, err)
	}

	r.events.Publish(ctx, events.Event{
		Type:      events.DeliveryIssue,
		RequestID: issue.RequestID,
		CourierID: issue.CourierID,
		Data: map[string]any{
			"issue_id":  issue.ID,
			"type":      string(issue.Type),
			"severity":  string(issue.Severity),
			"action":    string(res.Action),
			"escalated": res.Escalated,
		},
	})
	r.log.Infof("issue %s (%s/%s) on request %s: %s, %s",
		issue.ID, issue.Type, issue.Severity, issue.RequestID, res.Action, res.Outcome)

	return res, nil
}

// History returns the issues raised for a request.
func (r *Resolver) History(ctx context.Context, requestID string) ([]*domain.DeliveryIssue, error) {
	return r.issues.ListByRequest(ctx, requestID)
}

func (r *Resolver) reassign(ctx context.Context, issue domain.DeliveryIssue, res *domain.Resolution) string {
	if r.reassigner == nil {
		return "reassignment unavailable"
	}
	next, err := r.reassigner.Reassign(ctx, issue.RequestID, issue.CourierID)
	if err != nil {
		r.log.Errorf("reassignment of request %s failed: %v", issue.RequestID, err)
		return "reassignment failed: " + err.Error()
	}
	if next == "" {
		if issue.Type == domain.IssueOrderCancelled {
			return "courier released, order cancelled"
		}
		return "resubmitted for bidding"
	}
	res.NewCourier = next
	return "reassigned to " + next
}

func (r *Resolver) escalate(ctx context.Context, req *domain.DeliveryRequest, issue domain.DeliveryIssue, res domain.Resolution) {
	if r.notifier == nil {
		return
	}
	n := notify.Notification{
		Type:      notify.NotificationEscalation,
		RequestID: req.ID,
		Title:     fmt.Sprintf("%s issue: %s", issue.Severity, issue.Type),
		Message:   fmt.Sprintf("Courier %s reported %s on request %s. %s.", issue.CourierID, issue.Type, req.ID, res.Outcome),
		Data: map[string]any{
			"issue_id":    issue.ID,
			"courier_id":  issue.CourierID,
			"severity":    string(issue.Severity),
			"description": issue.Description,
			"lat":         issue.Location.Lat,
			"lng":         issue.Location.Lng,
		},
		CreatedAt: r.now(),
	}
	if err := r.notifier.EscalateToSupport(ctx, n); err != nil {
		r.log.Warnf("support escalation for issue %s failed: %v", issue.ID, err)
	}
}

func (r *Resolver) notifyCustomer(ctx context.Context, req *domain.DeliveryRequest, issue domain.DeliveryIssue, msg string) {
	if r.notifier == nil || req.CustomerID == "" {
		return
	}
	n := notify.Notification{
		Type:        notify.NotificationIssueUpdate,
		RecipientID: req.CustomerID,
		RequestID:   req.ID,
		Title:       "Delivery update",
		Message:     msg,
		Data:        map[string]any{"issue_id": issue.ID, "type": string(issue.Type)},
		CreatedAt:   r.now(),
	}
	if err := r.notifier.NotifyCustomer(ctx, req.CustomerID, n); err != nil {
		r.log.Warnf("customer notification for issue %s failed: %v", issue.ID, err)
	}
}

func validate(in domain.DeliveryIssue) error {
	switch {
	case in.RequestID == "":
		return fmt.Errorf("%w: request id is required", ErrInvalidIssue)
	case in.CourierID == "":
		return fmt.Errorf("%w: courier id is required", ErrInvalidIssue)
	case in.Type == "":
		return fmt.Errorf("%w: type is required", ErrInvalidIssue)
	case !in.Severity.Valid():
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidIssue, in.Severity)
	}
	return nil
}
