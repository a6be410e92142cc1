package repository

import (
	"context"

	"dispatch/internal/domain"
)

// IssueRepository persists delivery issues.
type IssueRepository interface {
	// Create persists a new issue.
	Create(ctx context.Context, issue *domain.DeliveryIssue) error

	// SetResolution attaches the resolution to a stored issue.
	SetResolution(ctx context.Context, issueID string, res domain.Resolution) error

	// ListByRequest returns the issues raised for a request, oldest first.
	ListByRequest(ctx context.Context, requestID string) ([]*domain.DeliveryIssue, error)
}
