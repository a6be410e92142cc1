package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"dispatch/internal/domain"
)

// IssueRepository is a PostgreSQL implementation of repository.IssueRepository.
type IssueRepository struct {
	q Querier
}

// NewIssueRepository creates a new PostgreSQL issue repository.
func NewIssueRepository(db *sql.DB) *IssueRepository {
	return &IssueRepository{q: db}
}

// Create persists a new issue.
func (r *IssueRepository) Create(ctx context.Context, issue *domain.DeliveryIssue) error {
	var resolution []byte
	if issue.Resolution != nil {
		data, err := json.Marshal(issue.Resolution)
		if err != nil {
			return err
		}
		resolution = data
	}

	query := `
		INSERT INTO delivery_issues (id, courier_id, request_id, type, severity, lat, lng, description, reported_at, resolution)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.q.ExecContext(ctx, query,
		issue.ID, issue.CourierID, issue.RequestID, issue.Type, issue.Severity,
		issue.Location.Lat, issue.Location.Lng, issue.Description, issue.ReportedAt, resolution,
	)
	return mapError(err)
}

// SetResolution attaches the resolution to a stored issue.
func (r *IssueRepository) SetResolution(ctx context.Context, issueID string, res domain.Resolution) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	result, err := r.q.ExecContext(ctx, `UPDATE delivery_issues SET resolution = $1 WHERE id = $2`, data, issueID)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

// ListByRequest returns the issues raised for a request, oldest first.
func (r *IssueRepository) ListByRequest(ctx context.Context, requestID string) ([]*domain.DeliveryIssue, error) {
	query := `
		SELECT id, courier_id, request_id, type, severity, lat, lng, description, reported_at, resolution
		FROM delivery_issues WHERE request_id = $1 ORDER BY reported_at
	`
	rows, err := r.q.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []*domain.DeliveryIssue
	for rows.Next() {
		var (
			issue      domain.DeliveryIssue
			resolution []byte
		)
		if err := rows.Scan(
			&issue.ID, &issue.CourierID, &issue.RequestID, &issue.Type, &issue.Severity,
			&issue.Location.Lat, &issue.Location.Lng, &issue.Description, &issue.ReportedAt, &resolution,
		); err != nil {
			return nil, err
		}
		if len(resolution) > 0 {
			var res domain.Resolution
			if err := json.Unmarshal(resolution, &res); err != nil {
				return nil, err
			}
			issue.Resolution = &res
		}
		issues = append(issues, &issue)
	}
	return issues, rows.Err()
}
