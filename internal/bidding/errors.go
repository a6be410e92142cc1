package bidding

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound  = errors.New("bidding session not found")
	ErrSessionClosed    = errors.New("bidding session is closed")
	ErrNoActiveSession  = errors.New("no active bidding session")
	ErrBidWindowExpired = errors.New("bid window expired")
	ErrBidRejected      = errors.New("bid rejected")
	ErrInvalidMode      = errors.New("invalid bidding mode")
)

// OutcomeError reports a session that closed without a winner. It wraps
// ErrBidWindowExpired and carries the factors a caller needs to decide
// whether to republish with adjusted pricing.
type OutcomeError struct {
	SessionID string
	RequestID string
	Factors   map[string]any
}

func (e *OutcomeError) Error() string {
	return fmt.Sprintf("bidding session %s for request %s closed without an acceptable bid", e.SessionID, e.RequestID)
}

func (e *OutcomeError) Unwrap() error { return ErrBidWindowExpired }
