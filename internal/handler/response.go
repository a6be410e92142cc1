package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/bidding"
	"dispatch/internal/dispatch"
	"dispatch/internal/issue"
	"dispatch/internal/matching"
	"dispatch/internal/registry"
	"dispatch/internal/repository"
	"dispatch/internal/routing"
)

// ErrorResponse represents an error response. Reason and Factors are set
// for request-level dispatch failures.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Reason  string         `json:"reason,omitempty"`
	Factors map[string]any `json:"factors,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, errorBody(err))
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

func errorBody(err error) ErrorResponse {
	body := ErrorResponse{Error: err.Error()}
	var me *matching.MatchError
	var oe *bidding.OutcomeError
	switch {
	case errors.As(err, &me):
		body.Reason = me.Reason
		body.Factors = me.Factors
	case errors.As(err, &oe):
		body.Reason = "bid_window_expired"
		body.Factors = oe.Factors
	}
	return body
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, dispatch.ErrRequestNotFound),
		errors.Is(err, registry.ErrCourierNotFound),
		errors.Is(err, bidding.ErrSessionNotFound),
		errors.Is(err, issue.ErrRequestNotFound),
		errors.Is(err, routing.ErrUnknownCourier):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, dispatch.ErrInvalidRequest),
		errors.Is(err, registry.ErrInvalidCourier),
		errors.Is(err, registry.ErrInvalidLocation),
		errors.Is(err, issue.ErrInvalidIssue),
		errors.Is(err, bidding.ErrInvalidMode):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, dispatch.ErrInvalidTransition),
		errors.Is(err, dispatch.ErrRequestLocked),
		errors.Is(err, bidding.ErrSessionClosed),
		errors.Is(err, bidding.ErrNoActiveSession),
		errors.Is(err, registry.ErrCapacityBelowLoad),
		errors.Is(err, repository.ErrAlreadyExists):
		return http.StatusConflict

	// Business rule errors
	case errors.Is(err, bidding.ErrBidRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, bidding.ErrBidWindowExpired):
		return http.StatusGone

	// Service unavailable
	case errors.Is(err, matching.ErrNoEligibleCourier):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
