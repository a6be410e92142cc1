package dispatch

import "errors"

var (
	// ErrInvalidRequest is returned when a submitted request fails validation.
	ErrInvalidRequest = errors.New("invalid delivery request")

	// ErrRequestNotFound is returned when the request does not exist.
	ErrRequestNotFound = errors.New("request not found")

	// ErrInvalidTransition is returned when the request's state does not allow the operation.
	ErrInvalidTransition = errors.New("request state does not allow this operation")

	// ErrRequestLocked is returned when another instance is dispatching the request.
	ErrRequestLocked = errors.New("request is being dispatched elsewhere")
)
