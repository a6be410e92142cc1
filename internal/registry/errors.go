package registry

import "errors"

var (
	// ErrCourierNotFound is returned when the courier is not registered.
	ErrCourierNotFound = errors.New("courier not found")

	// ErrInvalidCourier is returned when a profile fails validation.
	ErrInvalidCourier = errors.New("invalid courier profile")

	// ErrInvalidLocation is returned when coordinates are out of range.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrCapacityBelowLoad is returned when an update would leave a courier
	// carrying more jobs than its capacity.
	ErrCapacityBelowLoad = errors.New("capacity below current load")
)
