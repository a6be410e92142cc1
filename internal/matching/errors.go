package matching

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoEligibleCourier is returned when no courier passes the filters.
var ErrNoEligibleCourier = errors.New("no eligible courier")

// MatchError carries the reason and contributing factors of a failed match
// so callers can decide between retrying, scheduling and cancelling.
type MatchError struct {
	RequestID string
	Reason    string
	Factors   map[string]any
}

func (e *MatchError) Error() string {
	keys := make([]string, 0, len(e.Factors))
	for k := range e.Factors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, e.Factors[k])
	}
	return fmt.Sprintf("match request %s: %s (%s)", e.RequestID, e.Reason, strings.Join(parts, ", "))
}

// Unwrap returns ErrNoEligibleCourier.
func (e *MatchError) Unwrap() error { return ErrNoEligibleCourier }
