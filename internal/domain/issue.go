package domain

import "time"

// IssueType classifies a delivery exception.
type IssueType string

const (
	IssueCustomerNoShow     IssueType = "customer_no_show"
	IssueVehicleBreakdown   IssueType = "vehicle_breakdown"
	IssueSevereWeather      IssueType = "severe_weather"
	IssueRestaurantDelay    IssueType = "restaurant_delay"
	IssueAccident           IssueType = "accident"
	IssueCourierUnreachable IssueType = "courier_unreachable"
	IssueOrderCancelled     IssueType = "order_cancelled"
)

// Severity grades how disruptive an issue is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ResolutionAction is the decision taken for an issue.
type ResolutionAction string

const (
	ResolutionRetry    ResolutionAction = "retry"
	ResolutionWait     ResolutionAction = "wait"
	ResolutionReassign ResolutionAction = "reassign"
)

// Resolution records how an issue was handled.
type Resolution struct {
	Action     ResolutionAction `json:"action"`
	WaitFor    time.Duration    `json:"wait_for,omitempty"`
	Escalated  bool             `json:"escalated"`
	NewCourier string           `json:"new_courier,omitempty"`
	Outcome    string           `json:"outcome"`
	DecidedAt  time.Time        `json:"decided_at"`
}

// DeliveryIssue is an immutable record of an exception during delivery.
type DeliveryIssue struct {
	ID          string
	CourierID   string
	RequestID   string
	Type        IssueType
	Severity    Severity
	Location    Location
	Description string
	ReportedAt  time.Time
	Resolution  *Resolution
}
