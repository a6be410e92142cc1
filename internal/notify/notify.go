// Package notify delivers offers and lifecycle messages to couriers,
// customers, restaurants and support staff.
package notify

import (
	"context"
	"time"

	"dispatch/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationOffer              NotificationType = "DELIVERY_OFFER"
	NotificationCourierAssigned    NotificationType = "COURIER_ASSIGNED"
	NotificationCourierApproaching NotificationType = "COURIER_APPROACHING"
	NotificationCourierArrived     NotificationType = "COURIER_ARRIVED"
	NotificationDelivered          NotificationType = "DELIVERED"
	NotificationIssueUpdate        NotificationType = "ISSUE_UPDATE"
	NotificationRequestCancelled   NotificationType = "REQUEST_CANCELLED"
	NotificationEscalation         NotificationType = "SUPPORT_ESCALATION"
)

// Notification represents a notification to be sent.
type Notification struct {
	ID          string           `json:"id,omitempty"`
	Type        NotificationType `json:"type"`
	RecipientID string           `json:"recipient_id,omitempty"`
	RequestID   string           `json:"request_id,omitempty"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Data        map[string]any   `json:"data,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Offer invites couriers to bid on a request.
type Offer struct {
	SessionID   string             `json:"session_id"`
	RequestID   string             `json:"request_id"`
	Mode        domain.BiddingMode `json:"mode"`
	MinimumBid  int64              `json:"minimum_bid"`
	QuotedPrice int64              `json:"quoted_price"`
	Pickup      domain.Location    `json:"pickup"`
	Dropoff     domain.Location    `json:"dropoff"`
	ExpiresAt   time.Time          `json:"expires_at"`
}

// Notifier is the outbound notification collaborator.
type Notifier interface {
	NotifyCouriers(ctx context.Context, courierIDs []string, offer Offer) error
	NotifyCustomer(ctx context.Context, customerID string, n Notification) error
	NotifyRestaurant(ctx context.Context, restaurantID string, n Notification) error
	EscalateToSupport(ctx context.Context, n Notification) error
}
