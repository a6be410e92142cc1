// Package events carries the structured dispatch events consumed by
// operators and analytics.
package events

import (
	"context"
	"time"
)

// Type names an event.
type Type string

const (
	MatchFound        Type = "match_found"
	BiddingOpened     Type = "bidding_opened"
	BiddingClosed     Type = "bidding_closed"
	DeliveryIssue     Type = "delivery_issue"
	RouteOptimized    Type = "route_optimized"
	GeofenceTriggered Type = "geofence_triggered"
)

// Event is one structured occurrence in the dispatch lifecycle.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	CourierID string         `json:"courier_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	At        time.Time      `json:"at"`
	Data      map[string]any `json:"data,omitempty"`
}

// Publisher accepts events. Publishing never blocks the caller on
// downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Sink consumes events from a bus subscription.
type Sink interface {
	Handle(ctx context.Context, e Event) error
}
