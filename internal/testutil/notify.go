package testutil

import (
	"context"
	"sync"

	"dispatch/internal/events"
	"dispatch/internal/notify"
)

// Notifier records every notification it is asked to send.
type Notifier struct {
	mu          sync.Mutex
	Offers      map[string][]notify.Offer
	Customers   map[string][]notify.Notification
	Restaurants map[string][]notify.Notification
	Escalations []notify.Notification
}

var _ notify.Notifier = (*Notifier)(nil)

// NewNotifier creates an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		Offers:      make(map[string][]notify.Offer),
		Customers:   make(map[string][]notify.Notification),
		Restaurants: make(map[string][]notify.Notification),
	}
}

func (n *Notifier) NotifyCouriers(_ context.Context, courierIDs []string, offer notify.Offer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, id := range courierIDs {
		n.Offers[id] = append(n.Offers[id], offer)
	}
	return nil
}

func (n *Notifier) NotifyCustomer(_ context.Context, customerID string, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Customers[customerID] = append(n.Customers[customerID], msg)
	return nil
}

func (n *Notifier) NotifyRestaurant(_ context.Context, restaurantID string, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Restaurants[restaurantID] = append(n.Restaurants[restaurantID], msg)
	return nil
}

func (n *Notifier) EscalateToSupport(_ context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Escalations = append(n.Escalations, msg)
	return nil
}

// OfferedTo returns the couriers that received at least one offer.
func (n *Notifier) OfferedTo() map[string]int {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]int, len(n.Offers))
	for id, offers := range n.Offers {
		out[id] = len(offers)
	}
	return out
}

// CustomerTypes returns the notification types sent to a customer.
func (n *Notifier) CustomerTypes(customerID string) []notify.NotificationType {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.NotificationType
	for _, m := range n.Customers[customerID] {
		out = append(out, m.Type)
	}
	return out
}

// EscalationCount returns how many escalations were sent.
func (n *Notifier) EscalationCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Escalations)
}

// Events records published events.
type Events struct {
	mu     sync.Mutex
	events []events.Event
}

var _ events.Publisher = (*Events)(nil)

func (e *Events) Publish(_ context.Context, ev events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

// All returns a copy of the recorded events.
func (e *Events) All() []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]events.Event(nil), e.events...)
}

// Types returns the recorded event types in order.
func (e *Events) Types() []events.Type {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]events.Type, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Type
	}
	return out
}

// Count returns how many events of type t were recorded.
func (e *Events) Count(t events.Type) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}
