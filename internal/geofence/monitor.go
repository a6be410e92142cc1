// Package geofence turns courier location updates into pickup and
// delivery lifecycle actions.
package geofence

import (
	"context"
	"sort"
	"sync"

	"dispatch/internal/domain"
	"dispatch/internal/events"
	"dispatch/internal/geo"
	"dispatch/internal/logger"
)

const (
	DefaultApproachRadiusM = 500.0
	DefaultArrivalRadiusM  = 50.0
)

// ActionHandler carries out the actions of an entered area.
type ActionHandler interface {
	HandleGeofenceAction(ctx context.Context, area domain.GeofenceArea, action domain.GeofenceAction) error
}

// Trigger is one area entry.
type Trigger struct {
	Area domain.GeofenceArea
	At   domain.Location
}

type tracked struct {
	area   domain.GeofenceArea
	inside bool
}

// fenceSet holds the four areas of one request. Delivery areas stay
// dormant until the courier has reached the pickup.
type fenceSet struct {
	courierID     string
	areas         []*tracked
	arrivedPickup bool
}

// Monitor evaluates courier positions against armed areas.
type Monitor struct {
	mu        sync.Mutex
	byRequest map[string]*fenceSet
	byCourier map[string]map[string]*fenceSet

	handler         ActionHandler
	events          events.Publisher
	log             logger.Logger
	approachRadiusM float64
	arrivalRadiusM  float64
}

// Option configures a Monitor.
type Option func(*Monitor)

func WithHandler(h ActionHandler) Option      { return func(m *Monitor) { m.handler = h } }
func WithPublisher(p events.Publisher) Option { return func(m *Monitor) { m.events = p } }
func WithLogger(l logger.Logger) Option       { return func(m *Monitor) { m.log = l } }

// WithRadii overrides the approach and arrival radii in meters.
func WithRadii(approachM, arrivalM float64) Option {
	return func(m *Monitor) {
		if approachM > 0 {
			m.approachRadiusM = approachM
		}
		if arrivalM > 0 {
			m.arrivalRadiusM = arrivalM
		}
	}
}

// NewMonitor creates a Monitor with no armed areas.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		byRequest:       make(map[string]*fenceSet),
		byCourier:       make(map[string]map[string]*fenceSet),
		events:          events.Nop{},
		log:             logger.Nop{},
		approachRadiusM: DefaultApproachRadiusM,
		arrivalRadiusM:  DefaultArrivalRadiusM,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetHandler sets the action handler after construction.
func (m *Monitor) SetHandler(h ActionHandler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

// Arm creates the pickup and delivery areas of req for a courier,
// replacing any areas the request already had.
func (m *Monitor) Arm(courierID string, req domain.DeliveryRequest) []domain.GeofenceArea {
	area := func(t domain.GeofenceType, center domain.Location, radius float64, actions ...domain.GeofenceAction) *tracked {
		return &tracked{area: domain.GeofenceArea{
			ID:        req.ID + ":" + string(t),
			CourierID: courierID,
			RequestID: req.ID,
			Center:    center,
			RadiusM:   radius,
			Type:      t,
			Actions:   actions,
		}}
	}
	set := &fenceSet{
		courierID: courierID,
		areas: []*tracked{
			area(domain.GeofencePickupApproach, req.Pickup.Location, m.approachRadiusM, domain.ActionNotifyRestaurant),
			area(domain.GeofencePickupArrival, req.Pickup.Location, m.arrivalRadiusM, domain.ActionMarkArrived),
			area(domain.GeofenceDeliveryApproach, req.Dropoff.Location, m.approachRadiusM, domain.ActionMarkPickedUp, domain.ActionNotifyCustomer),
			area(domain.GeofenceDeliveryArrival, req.Dropoff.Location, m.arrivalRadiusM, domain.ActionNotifyCustomer, domain.ActionMarkDelivered),
		},
		arrivedPickup: req.Status == domain.RequestStatusInTransit,
	}

	m.mu.Lock()
	m.disarmLocked(req.ID)
	m.byRequest[req.ID] = set
	if m.byCourier[courierID] == nil {
		m.byCourier[courierID] = make(map[string]*fenceSet)
	}
	m.byCourier[courierID][req.ID] = set
	m.mu.Unlock()

	out := make([]domain.GeofenceArea, len(set.areas))
	for i, t := range set.areas {
		out[i] = t.area
	}
	return out
}

// Disarm destroys the areas of a request.
func (m *Monitor) Disarm(requestID string) {
	m.mu.Lock()
	m.disarmLocked(requestID)
	m.mu.Unlock()
}

func (m *Monitor) disarmLocked(requestID string) {
	set, ok := m.byRequest[requestID]
	if !ok {
		return
	}
	delete(m.byRequest, requestID)
	if sets := m.byCourier[set.courierID]; sets != nil {
		delete(sets, requestID)
		if len(sets) == 0 {
			delete(m.byCourier, set.courierID)
		}
	}
}

// Areas returns the armed areas of a request.
func (m *Monitor) Areas(requestID string) []domain.GeofenceArea {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.byRequest[requestID]
	if !ok {
		return nil
	}
	out := make([]domain.GeofenceArea, len(set.areas))
	for i, t := range set.areas {
		out[i] = t.area
	}
	return out
}

// OnLocation evaluates a courier position. Each area fires once per
// entry; leaving it re-arms it. Actions run after the monitor lock is
// released, in area order.
func (m *Monitor) OnLocation(ctx context.Context, courierID string, loc domain.Location) []Trigger {
	m.mu.Lock()
	var fired []Trigger
	requestIDs := make([]string, 0, len(m.byCourier[courierID]))
	for id := range m.byCourier[courierID] {
		requestIDs = append(requestIDs, id)
	}
	sort.Strings(requestIDs)

	for _, id := range requestIDs {
		set := m.byCourier[courierID][id]
		// delivery areas open from the ping after pickup arrival
		pickedUp := set.arrivedPickup
		for _, t := range set.areas {
			if isDelivery(t.area.Type) && !pickedUp {
				continue
			}
			inside := geo.WithinRadius(t.area.Center, loc, t.area.RadiusM)
			if inside && !t.inside {
				fired = append(fired, Trigger{Area: t.area, At: loc})
				if t.area.Type == domain.GeofencePickupArrival {
					set.arrivedPickup = true
				}
			}
			t.inside = inside
		}
	}
	handler := m.handler
	m.mu.Unlock()

	for _, tr := range fired {
		m.events.Publish(ctx, events.Event{
			Type:      events.GeofenceTriggered,
			RequestID: tr.Area.RequestID,
			CourierID: courierID,
			Data:      map[string]any{"area": string(tr.Area.Type)},
		})
		if handler == nil {
			continue
		}
		for _, action := range tr.Area.Actions {
			if err := handler.HandleGeofenceAction(ctx, tr.Area, action); err != nil {
				m.log.Warnf("geofence action %s for request %s failed: %v", action, tr.Area.RequestID, err)
			}
		}
	}
	return fired
}

func isDelivery(t domain.GeofenceType) bool {
	return t == domain.GeofenceDeliveryApproach || t == domain.GeofenceDeliveryArrival
}
