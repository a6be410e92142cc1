// Package registry keeps the live view of couriers: position, availability
// and the jobs each one carries. Reservations are atomic per courier and
// never exceed capacity.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
	"dispatch/internal/logger"
	"dispatch/internal/repository"
)

const (
	defaultSearchRadiusKm = 5.0
	persistTimeout        = 2 * time.Second
)

type slot struct {
	mu      sync.Mutex
	profile domain.CourierProfile
}

// Registry is the source of truth for courier state.
type Registry struct {
	mu       sync.RWMutex // guards the couriers map, not the profiles
	couriers map[string]*slot

	index          LocationIndex
	repo           repository.CourierRepository
	log            logger.Logger
	now            func() time.Time
	searchRadiusKm float64
}

// Option configures a Registry.
type Option func(*Registry)

// WithIndex sets the location index. Defaults to a MemoryIndex.
func WithIndex(idx LocationIndex) Option { return func(r *Registry) { r.index = idx } }

// WithRepository persists courier mutations best-effort.
func WithRepository(repo repository.CourierRepository) Option {
	return func(r *Registry) { r.repo = repo }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(r *Registry) { r.log = l } }

// WithClock overrides the time source used for working hours.
func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

// WithSearchRadius sets the radius used to look up candidates.
func WithSearchRadius(km float64) Option {
	return func(r *Registry) {
		if km > 0 {
			r.searchRadiusKm = km
		}
	}
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		couriers:       make(map[string]*slot),
		log:            logger.Nop{},
		now:            time.Now,
		searchRadiusKm: defaultSearchRadiusKm,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.index == nil {
		r.index = NewMemoryIndex()
	}
	return r
}

// Load hydrates the registry from its repository.
func (r *Registry) Load(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	couriers, err := r.repo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load couriers: %w", err)
	}
	r.mu.Lock()
	for _, c := range couriers {
		p := c.Clone()
		p.CurrentLoad = len(p.ActiveRequests)
		r.couriers[p.ID] = &slot{profile: p}
	}
	r.mu.Unlock()
	for _, c := range couriers {
		r.reindex(ctx, *c)
	}
	r.log.Infof("loaded %d couriers", len(couriers))
	return nil
}

// Upsert registers a courier or updates its profile. Reservations held by
// an existing courier are preserved.
func (r *Registry) Upsert(ctx context.Context, c domain.CourierProfile) (domain.CourierProfile, error) {
	if c.ID == "" || !c.Vehicle.Valid() || c.Capacity < 0 {
		return domain.CourierProfile{}, ErrInvalidCourier
	}
	if !c.Location.Valid() {
		return domain.CourierProfile{}, ErrInvalidLocation
	}
	if c.Capacity == 0 {
		c.Capacity = c.Vehicle.DefaultCapacity()
	}
	if c.LastUpdate.IsZero() {
		c.LastUpdate = r.now()
	}

	r.mu.Lock()
	s, ok := r.couriers[c.ID]
	if !ok {
		s = &slot{}
		r.couriers[c.ID] = s
	}
	s.mu.Lock()
	r.mu.Unlock()

	if ok {
		c.ActiveRequests = append([]string(nil), s.profile.ActiveRequests...)
	} else {
		c.ActiveRequests = nil
	}
	c.CurrentLoad = len(c.ActiveRequests)
	if c.CurrentLoad > c.Capacity {
		s.mu.Unlock()
		return domain.CourierProfile{}, ErrCapacityBelowLoad
	}
	s.profile = c.Clone()
	out := s.profile.Clone()
	s.mu.Unlock()

	r.reindex(ctx, out)
	r.persist(out)
	return out, nil
}

// SetAvailability toggles whether a courier accepts new jobs. Couriers
// going offline leave the location index until they come back.
func (r *Registry) SetAvailability(ctx context.Context, id string, available bool) error {
	out, err := r.mutate(id, func(p *domain.CourierProfile) error {
		p.Available = available
		return nil
	})
	if err != nil {
		return err
	}
	r.reindex(ctx, out)
	r.persist(out)
	return nil
}

// UpdateLocation records a position fix. Fixes older than the current one
// are ignored.
func (r *Registry) UpdateLocation(ctx context.Context, id string, loc domain.Location, at time.Time) error {
	if !loc.Valid() {
		return ErrInvalidLocation
	}
	if at.IsZero() {
		at = r.now()
	}
	applied := false
	out, err := r.mutate(id, func(p *domain.CourierProfile) error {
		if at.Before(p.LastUpdate) {
			return nil
		}
		p.Location = loc
		p.LastUpdate = at
		applied = true
		return nil
	})
	if err != nil || !applied {
		return err
	}
	r.reindex(ctx, out)
	r.persist(out)
	return nil
}

// Get returns a copy of a courier's profile.
func (r *Registry) Get(id string) (domain.CourierProfile, bool) {
	s := r.slot(id)
	if s == nil {
		return domain.CourierProfile{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.Clone(), true
}

// Snapshot returns copies of all profiles ordered by ID.
func (r *Registry) Snapshot() []domain.CourierProfile {
	r.mu.RLock()
	slots := make([]*slot, 0, len(r.couriers))
	for _, s := range r.couriers {
		slots = append(slots, s)
	}
	r.mu.RUnlock()

	out := make([]domain.CourierProfile, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		out = append(out, s.profile.Clone())
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindEligible returns couriers that could take req right now: available,
// with a compatible vehicle and spare capacity, within their own distance
// preference and inside their working hours. The result is ordered by
// distance to the pickup.
func (r *Registry) FindEligible(ctx context.Context, req domain.DeliveryRequest) []domain.CourierProfile {
	pickup := req.Pickup.Location
	hour := r.now().Hour()

	ids, err := r.index.FindNearby(ctx, pickup, r.searchRadiusKm)
	if err != nil {
		r.log.Warnf("location index unavailable, scanning all couriers: %v", err)
		ids = r.allIDs()
	}

	out := make([]domain.CourierProfile, 0, len(ids))
	for _, id := range ids {
		p, ok := r.Get(id)
		if !ok {
			continue
		}
		if !eligible(p, req, hour, r.searchRadiusKm) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return geo.HaversineKm(out[i].Location, pickup) < geo.HaversineKm(out[j].Location, pickup)
	})
	return out
}

func eligible(p domain.CourierProfile, req domain.DeliveryRequest, hour int, radiusKm float64) bool {
	if !p.Available || p.Remaining() == 0 {
		return false
	}
	if !req.AcceptsVehicle(p.Vehicle) {
		return false
	}
	for _, id := range p.ActiveRequests {
		if id == req.ID {
			return false
		}
	}
	dist := geo.HaversineKm(p.Location, req.Pickup.Location)
	if dist > radiusKm {
		return false
	}
	if p.Preferences.MaxDistanceKm > 0 && dist > p.Preferences.MaxDistanceKm {
		return false
	}
	return p.Preferences.Works(hour)
}

// TryReserve atomically claims one capacity slot of a courier for a
// request. Reserving the same request twice succeeds without consuming a
// second slot.
func (r *Registry) TryReserve(courierID, requestID string) bool {
	reserved := false
	out, err := r.mutate(courierID, func(p *domain.CourierProfile) error {
		for _, id := range p.ActiveRequests {
			if id == requestID {
				reserved = true
				return nil
			}
		}
		if !p.Available || p.CurrentLoad >= p.Capacity {
			return nil
		}
		p.ActiveRequests = append(p.ActiveRequests, requestID)
		p.CurrentLoad = len(p.ActiveRequests)
		reserved = true
		return nil
	})
	if err != nil || !reserved {
		return false
	}
	r.persist(out)
	return true
}

// Release frees the slot a request holds on a courier. Releasing a request
// that holds no slot is a no-op. It reports whether a slot was freed.
func (r *Registry) Release(courierID, requestID string) bool {
	released := false
	out, err := r.mutate(courierID, func(p *domain.CourierProfile) error {
		for i, id := range p.ActiveRequests {
			if id == requestID {
				p.ActiveRequests = append(p.ActiveRequests[:i:i], p.ActiveRequests[i+1:]...)
				p.CurrentLoad = len(p.ActiveRequests)
				released = true
				return nil
			}
		}
		return nil
	})
	if err != nil || !released {
		return false
	}
	r.persist(out)
	return true
}

// CountAvailableWithin counts available couriers with spare capacity
// within radiusKm of center.
func (r *Registry) CountAvailableWithin(ctx context.Context, center domain.Location, radiusKm float64) int {
	ids, err := r.index.FindNearby(ctx, center, radiusKm)
	if err != nil {
		ids = r.allIDs()
	}
	n := 0
	for _, id := range ids {
		p, ok := r.Get(id)
		if !ok || !p.Available || p.Remaining() == 0 {
			continue
		}
		if geo.HaversineKm(center, p.Location) <= radiusKm {
			n++
		}
	}
	return n
}

func (r *Registry) slot(id string) *slot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.couriers[id]
}

func (r *Registry) allIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.couriers))
	for id := range r.couriers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// mutate applies fn to a courier under its lock and returns the result.
func (r *Registry) mutate(id string, fn func(*domain.CourierProfile) error) (domain.CourierProfile, error) {
	s := r.slot(id)
	if s == nil {
		return domain.CourierProfile{}, ErrCourierNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(&s.profile); err != nil {
		return domain.CourierProfile{}, err
	}
	return s.profile.Clone(), nil
}

// reindex keeps the location index limited to available couriers.
func (r *Registry) reindex(ctx context.Context, p domain.CourierProfile) {
	var err error
	if p.Available {
		err = r.index.UpdateLocation(ctx, p.ID, p.Location)
	} else {
		err = r.index.RemoveLocation(ctx, p.ID)
	}
	if err != nil {
		r.log.Warnf("index courier %s: %v", p.ID, err)
	}
}

func (r *Registry) persist(p domain.CourierProfile) {
	if r.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.repo.Upsert(ctx, &p); err != nil {
		r.log.Warnf("persist courier %s: %v", p.ID, err)
	}
}
