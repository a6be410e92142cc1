// Package memory provides in-process repository implementations used by
// tests and by the server's --memory mode.
package memory

import (
	"context"
	"sort"
	"sync"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
	"dispatch/internal/repository"
)

var (
	_ repository.RequestRepository    = (*RequestRepository)(nil)
	_ repository.CourierRepository    = (*CourierRepository)(nil)
	_ repository.SessionRepository    = (*SessionRepository)(nil)
	_ repository.IssueRepository      = (*IssueRepository)(nil)
	_ repository.RestaurantRepository = (*RestaurantRepository)(nil)
)

func copyRequest(r *domain.DeliveryRequest) *domain.DeliveryRequest {
	c := r.WithStatus(r.Status, r.CourierID, r.UpdatedAt)
	if r.Window != nil {
		w := *r.Window
		c.Window = &w
	}
	return &c
}

// RequestRepository stores delivery requests in a map.
type RequestRepository struct {
	mu       sync.RWMutex
	requests map[string]*domain.DeliveryRequest
}

// NewRequestRepository creates an empty RequestRepository.
func NewRequestRepository() *RequestRepository {
	return &RequestRepository{requests: make(map[string]*domain.DeliveryRequest)}
}

func (r *RequestRepository) Create(_ context.Context, req *domain.DeliveryRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.ID]; ok {
		return repository.ErrAlreadyExists
	}
	r.requests[req.ID] = copyRequest(req)
	return nil
}

func (r *RequestRepository) GetByID(_ context.Context, id string) (*domain.DeliveryRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyRequest(req), nil
}

func (r *RequestRepository) Update(_ context.Context, req *domain.DeliveryRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.ID]; !ok {
		return repository.ErrNotFound
	}
	r.requests[req.ID] = copyRequest(req)
	return nil
}

func (r *RequestRepository) ListActiveByCourier(_ context.Context, courierID string) ([]*domain.DeliveryRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.DeliveryRequest
	for _, req := range r.requests {
		if req.CourierID != courierID {
			continue
		}
		if req.Status == domain.RequestStatusAssigned || req.Status == domain.RequestStatusInTransit {
			out = append(out, copyRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *RequestRepository) CountOpenWithin(_ context.Context, center domain.Location, radiusKm float64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, req := range r.requests {
		if req.Status != domain.RequestStatusPending && req.Status != domain.RequestStatusBidding {
			continue
		}
		if geo.HaversineKm(center, req.Pickup.Location) <= radiusKm {
			n++
		}
	}
	return n, nil
}

func (r *RequestRepository) CountActiveByRestaurant(_ context.Context, restaurantID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, req := range r.requests {
		if req.RestaurantID == restaurantID && !req.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

// CourierRepository stores courier profiles in a map.
type CourierRepository struct {
	mu       sync.RWMutex
	couriers map[string]domain.CourierProfile
}

// NewCourierRepository creates an empty CourierRepository.
func NewCourierRepository() *CourierRepository {
	return &CourierRepository{couriers: make(map[string]domain.CourierProfile)}
}

func (r *CourierRepository) Upsert(_ context.Context, c *domain.CourierProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.couriers[c.ID] = c.Clone()
	return nil
}

func (r *CourierRepository) GetByID(_ context.Context, id string) (*domain.CourierProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.couriers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c = c.Clone()
	return &c, nil
}

func (r *CourierRepository) GetAll(_ context.Context) ([]*domain.CourierProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.CourierProfile, 0, len(r.couriers))
	for _, c := range r.couriers {
		c := c.Clone()
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SessionRepository stores bidding sessions in a map.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]domain.BiddingSession
}

// NewSessionRepository creates an empty SessionRepository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]domain.BiddingSession)}
}

func (r *SessionRepository) Save(_ context.Context, s *domain.BiddingSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *SessionRepository) GetByID(_ context.Context, id string) (*domain.BiddingSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s = s.Clone()
	return &s, nil
}

// IssueRepository stores delivery issues in insertion order.
type IssueRepository struct {
	mu     sync.RWMutex
	issues []*domain.DeliveryIssue
	byID   map[string]*domain.DeliveryIssue
}

// NewIssueRepository creates an empty IssueRepository.
func NewIssueRepository() *IssueRepository {
	return &IssueRepository{byID: make(map[string]*domain.DeliveryIssue)}
}

func (r *IssueRepository) Create(_ context.Context, issue *domain.DeliveryIssue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[issue.ID]; ok {
		return repository.ErrAlreadyExists
	}
	c := copyIssue(issue)
	r.issues = append(r.issues, c)
	r.byID[c.ID] = c
	return nil
}

func (r *IssueRepository) SetResolution(_ context.Context, issueID string, res domain.Resolution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	issue, ok := r.byID[issueID]
	if !ok {
		return repository.ErrNotFound
	}
	issue.Resolution = &res
	return nil
}

func (r *IssueRepository) ListByRequest(_ context.Context, requestID string) ([]*domain.DeliveryIssue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.DeliveryIssue
	for _, issue := range r.issues {
		if issue.RequestID == requestID {
			out = append(out, copyIssue(issue))
		}
	}
	return out, nil
}

func copyIssue(issue *domain.DeliveryIssue) *domain.DeliveryIssue {
	c := *issue
	if issue.Resolution != nil {
		res := *issue.Resolution
		c.Resolution = &res
	}
	return &c
}

// RestaurantRepository stores restaurant statistics in a map. When a
// RequestRepository is attached, ActiveOrders is derived from it.
type RestaurantRepository struct {
	mu       sync.RWMutex
	stats    map[string]domain.RestaurantStats
	requests *RequestRepository
}

// NewRestaurantRepository creates a RestaurantRepository. requests may be nil.
func NewRestaurantRepository(requests *RequestRepository) *RestaurantRepository {
	return &RestaurantRepository{stats: make(map[string]domain.RestaurantStats), requests: requests}
}

func (r *RestaurantRepository) GetStats(ctx context.Context, restaurantID string) (*domain.RestaurantStats, error) {
	r.mu.RLock()
	s, ok := r.stats[restaurantID]
	r.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	if r.requests != nil {
		n, err := r.requests.CountActiveByRestaurant(ctx, restaurantID)
		if err != nil {
			return nil, err
		}
		s.ActiveOrders = n
	}
	return &s, nil
}

func (r *RestaurantRepository) UpsertStats(_ context.Context, stats *domain.RestaurantStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats[stats.ID] = *stats
	return nil
}
