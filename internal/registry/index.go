package registry

import (
	"context"
	"sort"
	"sync"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
	"dispatch/internal/redis"
)

// LocationIndex narrows candidate couriers by position.
type LocationIndex = redis.LocationStoreInterface

// MemoryIndex is an in-process LocationIndex.
type MemoryIndex struct {
	mu        sync.RWMutex
	locations map[string]domain.Location
}

var _ LocationIndex = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{locations: make(map[string]domain.Location)}
}

func (m *MemoryIndex) UpdateLocation(_ context.Context, courierID string, loc domain.Location) error {
	m.mu.Lock()
	m.locations[courierID] = loc
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) FindNearby(_ context.Context, center domain.Location, radiusKm float64) ([]string, error) {
	type hit struct {
		id   string
		dist float64
	}
	m.mu.RLock()
	hits := make([]hit, 0, len(m.locations))
	for id, loc := range m.locations {
		if d := geo.HaversineKm(center, loc); d <= radiusKm {
			hits = append(hits, hit{id: id, dist: d})
		}
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist == hits[j].dist {
			return hits[i].id < hits[j].id
		}
		return hits[i].dist < hits[j].dist
	})
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids, nil
}

func (m *MemoryIndex) RemoveLocation(_ context.Context, courierID string) error {
	m.mu.Lock()
	delete(m.locations, courierID)
	m.mu.Unlock()
	return nil
}
