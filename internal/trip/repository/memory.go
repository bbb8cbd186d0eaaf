package repository

import (
	"context"
	"sync"

	"github.com/example/ridematch/internal/trip/domain"
)

// MemoryRepository is an in-memory trip store for tests and local demos.
type MemoryRepository struct {
	mu    sync.RWMutex
	trips map[int64]domain.Trip
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{trips: make(map[int64]domain.Trip)}
}

// FindByID retrieves a trip.
func (m *MemoryRepository) FindByID(_ context.Context, id int64) (domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	trip, ok := m.trips[id]
	if !ok {
		return domain.Trip{}, domain.ErrTripNotFound
	}
	return trip, nil
}

// Save upserts the trip, bumping the version counter on replacement.
func (m *MemoryRepository) Save(_ context.Context, trip domain.Trip) (domain.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.trips[trip.ID]; ok {
		trip.Version = existing.Version + 1
	} else if trip.Version == 0 {
		trip.Version = 1
	}
	m.trips[trip.ID] = trip
	return trip, nil
}
