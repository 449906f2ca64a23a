package storage

import (
	"context"
	"sync"

	"github.com/example/ride-dispatch/internal/ride"
)

// HistoryStore keeps read-only copies of rides that reached a terminal
// state. The in-memory registry stays authoritative for arbitration; this
// is purely the durable trail.
type HistoryStore interface {
	Archive(ctx context.Context, r *ride.Ride) error
}

type MemoryHistory struct {
	mu    sync.RWMutex
	rides map[string]ride.Ride
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{rides: make(map[string]ride.Ride)}
}

func (m *MemoryHistory) Archive(ctx context.Context, r *ride.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = *r
	return nil
}

func (m *MemoryHistory) Get(id string) (ride.Ride, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	return r, ok
}
