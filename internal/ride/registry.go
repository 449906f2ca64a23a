package ride

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// Registry is the single source of truth for ride lifecycle state. The map
// lock guards only lookup and insert; every transition serializes on the
// ride's own record lock, so unrelated rides never contend.
type Registry struct {
	mu    sync.RWMutex
	rides map[string]*record
}

type record struct {
	mu   sync.Mutex
	ride Ride
}

func NewRegistry() *Registry {
	return &Registry{rides: make(map[string]*record)}
}

// Create stores a new ride in requested state and returns a snapshot.
func (g *Registry) Create(in CreateInput) *Ride {
	now := time.Now()
	r := Ride{
		ID:          newID(),
		Pickup:      in.Pickup,
		Dropoff:     in.Dropoff,
		PickupLoc:   in.PickupLoc,
		DropoffLoc:  in.DropoffLoc,
		Fare:        in.Fare,
		Distance:    in.Distance,
		Duration:    in.Duration,
		Status:      StatusRequested,
		Context:     in.Context,
		RequestedAt: now,
		UpdatedAt:   now,
	}
	g.mu.Lock()
	g.rides[r.ID] = &record{ride: r}
	g.mu.Unlock()
	snap := r
	return &snap
}

// Get returns a snapshot of the ride, or ErrNotFound.
func (g *Registry) Get(id string) (*Ride, error) {
	rec, err := g.lookup(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	snap := rec.ride
	rec.mu.Unlock()
	return &snap, nil
}

// SetStatus is the only mutator: an atomic compare-and-swap on
// (id, currentStatus). It succeeds only if the stored status equals from;
// otherwise it returns ErrConflict and changes nothing. The driver
// reference is attached exactly once, at the requested -> accepted
// transition; passing one on any other transition is ignored.
func (g *Registry) SetStatus(id string, from, to Status, driver *models.DriverRef, driverLoc *models.Coord) (*Ride, error) {
	rec, err := g.lookup(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.ride.Status != from {
		return nil, ErrConflict
	}
	rec.ride.Status = to
	rec.ride.UpdatedAt = time.Now()
	if from == StatusRequested && to == StatusAccepted && rec.ride.Driver == nil {
		if driver != nil {
			d := *driver
			rec.ride.Driver = &d
		}
		if driverLoc != nil {
			l := *driverLoc
			rec.ride.DriverLoc = &l
		}
	}
	snap := rec.ride
	return &snap, nil
}

// Requested returns snapshots of every ride still in requested state,
// oldest first. Late-connecting drivers seed their candidate set from this.
func (g *Registry) Requested() []*Ride {
	g.mu.RLock()
	recs := make([]*record, 0, len(g.rides))
	for _, rec := range g.rides {
		recs = append(recs, rec)
	}
	g.mu.RUnlock()

	out := make([]*Ride, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		if rec.ride.Status == StatusRequested {
			snap := rec.ride
			out = append(out, &snap)
		}
		rec.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out
}

func (g *Registry) lookup(id string) (*record, error) {
	g.mu.RLock()
	rec, ok := g.rides[id]
	g.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
