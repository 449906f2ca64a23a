package dispatch

import (
	"encoding/json"

	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/ride"
)

// Broadcaster translates registry lifecycle transitions into the correct
// audience on the router. It never inspects ride state itself; callers
// invoke it only after the transition has committed.
type Broadcaster struct {
	router *Router
}

func NewBroadcaster(router *Router) *Broadcaster {
	return &Broadcaster{router: router}
}

func (b *Broadcaster) RideRequested(r *ride.Ride) {
	b.global(EventRideRequested, newRideRequestedEvent(r))
}

// RideAccepted notifies the ride's room with the assignment details.
func (b *Broadcaster) RideAccepted(r *ride.Ride, etaSeconds float64) {
	ev := RideAcceptedEvent{Type: EventRideAccepted, RideID: r.ID, ETASeconds: etaSeconds}
	if r.Driver != nil {
		ev.Driver = *r.Driver
	}
	if r.DriverLoc != nil {
		ev.DriverLoc = *r.DriverLoc
	}
	b.room(r.ID, EventRideAccepted, ev)
}

// RideWithdrawn tells the remaining candidate drivers the ride is gone.
func (b *Broadcaster) RideWithdrawn(rideID string) {
	b.global(EventRideWithdrawn, RideWithdrawnEvent{Type: EventRideWithdrawn, RideID: rideID})
}

func (b *Broadcaster) RideStarted(rideID string) {
	b.room(rideID, EventRideStarted, RideStartedEvent{Type: EventRideStarted, RideID: rideID})
}

// RideCancelled notifies the ride's room, and additionally the global group
// when the ride was still open to candidates.
func (b *Broadcaster) RideCancelled(rideID, by string, wasRequested bool) {
	ev := RideCancelledEvent{Type: EventRideCancelled, RideID: rideID, By: by}
	b.room(rideID, EventRideCancelled, ev)
	if wasRequested {
		b.global(EventRideCancelled, ev)
	}
}

func (b *Broadcaster) RideCompleted(rideID string) {
	b.room(rideID, EventRideCompleted, RideCompletedEvent{Type: EventRideCompleted, RideID: rideID})
}

func (b *Broadcaster) global(event string, v any) {
	msg, _ := json.Marshal(v)
	observability.BroadcastsTotal.WithLabelValues(event).Inc()
	b.router.BroadcastGlobal(msg)
}

func (b *Broadcaster) room(rideID, event string, v any) {
	msg, _ := json.Marshal(v)
	observability.BroadcastsTotal.WithLabelValues(event).Inc()
	b.router.BroadcastToRide(rideID, msg)
}
