package dispatch

import (
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/ride"
)

// Outbound event types. Clients switch on the "type" field of the JSON
// envelope.
const (
	EventRideRequested = "ride_requested"
	EventRideAccepted  = "ride_accepted"
	EventRideWithdrawn = "ride_withdrawn"
	EventRideStarted   = "ride_started"
	EventRideCancelled = "ride_cancelled"
	EventRideCompleted = "ride_completed"
)

// RideRequestedEvent goes to the global driver group; it carries everything
// a driver-side candidate set needs, scoring context included.
type RideRequestedEvent struct {
	Type        string             `json:"type"`
	RideID      string             `json:"ride_id"`
	Pickup      string             `json:"pickup"`
	Dropoff     string             `json:"dropoff"`
	PickupLoc   models.Coord       `json:"pickup_loc"`
	DropoffLoc  models.Coord       `json:"dropoff_loc"`
	Fare        float64            `json:"fare"`
	Distance    float64            `json:"distance"`
	Duration    float64            `json:"duration"`
	Context     models.RideContext `json:"context"`
	RequestedAt time.Time          `json:"requested_at"`
}

// RideAcceptedEvent goes to the ride's room: assignment details for the
// rider plus the accepting driver.
type RideAcceptedEvent struct {
	Type       string           `json:"type"`
	RideID     string           `json:"ride_id"`
	Driver     models.DriverRef `json:"driver"`
	DriverLoc  models.Coord     `json:"driver_loc"`
	ETASeconds float64          `json:"eta_seconds"`
}

// RideWithdrawnEvent tells the global group a ride is no longer available.
type RideWithdrawnEvent struct {
	Type   string `json:"type"`
	RideID string `json:"ride_id"`
}

type RideStartedEvent struct {
	Type   string `json:"type"`
	RideID string `json:"ride_id"`
}

type RideCancelledEvent struct {
	Type   string `json:"type"`
	RideID string `json:"ride_id"`
	By     string `json:"by,omitempty"`
}

type RideCompletedEvent struct {
	Type   string `json:"type"`
	RideID string `json:"ride_id"`
}

func newRideRequestedEvent(r *ride.Ride) RideRequestedEvent {
	return RideRequestedEvent{
		Type:        EventRideRequested,
		RideID:      r.ID,
		Pickup:      r.Pickup,
		Dropoff:     r.Dropoff,
		PickupLoc:   r.PickupLoc,
		DropoffLoc:  r.DropoffLoc,
		Fare:        r.Fare,
		Distance:    r.Distance,
		Duration:    r.Duration,
		Context:     r.Context,
		RequestedAt: r.RequestedAt,
	}
}

// LifecycleEvent is the transition record handed to the analytics sink
// (Kafka feed). It mirrors, not replaces, the client-facing events above.
type LifecycleEvent struct {
	RideID string            `json:"ride_id"`
	Event  string            `json:"event"`
	Status ride.Status       `json:"status"`
	Driver *models.DriverRef `json:"driver,omitempty"`
	At     time.Time         `json:"at"`
}
