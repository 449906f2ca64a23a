package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/ride-dispatch/internal/eta"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/ride"
	"github.com/example/ride-dispatch/internal/storage"
)

// EventSink receives a copy of every committed lifecycle transition, e.g.
// a Kafka feed for analytics. Failures are logged and never veto the
// transition.
type EventSink interface {
	Publish(ctx context.Context, ev LifecycleEvent) error
}

// FareHolds is the payment collaborator boundary: hold the estimated fare
// at acceptance, capture on completion, release on cancellation. All calls
// are best-effort.
type FareHolds interface {
	Hold(ctx context.Context, rideID string, fare float64) error
	Capture(ctx context.Context, rideID string) error
	Release(ctx context.Context, rideID string) error
}

// Coordinator owns all shared dispatch state: the ride registry and the
// router membership tables. Transport-layer callbacks never touch either
// directly; every inbound event arrives as a method call here and every
// outbound push leaves through a per-connection queue.
type Coordinator struct {
	Registry *ride.Registry
	Router   *Router
	Events   *Broadcaster

	History storage.HistoryStore // optional terminal-ride archive
	Sink    EventSink            // optional lifecycle feed
	Fares   FareHolds            // optional payment collaborator

	ETAClient       eta.Client // optional routing engine
	ETACache        *eta.Cache // optional cache in front of it
	DefaultSpeedMps float64

	Logger *slog.Logger
}

func NewCoordinator(logger *slog.Logger) *Coordinator {
	router := NewRouter()
	return &Coordinator{
		Registry: ride.NewRegistry(),
		Router:   router,
		Events:   NewBroadcaster(router),
		Logger:   logger,
	}
}

// Connect registers a transport connection. Drivers join the global group
// immediately so they see every open request.
func (c *Coordinator) Connect(conn *Connection, driver bool) {
	c.Router.Register(conn)
	if driver {
		c.Router.JoinGlobal(conn)
	}
}

func (c *Coordinator) Disconnect(conn *Connection) {
	c.Router.Disconnect(conn)
}

func (c *Coordinator) JoinRide(conn *Connection, rideID string) {
	c.Router.JoinRide(conn, rideID)
}

func (c *Coordinator) LeaveRide(conn *Connection, rideID string) {
	c.Router.LeaveRide(conn, rideID)
}

// Request creates a ride in requested state and offers it to every
// connected driver.
func (c *Coordinator) Request(ctx context.Context, in ride.CreateInput) (*ride.Ride, error) {
	r := c.Registry.Create(in)
	observability.RidesRequestedTotal.Inc()
	c.Events.RideRequested(r)
	c.publish(ctx, LifecycleEvent{RideID: r.ID, Event: EventRideRequested, Status: r.Status, At: r.RequestedAt})
	c.logger().Info("ride requested", "ride_id", r.ID, "fare", r.Fare)
	return r, nil
}

// Accept arbitrates a driver's accept intent. The compare-and-swap on the
// registry decides the race; side effects are emitted only after it
// succeeds. A losing driver gets ride.ErrConflict, which the caller
// surfaces as "already taken".
func (c *Coordinator) Accept(ctx context.Context, rideID string, driver models.DriverRef, driverLoc models.Coord) (*ride.Ride, error) {
	r, err := c.Registry.SetStatus(rideID, ride.StatusRequested, ride.StatusAccepted, &driver, &driverLoc)
	if err != nil {
		observability.AcceptAttemptsTotal.WithLabelValues(acceptResult(err)).Inc()
		return nil, err
	}
	observability.AcceptAttemptsTotal.WithLabelValues("accepted").Inc()

	// The winning driver may not be in the room yet; pull its connection
	// in before broadcasting so the assignment reaches it too.
	if conn := c.Router.Connection(driver.ID); conn != nil {
		c.Router.JoinRide(conn, rideID)
	}
	c.Events.RideAccepted(r, c.pickupETA(driverLoc, r.PickupLoc))
	c.Events.RideWithdrawn(rideID)

	if c.Fares != nil {
		if err := c.Fares.Hold(ctx, rideID, r.Fare); err != nil {
			c.logger().Warn("fare hold failed", "ride_id", rideID, "error", err)
		}
	}
	c.publish(ctx, LifecycleEvent{RideID: rideID, Event: EventRideAccepted, Status: r.Status, Driver: r.Driver, At: r.UpdatedAt})
	c.logger().Info("ride accepted", "ride_id", rideID, "driver_id", driver.ID)
	return r, nil
}

// Start moves an accepted ride into started and notifies the room.
func (c *Coordinator) Start(ctx context.Context, rideID string) (*ride.Ride, error) {
	cur, err := c.Registry.Get(rideID)
	if err != nil {
		return nil, err
	}
	if !ride.CanTransition(cur.Status, ride.StatusStarted) {
		return nil, ride.ErrInvalidState
	}
	r, err := c.Registry.SetStatus(rideID, cur.Status, ride.StatusStarted, nil, nil)
	if err != nil {
		return nil, err
	}
	c.Events.RideStarted(rideID)
	c.publish(ctx, LifecycleEvent{RideID: rideID, Event: EventRideStarted, Status: r.Status, Driver: r.Driver, At: r.UpdatedAt})
	return r, nil
}

// Complete finishes a ride from started (or directly from accepted),
// archives it and captures the fare hold.
func (c *Coordinator) Complete(ctx context.Context, rideID string) (*ride.Ride, error) {
	cur, err := c.Registry.Get(rideID)
	if err != nil {
		return nil, err
	}
	if !ride.CanTransition(cur.Status, ride.StatusCompleted) {
		return nil, ride.ErrInvalidState
	}
	r, err := c.Registry.SetStatus(rideID, cur.Status, ride.StatusCompleted, nil, nil)
	if err != nil {
		return nil, err
	}
	c.Events.RideCompleted(rideID)
	c.archive(ctx, r)
	if c.Fares != nil {
		if err := c.Fares.Capture(ctx, rideID); err != nil {
			c.logger().Warn("fare capture failed", "ride_id", rideID, "error", err)
		}
	}
	c.publish(ctx, LifecycleEvent{RideID: rideID, Event: EventRideCompleted, Status: r.Status, Driver: r.Driver, At: r.UpdatedAt})
	c.logger().Info("ride completed", "ride_id", rideID)
	return r, nil
}

// Cancel moves a requested or accepted ride into cancelled under the same
// compare-and-swap discipline as acceptance: a ride that got accepted
// between the read and the swap is reported as a conflict, never silently
// cancelled under the assigned driver.
func (c *Coordinator) Cancel(ctx context.Context, rideID, by string) (*ride.Ride, error) {
	cur, err := c.Registry.Get(rideID)
	if err != nil {
		return nil, err
	}
	if !ride.CanTransition(cur.Status, ride.StatusCancelled) {
		return nil, ride.ErrInvalidState
	}
	wasRequested := cur.Status == ride.StatusRequested
	r, err := c.Registry.SetStatus(rideID, cur.Status, ride.StatusCancelled, nil, nil)
	if err != nil {
		return nil, err
	}
	c.Events.RideCancelled(rideID, by, wasRequested)
	c.archive(ctx, r)
	if c.Fares != nil && !wasRequested {
		if err := c.Fares.Release(ctx, rideID); err != nil {
			c.logger().Warn("fare release failed", "ride_id", rideID, "error", err)
		}
	}
	c.publish(ctx, LifecycleEvent{RideID: rideID, Event: EventRideCancelled, Status: r.Status, Driver: r.Driver, At: r.UpdatedAt})
	c.logger().Info("ride cancelled", "ride_id", rideID, "by", by)
	return r, nil
}

func (c *Coordinator) pickupETA(from, to models.Coord) float64 {
	if c.ETACache != nil {
		if v, ok := c.ETACache.Get(from, to); ok {
			return v
		}
	}
	if c.ETAClient != nil {
		if v, err := c.ETAClient.EstimateSeconds(from, to); err == nil {
			if c.ETACache != nil {
				c.ETACache.Set(from, to, v)
			}
			return v
		}
	}
	return eta.EstimateSeconds(from, to, c.DefaultSpeedMps)
}

func (c *Coordinator) archive(ctx context.Context, r *ride.Ride) {
	if c.History == nil {
		return
	}
	if err := c.History.Archive(ctx, r); err != nil {
		c.logger().Warn("history archive failed", "ride_id", r.ID, "error", err)
	}
}

func (c *Coordinator) publish(ctx context.Context, ev LifecycleEvent) {
	if c.Sink == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Sink.Publish(pubCtx, ev); err != nil {
		c.logger().Warn("lifecycle publish failed", "ride_id", ev.RideID, "event", ev.Event, "error", err)
	}
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func acceptResult(err error) string {
	switch {
	case errors.Is(err, ride.ErrConflict):
		return "already_taken"
	case errors.Is(err, ride.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
