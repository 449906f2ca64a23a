package httpapi

import (
	"encoding/json"
	"testing"

	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/models"
)

func command(t *testing.T, typ string, data any) wsCommand {
	t.Helper()
	b, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return wsCommand{Type: typ, Data: b}
}

func drainEvents(t *testing.T, conn *dispatch.Connection) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case msg, ok := <-conn.Outbound():
			if !ok {
				return out
			}
			var ev map[string]any
			if err := json.Unmarshal(msg, &ev); err != nil {
				t.Fatalf("unmarshal event: %v", err)
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestRequestRideCommandBooksAndJoinsRoom(t *testing.T) {
	srv := newTestServer(t)

	rider := dispatch.NewConnection("r1", 16)
	srv.Coord.Connect(rider, false)

	srv.dispatchCommand(rider, command(t, "request_ride", requestRideBody{
		Pickup:  "A",
		Dropoff: "B",
		Fare:    12,
	}))

	events := drainEvents(t, rider)
	if len(events) != 1 || events[0]["type"] != "ride_booked" {
		t.Fatalf("unexpected events %v", events)
	}
	rideID, _ := events[0]["ride_id"].(string)
	if rideID == "" {
		t.Fatalf("missing ride_id in %v", events[0])
	}

	// the booking joined the rider to its room, so room-scoped events land
	driver := dispatch.NewConnection("d1", 16)
	srv.Coord.Connect(driver, true)
	srv.dispatchCommand(driver, command(t, "accept_ride", acceptRideBody{RideID: rideID}))

	var sawAccepted bool
	for _, ev := range drainEvents(t, rider) {
		if ev["type"] == "ride_accepted" {
			sawAccepted = true
		}
	}
	if !sawAccepted {
		t.Fatalf("rider did not receive ride_accepted")
	}
}

func TestAcceptCommandLoserGetsErrorEvent(t *testing.T) {
	srv := newTestServer(t)
	id := requestRide(t, srv)

	winner := dispatch.NewConnection("d1", 16)
	loser := dispatch.NewConnection("d2", 16)
	srv.Coord.Connect(winner, true)
	srv.Coord.Connect(loser, true)
	drainEvents(t, winner)
	drainEvents(t, loser)

	srv.dispatchCommand(winner, command(t, "accept_ride", acceptRideBody{
		RideID:    id,
		DriverLoc: models.Coord{Lat: 1, Lon: 1},
	}))
	srv.dispatchCommand(loser, command(t, "accept_ride", acceptRideBody{RideID: id}))

	var loserErr string
	for _, ev := range drainEvents(t, loser) {
		if ev["type"] == "error" {
			loserErr, _ = ev["error"].(string)
		}
	}
	if loserErr != "already_taken" {
		t.Fatalf("loser error = %q, want already_taken", loserErr)
	}

	for _, ev := range drainEvents(t, winner) {
		if ev["type"] == "error" {
			t.Fatalf("winner got error event %v", ev)
		}
	}

	got, err := srv.Coord.Registry.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Driver == nil || got.Driver.ID != "d1" {
		t.Fatalf("assigned driver %+v, want d1 from connection id", got.Driver)
	}
}

func TestLifecycleCommandsOverSocket(t *testing.T) {
	srv := newTestServer(t)
	id := requestRide(t, srv)

	driver := dispatch.NewConnection("d1", 16)
	srv.Coord.Connect(driver, true)
	drainEvents(t, driver)

	srv.dispatchCommand(driver, command(t, "accept_ride", acceptRideBody{RideID: id}))
	srv.dispatchCommand(driver, command(t, "start_ride", rideRef{RideID: id}))
	srv.dispatchCommand(driver, command(t, "complete_ride", rideRef{RideID: id}))

	var types []string
	for _, ev := range drainEvents(t, driver) {
		s, _ := ev["type"].(string)
		types = append(types, s)
	}
	want := []string{"ride_accepted", "ride_withdrawn", "ride_started", "ride_completed"}
	if len(types) != len(want) {
		t.Fatalf("events %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events %v, want %v", types, want)
		}
	}

	srv.dispatchCommand(driver, command(t, "cancel_ride", rideRef{RideID: id, By: "driver"}))
	events := drainEvents(t, driver)
	if len(events) != 1 || events[0]["type"] != "error" || events[0]["error"] != "invalid_state" {
		t.Fatalf("cancel on completed ride produced %v", events)
	}
}
