package ride

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func testInput() CreateInput {
	return CreateInput{
		Pickup:     "Downtown",
		Dropoff:    "Airport",
		PickupLoc:  models.Coord{Lat: 8.5241, Lon: 76.9366},
		DropoffLoc: models.Coord{Lat: 8.4855, Lon: 76.9492},
		Fare:       12.5,
		Distance:   6.2,
		Duration:   18,
	}
}

func TestCreateAndGet(t *testing.T) {
	reg := NewRegistry()
	r := reg.Create(testInput())
	if r.ID == "" {
		t.Fatal("expected generated id")
	}
	if r.Status != StatusRequested {
		t.Fatalf("expected requested, got %s", r.Status)
	}
	got, err := reg.Get(r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Pickup != "Downtown" || got.Fare != 12.5 {
		t.Fatalf("unexpected ride: %+v", got)
	}
	if _, err := reg.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetStatusCAS(t *testing.T) {
	reg := NewRegistry()
	r := reg.Create(testInput())
	d := models.DriverRef{ID: "d1", Vehicle: "sedan"}
	loc := models.Coord{Lat: 8.52, Lon: 76.93}

	got, err := reg.SetStatus(r.ID, StatusRequested, StatusAccepted, &d, &loc)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.Status != StatusAccepted {
		t.Fatalf("expected accepted, got %s", got.Status)
	}
	if got.Driver == nil || got.Driver.ID != "d1" {
		t.Fatalf("expected driver attached, got %+v", got.Driver)
	}

	// second accept attempt must fail without mutation
	if _, err := reg.SetStatus(r.ID, StatusRequested, StatusAccepted, &models.DriverRef{ID: "d2"}, nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, _ = reg.Get(r.ID)
	if got.Driver.ID != "d1" {
		t.Fatalf("driver overwritten: %+v", got.Driver)
	}
}

func TestSetStatusNotFound(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.SetStatus("nope", StatusRequested, StatusAccepted, nil, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// N concurrent accepts with distinct drivers: exactly one wins, the rest
// observe a conflict, and exactly one driver ends up attached.
func TestConcurrentAcceptSingleWinner(t *testing.T) {
	reg := NewRegistry()
	r := reg.Create(testInput())

	const attempts = 16
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		d := models.DriverRef{ID: fmt.Sprintf("d%d", i)}
		wg.Add(1)
		go func(d models.DriverRef) {
			defer wg.Done()
			_, err := reg.SetStatus(r.ID, StatusRequested, StatusAccepted, &d, nil)
			errs <- err
		}(d)
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", wins)
	}
	got, _ := reg.Get(r.ID)
	if got.Status != StatusAccepted || got.Driver == nil {
		t.Fatalf("unexpected final state: %+v", got)
	}
}

func TestConcurrentTransitionsOnDistinctRides(t *testing.T) {
	reg := NewRegistry()
	const n = 32
	ids := make([]string, n)
	for i := range ids {
		ids[i] = reg.Create(testInput()).ID
	}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := reg.SetStatus(id, StatusRequested, StatusAccepted, &models.DriverRef{ID: "d"}, nil); err != nil {
				t.Errorf("accept %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusRequested, StatusAccepted, true},
		{StatusRequested, StatusCancelled, true},
		{StatusRequested, StatusStarted, false},
		{StatusRequested, StatusCompleted, false},
		{StatusAccepted, StatusStarted, true},
		{StatusAccepted, StatusCompleted, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusAccepted, StatusRequested, false},
		{StatusStarted, StatusCompleted, true},
		{StatusStarted, StatusCancelled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusAccepted, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestRequestedExcludesNonRequested(t *testing.T) {
	reg := NewRegistry()
	a := reg.Create(testInput())
	b := reg.Create(testInput())
	c := reg.Create(testInput())
	if _, err := reg.SetStatus(b.ID, StatusRequested, StatusAccepted, &models.DriverRef{ID: "d1"}, nil); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := reg.SetStatus(c.ID, StatusRequested, StatusCancelled, nil, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	open := reg.Requested()
	if len(open) != 1 || open[0].ID != a.ID {
		t.Fatalf("expected only %s requested, got %+v", a.ID, open)
	}
}
