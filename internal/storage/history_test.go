package storage

import (
	"context"
	"testing"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/ride"
)

func TestMemoryHistoryArchiveOverwrites(t *testing.T) {
	h := NewMemoryHistory()
	r := &ride.Ride{ID: "r1", Status: ride.StatusCancelled, Fare: 9}
	if err := h.Archive(context.Background(), r); err != nil {
		t.Fatalf("archive: %v", err)
	}
	r2 := *r
	r2.Status = ride.StatusCompleted
	r2.Driver = &models.DriverRef{ID: "d1"}
	if err := h.Archive(context.Background(), &r2); err != nil {
		t.Fatalf("archive: %v", err)
	}
	got, ok := h.Get("r1")
	if !ok {
		t.Fatal("expected archived ride")
	}
	if got.Status != ride.StatusCompleted || got.Driver == nil {
		t.Fatalf("unexpected archived state: %+v", got)
	}
}
