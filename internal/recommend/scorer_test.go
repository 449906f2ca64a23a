package recommend

import (
	"math"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

// Fare 10, distance 5 mi, duration 15 min, pickup at the driver's position,
// dropoff one degree of longitude away. Expected score computed from the
// published formula with costPerMile=0.32.
func TestScoreKnownRide(t *testing.T) {
	driver := models.Coord{Lat: 0, Lon: 0}
	c := Candidate{
		RideID:   "r1",
		Pickup:   models.Coord{Lat: 0, Lon: 0},
		Dropoff:  models.Coord{Lat: 0, Lon: 1},
		Fare:     10,
		Distance: 5,
		Duration: 15,
	}
	s := NewScorer(0.32)

	deadhead := geo.DistanceMiles(driver, c.Pickup)
	returnTrip := geo.DistanceMiles(c.Dropoff, driver)
	totalMiles := 5 + deadhead + returnTrip
	profit := 10 - totalMiles*0.32
	want := 0.4*profit + 0.3*(profit/totalMiles) + 0.3*(profit/15)

	got := s.Score(driver, c)
	if got.Deadhead != 0 {
		t.Fatalf("expected zero deadhead, got %f", got.Deadhead)
	}
	if math.Abs(got.Value-want) > 1e-6 {
		t.Fatalf("expected score %f, got %f", want, got.Value)
	}
}

func TestScoreZeroMilesUsesFlooredDivisors(t *testing.T) {
	// pickup == dropoff == driver, zero paid distance and duration
	p := models.Coord{Lat: 10, Lon: 10}
	c := Candidate{RideID: "r1", Pickup: p, Dropoff: p, Fare: 4}
	s := NewScorer(0.32)

	got := s.Score(p, c)
	if got.TotalMiles != 0 {
		t.Fatalf("expected zero total miles, got %f", got.TotalMiles)
	}
	wantPerMile := 4.0 / minMilesDivisor
	wantPerMin := 4.0 / minMinutesDivisor
	if math.Abs(got.ProfitPerMile-wantPerMile) > 1e-9 || math.Abs(got.ProfitPerMin-wantPerMin) > 1e-9 {
		t.Fatalf("divisor floors not applied: %+v", got)
	}
	if math.IsInf(got.Value, 0) || math.IsNaN(got.Value) {
		t.Fatalf("score must stay finite, got %f", got.Value)
	}
}

func TestRankPrefersHigherProfit(t *testing.T) {
	driver := models.Coord{Lat: 0, Lon: 0}
	near := models.Coord{Lat: 0, Lon: 0.01}
	cands := []Candidate{
		{RideID: "cheap", Pickup: driver, Dropoff: near, Fare: 5, Distance: 2, Duration: 10},
		{RideID: "rich", Pickup: driver, Dropoff: near, Fare: 25, Distance: 2, Duration: 10},
	}
	best, ok := NewScorer(0).Best(driver, cands)
	if !ok {
		t.Fatal("expected a recommendation")
	}
	if best.RideID != "rich" {
		t.Fatalf("expected rich, got %s", best.RideID)
	}
}

func TestRankTieBreaksOnEarliestRequest(t *testing.T) {
	driver := models.Coord{Lat: 0, Lon: 0}
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	// identical economics, differing only in request time
	mk := func(id string, at time.Time) Candidate {
		return Candidate{RideID: id, Pickup: driver, Dropoff: driver, Fare: 8, Distance: 3, Duration: 12, RequestedAt: at}
	}
	cands := []Candidate{
		mk("later", base.Add(time.Minute)),
		mk("earlier", base),
	}
	best, _ := NewScorer(0).Best(driver, cands)
	if best.RideID != "earlier" {
		t.Fatalf("expected earlier request to win the tie, got %s", best.RideID)
	}
}

func TestRankDeterministic(t *testing.T) {
	driver := models.Coord{Lat: 8.5, Lon: 76.9}
	cands := []Candidate{
		{RideID: "a", Pickup: models.Coord{Lat: 8.51, Lon: 76.91}, Dropoff: models.Coord{Lat: 8.6, Lon: 76.95}, Fare: 12, Distance: 7, Duration: 20},
		{RideID: "b", Pickup: models.Coord{Lat: 8.52, Lon: 76.92}, Dropoff: models.Coord{Lat: 8.55, Lon: 76.99}, Fare: 9, Distance: 4, Duration: 14},
		{RideID: "c", Pickup: models.Coord{Lat: 8.49, Lon: 76.93}, Dropoff: models.Coord{Lat: 8.45, Lon: 76.90}, Fare: 15, Distance: 6, Duration: 25},
	}
	s := NewScorer(0.32)
	first, _ := s.Best(driver, cands)
	for i := 0; i < 10; i++ {
		again, _ := s.Best(driver, cands)
		if again.RideID != first.RideID || again.Value != first.Value {
			t.Fatalf("non-deterministic recommendation: %s vs %s", first.RideID, again.RideID)
		}
	}
}

func TestBestEmptySet(t *testing.T) {
	if _, ok := NewScorer(0).Best(models.Coord{}, nil); ok {
		t.Fatal("expected no recommendation for empty set")
	}
}
