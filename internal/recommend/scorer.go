// Package recommend ranks a driver's currently-visible ride requests by
// estimated profitability. It runs per driver over purely local data: the
// candidate set is rebuilt from ride_requested / ride_withdrawn /
// ride_cancelled events and never synchronized across drivers, so the
// scorer is a pure function with no shared state to protect.
package recommend

import (
	"sort"
	"time"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

// DefaultCostPerMile folds fuel, maintenance and depreciation into a single
// per-mile operating cost.
const DefaultCostPerMile = 0.32

// Scoring weights: absolute profit dominates, efficiency per mile and per
// minute split the rest.
const (
	weightProfit        = 0.4
	weightProfitPerMile = 0.3
	weightProfitPerMin  = 0.3
)

// Divisor floors for the efficiency ratios. A degenerate candidate with
// zero total miles or zero duration is scored against these instead of
// being excluded, matching the reference evaluator.
const (
	minMilesDivisor   = 0.1
	minMinutesDivisor = 1.0
)

// Candidate is one visible requested ride plus its scoring inputs.
type Candidate struct {
	RideID      string
	Pickup      models.Coord
	Dropoff     models.Coord
	Fare        float64
	Distance    float64 // paid miles
	Duration    float64 // minutes
	RequestedAt time.Time
}

// Score is the profitability breakdown for one candidate.
type Score struct {
	RideID        string
	Deadhead      float64 // unpaid miles from driver to pickup
	ReturnTrip    float64 // unpaid miles from dropoff back to driver
	TotalMiles    float64
	Profit        float64
	ProfitPerMile float64
	ProfitPerMin  float64
	Value         float64 // weighted final score
	RequestedAt   time.Time
}

type Scorer struct {
	CostPerMile float64
}

func NewScorer(costPerMile float64) Scorer {
	if costPerMile <= 0 {
		costPerMile = DefaultCostPerMile
	}
	return Scorer{CostPerMile: costPerMile}
}

// Score evaluates a single candidate against the driver's location.
func (s Scorer) Score(driver models.Coord, c Candidate) Score {
	deadhead := geo.DistanceMiles(driver, c.Pickup)
	returnTrip := geo.DistanceMiles(c.Dropoff, driver)
	totalMiles := c.Distance + deadhead + returnTrip
	profit := c.Fare - totalMiles*s.CostPerMile

	milesDiv := totalMiles
	if milesDiv < minMilesDivisor {
		milesDiv = minMilesDivisor
	}
	minutesDiv := c.Duration
	if minutesDiv < minMinutesDivisor {
		minutesDiv = minMinutesDivisor
	}
	perMile := profit / milesDiv
	perMin := profit / minutesDiv

	return Score{
		RideID:        c.RideID,
		Deadhead:      deadhead,
		ReturnTrip:    returnTrip,
		TotalMiles:    totalMiles,
		Profit:        profit,
		ProfitPerMile: perMile,
		ProfitPerMin:  perMin,
		Value:         weightProfit*profit + weightProfitPerMile*perMile + weightProfitPerMin*perMin,
		RequestedAt:   c.RequestedAt,
	}
}

// Rank scores every candidate and sorts best first. Ties break on earliest
// request time, then ride id, so repeated evaluation of the same set is
// deterministic.
func (s Scorer) Rank(driver models.Coord, cands []Candidate) []Score {
	out := make([]Score, 0, len(cands))
	for _, c := range cands {
		out = append(out, s.Score(driver, c))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.Before(out[j].RequestedAt)
		}
		return out[i].RideID < out[j].RideID
	})
	return out
}

// Best returns the recommended candidate, or false for an empty set.
func (s Scorer) Best(driver models.Coord, cands []Candidate) (Score, bool) {
	ranked := s.Rank(driver, cands)
	if len(ranked) == 0 {
		return Score{}, false
	}
	return ranked[0], true
}
