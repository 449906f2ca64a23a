package ride

import (
	"errors"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// Status is the lifecycle state of a ride. Transitions are monotonic along
// requested -> accepted -> started -> completed, with cancelled reachable
// from requested or accepted only.
type Status string

const (
	StatusRequested Status = "requested"
	StatusAccepted  Status = "accepted"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var (
	// ErrNotFound: the referenced ride id does not exist.
	ErrNotFound = errors.New("ride not found")
	// ErrConflict: the transition precondition no longer holds, e.g. a
	// second driver accepting. Expected under concurrency, not a fault.
	ErrConflict = errors.New("ride state conflict")
	// ErrInvalidState: the requested transition is meaningless from the
	// ride's current status, e.g. completing a cancelled ride.
	ErrInvalidState = errors.New("invalid state transition")
)

// CanTransition reports whether to is a legal next status after from.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusRequested:
		return to == StatusAccepted || to == StatusCancelled
	case StatusAccepted:
		return to == StatusStarted || to == StatusCompleted || to == StatusCancelled
	case StatusStarted:
		return to == StatusCompleted
	default:
		return false
	}
}

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Ride struct {
	ID          string             `json:"id"`
	Pickup      string             `json:"pickup"`
	Dropoff     string             `json:"dropoff"`
	PickupLoc   models.Coord       `json:"pickup_loc"`
	DropoffLoc  models.Coord       `json:"dropoff_loc"`
	Fare        float64            `json:"fare"`
	Distance    float64            `json:"distance"` // paid miles, rider-facing estimate
	Duration    float64            `json:"duration"` // minutes
	Status      Status             `json:"status"`
	Driver      *models.DriverRef  `json:"driver,omitempty"`
	DriverLoc   *models.Coord      `json:"driver_loc,omitempty"`
	Context     models.RideContext `json:"context"`
	RequestedAt time.Time          `json:"requested_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// CreateInput is everything the rider-facing collaborator supplies when
// booking. Fare is already estimated by the external pricing service.
type CreateInput struct {
	Pickup     string
	Dropoff    string
	PickupLoc  models.Coord
	DropoffLoc models.Coord
	Fare       float64
	Distance   float64
	Duration   float64
	Context    models.RideContext
}
