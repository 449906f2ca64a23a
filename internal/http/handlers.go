package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/ride"
)

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/rides/request", s.handleRequestRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/accept", s.handleAcceptRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/start", s.handleStartRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/complete", s.handleCompleteRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/cancel", s.handleCancelRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/available", s.handleAvailableRides).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}", s.handleGetRide).Methods("GET")
	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/ws/{role}/{client_id}", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type requestRideBody struct {
	Pickup     string             `json:"pickup"`
	Dropoff    string             `json:"dropoff"`
	PickupLoc  models.Coord       `json:"pickup_loc"`
	DropoffLoc models.Coord       `json:"dropoff_loc"`
	Fare       float64            `json:"fare"`
	Distance   float64            `json:"distance"`
	Duration   float64            `json:"duration"`
	Context    models.RideContext `json:"context"`
}

func (s *Server) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	var body requestRideBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	created, err := s.Coord.Request(r.Context(), ride.CreateInput{
		Pickup:     body.Pickup,
		Dropoff:    body.Dropoff,
		PickupLoc:  body.PickupLoc,
		DropoffLoc: body.DropoffLoc,
		Fare:       body.Fare,
		Distance:   body.Distance,
		Duration:   body.Duration,
		Context:    body.Context,
	})
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ride_id": created.ID, "status": created.Status})
}

type acceptRideBody struct {
	RideID    string           `json:"ride_id"`
	Driver    models.DriverRef `json:"driver"`
	DriverLoc models.Coord     `json:"driver_loc"`
}

func (s *Server) handleAcceptRide(w http.ResponseWriter, r *http.Request) {
	var body acceptRideBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.RideID == "" || body.Driver.ID == "" {
		http.Error(w, "ride_id and driver.id are required", http.StatusBadRequest)
		return
	}
	accepted, err := s.Coord.Accept(r.Context(), body.RideID, body.Driver, body.DriverLoc)
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ride": accepted})
}

type rideIDBody struct {
	RideID string `json:"ride_id"`
	By     string `json:"by,omitempty"`
}

func (s *Server) handleStartRide(w http.ResponseWriter, r *http.Request) {
	var body rideIDBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	started, err := s.Coord.Start(r.Context(), body.RideID)
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ride_id": started.ID, "status": started.Status})
}

func (s *Server) handleCompleteRide(w http.ResponseWriter, r *http.Request) {
	var body rideIDBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	done, err := s.Coord.Complete(r.Context(), body.RideID)
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ride_id": done.ID, "status": done.Status})
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	var body rideIDBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cancelled, err := s.Coord.Cancel(r.Context(), body.RideID, body.By)
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ride_id": cancelled.ID, "status": cancelled.Status})
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["ride_id"]
	got, err := s.Coord.Registry.Get(id)
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, got)
}

// handleAvailableRides lets a late-connecting driver seed its candidate
// set with every ride still open.
func (s *Server) handleAvailableRides(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"rides": s.Coord.Registry.Requested()})
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var d models.Driver
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	d.Online = true
	if s.Locations != nil {
		if err := s.Locations.PublishLocation(d); err != nil {
			s.logger.Warn("location publish failed", "driver_id", d.ID, "error", err)
		}
	}
	s.Presence.Upsert(d)
	observability.DriversOnline.Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

// writeRideError maps the registry's sentinel errors onto HTTP statuses.
// Conflicts and invalid states are expected outcomes, not faults.
func (s *Server) writeRideError(w http.ResponseWriter, err error) {
	code := rideErrorCode(err)
	var status int
	switch code {
	case "not_found":
		status = http.StatusNotFound
	case "already_taken":
		status = http.StatusConflict
	case "invalid_state":
		status = http.StatusUnprocessableEntity
	default:
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, map[string]string{"error": code})
}

// rideErrorCode is the wire-level error code shared by the HTTP responses
// and the WebSocket error events.
func rideErrorCode(err error) string {
	switch {
	case errors.Is(err, ride.ErrNotFound):
		return "not_found"
	case errors.Is(err, ride.ErrConflict):
		return "already_taken"
	case errors.Is(err, ride.ErrInvalidState):
		return "invalid_state"
	default:
		return "internal"
	}
}

func stripeConfigured() bool { return os.Getenv("STRIPE_API_KEY") != "" }
