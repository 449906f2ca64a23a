package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/models"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.ServerConfig{
		DispatchBuffer:  16,
		DefaultSpeedMps: 10,
		CostPerMile:     0.32,
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewServer(cfg, logger)
}

func postJSON(t *testing.T, srv http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func requestRide(t *testing.T, srv *Server) string {
	t.Helper()
	rec := postJSON(t, srv, "/api/v1/rides/request", requestRideBody{
		Pickup:     "Airport",
		Dropoff:    "Downtown",
		PickupLoc:  models.Coord{Lat: 37.62, Lon: -122.38},
		DropoffLoc: models.Coord{Lat: 37.77, Lon: -122.42},
		Fare:       23.50,
		Distance:   13.2,
		Duration:   25,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("request ride status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		RideID string `json:"ride_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RideID == "" || resp.Status != "requested" {
		t.Fatalf("unexpected response %+v", resp)
	}
	return resp.RideID
}

func TestRequestAndGetRide(t *testing.T) {
	srv := newTestServer(t)
	id := requestRide(t, srv)

	req := httptest.NewRequest("GET", "/api/v1/rides/"+id, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get ride status=%d", rec.Code)
	}
	var got struct {
		ID     string  `json:"id"`
		Status string  `json:"status"`
		Fare   float64 `json:"fare"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != id || got.Status != "requested" || got.Fare != 23.50 {
		t.Fatalf("unexpected ride %+v", got)
	}
}

func TestGetUnknownRideReturns404(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/v1/rides/nope", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
}

func TestSecondAcceptConflicts(t *testing.T) {
	srv := newTestServer(t)
	id := requestRide(t, srv)

	accept := func(driverID string) *httptest.ResponseRecorder {
		return postJSON(t, srv, "/api/v1/rides/accept", acceptRideBody{
			RideID:    id,
			Driver:    models.DriverRef{ID: driverID, Name: "Drv " + driverID},
			DriverLoc: models.Coord{Lat: 37.63, Lon: -122.39},
		})
	}

	if rec := accept("d1"); rec.Code != http.StatusOK {
		t.Fatalf("first accept status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec := accept("d2")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second accept status=%d, want 409", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["error"] != "already_taken" {
		t.Fatalf("unexpected error body %v", resp)
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	srv := newTestServer(t)
	id := requestRide(t, srv)

	if rec := postJSON(t, srv, "/api/v1/rides/start", rideIDBody{RideID: id}); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("start before accept status=%d, want 422", rec.Code)
	}
	if rec := postJSON(t, srv, "/api/v1/rides/accept", acceptRideBody{RideID: id, Driver: models.DriverRef{ID: "d1"}}); rec.Code != http.StatusOK {
		t.Fatalf("accept status=%d", rec.Code)
	}
	if rec := postJSON(t, srv, "/api/v1/rides/start", rideIDBody{RideID: id}); rec.Code != http.StatusOK {
		t.Fatalf("start status=%d", rec.Code)
	}
	if rec := postJSON(t, srv, "/api/v1/rides/cancel", rideIDBody{RideID: id, By: "rider"}); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("cancel after start status=%d, want 422", rec.Code)
	}
	if rec := postJSON(t, srv, "/api/v1/rides/complete", rideIDBody{RideID: id}); rec.Code != http.StatusOK {
		t.Fatalf("complete status=%d", rec.Code)
	}
	if rec := postJSON(t, srv, "/api/v1/rides/complete", rideIDBody{RideID: id}); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("double complete status=%d, want 422", rec.Code)
	}
}

func TestAvailableRidesListsOnlyOpenOnes(t *testing.T) {
	srv := newTestServer(t)
	open := requestRide(t, srv)
	taken := requestRide(t, srv)
	if rec := postJSON(t, srv, "/api/v1/rides/accept", acceptRideBody{RideID: taken, Driver: models.DriverRef{ID: "d1"}}); rec.Code != http.StatusOK {
		t.Fatalf("accept status=%d", rec.Code)
	}

	req := httptest.NewRequest("GET", "/api/v1/rides/available", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("available status=%d", rec.Code)
	}
	var resp struct {
		Rides []struct {
			ID string `json:"id"`
		} `json:"rides"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Rides) != 1 || resp.Rides[0].ID != open {
		t.Fatalf("unexpected available set %+v", resp.Rides)
	}
}

func TestDriverLocationUpdatesPresence(t *testing.T) {
	srv := newTestServer(t)
	rec := postJSON(t, srv, "/internal/driver/locations", models.Driver{
		ID:     "d1",
		Loc:    models.Coord{Lat: 37.7, Lon: -122.4},
		Rating: 4.8,
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status=%d, want 204", rec.Code)
	}
	near := srv.Presence.Nearby(37.7, -122.4, 5)
	if len(near) != 1 || near[0].ID != "d1" {
		t.Fatalf("unexpected presence %+v", near)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
}
