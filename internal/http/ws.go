package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/ride"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	maxMsgSize   = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// authentication of dispatch messages is delegated to the fronting
	// layer; origins are not restricted here
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsCommand is an inbound typed message from a connected client. Lifecycle
// commands mirror the HTTP endpoints so a driver app can run entirely over
// its socket.
type wsCommand struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type rideRef struct {
	RideID string `json:"ride_id"`
	By     string `json:"by,omitempty"`
}

type bookedEvent struct {
	Type   string `json:"type"`
	RideID string `json:"ride_id"`
	Status string `json:"status"`
}

type errorEvent struct {
	Type   string `json:"type"`
	RideID string `json:"ride_id,omitempty"`
	Error  string `json:"error"`
}

// handleWS upgrades /ws/{role}/{client_id} into a dispatch connection.
// Drivers join the global group immediately; riders join their ride's room
// with an explicit join_ride command.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	role, clientID := vars["role"], vars["client_id"]
	if clientID == "" || (role != "rider" && role != "driver") {
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	conn := dispatch.NewConnection(clientID, s.cfg.DispatchBuffer)
	s.Coord.Connect(conn, role == "driver")
	s.logger.Info("ws connected", "client_id", clientID, "role", role)

	go s.writePump(ws, conn)
	go s.readPump(ws, conn)
}

// readPump consumes typed commands until the peer goes away, then tears
// down every membership the connection held.
func (s *Server) readPump(ws *websocket.Conn, conn *dispatch.Connection) {
	defer func() {
		s.Coord.Disconnect(conn)
		_ = ws.Close()
	}()
	ws.SetReadLimit(maxMsgSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("ws read error", "client_id", conn.ID(), "error", err)
			}
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			s.logger.Warn("ws bad command", "client_id", conn.ID(), "error", err)
			continue
		}
		s.dispatchCommand(conn, cmd)
	}
}

// dispatchCommand routes one inbound command to the coordinator. Failed
// lifecycle commands are answered with an error event on the same
// connection; the socket stays up.
func (s *Server) dispatchCommand(conn *dispatch.Connection, cmd wsCommand) {
	ctx := context.Background()
	switch cmd.Type {
	case "join_ride":
		var ref rideRef
		if err := json.Unmarshal(cmd.Data, &ref); err == nil && ref.RideID != "" {
			s.Coord.JoinRide(conn, ref.RideID)
		}
	case "leave_ride":
		var ref rideRef
		if err := json.Unmarshal(cmd.Data, &ref); err == nil && ref.RideID != "" {
			s.Coord.LeaveRide(conn, ref.RideID)
		}
	case "request_ride":
		var body requestRideBody
		if err := json.Unmarshal(cmd.Data, &body); err != nil {
			s.sendError(conn, "", "bad_request")
			return
		}
		created, err := s.Coord.Request(ctx, ride.CreateInput{
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
			s.sendError(conn, "", rideErrorCode(err))
			return
		}
		// the requesting rider follows its own ride
		s.Coord.JoinRide(conn, created.ID)
		if msg, err := json.Marshal(bookedEvent{Type: "ride_booked", RideID: created.ID, Status: string(created.Status)}); err == nil {
			s.Coord.Router.SendTo(conn, msg)
		}
	case "accept_ride":
		var body acceptRideBody
		if err := json.Unmarshal(cmd.Data, &body); err != nil || body.RideID == "" {
			s.sendError(conn, body.RideID, "bad_request")
			return
		}
		if body.Driver.ID == "" {
			body.Driver.ID = conn.ID()
		}
		if _, err := s.Coord.Accept(ctx, body.RideID, body.Driver, body.DriverLoc); err != nil {
			s.sendError(conn, body.RideID, rideErrorCode(err))
		}
	case "start_ride":
		var ref rideRef
		if err := json.Unmarshal(cmd.Data, &ref); err != nil || ref.RideID == "" {
			s.sendError(conn, ref.RideID, "bad_request")
			return
		}
		if _, err := s.Coord.Start(ctx, ref.RideID); err != nil {
			s.sendError(conn, ref.RideID, rideErrorCode(err))
		}
	case "complete_ride":
		var ref rideRef
		if err := json.Unmarshal(cmd.Data, &ref); err != nil || ref.RideID == "" {
			s.sendError(conn, ref.RideID, "bad_request")
			return
		}
		if _, err := s.Coord.Complete(ctx, ref.RideID); err != nil {
			s.sendError(conn, ref.RideID, rideErrorCode(err))
		}
	case "cancel_ride":
		var ref rideRef
		if err := json.Unmarshal(cmd.Data, &ref); err != nil || ref.RideID == "" {
			s.sendError(conn, ref.RideID, "bad_request")
			return
		}
		if _, err := s.Coord.Cancel(ctx, ref.RideID, ref.By); err != nil {
			s.sendError(conn, ref.RideID, rideErrorCode(err))
		}
	default:
		s.logger.Debug("ws unknown command", "client_id", conn.ID(), "type", cmd.Type)
	}
}

func (s *Server) sendError(conn *dispatch.Connection, rideID, code string) {
	if msg, err := json.Marshal(errorEvent{Type: "error", RideID: rideID, Error: code}); err == nil {
		s.Coord.Router.SendTo(conn, msg)
	}
}

// writePump drains the connection's outbound queue into the socket and
// keeps the peer alive with pings.
func (s *Server) writePump(ws *websocket.Conn, conn *dispatch.Connection) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()
	for {
		select {
		case msg, ok := <-conn.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
