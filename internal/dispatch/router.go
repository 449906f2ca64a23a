package dispatch

import (
	"sync"

	"github.com/example/ride-dispatch/internal/observability"
)

const DefaultBuffer = 256

// Connection is one subscriber endpoint with a bounded outbound queue. The
// transport layer (WebSocket handler, test harness) drains Outbound; the
// router pushes without ever blocking. A full queue drops the event for
// this recipient only.
type Connection struct {
	id string

	mu     sync.Mutex
	out    chan []byte
	closed bool
}

func NewConnection(id string, buffer int) *Connection {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Connection{id: id, out: make(chan []byte, buffer)}
}

func (c *Connection) ID() string { return c.id }

// Outbound is the queue the transport layer drains. It is closed when the
// connection is removed from the router.
func (c *Connection) Outbound() <-chan []byte { return c.out }

func (c *Connection) push(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.out <- msg:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
	c.mu.Unlock()
}

// Router owns all audience state: the global group every available driver
// subscribes to, and one room per ride scoped to the rider and the assigned
// driver. Connections never touch this mapping directly.
type Router struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	global map[*Connection]struct{}
	rooms  map[string]map[*Connection]struct{}
}

func NewRouter() *Router {
	return &Router{
		conns:  make(map[string]*Connection),
		global: make(map[*Connection]struct{}),
		rooms:  make(map[string]map[*Connection]struct{}),
	}
}

// Register makes the connection addressable by id. A connection registered
// under an id already in use replaces the stale entry; the old connection
// is dropped from every group.
func (r *Router) Register(c *Connection) {
	r.mu.Lock()
	old := r.conns[c.id]
	if old != nil && old != c {
		r.removeLocked(old)
	}
	r.conns[c.id] = c
	r.mu.Unlock()
	if old != nil && old != c {
		old.close()
	}
	observability.ConnectionsActive.Set(float64(r.Len()))
}

// Connection returns the registered connection for id, or nil.
func (r *Router) Connection(id string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// JoinGlobal subscribes the connection to every ride_requested broadcast.
func (r *Router) JoinGlobal(c *Connection) {
	r.mu.Lock()
	r.global[c] = struct{}{}
	r.mu.Unlock()
}

func (r *Router) LeaveGlobal(c *Connection) {
	r.mu.Lock()
	delete(r.global, c)
	r.mu.Unlock()
}

// JoinRide subscribes the connection to one ride's room. Joining twice is
// a no-op.
func (r *Router) JoinRide(c *Connection, rideID string) {
	r.mu.Lock()
	room, ok := r.rooms[rideID]
	if !ok {
		room = make(map[*Connection]struct{})
		r.rooms[rideID] = room
	}
	room[c] = struct{}{}
	rooms := len(r.rooms)
	r.mu.Unlock()
	observability.RoomsActive.Set(float64(rooms))
}

// LeaveRide is idempotent; leaving a room the connection never joined is a
// no-op, not an error.
func (r *Router) LeaveRide(c *Connection, rideID string) {
	r.mu.Lock()
	if room, ok := r.rooms[rideID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(r.rooms, rideID)
		}
	}
	rooms := len(r.rooms)
	r.mu.Unlock()
	observability.RoomsActive.Set(float64(rooms))
}

// Disconnect removes the connection from the global group and every room,
// then closes its outbound queue. No membership survives a disconnect.
func (r *Router) Disconnect(c *Connection) {
	r.mu.Lock()
	r.removeLocked(c)
	rooms := len(r.rooms)
	conns := len(r.conns)
	r.mu.Unlock()
	c.close()
	observability.RoomsActive.Set(float64(rooms))
	observability.ConnectionsActive.Set(float64(conns))
}

func (r *Router) removeLocked(c *Connection) {
	if cur, ok := r.conns[c.id]; ok && cur == c {
		delete(r.conns, c.id)
	}
	delete(r.global, c)
	for rideID, room := range r.rooms {
		delete(room, c)
		if len(room) == 0 {
			delete(r.rooms, rideID)
		}
	}
}

// BroadcastGlobal fans msg out to the global group, fire-and-forget.
func (r *Router) BroadcastGlobal(msg []byte) {
	r.mu.RLock()
	targets := make([]*Connection, 0, len(r.global))
	for c := range r.global {
		targets = append(targets, c)
	}
	r.mu.RUnlock()
	r.deliver(targets, msg)
}

// BroadcastToRide fans msg out to the ride's room. An empty or missing
// room delivers to nobody.
func (r *Router) BroadcastToRide(rideID string, msg []byte) {
	r.mu.RLock()
	room := r.rooms[rideID]
	targets := make([]*Connection, 0, len(room))
	for c := range room {
		targets = append(targets, c)
	}
	r.mu.RUnlock()
	r.deliver(targets, msg)
}

// SendTo pushes msg to a single connection.
func (r *Router) SendTo(c *Connection, msg []byte) {
	r.deliver([]*Connection{c}, msg)
}

func (r *Router) deliver(targets []*Connection, msg []byte) {
	for _, c := range targets {
		if !c.push(msg) {
			observability.BroadcastDropsTotal.Inc()
		}
	}
}
