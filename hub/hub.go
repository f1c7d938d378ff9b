package hub

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/jsbrittain/slidev-quiz-server/domain"
	"github.com/jsbrittain/slidev-quiz-server/quiz"
)

// Room groups the hosts, players, and quizzes of one session. Rooms are
// created on first reference and live for the process lifetime.
type Room struct {
	id      string
	hosts   map[string]domain.Connection
	players map[string]domain.Connection
	quizzes map[string]*quiz.Quiz
	mu      sync.RWMutex
}

func newRoom(id string) *Room {
	return &Room{
		id:      id,
		hosts:   make(map[string]domain.Connection),
		players: make(map[string]domain.Connection),
		quizzes: make(map[string]*quiz.Quiz),
	}
}

func (r *Room) ID() string { return r.id }

// Quiz returns the room's quiz with the given id, materializing it with a
// placeholder definition if it does not exist yet.
func (r *Room) Quiz(id string) *quiz.Quiz {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.quizzes[id]
	if !ok {
		q = quiz.New(quiz.Placeholder(id))
		r.quizzes[id] = q
	}
	return q
}

func (r *Room) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// setMember places conn in the set matching role, clearing any previous
// membership so a role change within the room cannot leave a stale entry.
func (r *Room) setMember(conn domain.Connection, role domain.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.hosts, conn.ID())
	delete(r.players, conn.ID())
	if role == domain.RoleHost {
		r.hosts[conn.ID()] = conn
	} else {
		r.players[conn.ID()] = conn
	}
}

func (r *Room) removeMember(conn domain.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hosts, conn.ID())
	delete(r.players, conn.ID())
}

// Broadcast marshals payload once and delivers it to every host and player
// in the room. Connections whose transport is not ready are skipped; a
// failed send to one peer never blocks the rest.
func (r *Room) Broadcast(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("broadcast marshal error", "room", r.id, "error", err)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conns := range []map[string]domain.Connection{r.hosts, r.players} {
		for id, conn := range conns {
			if !conn.Ready() {
				continue
			}
			if err := conn.Send(data); err != nil {
				slog.Debug("send failed during broadcast", "room", r.id, "clientId", id, "error", err)
			}
		}
	}

	slog.Debug("broadcast", "room", r.id, "payload", string(data))
}

// session is the per-connection state: its room and role, set by the last
// host-create or player-join handled for the connection.
type session struct {
	conn domain.Connection
	room *Room
	role domain.Role
}

// Hub is the room store and connection registry.
type Hub struct {
	rooms    map[string]*Room
	sessions map[string]*session
	mu       sync.RWMutex
}

func New() *Hub {
	return &Hub{
		rooms:    make(map[string]*Room),
		sessions: make(map[string]*session),
	}
}

// Room returns the room with the given id, creating it on first reference.
// Concurrent first calls for one id resolve to a single instance.
func (h *Hub) Room(id string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.roomLocked(id)
}

func (h *Hub) roomLocked(id string) *Room {
	r, ok := h.rooms[id]
	if !ok {
		r = newRoom(id)
		h.rooms[id] = r
	}
	return r
}

// Register adds a connection to the registry, unassociated with any room.
func (h *Hub) Register(conn domain.Connection) {
	h.mu.Lock()
	h.sessions[conn.ID()] = &session{conn: conn, role: domain.RolePlayer}
	clients := len(h.sessions)
	h.mu.Unlock()

	slog.Info("client connected", "clientId", conn.ID(), "clients", clients)
}

// Unregister removes a connection from the registry and from its room's
// member sets. Unknown or already-removed connections are a no-op.
func (h *Hub) Unregister(conn domain.Connection) {
	h.mu.Lock()
	s, ok := h.sessions[conn.ID()]
	if ok {
		delete(h.sessions, conn.ID())
	}
	clients := len(h.sessions)
	h.mu.Unlock()

	if !ok {
		return
	}
	if s.room != nil {
		s.room.removeMember(conn)
	}

	slog.Info("client disconnected", "clientId", conn.ID(), "clients", clients)
}

// Associate places the connection in the given room with the given role and
// returns the room. A connection already in a room is moved: last join wins
// for both routing and broadcast membership.
func (h *Hub) Associate(conn domain.Connection, roomID string, role domain.Role) *Room {
	h.mu.Lock()
	r := h.roomLocked(roomID)
	s, ok := h.sessions[conn.ID()]
	if !ok {
		s = &session{conn: conn}
		h.sessions[conn.ID()] = s
	}
	prev := s.room
	s.room = r
	s.role = role
	h.mu.Unlock()

	if prev != nil && prev != r {
		prev.removeMember(conn)
	}
	r.setMember(conn, role)

	slog.Info("client joined room", "room", roomID, "clientId", conn.ID(), "role", role)
	return r
}

func (h *Hub) Stats() (rooms, clients int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms), len(h.sessions)
}
