package hub

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsbrittain/slidev-quiz-server/domain"
)

type mockConn struct {
	id       string
	received [][]byte
	notReady bool
	sendErr  error
	mu       sync.Mutex
}

func (m *mockConn) ID() string  { return m.id }
func (m *mockConn) Ready() bool { return !m.notReady }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) Close() error { return nil }

func (m *mockConn) getReceived() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

func TestHub_RoomGetOrCreate(t *testing.T) {
	h := New()

	r1 := h.Room("R1")
	r2 := h.Room("R1")
	require.Same(t, r1, r2)

	// mutations through one reference are visible through the other
	r1.Quiz("q1").Record("v1", "A")
	assert.Equal(t, map[string]int{"A": 1}, r2.Quiz("q1").Counts())

	assert.NotSame(t, r1, h.Room("R2"))
}

func TestHub_RoomGetOrCreateConcurrent(t *testing.T) {
	h := New()

	rooms := make([]*Room, 16)
	var wg sync.WaitGroup
	for i := range rooms {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rooms[i] = h.Room("R1")
		}(i)
	}
	wg.Wait()

	for _, r := range rooms {
		assert.Same(t, rooms[0], r)
	}
}

func TestRoom_Broadcast(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(*Hub) []*mockConn
		wantReceived map[string]int
	}{
		{
			name: "reaches hosts and players",
			setup: func(h *Hub) []*mockConn {
				host := &mockConn{id: "host"}
				p1 := &mockConn{id: "p1"}
				p2 := &mockConn{id: "p2"}
				h.Associate(host, "R1", domain.RoleHost)
				h.Associate(p1, "R1", domain.RolePlayer)
				h.Associate(p2, "R1", domain.RolePlayer)
				return []*mockConn{host, p1, p2}
			},
			wantReceived: map[string]int{"host": 1, "p1": 1, "p2": 1},
		},
		{
			name: "skips connections that are not ready",
			setup: func(h *Hub) []*mockConn {
				host := &mockConn{id: "host"}
				gone := &mockConn{id: "gone", notReady: true}
				h.Associate(host, "R1", domain.RoleHost)
				h.Associate(gone, "R1", domain.RolePlayer)
				return []*mockConn{host, gone}
			},
			wantReceived: map[string]int{"host": 1, "gone": 0},
		},
		{
			name: "send failure does not abort delivery to others",
			setup: func(h *Hub) []*mockConn {
				bad := &mockConn{id: "bad", sendErr: assert.AnError}
				good := &mockConn{id: "good"}
				h.Associate(bad, "R1", domain.RoleHost)
				h.Associate(good, "R1", domain.RolePlayer)
				return []*mockConn{bad, good}
			},
			wantReceived: map[string]int{"bad": 0, "good": 1},
		},
		{
			name: "no cross-room delivery",
			setup: func(h *Hub) []*mockConn {
				other := &mockConn{id: "other"}
				h.Associate(other, "R2", domain.RoleHost)
				return []*mockConn{other}
			},
			wantReceived: map[string]int{"other": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			conns := tt.setup(h)

			h.Room("R1").Broadcast(domain.RoomEvent{Type: "test", Room: "R1"})

			for _, c := range conns {
				assert.Len(t, c.getReceived(), tt.wantReceived[c.ID()], "conn %s", c.ID())
			}
		})
	}
}

func TestRoom_BroadcastMarshalsOnce(t *testing.T) {
	h := New()
	c1 := &mockConn{id: "c1"}
	c2 := &mockConn{id: "c2"}
	h.Associate(c1, "R1", domain.RoleHost)
	h.Associate(c2, "R1", domain.RolePlayer)

	h.Room("R1").Broadcast(domain.CountsEvent{
		Type:   domain.TypeCounts,
		Room:   "R1",
		QuizID: "q1",
		Counts: map[string]int{},
	})

	require.Len(t, c1.getReceived(), 1)
	require.Len(t, c2.getReceived(), 1)
	assert.Equal(t, c1.getReceived()[0], c2.getReceived()[0])

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(c1.getReceived()[0], &got))
	assert.JSONEq(t, `{}`, string(got["counts"]), "empty counts must serialize as an object")
}

func TestHub_AssociateLastJoinWins(t *testing.T) {
	h := New()
	c := &mockConn{id: "c1"}
	h.Register(c)

	h.Associate(c, "R1", domain.RolePlayer)
	h.Associate(c, "R2", domain.RolePlayer)

	h.Room("R1").Broadcast(domain.RoomEvent{Type: "test", Room: "R1"})
	assert.Empty(t, c.getReceived(), "moved connection must leave the old room")

	h.Room("R2").Broadcast(domain.RoomEvent{Type: "test", Room: "R2"})
	assert.Len(t, c.getReceived(), 1)
	assert.Equal(t, 0, h.Room("R1").PlayerCount())
	assert.Equal(t, 1, h.Room("R2").PlayerCount())
}

func TestHub_AssociateRoleChange(t *testing.T) {
	h := New()
	c := &mockConn{id: "c1"}
	h.Register(c)

	h.Associate(c, "R1", domain.RolePlayer)
	require.Equal(t, 1, h.Room("R1").PlayerCount())

	h.Associate(c, "R1", domain.RoleHost)
	assert.Equal(t, 0, h.Room("R1").PlayerCount())

	h.Room("R1").Broadcast(domain.RoomEvent{Type: "test", Room: "R1"})
	assert.Len(t, c.getReceived(), 1, "one membership only after role change")
}

func TestHub_Unregister(t *testing.T) {
	h := New()
	c := &mockConn{id: "c1"}
	h.Register(c)
	h.Associate(c, "R1", domain.RolePlayer)

	h.Unregister(c)

	h.Room("R1").Broadcast(domain.RoomEvent{Type: "test", Room: "R1"})
	assert.Empty(t, c.getReceived())
	assert.Equal(t, 0, h.Room("R1").PlayerCount())

	// idempotent, including for connections never registered
	h.Unregister(c)
	h.Unregister(&mockConn{id: "ghost"})
}

func TestHub_Stats(t *testing.T) {
	h := New()

	rooms, clients := h.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, clients)

	c1 := &mockConn{id: "c1"}
	c2 := &mockConn{id: "c2"}
	h.Register(c1)
	h.Register(c2)
	h.Associate(c1, "R1", domain.RoleHost)
	h.Associate(c2, "R2", domain.RolePlayer)

	rooms, clients = h.Stats()
	assert.Equal(t, 2, rooms)
	assert.Equal(t, 2, clients)

	// rooms persist after their members disconnect
	h.Unregister(c1)
	h.Unregister(c2)
	rooms, clients = h.Stats()
	assert.Equal(t, 2, rooms)
	assert.Equal(t, 0, clients)
}

func TestHub_ConcurrentVotes(t *testing.T) {
	h := New()
	r := h.Room("R1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			voter := string(rune('a' + i))
			for j := 0; j < 50; j++ {
				r.Quiz("q1").Record(voter, "A")
				r.Quiz("q1").Record(voter, "B")
			}
		}(i)
	}
	wg.Wait()

	counts := r.Quiz("q1").Counts()
	total := 0
	for _, n := range counts {
		require.GreaterOrEqual(t, n, 0)
		total += n
	}
	assert.Equal(t, 8, total, "one active vote per voter")
	assert.Equal(t, 8, counts["B"])
}
