package protocol

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/jsbrittain/slidev-quiz-server/domain"
	"github.com/jsbrittain/slidev-quiz-server/hub"
)

// Handler routes inbound messages to the room and quiz state. Malformed
// messages and unknown types are dropped without a reply; the connection
// stays open.
type Handler struct {
	hub *hub.Hub
}

func NewHandler(h *hub.Hub) *Handler {
	return &Handler{hub: h}
}

func (h *Handler) Handle(conn domain.Connection, data []byte) {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("invalid message", "clientId", conn.ID(), "error", err)
		return
	}

	slog.Debug("message", "clientId", conn.ID(), "type", msg.Type, "room", msg.Room)

	switch msg.Type {
	case domain.TypeHostCreate:
		h.handleHostCreate(conn, msg)
	case domain.TypePlayerJoin:
		if msg.Room == "" {
			return
		}
		h.handlePlayerJoin(conn, msg)
	case domain.TypeQuizUpsert:
		if msg.Room == "" || quizID(msg.Quiz) == "" {
			return
		}
		h.handleQuizUpsert(msg)
	case domain.TypeQuizActivate:
		if msg.Room == "" || msg.ID == "" {
			return
		}
		h.handleQuizActivate(msg)
	case domain.TypeCountsRequest:
		if msg.Room == "" || msg.QuizID == "" {
			return
		}
		h.handleCountsRequest(conn, msg)
	case domain.TypeAnswer:
		if msg.Room == "" || msg.QuizID == "" || msg.Choice == "" {
			return
		}
		h.handleAnswer(conn, msg)
	case domain.TypeQuizReset:
		if msg.Room == "" || msg.QuizID == "" {
			return
		}
		h.handleQuizReset(msg)
	default:
		slog.Debug("unknown message type ignored", "clientId", conn.ID(), "type", msg.Type)
	}
}

func (h *Handler) handleHostCreate(conn domain.Connection, msg domain.Message) {
	roomID := msg.Room
	if roomID == "" {
		roomID = strings.ToUpper(uuid.NewString()[:8])
	}
	h.hub.Associate(conn, roomID, domain.RoleHost)

	reply(conn, domain.RoomEvent{Type: domain.TypeRoom, Room: roomID})
}

func (h *Handler) handlePlayerJoin(conn domain.Connection, msg domain.Message) {
	room := h.hub.Associate(conn, msg.Room, domain.RolePlayer)

	reply(conn, domain.RoomEvent{Type: domain.TypeJoined, Room: msg.Room})
	room.Broadcast(domain.PlayersEvent{
		Type:  domain.TypePlayers,
		Room:  msg.Room,
		Count: room.PlayerCount(),
	})
}

func (h *Handler) handleQuizUpsert(msg domain.Message) {
	room := h.hub.Room(msg.Room)
	room.Quiz(quizID(msg.Quiz)).SetDefinition(msg.Quiz)
}

func (h *Handler) handleQuizActivate(msg domain.Message) {
	room := h.hub.Room(msg.Room)
	q := room.Quiz(msg.ID)
	if msg.Reset {
		q.Reset()
	}

	room.Broadcast(domain.QuizActiveEvent{
		Type:   domain.TypeQuizActive,
		Room:   msg.Room,
		Quiz:   q.Definition(),
		Counts: q.Counts(),
	})
}

func (h *Handler) handleCountsRequest(conn domain.Connection, msg domain.Message) {
	q := h.hub.Room(msg.Room).Quiz(msg.QuizID)

	reply(conn, domain.CountsEvent{
		Type:   domain.TypeCounts,
		Room:   msg.Room,
		QuizID: msg.QuizID,
		Counts: q.Counts(),
	})
}

func (h *Handler) handleAnswer(conn domain.Connection, msg domain.Message) {
	room := h.hub.Room(msg.Room)
	q := room.Quiz(msg.QuizID)
	choice := q.Record(conn.ID(), msg.Choice)

	reply(conn, domain.AnswerAckEvent{
		Type:   domain.TypeAnswerAck,
		QuizID: msg.QuizID,
		Choice: choice,
	})
	room.Broadcast(domain.CountsEvent{
		Type:   domain.TypeCounts,
		Room:   msg.Room,
		QuizID: msg.QuizID,
		Counts: q.Counts(),
	})
}

func (h *Handler) handleQuizReset(msg domain.Message) {
	room := h.hub.Room(msg.Room)
	q := room.Quiz(msg.QuizID)
	q.Reset()

	room.Broadcast(domain.CountsEvent{
		Type:   domain.TypeCounts,
		Room:   msg.Room,
		QuizID: msg.QuizID,
		Counts: q.Counts(),
	})
}

// quizID extracts the id from an opaque quiz definition.
func quizID(def json.RawMessage) string {
	var d struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(def, &d); err != nil {
		return ""
	}
	return d.ID
}

func reply(conn domain.Connection, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("marshal error", "clientId", conn.ID(), "error", err)
		return
	}
	if err := conn.Send(data); err != nil {
		slog.Debug("reply send failed", "clientId", conn.ID(), "error", err)
	}
}
