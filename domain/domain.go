package domain

import "encoding/json"

// Role of a connection within a room. Every connection starts as a player;
// a host-create message promotes it.
type Role string

const (
	RolePlayer Role = "player"
	RoleHost   Role = "host"
)

// Message is the inbound wire envelope. Which fields are meaningful depends
// on Type; required fields are checked by the protocol handler before
// anything else sees the message.
type Message struct {
	Type   string          `json:"type"`
	Room   string          `json:"room,omitempty"`
	ID     string          `json:"id,omitempty"`
	QuizID string          `json:"quizId,omitempty"`
	Choice string          `json:"choice,omitempty"`
	Reset  bool            `json:"reset,omitempty"`
	Quiz   json.RawMessage `json:"quiz,omitempty"`
}

// Message types accepted from clients.
const (
	TypeHostCreate    = "host-create"
	TypePlayerJoin    = "player-join"
	TypeQuizUpsert    = "quiz-upsert"
	TypeQuizActivate  = "quiz-activate"
	TypeCountsRequest = "counts-request"
	TypeAnswer        = "answer"
	TypeQuizReset     = "quiz-reset"
)

// Message types sent to clients.
const (
	TypeRoom       = "room"
	TypeJoined     = "joined"
	TypePlayers    = "players"
	TypeQuizActive = "quiz-active"
	TypeCounts     = "counts"
	TypeAnswerAck  = "answer-ack"
)

// Outbound messages. Counts fields have no omitempty so an empty tally
// still serializes as {} on the wire.

type RoomEvent struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type PlayersEvent struct {
	Type  string `json:"type"`
	Room  string `json:"room"`
	Count int    `json:"count"`
}

type QuizActiveEvent struct {
	Type   string          `json:"type"`
	Room   string          `json:"room"`
	Quiz   json.RawMessage `json:"quiz"`
	Counts map[string]int  `json:"counts"`
}

type CountsEvent struct {
	Type   string         `json:"type"`
	Room   string         `json:"room"`
	QuizID string         `json:"quizId"`
	Counts map[string]int `json:"counts"`
}

type AnswerAckEvent struct {
	Type   string `json:"type"`
	QuizID string `json:"quizId"`
	Choice string `json:"choice"`
}

type Connection interface {
	// ID is the connection's voter identity, stable for its lifetime.
	ID() string
	Send(data []byte) error
	// Ready reports whether the transport can currently accept a send.
	Ready() bool
	Close() error
}

type Broadcaster interface {
	Register(conn Connection)
	Unregister(conn Connection)
	Stats() (rooms, clients int)
}

type MessageHandler interface {
	Handle(conn Connection, data []byte)
}
