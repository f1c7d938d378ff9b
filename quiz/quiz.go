package quiz

import (
	"encoding/json"
	"sync"
)

// Quiz holds the live tally for one quiz: its definition, the count per
// choice, and each voter's current choice. Counts always agree with the
// votes map: counts[c] is the number of voters whose latest choice is c.
type Quiz struct {
	mu     sync.Mutex
	def    json.RawMessage
	counts map[string]int
	votes  map[string]string
}

// New creates an empty quiz with the given definition.
func New(def json.RawMessage) *Quiz {
	return &Quiz{
		def:    def,
		counts: make(map[string]int),
		votes:  make(map[string]string),
	}
}

// Placeholder builds a minimal definition for a quiz referenced before any
// upsert, carrying only its id.
func Placeholder(id string) json.RawMessage {
	def, _ := json.Marshal(map[string]string{"id": id})
	return def
}

// SetDefinition replaces the stored definition wholesale. Counts and votes
// are untouched.
func (q *Quiz) SetDefinition(def json.RawMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.def = def
}

// Definition returns the stored definition.
func (q *Quiz) Definition() json.RawMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.def
}

// Record registers voterID's vote for choice. A voter has exactly one
// active vote: any previous choice is decremented (floored at zero) before
// the new one is counted, so changing an answer moves the vote rather than
// adding one. Returns the accepted choice for the ack.
func (q *Quiz) Record(voterID, choice string) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if prev, ok := q.votes[voterID]; ok {
		if q.counts[prev] > 0 {
			q.counts[prev]--
		}
	}
	q.votes[voterID] = choice
	q.counts[choice]++
	return choice
}

// Reset clears counts and votes, leaving the definition in place.
func (q *Quiz) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.counts = make(map[string]int)
	q.votes = make(map[string]string)
}

// Counts returns a copy of the current tally.
func (q *Quiz) Counts() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts := make(map[string]int, len(q.counts))
	for choice, n := range q.counts {
		counts[choice] = n
	}
	return counts
}
