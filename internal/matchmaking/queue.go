// Package matchmaking holds the FIFO queue of players waiting for an opponent.
package matchmaking

import (
	"encoding/json"
	"time"

	"github.com/playmatatu/battlerelay/internal/conn"
)

// Entry represents a player waiting in the matchmaking queue
type Entry struct {
	UserID         string
	DisplayName    string
	Conn           conn.ID
	Appearance     json.RawMessage
	EvolutionLevel *int
	JoinedAt       time.Time
}

// Queue is a strict FIFO with at most one entry per user. It is not safe for
// concurrent use.
type Queue struct {
	entries []Entry
}

func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue drops any entry already held for e.UserID and appends e to the tail.
func (q *Queue) Enqueue(e Entry) {
	q.Remove(e.UserID)
	if e.JoinedAt.IsZero() {
		e.JoinedAt = time.Now()
	}
	q.entries = append(q.entries, e)
}

// DequeuePair removes and returns the two oldest entries in arrival order.
// With fewer than two entries it does nothing and returns ok=false.
func (q *Queue) DequeuePair() (a, b Entry, ok bool) {
	if len(q.entries) < 2 {
		return Entry{}, Entry{}, false
	}
	a, b = q.entries[0], q.entries[1]
	q.entries = append(q.entries[:0:0], q.entries[2:]...)
	return a, b, true
}

// Remove deletes the entry for userID, reporting whether one existed.
func (q *Queue) Remove(userID string) bool {
	for i, e := range q.entries {
		if e.UserID == userID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveByConn deletes every entry bound to id and returns how many went.
func (q *Queue) RemoveByConn(id conn.ID) int {
	kept := q.entries[:0]
	removed := 0
	for _, e := range q.entries {
		if e.Conn == id {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	return removed
}

// Position returns the 1-based queue position of userID, or 0.
func (q *Queue) Position(userID string) int {
	for i, e := range q.entries {
		if e.UserID == userID {
			return i + 1
		}
	}
	return 0
}

// Len returns the number of waiting players.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Snapshot returns a copy of the queue in FIFO order.
func (q *Queue) Snapshot() []Entry {
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}
