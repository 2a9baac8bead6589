// Package battle holds battle sessions and the directory that owns them.
//
// A session is created either unstarted (by join code) or already started (by
// queue pairing). It moves CREATED -> ACTIVE exactly once and is removed from
// the directory when either participant leaves; a removed session is simply
// absent and every later lookup fails with ErrNotFound.
package battle

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/playmatatu/battlerelay/internal/conn"
)

// Side names one of the two player slots of a session.
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// Origin records how a session came to exist.
type Origin string

const (
	OriginPaired Origin = "paired"
	OriginCoded  Origin = "coded"
)

// State is the lifecycle state of a session still held by the directory.
type State string

const (
	StateCreated State = "CREATED"
	StateActive  State = "ACTIVE"
)

// Slot is one player's state within a session.
type Slot struct {
	UserID      string
	DisplayName string
	Conn        conn.ID
	Appearance  json.RawMessage
	Wins        int
}

// Session is one 1v1 engagement.
type Session struct {
	ID         string
	JoinCode   string
	SlotA      *Slot
	SlotB      *Slot
	Started    bool
	CreatedVia Origin
	CreatedAt  time.Time
	StartedAt  time.Time

	// Moves holds relayed payloads in arrival order, capped at the directory's
	// move limit; MovesDropped counts what did not fit.
	Moves        []json.RawMessage
	MovesDropped int
}

func (s *Session) State() State {
	if s.Started {
		return StateActive
	}
	return StateCreated
}

// Slot returns the slot for side, which may be nil.
func (s *Session) Slot(side Side) *Slot {
	switch side {
	case SideA:
		return s.SlotA
	case SideB:
		return s.SlotB
	}
	return nil
}

// SideOf returns the side occupied by userID.
func (s *Session) SideOf(userID string) (Side, bool) {
	if s.SlotA != nil && s.SlotA.UserID == userID {
		return SideA, true
	}
	if s.SlotB != nil && s.SlotB.UserID == userID {
		return SideB, true
	}
	return "", false
}

// SideOfConn returns the side whose slot is bound to connection id.
func (s *Session) SideOfConn(id conn.ID) (Side, bool) {
	if s.SlotA != nil && s.SlotA.Conn == id {
		return SideA, true
	}
	if s.SlotB != nil && s.SlotB.Conn == id {
		return SideB, true
	}
	return "", false
}

// Other returns the side facing side.
func Other(side Side) Side {
	if side == SideA {
		return SideB
	}
	return SideA
}

// ResolveWinner maps a reported winner to a side. "A" and "B" name slots
// directly (case-insensitive); otherwise the value is matched against the slot
// user ids.
func (s *Session) ResolveWinner(winner string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(winner)) {
	case string(SideA):
		return SideA, true
	case string(SideB):
		return SideB, true
	}
	if winner == "" {
		return "", false
	}
	return s.SideOf(winner)
}

// WinState returns both win counters.
func (s *Session) WinState() (a, b int) {
	if s.SlotA != nil {
		a = s.SlotA.Wins
	}
	if s.SlotB != nil {
		b = s.SlotB.Wins
	}
	return a, b
}

func (s *Session) start(joiner *Slot, at time.Time) {
	s.SlotB = joiner
	s.Started = true
	s.StartedAt = at
}

func (s *Session) recordMove(payload json.RawMessage, limit int) {
	if len(s.Moves) >= limit {
		s.MovesDropped++
		return
	}
	s.Moves = append(s.Moves, append(json.RawMessage(nil), payload...))
}
