package battle

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/playmatatu/battlerelay/internal/conn"
)

const (
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength  = 6
)

// Directory owns every active session, keyed by session id, with an index from
// join code to session id. It is not safe for concurrent use.
type Directory struct {
	sessions map[string]*Session
	codes    map[string]string
	maxMoves int
	now      func() time.Time
}

// NewDirectory creates an empty directory that keeps at most maxMoves relayed
// payloads per session.
func NewDirectory(maxMoves int) *Directory {
	return &Directory{
		sessions: make(map[string]*Session),
		codes:    make(map[string]string),
		maxMoves: maxMoves,
		now:      time.Now,
	}
}

// NormalizeCode canonicalises a client-supplied join code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// generateCode generates a random join code
func generateCode() string {
	result := make([]byte, codeLength)
	for i := range result {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		result[i] = codeCharset[n.Int64()]
	}
	return string(result)
}

func newSessionID() string {
	return "battle_" + uuid.NewString()
}

// Create allocates an unstarted session with initiator in slot A. An empty
// code is replaced by a generated one.
func (d *Directory) Create(initiator Slot, code string) (*Session, error) {
	code = NormalizeCode(code)
	if code == "" {
		for {
			code = generateCode()
			if _, taken := d.codes[code]; !taken {
				break
			}
		}
	} else if _, taken := d.codes[code]; taken {
		return nil, fmt.Errorf("%w: %s", ErrCodeInUse, code)
	}

	a := initiator
	a.Wins = 0
	s := &Session{
		ID:         newSessionID(),
		JoinCode:   code,
		SlotA:      &a,
		CreatedVia: OriginCoded,
		CreatedAt:  d.now(),
	}
	d.sessions[s.ID] = s
	d.codes[code] = s.ID
	return s, nil
}

// CreateFromPair allocates a session that is already started with both slots
// filled and both counters at zero.
func (d *Directory) CreateFromPair(a, b Slot) *Session {
	a.Wins, b.Wins = 0, 0
	now := d.now()
	s := &Session{
		ID:         newSessionID(),
		SlotA:      &a,
		CreatedVia: OriginPaired,
		CreatedAt:  now,
	}
	s.start(&b, now)
	d.sessions[s.ID] = s
	return s
}

// Join fills slot B of the unstarted session holding code and starts it.
func (d *Directory) Join(code string, joiner Slot) (*Session, error) {
	code = NormalizeCode(code)
	id, ok := d.codes[code]
	if !ok {
		return nil, fmt.Errorf("%w: code %s", ErrNotFound, code)
	}
	s := d.sessions[id]
	if s.Started {
		return nil, fmt.Errorf("%w: code %s", ErrStateConflict, code)
	}
	if s.SlotA.UserID == joiner.UserID {
		return nil, fmt.Errorf("%w: cannot join your own battle %s", ErrStateConflict, code)
	}

	b := joiner
	b.Wins = 0
	s.start(&b, d.now())
	return s, nil
}

// Get returns the active session with id.
func (d *Directory) Get(id string) (*Session, error) {
	s, ok := d.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// RecordRoundResult credits winner with a round, but only when the report
// comes from the winning slot's own user. It returns whether a counter moved.
func (d *Directory) RecordRoundResult(id, reportingUserID string, winner Side) (bool, error) {
	s, err := d.Get(id)
	if err != nil {
		return false, err
	}
	if !s.Started {
		return false, nil
	}
	slot := s.Slot(winner)
	if slot == nil || slot.UserID != reportingUserID {
		return false, nil
	}
	slot.Wins++
	return true, nil
}

// Relay validates that connection from holds a slot in session id, records
// payload as a move and returns the recipient slot. The recipient is nil while
// the opponent slot is still empty.
func (d *Directory) Relay(id string, from conn.ID, payload json.RawMessage) (*Session, *Slot, error) {
	s, err := d.Get(id)
	if err != nil {
		return nil, nil, err
	}
	side, ok := s.SideOfConn(from)
	if !ok {
		return s, nil, fmt.Errorf("%w: connection %s", ErrNotParticipant, from)
	}
	if s.Started {
		s.recordMove(payload, d.maxMoves)
	}
	return s, s.Slot(Other(side)), nil
}

// Leave removes session id on behalf of userID and returns it together with
// the slot left behind, which may be nil.
func (d *Directory) Leave(id, userID string) (*Session, *Slot, error) {
	s, err := d.Get(id)
	if err != nil {
		return nil, nil, err
	}
	side, ok := s.SideOf(userID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotParticipant, userID)
	}
	d.remove(s)
	return s, s.Slot(Other(side)), nil
}

func (d *Directory) remove(s *Session) {
	delete(d.sessions, s.ID)
	if s.JoinCode != "" && d.codes[s.JoinCode] == s.ID {
		delete(d.codes, s.JoinCode)
	}
}

// Membership names a session and the side a connection occupies in it.
type Membership struct {
	Session *Session
	Side    Side
}

// ByConn lists every session slot bound to connection id.
func (d *Directory) ByConn(id conn.ID) []Membership {
	var out []Membership
	for _, s := range d.sessions {
		if s.SlotA != nil && s.SlotA.Conn == id {
			out = append(out, Membership{Session: s, Side: SideA})
		}
		if s.SlotB != nil && s.SlotB.Conn == id {
			out = append(out, Membership{Session: s, Side: SideB})
		}
	}
	return out
}

// Len returns the number of live sessions.
func (d *Directory) Len() int {
	return len(d.sessions)
}

// Counts returns the number of unstarted and started sessions.
func (d *Directory) Counts() (created, active int) {
	for _, s := range d.sessions {
		if s.Started {
			active++
		} else {
			created++
		}
	}
	return created, active
}
