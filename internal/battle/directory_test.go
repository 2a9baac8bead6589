package battle

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/playmatatu/battlerelay/internal/conn"
)

func slot(user string, c conn.ID) Slot {
	return Slot{UserID: user, DisplayName: "name-" + user, Conn: c, Appearance: json.RawMessage(`{"skin":"` + user + `"}`)}
}

func TestDirectory_CreateAndJoin(t *testing.T) {
	d := NewDirectory(10)

	s, err := d.Create(slot("u1", "c1"), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", s.JoinCode)
	assert.False(t, s.Started)
	assert.Equal(t, StateCreated, s.State())
	assert.Equal(t, OriginCoded, s.CreatedVia)
	require.NotNil(t, s.SlotA)
	assert.Nil(t, s.SlotB)

	joined, err := d.Join("ABC123", slot("u2", "c2"))
	require.NoError(t, err)
	assert.Same(t, s, joined)
	assert.True(t, s.Started)
	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, "u2", s.SlotB.UserID)
	assert.False(t, s.StartedAt.IsZero())

	_, err = d.Join("ABC123", slot("u3", "c3"))
	assert.ErrorIs(t, err, ErrStateConflict)
	assert.Equal(t, "u2", s.SlotB.UserID, "a started session keeps its slots")
}

func TestDirectory_JoinUnknownCode(t *testing.T) {
	d := NewDirectory(10)
	_, err := d.Join("NOPE", slot("u2", "c2"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectory_JoinOwnBattle(t *testing.T) {
	d := NewDirectory(10)
	_, err := d.Create(slot("u1", "c1"), "SELF")
	require.NoError(t, err)
	_, err = d.Join("SELF", slot("u1", "c9"))
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestDirectory_CreateGeneratesCode(t *testing.T) {
	d := NewDirectory(10)
	s, err := d.Create(slot("u1", "c1"), "  ")
	require.NoError(t, err)
	assert.Len(t, s.JoinCode, codeLength)
	assert.Equal(t, NormalizeCode(s.JoinCode), s.JoinCode)
}

func TestDirectory_CodeInUse(t *testing.T) {
	d := NewDirectory(10)
	_, err := d.Create(slot("u1", "c1"), "DUP")
	require.NoError(t, err)
	_, err = d.Create(slot("u2", "c2"), "dup")
	assert.ErrorIs(t, err, ErrCodeInUse)
}

func TestDirectory_CodeReusableAfterLeave(t *testing.T) {
	d := NewDirectory(10)
	s, err := d.Create(slot("u1", "c1"), "AGAIN")
	require.NoError(t, err)
	_, _, err = d.Leave(s.ID, "u1")
	require.NoError(t, err)

	_, err = d.Create(slot("u2", "c2"), "AGAIN")
	assert.NoError(t, err)
}

func TestDirectory_CreateFromPair(t *testing.T) {
	d := NewDirectory(10)
	a := slot("u1", "c1")
	a.Wins = 7
	s := d.CreateFromPair(a, slot("u2", "c2"))

	assert.True(t, s.Started)
	assert.Equal(t, OriginPaired, s.CreatedVia)
	assert.Empty(t, s.JoinCode)
	wa, wb := s.WinState()
	assert.Equal(t, 0, wa)
	assert.Equal(t, 0, wb)

	got, err := d.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestDirectory_RecordRoundResult(t *testing.T) {
	tests := []struct {
		name     string
		reporter string
		winner   Side
		accepted bool
		wantA    int
		wantB    int
	}{
		{name: "A credits itself", reporter: "u1", winner: SideA, accepted: true, wantA: 1},
		{name: "B credits itself", reporter: "u2", winner: SideB, accepted: true, wantB: 1},
		{name: "B claims A won", reporter: "u2", winner: SideA},
		{name: "A claims B won", reporter: "u1", winner: SideB},
		{name: "stranger", reporter: "u9", winner: SideA},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDirectory(10)
			s := d.CreateFromPair(slot("u1", "c1"), slot("u2", "c2"))

			accepted, err := d.RecordRoundResult(s.ID, tt.reporter, tt.winner)
			require.NoError(t, err)
			assert.Equal(t, tt.accepted, accepted)
			a, b := s.WinState()
			assert.Equal(t, tt.wantA, a)
			assert.Equal(t, tt.wantB, b)
		})
	}
}

func TestDirectory_RecordRoundResultUnstarted(t *testing.T) {
	d := NewDirectory(10)
	s, err := d.Create(slot("u1", "c1"), "WAIT")
	require.NoError(t, err)

	accepted, err := d.RecordRoundResult(s.ID, "u1", SideA)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Equal(t, 0, s.SlotA.Wins)
}

func TestDirectory_RelayResolvesOpponent(t *testing.T) {
	d := NewDirectory(2)
	s := d.CreateFromPair(slot("u1", "c1"), slot("u2", "c2"))

	_, to, err := d.Relay(s.ID, "c1", json.RawMessage(`{"move":1}`))
	require.NoError(t, err)
	assert.Equal(t, "u2", to.UserID)

	_, to, err = d.Relay(s.ID, "c2", json.RawMessage(`{"move":2}`))
	require.NoError(t, err)
	assert.Equal(t, "u1", to.UserID)

	_, _, err = d.Relay(s.ID, "c1", json.RawMessage(`{"move":3}`))
	require.NoError(t, err)

	require.Len(t, s.Moves, 2)
	assert.JSONEq(t, `{"move":1}`, string(s.Moves[0]))
	assert.JSONEq(t, `{"move":2}`, string(s.Moves[1]))
	assert.Equal(t, 1, s.MovesDropped)

	_, _, err = d.Relay(s.ID, "c9", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, _, err = d.Relay("missing", "c1", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectory_RelayWithoutOpponent(t *testing.T) {
	d := NewDirectory(10)
	s, err := d.Create(slot("u1", "c1"), "SOLO")
	require.NoError(t, err)

	_, to, err := d.Relay(s.ID, "c1", json.RawMessage(`{"hello":true}`))
	require.NoError(t, err)
	assert.Nil(t, to)
	assert.Empty(t, s.Moves, "moves are only kept once the battle started")
}

func TestDirectory_Leave(t *testing.T) {
	d := NewDirectory(10)
	s := d.CreateFromPair(slot("u1", "c1"), slot("u2", "c2"))

	_, _, err := d.Leave(s.ID, "u9")
	assert.ErrorIs(t, err, ErrNotParticipant)
	assert.Equal(t, 1, d.Len())

	left, other, err := d.Leave(s.ID, "u2")
	require.NoError(t, err)
	assert.Same(t, s, left)
	assert.Equal(t, "u1", other.UserID)
	assert.Equal(t, 0, d.Len())

	_, err = d.Get(s.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, _, err = d.Leave(s.ID, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = d.RecordRoundResult(s.ID, "u1", SideA)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectory_ByConnAndCounts(t *testing.T) {
	d := NewDirectory(10)
	paired := d.CreateFromPair(slot("u1", "c1"), slot("u2", "c2"))
	_, err := d.Create(slot("u3", "c3"), "")
	require.NoError(t, err)

	m := d.ByConn("c2")
	require.Len(t, m, 1)
	assert.Same(t, paired, m[0].Session)
	assert.Equal(t, SideB, m[0].Side)
	assert.Empty(t, d.ByConn("c9"))

	created, active := d.Counts()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, active)
}

func TestSession_ResolveWinner(t *testing.T) {
	s := &Session{SlotA: &Slot{UserID: "u1"}, SlotB: &Slot{UserID: "u2"}}

	tests := map[string]struct {
		side Side
		ok   bool
	}{
		"A":  {SideA, true},
		"b":  {SideB, true},
		"u1": {SideA, true},
		"u2": {SideB, true},
		"u3": {"", false},
		"":   {"", false},
	}
	for in, want := range tests {
		side, ok := s.ResolveWinner(in)
		assert.Equal(t, want.ok, ok, in)
		assert.Equal(t, want.side, side, in)
	}
}

func TestParseRoundSignal(t *testing.T) {
	tests := []struct {
		msg    string
		ok     bool
		winner string
	}{
		{msg: `{"gameOver":true,"winner":"A"}`, ok: true, winner: "A"},
		{msg: `{"gameOver":true,"winner":"u2","extra":[1,2]}`, ok: true, winner: "u2"},
		{msg: `{"gameOver":false,"winner":"A"}`},
		{msg: `{"gameOver":true}`},
		{msg: `{"gameOver":true,"winner":3}`},
		{msg: `"just a string"`},
		{msg: `[1,2,3]`},
		{msg: ``},
	}
	for _, tt := range tests {
		sig, ok := ParseRoundSignal(json.RawMessage(tt.msg))
		assert.Equal(t, tt.ok, ok, tt.msg)
		assert.Equal(t, tt.winner, sig.Winner, tt.msg)
	}
}

// Property: counters never decrease and only move on self-reports.
func TestDirectory_WinCountersMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := NewDirectory(10)
		s := d.CreateFromPair(slot("u1", "c1"), slot("u2", "c2"))
		users := []string{"u1", "u2", "u3"}

		n := rapid.IntRange(1, 50).Draw(t, "reports")
		for i := 0; i < n; i++ {
			reporter := rapid.SampledFrom(users).Draw(t, "reporter")
			winner := rapid.SampledFrom([]Side{SideA, SideB}).Draw(t, "winner")
			beforeA, beforeB := s.WinState()

			accepted, err := d.RecordRoundResult(s.ID, reporter, winner)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			afterA, afterB := s.WinState()
			if afterA < beforeA || afterB < beforeB {
				t.Fatalf("counter decreased")
			}
			owner := s.Slot(winner).UserID
			if accepted != (owner == reporter) {
				t.Fatalf("reporter %s winner %s accepted=%v", reporter, winner, accepted)
			}
			if !accepted && (afterA != beforeA || afterB != beforeB) {
				t.Fatalf("rejected report changed counters")
			}
		}
	})
}
