package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playmatatu/battlerelay/internal/conn"
)

// recorder notes which Handler method an event reached.
type recorder struct {
	called string
	event  Event
}

func (r *recorder) JoinQueue(_ conn.ID, ev JoinQueue)   { r.called, r.event = "JoinQueue", ev }
func (r *recorder) LeaveQueue(_ conn.ID, ev LeaveQueue) { r.called, r.event = "LeaveQueue", ev }
func (r *recorder) GetQueue(_ conn.ID, ev GetQueue)     { r.called, r.event = "GetQueue", ev }
func (r *recorder) CreateBattle(_ conn.ID, ev CreateBattle) {
	r.called, r.event = "CreateBattle", ev
}
func (r *recorder) JoinBattle(_ conn.ID, ev JoinBattle) { r.called, r.event = "JoinBattle", ev }
func (r *recorder) SendBattleMessage(_ conn.ID, ev SendBattleMessage) {
	r.called, r.event = "SendBattleMessage", ev
}
func (r *recorder) LeaveBattle(_ conn.ID, ev LeaveBattle) { r.called, r.event = "LeaveBattle", ev }
func (r *recorder) Ping(_ conn.ID, ev Ping)               { r.called, r.event = "Ping", ev }

func TestDecode_Dispatch(t *testing.T) {
	tests := []struct {
		frame  string
		method string
	}{
		{`{"type":"JOIN_QUEUE","payload":{"userId":"u1","username":"Ash","evolutionLevel":2}}`, "JoinQueue"},
		{`{"type":"LEAVE_QUEUE","payload":{"userId":"u1"}}`, "LeaveQueue"},
		{`{"type":"GET_QUEUE"}`, "GetQueue"},
		{`{"type":"CREATE_BATTLE","payload":{"userId":"u1","code":"ABC123"}}`, "CreateBattle"},
		{`{"type":"JOIN_BATTLE","payload":{"userId":"u2","code":"ABC123"}}`, "JoinBattle"},
		{`{"type":"SEND_BATTLE_MESSAGE","payload":{"sessionId":"s","userId":"u1","message":{"x":1}}}`, "SendBattleMessage"},
		{`{"type":"LEAVE_BATTLE","payload":{"sessionId":"s","userId":"u1"}}`, "LeaveBattle"},
		{`{"type":"PING"}`, "Ping"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			ev, err := Decode([]byte(tt.frame))
			require.NoError(t, err)
			require.NoError(t, ev.Validate())

			r := &recorder{}
			ev.Dispatch(r, "c1")
			assert.Equal(t, tt.method, r.called)
			assert.Equal(t, ev, r.event)
		})
	}
}

func TestDecode_FlatFrame(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"JOIN_QUEUE","userId":"u7","appearance":{"hat":"red"}}`))
	require.NoError(t, err)
	jq, ok := ev.(JoinQueue)
	require.True(t, ok)
	assert.Equal(t, "u7", jq.UserID)
	assert.JSONEq(t, `{"hat":"red"}`, string(jq.Appearance))
	assert.Nil(t, jq.EvolutionLevel)
}

func TestDecode_KeepsMessageOpaque(t *testing.T) {
	frame := `{"type":"SEND_BATTLE_MESSAGE","payload":{"sessionId":"s","userId":"u1","message":{"b":[3,2,1],"a":{"nested":true}}}}`
	ev, err := Decode([]byte(frame))
	require.NoError(t, err)
	msg := ev.(SendBattleMessage).Message
	assert.Equal(t, `{"b":[3,2,1],"a":{"nested":true}}`, string(msg))
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{"type":"DANCE"}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Decode([]byte(`{"type":"JOIN_QUEUE","payload":{"userId":42}}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestValidate_MissingFields(t *testing.T) {
	tests := []struct {
		ev    Event
		field string
	}{
		{JoinQueue{}, "userId"},
		{LeaveQueue{}, "userId"},
		{JoinBattle{UserID: "u1"}, "code"},
		{SendBattleMessage{UserID: "u1"}, "sessionId"},
		{SendBattleMessage{SessionID: "s"}, "userId"},
		{SendBattleMessage{SessionID: "s", UserID: "u1", Message: json.RawMessage("null")}, "message"},
		{LeaveBattle{UserID: "u1"}, "sessionId"},
	}
	for _, tt := range tests {
		err := tt.ev.Validate()
		require.ErrorIs(t, err, ErrMissingField, "%T", tt.ev)
		assert.Contains(t, err.Error(), tt.field)
	}

	assert.NoError(t, CreateBattle{UserID: "u1"}.Validate(), "code may be generated")
}

func TestOutbound_Encoding(t *testing.T) {
	b, err := json.Marshal(MatchFound("s1", "Misty", json.RawMessage(`{"skin":"blue"}`), "B"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"MATCH_FOUND","payload":{"sessionId":"s1","opponentName":"Misty","opponentAppearance":{"skin":"blue"},"slot":"B"}}`, string(b))

	b, err = json.Marshal(Pong())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"PONG"}`, string(b))

	b, err = json.Marshal(QueueUpdate(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"QUEUE_UPDATE","payload":{"queue":[]}}`, string(b))

	b, err = json.Marshal(Error("battle not found"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ERROR","payload":{"error":"battle not found"}}`, string(b))
}
