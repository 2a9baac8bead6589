// Package protocol defines the JSON envelopes exchanged over a client
// connection.
//
// Inbound events form a closed set: every kind implements Event and
// dispatches itself to the matching Handler method, so adding a kind without
// handling it does not compile.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/playmatatu/battlerelay/internal/conn"
)

// Type discriminates envelopes in both directions.
type Type string

// Inbound event types.
const (
	TypeJoinQueue         Type = "JOIN_QUEUE"
	TypeLeaveQueue        Type = "LEAVE_QUEUE"
	TypeGetQueue          Type = "GET_QUEUE"
	TypeCreateBattle      Type = "CREATE_BATTLE"
	TypeJoinBattle        Type = "JOIN_BATTLE"
	TypeSendBattleMessage Type = "SEND_BATTLE_MESSAGE"
	TypeLeaveBattle       Type = "LEAVE_BATTLE"
	TypePing              Type = "PING"
)

var (
	// ErrMalformed is returned for frames that are not a JSON envelope.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType is returned for envelopes with an unrecognised type.
	ErrUnknownType = errors.New("unknown message type")
	// ErrMissingField is returned when a required field is absent.
	ErrMissingField = errors.New("missing required field")
)

// Envelope is the outer shape of every frame.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Handler receives decoded inbound events.
type Handler interface {
	JoinQueue(from conn.ID, ev JoinQueue)
	LeaveQueue(from conn.ID, ev LeaveQueue)
	GetQueue(from conn.ID, ev GetQueue)
	CreateBattle(from conn.ID, ev CreateBattle)
	JoinBattle(from conn.ID, ev JoinBattle)
	SendBattleMessage(from conn.ID, ev SendBattleMessage)
	LeaveBattle(from conn.ID, ev LeaveBattle)
	Ping(from conn.ID, ev Ping)
}

// Event is one decoded inbound event.
type Event interface {
	Kind() Type
	// Validate reports the first missing required field.
	Validate() error
	// Dispatch calls the Handler method for this kind.
	Dispatch(h Handler, from conn.ID)
}

type JoinQueue struct {
	UserID         string          `json:"userId"`
	Username       string          `json:"username,omitempty"`
	Appearance     json.RawMessage `json:"appearance,omitempty"`
	EvolutionLevel *int            `json:"evolutionLevel,omitempty"`
}

type LeaveQueue struct {
	UserID string `json:"userId"`
}

type GetQueue struct{}

type CreateBattle struct {
	UserID     string          `json:"userId"`
	Code       string          `json:"code"`
	Username   string          `json:"username,omitempty"`
	Appearance json.RawMessage `json:"appearance,omitempty"`
}

type JoinBattle struct {
	UserID     string          `json:"userId"`
	Code       string          `json:"code"`
	Username   string          `json:"username,omitempty"`
	Appearance json.RawMessage `json:"appearance,omitempty"`
}

type SendBattleMessage struct {
	SessionID string          `json:"sessionId"`
	UserID    string          `json:"userId"`
	Message   json.RawMessage `json:"message"`
}

type LeaveBattle struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

type Ping struct{}

func (JoinQueue) Kind() Type         { return TypeJoinQueue }
func (LeaveQueue) Kind() Type        { return TypeLeaveQueue }
func (GetQueue) Kind() Type          { return TypeGetQueue }
func (CreateBattle) Kind() Type      { return TypeCreateBattle }
func (JoinBattle) Kind() Type        { return TypeJoinBattle }
func (SendBattleMessage) Kind() Type { return TypeSendBattleMessage }
func (LeaveBattle) Kind() Type       { return TypeLeaveBattle }
func (Ping) Kind() Type              { return TypePing }

func (e JoinQueue) Dispatch(h Handler, from conn.ID)         { h.JoinQueue(from, e) }
func (e LeaveQueue) Dispatch(h Handler, from conn.ID)        { h.LeaveQueue(from, e) }
func (e GetQueue) Dispatch(h Handler, from conn.ID)          { h.GetQueue(from, e) }
func (e CreateBattle) Dispatch(h Handler, from conn.ID)      { h.CreateBattle(from, e) }
func (e JoinBattle) Dispatch(h Handler, from conn.ID)        { h.JoinBattle(from, e) }
func (e SendBattleMessage) Dispatch(h Handler, from conn.ID) { h.SendBattleMessage(from, e) }
func (e LeaveBattle) Dispatch(h Handler, from conn.ID)       { h.LeaveBattle(from, e) }
func (e Ping) Dispatch(h Handler, from conn.ID)              { h.Ping(from, e) }

func (e JoinQueue) Validate() error  { return requireField("userId", e.UserID) }
func (e LeaveQueue) Validate() error { return requireField("userId", e.UserID) }
func (GetQueue) Validate() error     { return nil }
func (Ping) Validate() error         { return nil }

// The code of CREATE_BATTLE may be blank; the server then generates one.
func (e CreateBattle) Validate() error { return requireField("userId", e.UserID) }

func (e JoinBattle) Validate() error {
	if err := requireField("userId", e.UserID); err != nil {
		return err
	}
	return requireField("code", e.Code)
}

func (e SendBattleMessage) Validate() error {
	if err := requireField("sessionId", e.SessionID); err != nil {
		return err
	}
	if err := requireField("userId", e.UserID); err != nil {
		return err
	}
	if len(e.Message) == 0 || bytes.Equal(e.Message, []byte("null")) {
		return fmt.Errorf("%w: message", ErrMissingField)
	}
	return nil
}

func (e LeaveBattle) Validate() error {
	if err := requireField("sessionId", e.SessionID); err != nil {
		return err
	}
	return requireField("userId", e.UserID)
}

func requireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return nil
}

// Decode parses one inbound frame. Fields may sit under "payload" or, for
// flat clients, beside "type".
func Decode(frame []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	body := []byte(env.Payload)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		body = frame
	}

	var (
		ev  Event
		err error
	)
	switch env.Type {
	case TypeJoinQueue:
		ev, err = decodeAs[JoinQueue](body)
	case TypeLeaveQueue:
		ev, err = decodeAs[LeaveQueue](body)
	case TypeGetQueue:
		ev = GetQueue{}
	case TypeCreateBattle:
		ev, err = decodeAs[CreateBattle](body)
	case TypeJoinBattle:
		ev, err = decodeAs[JoinBattle](body)
	case TypeSendBattleMessage:
		ev, err = decodeAs[SendBattleMessage](body)
	case TypeLeaveBattle:
		ev, err = decodeAs[LeaveBattle](body)
	case TypePing:
		ev = Ping{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return ev, nil
}

func decodeAs[T Event](body []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}
