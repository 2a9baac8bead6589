package protocol

import (
	"encoding/json"

	"github.com/playmatatu/battlerelay/internal/conn"
)

// Server-initiated event types.
const (
	TypeConnected            Type = "CONNECTED"
	TypeQueueUpdate          Type = "QUEUE_UPDATE"
	TypeMatchFound           Type = "MATCH_FOUND"
	TypeBattleCreated        Type = "BATTLE_CREATED"
	TypeBattleMessage        Type = "BATTLE_MESSAGE"
	TypeBattleWinState       Type = "BATTLE_WIN_STATE"
	TypeOpponentDisconnected Type = "OPPONENT_DISCONNECTED"
	TypeBattleLeft           Type = "BATTLE_LEFT"
	TypePong                 Type = "PONG"
	TypeError                Type = "ERROR"
)

// Outbound is one server event ready for JSON encoding.
type Outbound struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload,omitempty"`
}

// QueueItem is the public view of a queue entry.
type QueueItem struct {
	UserID         string          `json:"userId"`
	Username       string          `json:"username"`
	Appearance     json.RawMessage `json:"appearance,omitempty"`
	EvolutionLevel *int            `json:"evolutionLevel,omitempty"`
	Position       int             `json:"position"`
}

type ConnectedPayload struct {
	ConnectionID conn.ID `json:"connectionId"`
}

type QueueUpdatePayload struct {
	Queue []QueueItem `json:"queue"`
}

type MatchFoundPayload struct {
	SessionID          string          `json:"sessionId"`
	OpponentName       string          `json:"opponentName"`
	OpponentAppearance json.RawMessage `json:"opponentAppearance,omitempty"`
	Slot               string          `json:"slot"`
}

type BattleCreatedPayload struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
}

type BattleMessagePayload struct {
	SessionID string          `json:"sessionId"`
	From      string          `json:"from"`
	Message   json.RawMessage `json:"message"`
}

type WinStatePayload struct {
	SessionID string `json:"sessionId"`
	SlotAWins int    `json:"slotAWins"`
	SlotBWins int    `json:"slotBWins"`
}

type SessionPayload struct {
	SessionID string `json:"sessionId"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

func Connected(id conn.ID) Outbound {
	return Outbound{Type: TypeConnected, Payload: ConnectedPayload{ConnectionID: id}}
}

func QueueUpdate(items []QueueItem) Outbound {
	if items == nil {
		items = []QueueItem{}
	}
	return Outbound{Type: TypeQueueUpdate, Payload: QueueUpdatePayload{Queue: items}}
}

func MatchFound(sessionID, opponentName string, opponentAppearance json.RawMessage, slot string) Outbound {
	return Outbound{Type: TypeMatchFound, Payload: MatchFoundPayload{
		SessionID:          sessionID,
		OpponentName:       opponentName,
		OpponentAppearance: opponentAppearance,
		Slot:               slot,
	}}
}

func BattleCreated(sessionID, code string) Outbound {
	return Outbound{Type: TypeBattleCreated, Payload: BattleCreatedPayload{SessionID: sessionID, Code: code}}
}

func BattleMessage(sessionID, from string, message json.RawMessage) Outbound {
	return Outbound{Type: TypeBattleMessage, Payload: BattleMessagePayload{SessionID: sessionID, From: from, Message: message}}
}

func WinState(sessionID string, a, b int) Outbound {
	return Outbound{Type: TypeBattleWinState, Payload: WinStatePayload{SessionID: sessionID, SlotAWins: a, SlotBWins: b}}
}

func OpponentDisconnected(sessionID string) Outbound {
	return Outbound{Type: TypeOpponentDisconnected, Payload: SessionPayload{SessionID: sessionID}}
}

func BattleLeft(sessionID string) Outbound {
	return Outbound{Type: TypeBattleLeft, Payload: SessionPayload{SessionID: sessionID}}
}

func Pong() Outbound {
	return Outbound{Type: TypePong}
}

func Error(msg string) Outbound {
	return Outbound{Type: TypeError, Payload: ErrorPayload{Error: msg}}
}
