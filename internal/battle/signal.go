package battle

import "encoding/json"

// RoundSignal is the only part of a relayed gameplay message the router reads.
type RoundSignal struct {
	GameOver bool   `json:"gameOver"`
	Winner   string `json:"winner"`
}

// ParseRoundSignal extracts a game-over report from an opaque message. ok is
// false unless the message is an object flagged gameOver that names a winner.
func ParseRoundSignal(message json.RawMessage) (RoundSignal, bool) {
	var sig RoundSignal
	if len(message) == 0 || message[0] != '{' {
		return RoundSignal{}, false
	}
	if err := json.Unmarshal(message, &sig); err != nil {
		return RoundSignal{}, false
	}
	if !sig.GameOver || sig.Winner == "" {
		return RoundSignal{}, false
	}
	return sig, true
}
