// Package store is the persistence gateway for player profiles and finished
// battles. Live matchmaking state never goes through it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// RecentBattlesLimit caps GetRecentBattles.
	RecentBattlesLimit = 10
	// BattlesKept bounds the battle history held by the memory and Redis
	// backends; older records are trimmed on write.
	BattlesKept = 100
)

// ErrNotFound is returned by GetProfile for unknown users.
var ErrNotFound = errors.New("not found")

// Profile is the stored view of a player.
type Profile struct {
	UserID         string          `json:"userId"`
	Username       string          `json:"username"`
	Appearance     json.RawMessage `json:"appearance,omitempty"`
	EvolutionLevel *int            `json:"evolutionLevel,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	LastActive     time.Time       `json:"lastActive"`
}

// BattleRecord is the history entry of one finished battle.
type BattleRecord struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"sessionId"`
	Origin      string            `json:"origin"`
	PlayerA     string            `json:"playerA"`
	PlayerAName string            `json:"playerAName"`
	PlayerB     string            `json:"playerB"`
	PlayerBName string            `json:"playerBName"`
	WinsA       int               `json:"winsA"`
	WinsB       int               `json:"winsB"`
	Moves       []json.RawMessage `json:"moves"`
	StartedAt   time.Time         `json:"startedAt"`
	EndedAt     time.Time         `json:"endedAt"`
}

// Gateway stores profiles and battle history.
type Gateway interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	// SaveProfile upserts by user id and refreshes LastActive. Empty optional
	// fields keep their stored values.
	SaveProfile(ctx context.Context, p Profile) error
	RecordBattle(ctx context.Context, r BattleRecord) error
	// GetRecentBattles returns up to RecentBattlesLimit records, newest first.
	GetRecentBattles(ctx context.Context) ([]BattleRecord, error)
}

// EncodeMoves packs an ordered move list into one blob.
func EncodeMoves(moves []json.RawMessage) ([]byte, error) {
	if moves == nil {
		moves = []json.RawMessage{}
	}
	b, err := json.Marshal(moves)
	if err != nil {
		return nil, fmt.Errorf("encoding moves: %w", err)
	}
	return b, nil
}

// DecodeMoves reverses EncodeMoves, keeping order.
func DecodeMoves(blob []byte) ([]json.RawMessage, error) {
	moves := []json.RawMessage{}
	if len(blob) == 0 {
		return moves, nil
	}
	if err := json.Unmarshal(blob, &moves); err != nil {
		return nil, fmt.Errorf("decoding moves: %w", err)
	}
	return moves, nil
}
