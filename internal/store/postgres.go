package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresStore persists profiles and battles through sqlx.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type profileRow struct {
	UserID         string        `db:"user_id"`
	Username       string        `db:"username"`
	Appearance     []byte        `db:"appearance"`
	EvolutionLevel sql.NullInt64 `db:"evolution_level"`
	CreatedAt      time.Time     `db:"created_at"`
	LastActive     time.Time     `db:"last_active"`
}

func (r profileRow) profile() *Profile {
	p := &Profile{
		UserID:     r.UserID,
		Username:   r.Username,
		CreatedAt:  r.CreatedAt,
		LastActive: r.LastActive,
	}
	if len(r.Appearance) > 0 {
		p.Appearance = json.RawMessage(r.Appearance)
	}
	if r.EvolutionLevel.Valid {
		lvl := int(r.EvolutionLevel.Int64)
		p.EvolutionLevel = &lvl
	}
	return p
}

type battleRow struct {
	ID          string       `db:"id"`
	SessionID   string       `db:"session_id"`
	Origin      string       `db:"origin"`
	PlayerA     string       `db:"player_a"`
	PlayerAName string       `db:"player_a_name"`
	PlayerB     string       `db:"player_b"`
	PlayerBName string       `db:"player_b_name"`
	WinsA       int          `db:"wins_a"`
	WinsB       int          `db:"wins_b"`
	Moves       []byte       `db:"moves"`
	StartedAt   sql.NullTime `db:"started_at"`
	EndedAt     time.Time    `db:"ended_at"`
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, username, appearance, evolution_level, created_at, last_active
		FROM player_profiles WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return row.profile(), nil
}

func (s *PostgresStore) SaveProfile(ctx context.Context, p Profile) error {
	var lvl sql.NullInt64
	if p.EvolutionLevel != nil {
		lvl = sql.NullInt64{Int64: int64(*p.EvolutionLevel), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO player_profiles (user_id, username, appearance, evolution_level, last_active)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			appearance = COALESCE(EXCLUDED.appearance, player_profiles.appearance),
			evolution_level = COALESCE(EXCLUDED.evolution_level, player_profiles.evolution_level),
			last_active = NOW()`,
		p.UserID, p.Username, jsonParam(p.Appearance), lvl)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordBattle(ctx context.Context, r BattleRecord) error {
	blob, err := EncodeMoves(r.Moves)
	if err != nil {
		return err
	}
	var started sql.NullTime
	if !r.StartedAt.IsZero() {
		started = sql.NullTime{Time: r.StartedAt, Valid: true}
	}
	ended := r.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO battle_records
			(id, session_id, origin, player_a, player_a_name, player_b, player_b_name,
			 wins_a, wins_b, moves, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, r.SessionID, r.Origin, r.PlayerA, r.PlayerAName, r.PlayerB, r.PlayerBName,
		r.WinsA, r.WinsB, blob, started, ended)
	if err != nil {
		return fmt.Errorf("record battle: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRecentBattles(ctx context.Context) ([]BattleRecord, error) {
	var rows []battleRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, session_id, origin, player_a, player_a_name, player_b, player_b_name,
		       wins_a, wins_b, moves, started_at, ended_at
		FROM battle_records
		ORDER BY ended_at DESC, seq DESC
		LIMIT $1`, RecentBattlesLimit)
	if err != nil {
		return nil, fmt.Errorf("recent battles: %w", err)
	}

	out := make([]BattleRecord, 0, len(rows))
	for _, row := range rows {
		moves, err := DecodeMoves(row.Moves)
		if err != nil {
			return nil, err
		}
		out = append(out, BattleRecord{
			ID:          row.ID,
			SessionID:   row.SessionID,
			Origin:      row.Origin,
			PlayerA:     row.PlayerA,
			PlayerAName: row.PlayerAName,
			PlayerB:     row.PlayerB,
			PlayerBName: row.PlayerBName,
			WinsA:       row.WinsA,
			WinsB:       row.WinsB,
			Moves:       moves,
			StartedAt:   row.StartedAt.Time,
			EndedAt:     row.EndedAt,
		})
	}
	return out, nil
}

// jsonParam hands JSONB columns a string, since lib/pq sends []byte as bytea.
func jsonParam(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
