package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix  = "battlerelay:"
	redisBattlesKey = redisKeyPrefix + "battles"
)

// RedisStore keeps profiles as JSON strings and battles in a capped list.
type RedisStore struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

func profileKey(userID string) string {
	return redisKeyPrefix + "profile:" + userID
}

// redisBattle is the list element; moves travel as the encoded blob.
type redisBattle struct {
	BattleRecord
	Moves []byte `json:"moves"`
}

func (s *RedisStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	raw, err := s.rdb.Get(ctx, profileKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

func (s *RedisStore) SaveProfile(ctx context.Context, p Profile) error {
	now := s.now().UTC()
	p.CreatedAt = now
	if existing, err := s.GetProfile(ctx, p.UserID); err == nil {
		mergeProfile(&p, *existing)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	p.LastActive = now

	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := s.rdb.Set(ctx, profileKey(p.UserID), raw, 0).Err(); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *RedisStore) RecordBattle(ctx context.Context, r BattleRecord) error {
	blob, err := EncodeMoves(r.Moves)
	if err != nil {
		return err
	}
	if r.EndedAt.IsZero() {
		r.EndedAt = s.now().UTC()
	}
	entry := redisBattle{BattleRecord: r, Moves: blob}
	entry.BattleRecord.Moves = nil

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode battle: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, redisBattlesKey, raw)
	pipe.LTrim(ctx, redisBattlesKey, 0, BattlesKept-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record battle: %w", err)
	}
	return nil
}

func (s *RedisStore) GetRecentBattles(ctx context.Context) ([]BattleRecord, error) {
	items, err := s.rdb.LRange(ctx, redisBattlesKey, 0, RecentBattlesLimit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("recent battles: %w", err)
	}

	out := make([]BattleRecord, 0, len(items))
	for _, item := range items {
		var entry redisBattle
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("decode battle: %w", err)
		}
		moves, err := DecodeMoves(entry.Moves)
		if err != nil {
			return nil, err
		}
		rec := entry.BattleRecord
		rec.Moves = moves
		out = append(out, rec)
	}
	return out, nil
}
