package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps everything in process memory. It is the default backend
// and the one tests run against.
type MemoryStore struct {
	profiles map[string]Profile
	battles  []BattleRecord
	now      func() time.Time
	mu       sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]Profile),
		now:      time.Now,
	}
}

func (m *MemoryStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) SaveProfile(ctx context.Context, p Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, ok := m.profiles[p.UserID]; ok {
		mergeProfile(&p, existing)
	} else {
		p.CreatedAt = now
	}
	p.LastActive = now
	p.Appearance = cloneRaw(p.Appearance)
	m.profiles[p.UserID] = p
	return nil
}

func (m *MemoryStore) RecordBattle(ctx context.Context, r BattleRecord) error {
	// Round-trip through the blob codec so every backend stores the same thing.
	blob, err := EncodeMoves(r.Moves)
	if err != nil {
		return err
	}
	if r.Moves, err = DecodeMoves(blob); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.battles = append(m.battles, r)
	if over := len(m.battles) - BattlesKept; over > 0 {
		n := copy(m.battles, m.battles[over:])
		clear(m.battles[n:])
		m.battles = m.battles[:n]
	}
	return nil
}

func (m *MemoryStore) GetRecentBattles(ctx context.Context) ([]BattleRecord, error) {
	m.mu.RLock()
	out := make([]BattleRecord, len(m.battles))
	for i, r := range m.battles {
		out[len(m.battles)-1-i] = r
	}
	m.mu.RUnlock()

	// Newest insertion first, then by end time for out-of-order writes.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EndedAt.After(out[j].EndedAt)
	})
	if len(out) > RecentBattlesLimit {
		out = out[:RecentBattlesLimit]
	}
	return out, nil
}

// mergeProfile keeps stored optional fields that an update leaves out.
func mergeProfile(p *Profile, existing Profile) {
	p.CreatedAt = existing.CreatedAt
	if len(p.Appearance) == 0 {
		p.Appearance = existing.Appearance
	}
	if p.EvolutionLevel == nil {
		p.EvolutionLevel = existing.EvolutionLevel
	}
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	return append(json.RawMessage(nil), b...)
}
