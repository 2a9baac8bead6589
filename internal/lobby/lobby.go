// Package lobby is the per-server context object that owns the matchmaking
// queue, the battle directory and the connection registry, and routes every
// inbound client event against them.
//
// A Lobby is not safe for concurrent use. The transport runs all of its
// methods from one goroutine, one event at a time, so each event sees and
// leaves consistent state without locks.
package lobby

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/playmatatu/battlerelay/internal/battle"
	"github.com/playmatatu/battlerelay/internal/conn"
	"github.com/playmatatu/battlerelay/internal/matchmaking"
	"github.com/playmatatu/battlerelay/internal/protocol"
	"github.com/playmatatu/battlerelay/internal/store"
)

// DefaultDisplayName replaces a missing username.
const DefaultDisplayName = "Player"

// DefaultMaxMoves bounds the moves kept per session when no limit is given.
const DefaultMaxMoves = 500

// Notifier delivers server events. Implementations must not block.
type Notifier interface {
	Send(id conn.ID, ev protocol.Outbound)
	Broadcast(ev protocol.Outbound)
}

// Recorder receives persistence work. store.Writer satisfies it.
type Recorder interface {
	SaveProfile(p store.Profile)
	RecordBattle(r store.BattleRecord)
}

// Stats is one housekeeping snapshot.
type Stats struct {
	Connections     int       `json:"connections"`
	QueueLength     int       `json:"queueLength"`
	ActiveSessions  int       `json:"activeSessions"`
	PendingSessions int       `json:"pendingSessions"`
	At              time.Time `json:"at"`
}

// Lobby owns the queue, the session directory and the connection registry,
// and handles every inbound event. It is not safe for concurrent use.
type Lobby struct {
	queue    *matchmaking.Queue
	battles  *battle.Directory
	conns    *conn.Registry
	notify   Notifier
	recorder Recorder
	logger   *zap.Logger
	maxMoves int
	now      func() time.Time
}

type Option func(*Lobby)

// WithRecorder persists profiles and finished battles through r.
func WithRecorder(r Recorder) Option {
	return func(l *Lobby) { l.recorder = r }
}

// WithMaxMoves caps the relayed payloads kept per session for the battle record.
func WithMaxMoves(n int) Option {
	return func(l *Lobby) {
		if n > 0 {
			l.maxMoves = n
		}
	}
}

// New builds a lobby that sends its events through notify.
func New(notify Notifier, logger *zap.Logger, opts ...Option) *Lobby {
	l := &Lobby{
		queue:    matchmaking.NewQueue(),
		conns:    conn.NewRegistry(),
		notify:   notify,
		logger:   logger.Named("lobby"),
		maxMoves: DefaultMaxMoves,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.battles = battle.NewDirectory(l.maxMoves)
	return l
}

// Connect registers a new connection and greets it.
func (l *Lobby) Connect(id conn.ID) {
	l.conns.Add(id)
	l.notify.Send(id, protocol.Connected(id))
	l.logger.Debug("connection registered", zap.String("conn", string(id)))
}

// Disconnect drops every trace of connection id: its queue entry and any
// session slot bound to it, whose opponent is told the battle is over.
func (l *Lobby) Disconnect(id conn.ID) {
	userID, _ := l.conns.UserOf(id)
	l.conns.Remove(id)

	if n := l.queue.RemoveByConn(id); n > 0 {
		l.logger.Info("queue entry removed on disconnect",
			zap.String("conn", string(id)), zap.String("user_id", userID))
		l.queueChanged()
	}

	for _, m := range l.battles.ByConn(id) {
		slot := m.Session.Slot(m.Side)
		l.leave(m.Session.ID, slot.UserID, "")
	}
	l.logger.Debug("connection removed", zap.String("conn", string(id)), zap.String("user_id", userID))
}

// Handle decodes one inbound frame from connection from and applies it.
// Malformed frames and unknown types are logged and ignored.
func (l *Lobby) Handle(from conn.ID, frame []byte) {
	ev, err := protocol.Decode(frame)
	if err != nil {
		l.logger.Warn("ignoring inbound frame", zap.String("conn", string(from)), zap.Error(err))
		return
	}
	if err := ev.Validate(); err != nil {
		l.logger.Debug("rejected event", zap.String("type", string(ev.Kind())), zap.Error(err))
		l.notify.Send(from, protocol.Error(err.Error()))
		return
	}
	ev.Dispatch(l, from)
}

// Sweep re-runs pairing. The housekeeping ticker calls it in case an
// event-driven attempt was missed.
func (l *Lobby) Sweep() int {
	return l.pair()
}

// Stats reports current counters without touching state.
func (l *Lobby) Stats() Stats {
	pending, active := l.battles.Counts()
	return Stats{
		Connections:     l.conns.Len(),
		QueueLength:     l.queue.Len(),
		ActiveSessions:  active,
		PendingSessions: pending,
		At:              l.now(),
	}
}

func (l *Lobby) JoinQueue(from conn.ID, ev protocol.JoinQueue) {
	l.conns.Assert(from, ev.UserID)

	// One waiting entry per connection.
	l.queue.RemoveByConn(from)
	l.queue.Enqueue(matchmaking.Entry{
		UserID:         ev.UserID,
		DisplayName:    displayName(ev.Username),
		Conn:           from,
		Appearance:     ev.Appearance,
		EvolutionLevel: ev.EvolutionLevel,
	})
	l.logger.Info("player joined queue",
		zap.String("user_id", ev.UserID), zap.Int("position", l.queue.Position(ev.UserID)))

	l.saveProfile(ev.UserID, ev.Username, ev.Appearance, ev.EvolutionLevel)
	l.queueChanged()
}

func (l *Lobby) LeaveQueue(from conn.ID, ev protocol.LeaveQueue) {
	l.conns.Assert(from, ev.UserID)
	if !l.queue.Remove(ev.UserID) {
		l.logger.Debug("leave for user not in queue", zap.String("user_id", ev.UserID))
		return
	}
	l.logger.Info("player left queue", zap.String("user_id", ev.UserID))
	l.queueChanged()
}

func (l *Lobby) GetQueue(from conn.ID, _ protocol.GetQueue) {
	l.notify.Send(from, protocol.QueueUpdate(l.queueItems()))
}

func (l *Lobby) CreateBattle(from conn.ID, ev protocol.CreateBattle) {
	l.conns.Assert(from, ev.UserID)

	s, err := l.battles.Create(battle.Slot{
		UserID:      ev.UserID,
		DisplayName: displayName(ev.Username),
		Conn:        from,
		Appearance:  ev.Appearance,
	}, ev.Code)
	if err != nil {
		l.reject(from, "create battle", err)
		return
	}

	l.logger.Info("battle created",
		zap.String("session_id", s.ID), zap.String("code", s.JoinCode), zap.String("user_id", ev.UserID))
	l.saveProfile(ev.UserID, ev.Username, ev.Appearance, nil)
	l.notify.Send(from, protocol.BattleCreated(s.ID, s.JoinCode))
}

func (l *Lobby) JoinBattle(from conn.ID, ev protocol.JoinBattle) {
	l.conns.Assert(from, ev.UserID)

	s, err := l.battles.Join(ev.Code, battle.Slot{
		UserID:      ev.UserID,
		DisplayName: displayName(ev.Username),
		Conn:        from,
		Appearance:  ev.Appearance,
	})
	if err != nil {
		l.reject(from, "join battle", err)
		return
	}

	l.logger.Info("battle joined",
		zap.String("session_id", s.ID), zap.String("code", s.JoinCode), zap.String("user_id", ev.UserID))
	l.saveProfile(ev.UserID, ev.Username, ev.Appearance, nil)
	l.announceMatch(s)
}

func (l *Lobby) SendBattleMessage(from conn.ID, ev protocol.SendBattleMessage) {
	l.conns.Assert(from, ev.UserID)

	s, opponent, err := l.battles.Relay(ev.SessionID, from, ev.Message)
	if err != nil {
		l.reject(from, "relay", err)
		return
	}
	side, _ := s.SideOfConn(from)
	sender := s.Slot(side).UserID

	switch {
	case opponent == nil:
		l.logger.Debug("relay dropped, no opponent yet", zap.String("session_id", s.ID))
	case !l.conns.Has(opponent.Conn):
		l.logger.Debug("relay dropped, opponent connection gone",
			zap.String("session_id", s.ID), zap.String("conn", string(opponent.Conn)))
	default:
		l.notify.Send(opponent.Conn, protocol.BattleMessage(s.ID, sender, ev.Message))
	}

	l.inspectRound(from, s, ev.Message)
}

func (l *Lobby) LeaveBattle(from conn.ID, ev protocol.LeaveBattle) {
	l.conns.Assert(from, ev.UserID)
	l.leave(ev.SessionID, ev.UserID, from)
}

func (l *Lobby) Ping(from conn.ID, _ protocol.Ping) {
	l.notify.Send(from, protocol.Pong())
}

// inspectRound credits a round when the payload signals game over. Only the
// connection holding the winning slot can credit it.
func (l *Lobby) inspectRound(from conn.ID, s *battle.Session, payload json.RawMessage) {
	sig, ok := battle.ParseRoundSignal(payload)
	if !ok {
		return
	}
	winner, ok := s.ResolveWinner(sig.Winner)
	if !ok {
		l.logger.Debug("round result names no slot", zap.String("session_id", s.ID), zap.String("winner", sig.Winner))
		return
	}

	var reporter string
	if side, ok := s.SideOfConn(from); ok {
		reporter = s.Slot(side).UserID
	}
	accepted, err := l.battles.RecordRoundResult(s.ID, reporter, winner)
	if err != nil || !accepted {
		l.logger.Info("round result ignored",
			zap.String("session_id", s.ID), zap.String("winner", string(winner)), zap.String("reporter", reporter))
		return
	}

	a, b := s.WinState()
	l.logger.Info("round recorded", zap.String("session_id", s.ID), zap.Int("slot_a_wins", a), zap.Int("slot_b_wins", b))
	update := protocol.WinState(s.ID, a, b)
	l.notify.Send(s.SlotA.Conn, update)
	l.notify.Send(s.SlotB.Conn, update)
}

// leave ends session id for userID. from is the requesting connection for an
// explicit leave and empty when the leave comes from a disconnect.
func (l *Lobby) leave(id, userID string, from conn.ID) {
	s, other, err := l.battles.Leave(id, userID)
	if err != nil {
		if from != "" {
			l.reject(from, "leave battle", err)
		}
		return
	}

	l.logger.Info("battle ended",
		zap.String("session_id", s.ID), zap.String("user_id", userID), zap.Bool("started", s.Started))
	if other != nil && l.conns.Has(other.Conn) {
		l.notify.Send(other.Conn, protocol.OpponentDisconnected(s.ID))
	}
	if from != "" {
		l.notify.Send(from, protocol.BattleLeft(s.ID))
	}
	l.recordBattle(s)
}

// pair forms sessions from the queue head until fewer than two wait.
func (l *Lobby) pair() int {
	n := 0
	for {
		a, b, ok := l.queue.DequeuePair()
		if !ok {
			break
		}
		s := l.battles.CreateFromPair(slotFromEntry(a), slotFromEntry(b))
		l.logger.Info("players paired",
			zap.String("session_id", s.ID), zap.String("slot_a", a.UserID), zap.String("slot_b", b.UserID))
		l.announceMatch(s)
		n++
	}
	if n > 0 {
		l.broadcastQueue()
	}
	return n
}

// queueChanged publishes the queue and tries to pair.
func (l *Lobby) queueChanged() {
	l.broadcastQueue()
	l.pair()
}

func (l *Lobby) broadcastQueue() {
	l.notify.Broadcast(protocol.QueueUpdate(l.queueItems()))
}

func (l *Lobby) queueItems() []protocol.QueueItem {
	entries := l.queue.Snapshot()
	items := make([]protocol.QueueItem, len(entries))
	for i, e := range entries {
		items[i] = protocol.QueueItem{
			UserID:         e.UserID,
			Username:       e.DisplayName,
			Appearance:     e.Appearance,
			EvolutionLevel: e.EvolutionLevel,
			Position:       i + 1,
		}
	}
	return items
}

func (l *Lobby) announceMatch(s *battle.Session) {
	a, b := s.SlotA, s.SlotB
	l.notify.Send(a.Conn, protocol.MatchFound(s.ID, b.DisplayName, b.Appearance, string(battle.SideA)))
	l.notify.Send(b.Conn, protocol.MatchFound(s.ID, a.DisplayName, a.Appearance, string(battle.SideB)))
}

func (l *Lobby) reject(from conn.ID, op string, err error) {
	l.logger.Info(op+" rejected", zap.String("conn", string(from)), zap.Error(err))
	l.notify.Send(from, protocol.Error(err.Error()))
}

func (l *Lobby) saveProfile(userID, username string, appearance json.RawMessage, level *int) {
	if l.recorder == nil {
		return
	}
	l.recorder.SaveProfile(store.Profile{
		UserID:         userID,
		Username:       displayName(username),
		Appearance:     appearance,
		EvolutionLevel: level,
	})
}

func (l *Lobby) recordBattle(s *battle.Session) {
	if l.recorder == nil || !s.Started {
		return
	}
	a, b := s.WinState()
	l.recorder.RecordBattle(store.BattleRecord{
		ID:          uuid.NewString(),
		SessionID:   s.ID,
		Origin:      string(s.CreatedVia),
		PlayerA:     s.SlotA.UserID,
		PlayerAName: s.SlotA.DisplayName,
		PlayerB:     s.SlotB.UserID,
		PlayerBName: s.SlotB.DisplayName,
		WinsA:       a,
		WinsB:       b,
		Moves:       s.Moves,
		StartedAt:   s.StartedAt,
		EndedAt:     l.now(),
	})
}

func slotFromEntry(e matchmaking.Entry) battle.Slot {
	return battle.Slot{
		UserID:      e.UserID,
		DisplayName: e.DisplayName,
		Conn:        e.Conn,
		Appearance:  e.Appearance,
	}
}

func displayName(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return DefaultDisplayName
	}
	return name
}
