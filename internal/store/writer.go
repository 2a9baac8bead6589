package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

type job struct {
	kind    string
	profile Profile
	battle  BattleRecord
}

// Writer applies gateway writes on its own goroutine so callers never wait
// on the backend. Jobs are dropped, with a log line, when the buffer is full.
type Writer struct {
	gw     Gateway
	logger *zap.Logger
	jobs   chan job
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewWriter(gw Gateway, logger *zap.Logger, buffer int) *Writer {
	if buffer <= 0 {
		buffer = 1
	}
	w := &Writer{
		gw:     gw,
		logger: logger.Named("store-writer"),
		jobs:   make(chan job, buffer),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// SaveProfile queues a profile upsert.
func (w *Writer) SaveProfile(p Profile) {
	w.submit(job{kind: "profile", profile: p})
}

// RecordBattle queues a battle history write.
func (w *Writer) RecordBattle(r BattleRecord) {
	w.submit(job{kind: "battle", battle: r})
}

func (w *Writer) submit(j job) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.logger.Warn("write after close dropped", zap.String("kind", j.kind))
		return
	}
	select {
	case w.jobs <- j:
	default:
		w.logger.Warn("write buffer full, dropping", zap.String("kind", j.kind))
	}
}

// Close stops accepting writes and waits for queued ones to finish.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *Writer) run() {
	defer close(w.done)
	for j := range w.jobs {
		w.apply(j)
	}
}

func (w *Writer) apply(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	switch j.kind {
	case "profile":
		err = w.gw.SaveProfile(ctx, j.profile)
		if err != nil {
			w.logger.Error("save profile failed", zap.String("user_id", j.profile.UserID), zap.Error(err))
		}
	case "battle":
		err = w.gw.RecordBattle(ctx, j.battle)
		if err != nil {
			w.logger.Error("record battle failed", zap.String("session_id", j.battle.SessionID), zap.Error(err))
		} else {
			w.logger.Info("battle recorded",
				zap.String("session_id", j.battle.SessionID),
				zap.Int("wins_a", j.battle.WinsA),
				zap.Int("wins_b", j.battle.WinsB),
				zap.Int("moves", len(j.battle.Moves)))
		}
	}
}
