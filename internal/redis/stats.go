package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/playmatatu/battlerelay/internal/lobby"
)

// StatsChannel carries housekeeping snapshots as JSON.
const StatsChannel = "battlerelay:stats"

// StatsPublisher publishes lobby stats on StatsChannel.
type StatsPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewStatsPublisher(rdb *redis.Client) *StatsPublisher {
	return &StatsPublisher{rdb: rdb, channel: StatsChannel}
}

func (p *StatsPublisher) Publish(ctx context.Context, s lobby.Stats) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish stats: %w", err)
	}
	return nil
}

// SubscribeStats decodes snapshots from StatsChannel and passes them to fn
// until ctx ends. Undecodable messages are logged and skipped.
func SubscribeStats(ctx context.Context, rdb *redis.Client, logger *zap.Logger, fn func(lobby.Stats)) error {
	pubsub := rdb.Subscribe(ctx, StatsChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", StatsChannel, err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var s lobby.Stats
				if err := json.Unmarshal([]byte(msg.Payload), &s); err != nil {
					logger.Warn("invalid stats payload", zap.Error(err))
					continue
				}
				fn(s)
			}
		}
	}()
	return nil
}
