package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes every emitted event to a Redis pub/sub channel so a
// passive subscriber can attach from a different process — useful when
// the front-end consumer runs outside the orchestrator's process. This
// is purely additive: the default single-process fan-out in Bus needs no
// Redis, and RedisSink never participates in the primary delivery path
// that the session's real consumer relies on.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink returns a sink publishing to "agentcore:events:<sessionID>".
func NewRedisSink(client *redis.Client, sessionID string) *RedisSink {
	return &RedisSink{client: client, channel: fmt.Sprintf("agentcore:events:%s", sessionID)}
}

// Forward subscribes to bus and republishes every event to Redis until
// ctx is done or the bus closes. Intended to run in its own goroutine.
func (s *RedisSink) Forward(ctx context.Context, bus *Bus) error {
	sub := bus.Subscribe(64)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("redis sink: marshal event: %w", err)
			}
			if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
				return fmt.Errorf("redis sink: publish: %w", err)
			}
		}
	}
}
