package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisEventsChannel = "pulsechat:events"
	redisPresenceKey   = "pulsechat:presence"
)

// RedisBroker fans envelopes out across instances. Publish only writes to
// Redis; every instance, this one included, delivers from its subscription.
type RedisBroker struct {
	client   *redis.Client
	registry *Registry
	logger   *zap.Logger
}

func NewRedisBroker(client *redis.Client, registry *Registry, logger *zap.Logger) *RedisBroker {
	return &RedisBroker{client: client, registry: registry, logger: logger}
}

func (b *RedisBroker) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.client.Publish(ctx, redisEventsChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish envelope: %w", err)
	}
	return nil
}

// Run delivers envelopes from Redis into the local registry until ctx ends.
func (b *RedisBroker) Run(ctx context.Context) {
	pubsub := b.client.Subscribe(ctx, redisEventsChannel)
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
			env, err := decodeEnvelope(msg.Payload)
			if err != nil {
				b.logger.Warn("dropping bad envelope", zap.Error(err))
				continue
			}
			b.registry.Deliver(env)
		}
	}
}

func decodeEnvelope(payload string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Scope == "" || len(env.Frame) == 0 {
		return Envelope{}, fmt.Errorf("decode envelope: missing scope or frame")
	}
	return env, nil
}
