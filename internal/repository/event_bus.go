package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/course-cert-api/internal/models"
)

// RedisEventBus publishes committed events on a Redis pub/sub channel.
type RedisEventBus struct {
	client  *redis.Client
	channel string
}

// NewRedisEventBus constructs a RedisEventBus.
func NewRedisEventBus(client *redis.Client, channel string) *RedisEventBus {
	return &RedisEventBus{client: client, channel: channel}
}

// Name identifies the sink in logs and metrics.
func (b *RedisEventBus) Name() string { return "redis" }

// Deliver publishes the JSON encoded event.
func (b *RedisEventBus) Deliver(ctx context.Context, event models.Event) error {
	if b.client == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", b.channel, err)
	}
	return nil
}
