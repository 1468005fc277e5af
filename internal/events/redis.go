// Package events forwards dispatch events to the real-time client layer
// through Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"xixu.io/notifier/internal/notification"
)

// DefaultChannel is the pub/sub channel events are published on.
const DefaultChannel = "notifications:events"

// Publisher is the subset of redis.UniversalClient used here.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher publishes each event as JSON.
type RedisPublisher struct {
	client  Publisher
	channel string
}

// NewRedisPublisher creates a publisher. An empty channel uses DefaultChannel.
func NewRedisPublisher(client Publisher, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Handle publishes event. It matches notification.EventHandler so it can be
// subscribed to an Emitter.
func (p *RedisPublisher) Handle(ctx context.Context, event notification.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}

var _ notification.EventHandler = (*RedisPublisher)(nil).Handle
