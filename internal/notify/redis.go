// ABOUTME: Redis relay for stream lifecycle events
// ABOUTME: Publishes finished-stream notifications to a pub/sub channel
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const publishTimeout = 2 * time.Second

// StreamEvent is the payload published for every finalized live stream.
// Unlike the WebSocket notification it names the file, since subscribers
// may not have access to the listing endpoint.
type StreamEvent struct {
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Bytes     int64     `json:"bytes"`
	Finalized time.Time `json:"finalized_at"`
}

// publisher is the subset of the go-redis client used here
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
}

// RedisRelay publishes lifecycle events to a Redis channel
type RedisRelay struct {
	client  publisher
	closer  func() error
	channel string
}

// NewRedisRelay connects to the Redis server at url (redis://host:port/db)
// and verifies it with a PING.
func NewRedisRelay(ctx context.Context, url, channel string) (*RedisRelay, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisRelay{client: client, closer: client.Close, channel: channel}, nil
}

// Channel returns the pub/sub channel events are published on
func (r *RedisRelay) Channel() string {
	return r.channel
}

// Publish sends one event. The call is bounded by a short timeout so a slow
// Redis cannot hold up connection cleanup.
func (r *RedisRelay) Publish(ctx context.Context, ev StreamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal stream event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	return nil
}

// Close releases the Redis connection pool
func (r *RedisRelay) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

// NewStreamEvent builds the event for a finalized container at path
func NewStreamEvent(path string, bytes int64, at time.Time) StreamEvent {
	return StreamEvent{
		Type:      "new_stream",
		Name:      filepath.Base(path),
		Bytes:     bytes,
		Finalized: at.UTC(),
	}
}
