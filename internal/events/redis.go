package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBus publishes events through Redis pub/sub so every instance sees
// every event, its own included. Handlers run on the forwarder goroutine.
type RedisBus struct {
	*LocalBus
	client  *redis.Client
	channel string
}

// RedisConfig holds Redis bus configuration
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Channel  string
}

// NewRedisBus connects to Redis and returns a bus. Call Start to receive events.
func NewRedisBus(ctx context.Context, cfg RedisConfig) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = "progress-events"
	}

	return &RedisBus{
		LocalBus: NewLocalBus(),
		client:   client,
		channel:  channel,
	}, nil
}

// Publish sends e to the Redis channel
func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	payload, err := encodeEvent(e)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Start subscribes to the channel and forwards messages to local handlers
// until ctx is done
func (b *RedisBus) Start(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	slog.Info("redis event forwarder started", "channel", b.channel)

	go func() {
		defer sub.Close()
		b.forward(ctx, sub.Channel())
	}()

	return nil
}

// forward dispatches channel messages until ctx is done or ch closes
func (b *RedisBus) forward(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("redis event forwarder stopped")
			return
		case m, ok := <-ch:
			if !ok || m == nil {
				return
			}
			e, err := decodeEvent([]byte(m.Payload))
			if err != nil {
				slog.Warn("bad redis event payload", "error", err)
				continue
			}
			b.Dispatch(e)
		}
	}
}

// HealthCheck verifies Redis connectivity
func (b *RedisBus) HealthCheck(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (b *RedisBus) Close() error {
	b.LocalBus.Close()
	return b.client.Close()
}

func encodeEvent(e Event) ([]byte, error) {
	if e.Name == "" {
		return nil, fmt.Errorf("event name is required")
	}
	if e.ID == "" || e.At.IsZero() {
		stamped := NewEvent(e.Name)
		if e.ID == "" {
			e.ID = stamped.ID
		}
		if e.At.IsZero() {
			e.At = stamped.At
		}
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return raw, nil
}

func decodeEvent(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if e.Name == "" {
		return Event{}, fmt.Errorf("event name is required")
	}
	return e, nil
}
