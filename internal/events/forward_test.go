package events

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	got []Event
}

func (r *recorder) handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
}

func (r *recorder) events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.got...)
}

func encoded(t *testing.T, userID string) string {
	t.Helper()
	e := NewEvent(ProgressUpdated)
	e.UserID = userID
	raw, err := encodeEvent(e)
	require.NoError(t, err)
	return string(raw)
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder did not return")
	}
}

func TestRedisForwarder(t *testing.T) {
	bus := &RedisBus{LocalBus: NewLocalBus(), channel: "test"}
	rec := &recorder{}
	bus.Subscribe(ProgressUpdated, rec.handle)

	ch := make(chan *redis.Message, 4)
	ch <- &redis.Message{Channel: "test", Payload: encoded(t, "u1")}
	ch <- &redis.Message{Channel: "test", Payload: "not json"}
	ch <- &redis.Message{Channel: "test", Payload: encoded(t, "u2")}
	close(ch)

	done := make(chan struct{})
	go func() {
		bus.forward(context.Background(), ch)
		close(done)
	}()
	waitDone(t, done)

	got := rec.events()
	require.Len(t, got, 2)
	assert.Equal(t, "u1", got[0].UserID)
	assert.Equal(t, "u2", got[1].UserID)
}

func TestRedisForwarderStopsOnCancel(t *testing.T) {
	bus := &RedisBus{LocalBus: NewLocalBus()}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		bus.forward(ctx, make(chan *redis.Message))
		close(done)
	}()

	cancel()
	waitDone(t, done)
}

func TestPostgresForwarder(t *testing.T) {
	bus := &PostgresBus{LocalBus: NewLocalBus(), channel: "test"}
	rec := &recorder{}
	bus.Subscribe(ProgressUpdated, rec.handle)

	notify := make(chan *pq.Notification, 4)
	notify <- &pq.Notification{Channel: "test", Extra: encoded(t, "u1")}
	notify <- nil
	notify <- &pq.Notification{Channel: "test", Extra: "{}"}
	notify <- &pq.Notification{Channel: "test", Extra: encoded(t, "u2")}
	close(notify)

	done := make(chan struct{})
	go func() {
		bus.forward(context.Background(), notify, time.Hour)
		close(done)
	}()
	// returns once notify is closed instead of spinning on nil receives
	waitDone(t, done)

	got := rec.events()
	require.Len(t, got, 2)
	assert.Equal(t, "u1", got[0].UserID)
	assert.Equal(t, "u2", got[1].UserID)
}

func TestPostgresForwarderStopsOnCancel(t *testing.T) {
	bus := &PostgresBus{LocalBus: NewLocalBus()}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		bus.forward(ctx, make(chan *pq.Notification), 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	waitDone(t, done)
}

func TestRedisBusRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDRESS not set, skipping")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := NewRedisBus(ctx, RedisConfig{Address: addr, Channel: "progress-events-test"})
	require.NoError(t, err)
	defer bus.Close()
	require.NoError(t, bus.Start(ctx))
	require.NoError(t, bus.HealthCheck(ctx))

	rec := &recorder{}
	bus.Subscribe(ProgressUpdated, rec.handle)

	e := NewEvent(ProgressUpdated)
	e.UserID = "u1"
	require.NoError(t, bus.Publish(ctx, e))

	assert.Eventually(t, func() bool { return len(rec.events()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestPostgresBusRoundTrip(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set, skipping")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := NewPostgresBus(ctx, dsn, "progress_events_test")
	require.NoError(t, err)
	defer bus.Close()
	require.NoError(t, bus.Start(ctx))
	require.NoError(t, bus.HealthCheck(ctx))

	rec := &recorder{}
	bus.Subscribe(ProgressUpdated, rec.handle)

	e := NewEvent(ProgressUpdated)
	e.UserID = "u1"
	require.NoError(t, bus.Publish(ctx, e))

	assert.Eventually(t, func() bool { return len(rec.events()) == 1 }, 5*time.Second, 20*time.Millisecond)
}
