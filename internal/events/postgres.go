package events

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// PostgresBus publishes events with pg_notify and receives them with LISTEN
type PostgresBus struct {
	*LocalBus
	db       *sql.DB
	listener *pq.Listener
	channel  string
}

// NewPostgresBus opens a connection for NOTIFY and a listener for LISTEN.
// Call Start to receive events.
func NewPostgresBus(ctx context.Context, dsn, channel string) (*PostgresBus, error) {
	if channel == "" {
		channel = "progress_events"
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("postgres listener event", "type", ev, "error", err)
		}
	})

	return &PostgresBus{
		LocalBus: NewLocalBus(),
		db:       db,
		listener: listener,
		channel:  channel,
	}, nil
}

// Publish sends e through pg_notify
func (b *PostgresBus) Publish(ctx context.Context, e Event) error {
	payload, err := encodeEvent(e)
	if err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, b.channel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify event: %w", err)
	}
	return nil
}

// Start listens on the channel and forwards notifications to local handlers
// until ctx is done
func (b *PostgresBus) Start(ctx context.Context) error {
	if err := b.listener.Listen(b.channel); err != nil {
		return fmt.Errorf("postgres listen: %w", err)
	}

	slog.Info("postgres event listener started", "channel", b.channel)

	go b.forward(ctx, b.listener.Notify, 90*time.Second)

	return nil
}

// forward dispatches notifications until ctx is done or notify closes. The
// listener is pinged after every idle period.
func (b *PostgresBus) forward(ctx context.Context, notify <-chan *pq.Notification, idle time.Duration) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("postgres event listener stopped")
			return
		case n, ok := <-notify:
			if !ok {
				slog.Info("postgres event listener closed")
				return
			}
			// nil notification after a reconnect
			if n == nil {
				continue
			}
			e, err := decodeEvent([]byte(n.Extra))
			if err != nil {
				slog.Warn("bad postgres event payload", "error", err)
				continue
			}
			b.Dispatch(e)
		case <-time.After(idle):
			if b.listener != nil {
				go b.listener.Ping()
			}
		}
	}
}

// HealthCheck verifies database connectivity
func (b *PostgresBus) HealthCheck(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close stops the listener and closes the connection
func (b *PostgresBus) Close() error {
	b.LocalBus.Close()
	lerr := b.listener.Close()
	if err := b.db.Close(); err != nil {
		return err
	}
	return lerr
}
