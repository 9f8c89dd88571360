package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Evictor drops idle session views
type Evictor interface {
	EvictIdle(maxIdle time.Duration) int
}

// Cleaner handles periodic eviction of idle session views
type Cleaner struct {
	sessions Evictor
	interval time.Duration
	idleTTL  time.Duration
}

// NewCleaner creates a new cleanup worker
func NewCleaner(sessions Evictor, interval, idleTTL time.Duration) *Cleaner {
	if interval <= 0 {
		interval = time.Minute
	}
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}

	return &Cleaner{
		sessions: sessions,
		interval: interval,
		idleTTL:  idleTTL,
	}
}

// Run sweeps until ctx is cancelled
func (c *Cleaner) Run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", c.interval, "idle_ttl", c.idleTTL)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cleaner) sweep() int {
	evicted := c.sessions.EvictIdle(c.idleTTL)
	if evicted == 0 {
		slog.Debug("no idle sessions found")
		return 0
	}
	slog.Info("evicted idle sessions", "count", evicted)
	return evicted
}
