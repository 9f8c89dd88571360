package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/terra-clan/progress-engine/internal/auth"
	"github.com/terra-clan/progress-engine/internal/events"
	"github.com/terra-clan/progress-engine/internal/models"
	"github.com/terra-clan/progress-engine/internal/progress"
)

const (
	defaultBufferSize    = 8
	maxConcurrentRefresh = 16
)

// Manager keeps one live aggregator per active user and pushes refreshed
// summaries to that user's watchers
type Manager struct {
	catalog progress.Catalog
	store   progress.Lister
	logger  *slog.Logger
	now     func() time.Time

	refreshTimeout time.Duration
	bufferSize     int

	mu    sync.Mutex
	views map[string]*view

	inflight    sync.WaitGroup
	unsubscribe func()
}

type view struct {
	userID   string
	agg      *progress.Aggregator
	lastUsed time.Time
	ready    chan struct{} // closed after the first refresh
	watchers map[uuid.UUID]chan models.CompletionSummary
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithRefreshTimeout bounds first-use and event-triggered refreshes
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshTimeout = d
	}
}

// WithBufferSize sets the per-watcher channel capacity
func WithBufferSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.bufferSize = n
		}
	}
}

// NewManager creates a session manager
func NewManager(catalog progress.Catalog, store progress.Lister, opts ...Option) *Manager {
	m := &Manager{
		catalog:    catalog,
		store:      store,
		logger:     slog.Default(),
		now:        time.Now,
		bufferSize: defaultBufferSize,
		views:      make(map[string]*view),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes the manager to progress-updated events
func (m *Manager) Start(bus events.Subscriber) {
	m.unsubscribe = bus.Subscribe(events.ProgressUpdated, m.handleEvent)
}

// Close unsubscribes from the bus and waits for in-flight refreshes.
// Watcher channels are closed.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.inflight.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, v := range m.views {
		for id, ch := range v.watchers {
			close(ch)
			delete(v.watchers, id)
		}
		delete(m.views, userID)
	}
}

// Acquire returns the user's aggregator, creating and refreshing it on first
// use. Callers arriving while the first refresh runs wait for it.
func (m *Manager) Acquire(ctx context.Context, userID string) (*progress.Aggregator, error) {
	if userID == "" {
		return nil, progress.ErrIdentityUnavailable
	}

	m.mu.Lock()
	if v, ok := m.views[userID]; ok {
		v.lastUsed = m.now()
		m.mu.Unlock()

		select {
		case <-v.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if v.agg.RefreshedAt().IsZero() {
			// first fetch failed
			m.mount(ctx, v)
		}
		return v.agg, nil
	}

	v := &view{
		userID:   userID,
		lastUsed: m.now(),
		ready:    make(chan struct{}),
		watchers: make(map[uuid.UUID]chan models.CompletionSummary),
	}
	v.agg = progress.NewAggregator(m.catalog, m.store, auth.StaticIdentity(userID),
		progress.WithLogger(m.logger),
		progress.WithOnRefresh(func(s models.CompletionSummary) {
			m.fanout(userID, s)
		}),
	)
	m.views[userID] = v
	m.mu.Unlock()

	m.logger.Debug("session view created", "user_id", userID)
	m.mount(ctx, v)
	close(v.ready)
	return v.agg, nil
}

// mount refreshes a view detached from the caller's cancellation, bounded
// by the refresh timeout
func (m *Manager) mount(ctx context.Context, v *view) {
	ctx = context.WithoutCancel(ctx)
	if m.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.refreshTimeout)
		defer cancel()
	}
	v.agg.Refresh(ctx)
}

// Watch returns a channel receiving the user's summary now and after every
// refresh. Slow readers miss updates rather than block refreshes. The
// returned func stops the watch and closes the channel.
func (m *Manager) Watch(ctx context.Context, userID string) (<-chan models.CompletionSummary, func(), error) {
	agg, err := m.Acquire(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	id := uuid.New()
	ch := make(chan models.CompletionSummary, m.bufferSize)

	m.mu.Lock()
	v, ok := m.views[userID]
	if !ok {
		// evicted between Acquire and here
		m.mu.Unlock()
		return m.Watch(ctx, userID)
	}
	ch <- agg.Summary()
	v.watchers[id] = ch
	m.mu.Unlock()

	m.logger.Debug("watcher added", "user_id", userID, "watcher_id", id)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			v, ok := m.views[userID]
			if !ok {
				return
			}
			if c, ok := v.watchers[id]; ok {
				close(c)
				delete(v.watchers, id)
			}
			v.lastUsed = m.now()
			m.logger.Debug("watcher removed", "user_id", userID, "watcher_id", id)
		})
	}
	return ch, stop, nil
}

func (m *Manager) fanout(userID string, s models.CompletionSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.views[userID]
	if !ok {
		return
	}
	for id, ch := range v.watchers {
		select {
		case ch <- s.Clone():
		default:
			m.logger.Warn("dropping summary; watcher buffer full", "user_id", userID, "watcher_id", id)
		}
	}
}

func (m *Manager) handleEvent(e events.Event) {
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		m.refreshForEvent(e)
	}()
}

func (m *Manager) refreshForEvent(e events.Event) {
	ctx := context.Background()
	if m.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.refreshTimeout)
		defer cancel()
	}

	if e.UserID != "" {
		m.mu.Lock()
		v, ok := m.views[e.UserID]
		m.mu.Unlock()
		if !ok {
			return
		}
		v.agg.Refresh(ctx)
		return
	}

	m.mu.Lock()
	aggs := make([]*progress.Aggregator, 0, len(m.views))
	for _, v := range m.views {
		aggs = append(aggs, v.agg)
	}
	m.mu.Unlock()

	m.logger.Debug("refreshing all session views", "event_id", e.ID, "count", len(aggs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRefresh)
	for _, agg := range aggs {
		agg := agg
		g.Go(func() error {
			agg.Refresh(gctx)
			return nil
		})
	}
	_ = g.Wait()
}

// EvictIdle drops views unused for longer than maxIdle. Views with active
// watchers are kept.
func (m *Manager) EvictIdle(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxIdle)
	evicted := 0
	for userID, v := range m.views {
		if len(v.watchers) > 0 || v.lastUsed.After(cutoff) {
			continue
		}
		delete(m.views, userID)
		evicted++
		m.logger.Debug("session view evicted", "user_id", userID, "last_used", v.lastUsed)
	}
	return evicted
}

// Len returns the number of live views
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.views)
}
