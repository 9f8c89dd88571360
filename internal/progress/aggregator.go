package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/terra-clan/progress-engine/internal/auth"
	"github.com/terra-clan/progress-engine/internal/events"
	"github.com/terra-clan/progress-engine/internal/models"
)

const tracerName = "github.com/terra-clan/progress-engine/internal/progress"

// Aggregator computes per-tool completion counts for the signed-in user.
//
// The snapshot is replaced wholesale on every successful Refresh. Overlapping
// refreshes are not sequenced: whichever fetch completes last wins, so a
// refresh started before a mutation may overwrite the one started after it.
type Aggregator struct {
	catalog  Catalog
	store    Lister
	identity auth.Identity
	logger   *slog.Logger
	tracer   trace.Tracer

	refreshTimeout time.Duration
	onRefresh      func(models.CompletionSummary)

	mu       sync.RWMutex
	snapshot *snapshot
}

type snapshot struct {
	summary   models.CompletionSummary
	completed map[string]map[string]struct{}
	at        time.Time
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = l
	}
}

// WithOnRefresh registers a callback fired after each successful refresh
func WithOnRefresh(fn func(models.CompletionSummary)) Option {
	return func(a *Aggregator) {
		a.onRefresh = fn
	}
}

// WithRefreshTimeout bounds event-triggered refreshes. Zero means no timeout.
func WithRefreshTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		a.refreshTimeout = d
	}
}

// NewAggregator creates an aggregator whose summary starts all-zero
func NewAggregator(catalog Catalog, store Lister, identity auth.Identity, opts ...Option) *Aggregator {
	a := &Aggregator{
		catalog:  catalog,
		store:    store,
		identity: identity,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}

	summary, completed, _ := Compute(catalog.Tools(), nil)
	a.snapshot = &snapshot{summary: summary, completed: completed}
	return a
}

// Refresh recomputes the summary from a fresh store fetch and returns the
// current summary. It never fails: without a signed-in user it does nothing,
// and a store error is logged and leaves the previous summary in place.
func (a *Aggregator) Refresh(ctx context.Context) models.CompletionSummary {
	ctx, span := a.tracer.Start(ctx, "progress.Refresh")
	defer span.End()

	userID, ok := a.identity.CurrentUser(ctx)
	if !ok {
		span.SetAttributes(attribute.String("progress.outcome", "no_identity"))
		a.logger.Debug("progress refresh skipped, no signed-in user")
		return a.Summary()
	}
	span.SetAttributes(attribute.String("progress.user_id", userID))

	refs, err := a.store.ListCompleted(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store query failed")
		span.SetAttributes(attribute.String("progress.outcome", "store_error"))
		a.logger.Error("failed to fetch completed steps", "user_id", userID, "error", err)
		return a.Summary()
	}

	tools := a.catalog.Tools()
	summary, completed, unknown := Compute(tools, refs)
	if len(unknown) > 0 {
		a.logger.Debug("ignoring completions for unknown steps", "user_id", userID, "count", len(unknown), "refs", unknown)
	}

	next := &snapshot{
		summary:   summary,
		completed: completed,
		at:        time.Now(),
	}

	a.mu.Lock()
	a.snapshot = next
	a.mu.Unlock()

	span.SetAttributes(
		attribute.String("progress.outcome", "ok"),
		attribute.Int("progress.tools", len(tools)),
		attribute.Int("progress.records", len(refs)),
	)

	if a.onRefresh != nil {
		a.onRefresh(summary.Clone())
	}

	return summary.Clone()
}

// Summary returns a copy of the last published summary
func (a *Aggregator) Summary() models.CompletionSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot.summary.Clone()
}

// ToolView returns the single-tool readout from the same snapshot as Summary.
// ok is false when the tool is not in the catalog.
func (a *Aggregator) ToolView(toolID string) (models.ToolView, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	p, ok := a.snapshot.summary[toolID]
	if !ok {
		return models.ToolView{}, false
	}

	steps := make(map[string]struct{}, len(a.snapshot.completed[toolID]))
	for id := range a.snapshot.completed[toolID] {
		steps[id] = struct{}{}
	}

	return models.ToolView{
		ToolID:         toolID,
		CompletedSteps: steps,
		Total:          p.Total,
	}, true
}

// RefreshedAt returns when the summary was last replaced (zero if never)
func (a *Aggregator) RefreshedAt() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot.at
}

// Subscribe refreshes on every progress-updated event until the returned
// func is called
func (a *Aggregator) Subscribe(bus events.Subscriber) func() {
	return bus.Subscribe(events.ProgressUpdated, func(e events.Event) {
		a.logger.Debug("progress updated, refreshing", "event_id", e.ID, "user_id", e.UserID)
		a.refreshFromEvent()
	})
}

func (a *Aggregator) refreshFromEvent() {
	ctx := context.Background()
	if a.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.refreshTimeout)
		defer cancel()
	}
	a.Refresh(ctx)
}
