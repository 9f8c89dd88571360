package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/terra-clan/progress-engine/internal/events"
	"github.com/terra-clan/progress-engine/internal/models"
)

// Common errors
var (
	ErrIdentityUnavailable = errors.New("no signed-in user")
	ErrUnknownTool         = errors.New("unknown tool")
	ErrUnknownStep         = errors.New("unknown step")
)

// StepCatalog answers catalog membership questions
type StepCatalog interface {
	Get(toolID string) *models.OptimizationPath
	Has(toolID, stepID string) bool
}

// Writer persists completion flags
type Writer interface {
	SetCompletion(ctx context.Context, rec models.CompletionRecord) error
}

// Tracker marks steps complete or incomplete. Every successful write is
// followed by a progress-updated event so aggregators can refresh.
type Tracker struct {
	catalog StepCatalog
	store   Writer
	bus     events.Publisher
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewTracker creates a completion tracker
func NewTracker(catalog StepCatalog, store Writer, bus events.Publisher) *Tracker {
	return &Tracker{
		catalog: catalog,
		store:   store,
		bus:     bus,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
}

// MarkComplete marks a step complete for userID
func (t *Tracker) MarkComplete(ctx context.Context, userID, toolID, stepID string) error {
	return t.SetCompletion(ctx, userID, toolID, stepID, true)
}

// MarkIncomplete clears a step's completion for userID
func (t *Tracker) MarkIncomplete(ctx context.Context, userID, toolID, stepID string) error {
	return t.SetCompletion(ctx, userID, toolID, stepID, false)
}

// SetCompletion validates the step against the catalog, persists the flag and
// publishes progress-updated. A publish failure is logged; the write stands.
func (t *Tracker) SetCompletion(ctx context.Context, userID, toolID, stepID string, completed bool) error {
	ctx, span := t.tracer.Start(ctx, "progress.SetCompletion", trace.WithAttributes(
		attribute.String("progress.user_id", userID),
		attribute.String("progress.tool_id", toolID),
		attribute.String("progress.step_id", stepID),
		attribute.Bool("progress.completed", completed),
	))
	defer span.End()

	if userID == "" {
		return ErrIdentityUnavailable
	}
	if t.catalog.Get(toolID) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTool, toolID)
	}
	if !t.catalog.Has(toolID, stepID) {
		return fmt.Errorf("%w: %s/%s", ErrUnknownStep, toolID, stepID)
	}

	rec := models.CompletionRecord{
		UserID:    userID,
		ToolID:    toolID,
		StepID:    stepID,
		Completed: completed,
		UpdatedAt: t.now().UTC(),
	}
	if err := t.store.SetCompletion(ctx, rec); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save completion: %w", err)
	}

	e := events.NewEvent(events.ProgressUpdated)
	e.UserID = userID
	e.ToolID = toolID
	e.StepID = stepID
	e.Completed = completed

	if err := t.bus.Publish(ctx, e); err != nil {
		span.RecordError(err)
		t.logger.Error("failed to publish progress event",
			"error", err,
			"user_id", userID,
			"tool_id", toolID,
			"step_id", stepID,
		)
	}

	t.logger.Info("step completion changed",
		"user_id", userID,
		"tool_id", toolID,
		"step_id", stepID,
		"completed", completed,
	)
	return nil
}
