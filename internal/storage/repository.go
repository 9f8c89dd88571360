package storage

import (
	"context"

	"github.com/terra-clan/progress-engine/internal/models"
)

// Repository defines the interface for step completion persistence
type Repository interface {
	// ListCompleted returns (tool, step) pairs the user has completed.
	// The result may contain duplicates.
	ListCompleted(ctx context.Context, userID string) ([]models.StepRef, error)

	// SetCompletion upserts a completion record. Unmarking keeps the row
	// with completed = false.
	SetCompletion(ctx context.Context, rec models.CompletionRecord) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}
