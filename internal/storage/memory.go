package storage

import (
	"context"
	"sync"
	"time"

	"github.com/terra-clan/progress-engine/internal/models"
)

// MemoryRepository keeps completion records in process memory.
// Used with STORAGE_DRIVER=memory and in tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]map[models.StepRef]models.CompletionRecord // userID -> ref -> record
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]map[models.StepRef]models.CompletionRecord),
	}
}

// ListCompleted returns the completed (tool, step) pairs of a user
func (r *MemoryRepository) ListCompleted(ctx context.Context, userID string) ([]models.StepRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var refs []models.StepRef
	for ref, rec := range r.records[userID] {
		if rec.Completed {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// SetCompletion marks or unmarks a step for a user
func (r *MemoryRepository) SetCompletion(ctx context.Context, rec models.CompletionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	userRecords, ok := r.records[rec.UserID]
	if !ok {
		userRecords = make(map[models.StepRef]models.CompletionRecord)
		r.records[rec.UserID] = userRecords
	}

	prev, existed := userRecords[rec.Ref()]
	switch {
	case !rec.Completed:
		rec.CompletedAt = nil
	case existed && prev.Completed && prev.CompletedAt != nil:
		rec.CompletedAt = prev.CompletedAt
	default:
		at := rec.UpdatedAt
		rec.CompletedAt = &at
	}

	userRecords[rec.Ref()] = rec
	return nil
}

// Get returns the stored record for a step
func (r *MemoryRepository) Get(userID string, ref models.StepRef) (models.CompletionRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[userID][ref]
	return rec, ok
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (r *MemoryRepository) Close() error {
	return nil
}
