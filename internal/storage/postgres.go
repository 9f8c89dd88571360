package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/progress-engine/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 2
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// ListCompleted returns the completed (tool, step) pairs of a user
func (r *PostgresRepository) ListCompleted(ctx context.Context, userID string) ([]models.StepRef, error) {
	query := `
		SELECT tool_id, step_id
		FROM step_completions
		WHERE user_id = $1 AND completed = TRUE
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	defer rows.Close()

	var refs []models.StepRef
	for rows.Next() {
		var ref models.StepRef
		if err := rows.Scan(&ref.ToolID, &ref.StepID); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		refs = append(refs, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completions: %w", err)
	}

	return refs, nil
}

// SetCompletion marks or unmarks a step for a user
func (r *PostgresRepository) SetCompletion(ctx context.Context, rec models.CompletionRecord) error {
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	// completed_at keeps the first completion time while the step stays completed
	query := `
		INSERT INTO step_completions (user_id, tool_id, step_id, completed, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, CASE WHEN $4 THEN $5::timestamptz END, $5)
		ON CONFLICT (user_id, tool_id, step_id) DO UPDATE
		SET completed = EXCLUDED.completed,
		    completed_at = CASE
		        WHEN EXCLUDED.completed AND step_completions.completed THEN step_completions.completed_at
		        ELSE EXCLUDED.completed_at
		    END,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		rec.UserID,
		rec.ToolID,
		rec.StepID,
		rec.Completed,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to set completion: %w", err)
	}

	return nil
}
