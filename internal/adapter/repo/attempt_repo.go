package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tryon/internal/domain"
	"tryon/internal/infra"
	"tryon/internal/sqlinline"
)

const defaultAttemptLimit = 20

// AttemptRepositoryPG persists try-on attempts in PostgreSQL.
type AttemptRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewAttemptRepository creates a repository on top of a marker-aware executor.
func NewAttemptRepository(sql infra.SQLExecutor) *AttemptRepositoryPG {
	return &AttemptRepositoryPG{sql: sql}
}

// EnsureSchema creates the history and credential tables when missing.
func (r *AttemptRepositoryPG) EnsureSchema(ctx context.Context) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QEnsureTryOnSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Record inserts the attempt or updates its outcome. Inline images are
// stored as a short description rather than their payload.
func (r *AttemptRepositoryPG) Record(ctx context.Context, attempt domain.Attempt) error {
	if attempt.ID == "" {
		return errors.New("attempt id is required")
	}
	_, err := r.sql.Exec(ctx, sqlinline.QUpsertTryOnAttempt,
		attempt.ID,
		attempt.PanelID,
		attempt.JobID,
		domain.DescribeImageRef(attempt.Request.ModelImage),
		domain.DescribeImageRef(attempt.Request.GarmentImage),
		attempt.Request.Category,
		attempt.Phase,
		attempt.Result,
		attempt.Error,
		attempt.StartedAt,
		attempt.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record attempt %s: %w", attempt.ID, err)
	}
	return nil
}

// ListByPanel returns the most recent attempts of a panel, newest first.
func (r *AttemptRepositoryPG) ListByPanel(ctx context.Context, panelID string, limit int) ([]domain.Attempt, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultAttemptLimit
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListTryOnAttempts, panelID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.Attempt
	for rows.Next() {
		var (
			a        domain.Attempt
			finished *time.Time
		)
		if err := rows.Scan(
			&a.ID,
			&a.PanelID,
			&a.JobID,
			&a.Request.ModelImage,
			&a.Request.GarmentImage,
			&a.Request.Category,
			&a.Phase,
			&a.Result,
			&a.Error,
			&a.StartedAt,
			&finished,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.FinishedAt = finished
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}
