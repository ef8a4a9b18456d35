package postgres

import (
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/hireloop/hireloop/internal/domain"
)

// RetryRepo stores failed outbound notifications until the background cycle
// replays them.
type RetryRepo struct {
	pool PgxPool
}

// NewRetryRepo builds the repo over a pool.
func NewRetryRepo(pool PgxPool) *RetryRepo {
	return &RetryRepo{pool: pool}
}

// Enqueue stores one failed send.
func (r *RetryRepo) Enqueue(ctx domain.Context, item domain.RetryItem) error {
	tracer := otel.Tracer("repo.retry")
	ctx, span := tracer.Start(ctx, "RetryRepo.Enqueue")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO retry_queue (channel, destination, template, params, last_error, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		item.Channel, item.Destination, item.Template, item.Params, item.LastError, item.Attempts)
	if err != nil {
		return fmt.Errorf("retry enqueue: %w", err)
	}
	return nil
}

// List returns every pending item, oldest first.
func (r *RetryRepo) List(ctx domain.Context) ([]domain.RetryItem, error) {
	tracer := otel.Tracer("repo.retry")
	ctx, span := tracer.Start(ctx, "RetryRepo.List")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
		SELECT id, channel, destination, template, params, last_error, attempts, created_at
		FROM retry_queue ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("retry list: %w", err)
	}
	defer rows.Close()

	var out []domain.RetryItem
	for rows.Next() {
		var it domain.RetryItem
		if err := rows.Scan(&it.ID, &it.Channel, &it.Destination, &it.Template,
			&it.Params, &it.LastError, &it.Attempts, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("retry scan: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("retry rows: %w", err)
	}
	return out, nil
}

// Delete removes a replayed item.
func (r *RetryRepo) Delete(ctx domain.Context, id int64) error {
	tracer := otel.Tracer("repo.retry")
	ctx, span := tracer.Start(ctx, "RetryRepo.Delete")
	defer span.End()

	_, err := r.pool.Exec(ctx, `DELETE FROM retry_queue WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("retry delete: %w", err)
	}
	return nil
}

// RecordFailure bumps the attempt counter after a failed replay.
func (r *RetryRepo) RecordFailure(ctx domain.Context, id int64, lastErr string) error {
	tracer := otel.Tracer("repo.retry")
	ctx, span := tracer.Start(ctx, "RetryRepo.RecordFailure")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`UPDATE retry_queue SET attempts = attempts + 1, last_error = $2 WHERE id = $1`,
		id, lastErr)
	if err != nil {
		return fmt.Errorf("retry record failure: %w", err)
	}
	return nil
}
