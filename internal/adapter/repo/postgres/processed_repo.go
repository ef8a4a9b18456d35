package postgres

import (
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/hireloop/hireloop/internal/domain"
)

// ProcessedRepo is the inbound-mail idempotency set. Label state on the mail
// itself is cosmetic; this table is the source of truth.
type ProcessedRepo struct {
	pool PgxPool
}

// NewProcessedRepo builds the repo over a pool.
func NewProcessedRepo(pool PgxPool) *ProcessedRepo {
	return &ProcessedRepo{pool: pool}
}

// Seen reports whether messageID was already handled.
func (r *ProcessedRepo) Seen(ctx domain.Context, messageID string) (bool, error) {
	tracer := otel.Tracer("repo.processed")
	ctx, span := tracer.Start(ctx, "ProcessedRepo.Seen")
	defer span.End()

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_messages WHERE message_id = $1)`,
		messageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("processed seen: %w", err)
	}
	return exists, nil
}

// Mark records messageID as handled. Re-marking is a no-op.
func (r *ProcessedRepo) Mark(ctx domain.Context, messageID string) error {
	tracer := otel.Tracer("repo.processed")
	ctx, span := tracer.Start(ctx, "ProcessedRepo.Mark")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO processed_messages (message_id, processed_at)
		VALUES ($1, now()) ON CONFLICT (message_id) DO NOTHING`,
		messageID)
	if err != nil {
		return fmt.Errorf("processed mark: %w", err)
	}
	return nil
}
