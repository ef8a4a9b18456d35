package postgres

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"

	"github.com/hireloop/hireloop/internal/domain"
)

// TimelineRepo is the append-only audit trail. Event ids are ULIDs so the
// trail sorts chronologically by id alone.
type TimelineRepo struct {
	pool PgxPool
}

// NewTimelineRepo builds the repo over a pool.
func NewTimelineRepo(pool PgxPool) *TimelineRepo {
	return &TimelineRepo{pool: pool}
}

// Add appends one event for a candidate email.
func (r *TimelineRepo) Add(ctx domain.Context, email, event string, payload map[string]any) error {
	tracer := otel.Tracer("repo.timeline")
	ctx, span := tracer.Start(ctx, "TimelineRepo.Add")
	defer span.End()

	var raw []byte
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("timeline payload marshal: %w", err)
		}
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.New(rand.NewSource(time.Now().UnixNano()))).String()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO timeline_events (id, candidate_email, event, payload, created_at)
		VALUES ($1, lower($2), $3, $4, now())`,
		id, email, event, raw)
	if err != nil {
		return fmt.Errorf("timeline insert: %w", err)
	}
	return nil
}

// List returns a candidate's full trail, oldest first.
func (r *TimelineRepo) List(ctx domain.Context, email string) ([]domain.TimelineEvent, error) {
	tracer := otel.Tracer("repo.timeline")
	ctx, span := tracer.Start(ctx, "TimelineRepo.List")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
		SELECT id, candidate_email, event, payload, created_at
		FROM timeline_events WHERE candidate_email = lower($1) ORDER BY id`,
		strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("timeline list: %w", err)
	}
	defer rows.Close()

	var out []domain.TimelineEvent
	for rows.Next() {
		var ev domain.TimelineEvent
		var raw []byte
		if err := rows.Scan(&ev.ID, &ev.CandidateEmail, &ev.Event, &raw, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("timeline scan: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &ev.Payload); err != nil {
				return nil, fmt.Errorf("timeline payload unmarshal: %w", err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("timeline rows: %w", err)
	}
	return out, nil
}
