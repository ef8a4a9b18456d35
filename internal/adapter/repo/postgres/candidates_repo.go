package postgres

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/hireloop/hireloop/internal/domain"
)

// CandidatesRepo stores candidate rows.
type CandidatesRepo struct {
	pool PgxPool
}

// NewCandidatesRepo builds the repo over a pool.
func NewCandidatesRepo(pool PgxPool) *CandidatesRepo {
	return &CandidatesRepo{pool: pool}
}

const candidateColumns = `id, name, email, phone, role, department, status,
	portfolio_url, cv_url, portfolio_score, portfolio_feedback,
	test_sent_at, test_submitted_at, test_availability, interview_at,
	calendar_event_id, portal_token, last_log, created_at, updated_at`

// Create inserts a new candidate and returns its id. Email is lowercased on
// the way in so the exact-match duplicate check stays case-insensitive.
func (r *CandidatesRepo) Create(ctx domain.Context, c domain.Candidate) (string, error) {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "CandidatesRepo.Create")
	defer span.End()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.PortalToken == "" {
		c.PortalToken = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO candidates (id, name, email, phone, role, department, status,
			portfolio_url, cv_url, portfolio_score, portfolio_feedback,
			test_sent_at, test_submitted_at, test_availability, interview_at,
			calendar_event_id, portal_token, last_log, created_at, updated_at)
		VALUES ($1, $2, lower($3), $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, now(), now())`,
		c.ID, c.Name, c.Email, c.Phone, c.Role, c.Department, string(c.Status),
		c.PortfolioURL, c.CVURL, c.PortfolioScore, c.PortfolioFeedback,
		c.TestSentAt, c.TestSubmittedAt, c.TestAvailability, c.InterviewAt,
		c.CalendarEventID, c.PortalToken, c.LastLog)
	if err != nil {
		return "", fmt.Errorf("candidates insert: %w", err)
	}
	return c.ID, nil
}

// Get fetches one candidate by id.
func (r *CandidatesRepo) Get(ctx domain.Context, id string) (domain.Candidate, error) {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "CandidatesRepo.Get")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id)
	return scanCandidate(row)
}

// FindByEmail fetches one candidate by (case-insensitive) email.
func (r *CandidatesRepo) FindByEmail(ctx domain.Context, email string) (domain.Candidate, error) {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "CandidatesRepo.FindByEmail")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE email = lower($1)`, email)
	return scanCandidate(row)
}

// FindByToken fetches one candidate by portal token.
func (r *CandidatesRepo) FindByToken(ctx domain.Context, token string) (domain.Candidate, error) {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "CandidatesRepo.FindByToken")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE portal_token = $1`, token)
	return scanCandidate(row)
}

// ListByStatus returns every candidate in status s, oldest first.
func (r *CandidatesRepo) ListByStatus(ctx domain.Context, s domain.Status) ([]domain.Candidate, error) {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "CandidatesRepo.ListByStatus")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE status = $1 ORDER BY created_at`, string(s))
	if err != nil {
		return nil, fmt.Errorf("candidates list by status: %w", err)
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// ListAll returns every candidate, oldest first.
func (r *CandidatesRepo) ListAll(ctx domain.Context) ([]domain.Candidate, error) {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "CandidatesRepo.ListAll")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT `+candidateColumns+` FROM candidates ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("candidates list: %w", err)
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// Update writes every mutable field of c.
func (r *CandidatesRepo) Update(ctx domain.Context, c domain.Candidate) error {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "CandidatesRepo.Update")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `
		UPDATE candidates SET name = $2, email = lower($3), phone = $4, role = $5,
			department = $6, status = $7, portfolio_url = $8, cv_url = $9,
			portfolio_score = $10, portfolio_feedback = $11, test_sent_at = $12,
			test_submitted_at = $13, test_availability = $14, interview_at = $15,
			calendar_event_id = $16, last_log = $17, updated_at = now()
		WHERE id = $1`,
		c.ID, c.Name, c.Email, c.Phone, c.Role, c.Department, string(c.Status),
		c.PortfolioURL, c.CVURL, c.PortfolioScore, c.PortfolioFeedback,
		c.TestSentAt, c.TestSubmittedAt, c.TestAvailability, c.InterviewAt,
		c.CalendarEventID, c.LastLog)
	if err != nil {
		return fmt.Errorf("candidates update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetStatus updates just the status column.
func (r *CandidatesRepo) SetStatus(ctx domain.Context, id string, s domain.Status) error {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "CandidatesRepo.SetStatus")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`UPDATE candidates SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(s))
	if err != nil {
		return fmt.Errorf("candidates set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetLog updates just the last_log column.
func (r *CandidatesRepo) SetLog(ctx domain.Context, id string, line string) error {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "CandidatesRepo.SetLog")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`UPDATE candidates SET last_log = $2, updated_at = now() WHERE id = $1`,
		id, line)
	if err != nil {
		return fmt.Errorf("candidates set log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanCandidate(row pgx.Row) (domain.Candidate, error) {
	var c domain.Candidate
	var status string
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Role, &c.Department,
		&status, &c.PortfolioURL, &c.CVURL, &c.PortfolioScore, &c.PortfolioFeedback,
		&c.TestSentAt, &c.TestSubmittedAt, &c.TestAvailability, &c.InterviewAt,
		&c.CalendarEventID, &c.PortalToken, &c.LastLog, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Candidate{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Candidate{}, fmt.Errorf("candidates scan: %w", err)
	}
	c.Status = domain.Status(status)
	return c, nil
}

func scanCandidates(rows pgx.Rows) ([]domain.Candidate, error) {
	var out []domain.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("candidates rows: %w", err)
	}
	return out, nil
}
