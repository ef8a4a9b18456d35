package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/hireloop/internal/domain"
)

// fakeRow drives scanCandidate without a database.
type fakeRow struct {
	err  error
	vals []any
}

func (f fakeRow) Scan(dest ...any) error {
	if f.err != nil {
		return f.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = f.vals[i].(string)
		case *domain.Status:
			*p = f.vals[i].(domain.Status)
		case **float64:
			if f.vals[i] != nil {
				v := f.vals[i].(float64)
				*p = &v
			}
		case **time.Time:
			if f.vals[i] != nil {
				v := f.vals[i].(time.Time)
				*p = &v
			}
		case *time.Time:
			*p = f.vals[i].(time.Time)
		}
	}
	return nil
}

func TestScanCandidate_NoRowsMapsToNotFound(t *testing.T) {
	t.Parallel()

	_, err := scanCandidate(fakeRow{err: pgx.ErrNoRows})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestScanCandidate_OtherErrorsWrapped(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	_, err := scanCandidate(fakeRow{err: boom})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestScanCandidate_PopulatesFields(t *testing.T) {
	t.Parallel()

	now := time.Now()
	score := 7.0
	row := fakeRow{vals: []any{
		"id-1", "Jane", "jane@example.com", "9876543210", "Designer", "Creative",
		"TEST_SENT", "https://p.example.com", "", score, "good work",
		now, nil, "Monday", nil, "", "tok-1", "", now, now,
	}}
	c, err := scanCandidate(row)
	require.NoError(t, err)
	assert.Equal(t, "id-1", c.ID)
	assert.Equal(t, domain.StatusTestSent, c.Status)
	require.NotNil(t, c.PortfolioScore)
	assert.InDelta(t, 7.0, *c.PortfolioScore, 1e-9)
	require.NotNil(t, c.TestSentAt)
	assert.Nil(t, c.TestSubmittedAt)
}
