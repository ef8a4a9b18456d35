package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/hireloop/internal/config"
	"github.com/hireloop/hireloop/internal/domain"
)

func newChecker(repo *memRepo) *DuplicateChecker {
	return NewDuplicateChecker(repo, config.DefaultRules(), testLogger())
}

func TestDuplicateChecker_EmailCaseInsensitive(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	repo.seed(domain.Candidate{Name: "Jane Doe", Email: "jane@example.com", Status: domain.StatusTestSent})

	res := newChecker(repo).Check(context.Background(), "Someone Else", "JANE@Example.COM", "")
	require.True(t, res.IsDuplicate)
	assert.Equal(t, domain.MatchEmailExact, res.MatchType)
	assert.Equal(t, "jane@example.com", res.Matched.Email)
}

func TestDuplicateChecker_PhoneLastTenDigits(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	repo.seed(domain.Candidate{Name: "Jane Doe", Email: "jane@example.com", Phone: "+91 98765-43210"})

	res := newChecker(repo).Check(context.Background(), "J. Doe", "other@example.com", "98765 43210")
	require.True(t, res.IsDuplicate)
	assert.Equal(t, domain.MatchPhoneExact, res.MatchType)
}

func TestDuplicateChecker_ShortPhoneNeverMatchesExact(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	repo.seed(domain.Candidate{Name: "Jane Doe", Email: "jane@example.com", Phone: "43210"})

	res := newChecker(repo).Check(context.Background(), "Completely Different", "other@example.com", "43210")
	assert.False(t, res.IsDuplicate)
}

func TestDuplicateChecker_FuzzyName(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	repo.seed(domain.Candidate{Name: "Priya Sharma", Email: "priya@example.com", Phone: "+919876543210"})

	tests := []struct {
		name      string
		inName    string
		inPhone   string
		wantDupe  bool
		wantMatch domain.MatchType
	}{
		// near-identical name stands on its own
		{"typo only", "Priya Sharmaa", "", true, domain.MatchNameFuzzy},
		// similar name plus matching phone tail corroborates
		{"similar with phone tail", "Priya Sharna", "0000543210", true, domain.MatchNameFuzzy},
		// similar name alone is not enough
		{"similar no phone", "Priya Sharna", "", false, ""},
		// different person entirely
		{"different", "Rahul Verma", "", false, ""},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res := newChecker(repo).Check(context.Background(), tc.inName, "new@example.com", tc.inPhone)
			assert.Equal(t, tc.wantDupe, res.IsDuplicate)
			if tc.wantDupe {
				assert.Equal(t, tc.wantMatch, res.MatchType)
				assert.Greater(t, res.Similarity, 0.85)
			}
		})
	}
}

func TestDuplicateChecker_FailsOpenOnDatastoreError(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	repo.seed(domain.Candidate{Name: "Jane Doe", Email: "jane@example.com"})
	repo.failAll = true

	res := newChecker(repo).Check(context.Background(), "Jane Doe", "jane@example.com", "")
	assert.False(t, res.IsDuplicate)
}

func TestDuplicateChecker_FirstMatchWins(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	// same person matches both email and phone; email strategy runs first
	repo.seed(domain.Candidate{Name: "Jane Doe", Email: "jane@example.com", Phone: "9876543210"})

	res := newChecker(repo).Check(context.Background(), "Jane Doe", "jane@example.com", "9876543210")
	require.True(t, res.IsDuplicate)
	assert.Equal(t, domain.MatchEmailExact, res.MatchType)
}

func TestDuplicateChecker_PhoneTailCorroboratesInsideStoredNumber(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	// the shared run of digits sits in the middle of the stored number's
	// last ten, not at its end
	repo.seed(domain.Candidate{Name: "Priya Sharma", Email: "priya@example.com", Phone: "+91 99123 45678"})

	res := newChecker(repo).Check(context.Background(), "Priya Sharna", "new@example.com", "123456")
	require.True(t, res.IsDuplicate)
	assert.Equal(t, domain.MatchNameFuzzy, res.MatchType)
}
