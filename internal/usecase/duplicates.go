// Package usecase holds the pipeline's application logic.
package usecase

import (
	"log/slog"
	"strings"

	"github.com/hireloop/hireloop/internal/config"
	"github.com/hireloop/hireloop/internal/domain"
	"github.com/hireloop/hireloop/pkg/fuzzy"
)

// DuplicateChecker decides whether a new applicant already exists. Strategies
// run in order of confidence and the first hit wins: exact email, exact phone
// (last ten digits), then fuzzy name.
type DuplicateChecker struct {
	repo  domain.CandidateRepository
	rules config.Rules
	log   *slog.Logger
}

// NewDuplicateChecker builds the checker.
func NewDuplicateChecker(repo domain.CandidateRepository, rules config.Rules, log *slog.Logger) *DuplicateChecker {
	return &DuplicateChecker{repo: repo, rules: rules, log: log}
}

// Check looks for an existing candidate matching the given identity. A
// datastore failure fails open: a duplicate slipping through costs a human a
// minute, a real applicant dropped costs a candidate.
func (d *DuplicateChecker) Check(ctx domain.Context, name, email, phone string) domain.MatchResult {
	email = strings.ToLower(strings.TrimSpace(email))
	if email != "" {
		existing, err := d.repo.FindByEmail(ctx, email)
		if err == nil {
			return domain.MatchResult{
				IsDuplicate: true,
				MatchType:   domain.MatchEmailExact,
				Similarity:  1,
				Matched:     &existing,
			}
		}
		if err != domain.ErrNotFound {
			d.log.Error("duplicate check: email lookup failed, treating as new", "error", err)
			return domain.MatchResult{}
		}
	}

	all, err := d.repo.ListAll(ctx)
	if err != nil {
		d.log.Error("duplicate check: list failed, treating as new", "error", err)
		return domain.MatchResult{}
	}

	phoneKey := fuzzy.LastDigits(phone, 10)
	if len(phoneKey) >= 10 {
		for i := range all {
			if fuzzy.LastDigits(all[i].Phone, 10) == phoneKey {
				return domain.MatchResult{
					IsDuplicate: true,
					MatchType:   domain.MatchPhoneExact,
					Similarity:  1,
					Matched:     &all[i],
				}
			}
		}
	}

	shortPhone := fuzzy.LastDigits(phone, 6)
	for i := range all {
		sim := fuzzy.Similarity(name, all[i].Name)
		if sim <= d.rules.FuzzyNameThreshold {
			continue
		}
		// A near-identical name stands on its own; a merely similar one
		// needs the phone tail to corroborate. The tail matches anywhere
		// inside the stored number's last ten digits, so differing country
		// codes or trailing extensions still corroborate.
		if sim > d.rules.FuzzyAutoThreshold ||
			(len(shortPhone) == 6 && strings.Contains(fuzzy.LastDigits(all[i].Phone, 10), shortPhone)) {
			return domain.MatchResult{
				IsDuplicate: true,
				MatchType:   domain.MatchNameFuzzy,
				Similarity:  sim,
				Matched:     &all[i],
			}
		}
	}
	return domain.MatchResult{}
}
