package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Rules is the operator-tunable hiring policy, kept in a YAML file so
// thresholds can change without a redeploy.
type Rules struct {
	RejectionDelayHours int               `yaml:"rejection_delay_hours"`
	FollowupDays        []int             `yaml:"followup_days"`
	TestTimeLimits      map[string]int    `yaml:"test_time_limits_hours"`
	DefaultTimeLimit    int               `yaml:"default_time_limit_hours"`
	TestLinks           map[string]string `yaml:"test_links"`
	DefaultTestLink     string            `yaml:"default_test_link"`
	SpamThreshold       float64           `yaml:"spam_threshold"`
	FuzzyNameThreshold  float64           `yaml:"fuzzy_name_threshold"`
	FuzzyAutoThreshold  float64           `yaml:"fuzzy_auto_threshold"`
	InterviewSlot       SlotRules         `yaml:"interview_slots"`
}

// SlotRules bounds the bookable interview window.
type SlotRules struct {
	StartHour   int `yaml:"start_hour"`
	EndHour     int `yaml:"end_hour"`
	DurationMin int `yaml:"duration_minutes"`
	DaysAhead   int `yaml:"days_ahead"`
}

// DefaultRules mirrors the policy used in production.
func DefaultRules() Rules {
	return Rules{
		RejectionDelayHours: 24,
		FollowupDays:        []int{2, 4},
		TestTimeLimits: map[string]int{
			"intern": 3,
			"junior": 2,
			"senior": 4,
		},
		DefaultTimeLimit: 2,
		TestLinks: map[string]string{
			"intern": "https://forms.hireloop.dev/test-intern",
			"junior": "https://forms.hireloop.dev/test-junior",
			"senior": "https://forms.hireloop.dev/test-senior",
		},
		DefaultTestLink:    "https://forms.hireloop.dev/test-general",
		SpamThreshold:      0.8,
		FuzzyNameThreshold: 0.85,
		FuzzyAutoThreshold: 0.95,
		InterviewSlot: SlotRules{
			StartHour:   10,
			EndHour:     19,
			DurationMin: 45,
			DaysAhead:   7,
		},
	}
}

// LoadRules reads the rules file, falling back to defaults if the file does
// not exist. A malformed file is an error rather than a silent fallback.
func LoadRules(path string) (Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRules(), nil
		}
		return Rules{}, fmt.Errorf("rules read: %w", err)
	}
	r := DefaultRules()
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return Rules{}, fmt.Errorf("rules parse: %w", err)
	}
	return r, nil
}

// TimeLimit returns the test time limit for a role, matching on a contained
// seniority keyword and defaulting otherwise.
func (r Rules) TimeLimit(role string) time.Duration {
	lower := strings.ToLower(role)
	for key, hours := range r.TestTimeLimits {
		if strings.Contains(lower, key) {
			return time.Duration(hours) * time.Hour
		}
	}
	return time.Duration(r.DefaultTimeLimit) * time.Hour
}

// TestLink returns the assignment link for a role, matching the same
// seniority keyword as TimeLimit.
func (r Rules) TestLink(role string) string {
	lower := strings.ToLower(role)
	for key, link := range r.TestLinks {
		if strings.Contains(lower, key) {
			return link
		}
	}
	return r.DefaultTestLink
}

// RejectionDelay is how long a PENDING_REJECTION record waits before the
// sweep finalizes it.
func (r Rules) RejectionDelay() time.Duration {
	return time.Duration(r.RejectionDelayHours) * time.Hour
}
