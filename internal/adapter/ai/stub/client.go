// Package stub provides a canned AI client for development and tests.
package stub

import (
	"strings"

	"github.com/hireloop/hireloop/internal/domain"
)

// Client returns deterministic canned responses keyed on the system prompt,
// so the whole pipeline runs offline.
type Client struct{}

// New builds the stub client.
func New() *Client { return &Client{} }

// Call inspects the system instruction and returns a plausible response for
// the matching task.
func (c *Client) Call(_ domain.Context, _, system string) (string, error) {
	switch {
	case strings.Contains(system, "triage"):
		return `{"intent":"QUESTION","confidence":0.9,"name":"","role":""}`, nil
	case strings.Contains(system, "Extract applicant"):
		return `{"name":"Stub Person","email":"stub@example.com","phone":"","role":"Intern","portfolioLinks":[]}`, nil
	case strings.Contains(system, "questionnaire"):
		return `{"name":"Stub Person"}`, nil
	case strings.Contains(system, "rejection"):
		return "Thank you for your interest. We have decided not to move forward this time. We wish you the best.", nil
	case strings.Contains(system, "portfolio"):
		return `{"score":6,"strengths":["clean work"],"weaknesses":[],"recommendation":"REVIEW","summary":"stub","suggestedQuestions":[]}`, nil
	case strings.Contains(system, "spam"):
		return `{"isSpam":false,"confidence":0.1,"reasons":[]}`, nil
	case strings.Contains(system, "interview questions"):
		return `["Tell us about your favorite project."]`, nil
	default:
		return "Thanks for reaching out. The team will follow up shortly.", nil
	}
}
