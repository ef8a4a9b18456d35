package ai

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hireloop/hireloop/internal/domain"
)

// Tasks implements domain.Assistant on top of the router. Each helper owns
// its prompt, its parsing and its failure posture.
type Tasks struct {
	client  domain.AIClient
	fetcher *http.Client
	log     *slog.Logger
}

// NewTasks builds the task helpers over any AIClient. fetcher is used to pull
// portfolio pages for scoring; nil disables page fetching.
func NewTasks(client domain.AIClient, fetcher *http.Client, log *slog.Logger) *Tasks {
	return &Tasks{client: client, fetcher: fetcher, log: log}
}

const intentSystem = `You are an email triage assistant for a recruiting inbox.
Classify the email and respond with JSON only, no prose:
{"intent": "TEST_SUBMISSION|NEW_APPLICATION|FORM_RESPONSE|FOLLOWUP|QUESTION|ESCALATE|SPAM",
 "confidence": 0.0-1.0, "name": "sender name if evident", "role": "role applied for if evident"}`

// AnalyzeIntent classifies an inbound email. A nil result means the caller
// must fall back to manual handling.
func (t *Tasks) AnalyzeIntent(ctx domain.Context, body, subject string, hasAttachments bool) *domain.IntentResult {
	prompt := fmt.Sprintf("Subject: %s\nHas attachments: %v\n\nBody:\n%s", subject, hasAttachments, clip(body, 4000))
	raw, err := t.client.Call(ctx, prompt, intentSystem)
	if err != nil {
		t.log.Warn("intent analysis failed", "error", err)
		return nil
	}
	var res domain.IntentResult
	if err := ParseJSON(raw, &res); err != nil {
		t.log.Warn("intent response unparseable", "error", err)
		return nil
	}
	if res.Intent == "" {
		return nil
	}
	return &res
}

const extractSystem = `Extract applicant details from a job application email.
Respond with JSON only:
{"name": "", "email": "", "phone": "", "role": "", "portfolioLinks": []}
Use empty strings for fields you cannot find.`

// ExtractCandidateInfo pulls structured applicant fields from a free-form
// application email.
func (t *Tasks) ExtractCandidateInfo(ctx domain.Context, body, subject string) *domain.CandidateInfo {
	prompt := fmt.Sprintf("Subject: %s\n\nBody:\n%s", subject, clip(body, 6000))
	raw, err := t.client.Call(ctx, prompt, extractSystem)
	if err != nil {
		t.log.Warn("candidate extraction failed", "error", err)
		return nil
	}
	var info domain.CandidateInfo
	if err := ParseJSON(raw, &info); err != nil {
		t.log.Warn("candidate extraction unparseable", "error", err)
		return nil
	}
	return &info
}

const formSystem = `An applicant has replied to our screening questionnaire.
Extract every answered field. Respond with JSON only; omit keys that were not
answered (do not invent values):
{"name":"","email":"","phone":"","city":"","role":"","degree":"","startDate":"",
 "tenure":"","salaryExpected":"","salaryLast":"","experience":"",
 "hindiProficient":"","healthNotes":"","previousApplication":"",
 "testAvailability":"","willingToRelocate":"","portfolioUrl":"","cvUrl":""}`

// ExtractFormResponse parses a screening-questionnaire reply. Nil pointers in
// the result mean the field was not answered.
func (t *Tasks) ExtractFormResponse(ctx domain.Context, body, senderEmail string) *domain.FormResponse {
	prompt := fmt.Sprintf("Sender: %s\n\nReply:\n%s", senderEmail, clip(body, 6000))
	raw, err := t.client.Call(ctx, prompt, formSystem)
	if err != nil {
		t.log.Warn("form extraction failed", "error", err)
		return nil
	}
	var form domain.FormResponse
	if err := ParseJSON(raw, &form); err != nil {
		t.log.Warn("form extraction unparseable", "error", err)
		return nil
	}
	return &form
}

const rejectionSystem = `Write a brief, kind rejection email body for a job applicant.
Plain text only. No subject line, no placeholders, no square brackets.
Wish them well. At most 120 words.`

// GenerateRejection drafts a personalized rejection body. Errors propagate so
// the caller can fall back to the stock template.
func (t *Tasks) GenerateRejection(ctx domain.Context, name, role, reason string) (string, error) {
	prompt := fmt.Sprintf("Applicant: %s\nRole: %s\nInternal reason (never reveal verbatim): %s", name, role, reason)
	out, err := t.client.Call(ctx, prompt, rejectionSystem)
	if err != nil {
		return "", fmt.Errorf("generate rejection: %w", err)
	}
	return strings.TrimSpace(out), nil
}

const replySystem = `Answer a candidate's question about their application.
Plain text, friendly and short. Never invent dates, names or commitments.
Never use square-bracket placeholders. If you cannot answer from the context
given, say the team will follow up.`

// SuggestReply drafts an answer to a candidate question. Drafts that still
// contain template placeholders are discarded; sending "[Your Name]" to a
// candidate is worse than staying silent.
func (t *Tasks) SuggestReply(ctx domain.Context, question string, rc domain.ReplyContext) string {
	prompt := fmt.Sprintf("Candidate: %s\nRole: %s\nCurrent stage: %s\n\nQuestion:\n%s",
		rc.Name, rc.Role, rc.Status, clip(question, 2000))
	out, err := t.client.Call(ctx, prompt, replySystem)
	if err != nil {
		t.log.Warn("reply suggestion failed", "error", err)
		return ""
	}
	out = strings.TrimSpace(out)
	if strings.Contains(out, "[") || strings.Contains(strings.ToLower(out), "proposed date") {
		t.log.Warn("reply draft contained placeholders, discarding")
		return ""
	}
	return out
}

const portfolioSystem = `Evaluate a candidate portfolio for a role. Respond with JSON only:
{"score": 1-10, "strengths": [], "weaknesses": [],
 "recommendation": "PROCEED|REVIEW|REJECT", "summary": "",
 "suggestedQuestions": []}`

// ScorePortfolio evaluates a portfolio URL. On any failure it returns the
// neutral verdict so a flaky model never rejects anyone on its own.
func (t *Tasks) ScorePortfolio(ctx domain.Context, portfolioURL, role string) domain.PortfolioScore {
	fallback := domain.PortfolioScore{
		Score:          5,
		Recommendation: "REVIEW",
		Summary:        "Automatic evaluation unavailable; needs human review.",
	}
	prompt := fmt.Sprintf("Role: %s\nPortfolio: %s", role, portfolioURL)
	if content := t.fetchPortfolio(ctx, portfolioURL); content != "" {
		prompt += "\n\nPage content:\n" + content
	}
	raw, err := t.client.Call(ctx, prompt, portfolioSystem)
	if err != nil {
		t.log.Warn("portfolio scoring failed", "error", err)
		return fallback
	}
	var score domain.PortfolioScore
	if err := ParseJSON(raw, &score); err != nil {
		t.log.Warn("portfolio score unparseable", "error", err)
		return fallback
	}
	if score.Score < 1 || score.Score > 10 || score.Recommendation == "" {
		return fallback
	}
	return score
}

// fetchPortfolio pulls the portfolio page so the model evaluates its content,
// not just the URL string. Markup is stripped and the text truncated; any
// failure degrades to URL-only scoring.
func (t *Tasks) fetchPortfolio(ctx domain.Context, url string) string {
	if t.fetcher == nil || url == "" {
		return ""
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	resp, err := t.fetcher.Do(req)
	if err != nil {
		t.log.Warn("portfolio fetch failed", "url", url, "error", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.log.Warn("portfolio fetch non-200", "url", url, "status", resp.StatusCode)
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 256<<10))
	if err != nil {
		return ""
	}
	return clip(stripHTML(string(raw)), 3000)
}

// stripHTML drops script/style blocks and tags, collapsing whitespace.
func stripHTML(s string) string {
	for _, tag := range []string{"script", "style"} {
		for {
			lower := strings.ToLower(s)
			open := strings.Index(lower, "<"+tag)
			if open < 0 {
				break
			}
			end := strings.Index(lower[open:], "</"+tag+">")
			if end < 0 {
				s = s[:open]
				break
			}
			s = s[:open] + s[open+end+len(tag)+3:]
		}
	}
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

const spamSystem = `Decide whether a job application email is spam or a mass
template blast. Respond with JSON only:
{"isSpam": true|false, "confidence": 0.0-1.0, "reasons": []}`

// DetectSpam assesses an inbound application. Failures return a non-spam
// verdict with zero confidence so nothing real is dropped.
func (t *Tasks) DetectSpam(ctx domain.Context, email, name, body string) domain.SpamVerdict {
	prompt := fmt.Sprintf("From: %s (%s)\n\nBody:\n%s", name, email, clip(body, 4000))
	raw, err := t.client.Call(ctx, prompt, spamSystem)
	if err != nil {
		t.log.Warn("spam detection failed", "error", err)
		return domain.SpamVerdict{}
	}
	var v domain.SpamVerdict
	if err := ParseJSON(raw, &v); err != nil {
		t.log.Warn("spam verdict unparseable", "error", err)
		return domain.SpamVerdict{}
	}
	return v
}

const questionsSystem = `Propose interview questions for a candidate.
Respond with a JSON array of strings only, 5 to 8 questions.`

// defaultInterviewQuestions is the stock prep set an interviewer gets when
// the model cannot produce tailored ones.
var defaultInterviewQuestions = []string{
	"Walk us through the project you are most proud of and your role in it.",
	"How do you handle feedback and revision cycles on your work?",
	"Describe a time you missed a deadline. What happened and what changed afterwards?",
	"Which tools do you rely on daily, and which would you like to learn next?",
	"What would you want to achieve in your first three months here?",
}

// InterviewQuestions proposes tailored interview questions, falling back to
// the stock set on failure.
func (t *Tasks) InterviewQuestions(ctx domain.Context, c domain.Candidate, score *domain.PortfolioScore) []string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Candidate: %s\nRole: %s\n", c.Name, c.Role)
	if score != nil {
		fmt.Fprintf(&sb, "Portfolio summary: %s\nWeaknesses: %s\n",
			score.Summary, strings.Join(score.Weaknesses, "; "))
	}
	raw, err := t.client.Call(ctx, sb.String(), questionsSystem)
	if err != nil {
		t.log.Warn("question generation failed, using stock set", "error", err)
		return defaultInterviewQuestions
	}
	var qs []string
	if err := ParseJSON(raw, &qs); err != nil {
		t.log.Warn("questions unparseable, using stock set", "error", err)
		return defaultInterviewQuestions
	}
	if len(qs) == 0 {
		return defaultInterviewQuestions
	}
	return qs
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
