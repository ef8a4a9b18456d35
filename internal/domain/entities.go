// Package domain holds the core entities and ports of the hiring pipeline.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidToken      = errors.New("invalid portal token")
	ErrProviderExhausted = errors.New("all ai providers failed")
	ErrInternal          = errors.New("internal error")
)

// Status is a candidate's pipeline stage. Transitions are driven by external
// writes (sheet edits, form submissions, the background cycle); the engine
// dispatches on the value, it does not gate it.
type Status string

const (
	StatusNew              Status = "NEW"
	StatusInProcess        Status = "IN_PROCESS"
	StatusTestSent         Status = "TEST_SENT"
	StatusTestSubmitted    Status = "TEST_SUBMITTED"
	StatusUnderReview      Status = "UNDER_REVIEW"
	StatusInterviewPending Status = "INTERVIEW_PENDING"
	StatusInterviewDone    Status = "INTERVIEW_DONE"
	StatusPendingRejection Status = "PENDING_REJECTION"
	StatusRejected         Status = "REJECTED"
	StatusHired            Status = "HIRED"
)

// KnownStatuses lists every valid status value.
var KnownStatuses = []Status{
	StatusNew, StatusInProcess, StatusTestSent, StatusTestSubmitted,
	StatusUnderReview, StatusInterviewPending, StatusInterviewDone,
	StatusPendingRejection, StatusRejected, StatusHired,
}

// Valid reports whether s is one of the known status values.
func (s Status) Valid() bool {
	for _, k := range KnownStatuses {
		if s == k {
			return true
		}
	}
	return false
}

// Candidate is one logical record per applicant.
// Invariants: Status in KnownStatuses; TestSubmittedAt >= TestSentAt when both
// set. Email uniqueness is enforced by the duplicate check at intake, not by
// a database constraint. Records are never deleted; terminal states are kept
// as history.
//
// TestAvailability holds the candidate's preferred test slot from the
// application form; InterviewAt is the actual interview time. The two are
// deliberately separate fields.
type Candidate struct {
	ID                string
	Name              string
	Email             string
	Phone             string
	Role              string
	Department        string
	Status            Status
	PortfolioURL      string
	CVURL             string
	PortfolioScore    *float64
	PortfolioFeedback string
	TestSentAt        *time.Time
	TestSubmittedAt   *time.Time
	TestAvailability  string
	InterviewAt       *time.Time
	CalendarEventID   string
	PortalToken       string
	LastLog           string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TimelineEvent is one immutable audit record for a candidate.
type TimelineEvent struct {
	ID             string
	CandidateEmail string
	Event          string
	Payload        map[string]any
	CreatedAt      time.Time
}

// MatchType identifies which duplicate-detection strategy fired.
type MatchType string

const (
	MatchEmailExact MatchType = "EMAIL_EXACT"
	MatchPhoneExact MatchType = "PHONE_EXACT"
	MatchNameFuzzy  MatchType = "NAME_FUZZY"
)

// MatchResult is the transient outcome of one duplicate check.
type MatchResult struct {
	IsDuplicate bool
	MatchType   MatchType
	Similarity  float64
	Matched     *Candidate
}

// RetryItem is a failed outbound notification awaiting replay.
type RetryItem struct {
	ID          int64
	Channel     string // "whatsapp" or "email"
	Destination string
	Template    string
	Params      []string
	LastError   string
	Attempts    int
	CreatedAt   time.Time
}

// Repositories (ports)

// CandidateRepository is the row-oriented candidate datastore. The adapter
// owns the row<->struct mapping so column fragility stays at one boundary.
type CandidateRepository interface {
	Create(ctx Context, c Candidate) (string, error)
	Get(ctx Context, id string) (Candidate, error)
	FindByEmail(ctx Context, email string) (Candidate, error)
	FindByToken(ctx Context, token string) (Candidate, error)
	ListByStatus(ctx Context, s Status) ([]Candidate, error)
	ListAll(ctx Context) ([]Candidate, error)
	Update(ctx Context, c Candidate) error
	SetStatus(ctx Context, id string, s Status) error
	SetLog(ctx Context, id string, line string) error
}

// TimelineRepository is the append-only audit trail.
type TimelineRepository interface {
	Add(ctx Context, email, event string, payload map[string]any) error
	List(ctx Context, email string) ([]TimelineEvent, error)
}

// RetryQueue stores failed sends for replay on the background cycle.
type RetryQueue interface {
	Enqueue(ctx Context, item RetryItem) error
	List(ctx Context) ([]RetryItem, error)
	Delete(ctx Context, id int64) error
	RecordFailure(ctx Context, id int64, lastErr string) error
}

// ProcessedMessages is the inbound-mail idempotency set. A message id present
// here is never handled again, regardless of what happened to the mail label.
type ProcessedMessages interface {
	Seen(ctx Context, messageID string) (bool, error)
	Mark(ctx Context, messageID string) error
}

// Outbound channels (ports)

// EmailSender sends outbound mail.
type EmailSender interface {
	Send(ctx Context, to, subject, plainBody string, opts EmailOptions) error
}

// EmailOptions carries optional rich-mail fields.
type EmailOptions struct {
	HTMLBody    string
	Attachments []Attachment
}

// Attachment is a raw mail attachment.
type Attachment struct {
	Filename string
	MIME     string
	Data     []byte
}

// MessageSender sends a WhatsApp-style text to a destination phone. It must
// report, not panic on, missing recipient data.
type MessageSender interface {
	SendText(ctx Context, phone, body string) error
}

// Inbound mail (port)

// InboundMessage is one unprocessed email.
type InboundMessage struct {
	ID             string
	ThreadID       string
	From           string
	Subject        string
	PlainBody      string
	HasAttachments bool
	Attachments    []Attachment
}

// MailReader reads and annotates the shared inbox.
type MailReader interface {
	ListUnprocessed(ctx Context, max int) ([]InboundMessage, error)
	Reply(ctx Context, msg InboundMessage, body string) error
	MarkProcessed(ctx Context, msg InboundMessage) error
}

// Calendar (port)

// CalendarEvent is one scheduled interview on the shared calendar.
type CalendarEvent struct {
	ID        string
	Title     string
	Start     time.Time
	End       time.Time
	Attendees []string
}

// CalendarProvider creates and inspects interview events.
type CalendarProvider interface {
	CreateEvent(ctx Context, ev CalendarEvent) (string, error)
	ListEvents(ctx Context, day time.Time) ([]CalendarEvent, error)
	DeleteEvent(ctx Context, eventID string) error
}

// AI (ports)

// AIClient produces a completion for a prompt and system instruction. It
// fails only when every configured provider has failed; the returned error
// then wraps the last provider's failure.
type AIClient interface {
	Call(ctx Context, prompt, system string) (string, error)
}

// IntentResult is the parsed outcome of inbound-email classification.
type IntentResult struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Name       string  `json:"name"`
	Role       string  `json:"role"`
}

// Intent labels returned by the classifier.
const (
	IntentTestSubmission = "TEST_SUBMISSION"
	IntentNewApplication = "NEW_APPLICATION"
	IntentFormResponse   = "FORM_RESPONSE"
	IntentFollowup       = "FOLLOWUP"
	IntentQuestion       = "QUESTION"
	IntentEscalate       = "ESCALATE"
	IntentSpam           = "SPAM"
)

// CandidateInfo is the structured extraction from a free-form application.
type CandidateInfo struct {
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone"`
	Role           string   `json:"role"`
	PortfolioLinks []string `json:"portfolioLinks"`
}

// FormResponse is the full field set extracted from a structured reply.
// Fields the model could not find stay nil so callers only overwrite what
// was actually present.
type FormResponse struct {
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	Phone           *string `json:"phone"`
	City            *string `json:"city"`
	Role            *string `json:"role"`
	Degree          *string `json:"degree"`
	StartDate       *string `json:"startDate"`
	Tenure          *string `json:"tenure"`
	SalaryExpected  *string `json:"salaryExpected"`
	SalaryLast      *string `json:"salaryLast"`
	Experience      *string `json:"experience"`
	HindiProficient *string `json:"hindiProficient"`
	HealthNotes     *string `json:"healthNotes"`
	PreviousApply   *string `json:"previousApplication"`
	TestAvail       *string `json:"testAvailability"`
	Relocate        *string `json:"willingToRelocate"`
	PortfolioURL    *string `json:"portfolioUrl"`
	CVURL           *string `json:"cvUrl"`
}

// PortfolioScore is the AI evaluation of a candidate's portfolio.
type PortfolioScore struct {
	Score              float64  `json:"score"`
	Strengths          []string `json:"strengths"`
	Weaknesses         []string `json:"weaknesses"`
	Recommendation     string   `json:"recommendation"` // PROCEED, REVIEW or REJECT
	Summary            string   `json:"summary"`
	SuggestedQuestions []string `json:"suggestedQuestions"`
}

// SpamVerdict is the AI spam assessment of an inbound application.
type SpamVerdict struct {
	IsSpam     bool     `json:"isSpam"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// ReplyContext gives the reply generator the candidate's standing.
type ReplyContext struct {
	Name   string
	Role   string
	Status string
}

// Assistant exposes the task-specific AI helpers. Helpers that parse JSON
// return nil on any parse failure; callers must treat nil as "skip automated
// handling". Helpers with safe defaults never return an error.
type Assistant interface {
	AnalyzeIntent(ctx Context, body, subject string, hasAttachments bool) *IntentResult
	ExtractCandidateInfo(ctx Context, body, subject string) *CandidateInfo
	ExtractFormResponse(ctx Context, body, senderEmail string) *FormResponse
	GenerateRejection(ctx Context, name, role, reason string) (string, error)
	SuggestReply(ctx Context, question string, rc ReplyContext) string
	ScorePortfolio(ctx Context, portfolioURL, role string) PortfolioScore
	DetectSpam(ctx Context, email, name, body string) SpamVerdict
	InterviewQuestions(ctx Context, c Candidate, score *PortfolioScore) []string
}

// Context is an alias so adapters and usecases share the std context type.
type Context = context.Context
