package usecase

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hireloop/hireloop/internal/config"
	"github.com/hireloop/hireloop/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memRepo is an in-memory CandidateRepository.
type memRepo struct {
	mu      sync.Mutex
	byID    map[string]domain.Candidate
	failAll bool
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[string]domain.Candidate{}}
}

func (m *memRepo) Create(_ domain.Context, c domain.Candidate) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return "", errors.New("datastore down")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.PortalToken == "" {
		c.PortalToken = uuid.NewString()
	}
	c.Email = strings.ToLower(c.Email)
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.byID[c.ID] = c
	return c.ID, nil
}

func (m *memRepo) Get(_ domain.Context, id string) (domain.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return domain.Candidate{}, errors.New("datastore down")
	}
	c, ok := m.byID[id]
	if !ok {
		return domain.Candidate{}, domain.ErrNotFound
	}
	return c, nil
}

func (m *memRepo) FindByEmail(_ domain.Context, email string) (domain.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return domain.Candidate{}, errors.New("datastore down")
	}
	for _, c := range m.byID {
		if c.Email == strings.ToLower(email) {
			return c, nil
		}
	}
	return domain.Candidate{}, domain.ErrNotFound
}

func (m *memRepo) FindByToken(_ domain.Context, token string) (domain.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byID {
		if c.PortalToken == token {
			return c, nil
		}
	}
	return domain.Candidate{}, domain.ErrNotFound
}

func (m *memRepo) ListByStatus(_ domain.Context, s domain.Status) ([]domain.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return nil, errors.New("datastore down")
	}
	var out []domain.Candidate
	for _, c := range m.byID {
		if c.Status == s {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memRepo) ListAll(_ domain.Context) ([]domain.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return nil, errors.New("datastore down")
	}
	out := make([]domain.Candidate, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out, nil
}

func (m *memRepo) Update(_ domain.Context, c domain.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[c.ID]; !ok {
		return domain.ErrNotFound
	}
	c.Email = strings.ToLower(c.Email)
	c.UpdatedAt = time.Now()
	m.byID[c.ID] = c
	return nil
}

func (m *memRepo) SetStatus(_ domain.Context, id string, s domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Status = s
	c.UpdatedAt = time.Now()
	m.byID[id] = c
	return nil
}

func (m *memRepo) SetLog(_ domain.Context, id string, line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.LastLog = line
	m.byID[id] = c
	return nil
}

// seed inserts a candidate with a fixed id and returns it.
func (m *memRepo) seed(c domain.Candidate) domain.Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.PortalToken == "" {
		c.PortalToken = "token-" + c.ID
	}
	c.Email = strings.ToLower(c.Email)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	m.byID[c.ID] = c
	return c
}

// memTimeline is an in-memory TimelineRepository.
type memTimeline struct {
	mu     sync.Mutex
	events []domain.TimelineEvent
}

func (m *memTimeline) Add(_ domain.Context, email, event string, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, domain.TimelineEvent{
		ID:             fmt.Sprintf("%06d", len(m.events)),
		CandidateEmail: strings.ToLower(email),
		Event:          event,
		Payload:        payload,
		CreatedAt:      time.Now(),
	})
	return nil
}

func (m *memTimeline) List(_ domain.Context, email string) ([]domain.TimelineEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TimelineEvent
	for _, ev := range m.events {
		if ev.CandidateEmail == strings.ToLower(email) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memTimeline) names(email string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, ev := range m.events {
		if ev.CandidateEmail == strings.ToLower(email) {
			out = append(out, ev.Event)
		}
	}
	return out
}

// memRetry is an in-memory RetryQueue.
type memRetry struct {
	mu    sync.Mutex
	next  int64
	items []domain.RetryItem
}

func (m *memRetry) Enqueue(_ domain.Context, item domain.RetryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	item.ID = m.next
	item.CreatedAt = time.Now()
	m.items = append(m.items, item)
	return nil
}

func (m *memRetry) List(_ domain.Context) ([]domain.RetryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.RetryItem, len(m.items))
	copy(out, m.items)
	return out, nil
}

func (m *memRetry) Delete(_ domain.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, it := range m.items {
		if it.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memRetry) RecordFailure(_ domain.Context, id int64, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id {
			m.items[i].Attempts++
			m.items[i].LastError = lastErr
		}
	}
	return nil
}

// memProcessed is an in-memory ProcessedMessages set.
type memProcessed struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemProcessed() *memProcessed {
	return &memProcessed{seen: map[string]bool{}}
}

func (m *memProcessed) Seen(_ domain.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[id], nil
}

func (m *memProcessed) Mark(_ domain.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[id] = true
	return nil
}

// sentMail is one captured outbound email.
type sentMail struct {
	To      string
	Subject string
	Body    string
	Opts    domain.EmailOptions
}

// fakeMailer captures outbound email.
type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(_ domain.Context, to, subject, body string, opts domain.EmailOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body, Opts: opts})
	return nil
}

func (f *fakeMailer) to(addr string) []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMail
	for _, s := range f.sent {
		if s.To == addr {
			out = append(out, s)
		}
	}
	return out
}

// fakeWA captures WhatsApp sends.
type fakeWA struct {
	mu   sync.Mutex
	sent []string // "phone|body"
	err  error
}

func (f *fakeWA) SendText(_ domain.Context, phone, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, phone+"|"+body)
	return nil
}

// fakeCalendar is an in-memory CalendarProvider.
type fakeCalendar struct {
	mu      sync.Mutex
	events  []domain.CalendarEvent
	deleted []string
	next    int
}

func (f *fakeCalendar) CreateEvent(_ domain.Context, ev domain.CalendarEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	ev.ID = fmt.Sprintf("ev-%d", f.next)
	f.events = append(f.events, ev)
	return ev.ID, nil
}

func (f *fakeCalendar) ListEvents(_ domain.Context, day time.Time) ([]domain.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CalendarEvent
	for _, ev := range f.events {
		if ev.Start.Year() == day.Year() && ev.Start.YearDay() == day.YearDay() {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeCalendar) DeleteEvent(_ domain.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

// fakeInboxReader serves canned inbound messages.
type fakeInboxReader struct {
	mu      sync.Mutex
	msgs    []domain.InboundMessage
	replies []string
	marked  []string
}

func (f *fakeInboxReader) ListUnprocessed(_ domain.Context, _ int) ([]domain.InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgs, nil
}

func (f *fakeInboxReader) Reply(_ domain.Context, msg domain.InboundMessage, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, msg.ID+"|"+body)
	return nil
}

func (f *fakeInboxReader) MarkProcessed(_ domain.Context, msg domain.InboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, msg.ID)
	return nil
}

// fakeAssistant returns scripted results per task.
type fakeAssistant struct {
	intent    *domain.IntentResult
	info      *domain.CandidateInfo
	form      *domain.FormResponse
	rejection string
	rejectErr error
	reply     string
	score     domain.PortfolioScore
	spam      domain.SpamVerdict
	questions []string
}

func (f *fakeAssistant) AnalyzeIntent(domain.Context, string, string, bool) *domain.IntentResult {
	return f.intent
}

func (f *fakeAssistant) ExtractCandidateInfo(domain.Context, string, string) *domain.CandidateInfo {
	return f.info
}

func (f *fakeAssistant) ExtractFormResponse(domain.Context, string, string) *domain.FormResponse {
	return f.form
}

func (f *fakeAssistant) GenerateRejection(domain.Context, string, string, string) (string, error) {
	return f.rejection, f.rejectErr
}

func (f *fakeAssistant) SuggestReply(domain.Context, string, domain.ReplyContext) string {
	return f.reply
}

func (f *fakeAssistant) ScorePortfolio(domain.Context, string, string) domain.PortfolioScore {
	if f.score.Recommendation == "" {
		return domain.PortfolioScore{Score: 5, Recommendation: "REVIEW"}
	}
	return f.score
}

func (f *fakeAssistant) DetectSpam(domain.Context, string, string, string) domain.SpamVerdict {
	return f.spam
}

func (f *fakeAssistant) InterviewQuestions(domain.Context, domain.Candidate, *domain.PortfolioScore) []string {
	return f.questions
}

// harness bundles a fully wired workflow over fakes.
type harness struct {
	repo     *memRepo
	timeline *memTimeline
	retry    *memRetry
	mailer   *fakeMailer
	wa       *fakeWA
	cal      *fakeCalendar
	ai       *fakeAssistant
	notifier *Notifier
	workflow *Workflow
	cfg      configFixture
}

type configFixture struct {
	admin       string
	interviewer string
	baseURL     string
}

func newHarness() *harness {
	h := &harness{
		repo:     newMemRepo(),
		timeline: &memTimeline{},
		retry:    &memRetry{},
		mailer:   &fakeMailer{},
		wa:       &fakeWA{},
		cal:      &fakeCalendar{},
		ai:       &fakeAssistant{},
		cfg: configFixture{
			admin:       "admin@example.com",
			interviewer: "interviewer@example.com",
			baseURL:     "https://jobs.example.com",
		},
	}
	h.rebuild()
	return h
}

func (h *harness) rebuild() {
	log := testLogger()
	cfg := config.Config{
		AdminEmail:      h.cfg.admin,
		InterviewerMail: h.cfg.interviewer,
		PublicBaseURL:   h.cfg.baseURL,
	}
	h.notifier = NewNotifier(h.wa, h.retry, log, nil)
	h.workflow = NewWorkflow(h.repo, h.timeline, h.mailer, h.notifier, h.ai, h.cal,
		config.DefaultRules(), cfg, log, nil)
}
