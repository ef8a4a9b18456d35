package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hireloop/hireloop/internal/config"
	"github.com/hireloop/hireloop/internal/domain"
)

// statusInfo is what the portal shows per stage. Internal stages map to a
// softer public wording.
var statusInfo = map[domain.Status]string{
	domain.StatusNew:              "Application received. We are reviewing it.",
	domain.StatusInProcess:        "We have sent you a few questions by email. Please reply when you can.",
	domain.StatusTestSent:         "Your skills assignment is in your inbox. Good luck!",
	domain.StatusTestSubmitted:    "Submission received. Our team is reviewing your work.",
	domain.StatusUnderReview:      "Submission received. Our team is reviewing your work.",
	domain.StatusInterviewPending: "You are invited to an interview. Pick a slot below.",
	domain.StatusInterviewDone:    "Thanks for interviewing with us. We will be in touch soon.",
	domain.StatusPendingRejection: "Your application is under final review.",
	domain.StatusRejected:         "Your application is closed. Thank you for your interest.",
	domain.StatusHired:            "Congratulations! Check your email for next steps.",
}

// PortalView is the candidate-facing snapshot.
type PortalView struct {
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Message     string     `json:"message"`
	CanBook     bool       `json:"canBook"`
	CanSubmit   bool       `json:"canSubmit"`
	InterviewAt *time.Time `json:"interviewAt,omitempty"`
}

// Slot is one bookable interview window.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Portal serves the candidate self-service surface: status, slot picking and
// test submission. All access is keyed by the per-candidate portal token.
type Portal struct {
	repo     domain.CandidateRepository
	calendar domain.CalendarProvider
	workflow *Workflow
	notifier *Notifier
	mail     domain.EmailSender
	rules    config.Rules
	log      *slog.Logger
	now      func() time.Time
}

// NewPortal wires the portal.
func NewPortal(
	repo domain.CandidateRepository,
	calendar domain.CalendarProvider,
	workflow *Workflow,
	notifier *Notifier,
	mail domain.EmailSender,
	rules config.Rules,
	log *slog.Logger,
) *Portal {
	return &Portal{
		repo: repo, calendar: calendar, workflow: workflow,
		notifier: notifier, mail: mail, rules: rules, log: log, now: time.Now,
	}
}

// View resolves a token to the candidate's public state.
func (p *Portal) View(ctx domain.Context, token string) (PortalView, error) {
	c, err := p.lookup(ctx, token)
	if err != nil {
		return PortalView{}, err
	}
	msg, ok := statusInfo[c.Status]
	if !ok {
		msg = "Your application is in progress."
	}
	return PortalView{
		Name:        c.Name,
		Role:        c.Role,
		Message:     msg,
		CanBook:     c.Status == domain.StatusInterviewPending && c.InterviewAt == nil,
		CanSubmit:   c.Status == domain.StatusTestSent,
		InterviewAt: c.InterviewAt,
	}, nil
}

// Slots lists open interview windows over the configured horizon: workday
// hours, fixed duration, minus anything already on the calendar. Weekends
// are skipped.
func (p *Portal) Slots(ctx domain.Context, token string) ([]Slot, error) {
	c, err := p.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.StatusInterviewPending {
		return nil, fmt.Errorf("not awaiting interview: %w", domain.ErrConflict)
	}

	var out []Slot
	sr := p.rules.InterviewSlot
	dur := time.Duration(sr.DurationMin) * time.Minute
	now := p.now()

	for d := 1; d <= sr.DaysAhead; d++ {
		day := now.AddDate(0, 0, d)
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		busy, err := p.calendar.ListEvents(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("portal slots: %w", err)
		}
		start := time.Date(day.Year(), day.Month(), day.Day(), sr.StartHour, 0, 0, 0, day.Location())
		end := time.Date(day.Year(), day.Month(), day.Day(), sr.EndHour, 0, 0, 0, day.Location())
		for s := start; !s.Add(dur).After(end); s = s.Add(dur) {
			if !overlapsAny(s, s.Add(dur), busy) {
				out = append(out, Slot{Start: s, End: s.Add(dur)})
			}
		}
	}
	return out, nil
}

// Book reserves a slot, creates the calendar event and confirms on both
// channels. Double booking is rejected with ErrConflict.
func (p *Portal) Book(ctx domain.Context, token string, start time.Time) error {
	c, err := p.lookup(ctx, token)
	if err != nil {
		return err
	}
	if c.Status != domain.StatusInterviewPending {
		return fmt.Errorf("not awaiting interview: %w", domain.ErrConflict)
	}
	if c.InterviewAt != nil {
		return fmt.Errorf("interview already booked: %w", domain.ErrConflict)
	}

	dur := time.Duration(p.rules.InterviewSlot.DurationMin) * time.Minute
	busy, err := p.calendar.ListEvents(ctx, start)
	if err != nil {
		return fmt.Errorf("portal book: %w", err)
	}
	if overlapsAny(start, start.Add(dur), busy) {
		return fmt.Errorf("slot already taken: %w", domain.ErrConflict)
	}

	eventID, err := p.calendar.CreateEvent(ctx, domain.CalendarEvent{
		Title:     fmt.Sprintf("Interview: %s (%s)", c.Name, c.Role),
		Start:     start,
		End:       start.Add(dur),
		Attendees: []string{c.Email},
	})
	if err != nil {
		return fmt.Errorf("portal book: %w", err)
	}

	c.InterviewAt = &start
	c.CalendarEventID = eventID
	if err := p.repo.Update(ctx, c); err != nil {
		return fmt.Errorf("record booking: %w", err)
	}

	when := start.Format("Mon, 2 Jan 2006 at 3:04 PM")
	body := fmt.Sprintf("Hi %s,\n\nYour interview for the %s role is confirmed for %s.\n\nSee you then!\nThe Hiring Team",
		c.Name, c.Role, when)
	if err := p.mail.Send(ctx, c.Email, "Interview confirmed", body, domain.EmailOptions{}); err != nil {
		p.log.Warn("booking confirmation mail failed", "candidate_id", c.ID, "error", err)
	}
	_ = p.notifier.SendWhatsApp(ctx, c.Phone, TplInterviewBooked, []string{c.Name, c.Role, when})
	return nil
}

// SubmitTest records a portal test submission and advances the workflow.
func (p *Portal) SubmitTest(ctx domain.Context, token, submissionURL string) error {
	c, err := p.lookup(ctx, token)
	if err != nil {
		return err
	}
	if c.Status != domain.StatusTestSent {
		return fmt.Errorf("no test awaiting submission: %w", domain.ErrConflict)
	}
	now := p.now()
	prev := c.Status
	c.TestSubmittedAt = &now
	c.Status = domain.StatusTestSubmitted
	if submissionURL != "" {
		c.LastLog = "portal submission: " + submissionURL
	}
	if err := p.repo.Update(ctx, c); err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	p.workflow.Process(ctx, c.ID, prev)
	return nil
}

func (p *Portal) lookup(ctx domain.Context, token string) (domain.Candidate, error) {
	if token == "" {
		return domain.Candidate{}, domain.ErrInvalidToken
	}
	c, err := p.repo.FindByToken(ctx, token)
	if err == domain.ErrNotFound {
		return domain.Candidate{}, domain.ErrInvalidToken
	}
	if err != nil {
		return domain.Candidate{}, fmt.Errorf("portal lookup: %w", err)
	}
	return c, nil
}

func overlapsAny(start, end time.Time, busy []domain.CalendarEvent) bool {
	for _, ev := range busy {
		if start.Before(ev.End) && ev.Start.Before(end) {
			return true
		}
	}
	return false
}
