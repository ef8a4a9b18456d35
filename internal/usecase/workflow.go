package usecase

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hireloop/hireloop/internal/adapter/observability"
	"github.com/hireloop/hireloop/internal/config"
	"github.com/hireloop/hireloop/internal/domain"
)

// Timeline event names.
const (
	EvApplied         = "APPLIED"
	EvSpamRejected    = "SPAM_REJECTED"
	EvDuplicateReply  = "DUPLICATE_REPLY"
	EvScreeningSent   = "SCREENING_SENT"
	EvFormReceived    = "FORM_RECEIVED"
	EvTestSent        = "TEST_SENT"
	EvTestSubmitted   = "TEST_SUBMITTED"
	EvInterviewInvite = "INTERVIEW_INVITE"
	EvInterviewBooked = "INTERVIEW_BOOKED"
	EvPendingReject   = "PENDING_REJECTION"
	EvRejected        = "REJECTED"
	EvHired           = "HIRED"
	EvFollowup        = "FOLLOWUP_SENT"
	EvHandlerError    = "HANDLER_ERROR"
)

// expectedFrom lists the usual predecessors of each status. An arrival from
// elsewhere is logged and still processed: the sheet of record is edited by
// humans and the engine must follow them, not fight them.
var expectedFrom = map[domain.Status][]domain.Status{
	domain.StatusInProcess:        {domain.StatusNew},
	domain.StatusTestSent:         {domain.StatusInProcess},
	domain.StatusTestSubmitted:    {domain.StatusTestSent},
	domain.StatusUnderReview:      {domain.StatusTestSubmitted},
	domain.StatusInterviewPending: {domain.StatusUnderReview},
	domain.StatusInterviewDone:    {domain.StatusInterviewPending},
	domain.StatusPendingRejection: {domain.StatusNew, domain.StatusInProcess, domain.StatusTestSent, domain.StatusUnderReview, domain.StatusInterviewDone},
	domain.StatusRejected:         {domain.StatusPendingRejection},
	domain.StatusHired:            {domain.StatusInterviewDone},
}

// ExpectedTransition reports whether moving from prev to next follows the
// normal path.
func ExpectedTransition(prev, next domain.Status) bool {
	for _, s := range expectedFrom[next] {
		if s == prev {
			return true
		}
	}
	return false
}

// Workflow dispatches status handlers. Handler failures never propagate: they
// are logged, reported to the admin, and swallowed so one bad record cannot
// stall the pipeline.
type Workflow struct {
	repo     domain.CandidateRepository
	timeline domain.TimelineRepository
	mail     domain.EmailSender
	notifier *Notifier
	ai       domain.Assistant
	calendar domain.CalendarProvider
	rules    config.Rules
	cfg      config.Config
	log      *slog.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewWorkflow wires the engine.
func NewWorkflow(
	repo domain.CandidateRepository,
	timeline domain.TimelineRepository,
	mail domain.EmailSender,
	notifier *Notifier,
	ai domain.Assistant,
	calendar domain.CalendarProvider,
	rules config.Rules,
	cfg config.Config,
	log *slog.Logger,
	m *observability.Metrics,
) *Workflow {
	return &Workflow{
		repo: repo, timeline: timeline, mail: mail, notifier: notifier,
		ai: ai, calendar: calendar, rules: rules, cfg: cfg,
		log: log, metrics: m, now: time.Now,
	}
}

// Process loads a candidate and runs the handler for its current status.
// prev is the status before the triggering write; pass the current status
// when unknown.
func (w *Workflow) Process(ctx domain.Context, id string, prev domain.Status) {
	c, err := w.repo.Get(ctx, id)
	if err != nil {
		w.log.Error("workflow load failed", "candidate_id", id, "error", err)
		return
	}

	if prev != c.Status && !ExpectedTransition(prev, c.Status) {
		w.log.Warn("unexpected status transition, processing anyway",
			"candidate_id", id, "from", prev, "to", c.Status)
	}

	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			w.reportFailure(ctx, c, fmt.Errorf("handler panic: %v", r))
		}
		w.observe(c.Status, outcome)
	}()

	var herr error
	switch c.Status {
	case domain.StatusNew:
		herr = w.handleNew(ctx, c)
	case domain.StatusInProcess:
		herr = w.handleInProcess(ctx, c)
	case domain.StatusTestSent:
		herr = w.handleTestSent(ctx, c)
	case domain.StatusTestSubmitted:
		herr = w.handleTestSubmitted(ctx, c)
	case domain.StatusInterviewPending:
		herr = w.handleInterviewPending(ctx, c)
	case domain.StatusPendingRejection:
		herr = w.handlePendingRejection(ctx, c)
	case domain.StatusRejected:
		herr = w.handleRejected(ctx, c)
	case domain.StatusHired:
		herr = w.handleHired(ctx, c)
	case domain.StatusUnderReview, domain.StatusInterviewDone:
		// human-owned stages, nothing automated here
	default:
		w.log.Warn("no handler for status", "candidate_id", id, "status", c.Status)
	}
	if herr != nil {
		outcome = "error"
		w.reportFailure(ctx, c, herr)
	}
}

// handleNew records the application on the timeline and tells the admin. The
// record stays NEW until a human moves it on.
func (w *Workflow) handleNew(ctx domain.Context, c domain.Candidate) error {
	w.addTimeline(ctx, c.Email, EvApplied, map[string]any{"role": c.Role})
	if w.cfg.AdminEmail == "" {
		return nil
	}
	subject := fmt.Sprintf("New application: %s (%s)", c.Name, c.Role)
	body := fmt.Sprintf("%s <%s> has applied for the %s role.\nPhone: %s\nPortfolio: %s",
		c.Name, c.Email, c.Role, c.Phone, c.PortfolioURL)
	if err := w.mail.Send(ctx, w.cfg.AdminEmail, subject, body, domain.EmailOptions{}); err != nil {
		return fmt.Errorf("admin notify: %w", err)
	}
	return nil
}

// handleInProcess greets the candidate on WhatsApp once screening starts.
func (w *Workflow) handleInProcess(ctx domain.Context, c domain.Candidate) error {
	if strings.TrimSpace(c.Phone) == "" {
		w.log.Warn("welcome message skipped, no phone on record", "candidate_id", c.ID)
		return nil
	}
	_ = w.notifier.SendWhatsApp(ctx, c.Phone, TplWelcome, []string{c.Name, c.Role})
	return nil
}

// handleTestSent re-sends the assignment if the record was moved here by hand
// before a test ever went out. A record with TestSentAt set is just waiting.
func (w *Workflow) handleTestSent(ctx domain.Context, c domain.Candidate) error {
	if c.TestSentAt != nil {
		return nil
	}
	return w.sendTest(ctx, c)
}

// handleTestSubmitted measures how long the candidate took against the role's
// limit, scores the portfolio if that has not happened yet, and auto-advances
// to UNDER_REVIEW, putting the record in the reviewers' queue.
func (w *Workflow) handleTestSubmitted(ctx domain.Context, c domain.Candidate) error {
	if c.TestSubmittedAt == nil {
		now := w.now()
		c.TestSubmittedAt = &now
	}

	limit := w.rules.TimeLimit(c.Role)
	var hours float64
	verdict := "timing unknown"
	if c.TestSentAt != nil {
		hours = c.TestSubmittedAt.Sub(*c.TestSentAt).Hours()
		verdict = "on time"
		if hours > limit.Hours() {
			verdict = "late"
		}
	}
	submission := c.LastLog
	c.LastLog = fmt.Sprintf("Test submitted after %.1f hours (limit %s): %s",
		hours, formatDuration(limit), verdict)
	w.log.Info("test submitted",
		"candidate_id", c.ID, "hours_taken", hours, "limit_hours", limit.Hours(), "verdict", verdict)

	if c.PortfolioURL != "" && c.PortfolioScore == nil {
		score := w.ai.ScorePortfolio(ctx, c.PortfolioURL, c.Role)
		c.PortfolioScore = &score.Score
		c.PortfolioFeedback = score.Summary
	}

	c.Status = domain.StatusUnderReview
	if err := w.repo.Update(ctx, c); err != nil {
		return fmt.Errorf("advance to under_review: %w", err)
	}
	w.addTimeline(ctx, c.Email, EvTestSubmitted, map[string]any{
		"hours_taken": hours,
		"limit_hours": limit.Hours(),
		"verdict":     verdict,
	})

	if w.cfg.AdminEmail != "" {
		subject := fmt.Sprintf("Test submitted: %s (%s)", c.Name, c.Role)
		body := fmt.Sprintf("%s has submitted the assignment for %s.\n%s.\nReview and set the next status.",
			c.Name, c.Role, c.LastLog)
		if submission != "" {
			body += "\n\n" + submission
		}
		if err := w.mail.Send(ctx, w.cfg.AdminEmail, subject, body, domain.EmailOptions{}); err != nil {
			w.log.Warn("reviewer notification failed", "candidate_id", c.ID, "error", err)
		}
	}
	return nil
}

// handleInterviewPending schedules the interview when a date is already on the
// record, otherwise invites the candidate to pick a slot on the portal. Either
// way the interviewer gets primed with suggested questions.
func (w *Workflow) handleInterviewPending(ctx domain.Context, c domain.Candidate) error {
	if c.InterviewAt != nil {
		if err := w.scheduleInterview(ctx, c); err != nil {
			return err
		}
	} else if err := w.sendBookingInvite(ctx, c); err != nil {
		return err
	}

	if w.cfg.InterviewerMail != "" {
		var score *domain.PortfolioScore
		if c.PortfolioScore != nil {
			score = &domain.PortfolioScore{Score: *c.PortfolioScore, Summary: c.PortfolioFeedback}
		}
		if qs := w.ai.InterviewQuestions(ctx, c, score); len(qs) > 0 {
			qbody := fmt.Sprintf("Suggested questions for %s (%s):\n\n- %s",
				c.Name, c.Role, strings.Join(qs, "\n- "))
			if err := w.mail.Send(ctx, w.cfg.InterviewerMail, "Interview prep: "+c.Name, qbody, domain.EmailOptions{}); err != nil {
				w.log.Warn("interviewer prep mail failed", "candidate_id", c.ID, "error", err)
			}
		}
	}
	return nil
}

// scheduleInterview books the calendar event for a record whose interview
// date was set by hand, then confirms on both channels. Re-entry with an
// event already booked only re-confirms.
func (w *Workflow) scheduleInterview(ctx domain.Context, c domain.Candidate) error {
	start := *c.InterviewAt
	if c.CalendarEventID == "" {
		dur := time.Duration(w.rules.InterviewSlot.DurationMin) * time.Minute
		eventID, err := w.calendar.CreateEvent(ctx, domain.CalendarEvent{
			Title:     fmt.Sprintf("Interview: %s (%s)", c.Name, c.Role),
			Start:     start,
			End:       start.Add(dur),
			Attendees: []string{c.Email},
		})
		if err != nil {
			return fmt.Errorf("interview event: %w", err)
		}
		c.CalendarEventID = eventID
		if err := w.repo.Update(ctx, c); err != nil {
			return fmt.Errorf("record interview event: %w", err)
		}
	}

	when := start.Format("Mon, 2 Jan 2006 at 3:04 PM")
	body := fmt.Sprintf("Hi %s,\n\nYour interview for the %s role is confirmed for %s.\n\nSee you then!\nThe Hiring Team",
		c.Name, c.Role, when)
	if err := w.mail.Send(ctx, c.Email, "Interview confirmed", body, domain.EmailOptions{}); err != nil {
		return fmt.Errorf("interview confirmation: %w", err)
	}
	_ = w.notifier.SendWhatsApp(ctx, c.Phone, TplInterviewBooked, []string{c.Name, c.Role, when})
	w.addTimeline(ctx, c.Email, EvInterviewBooked, map[string]any{"start": start.Format(time.RFC3339)})
	return nil
}

func (w *Workflow) sendBookingInvite(ctx domain.Context, c domain.Candidate) error {
	link := fmt.Sprintf("%s/portal?token=%s", strings.TrimRight(w.cfg.PublicBaseURL, "/"), c.PortalToken)
	subject := fmt.Sprintf("Interview invitation - %s", c.Role)
	body := fmt.Sprintf(
		"Hi %s,\n\nCongratulations! We would like to interview you for the %s role.\n"+
			"Pick a slot that works for you here:\n%s\n\nBest,\nThe Hiring Team",
		c.Name, c.Role, link)
	if err := w.mail.Send(ctx, c.Email, subject, body, domain.EmailOptions{}); err != nil {
		return fmt.Errorf("interview invite: %w", err)
	}
	w.addTimeline(ctx, c.Email, EvInterviewInvite, map[string]any{"portal": link})
	return nil
}

// handlePendingRejection only records intent; the cycle sweep finalizes after
// the cooling-off delay so a reviewer can still change their mind.
func (w *Workflow) handlePendingRejection(ctx domain.Context, c domain.Candidate) error {
	w.addTimeline(ctx, c.Email, EvPendingReject, map[string]any{
		"finalize_after": w.now().Add(w.rules.RejectionDelay()).Format(time.RFC3339),
	})
	return nil
}

// handleRejected sends the rejection, preferring a personalized draft and
// falling back to the stock template when the model is down.
func (w *Workflow) handleRejected(ctx domain.Context, c domain.Candidate) error {
	body, err := w.ai.GenerateRejection(ctx, c.Name, c.Role, c.LastLog)
	if err != nil || body == "" {
		w.log.Warn("rejection draft failed, using stock template", "candidate_id", c.ID, "error", err)
		body = fmt.Sprintf(
			"Hi %s,\n\nThank you for your interest in the %s role and the time you invested. "+
				"After careful consideration we have decided not to move forward at this stage.\n\n"+
				"We wish you the very best in your search.\n\nThe Hiring Team", c.Name, c.Role)
	}
	if err := w.mail.Send(ctx, c.Email, "Update on your application", body, domain.EmailOptions{}); err != nil {
		return fmt.Errorf("rejection mail: %w", err)
	}
	_ = w.notifier.SendWhatsApp(ctx, c.Phone, TplRejected, []string{c.Name, c.Role})

	if c.CalendarEventID != "" {
		if err := w.calendar.DeleteEvent(ctx, c.CalendarEventID); err != nil {
			w.log.Warn("interview event cleanup failed", "candidate_id", c.ID, "error", err)
		}
	}
	w.addTimeline(ctx, c.Email, EvRejected, nil)
	return nil
}

// handleHired congratulates the candidate on both channels.
func (w *Workflow) handleHired(ctx domain.Context, c domain.Candidate) error {
	body := fmt.Sprintf(
		"Hi %s,\n\nCongratulations! We are delighted to offer you the %s role. "+
			"The team will reach out shortly with the paperwork and next steps.\n\nWelcome aboard!\nThe Hiring Team",
		c.Name, c.Role)
	if err := w.mail.Send(ctx, c.Email, "Congratulations!", body, domain.EmailOptions{}); err != nil {
		return fmt.Errorf("offer mail: %w", err)
	}
	_ = w.notifier.SendWhatsApp(ctx, c.Phone, TplHired, []string{c.Name, c.Role})
	w.addTimeline(ctx, c.Email, EvHired, nil)
	return nil
}

func (w *Workflow) sendTest(ctx domain.Context, c domain.Candidate) error {
	limit := w.rules.TimeLimit(c.Role)
	subject := fmt.Sprintf("Skills assignment - %s", c.Role)
	body := fmt.Sprintf(
		"Hi %s,\n\nHere is your assignment for the %s role:\n%s\n\n"+
			"You have %s from when you start. Reply to this email with your submission when done.\n\n"+
			"Good luck!\nThe Hiring Team",
		c.Name, c.Role, w.rules.TestLink(c.Role), formatDuration(limit))
	if err := w.mail.Send(ctx, c.Email, subject, body, domain.EmailOptions{}); err != nil {
		return fmt.Errorf("test mail: %w", err)
	}

	now := w.now()
	c.TestSentAt = &now
	c.Status = domain.StatusTestSent
	if err := w.repo.Update(ctx, c); err != nil {
		return fmt.Errorf("record test sent: %w", err)
	}
	w.addTimeline(ctx, c.Email, EvTestSent, map[string]any{"limit_hours": limit.Hours()})
	_ = w.notifier.SendWhatsApp(ctx, c.Phone, TplTestSent, []string{c.Name, c.Role, formatDuration(limit)})
	return nil
}

// reportFailure logs at error level, records the failure on the timeline and
// emails the admin. Every step is best-effort.
func (w *Workflow) reportFailure(ctx domain.Context, c domain.Candidate, err error) {
	w.log.Error("workflow handler failed",
		"candidate_id", c.ID, "status", c.Status, "error", err)
	w.addTimeline(ctx, c.Email, EvHandlerError, map[string]any{
		"status": string(c.Status),
		"error":  err.Error(),
	})
	if w.cfg.AdminEmail != "" {
		body := fmt.Sprintf("Handler for %s failed on candidate %s (%s):\n\n%v", c.Status, c.Name, c.ID, err)
		if merr := w.mail.Send(ctx, w.cfg.AdminEmail, "Pipeline handler failure", body, domain.EmailOptions{}); merr != nil {
			w.log.Error("admin alert failed", "error", merr)
		}
	}
}

func (w *Workflow) addTimeline(ctx domain.Context, email, event string, payload map[string]any) {
	if err := w.timeline.Add(ctx, email, event, payload); err != nil {
		w.log.Warn("timeline append failed", "event", event, "error", err)
	}
}

func (w *Workflow) observe(s domain.Status, outcome string) {
	if w.metrics != nil {
		w.metrics.CandidatesProcessed.WithLabelValues(string(s), outcome).Inc()
	}
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	if h == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", h)
}
