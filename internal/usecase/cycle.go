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

// maxRetryAttempts caps replay of a queued notification; after that the item
// is dropped so the queue cannot fill with permanently broken entries.
const maxRetryAttempts = 5

// interviewConfirmNote on the candidate log means the confirmation email for
// the currently booked interview already went out.
const interviewConfirmNote = "interview confirmation sent"

// Cycle is the periodic pass over the whole pipeline: inbox, overdue
// rejections, follow-ups, retry replay and the team export. Each step is
// independent; one failing never stops the rest.
type Cycle struct {
	inbox    *Inbox
	repo     domain.CandidateRepository
	timeline domain.TimelineRepository
	retry    domain.RetryQueue
	notifier *Notifier
	workflow *Workflow
	mail     domain.EmailSender
	export   *Exporter
	rules    config.Rules
	log      *slog.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewCycle wires the cycle.
func NewCycle(
	inbox *Inbox,
	repo domain.CandidateRepository,
	timeline domain.TimelineRepository,
	retry domain.RetryQueue,
	notifier *Notifier,
	workflow *Workflow,
	mail domain.EmailSender,
	export *Exporter,
	rules config.Rules,
	log *slog.Logger,
	m *observability.Metrics,
) *Cycle {
	return &Cycle{
		inbox: inbox, repo: repo, timeline: timeline, retry: retry,
		notifier: notifier, workflow: workflow, mail: mail, export: export,
		rules: rules, log: log, metrics: m, now: time.Now,
	}
}

// Run executes one full cycle.
func (cy *Cycle) Run(ctx domain.Context) {
	start := cy.now()
	defer func() {
		if cy.metrics != nil {
			cy.metrics.CycleDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if err := cy.inbox.Sweep(ctx, 50); err != nil {
		cy.log.Error("cycle: inbox sweep failed", "error", err)
	}
	if err := cy.SweepRejections(ctx); err != nil {
		cy.log.Error("cycle: rejection sweep failed", "error", err)
	}
	if err := cy.SendFollowups(ctx); err != nil {
		cy.log.Error("cycle: follow-ups failed", "error", err)
	}
	if err := cy.SweepUnconfirmedInterviews(ctx); err != nil {
		cy.log.Error("cycle: interview sweep failed", "error", err)
	}
	if err := cy.DrainRetryQueue(ctx); err != nil {
		cy.log.Error("cycle: retry drain failed", "error", err)
	}
	if cy.export != nil {
		if err := cy.export.Run(ctx); err != nil {
			cy.log.Error("cycle: export failed", "error", err)
		}
	}
	cy.log.Info("cycle complete", "took", time.Since(start).String())
}

// SweepRejections finalizes PENDING_REJECTION records whose cooling-off
// delay has lapsed.
func (cy *Cycle) SweepRejections(ctx domain.Context) error {
	pending, err := cy.repo.ListByStatus(ctx, domain.StatusPendingRejection)
	if err != nil {
		return fmt.Errorf("rejection sweep list: %w", err)
	}
	cutoff := cy.now().Add(-cy.rules.RejectionDelay())
	for _, c := range pending {
		if c.UpdatedAt.After(cutoff) {
			continue
		}
		if err := cy.repo.SetStatus(ctx, c.ID, domain.StatusRejected); err != nil {
			cy.log.Error("rejection finalize failed", "candidate_id", c.ID, "error", err)
			continue
		}
		cy.workflow.Process(ctx, c.ID, domain.StatusPendingRejection)
	}
	return nil
}

// SendFollowups nudges stalled candidates at the configured day offsets:
// IN_PROCESS records that never answered the questionnaire, and TEST_SENT
// records that never submitted.
func (cy *Cycle) SendFollowups(ctx domain.Context) error {
	now := cy.now()
	for _, status := range []domain.Status{domain.StatusInProcess, domain.StatusTestSent} {
		list, err := cy.repo.ListByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("followup list %s: %w", status, err)
		}
		for _, c := range list {
			ref := c.UpdatedAt
			if status == domain.StatusTestSent && c.TestSentAt != nil {
				ref = *c.TestSentAt
			}
			days := int(now.Sub(ref).Hours() / 24)
			if !containsInt(cy.rules.FollowupDays, days) {
				continue
			}
			tpl := TplFollowup
			if status == domain.StatusTestSent {
				tpl = TplTestReminder
			}
			if err := cy.notifier.SendWhatsApp(ctx, c.Phone, tpl, []string{c.Name, c.Role}); err != nil {
				continue
			}
			if err := cy.timeline.Add(ctx, c.Email, EvFollowup, map[string]any{"day": days}); err != nil {
				cy.log.Warn("timeline append failed", "event", EvFollowup, "error", err)
			}
		}
	}
	return nil
}

// SweepUnconfirmedInterviews asks candidates with an upcoming booked
// interview to confirm attendance, once per booking.
func (cy *Cycle) SweepUnconfirmedInterviews(ctx domain.Context) error {
	list, err := cy.repo.ListByStatus(ctx, domain.StatusInterviewPending)
	if err != nil {
		return fmt.Errorf("interview sweep list: %w", err)
	}
	now := cy.now()
	for _, c := range list {
		if c.InterviewAt == nil || c.InterviewAt.Before(now) {
			continue
		}
		if strings.Contains(c.LastLog, interviewConfirmNote) {
			continue
		}
		when := c.InterviewAt.Format("Mon, 2 Jan 2006 at 3:04 PM")
		body := fmt.Sprintf(
			"Hi %s,\n\nYour interview for the %s role is coming up on %s. "+
				"Please reply to confirm you can make it.\n\nBest,\nThe Hiring Team",
			c.Name, c.Role, when)
		if err := cy.mail.Send(ctx, c.Email, "Please confirm your interview", body, domain.EmailOptions{}); err != nil {
			cy.log.Warn("interview confirmation failed", "candidate_id", c.ID, "error", err)
			continue
		}
		_ = cy.notifier.SendWhatsApp(ctx, c.Phone, TplInterviewReminder, []string{c.Name, c.Role, when})
		if err := cy.repo.SetLog(ctx, c.ID, interviewConfirmNote+" "+now.Format(time.RFC3339)); err != nil {
			cy.log.Warn("log update failed", "candidate_id", c.ID, "error", err)
		}
	}
	return nil
}

// DrainRetryQueue replays every queued notification once. Successes leave
// the queue; failures stay with a bumped attempt count until the cap, then
// they are dropped.
func (cy *Cycle) DrainRetryQueue(ctx domain.Context) error {
	items, err := cy.retry.List(ctx)
	if err != nil {
		return fmt.Errorf("retry list: %w", err)
	}
	if cy.metrics != nil {
		cy.metrics.RetryQueueDepth.Set(float64(len(items)))
	}
	for _, it := range items {
		if err := cy.notifier.Replay(ctx, it); err != nil {
			if it.Attempts+1 >= maxRetryAttempts {
				cy.log.Warn("retry abandoned after max attempts",
					"retry_id", it.ID, "attempts", it.Attempts+1, "error", err)
				if derr := cy.retry.Delete(ctx, it.ID); derr != nil {
					cy.log.Error("retry delete failed", "retry_id", it.ID, "error", derr)
				}
				continue
			}
			cy.log.Warn("retry replay failed", "retry_id", it.ID, "attempts", it.Attempts+1, "error", err)
			if rerr := cy.retry.RecordFailure(ctx, it.ID, err.Error()); rerr != nil {
				cy.log.Error("retry bookkeeping failed", "retry_id", it.ID, "error", rerr)
			}
			continue
		}
		if err := cy.retry.Delete(ctx, it.ID); err != nil {
			cy.log.Error("retry delete failed", "retry_id", it.ID, "error", err)
		}
	}
	return nil
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
