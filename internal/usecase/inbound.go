package usecase

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hireloop/hireloop/internal/adapter/observability"
	"github.com/hireloop/hireloop/internal/config"
	"github.com/hireloop/hireloop/internal/domain"
)

const duplicateReply = "Thanks for reaching out again! We already have your application on file " +
	"and it is moving through our process. We will be in touch with any updates."

const screeningReply = "Thanks for applying! To move your application forward, please reply to this email with:\n\n" +
	"1. Your current city\n2. Highest degree\n3. Earliest start date\n4. Expected salary\n" +
	"5. Last drawn salary (if applicable)\n6. Total relevant experience\n" +
	"7. When you would like to receive the skills test (date and time)\n" +
	"8. A link to your portfolio and CV if not already shared\n\nBest,\nThe Hiring Team"

const applyFirstReply = "Thanks for sending this over! We could not find an application matching " +
	"this email address. Please apply first and we will send you the assignment details."

const submissionAck = "Thanks! We received your submission and the team will review it shortly."

const escalateAck = "Thanks for reaching out. A member of the team will get back to you shortly."

// Inbox processes the shared recruiting inbox: classify each new message,
// act on it, and record it as handled exactly once.
type Inbox struct {
	mail      domain.MailReader
	repo      domain.CandidateRepository
	timeline  domain.TimelineRepository
	processed domain.ProcessedMessages
	dupes     *DuplicateChecker
	workflow  *Workflow
	ai        domain.Assistant
	rules     config.Rules
	admin     string
	sender    domain.EmailSender
	log       *slog.Logger
	metrics   *observability.Metrics
}

// NewInbox wires the processor.
func NewInbox(
	mail domain.MailReader,
	repo domain.CandidateRepository,
	timeline domain.TimelineRepository,
	processed domain.ProcessedMessages,
	dupes *DuplicateChecker,
	workflow *Workflow,
	ai domain.Assistant,
	rules config.Rules,
	adminEmail string,
	sender domain.EmailSender,
	log *slog.Logger,
	m *observability.Metrics,
) *Inbox {
	return &Inbox{
		mail: mail, repo: repo, timeline: timeline, processed: processed,
		dupes: dupes, workflow: workflow, ai: ai, rules: rules,
		admin: adminEmail, sender: sender, log: log, metrics: m,
	}
}

// Sweep handles every unprocessed message. Per-message failures are logged
// and skipped; the message is marked processed either way.
func (ib *Inbox) Sweep(ctx domain.Context, max int) error {
	msgs, err := ib.mail.ListUnprocessed(ctx, max)
	if err != nil {
		return fmt.Errorf("inbox list: %w", err)
	}
	for _, msg := range msgs {
		if err := ib.Handle(ctx, msg); err != nil {
			ib.log.Error("inbound message failed",
				"message_id", msg.ID, "from", msg.From, "error", err)
		}
	}
	return nil
}

// Handle processes one message end to end. The message is marked processed
// even when its handler fails: at most once beats twice here, because a
// broken message retried forever would hammer the same candidate with
// duplicate replies.
func (ib *Inbox) Handle(ctx domain.Context, msg domain.InboundMessage) error {
	seen, err := ib.processed.Seen(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if seen {
		// label went missing but the table remembers
		_ = ib.mail.MarkProcessed(ctx, msg)
		return nil
	}

	var herr error
	intent := "UNCLASSIFIED"
	res := ib.ai.AnalyzeIntent(ctx, msg.PlainBody, msg.Subject, msg.HasAttachments)
	if res == nil {
		ib.log.Warn("intent classification failed, leaving message to humans",
			"message_id", msg.ID, "from", msg.From)
	} else {
		intent = res.Intent
		switch res.Intent {
		case domain.IntentNewApplication:
			herr = ib.handleNewApplication(ctx, msg)
		case domain.IntentTestSubmission:
			herr = ib.handleTestSubmission(ctx, msg)
		case domain.IntentFormResponse:
			herr = ib.handleFormResponse(ctx, msg)
		case domain.IntentFollowup:
			herr = ib.handleFollowup(ctx, msg)
		case domain.IntentQuestion:
			herr = ib.handleQuestion(ctx, msg)
		case domain.IntentSpam:
			// drop silently
		default:
			herr = ib.escalate(ctx, msg, "unclassified inbound email")
		}
	}
	ib.observe(intent)

	if err := ib.processed.Mark(ctx, msg.ID); err != nil {
		return fmt.Errorf("idempotency mark: %w", err)
	}
	_ = ib.mail.MarkProcessed(ctx, msg)

	if herr != nil {
		return fmt.Errorf("handle %s: %w", intent, herr)
	}
	return nil
}

func (ib *Inbox) handleNewApplication(ctx domain.Context, msg domain.InboundMessage) error {
	info := ib.ai.ExtractCandidateInfo(ctx, msg.PlainBody, msg.Subject)
	if info == nil || info.Email == "" {
		// fall back to the transport sender when extraction came up short
		info = &domain.CandidateInfo{Email: msg.From}
	}
	if info.Name == "" {
		info.Name = strings.Split(msg.From, "@")[0]
	}

	verdict := ib.ai.DetectSpam(ctx, info.Email, info.Name, msg.PlainBody)
	if verdict.IsSpam && verdict.Confidence > ib.rules.SpamThreshold {
		// no record, no reply: spammers get silence
		ib.log.Info("spam application dropped",
			"from", msg.From, "confidence", verdict.Confidence, "reasons", verdict.Reasons)
		return nil
	}

	match := ib.dupes.Check(ctx, info.Name, info.Email, info.Phone)
	if match.IsDuplicate {
		ib.log.Info("duplicate application",
			"email", info.Email, "match_type", match.MatchType, "similarity", match.Similarity)
		ib.addTimeline(ctx, match.Matched.Email, EvDuplicateReply, map[string]any{
			"match_type": string(match.MatchType),
			"from":       msg.From,
		})
		if err := ib.mail.Reply(ctx, msg, duplicateReply); err != nil {
			ib.log.Warn("duplicate reply failed", "message_id", msg.ID, "error", err)
		}
		return nil
	}

	c := domain.Candidate{
		Name:   info.Name,
		Email:  info.Email,
		Phone:  info.Phone,
		Role:   info.Role,
		Status: domain.StatusNew,
	}
	if len(info.PortfolioLinks) > 0 {
		c.PortfolioURL = info.PortfolioLinks[0]
	}
	id, err := ib.repo.Create(ctx, c)
	if err != nil {
		return fmt.Errorf("create candidate: %w", err)
	}

	if err := ib.mail.Reply(ctx, msg, screeningReply); err != nil {
		ib.log.Warn("screening questions reply failed", "message_id", msg.ID, "error", err)
	} else {
		ib.addTimeline(ctx, c.Email, EvScreeningSent, nil)
	}

	ib.workflow.Process(ctx, id, domain.StatusNew)
	return nil
}

func (ib *Inbox) handleTestSubmission(ctx domain.Context, msg domain.InboundMessage) error {
	c, err := ib.repo.FindByEmail(ctx, msg.From)
	if err == domain.ErrNotFound {
		if rerr := ib.mail.Reply(ctx, msg, applyFirstReply); rerr != nil {
			return fmt.Errorf("apply-first reply: %w", rerr)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("submission lookup: %w", err)
	}

	if len(msg.Attachments) > 0 && ib.admin != "" {
		body := fmt.Sprintf("Submission files from %s (%s) are attached.", c.Name, c.Role)
		opts := domain.EmailOptions{Attachments: msg.Attachments}
		if err := ib.sender.Send(ctx, ib.admin, "Submission files: "+c.Name, body, opts); err != nil {
			ib.log.Warn("submission forward failed", "candidate_id", c.ID, "error", err)
		}
	}
	if err := ib.mail.Reply(ctx, msg, submissionAck); err != nil {
		ib.log.Warn("submission ack failed", "message_id", msg.ID, "error", err)
	}

	if err := ib.repo.SetStatus(ctx, c.ID, domain.StatusTestSubmitted); err != nil {
		return fmt.Errorf("mark submitted: %w", err)
	}
	ib.workflow.Process(ctx, c.ID, c.Status)
	return nil
}

func (ib *Inbox) handleFormResponse(ctx domain.Context, msg domain.InboundMessage) error {
	c, err := ib.repo.FindByEmail(ctx, msg.From)
	if err == domain.ErrNotFound {
		return ib.escalate(ctx, msg, "questionnaire reply from unknown sender")
	}
	if err != nil {
		return fmt.Errorf("form lookup: %w", err)
	}

	form := ib.ai.ExtractFormResponse(ctx, msg.PlainBody, msg.From)
	if form == nil {
		return ib.escalate(ctx, msg, "questionnaire reply could not be parsed")
	}
	mergeForm(&c, form)
	if err := ib.repo.Update(ctx, c); err != nil {
		return fmt.Errorf("store form: %w", err)
	}
	ib.addTimeline(ctx, c.Email, EvFormReceived, nil)
	ib.workflow.Process(ctx, c.ID, c.Status)
	return nil
}

// handleFollowup answers a "what is happening with my application" nudge with
// the candidate's current stage. A follow-up from an address we do not know
// is dropped without a reply.
func (ib *Inbox) handleFollowup(ctx domain.Context, msg domain.InboundMessage) error {
	c, err := ib.repo.FindByEmail(ctx, msg.From)
	if err == domain.ErrNotFound {
		ib.log.Info("follow-up from unknown sender dropped", "from", msg.From)
		return nil
	}
	if err != nil {
		return fmt.Errorf("followup lookup: %w", err)
	}

	stage, ok := statusInfo[c.Status]
	if !ok {
		stage = "Your application is moving through our process."
	}
	reply := fmt.Sprintf("Hi %s,\n\n%s\n\nBest,\nThe Hiring Team", c.Name, stage)
	if err := ib.mail.Reply(ctx, msg, reply); err != nil {
		return fmt.Errorf("followup reply: %w", err)
	}
	return nil
}

func (ib *Inbox) handleQuestion(ctx domain.Context, msg domain.InboundMessage) error {
	rc := domain.ReplyContext{}
	if c, err := ib.repo.FindByEmail(ctx, msg.From); err == nil {
		rc = domain.ReplyContext{Name: c.Name, Role: c.Role, Status: string(c.Status)}
	}
	reply := ib.ai.SuggestReply(ctx, msg.PlainBody, rc)
	if reply == "" {
		return ib.escalate(ctx, msg, "question needs a human answer")
	}
	if err := ib.mail.Reply(ctx, msg, reply); err != nil {
		return fmt.Errorf("question reply: %w", err)
	}
	return nil
}

// escalate forwards a message the automation cannot safely handle and lets
// the sender know a human will pick it up.
func (ib *Inbox) escalate(ctx domain.Context, msg domain.InboundMessage, reason string) error {
	if ib.admin == "" {
		ib.log.Warn("no admin configured, leaving message unhandled",
			"message_id", msg.ID, "reason", reason)
		return nil
	}
	body := fmt.Sprintf("Needs attention (%s)\n\nFrom: %s\nSubject: %s\n\n%s",
		reason, msg.From, msg.Subject, msg.PlainBody)
	if err := ib.sender.Send(ctx, ib.admin, "Inbox escalation: "+msg.Subject, body, domain.EmailOptions{}); err != nil {
		return fmt.Errorf("escalate: %w", err)
	}
	if err := ib.mail.Reply(ctx, msg, escalateAck); err != nil {
		ib.log.Warn("escalation ack failed", "message_id", msg.ID, "error", err)
	}
	return nil
}

// mergeForm copies only the answered fields onto the candidate.
func mergeForm(c *domain.Candidate, f *domain.FormResponse) {
	if f.Name != nil && *f.Name != "" {
		c.Name = *f.Name
	}
	if f.Phone != nil && *f.Phone != "" {
		c.Phone = *f.Phone
	}
	if f.Role != nil && *f.Role != "" {
		c.Role = *f.Role
	}
	if f.TestAvail != nil && *f.TestAvail != "" {
		c.TestAvailability = *f.TestAvail
	}
	if f.PortfolioURL != nil && *f.PortfolioURL != "" {
		c.PortfolioURL = *f.PortfolioURL
	}
	if f.CVURL != nil && *f.CVURL != "" {
		c.CVURL = *f.CVURL
	}
}

func (ib *Inbox) addTimeline(ctx domain.Context, email, event string, payload map[string]any) {
	if err := ib.timeline.Add(ctx, email, event, payload); err != nil {
		ib.log.Warn("timeline append failed", "event", event, "error", err)
	}
}

func (ib *Inbox) observe(intent string) {
	if ib.metrics != nil {
		ib.metrics.InboundEmails.WithLabelValues(intent).Inc()
	}
}
