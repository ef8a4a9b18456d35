package usecase

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hireloop/hireloop/internal/adapter/observability"
	"github.com/hireloop/hireloop/internal/domain"
)

// Notification templates. Params substitute positionally for {1}, {2}, ...
const (
	TplWelcome           = "welcome"
	TplTestSent          = "test_sent"
	TplTestReminder      = "test_reminder"
	TplInterviewBooked   = "interview_booked"
	TplInterviewReminder = "interview_reminder"
	TplFollowup          = "followup"
	TplRejected          = "rejected"
	TplHired             = "hired"
)

var waTemplates = map[string]string{
	TplWelcome:           "Hi {1}! Thanks for applying for the {2} role. We have emailed you a few screening questions - please reply when you get a moment.",
	TplTestSent:          "Hi {1}! Your assignment for the {2} role has been sent to your email. You have {3} to complete it once you start. Good luck!",
	TplTestReminder:      "Hi {1}, a gentle reminder that your assignment for the {2} role is waiting in your inbox.",
	TplInterviewBooked:   "Hi {1}! Your interview for the {2} role is confirmed for {3}. We look forward to meeting you.",
	TplInterviewReminder: "Hi {1}, reminder: your interview for the {2} role is scheduled for {3}. Please confirm your availability.",
	TplFollowup:          "Hi {1}, just checking in on your application for the {2} role. Let us know if you have any questions!",
	TplRejected:          "Hi {1}, thank you for applying for the {2} role. We have sent you an update by email.",
	TplHired:             "Hi {1}! Great news about your application for the {2} role. Check your email for details!",
}

// Notifier delivers WhatsApp messages, queueing failures for replay instead
// of losing them.
type Notifier struct {
	sender  domain.MessageSender
	retry   domain.RetryQueue
	log     *slog.Logger
	metrics *observability.Metrics
}

// NewNotifier builds the notifier.
func NewNotifier(sender domain.MessageSender, retry domain.RetryQueue, log *slog.Logger, m *observability.Metrics) *Notifier {
	return &Notifier{sender: sender, retry: retry, log: log, metrics: m}
}

// RenderTemplate expands a template name with positional params. Unknown
// template names return an error so typos surface in tests, not at send time.
func RenderTemplate(name string, params []string) (string, error) {
	tpl, ok := waTemplates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q: %w", name, domain.ErrInvalidArgument)
	}
	out := tpl
	for i, p := range params {
		out = strings.ReplaceAll(out, fmt.Sprintf("{%d}", i+1), p)
	}
	return out, nil
}

// SendWhatsApp renders and delivers a template. On failure the item goes to
// the retry queue and the error is reported to the caller for logging only;
// the workflow keeps moving either way.
func (n *Notifier) SendWhatsApp(ctx domain.Context, phone, template string, params []string) error {
	body, err := RenderTemplate(template, params)
	if err != nil {
		return err
	}
	if strings.TrimSpace(phone) == "" {
		n.log.Warn("whatsapp skipped, no phone on record", "template", template)
		return nil
	}

	if err := n.sender.SendText(ctx, phone, body); err != nil {
		n.observe("whatsapp", "error")
		n.log.Warn("whatsapp send failed, queueing for retry", "template", template, "error", err)
		item := domain.RetryItem{
			Channel:     "whatsapp",
			Destination: phone,
			Template:    template,
			Params:      params,
			LastError:   err.Error(),
		}
		if qerr := n.retry.Enqueue(ctx, item); qerr != nil {
			n.log.Error("retry enqueue failed, notification lost", "template", template, "error", qerr)
		}
		return fmt.Errorf("whatsapp %s: %w", template, err)
	}
	n.observe("whatsapp", "ok")
	return nil
}

// Replay attempts one queued item again.
func (n *Notifier) Replay(ctx domain.Context, item domain.RetryItem) error {
	body, err := RenderTemplate(item.Template, item.Params)
	if err != nil {
		return err
	}
	return n.sender.SendText(ctx, item.Destination, body)
}

func (n *Notifier) observe(channel, outcome string) {
	if n.metrics != nil {
		n.metrics.NotificationsSent.WithLabelValues(channel, outcome).Inc()
	}
}
