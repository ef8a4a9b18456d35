// Package twilio sends WhatsApp messages through the Twilio REST API.
package twilio

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hireloop/hireloop/internal/domain"
)

// Sender posts messages via the Twilio Messages endpoint. Transient HTTP
// failures are retried with exponential backoff before the caller gives up
// and queues the message.
type Sender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
}

// New builds the sender. baseURL overrides are for tests.
func New(accountSID, authToken, from, baseURL string) *Sender {
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	return &Sender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    baseURL,
		client:     &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// SendText delivers one WhatsApp text. An empty phone is a caller bug
// surfaced as ErrInvalidArgument, never a panic.
func (s *Sender) SendText(ctx domain.Context, phone, body string) error {
	to := NormalizePhone(phone)
	if to == "" {
		return fmt.Errorf("empty destination phone: %w", domain.ErrInvalidArgument)
	}

	form := url.Values{}
	form.Set("From", s.from)
	form.Set("To", "whatsapp:"+to)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("twilio request: %w", err))
		}
		req.SetBasicAuth(s.accountSID, s.authToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("twilio send: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err = fmt.Errorf("twilio status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return fmt.Errorf("twilio deliver to %s: %w", to, err)
	}
	return nil
}

// NormalizePhone returns an E.164-ish destination. Bare 10-digit numbers get
// the +91 country code; anything already prefixed passes through.
func NormalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case d == "":
		return ""
	case strings.HasPrefix(strings.TrimSpace(phone), "+"):
		return "+" + d
	case len(d) == 10:
		return "+91" + d
	default:
		return "+" + d
	}
}
