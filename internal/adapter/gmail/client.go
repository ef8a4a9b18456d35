// Package gmail reads the shared inbox and sends outbound mail through the
// Gmail REST API.
package gmail

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hireloop/hireloop/internal/domain"
)

// Client talks to the Gmail API with a bearer token managed by the
// deployment. userID is usually "me".
type Client struct {
	token   string
	userID  string
	label   string
	labelID string
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// New builds the client. baseURL overrides are for tests.
func New(token, userID, processedLabel, baseURL string, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://gmail.googleapis.com"
	}
	return &Client{
		token:   token,
		userID:  userID,
		label:   processedLabel,
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log:     log,
	}
}

// ListUnprocessed returns up to max inbox messages not yet carrying the
// processed label. The label query is a pre-filter only; true idempotency is
// decided against the processed-messages table by the caller.
func (c *Client) ListUnprocessed(ctx domain.Context, max int) ([]domain.InboundMessage, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("in:inbox -label:%s", c.label))
	q.Set("maxResults", fmt.Sprintf("%d", max))

	var list struct {
		Messages []struct {
			ID       string `json:"id"`
			ThreadID string `json:"threadId"`
		} `json:"messages"`
	}
	if err := c.get(ctx, "/gmail/v1/users/"+c.userID+"/messages?"+q.Encode(), &list); err != nil {
		return nil, fmt.Errorf("gmail list: %w", err)
	}

	out := make([]domain.InboundMessage, 0, len(list.Messages))
	for _, m := range list.Messages {
		msg, err := c.fetch(ctx, m.ID)
		if err != nil {
			c.log.Warn("gmail fetch failed, skipping message", "message_id", m.ID, "error", err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

type gmailPart struct {
	MimeType string      `json:"mimeType"`
	Filename string      `json:"filename"`
	Body     gmailBody   `json:"body"`
	Parts    []gmailPart `json:"parts"`
}

type gmailBody struct {
	Data         string `json:"data"`
	AttachmentID string `json:"attachmentId"`
}

func (c *Client) fetch(ctx domain.Context, id string) (domain.InboundMessage, error) {
	var full struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
		Payload  struct {
			Headers []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"headers"`
			gmailPart
		} `json:"payload"`
	}
	if err := c.get(ctx, "/gmail/v1/users/"+c.userID+"/messages/"+id+"?format=full", &full); err != nil {
		return domain.InboundMessage{}, err
	}

	msg := domain.InboundMessage{ID: full.ID, ThreadID: full.ThreadID}
	for _, h := range full.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			msg.From = extractAddress(h.Value)
		case "subject":
			msg.Subject = h.Value
		}
	}
	msg.PlainBody = collectPlainText(full.Payload.gmailPart)
	msg.HasAttachments = hasAttachments(full.Payload.gmailPart)
	if msg.HasAttachments {
		c.collectAttachments(ctx, full.ID, full.Payload.gmailPart, &msg.Attachments)
	}
	return msg, nil
}

// collectAttachments downloads every attachment part so handlers can forward
// the files. A failed download is logged and skipped rather than failing the
// whole message.
func (c *Client) collectAttachments(ctx domain.Context, msgID string, p gmailPart, out *[]domain.Attachment) {
	if p.Filename != "" && p.Body.AttachmentID != "" {
		var att struct {
			Data string `json:"data"`
		}
		path := "/gmail/v1/users/" + c.userID + "/messages/" + msgID + "/attachments/" + p.Body.AttachmentID
		if err := c.get(ctx, path, &att); err != nil {
			c.log.Warn("gmail attachment fetch failed", "message_id", msgID, "filename", p.Filename, "error", err)
		} else if data, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(att.Data); err == nil {
			*out = append(*out, domain.Attachment{Filename: p.Filename, MIME: p.MimeType, Data: data})
		}
	}
	for _, child := range p.Parts {
		c.collectAttachments(ctx, msgID, child, out)
	}
}

// Reply sends a plain-text reply on the message's thread.
func (c *Client) Reply(ctx domain.Context, msg domain.InboundMessage, body string) error {
	raw := buildMIME(msg.From, "Re: "+strings.TrimPrefix(msg.Subject, "Re: "), body, domain.EmailOptions{})
	payload := map[string]string{
		"raw":      base64.URLEncoding.EncodeToString(raw),
		"threadId": msg.ThreadID,
	}
	if err := c.post(ctx, "/gmail/v1/users/"+c.userID+"/messages/send", payload, nil); err != nil {
		return fmt.Errorf("gmail reply: %w", err)
	}
	return nil
}

// MarkProcessed applies the processed label. Failures are logged and
// swallowed; the processed-messages table already guarantees idempotency.
func (c *Client) MarkProcessed(ctx domain.Context, msg domain.InboundMessage) error {
	id, err := c.ensureLabel(ctx)
	if err != nil {
		c.log.Warn("gmail label lookup failed", "error", err)
		return nil
	}
	payload := map[string]any{"addLabelIds": []string{id}}
	if err := c.post(ctx, "/gmail/v1/users/"+c.userID+"/messages/"+msg.ID+"/modify", payload, nil); err != nil {
		c.log.Warn("gmail label apply failed", "message_id", msg.ID, "error", err)
	}
	return nil
}

// Send delivers an outbound email, optionally with HTML body and attachments.
func (c *Client) Send(ctx domain.Context, to, subject, plainBody string, opts domain.EmailOptions) error {
	raw := buildMIME(to, subject, plainBody, opts)
	payload := map[string]string{"raw": base64.URLEncoding.EncodeToString(raw)}
	if err := c.post(ctx, "/gmail/v1/users/"+c.userID+"/messages/send", payload, nil); err != nil {
		return fmt.Errorf("gmail send to %s: %w", to, err)
	}
	return nil
}

func (c *Client) ensureLabel(ctx domain.Context) (string, error) {
	if c.labelID != "" {
		return c.labelID, nil
	}
	var labels struct {
		Labels []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"labels"`
	}
	if err := c.get(ctx, "/gmail/v1/users/"+c.userID+"/labels", &labels); err != nil {
		return "", err
	}
	for _, l := range labels.Labels {
		if l.Name == c.label {
			c.labelID = l.ID
			return l.ID, nil
		}
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/gmail/v1/users/"+c.userID+"/labels", map[string]string{"name": c.label}, &created); err != nil {
		return "", err
	}
	c.labelID = created.ID
	return created.ID, nil
}

func (c *Client) get(ctx domain.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx domain.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, raw, out)
}

func (c *Client) do(ctx domain.Context, method, path string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gmail status %d: %s", resp.StatusCode, clipStr(string(raw), 200))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
	}
	return nil
}

func collectPlainText(p gmailPart) string {
	if strings.HasPrefix(p.MimeType, "text/plain") && p.Body.Data != "" {
		decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(p.Body.Data)
		if err == nil {
			return string(decoded)
		}
	}
	for _, child := range p.Parts {
		if text := collectPlainText(child); text != "" {
			return text
		}
	}
	return ""
}

func hasAttachments(p gmailPart) bool {
	if p.Filename != "" && p.Body.AttachmentID != "" {
		return true
	}
	for _, child := range p.Parts {
		if hasAttachments(child) {
			return true
		}
	}
	return false
}

// extractAddress pulls the bare address out of "Name <addr@host>".
func extractAddress(from string) string {
	if i := strings.LastIndexByte(from, '<'); i >= 0 {
		if j := strings.IndexByte(from[i:], '>'); j > 0 {
			return strings.TrimSpace(from[i+1 : i+j])
		}
	}
	return strings.TrimSpace(from)
}

func buildMIME(to, subject, plainBody string, opts domain.EmailOptions) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")

	const boundary = "hireloop-mime-boundary"
	switch {
	case len(opts.Attachments) > 0:
		fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, plainBody)
		for _, a := range opts.Attachments {
			fmt.Fprintf(&b, "--%s\r\n", boundary)
			fmt.Fprintf(&b, "Content-Type: %s\r\n", a.MIME)
			fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n", a.Filename)
			b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
			b.WriteString(base64.StdEncoding.EncodeToString(a.Data))
			b.WriteString("\r\n")
		}
		fmt.Fprintf(&b, "--%s--\r\n", boundary)
	case opts.HTMLBody != "":
		fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, plainBody)
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, opts.HTMLBody)
		fmt.Fprintf(&b, "--%s--\r\n", boundary)
	default:
		fmt.Fprintf(&b, "Content-Type: text/plain; charset=utf-8\r\n\r\n%s", plainBody)
	}
	return b.Bytes()
}

func clipStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
