// Package gcal implements the interview calendar on the Google Calendar
// REST API.
package gcal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hireloop/hireloop/internal/domain"
)

// Client talks to one calendar with a bearer token.
type Client struct {
	token      string
	calendarID string
	baseURL    string
	http       *http.Client
}

// New builds the client. baseURL overrides are for tests.
func New(token, calendarID, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://www.googleapis.com"
	}
	return &Client{
		token:      token,
		calendarID: calendarID,
		baseURL:    baseURL,
		http:       &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type apiEvent struct {
	ID        string `json:"id,omitempty"`
	Summary   string `json:"summary"`
	Start     apiRFC `json:"start"`
	End       apiRFC `json:"end"`
	Attendees []struct {
		Email string `json:"email"`
	} `json:"attendees,omitempty"`
}

type apiRFC struct {
	DateTime string `json:"dateTime"`
}

// CreateEvent books one interview and returns the event id.
func (c *Client) CreateEvent(ctx domain.Context, ev domain.CalendarEvent) (string, error) {
	body := map[string]any{
		"summary": ev.Title,
		"start":   map[string]string{"dateTime": ev.Start.Format(time.RFC3339)},
		"end":     map[string]string{"dateTime": ev.End.Format(time.RFC3339)},
	}
	if len(ev.Attendees) > 0 {
		attendees := make([]map[string]string, 0, len(ev.Attendees))
		for _, a := range ev.Attendees {
			attendees = append(attendees, map[string]string{"email": a})
		}
		body["attendees"] = attendees
	}

	var created apiEvent
	path := "/calendar/v3/calendars/" + url.PathEscape(c.calendarID) + "/events"
	if err := c.do(ctx, http.MethodPost, path, body, &created); err != nil {
		return "", fmt.Errorf("gcal create event: %w", err)
	}
	return created.ID, nil
}

// ListEvents returns the day's events in start order.
func (c *Client) ListEvents(ctx domain.Context, day time.Time) ([]domain.CalendarEvent, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	q := url.Values{}
	q.Set("timeMin", dayStart.Format(time.RFC3339))
	q.Set("timeMax", dayStart.Add(24*time.Hour).Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")

	var resp struct {
		Items []apiEvent `json:"items"`
	}
	path := "/calendar/v3/calendars/" + url.PathEscape(c.calendarID) + "/events?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("gcal list events: %w", err)
	}

	out := make([]domain.CalendarEvent, 0, len(resp.Items))
	for _, it := range resp.Items {
		start, err := time.Parse(time.RFC3339, it.Start.DateTime)
		if err != nil {
			continue // all-day events have no dateTime
		}
		end, err := time.Parse(time.RFC3339, it.End.DateTime)
		if err != nil {
			continue
		}
		ev := domain.CalendarEvent{ID: it.ID, Title: it.Summary, Start: start, End: end}
		for _, a := range it.Attendees {
			ev.Attendees = append(ev.Attendees, a.Email)
		}
		out = append(out, ev)
	}
	return out, nil
}

// DeleteEvent cancels a booked interview.
func (c *Client) DeleteEvent(ctx domain.Context, eventID string) error {
	path := "/calendar/v3/calendars/" + url.PathEscape(c.calendarID) + "/events/" + url.PathEscape(eventID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("gcal delete event: %w", err)
	}
	return nil
}

func (c *Client) do(ctx domain.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		rdr = bytes.NewReader(raw)
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

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gcal status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
