package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/hireloop/internal/config"
	"github.com/hireloop/hireloop/internal/domain"
)

func newPortal(h *harness) *Portal {
	p := NewPortal(h.repo, h.cal, h.workflow, h.notifier, h.mailer, config.DefaultRules(), testLogger())
	// pin "now" to a Monday morning so slot math is deterministic
	p.now = func() time.Time {
		return time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	}
	return p
}

func TestPortal_ViewByToken(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.repo.seed(domain.Candidate{
		Name: "Jane", Email: "jane@example.com", Role: "Designer",
		PortalToken: "tok1", Status: domain.StatusTestSent,
	})
	p := newPortal(h)

	v, err := p.View(context.Background(), "tok1")
	require.NoError(t, err)
	assert.Equal(t, "Jane", v.Name)
	assert.True(t, v.CanSubmit)
	assert.False(t, v.CanBook)
	assert.Contains(t, v.Message, "assignment")
}

func TestPortal_InvalidToken(t *testing.T) {
	t.Parallel()

	p := newPortal(newHarness())
	_, err := p.View(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = p.View(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestPortal_SlotsRespectHoursAndBusyEvents(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.repo.seed(domain.Candidate{
		Name: "Jane", Email: "jane@example.com", PortalToken: "tok1",
		Status: domain.StatusInterviewPending,
	})
	p := newPortal(h)

	// Tuesday 10:00-10:45 is taken
	busyStart := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	_, err := h.cal.CreateEvent(context.Background(), domain.CalendarEvent{
		Title: "other interview", Start: busyStart, End: busyStart.Add(45 * time.Minute),
	})
	require.NoError(t, err)

	slots, err := p.Slots(context.Background(), "tok1")
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	for _, s := range slots {
		assert.GreaterOrEqual(t, s.Start.Hour(), 10)
		assert.LessOrEqual(t, s.End.Hour(), 19)
		assert.NotEqual(t, time.Saturday, s.Start.Weekday())
		assert.NotEqual(t, time.Sunday, s.Start.Weekday())
		assert.NotEqual(t, busyStart, s.Start, "busy slot must not be offered")
		assert.Equal(t, 45*time.Minute, s.End.Sub(s.Start))
	}
}

func TestPortal_SlotsOnlyWhenInterviewPending(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.repo.seed(domain.Candidate{
		Name: "Jane", Email: "jane@example.com", PortalToken: "tok1",
		Status: domain.StatusTestSent,
	})
	p := newPortal(h)

	_, err := p.Slots(context.Background(), "tok1")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestPortal_BookCreatesEventAndConfirms(t *testing.T) {
	t.Parallel()

	h := newHarness()
	c := h.repo.seed(domain.Candidate{
		Name: "Jane", Email: "jane@example.com", Phone: "9876543210",
		Role: "Designer", PortalToken: "tok1", Status: domain.StatusInterviewPending,
	})
	p := newPortal(h)

	start := time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)
	require.NoError(t, p.Book(context.Background(), "tok1", start))

	got, _ := h.repo.Get(context.Background(), c.ID)
	require.NotNil(t, got.InterviewAt)
	assert.Equal(t, start, *got.InterviewAt)
	assert.NotEmpty(t, got.CalendarEventID)

	require.Len(t, h.cal.events, 1)
	assert.Contains(t, h.cal.events[0].Attendees, "jane@example.com")
	require.Len(t, h.mailer.to("jane@example.com"), 1)
	require.Len(t, h.wa.sent, 1)
}

func TestPortal_BookRejectsDoubleBooking(t *testing.T) {
	t.Parallel()

	h := newHarness()
	booked := time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)
	h.repo.seed(domain.Candidate{
		Name: "Jane", Email: "jane@example.com", PortalToken: "tok1",
		Status: domain.StatusInterviewPending, InterviewAt: &booked,
	})
	p := newPortal(h)

	err := p.Book(context.Background(), "tok1", booked.Add(24*time.Hour))
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestPortal_BookRejectsTakenSlot(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.repo.seed(domain.Candidate{
		Name: "Jane", Email: "jane@example.com", PortalToken: "tok1",
		Status: domain.StatusInterviewPending,
	})
	p := newPortal(h)

	start := time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)
	_, err := h.cal.CreateEvent(context.Background(), domain.CalendarEvent{
		Title: "clash", Start: start.Add(15 * time.Minute), End: start.Add(time.Hour),
	})
	require.NoError(t, err)

	err = p.Book(context.Background(), "tok1", start)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestPortal_SubmitTestAdvancesWorkflow(t *testing.T) {
	t.Parallel()

	h := newHarness()
	c := h.repo.seed(domain.Candidate{
		Name: "Jane", Email: "jane@example.com", Role: "Designer",
		PortalToken: "tok1", Status: domain.StatusTestSent,
	})
	p := newPortal(h)

	require.NoError(t, p.SubmitTest(context.Background(), "tok1", "https://drive.example.com/work"))

	got, _ := h.repo.Get(context.Background(), c.ID)
	assert.Equal(t, domain.StatusUnderReview, got.Status)
	require.NotNil(t, got.TestSubmittedAt)
	assert.Contains(t, got.LastLog, "Test submitted")

	// the reviewer notification carries the submission link
	adminMails := h.mailer.to(h.cfg.admin)
	require.NotEmpty(t, adminMails)
	assert.Contains(t, adminMails[len(adminMails)-1].Body, "drive.example.com")
}

func TestPortal_SubmitTestWrongStage(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.repo.seed(domain.Candidate{
		Name: "Jane", Email: "jane@example.com", PortalToken: "tok1",
		Status: domain.StatusNew,
	})
	p := newPortal(h)

	err := p.SubmitTest(context.Background(), "tok1", "")
	assert.ErrorIs(t, err, domain.ErrConflict)
}
