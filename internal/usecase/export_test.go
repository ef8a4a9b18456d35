package usecase

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hireloop/hireloop/internal/domain"
)

func TestRedactEmail(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ja***@example.com", RedactEmail("jane@example.com"))
	assert.Equal(t, "a***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***", RedactEmail("not-an-email"))
}

func TestRedactPhone(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "***3210", RedactPhone("+91 98765-43210"))
	assert.Equal(t, "***", RedactPhone("12"))
	assert.Equal(t, "***", RedactPhone(""))
}

func TestBuildSheet_RedactsContactColumns(t *testing.T) {
	t.Parallel()

	score := 7.5
	interview := time.Date(2026, 9, 1, 11, 0, 0, 0, time.UTC)
	data, err := BuildSheet([]domain.Candidate{{
		Name: "Jane Doe", Email: "jane@example.com", Phone: "9876543210",
		Role: "Designer", Status: domain.StatusInterviewPending,
		PortfolioScore: &score, CreatedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		InterviewAt: &interview,
	}})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Pipeline")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, sheetHeader, rows[0])

	row := rows[1]
	assert.Equal(t, "Jane Doe", row[0])
	assert.Equal(t, "ja***@example.com", row[1])
	assert.Equal(t, "***3210", row[2])
	assert.Equal(t, "INTERVIEW_PENDING", row[4])
	assert.NotContains(t, row, "jane@example.com")
	assert.NotContains(t, row, "9876543210")
}

func TestExporter_MailsAttachment(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	repo.seed(domain.Candidate{Name: "Jane", Email: "jane@example.com", Status: domain.StatusNew})
	mailer := &fakeMailer{}
	e := NewExporter(repo, mailer, "team@example.com", testLogger())

	require.NoError(t, e.Run(context.Background()))
	sent := mailer.to("team@example.com")
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Opts.Attachments, 1)
	assert.Contains(t, sent[0].Opts.Attachments[0].Filename, ".xlsx")
	assert.NotEmpty(t, sent[0].Opts.Attachments[0].Data)
}

func TestExporter_DisabledWithoutRecipient(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	mailer := &fakeMailer{}
	e := NewExporter(repo, mailer, "", testLogger())
	require.NoError(t, e.Run(context.Background()))
	assert.Empty(t, mailer.sent)
}
