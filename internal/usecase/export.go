package usecase

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hireloop/hireloop/internal/domain"
)

// Exporter builds the privacy-redacted team view: a spreadsheet of the
// pipeline with contact details masked, mailed to the team on every cycle.
type Exporter struct {
	repo domain.CandidateRepository
	mail domain.EmailSender
	to   string
	log  *slog.Logger
}

// NewExporter wires the exporter. An empty recipient disables it.
func NewExporter(repo domain.CandidateRepository, mail domain.EmailSender, to string, log *slog.Logger) *Exporter {
	return &Exporter{repo: repo, mail: mail, to: to, log: log}
}

// Run builds and mails the sheet.
func (e *Exporter) Run(ctx domain.Context) error {
	if e.to == "" {
		return nil
	}
	all, err := e.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("export list: %w", err)
	}

	data, err := BuildSheet(all)
	if err != nil {
		return fmt.Errorf("export build: %w", err)
	}

	name := fmt.Sprintf("pipeline-%s.xlsx", time.Now().Format("2006-01-02"))
	opts := domain.EmailOptions{Attachments: []domain.Attachment{{
		Filename: name,
		MIME:     "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Data:     data,
	}}}
	body := fmt.Sprintf("Pipeline snapshot attached (%d candidates).", len(all))
	if err := e.mail.Send(ctx, e.to, "Pipeline snapshot", body, opts); err != nil {
		return fmt.Errorf("export mail: %w", err)
	}
	return nil
}

var sheetHeader = []string{"Name", "Email", "Phone", "Role", "Status", "Score", "Applied", "Interview"}

// BuildSheet renders candidates into an xlsx with contact fields redacted.
func BuildSheet(all []domain.Candidate) ([]byte, error) {
	f := excelize.NewFile()
	const sheet = "Pipeline"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("new sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}

	for col, h := range sheetHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("header cell: %w", err)
		}
	}

	for i, c := range all {
		row := []any{
			c.Name,
			RedactEmail(c.Email),
			RedactPhone(c.Phone),
			c.Role,
			string(c.Status),
			scoreCell(c.PortfolioScore),
			c.CreatedAt.Format("2006-01-02"),
			interviewCell(c.InterviewAt),
		}
		for col, v := range row {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("row cell: %w", err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write sheet: %w", err)
	}
	return buf.Bytes(), nil
}

// RedactEmail keeps the first two characters and the domain.
func RedactEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	local := email[:at]
	if len(local) <= 2 {
		return local[:1] + "***" + email[at:]
	}
	return local[:2] + "***" + email[at:]
}

// RedactPhone keeps only the last four digits.
func RedactPhone(phone string) string {
	var digits []rune
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return "***"
	}
	return "***" + string(digits[len(digits)-4:])
}

func scoreCell(score *float64) any {
	if score == nil {
		return ""
	}
	return *score
}

func interviewCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
