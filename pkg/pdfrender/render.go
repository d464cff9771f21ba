package pdfrender

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// Document is the content of one rendered correction.
type Document struct {
	TopicTitle     string
	StudentName    string
	StudentEmail   string
	Score          int
	MaxScore       int
	Feedback       string
	CorrectionText string
	ModelName      string
	GeneratedAt    time.Time
	UpdatedAt      time.Time
}

// Render writes doc as an A4 PDF and returns its bytes.
func Render(doc Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(doc.TopicTitle, true)
	pdf.SetCreator("autoeval", true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 9, tr(fallback(doc.TopicTitle, "Correction")), "", "L", false)
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 11)
	student := strings.TrimSpace(doc.StudentName)
	if email := strings.TrimSpace(doc.StudentEmail); email != "" {
		student = strings.TrimSpace(student + " <" + email + ">")
	}
	if student != "" {
		pdf.MultiCell(0, 6, tr("Student: "+student), "", "L", false)
	}

	maxScore := doc.MaxScore
	if maxScore <= 0 {
		maxScore = 20
	}
	pdf.SetFont("Helvetica", "B", 14)
	pdf.MultiCell(0, 8, fmt.Sprintf("Score: %d / %d", doc.Score, maxScore), "", "L", false)
	pdf.Ln(4)

	section(pdf, tr, "Feedback", doc.Feedback)
	section(pdf, tr, "Corrected answer", doc.CorrectionText)

	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(110, 110, 110)
	meta := []string{}
	if doc.ModelName != "" {
		meta = append(meta, "Model: "+doc.ModelName)
	}
	if !doc.GeneratedAt.IsZero() {
		meta = append(meta, "Generated: "+doc.GeneratedAt.UTC().Format(time.RFC3339))
	}
	if !doc.UpdatedAt.IsZero() && !doc.UpdatedAt.Equal(doc.GeneratedAt) {
		meta = append(meta, "Updated: "+doc.UpdatedAt.UTC().Format(time.RFC3339))
	}
	if len(meta) > 0 {
		pdf.MultiCell(0, 5, tr(strings.Join(meta, "  |  ")), "", "L", false)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render correction pdf: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write correction pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func section(pdf *fpdf.Fpdf, tr func(string) string, heading, body string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.MultiCell(0, 7, tr(heading), "B", "L", false)
	pdf.Ln(1)
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 5.5, tr(fallback(body, "-")), "", "L", false)
	pdf.Ln(4)
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
