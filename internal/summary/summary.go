// Package summary renders the project_info.pdf document placed at the top of
// every notebook folder.
package summary

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// FileName is the Drive name of the generated document.
const FileName = "project_info.pdf"

// MimeType is the content type of the generated document.
const MimeType = "application/pdf"

// Info is the project information printed in the document.
type Info struct {
	ProjectName    string
	Date           string
	Researchers    []string
	UserCohorts    string
	Methodology    string
	AudioFileCount int
}

// Renderer produces summary PDFs.
type Renderer struct {
	now      func() time.Time
	compress bool
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithClock sets the time printed in the footer and the PDF metadata.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

// WithoutCompression leaves page streams readable, which tests rely on.
func WithoutCompression() Option {
	return func(r *Renderer) { r.compress = false }
}

// NewRenderer returns a Renderer.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		now:      func() time.Time { return time.Now().UTC() },
		compress: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render builds the document in memory.
func (r *Renderer) Render(info Info) ([]byte, error) {
	generated := r.now().UTC()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(generated)
	pdf.SetModificationDate(generated)
	pdf.SetTitle("Research Notebook: "+info.ProjectName, true)
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 10, "Research Notebook", "", 1, "C", false, 0, "")
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 16)
	pdf.CellFormat(0, 8, tr(info.ProjectName), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "U", 14)
	pdf.CellFormat(0, 8, "Project Information", "", 1, "L", false, 0, "")
	pdf.Ln(4)

	fields := []struct{ label, value string }{
		{"Goal/Aim of Research:", info.ProjectName},
		{"Date of Research:", info.Date},
		{"Researchers:", strings.Join(info.Researchers, ", ")},
		{"User Cohorts:", info.UserCohorts},
		{"Research Methodology:", info.Methodology},
		{"Number of Audio Files:", strconv.Itoa(info.AudioFileCount)},
	}
	for _, f := range fields {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 6, f.label, "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 12)
		pdf.SetX(pdf.GetX() + 7)
		pdf.MultiCell(0, 6, tr(f.value), "", "L", false)
		pdf.Ln(3)
	}

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Generated on "+generated.Format(time.RFC3339), "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render summary pdf: %w", err)
	}
	return buf.Bytes(), nil
}
