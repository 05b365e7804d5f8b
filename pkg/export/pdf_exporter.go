package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Field is a labelled value printed above the tables of a document.
type Field struct {
	Label string
	Value string
}

// Section is a titled table inside a document.
type Section struct {
	Heading string
	Data    Dataset
}

// Document describes a printable report.
type Document struct {
	Title    string
	Fields   []Field
	Sections []Section
}

// PDFExporter renders documents into A4 PDFs.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render lays out the title, the field block and every section table.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if doc.Title == "" && len(doc.Sections) == 0 {
		return nil, fmt.Errorf("pdf requires a title or at least one section")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, doc.Title, "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	for _, f := range doc.Fields {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(45, 6, f.Label, "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, f.Value, "", 1, "", false, 0, "")
	}

	for _, s := range doc.Sections {
		if len(s.Data.Headers) == 0 {
			continue
		}
		pdf.Ln(4)
		if s.Heading != "" {
			pdf.SetFont("Arial", "B", 11)
			pdf.CellFormat(0, 8, s.Heading, "", 1, "", false, 0, "")
		}
		writeTable(pdf, s.Data)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(pdf *gofpdf.Fpdf, data Dataset) {
	colWidth := 190.0 / float64(len(data.Headers))

	pdf.SetFont("Arial", "B", 9)
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 7, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for i := range data.Headers {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			pdf.CellFormat(colWidth, 6, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
}
