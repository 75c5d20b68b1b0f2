package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfMarginMM = 10.0
	pdfRowMM    = 7.0
)

// PDFExporter renders datasets into a paginated table with an optional summary preamble.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render lays the table out in landscape when it has more than four columns and
// repeats the header row on every page.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	orientation := "P"
	if len(data.Headers) > 4 {
		orientation = "L"
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(pdfMarginMM, 15, pdfMarginMM)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 7)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
		pdf.Ln(4)
	}
	if len(data.Summary) > 0 {
		pdf.SetFont("Arial", "", 10)
		for _, line := range data.Summary {
			pdf.CellFormat(0, 6, line, "", 1, "L", false, 0, "")
		}
		pdf.Ln(4)
	}

	pageW, pageH := pdf.GetPageSize()
	widths := columnWidths(data, pageW-2*pdfMarginMM)
	header := func() {
		pdf.SetFont("Arial", "B", 8)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range data.Headers {
			pdf.CellFormat(widths[i], 8, h, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 7)
	}
	header()

	for _, row := range data.Rows {
		if pdf.GetY()+pdfRowMM > pageH-20 {
			pdf.AddPage()
			header()
		}
		for i, h := range data.Headers {
			pdf.CellFormat(widths[i], pdfRowMM, row[h], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(data Dataset, usable float64) []float64 {
	weights := make([]float64, len(data.Headers))
	var total float64
	for i, h := range data.Headers {
		w := data.Widths[h]
		if w <= 0 {
			w = 1
		}
		weights[i] = w
		total += w
	}
	for i := range weights {
		weights[i] = usable * weights[i] / total
	}
	return weights
}
