package models

// ReportFormat enumerates rendered report formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportFile is a rendered course results report.
type ReportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}
