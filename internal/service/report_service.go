package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-cert-api/internal/models"
	appErrors "github.com/noah-isme/course-cert-api/pkg/errors"
	"github.com/noah-isme/course-cert-api/pkg/export"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

var reportHeaders = []string{"Student", "Evaluator", "Mark", "Outcome", "Evaluated At", "Units Held"}

// ReportService renders course results for admins and the course's evaluators.
type ReportService struct {
	store  Store
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
}

// NewReportService constructs a ReportService.
func NewReportService(store Store, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ReportService{store: store, csv: csv, pdf: pdf, logger: logger}
}

// CourseReport renders the evaluation records of a course in the requested format.
func (s *ReportService) CourseReport(ctx context.Context, caller string, courseID uint64, format models.ReportFormat) (*models.ReportFile, error) {
	format = models.ReportFormat(strings.ToLower(string(format)))
	if format == "" {
		format = models.ReportFormatCSV
	}
	if format != models.ReportFormatCSV && format != models.ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format").WithDetails("format", string(format))
	}
	callerAddr, err := normalizeAddress("caller", caller)
	if err != nil {
		return nil, err
	}

	var dataset export.Dataset
	err = s.store.View(ctx, func(tx Tx) error {
		if err := s.authorize(ctx, tx, callerAddr, courseID); err != nil {
			return err
		}
		course, err := getCourse(ctx, tx, courseID)
		if err != nil {
			return err
		}
		records, err := tx.Evaluations().List(ctx, courseID)
		if err != nil {
			return internalError(err, "failed to list evaluations")
		}
		dataset, err = buildReportDataset(ctx, tx, course, records)
		return err
	})
	if err != nil {
		return nil, err
	}

	var content []byte
	contentType := "text/csv"
	switch format {
	case models.ReportFormatPDF:
		content, err = s.pdf.Render(dataset, fmt.Sprintf("Course %d results", courseID))
		contentType = "application/pdf"
	default:
		content, err = s.csv.Render(dataset)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	s.logger.Info("course report rendered",
		zap.Uint64("course_id", courseID),
		zap.String("format", string(format)),
		zap.Int("rows", len(dataset.Rows)),
		zap.String("actor", callerAddr),
	)
	return &models.ReportFile{
		Filename:    fmt.Sprintf("course-%d-results.%s", courseID, format),
		ContentType: contentType,
		Content:     content,
	}, nil
}

func (s *ReportService) authorize(ctx context.Context, tx Tx, caller string, courseID uint64) error {
	isAdmin, err := tx.Roles().HasRole(ctx, models.RoleAdmin, caller)
	if err != nil {
		return internalError(err, "failed to check role")
	}
	if isAdmin {
		return nil
	}
	assigned, err := tx.Courses().IsEvaluator(ctx, courseID, caller)
	if err != nil {
		return internalError(err, "failed to check evaluator")
	}
	if !assigned {
		return appErrors.Clone(appErrors.ErrRoleRequired, "").WithDetails("role", string(models.RoleAdmin), "account", caller)
	}
	return nil
}

func buildReportDataset(ctx context.Context, tx Tx, course *models.Course, records []models.EvaluationRecord) (export.Dataset, error) {
	dataset := export.Dataset{
		Headers: reportHeaders,
		Widths:  map[string]float64{"Student": 3, "Evaluator": 3, "Evaluated At": 1.6},
		Summary: []string{
			fmt.Sprintf("Metadata URI: %s", course.MetadataURI),
			fmt.Sprintf("Places: %d sold of %d", course.PlacesPurchased, course.TotalPlaces),
			fmt.Sprintf("Passed: %d of %d evaluated", course.PassedCount, len(records)),
		},
	}
	for _, record := range records {
		held, err := tx.Ledger().BalanceOf(ctx, record.Student, course.ID)
		if err != nil {
			return export.Dataset{}, internalError(err, "failed to load balance")
		}
		outcome := "FAILED"
		if record.Passed() {
			outcome = "PASSED"
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":      record.Student,
			"Evaluator":    record.Evaluator,
			"Mark":         strconv.Itoa(int(record.Mark)),
			"Outcome":      outcome,
			"Evaluated At": record.Timestamp.UTC().Format(time.RFC3339),
			"Units Held":   strconv.FormatUint(held, 10),
		})
	}
	return dataset, nil
}
