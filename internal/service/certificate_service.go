package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-cert-api/internal/models"
)

// CertificateService finalises courses once every exam has been marked.
type CertificateService struct {
	store     Store
	validator *validator.Validate
	logger    *zap.Logger
	events    EventPublisher
	now       func() time.Time
}

// NewCertificateService constructs a CertificateService.
func NewCertificateService(store Store, validate *validator.Validate, logger *zap.Logger, events EventPublisher) *CertificateService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = noopPublisher{}
	}
	return &CertificateService{store: store, validator: validate, logger: logger, events: events, now: time.Now}
}

// MakeCertificates burns the creator's unsold places, revokes the unit of every
// failing student and points the course metadata at the certificate URI when at
// least one student passed. It is not idempotent: a second run fails on the ledger
// burn and leaves state untouched.
func (s *CertificateService) MakeCertificates(ctx context.Context, caller string, courseID uint64, req models.CertificateRequest) (*models.CertificateResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid certificate payload")
	}
	callerAddr, err := normalizeAddress("caller", caller)
	if err != nil {
		return nil, err
	}

	var (
		result *models.CertificateResult
		events []models.Event
	)
	err = s.store.RunInTx(ctx, func(tx Tx) error {
		events = nil
		if err := requireRole(ctx, tx, models.RoleAdmin, callerAddr); err != nil {
			return err
		}
		course, err := lockCourse(ctx, tx, courseID)
		if err != nil {
			return err
		}
		result = &models.CertificateResult{CourseID: courseID, URI: req.URI, Revoked: []string{}, Certified: []string{}}

		if unsold := course.UnsoldPlaces(); unsold > 0 {
			if err := tx.Ledger().Burn(ctx, course.Creator, courseID, unsold); err != nil {
				return internalError(err, "failed to burn unsold places")
			}
			result.UnsoldBurned = unsold
		}

		records, err := tx.Evaluations().List(ctx, courseID)
		if err != nil {
			return internalError(err, "failed to list evaluations")
		}
		now := s.now().UTC()
		uriChanged := false
		for _, record := range records {
			if !record.Passed() {
				if err := tx.Ledger().Burn(ctx, record.Student, courseID, 1); err != nil {
					return internalError(err, "failed to revoke place")
				}
				result.Revoked = append(result.Revoked, record.Student)
				continue
			}
			course.MetadataURI = req.URI
			uriChanged = true
			result.Certified = append(result.Certified, record.Student)
		}
		if uriChanged {
			course.UpdatedAt = now
			if err := tx.Courses().Save(ctx, course); err != nil {
				return internalError(err, "failed to save course")
			}
		}
		result.PassedStudents = course.PassedCount

		events = append(events, newEvent(models.EventCertificatesFinalized, callerAddr, courseRef(courseID), map[string]interface{}{
			"uri":           req.URI,
			"unsold_burned": result.UnsoldBurned,
			"revoked":       len(result.Revoked),
			"certified":     len(result.Certified),
		}, now))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(ctx, events...)
	s.logger.Info("certificates finalized",
		zap.Uint64("course_id", courseID),
		zap.Uint64("unsold_burned", result.UnsoldBurned),
		zap.Int("revoked", len(result.Revoked)),
		zap.Int("certified", len(result.Certified)),
		zap.String("actor", callerAddr),
	)
	return result, nil
}

// Certificates lists passing students that still hold their unit.
func (s *CertificateService) Certificates(ctx context.Context, courseID uint64) ([]string, error) {
	holders := []string{}
	err := s.store.View(ctx, func(tx Tx) error {
		if _, err := getCourse(ctx, tx, courseID); err != nil {
			return err
		}
		records, err := tx.Evaluations().List(ctx, courseID)
		if err != nil {
			return internalError(err, "failed to list evaluations")
		}
		for _, record := range records {
			if !record.Passed() {
				continue
			}
			balance, err := tx.Ledger().BalanceOf(ctx, record.Student, courseID)
			if err != nil {
				return internalError(err, "failed to load balance")
			}
			if balance == 1 {
				holders = append(holders, record.Student)
			}
		}
		return nil
	})
	return holders, err
}
