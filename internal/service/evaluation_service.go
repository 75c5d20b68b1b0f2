package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-cert-api/internal/models"
	appErrors "github.com/noah-isme/course-cert-api/pkg/errors"
)

// EvaluationService records exam marks and answers result queries.
type EvaluationService struct {
	store     Store
	validator *validator.Validate
	logger    *zap.Logger
	events    EventPublisher
	cache     *CacheService
	cacheTTL  time.Duration
	now       func() time.Time
}

// NewEvaluationService constructs an EvaluationService.
func NewEvaluationService(store Store, validate *validator.Validate, logger *zap.Logger, events EventPublisher, cache *CacheService, cacheTTL time.Duration) *EvaluationService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = noopPublisher{}
	}
	return &EvaluationService{store: store, validator: validate, logger: logger, events: events, cache: cache, cacheTTL: cacheTTL, now: time.Now}
}

// Evaluate records the caller's mark for a student. A student is evaluated at most
// once per course and the first record is never overwritten.
func (s *EvaluationService) Evaluate(ctx context.Context, caller string, courseID uint64, req models.EvaluateRequest) (*models.EvaluationRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid evaluation payload")
	}
	callerAddr, err := normalizeAddress("caller", caller)
	if err != nil {
		return nil, err
	}
	studentAddr, err := normalizeAddress("student", req.Student)
	if err != nil {
		return nil, err
	}

	var (
		record *models.EvaluationRecord
		events []models.Event
	)
	err = s.store.RunInTx(ctx, func(tx Tx) error {
		events = nil
		if err := requireRole(ctx, tx, models.RoleEvaluator, callerAddr); err != nil {
			return err
		}
		if req.Mark < models.MinMark || req.Mark > models.MaxMark {
			return appErrors.Clone(appErrors.ErrMarkOutOfRange, "").WithDetails("mark", req.Mark)
		}
		course, err := lockCourse(ctx, tx, courseID)
		if err != nil {
			return err
		}
		assigned, err := tx.Courses().IsEvaluator(ctx, courseID, callerAddr)
		if err != nil {
			return internalError(err, "failed to check evaluator")
		}
		if !assigned {
			return appErrors.Clone(appErrors.ErrEvaluatorNotAssignedToCourse, "").WithDetails("course_id", courseID, "evaluator", callerAddr)
		}
		studentIsEvaluator, err := tx.Courses().IsEvaluator(ctx, courseID, studentAddr)
		if err != nil {
			return internalError(err, "failed to check evaluator")
		}
		if studentIsEvaluator {
			return appErrors.Clone(appErrors.ErrStudentCannotBeEvaluator, "").WithDetails("course_id", courseID, "student", studentAddr)
		}
		enrolled, err := tx.Enrollments().IsEnrolled(ctx, courseID, studentAddr)
		if err != nil {
			return internalError(err, "failed to check enrollment")
		}
		if !enrolled {
			return appErrors.Clone(appErrors.ErrStudentNotEnrolled, "").WithDetails("course_id", courseID, "student", studentAddr)
		}
		records, err := tx.Evaluations().List(ctx, courseID)
		if err != nil {
			return internalError(err, "failed to list evaluations")
		}
		if evaluated(records, studentAddr) {
			return appErrors.Clone(appErrors.ErrStudentAlreadyEvaluated, "").WithDetails("course_id", courseID, "student", studentAddr)
		}
		balance, err := tx.Ledger().BalanceOf(ctx, studentAddr, courseID)
		if err != nil {
			return internalError(err, "failed to load balance")
		}
		if balance != 1 {
			return appErrors.Clone(appErrors.ErrWrongUnitBalance, "").WithDetails("course_id", courseID, "student", studentAddr, "balance", balance)
		}
		courses, err := tx.Enrollments().CoursesOf(ctx, studentAddr)
		if err != nil {
			return internalError(err, "failed to list student courses")
		}
		if len(courses) == 0 {
			return appErrors.Clone(appErrors.ErrNoCourseRegisteredForUser, "").WithDetails("student", studentAddr)
		}

		now := s.now().UTC()
		record = &models.EvaluationRecord{
			CourseID:  courseID,
			Student:   studentAddr,
			Evaluator: callerAddr,
			Mark:      uint8(req.Mark),
			Timestamp: now,
		}
		if err := tx.Evaluations().Append(ctx, record); err != nil {
			return internalError(err, "failed to record evaluation")
		}
		if record.Passed() {
			course.PassedCount++
			course.UpdatedAt = now
			if err := tx.Courses().Save(ctx, course); err != nil {
				return internalError(err, "failed to save course")
			}
		}
		events = append(events, newEvent(models.EventEvaluationRecorded, callerAddr, courseRef(courseID), map[string]interface{}{
			"student": studentAddr,
			"mark":    req.Mark,
			"passed":  record.Passed(),
		}, now))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(ctx, events...)
	s.logger.Info("evaluation recorded",
		zap.Uint64("course_id", courseID),
		zap.String("student", studentAddr),
		zap.Int("mark", req.Mark),
		zap.String("actor", callerAddr),
	)
	return record, nil
}

// IsStudentEvaluated reports whether a student already has a record for the course.
func (s *EvaluationService) IsStudentEvaluated(ctx context.Context, courseID uint64, student string) (bool, error) {
	studentAddr, err := normalizeAddress("student", student)
	if err != nil {
		return false, err
	}
	var found bool
	err = s.store.View(ctx, func(tx Tx) error {
		records, err := tx.Evaluations().List(ctx, courseID)
		if err != nil {
			return internalError(err, "failed to list evaluations")
		}
		found = evaluated(records, studentAddr)
		return nil
	})
	return found, err
}

// Evaluations lists the course's records in insertion order.
func (s *EvaluationService) Evaluations(ctx context.Context, courseID uint64) ([]models.EvaluationRecord, error) {
	var records []models.EvaluationRecord
	err := s.store.View(ctx, func(tx Tx) error {
		if _, err := getCourse(ctx, tx, courseID); err != nil {
			return err
		}
		var err error
		records, err = tx.Evaluations().List(ctx, courseID)
		if err != nil {
			return internalError(err, "failed to list evaluations")
		}
		return nil
	})
	if records == nil {
		records = []models.EvaluationRecord{}
	}
	return records, err
}

// Results partitions evaluated students into passed and failed in a single pass and
// indicates cache utilisation.
func (s *EvaluationService) Results(ctx context.Context, courseID uint64) (*models.CourseResults, bool, error) {
	return cachedView(ctx, s.cache, courseID, viewResults, s.cacheTTL, func() (*models.CourseResults, error) {
		results := models.CourseResults{CourseID: courseID, Passed: []string{}, Failed: []string{}}
		err := s.store.View(ctx, func(tx Tx) error {
			course, err := getCourse(ctx, tx, courseID)
			if err != nil {
				return err
			}
			records, err := tx.Evaluations().List(ctx, courseID)
			if err != nil {
				return internalError(err, "failed to list evaluations")
			}
			for _, record := range records {
				if record.Passed() {
					results.Passed = append(results.Passed, record.Student)
				} else {
					results.Failed = append(results.Failed, record.Student)
				}
			}
			results.PassedCount = course.PassedCount
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &results, nil
	})
}

// PassedStudents returns the number of passing evaluations recorded for a course.
func (s *EvaluationService) PassedStudents(ctx context.Context, courseID uint64) (uint64, error) {
	var passed uint64
	err := s.store.View(ctx, func(tx Tx) error {
		course, err := getCourse(ctx, tx, courseID)
		if err != nil {
			return err
		}
		passed = course.PassedCount
		return nil
	})
	return passed, err
}

func evaluated(records []models.EvaluationRecord, student string) bool {
	for _, record := range records {
		if record.Student == student {
			return true
		}
	}
	return false
}
