package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-cert-api/internal/models"
	appErrors "github.com/noah-isme/course-cert-api/pkg/errors"
)

// EnrollmentService sells course places and delivers units to enrolled students.
type EnrollmentService struct {
	store     Store
	validator *validator.Validate
	logger    *zap.Logger
	events    EventPublisher
	now       func() time.Time
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(store Store, validate *validator.Validate, logger *zap.Logger, events EventPublisher) *EnrollmentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = noopPublisher{}
	}
	return &EnrollmentService{store: store, validator: validate, logger: logger, events: events, now: time.Now}
}

// BuyPlace enrolls the caller in a course. The paid value is kept in full by the
// treasury; no unit changes hands until TransferPlace.
func (s *EnrollmentService) BuyPlace(ctx context.Context, caller string, courseID uint64, req models.EnrollmentRequest) (*models.Enrollment, error) {
	if err := checkAmount("value", req.Value); err != nil {
		return nil, err
	}
	callerAddr, err := normalizeAddress("caller", caller)
	if err != nil {
		return nil, err
	}

	var events []models.Event
	err = s.store.RunInTx(ctx, func(tx Tx) error {
		events = nil
		course, err := lockCourse(ctx, tx, courseID)
		if err != nil {
			return err
		}
		// A repeat purchase is rejected whatever it pays.
		enrolled, err := tx.Enrollments().IsEnrolled(ctx, courseID, callerAddr)
		if err != nil {
			return internalError(err, "failed to check enrollment")
		}
		if enrolled {
			return appErrors.Clone(appErrors.ErrAlreadyEnrolled, "").WithDetails("course_id", courseID, "student", callerAddr)
		}
		if req.Value < course.FeePerPlace {
			return appErrors.Clone(appErrors.ErrInsufficientFee, "").WithDetails(
				"course_id", courseID,
				"paid", req.Value,
				"fee", course.FeePerPlace,
			)
		}
		evaluators, err := tx.Courses().Evaluators(ctx, courseID)
		if err != nil {
			return internalError(err, "failed to list evaluators")
		}
		if len(evaluators) == 0 {
			return appErrors.Clone(appErrors.ErrNoEvaluatorAssigned, "").WithDetails("course_id", courseID)
		}
		for _, evaluator := range evaluators {
			if evaluator == callerAddr {
				return appErrors.Clone(appErrors.ErrEvaluatorCannotEnroll, "").WithDetails("course_id", courseID, "student", callerAddr)
			}
		}
		if course.PlacesPurchased >= course.TotalPlaces {
			return appErrors.Clone(appErrors.ErrNoPlacesAvailable, "").WithDetails(
				"course_id", courseID,
				"total_places", course.TotalPlaces,
				"places_purchased", course.PlacesPurchased,
			)
		}

		balance, err := tx.Treasury().Balance(ctx)
		if err != nil {
			return internalError(err, "failed to load treasury")
		}
		if req.Value > models.AmountSentinel-1-balance {
			return appErrors.Clone(appErrors.ErrAmountTooLarge, "treasury balance would overflow").WithDetails("value", req.Value, "balance", balance)
		}

		now := s.now().UTC()
		if err := tx.Enrollments().Enroll(ctx, courseID, callerAddr); err != nil {
			return internalError(err, "failed to enroll student")
		}
		course.PlacesPurchased++
		course.UpdatedAt = now
		if err := tx.Courses().Save(ctx, course); err != nil {
			return internalError(err, "failed to save course")
		}
		if req.Value > 0 {
			if err := tx.Treasury().Credit(ctx, req.Value); err != nil {
				return internalError(err, "failed to credit treasury")
			}
		}
		events = append(events, newEvent(models.EventEnrollmentCreated, callerAddr, courseRef(courseID), map[string]interface{}{
			"student":          callerAddr,
			"paid":             req.Value,
			"places_purchased": course.PlacesPurchased,
		}, now))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(ctx, events...)
	s.logger.Info("place purchased",
		zap.Uint64("course_id", courseID),
		zap.String("student", callerAddr),
		zap.Uint64("paid", req.Value),
	)
	return &models.Enrollment{CourseID: courseID, Student: callerAddr, Paid: req.Value}, nil
}

// TransferPlace moves one unit from the course creator to an enrolled student.
func (s *EnrollmentService) TransferPlace(ctx context.Context, caller string, courseID uint64, req models.TransferRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid transfer payload")
	}
	callerAddr, err := normalizeAddress("caller", caller)
	if err != nil {
		return err
	}
	studentAddr, err := normalizeAddress("student", req.Student)
	if err != nil {
		return err
	}

	var events []models.Event
	err = s.store.RunInTx(ctx, func(tx Tx) error {
		events = nil
		if err := requireRole(ctx, tx, models.RoleAdmin, callerAddr); err != nil {
			return err
		}
		enrolled, err := tx.Enrollments().IsEnrolled(ctx, courseID, studentAddr)
		if err != nil {
			return internalError(err, "failed to check enrollment")
		}
		if !enrolled {
			return appErrors.Clone(appErrors.ErrCourseNotRegisteredForUser, "").WithDetails("course_id", courseID, "student", studentAddr)
		}
		course, err := lockCourse(ctx, tx, courseID)
		if err != nil {
			return err
		}
		if err := tx.Ledger().Transfer(ctx, course.Creator, studentAddr, courseID, 1); err != nil {
			return internalError(err, "failed to transfer place")
		}
		events = append(events, newEvent(models.EventPlaceTransferred, callerAddr, courseRef(courseID), map[string]interface{}{
			"from": course.Creator,
			"to":   studentAddr,
		}, s.now()))
		return nil
	})
	if err != nil {
		return err
	}

	s.events.Publish(ctx, events...)
	s.logger.Info("place transferred",
		zap.Uint64("course_id", courseID),
		zap.String("student", studentAddr),
		zap.String("actor", callerAddr),
	)
	return nil
}

// SetApprovalForAll records an operator approval for the caller's units.
func (s *EnrollmentService) SetApprovalForAll(ctx context.Context, caller string, req models.ApprovalRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid approval payload")
	}
	callerAddr, err := normalizeAddress("caller", caller)
	if err != nil {
		return err
	}
	operatorAddr, err := normalizeAddress("operator", req.Operator)
	if err != nil {
		return err
	}
	if operatorAddr == callerAddr {
		return appErrors.Clone(appErrors.ErrValidation, "cannot set approval status for self")
	}
	err = s.store.RunInTx(ctx, func(tx Tx) error {
		if err := tx.Ledger().SetApprovalForAll(ctx, callerAddr, operatorAddr, req.Approved); err != nil {
			return internalError(err, "failed to store approval")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("operator approval updated",
		zap.String("owner", callerAddr),
		zap.String("operator", operatorAddr),
		zap.Bool("approved", req.Approved),
	)
	return nil
}

// IsApprovedForAll reports whether operator may act on owner's units.
func (s *EnrollmentService) IsApprovedForAll(ctx context.Context, owner, operator string) (bool, error) {
	ownerAddr, err := normalizeAddress("owner", owner)
	if err != nil {
		return false, err
	}
	operatorAddr, err := normalizeAddress("operator", operator)
	if err != nil {
		return false, err
	}
	var approved bool
	err = s.store.View(ctx, func(tx Tx) error {
		var err error
		approved, err = tx.Ledger().IsApprovedForAll(ctx, ownerAddr, operatorAddr)
		if err != nil {
			return internalError(err, "failed to load approval")
		}
		return nil
	})
	return approved, err
}

// CoursesOf lists the courses an account enrolled in, in enrollment order.
func (s *EnrollmentService) CoursesOf(ctx context.Context, account string) ([]uint64, error) {
	accountAddr, err := normalizeAddress("account", account)
	if err != nil {
		return nil, err
	}
	var courses []uint64
	err = s.store.View(ctx, func(tx Tx) error {
		var err error
		courses, err = tx.Enrollments().CoursesOf(ctx, accountAddr)
		if err != nil {
			return internalError(err, "failed to list courses")
		}
		return nil
	})
	if courses == nil {
		courses = []uint64{}
	}
	return courses, err
}

// BalanceOf returns the ledger balance of an account for a course.
func (s *EnrollmentService) BalanceOf(ctx context.Context, account string, courseID uint64) (*models.Balance, error) {
	accountAddr, err := normalizeAddress("account", account)
	if err != nil {
		return nil, err
	}
	var quantity uint64
	err = s.store.View(ctx, func(tx Tx) error {
		var err error
		quantity, err = tx.Ledger().BalanceOf(ctx, accountAddr, courseID)
		if err != nil {
			return internalError(err, "failed to load balance")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &models.Balance{Owner: accountAddr, CourseID: courseID, Quantity: quantity}, nil
}
