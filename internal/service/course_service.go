package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-cert-api/internal/models"
	appErrors "github.com/noah-isme/course-cert-api/pkg/errors"
)

// Default course quotas used when none are configured.
const (
	DefaultMaxEvaluatorsPerCourse uint64 = 5
	DefaultMaxPlacesPerCourse     uint64 = 100
)

// CourseConfig carries the configured defaults for course administration.
type CourseConfig struct {
	Limits        models.Limits
	ContractURI   string
	BaseCourseFee uint64
	CacheTTL      time.Duration
}

// CourseService manages course inventory, evaluator assignment and metadata.
type CourseService struct {
	store     Store
	validator *validator.Validate
	logger    *zap.Logger
	events    EventPublisher
	cache     *CacheService
	cfg       CourseConfig
	now       func() time.Time
}

// NewCourseService constructs a CourseService.
func NewCourseService(store Store, validate *validator.Validate, logger *zap.Logger, events EventPublisher, cache *CacheService, cfg CourseConfig) *CourseService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = noopPublisher{}
	}
	if cfg.Limits.MaxEvaluatorsPerCourse == 0 {
		cfg.Limits.MaxEvaluatorsPerCourse = DefaultMaxEvaluatorsPerCourse
	}
	if cfg.Limits.MaxPlacesPerCourse == 0 {
		cfg.Limits.MaxPlacesPerCourse = DefaultMaxPlacesPerCourse
	}
	return &CourseService{store: store, validator: validate, logger: logger, events: events, cache: cache, cfg: cfg, now: time.Now}
}

// CreateCourse creates a course or adds supply to it. The first caller becomes the
// creator; fee and uri are overwritten on every call and the supply is minted to the
// creator.
func (s *CourseService) CreateCourse(ctx context.Context, caller string, req models.CreateCourseRequest) (*models.Course, error) {
	if err := checkAmount("id", req.ID); err != nil {
		return nil, err
	}
	if err := checkAmount("initial_supply", req.InitialSupply); err != nil {
		return nil, err
	}
	if err := checkAmount("fee", req.Fee); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid course payload")
	}
	callerAddr, err := normalizeAddress("caller", caller)
	if err != nil {
		return nil, err
	}

	var (
		result *models.Course
		events []models.Event
	)
	err = s.store.RunInTx(ctx, func(tx Tx) error {
		events = nil
		if err := requireRole(ctx, tx, models.RoleAdmin, callerAddr); err != nil {
			return err
		}
		limits, err := currentLimits(ctx, tx, s.cfg.Limits)
		if err != nil {
			return err
		}

		course, err := tx.Courses().Lock(ctx, req.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return internalError(err, "failed to load course")
		}
		now := s.now().UTC()
		if course == nil {
			course = &models.Course{ID: req.ID}
		}
		if course.TotalPlaces+req.InitialSupply > limits.MaxPlacesPerCourse {
			return appErrors.Clone(appErrors.ErrMaxPlacesReached, "").WithDetails(
				"course_id", req.ID,
				"requested", req.InitialSupply,
				"total_places", course.TotalPlaces,
				"max_places", limits.MaxPlacesPerCourse,
			)
		}
		if !course.Exists() {
			course.Creator = callerAddr
			course.CreatedAt = now
		}
		course.FeePerPlace = req.Fee
		course.MetadataURI = req.URI
		course.TotalPlaces += req.InitialSupply
		course.UpdatedAt = now

		if err := tx.Courses().Save(ctx, course); err != nil {
			return internalError(err, "failed to save course")
		}
		if err := tx.Ledger().Mint(ctx, course.Creator, course.ID, req.InitialSupply); err != nil {
			return internalError(err, "failed to mint places")
		}

		result = course
		events = append(events, newEvent(models.EventCourseCreated, callerAddr, courseRef(course.ID), map[string]interface{}{
			"initial_supply": req.InitialSupply,
			"total_places":   course.TotalPlaces,
			"fee":            course.FeePerPlace,
			"uri":            course.MetadataURI,
		}, now))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(ctx, events...)
	s.logger.Info("course created",
		zap.Uint64("course_id", result.ID),
		zap.Uint64("initial_supply", req.InitialSupply),
		zap.Uint64("total_places", result.TotalPlaces),
		zap.String("actor", callerAddr),
	)
	return result, nil
}

// RemovePlaces burns unsold places from an owner and shrinks the course supply.
func (s *CourseService) RemovePlaces(ctx context.Context, caller string, courseID uint64, req models.RemovePlacesRequest) (*models.Course, error) {
	if err := checkAmount("quantity", req.Quantity); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid remove places payload")
	}
	callerAddr, err := normalizeAddress("caller", caller)
	if err != nil {
		return nil, err
	}
	fromAddr, err := normalizeAddress("from", req.From)
	if err != nil {
		return nil, err
	}

	var (
		result *models.Course
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
		// Only unsold places can be removed so placesPurchased never exceeds totalPlaces.
		available := course.UnsoldPlaces()
		if req.Quantity > available {
			return appErrors.Clone(appErrors.ErrTooManyPlaces, "").WithDetails(
				"course_id", courseID,
				"requested", req.Quantity,
				"available", available,
			)
		}
		now := s.now().UTC()
		course.TotalPlaces -= req.Quantity
		course.UpdatedAt = now
		if err := tx.Courses().Save(ctx, course); err != nil {
			return internalError(err, "failed to save course")
		}
		if err := tx.Ledger().Burn(ctx, fromAddr, courseID, req.Quantity); err != nil {
			return internalError(err, "failed to burn places")
		}
		result = course
		events = append(events, newEvent(models.EventCoursePlacesRemoved, callerAddr, courseRef(courseID), map[string]interface{}{
			"from":         fromAddr,
			"quantity":     req.Quantity,
			"total_places": course.TotalPlaces,
		}, now))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(ctx, events...)
	s.logger.Info("course places removed",
		zap.Uint64("course_id", courseID),
		zap.Uint64("quantity", req.Quantity),
		zap.String("from", fromAddr),
		zap.String("actor", callerAddr),
	)
	return result, nil
}

// SetUpEvaluator assigns an evaluator to a course and grants the global role.
func (s *CourseService) SetUpEvaluator(ctx context.Context, caller string, courseID uint64, evaluator string) error {
	callerAddr, err := normalizeAddress("caller", caller)
	if err != nil {
		return err
	}
	evaluatorAddr, err := normalizeAddress("evaluator", evaluator)
	if err != nil {
		return err
	}

	var events []models.Event
	err = s.store.RunInTx(ctx, func(tx Tx) error {
		events = nil
		if err := requireRole(ctx, tx, models.RoleAdmin, callerAddr); err != nil {
			return err
		}
		if _, err := lockCourse(ctx, tx, courseID); err != nil {
			return err
		}
		assigned, err := tx.Courses().IsEvaluator(ctx, courseID, evaluatorAddr)
		if err != nil {
			return internalError(err, "failed to check evaluator")
		}
		if assigned {
			return appErrors.Clone(appErrors.ErrEvaluatorAlreadyAssigned, "").WithDetails("course_id", courseID, "evaluator", evaluatorAddr)
		}
		limits, err := currentLimits(ctx, tx, s.cfg.Limits)
		if err != nil {
			return err
		}
		evaluators, err := tx.Courses().Evaluators(ctx, courseID)
		if err != nil {
			return internalError(err, "failed to list evaluators")
		}
		// At most max-1 evaluators fit on a course.
		if uint64(len(evaluators))+1 > limits.MaxEvaluatorsPerCourse-1 {
			return appErrors.Clone(appErrors.ErrTooManyEvaluators, "").WithDetails(
				"course_id", courseID,
				"assigned", len(evaluators),
				"max_evaluators", limits.MaxEvaluatorsPerCourse,
			)
		}
		enrolled, err := tx.Enrollments().IsEnrolled(ctx, courseID, evaluatorAddr)
		if err != nil {
			return internalError(err, "failed to check enrollment")
		}
		if enrolled {
			return appErrors.Clone(appErrors.ErrStudentCannotBeEvaluator, "").WithDetails("course_id", courseID, "evaluator", evaluatorAddr)
		}
		if err := tx.Courses().AddEvaluator(ctx, courseID, evaluatorAddr); err != nil {
			return internalError(err, "failed to add evaluator")
		}
		if _, err := tx.Roles().Grant(ctx, models.RoleEvaluator, evaluatorAddr); err != nil {
			return internalError(err, "failed to grant evaluator role")
		}
		events = append(events, newEvent(models.EventEvaluatorAssigned, callerAddr, courseRef(courseID), map[string]interface{}{
			"evaluator": evaluatorAddr,
		}, s.now()))
		return nil
	})
	if err != nil {
		return err
	}

	s.events.Publish(ctx, events...)
	s.logger.Info("evaluator assigned",
		zap.Uint64("course_id", courseID),
		zap.String("evaluator", evaluatorAddr),
		zap.String("actor", callerAddr),
	)
	return nil
}

// RemoveEvaluator unassigns an evaluator and revokes the global Evaluator role.
func (s *CourseService) RemoveEvaluator(ctx context.Context, caller string, courseID uint64, evaluator string) error {
	callerAddr, err := normalizeAddress("caller", caller)
	if err != nil {
		return err
	}
	evaluatorAddr, err := normalizeAddress("evaluator", evaluator)
	if err != nil {
		return err
	}

	var events []models.Event
	err = s.store.RunInTx(ctx, func(tx Tx) error {
		events = nil
		if err := requireRole(ctx, tx, models.RoleAdmin, callerAddr); err != nil {
			return err
		}
		if _, err := tx.Courses().Lock(ctx, courseID); err != nil && !errors.Is(err, ErrNotFound) {
			return internalError(err, "failed to load course")
		}
		assigned, err := tx.Courses().IsEvaluator(ctx, courseID, evaluatorAddr)
		if err != nil {
			return internalError(err, "failed to check evaluator")
		}
		if !assigned {
			return appErrors.Clone(appErrors.ErrEvaluatorNotAssigned, "").WithDetails("course_id", courseID, "evaluator", evaluatorAddr)
		}
		if err := tx.Courses().RemoveEvaluator(ctx, courseID, evaluatorAddr); err != nil {
			return internalError(err, "failed to remove evaluator")
		}
		if _, err := tx.Roles().Revoke(ctx, models.RoleEvaluator, evaluatorAddr); err != nil {
			return internalError(err, "failed to revoke evaluator role")
		}
		events = append(events, newEvent(models.EventEvaluatorRemoved, callerAddr, courseRef(courseID), map[string]interface{}{
			"evaluator": evaluatorAddr,
		}, s.now()))
		return nil
	})
	if err != nil {
		return err
	}

	s.events.Publish(ctx, events...)
	s.logger.Info("evaluator removed",
		zap.Uint64("course_id", courseID),
		zap.String("evaluator", evaluatorAddr),
		zap.String("actor", callerAddr),
	)
	return nil
}

// SetCourseURI replaces the metadata URI of an existing course.
func (s *CourseService) SetCourseURI(ctx context.Context, caller string, courseID uint64, req models.CourseURIRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid uri payload")
	}
	callerAddr, err := normalizeAddress("caller", caller)
	if err != nil {
		return err
	}

	var events []models.Event
	err = s.store.RunInTx(ctx, func(tx Tx) error {
		events = nil
		if err := requireRole(ctx, tx, models.RoleAdmin, callerAddr); err != nil {
			return err
		}
		course, err := lockCourse(ctx, tx, courseID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		course.MetadataURI = req.URI
		course.UpdatedAt = now
		if err := tx.Courses().Save(ctx, course); err != nil {
			return internalError(err, "failed to save course")
		}
		events = append(events, newEvent(models.EventCourseURIUpdated, callerAddr, courseRef(courseID), map[string]interface{}{
			"uri": req.URI,
		}, now))
		return nil
	})
	if err != nil {
		return err
	}
	s.events.Publish(ctx, events...)
	s.logger.Info("course uri updated", zap.Uint64("course_id", courseID), zap.String("actor", callerAddr))
	return nil
}

// SetLimits replaces the runtime course quotas.
func (s *CourseService) SetLimits(ctx context.Context, caller string, limits models.Limits) (*models.Limits, error) {
	if err := checkAmount("max_places_per_course", limits.MaxPlacesPerCourse); err != nil {
		return nil, err
	}
	if err := checkAmount("max_evaluators_per_course", limits.MaxEvaluatorsPerCourse); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(limits); err != nil {
		return nil, validationError(err, "invalid limits payload")
	}
	callerAddr, err := normalizeAddress("caller", caller)
	if err != nil {
		return nil, err
	}

	var events []models.Event
	err = s.store.RunInTx(ctx, func(tx Tx) error {
		events = nil
		if err := requireRole(ctx, tx, models.RoleAdmin, callerAddr); err != nil {
			return err
		}
		largest, err := tx.Courses().MaxTotalPlaces(ctx)
		if err != nil {
			return internalError(err, "failed to load course places")
		}
		if limits.MaxPlacesPerCourse < largest {
			return appErrors.Clone(appErrors.ErrMaxPlacesReached, "place limit below an existing course total").WithDetails(
				"max_places", limits.MaxPlacesPerCourse,
				"largest_total_places", largest,
			)
		}
		if err := tx.Settings().SetLimits(ctx, limits); err != nil {
			return internalError(err, "failed to save limits")
		}
		events = append(events, newEvent(models.EventLimitsUpdated, callerAddr, nil, map[string]interface{}{
			"max_evaluators_per_course": limits.MaxEvaluatorsPerCourse,
			"max_places_per_course":     limits.MaxPlacesPerCourse,
		}, s.now()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.events.Publish(ctx, events...)
	s.logger.Info("course limits updated",
		zap.Uint64("max_evaluators_per_course", limits.MaxEvaluatorsPerCourse),
		zap.Uint64("max_places_per_course", limits.MaxPlacesPerCourse),
		zap.String("actor", callerAddr),
	)
	return &limits, nil
}

// Course returns the course summary and indicates cache utilisation.
func (s *CourseService) Course(ctx context.Context, courseID uint64) (*models.CourseSummary, bool, error) {
	return cachedView(ctx, s.cache, courseID, viewSummary, s.cfg.CacheTTL, func() (*models.CourseSummary, error) {
		var summary models.CourseSummary
		err := s.store.View(ctx, func(tx Tx) error {
			course, err := getCourse(ctx, tx, courseID)
			if err != nil {
				return err
			}
			evaluators, err := tx.Courses().Evaluators(ctx, courseID)
			if err != nil {
				return internalError(err, "failed to list evaluators")
			}
			students, err := tx.Enrollments().Students(ctx, courseID)
			if err != nil {
				return internalError(err, "failed to list students")
			}
			summary = models.CourseSummary{Course: *course, Evaluators: evaluators, Students: students}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &summary, nil
	})
}

// URI returns the metadata URI of a course. Unknown courses yield an empty URI.
func (s *CourseService) URI(ctx context.Context, courseID uint64) (string, error) {
	var uri string
	err := s.store.View(ctx, func(tx Tx) error {
		course, err := tx.Courses().Get(ctx, courseID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return internalError(err, "failed to load course")
		}
		uri = course.MetadataURI
		return nil
	})
	return uri, err
}

// ContractURI returns the collection-level metadata URI.
func (s *CourseService) ContractURI() string {
	return s.cfg.ContractURI
}

// Contract returns collection metadata with the effective limits.
func (s *CourseService) Contract(ctx context.Context) (*models.ContractInfo, error) {
	limits, err := s.Limits(ctx)
	if err != nil {
		return nil, err
	}
	return &models.ContractInfo{
		ContractURI:   s.cfg.ContractURI,
		BaseCourseFee: s.cfg.BaseCourseFee,
		Limits:        *limits,
	}, nil
}

// Evaluators lists the assigned evaluators of a course in assignment order.
func (s *CourseService) Evaluators(ctx context.Context, courseID uint64) ([]string, error) {
	var evaluators []string
	err := s.store.View(ctx, func(tx Tx) error {
		if _, err := getCourse(ctx, tx, courseID); err != nil {
			return err
		}
		var err error
		evaluators, err = tx.Courses().Evaluators(ctx, courseID)
		if err != nil {
			return internalError(err, "failed to list evaluators")
		}
		return nil
	})
	return evaluators, err
}

// Students lists enrolled students of a course in enrollment order.
func (s *CourseService) Students(ctx context.Context, courseID uint64) ([]string, error) {
	var students []string
	err := s.store.View(ctx, func(tx Tx) error {
		if _, err := getCourse(ctx, tx, courseID); err != nil {
			return err
		}
		var err error
		students, err = tx.Enrollments().Students(ctx, courseID)
		if err != nil {
			return internalError(err, "failed to list students")
		}
		return nil
	})
	return students, err
}

// Limits returns the effective course quotas.
func (s *CourseService) Limits(ctx context.Context) (*models.Limits, error) {
	var limits models.Limits
	err := s.store.View(ctx, func(tx Tx) error {
		var err error
		limits, err = currentLimits(ctx, tx, s.cfg.Limits)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &limits, nil
}

// currentLimits prefers persisted limits over the configured defaults.
func currentLimits(ctx context.Context, tx Tx, defaults models.Limits) (models.Limits, error) {
	limits, err := tx.Settings().Limits(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return defaults, nil
		}
		return models.Limits{}, internalError(err, "failed to load limits")
	}
	return limits, nil
}
