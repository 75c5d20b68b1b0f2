package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/course-cert-api/internal/models"
	"github.com/noah-isme/course-cert-api/pkg/address"
	appErrors "github.com/noah-isme/course-cert-api/pkg/errors"
)

// NewValidator returns a validator with the address tag registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("address", func(fl validator.FieldLevel) bool {
		return address.Valid(fl.Field().String())
	})
	return v
}

func validationError(err error, message string) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			if fe.Tag() == "address" {
				return appErrors.Clone(appErrors.ErrInvalidAddress, "").WithDetails("field", fe.Field(), "value", fe.Value())
			}
		}
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

func normalizeAddress(field, raw string) (string, error) {
	addr, err := address.Normalize(raw)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrInvalidAddress, "").WithDetails("field", field, "value", raw)
	}
	return addr, nil
}

func requireRole(ctx context.Context, tx Tx, role models.Role, account string) error {
	ok, err := tx.Roles().HasRole(ctx, role, account)
	if err != nil {
		return internalError(err, "failed to check role")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrRoleRequired, "").WithDetails("role", string(role), "account", account)
	}
	return nil
}

func checkAmount(field string, value uint64) error {
	if value >= models.AmountSentinel {
		return appErrors.Clone(appErrors.ErrAmountTooLarge, "").WithDetails("field", field, "value", value)
	}
	return nil
}

// lockCourse loads the course for update, translating a missing row.
func lockCourse(ctx context.Context, tx Tx, id uint64) (*models.Course, error) {
	course, err := tx.Courses().Lock(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, courseNotFound(id)
		}
		return nil, internalError(err, "failed to load course")
	}
	if !course.Exists() {
		return nil, courseNotFound(id)
	}
	return course, nil
}

func getCourse(ctx context.Context, tx Tx, id uint64) (*models.Course, error) {
	course, err := tx.Courses().Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, courseNotFound(id)
		}
		return nil, internalError(err, "failed to load course")
	}
	if !course.Exists() {
		return nil, courseNotFound(id)
	}
	return course, nil
}

func courseNotFound(id uint64) error {
	return appErrors.Clone(appErrors.ErrCourseNotFound, "").WithDetails("course_id", id)
}

// internalError keeps typed errors raised by stores and wraps everything else.
func internalError(err error, message string) error {
	var typed *appErrors.Error
	if errors.As(err, &typed) {
		return typed
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func newEvent(eventType models.EventType, actor string, courseID *uint64, payload map[string]interface{}, now time.Time) models.Event {
	return models.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		CourseID:   courseID,
		Actor:      actor,
		Payload:    payload,
		OccurredAt: now.UTC(),
	}
}

func courseRef(id uint64) *uint64 {
	return &id
}
