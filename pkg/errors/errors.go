package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness. Details carries the
// offending values (requested vs available quantities, addresses) for diagnosis.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so that clones compare equal to their template.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// WithDetails attaches key/value pairs to the error. Odd trailing keys are ignored.
func (e *Error) WithDetails(kv ...interface{}) *Error {
	if e == nil {
		return nil
	}
	if e.Details == nil {
		e.Details = make(map[string]interface{}, len(kv)/2)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e.Details[key] = kv[i+1]
	}
	return e
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Generic errors.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Validation errors.
var (
	ErrMarkOutOfRange  = New("MARK_OUT_OF_RANGE", http.StatusBadRequest, "mark must be between 1 and 10")
	ErrInvalidAddress  = New("INVALID_ADDRESS", http.StatusBadRequest, "invalid or zero address")
	ErrAmountTooLarge  = New("AMOUNT_TOO_LARGE", http.StatusBadRequest, "amount too large")
	ErrInvalidQuantity = New("INVALID_QUANTITY", http.StatusBadRequest, "quantity must be positive")
)

// ErrRoleRequired is returned when the caller lacks the role a gated operation needs.
var ErrRoleRequired = New("UNAUTHORIZED", http.StatusForbidden, "caller lacks required role")

// State-consistency errors.
var (
	ErrCourseNotFound               = New("COURSE_NOT_FOUND", http.StatusNotFound, "course not found")
	ErrEvaluatorAlreadyAssigned     = New("EVALUATOR_ALREADY_ASSIGNED", http.StatusConflict, "evaluator already assigned to course")
	ErrTooManyEvaluators            = New("TOO_MANY_EVALUATORS", http.StatusConflict, "course evaluator quota reached")
	ErrEvaluatorNotAssigned         = New("EVALUATOR_NOT_ASSIGNED", http.StatusConflict, "evaluator not assigned to course")
	ErrMaxPlacesReached             = New("MAX_PLACES_REACHED", http.StatusConflict, "course place quota reached")
	ErrTooManyPlaces                = New("TOO_MANY_PLACES", http.StatusConflict, "more places requested than available") // bounded by unsold places, not totalPlaces
	ErrInsufficientFee              = New("INSUFFICIENT_FEE", http.StatusPaymentRequired, "paid amount below course fee")
	ErrNoEvaluatorAssigned          = New("NO_EVALUATOR_ASSIGNED", http.StatusConflict, "course has no evaluator assigned")
	ErrAlreadyEnrolled              = New("ALREADY_ENROLLED", http.StatusConflict, "student already enrolled in course")
	ErrEvaluatorCannotEnroll        = New("EVALUATOR_CANNOT_ENROLL", http.StatusConflict, "course evaluator cannot enroll in the same course")
	ErrNoPlacesAvailable            = New("NO_PLACES_AVAILABLE", http.StatusConflict, "no places left for course")
	ErrCourseNotRegisteredForUser   = New("COURSE_NOT_REGISTERED_FOR_USER", http.StatusConflict, "student not enrolled in course")
	ErrEvaluatorNotAssignedToCourse = New("EVALUATOR_NOT_ASSIGNED_TO_COURSE", http.StatusForbidden, "caller is not an evaluator of this course")
	ErrStudentCannotBeEvaluator     = New("STUDENT_CANNOT_BE_EVALUATOR", http.StatusConflict, "student is an evaluator of this course")
	ErrStudentNotEnrolled           = New("STUDENT_NOT_ENROLLED", http.StatusConflict, "student not enrolled in course")
	ErrStudentAlreadyEvaluated      = New("STUDENT_ALREADY_EVALUATED", http.StatusConflict, "student already evaluated for course")
	ErrWrongUnitBalance             = New("WRONG_UNIT_BALANCE", http.StatusConflict, "student must hold exactly one unit")
	ErrNoCourseRegisteredForUser    = New("NO_COURSE_REGISTERED_FOR_USER", http.StatusConflict, "student has no registered course")
	ErrInsufficientFunds            = New("INSUFFICIENT_FUNDS", http.StatusConflict, "insufficient custodied funds")
)

// External-transfer errors.
var (
	ErrInsufficientBalance = New("INSUFFICIENT_BALANCE", http.StatusConflict, "insufficient unit balance")
	ErrWithdrawalFailed    = New("WITHDRAWAL_FAILED", http.StatusBadGateway, "withdrawal transfer failed")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Details = nil
	if message != "" {
		clone.Message = message
	}
	return &clone
}
