package service

import (
	"context"
	"errors"

	"github.com/noah-isme/course-cert-api/internal/models"
)

// ErrNotFound is returned by stores when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrReadOnly is returned when a write is attempted inside a read-only view.
var ErrReadOnly = errors.New("write attempted in read-only transaction")

// Store runs units of work against course state. RunInTx applies every mutation made
// by fn atomically: when fn returns an error nothing it wrote is observable.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the component stores bound to one transaction.
type Tx interface {
	Roles() RoleStore
	Courses() CourseStore
	Enrollments() EnrollmentStore
	Evaluations() EvaluationStore
	Ledger() LedgerStore
	Treasury() TreasuryStore
	Settings() SettingsStore
}

// RoleStore persists global role membership.
type RoleStore interface {
	HasRole(ctx context.Context, role models.Role, account string) (bool, error)
	Grant(ctx context.Context, role models.Role, account string) (bool, error)
	Revoke(ctx context.Context, role models.Role, account string) (bool, error)
}

// CourseStore persists courses and their evaluator sets.
type CourseStore interface {
	Get(ctx context.Context, id uint64) (*models.Course, error)
	// Lock returns the course and holds it for the rest of the transaction.
	Lock(ctx context.Context, id uint64) (*models.Course, error)
	Save(ctx context.Context, course *models.Course) error
	// MaxTotalPlaces returns the largest totalPlaces of any course, zero when none exist.
	MaxTotalPlaces(ctx context.Context) (uint64, error)
	Evaluators(ctx context.Context, id uint64) ([]string, error)
	IsEvaluator(ctx context.Context, id uint64, account string) (bool, error)
	AddEvaluator(ctx context.Context, id uint64, account string) error
	RemoveEvaluator(ctx context.Context, id uint64, account string) error
}

// EnrollmentStore persists enrolled sets and the per-account course index.
type EnrollmentStore interface {
	IsEnrolled(ctx context.Context, courseID uint64, student string) (bool, error)
	Enroll(ctx context.Context, courseID uint64, student string) error
	Students(ctx context.Context, courseID uint64) ([]string, error)
	CoursesOf(ctx context.Context, account string) ([]uint64, error)
}

// EvaluationStore persists append-only evaluation records in insertion order.
type EvaluationStore interface {
	Append(ctx context.Context, record *models.EvaluationRecord) error
	List(ctx context.Context, courseID uint64) ([]models.EvaluationRecord, error)
}

// LedgerStore is the ownership ledger for course units. Burn and Transfer fail with
// INSUFFICIENT_BALANCE when the owner holds fewer units than requested.
type LedgerStore interface {
	Mint(ctx context.Context, to string, courseID, quantity uint64) error
	Burn(ctx context.Context, from string, courseID, quantity uint64) error
	Transfer(ctx context.Context, from, to string, courseID, quantity uint64) error
	BalanceOf(ctx context.Context, owner string, courseID uint64) (uint64, error)
	SetApprovalForAll(ctx context.Context, owner, operator string, approved bool) error
	IsApprovedForAll(ctx context.Context, owner, operator string) (bool, error)
}

// TreasuryStore holds custodied fees.
type TreasuryStore interface {
	Balance(ctx context.Context) (uint64, error)
	Credit(ctx context.Context, amount uint64) error
	Debit(ctx context.Context, amount uint64) error
}

// SettingsStore persists runtime limits. Limits returns ErrNotFound until set.
type SettingsStore interface {
	Limits(ctx context.Context) (models.Limits, error)
	SetLimits(ctx context.Context, limits models.Limits) error
}

// EventPublisher receives events once their transaction has committed.
type EventPublisher interface {
	Publish(ctx context.Context, events ...models.Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, ...models.Event) {}
