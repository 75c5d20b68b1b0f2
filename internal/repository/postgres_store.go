package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/course-cert-api/internal/models"
	"github.com/noah-isme/course-cert-api/internal/service"
	appErrors "github.com/noah-isme/course-cert-api/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

const defaultTxAttempts = 3

// QueryObserver receives the duration of each store query.
type QueryObserver func(label string, duration time.Duration)

// PostgresStore keeps course state in Postgres. Write transactions run at
// serializable isolation and lock the course row they touch.
type PostgresStore struct {
	db       *sqlx.DB
	logger   *zap.Logger
	observe  QueryObserver
	attempts int
}

// PostgresOption customises a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithQueryObserver records query timings, typically into Prometheus.
func WithQueryObserver(observer QueryObserver) PostgresOption {
	return func(s *PostgresStore) { s.observe = observer }
}

// WithTxAttempts bounds how often a transaction is replayed after a serialization
// failure.
func WithTxAttempts(attempts int) PostgresOption {
	return func(s *PostgresStore) {
		if attempts > 0 {
			s.attempts = attempts
		}
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *sqlx.DB, logger *zap.Logger, opts ...PostgresOption) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PostgresStore{db: db, logger: logger, attempts: defaultTxAttempts}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSchema creates the tables the store needs when they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// RunInTx implements service.Store. Serialization failures are replayed; any other
// error rolls the transaction back and is returned unchanged.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx service.Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		err = s.runOnce(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, true, fn)
		if err == nil || !isSerializationFailure(err) {
			return err
		}
		s.logger.Warn("transaction serialization failure, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
	return err
}

// View implements service.Store with a read-only transaction.
func (s *PostgresStore) View(ctx context.Context, fn func(tx service.Tx) error) error {
	return s.runOnce(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, false, fn)
}

func (s *PostgresStore) runOnce(ctx context.Context, opts *sql.TxOptions, writable bool, fn func(tx service.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&pgTx{tx: sqlTx, writable: writable, observe: s.observe}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isSerializationFailure(err error) bool {
	const serializationFailure, deadlockDetected = "40001", "40P01"
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == serializationFailure || pqErr.Code == deadlockDetected
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected
	}
	return false
}

type pgTx struct {
	tx       *sqlx.Tx
	writable bool
	observe  QueryObserver
}

func (t *pgTx) track(label string, start time.Time) {
	if t.observe != nil {
		t.observe(label, time.Since(start))
	}
}

func (t *pgTx) checkWritable() error {
	if !t.writable {
		return service.ErrReadOnly
	}
	return nil
}

func (t *pgTx) exists(ctx context.Context, label, query string, args ...interface{}) (bool, error) {
	defer t.track(label, time.Now())
	var found bool
	if err := t.tx.GetContext(ctx, &found, query, args...); err != nil {
		return false, fmt.Errorf("%s: %w", label, err)
	}
	return found, nil
}

func (t *pgTx) exec(ctx context.Context, label, query string, args ...interface{}) (int64, error) {
	if err := t.checkWritable(); err != nil {
		return 0, err
	}
	defer t.track(label, time.Now())
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", label, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s rows affected: %w", label, err)
	}
	return affected, nil
}

func (t *pgTx) Roles() service.RoleStore             { return pgRoles{t} }
func (t *pgTx) Courses() service.CourseStore         { return pgCourses{t} }
func (t *pgTx) Enrollments() service.EnrollmentStore { return pgEnrollments{t} }
func (t *pgTx) Evaluations() service.EvaluationStore { return pgEvaluations{t} }
func (t *pgTx) Ledger() service.LedgerStore          { return pgLedger{t} }
func (t *pgTx) Treasury() service.TreasuryStore      { return pgTreasury{t} }
func (t *pgTx) Settings() service.SettingsStore      { return pgSettings{t} }

type pgRoles struct{ t *pgTx }

func (r pgRoles) HasRole(ctx context.Context, role models.Role, account string) (bool, error) {
	return r.t.exists(ctx, "check role", `SELECT EXISTS (SELECT 1 FROM role_members WHERE role = $1 AND account = $2)`, string(role), account)
}

func (r pgRoles) Grant(ctx context.Context, role models.Role, account string) (bool, error) {
	n, err := r.t.exec(ctx, "grant role", `INSERT INTO role_members (role, account, granted_at) VALUES ($1, $2, $3) ON CONFLICT (role, account) DO NOTHING`, string(role), account, time.Now().UTC())
	return n > 0, err
}

func (r pgRoles) Revoke(ctx context.Context, role models.Role, account string) (bool, error) {
	n, err := r.t.exec(ctx, "revoke role", `DELETE FROM role_members WHERE role = $1 AND account = $2`, string(role), account)
	return n > 0, err
}

const courseColumns = `id, fee_per_place, total_places, places_purchased, passed_count, creator, metadata_uri, created_at, updated_at`

type pgCourses struct{ t *pgTx }

func (c pgCourses) Get(ctx context.Context, id uint64) (*models.Course, error) {
	return c.get(ctx, "get course", `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id)
}

func (c pgCourses) Lock(ctx context.Context, id uint64) (*models.Course, error) {
	if !c.t.writable {
		return c.Get(ctx, id)
	}
	return c.get(ctx, "lock course", `SELECT `+courseColumns+` FROM courses WHERE id = $1 FOR UPDATE`, id)
}

func (c pgCourses) get(ctx context.Context, label, query string, id uint64) (*models.Course, error) {
	defer c.t.track(label, time.Now())
	var course models.Course
	if err := c.t.tx.GetContext(ctx, &course, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, service.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return &course, nil
}

func (c pgCourses) Save(ctx context.Context, course *models.Course) error {
	const query = `
INSERT INTO courses (id, fee_per_place, total_places, places_purchased, passed_count, creator, metadata_uri, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
	fee_per_place = EXCLUDED.fee_per_place,
	total_places = EXCLUDED.total_places,
	places_purchased = EXCLUDED.places_purchased,
	passed_count = EXCLUDED.passed_count,
	metadata_uri = EXCLUDED.metadata_uri,
	updated_at = EXCLUDED.updated_at`
	_, err := c.t.exec(ctx, "save course", query,
		course.ID, course.FeePerPlace, course.TotalPlaces, course.PlacesPurchased, course.PassedCount,
		course.Creator, course.MetadataURI, course.CreatedAt, course.UpdatedAt)
	return err
}

func (c pgCourses) MaxTotalPlaces(ctx context.Context) (uint64, error) {
	defer c.t.track("max total places", time.Now())
	var largest uint64
	if err := c.t.tx.GetContext(ctx, &largest, `SELECT COALESCE(MAX(total_places), 0) FROM courses`); err != nil {
		return 0, fmt.Errorf("max total places: %w", err)
	}
	return largest, nil
}

func (c pgCourses) Evaluators(ctx context.Context, id uint64) ([]string, error) {
	defer c.t.track("list evaluators", time.Now())
	evaluators := []string{}
	if err := c.t.tx.SelectContext(ctx, &evaluators, `SELECT evaluator FROM course_evaluators WHERE course_id = $1 ORDER BY seq`, id); err != nil {
		return nil, fmt.Errorf("list evaluators: %w", err)
	}
	return evaluators, nil
}

func (c pgCourses) IsEvaluator(ctx context.Context, id uint64, account string) (bool, error) {
	return c.t.exists(ctx, "check evaluator", `SELECT EXISTS (SELECT 1 FROM course_evaluators WHERE course_id = $1 AND evaluator = $2)`, id, account)
}

func (c pgCourses) AddEvaluator(ctx context.Context, id uint64, account string) error {
	_, err := c.t.exec(ctx, "add evaluator", `INSERT INTO course_evaluators (course_id, evaluator) VALUES ($1, $2) ON CONFLICT (course_id, evaluator) DO NOTHING`, id, account)
	return err
}

func (c pgCourses) RemoveEvaluator(ctx context.Context, id uint64, account string) error {
	_, err := c.t.exec(ctx, "remove evaluator", `DELETE FROM course_evaluators WHERE course_id = $1 AND evaluator = $2`, id, account)
	return err
}

type pgEnrollments struct{ t *pgTx }

func (e pgEnrollments) IsEnrolled(ctx context.Context, courseID uint64, student string) (bool, error) {
	return e.t.exists(ctx, "check enrollment", `SELECT EXISTS (SELECT 1 FROM course_students WHERE course_id = $1 AND student = $2)`, courseID, student)
}

func (e pgEnrollments) Enroll(ctx context.Context, courseID uint64, student string) error {
	if _, err := e.t.exec(ctx, "enroll student", `INSERT INTO course_students (course_id, student) VALUES ($1, $2) ON CONFLICT (course_id, student) DO NOTHING`, courseID, student); err != nil {
		return err
	}
	_, err := e.t.exec(ctx, "index account course", `INSERT INTO account_courses (account, course_id) VALUES ($1, $2) ON CONFLICT (account, course_id) DO NOTHING`, student, courseID)
	return err
}

func (e pgEnrollments) Students(ctx context.Context, courseID uint64) ([]string, error) {
	defer e.t.track("list students", time.Now())
	students := []string{}
	if err := e.t.tx.SelectContext(ctx, &students, `SELECT student FROM course_students WHERE course_id = $1 ORDER BY seq`, courseID); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

func (e pgEnrollments) CoursesOf(ctx context.Context, account string) ([]uint64, error) {
	defer e.t.track("list account courses", time.Now())
	courses := []uint64{}
	if err := e.t.tx.SelectContext(ctx, &courses, `SELECT course_id FROM account_courses WHERE account = $1 ORDER BY seq`, account); err != nil {
		return nil, fmt.Errorf("list account courses: %w", err)
	}
	return courses, nil
}

type pgEvaluations struct{ t *pgTx }

func (e pgEvaluations) Append(ctx context.Context, record *models.EvaluationRecord) error {
	if err := e.t.checkWritable(); err != nil {
		return err
	}
	defer e.t.track("append evaluation", time.Now())
	const query = `INSERT INTO evaluations (course_id, student, evaluator, mark, evaluated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := e.t.tx.QueryRowxContext(ctx, query, record.CourseID, record.Student, record.Evaluator, record.Mark, record.Timestamp).Scan(&record.ID); err != nil {
		return fmt.Errorf("append evaluation: %w", err)
	}
	return nil
}

func (e pgEvaluations) List(ctx context.Context, courseID uint64) ([]models.EvaluationRecord, error) {
	defer e.t.track("list evaluations", time.Now())
	records := []models.EvaluationRecord{}
	const query = `SELECT id, course_id, student, evaluator, mark, evaluated_at FROM evaluations WHERE course_id = $1 ORDER BY id`
	if err := e.t.tx.SelectContext(ctx, &records, query, courseID); err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	return records, nil
}

type pgLedger struct{ t *pgTx }

func (l pgLedger) Mint(ctx context.Context, to string, courseID, quantity uint64) error {
	if quantity == 0 {
		return appErrors.Clone(appErrors.ErrInvalidQuantity, "")
	}
	const query = `
INSERT INTO ledger_balances (owner, course_id, quantity) VALUES ($1, $2, $3)
ON CONFLICT (owner, course_id) DO UPDATE SET quantity = ledger_balances.quantity + EXCLUDED.quantity`
	_, err := l.t.exec(ctx, "mint units", query, to, courseID, quantity)
	return err
}

func (l pgLedger) Burn(ctx context.Context, from string, courseID, quantity uint64) error {
	if quantity == 0 {
		return appErrors.Clone(appErrors.ErrInvalidQuantity, "")
	}
	n, err := l.t.exec(ctx, "burn units", `UPDATE ledger_balances SET quantity = quantity - $3 WHERE owner = $1 AND course_id = $2 AND quantity >= $3`, from, courseID, quantity)
	if err != nil {
		return err
	}
	if n == 0 {
		balance, err := l.BalanceOf(ctx, from, courseID)
		if err != nil {
			return err
		}
		return insufficientBalance(from, courseID, balance, quantity)
	}
	return nil
}

func (l pgLedger) Transfer(ctx context.Context, from, to string, courseID, quantity uint64) error {
	if err := l.Burn(ctx, from, courseID, quantity); err != nil {
		return err
	}
	return l.Mint(ctx, to, courseID, quantity)
}

func (l pgLedger) BalanceOf(ctx context.Context, owner string, courseID uint64) (uint64, error) {
	defer l.t.track("get balance", time.Now())
	var quantity uint64
	err := l.t.tx.GetContext(ctx, &quantity, `SELECT quantity FROM ledger_balances WHERE owner = $1 AND course_id = $2`, owner, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return quantity, nil
}

func (l pgLedger) SetApprovalForAll(ctx context.Context, owner, operator string, approved bool) error {
	const query = `
INSERT INTO operator_approvals (owner, operator, approved) VALUES ($1, $2, $3)
ON CONFLICT (owner, operator) DO UPDATE SET approved = EXCLUDED.approved`
	_, err := l.t.exec(ctx, "set approval", query, owner, operator, approved)
	return err
}

func (l pgLedger) IsApprovedForAll(ctx context.Context, owner, operator string) (bool, error) {
	return l.t.exists(ctx, "check approval", `SELECT EXISTS (SELECT 1 FROM operator_approvals WHERE owner = $1 AND operator = $2 AND approved)`, owner, operator)
}

type pgTreasury struct{ t *pgTx }

func (tr pgTreasury) Balance(ctx context.Context) (uint64, error) {
	defer tr.t.track("get treasury", time.Now())
	var balance uint64
	if err := tr.t.tx.GetContext(ctx, &balance, `SELECT balance FROM treasury WHERE id = 1`); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get treasury: %w", err)
	}
	return balance, nil
}

func (tr pgTreasury) Credit(ctx context.Context, amount uint64) error {
	const query = `
INSERT INTO treasury (id, balance) VALUES (1, $1)
ON CONFLICT (id) DO UPDATE SET balance = treasury.balance + EXCLUDED.balance`
	_, err := tr.t.exec(ctx, "credit treasury", query, amount)
	return err
}

func (tr pgTreasury) Debit(ctx context.Context, amount uint64) error {
	n, err := tr.t.exec(ctx, "debit treasury", `UPDATE treasury SET balance = balance - $1 WHERE id = 1 AND balance >= $1`, amount)
	if err != nil {
		return err
	}
	if n == 0 {
		balance, err := tr.Balance(ctx)
		if err != nil {
			return err
		}
		return appErrors.Clone(appErrors.ErrInsufficientFunds, "").WithDetails("requested", amount, "balance", balance)
	}
	return nil
}

type pgSettings struct{ t *pgTx }

func (s pgSettings) Limits(ctx context.Context) (models.Limits, error) {
	defer s.t.track("get limits", time.Now())
	var limits models.Limits
	err := s.t.tx.GetContext(ctx, &limits, `SELECT max_evaluators_per_course, max_places_per_course FROM course_limits WHERE id = 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Limits{}, service.ErrNotFound
		}
		return models.Limits{}, fmt.Errorf("get limits: %w", err)
	}
	return limits, nil
}

func (s pgSettings) SetLimits(ctx context.Context, limits models.Limits) error {
	const query = `
INSERT INTO course_limits (id, max_evaluators_per_course, max_places_per_course) VALUES (1, $1, $2)
ON CONFLICT (id) DO UPDATE SET
	max_evaluators_per_course = EXCLUDED.max_evaluators_per_course,
	max_places_per_course = EXCLUDED.max_places_per_course`
	_, err := s.t.exec(ctx, "set limits", query, limits.MaxEvaluatorsPerCourse, limits.MaxPlacesPerCourse)
	return err
}
