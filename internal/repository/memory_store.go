package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/noah-isme/course-cert-api/internal/models"
	"github.com/noah-isme/course-cert-api/internal/service"
	appErrors "github.com/noah-isme/course-cert-api/pkg/errors"
	"github.com/noah-isme/course-cert-api/pkg/orderedset"
)

type balanceKey struct {
	owner    string
	courseID uint64
}

type approvalKey struct {
	owner    string
	operator string
}

// MemoryStore keeps course state in process memory. A single lock serialises
// transactions and every mutation journals its inverse so a failed transaction can
// be undone before the lock is released.
type MemoryStore struct {
	mu sync.RWMutex

	roles       map[models.Role]*orderedset.Set[string]
	courses     map[uint64]models.Course
	evaluators  map[uint64]*orderedset.Set[string]
	students    map[uint64]*orderedset.Set[string]
	userCourses map[string]*orderedset.Set[uint64]
	evaluations map[uint64][]models.EvaluationRecord
	balances    map[balanceKey]uint64
	approvals   map[approvalKey]bool
	treasury    uint64
	limits      *models.Limits
	nextEvalID  uint64
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles:       make(map[models.Role]*orderedset.Set[string]),
		courses:     make(map[uint64]models.Course),
		evaluators:  make(map[uint64]*orderedset.Set[string]),
		students:    make(map[uint64]*orderedset.Set[string]),
		userCourses: make(map[string]*orderedset.Set[uint64]),
		evaluations: make(map[uint64][]models.EvaluationRecord),
		balances:    make(map[balanceKey]uint64),
		approvals:   make(map[approvalKey]bool),
	}
}

// RunInTx implements service.Store.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx service.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s, writable: true}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
		if err != nil {
			tx.rollback()
		}
	}()
	return fn(tx)
}

// View implements service.Store.
func (s *MemoryStore) View(ctx context.Context, fn func(tx service.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memoryTx{store: s})
}

type memoryTx struct {
	store    *MemoryStore
	writable bool
	undo     []func()
}

func (tx *memoryTx) journal(fn func()) {
	tx.undo = append(tx.undo, fn)
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memoryTx) checkWritable() error {
	if !tx.writable {
		return service.ErrReadOnly
	}
	return nil
}

func (tx *memoryTx) Roles() service.RoleStore             { return memoryRoles{tx} }
func (tx *memoryTx) Courses() service.CourseStore         { return memoryCourses{tx} }
func (tx *memoryTx) Enrollments() service.EnrollmentStore { return memoryEnrollments{tx} }
func (tx *memoryTx) Evaluations() service.EvaluationStore { return memoryEvaluations{tx} }
func (tx *memoryTx) Ledger() service.LedgerStore          { return memoryLedger{tx} }
func (tx *memoryTx) Treasury() service.TreasuryStore      { return memoryTreasury{tx} }
func (tx *memoryTx) Settings() service.SettingsStore      { return memorySettings{tx} }

// setAdd adds value to the set stored under key, creating it when missing.
func setAdd[K comparable, V comparable](tx *memoryTx, sets map[K]*orderedset.Set[V], key K, value V) bool {
	set, ok := sets[key]
	if !ok {
		set = orderedset.New[V]()
		sets[key] = set
		tx.journal(func() { delete(sets, key) })
	}
	if !set.Add(value) {
		return false
	}
	tx.journal(func() { set.Remove(value) })
	return true
}

// setRemove removes value and journals a restore at its original position.
func setRemove[K comparable, V comparable](tx *memoryTx, sets map[K]*orderedset.Set[V], key K, value V) bool {
	set, ok := sets[key]
	if !ok || !set.Contains(value) {
		return false
	}
	snapshot := set.Clone()
	set.Remove(value)
	// Restore through the same pointer so earlier journal entries still apply to it.
	tx.journal(func() { *set = *snapshot })
	return true
}

type memoryRoles struct{ tx *memoryTx }

func (r memoryRoles) HasRole(_ context.Context, role models.Role, account string) (bool, error) {
	return r.tx.store.roles[role].Contains(account), nil
}

func (r memoryRoles) Grant(_ context.Context, role models.Role, account string) (bool, error) {
	if err := r.tx.checkWritable(); err != nil {
		return false, err
	}
	return setAdd(r.tx, r.tx.store.roles, role, account), nil
}

func (r memoryRoles) Revoke(_ context.Context, role models.Role, account string) (bool, error) {
	if err := r.tx.checkWritable(); err != nil {
		return false, err
	}
	return setRemove(r.tx, r.tx.store.roles, role, account), nil
}

type memoryCourses struct{ tx *memoryTx }

func (c memoryCourses) Get(_ context.Context, id uint64) (*models.Course, error) {
	course, ok := c.tx.store.courses[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	return &course, nil
}

// Lock is Get: the store lock already serialises the transaction.
func (c memoryCourses) Lock(ctx context.Context, id uint64) (*models.Course, error) {
	return c.Get(ctx, id)
}

func (c memoryCourses) Save(_ context.Context, course *models.Course) error {
	if err := c.tx.checkWritable(); err != nil {
		return err
	}
	courses := c.tx.store.courses
	prev, existed := courses[course.ID]
	courses[course.ID] = *course
	id := course.ID
	c.tx.journal(func() {
		if existed {
			courses[id] = prev
			return
		}
		delete(courses, id)
	})
	return nil
}

func (c memoryCourses) MaxTotalPlaces(context.Context) (uint64, error) {
	var largest uint64
	for _, course := range c.tx.store.courses {
		if course.TotalPlaces > largest {
			largest = course.TotalPlaces
		}
	}
	return largest, nil
}

func (c memoryCourses) Evaluators(_ context.Context, id uint64) ([]string, error) {
	return orEmpty(c.tx.store.evaluators[id].Values()), nil
}

func (c memoryCourses) IsEvaluator(_ context.Context, id uint64, account string) (bool, error) {
	return c.tx.store.evaluators[id].Contains(account), nil
}

func (c memoryCourses) AddEvaluator(_ context.Context, id uint64, account string) error {
	if err := c.tx.checkWritable(); err != nil {
		return err
	}
	setAdd(c.tx, c.tx.store.evaluators, id, account)
	return nil
}

func (c memoryCourses) RemoveEvaluator(_ context.Context, id uint64, account string) error {
	if err := c.tx.checkWritable(); err != nil {
		return err
	}
	setRemove(c.tx, c.tx.store.evaluators, id, account)
	return nil
}

type memoryEnrollments struct{ tx *memoryTx }

func (e memoryEnrollments) IsEnrolled(_ context.Context, courseID uint64, student string) (bool, error) {
	return e.tx.store.students[courseID].Contains(student), nil
}

func (e memoryEnrollments) Enroll(_ context.Context, courseID uint64, student string) error {
	if err := e.tx.checkWritable(); err != nil {
		return err
	}
	setAdd(e.tx, e.tx.store.students, courseID, student)
	setAdd(e.tx, e.tx.store.userCourses, student, courseID)
	return nil
}

func (e memoryEnrollments) Students(_ context.Context, courseID uint64) ([]string, error) {
	return orEmpty(e.tx.store.students[courseID].Values()), nil
}

func (e memoryEnrollments) CoursesOf(_ context.Context, account string) ([]uint64, error) {
	return orEmpty(e.tx.store.userCourses[account].Values()), nil
}

type memoryEvaluations struct{ tx *memoryTx }

func (e memoryEvaluations) Append(_ context.Context, record *models.EvaluationRecord) error {
	if err := e.tx.checkWritable(); err != nil {
		return err
	}
	store := e.tx.store
	prevID := store.nextEvalID
	prev := store.evaluations[record.CourseID]
	store.nextEvalID++
	record.ID = store.nextEvalID
	// Full slice expression forces a copy so rollback can restore the old header.
	store.evaluations[record.CourseID] = append(prev[:len(prev):len(prev)], *record)
	courseID := record.CourseID
	e.tx.journal(func() {
		store.nextEvalID = prevID
		if prev == nil {
			delete(store.evaluations, courseID)
			return
		}
		store.evaluations[courseID] = prev
	})
	return nil
}

func (e memoryEvaluations) List(_ context.Context, courseID uint64) ([]models.EvaluationRecord, error) {
	records := e.tx.store.evaluations[courseID]
	out := make([]models.EvaluationRecord, len(records))
	copy(out, records)
	return out, nil
}

type memoryLedger struct{ tx *memoryTx }

func (l memoryLedger) setBalance(key balanceKey, value uint64) {
	balances := l.tx.store.balances
	prev, existed := balances[key]
	if value == 0 {
		delete(balances, key)
	} else {
		balances[key] = value
	}
	l.tx.journal(func() {
		if existed {
			balances[key] = prev
			return
		}
		delete(balances, key)
	})
}

func (l memoryLedger) Mint(_ context.Context, to string, courseID, quantity uint64) error {
	if err := l.tx.checkWritable(); err != nil {
		return err
	}
	if quantity == 0 {
		return appErrors.Clone(appErrors.ErrInvalidQuantity, "")
	}
	key := balanceKey{owner: to, courseID: courseID}
	l.setBalance(key, l.tx.store.balances[key]+quantity)
	return nil
}

func (l memoryLedger) Burn(_ context.Context, from string, courseID, quantity uint64) error {
	if err := l.tx.checkWritable(); err != nil {
		return err
	}
	if quantity == 0 {
		return appErrors.Clone(appErrors.ErrInvalidQuantity, "")
	}
	key := balanceKey{owner: from, courseID: courseID}
	balance := l.tx.store.balances[key]
	if balance < quantity {
		return insufficientBalance(from, courseID, balance, quantity)
	}
	l.setBalance(key, balance-quantity)
	return nil
}

func (l memoryLedger) Transfer(ctx context.Context, from, to string, courseID, quantity uint64) error {
	if err := l.Burn(ctx, from, courseID, quantity); err != nil {
		return err
	}
	return l.Mint(ctx, to, courseID, quantity)
}

func (l memoryLedger) BalanceOf(_ context.Context, owner string, courseID uint64) (uint64, error) {
	return l.tx.store.balances[balanceKey{owner: owner, courseID: courseID}], nil
}

func (l memoryLedger) SetApprovalForAll(_ context.Context, owner, operator string, approved bool) error {
	if err := l.tx.checkWritable(); err != nil {
		return err
	}
	approvals := l.tx.store.approvals
	key := approvalKey{owner: owner, operator: operator}
	prev, existed := approvals[key]
	approvals[key] = approved
	l.tx.journal(func() {
		if existed {
			approvals[key] = prev
			return
		}
		delete(approvals, key)
	})
	return nil
}

func (l memoryLedger) IsApprovedForAll(_ context.Context, owner, operator string) (bool, error) {
	return l.tx.store.approvals[approvalKey{owner: owner, operator: operator}], nil
}

type memoryTreasury struct{ tx *memoryTx }

func (t memoryTreasury) Balance(context.Context) (uint64, error) {
	return t.tx.store.treasury, nil
}

func (t memoryTreasury) Credit(_ context.Context, amount uint64) error {
	if err := t.tx.checkWritable(); err != nil {
		return err
	}
	store := t.tx.store
	prev := store.treasury
	store.treasury += amount
	t.tx.journal(func() { store.treasury = prev })
	return nil
}

func (t memoryTreasury) Debit(_ context.Context, amount uint64) error {
	if err := t.tx.checkWritable(); err != nil {
		return err
	}
	store := t.tx.store
	if amount > store.treasury {
		return appErrors.Clone(appErrors.ErrInsufficientFunds, "").WithDetails("requested", amount, "balance", store.treasury)
	}
	prev := store.treasury
	store.treasury -= amount
	t.tx.journal(func() { store.treasury = prev })
	return nil
}

type memorySettings struct{ tx *memoryTx }

func (s memorySettings) Limits(context.Context) (models.Limits, error) {
	if s.tx.store.limits == nil {
		return models.Limits{}, service.ErrNotFound
	}
	return *s.tx.store.limits, nil
}

func (s memorySettings) SetLimits(_ context.Context, limits models.Limits) error {
	if err := s.tx.checkWritable(); err != nil {
		return err
	}
	store := s.tx.store
	prev := store.limits
	store.limits = &limits
	s.tx.journal(func() { store.limits = prev })
	return nil
}

// Snapshot is a deep copy of the store's state, used to compare state across
// operations.
type Snapshot struct {
	Roles       map[models.Role][]string
	Courses     map[uint64]models.Course
	Evaluators  map[uint64][]string
	Students    map[uint64][]string
	UserCourses map[string][]uint64
	Evaluations map[uint64][]models.EvaluationRecord
	Balances    []models.Balance
	Approvals   map[string]bool
	Treasury    uint64
	Limits      *models.Limits
}

// Snapshot captures the current state under the read lock.
func (s *MemoryStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Roles:       make(map[models.Role][]string, len(s.roles)),
		Courses:     make(map[uint64]models.Course, len(s.courses)),
		Evaluators:  make(map[uint64][]string, len(s.evaluators)),
		Students:    make(map[uint64][]string, len(s.students)),
		UserCourses: make(map[string][]uint64, len(s.userCourses)),
		Evaluations: make(map[uint64][]models.EvaluationRecord, len(s.evaluations)),
		Approvals:   make(map[string]bool, len(s.approvals)),
		Treasury:    s.treasury,
	}
	for role, set := range s.roles {
		snap.Roles[role] = set.Values()
	}
	for id, course := range s.courses {
		snap.Courses[id] = course
	}
	for id, set := range s.evaluators {
		snap.Evaluators[id] = set.Values()
	}
	for id, set := range s.students {
		snap.Students[id] = set.Values()
	}
	for account, set := range s.userCourses {
		snap.UserCourses[account] = set.Values()
	}
	for id, records := range s.evaluations {
		snap.Evaluations[id] = append([]models.EvaluationRecord(nil), records...)
	}
	for key, qty := range s.balances {
		snap.Balances = append(snap.Balances, models.Balance{Owner: key.owner, CourseID: key.courseID, Quantity: qty})
	}
	sort.Slice(snap.Balances, func(i, j int) bool {
		if snap.Balances[i].Owner != snap.Balances[j].Owner {
			return snap.Balances[i].Owner < snap.Balances[j].Owner
		}
		return snap.Balances[i].CourseID < snap.Balances[j].CourseID
	})
	for key, approved := range s.approvals {
		snap.Approvals[key.owner+"|"+key.operator] = approved
	}
	if s.limits != nil {
		limits := *s.limits
		snap.Limits = &limits
	}
	return snap
}

func insufficientBalance(owner string, courseID, balance, needed uint64) error {
	return appErrors.Clone(appErrors.ErrInsufficientBalance, "").WithDetails(
		"owner", owner,
		"course_id", courseID,
		"balance", balance,
		"needed", needed,
	)
}

func orEmpty[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}
