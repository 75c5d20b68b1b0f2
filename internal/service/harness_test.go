package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-cert-api/internal/models"
	"github.com/noah-isme/course-cert-api/internal/repository"
	"github.com/noah-isme/course-cert-api/internal/service"
	"github.com/noah-isme/course-cert-api/pkg/address"
	appErrors "github.com/noah-isme/course-cert-api/pkg/errors"
)

const (
	admin     = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	evaluator = "0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb"
	alice     = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	bob       = "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB"
)

// account returns a distinct checksummed address for n > 0.
func account(t *testing.T, n int) string {
	t.Helper()
	addr, err := address.Normalize(fmt.Sprintf("0x%040x", n))
	require.NoError(t, err)
	return addr
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *recordingPublisher) Publish(_ context.Context, events ...models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *recordingPublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]interface{}
	gets    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]interface{}{}}
}

func (c *mapCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	value, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	switch d := dest.(type) {
	case *models.CourseSummary:
		*d = value.(models.CourseSummary)
	case *models.CourseResults:
		*d = value.(models.CourseResults)
	default:
		return fmt.Errorf("unsupported cache destination %T", dest)
	}
	return nil
}

func (c *mapCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *mapCache) DeleteByPattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := pattern[:len(pattern)-1]
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
	return nil
}

type failingPayout struct{ err error }

func (f failingPayout) Send(context.Context, string, string, uint64) error { return f.err }

type harness struct {
	store        *repository.MemoryStore
	events       *recordingPublisher
	payouts      *repository.PayoutLog
	roles        *service.RoleService
	courses      *service.CourseService
	enrollments  *service.EnrollmentService
	evaluations  *service.EvaluationService
	certificates *service.CertificateService
	treasury     *service.TreasuryService
	reports      *service.ReportService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := repository.NewMemoryStore()
	events := &recordingPublisher{}
	payouts := repository.NewPayoutLog(nil)
	validate := service.NewValidator()

	h := &harness{
		store:        store,
		events:       events,
		payouts:      payouts,
		roles:        service.NewRoleService(store, nil, events),
		courses:      service.NewCourseService(store, validate, nil, events, nil, service.CourseConfig{ContractURI: "ipfs://contract", BaseCourseFee: 10}),
		enrollments:  service.NewEnrollmentService(store, validate, nil, events),
		evaluations:  service.NewEvaluationService(store, validate, nil, events, nil, 0),
		certificates: service.NewCertificateService(store, validate, nil, events),
		treasury:     service.NewTreasuryService(store, payouts, validate, nil, events),
		reports:      service.NewReportService(store, nil, nil, nil),
	}
	require.NoError(t, h.roles.Bootstrap(context.Background(), admin))
	return h
}

// seedCourse creates a course and assigns the shared evaluator to it.
func (h *harness) seedCourse(t *testing.T, id, supply, fee uint64) {
	t.Helper()
	ctx := context.Background()
	_, err := h.courses.CreateCourse(ctx, admin, models.CreateCourseRequest{ID: id, InitialSupply: supply, URI: "ipfs://course", Fee: fee})
	require.NoError(t, err)
	require.NoError(t, h.courses.SetUpEvaluator(ctx, admin, id, evaluator))
}

// enroll buys a place for student and delivers the unit.
func (h *harness) enroll(t *testing.T, id uint64, student string, value uint64) {
	t.Helper()
	ctx := context.Background()
	_, err := h.enrollments.BuyPlace(ctx, student, id, models.EnrollmentRequest{Value: value})
	require.NoError(t, err)
	require.NoError(t, h.enrollments.TransferPlace(ctx, admin, id, models.TransferRequest{Student: student}))
}

func (h *harness) balance(t *testing.T, owner string, id uint64) uint64 {
	t.Helper()
	b, err := h.enrollments.BalanceOf(context.Background(), owner, id)
	require.NoError(t, err)
	return b.Quantity
}
