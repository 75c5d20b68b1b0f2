package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-cert-api/internal/handler"
	"github.com/noah-isme/course-cert-api/internal/repository"
	"github.com/noah-isme/course-cert-api/internal/service"
	"github.com/noah-isme/course-cert-api/pkg/export"
	"github.com/noah-isme/course-cert-api/pkg/jobs"
)

const (
	adminAddr     = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	evaluatorAddr = "0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb"
	aliceAddr     = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

type testServer struct {
	router *gin.Engine
	auth   *service.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logr := zap.NewNop()
	store := repository.NewMemoryStore()
	metrics := service.NewMetricsService()
	events := service.NewEventService([]service.EventSink{service.NewLogSink(logr)}, nil, metrics, logr, jobs.QueueConfig{})
	validate := service.NewValidator()

	auth := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: "test-secret", Issuer: "course-cert-api"})
	roles := service.NewRoleService(store, logr, events)
	require.NoError(t, roles.Bootstrap(t.Context(), adminAddr))

	courses := service.NewCourseService(store, validate, logr, events, nil, service.CourseConfig{ContractURI: "ipfs://contract"})
	r := gin.New()
	registerRoutes(r, "/api/v1", routeDeps{
		logger:       logr,
		auth:         auth,
		roles:        roles,
		metrics:      metrics,
		courses:      handler.NewCourseHandler(courses),
		enrollments:  handler.NewEnrollmentHandler(service.NewEnrollmentService(store, validate, logr, events)),
		evaluations:  handler.NewEvaluationHandler(service.NewEvaluationService(store, validate, logr, events, nil, 0)),
		certificates: handler.NewCertificateHandler(service.NewCertificateService(store, validate, logr, events)),
		treasury:     handler.NewTreasuryHandler(service.NewTreasuryService(store, repository.NewPayoutLog(logr), validate, logr, events)),
		reports:      handler.NewReportHandler(service.NewReportService(store, logr, export.NewCSVExporter(), export.NewPDFExporter())),
		roleAdmin:    handler.NewRoleHandler(roles),
		probes:       handler.NewMetricsHandler(metrics, nil),
	})
	return &testServer{router: r, auth: auth}
}

func (s *testServer) do(t *testing.T, method, path, caller, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		token, err := s.auth.IssueToken(caller)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func dataOf(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

func TestRoutesCertificationFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/courses", adminAddr, `{"id":1,"initial_supply":3,"uri":"ipfs://course","fee":100}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/courses/1/evaluators", adminAddr, `{"address":"`+evaluatorAddr+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/courses/1/enrollments", aliceAddr, `{"value":100}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/courses/1/transfers", adminAddr, `{"student":"`+aliceAddr+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/courses/1/evaluations", evaluatorAddr, `{"student":"`+aliceAddr+`","mark":9}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/courses/1/certificates", adminAddr, `{"uri":"ipfs://cert"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := dataOf(t, rec)
	assert.Equal(t, float64(2), result["unsold_burned"])
	assert.Equal(t, []interface{}{aliceAddr}, result["certified"])

	rec = s.do(t, http.MethodGet, "/api/v1/courses/1/uri", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ipfs://cert", dataOf(t, rec)["uri"])

	rec = s.do(t, http.MethodGet, "/api/v1/accounts/"+aliceAddr+"/balances/1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), dataOf(t, rec)["quantity"])

	rec = s.do(t, http.MethodGet, "/api/v1/treasury", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(100), dataOf(t, rec)["balance"])

	rec = s.do(t, http.MethodGet, "/api/v1/courses/1/report", adminAddr, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), aliceAddr)
}

func TestRoutesAccessControl(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/courses", "", `{"id":1,"initial_supply":3}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/courses", aliceAddr, `{"id":1,"initial_supply":3}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))

	rec = s.do(t, http.MethodPost, "/api/v1/courses/1/evaluations", aliceAddr, `{"student":"`+aliceAddr+`","mark":9}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/treasury/withdrawals", aliceAddr, `{"amount":1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/metrics/summary", aliceAddr, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/metrics/summary", adminAddr, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/roles/admin/members/"+adminAddr, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, dataOf(t, rec)["member"])
}

func TestRoutesProbes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/contract", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ipfs://contract", dataOf(t, rec)["contract_uri"])
}
