package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-cert-api/internal/models"
	appErrors "github.com/noah-isme/course-cert-api/pkg/errors"
)

type fakeEvaluationSrv struct {
	lastReq    models.EvaluateRequest
	lastCaller string
	results    *models.CourseResults
	resultsHit bool
}

func (f *fakeEvaluationSrv) Evaluate(_ context.Context, caller string, courseID uint64, req models.EvaluateRequest) (*models.EvaluationRecord, error) {
	f.lastCaller = caller
	f.lastReq = req
	if req.Mark < 1 || req.Mark > 10 {
		return nil, appErrors.Clone(appErrors.ErrMarkOutOfRange, "mark must be between 1 and 10").WithDetails("mark", req.Mark)
	}
	return &models.EvaluationRecord{CourseID: courseID, Student: req.Student, Evaluator: caller, Mark: uint8(req.Mark)}, nil
}

func (f *fakeEvaluationSrv) IsStudentEvaluated(_ context.Context, _ uint64, student string) (bool, error) {
	return student == testStudent, nil
}

func (f *fakeEvaluationSrv) Evaluations(context.Context, uint64) ([]models.EvaluationRecord, error) {
	return []models.EvaluationRecord{}, nil
}

func (f *fakeEvaluationSrv) Results(context.Context, uint64) (*models.CourseResults, bool, error) {
	return f.results, f.resultsHit, nil
}

func TestEvaluationHandlerEvaluate(t *testing.T) {
	srv := &fakeEvaluationSrv{}
	handler := NewEvaluationHandler(srv)
	c, rec := newTestContext(http.MethodPost, "/courses/1/evaluations", `{"student":"`+testStudent+`","mark":8}`, testAdmin)
	c.Params = gin.Params{{Key: "id", Value: "1"}}

	handler.Evaluate(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, testAdmin, srv.lastCaller)
	var record models.EvaluationRecord
	decodeData(t, rec, &record)
	assert.Equal(t, uint8(8), record.Mark)
	assert.True(t, record.Passed())
}

func TestEvaluationHandlerMarkOutOfRange(t *testing.T) {
	handler := NewEvaluationHandler(&fakeEvaluationSrv{})
	c, rec := newTestContext(http.MethodPost, "/courses/1/evaluations", `{"student":"`+testStudent+`","mark":11}`, testAdmin)
	c.Params = gin.Params{{Key: "id", Value: "1"}}

	handler.Evaluate(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, appErrors.ErrMarkOutOfRange.Code, decodeEnvelope(t, rec).Error["code"])
}

func TestEvaluationHandlerIsEvaluated(t *testing.T) {
	handler := NewEvaluationHandler(&fakeEvaluationSrv{})
	c, rec := newTestContext(http.MethodGet, "/courses/1/evaluations/"+testStudent, "", "")
	c.Params = gin.Params{{Key: "id", Value: "1"}, {Key: "address", Value: testStudent}}

	handler.IsEvaluated(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	decodeData(t, rec, &body)
	assert.Equal(t, true, body["evaluated"])
}

func TestEvaluationHandlerResultsCacheMiss(t *testing.T) {
	handler := NewEvaluationHandler(&fakeEvaluationSrv{
		results: &models.CourseResults{CourseID: 1, Passed: []string{testStudent}, Failed: []string{}, PassedCount: 1},
	})
	c, rec := newTestContext(http.MethodGet, "/courses/1/results", "", "")
	c.Params = gin.Params{{Key: "id", Value: "1"}}

	handler.Results(c)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, false, envelope.Meta["cache_hit"])
	var results models.CourseResults
	decodeData(t, rec, &results)
	assert.Equal(t, uint64(1), results.PassedCount)
}

type fakeCertificateSrv struct {
	err error
}

func (f *fakeCertificateSrv) MakeCertificates(_ context.Context, _ string, courseID uint64, req models.CertificateRequest) (*models.CertificateResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.CertificateResult{
		CourseID:       courseID,
		URI:            req.URI,
		UnsoldBurned:   8,
		Revoked:        []string{testAdmin},
		Certified:      []string{testStudent},
		PassedStudents: 1,
	}, nil
}

func (f *fakeCertificateSrv) Certificates(context.Context, uint64) ([]string, error) {
	return []string{testStudent}, nil
}

func TestCertificateHandlerMake(t *testing.T) {
	handler := NewCertificateHandler(&fakeCertificateSrv{})
	c, rec := newTestContext(http.MethodPost, "/courses/1/certificates", `{"uri":"ipfs://cert"}`, testAdmin)
	c.Params = gin.Params{{Key: "id", Value: "1"}}

	handler.Make(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var result models.CertificateResult
	decodeData(t, rec, &result)
	assert.Equal(t, "ipfs://cert", result.URI)
	assert.Equal(t, uint64(8), result.UnsoldBurned)
	assert.Equal(t, []string{testStudent}, result.Certified)
}

func TestCertificateHandlerMakeInsufficientBalance(t *testing.T) {
	handler := NewCertificateHandler(&fakeCertificateSrv{err: appErrors.ErrInsufficientBalance})
	c, rec := newTestContext(http.MethodPost, "/courses/1/certificates", `{"uri":"ipfs://cert"}`, testAdmin)
	c.Params = gin.Params{{Key: "id", Value: "1"}}

	handler.Make(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, appErrors.ErrInsufficientBalance.Code, decodeEnvelope(t, rec).Error["code"])
}

func TestCertificateHandlerList(t *testing.T) {
	handler := NewCertificateHandler(&fakeCertificateSrv{})
	c, rec := newTestContext(http.MethodGet, "/courses/1/certificates", "", "")
	c.Params = gin.Params{{Key: "id", Value: "1"}}

	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var holders []string
	decodeData(t, rec, &holders)
	assert.Equal(t, []string{testStudent}, holders)
}
