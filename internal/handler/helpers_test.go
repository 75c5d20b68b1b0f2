package handler

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-cert-api/internal/middleware"
	"github.com/noah-isme/course-cert-api/internal/models"
)

const (
	testAdmin   = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	testStudent = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

type responseEnvelope struct {
	Data  json.RawMessage        `json:"data"`
	Error map[string]interface{} `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

// newTestContext builds a gin context for method and target; an empty caller leaves it unauthenticated.
func newTestContext(method, target, body, caller string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	if caller != "" {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{Address: caller})
	}
	return c, rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	envelope := decodeEnvelope(t, rec)
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}
