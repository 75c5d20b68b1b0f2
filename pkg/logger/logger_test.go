package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/course-cert-api/pkg/config"
	"github.com/noah-isme/course-cert-api/pkg/middleware/requestid"
)

func TestNewFallsBackOnBadLevel(t *testing.T) {
	l, err := New(&config.Config{Env: config.EnvProduction, Log: config.LogConfig{Level: "loud", Format: "console"}})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestForContextAddsRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ForContext(requestid.WithID(context.Background(), "req-9"), zap.New(core)).Info("hello")
	ForContext(context.Background(), zap.New(core)).Info("plain")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-9", entries[0].ContextMap()["request_id"])
	assert.NotContains(t, entries[1].ContextMap(), "request_id")
}

func TestGinMiddlewareLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(requestid.Middleware(), GinMiddleware(zap.New(core), "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/courses/:id", func(c *gin.Context) {
		_ = c.Error(errors.New("store down"))
		c.Status(http.StatusInternalServerError)
	})

	for _, target := range []string{"/health", "/courses/4", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/courses/:id", fields["route"])
	assert.Contains(t, fields["errors"], "store down")
	assert.NotEmpty(t, fields["request_id"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "unmatched", entries[1].ContextMap()["route"])
}
