package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/paysettle/pkg/logctx"
)

func newRouter(seen *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := zap.NewNop().Sugar()
	r := gin.New()
	r.Use(TraceMiddleware(), RequestLoggerMiddleware(log), AccessLogMiddleware(log))
	r.GET("/ping", func(c *gin.Context) {
		*seen = logctx.TraceID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestTraceIDFromHeaderIsPropagated(t *testing.T) {
	var seen string
	r := newRouter(&seen)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", w.Header().Get(HeaderRequestID))
}

func TestTraceIDGeneratedWhenMissing(t *testing.T) {
	var seen string
	r := newRouter(&seen)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.NotEmpty(t, seen)
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, w.Header().Get(HeaderRequestID))
}
