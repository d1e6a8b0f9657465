package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandveil/sandveil/internal/infrastructure/config"
	"github.com/sandveil/sandveil/internal/shared/id"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func get(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitBlocksBeyondBurst(t *testing.T) {
	r := newEngine(RateLimit(config.RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             2,
		Enabled:           true,
	}))

	assert.Equal(t, http.StatusOK, get(r, nil).Code)
	assert.Equal(t, http.StatusOK, get(r, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, nil).Code)
}

func TestRateLimitDisabled(t *testing.T) {
	r := newEngine(RateLimit(config.RateLimitConfig{Enabled: false}))

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, get(r, nil).Code)
	}
}

func TestGlobalRateLimit(t *testing.T) {
	r := newEngine(GlobalRateLimit(config.RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             1,
		Enabled:           true,
	}))

	assert.Equal(t, http.StatusOK, get(r, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, nil).Code)
}

func TestRequestIDAssigned(t *testing.T) {
	r := newEngine(RequestID())

	w := get(r, nil)
	rid := w.Header().Get(RequestIDHeader)
	require.NotEmpty(t, rid)
	assert.True(t, len(rid) > len("req_"))
	assert.True(t, id.IsValid(rid[len("req_"):]))
}

func TestRequestIDHonorsCaller(t *testing.T) {
	r := newEngine(RequestID())

	w := get(r, map[string]string{RequestIDHeader: "req_custom"})
	assert.Equal(t, "req_custom", w.Header().Get(RequestIDHeader))
}

func TestCORSHeaders(t *testing.T) {
	r := newEngine(CORS(DefaultCORSConfig()))

	w := get(r, map[string]string{"Origin": "http://example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
