package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	redismock "github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/flowmesh/reliable-commands/internal/config"
)

func newOKRouter(middlewares ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	for _, m := range middlewares {
		r.Use(m)
	}
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestLoggingMiddleware_PassesRequestThrough(t *testing.T) {
	r := newOKRouter(LoggingMiddleware(zap.NewNop().Sugar()))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLocalRateLimitMiddleware_BlocksAfterBurst(t *testing.T) {
	r := newOKRouter(LocalRateLimitMiddleware(1, 2))

	var codes []int
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "203.0.113.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Contains(t, codes, http.StatusTooManyRequests, "the burst of 2 must exhaust before the 4th request")
}

func TestRedisRateLimitMiddleware_AllowsUnderLimit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	rl := config.RateLimitConfig{RPS: 10, Burst: 10, Window: 0}
	r := newOKRouter(RedisRateLimitMiddleware(rdb, rl))

	mock.Regexp().ExpectIncr(`ratelimit:.*`).SetVal(1)
	mock.Regexp().ExpectExpire(`ratelimit:.*`, time.Second).SetVal(true)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "203.0.113.2:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRedisRateLimitMiddleware_BlocksOverLimit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	rl := config.RateLimitConfig{RPS: 1, Burst: 1, Window: 0}
	r := newOKRouter(RedisRateLimitMiddleware(rdb, rl))

	mock.Regexp().ExpectIncr(`ratelimit:.*`).SetVal(2)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "203.0.113.3:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRedisRateLimitMiddleware_DegradesToAllowOnRedisError(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	rl := config.RateLimitConfig{RPS: 1, Burst: 1, Window: 0}
	r := newOKRouter(RedisRateLimitMiddleware(rdb, rl))

	mock.Regexp().ExpectIncr(`ratelimit:.*`).SetErr(errors.New("redis unavailable"))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "203.0.113.4:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
