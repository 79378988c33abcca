package security

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 9, 15, 10, 0, 30, 0, time.UTC)

func newTestLimiter(max int) (*RateLimiter, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, max, time.Minute)
	limiter.now = func() time.Time { return fixedNow }
	return limiter, mock
}

func expectHit(mock redismock.ClientMock, key string, count int64) {
	mock.ExpectTxPipeline()
	mock.ExpectIncr(key).SetVal(count)
	mock.ExpectExpire(key, time.Minute).SetVal(true)
	mock.ExpectTxPipelineExec()
}

func TestAllow(t *testing.T) {
	limiter, mock := newTestLimiter(2)
	key := "ratelimit:user:u1:1757930400"

	expectHit(mock, key, 1)
	expectHit(mock, key, 2)
	expectHit(mock, key, 3)

	for _, want := range []bool{true, true, false} {
		ok, err := limiter.Allow(context.Background(), "user:u1")
		require.NoError(t, err)
		assert.Equal(t, want, ok)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllow_RedisError(t *testing.T) {
	limiter, mock := newTestLimiter(2)
	mock.ExpectTxPipeline()
	mock.ExpectIncr("ratelimit:ip:10.0.0.1:1757930400").SetErr(errors.New("connection refused"))

	ok, err := limiter.Allow(context.Background(), "ip:10.0.0.1")

	assert.False(t, ok)
	assert.ErrorContains(t, err, "connection refused")
}

func TestAllow_FailedExpireIsAnError(t *testing.T) {
	limiter, mock := newTestLimiter(2)
	key := "ratelimit:user:u1:1757930400"
	mock.ExpectTxPipeline()
	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, time.Minute).SetErr(errors.New("READONLY"))

	ok, err := limiter.Allow(context.Background(), "user:u1")

	assert.False(t, ok)
	assert.ErrorContains(t, err, "READONLY")
}

func requestEvent(userAgent string) *core.RequestEvent {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("User-Agent", userAgent)
	e := &core.RequestEvent{}
	e.Request = req
	e.Response = httptest.NewRecorder()
	return e
}

func TestMiddleware(t *testing.T) {
	limiter, mock := newTestLimiter(1)
	key := "ratelimit:ip:10.0.0.1:1757930400"
	expectHit(mock, key, 1)
	expectHit(mock, key, 2)

	assert.NoError(t, limiter.Middleware(requestEvent("Mozilla/5.0")))

	err := limiter.Middleware(requestEvent("Mozilla/5.0"))
	var apiErr *router.ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)

	err = limiter.Middleware(requestEvent("FancyCrawler/2.1"))
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMiddleware_FailsOpen(t *testing.T) {
	limiter, mock := newTestLimiter(1)
	mock.ExpectTxPipeline()
	mock.ExpectIncr("ratelimit:ip:10.0.0.1:1757930400").SetErr(errors.New("timeout"))

	assert.NoError(t, limiter.Middleware(requestEvent("Mozilla/5.0")))
}
