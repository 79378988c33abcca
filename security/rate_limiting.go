package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter counts requests per caller in fixed windows stored in redis.
type RateLimiter struct {
	redis  redis.Cmdable
	max    int64
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(client redis.Cmdable, max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:  client,
		max:    int64(max),
		window: window,
		now:    time.Now,
	}
}

func (r *RateLimiter) windowKey(identifier string) string {
	bucket := r.now().Truncate(r.window).Unix()
	return fmt.Sprintf("ratelimit:%s:%d", identifier, bucket)
}

// Allow records a hit for identifier and reports whether it is still within
// the limit for the current window.
func (r *RateLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	key := r.windowKey(identifier)

	// INCR and EXPIRE commit together so no window key is left without a TTL.
	var incr *redis.IntCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, r.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("count request: %w", err)
	}
	return incr.Val() <= r.max, nil
}

// Middleware limits mutation routes by authenticated user, falling back to
// the client IP. When redis is unreachable requests pass through.
func (r *RateLimiter) Middleware(e *core.RequestEvent) error {
	if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
		return apis.NewForbiddenError("Access denied", nil)
	}

	identifier := "ip:" + clientIP(e)
	if e.Auth != nil {
		identifier = "user:" + e.Auth.Id
	}

	ok, err := r.Allow(e.Request.Context(), identifier)
	if err != nil {
		slog.Warn("Rate limiter unavailable", "identifier", identifier, "error", err)
		return e.Next()
	}
	if !ok {
		return apis.NewTooManyRequestsError("Rate limit exceeded. Please try again later.", nil)
	}
	return e.Next()
}

// clientIP honours the app's trusted proxy settings when an app is attached.
func clientIP(e *core.RequestEvent) string {
	if e.App == nil {
		return e.RemoteIP()
	}
	return e.RealIP()
}

func isSuspiciousUserAgent(ua string) bool {
	ua = strings.ToLower(ua)
	for _, pattern := range []string{"bot", "crawler", "spider", "scraper"} {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
