package utils

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interval Tests

func TestOverlaps(t *testing.T) {
	base := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time {
		return base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
	}

	tests := []struct {
		name     string
		startA   time.Time
		endA     time.Time
		startB   time.Time
		endB     time.Time
		expected bool
	}{
		{"partial overlap", at(0, 0), at(2, 0), at(1, 0), at(3, 0), true},
		{"contained", at(0, 0), at(4, 0), at(1, 0), at(2, 0), true},
		{"identical", at(0, 0), at(2, 0), at(0, 0), at(2, 0), true},
		{"touching end to start", at(0, 0), at(2, 0), at(2, 0), at(3, 0), false},
		{"touching start to end", at(2, 0), at(3, 0), at(0, 0), at(2, 0), false},
		{"disjoint", at(0, 0), at(1, 0), at(2, 0), at(3, 0), false},
		{"empty interval", at(1, 0), at(1, 0), at(0, 0), at(3, 0), false},
		{"inverted interval", at(2, 0), at(1, 0), at(0, 0), at(3, 0), false},
		{"one minute overlap", at(0, 0), at(1, 1), at(1, 0), at(2, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Overlaps(tt.startA, tt.endA, tt.startB, tt.endB))
			assert.Equal(t, tt.expected, Overlaps(tt.startB, tt.endB, tt.startA, tt.endA), "symmetric")
		})
	}
}

func TestIntersection(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Hour, Intersection(base, base.Add(2*time.Hour), base.Add(time.Hour), base.Add(3*time.Hour)))
	assert.Equal(t, 30*time.Minute, Intersection(base, base.Add(4*time.Hour), base.Add(time.Hour), base.Add(90*time.Minute)))
	assert.Zero(t, Intersection(base, base.Add(time.Hour), base.Add(time.Hour), base.Add(2*time.Hour)))
}

// Code Tests

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(4)
	require.NoError(t, err)

	assert.Len(t, code, 8)
	assert.Equal(t, strings.ToUpper(code), code)
}

func TestTicketCode(t *testing.T) {
	code, err := TicketCode("evt_abcdef123")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(code, "EVT-DEF123-"), code)
	assert.Len(t, code, len("EVT-DEF123-")+8)

	other, err := TicketCode("evt_abcdef123")
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

// Circuit Breaker Tests

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(clock *fakeClock) *CircuitBreaker {
	return NewCircuitBreaker("test",
		WithMinRequests(5),
		WithFailureRatio(0.6),
		WithOpenTimeout(time.Second),
		WithClock(clock.Now),
	)
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("pubnub")

	assert.Equal(t, "pubnub", cb.Name())
	assert.Equal(t, uint32(10), cb.minRequests)
	assert.Equal(t, 0.6, cb.failureRatio)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_ExecuteSuccessAndFailure(t *testing.T) {
	cb := newTestBreaker(&fakeClock{now: time.Unix(0, 0)})
	ctx := context.Background()

	require.NoError(t, cb.Execute(ctx, func(context.Context) error { return nil }))

	expected := errors.New("publish failed")
	err := cb.Execute(ctx, func(context.Context) error { return expected })
	assert.ErrorIs(t, err, expected)

	counts := cb.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.TotalFailures)
}

func TestCircuitBreaker_ClosedToOpen(t *testing.T) {
	cb := newTestBreaker(&fakeClock{now: time.Unix(0, 0)})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.NoError(t, cb.Execute(ctx, func(context.Context) error { return nil }))
	}
	for i := 0; i < 3; i++ {
		assert.Error(t, cb.Execute(ctx, func(context.Context) error { return errors.New("failure") }))
	}

	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(ctx, func(context.Context) error {
		t.Fatal("must not run while open")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return errors.New("failure") })
	}
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(2 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, func(context.Context) error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return errors.New("failure") })
	}
	clock.Advance(2 * time.Second)

	assert.Error(t, cb.Execute(ctx, func(context.Context) error { return errors.New("still down") }))
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenAllowsSingleProbe(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return errors.New("failure") })
	}
	clock.Advance(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := cb.Execute(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrTooManyRequests)

	close(release)
	assert.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_IntervalResetsCounts(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := NewCircuitBreaker("test", WithMinRequests(3), WithInterval(time.Minute), WithClock(clock.Now))
	ctx := context.Background()

	_ = cb.Execute(ctx, func(context.Context) error { return errors.New("failure") })
	_ = cb.Execute(ctx, func(context.Context) error { return errors.New("failure") })
	clock.Advance(2 * time.Minute)
	_ = cb.Execute(ctx, func(context.Context) error { return errors.New("failure") })

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(1), cb.Counts().Requests)
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func(context.Context) error {
		t.Fatal("must not run with a cancelled context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, cb.Counts().Requests)
}

func TestCircuitBreaker_PanicRecovery(t *testing.T) {
	cb := NewCircuitBreaker("panic-test")
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = cb.Execute(ctx, func(context.Context) error {
			panic("test panic")
		})
	})
	assert.Equal(t, uint32(1), cb.Counts().TotalFailures)

	assert.NoError(t, cb.Execute(ctx, func(context.Context) error { return nil }))
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker("concurrent-test", WithMinRequests(1000))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_ = cb.Execute(ctx, func(context.Context) error {
				if id%10 == 0 {
					return errors.New("simulated failure")
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	counts := cb.Counts()
	assert.Equal(t, uint32(100), counts.Requests)
	assert.Equal(t, uint32(10), counts.TotalFailures)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
}

// Redis Client Tests

func TestRedisHealthCheck_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()

	mock.ExpectPing().SetVal("PONG")

	err := RedisHealthCheck(context.Background(), db)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisHealthCheck_Failure(t *testing.T) {
	db, mock := redismock.NewClientMock()

	mock.ExpectPing().SetErr(errors.New("connection failed"))

	err := RedisHealthCheck(context.Background(), db)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis health check failed")
	assert.Contains(t, err.Error(), "connection failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func BenchmarkCircuitBreaker_Execute(b *testing.B) {
	cb := NewCircuitBreaker("benchmark")
	ctx := context.Background()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = cb.Execute(ctx, func(context.Context) error { return nil })
		}
	})
}
