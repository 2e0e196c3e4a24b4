package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/pesan-antar/internal/common"
)

func TestSlidingWindowAllow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := SlidingWindow{Client: client, Prefix: "test:"}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, remaining, _, err := l.Allow(ctx, "key", 2*time.Second, 2)
		require.NoError(t, err)
		require.True(t, allowed)
		require.Equal(t, 1-i, remaining)
	}
	allowed, remaining, _, err := l.Allow(ctx, "key", 2*time.Second, 2)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)
	require.True(t, mr.Exists("test:key"))
}

func TestFixedWindowAllow(t *testing.T) {
	l := Fixed{Store: memory.NewStore()}
	ctx := context.Background()
	allowed, remaining, reset, err := l.Allow(ctx, "voucher:user:u1", time.Minute, 2)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 1, remaining)
	require.True(t, reset.After(time.Now()))

	_, _, _, err = l.Allow(ctx, "voucher:user:u1", time.Minute, 2)
	require.NoError(t, err)
	allowed, _, _, err = l.Allow(ctx, "voucher:user:u1", time.Minute, 2)
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, _, _, err = l.Allow(ctx, "voucher:user:u2", time.Minute, 2)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestMiddlewareEnforcesLimit(t *testing.T) {
	handler := Handler{
		Limiter: Fixed{Store: memory.NewStore()},
		Config:  Config{Key: ByUser("voucher-apply"), Window: time.Minute, Max: 1},
	}
	next := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/checkout/vouchers", nil)
	req = req.WithContext(common.WithUserID(req.Context(), "u1"))

	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = httptest.NewRecorder()
	next.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Contains(t, rec.Body.String(), "RATE_LIMITED")
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, time.Duration, int) (bool, int, time.Time, error) {
	return false, 0, time.Time{}, context.DeadlineExceeded
}

func TestMiddlewareFailsOpen(t *testing.T) {
	var seen error
	handler := Handler{
		Limiter: failingLimiter{},
		Config:  Config{Key: ByUser("x"), Window: time.Minute, Max: 1},
		OnError: func(err error) { seen = err },
	}
	rec := httptest.NewRecorder()
	handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.ErrorIs(t, seen, context.DeadlineExceeded)
}

func TestByUserFallsBackToIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	require.Equal(t, "s:ip:10.1.2.3", ByUser("s")(req))
}
