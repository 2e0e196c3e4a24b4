package common

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newIdem(t *testing.T) Idem {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Idem{R: client, TTL: time.Minute}
}

func TestIdemReplaysSuccessfulResponse(t *testing.T) {
	idem := newIdem(t)
	calls := 0
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"id": "order-1"}})
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/submit", strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", "abc")
		req = req.WithContext(WithUserID(req.Context(), "user-1"))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusCreated, rr.Code)
		require.Contains(t, rr.Body.String(), "order-1")
		if i == 1 {
			require.Equal(t, "true", rr.Header().Get("Idempotent-Replay"))
		}
	}
	require.Equal(t, 1, calls)
}

func TestIdemReleasesKeyOnFailure(t *testing.T) {
	idem := newIdem(t)
	calls := 0
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			JSONError(w, http.StatusBadGateway, "ORDER_SUBMISSION_FAILED", "upstream failed", nil)
			return
		}
		JSON(w, http.StatusCreated, map[string]any{"data": "ok"})
	}))

	for _, want := range []int{http.StatusBadGateway, http.StatusCreated} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/submit", nil)
		req.Header.Set("Idempotency-Key", "retry-me")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, want, rr.Code)
	}
	require.Equal(t, 2, calls)
}

func TestIdemPassThroughWithoutHeader(t *testing.T) {
	idem := newIdem(t)
	calls := 0
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	}))
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/x", nil))
		require.Equal(t, http.StatusNoContent, rr.Code)
	}
	require.Equal(t, 3, calls)
}
