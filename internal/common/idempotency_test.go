package common_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-giving/internal/common"
)

func newIdem(t *testing.T) (common.Idem, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return common.Idem{R: rdb, TTL: time.Minute}, mr
}

func post(h http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/donations", strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestIdemReplaysStoredResponse(t *testing.T) {
	idem, _ := newIdem(t)
	var calls atomic.Int32
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		common.JSON(w, http.StatusCreated, map[string]any{"call": n})
	}))

	first := post(h, "donation-1")
	require.Equal(t, http.StatusCreated, first.Code)

	second := post(h, "donation-1")
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.Equal(t, "application/json", second.Header().Get("Content-Type"))
	require.Equal(t, int32(1), calls.Load())

	other := post(h, "donation-2")
	require.Equal(t, http.StatusCreated, other.Code)
	require.Equal(t, int32(2), calls.Load())
}

func TestIdemRejectsConcurrentDuplicate(t *testing.T) {
	idem, mr := newIdem(t)
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	// simulate an in-flight first request
	require.NoError(t, mr.Set(common.ScopedKey("idem", http.MethodPost, "/api/v1/donations", "busy"), "pending"))

	rr := post(h, "busy")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "IDEMPOTENT_IN_PROGRESS")
}

func TestIdemDoesNotStoreServerErrors(t *testing.T) {
	idem, _ := newIdem(t)
	var calls atomic.Int32
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			common.JSONError(w, http.StatusBadGateway, common.CodeVendorError, "vendor down", nil)
			return
		}
		common.JSON(w, http.StatusCreated, map[string]string{"ok": "yes"})
	}))

	require.Equal(t, http.StatusBadGateway, post(h, "retry-me").Code)
	require.Equal(t, http.StatusCreated, post(h, "retry-me").Code)
	require.Equal(t, int32(2), calls.Load())
}

func TestIdemPassThroughWithoutKey(t *testing.T) {
	idem, _ := newIdem(t)
	var calls atomic.Int32
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	post(h, "")
	post(h, "")
	require.Equal(t, int32(2), calls.Load())
}
