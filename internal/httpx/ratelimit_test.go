package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/products", nil)

	r.RemoteAddr = "203.0.113.7:40001"
	assert.Equal(t, "203.0.113.7", clientIP(r))

	r.RemoteAddr = "[2001:db8::1]:40001"
	assert.Equal(t, "2001:db8::1", clientIP(r))

	// RealIP rewrites RemoteAddr to a bare IP behind a proxy.
	r.RemoteAddr = "203.0.113.7"
	assert.Equal(t, "203.0.113.7", clientIP(r))
}

func TestRateLimitCountsPerIP(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := RateLimit(rdb, 2, 15*time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/products", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	// Each request arrives on a fresh connection, so the port differs; the
	// counter must still be shared across them.
	assert.Equal(t, http.StatusNoContent, do("203.0.113.7:40001"))
	assert.Equal(t, http.StatusNoContent, do("203.0.113.7:40002"))
	assert.Equal(t, http.StatusTooManyRequests, do("203.0.113.7:40003"))

	// Another client has its own budget.
	assert.Equal(t, http.StatusNoContent, do("198.51.100.9:40001"))
}

func TestRateLimitFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	h := RateLimit(rdb, 1, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	req.RemoteAddr = "203.0.113.7:40001"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
