package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://fika.example"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Origin", "https://fika.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://fika.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Fika-User-ID")
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	h := CORS([]string{"*"})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRateLimiterPerKey(t *testing.T) {
	limiter := NewRateLimiter(0.001, 2, func(r *http.Request) string {
		return r.Header.Get("X-Fika-User-ID")
	})
	h := limiter.Middleware(okHandler())

	do := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/schedule/generate", nil)
		req.Header.Set("X-Fika-User-ID", user)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("a"))
	assert.Equal(t, http.StatusOK, do("a"))
	assert.Equal(t, http.StatusTooManyRequests, do("a"), "burst exhausted")
	assert.Equal(t, http.StatusOK, do("b"), "buckets are per key")
}

func TestRateLimiterEvictsIdleBucketsPeriodically(t *testing.T) {
	limiter := NewRateLimiter(1, 1, nil)
	base := time.Now()

	limiter.allowAt("a", base)
	limiter.allowAt("b", base.Add(9*time.Minute+30*time.Second))
	assert.Len(t, limiter.limiters, 2, "a is not idle yet")

	limiter.allowAt("c", base.Add(10*time.Minute+15*time.Second))
	assert.Len(t, limiter.limiters, 3, "a is idle but no sweep is due")

	limiter.allowAt("d", base.Add(10*time.Minute+45*time.Second))
	assert.Len(t, limiter.limiters, 3)
	assert.NotContains(t, limiter.limiters, "a")
	assert.Contains(t, limiter.limiters, "b")
}
