package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func hit(h http.Handler, remote string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiterThrottlesPerVisitor(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerSecond: 0.001, Burst: 2}, nil)
	h := limiter.Middleware("test")(okHandler())

	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1000"))
	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1001"))
	require.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1002"))
	require.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1000"))
}

func TestRateLimiterDisabled(t *testing.T) {
	h := NewRateLimiter(RateLimit{}, nil).Middleware("test")(okHandler())
	for i := 0; i < 50; i++ {
		require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1000"))
	}
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerSecond: 0.001, Burst: 1}, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.clockNow = func() time.Time { return now }
	h := limiter.Middleware("test")(okHandler())

	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1000"))
	require.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1000"))

	now = now.Add(10 * time.Minute)
	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1000"))
}

func TestVisitorIDPrefersCaller(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	require.Equal(t, "ip:192.0.2.1", visitorID(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "ip:203.0.113.9", visitorID(req))

	req = req.WithContext(WithCaller(req.Context(), member))
	require.Equal(t, "caller:"+member.String(), visitorID(req))
}
