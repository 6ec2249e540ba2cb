package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"tezrelay/pkg/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSHeadersForAllowedOrigin(t *testing.T) {
	var cfg config.SecurityConfig
	cfg.CORS.AllowedOrigins = []string{"https://app.example.com"}
	h := Middleware(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/tez/stream", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// A foreign origin gets no CORS grant but the request still runs.
	req = httptest.NewRequest(http.MethodGet, "/tez/stream", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPreflightShortCircuits(t *testing.T) {
	var cfg config.SecurityConfig
	cfg.CORS.AllowedOrigins = []string{"*"}
	h := Middleware(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/tez/share", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestIPWhitelistBlocks(t *testing.T) {
	cfg := config.SecurityConfig{IPWhitelist: []string{"10.0.0.1"}}
	h := Middleware(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/tez/stream", nil)
	req.RemoteAddr = "10.0.0.1:55123"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/tez/stream", nil)
	req.RemoteAddr = "192.168.1.9:55123"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRateLimitKicksIn(t *testing.T) {
	var cfg config.SecurityConfig
	cfg.RateLimit.RPS = 1
	cfg.RateLimit.Burst = 2
	h := Middleware(cfg)(okHandler())

	statuses := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/tez/share", nil)
		req.RemoteAddr = "10.1.2.3:40000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}
	assert.Equal(t, http.StatusOK, statuses[0])
	assert.Equal(t, http.StatusOK, statuses[1])
	assert.Equal(t, http.StatusTooManyRequests, statuses[2])
	assert.Equal(t, http.StatusTooManyRequests, statuses[3])
}

func TestProbesBypassRateLimit(t *testing.T) {
	var cfg config.SecurityConfig
	cfg.RateLimit.RPS = 1
	cfg.RateLimit.Burst = 1
	h := Middleware(cfg)(okHandler())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.1.2.3:40000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestLimiterKeyPrefersToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/unread", nil)
	req.RemoteAddr = "10.0.0.7:1234"
	assert.Equal(t, "10.0.0.7", limiterKey(req))

	req.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "Bearer abc", limiterKey(req))
}
