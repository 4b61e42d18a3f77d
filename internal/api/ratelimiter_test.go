package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const apportionPayload = `{"parties":[{"party":"A","votes":100},{"party":"B","votes":80},{"party":"C","votes":20}],"seats":3}`

type staticLimiter struct {
	allow bool
	calls int
}

func (s *staticLimiter) Allow() bool {
	s.calls++
	return s.allow
}

func postApportion(router http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/apportion", strings.NewReader(apportionPayload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterBlocksApportionment(t *testing.T) {
	limiter := &staticLimiter{allow: false}
	router := newTestRouter(t, WithLogging(false), WithRateLimiter(limiter))

	rec := postApportion(router)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "allocations") {
		t.Fatalf("expected no apportionment result, got %s", rec.Body.String())
	}
	if limiter.calls != 1 {
		t.Fatalf("expected limiter to be consulted once, got %d", limiter.calls)
	}
}

func TestRateLimiterPassesApportionment(t *testing.T) {
	limiter := &staticLimiter{allow: true}
	router := newTestRouter(t, WithLogging(false), WithRateLimiter(limiter))

	rec := postApportion(router)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"allocations"`) {
		t.Fatalf("expected apportionment result, got %s", rec.Body.String())
	}
}

func TestWithRateLimitEnforcesBurstOnApportionment(t *testing.T) {
	router := newTestRouter(t, WithLogging(false), WithRateLimit(0.001, 2))

	for i := 0; i < 2; i++ {
		if rec := postApportion(router); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 within burst, got %d", i+1, rec.Code)
		}
	}
	if rec := postApportion(router); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected request beyond burst to be limited, got %d", rec.Code)
	}
}

func TestWithRateLimitZeroDisablesLimiting(t *testing.T) {
	router := newTestRouter(t, WithLogging(false), WithRateLimiter(&staticLimiter{allow: false}), WithRateLimit(0, 0))

	for i := 0; i < 5; i++ {
		if rec := postApportion(router); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected limiter to be disabled, got %d", i+1, rec.Code)
		}
	}
}

func TestNewTokenBucketLimiterClampsSettings(t *testing.T) {
	limiter := newTokenBucketLimiter(0, 0)
	if !limiter.Allow() {
		t.Fatalf("expected first request to be allowed")
	}
	if limiter.Allow() {
		t.Fatalf("expected burst of one after clamping")
	}
}
