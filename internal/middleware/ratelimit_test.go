package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimiter_AllowAndDeny(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiterWithNow(2, time.Minute, func() time.Time { return clock })
	defer rl.Stop()

	if !rl.Allow("ip") {
		t.Fatalf("expected allow")
	}
	if !rl.Allow("ip") {
		t.Fatalf("expected allow")
	}
	if rl.Allow("ip") {
		t.Fatalf("expected deny")
	}
	if !rl.Allow("other-ip") {
		t.Fatalf("expected keys to be counted separately")
	}

	clock = clock.Add(time.Minute + time.Second)
	if !rl.Allow("ip") {
		t.Fatalf("expected allow after window")
	}
}

func TestRateLimiter_SweepDropsExpiredWindows(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiterWithNow(1, time.Minute, func() time.Time { return clock })
	defer rl.Stop()

	rl.Allow("ip")
	clock = clock.Add(2 * time.Minute)
	rl.sweep()

	rl.mu.Lock()
	n := len(rl.requests)
	rl.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected expired window swept, %d left", n)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()

	r := gin.New()
	r.POST("/login", RateLimitMiddleware(rl), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes: %v", codes)
	}
}
