package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is a fixed-window counter per key.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string]*window
	limit    int
	period   time.Duration
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type window struct {
	count   int
	resetAt time.Time
}

func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	return NewRateLimiterWithNow(limit, period, time.Now)
}

func NewRateLimiterWithNow(limit int, period time.Duration, now func() time.Time) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string]*window),
		limit:    limit,
		period:   period,
		now:      now,
		stop:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Stop ends the background sweep.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanup() {
	if rl.period <= 0 {
		return
	}

	ticker := time.NewTicker(rl.period)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, w := range rl.requests {
		if now.After(w.resetAt) {
			delete(rl.requests, key)
		}
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, exists := rl.requests[key]
	if !exists || now.After(w.resetAt) {
		rl.requests[key] = &window{count: 1, resetAt: now.Add(rl.period)}
		return true
	}

	if w.count >= rl.limit {
		return false
	}

	w.count++
	return true
}

// RateLimitMiddleware limits requests per client IP.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if !rl.Allow(key) {
			slog.Warn("rate limit exceeded", "client_ip", key, "path", c.FullPath())
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
