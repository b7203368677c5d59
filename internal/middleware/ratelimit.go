package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizrunner/internal/response"
)

// RateLimiter implements a token bucket per caller. Authenticated callers
// are keyed by user id so learners behind one school NAT do not share a
// bucket; anonymous callers fall back to the client IP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // Tokens per interval
	interval time.Duration // Refill interval
	now      func() time.Time
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter (e.g., 20 requests per minute).
func NewRateLimiter(rate int, interval time.Duration) *RateLimiter {
	rl := newRateLimiter(rate, interval, time.Now)

	// Cleanup stale visitors every minute.
	go func() {
		for range time.Tick(time.Minute) {
			rl.cleanup()
		}
	}()

	return rl
}

func newRateLimiter(rate int, interval time.Duration, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		interval: interval,
		now:      now,
	}
}

// Middleware returns a Gin middleware that rate-limits requests. Mount it
// after the JWT middleware to key by user.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(visitorKey(c)) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{tokens: rl.rate, lastSeen: now}
		rl.visitors[key] = v
	}

	// Refill whole intervals only; lastSeen advances by the refilled span.
	if periods := int(now.Sub(v.lastSeen) / rl.interval); periods > 0 {
		v.tokens = min(rl.rate, v.tokens+periods*rl.rate)
		v.lastSeen = v.lastSeen.Add(time.Duration(periods) * rl.interval)
	}

	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-3 * rl.interval)
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
		}
	}
}

func visitorKey(c *gin.Context) string {
	if claims := GetClaims(c); claims != nil {
		return string(claims.TokenType) + ":" + strconv.Itoa(claims.UserID)
	}
	return "ip:" + c.ClientIP()
}
