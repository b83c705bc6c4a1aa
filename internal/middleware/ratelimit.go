package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// InMemoryRateLimiter keeps a sliding window of request times per key. It is process local;
// the per-order lock, not this limiter, is what protects reconciliation across replicas.
type InMemoryRateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
}

func NewInMemoryRateLimiter(limit int, window time.Duration) *InMemoryRateLimiter {
	l := &InMemoryRateLimiter{hits: make(map[string][]time.Time), limit: limit, window: window}
	go l.sweep(time.Minute)
	return l
}

// live drops hits older than the window. The caller holds mu.
func (l *InMemoryRateLimiter) live(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	hits := l.hits[key]
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]
	if len(hits) == 0 {
		delete(l.hits, key)
		return nil
	}
	l.hits[key] = hits
	return hits
}

// Take records a hit for key when it is under the limit and reports what is left afterwards.
func (l *InMemoryRateLimiter) Take(key string) (ok bool, remaining int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	hits := l.live(key, now)
	if len(hits) >= l.limit {
		return false, 0
	}
	l.hits[key] = append(hits, now)
	return true, l.limit - len(hits) - 1
}

func (l *InMemoryRateLimiter) Allow(key string) bool {
	ok, _ := l.Take(key)
	return ok
}

func (l *InMemoryRateLimiter) sweep(every time.Duration) {
	tick := time.NewTicker(every)
	defer tick.Stop()
	for now := range tick.C {
		l.mu.Lock()
		for key := range l.hits {
			l.live(key, now)
		}
		l.mu.Unlock()
	}
}

// RateLimit limits by client IP.
func RateLimit(limiter *InMemoryRateLimiter) gin.HandlerFunc {
	return RateLimitBy(limiter, func(c *gin.Context) string { return c.ClientIP() })
}

// RateLimitByUser keys checkout creation on the caller, falling back to the client IP.
func RateLimitByUser(limiter *InMemoryRateLimiter) gin.HandlerFunc {
	return RateLimitBy(limiter, func(c *gin.Context) string {
		if id := GetUserID(c); id != 0 {
			return "user:" + strconv.FormatUint(uint64(id), 10)
		}
		return "ip:" + c.ClientIP()
	})
}

func RateLimitBy(limiter *InMemoryRateLimiter, key func(*gin.Context) string) gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(limiter.window.Seconds()))
	return func(c *gin.Context) {
		ok, remaining := limiter.Take(key(c))
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests", "code": "rate_limited"})
			return
		}
		c.Next()
	}
}
