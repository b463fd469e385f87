package httpmiddleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimitConfig configures the sliding window limiter.
type RateLimitConfig struct {
	// Max requests per Window and key.
	Max    int
	Window time.Duration
	// Key picks the bucket of a request. Defaults to the client IP.
	Key func(*gin.Context) string
}

// counter holds the counts of the current and the previous fixed window;
// the sliding estimate weights the previous one by its remaining overlap.
type counter struct {
	prev      float64
	curr      float64
	currStart time.Time
}

type limiter struct {
	max    int
	window time.Duration
	key    func(*gin.Context) string

	mu       sync.Mutex
	counters map[string]*counter
}

func newLimiter(cfg RateLimitConfig) *limiter {
	key := cfg.Key
	if key == nil {
		key = func(c *gin.Context) string { return c.ClientIP() }
	}
	return &limiter{
		max:      cfg.Max,
		window:   cfg.Window,
		key:      key,
		counters: make(map[string]*counter),
	}
}

// take consumes one request for key at now.
func (l *limiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, found := l.counters[key]
	if !found {
		c = &counter{currStart: now.Truncate(l.window)}
		l.counters[key] = c
	}
	if since := now.Sub(c.currStart); since >= l.window {
		if since >= 2*l.window {
			c.prev = 0
		} else {
			c.prev = c.curr
		}
		c.curr = 0
		c.currStart = now.Truncate(l.window)
	}

	overlap := 1 - now.Sub(c.currStart).Seconds()/l.window.Seconds()
	estimate := c.prev*max(overlap, 0) + c.curr
	reset = c.currStart.Add(l.window)
	if estimate >= float64(l.max) {
		return 0, reset, false
	}
	c.curr++
	return max(int(float64(l.max)-estimate-1), 0), reset, true
}

// evict drops counters idle for two windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, c := range l.counters {
		if now.Sub(c.currStart) >= 2*l.window {
			delete(l.counters, k)
		}
	}
}

// RateLimit limits requests per key with a sliding window. Rejected requests
// get 429 with Retry-After; every response carries X-RateLimit-* headers.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	return newLimiter(cfg).handler()
}

// RateLimitWithCleanup is RateLimit plus a goroutine evicting idle counters
// until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) gin.HandlerFunc {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * l.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evict(now)
			}
		}
	}()
	return l.handler()
}

func (l *limiter) handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		remaining, reset, ok := l.take(l.key(c), time.Now())

		c.Header("X-RateLimit-Limit", strconv.Itoa(l.max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if ok {
			c.Next()
			return
		}

		wait := max(time.Until(reset), 0)
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"code":    "rate_limited",
			"message": "rate limit exceeded",
		})
	}
}
