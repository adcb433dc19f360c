package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// FixedWindowRateLimiter is separate from the token-bucket IPRateLimiter in
// middleware.go; it exists to report accurate remaining/reset counts in
// response headers, which a token bucket can't do cheaply.
type FixedWindowRateLimiter struct {
	requests    sync.Map
	limit       int64
	windowSecs  int64
	cleanupStop chan struct{}
}

type fixedWindowEntry struct {
	count       int64
	windowStart int64
}

var (
	headerRateLimiter     *FixedWindowRateLimiter
	headerRateLimiterOnce sync.Once
)

func NewFixedWindowRateLimiter(limit int64, windowSecs int64) *FixedWindowRateLimiter {
	rl := &FixedWindowRateLimiter{
		limit:       limit,
		windowSecs:  windowSecs,
		cleanupStop: make(chan struct{}),
	}
	go rl.cleanupExpiredEntries()
	return rl
}

// getHeaderRateLimiter returns the singleton used by RateLimitHeaders: 1000
// requests per hour per client.
func getHeaderRateLimiter() *FixedWindowRateLimiter {
	headerRateLimiterOnce.Do(func() {
		headerRateLimiter = NewFixedWindowRateLimiter(1000, 3600)
	})
	return headerRateLimiter
}

// Allow reports whether key may proceed, along with the remaining quota and
// seconds until the window resets.
func (rl *FixedWindowRateLimiter) Allow(key string) (bool, int64, int64) {
	now := time.Now().Unix()

	entryI, loaded := rl.requests.LoadOrStore(key, &fixedWindowEntry{
		count:       1,
		windowStart: now,
	})
	entry := entryI.(*fixedWindowEntry)

	if !loaded {
		return true, rl.limit - 1, rl.windowSecs
	}

	for {
		windowStart := atomic.LoadInt64(&entry.windowStart)
		if now-windowStart >= rl.windowSecs {
			if atomic.CompareAndSwapInt64(&entry.windowStart, windowStart, now) {
				atomic.StoreInt64(&entry.count, 1)
				return true, rl.limit - 1, rl.windowSecs
			}
			continue
		}
		break
	}

	windowStart := atomic.LoadInt64(&entry.windowStart)
	newCount := atomic.AddInt64(&entry.count, 1)
	remaining := rl.limit - newCount
	resetIn := rl.windowSecs - (now - windowStart)

	if remaining < 0 {
		remaining = 0
	}
	if resetIn < 0 {
		resetIn = 0
	}

	if newCount > rl.limit {
		atomic.AddInt64(&entry.count, -1)
		return false, 0, resetIn
	}

	return true, remaining, resetIn
}

func (rl *FixedWindowRateLimiter) cleanupExpiredEntries() {
	ticker := time.NewTicker(time.Duration(rl.windowSecs) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now().Unix()
			expireThreshold := now - (rl.windowSecs * 2)

			rl.requests.Range(func(key, value interface{}) bool {
				entry := value.(*fixedWindowEntry)
				if atomic.LoadInt64(&entry.windowStart) < expireThreshold {
					rl.requests.Delete(key)
				}
				return true
			})
		case <-rl.cleanupStop:
			return
		}
	}
}

// StopCleanup stops the cleanup goroutine. Call on shutdown.
func (rl *FixedWindowRateLimiter) StopCleanup() {
	close(rl.cleanupStop)
}

// getClientIPForRateLimit prefers the proxy-forwarded client IP over the
// immediate peer address.
func getClientIPForRateLimit(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := c.GetHeader("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
		if idx := strings.LastIndex(ip, ":"); idx != -1 {
			ip = ip[:idx]
		}
	}
	return ip
}

// SecurityHeaders sets the standard hardening headers. The CSP allows
// websocket upgrades (connect-src ws:/wss:) since the terminal stream rides
// a WebSocket, but otherwise has no third-party script/style origins to
// allow since this is a JSON/WS API with no server-rendered HTML.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")

		csp := "default-src 'self'; " +
			"script-src 'self'; " +
			"style-src 'self'; " +
			"img-src 'self' data:; " +
			"connect-src 'self' wss: ws:; " +
			"frame-ancestors 'none';"
		c.Header("Content-Security-Policy", csp)

		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		if c.Request.URL.Path == "/auth/login" || c.Request.URL.Path == "/auth/register" {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
			c.Header("Pragma", "no-cache")
		}

		c.Next()
	}
}

// RateLimitHeaders enforces and reports the default 1000/hour window.
func RateLimitHeaders() gin.HandlerFunc {
	return rateLimitHeadersHandler(getHeaderRateLimiter())
}

// RateLimitHeadersWithConfig enforces and reports a caller-supplied window.
func RateLimitHeadersWithConfig(limit int64, windowSecs int64) gin.HandlerFunc {
	return rateLimitHeadersHandler(NewFixedWindowRateLimiter(limit, windowSecs))
}

func rateLimitHeadersHandler(limiter *FixedWindowRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := getClientIPForRateLimit(c)
		allowed, remaining, resetIn := limiter.Allow(clientKey)

		c.Header("X-RateLimit-Limit", strconv.FormatInt(limiter.limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetIn, 10))

		if !allowed {
			c.Header("Retry-After", strconv.FormatInt(resetIn, 10))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"code":        "RATE_LIMIT_EXCEEDED",
				"limit":       limiter.limit,
				"reset_in":    resetIn,
				"retry_after": resetIn,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
