package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bobfox23/Certificate-tool/pkg/logger"
)

// RateLimiter enforces a fixed-window request budget per client IP.
// Each client gets its own window, so one noisy uploader does not reset
// the accounting for everyone else.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
	rate    int
	window  time.Duration
}

type clientWindow struct {
	count   int
	started time.Time
}

func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientWindow),
		rate:    rate,
		window:  window,
	}
}

// Allow records one request for the client and reports whether it fits
// the current window. The second return value is the seconds remaining
// until the window resets, for the Retry-After header.
func (l *RateLimiter) Allow(clientIP string, now time.Time) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.clients[clientIP]
	if !ok || now.Sub(w.started) > l.window {
		l.prune(now)
		l.clients[clientIP] = &clientWindow{count: 1, started: now}
		return true, 0
	}

	if w.count >= l.rate {
		retryAfter := int((l.window - now.Sub(w.started)).Seconds()) + 1
		return false, retryAfter
	}
	w.count++
	return true, 0
}

// prune drops expired windows. Called with the lock held, only when a
// new client window is being created, so steady traffic pays nothing.
func (l *RateLimiter) prune(now time.Time) {
	for ip, w := range l.clients {
		if now.Sub(w.started) > l.window {
			delete(l.clients, ip)
		}
	}
}

// RateLimit limits requests per client IP within a fixed window.
func RateLimit(rate int, window time.Duration) gin.HandlerFunc {
	limiter := NewRateLimiter(rate, window)

	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		ok, retryAfter := limiter.Allow(clientIP, time.Now())
		if !ok {
			logger.Warn(c.Request.Context(), "rate limit exceeded",
				"client_ip", clientIP,
			)

			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}

		c.Next()
	}
}
