package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// FixedWindow is an in-memory per-IP rate limiter with a fixed window; for
// multi-instance deployments swap to Redis.
type FixedWindow struct {
	limit   int
	window  time.Duration
	message string

	mu    sync.Mutex
	state map[string]*windowState

	now func() time.Time
}

type windowState struct {
	count int
	reset time.Time
}

// NewFixedWindow creates a limiter allowing limit requests per window per
// client IP. The message is returned verbatim on rejection.
func NewFixedWindow(limit int, window time.Duration, message string) *FixedWindow {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	if message == "" {
		message = "Too many requests, please try again later."
	}
	return &FixedWindow{
		limit:   limit,
		window:  window,
		message: message,
		state:   make(map[string]*windowState),
		now:     time.Now,
	}
}

// GinMiddleware returns a gin handler enforcing the limit.
func (l *FixedWindow) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "message": l.message})
			return
		}
		c.Next()
	}
}

func (l *FixedWindow) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	w, ok := l.state[key]
	if !ok || now.After(w.reset) {
		l.state[key] = &windowState{count: 1, reset: now.Add(l.window)}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}
