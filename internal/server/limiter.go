package server

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ipLimiter is a token bucket per client IP: max requests per window, refilled
// evenly across the window.
type ipLimiter struct {
	window time.Duration
	max    int

	mu      sync.Mutex
	clients map[string]*client
	now     func() time.Time
}

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

func newIPLimiter(window time.Duration, max int) *ipLimiter {
	return &ipLimiter{
		window:  window,
		max:     max,
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.clients[ip]
	if !ok {
		l.evict(now)
		cl = &client{lim: rate.NewLimiter(rate.Every(l.window/time.Duration(l.max)), l.max)}
		l.clients[ip] = cl
	}
	cl.seen = now
	return cl.lim.AllowN(now, 1)
}

// evict forgets clients idle for a full window; their buckets are full again.
func (l *ipLimiter) evict(now time.Time) {
	for ip, cl := range l.clients {
		if now.Sub(cl.seen) > l.window {
			delete(l.clients, ip)
		}
	}
}

func (l *ipLimiter) middleware(message string) gin.HandlerFunc {
	retryAfter := int(math.Ceil(l.window.Minutes()))
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      message,
				"retryAfter": retryAfter,
			})
			return
		}
		c.Next()
	}
}
