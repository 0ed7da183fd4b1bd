package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per caller. Buckets idle for longer
// than ttl are swept by Run.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	r       rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

func NewRateLimiter(r rate.Limit, burst int, ttl time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		r:       r,
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.r, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = rl.now()
	return b.lim.Allow()
}

func (rl *RateLimiter) sweep() {
	cutoff := rl.now().Add(-rl.ttl)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// Run sweeps idle buckets until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

// RateLimit throttles per authenticated user and route. Anonymous callers
// fall back to their client IP, so this works in front of AuthMiddleware too.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.ClientIP()
		if id := GetUserID(c); id != uuid.Nil {
			caller = id.String()
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		if !rl.Allow(caller + "|" + route) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "too many requests",
			})
			return
		}
		c.Next()
	}
}
