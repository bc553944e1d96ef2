package middlewares

import (
	"net/http"
	"sync"
	"time"

	"github.com/THPTUHA/livelook/server/httpserver/helper"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterIdle     = 3 * time.Minute
	limiterPruneLen = 1024
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[ip]
	if !ok {
		if len(l.visitors) >= limiterPruneLen {
			l.prune(now)
		}
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *IPRateLimiter) prune(now time.Time) {
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > limiterIdle {
			delete(l.visitors, ip)
		}
	}
}

// RateLimit rejects requests over the per-IP budget with 429. A nil limiter
// lets everything through.
func RateLimit(l *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		if !l.Allow(c.ClientIP()) {
			helper.RespondError(c, http.StatusTooManyRequests, helper.MsgTooManyRequest)
			return
		}
		c.Next()
	}
}
