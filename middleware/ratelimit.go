package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateLimit provides per-IP token-bucket rate limiting.
// r = requests per second, b = burst size. A non-positive r disables limiting.
// Requests whose path is in exempt (e.g. the /sse and /ws streams) are never counted.
// Rejections carry a Retry-After header in whole seconds.
func RateLimit(r rate.Limit, b int, exempt ...string) gin.HandlerFunc {
	if r <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if b < 1 {
		b = 1
	}
	skip := make(map[string]bool, len(exempt))
	for _, p := range exempt {
		skip[p] = true
	}
	limiters := &sync.Map{}

	// Cleanup goroutine: remove stale entries every 5 minutes.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-10 * time.Minute).UnixNano()
			limiters.Range(func(k, v interface{}) bool {
				if v.(*ipLimiter).lastSeen.Load() < cutoff {
					limiters.Delete(k)
				}
				return true
			})
		}
	}()

	getLimiter := func(ip string) *rate.Limiter {
		v, _ := limiters.LoadOrStore(ip, &ipLimiter{limiter: rate.NewLimiter(r, b)})
		il := v.(*ipLimiter)
		il.lastSeen.Store(time.Now().UnixNano())
		return il.limiter
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}
		res := getLimiter(c.ClientIP()).Reserve()
		if d := res.Delay(); d > 0 {
			res.Cancel()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
