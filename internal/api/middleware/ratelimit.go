package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/Vasilion/UnyX-Social/pkg/response"
)

// RateLimiter 按调用方（用户ID，匿名时按 IP）限流
type RateLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration

	mu       sync.Mutex
	limiters map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		ttl:      10 * time.Minute,
		limiters: make(map[string]*visitor),
	}
}

// Allow reports whether key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.limiters[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = v
		// 顺带清理长时间不活跃的条目
		for k, old := range rl.limiters {
			if now.Sub(old.lastSeen) > rl.ttl && k != key {
				delete(rl.limiters, k)
			}
		}
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if id := Caller(c); id.Authenticated {
			key = "user:" + id.UserID
		}
		if !rl.Allow(key) {
			response.TooManyRequests(c)
			return
		}
		c.Next()
	}
}
