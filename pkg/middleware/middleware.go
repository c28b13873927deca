package middleware

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/ksred/klear-accumulate/internal/auth"
	"github.com/ksred/klear-accumulate/pkg/response"
)

// AccountKey is the gin context key holding the authenticated account
const AccountKey = "account"

// Limits per route class, in requests per second
type Limits struct {
	Orders rate.Limit
	Quotes rate.Limit
	Burst  int
}

// DefaultLimits allows a polling client comfortable headroom
func DefaultLimits() Limits {
	return Limits{
		Orders: rate.Limit(600.0 / 60.0),  // 600 requests per minute
		Quotes: rate.Limit(1200.0 / 60.0), // 1200 requests per minute
		Burst:  5,
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks a token bucket per caller and route class
type Limiter struct {
	limits Limits

	mu       sync.Mutex
	visitors map[string]*visitor
}

// NewLimiter creates a limiter; call Cleanup to evict idle callers
func NewLimiter(limits Limits) *Limiter {
	if limits.Burst < 1 {
		limits.Burst = 1
	}
	return &Limiter{
		limits:   limits,
		visitors: make(map[string]*visitor),
	}
}

func (l *Limiter) get(path, caller string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	class, limit := "other", rate.Inf
	switch {
	case strings.Contains(path, "/orders"):
		class, limit = "orders", l.limits.Orders
	case strings.HasSuffix(path, "/quote"):
		class, limit = "quotes", l.limits.Quotes
	}

	key := caller + ":" + class
	v, exists := l.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(limit, l.limits.Burst)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// Cleanup drops callers idle for longer than idle
func (l *Limiter) Cleanup(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, v := range l.visitors {
		if time.Since(v.lastSeen) > idle {
			delete(l.visitors, key)
		}
	}
}

// RateLimit rejects callers over their route budget with 429
func RateLimit(l *Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString(AccountKey)
		if caller == "" {
			caller = c.ClientIP()
		}

		if !l.get(c.FullPath(), caller).Allow() {
			response.TooManyRequests(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// APIKeyAuth validates the venue API key in header and stores the account it
// names in the context
func APIKeyAuth(svc *auth.Service, header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(header))
		if key == "" {
			response.Unauthorized(c, "API key required")
			c.Abort()
			return
		}

		claims, err := svc.Validate(key)
		if err != nil {
			log.Debug().Err(err).Str("path", c.FullPath()).Msg("rejected API key")
			response.Unauthorized(c, "Invalid API key")
			c.Abort()
			return
		}

		c.Set(AccountKey, claims.Account)
		c.Next()
	}
}

// RequestLogger logs each request with zerolog
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("account", c.GetString(AccountKey)).
			Msg("request")
	}
}
