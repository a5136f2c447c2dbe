package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"huddle/pkg/config"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterSet hands out one token bucket per client IP. Buckets idle for
// longer than staleAfter are dropped on the next sweep so a scanner cannot
// grow the map without bound.
type limiterSet struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	limit      rate.Limit
	burst      int
	staleAfter time.Duration
	lastSweep  time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		buckets:    make(map[string]*bucket),
		limit:      limit,
		burst:      burst,
		staleAfter: 10 * time.Minute,
		lastSweep:  time.Now(),
	}
}

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.Sub(s.lastSweep) > s.staleAfter {
		for k, b := range s.buckets {
			if now.Sub(b.lastSeen) > s.staleAfter {
				delete(s.buckets, k)
			}
		}
		s.lastSweep = now
	}

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}

// clientIP resolves the caller's address, trusting the first entry of
// X-Forwarded-For when a proxy set it.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewHTTPRateLimitMiddleware throttles the sessions API: a per-IP token
// bucket plus an optional global concurrency cap. Disabled config yields a
// pass-through handler.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimiting.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	limiters := newLimiterSet(
		rate.Limit(cfg.RateLimiting.HTTP.RequestsPerSecond),
		cfg.RateLimiting.HTTP.Burst,
	)

	var inFlight chan struct{}
	if cfg.RateLimiting.HTTP.MaxConcurrent > 0 {
		inFlight = make(chan struct{}, cfg.RateLimiting.HTTP.MaxConcurrent)
	}

	return func(c *gin.Context) {
		if inFlight != nil {
			select {
			case inFlight <- struct{}{}:
				defer func() { <-inFlight }()
			default:
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"error": "too many concurrent requests",
				})
				return
			}
		}

		if !limiters.allow(clientIP(c.Request)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
