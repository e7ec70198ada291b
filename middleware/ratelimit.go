package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"bookgate/config"
	"bookgate/logging"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles HTTP requests per client IP
type RateLimiter struct {
	limiters map[string]*clientLimiter
	mu       sync.Mutex
	config   *config.Config
	logger   *logging.Logger
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter middleware
func NewRateLimiter(cfg *config.Config) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		config:   cfg,
		logger:   logging.GetLogger(),
		now:      time.Now,
	}
}

// getLimiter returns or creates the limiter for a client
func (rl *RateLimiter) getLimiter(clientIP string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if cl, ok := rl.limiters[clientIP]; ok {
		cl.lastSeen = rl.now()
		return cl.limiter
	}

	requestsPerMin := rl.config.Security.RateLimiting.RequestsPerMin
	burst := rl.config.Security.RateLimiting.Burst
	ratePerSec := float64(requestsPerMin) / 60.0

	cl := &clientLimiter{
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), burst),
		lastSeen: rl.now(),
	}
	rl.limiters[clientIP] = cl
	return cl.limiter
}

// Middleware returns a gin handler that answers 429 once a client's
// bucket is empty.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.config.Security.RateLimiting.Enabled {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		limiter := rl.getLimiter(clientIP)

		reservation := limiter.ReserveN(rl.now(), 1)
		if !reservation.OK() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		if delay := reservation.DelayFrom(rl.now()); delay > 0 {
			reservation.CancelAt(rl.now())
			rl.logger.Warn("Rate limit exceeded for client %s on %s (retry in %v)",
				clientIP, c.FullPath(), delay.Round(time.Second))

			c.Header("Retry-After", fmt.Sprintf("%d", retryAfterSeconds(delay)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": FormatRateLimitError(delay)})
			return
		}

		c.Next()
	}
}

func retryAfterSeconds(delay time.Duration) int {
	secs := int((delay + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// PrintRateLimitInfo logs the current rate limit configuration
func (rl *RateLimiter) PrintRateLimitInfo(serviceName string) {
	if !rl.config.Security.RateLimiting.Enabled {
		rl.logger.Startup("Rate limiting: DISABLED")
		return
	}

	requestsPerMin := rl.config.Security.RateLimiting.RequestsPerMin
	burst := rl.config.Security.RateLimiting.Burst

	rl.logger.Startup(
		"Rate limiting: ENABLED - %d requests/min (burst: %d) for %s",
		requestsPerMin,
		burst,
		serviceName,
	)

	if requestsPerMin > 0 {
		avgTimeBetween := time.Minute / time.Duration(requestsPerMin)
		rl.logger.Startup("Average time between allowed requests: %v", avgTimeBetween.Round(time.Second))
	}
}

// Cleanup drops limiters for clients not seen within maxAge and returns
// how many were removed.
func (rl *RateLimiter) Cleanup(maxAge time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxAge)
	removed := 0
	for ip, cl := range rl.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every interval until stop is closed
func (rl *RateLimiter) StartCleanup(interval, maxAge time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if n := rl.Cleanup(maxAge); n > 0 {
					rl.logger.Debug("Rate limiter dropped %d idle clients", n)
				}
			}
		}
	}()
}

// GetCurrentLimit returns the current rate limit configuration
func (rl *RateLimiter) GetCurrentLimit() (requestsPerMin int, burst int, enabled bool) {
	return rl.config.Security.RateLimiting.RequestsPerMin,
		rl.config.Security.RateLimiting.Burst,
		rl.config.Security.RateLimiting.Enabled
}

// FormatRateLimitError creates a user-friendly error message for rate limit exceeded
func FormatRateLimitError(delay time.Duration) string {
	return fmt.Sprintf("rate limit exceeded, try again in %v", delay.Round(time.Second))
}
