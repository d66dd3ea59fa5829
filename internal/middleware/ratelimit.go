package middleware

import (
	"dream-san/internal/auth"
	"dream-san/internal/logger"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per authenticated user, falling back to the client address
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		now:      time.Now,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = rl.now()
	return entry.limiter
}

func requestKey(r *http.Request) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return "user:" + claims.UserID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// Limit wraps next and answers 429 once the caller's bucket is empty
func (rl *RateLimiter) Limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := requestKey(r)

		if !rl.getLimiter(key).Allow() {
			logger.Log.WithFields(logrus.Fields{
				"key":    key,
				"path":   r.URL.Path,
				"method": r.Method,
			}).Warn("Rate limit exceeded")

			retryAfter := 1
			if rl.rate > 0 {
				retryAfter = int(math.Ceil(1 / float64(rl.rate)))
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"error":   "rate limit exceeded",
				"code":    http.StatusTooManyRequests,
				"message": "Too many requests, please slow down",
			})
			return
		}

		next.ServeHTTP(w, r)
	}
}

// Cleanup removes limiters idle for longer than maxIdle
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxIdle)
	removed := 0
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// StartCleanup periodically drops idle limiters until stop is closed
func (rl *RateLimiter) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := rl.Cleanup(interval); removed > 0 {
					logger.Log.WithField("removed", removed).Debug("Dropped idle rate limiters")
				}
			case <-stop:
				return
			}
		}
	}()
}
