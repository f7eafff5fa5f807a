package security

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/raaihank/llm-veil/internal/config"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	config  config.RateLimitConfig
	buckets map[string]*bucket
	mu      sync.RWMutex
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:  cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow checks if a request from the given client IP is allowed
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.config.Enabled {
		return true
	}

	b := r.getBucket(clientIP)
	now := r.now()

	b.mu.Lock()
	b.lastSeen = now
	b.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// Tokens returns the tokens left for a client IP, or the burst size for an
// unknown client.
func (r *RateLimiter) Tokens(clientIP string) float64 {
	r.mu.RLock()
	b, exists := r.buckets[clientIP]
	r.mu.RUnlock()

	if !exists {
		return float64(r.burst())
	}
	return b.limiter.TokensAt(r.now())
}

func (r *RateLimiter) burst() int {
	if r.config.Burst > 0 {
		return r.config.Burst
	}
	return max(r.config.RequestsPerMin, 1)
}

// getBucket gets or creates a token bucket for a client IP
func (r *RateLimiter) getBucket(clientIP string) *bucket {
	r.mu.RLock()
	b, exists := r.buckets[clientIP]
	r.mu.RUnlock()

	if exists {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if b, exists := r.buckets[clientIP]; exists {
		return b
	}

	perSecond := rate.Limit(float64(r.config.RequestsPerMin) / 60.0)
	b = &bucket{
		limiter:  rate.NewLimiter(perSecond, r.burst()),
		lastSeen: r.now(),
	}
	r.buckets[clientIP] = b
	return b
}

// CleanupOldBuckets removes buckets not used within idle.
func (r *RateLimiter) CleanupOldBuckets(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idle)
	removed := 0
	for ip, b := range r.buckets {
		b.mu.Lock()
		stale := b.lastSeen.Before(cutoff)
		b.mu.Unlock()
		if stale {
			delete(r.buckets, ip)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine drops idle buckets every 30 minutes until ctx ends.
func (r *RateLimiter) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CleanupOldBuckets(time.Hour)
			}
		}
	}()
}

// ClientIP extracts the client IP from the request. Forwarding headers are
// honoured; only the first X-Forwarded-For entry is used.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
