package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"lodmesh/internal/config"
)

// RateLimitConfig configures the IP-based rate limiter
type RateLimitConfig struct {
	RequestsPerSecond float64       // Requests allowed per second per IP
	Burst             int           // Maximum burst size
	CleanupInterval   time.Duration // How often to clean up stale limiters
}

// DefaultRateLimitConfig returns production-safe defaults
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 20,
	Burst:             40,
	CleanupInterval:   5 * time.Minute,
}

// RateLimitConfigFrom maps the server section onto a limiter config.
func RateLimitConfigFrom(cfg config.ServerConfig) RateLimitConfig {
	rl := DefaultRateLimitConfig
	if cfg.RequestsPerSec > 0 {
		rl.RequestsPerSecond = cfg.RequestsPerSec
	}
	if cfg.RequestBurst > 0 {
		rl.Burst = cfg.RequestBurst
	}
	return rl
}

// ipLimiterEntry tracks per-IP rate limiting state
type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nano
}

// IPRateLimiter provides IP-based rate limiting for HTTP requests
type IPRateLimiter struct {
	limiters sync.Map // map[string]*ipLimiterEntry
	config   RateLimitConfig
	stopChan chan struct{}
	stopOnce sync.Once

	rejectedCount atomic.Uint64
	allowedCount  atomic.Uint64
}

// NewIPRateLimiter creates a limiter. Stale entries are swept in the
// background until Stop.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitConfig.CleanupInterval
	}
	rl := &IPRateLimiter{
		config:   cfg,
		stopChan: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop stops the rate limiter cleanup goroutine
func (rl *IPRateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
	})
}

// getLimiter returns or creates a rate limiter for the given IP
func (rl *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	now := time.Now().UnixNano()

	if entry, ok := rl.limiters.Load(ip); ok {
		e := entry.(*ipLimiterEntry)
		e.lastSeen.Store(now)
		return e.limiter
	}

	entry := &ipLimiterEntry{
		limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst),
	}
	entry.lastSeen.Store(now)

	actual, _ := rl.limiters.LoadOrStore(ip, entry)
	return actual.(*ipLimiterEntry).limiter
}

// cleanupLoop periodically removes stale rate limiters
func (rl *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup removes rate limiters that haven't been used recently
func (rl *IPRateLimiter) cleanup() {
	cutoff := time.Now().Add(-rl.config.CleanupInterval * 2).UnixNano()

	rl.limiters.Range(func(key, value interface{}) bool {
		if value.(*ipLimiterEntry).lastSeen.Load() < cutoff {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// Allow checks if a request from the given IP should be allowed
func (rl *IPRateLimiter) Allow(ip string) bool {
	if rl.getLimiter(ip).Allow() {
		rl.allowedCount.Add(1)
		return true
	}
	rl.rejectedCount.Add(1)
	return false
}

// Middleware returns an HTTP middleware for rate limiting
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r)) {
			RecordConnectionRejected("rate_limit")
			w.Header().Set("Retry-After", "1")
			writeError(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LimiterStats reports allowed and rejected request counts.
type LimiterStats struct {
	Allowed  uint64 `json:"allowed"`
	Rejected uint64 `json:"rejected"`
}

// Stats returns rate limiter statistics
func (rl *IPRateLimiter) Stats() LimiterStats {
	return LimiterStats{
		Allowed:  rl.allowedCount.Load(),
		Rejected: rl.rejectedCount.Load(),
	}
}

// GetClientIP extracts the client IP from an HTTP request
// Handles X-Forwarded-For header for proxied requests
func GetClientIP(r *http.Request) string {
	// CAUTION: forwarded headers can be spoofed if not behind a trusted proxy
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// WebSocketRateLimiter limits concurrent WebSocket connections per IP
type WebSocketRateLimiter struct {
	connections sync.Map // map[string]*atomic.Int32
	maxPerIP    int

	rejectedCount atomic.Uint64
}

// NewWebSocketRateLimiter creates a WebSocket connection limiter
func NewWebSocketRateLimiter(maxPerIP int) *WebSocketRateLimiter {
	return &WebSocketRateLimiter{maxPerIP: maxPerIP}
}

// Allow reserves a connection slot for ip.
func (wrl *WebSocketRateLimiter) Allow(ip string) bool {
	actual, _ := wrl.connections.LoadOrStore(ip, new(atomic.Int32))
	counter := actual.(*atomic.Int32)

	for {
		current := counter.Load()
		if int(current) >= wrl.maxPerIP {
			wrl.rejectedCount.Add(1)
			return false
		}
		if counter.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Release frees a slot reserved by Allow.
func (wrl *WebSocketRateLimiter) Release(ip string) {
	if val, ok := wrl.connections.Load(ip); ok {
		val.(*atomic.Int32).Add(-1)
	}
}

// ConnectionCount returns current connection count for an IP
func (wrl *WebSocketRateLimiter) ConnectionCount(ip string) int {
	if val, ok := wrl.connections.Load(ip); ok {
		return int(val.(*atomic.Int32).Load())
	}
	return 0
}

// OriginPolicy decides which browser origins may open a websocket.
// Patterns follow go-chi/cors: an entry may hold one "*" wildcard.
type OriginPolicy struct {
	patterns []string
}

// NewOriginPolicy builds a policy from allowed origin patterns.
func NewOriginPolicy(patterns []string) OriginPolicy {
	return OriginPolicy{patterns: patterns}
}

// Allowed reports whether origin matches a pattern. Local development
// origins are always allowed.
func (p OriginPolicy) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1") {
		return true
	}
	for _, pattern := range p.patterns {
		if pattern == "*" || pattern == origin {
			return true
		}
		if i := strings.IndexByte(pattern, '*'); i >= 0 {
			prefix, suffix := pattern[:i], pattern[i+1:]
			if len(origin) >= len(prefix)+len(suffix) &&
				strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
				return true
			}
		}
	}
	return false
}
