package httpx

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/opsdeskhq/opsdesk/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines a token-bucket rate limiting profile.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

// Profiles for the endpoint classes the router uses.
var (
	// StrictLimit guards credential and one-time-code endpoints.
	StrictLimit = RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	// ModerateLimit for authenticated mutations.
	ModerateLimit = RateLimitConfig{RequestsPerWindow: 20, Window: time.Minute, Burst: 20}

	// LenientLimit for authenticated reads and health checks.
	LenientLimit = RateLimitConfig{RequestsPerWindow: 100, Window: time.Minute, Burst: 100}
)

// KeyExtractor derives the bucket key for a request (IP, user id, ...).
type KeyExtractor func(*http.Request) string

// IPKeyExtractor extracts the client IP, honouring proxy headers.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, ok := strings.Cut(xff, ","); ok {
			return strings.TrimSpace(first)
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

// UserKeyExtractor keys by authenticated user, falling back to IP.
func UserKeyExtractor(r *http.Request) string {
	if p, ok := PrincipalFromContext(r.Context()); ok && p.UserID != "" {
		return p.UserID
	}
	return IPKeyExtractor(r)
}

type limiterPool struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int

	cleanupMu   sync.Mutex
	lastCleanup time.Time
}

func (p *limiterPool) get(key string) *rate.Limiter {
	if l, ok := p.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}
	l, _ := p.limiters.LoadOrStore(key, rate.NewLimiter(p.rate, p.burst))
	p.maybeCleanup()
	return l.(*rate.Limiter)
}

// maybeCleanup drops idle limiters so ephemeral keys don't accumulate. A
// limiter with a full bucket hasn't been used for at least one window.
func (p *limiterPool) maybeCleanup() {
	p.cleanupMu.Lock()
	defer p.cleanupMu.Unlock()

	if time.Since(p.lastCleanup) < 5*time.Minute {
		return
	}
	p.lastCleanup = time.Now()

	p.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(p.burst) {
			p.limiters.Delete(key)
		}
		return true
	})
}

// RateLimit builds a per-key rate limiting middleware from a profile.
func RateLimit(cfg RateLimitConfig, extract KeyExtractor) Middleware {
	pool := &limiterPool{
		rate:        rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:       cfg.Burst,
		lastCleanup: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			key := extract(r)
			if key == "" {
				log.Warn("rate limit: no key for request, allowing")
				next.ServeHTTP(w, r)
				return
			}

			limiter := pool.get(key)
			if !limiter.Allow() {
				res := limiter.Reserve()
				delay := res.Delay()
				res.Cancel()

				retryAfter := max(int(delay.Seconds()), 1)
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				log.Warn("rate limit exceeded", "endpoint", r.URL.Path, "retry_after", retryAfter)
				WriteError(w, http.StatusTooManyRequests,
					"rate_limit_exceeded", "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP limits by client IP only.
func RateLimitByIP(cfg RateLimitConfig) Middleware {
	return RateLimit(cfg, IPKeyExtractor)
}

// RateLimitByUser limits by authenticated user, falling back to IP.
func RateLimitByUser(cfg RateLimitConfig) Middleware {
	return RateLimit(cfg, UserKeyExtractor)
}
