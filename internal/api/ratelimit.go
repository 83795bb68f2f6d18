package api

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter hands out a token bucket per key, e.g. per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyLimiter
	perMin   int
	ttl      time.Duration
	stop     chan struct{}
	once     sync.Once
}

type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter allows perMin requests per minute per key, bursting up to
// perMin. Idle keys are dropped in the background.
func NewRateLimiter(perMin int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*keyLimiter),
		perMin:   perMin,
		ttl:      10 * time.Minute,
		stop:     make(chan struct{}),
	}
	go rl.cleanupLoop(5 * time.Minute)
	return rl
}

// Allow reports whether key may make another request now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	kl, ok := rl.limiters[key]
	if !ok {
		kl = &keyLimiter{limiter: rate.NewLimiter(rate.Limit(float64(rl.perMin)/60.0), rl.perMin)}
		rl.limiters[key] = kl
	}
	kl.lastAccess = time.Now()
	rl.mu.Unlock()
	return kl.limiter.Allow()
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanup(time.Now())
		}
	}
}

func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, kl := range rl.limiters {
		if now.Sub(kl.lastAccess) > rl.ttl {
			delete(rl.limiters, k)
		}
	}
}

// authRateLimitMiddleware rate-limits requests by client IP.
func authRateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.Allow("ip:" + ip) {
				logFor(r.Context()).Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				retry := 60 / rl.perMin
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client IP from the request, checking X-Forwarded-For first.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		slog.Debug("split remote addr", "addr", r.RemoteAddr, "err", err)
		return r.RemoteAddr
	}
	return host
}
