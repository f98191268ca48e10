package restapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"tracker.gpmetro.org/internal/clock"
)

// rateLimitClient tracks a limiter and its last usage time so inactive
// clients can be evicted without disrupting active ones.
type rateLimitClient struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // Unix nanoseconds
}

// RateLimitMiddleware rate limits per client IP. The API is anonymous, so
// the peer address is the only identity available; exemptions cover the
// uptime checker and the static site's server-side renderer.
type RateLimitMiddleware struct {
	limiters  map[string]*rateLimitClient
	mu        sync.RWMutex
	rateLimit rate.Limit
	burstSize int
	exemptIPs map[string]bool
	stopChan  chan struct{}
	stopOnce  sync.Once
	clock     clock.Clock
}

// NewRateLimitMiddleware creates a per-IP rate limiter allowing
// ratePerSecond requests with an equal burst. A rate of 0 or less disables
// limiting.
func NewRateLimitMiddleware(ratePerSecond int, exemptIPs []string, clk clock.Clock) *RateLimitMiddleware {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Every(time.Second / time.Duration(ratePerSecond))
	}

	exemptMap := make(map[string]bool)
	for _, ip := range exemptIPs {
		if trimmed := strings.TrimSpace(ip); trimmed != "" {
			exemptMap[trimmed] = true
		}
	}

	middleware := &RateLimitMiddleware{
		limiters:  make(map[string]*rateLimitClient),
		rateLimit: limit,
		burstSize: ratePerSecond,
		exemptIPs: exemptMap,
		stopChan:  make(chan struct{}),
		clock:     clk,
	}

	go middleware.cleanup()

	return middleware
}

// Handler returns the middleware function.
func (rl *RateLimitMiddleware) Handler() func(http.Handler) http.Handler {
	return rl.rateLimitHandler
}

// Stop terminates the cleanup goroutine. Safe to call multiple times.
func (rl *RateLimitMiddleware) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}

func (rl *RateLimitMiddleware) rateLimitHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.rateLimit == rate.Inf {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if rl.exemptIPs[ip] {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.getLimiter(ip).Allow() {
			rl.sendRateLimitExceeded(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// getLimiter gets or creates the limiter for an IP and refreshes lastSeen.
func (rl *RateLimitMiddleware) getLimiter(ip string) *rate.Limiter {
	rl.mu.RLock()
	if client, exists := rl.limiters[ip]; exists {
		client.lastSeen.Store(rl.clock.Now().UnixNano())
		rl.mu.RUnlock()
		return client.limiter
	}
	rl.mu.RUnlock()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Another goroutine might have created it while we waited for the lock.
	if client, exists := rl.limiters[ip]; exists {
		client.lastSeen.Store(rl.clock.Now().UnixNano())
		return client.limiter
	}

	limiter := rate.NewLimiter(rl.rateLimit, rl.burstSize)
	newClient := &rateLimitClient{limiter: limiter}
	newClient.lastSeen.Store(rl.clock.Now().UnixNano())
	rl.limiters[ip] = newClient

	return limiter
}

// cleanup evicts limiters idle for over ten minutes.
func (rl *RateLimitMiddleware) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := rl.clock.Now().Add(-10 * time.Minute).UnixNano()
			rl.mu.Lock()
			for ip, client := range rl.limiters {
				if client.lastSeen.Load() < cutoff {
					delete(rl.limiters, ip)
				}
			}
			rl.mu.Unlock()

		case <-rl.stopChan:
			return
		}
	}
}

func (rl *RateLimitMiddleware) sendRateLimitExceeded(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burstSize))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: "rate limit exceeded, please try again later"})
}
