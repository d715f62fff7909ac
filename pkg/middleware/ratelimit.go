package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/ratelimit"
)

// RateLimitRule assigns a budget to requests whose path has Prefix. The
// first matching rule wins; requests matching no rule use Default.
type RateLimitRule struct {
	Prefix string
	Method string
	Limit  int
}

// RateLimit returns middleware that enforces per-client rate limits. Clients
// are identified by remote IP. Health and metrics endpoints are exempt.
func RateLimit(limiter *ratelimit.Limiter, defaultLimit int, rules ...RateLimitRule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			bucket, limit := "default", defaultLimit
			for _, rule := range rules {
				if strings.HasPrefix(r.URL.Path, rule.Prefix) && (rule.Method == "" || rule.Method == r.Method) {
					bucket, limit = rule.Prefix, rule.Limit
					break
				}
			}

			if !limiter.Allow(clientIP(r)+"|"+bucket, limit) {
				w.Header().Set("Retry-After", strconv.Itoa(60))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
