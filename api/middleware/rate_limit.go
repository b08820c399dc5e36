package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/storyblok-sync/api/responses"
	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
)

type counterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// RateLimitPolicy is a fixed window counter keyed by caller address.
type RateLimitPolicy struct {
	name   string
	window time.Duration
	limit  int64
}

func NewRateLimitPolicy(name string, window time.Duration, ipLimit int) RateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}
	return RateLimitPolicy{name: name, window: window, limit: int64(ipLimit)}
}

func (p RateLimitPolicy) disabled() bool {
	return p.window <= 0 || p.limit <= 0
}

func (p RateLimitPolicy) counterKey(addr string) string {
	return "rl:ip:" + p.name + ":" + addr
}

// RateLimit rejects callers over the policy limit with a bare 429. A failing
// counter store lets the request through.
func RateLimit(policy RateLimitPolicy, store counterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if policy.disabled() || store == nil {
			return next
		}
		retryAfter := strconv.Itoa(int(policy.window.Round(time.Second) / time.Second))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := callerAddr(r)
			if addr == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			hits, err := store.IncrWithTTL(ctx, policy.counterKey(addr), policy.window)
			switch {
			case err != nil:
				if logg != nil {
					logg.Error(ctx, "rate limit counter unavailable", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count "+policy.name+" request"))
				}
			case hits > policy.limit:
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"policy": policy.name,
						"ip":     addr,
						"hits":   hits,
						"limit":  policy.limit,
					}), "request throttled")
				}
				w.Header().Set("Retry-After", retryAfter)
				responses.WriteStatus(w, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// callerAddr prefers the first forwarded hop, then X-Real-IP, then the
// socket peer. Unparseable header values are skipped.
func callerAddr(r *http.Request) string {
	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	for _, candidate := range []string{first, r.Header.Get("X-Real-IP")} {
		if ip, err := netip.ParseAddr(strings.TrimSpace(candidate)); err == nil {
			return ip.Unmap().String()
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
