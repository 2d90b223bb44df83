package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-commissions/api/responses"
	pkgerrors "github.com/angelmondragon/marketplace-commissions/pkg/errors"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
	"github.com/angelmondragon/marketplace-commissions/pkg/redis"
)

type windowCounter interface {
	Hit(ctx context.Context, scope string, limit int64, window time.Duration) (redis.Window, error)
}

// WriteRateLimit throttles invoice mutations per caller. Authenticated callers
// are counted by user id, everyone else by client address.
func WriteRateLimit(limit int, window time.Duration, counter windowCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 || window <= 0 || counter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			caller := UserIDFromContext(ctx)
			if caller == "" {
				caller = "ip:" + clientIP(r)
			}

			win, err := counter.Hit(ctx, "writes:"+caller, int64(limit), window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if win.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retry := int(math.Ceil(win.ResetIn.Seconds()))
			if logg != nil {
				logg.Warn(logg.WithFields(ctx, map[string]any{
					"caller":      caller,
					"count":       win.Count,
					"limit":       limit,
					"retry_after": retry,
				}), "invoice write throttled")
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many invoice writes, slow down"))
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// clientIP prefers the first forwarded hop over the socket peer.
func clientIP(r *http.Request) string {
	if fwd, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(fwd) != "" {
		return strings.TrimSpace(fwd)
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		return xr
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
