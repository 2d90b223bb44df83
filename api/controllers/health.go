package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/marketplace-commissions/api/responses"
	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	pkgerrors "github.com/angelmondragon/marketplace-commissions/pkg/errors"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
)

const readyTimeout = 3 * time.Second

// Pinger is any dependency that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Service-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings each configured dependency. Nil pingers are reported as
// skipped so optional backends do not fail readiness.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Service-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		failed := false
		for name, dep := range deps {
			if dep == nil {
				checks[name] = "skipped"
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				failed = true
				checks[name] = "down"
				logg.Error(logg.WithField(ctx, "dependency", name), "readiness check failed", err)
				continue
			}
			checks[name] = "ok"
		}

		if failed {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable").
				WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
