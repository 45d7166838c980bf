package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/vaccine-orders/api/responses"
	"github.com/angelmondragon/vaccine-orders/pkg/config"
	pkgerrors "github.com/angelmondragon/vaccine-orders/pkg/errors"
	"github.com/angelmondragon/vaccine-orders/pkg/logger"
)

const (
	envHeader        = "X-Vop-Env"
	readinessTimeout = 2 * time.Second
)

// Pinger is any dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the database and, when configured, redis. A nil redis pinger is skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP Pinger, redisP Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{}
		failed := false
		probe := func(name string, p Pinger) {
			if p == nil {
				return
			}
			if err := p.Ping(ctx); err != nil {
				failed = true
				checks[name] = "down"
				if logg != nil {
					logg.WarnErr(logg.WithField(ctx, "dependency", name), "health.ready.failed", err)
				}
				return
			}
			checks[name] = "up"
		}
		probe("database", dbP)
		probe("redis", redisP)

		if failed {
			responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeDependency, "not ready").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
