package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/agroconexion/storefront-sync/api/responses"
	pkgerrors "github.com/agroconexion/storefront-sync/pkg/errors"
	"github.com/agroconexion/storefront-sync/pkg/logger"
	"github.com/agroconexion/storefront-sync/pkg/redis"
)

const envHeader = "X-Storefront-Env"

const readinessTimeout = 2 * time.Second

func HealthLive(env string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings redis when it is configured. A nil pinger is reported as
// disabled.
func HealthReady(env string, logg *logger.Logger, redisPinger redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, env)

		checks := map[string]string{"redis": "disabled"}
		if redisPinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
			defer cancel()
			if err := redisPinger.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeTransient, err, "redis not ready").
					WithDetails(map[string]string{"redis": "down"}))
				return
			}
			checks["redis"] = "up"
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
