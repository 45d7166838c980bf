package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/vaccine-orders/api/controllers"
	cartcontrollers "github.com/angelmondragon/vaccine-orders/api/controllers/cart"
	"github.com/angelmondragon/vaccine-orders/api/middleware"
	"github.com/angelmondragon/vaccine-orders/internal/remotecart"
	"github.com/angelmondragon/vaccine-orders/pkg/config"
	"github.com/angelmondragon/vaccine-orders/pkg/logger"
	"github.com/angelmondragon/vaccine-orders/pkg/metrics"
)

// NewRouter wires the remote cart endpoint. gatherer, httpMetrics and redisP may be nil.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	gatherer prometheus.Gatherer,
	httpMetrics *metrics.HTTPMetrics,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	cartService remotecart.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if gatherer != nil {
		r.Handle("/metrics", metrics.Handler(gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(cartService, logg))
			r.Put("/", cartcontrollers.CartReplace(cartService, logg, nil))
		})
	})

	return r
}
