package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/licensesync/api/controllers"
	"github.com/angelmondragon/licensesync/api/middleware"
	"github.com/angelmondragon/licensesync/pkg/config"
	"github.com/angelmondragon/licensesync/pkg/db"
	"github.com/angelmondragon/licensesync/pkg/logger"
)

// NewRouter wires the ops surface the worker serves next to the sync loop:
// a database-backed health probe, the loop status snapshot, and the
// Prometheus scrape endpoint.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	source controllers.SyncStatusSource,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Get("/healthz", controllers.Healthz(cfg, logg, dbP))
	r.Get("/status", controllers.SyncStatus(source))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}
