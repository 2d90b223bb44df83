package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketplace-commissions/api/controllers"
	invoicecontrollers "github.com/angelmondragon/marketplace-commissions/api/controllers/invoices"
	"github.com/angelmondragon/marketplace-commissions/api/middleware"
	"github.com/angelmondragon/marketplace-commissions/internal/invoices"
	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/db"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
	"github.com/angelmondragon/marketplace-commissions/pkg/redis"
	"github.com/angelmondragon/marketplace-commissions/pkg/storage/gcs"
)

// Dependencies groups what the router needs beyond config and logging.
// Redis and GCS are optional; without Redis writes are neither replayed nor
// throttled.
type Dependencies struct {
	DB       db.Pinger
	Redis    *redis.Client
	GCS      gcs.Pinger
	Gatherer prometheus.Gatherer
	Invoices invoices.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	ready := map[string]controllers.Pinger{"db": nil, "redis": nil, "gcs": nil}
	if deps.DB != nil {
		ready["db"] = deps.DB
	}
	if deps.Redis != nil {
		ready["redis"] = deps.Redis
	}
	if deps.GCS != nil {
		ready["gcs"] = deps.GCS
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, ready))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Typed nils would defeat the middlewares' nil checks.
	replay := func(time.Duration) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler { return next }
	}
	writeLimit := replay(0)
	if deps.Redis != nil {
		replay = func(ttl time.Duration) func(http.Handler) http.Handler {
			return middleware.Idempotent(deps.Redis, ttl, logg)
		}
		writeLimit = middleware.WriteRateLimit(cfg.RateLimit.WriteLimit, cfg.RateLimit.Window, deps.Redis, logg)
	}

	svc := deps.Invoices

	r.Route("/api/v1/invoices", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(writeLimit)

		list := invoicecontrollers.List(svc, logg)
		r.Get("/", list)
		r.Get("/list", list)
		r.Get("/{id}", invoicecontrollers.Get(svc, logg))
		r.Get("/{id}/activity", invoicecontrollers.Activity(svc, logg))
		r.With(replay(middleware.ReplayDay)).Post("/generate", invoicecontrollers.Generate(svc, logg))
		r.With(replay(middleware.ReplayDay)).Post("/proof-upload-url", invoicecontrollers.ProofUploadURL(svc, logg))
		r.With(replay(middleware.ReplayWeek)).Post("/upload-proof", invoicecontrollers.UploadProof(svc, logg))
	})

	r.Route("/api/admin/v1/invoices", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.ActorRoleAdmin, logg))
		r.Use(writeLimit)

		r.With(replay(middleware.ReplayWeek)).Post("/verify", invoicecontrollers.AdminVerify(svc, logg))
	})

	return r
}
