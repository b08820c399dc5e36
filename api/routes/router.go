package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storyblok-sync/api/controllers"
	"github.com/angelmondragon/storyblok-sync/api/controllers/admin"
	webhookcontrollers "github.com/angelmondragon/storyblok-sync/api/controllers/webhooks"
	"github.com/angelmondragon/storyblok-sync/api/middleware"
	"github.com/angelmondragon/storyblok-sync/internal/bulk"
	"github.com/angelmondragon/storyblok-sync/pkg/config"
	"github.com/angelmondragon/storyblok-sync/pkg/db"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
	pkgredis "github.com/angelmondragon/storyblok-sync/pkg/redis"
)

// RedisStore is the Redis surface the HTTP layer needs: rate limiting,
// idempotent replay and the readiness ping.
type RedisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

// Workflows is the reconciliation surface called synchronously by the API.
type Workflows interface {
	webhookcontrollers.StoryWorkflows
	admin.ProductSyncer
}

// Params wires the API router.
type Params struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        db.Pinger
	Redis     RedisStore
	Catalog   admin.CatalogLister
	Stories   admin.StoryFinder
	Workflows Workflows
	Bulk      bulk.Service
	Gatherer  prometheus.Gatherer
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	webhookPolicy := middleware.NewRateLimitPolicy(
		"webhook",
		cfg.Storyblok.WebhookRateWindow,
		cfg.Storyblok.WebhookRateLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": p.Redis,
		}))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/webhook/story", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, p.Redis, logg))
		r.Post("/update", webhookcontrollers.StoryblokUpdate(p.Workflows, cfg.Storyblok.WebhookSecret, logg))
		r.Post("/delete", webhookcontrollers.StoryblokDelete(p.Workflows, cfg.Storyblok.WebhookSecret, logg))
	})

	r.Route("/admin/storyblok", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, adminRole(cfg.JWT)))
		r.Use(middleware.Idempotency(p.Redis, logg))

		r.Get("/story", admin.ListStories(p.Catalog, p.Stories, logg))
		r.Route("/story/{productID}", func(r chi.Router) {
			r.Get("/", admin.GetStory(p.Stories, logg))
			r.Post("/", admin.SyncStory(p.Workflows, p.Stories, logg))
			r.Put("/", admin.ForceSyncStory(p.Workflows, p.Stories, logg))
		})
		r.Post("/bulk-sync", admin.BulkSync(p.Bulk, logg))
		r.Post("/bulk-force-sync", admin.BulkForceSync(p.Bulk, logg))
	})

	return r
}

func adminRole(cfg config.JWTConfig) string {
	if cfg.AdminRole == "" {
		return "admin"
	}
	return cfg.AdminRole
}
