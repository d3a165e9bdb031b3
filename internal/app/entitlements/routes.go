// Package entitlements предоставляет маршруты основного приложения.
package entitlements

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/listing-entitlements/internal/config"
	"github.com/magabrotheeeer/listing-entitlements/internal/http/handlers/authorize"
	"github.com/magabrotheeeer/listing-entitlements/internal/http/handlers/entitlementlist"
	"github.com/magabrotheeeer/listing-entitlements/internal/http/handlers/featuredeactivate"
	"github.com/magabrotheeeer/listing-entitlements/internal/http/handlers/featurelist"
	"github.com/magabrotheeeer/listing-entitlements/internal/http/handlers/featurestatus"
	"github.com/magabrotheeeer/listing-entitlements/internal/http/handlers/health"
	"github.com/magabrotheeeer/listing-entitlements/internal/http/handlers/ownerregister"
	"github.com/magabrotheeeer/listing-entitlements/internal/http/handlers/purchasewebhook"
	"github.com/magabrotheeeer/listing-entitlements/internal/http/middlewarectx"
	coordinatorservice "github.com/magabrotheeeer/listing-entitlements/internal/services/coordinator"
	featureservice "github.com/magabrotheeeer/listing-entitlements/internal/services/feature"
	ledgerservice "github.com/magabrotheeeer/listing-entitlements/internal/services/ledger"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config,
	coordinatorService *coordinatorservice.CoordinatorService,
	ledgerService *ledgerservice.LedgerService,
	featureService *featureservice.FeatureService) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Группа для внутренних сервисов площадки
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.ServiceTokenMiddleware(cfg.ServiceToken, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/listings/authorize", authorize.New(logger, coordinatorService).ServeHTTP)
			r.Post("/owners", ownerregister.New(logger, coordinatorService).ServeHTTP)
			r.Get("/entitlements", entitlementlist.New(logger, ledgerService).ServeHTTP)
			r.Get("/features/{resourceID}", featurelist.New(logger, featureService).ServeHTTP)
			r.Get("/features/{resourceID}/{featureType}", featurestatus.New(logger, featureService).ServeHTTP)
			r.Delete("/features/{resourceID}/{featureType}", featuredeactivate.New(logger, featureService).ServeHTTP)
		})

		// Webhook endpoint (подпись вместо сервисного токена)
		r.Post("/purchases/webhook", purchasewebhook.New(logger, coordinatorService, cfg.WebhookSecret).ServeHTTP)
	})

	r.Get("/health", health.New(logger).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
