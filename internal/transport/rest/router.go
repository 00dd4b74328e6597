package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/momo-collections/internal/auth"
	"github.com/frahmantamala/momo-collections/internal/payment"
	"github.com/frahmantamala/momo-collections/internal/transport/middleware"
	"github.com/frahmantamala/momo-collections/internal/transport/swagger"
	"github.com/frahmantamala/momo-collections/pkg/metrics"
)

// Routes groups everything RegisterAllRoutes mounts. Nil handlers are skipped.
type Routes struct {
	DB             *sql.DB
	Redis          Pinger
	AllowedOrigins string
	OpenAPI        http.Handler
	HTTPMetrics    *metrics.HTTPMetrics
	MetricsHandler http.Handler
	AuthHandler    *auth.Handler
	PaymentHandler *payment.Handler
	WebhookHandler *payment.WebhookHandler
}

func RegisterAllRoutes(router *chi.Mux, routes Routes, logger *slog.Logger) {
	healthHandler := NewHealthHandler(routes.DB, routes.Redis)

	// Apply global middleware
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.CORS(routes.AllowedOrigins))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))
	if routes.HTTPMetrics != nil {
		router.Use(routes.HTTPMetrics.Middleware)
	}

	if routes.MetricsHandler != nil {
		router.Method(http.MethodGet, "/metrics", routes.MetricsHandler)
	}

	// Serve OpenAPI spec at root (outside API prefix)
	if routes.OpenAPI != nil {
		router.Method(http.MethodGet, "/openapi.yml", routes.OpenAPI)
		router.Handle("/swagger/*", swagger.Handler())
	}

	// Mount API under /api/v1 to match OpenAPI servers
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Gateway-facing, unauthenticated
		if routes.WebhookHandler != nil {
			r.Post("/webhooks/collections", routes.WebhookHandler.HandleCollectionWebhook)
		}

		if routes.AuthHandler == nil || routes.PaymentHandler == nil {
			return
		}

		r.Group(func(pr chi.Router) {
			pr.Use(routes.AuthHandler.AuthMiddleware)

			ph := routes.PaymentHandler
			pr.Route("/collections", func(cr chi.Router) {
				cr.Post("/", ph.CreateCollection)
				cr.Get("/stats", ph.GetStatistics)
				cr.Get("/reference/{reference}", ph.GetCollectionByReference)
				cr.Get("/{id}", ph.GetCollection)
				cr.Post("/{id}/refresh", ph.RefreshStatus)
				cr.Post("/{id}/cancel", ph.CancelCollection)
			})
			pr.Get("/appointments/{appointmentID}/collections", ph.ListAppointmentCollections)
		})
	})
}
