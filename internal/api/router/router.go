// Package router assembles the HTTP surface of the assistant.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/beautydesk/salon-assistant/internal/http/handlers"
	httpmiddleware "github.com/beautydesk/salon-assistant/internal/http/middleware"
	"github.com/beautydesk/salon-assistant/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	Webhooks       *handlers.ChatwootWebhookHandler
	Health         *handlers.HealthHandler
	MetricsHandler http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Handle)
	}
	if cfg.Webhooks != nil {
		r.Post("/webhooks/chatwoot", cfg.Webhooks.Handle)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
