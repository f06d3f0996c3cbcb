package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Priya8975/hookrelay/internal/engine"
	"github.com/Priya8975/hookrelay/internal/hook"
	ws "github.com/Priya8975/hookrelay/internal/websocket"
)

// Deps are the pieces the router mounts. Events, Metrics, DB and Breaker are
// nil when the backing store is not configured.
type Deps struct {
	Webhook     http.Handler
	WebhookPath string
	Registry    *hook.Registry
	Hub         *ws.Hub
	Events      EventReader
	Metrics     MetricsReader
	DB          Pinger
	Breaker     *engine.CircuitBreaker
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(middleware.Heartbeat("/ping"))

	// The dispatcher reads the raw body itself; no middleware may consume it.
	r.Post(d.WebhookPath, d.Webhook.ServeHTTP)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", d.Hub.HandleWebSocket)

	dashHandler := NewDashboardHandler(d.Registry, d.Metrics, d.Breaker, d.Hub)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(d.Registry.Len(), d.DB))
		r.Get("/handlers", dashHandler.Handlers)
		r.Get("/metrics", dashHandler.Metrics)

		if d.Events != nil {
			eventHandler := NewEventHandler(d.Events)
			r.Route("/events", func(r chi.Router) {
				r.Get("/", eventHandler.List)
				r.Get("/{id}", eventHandler.Get)
				r.Get("/{id}/runs", eventHandler.Runs)
			})
		}
	})

	return r
}
