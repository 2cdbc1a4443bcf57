package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bms-dashboard/internal/metrics"
)

// SetupRouter builds the full route tree: public auth + health endpoints,
// the authenticated API, the websocket upgrade, and Prometheus metrics.
func SetupRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HandleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// The websocket upgrade needs http.Hijacker, so it stays outside the
	// instrumented group.
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(metrics.Middleware)

		r.Post("/auth/login", h.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.auth.Middleware)

			r.Get("/devices", h.HandleListDevices)
			r.Post("/devices", h.HandleCreateDevice)
			r.Put("/devices/{id}", h.HandleUpdateDevice)
			r.Delete("/devices/{id}", h.HandleDeactivateDevice)
			r.Get("/devices/{id}/health", h.HandleDeviceHealth)
			r.Get("/alerts", h.HandleListAlerts)
			r.Post("/alerts/{id}/acknowledge", h.HandleAcknowledgeAlert)
			r.Get("/dashboard", h.HandleDashboard)
			r.Get("/logs", h.HandleListLogs)
			r.Post("/commands", h.HandleSendCommand)
		})
	})

	return r
}
