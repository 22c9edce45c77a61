/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the SPA frontend

ROUTE GROUPS:
  /api/users/{id}/*   Per-user clocking, status, schedule
  /api/logs           Admin log listing
  /api/session/*      Session lifecycle (cache scope)
  /api/health         Liveness

SECURITY NOTE:
  No authentication middleware; auth and row-level authorization live in
  the hosting platform in front of this service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/users/{id}", func(r chi.Router) {
			r.Post("/clock-in", h.ClockIn)
			r.Post("/clock-out", h.ClockOut)
			r.Get("/status", h.GetStatus)
			r.Get("/summary", h.GetSummary)
			r.Get("/logs", h.ListUserLogs)
			r.Get("/schedule", h.GetSchedule)
			r.Put("/schedule", h.PutSchedule)
		})

		r.Get("/logs", h.ListAllLogs)

		r.Route("/session", func(r chi.Router) {
			r.Post("/logout", h.Logout)
		})

		r.Get("/health", h.Health)
	})

	return r
}
