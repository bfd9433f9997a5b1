/*
server.go - HTTP router and middleware configuration

PURPOSE:

	Configures the HTTP router (chi), middleware stack, and route
	definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
 1. Logger:     Request logging
 2. Recoverer:  Panic recovery (500 instead of crash)
 3. RequestID:  Unique ID per request for tracing
 4. CORS:       Cross-origin requests for the dashboard frontend

ROUTE GROUPS:

	/api/students/*   Roster, taps, live status, event history
	/api/rates/*      Period rate configuration
	/api/admin/*      Payroll runs, bulk enforcement, ledger view

SECURITY NOTE:

	Authentication and session handling are external collaborators; no
	auth middleware lives here.

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
		// Student routes
		r.Route("/students", func(r chi.Router) {
			r.Get("/", h.ListStudents)
			r.Post("/", h.CreateStudent)
			r.Get("/{id}", h.GetStudent)
			r.Delete("/{id}", h.DeleteStudent)
			r.Post("/{id}/tap", h.RecordTap)
			r.Get("/{id}/status", h.LiveStatus)
			r.Get("/{id}/events", h.ListEvents)
		})

		// Rate configuration routes
		r.Route("/rates", func(r chi.Router) {
			r.Get("/", h.ListRates)
			r.Put("/{period}", h.SaveRate)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/payroll", h.RunPayroll)
			r.Post("/enforce", h.EnforceCaps)
			r.Get("/ledger", h.ListLedger)
		})
	})

	return r
}
