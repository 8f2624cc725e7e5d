/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard

ROUTES:
  GET  /                                   Health
  GET  /api/businesses                     List businesses
  GET  /api/businesses/{id}/overview       Stored theme scores + latest insight
  GET  /api/businesses/{id}/trends         Monthly sentiment (?theme=)
  GET  /api/businesses/{id}/kpis           Live report (?period=)
  POST /api/businesses/{id}/refresh        Re-analyze (?period=)
  GET  /api/compare                        Theme score matrix (?ids=a,b[,c])
  GET  /api/compare-narrative              Comparison narrative (?ids=a,b[,c])
  POST /api/import                         Import a dataset
  POST /api/demo/load                      Import the demo dataset

SECURITY NOTE:
  No authentication middleware. All endpoints are public; refresh and import
  are meant for the internal dashboard only.

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

// DefaultAllowedOrigins are the dashboard dev server origins.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:4174"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins ...string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/businesses", func(r chi.Router) {
			r.Get("/", h.ListBusinesses)
			r.Get("/{id}/overview", h.GetOverview)
			r.Get("/{id}/trends", h.GetTrends)
			r.Get("/{id}/kpis", h.GetKPIs)
			r.Post("/{id}/refresh", h.TriggerRefresh)
		})

		r.Get("/compare", h.Compare)
		r.Get("/compare-narrative", h.CompareNarrative)

		r.Post("/import", h.ImportDataset)
		r.Post("/demo/load", h.LoadDemo)
	})

	return r
}
