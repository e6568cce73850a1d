package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/punch-clock/internal/web/handlers"
	"github.com/kozaktomas/punch-clock/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.deps.DB)
	punchesHandler := handlers.NewPunchesHandler(s.deps.Authorizer)
	auditsHandler := handlers.NewAuditsHandler(s.deps.Trail, s.deps.Metrics)

	// Health check and metrics (no auth required)
	s.router.Get("/api/v1/health", healthHandler.Check)
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(s.deps.Tokens))

		// Punches
		r.Post("/punches", punchesHandler.Create)
		r.Get("/punches/today", punchesHandler.Today)

		// Audit review is admin only
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin())

			r.Get("/audits", auditsHandler.List)
			r.Post("/audits/reconcile", auditsHandler.Reconcile)
			r.Get("/audits/{id}", auditsHandler.Get)
			r.Post("/audits/{id}/review", auditsHandler.Review)
		})
	})
}
