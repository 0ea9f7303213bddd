package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/missing-finder/internal/web/handlers"
	"github.com/kozaktomas/missing-finder/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	casesHandler := handlers.NewCasesHandler(s.service, s.logger)
	searchHandler := handlers.NewSearchHandler(s.service, s.config.Match.DefaultThreshold, s.logger)

	// Health check (no user required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// Locally stored reference photos; Cloudinary serves its own URLs.
	if !s.config.Cloudinary.Enabled() && strings.HasPrefix(s.config.Photos.PublicURL, "/") {
		prefix := strings.TrimSuffix(s.config.Photos.PublicURL, "/")
		fileServer := http.StripPrefix(prefix, http.FileServer(http.Dir(s.config.Photos.Dir)))
		s.router.Get(prefix+"/*", fileServer.ServeHTTP)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireUser())

		// Cases
		r.Post("/cases", casesHandler.Register)
		r.Get("/cases", casesHandler.List)
		r.Get("/cases/resolved", casesHandler.ListResolved)
		r.Get("/cases/{id}", casesHandler.Get)
		r.Post("/cases/{id}/found", casesHandler.MarkFound)
		r.Delete("/cases/{id}", casesHandler.Delete)

		// Search
		r.Post("/search", searchHandler.Search)
		r.Post("/search/nearest", searchHandler.Nearest)
	})
}
