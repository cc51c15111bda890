package geo

import (
	"net/http"

	"github.com/EmpoweredVote/EV-Globe/internal/middleware"
	"github.com/go-chi/chi/v5"
)

func SetupRoutes() http.Handler {
	return Svc.Routes()
}

func (s *Service) Routes() http.Handler {
	r := chi.NewRouter()

	// Public routes
	r.Group(func(r chi.Router) {
		if s.Limiter != nil {
			r.Use(s.Limiter.Middleware)
		}
		r.Get("/geocode", s.Geocode)
		r.Get("/geocode/ip", s.GeocodeIP)
	})
	r.Get("/subdivisions/check-lowest", s.CheckLowest)
	r.Get("/subdivisions/search", s.SearchSubdivisions)

	// Admin routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AdminTokenMiddleware(s.AdminToken))

		r.Post("/reconcile", s.StartReconcile)
		r.Get("/reconcile", s.ListReconcileJobs)
		r.Get("/reconcile/{jobID}", s.GetReconcileJob)
		r.Delete("/reconcile/{jobID}", s.CancelReconcileJob)
		r.Post("/geometry/invalidate", s.InvalidateGeometry)
		r.Get("/integrity", s.Integrity)
		r.Post("/lowest-level", s.MarkLowestLevels)
	})

	return r
}
