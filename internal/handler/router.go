package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter builds the HTTP routes. /health is unauthenticated.
func NewRouter(h *RegistrationHandler, auth *BearerAuth, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(logger))
	r.Use(CORS)

	r.Get("/health", HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Route("/events/{id}/registrations", func(r chi.Router) {
			r.Post("/", h.CreateRegistration)
			r.Get("/", h.ListRegistrations)
		})
		r.Route("/registrations/{id}", func(r chi.Router) {
			r.Get("/", h.GetRegistration)
			r.Post("/cancel", h.CancelRegistration)
		})
		r.Get("/kit-items/{id}/availability", h.KitAvailability)
	})

	return r
}
