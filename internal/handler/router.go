package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Shivanand-hulikatti/event-admission/internal/metrics"
)

// RouterConfig collects what NewRouter needs.
type RouterConfig struct {
	Admission      Admission
	Payments       Payments
	Auth           *Authenticator
	Metrics        *metrics.Metrics
	Health         Pinger
	AllowedOrigins []string
}

// NewRouter builds the full HTTP surface with the global middleware stack.
func NewRouter(cfg RouterConfig) http.Handler {
	h := NewAdmissionHandler(cfg.Admission, cfg.Payments)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(Instrument(cfg.Metrics))
	r.Use(CORS(cfg.AllowedOrigins))

	r.Get("/health", HealthCheck(cfg.Health))
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	// Signed by the processor, not by the identity service.
	r.Post("/webhooks/payments", h.PaymentWebhook)

	r.Route("/events/{eventID}", func(r chi.Router) {
		r.With(cfg.Auth.Optional).Get("/admission", h.GetSnapshot)

		r.Group(func(r chi.Router) {
			r.Use(cfg.Auth.Required)
			r.Post("/registration", h.Register)
			r.Post("/checkout", h.InitiateCheckout)
		})
	})

	r.Route("/admin/events/{eventID}", func(r chi.Router) {
		r.Use(cfg.Auth.Required)
		r.Get("/registrations", h.ListRegistrations)
		r.Put("/registrations/{userID}", h.OverrideStatus)
		r.Delete("/registrations/{userID}", h.RemoveRegistration)
		r.Put("/waitlist", h.ReorderWaitlist)
		r.Post("/capacity-changed", h.CapacityChanged)
	})

	return r
}
