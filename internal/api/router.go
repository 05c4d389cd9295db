package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/staff-booking-engine/internal/booking"
	"github.com/hackgods/staff-booking-engine/internal/metrics"
)

type RouterConfig struct {
	Service        *booking.Service
	DB             Pinger
	Redis          *redis.Client
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler // served on /metrics when set
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware(cfg.Metrics))

	// Health endpoints
	health := NewHealthHandler(cfg.DB, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	// Booking endpoints
	r.Route("/bookings", func(r chi.Router) {
		r.Post("/", createBookingHandler(cfg.Service))
		r.Get("/", listBookingsHandler(cfg.Service))
		r.Get("/{id}", getBookingHandler(cfg.Service))
		r.Post("/{id}/status", setStatusHandler(cfg.Service))
		r.Post("/{id}/cancel", transitionHandler(cfg.Service.Cancel))
		r.Post("/{id}/complete", transitionHandler(cfg.Service.Complete))
		r.Post("/{id}/settle", settleBookingHandler(cfg.Service))
	})

	r.Get("/staff/{id}/availability", availabilityHandler(cfg.Service))

	return r
}
