package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-booking/internal/booking"
	"github.com/hackgods/therapy-booking/internal/notify"
)

type RouterConfig struct {
	Service  *booking.Service
	Renderer *notify.Renderer
	// Dependencies are pinged by the readiness probe. Nil entries are skipped.
	Dependencies map[string]Pinger
	Gatherer     prometheus.Gatherer
	Logger       zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.Dependencies, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	svc := cfg.Service
	resolver := svc.Resolver()

	// Practitioner availability
	r.Route("/practitioners/{id}", func(r chi.Router) {
		r.Get("/availability", availabilityHandler(resolver))
		r.Get("/windows", listWindowsHandler(resolver))
		r.Post("/windows", addWindowHandler(resolver))
		r.Delete("/windows/{windowID}", removeWindowHandler(resolver))
		r.Get("/blackouts", listBlackoutsHandler(resolver))
		r.Post("/blackouts", addBlackoutHandler(resolver))
		r.Delete("/blackouts/{blackoutID}", removeBlackoutHandler(resolver))
	})

	// Booking endpoints
	r.Post("/bookings", createBookingHandler(svc))
	r.Get("/bookings", listBookingsHandler(svc))
	r.Route("/bookings/{id}", func(r chi.Router) {
		r.Get("/", getBookingHandler(svc))
		r.Post("/confirm", confirmBookingHandler(svc))
		r.Post("/reschedule", rescheduleBookingHandler(svc))
		r.Post("/cancel", cancelBookingHandler(svc))
		r.Post("/join", joinBookingHandler(svc))
		r.Get("/calendar.ics", calendarHandler(svc, cfg.Renderer))
	})

	// Payment gateway intake
	r.Post("/payments/completed", paymentCompletedHandler(svc))

	return r
}
