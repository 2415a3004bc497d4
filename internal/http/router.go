package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/savebox/box-orders/internal/observability"
	"github.com/savebox/box-orders/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(RateLimitMiddleware(rl))
	r.Use(IdempotencyKeyMiddleware)

	r.Post("/v1/boxes/{id}/reserve", h.ReserveBox)
	r.Post("/v1/orders", h.CreateOrder)
	r.Post("/v1/orders/{id}/complete", h.CompleteOrder)
	r.Get("/v1/orders/{id}", h.GetOrder)
	r.Get("/v1/orders/pickup/{code}", h.FindOrderByPickupCode)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
