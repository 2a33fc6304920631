package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/glowbook/glowbook-backend/api/controllers"
	webhookcontrollers "github.com/glowbook/glowbook-backend/api/controllers/webhooks"
	"github.com/glowbook/glowbook-backend/api/middleware"
	"github.com/glowbook/glowbook-backend/internal/checkout"
	"github.com/glowbook/glowbook-backend/pkg/config"
	"github.com/glowbook/glowbook-backend/pkg/logger"
	pkgredis "github.com/glowbook/glowbook-backend/pkg/redis"
)

// redisDeps is the part of the Redis client the HTTP surface needs.
type redisDeps interface {
	controllers.Pinger
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient redisDeps,
	metricsHandler http.Handler,
	checkoutService checkout.Service,
	stripeWebhookService webhookcontrollers.StripeWebhookService,
	stripeVerifier webhookcontrollers.EventVerifier,
	squareWebhookService webhookcontrollers.SquareWebhookService,
	squareVerifier webhookcontrollers.SquareVerifier,
	webhookGuard webhookcontrollers.ProcessedGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeVerifier, webhookGuard, logg))
		r.Post("/square", webhookcontrollers.SquareWebhook(squareWebhookService, squareVerifier, webhookGuard, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit("bookings", redisClient, cfg.Booking.CreateRateLimit, cfg.Booking.CreateRateWindow, logg))
		r.Use(middleware.Idempotency(redisClient, cfg.Booking.IdempotencyTTL, logg))
		r.Post("/api/v1/bookings", controllers.CreateBooking(checkoutService, logg))
		r.Post("/api/v1/bookings/{id}/settle", controllers.RetrySettlement(checkoutService, logg))
	})

	return r
}
