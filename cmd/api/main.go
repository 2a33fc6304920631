package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/glowbook/glowbook-backend/api"
	webhookcontrollers "github.com/glowbook/glowbook-backend/api/controllers/webhooks"
	"github.com/glowbook/glowbook-backend/api/routes"
	"github.com/glowbook/glowbook-backend/internal/bookings"
	"github.com/glowbook/glowbook-backend/internal/catalog"
	"github.com/glowbook/glowbook-backend/internal/checkout"
	"github.com/glowbook/glowbook-backend/internal/giftcards"
	"github.com/glowbook/glowbook-backend/internal/ledger"
	"github.com/glowbook/glowbook-backend/internal/payments"
	"github.com/glowbook/glowbook-backend/internal/settings"
	"github.com/glowbook/glowbook-backend/internal/settlement"
	"github.com/glowbook/glowbook-backend/internal/validation"
	"github.com/glowbook/glowbook-backend/internal/wallets"
	squarewebhook "github.com/glowbook/glowbook-backend/internal/webhooks/square"
	stripewebhook "github.com/glowbook/glowbook-backend/internal/webhooks/stripe"
	"github.com/glowbook/glowbook-backend/pkg/config"
	"github.com/glowbook/glowbook-backend/pkg/db"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	"github.com/glowbook/glowbook-backend/pkg/logger"
	"github.com/glowbook/glowbook-backend/pkg/metrics"
	"github.com/glowbook/glowbook-backend/pkg/migrate"
	"github.com/glowbook/glowbook-backend/pkg/outbox"
	"github.com/glowbook/glowbook-backend/pkg/outbox/idempotency"
	"github.com/glowbook/glowbook-backend/pkg/redis"
	"github.com/glowbook/glowbook-backend/pkg/square"
	"github.com/glowbook/glowbook-backend/pkg/stripe"
)

const webhookDedupeTTL = 7 * 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bookingMetrics := metrics.NewBookingMetrics(registry)

	defaults, err := settings.DefaultsFromConfig(cfg.Platform)
	if err != nil {
		logg.Error(context.Background(), "invalid platform defaults", err)
		os.Exit(1)
	}
	settingsProvider, err := settings.NewProvider(settings.ProviderParams{
		DB:       dbClient.DB(),
		Cache:    redisClient,
		TTL:      cfg.Booking.SettingsCacheTTL,
		Defaults: defaults,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settings provider", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	catalogRepo := catalog.NewRepository(dbClient.DB())
	bookingRepo := bookings.NewRepository(dbClient.DB())

	validator, err := validation.NewService(validation.ServiceParams{
		Catalog:         catalogRepo,
		Conflicts:       bookingRepo,
		Settings:        settingsProvider,
		DefaultCurrency: cfg.Booking.DefaultCurrency,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create validation service", err)
		os.Exit(1)
	}

	numbers, err := bookings.NewNumberGenerator(cfg.Booking.NumberSalt, cfg.Booking.NumberMinLength)
	if err != nil {
		logg.Error(context.Background(), "failed to create booking number generator", err)
		os.Exit(1)
	}
	bookingService, err := bookings.NewService(bookings.ServiceParams{
		TX:      dbClient,
		Repo:    bookingRepo,
		Catalog: catalogRepo,
		Numbers: numbers,
		Outbox:  outboxService,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create booking service", err)
		os.Exit(1)
	}

	giftCardService, err := giftcards.NewService(dbClient, giftcards.NewRepository(dbClient.DB()), outboxService, logg, cfg.Booking.GiftCardReservationTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create gift card service", err)
		os.Exit(1)
	}
	walletService, err := wallets.NewService(dbClient, wallets.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}
	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe client", err)
		os.Exit(1)
	}
	stripeGateway, err := payments.NewStripeGateway(stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe gateway", err)
		os.Exit(1)
	}
	gateways := []payments.Gateway{stripeGateway}

	var squareVerifier webhookcontrollers.SquareVerifier
	if cfg.Square.AccessToken != "" {
		squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create square client", err)
			os.Exit(1)
		}
		squareGateway, err := payments.NewSquareGateway(squareClient)
		if err != nil {
			logg.Error(context.Background(), "failed to create square gateway", err)
			os.Exit(1)
		}
		gateways = append(gateways, squareGateway)
		squareVerifier = squareClient
	} else {
		logg.Warn(context.Background(), "square access token not set; square saved cards disabled")
	}

	gatewayRouter, err := payments.NewRouter(enums.PaymentProviderStripe, gateways...)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment router", err)
		os.Exit(1)
	}

	settlementService, err := settlement.NewService(settlement.ServiceParams{
		TX:        dbClient,
		Repo:      settlement.NewRepository(dbClient.DB()),
		GiftCards: giftCardService,
		Wallets:   walletService,
		Gateways:  gatewayRouter,
		Ledger:    ledgerService,
		Outbox:    outboxService,
		Settings:  settingsProvider,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Validator:  validator,
		Bookings:   bookingService,
		Settlement: settlementService,
		Metrics:    bookingMetrics,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	stripeWebhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{Settlement: settlementService, Logger: logg})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}
	squareWebhookService, err := squarewebhook.NewService(squarewebhook.ServiceParams{Settlement: settlementService, Logger: logg})
	if err != nil {
		logg.Error(context.Background(), "failed to create square webhook service", err)
		os.Exit(1)
	}
	webhookGuard, err := idempotency.NewManager(redisClient, webhookDedupeTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"instance":   id,
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	router := routes.NewRouter(
		cfg,
		logg,
		dbClient,
		redisClient,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		checkoutService,
		stripeWebhookService,
		stripeClient,
		squareWebhookService,
		squareVerifier,
		webhookGuard,
	)

	if err := api.Serve(ctx, api.NewServer(addr, router), logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
