package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"holylandtour/internal/api"
	"holylandtour/internal/audit"
	"holylandtour/internal/auth"
	"holylandtour/internal/booking"
	"holylandtour/internal/config"
	"holylandtour/internal/daemon"
	"holylandtour/internal/database"
	"holylandtour/internal/events"
	"holylandtour/internal/logger"
	"holylandtour/internal/middleware"
	"holylandtour/internal/notifications"
	"holylandtour/internal/openfga"
	"holylandtour/internal/ratelimit"
	"holylandtour/internal/registration"
	"holylandtour/internal/reporting"
	"holylandtour/internal/storage"
	"holylandtour/internal/stripe"
	"holylandtour/internal/telemetry"
	"holylandtour/internal/validator"
	"holylandtour/internal/webhook"

	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/storage/postgres/v3"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.NewConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, "telemetry shutdown:", err)
		}
	}()

	log := logger.New(cfg)

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		log.Warn("Failed to create metrics, recording disabled", "error", err)
		metrics = telemetry.NopMetrics()
	}

	db := database.NewDatabase()
	if err := db.Connect(ctx, cfg.Database.URL); err != nil {
		log.Error("Failed to initialize database", "error", err)
		return err
	}
	defer db.Close()

	mailer, err := notifications.NewMailer(log.Logger, cfg.Email)
	if err != nil {
		return err
	}

	publisher, err := events.NewPublisher(log.Logger, cfg.AMQP.URL, cfg.AMQP.Exchange)
	if err != nil {
		return err
	}
	defer publisher.Close()

	fileStorage, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	fgaClient, err := openfga.NewClient(ctx, log.Logger, cfg.OpenFGA)
	if err != nil {
		return err
	}

	var intakeLimiter, loginLimiter middleware.Limiter
	if cfg.Redis.URL != "" {
		redisClient, err := ratelimit.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		intakeLimiter = ratelimit.NewRedisLimiter(redisClient, "intake", cfg.Auth.MaxIntakeAttempts, cfg.Auth.AttemptWindow)
		loginLimiter = ratelimit.NewRedisLimiter(redisClient, "login", cfg.Auth.MaxLoginAttempts, cfg.Auth.AttemptWindow)
	} else {
		log.Info("REDIS_URL not set, using in-memory rate limiting")
	}

	sessionStorage := postgres.New(postgres.Config{
		ConnectionURI: cfg.Database.URL,
		Table:         "admin_sessions",
	})
	defer sessionStorage.Close()
	sessionStore := session.New(api.SessionConfig(cfg, sessionStorage))

	v := validator.New()
	stripeClient := stripe.NewClient(log.Logger, cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, cfg.Server.BaseURL)

	registrations := registration.NewService(log.Logger, &db, stripeClient, v, metrics, cfg.Tour)
	bookings := booking.NewService(log.Logger, &db, stripeClient, v, metrics, cfg.Tour)
	processor := webhook.NewProcessor(webhook.Params{
		Logger:             log.Logger,
		Store:              &db,
		Parser:             stripeClient,
		Mailer:             mailer,
		Publisher:          publisher,
		Metrics:            metrics,
		Tour:               cfg.Tour,
		DecrementInventory: cfg.Booking.DecrementInventory,
	})
	reporter := reporting.NewService(log.Logger, &db, fileStorage)
	authService := auth.NewService(log.Logger, &db, cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration)
	auditor := audit.NewAuditor(log.Logger, &db)

	app := api.NewApp(api.RouterConfig{
		Logger:        log,
		Config:        cfg,
		SessionStore:  sessionStore,
		Resolver:      authService,
		Authorizer:    auth.NewAuthorizer(fgaClient),
		IntakeLimiter: intakeLimiter,
		LoginLimiter:  loginLimiter,
		Registration:  api.NewRegistrationHandler(log.Logger, registrations),
		Booking:       api.NewBookingHandler(log.Logger, bookings),
		Webhook:       api.NewWebhookHandler(log.Logger, processor),
		Auth:          api.NewAuthHandler(log.Logger, authService, sessionStore, auditor),
		Admin:         api.NewAdminHandler(log.Logger, reporter, fileStorage, auditor),
		Health:        api.NewHealthHandler(log.Logger, &db),
	})

	manager := daemon.NewDaemonManager(log.Logger)
	manager.Add("abandon-stale-pending", daemon.Ticker(log.Logger, cfg.Daemon.Interval,
		daemon.AbandonStalePendingTask(log.Logger, &db, cfg.Daemon.PendingTTL, time.Now)))
	manager.Add("prune-webhook-events", daemon.Ticker(log.Logger, cfg.Daemon.Interval,
		daemon.PruneWebhookEventsTask(log.Logger, &db, cfg.Daemon.WebhookEventRetention, time.Now)))

	log.Info("Starting supervised daemons...")
	manager.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		log.Info("Starting HTTP server...", "addr", addr)
		serverErr <- app.Listen(addr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-serverErr:
		stop()
		manager.Wait()
		return fmt.Errorf("http server stopped: %w", err)
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}
	manager.Wait()
	log.Info("Server was successfully shut down")
	return nil
}
