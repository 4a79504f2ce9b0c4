package api

import (
	"log/slog"

	"holylandtour/internal/auth"
	"holylandtour/internal/config"
	"holylandtour/internal/logger"
	"holylandtour/internal/middleware"
	"holylandtour/internal/telemetry"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/session"
)

type RouterConfig struct {
	Logger        *logger.Logger
	Config        config.Config
	SessionStore  *session.Store
	Resolver      middleware.AdminResolver
	Authorizer    auth.Authorizer
	IntakeLimiter middleware.Limiter
	LoginLimiter  middleware.Limiter

	Registration *RegistrationHandler
	Booking      *BookingHandler
	Webhook      *WebhookHandler
	Auth         *AuthHandler
	Admin        *AdminHandler
	Health       *HealthHandler
}

func NewApp(cfg RouterConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      cfg.Config.Telemetry.ServiceName,
		ReadTimeout:  cfg.Config.Server.ReadTimeout,
		WriteTimeout: cfg.Config.Server.WriteTimeout,
		ErrorHandler: errorHandler(cfg.Logger.Logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestContext())
	if cfg.Config.Telemetry.Enabled {
		app.Use(telemetry.FiberMiddleware(cfg.Config.Telemetry.ServiceName))
	}
	app.Use(middleware.Logger(cfg.Logger))
	app.Use(middleware.SecurityHeaders())

	log := cfg.Logger.Logger
	window := cfg.Config.Auth.AttemptWindow
	intakeLimit := middleware.RateLimit(log, cfg.IntakeLimiter, cfg.Config.Auth.MaxIntakeAttempts, window)
	loginLimit := middleware.RateLimit(log, cfg.LoginLimiter, cfg.Config.Auth.MaxLoginAttempts, window)

	api := app.Group("/api")
	api.Get("/health", cfg.Health.Healthy)
	api.Get("/tour", cfg.Registration.Tour)
	api.Get("/rooms", cfg.Booking.Rooms)

	api.Post("/registration", intakeLimit, cfg.Registration.Create)
	api.Get("/registration", cfg.Registration.Get)
	api.Post("/hotel-booking", intakeLimit, cfg.Booking.Create)
	api.Get("/hotel-booking", cfg.Booking.Get)

	api.Post("/webhooks/stripe", cfg.Webhook.Stripe)

	api.Post("/auth/login", loginLimit, cfg.Auth.Login)
	api.Post("/auth/logout", cfg.Auth.Logout)

	admin := api.Group("/admin", middleware.RequireAdmin(log, cfg.SessionStore, cfg.Resolver))
	admin.Get("/dashboard",
		middleware.RequirePermission(log, cfg.Authorizer, auth.PermissionViewDashboard),
		cfg.Admin.Dashboard)
	admin.Post("/exports/registrations",
		middleware.RequirePermission(log, cfg.Authorizer, auth.PermissionExport),
		cfg.Admin.ExportRegistrations)
	admin.Get("/files/*",
		middleware.RequirePermission(log, cfg.Authorizer, auth.PermissionExport),
		cfg.Admin.File)

	return app
}

func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal server error"
		if fe, ok := err.(*fiber.Error); ok {
			code = fe.Code
			message = fe.Message
		}
		if code >= fiber.StatusInternalServerError {
			logger.ErrorContext(c.UserContext(), "Unhandled request error", "path", c.Path(), "error", err)
		}
		return c.Status(code).JSON(fiber.Map{"error": message})
	}
}

// SessionConfig returns the admin session settings for the given backing storage.
func SessionConfig(cfg config.Config, storage fiber.Storage) session.Config {
	return session.Config{
		Storage:        storage,
		Expiration:     cfg.Auth.SessionExpiration,
		KeyLookup:      "cookie:holylandtour_admin",
		CookieSecure:   cfg.Server.Environment == config.EnvironmentProduction,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
	}
}
