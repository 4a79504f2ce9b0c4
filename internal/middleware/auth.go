package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"holylandtour/internal/auth"
	"holylandtour/internal/database"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"
)

const (
	SessionAdminIDKey = "admin_id"
	adminLocalsKey    = "admin"
)

type AdminResolver interface {
	ParseToken(token string) (uuid.UUID, auth.Claims, error)
	Admin(ctx context.Context, id uuid.UUID) (database.AdminUser, error)
}

// RequireAdmin authenticates the caller from the session cookie or a bearer
// token and stores the admin in locals.
func RequireAdmin(logger *slog.Logger, sessionStore *session.Store, resolver AdminResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		adminID, ok, err := adminIDFromRequest(c, sessionStore, resolver)
		if err != nil {
			logger.ErrorContext(c.UserContext(), "Failed to read admin session", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
		}
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}

		admin, err := resolver.Admin(c.UserContext(), adminID)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrInactiveAdmin) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
			}
			logger.ErrorContext(c.UserContext(), "Failed to load admin", "admin_id", adminID, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
		}

		c.Locals(adminLocalsKey, admin)
		return c.Next()
	}
}

func adminIDFromRequest(c *fiber.Ctx, sessionStore *session.Store, resolver AdminResolver) (uuid.UUID, bool, error) {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			return uuid.Nil, false, nil
		}
		id, _, err := resolver.ParseToken(token)
		if err != nil {
			return uuid.Nil, false, nil
		}
		return id, true, nil
	}

	if sessionStore == nil {
		return uuid.Nil, false, nil
	}
	sess, err := sessionStore.Get(c)
	if err != nil {
		return uuid.Nil, false, err
	}
	raw, ok := sess.Get(SessionAdminIDKey).(string)
	if !ok {
		return uuid.Nil, false, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

// RequirePermission must run after RequireAdmin.
func RequirePermission(logger *slog.Logger, authorizer auth.Authorizer, perm auth.Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		admin, ok := AdminFromCtx(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}

		if err := authorizer.Authorize(c.UserContext(), admin, perm); err != nil {
			if errors.Is(err, auth.ErrForbidden) {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
			}
			logger.ErrorContext(c.UserContext(), "Authorization check failed", "admin_id", admin.ID, "permission", perm, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
		}
		return c.Next()
	}
}

func AdminFromCtx(c *fiber.Ctx) (database.AdminUser, bool) {
	admin, ok := c.Locals(adminLocalsKey).(database.AdminUser)
	return admin, ok
}
