package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"strings"

	"holylandtour/internal/audit"
	"holylandtour/internal/auth"
	"holylandtour/internal/database"
	"holylandtour/internal/middleware"
	"holylandtour/internal/reporting"
	"holylandtour/internal/storage"
	"holylandtour/internal/util"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"
)

type Authenticator interface {
	Login(ctx context.Context, email, password string) (database.AdminUser, string, error)
}

type Auditor interface {
	Record(ctx context.Context, params audit.LogEventParams)
}

type Reporter interface {
	Dashboard(ctx context.Context) (reporting.Dashboard, error)
	ExportRegistrations(ctx context.Context) (reporting.Export, error)
}

type FileReader interface {
	Retrieve(ctx context.Context, key string) (io.ReadCloser, error)
}

type AuthHandler struct {
	logger       *slog.Logger
	auth         Authenticator
	sessionStore *session.Store
	auditor      Auditor
}

func NewAuthHandler(logger *slog.Logger, authenticator Authenticator, sessionStore *session.Store, auditor Auditor) *AuthHandler {
	return &AuthHandler{logger: logger, auth: authenticator, sessionStore: sessionStore, auditor: auditor}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Email and password are required"})
	}

	admin, token, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInactiveAdmin):
			h.auditor.Record(c.UserContext(), audit.LogEventParams{
				Type: audit.EventTypeAdminLoginFailed,
				Data: map[string]any{"email": strings.ToLower(req.Email), "ip": c.IP()},
			})
			// Disabled accounts get the same answer as a wrong password.
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid email or password"})
		default:
			h.logger.ErrorContext(c.UserContext(), "Admin login error", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
		}
	}

	if h.sessionStore != nil {
		sess, err := h.sessionStore.Get(c)
		if err != nil {
			h.logger.ErrorContext(c.UserContext(), "Failed to get session", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create session"})
		}
		if err := sess.Regenerate(); err != nil {
			h.logger.ErrorContext(c.UserContext(), "Failed to regenerate session", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create session"})
		}
		sess.Set(middleware.SessionAdminIDKey, admin.ID.String())
		if err := sess.Save(); err != nil {
			h.logger.ErrorContext(c.UserContext(), "Failed to save session", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save session"})
		}
	}

	h.auditor.Record(c.UserContext(), audit.LogEventParams{
		AdminID: util.Some(admin.ID),
		Type:    audit.EventTypeAdminLogin,
		Data:    map[string]any{"ip": c.IP()},
	})

	return c.JSON(fiber.Map{
		"token": token,
		"admin": fiber.Map{
			"id":    admin.ID,
			"email": admin.Email,
			"name":  admin.Name,
			"role":  admin.Role,
		},
	})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if h.sessionStore == nil {
		return c.JSON(fiber.Map{"success": true})
	}

	sess, err := h.sessionStore.Get(c)
	if err != nil {
		h.logger.ErrorContext(c.UserContext(), "Failed to get session", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
	rawID, _ := sess.Get(middleware.SessionAdminIDKey).(string)
	if err := sess.Destroy(); err != nil {
		h.logger.ErrorContext(c.UserContext(), "Failed to destroy session", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	if adminID, err := uuid.Parse(rawID); err == nil {
		h.auditor.Record(c.UserContext(), audit.LogEventParams{
			AdminID: util.Some(adminID),
			Type:    audit.EventTypeAdminLogout,
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

type AdminHandler struct {
	logger   *slog.Logger
	reporter Reporter
	files    FileReader
	auditor  Auditor
}

func NewAdminHandler(logger *slog.Logger, reporter Reporter, files FileReader, auditor Auditor) *AdminHandler {
	return &AdminHandler{logger: logger, reporter: reporter, files: files, auditor: auditor}
}

func (h *AdminHandler) Dashboard(c *fiber.Ctx) error {
	dashboard, err := h.reporter.Dashboard(c.UserContext())
	if err != nil {
		h.logger.ErrorContext(c.UserContext(), "Dashboard API error", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch dashboard data"})
	}
	return c.JSON(dashboard)
}

func (h *AdminHandler) ExportRegistrations(c *fiber.Ctx) error {
	export, err := h.reporter.ExportRegistrations(c.UserContext())
	if err != nil {
		h.logger.ErrorContext(c.UserContext(), "Registration export error", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to export registrations"})
	}

	if admin, ok := middleware.AdminFromCtx(c); ok {
		h.auditor.Record(c.UserContext(), audit.LogEventParams{
			AdminID: util.Some(admin.ID),
			Type:    audit.EventTypeRegistrationExport,
			Data:    map[string]any{"key": export.Key, "rows": export.Rows},
		})
	}
	return c.JSON(export)
}

// File streams an export kept on local storage.
func (h *AdminHandler) File(c *fiber.Ctx) error {
	key := c.Params("*")
	rc, err := h.files.Retrieve(c.UserContext(), key)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrPathTraversal):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "File not found"})
		default:
			h.logger.ErrorContext(c.UserContext(), "Failed to retrieve file", "key", key, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
		}
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Attachment(path.Base(key))
	return c.SendStream(rc)
}
