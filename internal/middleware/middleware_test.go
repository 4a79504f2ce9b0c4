package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"holylandtour/internal/auth"
	"holylandtour/internal/database"
	"holylandtour/internal/logger"
	"holylandtour/internal/ratelimit"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) ParseToken(token string) (uuid.UUID, auth.Claims, error) {
	args := m.Called(token)
	return args.Get(0).(uuid.UUID), auth.Claims{}, args.Error(1)
}

func (m *mockResolver) Admin(ctx context.Context, id uuid.UUID) (database.AdminUser, error) {
	args := m.Called(id)
	return args.Get(0).(database.AdminUser), args.Error(1)
}

func TestRequireAdmin(t *testing.T) {
	admin := database.AdminUser{ID: uuid.New(), Email: "admin@holylandtour.com", Role: database.AdminRoleAdmin, IsActive: true}

	tests := []struct {
		name       string
		header     string
		setupMocks func(*mockResolver)
		wantStatus int
	}{
		{
			name:   "valid bearer token",
			header: "Bearer good",
			setupMocks: func(r *mockResolver) {
				r.On("ParseToken", "good").Return(admin.ID, nil)
				r.On("Admin", admin.ID).Return(admin, nil)
			},
			wantStatus: fiber.StatusOK,
		},
		{
			name:       "no credentials",
			setupMocks: func(r *mockResolver) {},
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name:       "not a bearer header",
			header:     "Basic abc",
			setupMocks: func(r *mockResolver) {},
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name:   "invalid token",
			header: "Bearer bad",
			setupMocks: func(r *mockResolver) {
				r.On("ParseToken", "bad").Return(uuid.Nil, auth.ErrInvalidToken)
			},
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name:   "disabled admin",
			header: "Bearer good",
			setupMocks: func(r *mockResolver) {
				r.On("ParseToken", "good").Return(admin.ID, nil)
				r.On("Admin", admin.ID).Return(database.AdminUser{}, auth.ErrInactiveAdmin)
			},
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name:   "store failure",
			header: "Bearer good",
			setupMocks: func(r *mockResolver) {
				r.On("ParseToken", "good").Return(admin.ID, nil)
				r.On("Admin", admin.ID).Return(database.AdminUser{}, errors.New("connection reset"))
			},
			wantStatus: fiber.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &mockResolver{}
			tt.setupMocks(resolver)

			app := fiber.New()
			app.Get("/admin", RequireAdmin(logger.Discard(), nil, resolver), func(c *fiber.Ctx) error {
				got, ok := AdminFromCtx(c)
				require.True(t, ok)
				return c.SendString(got.Email)
			})

			req := httptest.NewRequest("GET", "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus == fiber.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, admin.Email, string(body))
			}
			resolver.AssertExpectations(t)
		})
	}
}

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name       string
		role       database.AdminRole
		wantStatus int
	}{
		{name: "super admin may export", role: database.AdminRoleSuperAdmin, wantStatus: fiber.StatusOK},
		{name: "admin may not export", role: database.AdminRoleAdmin, wantStatus: fiber.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Post("/export",
				func(c *fiber.Ctx) error {
					c.Locals(adminLocalsKey, database.AdminUser{ID: uuid.New(), Role: tt.role})
					return c.Next()
				},
				RequirePermission(logger.Discard(), auth.RoleAuthorizer{}, auth.PermissionExport),
				func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) },
			)

			resp, err := app.Test(httptest.NewRequest("POST", "/export", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

type stubLimiter struct {
	err   error
	calls int
}

func (s *stubLimiter) Check(ctx context.Context, key string) error {
	s.calls++
	return s.err
}

func TestRateLimit(t *testing.T) {
	tests := []struct {
		name       string
		limiter    *stubLimiter
		wantStatus int
	}{
		{name: "under limit", limiter: &stubLimiter{}, wantStatus: fiber.StatusOK},
		{name: "over limit", limiter: &stubLimiter{err: ratelimit.ErrTooManyAttempts}, wantStatus: fiber.StatusTooManyRequests},
		{name: "limiter down fails open", limiter: &stubLimiter{err: errors.New("dial tcp: refused")}, wantStatus: fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Post("/api/registration", RateLimit(logger.Discard(), tt.limiter, 5, time.Minute), func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})

			resp, err := app.Test(httptest.NewRequest("POST", "/api/registration", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, 1, tt.limiter.calls)
		})
	}
}

func TestRateLimit_InMemoryFallback(t *testing.T) {
	app := fiber.New()
	app.Post("/api/auth/login", RateLimit(logger.Discard(), nil, 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	var statuses []int
	for range 3 {
		resp, err := app.Test(httptest.NewRequest("POST", "/api/auth/login", nil))
		require.NoError(t, err)
		statuses = append(statuses, resp.StatusCode)
	}
	assert.Equal(t, []int{fiber.StatusOK, fiber.StatusOK, fiber.StatusTooManyRequests}, statuses)
}

func TestSecurityHeaders(t *testing.T) {
	app := fiber.New()
	app.Use(SecurityHeaders())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func TestLogger_RecordsHandlerError(t *testing.T) {
	var buf bytes.Buffer
	log := &logger.Logger{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	app := fiber.New()
	app.Use(RequestContext())
	app.Use(Logger(log))
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("database unavailable")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "database unavailable", line["error"])
	assert.Equal(t, float64(fiber.StatusInternalServerError), line["status"])
}
