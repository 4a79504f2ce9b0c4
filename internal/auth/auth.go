package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"holylandtour/internal/database"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrInactiveAdmin      = errors.New("auth: admin account is disabled")
)

type Store interface {
	GetAdminUserByEmail(ctx context.Context, email string) (database.AdminUser, error)
	GetAdminUserByID(ctx context.Context, id uuid.UUID) (database.AdminUser, error)
}

type Claims struct {
	Email string             `json:"email"`
	Role  database.AdminRole `json:"role"`
	jwt.RegisteredClaims
}

type Service struct {
	logger *slog.Logger
	store  Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewService(logger *slog.Logger, store Store, secret string, ttl time.Duration) *Service {
	return &Service{
		logger: logger,
		store:  store,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Login checks the password of an active admin and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (database.AdminUser, string, error) {
	admin, err := s.store.GetAdminUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, database.ErrAdminUserNotFound) {
			return database.AdminUser{}, "", ErrInvalidCredentials
		}
		return database.AdminUser{}, "", fmt.Errorf("auth: failed to get admin: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.HashedPassword), []byte(password)); err != nil {
		s.logger.WarnContext(ctx, "Admin login with wrong password", "admin_id", admin.ID)
		return database.AdminUser{}, "", ErrInvalidCredentials
	}
	if !admin.IsActive {
		return database.AdminUser{}, "", ErrInactiveAdmin
	}

	token, err := s.IssueToken(admin)
	if err != nil {
		return database.AdminUser{}, "", err
	}
	return admin, token, nil
}

func (s *Service) IssueToken(admin database.AdminUser) (string, error) {
	now := s.now()
	claims := Claims{
		Email: admin.Email,
		Role:  admin.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   admin.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates signature and expiry and returns the admin id.
func (s *Service) ParseToken(token string) (uuid.UUID, Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return uuid.Nil, Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, Claims{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return id, claims, nil
}

// Admin loads the admin behind an authenticated id; disabled admins are rejected.
func (s *Service) Admin(ctx context.Context, id uuid.UUID) (database.AdminUser, error) {
	admin, err := s.store.GetAdminUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrAdminUserNotFound) {
			return database.AdminUser{}, ErrInvalidToken
		}
		return database.AdminUser{}, fmt.Errorf("auth: failed to get admin: %w", err)
	}
	if !admin.IsActive {
		return database.AdminUser{}, ErrInactiveAdmin
	}
	return admin, nil
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: failed to hash password: %w", err)
	}
	return string(hashed), nil
}
