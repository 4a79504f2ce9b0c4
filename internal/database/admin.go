package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"holylandtour/internal/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type AdminRole string

const (
	AdminRoleAdmin      AdminRole = "admin"
	AdminRoleSuperAdmin AdminRole = "super_admin"
)

type AdminUser struct {
	ID             uuid.UUID
	Email          string
	Name           string
	HashedPassword string
	Role           AdminRole
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const adminUserColumns = `id, email, name, hashed_password, role, is_active, created_at, updated_at`

func scanAdminUser(row pgx.Row) (AdminUser, error) {
	var u AdminUser
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.HashedPassword, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

type CreateAdminUserParams struct {
	Email          string
	Name           string
	HashedPassword string
	Role           AdminRole
}

func (db *Database) CreateAdminUser(ctx context.Context, params CreateAdminUserParams) (AdminUser, error) {
	now := time.Now().UTC()
	user := AdminUser{
		ID:             uuid.New(),
		Email:          strings.ToLower(params.Email),
		Name:           params.Name,
		HashedPassword: params.HashedPassword,
		Role:           params.Role,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if user.Role == "" {
		user.Role = AdminRoleAdmin
	}

	if _, err := db.Pool.Exec(ctx, `INSERT INTO admin_users (`+adminUserColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Email, user.Name, user.HashedPassword, user.Role, user.IsActive, user.CreatedAt, user.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return user, ErrAdminUserEmailTaken
		}
		return user, fmt.Errorf("database: failed to insert admin user (email=%s): %w", user.Email, err)
	}
	return user, nil
}

func (db *Database) GetAdminUserByEmail(ctx context.Context, email string) (AdminUser, error) {
	user, err := scanAdminUser(db.Pool.QueryRow(ctx, `SELECT `+adminUserColumns+` FROM admin_users WHERE email = lower($1)`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user, ErrAdminUserNotFound
		}
		return user, fmt.Errorf("database: failed to scan admin user (email=%s): %w", email, err)
	}
	return user, nil
}

func (db *Database) GetAdminUserByID(ctx context.Context, id uuid.UUID) (AdminUser, error) {
	user, err := scanAdminUser(db.Pool.QueryRow(ctx, `SELECT `+adminUserColumns+` FROM admin_users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user, ErrAdminUserNotFound
		}
		return user, fmt.Errorf("database: failed to scan admin user (id=%s): %w", id, err)
	}
	return user, nil
}

type AuditLogEvent struct {
	ID        uuid.UUID
	AdminID   util.Optional[uuid.UUID]
	Type      string
	Data      []byte
	CreatedAt time.Time
}

type CreateAuditLogEventParams struct {
	AdminID   util.Optional[uuid.UUID]
	EventType string
	EventData []byte
}

func (db *Database) CreateAuditLogEvent(ctx context.Context, params CreateAuditLogEventParams) (AuditLogEvent, error) {
	event := AuditLogEvent{
		ID:        uuid.New(),
		AdminID:   params.AdminID,
		Type:      params.EventType,
		Data:      params.EventData,
		CreatedAt: time.Now().UTC(),
	}
	if len(event.Data) == 0 {
		event.Data = []byte("{}")
	}

	if _, err := db.Pool.Exec(ctx, `INSERT INTO audit_log_events (id, admin_id, type, data, created_at) VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.AdminID, event.Type, event.Data, event.CreatedAt); err != nil {
		return event, fmt.Errorf("database: failed to insert audit log event: %w", err)
	}
	return event, nil
}
