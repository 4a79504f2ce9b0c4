package auth

import (
	"context"
	"errors"

	"holylandtour/internal/database"
	"holylandtour/internal/openfga"
)

var ErrForbidden = errors.New("auth: permission denied")

type Permission string

const (
	PermissionViewDashboard Permission = openfga.RelationViewer
	PermissionExport        Permission = openfga.RelationExporter
)

type Authorizer interface {
	Authorize(ctx context.Context, admin database.AdminUser, perm Permission) error
}

type Checker interface {
	IsEnabled() bool
	Check(ctx context.Context, userID, relation, object string) (bool, error)
}

// NewAuthorizer uses OpenFGA tuples when the checker is enabled and falls back
// to admin roles otherwise.
func NewAuthorizer(checker Checker) Authorizer {
	if checker != nil && checker.IsEnabled() {
		return fgaAuthorizer{checker: checker}
	}
	return RoleAuthorizer{}
}

type fgaAuthorizer struct {
	checker Checker
}

func (a fgaAuthorizer) Authorize(ctx context.Context, admin database.AdminUser, perm Permission) error {
	allowed, err := a.checker.Check(ctx, admin.ID.String(), string(perm), openfga.DashboardObject)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

// RoleAuthorizer lets every admin view and only super admins export.
type RoleAuthorizer struct{}

func (RoleAuthorizer) Authorize(ctx context.Context, admin database.AdminUser, perm Permission) error {
	switch perm {
	case PermissionViewDashboard:
		return nil
	case PermissionExport:
		if admin.Role == database.AdminRoleSuperAdmin {
			return nil
		}
	}
	return ErrForbidden
}

// Relations lists the tuples a newly created admin of role receives.
func Relations(role database.AdminRole) []string {
	if role == database.AdminRoleSuperAdmin {
		return []string{openfga.RelationViewer, openfga.RelationExporter}
	}
	return []string{openfga.RelationViewer}
}
