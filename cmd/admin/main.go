package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"holylandtour/internal/auth"
	"holylandtour/internal/config"
	"holylandtour/internal/database"
	"holylandtour/internal/logger"
	"holylandtour/internal/openfga"
	"holylandtour/internal/validator"
)

func main() {
	var (
		email    = flag.String("email", "", "Admin email")
		name     = flag.String("name", "", "Admin display name")
		password = flag.String("password", "", "Admin password")
		role     = flag.String("role", string(database.AdminRoleAdmin), "Role: admin or super_admin")
	)
	flag.Parse()

	if err := run(context.Background(), *email, *name, *password, database.AdminRole(*role)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, email, name, password string, role database.AdminRole) error {
	if role != database.AdminRoleAdmin && role != database.AdminRoleSuperAdmin {
		return fmt.Errorf("unknown role %q", role)
	}

	v := validator.New()
	if err := v.Var(email, "required,email"); err != nil {
		return fmt.Errorf("invalid email: %w", err)
	}
	if err := v.Var(password, "required,password_strength"); err != nil {
		return fmt.Errorf("password must be at least 8 characters with upper and lower case letters, a digit and a symbol")
	}

	cfg := config.NewConfig()
	log := logger.New(cfg)

	db := database.NewDatabase()
	if err := db.Connect(ctx, cfg.Database.URL); err != nil {
		return err
	}
	defer db.Close()

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	admin, err := db.CreateAdminUser(ctx, database.CreateAdminUserParams{
		Email:          email,
		Name:           name,
		HashedPassword: hashed,
		Role:           role,
	})
	if err != nil {
		return err
	}
	log.Info("Admin user created", "admin_id", admin.ID, "email", admin.Email, "role", admin.Role)

	fgaClient, err := openfga.NewClient(ctx, log.Logger, cfg.OpenFGA)
	if err != nil {
		return err
	}
	for _, relation := range auth.Relations(role) {
		if err := fgaClient.Grant(ctx, admin.ID.String(), relation, openfga.DashboardObject); err != nil {
			return err
		}
	}

	fmt.Printf("Created %s %s (%s)\n", admin.Role, admin.Email, admin.ID)
	return nil
}
