// Package main prepares the dispatch log database and issues operator tokens
// for the admin API.
//
// Usage:
//
//	seed -role operator -user ops-1 -ttl 720h
//
// Database and River migrations run first unless -skip-migrate is set.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"xixu.io/notifier/internal/api/middleware"
	"xixu.io/notifier/internal/config"
	"xixu.io/notifier/internal/infrastructure"
	"xixu.io/notifier/internal/pkg/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	roleID := fs.String("role", "operator", "built-in role to issue the token for")
	userID := fs.String("user", "seed-admin", "subject of the issued token")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	skipMigrate := fs.Bool("skip-migrate", false, "do not run database migrations")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", *ttl)
	}

	role, ok := findRole(*roleID)
	if !ok {
		return fmt.Errorf("unknown role %q", *roleID)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	if !*skipMigrate && cfg.Database.Enabled {
		if err := migrate(context.Background(), cfg); err != nil {
			return err
		}
	}

	token, expiresAt, err := middleware.GenerateToken(middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.JWTSecret),
		Issuer:     cfg.Security.JWTIssuer,
		ExpiresIn:  *ttl,
	}, *userID, *userID, []string{role.ID}, role.Permissions)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	logger.Info("Token issued",
		zap.String("role", role.ID),
		zap.String("user", *userID),
		zap.Time("expires_at", expiresAt),
	)
	fmt.Println(token)
	return nil
}

func migrate(ctx context.Context, cfg *config.Config) error {
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	logger.Info("Running migrations...")
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("Migrations completed successfully")
	return nil
}

// builtInRole is a named permission set tokens are issued for.
type builtInRole struct {
	ID          string
	Description string
	Permissions []string
}

func builtInRoles() []builtInRole {
	return []builtInRole{
		{
			ID:          "admin",
			Description: "Full access including log level changes",
			Permissions: []string{middleware.PermissionAdmin},
		},
		{
			ID:          "operator",
			Description: "Sends notifications and runs jobs",
			Permissions: []string{
				middleware.PermissionNotificationSend,
				middleware.PermissionNotificationRead,
				middleware.PermissionJobRead,
				middleware.PermissionJobRun,
			},
		},
		{
			ID:          "viewer",
			Description: "Reads templates, dispatch logs and job status",
			Permissions: []string{
				middleware.PermissionNotificationRead,
				middleware.PermissionJobRead,
			},
		},
		{
			ID:          "service",
			Description: "Application backends calling the notification endpoints",
			Permissions: []string{middleware.PermissionNotificationSend},
		},
	}
}

func findRole(id string) (builtInRole, bool) {
	for _, r := range builtInRoles() {
		if r.ID == id {
			return r, true
		}
	}
	return builtInRole{}, false
}
