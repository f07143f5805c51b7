package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/geocoder89/taskhub/internal/config"
	"github.com/geocoder89/taskhub/internal/service"
)

type UserEnsurer interface {
	EnsureUser(ctx context.Context, in service.RegisterInput) (bool, error)
}

// EnsureSeedUser creates the configured bootstrap account if it does not
// exist yet. It is a no-op when no seed user is configured.
func EnsureSeedUser(ctx context.Context, users UserEnsurer, cfg config.SeedUserConfig, log *slog.Logger) error {
	if cfg.Email == "" || cfg.Password == "" {
		return nil
	}

	created, err := users.EnsureUser(ctx, service.RegisterInput{
		Email:    cfg.Email,
		Password: cfg.Password,
		Name:     cfg.Name,
	})
	if err != nil {
		return fmt.Errorf("seed user: %w", err)
	}

	if created {
		log.InfoContext(ctx, "seed user created", "email", cfg.Email)
	}

	return nil
}
