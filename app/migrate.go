package app

import (
	"context"
	"fmt"

	trophymigrations "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/repositories/migrations"
	"github.com/Black-And-White-Club/trophy-bot/app/observability"
	"github.com/Black-And-White-Club/trophy-bot/app/observability/attr"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// NewMigrator returns the bun migrator for the trophy tables.
func NewMigrator(db *bun.DB) *migrate.Migrator {
	return migrate.NewMigrator(db, trophymigrations.Migrations)
}

// Migrate creates the migration tables if needed and applies pending
// trophy migrations.
func Migrate(ctx context.Context, db *bun.DB, obs observability.Observability) error {
	migrator := NewMigrator(db)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if group.IsZero() {
		obs.Logger.InfoContext(ctx, "No new migrations to run")
	} else {
		obs.Logger.InfoContext(ctx, "Migrated trophy tables", attr.String("group", group.String()))
	}
	return nil
}
