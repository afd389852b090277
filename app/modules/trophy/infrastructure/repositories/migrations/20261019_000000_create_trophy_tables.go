package trophymigrations

import (
	"context"
	"fmt"

	trophydb "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/repositories"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating trophy_players and trophy_backups tables...")

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.NewCreateTable().Model((*trophydb.Player)(nil)).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to create trophy_players table: %w", err)
			}
			if _, err := tx.NewCreateIndex().
				Model((*trophydb.Player)(nil)).
				Index("idx_trophy_players_owner_id").
				Column("owner_id").
				IfNotExists().
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to create owner index: %w", err)
			}
			if _, err := tx.NewCreateIndex().
				Model((*trophydb.Player)(nil)).
				Index("idx_trophy_players_current_score").
				Column("current_score").
				IfNotExists().
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to create score index: %w", err)
			}

			if _, err := tx.NewCreateTable().Model((*trophydb.Backup)(nil)).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to create trophy_backups table: %w", err)
			}
			if _, err := tx.NewCreateIndex().
				Model((*trophydb.Backup)(nil)).
				Index("idx_trophy_backups_taken_at").
				Column("taken_at").
				IfNotExists().
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to create backup index: %w", err)
			}
			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping trophy tables...")

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.NewDropTable().Model((*trophydb.Backup)(nil)).IfExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to drop trophy_backups table: %w", err)
			}
			if _, err := tx.NewDropTable().Model((*trophydb.Player)(nil)).IfExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to drop trophy_players table: %w", err)
			}
			return nil
		})
	})
}
