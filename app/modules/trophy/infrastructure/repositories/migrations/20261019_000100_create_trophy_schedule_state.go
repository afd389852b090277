package trophymigrations

import (
	"context"
	"fmt"

	trophydb "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/repositories"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating trophy_schedule_state table...")

		if _, err := db.NewCreateTable().Model((*trophydb.ScheduleState)(nil)).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create trophy_schedule_state table: %w", err)
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping trophy_schedule_state table...")

		if _, err := db.NewDropTable().Model((*trophydb.ScheduleState)(nil)).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop trophy_schedule_state table: %w", err)
		}
		return nil
	})
}
