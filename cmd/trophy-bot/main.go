package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"
	_ "time/tzdata"

	"github.com/Black-And-White-Club/trophy-bot/app"
	"github.com/Black-And-White-Club/trophy-bot/app/database"
	trophyauth "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/auth"
	trophyexport "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/export"
	trophyqueue "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/queue"
	"github.com/Black-And-White-Club/trophy-bot/app/observability"
	"github.com/Black-And-White-Club/trophy-bot/app/observability/attr"
	"github.com/Black-And-White-Club/trophy-bot/config"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cliApp := &cli.App{
		Name:  "trophy-bot",
		Usage: "track trophy deltas and run the daily reset schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config.yaml",
				Usage:   "path to the configuration file",
				EnvVars: []string{"CONFIG_PATH"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			reconcileCommand(),
			resetCommand(),
			backupCommand(),
			tokenCommand(),
		},
	}

	if err := cliApp.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, observability.Observability, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, observability.Observability{}, fmt.Errorf("failed to load config: %w", err)
	}
	obs, err := observability.Init(cfg.Observability)
	if err != nil {
		return nil, observability.Observability{}, err
	}
	return cfg, obs, nil
}

// withApp builds the application, runs fn and closes it.
func withApp(c *cli.Context, fn func(a *app.App) error) error {
	cfg, obs, err := loadConfig(c)
	if err != nil {
		return err
	}
	a, err := app.NewApp(c.Context, cfg, obs)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			obs.Logger.Error("Failed to close application", attr.Error(err))
		}
	}()
	return fn(a)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the scheduler and the HTTP command surface",
		Action: func(c *cli.Context) error {
			return withApp(c, func(a *app.App) error {
				return a.Start(c.Context)
			})
		},
	}
}

func migrateCommand() *cli.Command {
	withMigrator := func(c *cli.Context, fn func(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *migrate.Migrator) error) error {
		cfg, obs, err := loadConfig(c)
		if err != nil {
			return err
		}
		db, err := database.Open(c.Context, cfg.Store)
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(c.Context, cfg, obs.Logger, app.NewMigrator(db))
	}

	return &cli.Command{
		Name:  "migrate",
		Usage: "database migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "create migration tables",
				Action: func(c *cli.Context) error {
					return withMigrator(c, func(ctx context.Context, _ *config.Config, _ *slog.Logger, m *migrate.Migrator) error {
						return m.Init(ctx)
					})
				},
			},
			{
				Name:  "migrate",
				Usage: "migrate database",
				Action: func(c *cli.Context) error {
					return withMigrator(c, func(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *migrate.Migrator) error {
						if err := m.Init(ctx); err != nil {
							return err
						}
						group, err := m.Migrate(ctx)
						if err != nil {
							return err
						}
						if group.IsZero() {
							fmt.Println("No new migrations to run")
						} else {
							fmt.Printf("Migrated to %s\n", group)
						}

						if cfg.Schedule.Dispatch == config.DispatchRiver {
							return trophyqueue.Migrate(ctx, cfg.Store.DSN, logger)
						}
						return nil
					})
				},
			},
			{
				Name:  "rollback",
				Usage: "rollback the last migration group",
				Action: func(c *cli.Context) error {
					return withMigrator(c, func(ctx context.Context, _ *config.Config, _ *slog.Logger, m *migrate.Migrator) error {
						group, err := m.Rollback(ctx)
						if err != nil {
							return err
						}
						if group.IsZero() {
							fmt.Println("No groups to roll back")
						} else {
							fmt.Printf("Rolled back %s\n", group)
						}
						return nil
					})
				},
			},
			{
				Name:  "status",
				Usage: "print migrations status",
				Action: func(c *cli.Context) error {
					return withMigrator(c, func(ctx context.Context, _ *config.Config, _ *slog.Logger, m *migrate.Migrator) error {
						ms, err := m.MigrationsWithStatus(ctx)
						if err != nil {
							return err
						}
						fmt.Printf("migrations: %s\n", ms)
						fmt.Printf("unapplied migrations: %s\n", ms.Unapplied())
						fmt.Printf("last migration group: %s\n", ms.LastGroup())
						return nil
					})
				},
			},
			{
				Name:  "create_go",
				Usage: "create Go migration",
				Action: func(c *cli.Context) error {
					return withMigrator(c, func(ctx context.Context, _ *config.Config, _ *slog.Logger, m *migrate.Migrator) error {
						name := strings.Join(c.Args().Slice(), "_")
						if name == "" {
							return fmt.Errorf("migration name is required")
						}
						mf, err := m.CreateGoMigration(ctx, name)
						if err != nil {
							return err
						}
						fmt.Printf("Created migration %s (%s)\n", mf.Name, mf.Path)
						return nil
					})
				},
			},
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "poll every tracked player once",
		Action: func(c *cli.Context) error {
			return withApp(c, func(a *app.App) error {
				report, err := a.TrophyModule.TrophyService.ReconcileAll(c.Context)
				if err != nil {
					return err
				}
				fmt.Printf("polled=%d updated=%d skipped=%d failed=%d duration=%s\n",
					report.Polled, report.Updated, report.Skipped, report.Failed(), report.Duration.Round(time.Millisecond))
				for _, f := range report.Failures {
					fmt.Printf("  %s: %s: %v\n", f.Tag, f.Kind, f.Err)
				}
				return nil
			})
		},
	}
}

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "reset every player's counters now",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "backup", Usage: "snapshot the roster before resetting"},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, func(a *app.App) error {
				res, err := a.TrophyModule.TrophyService.ForceReset(c.Context, c.Bool("backup"))
				if err != nil {
					return err
				}
				fmt.Printf("Reset %d players for %s\n", res.Reset, res.Date)
				if res.BackupID != "" {
					fmt.Printf("Backup %s\n", res.BackupID)
				}
				return nil
			})
		},
	}
}

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "roster snapshots",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "snapshot the roster now",
				Action: func(c *cli.Context) error {
					return withApp(c, func(a *app.App) error {
						snap, err := a.TrophyModule.TrophyService.CreateBackup(c.Context)
						if err != nil {
							return err
						}
						fmt.Printf("Created backup %s with %d players\n", snap.ID, len(snap.Players))
						return nil
					})
				},
			},
			{
				Name:  "list",
				Usage: "list recent snapshots",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: func(c *cli.Context) error {
					return withApp(c, func(a *app.App) error {
						summaries, err := a.TrophyModule.TrophyService.ListBackups(c.Context, c.Int("limit"))
						if err != nil {
							return err
						}
						tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
						fmt.Fprintln(tw, "ID\tTAKEN ON\tTAKEN AT\tPLAYERS")
						for _, s := range summaries {
							fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", s.ID, s.TakenOn, s.TakenAt.Format(time.RFC3339), s.PlayerCount)
						}
						return tw.Flush()
					})
				},
			},
			{
				Name:      "restore",
				Usage:     "replace the roster with a snapshot",
				ArgsUsage: "<backup-id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return fmt.Errorf("backup id is required")
					}
					return withApp(c, func(a *app.App) error {
						n, err := a.TrophyModule.TrophyService.RestoreBackup(c.Context, id)
						if err != nil {
							return err
						}
						fmt.Printf("Restored %d players from %s\n", n, id)
						return nil
					})
				},
			},
			{
				Name:      "export",
				Usage:     "write a snapshot as an xlsx workbook",
				ArgsUsage: "<backup-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "output path, defaults to the generated file name"},
				},
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return fmt.Errorf("backup id is required")
					}
					return withApp(c, func(a *app.App) error {
						snap, err := a.TrophyModule.TrophyService.GetBackup(c.Context, id)
						if err != nil {
							return err
						}
						path := c.String("out")
						if path == "" {
							path = trophyexport.Filename(snap)
						}
						f, err := os.Create(path)
						if err != nil {
							return err
						}
						if err := trophyexport.WriteSnapshotXLSX(f, snap); err != nil {
							f.Close()
							return err
						}
						if err := f.Close(); err != nil {
							return err
						}
						fmt.Printf("Wrote %s\n", path)
						return nil
					})
				},
			},
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "mint a bearer token for the admin routes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "subject", Value: "admin"},
			&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
		},
		Action: func(c *cli.Context) error {
			cfg, _, err := loadConfig(c)
			if err != nil {
				return err
			}
			if cfg.HTTP.AdminJWTSecret == "" {
				return fmt.Errorf("http.admin_jwt_secret is not configured")
			}
			token, err := trophyauth.NewProvider(cfg.HTTP.AdminJWTSecret).GenerateToken(c.String("subject"), trophyauth.RoleAdmin, c.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}
