package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/Black-And-White-Club/trophy-bot/app/database"
	"github.com/Black-And-White-Club/trophy-bot/app/eventbus"
	"github.com/Black-And-White-Club/trophy-bot/app/modules/trophy"
	trophyevents "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/events"
	trophyhandlers "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/handlers"
	trophyqueue "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/queue"
	"github.com/Black-And-White-Club/trophy-bot/app/observability"
	"github.com/Black-And-White-Club/trophy-bot/app/observability/attr"
	"github.com/Black-And-White-Club/trophy-bot/config"
	nc "github.com/nats-io/nats.go"
	"github.com/uptrace/bun"
	"golang.org/x/time/rate"
)

type App struct {
	Config        *config.Config
	Observability observability.Observability
	DB            *bun.DB
	EventBus      eventbus.EventBus
	TrophyModule  *trophy.Module
	limiter       *trophyhandlers.IPRateLimiter
}

// NewApp initializes the application with the necessary services and configuration.
func NewApp(ctx context.Context, cfg *config.Config, obs observability.Observability) (*App, error) {
	logger := obs.Logger

	db, err := database.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.InfoContext(ctx, "Record store opened", attr.String("driver", cfg.Store.Driver))

	if err := Migrate(ctx, db, obs); err != nil {
		db.Close()
		return nil, err
	}
	if cfg.Schedule.Dispatch == config.DispatchRiver {
		if err := trophyqueue.Migrate(ctx, cfg.Store.DSN, logger); err != nil {
			db.Close()
			return nil, err
		}
	}

	var natsOpts []nc.Option
	if cfg.NATS.NKeySeed != "" {
		opt, err := eventbus.NKeyOption(cfg.NATS.NKeySeed)
		if err != nil {
			db.Close()
			return nil, err
		}
		natsOpts = append(natsOpts, opt)
	}

	bus, err := eventbus.New(ctx, cfg.NATS.URL, trophyevents.Subjects, logger, natsOpts...)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize event bus: %w", err)
	}

	module, err := trophy.NewTrophyModule(ctx, cfg, obs, db, bus)
	if err != nil {
		bus.Close()
		db.Close()
		return nil, fmt.Errorf("failed to initialize trophy module: %w", err)
	}

	return &App{
		Config:        cfg,
		Observability: obs,
		DB:            db,
		EventBus:      bus,
		TrophyModule:  module,
		limiter:       trophyhandlers.NewIPRateLimiter(rate.Limit(cfg.HTTP.RateLimitRPS), cfg.HTTP.RateLimitBurst),
	}, nil
}

// Close stops the module, then releases the event bus and the store.
func (app *App) Close() error {
	var errs []error
	if err := app.TrophyModule.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close trophy module: %w", err))
	}
	if err := app.EventBus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close event bus: %w", err))
	}
	if err := app.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	return errors.Join(errs...)
}
