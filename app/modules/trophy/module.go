package trophy

import (
	"context"
	"fmt"
	"sync"
	"time"

	trophyservice "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/application"
	trophyauth "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/auth"
	trophyhandlers "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/handlers"
	trophyqueue "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/queue"
	trophydb "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/repositories"
	trophyscheduler "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/scheduler"
	"github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/scoresource"
	"github.com/Black-And-White-Club/trophy-bot/app/observability"
	"github.com/Black-And-White-Club/trophy-bot/app/observability/attr"
	"github.com/Black-And-White-Club/trophy-bot/config"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/uptrace/bun"
)

const queueStopTimeout = 30 * time.Second

// Module represents the trophy module.
type Module struct {
	TrophyService trophyservice.Service
	Handlers      *trophyhandlers.TrophyHandlers
	scheduler     *trophyscheduler.Scheduler
	queue         *trophyqueue.Service
	config        *config.Config
	observability observability.Observability

	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

// NewTrophyModule wires the store, score source, service, scheduler and
// HTTP handlers of the trophy module.
func NewTrophyModule(
	ctx context.Context,
	cfg *config.Config,
	obs observability.Observability,
	db *bun.DB,
	publisher message.Publisher,
) (*Module, error) {
	logger := obs.Logger
	logger.InfoContext(ctx, "trophy.NewTrophyModule called")

	loc, err := cfg.Schedule.Location()
	if err != nil {
		return nil, err
	}

	source, err := scoresource.NewClient(scoresource.Config{
		BaseURL:           cfg.Source.BaseURL,
		Timeout:           cfg.Source.Timeout,
		RequestsPerSecond: cfg.Source.RequestsPerSecond,
		Burst:             cfg.Source.Burst,
		UserAgent:         cfg.Source.UserAgent,
	}, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create score source client: %w", err)
	}

	service := trophyservice.NewTrophyService(
		trophydb.NewRepository(db),
		source,
		publisher,
		logger,
		obs.Metrics,
		obs.Tracer,
		db,
		trophyservice.Options{
			Location:                 loc,
			PollConcurrency:          cfg.Schedule.PollConcurrency,
			RequireBackupBeforeReset: cfg.Schedule.AbortResetOnBackupFailure,
			PageSize:                 cfg.Leaderboard.PageSize,
		},
	)

	var tokens trophyauth.Provider
	if cfg.HTTP.AdminJWTSecret != "" {
		tokens = trophyauth.NewProvider(cfg.HTTP.AdminJWTSecret)
	} else {
		logger.WarnContext(ctx, "Admin JWT secret not configured, admin routes are unauthenticated")
	}

	module := &Module{
		TrophyService: service,
		Handlers:      trophyhandlers.NewTrophyHandlers(service, tokens, logger),
		config:        cfg,
		observability: obs,
	}

	var dispatcher trophyscheduler.Dispatcher = trophyscheduler.NewInlineDispatcher(service)
	if cfg.Schedule.Dispatch == config.DispatchRiver {
		queue, err := trophyqueue.NewService(ctx, cfg.Store.DSN, service, logger, obs.Metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create trophy queue: %w", err)
		}
		module.queue = queue
		dispatcher = queue
	}

	triggers, err := trophyscheduler.Triggers(cfg.Schedule.BackupAt, cfg.Schedule.ResetAt, cfg.Schedule.RefreshAt)
	if err != nil {
		return nil, err
	}
	module.scheduler, err = trophyscheduler.New(trophyscheduler.Config{
		Location:      loc,
		TickInterval:  cfg.Schedule.TickInterval,
		CatchUpWindow: cfg.Schedule.CatchUpWindow,
		Triggers:      triggers,
	}, service, dispatcher, service, trophydb.NewFireLedger(db), trophyscheduler.RealClock{}, logger, obs.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create trophy scheduler: %w", err)
	}

	return module, nil
}

// Run starts the queue workers, if any, and blocks on the scheduler until
// ctx is canceled or Close is called.
func (m *Module) Run(ctx context.Context, wg *sync.WaitGroup) {
	logger := m.observability.Logger
	logger.InfoContext(ctx, "Starting trophy module")

	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancelFunc = cancel
	m.mu.Unlock()
	defer cancel()

	if wg != nil {
		defer wg.Done()
	}

	if m.queue != nil {
		if err := m.queue.Start(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to start trophy queue", attr.Error(err))
			return
		}
	}

	if err := m.scheduler.Run(ctx); err != nil {
		logger.ErrorContext(ctx, "Trophy scheduler exited", attr.Error(err))
	}
	logger.InfoContext(ctx, "Trophy module goroutine stopped")
}

// Close stops the trophy module and cleans up resources.
func (m *Module) Close() error {
	logger := m.observability.Logger
	logger.Info("Stopping trophy module")

	m.mu.Lock()
	if m.cancelFunc != nil {
		m.cancelFunc()
	}
	m.mu.Unlock()

	if m.queue != nil {
		ctx, cancel := context.WithTimeout(context.Background(), queueStopTimeout)
		defer cancel()
		if err := m.queue.Stop(ctx); err != nil {
			return err
		}
	}

	logger.Info("Trophy module stopped")
	return nil
}
