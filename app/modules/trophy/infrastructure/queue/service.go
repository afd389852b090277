package trophyqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
	"github.com/Black-And-White-Club/trophy-bot/app/observability/attr"
	"github.com/Black-And-White-Club/trophy-bot/app/observability/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
)

const serviceLabel = "river"

// Service dispatches anchored actions through River so that each occurrence
// runs once across every process sharing the database.
type Service struct {
	client  *river.Client[pgx.Tx]
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics metrics.TrophyMetrics
}

// NewService creates the River client and registers the anchored action worker.
func NewService(ctx context.Context, dsn string, runner ActionRunner, logger *slog.Logger, m metrics.TrophyMetrics) (*Service, error) {
	ctxLogger := logger.With(
		attr.String("operation", "new_trophy_queue_service"),
		attr.String("component", "river_queue"),
	)

	start := time.Now()
	m.RecordOperationAttempt(ctx, "initialize_service", serviceLabel)

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		m.RecordOperationFailure(ctx, "initialize_service", serviceLabel)
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		m.RecordOperationFailure(ctx, "initialize_service", serviceLabel)
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		m.RecordOperationFailure(ctx, "initialize_service", serviceLabel)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewAnchoredActionWorker(ctxLogger, runner))

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			queueName: {MaxWorkers: 1},
		},
		Workers: workers,
		Logger:  ctxLogger,
	})
	if err != nil {
		pool.Close()
		m.RecordOperationFailure(ctx, "initialize_service", serviceLabel)
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	m.RecordOperationSuccess(ctx, "initialize_service", serviceLabel)
	m.RecordOperationDuration(ctx, "initialize_service", serviceLabel, time.Since(start))
	ctxLogger.Info("Trophy queue service initialized")

	return &Service{client: client, pool: pool, logger: ctxLogger, metrics: m}, nil
}

// Migrate applies River's schema migrations.
func Migrate(ctx context.Context, dsn string, logger *slog.Logger) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), &rivermigrate.Config{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create River migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("failed to migrate River schema: %w", err)
	}
	for _, v := range res.Versions {
		logger.Info("Applied River migration", attr.Int("version", v.Version))
	}
	return nil
}

// Start starts the River workers.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting trophy queue service")
	if err := s.client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start River client: %w", err)
	}
	return nil
}

// Stop waits for running jobs to finish and closes the pool.
func (s *Service) Stop(ctx context.Context) error {
	s.logger.Info("Stopping trophy queue service")
	defer s.pool.Close()
	if err := s.client.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop River client: %w", err)
	}
	return nil
}

// Dispatch inserts the occurrence as a unique job. A second insert for the
// same (action, date) returns trophydomain.ErrSchedulerReentrancy.
func (s *Service) Dispatch(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error {
	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, "dispatch_anchored_action", serviceLabel)

	ctxLogger := s.logger.With(
		attr.String("action", string(action)),
		attr.String("date", string(date)),
	)

	res, err := s.client.Insert(ctx, AnchoredActionJob{Action: action, Date: date}, insertOpts())
	if err != nil {
		ctxLogger.Error("Failed to enqueue anchored action", attr.Error(err))
		s.metrics.RecordOperationFailure(ctx, "dispatch_anchored_action", serviceLabel)
		return fmt.Errorf("failed to enqueue anchored action: %w", err)
	}

	s.metrics.RecordOperationSuccess(ctx, "dispatch_anchored_action", serviceLabel)
	s.metrics.RecordOperationDuration(ctx, "dispatch_anchored_action", serviceLabel, time.Since(start))

	if res.UniqueSkippedAsDuplicate {
		ctxLogger.Info("Anchored action already enqueued", attr.Int64("job_id", res.Job.ID))
		return trophydomain.ErrSchedulerReentrancy
	}
	ctxLogger.Info("Anchored action enqueued", attr.Int64("job_id", res.Job.ID))
	return nil
}

// HealthCheck pings the queue's pool.
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func insertOpts() *river.InsertOpts {
	return &river.InsertOpts{
		Queue:       queueName,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
		},
	}
}
