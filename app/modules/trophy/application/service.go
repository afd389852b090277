package trophyservice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
	trophyevents "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/events"
	trophydb "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/repositories"
	"github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/scoresource"
	"github.com/Black-And-White-Club/trophy-bot/app/observability/attr"
	"github.com/Black-And-White-Club/trophy-bot/app/observability/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "TrophyService"

// Options tunes the service.
type Options struct {
	// Location is the schedule timezone used for reset and backup dates.
	Location *time.Location
	// PollConcurrency bounds concurrent score source requests per sweep.
	PollConcurrency int
	// RequireBackupBeforeReset skips a scheduled reset when no snapshot was
	// taken on the reset date.
	RequireBackupBeforeReset bool
	// PageSize is the default leaderboard page size.
	PageSize int
}

// TrophyService implements the Service interface.
type TrophyService struct {
	repo      trophydb.Repository
	source    scoresource.Source
	publisher message.Publisher
	logger    *slog.Logger
	metrics   metrics.TrophyMetrics
	tracer    trace.Tracer
	db        *bun.DB
	opts      Options
	now       func() time.Time
}

var _ Service = (*TrophyService)(nil)

// NewTrophyService creates a new TrophyService.
func NewTrophyService(
	repo trophydb.Repository,
	source scoresource.Source,
	publisher message.Publisher,
	logger *slog.Logger,
	m metrics.TrophyMetrics,
	tracer trace.Tracer,
	db *bun.DB,
	opts Options,
) *TrophyService {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.PollConcurrency < 1 {
		opts.PollConcurrency = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = 10
	}
	return &TrophyService{
		repo:      repo,
		source:    source,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		tracer:    tracer,
		db:        db,
		opts:      opts,
		now:       time.Now,
	}
}

// today returns the current calendar date in the schedule timezone.
func (s *TrophyService) today() trophydomain.Date {
	return trophydomain.DateOf(s.now(), s.opts.Location)
}

// isExpectedFailure reports errors caused by caller input or a missing
// record rather than by infrastructure.
func isExpectedFailure(err error) bool {
	return errors.Is(err, trophydomain.ErrInvalidTag) ||
		errors.Is(err, trophydomain.ErrPlayerNotFound) ||
		errors.Is(err, trophydomain.ErrTagOwnedByOther) ||
		errors.Is(err, trophydomain.ErrSnapshotNotFound) ||
		errors.Is(err, trophydomain.ErrBackupMissing) ||
		errors.Is(err, trophydomain.ErrSourceUnavailable) ||
		errors.Is(err, trophydomain.ErrMalformedPayload)
}

// withTelemetry wraps a service operation with tracing, metrics, and panic recovery.
func withTelemetry[T any](
	s *TrophyService,
	ctx context.Context,
	operationName string,
	identifier string,
	op func(ctx context.Context) (T, error),
) (result T, err error) {
	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operationName, trace.WithAttributes(
			attribute.String("operation", operationName),
			attribute.String("identifier", identifier),
		))
	} else {
		span = trace.SpanFromContext(ctx)
	}
	defer span.End()

	s.metrics.RecordOperationAttempt(ctx, operationName, serviceName)

	startTime := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration(ctx, operationName, serviceName, time.Since(startTime))
	}()

	s.logger.DebugContext(ctx, "Operation triggered",
		attr.ExtractCorrelationID(ctx),
		attr.String("operation", operationName),
		attr.String("identifier", identifier),
	)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", operationName, r)
			s.logger.ErrorContext(ctx, "Critical panic recovered",
				attr.ExtractCorrelationID(ctx),
				attr.String("identifier", identifier),
				attr.Error(err),
			)
			s.metrics.RecordOperationFailure(ctx, operationName, serviceName)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			var zero T
			result = zero
		}
	}()

	result, err = op(ctx)

	if err != nil {
		if isExpectedFailure(err) {
			s.logger.WarnContext(ctx, "Operation returned failure result",
				attr.ExtractCorrelationID(ctx),
				attr.String("operation", operationName),
				attr.String("identifier", identifier),
				attr.Error(err),
			)
			s.metrics.RecordOperationSuccess(ctx, operationName, serviceName)
			return result, err
		}

		wrappedErr := fmt.Errorf("%s: %w", operationName, err)
		s.logger.ErrorContext(ctx, "Operation failed with error",
			attr.ExtractCorrelationID(ctx),
			attr.String("operation", operationName),
			attr.String("identifier", identifier),
			attr.String("failure_kind", trophydomain.FailureKind(err)),
			attr.Error(wrappedErr),
		)
		s.metrics.RecordOperationFailure(ctx, operationName, serviceName)
		span.RecordError(wrappedErr)
		span.SetStatus(codes.Error, wrappedErr.Error())
		return result, wrappedErr
	}

	s.logger.DebugContext(ctx, "Operation completed successfully",
		attr.ExtractCorrelationID(ctx),
		attr.String("operation", operationName),
		attr.String("identifier", identifier),
	)
	s.metrics.RecordOperationSuccess(ctx, operationName, serviceName)
	return result, nil
}

// runInTx ensures the operation runs within a transaction.
func runInTx[T any](
	s *TrophyService,
	ctx context.Context,
	fn func(ctx context.Context, db bun.IDB) (T, error),
) (T, error) {
	if s.db == nil {
		return fn(ctx, nil)
	}

	var result T
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var txErr error
		result, txErr = fn(ctx, tx)
		return txErr
	})
	return result, err
}

// publish emits an event. Failures are logged and never fail the caller.
func (s *TrophyService) publish(ctx context.Context, topic string, payload any) {
	if s.publisher == nil {
		return
	}
	msg, err := trophyevents.NewMessage(topic, attr.CorrelationID(ctx), payload)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to build event", attr.String("topic", topic), attr.Error(err))
		return
	}
	if err := s.publisher.Publish(topic, msg); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event", attr.String("topic", topic), attr.Error(err))
	}
}

// storeErr maps repository errors into the domain taxonomy.
func storeErr(op string, err error) error {
	if errors.Is(err, trophydb.ErrNotFound) {
		return trophydomain.ErrPlayerNotFound
	}
	return trophydomain.NewStoreError(op, err)
}
