package trophyqueue

import (
	"context"
	"fmt"
	"log/slog"

	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
	"github.com/Black-And-White-Club/trophy-bot/app/observability/attr"
	"github.com/riverqueue/river"
)

// ActionRunner executes an anchored action.
type ActionRunner interface {
	RunAnchoredAction(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error
}

// AnchoredActionWorker executes AnchoredActionJob.
type AnchoredActionWorker struct {
	river.WorkerDefaults[AnchoredActionJob]
	runner ActionRunner
	logger *slog.Logger
}

func NewAnchoredActionWorker(logger *slog.Logger, runner ActionRunner) *AnchoredActionWorker {
	return &AnchoredActionWorker{runner: runner, logger: logger}
}

func (w *AnchoredActionWorker) Work(ctx context.Context, job *river.Job[AnchoredActionJob]) error {
	logger := w.logger.With(
		attr.String("action", string(job.Args.Action)),
		attr.String("date", string(job.Args.Date)),
	)

	if !job.Args.Action.Valid() {
		logger.ErrorContext(ctx, "Discarding job with unknown action")
		return river.JobCancel(fmt.Errorf("unknown anchored action %q", job.Args.Action))
	}

	logger.InfoContext(ctx, "Processing anchored action job")
	if err := w.runner.RunAnchoredAction(ctx, job.Args.Action, job.Args.Date); err != nil {
		logger.ErrorContext(ctx, "Anchored action job failed",
			attr.String("failure_kind", trophydomain.FailureKind(err)),
			attr.Error(err),
		)
		return err
	}
	logger.InfoContext(ctx, "Anchored action job completed")
	return nil
}
