package trophyscheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	trophyservice "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/application"
	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
	"github.com/Black-And-White-Club/trophy-bot/app/observability/attr"
	"github.com/Black-And-White-Club/trophy-bot/app/observability/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	activityReconcile = "reconcile"
	activityAnchored  = "anchored"
)

// Reconciler runs one reconciliation sweep.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (*trophyservice.ReconcileReport, error)
}

// BackupLister exposes the most recent snapshots, used to seed the guard
// after a restart.
type BackupLister interface {
	ListBackups(ctx context.Context, limit int) ([]trophydomain.BackupSummary, error)
}

// FireLedger persists the last local date each anchored action fired, so a
// restart inside a trigger window does not run the action again.
type FireLedger interface {
	LoadFired(ctx context.Context) (map[trophydomain.AnchoredAction]trophydomain.Date, error)
	RecordFired(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error
}

// Config holds the scheduler timing.
type Config struct {
	Location     *time.Location
	TickInterval time.Duration
	// CatchUpWindow is raised to TickInterval when shorter, so every
	// trigger window contains at least one tick.
	CatchUpWindow time.Duration
	// Triggers are evaluated in order on every anchored tick.
	Triggers []trophydomain.Trigger
}

// Triggers parses the backup, reset and refresh times (HH:MM) in firing order.
func Triggers(backupAt, resetAt, refreshAt string) ([]trophydomain.Trigger, error) {
	wanted := []struct {
		action trophydomain.AnchoredAction
		at     string
	}{
		{trophydomain.ActionBackup, backupAt},
		{trophydomain.ActionReset, resetAt},
		{trophydomain.ActionRefresh, refreshAt},
	}

	out := make([]trophydomain.Trigger, 0, len(wanted))
	for _, sp := range wanted {
		at, err := trophydomain.ParseTimeOfDay(sp.at)
		if err != nil {
			return nil, fmt.Errorf("%s trigger: %w", sp.action, err)
		}
		out = append(out, trophydomain.Trigger{Action: sp.action, At: at})
	}
	return out, nil
}

// Scheduler drives the two recurring activities: continuous reconciliation
// and the timezone-anchored actions.
type Scheduler struct {
	cfg        Config
	reconciler Reconciler
	dispatcher Dispatcher
	backups    BackupLister
	ledger     FireLedger
	guard      *trophydomain.FireGuard
	clock      Clock
	logger     *slog.Logger
	metrics    metrics.TrophyMetrics

	reconcileMu sync.Mutex
	anchoredMu  sync.Mutex
}

// New builds a Scheduler. backups and ledger may be nil.
func New(cfg Config, reconciler Reconciler, dispatcher Dispatcher, backups BackupLister, ledger FireLedger, clock Clock, logger *slog.Logger, m metrics.TrophyMetrics) (*Scheduler, error) {
	if cfg.Location == nil {
		return nil, errors.New("scheduler location is required")
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("invalid tick interval %s", cfg.TickInterval)
	}
	for _, trig := range cfg.Triggers {
		if !trig.Action.Valid() {
			return nil, fmt.Errorf("unknown anchored action %q", trig.Action)
		}
	}
	if cfg.CatchUpWindow < cfg.TickInterval {
		cfg.CatchUpWindow = cfg.TickInterval
	}
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNoop()
	}

	return &Scheduler{
		cfg:        cfg,
		reconciler: reconciler,
		dispatcher: dispatcher,
		backups:    backups,
		ledger:     ledger,
		guard:      trophydomain.NewFireGuard(cfg.Location, cfg.CatchUpWindow),
		clock:      clock,
		logger:     logger.With(attr.String("component", "trophy_scheduler")),
		metrics:    m,
	}, nil
}

// Guard exposes the fire guard.
func (s *Scheduler) Guard() *trophydomain.FireGuard {
	return s.guard
}

// Restore seeds the fire guard from the ledger and from the latest
// snapshot's date, so a restart inside a trigger window does not fire the
// same occurrence twice.
func (s *Scheduler) Restore(ctx context.Context) error {
	var errs []error

	if s.ledger != nil {
		fired, err := s.ledger.LoadFired(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to load fired actions: %w", err))
		}
		for action, date := range fired {
			s.guard.Restore(action, date)
			s.logger.InfoContext(ctx, "Restored fire guard",
				attr.String("action", string(action)),
				attr.String("last_fired", string(date)),
			)
		}
	}

	if s.backups != nil {
		latest, err := s.backups.ListBackups(ctx, 1)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to load latest backup: %w", err))
		} else if len(latest) > 0 {
			s.guard.Restore(trophydomain.ActionBackup, latest[0].TakenOn)
			s.logger.InfoContext(ctx, "Restored backup fire guard", attr.String("last_fired", string(latest[0].TakenOn)))
		}
	}

	return errors.Join(errs...)
}

// Run drives both activities until ctx is done. Each activity runs on its
// own goroutine and its ticks never overlap.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Restore(ctx); err != nil {
		s.logger.WarnContext(ctx, "Starting without restored fire guard", attr.Error(err))
	}

	s.logger.InfoContext(ctx, "Scheduler started",
		attr.Duration("tick_interval", s.cfg.TickInterval),
		attr.String("timezone", s.cfg.Location.String()),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.loop(ctx, activityAnchored, func(ctx context.Context) { s.AnchoredTick(ctx) })
		return nil
	})
	g.Go(func() error {
		s.loop(ctx, activityReconcile, func(ctx context.Context) { s.ReconcileTick(ctx) })
		return nil
	})
	err := g.Wait()

	s.logger.Info("Scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, activity string, tick func(context.Context)) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// ReconcileTick runs one reconciliation sweep. It returns nil without
// sweeping when a previous sweep is still in progress.
func (s *Scheduler) ReconcileTick(ctx context.Context) *trophyservice.ReconcileReport {
	if !s.reconcileMu.TryLock() {
		s.logger.WarnContext(ctx, "Previous reconciliation still running, skipping tick")
		return nil
	}
	defer s.reconcileMu.Unlock()

	start := time.Now()
	defer func() { s.metrics.RecordTick(ctx, activityReconcile, time.Since(start)) }()

	report, err := s.reconciler.ReconcileAll(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Reconciliation tick failed",
			attr.String("failure_kind", trophydomain.FailureKind(err)),
			attr.Error(err),
		)
		return nil
	}
	return report
}

// ActionOutcome records what an anchored tick did with one due action.
type ActionOutcome struct {
	Action trophydomain.AnchoredAction
	Date   trophydomain.Date
	Err    error
}

// AnchoredTick evaluates every trigger against the current wall-clock time
// and dispatches those that are due. Each occurrence is claimed before it is
// dispatched, so a failed action is reported and not retried the same day.
// Failures are isolated per action.
func (s *Scheduler) AnchoredTick(ctx context.Context) []ActionOutcome {
	if !s.anchoredMu.TryLock() {
		s.logger.WarnContext(ctx, "Previous anchored tick still running, skipping tick")
		return nil
	}
	defer s.anchoredMu.Unlock()

	start := time.Now()
	defer func() { s.metrics.RecordTick(ctx, activityAnchored, time.Since(start)) }()

	now := s.clock.Now()

	var outcomes []ActionOutcome
	for _, trig := range s.cfg.Triggers {
		date, due := s.guard.Claim(trig, now)
		if !due {
			continue
		}

		logger := s.logger.With(
			attr.String("action", string(trig.Action)),
			attr.String("date", string(date)),
			attr.String("trigger_at", trig.At.String()),
		)
		logger.InfoContext(ctx, "Anchored action due")

		if s.ledger != nil {
			if err := s.ledger.RecordFired(ctx, trig.Action, date); err != nil {
				logger.WarnContext(ctx, "Failed to persist fire guard", attr.Error(err))
			}
		}

		err := s.dispatcher.Dispatch(ctx, trig.Action, date)
		switch {
		case err == nil:
			s.metrics.RecordAnchoredAction(ctx, string(trig.Action), "success")
			logger.InfoContext(ctx, "Anchored action completed")
		case errors.Is(err, trophydomain.ErrSchedulerReentrancy):
			s.metrics.RecordAnchoredAction(ctx, string(trig.Action), "duplicate")
			logger.InfoContext(ctx, "Anchored action already fired for this occurrence")
		default:
			kind := trophydomain.FailureKind(err)
			s.metrics.RecordAnchoredAction(ctx, string(trig.Action), kind)
			logger.ErrorContext(ctx, "Anchored action failed", attr.String("failure_kind", kind), attr.Error(err))
		}
		outcomes = append(outcomes, ActionOutcome{Action: trig.Action, Date: date, Err: err})
	}
	return outcomes
}
