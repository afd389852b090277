package trophyservice

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
	trophyevents "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/events"
	trophydb "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/repositories"
	"github.com/Black-And-White-Club/trophy-bot/app/observability/attr"
	"golang.org/x/sync/errgroup"
)

// applyFunc folds an observation into the latest stored player.
type applyFunc func(p trophydomain.Player, obs trophydomain.Observation) (trophydomain.Player, trophydomain.Adjustment)

const (
	triggerTick    = "tick"
	triggerRefresh = "post_reset_refresh"
)

// errSweepCanceled marks players left unpolled because the sweep's context
// ended. They count as skipped, not failed.
var errSweepCanceled = errors.New("sweep canceled")

// ReconcileAll polls every player once and applies the classified delta.
// Per-player failures are reported, never returned.
func (s *TrophyService) ReconcileAll(ctx context.Context) (*ReconcileReport, error) {
	return withTelemetry(s, ctx, "ReconcileAll", triggerTick, func(ctx context.Context) (*ReconcileReport, error) {
		return s.sweep(ctx, triggerTick, trophydomain.Apply)
	})
}

// refreshAll re-polls every player and rebases it onto the fresh score,
// zeroing counters stamped with date.
func (s *TrophyService) refreshAll(ctx context.Context, date trophydomain.Date) (*ReconcileReport, error) {
	return withTelemetry(s, ctx, "RefreshAll", string(date), func(ctx context.Context) (*ReconcileReport, error) {
		report, err := s.sweep(ctx, triggerRefresh, func(p trophydomain.Player, obs trophydomain.Observation) (trophydomain.Player, trophydomain.Adjustment) {
			return trophydomain.ResetWithRebase(p, obs, date), trophydomain.Adjustment{Kind: trophydomain.NoChange}
		})
		if err != nil {
			return nil, err
		}
		s.publish(ctx, trophyevents.RefreshCompletedV1, trophyevents.ReconciliationCompletedPayloadV1{
			Trigger:    report.Trigger,
			Polled:     report.Polled,
			Updated:    report.Updated,
			Failed:     report.Failed(),
			Duration:   report.Duration,
			FinishedAt: s.now().UTC(),
		})
		return report, nil
	})
}

func (s *TrophyService) sweep(ctx context.Context, trigger string, apply applyFunc) (*ReconcileReport, error) {
	start := time.Now()

	players, err := s.repo.ListPlayers(ctx, nil)
	if err != nil {
		return nil, storeErr("ListPlayers", err)
	}
	s.metrics.SetTrackedPlayers(ctx, len(players))

	report := &ReconcileReport{
		Trigger:     trigger,
		Polled:      len(players),
		Adjustments: make(map[trophydomain.AdjustmentKind]int),
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.opts.PollConcurrency)

	for _, p := range players {
		g.Go(func() error {
			adj, err := s.reconcileOne(ctx, p.Tag, apply)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, trophydomain.ErrPlayerNotFound), errors.Is(err, errSweepCanceled):
				report.Skipped++
			case err != nil:
				report.Failures = append(report.Failures, EntityFailure{
					Tag:  p.Tag,
					Kind: trophydomain.FailureKind(err),
					Err:  err,
				})
			default:
				report.Updated++
				report.Adjustments[adj.Kind]++
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].Tag < report.Failures[j].Tag })
	report.Duration = time.Since(start)

	if trigger == triggerTick {
		s.publish(ctx, trophyevents.ReconciliationCompletedV1, trophyevents.ReconciliationCompletedPayloadV1{
			Trigger:    trigger,
			Polled:     report.Polled,
			Updated:    report.Updated,
			Failed:     report.Failed(),
			Duration:   report.Duration,
			FinishedAt: s.now().UTC(),
		})
	}

	s.logger.InfoContext(ctx, "Reconciliation sweep finished",
		attr.String("trigger", trigger),
		attr.Int("polled", report.Polled),
		attr.Int("updated", report.Updated),
		attr.Int("skipped", report.Skipped),
		attr.Int("failed", report.Failed()),
		attr.Duration("duration", report.Duration),
	)
	return report, nil
}

// reconcileOne polls tag outside any lock, then applies the observation to
// the latest stored row atomically. A failed poll leaves the row untouched.
func (s *TrophyService) reconcileOne(ctx context.Context, tag trophydomain.Tag, apply applyFunc) (trophydomain.Adjustment, error) {
	if ctx.Err() != nil {
		return trophydomain.Adjustment{}, errSweepCanceled
	}

	obs, err := s.source.GetScore(ctx, tag)
	if err != nil {
		if ctx.Err() != nil {
			return trophydomain.Adjustment{}, errSweepCanceled
		}
		s.recordPollFailure(ctx, tag, err)
		return trophydomain.Adjustment{}, err
	}

	var adj trophydomain.Adjustment
	_, err = s.repo.UpdatePlayer(ctx, nil, tag, func(p *trophydomain.Player) error {
		*p, adj = apply(*p, obs)
		return nil
	})
	if errors.Is(err, trophydb.ErrNotFound) {
		// Unlinked while the poll was in flight.
		s.logger.DebugContext(ctx, "Player removed during sweep", attr.Tag(tag))
		return trophydomain.Adjustment{}, trophydomain.ErrPlayerNotFound
	}
	if err != nil {
		err = trophydomain.NewStoreError("UpdatePlayer", err)
		s.recordPollFailure(ctx, tag, err)
		return trophydomain.Adjustment{}, err
	}

	s.metrics.RecordPoll(ctx, "success")
	s.metrics.RecordAdjustment(ctx, adj.Kind.String(), adj.Amount)
	if adj.Kind != trophydomain.NoChange {
		s.logger.DebugContext(ctx, "Score change applied",
			attr.Tag(tag),
			attr.String("adjustment", adj.String()),
		)
	}
	return adj, nil
}

func (s *TrophyService) recordPollFailure(ctx context.Context, tag trophydomain.Tag, err error) {
	kind := trophydomain.FailureKind(err)
	s.metrics.RecordPoll(ctx, kind)

	payload := trophyevents.PollFailedPayloadV1{
		Tag:         string(tag),
		FailureKind: kind,
		Error:       err.Error(),
	}
	var srcErr *trophydomain.SourceError
	if errors.As(err, &srcErr) {
		payload.StatusCode = srcErr.StatusCode
	}

	if errors.Is(err, trophydomain.ErrStoreFailure) {
		s.logger.ErrorContext(ctx, "Failed to persist reconciled player", attr.Tag(tag), attr.String("failure_kind", kind), attr.Error(err))
	} else {
		s.logger.WarnContext(ctx, "Skipping player this tick", attr.Tag(tag), attr.String("failure_kind", kind), attr.Error(err))
	}
	s.publish(ctx, trophyevents.PollFailedV1, payload)
}
