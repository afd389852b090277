package trophyservice

import (
	"context"
	"errors"
	"fmt"

	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
	trophyevents "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/events"
	trophydb "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/repositories"
	"github.com/Black-And-White-Club/trophy-bot/app/observability/attr"
	"github.com/uptrace/bun"
)

// RunAnchoredAction executes one scheduled action for date.
func (s *TrophyService) RunAnchoredAction(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error {
	s.logger.InfoContext(ctx, "Running anchored action", attr.String("action", string(action)), attr.String("date", string(date)))

	var err error
	switch action {
	case trophydomain.ActionBackup:
		_, err = s.createBackup(ctx, date)
	case trophydomain.ActionReset:
		_, err = s.resetAll(ctx, date, false)
	case trophydomain.ActionRefresh:
		_, err = s.refreshAll(ctx, date)
	default:
		err = fmt.Errorf("unknown anchored action %q", action)
	}
	return err
}

// CreateBackup snapshots the roster now.
func (s *TrophyService) CreateBackup(ctx context.Context) (*trophydomain.BackupSnapshot, error) {
	return s.createBackup(ctx, s.today())
}

func (s *TrophyService) createBackup(ctx context.Context, on trophydomain.Date) (*trophydomain.BackupSnapshot, error) {
	return withTelemetry(s, ctx, "CreateBackup", string(on), func(ctx context.Context) (*trophydomain.BackupSnapshot, error) {
		snap, err := runInTx(s, ctx, func(ctx context.Context, db bun.IDB) (*trophydomain.BackupSnapshot, error) {
			players, err := s.repo.ListPlayers(ctx, db)
			if err != nil {
				return nil, storeErr("ListPlayers", err)
			}
			snap := trophydomain.BackupSnapshot{
				TakenAt: s.now().UTC(),
				TakenOn: on,
				Players: players,
			}
			id, err := s.repo.CreateSnapshot(ctx, db, snap)
			if err != nil {
				return nil, trophydomain.NewStoreError("CreateSnapshot", err)
			}
			snap.ID = id
			return &snap, nil
		})
		if err != nil {
			return nil, err
		}

		s.publish(ctx, trophyevents.BackupCreatedV1, trophyevents.BackupCreatedPayloadV1{
			BackupID:    snap.ID,
			TakenAt:     snap.TakenAt,
			TakenOn:     string(snap.TakenOn),
			PlayerCount: len(snap.Players),
		})
		return snap, nil
	})
}

// ForceReset zeroes every counter for today. With withBackup a snapshot is
// taken first and a failed snapshot aborts the reset.
func (s *TrophyService) ForceReset(ctx context.Context, withBackup bool) (*ResetResult, error) {
	today := s.today()

	var backupID string
	if withBackup {
		snap, err := s.createBackup(ctx, today)
		if err != nil {
			return nil, err
		}
		backupID = snap.ID
	}

	result, err := s.resetAll(ctx, today, true)
	if err != nil {
		return nil, err
	}
	result.BackupID = backupID
	return result, nil
}

// resetAll zeroes counters for every player in one transaction, row by row
// through the same locked update path reconciliation uses.
func (s *TrophyService) resetAll(ctx context.Context, date trophydomain.Date, manual bool) (*ResetResult, error) {
	return withTelemetry(s, ctx, "ResetAll", string(date), func(ctx context.Context) (*ResetResult, error) {
		if s.opts.RequireBackupBeforeReset && !manual {
			if err := s.requireBackupOn(ctx, date); err != nil {
				return nil, err
			}
		}

		result, err := runInTx(s, ctx, func(ctx context.Context, db bun.IDB) (*ResetResult, error) {
			players, err := s.repo.ListPlayers(ctx, db)
			if err != nil {
				return nil, storeErr("ListPlayers", err)
			}

			res := &ResetResult{Date: date}
			for _, p := range players {
				_, err := s.repo.UpdatePlayer(ctx, db, p.Tag, func(cur *trophydomain.Player) error {
					*cur = trophydomain.Reset(*cur, date)
					return nil
				})
				if errors.Is(err, trophydb.ErrNotFound) {
					continue
				}
				if err != nil {
					return nil, trophydomain.NewStoreError("UpdatePlayer", err)
				}
				res.Reset++
			}
			return res, nil
		})
		if err != nil {
			return nil, err
		}

		s.publish(ctx, trophyevents.ResetCompletedV1, trophyevents.ResetCompletedPayloadV1{
			Date:   string(date),
			Reset:  result.Reset,
			Manual: manual,
		})
		return result, nil
	})
}

func (s *TrophyService) requireBackupOn(ctx context.Context, date trophydomain.Date) error {
	latest, err := s.repo.LatestSnapshot(ctx, nil)
	if errors.Is(err, trophydb.ErrNotFound) {
		return fmt.Errorf("%w: no snapshots exist", trophydomain.ErrBackupMissing)
	}
	if err != nil {
		return trophydomain.NewStoreError("LatestSnapshot", err)
	}
	if latest.TakenOn != date {
		return fmt.Errorf("%w: latest snapshot is from %s", trophydomain.ErrBackupMissing, latest.TakenOn)
	}
	return nil
}

// ListBackups returns the newest snapshots first.
func (s *TrophyService) ListBackups(ctx context.Context, limit int) ([]trophydomain.BackupSummary, error) {
	return withTelemetry(s, ctx, "ListBackups", "all", func(ctx context.Context) ([]trophydomain.BackupSummary, error) {
		out, err := s.repo.ListSnapshots(ctx, nil, limit)
		if err != nil {
			return nil, trophydomain.NewStoreError("ListSnapshots", err)
		}
		return out, nil
	})
}

func (s *TrophyService) GetBackup(ctx context.Context, id string) (*trophydomain.BackupSnapshot, error) {
	return withTelemetry(s, ctx, "GetBackup", id, func(ctx context.Context) (*trophydomain.BackupSnapshot, error) {
		return s.getSnapshot(ctx, nil, id)
	})
}

// RestoreBackup swaps the roster for the snapshot's players in one transaction.
func (s *TrophyService) RestoreBackup(ctx context.Context, id string) (int, error) {
	return withTelemetry(s, ctx, "RestoreBackup", id, func(ctx context.Context) (int, error) {
		n, err := runInTx(s, ctx, func(ctx context.Context, db bun.IDB) (int, error) {
			snap, err := s.getSnapshot(ctx, db, id)
			if err != nil {
				return 0, err
			}
			if err := s.repo.ReplaceAllPlayers(ctx, db, snap.Players); err != nil {
				return 0, trophydomain.NewStoreError("ReplaceAllPlayers", err)
			}
			return len(snap.Players), nil
		})
		if err != nil {
			return 0, err
		}

		s.publish(ctx, trophyevents.BackupRestoredV1, trophyevents.BackupRestoredPayloadV1{BackupID: id, Players: n})
		return n, nil
	})
}

func (s *TrophyService) getSnapshot(ctx context.Context, db bun.IDB, id string) (*trophydomain.BackupSnapshot, error) {
	snap, err := s.repo.GetSnapshot(ctx, db, id)
	if errors.Is(err, trophydb.ErrNotFound) {
		return nil, trophydomain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, trophydomain.NewStoreError("GetSnapshot", err)
	}
	return snap, nil
}
