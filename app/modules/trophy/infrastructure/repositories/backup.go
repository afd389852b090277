package trophydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CreateSnapshot stores snap as a new backup row. A missing ID is generated.
func (r *Impl) CreateSnapshot(ctx context.Context, db bun.IDB, snap trophydomain.BackupSnapshot) (string, error) {
	db = r.resolveDB(db)

	id := uuid.New()
	if snap.ID != "" {
		parsed, err := uuid.Parse(snap.ID)
		if err != nil {
			return "", fmt.Errorf("invalid snapshot id %q: %w", snap.ID, err)
		}
		id = parsed
	}
	takenAt := snap.TakenAt
	if takenAt.IsZero() {
		takenAt = r.now()
	}

	row := &Backup{
		ID:          id,
		TakenAt:     takenAt.UTC(),
		TakenOn:     string(snap.TakenOn),
		PlayerCount: len(snap.Players),
		Players:     make([]BackupPlayer, len(snap.Players)),
	}
	for i, p := range snap.Players {
		row.Players[i] = backupPlayerFromDomain(p)
	}

	if _, err := db.NewInsert().Model(row).Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to create snapshot: %w", err)
	}
	return id.String(), nil
}

// GetSnapshot loads a backup by id.
func (r *Impl) GetSnapshot(ctx context.Context, db bun.IDB, id string) (*trophydomain.BackupSnapshot, error) {
	db = r.resolveDB(db)

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}

	row := new(Backup)
	err = db.NewSelect().
		Model(row).
		Where("id = ?", parsed).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot %s: %w", id, err)
	}
	return row.toDomain(), nil
}

// LatestSnapshot returns the newest backup.
func (r *Impl) LatestSnapshot(ctx context.Context, db bun.IDB) (*trophydomain.BackupSnapshot, error) {
	db = r.resolveDB(db)

	row := new(Backup)
	err := db.NewSelect().
		Model(row).
		Order("taken_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return row.toDomain(), nil
}

// ListSnapshots returns up to limit backups, newest first.
func (r *Impl) ListSnapshots(ctx context.Context, db bun.IDB, limit int) ([]trophydomain.BackupSummary, error) {
	db = r.resolveDB(db)

	var rows []Backup
	q := db.NewSelect().
		Model(&rows).
		Column("id", "taken_at", "taken_on", "player_count").
		Order("taken_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	out := make([]trophydomain.BackupSummary, len(rows))
	for i, b := range rows {
		out[i] = trophydomain.BackupSummary{
			ID:          b.ID.String(),
			TakenAt:     b.TakenAt,
			TakenOn:     trophydomain.Date(b.TakenOn),
			PlayerCount: b.PlayerCount,
		}
	}
	return out, nil
}
