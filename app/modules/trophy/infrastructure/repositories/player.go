package trophydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

var (
	// ErrNotFound is returned when a player or snapshot does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoRowsAffected is returned when a write matched nothing.
	ErrNoRowsAffected = errors.New("no rows affected")
)

// Impl implements the Repository interface using Bun ORM.
type Impl struct {
	db  bun.IDB
	now func() time.Time
}

// NewRepository creates a new trophy repository.
func NewRepository(db bun.IDB) Repository {
	return &Impl{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// resolveDB returns the provided db handle, falling back to the repository's
// default connection if db is nil.
func (r *Impl) resolveDB(db bun.IDB) bun.IDB {
	if db == nil {
		return r.db
	}
	return db
}

// GetPlayer retrieves a player by tag.
func (r *Impl) GetPlayer(ctx context.Context, db bun.IDB, tag trophydomain.Tag) (*trophydomain.Player, error) {
	db = r.resolveDB(db)
	row := new(Player)
	err := db.NewSelect().
		Model(row).
		Where("tag = ?", string(tag)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get player %s: %w", tag, err)
	}
	p := row.toDomain()
	return &p, nil
}

// ListPlayers returns all players, highest score first. Ties break on tag so
// pages are stable.
func (r *Impl) ListPlayers(ctx context.Context, db bun.IDB) ([]trophydomain.Player, error) {
	db = r.resolveDB(db)
	var rows []Player
	err := db.NewSelect().
		Model(&rows).
		OrderExpr("current_score DESC, tag ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	players := make([]trophydomain.Player, len(rows))
	for i := range rows {
		players[i] = rows[i].toDomain()
	}
	return players, nil
}

// UpsertPlayer inserts or overwrites the player keyed by tag.
func (r *Impl) UpsertPlayer(ctx context.Context, db bun.IDB, p trophydomain.Player) error {
	db = r.resolveDB(db)
	row := playerFromDomain(p)
	row.CreatedAt = r.now()
	row.UpdatedAt = row.CreatedAt

	_, err := db.NewInsert().
		Model(row).
		On("CONFLICT (tag) DO UPDATE").
		Set("owner_id = EXCLUDED.owner_id").
		Set("display_name = EXCLUDED.display_name").
		Set("current_score = EXCLUDED.current_score").
		Set("rank = EXCLUDED.rank").
		Set("previous_score = EXCLUDED.previous_score").
		Set("previous_rank = EXCLUDED.previous_rank").
		Set("offense_gain_total = EXCLUDED.offense_gain_total").
		Set("offense_event_count = EXCLUDED.offense_event_count").
		Set("defense_loss_total = EXCLUDED.defense_loss_total").
		Set("defense_event_count = EXCLUDED.defense_event_count").
		Set("attack_log_length = EXCLUDED.attack_log_length").
		Set("defense_log_length = EXCLUDED.defense_log_length").
		Set("last_reset_date = EXCLUDED.last_reset_date").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert player %s: %w", p.Tag, err)
	}
	return nil
}

// UpdatePlayer runs fn against the current row inside a transaction. On
// Postgres the row is locked with SELECT ... FOR UPDATE so a reconciliation
// write and a reset sweep on the same tag serialize. The tag cannot change.
func (r *Impl) UpdatePlayer(ctx context.Context, db bun.IDB, tag trophydomain.Tag, fn UpdateFunc) (*trophydomain.Player, error) {
	db = r.resolveDB(db)

	var updated *trophydomain.Player
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(Player)
		q := tx.NewSelect().Model(row).Where("tag = ?", string(tag))
		if tx.Dialect().Name() == dialect.PG {
			q = q.For("UPDATE")
		}
		if err := q.Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load player %s: %w", tag, err)
		}

		p := row.toDomain()
		if err := fn(&p); err != nil {
			return err
		}
		p.Tag = tag

		next := playerFromDomain(p)
		next.CreatedAt = row.CreatedAt
		next.UpdatedAt = r.now()

		res, err := tx.NewUpdate().
			Model(next).
			ExcludeColumn("created_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update player %s: %w", tag, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNoRowsAffected
		}

		p.UpdatedAt = next.UpdatedAt
		updated = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteOwnedPlayer removes tag if owner linked it.
func (r *Impl) DeleteOwnedPlayer(ctx context.Context, db bun.IDB, owner trophydomain.OwnerID, tag trophydomain.Tag) (int64, error) {
	db = r.resolveDB(db)
	res, err := db.NewDelete().
		Model((*Player)(nil)).
		Where("owner_id = ?", string(owner)).
		Where("tag = ?", string(tag)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete player %s for owner %s: %w", tag, owner, err)
	}
	return res.RowsAffected()
}

// DeleteOwnerPlayers removes every tag owner linked.
func (r *Impl) DeleteOwnerPlayers(ctx context.Context, db bun.IDB, owner trophydomain.OwnerID) (int64, error) {
	db = r.resolveDB(db)
	res, err := db.NewDelete().
		Model((*Player)(nil)).
		Where("owner_id = ?", string(owner)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete players for owner %s: %w", owner, err)
	}
	return res.RowsAffected()
}

// DeletePlayer removes tag regardless of owner.
func (r *Impl) DeletePlayer(ctx context.Context, db bun.IDB, tag trophydomain.Tag) (int64, error) {
	db = r.resolveDB(db)
	res, err := db.NewDelete().
		Model((*Player)(nil)).
		Where("tag = ?", string(tag)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete player %s: %w", tag, err)
	}
	return res.RowsAffected()
}

// ReplaceAllPlayers deletes every row and inserts players. Callers should pass
// a transaction so readers never observe the empty table.
func (r *Impl) ReplaceAllPlayers(ctx context.Context, db bun.IDB, players []trophydomain.Player) error {
	db = r.resolveDB(db)

	if _, err := db.NewDelete().Model((*Player)(nil)).Where("1 = 1").Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear players: %w", err)
	}
	if len(players) == 0 {
		return nil
	}

	now := r.now()
	rows := make([]*Player, len(players))
	for i, p := range players {
		rows[i] = playerFromDomain(p)
		rows[i].CreatedAt = now
		rows[i].UpdatedAt = now
	}
	if _, err := db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert %d players: %w", len(rows), err)
	}
	return nil
}
