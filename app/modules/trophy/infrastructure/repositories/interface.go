package trophydb

import (
	"context"

	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
	"github.com/uptrace/bun"
)

// UpdateFunc mutates a player in place inside an atomic read-modify-write.
type UpdateFunc func(p *trophydomain.Player) error

// Repository defines the contract for player and backup persistence.
// Every method accepts an optional bun.IDB so callers can run it inside a
// transaction; nil uses the repository's own connection.
type Repository interface {
	// GetPlayer retrieves a player by tag.
	GetPlayer(ctx context.Context, db bun.IDB, tag trophydomain.Tag) (*trophydomain.Player, error)

	// ListPlayers returns every player ordered by current score, highest first.
	ListPlayers(ctx context.Context, db bun.IDB) ([]trophydomain.Player, error)

	// UpsertPlayer inserts or fully overwrites the player keyed by tag.
	UpsertPlayer(ctx context.Context, db bun.IDB, p trophydomain.Player) error

	// UpdatePlayer loads the row under lock, applies fn and writes it back.
	UpdatePlayer(ctx context.Context, db bun.IDB, tag trophydomain.Tag, fn UpdateFunc) (*trophydomain.Player, error)

	// DeleteOwnedPlayer removes the tag only if owner linked it.
	DeleteOwnedPlayer(ctx context.Context, db bun.IDB, owner trophydomain.OwnerID, tag trophydomain.Tag) (int64, error)

	// DeleteOwnerPlayers removes every tag linked by owner.
	DeleteOwnerPlayers(ctx context.Context, db bun.IDB, owner trophydomain.OwnerID) (int64, error)

	// DeletePlayer removes a tag regardless of owner.
	DeletePlayer(ctx context.Context, db bun.IDB, tag trophydomain.Tag) (int64, error)

	// ReplaceAllPlayers swaps the whole collection for players.
	ReplaceAllPlayers(ctx context.Context, db bun.IDB, players []trophydomain.Player) error

	// CreateSnapshot stores a backup and returns its id.
	CreateSnapshot(ctx context.Context, db bun.IDB, snap trophydomain.BackupSnapshot) (string, error)

	// GetSnapshot loads one backup with its players.
	GetSnapshot(ctx context.Context, db bun.IDB, id string) (*trophydomain.BackupSnapshot, error)

	// LatestSnapshot returns the most recent backup.
	LatestSnapshot(ctx context.Context, db bun.IDB) (*trophydomain.BackupSnapshot, error)

	// ListSnapshots returns the newest backups first, without players.
	ListSnapshots(ctx context.Context, db bun.IDB, limit int) ([]trophydomain.BackupSummary, error)
}
