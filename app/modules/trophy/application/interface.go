package trophyservice

import (
	"context"
	"time"

	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
)

// Service is the trophy module's application API.
type Service interface {
	// LinkPlayer polls rawTag once and starts tracking it for owner.
	LinkPlayer(ctx context.Context, owner trophydomain.OwnerID, rawTag string) (*LinkResult, error)
	// UnlinkPlayer removes one of owner's tags, or all of them when rawTag is empty.
	UnlinkPlayer(ctx context.Context, owner trophydomain.OwnerID, rawTag string) (int64, error)
	// RemovePlayer removes a tag regardless of owner.
	RemovePlayer(ctx context.Context, rawTag string) error

	// ListPlayers returns every tracked player, highest score first.
	ListPlayers(ctx context.Context) ([]trophydomain.Player, error)
	// GetLeaderboard projects ListPlayers into one filtered page.
	GetLeaderboard(ctx context.Context, q LeaderboardQuery) (*LeaderboardPage, error)

	// ReconcileAll polls every player once and folds in score changes.
	ReconcileAll(ctx context.Context) (*ReconcileReport, error)
	// CreateBackup snapshots the whole roster.
	CreateBackup(ctx context.Context) (*trophydomain.BackupSnapshot, error)
	// ForceReset zeroes every player's counters now, optionally after a backup.
	ForceReset(ctx context.Context, withBackup bool) (*ResetResult, error)
	// RunAnchoredAction executes a scheduled action for date.
	RunAnchoredAction(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error

	ListBackups(ctx context.Context, limit int) ([]trophydomain.BackupSummary, error)
	GetBackup(ctx context.Context, id string) (*trophydomain.BackupSnapshot, error)
	// RestoreBackup replaces the roster with a snapshot's players.
	RestoreBackup(ctx context.Context, id string) (int, error)
}

// LinkResult is the outcome of LinkPlayer.
type LinkResult struct {
	Player   trophydomain.Player
	Relinked bool
}

// ResetResult is the outcome of a reset sweep.
type ResetResult struct {
	Date     trophydomain.Date
	Reset    int
	BackupID string
}

// EntityFailure records one player skipped during a sweep.
type EntityFailure struct {
	Tag  trophydomain.Tag
	Kind string
	Err  error
}

// ReconcileReport summarizes one sweep over the roster.
type ReconcileReport struct {
	Trigger     string
	Polled      int
	Updated     int
	Skipped     int
	Failures    []EntityFailure
	Adjustments map[trophydomain.AdjustmentKind]int
	Duration    time.Duration
}

// Failed returns the number of players that could not be updated.
func (r *ReconcileReport) Failed() int {
	return len(r.Failures)
}

// LeaderboardQuery filters and pages the leaderboard. Page is 1-based.
type LeaderboardQuery struct {
	MinScore     int
	NameContains string
	Page         int
	PageSize     int
}

// LeaderboardEntry is one ranked row. Position is 1-based within the
// filtered leaderboard.
type LeaderboardEntry struct {
	Position int
	Player   trophydomain.Player
}

// LeaderboardPage is one page of the projected leaderboard.
type LeaderboardPage struct {
	Entries      []LeaderboardEntry
	Page         int
	PageSize     int
	TotalPages   int
	TotalPlayers int
	GeneratedAt  time.Time
}
