package trophyhandlers

import (
	"context"
	"errors"

	trophyservice "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/application"
	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
)

var errNotStubbed = errors.New("not stubbed")

// FakeService is a programmable trophyservice.Service.
type FakeService struct {
	trace []string

	LinkPlayerFunc        func(ctx context.Context, owner trophydomain.OwnerID, rawTag string) (*trophyservice.LinkResult, error)
	UnlinkPlayerFunc      func(ctx context.Context, owner trophydomain.OwnerID, rawTag string) (int64, error)
	RemovePlayerFunc      func(ctx context.Context, rawTag string) error
	ListPlayersFunc       func(ctx context.Context) ([]trophydomain.Player, error)
	GetLeaderboardFunc    func(ctx context.Context, q trophyservice.LeaderboardQuery) (*trophyservice.LeaderboardPage, error)
	ReconcileAllFunc      func(ctx context.Context) (*trophyservice.ReconcileReport, error)
	CreateBackupFunc      func(ctx context.Context) (*trophydomain.BackupSnapshot, error)
	ForceResetFunc        func(ctx context.Context, withBackup bool) (*trophyservice.ResetResult, error)
	RunAnchoredActionFunc func(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error
	ListBackupsFunc       func(ctx context.Context, limit int) ([]trophydomain.BackupSummary, error)
	GetBackupFunc         func(ctx context.Context, id string) (*trophydomain.BackupSnapshot, error)
	RestoreBackupFunc     func(ctx context.Context, id string) (int, error)
}

var _ trophyservice.Service = (*FakeService)(nil)

func (f *FakeService) record(step string) {
	f.trace = append(f.trace, step)
}

func (f *FakeService) Trace() []string {
	return f.trace
}

func (f *FakeService) LinkPlayer(ctx context.Context, owner trophydomain.OwnerID, rawTag string) (*trophyservice.LinkResult, error) {
	f.record("LinkPlayer")
	if f.LinkPlayerFunc != nil {
		return f.LinkPlayerFunc(ctx, owner, rawTag)
	}
	return nil, errNotStubbed
}

func (f *FakeService) UnlinkPlayer(ctx context.Context, owner trophydomain.OwnerID, rawTag string) (int64, error) {
	f.record("UnlinkPlayer")
	if f.UnlinkPlayerFunc != nil {
		return f.UnlinkPlayerFunc(ctx, owner, rawTag)
	}
	return 0, errNotStubbed
}

func (f *FakeService) RemovePlayer(ctx context.Context, rawTag string) error {
	f.record("RemovePlayer")
	if f.RemovePlayerFunc != nil {
		return f.RemovePlayerFunc(ctx, rawTag)
	}
	return errNotStubbed
}

func (f *FakeService) ListPlayers(ctx context.Context) ([]trophydomain.Player, error) {
	f.record("ListPlayers")
	if f.ListPlayersFunc != nil {
		return f.ListPlayersFunc(ctx)
	}
	return nil, errNotStubbed
}

func (f *FakeService) GetLeaderboard(ctx context.Context, q trophyservice.LeaderboardQuery) (*trophyservice.LeaderboardPage, error) {
	f.record("GetLeaderboard")
	if f.GetLeaderboardFunc != nil {
		return f.GetLeaderboardFunc(ctx, q)
	}
	return nil, errNotStubbed
}

func (f *FakeService) ReconcileAll(ctx context.Context) (*trophyservice.ReconcileReport, error) {
	f.record("ReconcileAll")
	if f.ReconcileAllFunc != nil {
		return f.ReconcileAllFunc(ctx)
	}
	return nil, errNotStubbed
}

func (f *FakeService) CreateBackup(ctx context.Context) (*trophydomain.BackupSnapshot, error) {
	f.record("CreateBackup")
	if f.CreateBackupFunc != nil {
		return f.CreateBackupFunc(ctx)
	}
	return nil, errNotStubbed
}

func (f *FakeService) ForceReset(ctx context.Context, withBackup bool) (*trophyservice.ResetResult, error) {
	f.record("ForceReset")
	if f.ForceResetFunc != nil {
		return f.ForceResetFunc(ctx, withBackup)
	}
	return nil, errNotStubbed
}

func (f *FakeService) RunAnchoredAction(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error {
	f.record("RunAnchoredAction")
	if f.RunAnchoredActionFunc != nil {
		return f.RunAnchoredActionFunc(ctx, action, date)
	}
	return errNotStubbed
}

func (f *FakeService) ListBackups(ctx context.Context, limit int) ([]trophydomain.BackupSummary, error) {
	f.record("ListBackups")
	if f.ListBackupsFunc != nil {
		return f.ListBackupsFunc(ctx, limit)
	}
	return nil, errNotStubbed
}

func (f *FakeService) GetBackup(ctx context.Context, id string) (*trophydomain.BackupSnapshot, error) {
	f.record("GetBackup")
	if f.GetBackupFunc != nil {
		return f.GetBackupFunc(ctx, id)
	}
	return nil, errNotStubbed
}

func (f *FakeService) RestoreBackup(ctx context.Context, id string) (int, error) {
	f.record("RestoreBackup")
	if f.RestoreBackupFunc != nil {
		return f.RestoreBackupFunc(ctx, id)
	}
	return 0, errNotStubbed
}
