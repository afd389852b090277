package trophyservice

import (
	"context"
	"fmt"
	"sort"
	"sync"

	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
	trophydb "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/repositories"
	"github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/scoresource"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ------------------------
// Fake Trophy Repo
// ------------------------

// FakeTrophyRepo keeps players and snapshots in memory. Any XxxFunc set
// overrides the in-memory behavior for that method.
type FakeTrophyRepo struct {
	mu        sync.Mutex
	trace     []string
	players   map[trophydomain.Tag]trophydomain.Player
	snapshots []trophydomain.BackupSnapshot

	ListPlayersFunc    func(ctx context.Context, db bun.IDB) ([]trophydomain.Player, error)
	UpsertPlayerFunc   func(ctx context.Context, db bun.IDB, p trophydomain.Player) error
	UpdatePlayerFunc   func(ctx context.Context, db bun.IDB, tag trophydomain.Tag, fn trophydb.UpdateFunc) (*trophydomain.Player, error)
	CreateSnapshotFunc func(ctx context.Context, db bun.IDB, snap trophydomain.BackupSnapshot) (string, error)
}

var _ trophydb.Repository = (*FakeTrophyRepo)(nil)

func NewFakeTrophyRepo(players ...trophydomain.Player) *FakeTrophyRepo {
	f := &FakeTrophyRepo{players: make(map[trophydomain.Tag]trophydomain.Player)}
	for _, p := range players {
		f.players[p.Tag] = p
	}
	return f
}

func (f *FakeTrophyRepo) record(step string) {
	f.trace = append(f.trace, step)
}

func (f *FakeTrophyRepo) Trace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.trace...)
}

func (f *FakeTrophyRepo) Player(tag trophydomain.Tag) (trophydomain.Player, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.players[tag]
	return p, ok
}

func (f *FakeTrophyRepo) Snapshots() []trophydomain.BackupSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]trophydomain.BackupSnapshot(nil), f.snapshots...)
}

func (f *FakeTrophyRepo) sorted() []trophydomain.Player {
	out := make([]trophydomain.Player, 0, len(f.players))
	for _, p := range f.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CurrentScore != out[j].CurrentScore {
			return out[i].CurrentScore > out[j].CurrentScore
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

// --- Repository Interface Implementation ---

func (f *FakeTrophyRepo) GetPlayer(ctx context.Context, db bun.IDB, tag trophydomain.Tag) (*trophydomain.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetPlayer")
	p, ok := f.players[tag]
	if !ok {
		return nil, trophydb.ErrNotFound
	}
	return &p, nil
}

func (f *FakeTrophyRepo) ListPlayers(ctx context.Context, db bun.IDB) ([]trophydomain.Player, error) {
	f.mu.Lock()
	f.record("ListPlayers")
	fn := f.ListPlayersFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, db)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(), nil
}

func (f *FakeTrophyRepo) UpsertPlayer(ctx context.Context, db bun.IDB, p trophydomain.Player) error {
	f.mu.Lock()
	f.record("UpsertPlayer")
	fn := f.UpsertPlayerFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, db, p)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.players[p.Tag] = p
	return nil
}

func (f *FakeTrophyRepo) UpdatePlayer(ctx context.Context, db bun.IDB, tag trophydomain.Tag, fn trophydb.UpdateFunc) (*trophydomain.Player, error) {
	f.mu.Lock()
	f.record("UpdatePlayer")
	override := f.UpdatePlayerFunc
	f.mu.Unlock()
	if override != nil {
		return override(ctx, db, tag, fn)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.players[tag]
	if !ok {
		return nil, trophydb.ErrNotFound
	}
	next := cur
	if err := fn(&next); err != nil {
		return nil, err
	}
	next.Tag = tag
	f.players[tag] = next
	return &next, nil
}

func (f *FakeTrophyRepo) DeleteOwnedPlayer(ctx context.Context, db bun.IDB, owner trophydomain.OwnerID, tag trophydomain.Tag) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteOwnedPlayer")
	if p, ok := f.players[tag]; ok && p.OwnerID == owner {
		delete(f.players, tag)
		return 1, nil
	}
	return 0, nil
}

func (f *FakeTrophyRepo) DeleteOwnerPlayers(ctx context.Context, db bun.IDB, owner trophydomain.OwnerID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteOwnerPlayers")
	var n int64
	for tag, p := range f.players {
		if p.OwnerID == owner {
			delete(f.players, tag)
			n++
		}
	}
	return n, nil
}

func (f *FakeTrophyRepo) DeletePlayer(ctx context.Context, db bun.IDB, tag trophydomain.Tag) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeletePlayer")
	if _, ok := f.players[tag]; !ok {
		return 0, nil
	}
	delete(f.players, tag)
	return 1, nil
}

func (f *FakeTrophyRepo) ReplaceAllPlayers(ctx context.Context, db bun.IDB, players []trophydomain.Player) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ReplaceAllPlayers")
	f.players = make(map[trophydomain.Tag]trophydomain.Player, len(players))
	for _, p := range players {
		f.players[p.Tag] = p
	}
	return nil
}

func (f *FakeTrophyRepo) CreateSnapshot(ctx context.Context, db bun.IDB, snap trophydomain.BackupSnapshot) (string, error) {
	f.mu.Lock()
	f.record("CreateSnapshot")
	fn := f.CreateSnapshotFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, db, snap)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	snap.Players = append([]trophydomain.Player(nil), snap.Players...)
	f.snapshots = append(f.snapshots, snap)
	return snap.ID, nil
}

func (f *FakeTrophyRepo) GetSnapshot(ctx context.Context, db bun.IDB, id string) (*trophydomain.BackupSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetSnapshot")
	for _, s := range f.snapshots {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, trophydb.ErrNotFound
}

func (f *FakeTrophyRepo) LatestSnapshot(ctx context.Context, db bun.IDB) (*trophydomain.BackupSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("LatestSnapshot")
	if len(f.snapshots) == 0 {
		return nil, trophydb.ErrNotFound
	}
	s := f.snapshots[len(f.snapshots)-1]
	return &s, nil
}

func (f *FakeTrophyRepo) ListSnapshots(ctx context.Context, db bun.IDB, limit int) ([]trophydomain.BackupSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListSnapshots")
	var out []trophydomain.BackupSummary
	for i := len(f.snapshots) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		s := f.snapshots[i]
		out = append(out, trophydomain.BackupSummary{ID: s.ID, TakenAt: s.TakenAt, TakenOn: s.TakenOn, PlayerCount: len(s.Players)})
	}
	return out, nil
}

// ------------------------
// Fake Score Source
// ------------------------

// FakeSource answers from a map of scripted results.
type FakeSource struct {
	mu      sync.Mutex
	results map[trophydomain.Tag]trophydomain.Observation
	errs    map[trophydomain.Tag]error
	calls   map[trophydomain.Tag]int

	GetScoreFunc func(ctx context.Context, tag trophydomain.Tag) (trophydomain.Observation, error)
}

var _ scoresource.Source = (*FakeSource)(nil)

func NewFakeSource() *FakeSource {
	return &FakeSource{
		results: make(map[trophydomain.Tag]trophydomain.Observation),
		errs:    make(map[trophydomain.Tag]error),
		calls:   make(map[trophydomain.Tag]int),
	}
}

func (f *FakeSource) Set(tag trophydomain.Tag, obs trophydomain.Observation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[tag] = obs
	delete(f.errs, tag)
}

func (f *FakeSource) Fail(tag trophydomain.Tag, kind error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[tag] = &trophydomain.SourceError{Tag: tag, Kind: kind, StatusCode: 503}
}

func (f *FakeSource) Calls(tag trophydomain.Tag) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[tag]
}

func (f *FakeSource) GetScore(ctx context.Context, tag trophydomain.Tag) (trophydomain.Observation, error) {
	f.mu.Lock()
	f.calls[tag]++
	fn := f.GetScoreFunc
	obs, ok := f.results[tag]
	err := f.errs[tag]
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, tag)
	}
	if err != nil {
		return trophydomain.Observation{}, err
	}
	if !ok {
		return trophydomain.Observation{}, &trophydomain.SourceError{Tag: tag, Kind: trophydomain.ErrSourceUnavailable, Err: fmt.Errorf("no scripted result")}
	}
	return obs, nil
}

// ------------------------
// Fake Publisher
// ------------------------

type FakePublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
}

var _ message.Publisher = (*FakePublisher)(nil)

func (f *FakePublisher) Publish(topic string, msgs ...*message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	return f.err
}

func (f *FakePublisher) Close() error { return nil }

func (f *FakePublisher) Topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.topics...)
}

func (f *FakePublisher) Count(topic string) int {
	n := 0
	for _, t := range f.Topics() {
		if t == topic {
			n++
		}
	}
	return n
}
