package trophyscheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	trophyservice "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/application"
	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
	"github.com/Black-And-White-Club/trophy-bot/app/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FakeClock returns whatever NowFn returns.
type FakeClock struct {
	mu    sync.Mutex
	NowFn func() time.Time
	now   time.Time
}

func (f *FakeClock) Now() time.Time {
	if f.NowFn != nil {
		return f.NowFn()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *FakeClock) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

type dispatchCall struct {
	Action trophydomain.AnchoredAction
	Date   trophydomain.Date
}

type FakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall

	DispatchFunc func(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error
}

func (f *FakeDispatcher) Dispatch(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error {
	f.mu.Lock()
	f.calls = append(f.calls, dispatchCall{Action: action, Date: date})
	fn := f.DispatchFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, action, date)
	}
	return nil
}

func (f *FakeDispatcher) Calls() []dispatchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatchCall(nil), f.calls...)
}

func (f *FakeDispatcher) Count(action trophydomain.AnchoredAction) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Action == action {
			n++
		}
	}
	return n
}

type FakeReconciler struct {
	calls atomic.Int32

	ReconcileAllFunc func(ctx context.Context) (*trophyservice.ReconcileReport, error)
}

func (f *FakeReconciler) ReconcileAll(ctx context.Context) (*trophyservice.ReconcileReport, error) {
	f.calls.Add(1)
	if f.ReconcileAllFunc != nil {
		return f.ReconcileAllFunc(ctx)
	}
	return &trophyservice.ReconcileReport{Trigger: "tick"}, nil
}

type FakeBackupLister struct {
	summaries []trophydomain.BackupSummary
	err       error
}

func (f *FakeBackupLister) ListBackups(ctx context.Context, limit int) ([]trophydomain.BackupSummary, error) {
	return f.summaries, f.err
}

type FakeFireLedger struct {
	mu       sync.Mutex
	recorded []dispatchCall

	LoadFiredFunc   func(ctx context.Context) (map[trophydomain.AnchoredAction]trophydomain.Date, error)
	RecordFiredFunc func(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error
}

func (f *FakeFireLedger) LoadFired(ctx context.Context) (map[trophydomain.AnchoredAction]trophydomain.Date, error) {
	if f.LoadFiredFunc != nil {
		return f.LoadFiredFunc(ctx)
	}
	return nil, nil
}

func (f *FakeFireLedger) RecordFired(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error {
	f.mu.Lock()
	f.recorded = append(f.recorded, dispatchCall{Action: action, Date: date})
	f.mu.Unlock()
	if f.RecordFiredFunc != nil {
		return f.RecordFiredFunc(ctx, action, date)
	}
	return nil
}

func (f *FakeFireLedger) Recorded() []dispatchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatchCall(nil), f.recorded...)
}

func kolkata(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return loc
}

func newTestScheduler(t *testing.T, loc *time.Location, window time.Duration, clock Clock, d Dispatcher, r Reconciler, b BackupLister) *Scheduler {
	t.Helper()
	triggers, err := Triggers("10:25", "10:30", "10:42")
	require.NoError(t, err)
	if r == nil {
		r = &FakeReconciler{}
	}
	s, err := New(Config{
		Location:      loc,
		TickInterval:  time.Minute,
		CatchUpWindow: window,
		Triggers:      triggers,
	}, r, d, b, nil, clock, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.NewNoop())
	require.NoError(t, err)
	return s
}

func TestAnchoredTick_FiresExactlyOncePerOccurrence(t *testing.T) {
	loc := kolkata(t)
	clock := &FakeClock{}
	d := &FakeDispatcher{}
	s := newTestScheduler(t, loc, 5*time.Minute, clock, d, nil, nil)
	ctx := context.Background()

	// Ticks every 20s from 10:28 to 10:38 local, so many ticks land on 10:30.
	for at := time.Date(2026, 10, 19, 10, 28, 0, 0, loc); at.Before(time.Date(2026, 10, 19, 10, 38, 0, 0, loc)); at = at.Add(20 * time.Second) {
		clock.Set(at)
		s.AnchoredTick(ctx)
	}

	assert.Equal(t, 1, d.Count(trophydomain.ActionReset))
	assert.Equal(t, 1, d.Count(trophydomain.ActionBackup), "backup window [10:25,10:30) overlaps the first ticks")
	assert.Zero(t, d.Count(trophydomain.ActionRefresh))

	// Next day fires again.
	clock.Set(time.Date(2026, 10, 20, 10, 30, 10, 0, loc))
	s.AnchoredTick(ctx)
	assert.Equal(t, 2, d.Count(trophydomain.ActionReset))

	calls := d.Calls()
	var resetDates []trophydomain.Date
	for _, c := range calls {
		if c.Action == trophydomain.ActionReset {
			resetDates = append(resetDates, c.Date)
		}
	}
	assert.Equal(t, []trophydomain.Date{"2026-10-19", "2026-10-20"}, resetDates)
}

func TestAnchoredTick_CatchUpWindow(t *testing.T) {
	loc := kolkata(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		at        time.Time
		wantFired bool
	}{
		{"exact minute", time.Date(2026, 10, 19, 10, 30, 0, 0, loc), true},
		{"skipped minute caught up", time.Date(2026, 10, 19, 10, 33, 59, 0, loc), true},
		{"before trigger", time.Date(2026, 10, 19, 10, 29, 59, 0, loc), false},
		{"window closed", time.Date(2026, 10, 19, 10, 35, 0, 0, loc), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &FakeDispatcher{}
			s := newTestScheduler(t, loc, 5*time.Minute, &FakeClock{NowFn: func() time.Time { return tt.at }}, d, nil, nil)
			s.AnchoredTick(ctx)
			assert.Equal(t, tt.wantFired, d.Count(trophydomain.ActionReset) == 1)
		})
	}
}

func TestAnchoredTick_EvaluatesInScheduleTimezone(t *testing.T) {
	loc := kolkata(t)
	d := &FakeDispatcher{}
	// 05:00 UTC is 10:30 in Asia/Kolkata.
	now := time.Date(2026, 10, 19, 5, 0, 0, 0, time.UTC)
	s := newTestScheduler(t, loc, time.Minute, &FakeClock{NowFn: func() time.Time { return now }}, d, nil, nil)

	outcomes := s.AnchoredTick(context.Background())
	require.Len(t, outcomes, 1)
	assert.Equal(t, trophydomain.ActionReset, outcomes[0].Action)
	assert.Equal(t, trophydomain.Date("2026-10-19"), outcomes[0].Date)
}

func TestAnchoredTick_AcrossDaylightSavingChange(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	d := &FakeDispatcher{}
	clock := &FakeClock{}
	s := newTestScheduler(t, loc, time.Minute, clock, d, nil, nil)
	ctx := context.Background()

	// 10:30 EST the day before the change, 10:30 EDT the day of it.
	clock.Set(time.Date(2026, 3, 7, 15, 30, 0, 0, time.UTC))
	s.AnchoredTick(ctx)
	clock.Set(time.Date(2026, 3, 8, 14, 30, 0, 0, time.UTC))
	s.AnchoredTick(ctx)
	// 15:30 UTC on the day of the change is 11:30 EDT, outside the window.
	clock.Set(time.Date(2026, 3, 8, 15, 30, 0, 0, time.UTC))
	s.AnchoredTick(ctx)

	assert.Equal(t, []dispatchCall{
		{Action: trophydomain.ActionReset, Date: "2026-03-07"},
		{Action: trophydomain.ActionReset, Date: "2026-03-08"},
	}, d.Calls())
}

func TestAnchoredTick_FailuresAreIsolatedPerAction(t *testing.T) {
	loc := kolkata(t)
	d := &FakeDispatcher{
		DispatchFunc: func(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error {
			if action == trophydomain.ActionBackup {
				return &trophydomain.StoreError{Op: "CreateSnapshot", Err: errors.New("disk full")}
			}
			return nil
		},
	}
	clock := &FakeClock{}
	s := newTestScheduler(t, loc, 5*time.Minute, clock, d, nil, nil)
	ctx := context.Background()

	clock.Set(time.Date(2026, 10, 19, 10, 25, 0, 0, loc))
	out := s.AnchoredTick(ctx)
	require.Len(t, out, 1)
	assert.ErrorIs(t, out[0].Err, trophydomain.ErrStoreFailure)

	// A failed backup is not retried inside its window.
	clock.Set(time.Date(2026, 10, 19, 10, 26, 0, 0, loc))
	assert.Empty(t, s.AnchoredTick(ctx))

	clock.Set(time.Date(2026, 10, 19, 10, 30, 0, 0, loc))
	out = s.AnchoredTick(ctx)
	require.Len(t, out, 1)
	assert.NoError(t, out[0].Err)

	clock.Set(time.Date(2026, 10, 19, 10, 42, 0, 0, loc))
	out = s.AnchoredTick(ctx)
	require.Len(t, out, 1)
	assert.Equal(t, trophydomain.ActionRefresh, out[0].Action)

	assert.Equal(t, 1, d.Count(trophydomain.ActionBackup))
	assert.Equal(t, 1, d.Count(trophydomain.ActionReset))
	assert.Equal(t, 1, d.Count(trophydomain.ActionRefresh))
}

func TestAnchoredTick_DuplicateDispatchIsTreatedAsFired(t *testing.T) {
	loc := kolkata(t)
	d := &FakeDispatcher{
		DispatchFunc: func(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error {
			return trophydomain.ErrSchedulerReentrancy
		},
	}
	clock := &FakeClock{}
	s := newTestScheduler(t, loc, 5*time.Minute, clock, d, nil, nil)

	clock.Set(time.Date(2026, 10, 19, 10, 30, 0, 0, loc))
	out := s.AnchoredTick(context.Background())
	require.Len(t, out, 1)
	assert.ErrorIs(t, out[0].Err, trophydomain.ErrSchedulerReentrancy)
	assert.Equal(t, trophydomain.Date("2026-10-19"), s.Guard().LastFired(trophydomain.ActionReset))

	clock.Set(time.Date(2026, 10, 19, 10, 31, 0, 0, loc))
	assert.Empty(t, s.AnchoredTick(context.Background()))
}

func TestRestore_SeedsBackupGuard(t *testing.T) {
	loc := kolkata(t)
	d := &FakeDispatcher{}
	clock := &FakeClock{}
	backups := &FakeBackupLister{summaries: []trophydomain.BackupSummary{{ID: "b1", TakenOn: "2026-10-19"}}}
	s := newTestScheduler(t, loc, 5*time.Minute, clock, d, nil, backups)

	require.NoError(t, s.Restore(context.Background()))

	clock.Set(time.Date(2026, 10, 19, 10, 26, 0, 0, loc))
	assert.Empty(t, s.AnchoredTick(context.Background()))

	clock.Set(time.Date(2026, 10, 20, 10, 26, 0, 0, loc))
	assert.Len(t, s.AnchoredTick(context.Background()), 1)
}

func TestRestore_SeedsEveryActionFromLedger(t *testing.T) {
	loc := kolkata(t)
	d := &FakeDispatcher{}
	clock := &FakeClock{}
	s := newTestScheduler(t, loc, 15*time.Minute, clock, d, nil, nil)
	s.ledger = &FakeFireLedger{
		LoadFiredFunc: func(ctx context.Context) (map[trophydomain.AnchoredAction]trophydomain.Date, error) {
			return map[trophydomain.AnchoredAction]trophydomain.Date{
				trophydomain.ActionBackup: "2026-10-19",
				trophydomain.ActionReset:  "2026-10-19",
			}, nil
		},
	}

	require.NoError(t, s.Restore(context.Background()))

	// Restarted inside the backup and reset windows, before refresh.
	clock.Set(time.Date(2026, 10, 19, 10, 33, 0, 0, loc))
	assert.Empty(t, s.AnchoredTick(context.Background()))

	clock.Set(time.Date(2026, 10, 19, 10, 43, 0, 0, loc))
	outcomes := s.AnchoredTick(context.Background())
	require.Len(t, outcomes, 1)
	assert.Equal(t, trophydomain.ActionRefresh, outcomes[0].Action)
	assert.Equal(t, 0, d.Count(trophydomain.ActionReset))
	assert.Equal(t, 0, d.Count(trophydomain.ActionBackup))
}

func TestRestore_LedgerAndListingFailuresAreJoined(t *testing.T) {
	s := newTestScheduler(t, kolkata(t), time.Minute, &FakeClock{}, &FakeDispatcher{}, nil, &FakeBackupLister{err: errors.New("list down")})
	s.ledger = &FakeFireLedger{
		LoadFiredFunc: func(ctx context.Context) (map[trophydomain.AnchoredAction]trophydomain.Date, error) {
			return nil, errors.New("ledger down")
		},
	}

	err := s.Restore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger down")
	assert.Contains(t, err.Error(), "list down")
}

func TestAnchoredTick_RecordsFiredActions(t *testing.T) {
	loc := kolkata(t)
	clock := &FakeClock{}
	ledger := &FakeFireLedger{}
	s := newTestScheduler(t, loc, 5*time.Minute, clock, &FakeDispatcher{}, nil, nil)
	s.ledger = ledger

	clock.Set(time.Date(2026, 10, 19, 10, 31, 0, 0, loc))
	require.Len(t, s.AnchoredTick(context.Background()), 1)
	clock.Set(time.Date(2026, 10, 19, 10, 32, 0, 0, loc))
	assert.Empty(t, s.AnchoredTick(context.Background()))

	assert.Equal(t, []dispatchCall{{trophydomain.ActionReset, "2026-10-19"}}, ledger.Recorded())
}

func TestAnchoredTick_LedgerFailureStillDispatches(t *testing.T) {
	loc := kolkata(t)
	clock := &FakeClock{}
	d := &FakeDispatcher{}
	s := newTestScheduler(t, loc, 5*time.Minute, clock, d, nil, nil)
	s.ledger = &FakeFireLedger{
		RecordFiredFunc: func(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error {
			return errors.New("db down")
		},
	}

	clock.Set(time.Date(2026, 10, 19, 10, 26, 0, 0, loc))
	outcomes := s.AnchoredTick(context.Background())
	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, 1, d.Count(trophydomain.ActionBackup))
}

func TestRestore_ListingFailure(t *testing.T) {
	s := newTestScheduler(t, kolkata(t), time.Minute, &FakeClock{}, &FakeDispatcher{}, nil, &FakeBackupLister{err: errors.New("boom")})
	assert.Error(t, s.Restore(context.Background()))
}

func TestReconcileTick_DoesNotOverlap(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	r := &FakeReconciler{
		ReconcileAllFunc: func(ctx context.Context) (*trophyservice.ReconcileReport, error) {
			close(entered)
			<-release
			return &trophyservice.ReconcileReport{Trigger: "tick", Polled: 3}, nil
		},
	}
	s := newTestScheduler(t, kolkata(t), time.Minute, &FakeClock{}, &FakeDispatcher{}, r, nil)

	done := make(chan *trophyservice.ReconcileReport)
	go func() { done <- s.ReconcileTick(context.Background()) }()
	<-entered

	assert.Nil(t, s.ReconcileTick(context.Background()), "overlapping tick must be skipped")
	close(release)

	report := <-done
	require.NotNil(t, report)
	assert.Equal(t, 3, report.Polled)
	assert.EqualValues(t, 1, r.calls.Load())
}

func TestReconcileTick_ErrorIsReported(t *testing.T) {
	r := &FakeReconciler{
		ReconcileAllFunc: func(ctx context.Context) (*trophyservice.ReconcileReport, error) {
			return nil, trophydomain.NewStoreError("ListPlayers", errors.New("down"))
		},
	}
	s := newTestScheduler(t, kolkata(t), time.Minute, &FakeClock{}, &FakeDispatcher{}, r, nil)
	assert.Nil(t, s.ReconcileTick(context.Background()))
}

func TestRun_DrivesBothActivitiesUntilCanceled(t *testing.T) {
	loc := kolkata(t)
	r := &FakeReconciler{}
	d := &FakeDispatcher{}
	now := time.Date(2026, 10, 19, 10, 30, 0, 0, loc)
	triggers, err := Triggers("10:25", "10:30", "10:42")
	require.NoError(t, err)

	s, err := New(Config{
		Location:      loc,
		TickInterval:  5 * time.Millisecond,
		CatchUpWindow: time.Minute,
		Triggers:      triggers,
	}, r, d, nil, nil, &FakeClock{NowFn: func() time.Time { return now }}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return r.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, 1, d.Count(trophydomain.ActionReset))
}

func TestAnchoredTick_WindowNeverShorterThanTick(t *testing.T) {
	loc := kolkata(t)
	clock := &FakeClock{}
	d := &FakeDispatcher{}
	triggers, err := Triggers("10:25", "10:30", "10:42")
	require.NoError(t, err)

	s, err := New(Config{
		Location:      loc,
		TickInterval:  10 * time.Minute,
		CatchUpWindow: 5 * time.Minute,
		Triggers:      triggers,
	}, &FakeReconciler{}, d, nil, nil, clock, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	require.NoError(t, err)

	for _, minute := range []int{21, 31, 41, 51} {
		clock.Set(time.Date(2026, 10, 19, 10, minute, 0, 0, loc))
		s.AnchoredTick(context.Background())
	}

	assert.Equal(t, 1, d.Count(trophydomain.ActionBackup))
	assert.Equal(t, 1, d.Count(trophydomain.ActionReset))
	assert.Equal(t, 1, d.Count(trophydomain.ActionRefresh))

	calls := d.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []trophydomain.AnchoredAction{
		trophydomain.ActionBackup,
		trophydomain.ActionReset,
		trophydomain.ActionRefresh,
	}, []trophydomain.AnchoredAction{calls[0].Action, calls[1].Action, calls[2].Action})
}

func TestNew_Validation(t *testing.T) {
	r := &FakeReconciler{}
	d := &FakeDispatcher{}

	_, err := New(Config{TickInterval: time.Minute}, r, d, nil, nil, nil, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{Location: time.UTC}, r, d, nil, nil, nil, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{
		Location:     time.UTC,
		TickInterval: time.Minute,
		Triggers:     []trophydomain.Trigger{{Action: "nap"}},
	}, r, d, nil, nil, nil, nil, nil)
	assert.Error(t, err)

	_, err = Triggers("10:25", "25:00", "10:42")
	assert.Error(t, err)
}

func TestInlineDispatcher(t *testing.T) {
	var got []dispatchCall
	runner := runnerFunc(func(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error {
		got = append(got, dispatchCall{action, date})
		return nil
	})
	require.NoError(t, NewInlineDispatcher(runner).Dispatch(context.Background(), trophydomain.ActionBackup, "2026-10-19"))
	assert.Equal(t, []dispatchCall{{trophydomain.ActionBackup, "2026-10-19"}}, got)
}

type runnerFunc func(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error

func (f runnerFunc) RunAnchoredAction(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error {
	return f(ctx, action, date)
}
