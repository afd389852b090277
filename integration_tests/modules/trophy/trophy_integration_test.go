//go:build integration

package trophy_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Black-And-White-Club/trophy-bot/app/database"
	"github.com/Black-And-White-Club/trophy-bot/app/eventbus"
	trophyservice "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/application"
	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
	trophyevents "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/events"
	trophyqueue "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/queue"
	trophydb "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/repositories"
	trophymigrations "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/repositories/migrations"
	"github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/scoresource"
	"github.com/Black-And-White-Club/trophy-bot/app/observability/metrics"
	"github.com/Black-And-White-Club/trophy-bot/config"
	"github.com/Black-And-White-Club/trophy-bot/integration_tests/containers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	pgDSN   string
	natsURL string
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	pg, dsn, err := containers.SetupPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	pgDSN = dsn

	nc, url, err := containers.SetupNatsContainer(ctx)
	if err != nil {
		_ = pg.Terminate(ctx)
		log.Fatalf("nats: %v", err)
	}
	natsURL = url

	code := m.Run()

	_ = nc.Terminate(ctx)
	_ = pg.Terminate(ctx)
	os.Exit(code)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openDB opens a migrated database and truncates the trophy tables.
func openDB(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.StoreConfig{Driver: config.DriverPostgres, DSN: pgDSN})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrator := migrate.NewMigrator(db, trophymigrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, "TRUNCATE trophy_players, trophy_backups, trophy_schedule_state")
	require.NoError(t, err)
	return db
}

// scoreServer serves the score proxy's player endpoint from a mutable map.
type scoreServer struct {
	mu     sync.Mutex
	scores map[string]int
}

func newScoreServer(t *testing.T) (*scoreServer, *scoresource.Client) {
	t.Helper()
	s := &scoreServer{scores: make(map[string]int)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tag := strings.TrimPrefix(r.URL.Path, "/player/#")
		s.mu.Lock()
		score, ok := s.scores[tag]
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "player " + tag, "trophies": score, "rank": 1})
	}))
	t.Cleanup(srv.Close)

	client, err := scoresource.NewClient(scoresource.Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, srv.Client(), discardLogger())
	require.NoError(t, err)
	return s, client
}

func (s *scoreServer) set(tag string, score int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[tag] = score
}

func TestRepository_UpdatePlayerSerializesWriters(t *testing.T) {
	db := openDB(t)
	repo := trophydb.NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertPlayer(ctx, nil, trophydomain.Player{OwnerID: "o1", Tag: "AAA", CurrentScore: 100, PreviousScore: 100}))

	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.UpdatePlayer(ctx, nil, "AAA", func(p *trophydomain.Player) error {
				p.OffenseEventCount++
				p.OffenseGainTotal += 2
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := repo.GetPlayer(ctx, nil, "AAA")
	require.NoError(t, err)
	assert.Equal(t, writers, p.OffenseEventCount)
	assert.Equal(t, 2*writers, p.OffenseGainTotal)
}

func TestService_LinkReconcileBackupReset(t *testing.T) {
	db := openDB(t)
	repo := trophydb.NewRepository(db)
	scores, source := newScoreServer(t)
	ctx := context.Background()

	bus := eventbus.NewInProcess(discardLogger())
	t.Cleanup(func() { bus.Close() })

	svc := trophyservice.NewTrophyService(repo, source, bus, discardLogger(), metrics.NewNoop(),
		noop.NewTracerProvider().Tracer("test"), db, trophyservice.Options{
			Location:                 time.UTC,
			PollConcurrency:          4,
			RequireBackupBeforeReset: true,
		})

	scores.set("AAA", 4000)
	scores.set("BBB", 3000)
	_, err := svc.LinkPlayer(ctx, "owner-1", "#aaa")
	require.NoError(t, err)
	_, err = svc.LinkPlayer(ctx, "owner-2", "bbb")
	require.NoError(t, err)

	_, err = svc.LinkPlayer(ctx, "owner-1", "ZZZ")
	assert.ErrorIs(t, err, trophydomain.ErrSourceUnavailable)

	scores.set("AAA", 4050)
	scores.set("BBB", 2900)
	report, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Updated)

	players, err := svc.ListPlayers(ctx)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, trophydomain.Tag("AAA"), players[0].Tag)
	assert.Equal(t, 50, players[0].OffenseGainTotal)
	assert.Equal(t, 4000, players[0].PreviousScore)
	assert.Equal(t, 100, players[1].DefenseLossTotal)

	today := trophydomain.DateOf(time.Now(), time.UTC)

	err = svc.RunAnchoredAction(ctx, trophydomain.ActionReset, today)
	assert.ErrorIs(t, err, trophydomain.ErrBackupMissing)

	require.NoError(t, svc.RunAnchoredAction(ctx, trophydomain.ActionBackup, today))
	require.NoError(t, svc.RunAnchoredAction(ctx, trophydomain.ActionReset, today))

	players, err = svc.ListPlayers(ctx)
	require.NoError(t, err)
	for _, p := range players {
		assert.Zero(t, p.OffenseGainTotal+p.DefenseLossTotal+p.OffenseEventCount+p.DefenseEventCount)
		assert.Equal(t, today, p.LastResetDate)
	}

	scores.set("AAA", 4100)
	require.NoError(t, svc.RunAnchoredAction(ctx, trophydomain.ActionRefresh, today))
	a, err := repo.GetPlayer(ctx, nil, "AAA")
	require.NoError(t, err)
	assert.Equal(t, 4100, a.PreviousScore)
	assert.Zero(t, a.OffenseEventCount)

	backups, err := svc.ListBackups(ctx, 5)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	n, err := svc.RestoreBackup(ctx, backups[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	restored, err := repo.GetPlayer(ctx, nil, "AAA")
	require.NoError(t, err)
	assert.Equal(t, 50, restored.OffenseGainTotal)
}

func TestQueue_DispatchIsUniquePerOccurrence(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	require.NoError(t, trophyqueue.Migrate(ctx, pgDSN, discardLogger()))

	ran := make(chan string, 4)
	runner := runnerFunc(func(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error {
		ran <- fmt.Sprintf("%s@%s", action, date)
		return nil
	})

	q, err := trophyqueue.NewService(ctx, pgDSN, runner, discardLogger(), metrics.NewNoop())
	require.NoError(t, err)
	require.NoError(t, q.HealthCheck(ctx))

	require.NoError(t, q.Dispatch(ctx, trophydomain.ActionReset, "2026-10-19"))
	assert.ErrorIs(t, q.Dispatch(ctx, trophydomain.ActionReset, "2026-10-19"), trophydomain.ErrSchedulerReentrancy)
	require.NoError(t, q.Dispatch(ctx, trophydomain.ActionReset, "2026-10-20"))

	require.NoError(t, q.Start(ctx))
	t.Cleanup(func() { _ = q.Stop(context.Background()) })

	got := map[string]bool{}
	for len(got) < 2 {
		select {
		case r := <-ran:
			got[r] = true
		case <-ctx.Done():
			t.Fatalf("jobs did not run: %v", got)
		}
	}
	assert.True(t, got["reset@2026-10-19"])
	assert.True(t, got["reset@2026-10-20"])

	// A completed occurrence is still unique.
	assert.ErrorIs(t, q.Dispatch(ctx, trophydomain.ActionReset, "2026-10-19"), trophydomain.ErrSchedulerReentrancy)
}

func TestEventBus_JetStreamRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	bus, err := eventbus.New(ctx, natsURL, trophyevents.Subjects, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })

	msgs, err := bus.Subscribe(ctx, trophyevents.ResetCompletedV1)
	require.NoError(t, err)

	msg, err := trophyevents.NewMessage(trophyevents.ResetCompletedV1, "corr-1", trophyevents.ResetCompletedPayloadV1{Date: "2026-10-19", Reset: 3})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(trophyevents.ResetCompletedV1, msg))

	select {
	case got := <-msgs:
		got.Ack()
		var payload trophyevents.ResetCompletedPayloadV1
		require.NoError(t, json.Unmarshal(got.Payload, &payload))
		assert.Equal(t, 3, payload.Reset)
		assert.Equal(t, "corr-1", got.Metadata.Get(trophyevents.CorrelationIDKey))
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

type runnerFunc func(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error

func (f runnerFunc) RunAnchoredAction(ctx context.Context, action trophydomain.AnchoredAction, date trophydomain.Date) error {
	return f(ctx, action, date)
}
