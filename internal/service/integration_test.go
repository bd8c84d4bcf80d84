//go:build integration

package service

import (
	"context"
	"database/sql"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/oddsworth/cardseer/internal/repository/postgres"
	redisrepo "github.com/oddsworth/cardseer/internal/repository/redis"
	"github.com/oddsworth/cardseer/internal/testutil"
	"github.com/oddsworth/cardseer/pkg/tracker"
)

// testEnv holds shared test infrastructure.
type testEnv struct {
	db       *sql.DB
	rdb      *goredis.Client
	sessions *postgres.SessionRepo
	events   *redisrepo.Client
}

var env *testEnv

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	if env == nil {
		db := testutil.SetupDB(t)
		rdb := testutil.SetupRedis(t)
		env = &testEnv{
			db:       db,
			rdb:      rdb,
			sessions: postgres.NewSessionRepo(db),
			events:   redisrepo.NewClientFromPool(rdb),
		}
	}
	testutil.CleanupDB(t, env.db)
	testutil.CleanupRedis(t, env.rdb)
	return env
}

type nopHub struct{}

func (h *nopHub) BroadcastSessionEvent(string, string, any) {}

func newSvc(e *testEnv) *SessionService {
	return NewSessionService(e.sessions, e.events, &nopHub{})
}

func TestSessionLifecycleEndToEnd(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	svc := newSvc(e)

	sess, err := svc.Create(ctx, 3, "base")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// Feed a short game: production, steal, build.
	events := []tracker.Event{
		{Type: tracker.EventProduction, Gains: map[tracker.Player]tracker.ResourceSet{
			1: {tracker.Wood: 2, tracker.Brick: 1},
		}},
		{Type: tracker.EventSteal, Player: 2, Target: 1},
		{Type: tracker.EventProduction, Gains: map[tracker.Player]tracker.ResourceSet{
			2: {tracker.Ore: 1},
		}},
	}
	var last tracker.DebugSnapshot
	for i, ev := range events {
		last, err = svc.ApplyEvent(ctx, sess.ID, ev)
		if err != nil {
			t.Fatalf("apply event %d: %v", i+1, err)
		}
	}
	if last.Turn != 3 {
		t.Errorf("expected turn 3, got %d", last.Turn)
	}
	if last.WorldCount != 2 {
		t.Errorf("expected 2 worlds after unobserved steal, got %d", last.WorldCount)
	}

	// The Redis log must contain exactly the applied events.
	n, err := e.events.Length(ctx, sess.ID)
	if err != nil {
		t.Fatalf("log length: %v", err)
	}
	if n != int64(len(events)) {
		t.Errorf("expected %d logged events, got %d", len(events), n)
	}
}

func TestRebuildAfterRestart(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	svc := newSvc(e)

	sess, err := svc.Create(ctx, 2, "base")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	svc.ApplyEvent(ctx, sess.ID, tracker.Event{
		Type:  tracker.EventProduction,
		Gains: map[tracker.Player]tracker.ResourceSet{1: {tracker.Grain: 3}},
	})
	svc.ApplyEvent(ctx, sess.ID, tracker.Event{Type: tracker.EventSteal, Player: 2, Target: 1})
	before, _ := svc.Snapshot(ctx, sess.ID, 10)

	// Fresh service instance simulates a process restart: the live tracker
	// map is empty and everything must come back from the Redis log.
	restarted := newSvc(e)
	if err := restarted.RecoverActiveSessions(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}
	after, err := restarted.Snapshot(ctx, sess.ID, 10)
	if err != nil {
		t.Fatalf("snapshot after restart: %v", err)
	}

	if after.Turn != before.Turn || after.WorldCount != before.WorldCount {
		t.Errorf("rebuilt state diverged: before turn=%d worlds=%d, after turn=%d worlds=%d",
			before.Turn, before.WorldCount, after.Turn, after.WorldCount)
	}
}

func TestFinishArchivesToPostgres(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	svc := newSvc(e)

	sess, err := svc.Create(ctx, 2, "base")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	svc.ApplyEvent(ctx, sess.ID, tracker.Event{
		Type:  tracker.EventProduction,
		Gains: map[tracker.Player]tracker.ResourceSet{1: {tracker.Wool: 2}},
	})
	svc.ApplyEvent(ctx, sess.ID, tracker.Event{Type: tracker.EventSteal, Player: 2, Target: 1})

	if err := svc.Finish(ctx, sess.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}

	// Redis log is gone, Postgres archive has the events.
	n, _ := e.events.Length(ctx, sess.ID)
	if n != 0 {
		t.Errorf("expected Redis log deleted, got %d entries", n)
	}
	archived, err := e.sessions.ArchivedEvents(ctx, sess.ID)
	if err != nil {
		t.Fatalf("archived events: %v", err)
	}
	if len(archived) != 2 {
		t.Fatalf("expected 2 archived events, got %d", len(archived))
	}

	// Replaying the archive reproduces the final belief.
	snap, err := svc.ReplayArchived(ctx, sess.ID, 10)
	if err != nil {
		t.Fatalf("replay archived: %v", err)
	}
	if snap.Turn != 2 || snap.WorldCount != 2 {
		t.Errorf("replay mismatch: turn=%d worlds=%d", snap.Turn, snap.WorldCount)
	}
}
