//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/oddsworth/cardseer/internal/model"
	"github.com/oddsworth/cardseer/internal/testutil"
)

var testDB *sql.DB

func setup(t *testing.T) *SessionRepo {
	t.Helper()
	if testDB == nil {
		testDB = testutil.SetupDB(t)
	}
	testutil.CleanupDB(t, testDB)
	return NewSessionRepo(testDB)
}

func TestCreateAndFind(t *testing.T) {
	repo := setup(t)
	ctx := context.Background()
	id := uuid.NewString()

	created, err := repo.Create(ctx, id, 4, "base")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != model.SessionActive {
		t.Errorf("expected active, got %s", created.Status)
	}

	found, err := repo.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found == nil {
		t.Fatal("expected session, got nil")
	}
	if found.Players != 4 || found.Variant != "base" {
		t.Errorf("round-trip mismatch: %+v", found)
	}
}

func TestFindMissing(t *testing.T) {
	repo := setup(t)

	found, err := repo.FindByID(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if found != nil {
		t.Fatal("expected nil for missing session")
	}
}

func TestListActiveExcludesFinished(t *testing.T) {
	repo := setup(t)
	ctx := context.Background()

	active := uuid.NewString()
	finished := uuid.NewString()
	repo.Create(ctx, active, 3, "base")
	repo.Create(ctx, finished, 3, "base")
	if err := repo.SetFinished(ctx, finished, 10); err != nil {
		t.Fatalf("set finished: %v", err)
	}

	sessions, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 active session, got %d", len(sessions))
	}
	if sessions[0].ID != active {
		t.Errorf("expected %s, got %s", active, sessions[0].ID)
	}
}

func TestSetFinishedRecordsCountAndTime(t *testing.T) {
	repo := setup(t)
	ctx := context.Background()
	id := uuid.NewString()
	repo.Create(ctx, id, 3, "base")

	if err := repo.SetFinished(ctx, id, 42); err != nil {
		t.Fatalf("set finished: %v", err)
	}

	found, _ := repo.FindByID(ctx, id)
	if found.Status != model.SessionFinished {
		t.Errorf("expected finished, got %s", found.Status)
	}
	if found.EventCount != 42 {
		t.Errorf("expected event count 42, got %d", found.EventCount)
	}
	if found.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
}

func TestArchiveAndReadEvents(t *testing.T) {
	repo := setup(t)
	ctx := context.Background()
	id := uuid.NewString()
	repo.Create(ctx, id, 3, "base")

	records := []model.EventRecord{
		{SessionID: id, Seq: 1, Payload: json.RawMessage(`{"type":"production"}`)},
		{SessionID: id, Seq: 2, Payload: json.RawMessage(`{"type":"steal"}`)},
	}
	if err := repo.ArchiveEvents(ctx, id, records); err != nil {
		t.Fatalf("archive: %v", err)
	}

	// Archiving the same batch again is a no-op, not an error.
	if err := repo.ArchiveEvents(ctx, id, records); err != nil {
		t.Fatalf("re-archive: %v", err)
	}

	got, err := repo.ArchivedEvents(ctx, id)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Seq != 1 || got[1].Seq != 2 {
		t.Errorf("expected sequence order, got %d then %d", got[0].Seq, got[1].Seq)
	}
}

func TestDeleteCascadesEvents(t *testing.T) {
	repo := setup(t)
	ctx := context.Background()
	id := uuid.NewString()
	repo.Create(ctx, id, 3, "base")
	repo.ArchiveEvents(ctx, id, []model.EventRecord{
		{SessionID: id, Seq: 1, Payload: json.RawMessage(`{}`)},
	})

	if err := repo.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}

	found, _ := repo.FindByID(ctx, id)
	if found != nil {
		t.Fatal("expected session deleted")
	}
	events, _ := repo.ArchivedEvents(ctx, id)
	if len(events) != 0 {
		t.Fatalf("expected archived events cascaded, got %d", len(events))
	}
}
