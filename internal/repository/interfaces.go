package repository

import (
	"context"
	"encoding/json"

	"github.com/oddsworth/cardseer/internal/model"
)

// SessionRepository defines durable session data operations (Postgres).
type SessionRepository interface {
	Create(ctx context.Context, id string, players int, variant string) (*model.Session, error)
	FindByID(ctx context.Context, id string) (*model.Session, error)
	ListActive(ctx context.Context) ([]model.Session, error)
	SetFinished(ctx context.Context, id string, eventCount int) error
	ArchiveEvents(ctx context.Context, id string, events []model.EventRecord) error
	ArchivedEvents(ctx context.Context, id string) ([]model.EventRecord, error)
	Delete(ctx context.Context, id string) error
}

// EventLog defines the live append-only event log (Redis). This log is the
// only recovery mechanism: the engine never persists belief state, it is
// always rebuilt by replaying the log.
type EventLog interface {
	Append(ctx context.Context, sessionID string, payload json.RawMessage) (int64, error)
	List(ctx context.Context, sessionID string) ([]json.RawMessage, error)
	Length(ctx context.Context, sessionID string) (int64, error)
	SetSnapshot(ctx context.Context, sessionID string, snapshot json.RawMessage) error
	GetSnapshot(ctx context.Context, sessionID string) (json.RawMessage, error)
	Delete(ctx context.Context, sessionID string) error
}
