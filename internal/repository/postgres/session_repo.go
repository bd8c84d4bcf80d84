package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/oddsworth/cardseer/internal/model"
)

// SessionRepo handles session and archived-event database operations.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a SessionRepo.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create inserts a new session in "active" status.
func (r *SessionRepo) Create(ctx context.Context, id string, players int, variant string) (*model.Session, error) {
	var s model.Session
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO sessions (id, players, variant, status)
		 VALUES ($1, $2, $3, 'active')
		 RETURNING id, players, variant, status, event_count, created_at`,
		id, players, variant,
	).Scan(&s.ID, &s.Players, &s.Variant, &s.Status, &s.EventCount, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &s, nil
}

// FindByID returns a session by ID, or nil if none exists.
func (r *SessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session
	var finished sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, players, variant, status, event_count, created_at, finished_at
		 FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.Players, &s.Variant, &s.Status, &s.EventCount, &s.CreatedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if finished.Valid {
		s.FinishedAt = &finished.Time
	}
	return &s, nil
}

// ListActive returns sessions in "active" status, newest first.
func (r *SessionRepo) ListActive(ctx context.Context) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, players, variant, status, event_count, created_at
		 FROM sessions WHERE status = 'active' ORDER BY created_at DESC LIMIT 100`)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.Players, &s.Variant, &s.Status, &s.EventCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SetFinished marks a session finished and records its final event count.
func (r *SessionRepo) SetFinished(ctx context.Context, id string, eventCount int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = 'finished', event_count = $2, finished_at = now() WHERE id = $1`,
		id, eventCount)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return nil
}

// ArchiveEvents copies a session's event log into durable storage. Called
// once when the session finishes; the Redis log is deleted afterwards.
func (r *SessionRepo) ArchiveEvents(ctx context.Context, id string, events []model.EventRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	defer tx.Rollback()

	for _, e := range events {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_events (session_id, seq, payload)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (session_id, seq) DO NOTHING`,
			id, e.Seq, []byte(e.Payload)); err != nil {
			return fmt.Errorf("archive event %d: %w", e.Seq, err)
		}
	}
	return tx.Commit()
}

// ArchivedEvents returns a finished session's event log in sequence order.
func (r *SessionRepo) ArchivedEvents(ctx context.Context, id string) ([]model.EventRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id, seq, payload, created_at
		 FROM session_events WHERE session_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("list archived events: %w", err)
	}
	defer rows.Close()

	var events []model.EventRecord
	for rows.Next() {
		var e model.EventRecord
		if err := rows.Scan(&e.SessionID, &e.Seq, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Delete removes a session and its archived events.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
