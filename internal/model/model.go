// Package model holds the persistence-facing data types shared by the
// repositories, services, and handlers.
package model

import (
	"encoding/json"
	"time"
)

// Session statuses.
const (
	SessionActive   = "active"
	SessionFinished = "finished"
)

// Session is one tracked game: a live tracker instance fed by an overlay
// client, identified by a UUID.
type Session struct {
	ID         string     `json:"id"`
	Players    int        `json:"players"`
	Variant    string     `json:"variant"`
	Status     string     `json:"status"`
	EventCount int        `json:"event_count"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// EventRecord is one stored entry of a session's append-only event log. The
// payload is the tracker's own event serialization; replaying the payloads
// in sequence order rebuilds the belief state.
type EventRecord struct {
	SessionID string          `json:"session_id"`
	Seq       int             `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
