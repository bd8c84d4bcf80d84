package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/oddsworth/cardseer/internal/model"
	"github.com/oddsworth/cardseer/pkg/tracker"
)

// rebuild reconstructs a session's tracker by replaying its event log. This
// is the only recovery path: the engine never persists belief state, so a
// restarted process (or an evicted live entry) starts from a fresh tracker
// and replays every logged event in order.
func (s *SessionService) rebuild(ctx context.Context, id string) (*liveSession, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == model.SessionFinished {
		return nil, ErrSessionFinished
	}

	tr, err := replayLog(sess, func() ([]json.RawMessage, error) {
		return s.events.List(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	ls := &liveSession{tr: tr}
	s.mu.Lock()
	// Another goroutine may have rebuilt concurrently; keep the first.
	if existing, ok := s.live[id]; ok {
		ls = existing
	} else {
		s.live[id] = ls
	}
	s.mu.Unlock()

	log.Info().Str("sessionId", id).Int("events", tr.Turn()).Msg("Session rebuilt from event log")
	return ls, nil
}

// RecoverActiveSessions rehydrates every active session's tracker from its
// Redis event log. Called once at startup.
func (s *SessionService) RecoverActiveSessions(ctx context.Context) error {
	sessions, err := s.sessions.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if _, err := s.rebuild(ctx, sess.ID); err != nil {
			log.Error().Err(err).Str("sessionId", sess.ID).Msg("Failed to recover session")
			continue
		}
	}
	log.Info().Int("sessions", len(sessions)).Msg("Active sessions recovered")
	return nil
}

// ReplayArchived rebuilds the final belief state of a finished session from
// its archived Postgres log and returns the resulting snapshot.
func (s *SessionService) ReplayArchived(ctx context.Context, id string, topK int) (tracker.DebugSnapshot, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return tracker.DebugSnapshot{}, err
	}

	records, err := s.sessions.ArchivedEvents(ctx, id)
	if err != nil {
		return tracker.DebugSnapshot{}, err
	}
	payloads := make([]json.RawMessage, len(records))
	for i, r := range records {
		payloads[i] = r.Payload
	}

	tr, err := replayLog(sess, func() ([]json.RawMessage, error) { return payloads, nil })
	if err != nil {
		return tracker.DebugSnapshot{}, err
	}
	return tr.Snapshot(topK), nil
}

// replayLog builds a fresh tracker for the session and applies every logged
// payload in order. Reset records in the log are informational and skipped
// by the engine itself.
func replayLog(sess *model.Session, load func() ([]json.RawMessage, error)) (*tracker.Tracker, error) {
	tr, err := tracker.New(sess.Players, tracker.Variant(sess.Variant))
	if err != nil {
		return nil, err
	}
	payloads, err := load()
	if err != nil {
		return nil, err
	}
	for i, p := range payloads {
		var ev tracker.Event
		if err := json.Unmarshal(p, &ev); err != nil {
			return nil, fmt.Errorf("decode logged event %d: %w", i+1, err)
		}
		if err := tr.Apply(ev); err != nil {
			return nil, fmt.Errorf("replay event %d (%s): %w", i+1, ev.Type, err)
		}
	}
	return tr, nil
}
