package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/oddsworth/cardseer/internal/model"
	"github.com/oddsworth/cardseer/internal/repository"
	"github.com/oddsworth/cardseer/pkg/tracker"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionFinished = errors.New("session is finished")
)

// Broadcaster pushes session events to subscribed overlay clients.
type Broadcaster interface {
	BroadcastSessionEvent(sessionID string, eventType string, data any)
}

// Event types pushed to overlay clients.
const (
	PushSnapshot    = "snapshot"
	PushBeliefReset = "belief_reset"
	PushFinished    = "session_finished"
)

// snapshotTopK is how many worlds a pushed snapshot includes.
const snapshotTopK = 5

// liveSession pairs a tracker with the lock that serializes its mutations.
// The engine itself has no internal synchronization; every mutating or
// querying call goes through this mutex.
type liveSession struct {
	mu sync.Mutex
	tr *tracker.Tracker
}

// SessionService owns one live tracker per active session. Events arriving
// over HTTP are applied to the tracker, appended to the Redis event log, and
// the refreshed belief snapshot is broadcast to subscribers. The tracker is
// never persisted: after a restart it is rebuilt by replaying the log.
type SessionService struct {
	mu   sync.RWMutex
	live map[string]*liveSession

	sessions repository.SessionRepository
	events   repository.EventLog
	hub      Broadcaster
}

// NewSessionService creates a SessionService.
func NewSessionService(sessions repository.SessionRepository, events repository.EventLog, hub Broadcaster) *SessionService {
	return &SessionService{
		live:     make(map[string]*liveSession),
		sessions: sessions,
		events:   events,
		hub:      hub,
	}
}

// Create starts a new tracked session.
func (s *SessionService) Create(ctx context.Context, players int, variant string) (*model.Session, error) {
	tr, err := tracker.New(players, tracker.Variant(variant))
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	sess, err := s.sessions.Create(ctx, id, players, variant)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.live[id] = &liveSession{tr: tr}
	s.mu.Unlock()

	log.Info().Str("sessionId", id).Int("players", players).Str("variant", variant).Msg("Session created")
	return sess, nil
}

// Get returns the session row.
func (s *SessionService) Get(ctx context.Context, id string) (*model.Session, error) {
	sess, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// ListActive returns all sessions that have not been finished.
func (s *SessionService) ListActive(ctx context.Context) ([]model.Session, error) {
	return s.sessions.ListActive(ctx)
}

// ApplyEvent feeds one observed game event into the session's tracker,
// persists it to the append-only log, and broadcasts the refreshed snapshot.
// Structural errors from the engine (unknown build kind, bad player id) are
// returned to the caller and nothing is persisted.
func (s *SessionService) ApplyEvent(ctx context.Context, id string, ev tracker.Event) (tracker.DebugSnapshot, error) {
	ls, err := s.liveFor(ctx, id)
	if err != nil {
		return tracker.DebugSnapshot{}, err
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	resetsBefore := ls.tr.Resets()
	if err := ls.tr.Apply(ev); err != nil {
		return tracker.DebugSnapshot{}, err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return tracker.DebugSnapshot{}, fmt.Errorf("marshal event: %w", err)
	}
	if _, err := s.events.Append(ctx, id, payload); err != nil {
		// The tracker already advanced; losing the log entry would desync
		// replay. Surface loudly.
		log.Error().Err(err).Str("sessionId", id).Msg("Failed to append event to log")
		return tracker.DebugSnapshot{}, err
	}

	if resets := ls.tr.Resets(); resets > resetsBefore {
		// Escape valve fired: the event was inconsistent with every
		// hypothesis and the distribution was forcibly recovered. The belief
		// state is best-effort from here on.
		log.Warn().Str("sessionId", id).Str("event", string(ev.Type)).Int("resets", resets).
			Msg("Belief distribution reset by inconsistent event")
		s.hub.BroadcastSessionEvent(id, PushBeliefReset, map[string]any{"resets": resets})
	}

	snap := ls.tr.Snapshot(snapshotTopK)
	s.cacheAndBroadcast(ctx, id, snap)
	return snap, nil
}

// Snapshot returns the current belief snapshot for a session.
func (s *SessionService) Snapshot(ctx context.Context, id string, topK int) (tracker.DebugSnapshot, error) {
	ls, err := s.liveFor(ctx, id)
	if err != nil {
		return tracker.DebugSnapshot{}, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.tr.Snapshot(topK), nil
}

// Marginals returns the per-card belief summary for one player.
func (s *SessionService) Marginals(ctx context.Context, id string, player int) (tracker.PlayerMarginals, error) {
	ls, err := s.liveFor(ctx, id)
	if err != nil {
		return tracker.PlayerMarginals{}, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.tr.Marginals(tracker.Player(player))
}

// MostLikelyHand returns the player's hand in the top hypothesis as a
// card→count map.
func (s *SessionService) MostLikelyHand(ctx context.Context, id string, player int) (map[tracker.Card]int, error) {
	ls, err := s.liveFor(ctx, id)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	h, err := ls.tr.MostLikelyHand(tracker.Player(player))
	if err != nil {
		return nil, err
	}
	return h.Counts(), nil
}

// Confidence returns the 0..1 belief-concentration heuristic for a player.
func (s *SessionService) Confidence(ctx context.Context, id string, player int) (float64, error) {
	ls, err := s.liveFor(ctx, id)
	if err != nil {
		return 0, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.tr.Confidence(tracker.Player(player))
}

// Finish archives the session: the Redis log is copied to Postgres, the
// session row is marked finished, and the live tracker is released.
func (s *SessionService) Finish(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.Status == model.SessionFinished {
		return ErrSessionFinished
	}

	payloads, err := s.events.List(ctx, id)
	if err != nil {
		return err
	}
	records := make([]model.EventRecord, len(payloads))
	for i, p := range payloads {
		records[i] = model.EventRecord{SessionID: id, Seq: i + 1, Payload: p}
	}
	if err := s.sessions.ArchiveEvents(ctx, id, records); err != nil {
		return err
	}
	if err := s.sessions.SetFinished(ctx, id, len(records)); err != nil {
		return err
	}
	if err := s.events.Delete(ctx, id); err != nil {
		log.Warn().Err(err).Str("sessionId", id).Msg("Failed to delete Redis log after archive")
	}

	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()

	s.hub.BroadcastSessionEvent(id, PushFinished, map[string]any{"events": len(records)})
	log.Info().Str("sessionId", id).Int("events", len(records)).Msg("Session finished and archived")
	return nil
}

// liveFor returns the live tracker for a session, rebuilding it from the
// event log if the process restarted since the session was created.
func (s *SessionService) liveFor(ctx context.Context, id string) (*liveSession, error) {
	s.mu.RLock()
	ls, ok := s.live[id]
	s.mu.RUnlock()
	if ok {
		return ls, nil
	}
	return s.rebuild(ctx, id)
}

func (s *SessionService) cacheAndBroadcast(ctx context.Context, id string, snap tracker.DebugSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Error().Err(err).Str("sessionId", id).Msg("Failed to marshal snapshot")
		return
	}
	if err := s.events.SetSnapshot(ctx, id, data); err != nil {
		log.Warn().Err(err).Str("sessionId", id).Msg("Failed to cache snapshot")
	}
	s.hub.BroadcastSessionEvent(id, PushSnapshot, json.RawMessage(data))
}
