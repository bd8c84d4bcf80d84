package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/oddsworth/cardseer/internal/service"
	"github.com/oddsworth/cardseer/pkg/tracker"
)

// defaultTopK bounds how many worlds a snapshot response includes unless the
// client asks for more.
const defaultTopK = 10

// SessionHandler handles session lifecycle and belief-query endpoints.
type SessionHandler struct {
	svc *service.SessionService
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(svc *service.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// CreateSession handles POST /api/v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Players int    `json:"players"`
		Variant string `json:"variant,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Variant == "" {
		req.Variant = string(tracker.VariantBase)
	}

	sess, err := h.svc.Create(r.Context(), req.Players, req.Variant)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// ListSessions handles GET /api/v1/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.ListActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// GetSession handles GET /api/v1/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// ApplyEvent handles POST /api/v1/sessions/{id}/events — feeds one observed
// game event into the tracker and returns the refreshed belief snapshot.
func (h *SessionHandler) ApplyEvent(w http.ResponseWriter, r *http.Request) {
	var ev tracker.Event
	if err := decodeJSON(r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.svc.ApplyEvent(r.Context(), r.PathValue("id"), ev)
	if err != nil {
		if errors.Is(err, tracker.ErrInvalidPlayer) || errors.Is(err, tracker.ErrUnknownBuildKind) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetSnapshot handles GET /api/v1/sessions/{id}/snapshot
func (h *SessionHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	topK := defaultTopK
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "top must be a positive integer")
			return
		}
		topK = n
	}

	snap, err := h.svc.Snapshot(r.Context(), r.PathValue("id"), topK)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetMarginals handles GET /api/v1/sessions/{id}/players/{player}/marginals
func (h *SessionHandler) GetMarginals(w http.ResponseWriter, r *http.Request) {
	player, ok := h.playerParam(w, r)
	if !ok {
		return
	}
	m, err := h.svc.Marginals(r.Context(), r.PathValue("id"), player)
	if err != nil {
		if errors.Is(err, tracker.ErrInvalidPlayer) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetHand handles GET /api/v1/sessions/{id}/players/{player}/hand — the
// player's hand in the most probable hypothesis.
func (h *SessionHandler) GetHand(w http.ResponseWriter, r *http.Request) {
	player, ok := h.playerParam(w, r)
	if !ok {
		return
	}
	hand, err := h.svc.MostLikelyHand(r.Context(), r.PathValue("id"), player)
	if err != nil {
		if errors.Is(err, tracker.ErrInvalidPlayer) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"player": player, "hand": hand})
}

// GetConfidence handles GET /api/v1/sessions/{id}/players/{player}/confidence
func (h *SessionHandler) GetConfidence(w http.ResponseWriter, r *http.Request) {
	player, ok := h.playerParam(w, r)
	if !ok {
		return
	}
	conf, err := h.svc.Confidence(r.Context(), r.PathValue("id"), player)
	if err != nil {
		if errors.Is(err, tracker.ErrInvalidPlayer) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"player": player, "confidence": conf})
}

// FinishSession handles POST /api/v1/sessions/{id}/finish — archives the
// event log to Postgres and releases the live tracker.
func (h *SessionHandler) FinishSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Finish(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "finished"})
}

// ReplaySession handles GET /api/v1/sessions/{id}/replay — rebuilds a
// finished session's final belief state from the archived log.
func (h *SessionHandler) ReplaySession(w http.ResponseWriter, r *http.Request) {
	topK := defaultTopK
	if v := r.URL.Query().Get("top"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			topK = n
		}
	}
	snap, err := h.svc.ReplayArchived(r.Context(), r.PathValue("id"), topK)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *SessionHandler) playerParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	player, err := strconv.Atoi(r.PathValue("player"))
	if err != nil || player < 1 {
		writeError(w, http.StatusBadRequest, "player must be a positive integer")
		return 0, false
	}
	return player, true
}

func (h *SessionHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, service.ErrSessionFinished):
		writeError(w, http.StatusConflict, "session is finished")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
