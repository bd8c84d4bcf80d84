package handler

import (
	"net/http"

	"github.com/oddsworth/cardseer/internal/auth"
)

// AuthHandler issues API tokens to overlay clients.
type AuthHandler struct {
	jwtMgr *auth.JWTManager
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(jwtMgr *auth.JWTManager) *AuthHandler {
	return &AuthHandler{jwtMgr: jwtMgr}
}

// IssueToken handles POST /api/v1/auth/token — mints a signed token for the
// named client. There is no identity provider; anyone who can reach this
// endpoint gets a token, so it is meant for local and trusted deployments.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID string `json:"client_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}

	token, err := h.jwtMgr.GenerateToken(req.ClientID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
