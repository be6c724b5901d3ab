package identity

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	httperrors "github.com/WillSoph/top-game-score/pkg/http/errors"
)

// HTTPHandlers serves token issuance endpoints.
type HTTPHandlers struct {
	manager *Manager
	logger  zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for identity endpoints.
func NewHTTPHandlers(manager *Manager, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		manager: manager,
		logger:  logger.With().Str("component", "identity_http").Logger(),
	}
}

// TokenResponse is the wire shape of an issued token.
type TokenResponse struct {
	UID   string `json:"uid"`
	Token string `json:"token"`
	Kind  string `json:"kind"`
}

// Anonymous handles POST /v1/identity/anonymous. Every visitor gets a fresh
// guest principal; there is no signup flow.
func (h *HTTPHandlers) Anonymous(w http.ResponseWriter, r *http.Request) {
	p, token, err := h.manager.IssueGuest()
	if err != nil {
		h.logger.Error().Err(err).Msg("guest token issuance failed")
		httperrors.RespondInternalError(w, "Token issuance failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(TokenResponse{UID: p.ID, Token: token, Kind: p.Kind})
}
