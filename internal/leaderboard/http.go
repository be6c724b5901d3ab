package leaderboard

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/WillSoph/top-game-score/internal/group"
	httperrors "github.com/WillSoph/top-game-score/pkg/http/errors"
)

// HTTPHandler serves the ranked standings of one group.
type HTTPHandler struct {
	groups *group.Service
	logger zerolog.Logger
}

// NewHTTPHandler creates the leaderboard HTTP handler.
func NewHTTPHandler(groups *group.Service, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		groups: groups,
		logger: logger.With().Str("component", "leaderboard_http").Logger(),
	}
}

// LeaderboardResponse is the wire shape of GET /v1/groups/{id}/leaderboard.
type LeaderboardResponse struct {
	GroupID string  `json:"groupId"`
	Entries []Entry `json:"entries"`
}

// HandleGet handles GET /v1/groups/{id}/leaderboard. Ranks come from
// player documents; the source query parameter "answers" recomputes from
// the answer log instead, which survives lost score increments.
func (h *HTTPHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	ctx := r.Context()

	if _, err := h.groups.Get(ctx, groupID); err != nil {
		h.respondError(w, err)
		return
	}

	players, err := h.groups.Players(ctx, groupID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	var entries []Entry
	if r.URL.Query().Get("source") == "answers" {
		answers, err := h.groups.Answers(ctx, groupID)
		if err != nil {
			h.respondError(w, err)
			return
		}
		entries = RankFromAnswers(players, answers)
	} else {
		entries = Rank(players)
	}
	if entries == nil {
		entries = []Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LeaderboardResponse{GroupID: groupID, Entries: entries})
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, group.ErrNotFound) {
		httperrors.RespondNotFound(w, httperrors.ErrCodeGroupNotFound, "Group not found")
		return
	}
	h.logger.Error().Err(err).Msg("leaderboard read failed")
	httperrors.RespondBadGateway(w, httperrors.ErrCodeStorageFailure, "Storage backend failed")
}
