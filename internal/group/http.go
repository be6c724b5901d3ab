package group

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/WillSoph/top-game-score/internal/identity"
	httperrors "github.com/WillSoph/top-game-score/pkg/http/errors"
)

// HTTPHandlers provides REST endpoints for group operations.
type HTTPHandlers struct {
	service *Service
	logger  zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for group endpoints.
func NewHTTPHandlers(service *Service, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		service: service,
		logger:  logger.With().Str("component", "group_http").Logger(),
	}
}

// CreateGroupRequest is the POST /v1/groups payload.
type CreateGroupRequest struct {
	Title      string `json:"title"`
	MaxTimeSec int    `json:"maxTimeSec"`
	Locale     string `json:"locale"`
}

// AddQuestionRequest is the POST /v1/groups/{id}/questions payload.
type AddQuestionRequest struct {
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
}

// StartQuestionRequest is the POST /v1/groups/{id}/start payload.
type StartQuestionRequest struct {
	QuestionIndex int `json:"questionIndex"`
}

// JoinRequest is the POST /v1/groups/{id}/join payload.
type JoinRequest struct {
	Name   string `json:"name"`
	Handle string `json:"handle"`
}

// SubmitAnswerRequest is the POST /v1/groups/{id}/answers payload. A null
// chosenIndex records a timeout.
type SubmitAnswerRequest struct {
	QuestionIndex int  `json:"questionIndex"`
	ChosenIndex   *int `json:"chosenIndex"`
}

// GroupResponse is the wire shape of a group.
type GroupResponse struct {
	ID                   string     `json:"id"`
	HostUID              string     `json:"hostUid,omitempty"`
	Title                string     `json:"title"`
	Code                 string     `json:"code"`
	Locale               string     `json:"locale,omitempty"`
	Status               string     `json:"status"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	RoundStartedAt       *time.Time `json:"roundStartedAt,omitempty"`
	MaxTimeSec           int        `json:"maxTimeSec"`
	Plan                 string     `json:"plan"`
	ExpiresAt            *time.Time `json:"expiresAt,omitempty"`
	QuestionCount        int        `json:"questionCount"`
}

func groupResponse(g Group) GroupResponse {
	return GroupResponse{
		ID:                   g.ID,
		HostUID:              g.HostID,
		Title:                g.Title,
		Code:                 g.Code,
		Locale:               g.Locale,
		Status:               g.Status,
		CurrentQuestionIndex: g.CurrentQuestionIndex,
		RoundStartedAt:       g.RoundStartedAt,
		MaxTimeSec:           g.MaxTimeSec,
		Plan:                 g.Plan,
		ExpiresAt:            g.ExpiresAt,
		QuestionCount:        g.QuestionCount,
	}
}

// Create handles POST /v1/groups.
func (h *HTTPHandlers) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}

	g, err := h.service.Create(r.Context(), p.ID, req.Title, req.MaxTimeSec, req.Locale)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, groupResponse(g))
}

// Get handles GET /v1/groups/{id}.
func (h *HTTPHandlers) Get(w http.ResponseWriter, r *http.Request) {
	g, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, groupResponse(g))
}

// ClaimHost handles POST /v1/groups/{id}/claim.
func (h *HTTPHandlers) ClaimHost(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}
	if err := h.service.ClaimHost(r.Context(), r.PathValue("id"), p.ID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"hostUid": p.ID})
}

// AddQuestion handles POST /v1/groups/{id}/questions.
func (h *HTTPHandlers) AddQuestion(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}

	var req AddQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}

	q, err := h.service.AddQuestion(r.Context(), r.PathValue("id"), p.ID, req.Text, req.Options, req.CorrectIndex)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]any{"index": q.Index})
}

// Open handles POST /v1/groups/{id}/open.
func (h *HTTPHandlers) Open(w http.ResponseWriter, r *http.Request) {
	h.hostTransition(w, r, h.service.Open)
}

// Finish handles POST /v1/groups/{id}/finish.
func (h *HTTPHandlers) Finish(w http.ResponseWriter, r *http.Request) {
	h.hostTransition(w, r, h.service.Finish)
}

// StartQuestion handles POST /v1/groups/{id}/start.
func (h *HTTPHandlers) StartQuestion(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}

	var req StartQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}

	if err := h.service.StartQuestion(r.Context(), r.PathValue("id"), p.ID, req.QuestionIndex); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"questionIndex": req.QuestionIndex})
}

// Join handles POST /v1/groups/{id}/join.
func (h *HTTPHandlers) Join(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}

	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}

	if err := h.service.Join(r.Context(), r.PathValue("id"), p.ID, req.Name, req.Handle); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"playerId": p.ID})
}

// SubmitAnswer handles POST /v1/groups/{id}/answers. A duplicate submission
// is not an error: the stored result comes back with duplicate set.
func (h *HTTPHandlers) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}

	var req SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}

	result, err := h.service.SubmitAnswer(r.Context(), r.PathValue("id"), p.ID, req.QuestionIndex, req.ChosenIndex)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

func (h *HTTPHandlers) hostTransition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, groupID, callerID string) error) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}
	if err := op(r.Context(), r.PathValue("id"), p.ID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	g, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, groupResponse(g))
}

// respondServiceError maps domain errors onto the HTTP error envelope.
func (h *HTTPHandlers) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httperrors.RespondBadRequest(w, httperrors.ErrCodeValidationFailed, err.Error())
	case errors.Is(err, ErrForbidden):
		httperrors.RespondForbidden(w, httperrors.ErrCodeForbidden, "Caller is not the group host")
	case errors.Is(err, ErrPlanLimit):
		httperrors.RespondForbidden(w, httperrors.ErrCodePlanLimit, "Free plan question limit reached")
	case errors.Is(err, ErrNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeGroupNotFound, "Group not found")
	case errors.Is(err, ErrQuestionNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeQuestionNotFound, "Question not found")
	case errors.Is(err, ErrInvalidState):
		httperrors.RespondConflict(w, httperrors.ErrCodeInvalidState, err.Error())
	case errors.Is(err, ErrGroupNotOpen):
		httperrors.RespondConflict(w, httperrors.ErrCodeGroupNotOpen, "Group is not open for play")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("storage failure")
		httperrors.RespondBadGateway(w, httperrors.ErrCodeStorageFailure, "Storage backend failed")
	}
}

func (h *HTTPHandlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
