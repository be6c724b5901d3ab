package billing

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/WillSoph/top-game-score/internal/identity"
	httperrors "github.com/WillSoph/top-game-score/pkg/http/errors"
)

// HTTPHandlers receives verified entitlement updates from the subscription
// backend.
type HTTPHandlers struct {
	service *Service
	logger  zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for billing endpoints.
func NewHTTPHandlers(service *Service, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		service: service,
		logger:  logger.With().Str("component", "billing_http").Logger(),
	}
}

// EntitlementRequest is the POST /v1/billing/entitlements payload.
type EntitlementRequest struct {
	UserID           string     `json:"userId"`
	Plan             string     `json:"plan"`
	Active           bool       `json:"active"`
	SubscriptionID   string     `json:"subscriptionId"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd"`
	CanceledAt       *time.Time `json:"canceledAt"`
}

// Apply handles POST /v1/billing/entitlements. Callers update their own
// entitlement; the userId field must match the authenticated principal.
func (h *HTTPHandlers) Apply(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}

	var req EntitlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	if req.UserID == "" {
		req.UserID = p.ID
	}
	if req.UserID != p.ID {
		httperrors.RespondForbidden(w, httperrors.ErrCodeForbidden, "Cannot update another account's entitlement")
		return
	}

	ent := Entitlement{
		UserID:           req.UserID,
		Plan:             req.Plan,
		Active:           req.Active,
		SubscriptionID:   req.SubscriptionID,
		CurrentPeriodEnd: req.CurrentPeriodEnd,
		CanceledAt:       req.CanceledAt,
	}
	if err := h.service.Apply(r.Context(), ent); err != nil {
		h.logger.Error().Err(err).Str("user_id", req.UserID).Msg("entitlement apply failed")
		httperrors.RespondBadGateway(w, httperrors.ErrCodeStorageFailure, "Storage backend failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"plan": ent.Plan, "active": ent.Active})
}
