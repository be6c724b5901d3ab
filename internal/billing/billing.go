// Package billing is the boundary to the subscription provider. Checkout
// and webhook verification happen outside this service; what arrives here is
// the already-verified outcome: an entitlement per account. The package
// mirrors that state onto the user document and the user's groups, and
// sweeps expired free groups.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/WillSoph/top-game-score/internal/group"
	"github.com/WillSoph/top-game-score/internal/store"
)

// Entitlement is the provider-neutral subscription state for one account.
type Entitlement struct {
	UserID           string
	Plan             string // group.PlanFree or group.PlanPro
	Active           bool
	SubscriptionID   string
	CurrentPeriodEnd *time.Time
	CanceledAt       *time.Time
}

// Service applies entitlement changes to the document store.
type Service struct {
	store        store.Store
	groups       *group.Service
	freeGroupTTL time.Duration
	logger       zerolog.Logger
}

// NewService creates the billing sync service.
func NewService(st store.Store, groups *group.Service, freeGroupTTL time.Duration, logger zerolog.Logger) *Service {
	if freeGroupTTL <= 0 {
		freeGroupTTL = 7 * 24 * time.Hour
	}
	return &Service{
		store:        st,
		groups:       groups,
		freeGroupTTL: freeGroupTTL,
		logger:       logger.With().Str("component", "billing").Logger(),
	}
}

// Apply mirrors an entitlement onto users/{uid} and re-plans the user's
// groups: an active pro subscription lifts expiry, anything else reverts the
// groups to the free tier with a fresh TTL.
func (s *Service) Apply(ctx context.Context, ent Entitlement) error {
	if ent.UserID == "" {
		return fmt.Errorf("entitlement without user id")
	}
	pro := ent.Plan == group.PlanPro && ent.Active

	fields := store.Fields{
		"plan":   ent.Plan,
		"active": ent.Active,
	}
	if ent.SubscriptionID != "" {
		fields["subscriptionId"] = ent.SubscriptionID
	}
	if ent.CurrentPeriodEnd != nil {
		fields["currentPeriodEnd"] = *ent.CurrentPeriodEnd
	}
	if ent.CanceledAt != nil {
		fields["canceledAt"] = *ent.CanceledAt
	} else {
		fields["canceledAt"] = nil
	}
	if err := s.store.SetDocument(ctx, group.UserPath(ent.UserID), fields, true); err != nil {
		return fmt.Errorf("sync user plan: %w", err)
	}

	if err := s.replanGroups(ctx, ent.UserID, pro); err != nil {
		return err
	}

	s.logger.Info().
		Str("user_id", ent.UserID).
		Str("plan", ent.Plan).
		Bool("active", ent.Active).
		Msg("entitlement applied")
	return nil
}

func (s *Service) replanGroups(ctx context.Context, userID string, pro bool) error {
	docs, err := s.store.QueryEquals(ctx, "groups", "hostUid", userID, 0)
	if err != nil {
		return fmt.Errorf("list host groups: %w", err)
	}
	for _, doc := range docs {
		g := group.GroupFromDocument(doc)
		fields := store.Fields{}
		if pro {
			if g.Plan != group.PlanPro || g.ExpiresAt != nil {
				fields["plan"] = group.PlanPro
				fields["expiresAt"] = nil
			}
		} else {
			if g.Plan != group.PlanFree || g.ExpiresAt == nil {
				fields["plan"] = group.PlanFree
				fields["expiresAt"] = s.store.ServerInstant().Add(s.freeGroupTTL)
			}
		}
		if len(fields) == 0 {
			continue
		}
		if err := s.store.SetDocument(ctx, group.Path(g.ID), fields, true); err != nil {
			return fmt.Errorf("replan group %s: %w", g.ID, err)
		}
	}
	return nil
}

// ExpirySweeper deletes free groups past their expiresAt, together with
// their questions, players and answers.
type ExpirySweeper struct {
	store    store.Store
	groups   *group.Service
	interval time.Duration
	logger   zerolog.Logger
}

// NewExpirySweeper creates the worker. interval <= 0 defaults to one hour.
func NewExpirySweeper(st store.Store, groups *group.Service, interval time.Duration, logger zerolog.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ExpirySweeper{
		store:    st,
		groups:   groups,
		interval: interval,
		logger:   logger.With().Str("component", "expiry_sweeper").Logger(),
	}
}

// Run blocks until context cancellation.
func (w *ExpirySweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.logger.Warn().Err(err).Msg("sweep failed")
			}
		}
	}
}

// Sweep deletes every expired free group. Pro groups never carry expiresAt
// and are skipped by construction.
func (w *ExpirySweeper) Sweep(ctx context.Context) error {
	docs, err := w.store.ListDocuments(ctx, "groups")
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	now := w.store.ServerInstant()
	for _, doc := range docs {
		g := group.GroupFromDocument(doc)
		if g.ExpiresAt == nil || now.Before(*g.ExpiresAt) {
			continue
		}
		if err := w.groups.Delete(ctx, g.ID); err != nil {
			w.logger.Warn().Err(err).Str("group_id", g.ID).Msg("expired group delete failed")
			continue
		}
		w.logger.Info().Str("group_id", g.ID).Time("expired_at", *g.ExpiresAt).Msg("expired group deleted")
	}
	return nil
}
