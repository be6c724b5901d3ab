package leaderboard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/WillSoph/top-game-score/internal/group"
	"github.com/WillSoph/top-game-score/internal/store"
)

// Reconciler periodically recomputes player totals from the answer log and
// rewrites any counter that drifted. The answer write and the total
// increment are not a single transaction, so a crash between them leaves the
// total under-counted; replaying the log is the idempotent repair.
type Reconciler struct {
	store    store.Store
	groups   *group.Service
	interval time.Duration
	logger   zerolog.Logger
}

// NewReconciler creates the worker. interval <= 0 defaults to one minute.
func NewReconciler(st store.Store, groups *group.Service, interval time.Duration, logger zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		store:    st,
		groups:   groups,
		interval: interval,
		logger:   logger.With().Str("component", "leaderboard_reconciler").Logger(),
	}
}

// Run blocks until context cancellation.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) {
	docs, err := r.store.ListDocuments(ctx, "groups")
	if err != nil {
		r.logger.Warn().Err(err).Msg("list groups failed")
		return
	}
	for _, doc := range docs {
		g := group.GroupFromDocument(doc)
		if g.Status == group.StatusDraft {
			continue
		}
		if err := r.ReconcileGroup(ctx, g.ID); err != nil {
			r.logger.Warn().Err(err).Str("group_id", g.ID).Msg("reconcile failed")
		}
	}
}

// ReconcileGroup replays one group's answer log into its player totals.
// Re-runnable: a total already in agreement is left untouched.
func (r *Reconciler) ReconcileGroup(ctx context.Context, groupID string) error {
	answers, err := r.groups.Answers(ctx, groupID)
	if err != nil {
		return err
	}
	players, err := r.groups.Players(ctx, groupID)
	if err != nil {
		return err
	}

	totals := TotalsFromAnswers(answers)
	for _, p := range players {
		want := totals[p.ID]
		if p.TotalScore == want {
			continue
		}
		err := r.store.SetDocument(ctx, group.PlayerPath(groupID, p.ID), store.Fields{"totalScore": want}, true)
		if err != nil {
			return err
		}
		r.logger.Info().
			Str("group_id", groupID).
			Str("player_id", p.ID).
			Int("stored", p.TotalScore).
			Int("recomputed", want).
			Msg("total score reconciled")
	}
	return nil
}
