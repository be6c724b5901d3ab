package leaderboard

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WillSoph/top-game-score/internal/group"
	"github.com/WillSoph/top-game-score/internal/store"
	"github.com/WillSoph/top-game-score/internal/store/memory"
)

func setupGroup(t *testing.T) (*memory.Store, *group.Service, group.Group) {
	t.Helper()
	st := memory.New()
	groups := group.NewService(st, group.Options{}, zerolog.Nop())
	ctx := context.Background()

	g, err := groups.Create(ctx, "host-1", "t", 20, "en")
	require.NoError(t, err)
	_, err = groups.AddQuestion(ctx, g.ID, "host-1", "Q?", []string{"a", "b"}, 0)
	require.NoError(t, err)
	require.NoError(t, groups.Open(ctx, g.ID, "host-1"))
	require.NoError(t, groups.Join(ctx, g.ID, "p1", "Ana", "@ana"))
	return st, groups, g
}

func TestReconcileRepairsDriftedTotal(t *testing.T) {
	st, groups, g := setupGroup(t)
	ctx := context.Background()

	choice := 0
	res, err := groups.SubmitAnswer(ctx, g.ID, "p1", 0, &choice)
	require.NoError(t, err)

	// Simulate a crash between the answer write and the increment: the
	// counter is reset while the log keeps the score.
	err = st.SetDocument(ctx, group.PlayerPath(g.ID, "p1"), store.Fields{"totalScore": 0}, true)
	require.NoError(t, err)

	r := NewReconciler(st, groups, time.Minute, zerolog.Nop())
	require.NoError(t, r.ReconcileGroup(ctx, g.ID))

	p, err := groups.Player(ctx, g.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, res.ScoreAwarded, p.TotalScore)
}

func TestReconcileIsIdempotent(t *testing.T) {
	st, groups, g := setupGroup(t)
	ctx := context.Background()

	choice := 0
	res, err := groups.SubmitAnswer(ctx, g.ID, "p1", 0, &choice)
	require.NoError(t, err)

	r := NewReconciler(st, groups, time.Minute, zerolog.Nop())
	require.NoError(t, r.ReconcileGroup(ctx, g.ID))
	require.NoError(t, r.ReconcileGroup(ctx, g.ID))

	p, err := groups.Player(ctx, g.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, res.ScoreAwarded, p.TotalScore)
}

func TestReconcileZeroesOrphanedCounter(t *testing.T) {
	st, groups, g := setupGroup(t)
	ctx := context.Background()

	// A counter with no supporting log entries is rewritten to zero.
	err := st.SetDocument(ctx, group.PlayerPath(g.ID, "p1"), store.Fields{"totalScore": 4200}, true)
	require.NoError(t, err)

	r := NewReconciler(st, groups, time.Minute, zerolog.Nop())
	require.NoError(t, r.ReconcileGroup(ctx, g.ID))

	p, err := groups.Player(ctx, g.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.TotalScore)
}
