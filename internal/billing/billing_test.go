package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WillSoph/top-game-score/internal/group"
	"github.com/WillSoph/top-game-score/internal/store/memory"
)

type fixture struct {
	store  *memory.Store
	groups *group.Service
	svc    *Service
	now    time.Time
	mu     sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.New(),
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.store.SetClock(func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.now
	})
	f.groups = group.NewService(f.store, group.Options{}, zerolog.Nop())
	f.svc = NewService(f.store, f.groups, 7*24*time.Hour, zerolog.Nop())
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestApplyProLiftsGroupExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.groups.Create(ctx, "host-1", "t", 20, "en")
	require.NoError(t, err)
	require.NotNil(t, g.ExpiresAt)

	end := f.now.Add(30 * 24 * time.Hour)
	err = f.svc.Apply(ctx, Entitlement{
		UserID:           "host-1",
		Plan:             group.PlanPro,
		Active:           true,
		SubscriptionID:   "sub_123",
		CurrentPeriodEnd: &end,
	})
	require.NoError(t, err)

	stored, err := f.groups.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, group.PlanPro, stored.Plan)
	assert.Nil(t, stored.ExpiresAt)

	// New groups of the same host are born pro.
	g2, err := f.groups.Create(ctx, "host-1", "t2", 20, "en")
	require.NoError(t, err)
	assert.Equal(t, group.PlanPro, g2.Plan)
	assert.Nil(t, g2.ExpiresAt)
}

func TestApplyCancellationRevertsToFreeWithFreshTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Apply(ctx, Entitlement{UserID: "host-1", Plan: group.PlanPro, Active: true}))
	g, err := f.groups.Create(ctx, "host-1", "t", 20, "en")
	require.NoError(t, err)
	require.Nil(t, g.ExpiresAt)

	f.advance(24 * time.Hour)
	canceled := f.now
	err = f.svc.Apply(ctx, Entitlement{
		UserID:     "host-1",
		Plan:       group.PlanFree,
		Active:     false,
		CanceledAt: &canceled,
	})
	require.NoError(t, err)

	stored, err := f.groups.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, group.PlanFree, stored.Plan)
	require.NotNil(t, stored.ExpiresAt)
	assert.Equal(t, f.now.Add(7*24*time.Hour), *stored.ExpiresAt)
}

func TestApplyRequiresUserID(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.svc.Apply(context.Background(), Entitlement{Plan: group.PlanPro, Active: true}))
}

func TestSweepDeletesOnlyExpiredGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expired, err := f.groups.Create(ctx, "host-1", "old", 20, "en")
	require.NoError(t, err)

	f.advance(8 * 24 * time.Hour)
	fresh, err := f.groups.Create(ctx, "host-1", "new", 20, "en")
	require.NoError(t, err)

	sweeper := NewExpirySweeper(f.store, f.groups, time.Hour, zerolog.Nop())
	require.NoError(t, sweeper.Sweep(ctx))

	_, err = f.groups.Get(ctx, expired.ID)
	assert.ErrorIs(t, err, group.ErrNotFound)
	_, err = f.groups.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestSweepSkipsProGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Apply(ctx, Entitlement{UserID: "host-1", Plan: group.PlanPro, Active: true}))
	g, err := f.groups.Create(ctx, "host-1", "t", 20, "en")
	require.NoError(t, err)

	f.advance(365 * 24 * time.Hour)
	sweeper := NewExpirySweeper(f.store, f.groups, time.Hour, zerolog.Nop())
	require.NoError(t, sweeper.Sweep(ctx))

	_, err = f.groups.Get(ctx, g.ID)
	assert.NoError(t, err)
}
