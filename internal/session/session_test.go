package session

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
	groups *group.Service
	store  *memory.Store
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
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) newGroup(t *testing.T, questions int, open bool) group.Group {
	t.Helper()
	ctx := context.Background()
	g, err := f.groups.Create(ctx, "host-1", "t", 20, "en")
	require.NoError(t, err)
	for i := 0; i < questions; i++ {
		_, err := f.groups.AddQuestion(ctx, g.ID, "host-1", "Q?", []string{"a", "b"}, 0)
		require.NoError(t, err)
	}
	if open {
		require.NoError(t, f.groups.Open(ctx, g.ID, "host-1"))
	}
	return g
}

func (f *fixture) startSession(t *testing.T, groupID string) *Session {
	t.Helper()
	cfg := Config{TickInterval: 5 * time.Millisecond, SettleDelay: 400 * time.Millisecond}
	sess := New(f.groups, f.store, groupID, "p1", cfg, zerolog.Nop())
	require.NoError(t, sess.Start(context.Background()))
	t.Cleanup(sess.Close)
	return sess
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	assert.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func TestSessionAnswersThroughToRanking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.newGroup(t, 2, true)
	require.NoError(t, f.groups.Join(ctx, g.ID, "p1", "Ana", "@ana"))

	sess := f.startSession(t, g.ID)
	assert.Equal(t, StateAnswering, sess.State())
	assert.Equal(t, 0, sess.QuestionIndex())

	res, err := sess.Submit(ctx, 0)
	require.NoError(t, err)
	assert.True(t, res.Correct)
	assert.Equal(t, StateAdvancing, sess.State())

	f.advance(time.Second)
	eventually(t, func() bool {
		return sess.State() == StateAnswering && sess.QuestionIndex() == 1
	}, "session should advance to the second question")

	_, err = sess.Submit(ctx, 1)
	require.NoError(t, err)

	f.advance(time.Second)
	eventually(t, func() bool { return sess.State() == StateRanking },
		"session should reach the ranking after the last question")

	_, err = sess.Submit(ctx, 0)
	assert.ErrorIs(t, err, ErrNotAnswering)
}

func TestSessionSynthesizesOneTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.newGroup(t, 2, true)
	require.NoError(t, f.groups.Join(ctx, g.ID, "p1", "Ana", "@ana"))

	sess := f.startSession(t, g.ID)
	require.Equal(t, StateAnswering, sess.State())

	f.advance(21 * time.Second)
	eventually(t, func() bool {
		answers, err := f.groups.PlayerAnswers(ctx, g.ID, "p1")
		return err == nil && len(answers) == 1
	}, "deadline should synthesize a timeout submission")

	answers, err := f.groups.PlayerAnswers(ctx, g.ID, "p1")
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Nil(t, answers[0].ChosenIndex)
	assert.False(t, answers[0].Correct)
	assert.Equal(t, 0, answers[0].ScoreAwarded)

	// The settle delay later it moves on; no second record for q0 appears.
	f.advance(time.Second)
	eventually(t, func() bool {
		return sess.State() == StateAnswering && sess.QuestionIndex() == 1
	}, "session should advance past the timed-out question")

	answers, err = f.groups.PlayerAnswers(ctx, g.ID, "p1")
	require.NoError(t, err)
	count := 0
	for _, a := range answers {
		if a.QIndex == 0 {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSessionWaitsForOpenThenReleases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.newGroup(t, 1, false)

	sess := f.startSession(t, g.ID)
	assert.Equal(t, StateJoinedWaiting, sess.State())

	_, err := sess.Submit(ctx, 0)
	assert.ErrorIs(t, err, ErrNotAnswering)

	require.NoError(t, f.groups.Open(ctx, g.ID, "host-1"))
	eventually(t, func() bool { return sess.State() == StateAnswering },
		"opening the group should release the waiting session")
	assert.Equal(t, 0, sess.QuestionIndex())
}

func TestSessionFinishPreemptsToRanking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.newGroup(t, 3, true)
	require.NoError(t, f.groups.Join(ctx, g.ID, "p1", "Ana", "@ana"))

	sess := f.startSession(t, g.ID)
	require.Equal(t, StateAnswering, sess.State())

	require.NoError(t, f.groups.Finish(ctx, g.ID, "host-1"))
	eventually(t, func() bool { return sess.State() == StateRanking },
		"finishing the group should preempt the session to the ranking")

	_, err := sess.Submit(ctx, 0)
	assert.ErrorIs(t, err, ErrNotAnswering)
}

func TestSessionResumeAfterAllAnswered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.newGroup(t, 2, true)
	require.NoError(t, f.groups.Join(ctx, g.ID, "p1", "Ana", "@ana"))

	for i := 0; i < 2; i++ {
		choice := 0
		_, err := f.groups.SubmitAnswer(ctx, g.ID, "p1", i, &choice)
		require.NoError(t, err)
	}

	sess := f.startSession(t, g.ID)
	assert.Equal(t, StateRanking, sess.State())

	_, err := sess.Submit(ctx, 0)
	assert.ErrorIs(t, err, ErrNotAnswering)
}

func TestSessionRemainingTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.newGroup(t, 1, true)
	require.NoError(t, f.groups.Join(ctx, g.ID, "p1", "Ana", "@ana"))

	sess := f.startSession(t, g.ID)
	assert.Equal(t, 20*time.Second, sess.RemainingTime())

	f.advance(8 * time.Second)
	assert.Equal(t, 12*time.Second, sess.RemainingTime())
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.newGroup(t, 1, true)
	require.NoError(t, f.groups.Join(ctx, g.ID, "p1", "Ana", "@ana"))

	sess := f.startSession(t, g.ID)
	sess.Close()
	sess.Close()

	// A closed session no longer reacts to group changes.
	require.NoError(t, f.groups.Finish(ctx, g.ID, "host-1"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateAnswering, sess.State())
}
