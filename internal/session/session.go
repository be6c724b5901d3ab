// Package session drives one player's passage through a quiz: join,
// answer-or-timeout on each question, advance, finish on the ranking. Each
// session is an independent state machine owning its store subscription and
// poll timer; both are released on Close.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/WillSoph/top-game-score/internal/group"
	"github.com/WillSoph/top-game-score/internal/store"
)

// State of a player session.
type State string

const (
	StateJoinedWaiting State = "joined-waiting"
	StateAnswering     State = "answering"
	StateAdvancing     State = "advancing"
	StateRanking       State = "ranking"
)

// ErrAlreadyAnswered is returned when the player already handled the current
// question (answered or timed out).
var ErrAlreadyAnswered = errors.New("current question already answered")

// ErrNotAnswering is returned when Submit is called outside the answering
// state.
var ErrNotAnswering = errors.New("session is not answering")

// Config tunes the session timers.
type Config struct {
	TickInterval time.Duration // poll resolution, default 250ms
	SettleDelay  time.Duration // pause between questions, default 400ms
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 250 * time.Millisecond
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 400 * time.Millisecond
	}
	return c
}

// Session is one player's live run through a group's questions.
type Session struct {
	groups   *group.Service
	store    store.Store
	groupID  string
	playerID string
	cfg      Config
	logger   zerolog.Logger

	mu            sync.Mutex
	state         State
	qIndex        int
	questionCount int
	maxTime       time.Duration
	roundStart    time.Time
	advanceAt     time.Time
	handled       bool // current question answered or timed out
	groupOpen     bool

	unsub  func()
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// New creates a session for a player who has already joined the group.
func New(groups *group.Service, st store.Store, groupID, playerID string, cfg Config, logger zerolog.Logger) *Session {
	return &Session{
		groups:   groups,
		store:    st,
		groupID:  groupID,
		playerID: playerID,
		cfg:      cfg.withDefaults(),
		logger: logger.With().
			Str("component", "session").
			Str("group_id", groupID).
			Str("player_id", playerID).
			Logger(),
		state: StateJoinedWaiting,
		done:  make(chan struct{}),
	}
}

// Start attaches the group watch and begins the timer loop. A returning
// player whose answer log already covers every question is routed straight
// to the ranking and can never submit again.
func (s *Session) Start(ctx context.Context) error {
	g, err := s.groups.Get(ctx, s.groupID)
	if err != nil {
		return err
	}
	questions, err := s.groups.Questions(ctx, s.groupID)
	if err != nil {
		return err
	}
	answered, err := s.answeredIndexes(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	unsub, err := s.store.Subscribe(ctx, group.Path(s.groupID), s.onGroupChange)
	if err != nil {
		cancel()
		return err
	}

	s.mu.Lock()
	s.cancel = cancel
	s.unsub = unsub
	s.questionCount = len(questions)
	s.maxTime = g.QuestionBudget()
	s.groupOpen = g.Status == group.StatusOpen

	switch {
	case len(answered) >= s.questionCount && s.questionCount > 0:
		s.state = StateRanking
	case g.Status == group.StatusFinished:
		s.state = StateRanking
	case g.Status == group.StatusOpen:
		s.beginQuestionLocked(ctx, 0)
	default:
		s.state = StateJoinedWaiting
	}
	s.mu.Unlock()

	go s.run(runCtx)
	return nil
}

// State returns the current machine state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// QuestionIndex returns the question the session currently faces.
func (s *Session) QuestionIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qIndex
}

// RemainingTime reports how long the player still has on the current
// question; zero outside the answering state.
func (s *Session) RemainingTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAnswering {
		return 0
	}
	remaining := s.maxTime - s.store.ServerInstant().Sub(s.roundStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Submit scores the player's choice for the current question and schedules
// the advance. A second call for the same question fails locally with
// ErrAlreadyAnswered; the store-side guard would refuse it anyway.
func (s *Session) Submit(ctx context.Context, chosenIndex int) (group.Result, error) {
	s.mu.Lock()
	if s.state != StateAnswering {
		s.mu.Unlock()
		return group.Result{}, ErrNotAnswering
	}
	if s.handled {
		s.mu.Unlock()
		return group.Result{}, ErrAlreadyAnswered
	}
	s.handled = true
	qIndex := s.qIndex
	s.mu.Unlock()

	res, err := s.groups.SubmitAnswer(ctx, s.groupID, s.playerID, qIndex, &chosenIndex)
	if err != nil {
		// Roll the optimistic "answered" flag back so the player may retry
		// until the deadline.
		s.mu.Lock()
		s.handled = false
		s.mu.Unlock()
		return group.Result{}, err
	}

	s.scheduleAdvance()
	return res, nil
}

// Close tears the session down: the group watch is unsubscribed and the
// timer loop stopped. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsub, cancel := s.unsub, s.cancel
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
		<-s.done
	}
}

// run is the repeating poll recomputing remaining time. It fires the
// timeout submission at most once per question and performs the delayed
// advance between questions.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Session) tick(ctx context.Context) {
	now := s.store.ServerInstant()

	s.mu.Lock()
	state := s.state
	timedOut := state == StateAnswering && !s.handled && s.groupOpen &&
		now.Sub(s.roundStart) >= s.maxTime
	if timedOut {
		s.handled = true
	}
	advance := state == StateAdvancing && !now.Before(s.advanceAt)
	qIndex := s.qIndex
	s.mu.Unlock()

	if timedOut {
		s.submitTimeout(ctx, qIndex)
		s.scheduleAdvance()
		return
	}
	if advance {
		s.advance(ctx)
	}
}

func (s *Session) submitTimeout(ctx context.Context, qIndex int) {
	if _, err := s.groups.SubmitAnswer(ctx, s.groupID, s.playerID, qIndex, nil); err != nil {
		s.logger.Warn().Err(err).Int("q_index", qIndex).Msg("timeout submission failed")
	} else {
		s.logger.Info().Int("q_index", qIndex).Msg("question timed out")
	}
}

func (s *Session) scheduleAdvance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAnswering {
		return
	}
	s.state = StateAdvancing
	s.advanceAt = s.store.ServerInstant().Add(s.cfg.SettleDelay)
}

func (s *Session) advance(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateAdvancing {
		s.mu.Unlock()
		return
	}
	next := s.qIndex + 1
	if next >= s.questionCount {
		s.state = StateRanking
		s.mu.Unlock()
		s.logger.Info().Msg("all questions answered")
		return
	}
	s.beginQuestionLocked(ctx, next)
	s.mu.Unlock()
}

// beginQuestionLocked resets the per-question state and stamps a fresh
// server-side round start. Caller holds the lock.
func (s *Session) beginQuestionLocked(ctx context.Context, qIndex int) {
	s.qIndex = qIndex
	s.handled = false
	s.state = StateAnswering

	start, err := s.groups.MarkRoundStart(ctx, s.groupID, s.playerID)
	if err != nil {
		s.logger.Warn().Err(err).Int("q_index", qIndex).Msg("round start mark failed")
		start = s.store.ServerInstant()
	}
	s.roundStart = start
}

// onGroupChange reacts to committed writes on the group document. A finished
// group preempts everything to the ranking; an opening group releases a
// waiting player into the first question.
func (s *Session) onGroupChange(doc store.Document) {
	g := group.GroupFromDocument(doc)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.groupOpen = g.Status == group.StatusOpen
	switch g.Status {
	case group.StatusFinished:
		s.state = StateRanking
	case group.StatusOpen:
		if s.state == StateJoinedWaiting {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.beginQuestionLocked(ctx, 0)
			cancel()
		}
	}
}

func (s *Session) answeredIndexes(ctx context.Context) (map[int]bool, error) {
	answers, err := s.groups.PlayerAnswers(ctx, s.groupID, s.playerID)
	if err != nil {
		return nil, err
	}
	out := make(map[int]bool, len(answers))
	for _, a := range answers {
		out[a.QIndex] = true
	}
	return out, nil
}
