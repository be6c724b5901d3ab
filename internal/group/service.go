// Package group implements the quiz session aggregate: lifecycle state
// machine, question bank, player joins and the scoring protocol that turns a
// submission into exactly one immutable answer record plus one total bump.
package group

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/WillSoph/top-game-score/internal/group/scoring"
	"github.com/WillSoph/top-game-score/internal/store"
)

// Options holds gameplay and plan-gating defaults.
type Options struct {
	DefaultMaxTimeSec int           // default: 20
	MinMaxTimeSec     int           // default: 5
	MaxMaxTimeSec     int           // default: 300
	FreeQuestionLimit int           // default: 10
	FreeGroupTTL      time.Duration // default: 7 days
	Scoring           scoring.Config
}

func (o Options) withDefaults() Options {
	if o.DefaultMaxTimeSec == 0 {
		o.DefaultMaxTimeSec = 20
	}
	if o.MinMaxTimeSec == 0 {
		o.MinMaxTimeSec = 5
	}
	if o.MaxMaxTimeSec == 0 {
		o.MaxMaxTimeSec = 300
	}
	if o.FreeQuestionLimit == 0 {
		o.FreeQuestionLimit = 10
	}
	if o.FreeGroupTTL == 0 {
		o.FreeGroupTTL = 7 * 24 * time.Hour
	}
	return o
}

// Service orchestrates group lifecycle and scoring against the document
// store. All state checks happen server-side against the stored document, so
// unauthorized or out-of-order calls never mutate anything.
type Service struct {
	store  store.Store
	engine *scoring.Engine
	opts   Options
	logger zerolog.Logger
}

// NewService creates the group service.
func NewService(st store.Store, opts Options, logger zerolog.Logger) *Service {
	opts = opts.withDefaults()
	return &Service{
		store:  st,
		engine: scoring.NewEngine(opts.Scoring),
		opts:   opts,
		logger: logger.With().Str("component", "group").Logger(),
	}
}

// Create provisions a draft group. The generated id doubles as the join
// code. Free-plan groups expire FreeGroupTTL after creation; pro groups
// never expire.
func (s *Service) Create(ctx context.Context, hostID, title string, maxTimeSec int, locale string) (Group, error) {
	if title == "" {
		title = "Quiz"
	}
	if locale == "" {
		locale = "en"
	}
	if maxTimeSec == 0 {
		maxTimeSec = s.opts.DefaultMaxTimeSec
	}
	if maxTimeSec < s.opts.MinMaxTimeSec {
		maxTimeSec = s.opts.MinMaxTimeSec
	}
	if maxTimeSec > s.opts.MaxMaxTimeSec {
		maxTimeSec = s.opts.MaxMaxTimeSec
	}

	now := s.store.ServerInstant()
	plan := PlanFree
	var expiresAt *time.Time
	if s.isPro(ctx, hostID) {
		plan = PlanPro
	} else {
		exp := now.Add(s.opts.FreeGroupTTL)
		expiresAt = &exp
	}

	id := uuid.NewString()
	g := Group{
		ID:                   id,
		HostID:               hostID,
		Title:                title,
		Code:                 id,
		Locale:               locale,
		Status:               StatusDraft,
		CurrentQuestionIndex: -1,
		MaxTimeSec:           maxTimeSec,
		Plan:                 plan,
		ExpiresAt:            expiresAt,
		CreatedAt:            &now,
	}

	if err := s.store.CreateDocument(ctx, Path(id), g.fields()); err != nil {
		return Group{}, fmt.Errorf("create group: %w", err)
	}

	s.logger.Info().Str("group_id", id).Str("plan", plan).Msg("group created")
	return g, nil
}

// Get loads a group by id.
func (s *Service) Get(ctx context.Context, groupID string) (Group, error) {
	doc, err := s.store.GetDocument(ctx, Path(groupID))
	if errors.Is(err, store.ErrNotFound) {
		return Group{}, ErrNotFound
	}
	if err != nil {
		return Group{}, fmt.Errorf("get group: %w", err)
	}
	return GroupFromDocument(doc), nil
}

// ClaimHost fills an empty hostUid with the caller's identity. The first
// authenticated owner visit takes ownership; once set, the host is fixed.
func (s *Service) ClaimHost(ctx context.Context, groupID, callerID string) error {
	g, err := s.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if g.HostID == callerID {
		return nil
	}
	if g.HostID != "" {
		return ErrForbidden
	}
	if err := s.store.SetDocument(ctx, Path(groupID), store.Fields{"hostUid": callerID}, true); err != nil {
		return fmt.Errorf("claim host: %w", err)
	}
	s.logger.Info().Str("group_id", groupID).Str("host_id", callerID).Msg("host claimed")
	return nil
}

// AddQuestion appends a question to a draft group's bank. Questions are
// immutable once the group leaves draft. Free-plan hosts are capped at
// FreeQuestionLimit questions.
func (s *Service) AddQuestion(ctx context.Context, groupID, callerID, text string, options []string, correctIndex int) (Question, error) {
	g, err := s.Get(ctx, groupID)
	if err != nil {
		return Question{}, err
	}
	if err := requireHost(g, callerID); err != nil {
		return Question{}, err
	}
	if g.Status != StatusDraft {
		return Question{}, ErrInvalidState
	}
	if err := validateQuestion(text, options, correctIndex); err != nil {
		return Question{}, err
	}

	questions, err := s.Questions(ctx, groupID)
	if err != nil {
		return Question{}, err
	}
	if g.Plan != PlanPro && len(questions) >= s.opts.FreeQuestionLimit {
		return Question{}, ErrPlanLimit
	}

	q := Question{
		Index:        len(questions),
		Text:         text,
		Options:      options,
		CorrectIndex: correctIndex,
	}
	if err := s.store.CreateDocument(ctx, QuestionPath(groupID, q.Index), q.fields()); err != nil {
		return Question{}, fmt.Errorf("write question: %w", err)
	}
	if err := s.store.SetDocument(ctx, Path(groupID), store.Fields{"questionCount": q.Index + 1}, true); err != nil {
		s.logger.Warn().Err(err).Str("group_id", groupID).Msg("question count update failed")
	}
	return q, nil
}

// Questions returns the group's question bank in round order.
func (s *Service) Questions(ctx context.Context, groupID string) ([]Question, error) {
	docs, err := s.store.ListDocuments(ctx, QuestionsPath(groupID))
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	out := make([]Question, len(docs))
	for _, doc := range docs {
		q := QuestionFromDocument(doc)
		if q.Index < 0 || q.Index >= len(docs) {
			return nil, fmt.Errorf("question index %d out of order", q.Index)
		}
		out[q.Index] = q
	}
	return out, nil
}

// Question loads a single question by round index.
func (s *Service) Question(ctx context.Context, groupID string, qIndex int) (Question, error) {
	docs, err := s.store.QueryEquals(ctx, QuestionsPath(groupID), "index", qIndex, 1)
	if err != nil {
		return Question{}, fmt.Errorf("query question: %w", err)
	}
	if len(docs) == 0 {
		return Question{}, ErrQuestionNotFound
	}
	return QuestionFromDocument(docs[0]), nil
}

// Open transitions a draft group to open and accepts players. Reopening an
// already-open group is a no-op; a finished group stays finished.
func (s *Service) Open(ctx context.Context, groupID, callerID string) error {
	g, err := s.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if err := requireHost(g, callerID); err != nil {
		return err
	}
	switch g.Status {
	case StatusOpen:
		return nil
	case StatusFinished:
		return ErrInvalidState
	}

	fields := store.Fields{"status": StatusOpen, "roundStartedAt": nil}
	if g.HostID == "" {
		fields["hostUid"] = callerID
	}
	if err := s.store.SetDocument(ctx, Path(groupID), fields, true); err != nil {
		return fmt.Errorf("open group: %w", err)
	}
	s.logger.Info().Str("group_id", groupID).Msg("group opened")
	return nil
}

// StartQuestion points the group at a round and stamps a fresh server-side
// round start. This drives the host-broadcast pacing variant, where every
// player's countdown is measured from the same instant.
func (s *Service) StartQuestion(ctx context.Context, groupID, callerID string, qIndex int) error {
	g, err := s.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if err := requireHost(g, callerID); err != nil {
		return err
	}
	if g.Status == StatusFinished {
		return ErrInvalidState
	}
	if _, err := s.Question(ctx, groupID, qIndex); err != nil {
		return err
	}

	now := s.store.ServerInstant()
	fields := store.Fields{
		"status":               StatusOpen,
		"currentQuestionIndex": qIndex,
		"roundStartedAt":       now,
	}
	if err := s.store.SetDocument(ctx, Path(groupID), fields, true); err != nil {
		return fmt.Errorf("start question: %w", err)
	}
	s.logger.Info().Str("group_id", groupID).Int("q_index", qIndex).Msg("round started")
	return nil
}

// Finish transitions a group to its terminal state. Finishing from draft is
// allowed; there is no way back.
func (s *Service) Finish(ctx context.Context, groupID, callerID string) error {
	g, err := s.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if err := requireHost(g, callerID); err != nil {
		return err
	}
	if g.Status == StatusFinished {
		return nil
	}
	if err := s.store.SetDocument(ctx, Path(groupID), store.Fields{"status": StatusFinished}, true); err != nil {
		return fmt.Errorf("finish group: %w", err)
	}
	s.logger.Info().Str("group_id", groupID).Msg("group finished")
	return nil
}

// Join validates the player's display identity and writes the player record.
// Rejoining merges the identity without resetting the running total.
func (s *Service) Join(ctx context.Context, groupID, playerID, name, handle string) error {
	if err := ValidateJoin(name, handle); err != nil {
		return err
	}
	g, err := s.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if g.Status != StatusOpen {
		return ErrGroupNotOpen
	}

	path := PlayerPath(groupID, playerID)
	now := s.store.ServerInstant()
	err = s.store.CreateDocument(ctx, path, store.Fields{
		"name":       name,
		"handle":     handle,
		"totalScore": 0,
		"joinedAt":   now,
	})
	if errors.Is(err, store.ErrExists) {
		// Returning player: refresh the display identity only.
		err = s.store.SetDocument(ctx, path, store.Fields{"name": name, "handle": handle}, true)
	}
	if err != nil {
		return fmt.Errorf("join group: %w", err)
	}
	s.logger.Info().Str("group_id", groupID).Str("player_id", playerID).Msg("player joined")
	return nil
}

// Players returns all current player records of a group.
func (s *Service) Players(ctx context.Context, groupID string) ([]Player, error) {
	docs, err := s.store.ListDocuments(ctx, PlayersPath(groupID))
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	out := make([]Player, 0, len(docs))
	for _, doc := range docs {
		out = append(out, PlayerFromDocument(doc))
	}
	return out, nil
}

// Player loads one player record.
func (s *Service) Player(ctx context.Context, groupID, playerID string) (Player, error) {
	doc, err := s.store.GetDocument(ctx, PlayerPath(groupID, playerID))
	if errors.Is(err, store.ErrNotFound) {
		return Player{}, ErrNotFound
	}
	if err != nil {
		return Player{}, fmt.Errorf("get player: %w", err)
	}
	return PlayerFromDocument(doc), nil
}

// Answers returns a group's full answer log.
func (s *Service) Answers(ctx context.Context, groupID string) ([]Answer, error) {
	docs, err := s.store.ListDocuments(ctx, AnswersPath(groupID))
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	out := make([]Answer, 0, len(docs))
	for _, doc := range docs {
		out = append(out, AnswerFromDocument(doc))
	}
	return out, nil
}

// PlayerAnswers returns the answer records of a single player.
func (s *Service) PlayerAnswers(ctx context.Context, groupID, playerID string) ([]Answer, error) {
	docs, err := s.store.QueryEquals(ctx, AnswersPath(groupID), "playerId", playerID, 0)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	out := make([]Answer, 0, len(docs))
	for _, doc := range docs {
		out = append(out, AnswerFromDocument(doc))
	}
	return out, nil
}

// MarkRoundStart stamps the player's own round-start reference with a server
// instant. The self-paced session calls this every time it faces a new
// question; scoring reads it back so elapsed time never depends on a client
// clock.
func (s *Service) MarkRoundStart(ctx context.Context, groupID, playerID string) (time.Time, error) {
	now := s.store.ServerInstant()
	err := s.store.SetDocument(ctx, PlayerPath(groupID, playerID), store.Fields{"roundStartedAt": now}, true)
	if err != nil {
		return time.Time{}, fmt.Errorf("mark round start: %w", err)
	}
	return now, nil
}

// SubmitAnswer scores a submission and applies it exactly once.
//
// The answer document is created under the deterministic {playerId}_{qIndex}
// key with an atomic create-if-absent write: of two racing submissions for
// the same pair exactly one wins the key, the loser observes ErrExists and
// returns the stored score as a duplicate. The total increment follows as a
// separate write; the reconciler repairs totals from the answer log if a
// crash lands between the two.
//
// A nil chosenIndex is a synthesized timeout: never correct, zero points,
// nil elapsed.
func (s *Service) SubmitAnswer(ctx context.Context, groupID, playerID string, qIndex int, chosenIndex *int) (Result, error) {
	g, err := s.Get(ctx, groupID)
	if err != nil {
		return Result{}, err
	}
	if g.Status != StatusOpen {
		return Result{}, ErrInvalidState
	}
	q, err := s.Question(ctx, groupID, qIndex)
	if err != nil {
		return Result{}, err
	}

	now := s.store.ServerInstant()
	correct := chosenIndex != nil && *chosenIndex == q.CorrectIndex

	var elapsedMs *int
	score := 0
	if chosenIndex != nil {
		elapsed := now.Sub(s.roundStart(ctx, g, playerID, now))
		if elapsed < 0 {
			elapsed = 0
		}
		ms := int(elapsed.Milliseconds())
		elapsedMs = &ms
		score = s.engine.Score(correct, elapsed, g.QuestionBudget())
	}

	fields := store.Fields{
		"playerId":     playerID,
		"qIndex":       qIndex,
		"chosenIndex":  intValue(chosenIndex),
		"correct":      correct,
		"elapsedMs":    intValue(elapsedMs),
		"scoreAwarded": score,
		"createdAt":    now,
	}

	err = s.store.CreateDocument(ctx, AnswerPath(groupID, playerID, qIndex), fields)
	if errors.Is(err, store.ErrExists) {
		prior, getErr := s.store.GetDocument(ctx, AnswerPath(groupID, playerID, qIndex))
		if getErr != nil {
			return Result{}, fmt.Errorf("read prior answer: %w", getErr)
		}
		duplicateSubmissions.Inc()
		return Result{
			ScoreAwarded: prior.Fields.Int("scoreAwarded"),
			Correct:      prior.Fields.Bool("correct"),
			Duplicate:    true,
		}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("write answer: %w", err)
	}

	if err := s.store.IncrementField(ctx, PlayerPath(groupID, playerID), "totalScore", int64(score)); err != nil {
		// The answer record is durable; the total converges once the
		// reconciler replays the log. Callers must retry the whole
		// submission, never the increment alone.
		return Result{ScoreAwarded: score, Correct: correct}, fmt.Errorf("apply score: %w", err)
	}

	if chosenIndex == nil {
		timeoutSubmissions.Inc()
	}
	answersScored.WithLabelValues(strconv.FormatBool(correct)).Inc()

	s.logger.Info().
		Str("group_id", groupID).
		Str("player_id", playerID).
		Int("q_index", qIndex).
		Bool("correct", correct).
		Int("score", score).
		Msg("answer scored")

	return Result{ScoreAwarded: score, Correct: correct}, nil
}

// Delete removes a group and all of its sub-collections.
func (s *Service) Delete(ctx context.Context, groupID string) error {
	for _, path := range []string{
		QuestionsPath(groupID),
		PlayersPath(groupID),
		AnswersPath(groupID),
		Path(groupID),
	} {
		if err := s.store.DeleteTree(ctx, path); err != nil {
			return fmt.Errorf("delete %s: %w", path, err)
		}
	}
	return nil
}

// roundStart resolves the frozen reference instant a submission is measured
// against: the player's own round start (self-paced variant), otherwise the
// group's broadcast round start, otherwise now (zero elapsed).
func (s *Service) roundStart(ctx context.Context, g Group, playerID string, now time.Time) time.Time {
	if p, err := s.Player(ctx, g.ID, playerID); err == nil && p.RoundStartedAt != nil {
		return *p.RoundStartedAt
	}
	if g.RoundStartedAt != nil {
		return *g.RoundStartedAt
	}
	return now
}

// isPro reads the host's billing mirror; absence of the user document means
// free tier.
func (s *Service) isPro(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	doc, err := s.store.GetDocument(ctx, UserPath(userID))
	if err != nil {
		return false
	}
	return doc.Fields.String("plan") == PlanPro && doc.Fields.Bool("active")
}

func requireHost(g Group, callerID string) error {
	if callerID == "" {
		return ErrForbidden
	}
	if g.HostID != "" && g.HostID != callerID {
		return ErrForbidden
	}
	return nil
}

func intValue(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
