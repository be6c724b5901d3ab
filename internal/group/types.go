package group

import (
	"fmt"
	"time"

	"github.com/WillSoph/top-game-score/internal/store"
)

// Group status lifecycle states. Transitions are monotonic:
// draft -> open -> finished.
const (
	StatusDraft    = "draft"
	StatusOpen     = "open"
	StatusFinished = "finished"
)

// Billing plan tiers mirrored from the billing collaborator.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// Group is one quiz session. Its id doubles as the player-facing join code.
type Group struct {
	ID                   string
	HostID               string
	Title                string
	Code                 string
	Locale               string
	Status               string
	CurrentQuestionIndex int
	RoundStartedAt       *time.Time
	MaxTimeSec           int
	Plan                 string
	ExpiresAt            *time.Time
	QuestionCount        int
	CreatedAt            *time.Time
}

// QuestionBudget is the per-question time window.
func (g Group) QuestionBudget() time.Duration {
	return time.Duration(g.MaxTimeSec) * time.Second
}

// Question is one multiple-choice entry of a group's question bank, keyed by
// its 0-based index.
type Question struct {
	Index        int
	Text         string
	Options      []string
	CorrectIndex int
}

// Player is one participant of a group.
type Player struct {
	ID             string
	Name           string
	Handle         string
	TotalScore     int
	JoinedAt       *time.Time
	RoundStartedAt *time.Time
}

// Answer is the immutable record of one player's response (or non-response,
// when ChosenIndex is nil) to one question.
type Answer struct {
	PlayerID     string
	QIndex       int
	ChosenIndex  *int
	Correct      bool
	ElapsedMs    *int
	ScoreAwarded int
	CreatedAt    *time.Time
}

// Result is the outcome of a submission. Duplicate means a prior answer for
// the same (player, question) pair already existed; ScoreAwarded then echoes
// the stored value.
type Result struct {
	ScoreAwarded int  `json:"scoreAwarded"`
	Correct      bool `json:"correct"`
	Duplicate    bool `json:"duplicate"`
}

// Document paths. The layout follows the store's collection scheme:
// groups/{gid} with questions/, players/ and answers/ sub-collections, plus a
// top-level users/ collection owned by the billing boundary.

func Path(groupID string) string {
	return "groups/" + groupID
}

func QuestionsPath(groupID string) string {
	return "groups/" + groupID + "/questions"
}

func QuestionPath(groupID string, index int) string {
	return fmt.Sprintf("groups/%s/questions/%d", groupID, index)
}

func PlayersPath(groupID string) string {
	return "groups/" + groupID + "/players"
}

func PlayerPath(groupID, playerID string) string {
	return "groups/" + groupID + "/players/" + playerID
}

func AnswersPath(groupID string) string {
	return "groups/" + groupID + "/answers"
}

// AnswerPath is the deterministic composite key making the
// one-answer-per-(player, question) invariant hold by construction.
func AnswerPath(groupID, playerID string, qIndex int) string {
	return fmt.Sprintf("groups/%s/answers/%s_%d", groupID, playerID, qIndex)
}

func UserPath(userID string) string {
	return "users/" + userID
}

// Field map encoding. Explicit per-type codecs keep the store boundary typed
// instead of threading loose field bags through the service.

func (g Group) fields() store.Fields {
	return store.Fields{
		"hostUid":              g.HostID,
		"title":                g.Title,
		"code":                 g.Code,
		"locale":               g.Locale,
		"status":               g.Status,
		"currentQuestionIndex": g.CurrentQuestionIndex,
		"roundStartedAt":       timeValue(g.RoundStartedAt),
		"maxTimeSec":           g.MaxTimeSec,
		"plan":                 g.Plan,
		"expiresAt":            timeValue(g.ExpiresAt),
		"questionCount":        g.QuestionCount,
		"createdAt":            timeValue(g.CreatedAt),
	}
}

// GroupFromDocument decodes a group document.
func GroupFromDocument(doc store.Document) Group {
	f := doc.Fields
	return Group{
		ID:                   doc.ID,
		HostID:               f.String("hostUid"),
		Title:                f.String("title"),
		Code:                 f.String("code"),
		Locale:               f.String("locale"),
		Status:               f.String("status"),
		CurrentQuestionIndex: f.Int("currentQuestionIndex"),
		RoundStartedAt:       f.Time("roundStartedAt"),
		MaxTimeSec:           f.Int("maxTimeSec"),
		Plan:                 f.String("plan"),
		ExpiresAt:            f.Time("expiresAt"),
		QuestionCount:        f.Int("questionCount"),
		CreatedAt:            f.Time("createdAt"),
	}
}

func (q Question) fields() store.Fields {
	return store.Fields{
		"index":        q.Index,
		"text":         q.Text,
		"options":      q.Options,
		"correctIndex": q.CorrectIndex,
	}
}

// QuestionFromDocument decodes a question document.
func QuestionFromDocument(doc store.Document) Question {
	f := doc.Fields
	return Question{
		Index:        f.Int("index"),
		Text:         f.String("text"),
		Options:      f.Strings("options"),
		CorrectIndex: f.Int("correctIndex"),
	}
}

// PlayerFromDocument decodes a player document.
func PlayerFromDocument(doc store.Document) Player {
	f := doc.Fields
	return Player{
		ID:             doc.ID,
		Name:           f.String("name"),
		Handle:         f.String("handle"),
		TotalScore:     f.Int("totalScore"),
		JoinedAt:       f.Time("joinedAt"),
		RoundStartedAt: f.Time("roundStartedAt"),
	}
}

// AnswerFromDocument decodes an answer document.
func AnswerFromDocument(doc store.Document) Answer {
	f := doc.Fields
	return Answer{
		PlayerID:     f.String("playerId"),
		QIndex:       f.Int("qIndex"),
		ChosenIndex:  f.IntPtr("chosenIndex"),
		Correct:      f.Bool("correct"),
		ElapsedMs:    f.IntPtr("elapsedMs"),
		ScoreAwarded: f.Int("scoreAwarded"),
		CreatedAt:    f.Time("createdAt"),
	}
}

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
