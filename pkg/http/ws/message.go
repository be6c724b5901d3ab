package ws

import "encoding/json"

// MessageType constants for the WebSocket protocol.
const (
	// Client -> Server
	TypePing   = "ping"
	TypeAnswer = "answer"

	// Server -> Client
	TypePong              = "pong"
	TypeGroupUpdate       = "group_update"
	TypeLeaderboardUpdate = "leaderboard_update"
	TypeSessionUpdate     = "session_update"
	TypeAnswerResult      = "answer_result"
	TypeError             = "error"
)

// Message wraps all WebSocket payloads with a type tag.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// GroupUpdatePayload mirrors the watchable slice of the group document.
type GroupUpdatePayload struct {
	GroupID              string `json:"group_id"`
	Status               string `json:"status"`
	CurrentQuestionIndex int    `json:"current_question_index"`
	RoundStartedAt       string `json:"round_started_at,omitempty"`
	MaxTimeSec           int    `json:"max_time_sec"`
	QuestionCount        int    `json:"question_count"`
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	PlayerID   string `json:"player_id"`
	Name       string `json:"name"`
	Handle     string `json:"handle,omitempty"`
	TotalScore int    `json:"total_score"`
	Rank       int    `json:"rank"`
}

// LeaderboardUpdatePayload carries a ranking snapshot for a group.
type LeaderboardUpdatePayload struct {
	GroupID string             `json:"group_id"`
	Entries []LeaderboardEntry `json:"entries"`
}

// AnswerPayload carries a player's choice for the question they face.
type AnswerPayload struct {
	ChosenIndex int `json:"chosen_index"`
}

// AnswerResultPayload echoes the scored outcome back to the submitter.
type AnswerResultPayload struct {
	QuestionIndex int  `json:"question_index"`
	ScoreAwarded  int  `json:"score_awarded"`
	Correct       bool `json:"correct"`
	Duplicate     bool `json:"duplicate"`
}

// SessionUpdatePayload reports a player session's machine state.
type SessionUpdatePayload struct {
	State         string `json:"state"`
	QuestionIndex int    `json:"question_index"`
	RemainingMs   int64  `json:"remaining_ms"`
}

// ErrorPayload reports a protocol-level failure to the client.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage marshals payload into a typed message. Marshal errors surface as
// an empty payload, which clients treat as a no-op.
func NewMessage(msgType string, payload any) Message {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{Type: msgType}
	}
	return Message{Type: msgType, Payload: raw}
}
