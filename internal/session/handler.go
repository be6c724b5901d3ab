package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/WillSoph/top-game-score/internal/group"
	"github.com/WillSoph/top-game-score/internal/identity"
	"github.com/WillSoph/top-game-score/internal/leaderboard"
	"github.com/WillSoph/top-game-score/internal/store"
	httperrors "github.com/WillSoph/top-game-score/pkg/http/errors"
	ws "github.com/WillSoph/top-game-score/pkg/http/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Join codes are the access control; the origin carries no signal
		// for anonymous players.
		return true
	},
}

// Handler manages WebSocket connections on /ws/groups/{id}. Every viewer
// gets group and leaderboard pushes; a connection with role=player
// additionally runs the player's session state machine for the lifetime of
// the socket.
type Handler struct {
	groups      *group.Service
	store       store.Store
	hub         *ws.Hub
	broadcaster *leaderboard.Broadcaster
	cfg         Config
	logger      zerolog.Logger
}

// NewHandler creates the group WebSocket handler.
func NewHandler(groups *group.Service, st store.Store, hub *ws.Hub, broadcaster *leaderboard.Broadcaster, cfg Config, logger zerolog.Logger) *Handler {
	return &Handler{
		groups:      groups,
		store:       st,
		hub:         hub,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      logger.With().Str("component", "session_ws").Logger(),
	}
}

// HandleWebSocket handles GET /ws/groups/{id}.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}
	groupID := r.PathValue("id")

	if _, err := h.groups.Get(r.Context(), groupID); err != nil {
		httperrors.RespondNotFound(w, httperrors.ErrCodeGroupNotFound, "Group not found")
		return
	}

	asPlayer := r.URL.Query().Get("role") == "player"
	var sess *Session
	if asPlayer {
		// Players join over REST first; the socket only drives the session.
		if _, err := h.groups.Player(r.Context(), groupID, p.ID); err != nil {
			httperrors.RespondNotFound(w, httperrors.ErrCodePlayerNotFound, "Join the group before connecting as a player")
			return
		}
		sess = New(h.groups, h.store, groupID, p.ID, h.cfg, h.logger)
		if err := sess.Start(r.Context()); err != nil {
			h.logger.Error().Err(err).Str("group_id", groupID).Msg("session start failed")
			httperrors.RespondBadGateway(w, httperrors.ErrCodeStorageFailure, "Storage backend failed")
			return
		}
	}

	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if sess != nil {
			sess.Close()
		}
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := ws.NewConnection(rawConn, h.logger)
	h.hub.Register(groupID, conn)
	if err := h.broadcaster.Watch(r.Context(), groupID); err != nil {
		h.logger.Warn().Err(err).Str("group_id", groupID).Msg("group watch failed")
	}

	go conn.WritePump()

	if sess != nil {
		h.sendSessionUpdate(conn, sess)
	}

	conn.ReadPump(func(msg ws.Message) error {
		return h.handleMessage(context.Background(), conn, sess, msg)
	})

	if sess != nil {
		sess.Close()
	}
	if remaining := h.hub.Unregister(conn); remaining == 0 {
		h.broadcaster.Unwatch(groupID)
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *ws.Connection, sess *Session, msg ws.Message) error {
	switch msg.Type {
	case ws.TypeAnswer:
		return h.handleAnswer(ctx, conn, sess, msg.Payload)
	default:
		return h.sendError(conn, httperrors.ErrCodeInvalidRequest, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (h *Handler) handleAnswer(ctx context.Context, conn *ws.Connection, sess *Session, payload json.RawMessage) error {
	if sess == nil {
		return h.sendError(conn, httperrors.ErrCodeForbidden, "Spectators cannot answer")
	}

	var req ws.AnswerPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return h.sendError(conn, httperrors.ErrCodeInvalidRequest, "Invalid answer payload")
	}

	qIndex := sess.QuestionIndex()
	res, err := sess.Submit(ctx, req.ChosenIndex)
	if err != nil {
		return h.sendError(conn, httperrors.ErrCodeSubmitFailed, err.Error())
	}

	result := ws.NewMessage(ws.TypeAnswerResult, ws.AnswerResultPayload{
		QuestionIndex: qIndex,
		ScoreAwarded:  res.ScoreAwarded,
		Correct:       res.Correct,
		Duplicate:     res.Duplicate,
	})
	if err := conn.Send(result); err != nil {
		return err
	}
	h.sendSessionUpdate(conn, sess)
	return nil
}

func (h *Handler) sendSessionUpdate(conn *ws.Connection, sess *Session) {
	msg := ws.NewMessage(ws.TypeSessionUpdate, ws.SessionUpdatePayload{
		State:         string(sess.State()),
		QuestionIndex: sess.QuestionIndex(),
		RemainingMs:   sess.RemainingTime().Milliseconds(),
	})
	if err := conn.Send(msg); err != nil {
		h.logger.Warn().Err(err).Msg("session update send failed")
	}
}

func (h *Handler) sendError(conn *ws.Connection, code, message string) error {
	return conn.Send(ws.NewMessage(ws.TypeError, ws.ErrorPayload{Code: code, Message: message}))
}
