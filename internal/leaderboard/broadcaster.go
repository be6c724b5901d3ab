package leaderboard

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/WillSoph/top-game-score/internal/group"
	"github.com/WillSoph/top-game-score/internal/store"
	"github.com/WillSoph/top-game-score/pkg/http/ws"
)

// Broadcaster owns one store subscription per watched group and forwards
// status changes and leaderboard snapshots to that group's hub viewers.
// Watches are explicit, handle-scoped resources: Unwatch (or Close) is
// guaranteed to detach the underlying listeners.
type Broadcaster struct {
	store  store.Store
	groups *group.Service
	hub    *ws.Hub
	logger zerolog.Logger

	mu      sync.Mutex
	watches map[string][]func()
	closed  bool
}

// NewBroadcaster creates a broadcaster pushing into hub.
func NewBroadcaster(st store.Store, groups *group.Service, hub *ws.Hub, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		store:   st,
		groups:  groups,
		hub:     hub,
		logger:  logger.With().Str("component", "leaderboard_broadcaster").Logger(),
		watches: make(map[string][]func()),
	}
}

// Watch ensures change listeners exist for a group: one on the group
// document (status, round pointer) and one on its players collection
// (totals). Idempotent per group.
func (b *Broadcaster) Watch(ctx context.Context, groupID string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	if _, ok := b.watches[groupID]; ok {
		b.mu.Unlock()
		return nil
	}
	// Reserve the slot so concurrent Watch calls for the same group don't
	// double-subscribe.
	b.watches[groupID] = nil
	b.mu.Unlock()

	unsubGroup, err := b.store.Subscribe(ctx, group.Path(groupID), func(doc store.Document) {
		b.pushGroup(doc)
	})
	if err != nil {
		b.forget(groupID)
		return err
	}
	unsubPlayers, err := b.store.Subscribe(ctx, group.PlayersPath(groupID), func(store.Document) {
		b.pushLeaderboard(groupID)
	})
	if err != nil {
		unsubGroup()
		b.forget(groupID)
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		unsubGroup()
		unsubPlayers()
		return nil
	}
	b.watches[groupID] = []func(){unsubGroup, unsubPlayers}
	b.mu.Unlock()

	// Prime new viewers with the current standings.
	b.pushLeaderboard(groupID)
	return nil
}

// Unwatch detaches a group's listeners once the last viewer is gone.
func (b *Broadcaster) Unwatch(groupID string) {
	b.mu.Lock()
	unsubs := b.watches[groupID]
	delete(b.watches, groupID)
	b.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// Close detaches every watch.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	all := b.watches
	b.watches = make(map[string][]func())
	b.mu.Unlock()

	for _, unsubs := range all {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

func (b *Broadcaster) forget(groupID string) {
	b.mu.Lock()
	delete(b.watches, groupID)
	b.mu.Unlock()
}

func (b *Broadcaster) pushGroup(doc store.Document) {
	g := group.GroupFromDocument(doc)
	payload := ws.GroupUpdatePayload{
		GroupID:              g.ID,
		Status:               g.Status,
		CurrentQuestionIndex: g.CurrentQuestionIndex,
		MaxTimeSec:           g.MaxTimeSec,
		QuestionCount:        g.QuestionCount,
	}
	if g.RoundStartedAt != nil {
		payload.RoundStartedAt = g.RoundStartedAt.Format(time.RFC3339Nano)
	}
	b.hub.BroadcastToGroup(g.ID, ws.NewMessage(ws.TypeGroupUpdate, payload))
}

func (b *Broadcaster) pushLeaderboard(groupID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	players, err := b.groups.Players(ctx, groupID)
	if err != nil {
		b.logger.Warn().Err(err).Str("group_id", groupID).Msg("leaderboard fetch failed")
		return
	}
	entries := Rank(players)
	wsEntries := make([]ws.LeaderboardEntry, len(entries))
	for i, e := range entries {
		wsEntries[i] = ws.LeaderboardEntry{
			PlayerID:   e.PlayerID,
			Name:       e.Name,
			Handle:     e.Handle,
			TotalScore: e.TotalScore,
			Rank:       e.Rank,
		}
	}
	b.hub.BroadcastToGroup(groupID, ws.NewMessage(ws.TypeLeaderboardUpdate, ws.LeaderboardUpdatePayload{
		GroupID: groupID,
		Entries: wsEntries,
	}))
}
