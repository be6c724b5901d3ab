// Package ws provides the WebSocket hub pushing live group state and
// leaderboard snapshots to connected viewers.
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Hub manages WebSocket connections grouped by the quiz group they watch.
// A viewer may watch at most one group per connection.
type Hub struct {
	mu     sync.RWMutex
	conns  map[*Connection]string          // connection -> group_id
	groups map[string]map[*Connection]bool // group_id -> connections
	logger zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		conns:  make(map[*Connection]string),
		groups: make(map[string]map[*Connection]bool),
		logger: logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Register attaches a connection to a group's broadcast set.
func (h *Hub) Register(groupID string, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[conn] = groupID
	if h.groups[groupID] == nil {
		h.groups[groupID] = make(map[*Connection]bool)
	}
	h.groups[groupID][conn] = true
	h.logger.Debug().Str("group_id", groupID).Msg("connection registered")
}

// Unregister detaches and closes a connection. Returns the number of viewers
// remaining on the connection's group.
func (h *Hub) Unregister(conn *Connection) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	groupID, ok := h.conns[conn]
	if !ok {
		return 0
	}
	delete(h.conns, conn)
	delete(h.groups[groupID], conn)
	remaining := len(h.groups[groupID])
	if remaining == 0 {
		delete(h.groups, groupID)
	}
	conn.Close()
	return remaining
}

// BroadcastToGroup sends a message to every viewer of a group.
func (h *Hub) BroadcastToGroup(groupID string, msg Message) {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.groups[groupID]))
	for conn := range h.groups[groupID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Send(msg); err != nil {
			h.logger.Warn().Err(err).Str("group_id", groupID).Msg("broadcast send failed")
		}
	}
}

// Viewers reports how many connections watch a group.
func (h *Hub) Viewers(groupID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[groupID])
}

// Connection wraps a websocket with a buffered send queue so slow readers
// cannot block broadcasts.
type Connection struct {
	conn   *websocket.Conn
	sendCh chan Message
	mu     sync.Mutex
	closed bool
	logger zerolog.Logger
}

// NewConnection wraps an upgraded websocket.
func NewConnection(conn *websocket.Conn, logger zerolog.Logger) *Connection {
	return &Connection{
		conn:   conn,
		sendCh: make(chan Message, 64),
		logger: logger,
	}
}

// Send queues a message for delivery.
func (c *Connection) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.sendCh <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close shuts the connection down. Idempotent.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.sendCh)
	c.conn.Close()
}

// WritePump drains the send queue onto the wire. Run in its own goroutine.
func (c *Connection) WritePump() {
	defer c.conn.Close()

	for msg := range c.sendCh {
		if err := c.conn.WriteJSON(msg); err != nil {
			c.logger.Warn().Err(err).Msg("write error")
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ReadPump consumes incoming messages until the peer goes away, answering
// pings and extending the read deadline on pong.
func (c *Connection) ReadPump(handler func(Message) error) {
	defer c.conn.Close()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			return
		}
		if msg.Type == TypePing {
			_ = c.Send(Message{Type: TypePong})
			continue
		}
		if handler != nil {
			if err := handler(msg); err != nil {
				c.logger.Warn().Err(err).Msg("message handler error")
			}
		}
	}
}

var (
	ErrConnectionClosed = &Error{Code: "connection_closed", Message: "Connection is closed"}
	ErrSendQueueFull    = &Error{Code: "send_queue_full", Message: "Send queue is full"}
)

// Error is a protocol-level websocket error.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
