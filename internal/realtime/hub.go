package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/presence"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// SessionJoinHandler is called when a client joins or leaves a session room
// (e.g. attendance logging).
type SessionJoinHandler func(sessionID, userID uuid.UUID)

// SessionLeaveHandler receives the join time so watch duration can be derived.
type SessionLeaveHandler func(sessionID, userID uuid.UUID, joinedAt time.Time)

// RedisPublisher publishes session events to Redis for cross-instance fanout.
type RedisPublisher interface {
	PublishSessionEvent(sessionID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to session channels and invokes handler for
// incoming events.
type RedisSubscriber interface {
	SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub is the event broadcaster: it fans out state-change events to the
// connections of a target audience. Three addressing modes: all
// connections, one session's participants, or a single user (resolved
// through the presence tracker; a unicast to an offline user is silently
// dropped).
type Hub struct {
	// sessionID -> map[clientID]*Client
	sessions map[uuid.UUID]map[string]*Client
	// all connected clients, keyed by client id
	clients map[string]*Client
	subs    map[uuid.UUID]func() // cancel Redis subscription per session
	mu      sync.RWMutex

	presence *presence.Tracker
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber

	onJoin  SessionJoinHandler
	onLeave SessionLeaveHandler
}

// NewHub creates a hub over the given presence tracker.
func NewHub(tracker *presence.Tracker, logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		sessions: make(map[uuid.UUID]map[string]*Client),
		clients:  make(map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		presence: tracker,
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// SetSessionHandlers sets the join/leave callbacks (attendance logging).
func (h *Hub) SetSessionHandlers(onJoin SessionJoinHandler, onLeave SessionLeaveHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onJoin = onJoin
	h.onLeave = onLeave
}

// Register adds a client. The client becomes the user's live connection in
// the presence tracker (newest connection wins) and, when it carries a
// session id, joins that session's room. Every register triggers a
// presence broadcast to all connections.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	var onJoin SessionJoinHandler
	if c.SessionID != uuid.Nil {
		if h.sessions[c.SessionID] == nil {
			h.sessions[c.SessionID] = make(map[string]*Client)
			if h.redisSub != nil {
				sessionID := c.SessionID
				cancel, err := h.redisSub.SubscribeSession(sessionID, func(event string, payload []byte) {
					h.BroadcastToSession(sessionID, event, json.RawMessage(payload))
				})
				if err == nil {
					h.subs[sessionID] = cancel
				}
			}
		}
		h.sessions[c.SessionID][c.ID] = c
		onJoin = h.onJoin
	}
	h.mu.Unlock()

	h.presence.Connect(c.UserID, c)
	h.broadcastPresence()
	if onJoin != nil {
		onJoin(c.SessionID, c.UserID)
	}
	h.logger.Debug("client connected",
		zap.String("client_id", c.ID),
		zap.String("user_id", c.UserID.String()))
}

// Unregister removes a client. The presence association is only dropped
// when this client still owns it, so a stale disconnect never evicts a
// newer connection. Cancels the Redis subscription when the last client
// leaves a session room.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	var onLeave SessionLeaveHandler
	if c.SessionID != uuid.Nil {
		if m, ok := h.sessions[c.SessionID]; ok {
			delete(m, c.ID)
			if len(m) == 0 {
				delete(h.sessions, c.SessionID)
				if cancel, ok := h.subs[c.SessionID]; ok {
					cancel()
					delete(h.subs, c.SessionID)
				}
			}
		}
		onLeave = h.onLeave
	}
	h.mu.Unlock()

	h.presence.Disconnect(c.UserID, c)
	h.broadcastPresence()
	if onLeave != nil {
		onLeave(c.SessionID, c.UserID, c.JoinedAt)
	}
	h.logger.Debug("client disconnected",
		zap.String("client_id", c.ID),
		zap.String("user_id", c.UserID.String()))
}

// BroadcastAll sends a message to every connected client.
func (h *Hub) BroadcastAll(event string, payload interface{}) {
	msg, ok := encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.trySend(msg)
	}
}

// BroadcastToSession sends a message to all clients in a session (local only).
func (h *Hub) BroadcastToSession(sessionID uuid.UUID, event string, payload interface{}) {
	msg, ok := encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	clients := h.sessions[sessionID]
	h.mu.RUnlock()
	for _, c := range clients {
		c.trySend(msg)
	}
}

// BroadcastToSessionAndPublish sends to local clients and publishes to
// Redis for other instances.
func (h *Hub) BroadcastToSessionAndPublish(sessionID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.BroadcastToSession(sessionID, event, json.RawMessage(data))
	if h.redis != nil {
		_ = h.redis.PublishSessionEvent(sessionID, event, data)
	}
}

// PublishToSessionOnly publishes to Redis only, so the subscriber callback
// performs the broadcast exactly once per instance (avoids duplicate
// delivery to local clients). Falls back to a local broadcast when no
// Redis bridge is configured.
func (h *Hub) PublishToSessionOnly(sessionID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.redis != nil {
		_ = h.redis.PublishSessionEvent(sessionID, event, data)
		return
	}
	h.BroadcastToSession(sessionID, event, json.RawMessage(data))
}

// SendToUser unicasts to the user's live connection, resolved through the
// presence tracker. Returns false when the user is offline; the event is
// silently dropped at this layer (durable fallback is the notification
// dispatcher's concern).
func (h *Hub) SendToUser(userID uuid.UUID, event string, payload interface{}) bool {
	handle := h.presence.Get(userID)
	if handle == nil {
		return false
	}
	c, ok := handle.(*Client)
	if !ok {
		return false
	}
	msg, ok := encode(event, payload)
	if !ok {
		return false
	}
	c.trySend(msg)
	return true
}

// SessionAudience returns the number of connected clients in a session room.
func (h *Hub) SessionAudience(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// broadcastPresence pushes the current online-id list to every connection.
func (h *Hub) broadcastPresence() {
	h.BroadcastAll("presence:update", map[string]interface{}{
		"online": h.presence.ListOnline(),
	})
}

func encode(event string, payload interface{}) (WSMessage, bool) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return WSMessage{}, false
		}
	}
	return WSMessage{Event: event, Data: data}, true
}
