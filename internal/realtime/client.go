package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Notifier persists a notification and pushes it live when the recipient
// is online. Implemented by notifications.Dispatcher.
type Notifier interface {
	Dispatch(ctx context.Context, n *models.Notification) error
}

// Client represents a single WebSocket connection. It implements
// presence.Handle, so the presence tracker can compare connections when a
// stale disconnect races a reconnect.
type Client struct {
	ID        string
	SessionID uuid.UUID // Nil when the connection is not bound to a session room
	UserID    uuid.UUID
	Role      string
	JoinedAt  time.Time
	hub       *Hub
	notifier  Notifier
	conn      *websocket.Conn
	send      chan WSMessage
	logger    *zap.Logger
}

// ConnectionID returns the unique id of this connection.
func (c *Client) ConnectionID() string { return c.ID }

func (c *Client) trySend(msg WSMessage) {
	select {
	case c.send <- msg:
	default:
		// buffer full, skip
	}
}

// ServeWs handles the WebSocket upgrade and runs the client loop. The
// caller authenticates with a JWT in the query; session_id is optional and
// binds the connection to that session's room.
func ServeWs(hub *Hub, logger *zap.Logger, jwtValidate func(token string) (userID, role string, err error), notifier Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
			return
		}
		userIDStr, role, err := jwtValidate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
			return
		}
		var sessionID uuid.UUID
		if s := c.Query("session_id"); s != "" {
			sessionID, err = uuid.Parse(s)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
				return
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:        uuid.New().String(),
			SessionID: sessionID,
			UserID:    userID,
			Role:      role,
			JoinedAt:  time.Now(),
			hub:       hub,
			notifier:  notifier,
			conn:      conn,
			send:      make(chan WSMessage, 256),
			logger:    logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.handle(msg)
	}
}

func (c *Client) handle(msg WSMessage) {
	switch msg.Event {
	case "presence:get":
		c.trySend(WSMessage{Event: "presence:update", Data: mustJSON(map[string]interface{}{
			"online": c.hub.presence.ListOnline(),
		})})

	case "student:present":
		// Student signals they are present; relayed to the whole session.
		if c.SessionID != uuid.Nil {
			c.hub.BroadcastToSessionAndPublish(c.SessionID, "student:signaled_presence", map[string]string{
				"student_id": c.UserID.String(),
			})
		}

	case "session:start":
		c.handleSessionStart(msg.Data)

	case "notification:send":
		c.handleNotificationSend(msg.Data)

	case "chat:message":
		// Publish only so the Redis subscriber broadcasts once per instance.
		if c.SessionID != uuid.Nil {
			c.hub.PublishToSessionOnly(c.SessionID, "chat:new", json.RawMessage(msg.Data))
		}

	default:
		// ignore
	}
}

// handleSessionStart unicasts a session:invite to each named participant.
// Offline participants still get the durable invite through the notifier.
func (c *Client) handleSessionStart(data json.RawMessage) {
	var payload struct {
		SessionID    uuid.UUID   `json:"session_id"`
		Title        string      `json:"title"`
		Participants []uuid.UUID `json:"participants"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	for _, pid := range payload.Participants {
		if pid == c.UserID {
			continue
		}
		c.hub.SendToUser(pid, "session:invite", json.RawMessage(data))
		if c.notifier != nil {
			_ = c.notifier.Dispatch(context.Background(), &models.Notification{
				RecipientID: pid,
				Type:        models.NotificationSessionInvite,
				Title:       "Class session starting",
				Message:     payload.Title,
				ActionURL:   "/sessions/" + payload.SessionID.String(),
			})
		}
	}
}

func (c *Client) handleNotificationSend(data json.RawMessage) {
	var payload struct {
		RecipientID uuid.UUID `json:"recipient_id"`
		Type        string    `json:"type"`
		Title       string    `json:"title"`
		Message     string    `json:"message"`
		ActionURL   string    `json:"action_url"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || c.notifier == nil {
		return
	}
	typ := models.NotificationType(payload.Type)
	if typ == "" {
		typ = models.NotificationGeneric
	}
	_ = c.notifier.Dispatch(context.Background(), &models.Notification{
		RecipientID: payload.RecipientID,
		Type:        typ,
		Title:       payload.Title,
		Message:     payload.Message,
		ActionURL:   payload.ActionURL,
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
