package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/opsdesk/internal/conversation"
	"github.com/nextlevelbuilder/opsdesk/pkg/protocol"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 50 * time.Second
	sendQueueSize = 64
)

// Client is one connected dashboard WebSocket.
type Client struct {
	id     string
	conn   *websocket.Conn
	server *Server
	send   chan protocol.EventFrame
	done   chan struct{}
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, server *Server) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		server: server,
		send:   make(chan protocol.EventFrame, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// SendEvent enqueues an event for delivery. A slow client that fills its
// queue loses the event rather than stalling the broadcaster.
func (c *Client) SendEvent(event protocol.EventFrame) {
	select {
	case c.send <- event:
	case <-c.done:
	default:
		slog.Warn("client send queue full, dropping event", "id", c.id, "event", event.Event)
	}
}

// Close shuts the connection down.
func (c *Client) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.conn.Close()
}

// Run pumps frames in both directions until the connection drops.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case event := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("client read error", "id", c.id, "error", err)
			}
			return
		}

		var frame protocol.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("client frame unreadable", "id", c.id, "error", err)
			continue
		}

		if !c.server.rateLimiter.Allow(c.id) {
			c.SendEvent(*protocol.NewEvent(protocol.EventBanner, map[string]string{
				"level":   "warn",
				"message": "rate limit exceeded, slow down",
			}))
			continue
		}

		c.handleFrame(ctx, frame)
	}
}

// handleFrame dispatches one inbound client frame. Any frame counts as
// operator interaction for alert sound consent.
func (c *Client) handleFrame(ctx context.Context, frame protocol.ClientFrame) {
	c.server.core.GrantInteraction()

	switch frame.Type {
	case protocol.ClientInteract:
		// Consent already granted above.
	case protocol.ClientSubscribe:
		c.sendSnapshot()
	case protocol.ClientSelectSession:
		// An empty id clears the selection and stops the fast thread
		// cadence.
		c.server.core.SelectSession(frame.SessionID)
		c.SendEvent(*protocol.NewEvent(protocol.EventSessions, c.server.core.Sessions()))
	case protocol.ClientSelectChat:
		if frame.ChatID == "" {
			return
		}
		if err := c.server.core.OpenBridgeChat(ctx, frame.ChatID); err != nil {
			slog.Warn("open chat failed", "id", c.id, "chat", frame.ChatID, "error", err)
			c.SendEvent(*protocol.NewEvent(protocol.EventBanner, map[string]string{
				"level":   "error",
				"message": "could not open chat",
			}))
			return
		}
		c.SendEvent(*protocol.NewEvent(protocol.EventChatList, c.server.core.BridgeChats()))
	default:
		slog.Debug("client frame ignored", "id", c.id, "type", frame.Type)
	}
}

// sendSnapshot replays current state so a fresh client renders without
// waiting for the next refresh cycle.
func (c *Client) sendSnapshot() {
	core := c.server.core
	c.SendEvent(*protocol.NewEvent(protocol.EventBridgeStatus, core.BridgeState()))
	if qr := core.BridgeQR(); qr != "" {
		c.SendEvent(*protocol.NewEvent(protocol.EventBridgeQR, map[string]string{"qr": qr}))
	}
	c.SendEvent(*protocol.NewEvent(protocol.EventSessions, core.Sessions()))
	c.SendEvent(*protocol.NewEvent(protocol.EventConversations, core.ConversationPage(1, 0, conversation.Filter{})))
}
