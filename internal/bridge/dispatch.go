package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/opsdesk/pkg/protocol"
)

// envelope is the outer shape of every push frame.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Dispatch routes one inbound push frame by its envelope type. Malformed
// or unknown frames are logged and dropped without touching state.
func (ls *LiveSync) Dispatch(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("bridge push frame unreadable", "error", err)
		return
	}
	switch env.Type {
	case protocol.BridgeTypeStatusUpdate:
		var st Status
		if err := json.Unmarshal(env.Data, &st); err != nil {
			slog.Warn("bridge status frame malformed", "error", err)
			return
		}
		ls.applyStatus(st, ChannelSocket, "")
	case protocol.BridgeTypeQRCode:
		var body struct {
			QR string `json:"qr"`
		}
		if err := json.Unmarshal(env.Data, &body); err != nil || body.QR == "" {
			slog.Warn("bridge qr frame malformed", "error", err)
			return
		}
		ls.mu.Lock()
		changed := body.QR != ls.qrPayload
		ls.qrPayload = body.QR
		ls.mu.Unlock()
		if changed {
			ls.emit(protocol.EventBridgeQR, map[string]string{"qr": body.QR})
		}
	case protocol.BridgeTypeChatList:
		var body struct {
			Chats []Chat `json:"chats"`
		}
		if err := json.Unmarshal(env.Data, &body); err != nil {
			slog.Warn("bridge chat list frame malformed", "error", err)
			return
		}
		ls.applyChatList(body.Chats)
	case protocol.BridgeTypeNewMessage:
		var msg ChatMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil || msg.ChatID == "" {
			slog.Warn("bridge message frame malformed", "error", err)
			return
		}
		ls.applyNewMessage(msg)
	default:
		slog.Debug("bridge push frame ignored", "type", env.Type)
	}
}

// applyChatList replaces the full chat list. The open chat never carries
// an unread count while it is on screen.
func (ls *LiveSync) applyChatList(chats []Chat) {
	ls.mu.Lock()
	ls.chats = chats
	for i := range ls.chats {
		if ls.chats[i].ID == ls.selected {
			ls.chats[i].Unread = 0
		}
	}
	snapshot := make([]Chat, len(ls.chats))
	copy(snapshot, ls.chats)
	ls.mu.Unlock()
	ls.emit(protocol.EventChatList, snapshot)
}

// applyNewMessage appends to the open thread when the message belongs to
// the selected chat, deduplicated by message id. Messages for other
// chats bump that chat's unread count and preview instead.
func (ls *LiveSync) applyNewMessage(msg ChatMessage) {
	ls.mu.Lock()
	if msg.ChatID == ls.selected && ls.selected != "" {
		if msg.ID != "" && ls.threadIDs[msg.ID] {
			ls.mu.Unlock()
			return
		}
		if msg.ID != "" {
			ls.threadIDs[msg.ID] = true
		}
		ls.thread = append(ls.thread, msg)
		ls.touchChatLocked(msg, false)
		ls.mu.Unlock()
		ls.emit(protocol.EventChatMessage, msg)
		return
	}
	ls.touchChatLocked(msg, true)
	snapshot := make([]Chat, len(ls.chats))
	copy(snapshot, ls.chats)
	ls.mu.Unlock()
	ls.emit(protocol.EventChatList, snapshot)
}

// touchChatLocked updates a chat's preview, and optionally its unread
// count, for an incoming message. Caller holds the lock.
func (ls *LiveSync) touchChatLocked(msg ChatMessage, bumpUnread bool) {
	for i := range ls.chats {
		if ls.chats[i].ID != msg.ChatID {
			continue
		}
		ls.chats[i].LastMessage = msg.Content
		if msg.Timestamp != nil {
			ls.chats[i].LastMessageAt = msg.Timestamp
		}
		if bumpUnread {
			ls.chats[i].Unread++
		}
		return
	}
	// Unknown chat: surface it so the message is not silently lost.
	c := Chat{ID: msg.ChatID, Name: msg.Sender, LastMessage: msg.Content, LastMessageAt: msg.Timestamp}
	if bumpUnread {
		c.Unread = 1
	}
	ls.chats = append(ls.chats, c)
}

// RefreshChats pulls the chat list over REST. Used on ready transitions
// and manual refresh.
func (ls *LiveSync) RefreshChats(ctx context.Context) error {
	chats, err := ls.api.ListChats(ctx)
	if err != nil {
		return fmt.Errorf("refresh chats: %w", err)
	}
	ls.applyChatList(chats)
	return nil
}

// SelectChat opens a chat: loads its thread, clears its unread count,
// and makes it the target of subsequent push appends.
func (ls *LiveSync) SelectChat(ctx context.Context, chatID string) error {
	msgs, err := ls.api.ListMessages(ctx, chatID)
	if err != nil {
		return fmt.Errorf("open chat %s: %w", chatID, err)
	}

	ls.mu.Lock()
	ls.selected = chatID
	ls.thread = msgs
	ls.threadIDs = make(map[string]bool, len(msgs))
	for _, m := range msgs {
		if m.ID != "" {
			ls.threadIDs[m.ID] = true
		}
	}
	for i := range ls.chats {
		if ls.chats[i].ID == chatID {
			ls.chats[i].Unread = 0
		}
	}
	ls.mu.Unlock()

	ls.emit(protocol.EventChatList, ls.Chats())
	return nil
}

// Selected returns the open chat id, empty when none.
func (ls *LiveSync) Selected() string {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.selected
}

// SendChat sends a message into the open chat and appends it locally.
// The optimistic copy carries its own id so a later echo from the push
// channel with the same id is deduplicated.
func (ls *LiveSync) SendChat(ctx context.Context, content string) error {
	ls.mu.Lock()
	chatID := ls.selected
	ls.mu.Unlock()
	if chatID == "" {
		return fmt.Errorf("send: no chat selected")
	}

	if err := ls.api.SendChatMessage(ctx, chatID, content); err != nil {
		return fmt.Errorf("send to chat %s: %w", chatID, err)
	}

	now := time.Now().UTC()
	ls.applyNewMessage(ChatMessage{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Sender:    "operator",
		Content:   content,
		Timestamp: &now,
	})
	return nil
}
