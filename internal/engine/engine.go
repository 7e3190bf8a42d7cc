// Package engine composes the conversation aggregator, the handoff
// controller, the alert notifier, and the bridge live sync behind a
// single lifecycle. All mutable state lives on the Engine; refresh
// results land through last-writer-wins snapshot swaps.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/opsdesk/internal/bridge"
	"github.com/nextlevelbuilder/opsdesk/internal/bus"
	"github.com/nextlevelbuilder/opsdesk/internal/config"
	"github.com/nextlevelbuilder/opsdesk/internal/conversation"
	"github.com/nextlevelbuilder/opsdesk/internal/handoff"
	"github.com/nextlevelbuilder/opsdesk/internal/store"
	"github.com/nextlevelbuilder/opsdesk/internal/telemetry"
	"github.com/nextlevelbuilder/opsdesk/pkg/protocol"
)

// Engine owns the session dashboard state and its background refresh.
type Engine struct {
	cfg    *config.Config
	msgs   store.MessageStore
	events bus.EventPublisher
	now    func() time.Time

	controller *handoff.Controller
	notifier   *handoff.Notifier
	refresher  *handoff.Refresher
	live       *bridge.LiveSync

	mu       sync.RWMutex
	groups   []conversation.Group
	pageSize int

	cancel context.CancelFunc
}

// New wires an Engine from its collaborators. live may be nil when the
// bridge is not configured.
func New(cfg *config.Config, msgs store.MessageStore, api store.HandoffAPI, events bus.EventPublisher, live *bridge.LiveSync) *Engine {
	e := &Engine{
		cfg:      cfg,
		msgs:     msgs,
		events:   events,
		now:      time.Now,
		live:     live,
		pageSize: cfg.Refresh.PageSize,
	}
	if e.pageSize <= 0 {
		e.pageSize = 20
	}

	e.controller = handoff.NewController(api)
	e.notifier = handoff.NewNotifier(&busAlertSink{events: events}, handoff.AlertTone)
	e.refresher = handoff.NewRefresher(e.refreshList, e.refreshThread)

	r := cfg.Snapshot()
	e.applyRefreshConfig(r)
	return e
}

// busAlertSink forwards notifier output onto the event bus so every
// connected dashboard client receives it.
type busAlertSink struct {
	events bus.EventPublisher
}

func (s *busAlertSink) Toast(n handoff.Notification) {
	s.events.Broadcast(bus.Event{Name: protocol.EventAlertToast, Payload: n})
}

func (s *busAlertSink) Tone(wav []byte) {
	s.events.Broadcast(bus.Event{Name: protocol.EventAlertTone, Payload: map[string]any{
		"mime": "audio/wav",
		"data": wav,
	}})
}

// Start launches the refresh loops and the bridge live sync.
func (e *Engine) Start(ctx context.Context) {
	ectx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.refresher.Start(ectx)
	if e.live != nil {
		e.live.Start(ectx)
	}
	slog.Info("engine started")
}

// Stop halts refresh loops and tears down the bridge connection.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.refresher.Stop()
	if e.live != nil {
		e.live.Stop()
	}
	e.events.Broadcast(bus.Event{Name: protocol.EventShutdown})
	slog.Info("engine stopped")
}

// ApplyRefreshConfig picks up hot-reloaded cadence settings.
func (e *Engine) ApplyRefreshConfig(r config.RefreshConfig) {
	e.applyRefreshConfig(r)
}

func (e *Engine) applyRefreshConfig(r config.RefreshConfig) {
	list := handoff.DefaultListInterval
	if r.ListIntervalSec > 0 {
		list = time.Duration(r.ListIntervalSec) * time.Second
	}
	thread := handoff.DefaultThreadInterval
	if r.ThreadIntervalSec > 0 {
		thread = time.Duration(r.ThreadIntervalSec) * time.Second
	}
	e.refresher.SetIntervals(list, thread)
	e.refresher.SetAutoRefresh(r.AutoRefresh)
	if r.PageSize > 0 {
		e.mu.Lock()
		e.pageSize = r.PageSize
		e.mu.Unlock()
	}
}

// refreshList pulls messages and handoff sessions, rebuilds the
// aggregate, reconciles alerts, and broadcasts fresh snapshots.
// Transient failures keep the previous snapshot on screen.
func (e *Engine) refreshList(ctx context.Context) error {
	ctx, span := telemetry.Tracer().Start(ctx, "engine.refresh_list")
	defer span.End()

	msgs, err := e.msgs.ListMessages(ctx, store.MessageFilter{})
	if err != nil {
		e.banner("warn", "conversation refresh failed")
		return fmt.Errorf("list messages: %w", err)
	}
	sessions, err := e.msgs.ListHandoffSessions(ctx, store.SessionFilter{})
	if err != nil {
		e.banner("warn", "session refresh failed")
		return fmt.Errorf("list sessions: %w", err)
	}

	groups := conversation.Aggregate(msgs)
	span.SetAttributes(
		attribute.Int("messages", len(msgs)),
		attribute.Int("groups", len(groups)),
		attribute.Int("sessions", len(sessions)),
	)

	now := e.now()
	e.mu.Lock()
	e.groups = groups
	e.mu.Unlock()

	e.controller.SetSessions(sessions)
	e.notifier.OnSessionsRefreshed(sessions, now)

	e.events.Broadcast(bus.Event{Name: protocol.EventConversations, Payload: e.ConversationPage(1, 0, conversation.Filter{})})
	e.events.Broadcast(bus.Event{Name: protocol.EventSessions, Payload: e.Sessions()})
	return nil
}

// refreshThread re-reads the selected session's messages at the faster
// cadence so the open thread stays current. The cadence is tied to the
// session's display status: the moment it leaves active the selection
// is dropped and the fast polling stops.
func (e *Engine) refreshThread(ctx context.Context, sessionID string) error {
	if s, ok := e.controller.Get(sessionID); !ok || s.DisplayStatus != store.StatusActive {
		e.refresher.Select("", false)
		return nil
	}

	ctx, span := telemetry.Tracer().Start(ctx, "engine.refresh_thread")
	span.SetAttributes(attribute.String("session", sessionID))
	defer span.End()

	msgs, err := e.msgs.ListMessages(ctx, store.MessageFilter{SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("refresh thread %s: %w", sessionID, err)
	}
	groups := conversation.Aggregate(msgs)
	if len(groups) == 0 {
		return nil
	}
	e.events.Broadcast(bus.Event{Name: protocol.EventConversations, Payload: conversation.PageResult{
		Items: groups, Total: len(groups), Pages: 1, Page: 1,
	}})
	return nil
}

func (e *Engine) banner(level, message string) {
	e.events.Broadcast(bus.Event{Name: protocol.EventBanner, Payload: map[string]string{
		"level":   level,
		"message": message,
	}})
}

// ConversationPage returns one page of the current aggregate.
func (e *Engine) ConversationPage(page, limit int, f conversation.Filter) conversation.PageResult {
	e.mu.RLock()
	groups := e.groups
	size := e.pageSize
	e.mu.RUnlock()
	if limit <= 0 {
		limit = size
	}
	return conversation.Page(groups, f, page, limit)
}

// Sessions returns the handoff sessions with display staleness applied.
func (e *Engine) Sessions() []handoff.DecoratedSession {
	return e.controller.Sessions()
}

// Approve moves a pending session to active.
func (e *Engine) Approve(ctx context.Context, sessionID string) error {
	ctx, span := telemetry.Tracer().Start(ctx, "engine.approve")
	span.SetAttributes(attribute.String("session", sessionID))
	defer span.End()

	if err := e.controller.Approve(ctx, sessionID); err != nil {
		return err
	}
	e.events.Broadcast(bus.Event{Name: protocol.EventSessions, Payload: e.Sessions()})
	return nil
}

// Resolve closes out a session after operator confirmation.
func (e *Engine) Resolve(ctx context.Context, sessionID string, confirmed bool) error {
	ctx, span := telemetry.Tracer().Start(ctx, "engine.resolve")
	span.SetAttributes(attribute.String("session", sessionID))
	defer span.End()

	if err := e.controller.Resolve(ctx, sessionID, confirmed); err != nil {
		return err
	}
	e.events.Broadcast(bus.Event{Name: protocol.EventSessions, Payload: e.Sessions()})
	return nil
}

// SendReply sends an operator message into an active session.
func (e *Engine) SendReply(ctx context.Context, sessionID, content string) error {
	ctx, span := telemetry.Tracer().Start(ctx, "engine.send_reply")
	span.SetAttributes(attribute.String("session", sessionID))
	defer span.End()

	if err := e.controller.Send(ctx, sessionID, content); err != nil {
		return err
	}
	e.refresher.Select(sessionID, true)
	return nil
}

// GrantInteraction records operator interaction, releasing any queued
// alert tone.
func (e *Engine) GrantInteraction() {
	e.notifier.GrantInteraction()
}

// SelectSession points the fast thread refresh at a session. An empty
// id deselects.
func (e *Engine) SelectSession(sessionID string) {
	active := false
	if s, ok := e.controller.Get(sessionID); ok {
		active = s.DisplayStatus == store.StatusActive
	}
	e.refresher.Select(sessionID, active)
}

// Bridge surface, forwarded to the live sync channel.

func (e *Engine) BridgeState() bridge.ConnectionState {
	if e.live == nil {
		return bridge.ConnectionState{Phase: bridge.PhaseError, Channel: bridge.ChannelNone, LastError: "bridge not configured"}
	}
	return e.live.State()
}

func (e *Engine) BridgeQR() string {
	if e.live == nil {
		return ""
	}
	return e.live.QRPayload()
}

func (e *Engine) BridgeChats() []bridge.Chat {
	if e.live == nil {
		return nil
	}
	return e.live.Chats()
}

func (e *Engine) BridgeThread() []bridge.ChatMessage {
	if e.live == nil {
		return nil
	}
	return e.live.Thread()
}

func (e *Engine) OpenBridgeChat(ctx context.Context, chatID string) error {
	if e.live == nil {
		return fmt.Errorf("bridge not configured")
	}
	return e.live.SelectChat(ctx, chatID)
}

func (e *Engine) SendBridgeChat(ctx context.Context, content string) error {
	if e.live == nil {
		return fmt.Errorf("bridge not configured")
	}
	return e.live.SendChat(ctx, content)
}

func (e *Engine) BridgeLogout(ctx context.Context) error {
	if e.live == nil {
		return fmt.Errorf("bridge not configured")
	}
	return e.live.Logout(ctx)
}

func (e *Engine) BridgeReInit() {
	if e.live != nil {
		e.live.ReInit()
	}
}
