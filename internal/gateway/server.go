package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/opsdesk/internal/bridge"
	"github.com/nextlevelbuilder/opsdesk/internal/bus"
	"github.com/nextlevelbuilder/opsdesk/internal/config"
	"github.com/nextlevelbuilder/opsdesk/internal/conversation"
	"github.com/nextlevelbuilder/opsdesk/internal/handoff"
	"github.com/nextlevelbuilder/opsdesk/pkg/protocol"
)

// Core is the engine surface the gateway exposes to dashboard clients.
type Core interface {
	ConversationPage(page, limit int, f conversation.Filter) conversation.PageResult
	Sessions() []handoff.DecoratedSession
	Approve(ctx context.Context, sessionID string) error
	Resolve(ctx context.Context, sessionID string, confirmed bool) error
	SendReply(ctx context.Context, sessionID, content string) error
	GrantInteraction()
	SelectSession(sessionID string)

	BridgeState() bridge.ConnectionState
	BridgeQR() string
	BridgeChats() []bridge.Chat
	BridgeThread() []bridge.ChatMessage
	OpenBridgeChat(ctx context.Context, chatID string) error
	SendBridgeChat(ctx context.Context, content string) error
	BridgeLogout(ctx context.Context) error
	BridgeReInit()
}

// Server is the dashboard-facing server handling WebSocket and HTTP connections.
type Server struct {
	cfg      *config.Config
	eventPub bus.EventPublisher
	core     Core

	upgrader    websocket.Upgrader
	rateLimiter *RateLimiter
	clients     map[string]*Client
	mu          sync.RWMutex

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a new gateway server.
func NewServer(cfg *config.Config, eventPub bus.EventPublisher, core Core) *Server {
	s := &Server{
		cfg:      cfg,
		eventPub: eventPub,
		core:     core,
		clients:  make(map[string]*Client),
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	s.rateLimiter = NewRateLimiter(cfg.Gateway.RateLimitRPM, 5)
	return s
}

// checkOrigin validates the WebSocket origin against the allowed origins
// whitelist. No configured origins allows all. An empty Origin header
// (non-browser clients) is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Gateway.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("security.cors_rejected", "origin", origin)
	return false
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("GET /api/conversations", s.auth(s.handleConversations))
	mux.HandleFunc("GET /api/sessions", s.auth(s.handleSessions))
	mux.HandleFunc("POST /api/sessions/{id}/approve", s.auth(s.handleApprove))
	mux.HandleFunc("POST /api/sessions/{id}/resolve", s.auth(s.handleResolve))
	mux.HandleFunc("POST /api/sessions/{id}/messages", s.auth(s.handleSendReply))

	mux.HandleFunc("GET /api/bridge/status", s.auth(s.handleBridgeStatus))
	mux.HandleFunc("GET /api/bridge/chats", s.auth(s.handleBridgeChats))
	mux.HandleFunc("GET /api/bridge/chats/{id}/messages", s.auth(s.handleBridgeThread))
	mux.HandleFunc("POST /api/bridge/chats/{id}/messages", s.auth(s.handleBridgeSend))
	mux.HandleFunc("POST /api/bridge/logout", s.auth(s.handleBridgeLogout))
	mux.HandleFunc("POST /api/bridge/reinit", s.auth(s.handleBridgeReInit))

	s.mux = mux
	return mux
}

// Start begins listening for WebSocket and HTTP connections.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	slog.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// handleWebSocket upgrades HTTP to WebSocket and manages the connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, s)
	s.registerClient(client)

	defer func() {
		s.unregisterClient(client)
		client.Close()
	}()

	client.Run(r.Context())
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","protocol":%d}`, protocol.ProtocolVersion)
}

// BroadcastEvent sends an event to all connected clients.
func (s *Server) BroadcastEvent(event protocol.EventFrame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, client := range s.clients {
		client.SendEvent(event)
	}
}

func (s *Server) registerClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c

	s.eventPub.Subscribe(c.id, func(event bus.Event) {
		c.SendEvent(*protocol.NewEvent(event.Name, event.Payload))
	})

	slog.Info("client connected", "id", c.id)
}

func (s *Server) unregisterClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
	s.eventPub.Unsubscribe(c.id)
	s.rateLimiter.Forget(c.id)
	slog.Info("client disconnected", "id", c.id)
}

// StartTestServer creates a listener on :0 (random port) and returns the
// actual address and a start function. Used for integration tests.
func StartTestServer(s *Server, ctx context.Context) (addr string, start func()) {
	mux := s.BuildMux()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic("listen: " + err.Error())
	}

	s.httpServer = &http.Server{Handler: mux}
	addr = ln.Addr().String()

	start = func() {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.httpServer.Shutdown(shutdownCtx)
		}()
		s.httpServer.Serve(ln)
	}

	return addr, start
}
