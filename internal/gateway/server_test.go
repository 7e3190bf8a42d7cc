package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/opsdesk/internal/bridge"
	"github.com/nextlevelbuilder/opsdesk/internal/bus"
	"github.com/nextlevelbuilder/opsdesk/internal/config"
	"github.com/nextlevelbuilder/opsdesk/internal/conversation"
	"github.com/nextlevelbuilder/opsdesk/internal/handoff"
	"github.com/nextlevelbuilder/opsdesk/pkg/protocol"
)

type fakeCore struct {
	approveErr  error
	resolveErr  error
	sendErr     error
	sent        []string
	interaction int
	opened      []string
	selected    []string
}

func (f *fakeCore) ConversationPage(page, limit int, _ conversation.Filter) conversation.PageResult {
	return conversation.PageResult{Page: 1, Pages: 1, Total: 0, Items: []conversation.Group{}}
}

func (f *fakeCore) Sessions() []handoff.DecoratedSession { return nil }

func (f *fakeCore) Approve(ctx context.Context, id string) error { return f.approveErr }

func (f *fakeCore) Resolve(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return handoff.ErrConfirmationRequired
	}
	return f.resolveErr
}

func (f *fakeCore) SendReply(ctx context.Context, id, content string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, id+":"+content)
	return nil
}

func (f *fakeCore) GrantInteraction()       { f.interaction++ }
func (f *fakeCore) SelectSession(id string) { f.selected = append(f.selected, id) }

func (f *fakeCore) BridgeState() bridge.ConnectionState {
	return bridge.ConnectionState{Phase: bridge.PhaseReady, Channel: bridge.ChannelSocket}
}
func (f *fakeCore) BridgeQR() string                   { return "" }
func (f *fakeCore) BridgeChats() []bridge.Chat         { return nil }
func (f *fakeCore) BridgeThread() []bridge.ChatMessage { return nil }

func (f *fakeCore) OpenBridgeChat(ctx context.Context, chatID string) error {
	f.opened = append(f.opened, chatID)
	return nil
}
func (f *fakeCore) SendBridgeChat(ctx context.Context, content string) error { return nil }
func (f *fakeCore) BridgeLogout(ctx context.Context) error                   { return nil }
func (f *fakeCore) BridgeReInit()                                            {}

func newTestServer(t *testing.T, core Core, token string) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Gateway.Token = token
	s := NewServer(cfg, bus.NewEventBus(), core)
	srv := httptest.NewServer(s.BuildMux())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeCore{}, "")
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, &fakeCore{}, "secret")

	resp, err := http.Get(srv.URL + "/api/sessions")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", resp.StatusCode)
	}
}

func TestConversationsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeCore{}, "")
	resp, err := http.Get(srv.URL + "/api/conversations?page=1&type=guest")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var page conversation.PageResult
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatal(err)
	}
	if page.Page != 1 {
		t.Fatalf("page = %d", page.Page)
	}
}

func TestActionErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		core *fakeCore
		path string
		body string
		want int
	}{
		{"stale approve conflicts", &fakeCore{approveErr: handoff.ErrStaleAction}, "/api/sessions/s1/approve", "", http.StatusConflict},
		{"unknown session 404", &fakeCore{approveErr: handoff.ErrUnknownSession}, "/api/sessions/s1/approve", "", http.StatusNotFound},
		{"resolve needs confirmation", &fakeCore{}, "/api/sessions/s1/resolve", `{}`, http.StatusPreconditionRequired},
		{"confirmed resolve ok", &fakeCore{}, "/api/sessions/s1/resolve", `{"confirmed":true}`, http.StatusOK},
		{"send to inactive conflicts", &fakeCore{sendErr: handoff.ErrNotActive}, "/api/sessions/s1/messages", `{"content":"hi"}`, http.StatusConflict},
		{"send without content rejected", &fakeCore{}, "/api/sessions/s1/messages", `{}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, tc.core, "")
			resp, err := http.Post(srv.URL+tc.path, "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestMessageLengthCap(t *testing.T) {
	core := &fakeCore{}
	cfg := config.Default()
	cfg.Gateway.MaxMessageChars = 10
	s := NewServer(cfg, bus.NewEventBus(), core)
	srv := httptest.NewServer(s.BuildMux())
	defer srv.Close()

	long := `{"content":"` + strings.Repeat("x", 50) + `"}`
	resp, err := http.Post(srv.URL+"/api/sessions/s1/messages", "application/json", strings.NewReader(long))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", resp.StatusCode)
	}
	if len(core.sent) != 0 {
		t.Fatal("oversized message reached the core")
	}
}

func TestBridgeEndpoints(t *testing.T) {
	core := &fakeCore{}
	srv := newTestServer(t, core, "")

	resp, err := http.Get(srv.URL + "/api/bridge/status")
	if err != nil {
		t.Fatal(err)
	}
	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if status["phase"] != "ready" {
		t.Fatalf("phase = %v", status["phase"])
	}

	resp, err = http.Get(srv.URL + "/api/bridge/chats/c7/messages")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(core.opened) != 1 || core.opened[0] != "c7" {
		t.Fatalf("opened = %v", core.opened)
	}
}

func TestSelectSessionFrame(t *testing.T) {
	core := &fakeCore{}
	s := NewServer(config.Default(), bus.NewEventBus(), core)
	c := NewClient(nil, s)

	c.handleFrame(context.Background(), protocol.ClientFrame{Type: protocol.ClientSelectSession, SessionID: "s1"})
	// An empty id deselects and stops the fast thread cadence.
	c.handleFrame(context.Background(), protocol.ClientFrame{Type: protocol.ClientSelectSession})

	if len(core.selected) != 2 || core.selected[0] != "s1" || core.selected[1] != "" {
		t.Fatalf("selected = %v, want [s1 \"\"]", core.selected)
	}
	if core.interaction != 2 {
		t.Fatalf("interaction grants = %d, want 2", core.interaction)
	}
}

func TestRateLimiter(t *testing.T) {
	t.Run("disabled allows everything", func(t *testing.T) {
		rl := NewRateLimiter(0, 5)
		for i := 0; i < 100; i++ {
			if !rl.Allow("a") {
				t.Fatal("disabled limiter rejected")
			}
		}
	})

	t.Run("burst then rejects", func(t *testing.T) {
		rl := NewRateLimiter(60, 3)
		allowed := 0
		for i := 0; i < 10; i++ {
			if rl.Allow("a") {
				allowed++
			}
		}
		if allowed != 3 {
			t.Fatalf("allowed = %d, want burst of 3", allowed)
		}
	})

	t.Run("clients limited independently", func(t *testing.T) {
		rl := NewRateLimiter(60, 1)
		if !rl.Allow("a") || !rl.Allow("b") {
			t.Fatal("fresh clients should pass")
		}
	})
}
