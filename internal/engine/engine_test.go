package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/opsdesk/internal/bus"
	"github.com/nextlevelbuilder/opsdesk/internal/config"
	"github.com/nextlevelbuilder/opsdesk/internal/conversation"
	"github.com/nextlevelbuilder/opsdesk/internal/store"
)

type fakeStore struct {
	mu          sync.Mutex
	msgs        []store.Message
	sessions    []store.HandoffSession
	fail        bool
	threadLists int
}

func (f *fakeStore) ListMessages(ctx context.Context, filter store.MessageFilter) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, store.ErrTransient
	}
	if filter.SessionID == "" {
		return f.msgs, nil
	}
	f.threadLists++
	var out []store.Message
	for _, m := range f.msgs {
		if m.SessionID == filter.SessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) ListHandoffSessions(ctx context.Context, _ store.SessionFilter) ([]store.HandoffSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, store.ErrTransient
	}
	return f.sessions, nil
}

type fakeHandoffAPI struct{}

func (fakeHandoffAPI) Approve(ctx context.Context, id string) error           { return nil }
func (fakeHandoffAPI) Resolve(ctx context.Context, id string) error           { return nil }
func (fakeHandoffAPI) SendMessage(ctx context.Context, id, text string) error { return nil }

type eventRecorder struct {
	mu     sync.Mutex
	events []bus.Event
}

func (r *eventRecorder) record(e bus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Name
	}
	return out
}

func newTestEngine(fs *fakeStore) (*Engine, *eventRecorder) {
	rec := &eventRecorder{}
	b := bus.NewEventBus()
	b.Subscribe("test", rec.record)
	e := New(config.Default(), fs, fakeHandoffAPI{}, b, nil)
	return e, rec
}

func msgAt(id, session, contact string, sec int) store.Message {
	t := time.Date(2025, 6, 1, 10, 0, sec, 0, time.UTC)
	return store.Message{ID: id, SessionID: session, Contact: contact, Sender: store.SenderUser, Content: "msg " + id, Timestamp: &t}
}

func TestRefreshListBuildsSnapshot(t *testing.T) {
	fs := &fakeStore{
		msgs: []store.Message{
			msgAt("m1", "sessA", "", 0),
			msgAt("m2", "sessA", "", 10),
			msgAt("m3", "sessB", "", 5),
		},
		sessions: []store.HandoffSession{{SessionID: "sessA", Status: store.StatusPending}},
	}
	e, rec := newTestEngine(fs)

	if err := e.refreshList(context.Background()); err != nil {
		t.Fatal(err)
	}

	page := e.ConversationPage(1, 0, conversation.Filter{})
	if page.Total != 2 {
		t.Fatalf("groups = %d, want 2", page.Total)
	}
	if got := len(e.Sessions()); got != 1 {
		t.Fatalf("sessions = %d, want 1", got)
	}

	names := rec.names()
	var sawConv, sawSess bool
	for _, n := range names {
		if n == "conversations.updated" {
			sawConv = true
		}
		if n == "sessions.updated" {
			sawSess = true
		}
	}
	if !sawConv || !sawSess {
		t.Fatalf("broadcasts = %v", names)
	}
}

func TestTransientFailureKeepsSnapshot(t *testing.T) {
	fs := &fakeStore{msgs: []store.Message{msgAt("m1", "sessA", "", 0)}}
	e, rec := newTestEngine(fs)

	if err := e.refreshList(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := e.ConversationPage(1, 0, conversation.Filter{}).Total

	fs.mu.Lock()
	fs.fail = true
	fs.mu.Unlock()

	err := e.refreshList(context.Background())
	if !errors.Is(err, store.ErrTransient) {
		t.Fatalf("err = %v, want transient", err)
	}
	if got := e.ConversationPage(1, 0, conversation.Filter{}).Total; got != before {
		t.Fatalf("snapshot changed on failure: %d != %d", got, before)
	}

	sawBanner := false
	for _, n := range rec.names() {
		if n == "banner" {
			sawBanner = true
		}
	}
	if !sawBanner {
		t.Fatal("transient failure should raise a banner")
	}
}

func TestConversationPageUsesConfiguredSize(t *testing.T) {
	fs := &fakeStore{}
	for i := 0; i < 30; i++ {
		fs.msgs = append(fs.msgs, msgAt(
			"m"+string(rune('a'+i%26))+string(rune('0'+i/26)),
			"sess"+string(rune('a'+i%26))+string(rune('0'+i/26)),
			"", i))
	}
	cfg := config.Default()
	cfg.Refresh.PageSize = 7
	b := bus.NewEventBus()
	e := New(cfg, fs, fakeHandoffAPI{}, b, nil)

	if err := e.refreshList(context.Background()); err != nil {
		t.Fatal(err)
	}
	page := e.ConversationPage(1, 0, conversation.Filter{})
	if len(page.Items) != 7 {
		t.Fatalf("page items = %d, want 7", len(page.Items))
	}
}

func TestThreadRefreshStopsWhenSessionLeavesActive(t *testing.T) {
	now := time.Now()
	fs := &fakeStore{
		msgs:     []store.Message{msgAt("m1", "s1", "", 0)},
		sessions: []store.HandoffSession{{SessionID: "s1", Status: store.StatusActive, LastActivityAt: &now}},
	}
	e, _ := newTestEngine(fs)
	if err := e.refreshList(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := e.SendReply(context.Background(), "s1", "hello"); err != nil {
		t.Fatal(err)
	}
	if id, active := e.refresher.Selected(); id != "s1" || !active {
		t.Fatalf("selection = %q/%v after send, want s1/active", id, active)
	}
	if err := e.refreshThread(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	fs.mu.Lock()
	base := fs.threadLists
	fs.mu.Unlock()
	if base == 0 {
		t.Fatal("thread refresh for the active session never hit the store")
	}

	// The backend resolves the session; the next list refresh picks it up.
	fs.mu.Lock()
	fs.sessions = []store.HandoffSession{{SessionID: "s1", Status: store.StatusResolved, LastActivityAt: &now}}
	fs.mu.Unlock()
	if err := e.refreshList(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := e.refreshThread(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	if got := func() int { fs.mu.Lock(); defer fs.mu.Unlock(); return fs.threadLists }(); got != base {
		t.Fatalf("thread refresh hit the store for a resolved session: %d -> %d", base, got)
	}
	if id, _ := e.refresher.Selected(); id != "" {
		t.Fatalf("selection survived deactivation: %q", id)
	}
}

func TestBridgeSurfaceWithoutBridge(t *testing.T) {
	e, _ := newTestEngine(&fakeStore{})
	if e.BridgeState().Phase != "error" {
		t.Fatalf("phase = %s", e.BridgeState().Phase)
	}
	if err := e.SendBridgeChat(context.Background(), "x"); err == nil {
		t.Fatal("expected error without bridge")
	}
	if err := e.OpenBridgeChat(context.Background(), "c1"); err == nil {
		t.Fatal("expected error without bridge")
	}
}
