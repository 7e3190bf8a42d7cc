package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/opsdesk/pkg/protocol"
)

const (
	reconnectBackoff = 3 * time.Second
	pollInterval     = 3 * time.Second
)

// Emitter publishes a bridge event toward the dashboard clients.
type Emitter func(event string, payload any)

// LiveSync owns the bridge connection: the push socket (exclusively —
// any re-init or logout closes the old socket before opening a new one),
// the poll fallback, and the chat surface state. Two producers (push and
// poll) write phase updates into one slot; a confirmed push connection
// disables the poll loop.
type LiveSync struct {
	api   API
	wsURL string
	token string
	emit  Emitter

	// dial is swappable in tests.
	dial func(ctx context.Context) (*Socket, error)

	mu             sync.Mutex
	state          ConnectionState
	qrPayload      string
	chats          []Chat
	selected       string
	thread         []ChatMessage
	threadIDs      map[string]bool
	sock           *Socket
	socketOpen     bool
	reconnectArmed bool
	polling        bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLiveSync creates the live sync channel. emit must be non-nil.
func NewLiveSync(api API, wsURL, token string, emit Emitter) *LiveSync {
	ls := &LiveSync{
		api:       api,
		wsURL:     wsURL,
		token:     token,
		emit:      emit,
		state:     ConnectionState{Phase: PhaseInitializing, Channel: ChannelNone},
		threadIDs: make(map[string]bool),
	}
	ls.dial = func(ctx context.Context) (*Socket, error) {
		return DialSocket(ctx, ls.wsURL, ls.token)
	}
	return ls
}

// State returns a copy of the connection state.
func (ls *LiveSync) State() ConnectionState {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.state
}

// QRPayload returns the current pairing payload, if any.
func (ls *LiveSync) QRPayload() string {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.qrPayload
}

// Chats returns a copy of the chat list.
func (ls *LiveSync) Chats() []Chat {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	out := make([]Chat, len(ls.chats))
	copy(out, ls.chats)
	return out
}

// Thread returns a copy of the open chat's message thread.
func (ls *LiveSync) Thread() []ChatMessage {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	out := make([]ChatMessage, len(ls.thread))
	copy(out, ls.thread)
	return out
}

// Start initializes the bridge session and brings up the push channel,
// with the poll loop covering until the socket is confirmed.
func (ls *LiveSync) Start(ctx context.Context) {
	lctx, cancel := context.WithCancel(ctx)
	ls.ctx = lctx
	ls.cancel = cancel
	ls.wg.Add(1)
	go func() {
		defer ls.wg.Done()
		ls.initSession(lctx)
	}()
}

// Stop tears down the socket and all loops.
func (ls *LiveSync) Stop() {
	if ls.cancel != nil {
		ls.cancel()
	}
	ls.mu.Lock()
	sock := ls.sock
	ls.sock = nil
	ls.mu.Unlock()
	if sock != nil {
		sock.Close(1000, "shutdown")
	}
	ls.wg.Wait()
}

// ReInit retries after an error phase. It is the only way out of error.
func (ls *LiveSync) ReInit() {
	ls.mu.Lock()
	ls.state = ConnectionState{Phase: PhaseInitializing, Channel: ChannelNone}
	ls.qrPayload = ""
	ls.mu.Unlock()
	ls.emitState()
	if ls.ctx != nil {
		ls.initSession(ls.ctx)
	}
}

// Logout clears all session-scoped state, tears down the push socket
// first to avoid duplicate dispatch, then re-initializes.
func (ls *LiveSync) Logout(ctx context.Context) error {
	ls.mu.Lock()
	sock := ls.sock
	ls.sock = nil
	ls.socketOpen = false
	ls.chats = nil
	ls.selected = ""
	ls.thread = nil
	ls.threadIDs = make(map[string]bool)
	ls.qrPayload = ""
	ls.state = ConnectionState{Phase: PhaseInitializing, Channel: ChannelNone}
	ls.mu.Unlock()

	if sock != nil {
		sock.Close(1000, "logout")
	}

	if err := ls.api.Logout(ctx); err != nil {
		slog.Warn("bridge logout failed", "error", err)
	}
	ls.emit(protocol.EventChatList, []Chat{})
	ls.emitState()

	if ls.ctx != nil {
		ls.initSession(ls.ctx)
	}
	return nil
}

// initSession asks the bridge for a session and races the socket up.
func (ls *LiveSync) initSession(ctx context.Context) {
	st, err := ls.api.InitSession(ctx)
	if err != nil {
		slog.Warn("bridge init failed", "error", err)
		ls.applyStatus(Status{Phase: PhaseError}, ChannelNone, err.Error())
		return
	}
	ls.applyStatus(st, ChannelPoll, "")

	ls.wg.Add(1)
	go func() {
		defer ls.wg.Done()
		ls.connect(ctx)
	}()
	ls.ensurePolling(ctx)
}

// connect dials the push socket, sends the subscribe handshake, and
// pumps inbound envelopes until close.
func (ls *LiveSync) connect(ctx context.Context) {
	sock, err := ls.dial(ctx)
	if err != nil {
		slog.Warn("bridge socket dial failed", "error", err)
		return // poll loop keeps covering
	}

	// Exclusive ownership: drop any previous socket before installing.
	ls.mu.Lock()
	prev := ls.sock
	ls.sock = sock
	ls.socketOpen = true
	ls.state.Channel = ChannelSocket
	ls.reconnectArmed = false
	ls.mu.Unlock()
	if prev != nil {
		prev.Close(1000, "superseded")
	}
	ls.emitState()

	sub, _ := json.Marshal(map[string]string{"type": protocol.BridgeTypeSubscribe})
	if err := sock.Write(ctx, sub); err != nil {
		slog.Warn("bridge subscribe failed", "error", err)
	}

	for {
		data, err := sock.Read(ctx)
		if err != nil {
			ls.handleSocketClose(ctx, err)
			return
		}
		ls.Dispatch(data)
	}
}

// handleSocketClose records the loss and schedules at most one reconnect
// attempt, and only when the connection had been established (ready/qr).
// error and initializing phases never reconnect automatically.
func (ls *LiveSync) handleSocketClose(ctx context.Context, cause error) {
	ls.mu.Lock()
	ls.socketOpen = false
	ls.sock = nil
	if ls.state.Channel == ChannelSocket {
		ls.state.Channel = ChannelNone
	}
	phase := ls.state.Phase
	arm := (phase == PhaseReady || phase == PhaseQR) && !ls.reconnectArmed
	if arm {
		ls.reconnectArmed = true
	}
	ls.mu.Unlock()

	slog.Warn("bridge socket closed", "code", closeCode(cause), "error", cause, "phase", phase)
	ls.emitState()
	ls.ensurePolling(ctx)

	if !arm || ctx.Err() != nil {
		return
	}

	ls.wg.Add(1)
	go func() {
		defer ls.wg.Done()
		select {
		case <-ctx.Done():
		case <-time.After(reconnectBackoff):
			ls.connect(ctx)
		}
	}()
}

// ensurePolling starts the fallback status poll if it should be running.
// The loop exits on its own once the socket is confirmed or the phase
// settles in ready/error.
func (ls *LiveSync) ensurePolling(ctx context.Context) {
	ls.mu.Lock()
	if ls.polling || !ls.shouldPollLocked() {
		ls.mu.Unlock()
		return
	}
	ls.polling = true
	ls.mu.Unlock()

	ls.wg.Add(1)
	go func() {
		defer ls.wg.Done()
		ls.pollLoop(ctx)
	}()
}

func (ls *LiveSync) shouldPollLocked() bool {
	return !ls.socketOpen && ls.state.Phase != PhaseReady && ls.state.Phase != PhaseError
}

// pollLoop is the sole source of phase truth while the socket is down.
// Single-shot timers re-armed after each completed poll; stops the
// moment the socket reports open.
func (ls *LiveSync) pollLoop(ctx context.Context) {
	defer func() {
		ls.mu.Lock()
		ls.polling = false
		ls.mu.Unlock()
	}()

	for {
		ls.mu.Lock()
		keep := ls.shouldPollLocked()
		ls.mu.Unlock()
		if !keep {
			return
		}

		st, err := ls.api.GetStatus(ctx)
		if err != nil {
			slog.Warn("bridge status poll failed", "error", err)
		} else {
			ls.applyStatus(st, ChannelPoll, "")
		}

		t := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// applyStatus moves the phase through the state machine guard and
// publishes changes. Push updates keep the socket as the channel.
func (ls *LiveSync) applyStatus(st Status, via Channel, errMsg string) {
	ls.mu.Lock()
	from := ls.state.Phase
	if !canEnter(from, st.Phase) {
		ls.mu.Unlock()
		slog.Debug("bridge phase transition rejected", "from", from, "to", st.Phase)
		return
	}
	changed := from != st.Phase || errMsg != ls.state.LastError
	ls.state.Phase = st.Phase
	ls.state.LastError = errMsg
	if !ls.socketOpen {
		ls.state.Channel = via
	}
	qrChanged := st.QRPayload != "" && st.QRPayload != ls.qrPayload
	if st.QRPayload != "" {
		ls.qrPayload = st.QRPayload
	}
	ls.mu.Unlock()

	if changed {
		ls.emitState()
	}
	if qrChanged {
		ls.emit(protocol.EventBridgeQR, map[string]string{"qr": st.QRPayload})
	}
}

func (ls *LiveSync) emitState() {
	ls.emit(protocol.EventBridgeStatus, ls.State())
}
