package handoff

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/opsdesk/internal/store"
)

// Notification is one operator-facing toast. TargetSession lets the UI
// jump straight to the session.
type Notification struct {
	ID            string `json:"id"`
	TargetSession string `json:"targetSession"`
	Title         string `json:"title"`
	Body          string `json:"body,omitempty"`
}

// AlertSink receives the notifier's side effects.
type AlertSink interface {
	Toast(n Notification)
	Tone(wav []byte)
}

// Notifier tracks which pending sessions have already been announced so a
// session alerts exactly once per pending spell. The audible tone is
// gated on operator interaction: before the first interaction, at most
// one tone is queued and played on the interaction itself.
type Notifier struct {
	sink AlertSink
	tone func() ([]byte, error)

	mu                 sync.Mutex
	alerted            map[string]bool
	interactionGranted bool
	soundQueued        bool
}

// NewNotifier creates a notifier. tone synthesizes the alert sound on
// demand; pass nil to disable audio entirely.
func NewNotifier(sink AlertSink, tone func() ([]byte, error)) *Notifier {
	return &Notifier{sink: sink, tone: tone, alerted: make(map[string]bool)}
}

// OnSessionsRefreshed reconciles the alerted set against a fresh session
// snapshot and fires one toast per newly-pending session. Sessions that
// left the non-stale pending set are forgotten, so a session that returns
// to pending alerts again.
func (n *Notifier) OnSessionsRefreshed(sessions []store.HandoffSession, now time.Time) {
	current := make(map[string]bool)
	var fresh []store.HandoffSession
	for _, s := range sessions {
		if s.SessionID == "" {
			continue
		}
		if DisplayStatus(s, now) != store.StatusPending {
			continue
		}
		current[s.SessionID] = true
		if !n.seen(s.SessionID) {
			fresh = append(fresh, s)
		}
	}

	n.mu.Lock()
	for id := range n.alerted {
		if !current[id] {
			delete(n.alerted, id)
		}
	}
	for _, s := range fresh {
		n.alerted[s.SessionID] = true
	}
	n.mu.Unlock()

	for _, s := range fresh {
		n.sink.Toast(Notification{
			ID:            uuid.NewString(),
			TargetSession: s.SessionID,
			Title:         "New support request",
			Body:          contactLabel(s),
		})
	}

	if len(fresh) > 0 {
		n.ring()
	}
}

// GrantInteraction records the operator's first page interaction. If a
// tone was queued while ungranted, exactly one deferred tone plays now.
func (n *Notifier) GrantInteraction() {
	n.mu.Lock()
	first := !n.interactionGranted
	n.interactionGranted = true
	queued := n.soundQueued
	n.soundQueued = false
	n.mu.Unlock()

	if first && queued {
		n.play()
	}
}

func (n *Notifier) seen(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.alerted[id]
}

// ring plays immediately when interaction is granted, otherwise queues a
// single deferred tone.
func (n *Notifier) ring() {
	n.mu.Lock()
	granted := n.interactionGranted
	if !granted {
		n.soundQueued = true
	}
	n.mu.Unlock()

	if granted {
		n.play()
	}
}

// play synthesizes and emits the tone. Synthesis failures are swallowed:
// missing audio capability never surfaces as an error.
func (n *Notifier) play() {
	if n.tone == nil {
		return
	}
	wav, err := n.tone()
	if err != nil {
		slog.Debug("alert tone synthesis failed", "error", err)
		return
	}
	n.sink.Tone(wav)
}

func contactLabel(s store.HandoffSession) string {
	switch {
	case s.UserName != "":
		return s.UserName
	case s.UserPhone != "":
		return s.UserPhone
	case s.UserEmail != "":
		return s.UserEmail
	default:
		return "Guest visitor"
	}
}
