package handoff

import (
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/opsdesk/internal/store"
)

type recordingSink struct {
	toasts []Notification
	tones  int
}

func (r *recordingSink) Toast(n Notification) { r.toasts = append(r.toasts, n) }
func (r *recordingSink) Tone([]byte)          { r.tones++ }

func pendingSession(id string, now time.Time) store.HandoffSession {
	return store.HandoffSession{SessionID: id, Status: store.StatusPending, LastActivityAt: ago(now, time.Minute)}
}

func TestNotifier_DedupAcrossRefreshes(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	sink := &recordingSink{}
	n := NewNotifier(sink, AlertTone)
	n.GrantInteraction()

	sessions := []store.HandoffSession{pendingSession("s1", now)}
	for range 3 {
		n.OnSessionsRefreshed(sessions, now)
	}
	if len(sink.toasts) != 1 {
		t.Fatalf("toasts = %d, want exactly 1 across three refreshes", len(sink.toasts))
	}
	if sink.toasts[0].TargetSession != "s1" {
		t.Errorf("toast target = %q", sink.toasts[0].TargetSession)
	}

	// s1 goes active, then returns to pending: it alerts once more.
	n.OnSessionsRefreshed([]store.HandoffSession{{SessionID: "s1", Status: store.StatusActive, LastActivityAt: ago(now, time.Minute)}}, now)
	n.OnSessionsRefreshed(sessions, now)
	if len(sink.toasts) != 2 {
		t.Errorf("toasts = %d, want 2 after re-pending", len(sink.toasts))
	}
}

func TestNotifier_IgnoresStaleAndAnonymous(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	sink := &recordingSink{}
	n := NewNotifier(sink, AlertTone)
	n.GrantInteraction()

	n.OnSessionsRefreshed([]store.HandoffSession{
		{SessionID: "", Status: store.StatusPending, LastActivityAt: ago(now, time.Minute)},
		{SessionID: "stale", Status: store.StatusPending, LastActivityAt: ago(now, 6*time.Minute)},
		{SessionID: "live", Status: store.StatusActive, LastActivityAt: ago(now, time.Minute)},
	}, now)

	if len(sink.toasts) != 0 {
		t.Errorf("toasts = %d, want 0", len(sink.toasts))
	}
}

func TestNotifier_DeferredTonePlaysOnce(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	sink := &recordingSink{}
	n := NewNotifier(sink, AlertTone)

	// Two batches of new pending sessions before any interaction.
	n.OnSessionsRefreshed([]store.HandoffSession{pendingSession("s1", now)}, now)
	n.OnSessionsRefreshed([]store.HandoffSession{pendingSession("s1", now), pendingSession("s2", now)}, now)
	if sink.tones != 0 {
		t.Fatalf("tones before interaction = %d, want 0", sink.tones)
	}

	n.GrantInteraction()
	if sink.tones != 1 {
		t.Fatalf("deferred tones = %d, want exactly 1", sink.tones)
	}

	// Repeat interactions never replay the queue.
	n.GrantInteraction()
	if sink.tones != 1 {
		t.Errorf("tones after second interaction = %d, want 1", sink.tones)
	}

	// With consent granted, new pending sessions ring immediately.
	n.OnSessionsRefreshed([]store.HandoffSession{pendingSession("s3", now)}, now)
	if sink.tones != 2 {
		t.Errorf("tones = %d, want 2", sink.tones)
	}
}

func TestNotifier_SynthFailureSwallowed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	sink := &recordingSink{}
	n := NewNotifier(sink, func() ([]byte, error) { return nil, errors.New("no audio device") })
	n.GrantInteraction()

	n.OnSessionsRefreshed([]store.HandoffSession{pendingSession("s1", now)}, now)
	if sink.tones != 0 {
		t.Errorf("failed synth must not emit a tone")
	}
	if len(sink.toasts) != 1 {
		t.Errorf("toast should still fire, got %d", len(sink.toasts))
	}
}

func TestOscillate(t *testing.T) {
	wav, err := Oscillate(440, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if string(wav[:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE header")
	}

	if _, err := Oscillate(0, time.Second); err == nil {
		t.Error("zero frequency should error")
	}
	if _, err := Oscillate(440, 0); err == nil {
		t.Error("zero duration should error")
	}
}
