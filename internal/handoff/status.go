// Package handoff drives the human-assist session lifecycle: the
// pending → active → resolved/closed state machine, the client-side
// staleness rule, refresh scheduling, and de-duplicated operator alerts.
//
// The backend owns the stored status; this package derives the synthetic
// "inactive" display status and gates which actions are permitted per
// state. Local state commits only after backend acknowledgment.
package handoff

import (
	"time"

	"github.com/nextlevelbuilder/opsdesk/internal/store"
)

const (
	// PendingStaleAfter reclassifies a pending session as inactive once no
	// activity has been seen for this long.
	PendingStaleAfter = 5 * time.Minute

	// ActiveIdleAfter reclassifies an active session as inactive after this
	// much silence.
	ActiveIdleAfter = 30 * time.Minute
)

// lastSeen picks the staleness reference: lastActivityAt, else createdAt.
func lastSeen(s store.HandoffSession) *time.Time {
	if s.LastActivityAt != nil {
		return s.LastActivityAt
	}
	return s.CreatedAt
}

// DisplayStatus computes the UI-facing status for a session at the given
// instant. "inactive" is display-only and never written back.
func DisplayStatus(s store.HandoffSession, now time.Time) string {
	switch s.Status {
	case store.StatusResolved, store.StatusClosed:
		return store.StatusInactive
	case store.StatusPending:
		if ref := lastSeen(s); ref != nil && now.Sub(*ref) > PendingStaleAfter {
			return store.StatusInactive
		}
		return store.StatusPending
	case store.StatusActive:
		if ref := lastSeen(s); ref != nil && now.Sub(*ref) > ActiveIdleAfter {
			return store.StatusInactive
		}
		return store.StatusActive
	default:
		return s.Status
	}
}

// DecoratedSession is a backend session plus its derived display status.
type DecoratedSession struct {
	store.HandoffSession
	DisplayStatus string `json:"displayStatus"`
}

// Decorate attaches display statuses to a session list.
func Decorate(sessions []store.HandoffSession, now time.Time) []DecoratedSession {
	out := make([]DecoratedSession, len(sessions))
	for i, s := range sessions {
		out[i] = DecoratedSession{HandoffSession: s, DisplayStatus: DisplayStatus(s, now)}
	}
	return out
}
