// Package store defines the contracts the engine consumes from its
// external collaborators: the message store (flat timestamped message
// stream) and the handoff control backend. Persistence lives entirely
// behind these interfaces — the engine never writes messages itself.
package store

import (
	"context"
	"errors"
)

// ErrTransient wraps network-level failures from a collaborator. Callers
// keep last-known-good state and let the existing polling/reconnect
// policy retry; it is never fatal.
var ErrTransient = errors.New("transient collaborator error")

// ErrRejected indicates the backend refused an action (approve/resolve/send).
// Any optimistic local state must be rolled back.
var ErrRejected = errors.New("action rejected by backend")

// MessageStore reads the raw message stream and the handoff session list.
type MessageStore interface {
	ListMessages(ctx context.Context, f MessageFilter) ([]Message, error)
	ListHandoffSessions(ctx context.Context, f SessionFilter) ([]HandoffSession, error)
}

// HandoffAPI mutates handoff sessions on the backend. The engine commits
// local state only after these return nil.
type HandoffAPI interface {
	Approve(ctx context.Context, sessionID string) error
	Resolve(ctx context.Context, sessionID string) error
	SendMessage(ctx context.Context, sessionID, text string) error
}
