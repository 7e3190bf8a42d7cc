package handoff

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nextlevelbuilder/opsdesk/internal/store"
)

// Action gating errors. ErrStaleAction is the local rejection for actions
// on sessions that went stale between render and click — no backend
// round-trip happens for those.
var (
	ErrUnknownSession       = errors.New("unknown handoff session")
	ErrStaleAction          = errors.New("session is stale")
	ErrNotActive            = errors.New("session is not active")
	ErrConfirmationRequired = errors.New("resolve requires operator confirmation")
)

// Controller holds the read-through cached view of handoff sessions and
// performs the permitted lifecycle transitions against the backend.
type Controller struct {
	api store.HandoffAPI
	now func() time.Time

	mu       sync.RWMutex
	sessions []store.HandoffSession
	index    map[string]int
}

// NewController creates a controller over the handoff backend.
func NewController(api store.HandoffAPI) *Controller {
	return &Controller{api: api, now: time.Now, index: make(map[string]int)}
}

// SetSessions replaces the cached session list with a fresh backend
// snapshot. The most recently completed refresh wins.
func (c *Controller) SetSessions(sessions []store.HandoffSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = sessions
	c.index = make(map[string]int, len(sessions))
	for i, s := range sessions {
		c.index[s.SessionID] = i
	}
}

// Sessions returns the cached list decorated with display statuses.
func (c *Controller) Sessions() []DecoratedSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Decorate(c.sessions, c.now())
}

// Get returns one decorated session by id.
func (c *Controller) Get(sessionID string) (DecoratedSession, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[sessionID]
	if !ok {
		return DecoratedSession{}, false
	}
	s := c.sessions[i]
	return DecoratedSession{HandoffSession: s, DisplayStatus: DisplayStatus(s, c.now())}, true
}

// Approve moves a pending session to active. A stale pending session is
// rejected locally before any network call. The cached status flips only
// after the backend acknowledges.
func (c *Controller) Approve(ctx context.Context, sessionID string) error {
	c.mu.RLock()
	i, ok := c.index[sessionID]
	var display string
	if ok {
		display = DisplayStatus(c.sessions[i], c.now())
	}
	c.mu.RUnlock()

	if !ok {
		return ErrUnknownSession
	}
	if display != store.StatusPending {
		return fmt.Errorf("%w: approve on %s session", ErrStaleAction, display)
	}

	if err := c.api.Approve(ctx, sessionID); err != nil {
		return fmt.Errorf("approve %s: %w", sessionID, err)
	}
	c.commit(sessionID, store.StatusActive)
	return nil
}

// Resolve closes out an active session. confirmed must be set by an
// explicit operator confirmation; the transition is irreversible from the
// client's perspective.
func (c *Controller) Resolve(ctx context.Context, sessionID string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}

	if _, ok := c.Get(sessionID); !ok {
		return ErrUnknownSession
	}
	if err := c.api.Resolve(ctx, sessionID); err != nil {
		return fmt.Errorf("resolve %s: %w", sessionID, err)
	}
	c.commit(sessionID, store.StatusResolved)
	return nil
}

// Send delivers an operator reply. Permitted only while the display
// status is exactly active — pending sessions never accept replies, stale
// or not.
func (c *Controller) Send(ctx context.Context, sessionID, text string) error {
	s, ok := c.Get(sessionID)
	if !ok {
		return ErrUnknownSession
	}
	if s.DisplayStatus != store.StatusActive {
		return fmt.Errorf("%w: send on %s session", ErrNotActive, s.DisplayStatus)
	}

	if err := c.api.SendMessage(ctx, sessionID, text); err != nil {
		return fmt.Errorf("send to %s: %w", sessionID, err)
	}

	c.mu.Lock()
	if i, ok := c.index[sessionID]; ok {
		now := c.now()
		c.sessions[i].LastActivityAt = &now
		c.sessions[i].MessageCount++
	}
	c.mu.Unlock()
	return nil
}

// commit applies an acknowledged status change to the cached view.
func (c *Controller) commit(sessionID, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.index[sessionID]; ok {
		now := c.now()
		c.sessions[i].Status = status
		c.sessions[i].LastActivityAt = &now
	}
}
