package handoff

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultListInterval is the full session-list refetch cadence.
	DefaultListInterval = 5 * time.Second
	// DefaultThreadInterval is the faster cadence for the selected active
	// session's message thread.
	DefaultThreadInterval = 2 * time.Second
)

// Refresher schedules the two polling cadences. Timers are single-shot
// and re-armed only after the previous fetch-and-apply completes, so no
// two refresh cycles interleave their writes. Changing the selection or
// the auto-refresh flag tears down the pending timers.
type Refresher struct {
	listInterval   time.Duration
	threadInterval time.Duration

	refreshList   func(ctx context.Context) error
	refreshThread func(ctx context.Context, sessionID string) error

	mu             sync.Mutex
	autoRefresh    bool
	selected       string
	selectedActive bool

	listWake   chan struct{}
	threadWake chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefresher wires the refresh callbacks. refreshList fetches and
// applies the full session list; refreshThread refetches one session's
// message thread.
func NewRefresher(list func(context.Context) error, thread func(context.Context, string) error) *Refresher {
	return &Refresher{
		listInterval:   DefaultListInterval,
		threadInterval: DefaultThreadInterval,
		refreshList:    list,
		refreshThread:  thread,
		autoRefresh:    true,
		listWake:       make(chan struct{}, 1),
		threadWake:     make(chan struct{}, 1),
	}
}

// SetIntervals overrides the polling cadences (config hot reload).
func (r *Refresher) SetIntervals(list, thread time.Duration) {
	r.mu.Lock()
	if list > 0 {
		r.listInterval = list
	}
	if thread > 0 {
		r.threadInterval = thread
	}
	r.mu.Unlock()
	wake(r.listWake)
	wake(r.threadWake)
}

// SetAutoRefresh toggles both cadences. Disabling cancels pending timers.
func (r *Refresher) SetAutoRefresh(on bool) {
	r.mu.Lock()
	r.autoRefresh = on
	r.mu.Unlock()
	wake(r.listWake)
	wake(r.threadWake)
}

// Select changes the thread being followed. active reports whether the
// session's display status is active; the thread cadence only runs while
// it is. Only the thread loop's timer is torn down; the list cadence is
// untouched by selection changes.
func (r *Refresher) Select(sessionID string, active bool) {
	r.mu.Lock()
	r.selected = sessionID
	r.selectedActive = active
	r.mu.Unlock()
	wake(r.threadWake)
}

// Selected reports the session the thread cadence follows, if any.
func (r *Refresher) Selected() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected, r.selectedActive
}

// wake nudges one loop so it re-reads its settings and rearms.
func wake(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Start launches the polling loops until Stop or context cancellation.
func (r *Refresher) Start(ctx context.Context) {
	lctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(2)
	go r.listLoop(lctx)
	go r.threadLoop(lctx)
}

// Stop cancels both loops and waits for them to drain.
func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Refresher) listLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		r.mu.Lock()
		on := r.autoRefresh
		interval := r.listInterval
		r.mu.Unlock()

		if on {
			if err := r.refreshList(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("session list refresh failed", "error", err)
			}
		}

		if !r.sleep(ctx, interval, r.listWake) {
			return
		}
	}
}

func (r *Refresher) threadLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		r.mu.Lock()
		on := r.autoRefresh
		id := r.selected
		active := r.selectedActive
		interval := r.threadInterval
		r.mu.Unlock()

		if on && id != "" && active {
			if err := r.refreshThread(ctx, id); err != nil && ctx.Err() == nil {
				slog.Warn("thread refresh failed", "session", id, "error", err)
			}
		}

		if !r.sleep(ctx, interval, r.threadWake) {
			return
		}
	}
}

// sleep arms a single-shot timer, returning early when the loop's
// settings change. Returns false when the context is done.
func (r *Refresher) sleep(ctx context.Context, d time.Duration, ch chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-ch:
		return true
	case <-t.C:
		return true
	}
}
