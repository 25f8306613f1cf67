package syncengine

import (
	"context"
	"sync"
)

// pauseLatch is a cooperative gate the main loop waits on at stage
// boundaries, per spec §4.6's "pauseReq ... in-flight units finish, then
// the loop blocks at the next stage boundary." Starts open (not paused).
type pauseLatch struct {
	mu   sync.Mutex
	gate chan struct{} // closed means "running", open (unclosed) means "paused"
}

func newPauseLatch() *pauseLatch {
	l := &pauseLatch{gate: make(chan struct{})}
	close(l.gate)

	return l
}

// Pause blocks the next Wait call until Resume is called.
func (l *pauseLatch) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case <-l.gate:
		l.gate = make(chan struct{})
	default:
		// already paused
	}
}

// Resume releases anything blocked in Wait.
func (l *pauseLatch) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case <-l.gate:
		// already running
	default:
		close(l.gate)
	}
}

// Wait blocks while paused, returning early if ctx is canceled.
func (l *pauseLatch) Wait(ctx context.Context) error {
	l.mu.Lock()
	gate := l.gate
	l.mu.Unlock()

	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
