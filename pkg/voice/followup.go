package voice

import (
	"sync"
	"time"
)

// DefaultFollowUpWindow is how long the controller keeps listening after a
// bare wake phrase.
const DefaultFollowUpWindow = 6 * time.Second

// FollowUpWindow is a single-shot, cancellable timer. At most one deadline is
// outstanding: opening the window again restarts it. The expiry callback runs
// on the timer goroutine and receives the generation it was armed with, so a
// receiver can ignore expiries that lost a race with Cancel or a later Open.
type FollowUpWindow struct {
	mu       sync.Mutex
	duration time.Duration
	onExpire func(gen uint64)
	timer    *time.Timer
	gen      uint64
	deadline time.Time
	active   bool
}

// NewFollowUpWindow creates an inactive window.
func NewFollowUpWindow(d time.Duration, onExpire func(gen uint64)) *FollowUpWindow {
	if d <= 0 {
		d = DefaultFollowUpWindow
	}
	return &FollowUpWindow{duration: d, onExpire: onExpire}
}

// Open arms the window, replacing any deadline already outstanding, and
// returns the new generation.
func (w *FollowUpWindow) Open() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopLocked()
	w.gen++
	gen := w.gen
	w.active = true
	w.deadline = time.Now().Add(w.duration)
	w.timer = time.AfterFunc(w.duration, func() {
		if w.expire(gen) && w.onExpire != nil {
			w.onExpire(gen)
		}
	})
	return gen
}

// Cancel disarms the window. It reports whether a window was active.
func (w *FollowUpWindow) Cancel() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.active {
		return false
	}
	w.stopLocked()
	w.gen++
	return true
}

// Consume cancels an active window and reports whether there was one. It is
// how a final transcript claims the window.
func (w *FollowUpWindow) Consume() bool {
	return w.Cancel()
}

// IsActive reports whether the window is open.
func (w *FollowUpWindow) IsActive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Deadline returns when the open window expires, or the zero time.
func (w *FollowUpWindow) Deadline() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active {
		return time.Time{}
	}
	return w.deadline
}

// Latest reports whether gen belongs to the most recent Open with no Cancel
// since. An expiry for a generation that is no longer latest is stale.
func (w *FollowUpWindow) Latest(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen == gen
}

// expire deactivates the window if gen is still current. Only the first
// caller for a generation gets true.
func (w *FollowUpWindow) expire(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active || w.gen != gen {
		return false
	}
	w.active = false
	w.deadline = time.Time{}
	w.timer = nil
	return true
}

func (w *FollowUpWindow) stopLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.active = false
	w.deadline = time.Time{}
}
