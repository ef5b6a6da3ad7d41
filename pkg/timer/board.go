package timer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chriscow/sous-voice/internal/metrics"
	"github.com/chriscow/sous-voice/pkg/backend"
)

// Completer marks a persisted timer as finished.
type Completer interface {
	CompleteTimer(ctx context.Context, timerID int64) error
}

// BoardConfig holds configuration for a Board.
type BoardConfig struct {
	Completer         Completer
	OnSessionsChanged func()
	Logger            *slog.Logger
}

// Board is the list of running timers. It is safe for concurrent use.
type Board struct {
	completer         Completer
	onSessionsChanged func()
	logger            *slog.Logger

	mu       sync.Mutex
	timers   []Started
	notified map[string]bool
}

// NewBoard creates an empty board.
func NewBoard(cfg BoardConfig) *Board {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Board{
		completer:         cfg.Completer,
		onSessionsChanged: cfg.OnSessionsChanged,
		logger:            cfg.Logger,
		notified:          make(map[string]bool),
	}
}

// Add puts a timer on the board.
func (b *Board) Add(t Started) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timers = append(b.timers, t)
}

// Remove takes a timer off the board. It reports whether it was there.
func (b *Board) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, t := range b.timers {
		if t.ID == id {
			b.timers = append(b.timers[:i], b.timers[i+1:]...)
			delete(b.notified, id)
			return true
		}
	}
	return false
}

// Timers returns a copy of the running timers in the order they were added.
func (b *Board) Timers() []Started {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Started(nil), b.timers...)
}

// Replace rebuilds the board from the sessions the backend reports. Timers
// started locally survive unless the backend now reports a timer with the
// same session and label, which is the persisted copy of the same timer.
func (b *Board) Replace(sessions []backend.Session) {
	var hydrated []Started
	persisted := make(map[string]bool)
	for _, s := range sessions {
		for _, at := range s.ActiveTimers {
			id := at.ID
			if id == "" {
				id = fmt.Sprintf("%d-%s-%s", s.SessionID, at.Label, at.RawStartedAt)
			}
			hydrated = append(hydrated, Started{
				ID:              id,
				Label:           at.Label,
				DurationSeconds: at.DurationSeconds,
				Recipe:          s.Recipe,
				SessionID:       s.SessionID,
				StartedAt:       at.StartedAt,
			})
			persisted[sessionLabel(s.SessionID, at.Label)] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var kept []Started
	for _, t := range b.timers {
		if _, backendOwned := t.BackendID(); backendOwned {
			continue
		}
		if t.SessionID != 0 && persisted[sessionLabel(t.SessionID, t.Label)] {
			continue
		}
		kept = append(kept, t)
	}
	b.timers = append(hydrated, kept...)

	live := make(map[string]bool, len(b.timers))
	for _, t := range b.timers {
		live[t.ID] = true
	}
	for id := range b.notified {
		if !live[id] {
			delete(b.notified, id)
		}
	}
}

// Tick returns the timers that have run out at now and were not returned
// by an earlier Tick. Finished timers stay on the board until dismissed.
func (b *Board) Tick(now time.Time) []Started {
	b.mu.Lock()
	defer b.mu.Unlock()
	var done []Started
	for _, t := range b.timers {
		if b.notified[t.ID] || !t.Done(now) {
			continue
		}
		b.notified[t.ID] = true
		done = append(done, t)
	}
	return done
}

// Dismiss removes a timer. Timers the backend owns are also marked complete
// there so they are not hydrated again; a failure to do so leaves the local
// dismissal in place.
func (b *Board) Dismiss(ctx context.Context, id string) {
	b.mu.Lock()
	var target Started
	for _, t := range b.timers {
		if t.ID == id {
			target = t
			break
		}
	}
	b.mu.Unlock()
	b.Remove(id)

	if target.ID == "" {
		target.ID = id
	}
	timerID, ok := target.BackendID()
	if !ok || b.completer == nil {
		return
	}
	if err := b.completer.CompleteTimer(ctx, timerID); err != nil {
		metrics.TimerPersistFailures.Inc()
		b.logger.Warn("failed to complete timer",
			slog.Int64("timer", timerID),
			slog.String("error", err.Error()))
		return
	}
	if b.onSessionsChanged != nil {
		b.onSessionsChanged()
	}
}

func sessionLabel(sessionID int64, label string) string {
	return fmt.Sprintf("%d\x00%s", sessionID, label)
}
