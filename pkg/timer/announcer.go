package timer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chriscow/sous-voice/internal/metrics"
	"github.com/chriscow/sous-voice/pkg/backend"
)

// Persister records a started timer against its cooking session.
type Persister interface {
	StartTimer(ctx context.Context, t backend.TimerStart) error
}

// AnnouncerConfig holds configuration for an Announcer.
type AnnouncerConfig struct {
	// Persister is optional; without one, timers only run locally.
	Persister Persister

	// OnStarted receives every timer the announcer starts, typically to add
	// it to a Board.
	OnStarted func(Started)

	// OnSessionsChanged is called after a timer was persisted.
	OnSessionsChanged func()

	Logger *slog.Logger
	Now    func() time.Time
}

// Batch is the timer side data of one assistant reply.
type Batch struct {
	Suggested []Suggestion
	Started   []Suggestion // started by the backend itself
	SessionID int64
}

// Outcome is what the announcer did with a batch.
type Outcome struct {
	Started       []Started
	Pending       []Suggestion // waiting for a manual accept or dismiss
	Announcements []string
}

// Spoken joins the announcements into one block of speech.
func (o Outcome) Spoken() string {
	return strings.Join(o.Announcements, " ")
}

// Announcer starts suggested and backend-started timers, decides what to
// say about them, and persists the ones it starts.
type Announcer struct {
	persister         Persister
	onStarted         func(Started)
	onSessionsChanged func()
	logger            *slog.Logger
	now               func() time.Time

	wg sync.WaitGroup
}

// NewAnnouncer creates an Announcer.
func NewAnnouncer(cfg AnnouncerConfig) *Announcer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Announcer{
		persister:         cfg.Persister,
		onStarted:         cfg.OnStarted,
		onSessionsChanged: cfg.OnSessionsChanged,
		logger:            cfg.Logger,
		now:               cfg.Now,
	}
}

// Handle applies a batch. In voice mode every suggestion is started and
// announced; otherwise suggestions come back as Pending and nothing is
// said. Timers the backend already started are tracked locally and, in
// voice mode, announced, but not persisted again.
func (a *Announcer) Handle(ctx context.Context, b Batch, voiceMode bool) Outcome {
	var out Outcome

	for _, s := range b.Started {
		if s.SessionID == 0 {
			s.SessionID = b.SessionID
		}
		t := a.start(s, "backend")
		out.Started = append(out.Started, t)
		if voiceMode {
			out.Announcements = append(out.Announcements,
				fmt.Sprintf("Timer started: %s for %s.", t.Label, SpokenDuration(t.DurationSeconds)))
		}
	}

	for _, s := range b.Suggested {
		if s.SessionID == 0 {
			s.SessionID = b.SessionID
		}
		if !voiceMode {
			out.Pending = append(out.Pending, s)
			continue
		}
		t := a.start(s, "auto")
		out.Started = append(out.Started, t)
		out.Announcements = append(out.Announcements,
			fmt.Sprintf("Starting %s timer for %s.", t.Label, SpokenDuration(t.DurationSeconds)))
		a.persist(ctx, t)
	}
	return out
}

// Accept starts a suggestion the user confirmed by hand.
func (a *Announcer) Accept(ctx context.Context, s Suggestion) Started {
	t := a.start(s, "manual")
	a.persist(ctx, t)
	return t
}

// Wait blocks until every persistence call started so far has finished.
func (a *Announcer) Wait() {
	a.wg.Wait()
}

func (a *Announcer) start(s Suggestion, mode string) Started {
	t := Start(s, a.now())
	metrics.TimersStarted.WithLabelValues(mode).Inc()
	a.logger.Debug("timer started",
		slog.String("label", t.Label),
		slog.Int("seconds", t.DurationSeconds),
		slog.String("mode", mode))
	if a.onStarted != nil {
		a.onStarted(t)
	}
	return t
}

// persist records t in the background. The local timer keeps running
// whatever the outcome.
func (a *Announcer) persist(ctx context.Context, t Started) {
	if t.SessionID == 0 || a.persister == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := a.persister.StartTimer(ctx, backend.TimerStart{
			SessionID:       t.SessionID,
			Label:           t.Label,
			DurationSeconds: t.DurationSeconds,
		})
		if err != nil {
			metrics.TimerPersistFailures.Inc()
			a.logger.Warn("failed to persist timer",
				slog.String("label", t.Label),
				slog.Int64("session", t.SessionID),
				slog.String("error", err.Error()))
			return
		}
		if a.onSessionsChanged != nil {
			a.onSessionsChanged()
		}
	}()
}
