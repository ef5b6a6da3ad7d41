package timer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chriscow/sous-voice/pkg/backend"
	"github.com/matryer/is"
)

type fakePersister struct {
	mu    sync.Mutex
	calls []backend.TimerStart
	err   error
}

func (p *fakePersister) StartTimer(ctx context.Context, t backend.TimerStart) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, t)
	return p.err
}

func (p *fakePersister) Calls() []backend.TimerStart {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]backend.TimerStart(nil), p.calls...)
}

type announcerHarness struct {
	announcer *Announcer
	persister *fakePersister
	board     *Board

	mu      sync.Mutex
	changed int
}

func newAnnouncerHarness(persistErr error) *announcerHarness {
	h := &announcerHarness{
		persister: &fakePersister{err: persistErr},
		board:     NewBoard(BoardConfig{}),
	}
	h.announcer = NewAnnouncer(AnnouncerConfig{
		Persister: h.persister,
		OnStarted: h.board.Add,
		OnSessionsChanged: func() {
			h.mu.Lock()
			h.changed++
			h.mu.Unlock()
		},
		Now: func() time.Time { return time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC) },
	})
	return h
}

func (h *announcerHarness) Changed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.changed
}

func TestAnnouncer_VoiceModeAutoAccepts(t *testing.T) {
	is := is.New(t)
	h := newAnnouncerHarness(nil)

	out := h.announcer.Handle(context.Background(), Batch{
		Suggested: []Suggestion{{Label: "Boil water", DurationSeconds: 600, Recipe: "Chicken Parmesan"}},
		SessionID: 12,
	}, true)
	h.announcer.Wait()

	is.Equal(len(out.Pending), 0)
	is.Equal(len(out.Started), 1)
	is.Equal(out.Started[0].SessionID, int64(12))
	is.Equal(out.Announcements, []string{"Starting Boil water timer for 10 minutes."})
	is.Equal(out.Spoken(), "Starting Boil water timer for 10 minutes.")

	is.Equal(h.persister.Calls(), []backend.TimerStart{{SessionID: 12, Label: "Boil water", DurationSeconds: 600}})
	is.Equal(h.Changed(), 1)
	is.Equal(len(h.board.Timers()), 1)
}

func TestAnnouncer_ManualModeSurfacesSuggestions(t *testing.T) {
	is := is.New(t)
	h := newAnnouncerHarness(nil)

	out := h.announcer.Handle(context.Background(), Batch{
		Suggested: []Suggestion{{Label: "Boil water", DurationSeconds: 600}},
		SessionID: 12,
	}, false)
	h.announcer.Wait()

	is.Equal(out.Pending, []Suggestion{{Label: "Boil water", DurationSeconds: 600, SessionID: 12}})
	is.Equal(len(out.Started), 0)
	is.Equal(len(out.Announcements), 0)
	is.Equal(out.Spoken(), "")
	is.Equal(len(h.persister.Calls()), 0)
	is.Equal(len(h.board.Timers()), 0)
}

func TestAnnouncer_BackendStarted(t *testing.T) {
	tests := []struct {
		name      string
		voiceMode bool
		wantSaid  []string
	}{
		{"voice mode announces", true, []string{"Timer started: Sear for 2 minutes."}},
		{"manual mode is silent", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			h := newAnnouncerHarness(nil)

			out := h.announcer.Handle(context.Background(), Batch{
				Started:   []Suggestion{{Label: "Sear", DurationSeconds: 120, Recipe: "Steak"}},
				SessionID: 3,
			}, tt.voiceMode)
			h.announcer.Wait()

			is.Equal(out.Announcements, tt.wantSaid)
			is.Equal(len(out.Started), 1)
			is.Equal(len(h.board.Timers()), 1)
			is.Equal(len(h.persister.Calls()), 0) // already persisted by the backend
		})
	}
}

func TestAnnouncer_BackendStartedAnnouncedFirst(t *testing.T) {
	is := is.New(t)
	h := newAnnouncerHarness(nil)

	out := h.announcer.Handle(context.Background(), Batch{
		Suggested: []Suggestion{{Label: "Rest", DurationSeconds: 300}},
		Started:   []Suggestion{{Label: "Roast", DurationSeconds: 5400}},
	}, true)
	h.announcer.Wait()

	is.Equal(out.Announcements, []string{
		"Timer started: Roast for 1 hour and 30 minutes.",
		"Starting Rest timer for 5 minutes.",
	})
	is.Equal(len(h.persister.Calls()), 0) // no session to persist against
}

func TestAnnouncer_PersistFailureKeepsTimer(t *testing.T) {
	is := is.New(t)
	h := newAnnouncerHarness(errors.New("boom"))

	out := h.announcer.Handle(context.Background(), Batch{
		Suggested: []Suggestion{{Label: "Boil water", DurationSeconds: 600}},
		SessionID: 12,
	}, true)
	h.announcer.Wait()

	is.Equal(len(out.Started), 1)
	is.Equal(len(h.persister.Calls()), 1)
	is.Equal(h.Changed(), 0)
	is.Equal(len(h.board.Timers()), 1)
}

func TestAnnouncer_PersistOutlivesCancelledTurn(t *testing.T) {
	is := is.New(t)
	h := newAnnouncerHarness(nil)

	ctx, cancel := context.WithCancel(context.Background())
	h.announcer.Handle(ctx, Batch{
		Suggested: []Suggestion{{Label: "Boil water", DurationSeconds: 600}},
		SessionID: 12,
	}, true)
	cancel()
	h.announcer.Wait()

	is.Equal(len(h.persister.Calls()), 1)
}

func TestAnnouncer_Accept(t *testing.T) {
	is := is.New(t)
	h := newAnnouncerHarness(nil)

	started := h.announcer.Accept(context.Background(), Suggestion{Label: "Proof", DurationSeconds: 3600, SessionID: 5})
	h.announcer.Wait()

	is.Equal(started.Label, "Proof")
	is.Equal(h.persister.Calls(), []backend.TimerStart{{SessionID: 5, Label: "Proof", DurationSeconds: 3600}})
	is.Equal(h.Changed(), 1)

	h.announcer.Accept(context.Background(), Suggestion{Label: "Chill", DurationSeconds: 60})
	h.announcer.Wait()
	is.Equal(len(h.persister.Calls()), 1)
	is.Equal(len(h.board.Timers()), 2)
}
