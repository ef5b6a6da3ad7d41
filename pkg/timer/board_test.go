package timer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chriscow/sous-voice/pkg/backend"
	"github.com/matryer/is"
)

type fakeCompleter struct {
	ids []int64
	err error
}

func (c *fakeCompleter) CompleteTimer(ctx context.Context, id int64) error {
	c.ids = append(c.ids, id)
	return c.err
}

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func TestBoard_TickNotifiesOnce(t *testing.T) {
	is := is.New(t)
	b := NewBoard(BoardConfig{})
	b.Add(Started{ID: "a", Label: "Boil water", DurationSeconds: 60, StartedAt: t0})
	b.Add(Started{ID: "b", Label: "Rest", DurationSeconds: 120, StartedAt: t0})

	is.Equal(len(b.Tick(t0.Add(59*time.Second))), 0)

	done := b.Tick(t0.Add(60 * time.Second))
	is.Equal(len(done), 1)
	is.Equal(done[0].ID, "a")

	is.Equal(len(b.Tick(t0.Add(61*time.Second))), 0) // already reported

	done = b.Tick(t0.Add(5 * time.Minute))
	is.Equal(len(done), 1)
	is.Equal(done[0].ID, "b")
	is.Equal(len(b.Timers()), 2) // finished timers stay until dismissed
}

func TestBoard_Remove(t *testing.T) {
	is := is.New(t)
	b := NewBoard(BoardConfig{})
	b.Add(Started{ID: "a"})
	is.True(b.Remove("a"))
	is.True(!b.Remove("a"))
	is.Equal(len(b.Timers()), 0)
}

func TestBoard_Replace(t *testing.T) {
	is := is.New(t)
	b := NewBoard(BoardConfig{})
	b.Add(Started{ID: "local-1", Label: "Boil water", SessionID: 7, DurationSeconds: 600, StartedAt: t0})
	b.Add(Started{ID: "local-2", Label: "Chill", DurationSeconds: 60, StartedAt: t0})
	b.Add(Started{ID: "99", Label: "Gone", SessionID: 7, DurationSeconds: 60, StartedAt: t0})

	b.Replace([]backend.Session{{
		SessionID: 7,
		Recipe:    "Chicken Parmesan",
		ActiveTimers: []backend.ActiveTimer{
			{ID: "41", Label: "Boil water", DurationSeconds: 600, StartedAt: t0},
			{Label: "Sear", DurationSeconds: 120, StartedAt: t0, RawStartedAt: "1772388000000"},
		},
	}})

	timers := b.Timers()
	is.Equal(len(timers), 3)
	is.Equal(timers[0].ID, "41")
	is.Equal(timers[0].Recipe, "Chicken Parmesan")
	is.Equal(timers[0].SessionID, int64(7))
	is.Equal(timers[1].ID, "7-Sear-1772388000000")
	is.Equal(timers[2].ID, "local-2") // unpersisted local timer survives
}

func TestBoard_ReplaceKeepsNotifiedState(t *testing.T) {
	is := is.New(t)
	b := NewBoard(BoardConfig{})
	sessions := []backend.Session{{
		SessionID:    7,
		ActiveTimers: []backend.ActiveTimer{{ID: "41", Label: "Boil water", DurationSeconds: 60, StartedAt: t0}},
	}}
	b.Replace(sessions)
	is.Equal(len(b.Tick(t0.Add(time.Minute))), 1)

	b.Replace(sessions)
	is.Equal(len(b.Tick(t0.Add(2*time.Minute))), 0)
}

func TestBoard_Dismiss(t *testing.T) {
	tests := []struct {
		name        string
		id          string
		completeErr error
		wantCalls   []int64
		wantChanged int
	}{
		{"backend timer", "41", nil, []int64{41}, 1},
		{"backend failure still dismissed", "41", errors.New("offline"), []int64{41}, 0},
		{"local timer", "6f1c2d4e-aaaa", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			completer := &fakeCompleter{err: tt.completeErr}
			changed := 0
			b := NewBoard(BoardConfig{Completer: completer, OnSessionsChanged: func() { changed++ }})
			b.Add(Started{ID: tt.id, Label: "Boil water"})
			b.Add(Started{ID: "other", Label: "Rest"})

			b.Dismiss(context.Background(), tt.id)

			is.Equal(completer.ids, tt.wantCalls)
			is.Equal(changed, tt.wantChanged)
			timers := b.Timers()
			is.Equal(len(timers), 1)
			is.Equal(timers[0].ID, "other")
		})
	}
}
