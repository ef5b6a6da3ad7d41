// Package timer tracks cooking timers: suggestions from the assistant,
// timers started locally or by the backend, spoken announcements, and the
// board of running timers that ticks them to completion.
package timer

import (
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Suggestion is a timer the assistant proposed. In voice mode it is started
// straight away; otherwise it waits for the user to accept or dismiss it.
type Suggestion struct {
	Label           string `json:"label"`
	DurationSeconds int    `json:"durationSeconds"`
	Recipe          string `json:"recipe,omitempty"`
	SessionID       int64  `json:"sessionId,omitempty"`
}

// Started is a running timer.
type Started struct {
	ID              string
	Label           string
	DurationSeconds int
	Recipe          string
	SessionID       int64
	StartedAt       time.Time
}

// Start turns a suggestion into a running timer with a fresh local id.
func Start(s Suggestion, now time.Time) Started {
	return Started{
		ID:              uuid.New().String(),
		Label:           s.Label,
		DurationSeconds: s.DurationSeconds,
		Recipe:          s.Recipe,
		SessionID:       s.SessionID,
		StartedAt:       now,
	}
}

// Duration returns the full length of the timer.
func (t Started) Duration() time.Duration {
	return time.Duration(t.DurationSeconds) * time.Second
}

// Remaining returns the whole seconds left at now, never negative.
func (t Started) Remaining(now time.Time) int {
	elapsed := int(now.Sub(t.StartedAt) / time.Second)
	if left := t.DurationSeconds - elapsed; left > 0 {
		return left
	}
	return 0
}

// Done reports whether the timer has run out at now.
func (t Started) Done(now time.Time) bool {
	return t.Remaining(now) == 0
}

// BackendID returns the numeric id of a timer the backend persisted. Timers
// started locally have uuid ids and report false.
func (t Started) BackendID() (int64, bool) {
	if t.ID == "" {
		return 0, false
	}
	for _, r := range t.ID {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(t.ID, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// SpokenDuration renders a duration the way it is read aloud: whole hours
// plus remaining minutes from an hour up, the nearest minute below that.
// Remaining minutes that round up to 60 carry into the hour.
func SpokenDuration(secs int) string {
	if secs >= 3600 {
		h := secs / 3600
		m := roundHalfUp(float64(secs%3600) / 60)
		if m == 60 {
			h, m = h+1, 0
		}
		if m == 0 {
			return plural(h, "hour")
		}
		return plural(h, "hour") + " and " + plural(m, "minute")
	}
	return plural(roundHalfUp(float64(max(secs, 0))/60), "minute")
}

// FormatClock renders remaining seconds for a timer display: h:mm:ss from an
// hour up, m:ss below, and DONE once it has run out.
func FormatClock(secs int) string {
	if secs <= 0 {
		return "DONE"
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	if h > 0 {
		return strconv.Itoa(h) + ":" + pad2(m) + ":" + pad2(s)
	}
	return strconv.Itoa(m) + ":" + pad2(s)
}

// DoneMessage is what is spoken and shown when a timer finishes.
func DoneMessage(t Started) string {
	return t.Label + " timer is done!"
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
