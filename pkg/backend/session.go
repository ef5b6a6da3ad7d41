package backend

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Session is an active cooking session as the service reports it.
type Session struct {
	SessionID    int64         `json:"sessionId"`
	Recipe       string        `json:"recipe"`
	CurrentStep  int           `json:"currentStep"`
	TotalSteps   int           `json:"totalSteps"`
	ActiveTimers []ActiveTimer `json:"activeTimers"`
}

// ActiveTimer is a persisted running timer. ID is empty when the service
// did not send one.
type ActiveTimer struct {
	ID              string
	Label           string
	DurationSeconds int
	StartedAt       time.Time
	RawStartedAt    string // the startedAt value as sent, for building fallback ids
}

// UnmarshalJSON accepts numeric or string ids and the startedAt shapes the
// service has used: epoch milliseconds, local date-time strings with a
// space or a T, RFC 3339, and [y, m, d, h, m, s, nanos] arrays.
func (t *ActiveTimer) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID              json.RawMessage `json:"id"`
		Label           string          `json:"label"`
		DurationSeconds int             `json:"durationSeconds"`
		StartedAt       json.RawMessage `json:"startedAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.ID = parseID(raw.ID)
	t.Label = raw.Label
	t.DurationSeconds = raw.DurationSeconds
	t.StartedAt = ParseStartedAt(raw.StartedAt, time.Now())
	t.RawStartedAt = strings.Trim(string(bytes.TrimSpace(raw.StartedAt)), `"`)
	return nil
}

func parseID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseStartedAt decodes a startedAt value. Anything unrecognized yields now,
// so a malformed record starts counting from the moment it was seen.
func ParseStartedAt(raw json.RawMessage, now time.Time) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return now
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return now
		}
		if !strings.Contains(s, "T") {
			s = strings.Replace(s, " ", "T", 1)
		}
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts
		}
		for _, layout := range localLayouts {
			if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
				return ts
			}
		}
		return now

	case '[':
		var parts []int64
		if err := json.Unmarshal(raw, &parts); err != nil || len(parts) < 6 {
			return now
		}
		var nanos int64
		if len(parts) > 6 {
			// whole milliseconds only
			nanos = parts[6] / int64(time.Millisecond) * int64(time.Millisecond)
		}
		return time.Date(int(parts[0]), time.Month(parts[1]), int(parts[2]),
			int(parts[3]), int(parts[4]), int(parts[5]), int(nanos), time.Local)

	default:
		ms, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return now
		}
		return time.UnixMilli(int64(ms))
	}
}
