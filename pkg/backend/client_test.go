package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matryer/is"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

func newServer(t *testing.T, status int, reply string) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		json.NewDecoder(r.Body).Decode(&rec.body)
		calls = append(calls, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", Token: "tok"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, &calls
}

func TestClient_Input(t *testing.T) {
	is := is.New(t)
	c, calls := newServer(t, http.StatusOK, `{"message":"Preheat the oven.","sessionId":7}`)

	body, err := c.Input(context.Background(), InputRequest{Text: "cook pasta", ResolvedRecipeID: 2})
	is.NoErr(err)
	is.Equal(string(body), `{"message":"Preheat the oven.","sessionId":7}`)

	call := (*calls)[0]
	is.Equal(call.method, http.MethodPost)
	is.Equal(call.path, "/api/cooking/input")
	is.Equal(call.auth, "Bearer tok")
	is.Equal(call.body["text"], "cook pasta")
	is.Equal(call.body["resolvedRecipeId"], 2.0)
	_, hasSession := call.body["sessionId"]
	is.True(!hasSession) // omitted when unset
	_, hasConfirm := call.body["confirmEnd"]
	is.True(!hasConfirm)
}

func TestClient_InputEmptyBody(t *testing.T) {
	is := is.New(t)
	c, _ := newServer(t, http.StatusOK, "")

	body, err := c.Input(context.Background(), InputRequest{Text: "hi"})
	is.NoErr(err)
	is.Equal(string(body), "{}")
}

func TestClient_StatusError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		reply       string
		wantMessage string
		wantExpired bool
	}{
		{"payload error", http.StatusBadRequest, `{"error":"No active session."}`, "No active session.", false},
		{"expired", http.StatusUnauthorized, `{"error":"Session expired","expired":true}`, "Session expired", true},
		{"not json", http.StatusBadGateway, `<html>bad gateway</html>`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			c, _ := newServer(t, tt.status, tt.reply)

			_, err := c.Input(context.Background(), InputRequest{Text: "next"})
			var se *StatusError
			is.True(errors.As(err, &se))
			is.Equal(se.StatusCode, tt.status)
			is.Equal(se.Message, tt.wantMessage)
			is.Equal(se.Expired, tt.wantExpired)
			is.True(!errors.Is(err, ErrUnreachable))
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	is := is.New(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url})
	is.NoErr(err)
	_, err = c.Input(context.Background(), InputRequest{Text: "hello"})
	is.True(errors.Is(err, ErrUnreachable))
}

func TestClient_CancelledContext(t *testing.T) {
	is := is.New(t)
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c, err := New(Config{BaseURL: srv.URL})
	is.NoErr(err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Input(ctx, InputRequest{Text: "hello"})
	is.True(errors.Is(err, context.DeadlineExceeded))
	is.True(!errors.Is(err, ErrUnreachable))
}

func TestClient_Sessions(t *testing.T) {
	is := is.New(t)
	c, calls := newServer(t, http.StatusOK, `[
		{"sessionId": 3, "recipe": "Lemon Pasta", "currentStep": 2, "totalSteps": 8,
		 "activeTimers": [
			{"id": 41, "label": "Boil water", "durationSeconds": 600, "startedAt": 1760000000000},
			{"label": "Rest dough", "durationSeconds": 300, "startedAt": "2025-10-09T08:00:00Z"}
		 ]},
		{"sessionId": 4, "recipe": "Soup", "currentStep": 1, "totalSteps": 3}
	]`)

	sessions, err := c.Sessions(context.Background())
	is.NoErr(err)
	is.Equal((*calls)[0].method, http.MethodGet)
	is.Equal((*calls)[0].path, "/api/cooking/sessions")

	is.Equal(len(sessions), 2)
	s := sessions[0]
	is.Equal(s.SessionID, int64(3))
	is.Equal(s.TotalSteps, 8)
	is.Equal(len(s.ActiveTimers), 2)
	is.Equal(s.ActiveTimers[0].ID, "41")
	is.True(s.ActiveTimers[0].StartedAt.Equal(time.UnixMilli(1760000000000)))
	is.Equal(s.ActiveTimers[1].ID, "")
	is.True(s.ActiveTimers[1].StartedAt.Equal(time.Date(2025, 10, 9, 8, 0, 0, 0, time.UTC)))
	is.Equal(len(sessions[1].ActiveTimers), 0)
}

func TestClient_TimerAndSessionCalls(t *testing.T) {
	is := is.New(t)
	c, calls := newServer(t, http.StatusOK, `{"message":"Session ended. Nice work!"}`)
	ctx := context.Background()

	is.NoErr(c.StartTimer(ctx, TimerStart{SessionID: 3, Label: "Boil water", DurationSeconds: 600}))
	is.NoErr(c.CompleteTimer(ctx, 41))
	msg, err := c.EndSession(ctx, 3)
	is.NoErr(err)
	is.Equal(msg, "Session ended. Nice work!")

	is.Equal((*calls)[0].path, "/api/cooking/timer/start")
	is.Equal((*calls)[0].body["label"], "Boil water")
	is.Equal((*calls)[0].body["durationSeconds"], 600.0)
	is.Equal((*calls)[1].path, "/api/cooking/timer/complete")
	is.Equal((*calls)[1].body["timerId"], 41.0)
	is.Equal((*calls)[2].path, "/api/cooking/end")
	is.Equal((*calls)[2].body["sessionId"], 3.0)
}

func TestParseStartedAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"epoch ms", `1760000000123`, time.UnixMilli(1760000000123)},
		{"rfc3339", `"2025-10-09T08:00:00Z"`, time.Date(2025, 10, 9, 8, 0, 0, 0, time.UTC)},
		{"space separated", `"2025-10-09 08:00:00"`, time.Date(2025, 10, 9, 8, 0, 0, 0, time.Local)},
		{"local array", `[2025,10,9,8,0,0,250000000]`, time.Date(2025, 10, 9, 8, 0, 0, 250000000, time.Local)},
		{"short array", `[2025,10,9]`, now},
		{"garbage", `"yesterday"`, now},
		{"missing", ``, now},
		{"null", `null`, now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseStartedAt(json.RawMessage(tt.raw), now)
			if !got.Equal(tt.want) {
				t.Errorf("ParseStartedAt(%s) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNew_RejectsBadURL(t *testing.T) {
	is := is.New(t)
	_, err := New(Config{BaseURL: "localhost:3000"})
	is.True(err != nil)

	c, err := New(Config{})
	is.NoErr(err)
	is.Equal(c.baseURL, DefaultBaseURL)
}
