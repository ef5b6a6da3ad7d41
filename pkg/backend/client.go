// Package backend is the HTTP client for the cooking service: conversation
// input, the active session list, and timer and session bookkeeping.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/chriscow/sous-voice/pkg/version"
)

// ErrUnreachable wraps transport failures: the request never got an HTTP
// response.
var ErrUnreachable = errors.New("backend unreachable")

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string // the payload's error field, if any
	Expired    bool   // the payload flagged the session as expired
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// DefaultBaseURL is where the cooking service listens in development.
const DefaultBaseURL = "http://localhost:3000"

// Config holds configuration for the backend client.
type Config struct {
	BaseURL string
	Token   string

	// HTTPClient defaults to a client without a timeout; conversation turns
	// can take as long as the language model needs.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the cooking service.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a new backend client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("backend URL must be http or https: %q", cfg.BaseURL)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}, nil
}

// InputRequest is one conversation turn.
type InputRequest struct {
	Text             string `json:"text"`
	SessionID        int64  `json:"sessionId,omitempty"`
	ResolvedRecipeID int64  `json:"resolvedRecipeId,omitempty"`
	ConfirmEnd       bool   `json:"confirmEnd,omitempty"`
}

// Input posts a turn and returns the raw reply body for classification.
func (c *Client) Input(ctx context.Context, req InputRequest) (json.RawMessage, error) {
	var body json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/cooking/input", req, &body); err != nil {
		return nil, err
	}
	if len(body) == 0 {
		body = json.RawMessage("{}")
	}
	return body, nil
}

// Sessions lists the user's active cooking sessions and their running timers.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := c.do(ctx, http.MethodGet, "/api/cooking/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// TimerStart records a started timer against a session.
type TimerStart struct {
	SessionID       int64  `json:"sessionId"`
	Label           string `json:"label"`
	DurationSeconds int    `json:"durationSeconds"`
}

// StartTimer persists a started timer.
func (c *Client) StartTimer(ctx context.Context, t TimerStart) error {
	return c.do(ctx, http.MethodPost, "/api/cooking/timer/start", t, nil)
}

// CompleteTimer marks a persisted timer as finished so it is not hydrated
// again.
func (c *Client) CompleteTimer(ctx context.Context, timerID int64) error {
	body := map[string]int64{"timerId": timerID}
	return c.do(ctx, http.MethodPost, "/api/cooking/timer/complete", body, nil)
}

// EndSession ends a session and returns the service's closing message.
func (c *Client) EndSession(ctx context.Context, sessionID int64) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	body := map[string]int64{"sessionId": sessionID}
	if err := c.do(ctx, http.MethodPost, "/api/cooking/end", body, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

type errorPayload struct {
	Error   string `json:"error"`
	Expired bool   `json:"expired"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload errorPayload
		// a body that is not JSON still yields a StatusError
		_ = json.Unmarshal(data, &payload)
		c.logger.Debug("backend error",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("error", payload.Error))
		return &StatusError{StatusCode: resp.StatusCode, Message: payload.Error, Expired: payload.Expired}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
