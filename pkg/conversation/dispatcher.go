package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/chriscow/sous-voice/internal/metrics"
	"github.com/chriscow/sous-voice/pkg/backend"
)

// ConnectError is shown when the backend could not be reached.
const ConnectError = "Failed to connect to the server."

// Backend is the conversation endpoint.
type Backend interface {
	Input(ctx context.Context, req backend.InputRequest) (json.RawMessage, error)
}

// DispatcherConfig holds configuration for a Dispatcher.
type DispatcherConfig struct {
	Backend Backend

	// OnSessionsChanged is called when a reply means the active sessions or
	// their timers may have changed and should be reloaded.
	OnSessionsChanged func()

	Logger *slog.Logger
}

// Dispatcher sends turns to the backend. It does not retry: each Send is
// exactly one request, and every failure comes back as an ErrorResponse.
type Dispatcher struct {
	backend           Backend
	onSessionsChanged func()
	logger            *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Backend == nil {
		return nil, errors.New("backend is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		backend:           cfg.Backend,
		onSessionsChanged: cfg.OnSessionsChanged,
		logger:            cfg.Logger,
	}, nil
}

// Send posts a turn and classifies the reply. It never returns nil.
func (d *Dispatcher) Send(ctx context.Context, turn Turn) Response {
	start := time.Now()
	body, err := d.backend.Input(ctx, backend.InputRequest{
		Text:             turn.Text,
		SessionID:        turn.SessionID,
		ResolvedRecipeID: turn.ResolvedRecipeID,
		ConfirmEnd:       turn.ConfirmEnd,
	})
	metrics.DispatchLatency.Observe(time.Since(start).Seconds())

	var resp Response
	if err != nil {
		resp = d.failure(err)
	} else if resp, err = Classify(body, turn.Text); err != nil {
		d.logger.Error("unreadable reply", slog.String("error", err.Error()))
		resp = ErrorResponse{Reply: Reply{Display: GenericError}}
	}

	metrics.Responses.WithLabelValues(resp.Kind().String()).Inc()
	d.logger.Debug("turn classified",
		slog.String("kind", resp.Kind().String()),
		slog.Int64("session", resp.Base().SessionID))

	if changesSessions(resp) && d.onSessionsChanged != nil {
		d.onSessionsChanged()
	}
	return resp
}

func (d *Dispatcher) failure(err error) ErrorResponse {
	var status *backend.StatusError
	switch {
	case errors.As(err, &status):
		msg := status.Message
		if msg == "" {
			msg = GenericError
		}
		d.logger.Warn("backend rejected turn",
			slog.Int("status", status.StatusCode),
			slog.String("error", msg))
		return ErrorResponse{Reply: Reply{Display: msg}, Expired: status.Expired, StatusCode: status.StatusCode}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		d.logger.Debug("turn cancelled", slog.String("error", err.Error()))
		return ErrorResponse{Reply: Reply{Display: ConnectError}, Unreachable: true}
	default:
		d.logger.Error("failed to reach backend", slog.String("error", err.Error()))
		return ErrorResponse{Reply: Reply{Display: ConnectError}, Unreachable: true}
	}
}

// changesSessions reports whether a reply should refresh session state.
// Disambiguation prompts are mid-conversation and change nothing.
func changesSessions(resp Response) bool {
	switch r := resp.(type) {
	case ErrorResponse:
		return r.Expired
	case SessionDisambiguation, RecipeDisambiguation:
		return false
	default:
		return true
	}
}
