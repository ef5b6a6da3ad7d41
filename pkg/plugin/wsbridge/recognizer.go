// Package wsbridge receives recognition results from a transcript bridge over
// a websocket. The bridge owns the microphone and the speech recognizer and
// forwards interim and final transcripts as JSON messages.
package wsbridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chriscow/sous-voice/pkg/ai/stt"
)

// Config holds configuration for the bridge recognizer.
type Config struct {
	URL    string
	Token  string
	Logger *slog.Logger
}

// Recognizer implements stt.Recognizer with one websocket connection per
// recognition session.
type Recognizer struct {
	url    string
	token  string
	logger *slog.Logger

	mu      sync.Mutex
	current *session
}

type session struct {
	client  *client
	aborted bool
	done    chan struct{}
}

// New creates a bridge recognizer.
func New(cfg Config) (*Recognizer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("bridge URL is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Recognizer{url: cfg.URL, token: cfg.Token, logger: cfg.Logger}, nil
}

// Start connects and asks the bridge to begin recognizing.
func (r *Recognizer) Start(ctx context.Context, cfg stt.Config) (<-chan stt.Event, error) {
	c := newClient(r.url, r.token, r.logger)
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	err := c.write(&Message{Type: TypeStart, Data: map[string]any{
		"lang":             cfg.Lang,
		"continuous":       cfg.Continuous,
		"interim_results":  cfg.InterimResults,
		"max_alternatives": cfg.MaxAlternatives,
	}})
	if err != nil {
		c.close()
		return nil, err
	}

	s := &session{client: c, done: make(chan struct{})}
	r.mu.Lock()
	prev := r.current
	r.current = s
	r.mu.Unlock()
	if prev != nil {
		r.abortSession(prev)
	}

	events := make(chan stt.Event, 16)
	go r.pump(ctx, s, events)
	go func() {
		select {
		case <-ctx.Done():
			r.abortSession(s)
		case <-s.done:
		}
	}()
	return events, nil
}

func (r *Recognizer) pump(ctx context.Context, s *session, events chan<- stt.Event) {
	defer close(events)
	defer close(s.done)
	for {
		msg, err := s.client.read()
		if err != nil {
			r.mu.Lock()
			aborted := s.aborted
			r.mu.Unlock()
			if !aborted {
				r.logger.Warn("transcript bridge read failed", slog.String("error", err.Error()))
				r.send(ctx, events, stt.Failure(stt.CodeNetwork))
				s.client.close()
			}
			return
		}

		switch msg.Type {
		case TypeInterim:
			r.send(ctx, events, stt.Interim(stringField(msg, "transcript")))
		case TypeFinal:
			r.send(ctx, events, stt.Final(stringField(msg, "transcript")))
		case TypeError:
			r.send(ctx, events, stt.Failure(stt.ErrorCode(stringField(msg, "code"))))
		case TypeEnd:
			r.mu.Lock()
			s.aborted = true
			r.mu.Unlock()
			s.client.close()
			return
		default:
			r.logger.Debug("ignoring bridge message", slog.String("type", msg.Type))
		}
	}
}

func (r *Recognizer) send(ctx context.Context, events chan<- stt.Event, ev stt.Event) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

func stringField(msg *Message, key string) string {
	s, _ := msg.Data[key].(string)
	return s
}

// Abort ends the current session.
func (r *Recognizer) Abort() error {
	r.mu.Lock()
	s := r.current
	r.current = nil
	r.mu.Unlock()
	if s != nil {
		r.abortSession(s)
	}
	return nil
}

func (r *Recognizer) abortSession(s *session) {
	r.mu.Lock()
	if s.aborted {
		r.mu.Unlock()
		return
	}
	s.aborted = true
	r.mu.Unlock()

	if err := s.client.write(&Message{Type: TypeAbort}); err != nil {
		r.logger.Debug("abort not delivered", slog.String("error", err.Error()))
	}
	s.client.close()
}

// Capabilities reports what the bridge supports.
func (r *Recognizer) Capabilities() stt.Capabilities {
	return stt.Capabilities{Continuous: true, InterimResults: true, SupportedLanguages: []string{"en-US"}}
}

var _ stt.Recognizer = (*Recognizer)(nil)
