// Package assistant is the conversation surface of the voice core. It takes
// typed and spoken commands, resolves pending recipe choices, sends turns,
// and applies each reply: transcript entries, chips, timers, and speech.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chriscow/sous-voice/internal/metrics"
	"github.com/chriscow/sous-voice/pkg/backend"
	"github.com/chriscow/sous-voice/pkg/conversation"
	"github.com/chriscow/sous-voice/pkg/timer"
)

// DefaultMaxMessages bounds the transcript.
const DefaultMaxMessages = 200

const refreshTimeout = 15 * time.Second

// Speaker is the voice side of the assistant, normally a voice.Controller.
type Speaker interface {
	// Speak says text. It is ignored while the mic is off.
	Speak(text string)
	// TurnComplete ends a command that produced nothing to say.
	TurnComplete()
	// VoiceMode reports whether hands-free operation is on.
	VoiceMode() bool
}

// Backend is everything the assistant needs from the cooking service.
type Backend interface {
	conversation.Backend
	timer.Persister
	timer.Completer
	Sessions(ctx context.Context) ([]backend.Session, error)
	EndSession(ctx context.Context, sessionID int64) (string, error)
}

// Config holds configuration for an Assistant.
type Config struct {
	Backend  Backend
	Speaker  Speaker        // optional
	Notifier timer.Notifier // optional, told when a timer finishes

	// OnMessage sees every message appended to the transcript.
	OnMessage func(Message)

	MaxMessages int
	Logger      *slog.Logger
	Now         func() time.Time
}

// Assistant owns the transcript, the pending recipe choice, and the timer
// board. Sends are serialized so two turns never race on the pending
// choice.
type Assistant struct {
	backend     Backend
	speaker     Speaker
	notifier    timer.Notifier
	onMessage   func(Message)
	maxMessages int
	logger      *slog.Logger
	now         func() time.Time

	dispatcher *conversation.Dispatcher
	announcer  *timer.Announcer
	board      *timer.Board
	pending    conversation.PendingStore

	sendMu sync.Mutex

	mu       sync.Mutex
	messages []Message
	nextID   int
	sessions []backend.Session

	refreshes sync.WaitGroup
}

// New creates an Assistant.
func New(cfg Config) (*Assistant, error) {
	if cfg.Backend == nil {
		return nil, errors.New("backend is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultMaxMessages
	}

	a := &Assistant{
		backend:     cfg.Backend,
		speaker:     cfg.Speaker,
		notifier:    cfg.Notifier,
		onMessage:   cfg.OnMessage,
		maxMessages: cfg.MaxMessages,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}

	dispatcher, err := conversation.NewDispatcher(conversation.DispatcherConfig{
		Backend:           cfg.Backend,
		OnSessionsChanged: a.sessionsChanged,
		Logger:            cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	a.dispatcher = dispatcher
	a.board = timer.NewBoard(timer.BoardConfig{
		Completer:         cfg.Backend,
		OnSessionsChanged: a.sessionsChanged,
		Logger:            cfg.Logger,
	})
	a.announcer = timer.NewAnnouncer(timer.AnnouncerConfig{
		Persister:         cfg.Backend,
		OnStarted:         a.board.Add,
		OnSessionsChanged: a.sessionsChanged,
		Logger:            cfg.Logger,
		Now:               cfg.Now,
	})

	a.appendMessage(Message{Role: RoleSystem, Text: Welcome})
	return a, nil
}

// SendTyped sends a message the user typed. If a recipe choice is pending
// and the message names one of the candidates, the original request is
// sent again with that recipe instead.
func (a *Assistant) SendTyped(ctx context.Context, text string) conversation.Response {
	return a.sendText(ctx, text, "typed")
}

// SendVoice sends a spoken command. It is the voice controller's command
// handler. A pending recipe choice is matched exactly like typed text,
// since a hands-free user has no chips to pick from.
func (a *Assistant) SendVoice(ctx context.Context, text string) {
	if a.sendText(ctx, text, "") == nil {
		a.endTurn()
	}
}

func (a *Assistant) sendText(ctx context.Context, text, source string) conversation.Response {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	a.appendMessage(Message{Role: RoleUser, Text: text})

	turn := conversation.Turn{Text: text}
	if resolved, ok := a.pending.Resolve(text); ok {
		a.logger.Debug("pending recipe resolved",
			slog.String("text", resolved.Text),
			slog.Int64("recipe", resolved.ResolvedRecipeID))
		turn = resolved
	}
	if source != "" {
		metrics.TurnsDispatched.WithLabelValues(source).Inc()
	}
	return a.send(ctx, turn)
}

// SelectSession answers a session choice: the message that was ambiguous
// goes to the chosen session.
func (a *Assistant) SelectSession(ctx context.Context, sessionID int64, originalText string) conversation.Response {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()
	metrics.TurnsDispatched.WithLabelValues("chip").Inc()
	return a.send(ctx, conversation.Turn{Text: originalText, SessionID: sessionID})
}

// SelectRecipe answers a recipe choice by id. It returns nil when no choice
// is pending.
func (a *Assistant) SelectRecipe(ctx context.Context, recipeID int64) conversation.Response {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()
	p, ok := a.pending.Take()
	if !ok {
		return nil
	}
	metrics.TurnsDispatched.WithLabelValues("chip").Inc()
	return a.send(ctx, conversation.Turn{Text: p.OriginalText, ResolvedRecipeID: recipeID})
}

// ConfirmEnd confirms ending a session from the prompt in message msgID.
func (a *Assistant) ConfirmEnd(ctx context.Context, msgID int, sessionID int64) conversation.Response {
	a.updateMessage(msgID, func(m *Message) { m.AwaitingEndConfirmation = false })

	a.sendMu.Lock()
	defer a.sendMu.Unlock()
	metrics.TurnsDispatched.WithLabelValues("chip").Inc()
	return a.send(ctx, conversation.Turn{Text: "yes", SessionID: sessionID, ConfirmEnd: true})
}

// DismissEndConfirmation keeps cooking: the prompt goes away and nothing is
// sent.
func (a *Assistant) DismissEndConfirmation(msgID int) bool {
	return a.updateMessage(msgID, func(m *Message) { m.AwaitingEndConfirmation = false })
}

// AcceptTimer starts the suggestion with the given label from message
// msgID.
func (a *Assistant) AcceptTimer(ctx context.Context, msgID int, label string) (timer.Started, bool) {
	var s timer.Suggestion
	found := false
	a.updateMessage(msgID, func(m *Message) {
		for i, sug := range m.Suggestions {
			if sug.Label == label {
				s = sug
				found = true
				m.Suggestions = append(m.Suggestions[:i:i], m.Suggestions[i+1:]...)
				return
			}
		}
	})
	if !found {
		return timer.Started{}, false
	}

	started := a.announcer.Accept(ctx, s)
	a.appendMessage(Message{
		Role: RoleSystem,
		Text: fmt.Sprintf("Timer started: %s (%s)", started.Label, timer.FormatClock(started.DurationSeconds)),
	})
	return started, true
}

// DismissSuggestion drops a timer suggestion without starting it.
func (a *Assistant) DismissSuggestion(msgID int, label string) bool {
	found := false
	a.updateMessage(msgID, func(m *Message) {
		for i, sug := range m.Suggestions {
			if sug.Label == label {
				found = true
				m.Suggestions = append(m.Suggestions[:i:i], m.Suggestions[i+1:]...)
				return
			}
		}
	})
	return found
}

// EndSession ends a session directly, without asking the assistant.
func (a *Assistant) EndSession(ctx context.Context, sessionID int64) error {
	msg, err := a.backend.EndSession(ctx, sessionID)
	if err != nil {
		a.logger.Warn("failed to end session",
			slog.Int64("session", sessionID),
			slog.String("error", err.Error()))
		return err
	}
	if msg != "" {
		a.appendMessage(Message{Role: RoleSystem, Text: msg})
	}
	a.sessionsChanged()
	return nil
}

// RefreshSessions reloads the active sessions and rebuilds the timer board
// from them.
func (a *Assistant) RefreshSessions(ctx context.Context) error {
	sessions, err := a.backend.Sessions(ctx)
	if err != nil {
		a.logger.Warn("failed to load sessions", slog.String("error", err.Error()))
		return err
	}
	a.mu.Lock()
	a.sessions = sessions
	a.mu.Unlock()
	a.board.Replace(sessions)
	return nil
}

// DismissTimer removes a running or finished timer.
func (a *Assistant) DismissTimer(ctx context.Context, id string) {
	a.board.Dismiss(ctx, id)
}

// Tick finishes timers that have run out by now. Each is announced once.
func (a *Assistant) Tick(now time.Time) []timer.Started {
	done := a.board.Tick(now)
	for _, t := range done {
		text := timer.DoneMessage(t)
		a.logger.Info("timer done", slog.String("label", t.Label), slog.String("id", t.ID))
		a.appendMessage(Message{Role: RoleSystem, Text: text})
		if a.speaker != nil {
			a.speaker.Speak(text)
		}
		if a.notifier != nil {
			if err := a.notifier.TimerDone(t); err != nil {
				a.logger.Debug("timer notification failed", slog.String("error", err.Error()))
			}
		}
	}
	return done
}

// Sessions returns the sessions from the last refresh.
func (a *Assistant) Sessions() []backend.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]backend.Session(nil), a.sessions...)
}

// Timers returns the timers on the board.
func (a *Assistant) Timers() []timer.Started {
	return a.board.Timers()
}

// Messages returns a copy of the transcript.
func (a *Assistant) Messages() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Message(nil), a.messages...)
}

// Pending returns the recipe choice waiting for an answer, if any.
func (a *Assistant) Pending() (conversation.Pending, bool) {
	return a.pending.Pending()
}

// Wait blocks until background timer persistence and session refreshes
// have finished.
func (a *Assistant) Wait() {
	a.announcer.Wait()
	a.refreshes.Wait()
}

func (a *Assistant) send(ctx context.Context, turn conversation.Turn) conversation.Response {
	if strings.TrimSpace(turn.Text) == "" {
		return nil
	}
	resp := a.dispatcher.Send(ctx, turn)
	if ctx.Err() != nil {
		// the mic went off or the caller gave up; nobody is waiting for this
		a.logger.Debug("reply dropped", slog.String("kind", resp.Kind().String()))
		a.endTurn()
		return resp
	}
	a.apply(ctx, turn, resp)
	return resp
}

func (a *Assistant) apply(ctx context.Context, turn conversation.Turn, resp conversation.Response) {
	voiceMode := a.speaker != nil && a.speaker.VoiceMode()
	base := resp.Base()
	msg := Message{
		Role:      RoleAssistant,
		Text:      base.Display,
		ModelUsed: base.ModelUsed,
		SessionID: base.SessionID,
	}
	spoken := []string{base.Spoken}

	switch r := resp.(type) {
	case conversation.ErrorResponse:
		msg.Role = RoleSystem
		msg.ModelUsed = ""
	case conversation.SessionDisambiguation:
		msg.Sessions = r.Sessions
		msg.OriginalText = r.OriginalText
	case conversation.RecipeDisambiguation:
		original := r.PendingText
		if original == "" {
			original = turn.Text
		}
		a.pending.Set(conversation.Pending{OriginalText: original, Candidates: r.Candidates})
		msg.Candidates = r.Candidates
	case conversation.SessionStarted:
		out := a.announcer.Handle(ctx, timer.Batch{Suggested: r.SuggestedTimers, SessionID: r.SessionID}, voiceMode)
		msg.Recipe = r.Recipe
		msg.Suggestions = out.Pending
		spoken = append(spoken, out.Spoken())
	case conversation.AwaitingEndConfirmation:
		msg.AwaitingEndConfirmation = true
	case conversation.SessionCompleted:
	case conversation.Normal:
		out := a.announcer.Handle(ctx, timer.Batch{
			Suggested: r.SuggestedTimers,
			Started:   r.StartedTimers,
			SessionID: r.SessionID,
		}, voiceMode)
		msg.Recipe = r.Recipe
		msg.Suggestions = out.Pending
		msg.AwaitingCompletion = r.AwaitingCompletion
		spoken = append(spoken, out.Spoken())
	}

	a.appendMessage(msg)
	a.say(spoken...)
}

// say speaks the non-empty parts as one block, or ends the turn when there
// is nothing to say.
func (a *Assistant) say(parts ...string) {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		a.endTurn()
		return
	}
	if a.speaker != nil {
		a.speaker.Speak(strings.Join(kept, " "))
	}
}

func (a *Assistant) endTurn() {
	if a.speaker != nil {
		a.speaker.TurnComplete()
	}
}

func (a *Assistant) sessionsChanged() {
	a.refreshes.Add(1)
	go func() {
		defer a.refreshes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		_ = a.RefreshSessions(ctx)
	}()
}

func (a *Assistant) appendMessage(m Message) Message {
	a.mu.Lock()
	a.nextID++
	m.ID = a.nextID
	if m.At.IsZero() {
		m.At = a.now()
	}
	a.messages = append(a.messages, m)
	if over := len(a.messages) - a.maxMessages; over > 0 {
		a.messages = append([]Message(nil), a.messages[over:]...)
	}
	a.mu.Unlock()

	if a.onMessage != nil {
		a.onMessage(m)
	}
	return m
}

func (a *Assistant) updateMessage(id int, fn func(*Message)) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.messages {
		if a.messages[i].ID == id {
			fn(&a.messages[i])
			return true
		}
	}
	return false
}
