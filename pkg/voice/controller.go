package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chriscow/sous-voice/internal/metrics"
	"github.com/chriscow/sous-voice/pkg/ai"
	"github.com/chriscow/sous-voice/pkg/ai/stt"
	"github.com/chriscow/sous-voice/pkg/ai/tts"
)

// ErrNotAuthorized is reported when the mic is enabled without a signed-in user.
var ErrNotAuthorized = errors.New("voice requires a signed-in user")

// CommandHandler receives a resolved command. It runs on its own goroutine;
// ctx is cancelled when the mic is turned off.
type CommandHandler func(ctx context.Context, text string)

// Config holds configuration for creating a Controller.
type Config struct {
	Recognizer  stt.Recognizer
	Synthesizer tts.Synthesizer

	// OnCommand receives commands: the text after a wake phrase, or the
	// whole final transcript heard inside a follow-up window.
	OnCommand CommandHandler

	// OnError is told about failures that forced the mic off.
	OnError func(error)

	// Authorized gates EnableMic. Nil means always authorized.
	Authorized func() bool

	WakePhrases       []string
	FollowUp          time.Duration
	Voice             string
	Lang              string
	Rate              float32
	RecognitionConfig stt.Config

	Logger *slog.Logger
}

// Controller composes wake phrase detection, the follow-up window, the
// microphone state machine, and speech output around one continuous
// recognition session. All mutable state is owned by the event handlers,
// which run one at a time in arrival order.
type Controller struct {
	recognizer stt.Recognizer
	recCfg     stt.Config
	wake       *WakeDetector
	followUp   *FollowUpWindow
	speech     *SpeechStreamer
	sm         *StateMachine
	onCommand  CommandHandler
	onError    func(error)
	authorized func() bool
	logger     *slog.Logger

	// serial executor
	qmu      sync.Mutex
	queue    []Event
	draining bool

	// handler-owned
	enabled        atomic.Bool
	speaking       bool
	bargedIn       bool // the open follow-up window was opened by barge-in
	speechQueue    uint64
	session        uint64
	restartPending bool
	sessionCtx     context.Context
	sessionCancel  context.CancelFunc

	turns sync.WaitGroup
}

// New creates a new Controller with the given configuration.
func New(cfg Config) (*Controller, error) {
	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("recognizer is required")
	}
	if cfg.Synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.WakePhrases) == 0 {
		cfg.WakePhrases = DefaultWakePhrases
	}
	if cfg.RecognitionConfig == (stt.Config{}) {
		cfg.RecognitionConfig = stt.DefaultConfig
	}

	wake := NewWakeDetector(cfg.WakePhrases)
	if len(wake.Phrases()) == 0 {
		return nil, fmt.Errorf("at least one wake phrase is required")
	}

	c := &Controller{
		recognizer: cfg.Recognizer,
		recCfg:     cfg.RecognitionConfig,
		wake:       wake,
		sm:         NewStateMachine(),
		onCommand:  cfg.OnCommand,
		onError:    cfg.OnError,
		authorized: cfg.Authorized,
		logger:     cfg.Logger,
	}
	c.followUp = NewFollowUpWindow(cfg.FollowUp, func(gen uint64) {
		c.Dispatch(followUpExpired{window: gen})
	})

	speech, err := NewSpeechStreamer(SpeechConfig{
		Synthesizer: cfg.Synthesizer,
		Voice:       cfg.Voice,
		Lang:        cfg.Lang,
		Rate:        cfg.Rate,
		OnFinished: func(gen uint64) {
			c.Dispatch(speechFinished{queue: gen})
		},
		OnFailed: func(gen uint64, err error) {
			c.Dispatch(speechFailed{queue: gen, err: err})
		},
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	c.speech = speech

	c.sm.OnChange(func(from, to MicState) {
		c.logger.Debug("mic state", slog.String("from", from.String()), slog.String("to", to.String()))
	})
	return c, nil
}

// Enable turns the mic on.
func (c *Controller) Enable(ctx context.Context) {
	c.Dispatch(EnableMic{Ctx: ctx})
}

// Disable turns the mic off.
func (c *Controller) Disable() {
	c.Dispatch(DisableMic{})
}

// Toggle flips the mic.
func (c *Controller) Toggle(ctx context.Context) {
	c.Dispatch(ToggleMic{Ctx: ctx})
}

// Speak speaks text if the mic is on.
func (c *Controller) Speak(text string) {
	c.Dispatch(SpeakText{Text: text})
}

// TurnComplete tells the controller a command produced nothing to speak.
func (c *Controller) TurnComplete() {
	c.Dispatch(TurnComplete{})
}

// Close turns the mic off and waits for in-flight command handlers.
func (c *Controller) Close() error {
	c.Dispatch(DisableMic{})
	c.turns.Wait()
	return nil
}

// State returns the current mic state.
func (c *Controller) State() MicState {
	return c.sm.Current()
}

// StateSince returns when the current state was entered.
func (c *Controller) StateSince() time.Time {
	return c.sm.Since()
}

// Enabled reports whether the mic is logically on.
func (c *Controller) Enabled() bool {
	return c.enabled.Load()
}

// VoiceMode reports whether spoken output and hands-free timers are active.
func (c *Controller) VoiceMode() bool {
	return c.Enabled()
}

// Speaking reports whether a speech queue is playing.
func (c *Controller) Speaking() bool {
	return c.speech.Active()
}

// FollowUpActive reports whether a follow-up window is open.
func (c *Controller) FollowUpActive() bool {
	return c.followUp.IsActive()
}

// OnStateChange registers a listener for mic state changes.
func (c *Controller) OnStateChange(fn StateChangeListener) {
	c.sm.OnChange(fn)
}

// Dispatch hands an event to the controller. Exactly one handler runs at a
// time, events are handled in the order they were dispatched, and a handler
// may dispatch further events; those are queued behind the current one.
func (c *Controller) Dispatch(ev Event) {
	c.qmu.Lock()
	c.queue = append(c.queue, ev)
	if c.draining {
		c.qmu.Unlock()
		return
	}
	c.draining = true
	for len(c.queue) > 0 {
		next := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.qmu.Unlock()
		c.handle(next)
		c.qmu.Lock()
	}
	c.draining = false
	c.qmu.Unlock()
}

func (c *Controller) handle(ev Event) {
	switch e := ev.(type) {
	case EnableMic:
		c.handleEnable(e.Ctx)
	case DisableMic:
		c.handleDisable()
	case ToggleMic:
		if c.enabled.Load() {
			c.handleDisable()
		} else {
			c.handleEnable(e.Ctx)
		}
	case SpeakText:
		c.handleSpeak(e.Text)
	case TurnComplete:
		if c.sm.Current() == MicProcessing {
			c.transition(MicIdle)
		}
	case recognized:
		c.handleRecognized(e.session, e.ev)
	case recognitionEnded:
		c.handleRecognitionEnded(e.session)
	case speechFinished:
		c.handleSpeechFinished(e.queue)
	case speechFailed:
		if c.speaking && e.queue == c.speechQueue {
			c.fail(e.err)
		}
	case followUpExpired:
		c.handleFollowUpExpired(e.window)
	default:
		c.logger.Warn("unknown voice event", slog.String("type", fmt.Sprintf("%T", ev)))
	}
}

func (c *Controller) handleEnable(ctx context.Context) {
	if c.enabled.Load() {
		return
	}
	if c.authorized != nil && !c.authorized() {
		c.report(ErrNotAuthorized)
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.enabled.Store(true)
	c.sessionCtx, c.sessionCancel = context.WithCancel(ctx)
	c.restartPending = false
	c.transition(MicIdle)

	if err := c.checkRecognizer(); err != nil {
		c.fail(err)
		return
	}
	if err := c.startRecognition(); err != nil {
		c.fail(err)
	}
}

// checkRecognizer rejects recognizers that cannot keep listening or cannot
// report interim results; without interim results there is no barge-in.
func (c *Controller) checkRecognizer() error {
	caps := c.recognizer.Capabilities()
	switch {
	case !caps.Continuous:
		return fmt.Errorf("%w: recognizer is not continuous", ai.ErrCapabilityUnavailable)
	case !caps.InterimResults:
		return fmt.Errorf("%w: recognizer has no interim results", ai.ErrCapabilityUnavailable)
	}
	return nil
}

func (c *Controller) handleDisable() {
	wasEnabled := c.enabled.Swap(false)
	c.shutdown()
	if wasEnabled || c.sm.Current() != MicDisabled {
		c.transition(MicDisabled)
	}
}

// shutdown cancels speech, the follow-up window, recognition, and in-flight
// turns in one step so no stale callback can revive the session.
func (c *Controller) shutdown() {
	c.speech.Cancel()
	c.speaking = false
	c.followUp.Cancel()
	c.bargedIn = false
	c.restartPending = false
	c.session++
	if err := c.recognizer.Abort(); err != nil {
		c.logger.Debug("recognizer abort failed", slog.String("error", err.Error()))
	}
	if c.sessionCancel != nil {
		c.sessionCancel()
		c.sessionCancel = nil
	}
}

// fail forces the mic off and reports err.
func (c *Controller) fail(err error) {
	c.logger.Error("voice session failed", slog.String("error", err.Error()))
	c.enabled.Store(false)
	c.shutdown()
	c.transition(MicError)
	c.report(err)
}

func (c *Controller) report(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

func (c *Controller) startRecognition() error {
	c.session++
	session := c.session
	events, err := c.recognizer.Start(c.sessionCtx, c.recCfg)
	if err != nil {
		if errors.Is(err, ai.ErrCapabilityUnavailable) {
			return err
		}
		return ai.NewFatalError(err, fmt.Sprintf("failed to start recognition: %v", err))
	}

	go func() {
		for ev := range events {
			c.Dispatch(recognized{session: session, ev: ev})
		}
		c.Dispatch(recognitionEnded{session: session})
	}()
	return nil
}

func (c *Controller) handleRecognized(session uint64, ev stt.Event) {
	if session != c.session || !c.enabled.Load() {
		return
	}

	switch ev.Type {
	case stt.EventError:
		c.handleRecognitionError(ev.Code)
	case stt.EventInterim:
		transcript := strings.TrimSpace(ev.Transcript)
		if transcript == "" {
			return
		}
		if c.speaking && c.wake.Contains(transcript) {
			c.logger.Debug("wake word in interim, interrupting speech")
			metrics.BargeIns.Inc()
			c.cancelSpeech()
			c.transition(MicListening)
			c.followUp.Open()
			c.bargedIn = true
		}
	case stt.EventFinal:
		transcript := strings.TrimSpace(ev.Transcript)
		if transcript == "" {
			return
		}
		c.handleFinal(transcript)
	}
}

func (c *Controller) handleFinal(transcript string) {
	c.logger.Debug("heard", slog.String("transcript", transcript))

	match, woke := c.wake.Detect(transcript)

	// A bare wake phrase opens the window, or restarts it if already open.
	if woke && match.Bare() {
		if c.speaking {
			c.cancelSpeech()
		}
		c.transition(MicListening)
		c.followUp.Open()
		c.bargedIn = false
		return
	}

	bargedIn := c.bargedIn
	c.bargedIn = false

	command := transcript
	switch {
	case c.followUp.Consume():
		// the utterance that interrupted speech usually repeats the wake phrase
		if bargedIn && woke {
			command = match.Remainder
		}
	case woke:
		command = match.Remainder
	default:
		return
	}

	if c.speaking {
		c.cancelSpeech()
	}
	c.transition(MicProcessing)
	c.dispatchCommand(command)
}

func (c *Controller) handleRecognitionError(code stt.ErrorCode) {
	metrics.RecognitionErrors.WithLabelValues(string(code)).Inc()
	if stt.IsBenign(code) {
		c.logger.Debug("recognition error ignored", slog.String("code", string(code)))
		return
	}
	c.logger.Warn("recognition error", slog.String("code", string(code)))
	c.fail(ai.NewFatalError(nil, fmt.Sprintf("recognition error: %s", code)))
}

func (c *Controller) handleRecognitionEnded(session uint64) {
	if session != c.session || !c.enabled.Load() {
		return
	}
	if c.speaking {
		c.restartPending = true
		return
	}
	c.restartRecognition()
}

func (c *Controller) restartRecognition() {
	c.restartPending = false
	metrics.RecognitionRestarts.Inc()
	if err := c.startRecognition(); err != nil {
		c.fail(err)
	}
}

func (c *Controller) handleSpeak(text string) {
	if !c.enabled.Load() {
		c.logger.Debug("mic off, not speaking")
		return
	}
	queue, err := c.speech.Speak(c.sessionCtx, text)
	if err != nil {
		if c.sm.Current() == MicProcessing {
			c.transition(MicIdle)
		}
		return
	}
	c.speaking = true
	c.speechQueue = queue
	c.transition(MicSpeaking)
}

func (c *Controller) handleSpeechFinished(queue uint64) {
	if !c.speaking || queue != c.speechQueue {
		return
	}
	c.speaking = false
	if !c.enabled.Load() {
		c.transition(MicDisabled)
		return
	}
	c.transition(MicIdle)
	if c.restartPending {
		c.restartRecognition()
	}
}

func (c *Controller) handleFollowUpExpired(window uint64) {
	if !c.followUp.Latest(window) {
		return
	}
	c.bargedIn = false
	if c.sm.Current() == MicListening {
		c.logger.Debug("follow-up window expired")
		c.transition(MicIdle)
	}
}

func (c *Controller) cancelSpeech() {
	c.speech.Cancel()
	c.speaking = false
	if c.restartPending && c.enabled.Load() {
		c.restartRecognition()
	}
}

func (c *Controller) dispatchCommand(text string) {
	if c.onCommand == nil {
		c.logger.Warn("no command handler, dropping command", slog.String("text", text))
		return
	}
	metrics.TurnsDispatched.WithLabelValues("voice").Inc()
	ctx := c.sessionCtx
	c.turns.Add(1)
	go func() {
		defer c.turns.Done()
		c.onCommand(ctx, text)
	}()
}

func (c *Controller) transition(to MicState) {
	if err := c.sm.Transition(to); err != nil {
		c.logger.Warn("mic transition refused", slog.String("error", err.Error()))
	}
}
