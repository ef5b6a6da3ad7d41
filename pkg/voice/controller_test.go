package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chriscow/sous-voice/pkg/ai"
	"github.com/chriscow/sous-voice/pkg/ai/stt"
	sttfake "github.com/chriscow/sous-voice/pkg/ai/stt/fake"
	ttsfake "github.com/chriscow/sous-voice/pkg/ai/tts/fake"
	"github.com/matryer/is"
)

type command struct {
	ctx  context.Context
	text string
}

type harness struct {
	c        *Controller
	rec      *sttfake.FakeRecognizer
	synth    *ttsfake.FakeTTS
	commands chan command

	mu   sync.Mutex
	errs []error
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		rec:      sttfake.NewFakeRecognizer(),
		synth:    ttsfake.NewFakeTTS(),
		commands: make(chan command, 16),
	}
	cfg := Config{
		Recognizer:  h.rec,
		Synthesizer: h.synth,
		OnCommand: func(ctx context.Context, text string) {
			h.commands <- command{ctx: ctx, text: text}
		},
		OnError: func(err error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.errs = append(h.errs, err)
		},
		FollowUp: time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.c = c
	t.Cleanup(func() { c.Close() })
	return h
}

func (h *harness) enable(t *testing.T) {
	t.Helper()
	h.c.Enable(context.Background())
	h.waitState(t, MicIdle)
}

func (h *harness) push(t *testing.T, ev stt.Event) {
	t.Helper()
	if err := h.rec.Push(ev); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func (h *harness) nextCommand(t *testing.T) command {
	t.Helper()
	select {
	case cmd := <-h.commands:
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatal("no command dispatched")
		return command{}
	}
}

func (h *harness) errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (h *harness) waitState(t *testing.T, want MicState) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return h.c.State() == want })
}

func TestController_EnableStartsRecognition(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	is.Equal(h.c.State(), MicDisabled)
	h.enable(t)

	is.True(h.c.Enabled())
	is.True(h.c.VoiceMode())
	is.True(h.rec.Running())
	is.Equal(h.rec.Starts(), 1)
	is.Equal(h.rec.LastConfig(), stt.DefaultConfig)
}

func TestController_WakeWithCommand(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.enable(t)

	h.push(t, stt.Final("Hey Sous, what's the next step"))
	cmd := h.nextCommand(t)
	is.Equal(cmd.text, "what's the next step")
	is.Equal(h.c.State(), MicProcessing)

	h.c.TurnComplete()
	h.waitState(t, MicIdle)
}

func TestController_IgnoresSpeechWithoutWakePhrase(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.enable(t)

	h.push(t, stt.Final("what's the next step"))
	h.push(t, stt.Final("hey sous set a timer"))

	// only the second utterance is a command
	is.Equal(h.nextCommand(t).text, "set a timer")
	select {
	case cmd := <-h.commands:
		t.Fatalf("unexpected command %q", cmd.text)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestController_BareWakeOpensFollowUp(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.enable(t)

	h.push(t, stt.Final("hey sous"))
	h.waitState(t, MicListening)
	is.True(h.c.FollowUpActive())
	first := h.c.followUp.Deadline()

	time.Sleep(10 * time.Millisecond)
	h.push(t, stt.Final("hey sue"))
	waitFor(t, "deadline reset", func() bool { return h.c.followUp.Deadline().After(first) })
	is.Equal(h.c.State(), MicListening)

	// the next final is a command even without a wake phrase
	h.push(t, stt.Final("how long do I rest the dough"))
	cmd := h.nextCommand(t)
	is.Equal(cmd.text, "how long do I rest the dough")
	is.Equal(h.c.State(), MicProcessing)
	is.True(!h.c.FollowUpActive())
}

func TestController_FollowUpExpiresToIdle(t *testing.T) {
	is := is.New(t)
	var changes []string
	var mu sync.Mutex
	h := newHarness(t, func(cfg *Config) { cfg.FollowUp = 40 * time.Millisecond })
	h.c.OnStateChange(func(from, to MicState) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, from.String()+">"+to.String())
	})
	h.enable(t)

	h.push(t, stt.Final("hey sous"))
	h.waitState(t, MicListening)
	h.waitState(t, MicIdle)
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	is.Equal(changes, []string{"disabled>idle", "idle>listening", "listening>idle"}) // back to idle exactly once
	is.True(!h.c.FollowUpActive())
}

func TestController_SpeakThenIdle(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.enable(t)

	h.c.Speak("Preheat the oven. Then grease the pan.")
	is.Equal(h.c.State(), MicSpeaking)
	is.True(h.c.Speaking())

	is.Equal(h.synth.CompleteAll(), 2)
	is.Equal(h.c.State(), MicIdle)
	is.True(!h.c.Speaking())
	is.Equal(h.synth.Spoken(), []string{"Preheat the oven.", "Then grease the pan."})
}

func TestController_SpeakWhileDisabledIgnored(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	h.c.Speak("Your timer is done!")
	is.Equal(len(h.synth.Spoken()), 0)
	is.Equal(h.c.State(), MicDisabled)
}

func TestController_BargeIn(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.enable(t)

	h.c.Speak("First sentence. Second sentence. Third sentence.")
	is.Equal(h.synth.Spoken(), []string{"First sentence."})

	h.push(t, stt.Interim("hey sous"))
	h.waitState(t, MicListening)
	is.True(!h.c.Speaking())

	// the interrupted segment reports completion late
	is.True(h.synth.Complete())
	is.Equal(h.synth.Spoken(), []string{"First sentence."})
	is.Equal(h.c.State(), MicListening)
}

func TestController_InterimWithoutSpeechDoesNothing(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.enable(t)

	h.push(t, stt.Interim("hey sous"))
	h.push(t, stt.Final("hey sous stop"))
	is.Equal(h.nextCommand(t).text, "stop")
	is.True(!h.c.FollowUpActive())
}

func TestController_WakeFinalWhileSpeaking(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.enable(t)

	h.c.Speak("A long answer. With more.")
	h.push(t, stt.Final("hey sous skip ahead"))
	is.Equal(h.nextCommand(t).text, "skip ahead")
	is.Equal(h.c.State(), MicProcessing)
	is.True(!h.c.Speaking())

	h.c.Speak("Skipping to step three.")
	h.waitState(t, MicSpeaking)
}

func TestController_BenignErrorsIgnored(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.enable(t)

	h.push(t, stt.Failure(stt.CodeNoSpeech))
	h.push(t, stt.Failure(stt.CodeAborted))
	h.push(t, stt.Final("hey sous next"))
	is.Equal(h.nextCommand(t).text, "next")
	is.True(h.c.Enabled())
	is.Equal(len(h.errors()), 0)
}

func TestController_FatalErrorForcesMicOff(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.enable(t)
	h.c.Speak("Something to say.")

	h.push(t, stt.Failure(stt.CodeNotAllowed))
	h.waitState(t, MicError)
	waitFor(t, "error report", func() bool { return len(h.errors()) == 1 })

	is.True(!h.c.Enabled())
	is.True(!h.c.Speaking())
	is.True(!h.rec.Running())
	errs := h.errors()
	is.Equal(len(errs), 1)
	is.True(ai.IsFatal(errs[0]))

	// re-enable recovers
	h.enable(t)
	waitFor(t, "second session", func() bool { return h.rec.Starts() == 2 })
}

func TestController_RestartsWhenRecognitionEnds(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.enable(t)

	is.NoErr(h.rec.End())
	waitFor(t, "restart", func() bool { return h.rec.Starts() == 2 && h.rec.Running() })
	is.Equal(h.c.State(), MicIdle)
}

func TestController_RestartDeferredWhileSpeaking(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.enable(t)

	h.c.Speak("Speaking now.")
	is.NoErr(h.rec.End())
	time.Sleep(20 * time.Millisecond)
	is.Equal(h.rec.Starts(), 1) // no restart while speaking

	h.synth.CompleteAll()
	waitFor(t, "restart", func() bool { return h.rec.Starts() == 2 })
	is.Equal(h.c.State(), MicIdle)
}

func TestController_RestartFailure(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.enable(t)

	h.rec.FailNextStart(errors.New("device gone"))
	is.NoErr(h.rec.End())
	h.waitState(t, MicError)
	is.True(!h.c.Enabled())
	waitFor(t, "error report", func() bool { return len(h.errors()) == 1 })
}

func TestController_EnableFailure(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.rec.FailNextStart(ai.ErrCapabilityUnavailable)

	h.c.Enable(context.Background())
	is.Equal(h.c.State(), MicError)
	is.True(!h.c.Enabled())
	errs := h.errors()
	is.Equal(len(errs), 1)
	is.True(errors.Is(errs[0], ai.ErrCapabilityUnavailable))
}

func TestController_NotAuthorized(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, func(cfg *Config) { cfg.Authorized = func() bool { return false } })

	h.c.Enable(context.Background())
	is.Equal(h.c.State(), MicDisabled)
	is.Equal(h.rec.Starts(), 0)
	is.True(errors.Is(h.errors()[0], ErrNotAuthorized))
}

func TestController_BareWakeWhileProcessing(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, func(cfg *Config) { cfg.FollowUp = 40 * time.Millisecond })
	h.enable(t)

	h.push(t, stt.Final("hey sous what's next"))
	h.nextCommand(t)
	is.Equal(h.c.State(), MicProcessing)

	h.push(t, stt.Final("hey sous"))
	h.waitState(t, MicListening)
	is.True(h.c.FollowUpActive())

	// the window drains back to idle even with a turn still in flight
	h.waitState(t, MicIdle)
	is.True(!h.c.FollowUpActive())
}

func TestController_SynthesisUnavailable(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.enable(t)

	h.synth.FailSpeak(ai.ErrCapabilityUnavailable)
	h.c.Speak("Boil the water. Then add salt.")

	h.waitState(t, MicError)
	is.True(!h.c.Enabled())
	is.True(!h.c.Speaking())
	is.True(!h.rec.Running())
	waitFor(t, "error report", func() bool { return len(h.errors()) == 1 })
	is.True(errors.Is(h.errors()[0], ai.ErrCapabilityUnavailable))
}

func TestController_SynthesisFailsMidQueue(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.enable(t)

	h.c.Speak("Boil the water. Then add salt.")
	is.True(h.synth.Fail(ai.ErrCapabilityUnavailable))

	h.waitState(t, MicError)
	is.Equal(h.synth.Spoken(), []string{"Boil the water."})
	waitFor(t, "error report", func() bool { return len(h.errors()) == 1 })
}

func TestController_SegmentErrorSkipsSegment(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.enable(t)

	h.c.Speak("Boil the water. Then add salt.")
	is.True(h.synth.Fail(errors.New("glitch")))
	is.Equal(h.synth.Spoken(), []string{"Boil the water.", "Then add salt."})
	is.True(h.synth.Complete())

	h.waitState(t, MicIdle)
	is.True(h.c.Enabled())
	is.Equal(len(h.errors()), 0)
}

func TestController_RecognizerCapabilities(t *testing.T) {
	tests := []struct {
		name string
		caps stt.Capabilities
	}{
		{name: "not continuous", caps: stt.Capabilities{InterimResults: true}},
		{name: "no interim results", caps: stt.Capabilities{Continuous: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			h := newHarness(t, nil)
			h.rec.SetCapabilities(tt.caps)

			h.c.Enable(context.Background())
			is.Equal(h.c.State(), MicError)
			is.True(!h.c.Enabled())
			is.Equal(h.rec.Starts(), 0)
			errs := h.errors()
			is.Equal(len(errs), 1)
			is.True(errors.Is(errs[0], ai.ErrCapabilityUnavailable))
		})
	}
}

func TestController_BargeInOpensFollowUp(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, func(cfg *Config) { cfg.FollowUp = 40 * time.Millisecond })
	h.enable(t)

	h.c.Speak("First sentence. Second sentence.")
	h.push(t, stt.Interim("hey sous"))
	h.waitState(t, MicListening)
	is.True(h.c.FollowUpActive())

	// nothing follows, so listening drains to idle
	h.waitState(t, MicIdle)
	is.True(!h.c.FollowUpActive())
}

func TestController_BargeInCommand(t *testing.T) {
	tests := []struct {
		name  string
		final string
		want  string
	}{
		{name: "wake phrase repeated", final: "hey sous stop talking", want: "stop talking"},
		{name: "no wake phrase", final: "how much salt", want: "how much salt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			h := newHarness(t, nil)
			h.enable(t)

			h.c.Speak("First sentence. Second sentence.")
			h.push(t, stt.Interim("hey sous"))
			h.waitState(t, MicListening)

			h.push(t, stt.Final(tt.final))
			is.Equal(h.nextCommand(t).text, tt.want)
			is.Equal(h.c.State(), MicProcessing)
			is.True(!h.c.FollowUpActive())
		})
	}
}

func TestController_DisableCancelsEverything(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.enable(t)

	h.push(t, stt.Final("hey sous what's next"))
	cmd := h.nextCommand(t)
	h.c.Speak("Step two. Step three.")
	h.push(t, stt.Final("hey sous"))
	h.waitState(t, MicListening)

	h.c.Disable()
	h.waitState(t, MicDisabled)
	is.True(!h.c.Enabled())
	is.True(!h.c.Speaking())
	is.True(!h.c.FollowUpActive())
	is.True(!h.rec.Running())
	is.True(cmd.ctx.Err() != nil) // in-flight turn cancelled

	// late completions and events change nothing
	h.synth.CompleteAll()
	h.c.TurnComplete()
	is.Equal(h.c.State(), MicDisabled)
	is.Equal(h.synth.Spoken(), []string{"Step two."})
}

func TestController_Toggle(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	h.c.Toggle(context.Background())
	is.True(h.c.Enabled())
	is.Equal(h.c.State(), MicIdle)

	h.c.Toggle(context.Background())
	is.True(!h.c.Enabled())
	is.Equal(h.c.State(), MicDisabled)
}

func TestController_ReentrantDispatch(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.synth.AutoComplete(true)
	h.enable(t)

	// auto-completing speech finishes from inside the Speak handler
	h.c.Speak("Done. Really done.")
	is.Equal(h.c.State(), MicIdle)
	is.Equal(len(h.synth.Spoken()), 2)
}

func TestNew_Validation(t *testing.T) {
	is := is.New(t)

	_, err := New(Config{Synthesizer: ttsfake.NewFakeTTS()})
	is.True(err != nil)
	_, err = New(Config{Recognizer: sttfake.NewFakeRecognizer()})
	is.True(err != nil)
	_, err = New(Config{
		Recognizer:  sttfake.NewFakeRecognizer(),
		Synthesizer: ttsfake.NewFakeTTS(),
		WakePhrases: []string{"  "},
	})
	is.True(err != nil)
}
