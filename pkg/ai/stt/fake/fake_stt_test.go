package fake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chriscow/sous-voice/pkg/ai/stt"
	"github.com/matryer/is"
)

func TestFakeRecognizerCapabilities(t *testing.T) {
	is := is.New(t)
	caps := NewFakeRecognizer().Capabilities()

	is.True(caps.Continuous)                   // fake should be continuous
	is.True(caps.InterimResults)               // fake should emit interim results
	is.True(len(caps.SupportedLanguages) > 0) // languages should be listed
}

func TestFakeRecognizerSession(t *testing.T) {
	is := is.New(t)
	rec := NewFakeRecognizer()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := rec.Start(ctx, stt.DefaultConfig)
	is.NoErr(err)
	is.True(rec.Running())
	is.Equal(rec.LastConfig(), stt.DefaultConfig)

	is.NoErr(rec.Push(stt.Interim("hey")))
	is.NoErr(rec.Push(stt.Final("hey sous")))
	is.NoErr(rec.End())

	var got []stt.Event
	for ev := range events {
		got = append(got, ev)
	}

	is.Equal(len(got), 2)
	is.Equal(got[0].Type, stt.EventInterim)
	is.Equal(got[1].Transcript, "hey sous")
	is.True(got[1].IsFinal)
	is.True(!rec.Running()) // session should be closed after End
}

func TestFakeRecognizerPushWithoutSession(t *testing.T) {
	is := is.New(t)
	rec := NewFakeRecognizer()

	is.True(errors.Is(rec.Push(stt.Final("hello")), ErrNoSession))
	is.True(errors.Is(rec.End(), ErrNoSession))
	is.NoErr(rec.Abort()) // abort is safe without a session
}

func TestFakeRecognizerStartFailure(t *testing.T) {
	is := is.New(t)
	rec := NewFakeRecognizer()
	boom := errors.New("boom")

	rec.FailNextStart(boom)
	_, err := rec.Start(context.Background(), stt.DefaultConfig)
	is.True(errors.Is(err, boom))
	is.Equal(rec.Starts(), 0)

	rec.FailNextStart(nil)
	_, err = rec.Start(context.Background(), stt.DefaultConfig)
	is.NoErr(err)
	is.Equal(rec.Starts(), 1)
}

func TestFakeRecognizerContextCancellation(t *testing.T) {
	is := is.New(t)
	rec := NewFakeRecognizer()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := rec.Start(ctx, stt.DefaultConfig)
	is.NoErr(err)

	cancel()

	select {
	case _, ok := <-events:
		is.True(!ok) // channel should close on cancellation
	case <-time.After(time.Second):
		t.Fatal("session did not close after context cancellation")
	}
}

func TestIsBenign(t *testing.T) {
	tests := []struct {
		code stt.ErrorCode
		want bool
	}{
		{stt.CodeNoSpeech, true},
		{stt.CodeAborted, true},
		{stt.CodeNetwork, false},
		{stt.CodeNotAllowed, false},
		{stt.CodeAudioCapture, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := stt.IsBenign(tt.code); got != tt.want {
				t.Errorf("IsBenign(%q) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}
