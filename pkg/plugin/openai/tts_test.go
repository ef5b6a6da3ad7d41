package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/chriscow/sous-voice/pkg/ai/tts"
	"github.com/chriscow/sous-voice/pkg/audio"
	"github.com/matryer/is"
)

type recordingSink struct {
	mu     sync.Mutex
	pcm    [][]byte
	format audio.Format
}

func (r *recordingSink) Play(ctx context.Context, pcm io.Reader, f audio.Format) error {
	data, err := io.ReadAll(pcm)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pcm = append(r.pcm, data)
	r.format = f
	return nil
}

func TestSynthesizer_Speak(t *testing.T) {
	is := is.New(t)

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/pcm")
		w.Write([]byte{1, 2, 3, 4})
	}))
	defer srv.Close()

	sink := &recordingSink{}
	s, err := New(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1", Sink: sink})
	is.NoErr(err)

	done := make(chan error, 1)
	err = s.Speak(context.Background(), tts.Utterance{Text: "Preheat the oven.", Rate: 1.05}, func(err error) { done <- err })
	is.NoErr(err)

	select {
	case err := <-done:
		is.NoErr(err)
	case <-time.After(2 * time.Second):
		t.Fatal("utterance never finished")
	}

	is.Equal(got["input"], "Preheat the oven.")
	is.Equal(got["voice"], "nova") // configured default
	is.Equal(got["response_format"], "pcm")
	is.Equal(got["model"], "tts-1")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	is.Equal(len(sink.pcm), 1)
	is.True(bytes.Equal(sink.pcm[0], []byte{1, 2, 3, 4}))
	is.Equal(sink.format, PCMFormat)
}

func TestSynthesizer_ServerError(t *testing.T) {
	is := is.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	s, err := New(Config{APIKey: "k", BaseURL: srv.URL + "/v1", Sink: sink})
	is.NoErr(err)

	done := make(chan error, 1)
	is.NoErr(s.Speak(context.Background(), tts.Utterance{Text: "Hi."}, func(err error) { done <- err }))
	select {
	case err := <-done:
		is.True(err != nil)
	case <-time.After(2 * time.Second):
		t.Fatal("utterance never finished")
	}
	is.Equal(len(sink.pcm), 0)
}

func TestSynthesizer_Voices(t *testing.T) {
	is := is.New(t)
	s, err := New(Config{APIKey: "k", Voice: "echo", Sink: &recordingSink{}})
	is.NoErr(err)

	v, ok := tts.PickVoice(s.Voices())
	is.True(ok)
	is.Equal(v.Name, "echo") // configured voice is preferred
	is.Equal(len(s.Voices()), len(voiceNames))
}

func TestNew_Validation(t *testing.T) {
	is := is.New(t)
	_, err := New(Config{Sink: &recordingSink{}})
	is.True(err != nil)
	_, err = New(Config{APIKey: "k"})
	is.True(err != nil)
}

func TestSynthesizer_EmptyText(t *testing.T) {
	is := is.New(t)
	s, err := New(Config{APIKey: "k", Sink: &recordingSink{}})
	is.NoErr(err)
	err = s.Speak(context.Background(), tts.Utterance{Text: "  "}, func(error) {})
	is.True(err != nil)
}

type closingSink struct {
	recordingSink
	closed int
}

func (c *closingSink) Close() error {
	c.closed++
	return nil
}

func TestSynthesizer_CloseReleasesSink(t *testing.T) {
	is := is.New(t)

	device := &closingSink{}
	s, err := New(Config{APIKey: "k", Sink: device})
	is.NoErr(err)
	is.NoErr(s.Close())
	is.Equal(device.closed, 1)

	// sinks without a device have nothing to release
	s, err = New(Config{APIKey: "k", Sink: &recordingSink{}})
	is.NoErr(err)
	is.NoErr(s.Close())
}
