// Package console provides a recognizer that reads transcripts typed on a
// terminal and a synthesizer that prints what it would say. Together they
// drive the voice core without any audio hardware.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chriscow/sous-voice/pkg/ai"
	"github.com/chriscow/sous-voice/pkg/ai/stt"
)

// InterimPrefix marks a typed line as an interim result.
const InterimPrefix = "~"

// Recognizer turns input lines into recognition events. A line starting with
// InterimPrefix is an interim result; anything else is final. A line of the
// form "!code" reports a recognition error with that code.
type Recognizer struct {
	in io.Reader

	once  sync.Once
	lines chan string

	mu   sync.Mutex
	stop chan struct{}
	eof  bool
}

// NewRecognizer reads lines from in.
func NewRecognizer(in io.Reader) *Recognizer {
	return &Recognizer{in: in, lines: make(chan string)}
}

func (r *Recognizer) scan() {
	sc := bufio.NewScanner(r.in)
	for sc.Scan() {
		r.lines <- sc.Text()
	}
	close(r.lines)
}

// Start opens a session. The session ends on Abort, on ctx cancellation, or
// when input is exhausted; after that Start fails.
func (r *Recognizer) Start(ctx context.Context, cfg stt.Config) (<-chan stt.Event, error) {
	r.once.Do(func() { go r.scan() })

	r.mu.Lock()
	if r.eof {
		r.mu.Unlock()
		return nil, ai.NewFatalError(io.EOF, "console input closed")
	}
	if r.stop != nil {
		close(r.stop)
	}
	stop := make(chan struct{})
	r.stop = stop
	r.mu.Unlock()

	events := make(chan stt.Event)
	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case line, ok := <-r.lines:
				if !ok {
					r.mu.Lock()
					r.eof = true
					r.mu.Unlock()
					return
				}
				ev, ok := parseLine(line, cfg.InterimResults)
				if !ok {
					continue
				}
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				case <-stop:
					return
				}
			}
		}
	}()
	return events, nil
}

func parseLine(line string, interim bool) (stt.Event, bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return stt.Event{}, false
	case strings.HasPrefix(line, "!"):
		return stt.Failure(stt.ErrorCode(strings.TrimPrefix(line, "!"))), true
	case strings.HasPrefix(line, InterimPrefix):
		if !interim {
			return stt.Event{}, false
		}
		return stt.Interim(strings.TrimSpace(strings.TrimPrefix(line, InterimPrefix))), true
	default:
		return stt.Final(line), true
	}
}

// Abort ends the current session.
func (r *Recognizer) Abort() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
	return nil
}

// Capabilities reports a continuous recognizer with interim results.
func (r *Recognizer) Capabilities() stt.Capabilities {
	return stt.Capabilities{Continuous: true, InterimResults: true, SupportedLanguages: []string{"en-US"}}
}

func (r *Recognizer) String() string {
	return fmt.Sprintf("console recognizer (interim prefix %q)", InterimPrefix)
}

var _ stt.Recognizer = (*Recognizer)(nil)
