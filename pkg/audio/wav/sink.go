// Package wav reads and writes 16-bit PCM WAV files. Sink stores each
// synthesized utterance as its own file, for machines without an output
// device.
package wav

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/chriscow/sous-voice/pkg/audio"
)

// Sink writes every Play call to dir/utterance-NNNN.wav.
type Sink struct {
	dir string

	mu    sync.Mutex
	count int
	files []string
}

// NewSink creates dir if needed.
func NewSink(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create wav dir: %w", err)
	}
	return &Sink{dir: dir}, nil
}

// Play copies pcm into a new WAV file. A cancelled utterance keeps what was
// written so far.
func (s *Sink) Play(ctx context.Context, pcm io.Reader, f audio.Format) error {
	s.mu.Lock()
	s.count++
	name := filepath.Join(s.dir, fmt.Sprintf("utterance-%04d.wav", s.count))
	s.files = append(s.files, name)
	s.mu.Unlock()

	w, err := NewWriter(name, uint32(f.SampleRate), uint16(f.Channels))
	if err != nil {
		return err
	}

	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			w.Close()
			return err
		}
		n, rerr := pcm.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				w.Close()
				return fmt.Errorf("write wav: %w", err)
			}
		}
		if rerr == io.EOF {
			return w.Close()
		}
		if rerr != nil {
			w.Close()
			return fmt.Errorf("read pcm: %w", rerr)
		}
	}
}

// Files returns the paths written so far, in order.
func (s *Sink) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.files...)
}

var _ audio.Sink = (*Sink)(nil)
