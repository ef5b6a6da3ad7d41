// Package playback plays PCM on the default output device through PortAudio.
package playback

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/chriscow/sous-voice/pkg/audio"
	"github.com/gordonklaus/portaudio"
)

// FramesPerBuffer is the PortAudio buffer size in frames.
const FramesPerBuffer = 1024

// Player is an audio.Sink for the default output device. One utterance plays
// at a time.
type Player struct {
	mu     sync.Mutex
	closed bool
}

// New initializes PortAudio.
func New() (*Player, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	return &Player{}, nil
}

// Play streams pcm to the output device until it ends or ctx is cancelled.
func (p *Player) Play(ctx context.Context, pcm io.Reader, f audio.Format) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("player closed")
	}

	buf := make([]int16, FramesPerBuffer*f.Channels)
	stream, err := portaudio.OpenDefaultStream(0, f.Channels, float64(f.SampleRate), FramesPerBuffer, buf)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer stream.Stop()

	raw := make([]byte, len(buf)*2)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := io.ReadFull(pcm, raw)
		if n > 0 {
			samples := n / 2
			for i := 0; i < samples; i++ {
				buf[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
			}
			// pad the last partial buffer with silence
			for i := samples; i < len(buf); i++ {
				buf[i] = 0
			}
			if werr := stream.Write(); werr != nil {
				return fmt.Errorf("write output stream: %w", werr)
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read pcm: %w", err)
		}
	}
}

// Close releases PortAudio.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return portaudio.Terminate()
}

var _ audio.Sink = (*Player)(nil)
