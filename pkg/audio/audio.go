// Package audio defines where synthesized speech goes once it is decoded to
// raw samples.
package audio

import (
	"context"
	"io"
)

// Format describes 16-bit signed little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// Sink plays or stores a stream of PCM. Play blocks until pcm is exhausted or
// ctx is cancelled; cancellation stops output promptly and returns ctx.Err().
type Sink interface {
	Play(ctx context.Context, pcm io.Reader, f Format) error
}
