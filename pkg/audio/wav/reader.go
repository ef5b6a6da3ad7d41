package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/chriscow/sous-voice/pkg/audio"
)

// Header represents a WAV file header
type Header struct {
	ChunkSize     uint32
	SampleRate    uint32
	NumChannels   uint16
	BitsPerSample uint16
	DataSize      uint32
}

// Reader reads 16-bit PCM WAV files
type Reader struct {
	file   *os.File
	header Header
}

// NewReader opens a WAV file and parses its header.
func NewReader(filename string) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}

	reader := &Reader{file: file}
	if err := reader.readHeader(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	return reader, nil
}

// Header returns the WAV file header information
func (r *Reader) Header() Header {
	return r.header
}

// Format returns the sample layout of the data chunk.
func (r *Reader) Format() audio.Format {
	return audio.Format{SampleRate: int(r.header.SampleRate), Channels: int(r.header.NumChannels)}
}

// PCM streams the data chunk.
func (r *Reader) PCM() io.Reader {
	return io.LimitReader(r.file, int64(r.header.DataSize))
}

// ReadAll returns the whole data chunk.
func (r *Reader) ReadAll() ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.file, int64(r.header.DataSize)))
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}
	return data, nil
}

// Close closes the WAV file
func (r *Reader) Close() error {
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

func (r *Reader) readHeader() error {
	var riff [12]byte
	if _, err := io.ReadFull(r.file, riff[:]); err != nil {
		return fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" {
		return fmt.Errorf("not a valid RIFF file")
	}
	if string(riff[8:12]) != "WAVE" {
		return fmt.Errorf("not a valid WAVE file")
	}
	r.header.ChunkSize = binary.LittleEndian.Uint32(riff[4:8])

	sawFmt := false
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r.file, chunk[:]); err != nil {
			return fmt.Errorf("failed to read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return fmt.Errorf("fmt chunk too small: %d bytes", size)
			}
			var fmtData [16]byte
			if _, err := io.ReadFull(r.file, fmtData[:]); err != nil {
				return fmt.Errorf("failed to read fmt data: %w", err)
			}
			if format := binary.LittleEndian.Uint16(fmtData[0:2]); format != 1 {
				return fmt.Errorf("only PCM format is supported, got format %d", format)
			}
			r.header.NumChannels = binary.LittleEndian.Uint16(fmtData[2:4])
			r.header.SampleRate = binary.LittleEndian.Uint32(fmtData[4:8])
			r.header.BitsPerSample = binary.LittleEndian.Uint16(fmtData[14:16])
			if size > 16 {
				if _, err := r.file.Seek(int64(size-16), io.SeekCurrent); err != nil {
					return fmt.Errorf("failed to skip fmt data: %w", err)
				}
			}
			sawFmt = true

		case "data":
			if !sawFmt {
				return fmt.Errorf("data chunk before fmt chunk")
			}
			r.header.DataSize = size
			if r.header.BitsPerSample != 16 {
				return fmt.Errorf("only 16-bit samples are supported, got %d-bit", r.header.BitsPerSample)
			}
			return nil

		default:
			if _, err := r.file.Seek(int64(size), io.SeekCurrent); err != nil {
				return fmt.Errorf("failed to skip chunk: %w", err)
			}
		}
	}
}
