package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Writer writes 16-bit PCM WAV files
type Writer struct {
	file          *os.File
	sampleRate    uint32
	numChannels   uint16
	bitsPerSample uint16
	bytesWritten  uint32
}

// NewWriter creates a new WAV file writer
func NewWriter(filename string, sampleRate uint32, numChannels uint16) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create WAV file: %w", err)
	}

	writer := &Writer{
		file:          file,
		sampleRate:    sampleRate,
		numChannels:   numChannels,
		bitsPerSample: 16,
	}

	// Write header (we'll update it when we close)
	if err := writer.writeHeader(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	return writer, nil
}

// Write appends raw little-endian PCM to the data chunk.
func (w *Writer) Write(pcm []byte) (int, error) {
	if w.file == nil {
		return 0, fmt.Errorf("writer closed")
	}
	n, err := w.file.Write(pcm)
	w.bytesWritten += uint32(n)
	return n, err
}

var _ io.Writer = (*Writer)(nil)

// Close finalizes the WAV file by updating the header with correct sizes
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}

	dataSize := w.bytesWritten
	chunkSize := dataSize + 36

	if _, err := w.file.Seek(4, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to chunk size: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, chunkSize); err != nil {
		return fmt.Errorf("failed to write chunk size: %w", err)
	}

	if _, err := w.file.Seek(40, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to data size: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, dataSize); err != nil {
		return fmt.Errorf("failed to write data size: %w", err)
	}

	err := w.file.Close()
	w.file = nil
	return err
}

// writeHeader writes the canonical 44 byte header with zero sizes.
func (w *Writer) writeHeader() error {
	byteRate := w.sampleRate * uint32(w.numChannels) * uint32(w.bitsPerSample) / 8
	blockAlign := w.numChannels * w.bitsPerSample / 8

	fields := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(0), // chunk size, patched in Close
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		uint16(1), // PCM
		w.numChannels,
		w.sampleRate,
		byteRate,
		blockAlign,
		w.bitsPerSample,
		[4]byte{'d', 'a', 't', 'a'},
		uint32(0), // data size, patched in Close
	}
	for _, f := range fields {
		if err := binary.Write(w.file, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}
