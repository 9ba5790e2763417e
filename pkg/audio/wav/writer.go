// ABOUTME: Incremental WAV container writer
// ABOUTME: Appends raw PCM to disk and back-patches the RIFF header on finalize
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/Deploy-u/Audio-Recording-System/pkg/audio"
)

const (
	// HeaderSize is the length of the canonical PCM header
	HeaderSize = 44

	// StreamingLength marks RIFF and data sizes that are not known yet
	StreamingLength = math.MaxUint32

	// MaxDataSize is the largest data chunk whose RIFF size still fits in 32 bits
	MaxDataSize = math.MaxUint32 - (HeaderSize - 8) - 1

	riffSizeOffset = 4
	dataSizeOffset = 40

	formatPCM = 1
)

var (
	// ErrWriterClosed is returned by Write after Finalize
	ErrWriterClosed = errors.New("wav: writer finalized")

	// ErrContainerFull is returned when a write would overflow the 32-bit size fields
	ErrContainerFull = errors.New("wav: data exceeds container size limit")
)

// IOError wraps a filesystem failure while producing a container
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("wav: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Writer streams PCM samples into a WAV file whose final length is unknown
// until Finalize. A Writer is owned by a single goroutine; the mutex only
// guards the accessors used by dashboards.
type Writer struct {
	path   string
	format audio.Format
	file   *os.File

	mu           sync.Mutex
	bytesWritten int64
	finalized    bool
}

// Create creates path exclusively and writes a header with a provisional
// streaming length so a partial file stays playable until Finalize.
func Create(path string, format audio.Format) (*Writer, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("wav: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, &IOError{Op: "create", Path: path, Err: err}
	}

	header := encodeHeader(format, StreamingLength, StreamingLength)
	if _, err := f.Write(header); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, &IOError{Op: "write header", Path: path, Err: err}
	}

	return &Writer{
		path:   path,
		format: format,
		file:   f,
	}, nil
}

// Write appends raw sample bytes to the data chunk in order
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return 0, ErrWriterClosed
	}
	if w.bytesWritten+int64(len(p)) > MaxDataSize {
		return 0, ErrContainerFull
	}

	n, err := w.file.Write(p)
	w.bytesWritten += int64(n)
	if err != nil {
		return n, &IOError{Op: "write", Path: w.path, Err: err}
	}
	return n, nil
}

// Finalize patches the header with the true data length and closes the file.
// Calling Finalize again is a no-op.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return nil
	}
	w.finalized = true

	err := w.patch()
	if cerr := w.file.Close(); cerr != nil && err == nil {
		err = &IOError{Op: "close", Path: w.path, Err: cerr}
	}
	return err
}

func (w *Writer) patch() error {
	dataSize := uint32(w.bytesWritten)
	riffSize := uint32(HeaderSize-8) + dataSize

	// RIFF chunks are word aligned; the pad byte sits after the data chunk
	if dataSize%2 == 1 {
		if _, err := w.file.Write([]byte{0}); err != nil {
			return &IOError{Op: "write pad", Path: w.path, Err: err}
		}
		riffSize++
	}

	var field [4]byte
	binary.LittleEndian.PutUint32(field[:], riffSize)
	if _, err := w.file.WriteAt(field[:], riffSizeOffset); err != nil {
		return &IOError{Op: "patch header", Path: w.path, Err: err}
	}
	binary.LittleEndian.PutUint32(field[:], dataSize)
	if _, err := w.file.WriteAt(field[:], dataSizeOffset); err != nil {
		return &IOError{Op: "patch header", Path: w.path, Err: err}
	}

	if err := w.file.Sync(); err != nil {
		return &IOError{Op: "sync", Path: w.path, Err: err}
	}
	return nil
}

// BytesWritten returns the size of the data region so far
func (w *Writer) BytesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bytesWritten
}

// Finalized reports whether Finalize has been called
func (w *Writer) Finalized() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finalized
}

// Path returns the output file path
func (w *Writer) Path() string {
	return w.path
}

// Format returns the container's audio format
func (w *Writer) Format() audio.Format {
	return w.format
}

// WriteFrom wraps an entire raw PCM stream into a new container at path.
// On failure the partially written file is removed.
func WriteFrom(path string, format audio.Format, r io.Reader) (int64, error) {
	w, err := Create(path, format)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(w, r)
	if ferr := w.Finalize(); err == nil {
		err = ferr
	}
	if err != nil {
		_ = os.Remove(path)
		return n, err
	}
	return n, nil
}

// encodeHeader builds the 44-byte canonical PCM header
func encodeHeader(f audio.Format, riffSize, dataSize uint32) []byte {
	h := make([]byte, HeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], riffSize)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], formatPCM)
	binary.LittleEndian.PutUint16(h[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(f.ByteRate()))
	binary.LittleEndian.PutUint16(h[32:34], uint16(f.BlockAlign()))
	binary.LittleEndian.PutUint16(h[34:36], uint16(f.BitDepth))
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataSize)
	return h
}
