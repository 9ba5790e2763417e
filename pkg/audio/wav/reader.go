// ABOUTME: WAV header inspection
// ABOUTME: Parses canonical PCM headers written by Writer
package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Deploy-u/Audio-Recording-System/pkg/audio"
)

// Info describes a container's header
type Info struct {
	Format   audio.Format
	DataSize uint32
	// Streaming is true when the header still carries the provisional length
	Streaming bool
}

// Duration returns the playback time declared by the header
func (i Info) Duration() time.Duration {
	if i.Streaming {
		return 0
	}
	return i.Format.Duration(int64(i.DataSize))
}

// ReadInfo parses the 44-byte canonical header at the start of r
func ReadInfo(r io.ReaderAt) (Info, error) {
	h := make([]byte, HeaderSize)
	if _, err := r.ReadAt(h, 0); err != nil {
		return Info{}, fmt.Errorf("wav: read header: %w", err)
	}

	if string(h[0:4]) != "RIFF" {
		return Info{}, fmt.Errorf("wav: missing RIFF header")
	}
	if string(h[8:12]) != "WAVE" {
		return Info{}, fmt.Errorf("wav: missing WAVE format")
	}
	if string(h[12:16]) != "fmt " {
		return Info{}, fmt.Errorf("wav: missing fmt chunk")
	}
	if string(h[36:40]) != "data" {
		return Info{}, fmt.Errorf("wav: missing data chunk")
	}
	if tag := binary.LittleEndian.Uint16(h[20:22]); tag != formatPCM {
		return Info{}, fmt.Errorf("wav: unsupported audio format: %d (only PCM is supported)", tag)
	}

	dataSize := binary.LittleEndian.Uint32(h[40:44])
	return Info{
		Format: audio.Format{
			SampleRate: int(binary.LittleEndian.Uint32(h[24:28])),
			Channels:   int(binary.LittleEndian.Uint16(h[22:24])),
			BitDepth:   int(binary.LittleEndian.Uint16(h[34:36])),
		},
		DataSize:  dataSize,
		Streaming: dataSize == StreamingLength,
	}, nil
}

// ReadFileInfo opens path and parses its header
func ReadFileInfo(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()
	return ReadInfo(f)
}
