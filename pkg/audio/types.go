// ABOUTME: Audio type definitions
// ABOUTME: Defines the PCM stream format and sample conversion helpers
package audio

import (
	"fmt"
	"time"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// LiveFormat is the format producers send on the live path.
var LiveFormat = Format{
	SampleRate: 16000,
	Channels:   1,
	BitDepth:   16,
}

// Format describes a raw little-endian PCM stream
type Format struct {
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`
	Channels   int `yaml:"channels" json:"channels"`
	BitDepth   int `yaml:"bit_depth" json:"bit_depth"`
}

// Validate checks that the format can be described by a PCM container
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", f.Channels)
	}
	switch f.BitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("unsupported bit depth: %d (supported: 8, 16, 24, 32)", f.BitDepth)
	}
	return nil
}

// BytesPerSample returns the width of a single sample
func (f Format) BytesPerSample() int {
	return f.BitDepth / 8
}

// BlockAlign returns the size of one frame (one sample per channel)
func (f Format) BlockAlign() int {
	return f.Channels * f.BytesPerSample()
}

// ByteRate returns the number of bytes per second of audio
func (f Format) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}

// Duration converts a byte count of PCM data to playback time
func (f Format) Duration(n int64) time.Duration {
	rate := f.ByteRate()
	if rate <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// String renders the format as "16000Hz/1ch/16bit"
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitDepth)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}
