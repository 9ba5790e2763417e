// ABOUTME: PCM level metering
// ABOUTME: Computes the normalized peak amplitude of a raw sample chunk
package audio

import "encoding/binary"

// Peak returns the peak absolute amplitude of data in the range [0, 1].
// Samples are interpreted in the 24-bit range regardless of bit depth.
// A trailing partial sample is ignored.
func Peak(data []byte, f Format) float64 {
	width := f.BytesPerSample()
	if width == 0 {
		return 0
	}

	var peak int32
	for i := 0; i+width <= len(data); i += width {
		s := sampleAt(data[i:i+width], width)
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}

	if peak > Max24Bit {
		peak = Max24Bit
	}
	return float64(peak) / float64(Max24Bit)
}

// sampleAt decodes one little-endian sample into the 24-bit range
func sampleAt(b []byte, width int) int32 {
	switch width {
	case 1:
		// 8-bit PCM is unsigned with a 128 midpoint
		return (int32(b[0]) - 128) << 16
	case 2:
		return SampleFromInt16(int16(binary.LittleEndian.Uint16(b)))
	case 3:
		return SampleFrom24Bit([3]byte{b[0], b[1], b[2]})
	default:
		return int32(binary.LittleEndian.Uint32(b)) >> 8
	}
}
