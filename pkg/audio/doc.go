// ABOUTME: Audio fundamentals package providing the stream format type
// ABOUTME: Defines Format, byte-rate helpers and PCM level metering
// Package audio provides the audio format shared by the ingest pipeline.
//
// Every live stream uses one fixed Format for the lifetime of the process:
//
//	format := audio.LiveFormat // 16 kHz, mono, 16-bit little-endian PCM
//	if err := format.Validate(); err != nil {
//	    return err
//	}
//	d := format.Duration(9600) // 300ms
//
// Peak reports the normalized peak amplitude of a raw PCM chunk, which the
// server dashboard uses as a live level meter.
package audio
