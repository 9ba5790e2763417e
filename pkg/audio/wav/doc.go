// ABOUTME: WAV container package
// ABOUTME: Incremental writer and header reader for PCM WAV files
// Package wav writes playable WAV containers from PCM streams of unknown
// length.
//
// Files are created eagerly with a provisional header; Finalize back-patches
// the RIFF and data sizes:
//
//	w, err := wav.Create("streams/live.wav", audio.LiveFormat)
//	if err != nil {
//	    return err
//	}
//	defer w.Finalize()
//	_, err = w.Write(chunk)
//
// Create reports filesystem failures as *IOError. Write after Finalize
// returns ErrWriterClosed.
package wav
