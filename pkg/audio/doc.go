// Package audio groups the signal-processing packages used by voice
// verification:
//
//   - waveform: mono float64 utterances at 16 kHz, WAV/MP3 decoding,
//     resampling and silence trimming
//   - spectrum: STFT magnitudes and per-frame spectral descriptors
//     (centroid, rolloff, flatness, band energy)
//
// Example usage:
//
//	import (
//	    "github.com/AIINA17/Livekit-Biometric/pkg/audio/spectrum"
//	    "github.com/AIINA17/Livekit-Biometric/pkg/audio/waveform"
//	)
//
//	w, err := waveform.Load("utterance.wav")
//	if err != nil {
//	    return err
//	}
//	spec := spectrum.New(spectrum.DefaultConfig()).Compute(w.Trim(25).Samples)
//	centroid := spec.Centroid()
package audio
