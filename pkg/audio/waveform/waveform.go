// Package waveform holds mono floating-point audio and the conversions the
// verification pipeline needs before feature extraction.
//
// All analysis in this module runs on a [Waveform] sampled at [SampleRate]
// (16 kHz). Callers holding audio at another rate convert it with
// [Resample]; callers holding files use [Load], which decodes, downmixes
// and resamples in one step.
package waveform

import (
	"math"
	"time"
)

// SampleRate is the analysis sample rate in Hz.
const SampleRate = 16000

// silenceFloor is the absolute peak below which a waveform is treated as
// digital silence.
const silenceFloor = 1e-6

// Waveform is mono audio with samples normalized to [-1, 1].
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// New returns a Waveform over samples at the given rate. The slice is not
// copied.
func New(samples []float64, rate int) Waveform {
	return Waveform{Samples: samples, SampleRate: rate}
}

// FromPCM16 converts PCM16 signed little-endian mono bytes to a Waveform.
// A trailing odd byte is ignored.
func FromPCM16(pcm []byte, rate int) Waveform {
	n := len(pcm) / 2
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		samples[i] = float64(s) / 32768.0
	}
	return Waveform{Samples: samples, SampleRate: rate}
}

// PCM16 encodes the waveform as PCM16 signed little-endian bytes, clipping
// samples outside [-1, 1].
func (w Waveform) PCM16() []byte {
	out := make([]byte, len(w.Samples)*2)
	for i, s := range w.Samples {
		var v int16
		switch {
		case s >= 1:
			v = 32767
		case s <= -1:
			v = -32768
		default:
			v = int16(s * 32767.0)
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// Len returns the number of samples.
func (w Waveform) Len() int { return len(w.Samples) }

// Duration returns the playback duration. Zero when the rate is unset.
func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(w.Samples)) * time.Second / time.Duration(w.SampleRate)
}

// Peak returns the largest absolute sample value.
func (w Waveform) Peak() float64 {
	var peak float64
	for _, s := range w.Samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// IsSilent reports whether the waveform is empty or its peak is below the
// digital silence floor.
func (w Waveform) IsSilent() bool {
	return len(w.Samples) == 0 || w.Peak() < silenceFloor
}

// Finite reports whether every sample is a finite number.
func (w Waveform) Finite() bool {
	for _, s := range w.Samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return false
		}
	}
	return true
}
