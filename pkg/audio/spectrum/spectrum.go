// Package spectrum computes magnitude short-time Fourier transforms and the
// per-frame spectral shape descriptors used by the anti-spoofing features.
//
// Default parameters follow the common speech-analysis convention:
//
//	SampleRate: 16000
//	FFTSize:     1024
//	HopSize:      512
//	Window:      periodic Hann, frames centered with zero padding
//	Floor:       1e-9 added to every magnitude
package spectrum

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Config controls STFT extraction.
type Config struct {
	SampleRate int     // audio sample rate in Hz (default 16000)
	FFTSize    int     // FFT and window length in samples (default 1024)
	HopSize    int     // hop length in samples (default 512)
	Floor      float64 // added to every magnitude to avoid log/division singularities (default 1e-9)
}

// DefaultConfig returns the analysis config used by the spoof scorer.
func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		FFTSize:    1024,
		HopSize:    512,
		Floor:      1e-9,
	}
}

// Extractor computes magnitude spectrograms. It is immutable after New and
// safe for concurrent use.
type Extractor struct {
	cfg    Config
	window []float64
}

// New creates an Extractor. Zero fields in cfg take their defaults.
func New(cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.FFTSize <= 0 {
		cfg.FFTSize = def.FFTSize
	}
	if cfg.HopSize <= 0 {
		cfg.HopSize = def.HopSize
	}
	if cfg.Floor <= 0 {
		cfg.Floor = def.Floor
	}
	return &Extractor{cfg: cfg, window: periodicHann(cfg.FFTSize)}
}

// Config returns the effective configuration.
func (e *Extractor) Config() Config { return e.cfg }

// Compute returns the magnitude spectrogram of samples. Frames are centered
// on multiples of the hop size; the signal is zero-padded by FFTSize/2 on
// both sides, so there are 1 + len(samples)/HopSize frames. Returns nil for
// empty input.
func (e *Extractor) Compute(samples []float64) *Spectrogram {
	if len(samples) == 0 {
		return nil
	}
	cfg := e.cfg
	nfft := cfg.FFTSize
	half := nfft / 2
	numFrames := 1 + len(samples)/cfg.HopSize
	numBins := nfft/2 + 1

	fft := fourier.NewFFT(nfft)
	frame := make([]float64, nfft)
	coeffs := make([]complex128, numBins)
	frames := make([][]float64, numFrames)

	for t := 0; t < numFrames; t++ {
		start := t*cfg.HopSize - half
		for i := 0; i < nfft; i++ {
			j := start + i
			if j < 0 || j >= len(samples) {
				frame[i] = 0
				continue
			}
			frame[i] = samples[j] * e.window[i]
		}
		fft.Coefficients(coeffs, frame)
		mag := make([]float64, numBins)
		for k, c := range coeffs {
			mag[k] = cmplx.Abs(c) + cfg.Floor
		}
		frames[t] = mag
	}

	return &Spectrogram{
		Frames:     frames,
		SampleRate: cfg.SampleRate,
		FFTSize:    nfft,
	}
}

// periodicHann returns the DFT-even Hann window of length n, i.e. the first
// n points of a symmetric Hann window of length n+1.
func periodicHann(n int) []float64 {
	seq := make([]float64, n+1)
	for i := range seq {
		seq[i] = 1
	}
	return window.Hann(seq)[:n]
}

// amin is the power floor used by the flatness measure.
const amin = 1e-10

// Spectrogram is a [T][FFTSize/2+1] magnitude matrix.
type Spectrogram struct {
	Frames     [][]float64
	SampleRate int
	FFTSize    int
}

// NumFrames returns the number of time frames.
func (s *Spectrogram) NumFrames() int { return len(s.Frames) }

// NumBins returns the number of frequency bins per frame.
func (s *Spectrogram) NumBins() int { return s.FFTSize/2 + 1 }

// BinFrequency returns the center frequency of bin k in Hz.
func (s *Spectrogram) BinFrequency(k int) float64 {
	return float64(k) * float64(s.SampleRate) / float64(s.FFTSize)
}

// Flatness returns the per-frame spectral flatness of the power spectrum:
// geometric mean over arithmetic mean, in (0, 1].
func (s *Spectrogram) Flatness() []float64 {
	out := make([]float64, len(s.Frames))
	for t, mag := range s.Frames {
		var logSum, sum float64
		for _, m := range mag {
			p := math.Max(m*m, amin)
			logSum += math.Log(p)
			sum += p
		}
		n := float64(len(mag))
		out[t] = math.Exp(logSum/n) / (sum / n)
	}
	return out
}

// Centroid returns the per-frame spectral centroid in Hz.
func (s *Spectrogram) Centroid() []float64 {
	out := make([]float64, len(s.Frames))
	for t, mag := range s.Frames {
		var weighted, total float64
		for k, m := range mag {
			weighted += s.BinFrequency(k) * m
			total += m
		}
		if total > 0 {
			out[t] = weighted / total
		}
	}
	return out
}

// Rolloff returns, per frame, the lowest bin frequency below which the
// given fraction (e.g. 0.85) of the frame's magnitude is concentrated.
func (s *Spectrogram) Rolloff(fraction float64) []float64 {
	out := make([]float64, len(s.Frames))
	for t, mag := range s.Frames {
		var total float64
		for _, m := range mag {
			total += m
		}
		threshold := fraction * total
		var cum float64
		for k, m := range mag {
			cum += m
			if cum >= threshold {
				out[t] = s.BinFrequency(k)
				break
			}
		}
	}
	return out
}

// Envelope returns the mean magnitude of each frame.
func (s *Spectrogram) Envelope() []float64 {
	out := make([]float64, len(s.Frames))
	for t, mag := range s.Frames {
		var sum float64
		for _, m := range mag {
			sum += m
		}
		out[t] = sum / float64(len(mag))
	}
	return out
}

// BandMean returns the mean magnitude over all frames of the bins whose
// frequency lies strictly between lo and hi. ok is false when no bin falls
// in the band (e.g. a band above the Nyquist frequency).
func (s *Spectrogram) BandMean(lo, hi float64) (mean float64, ok bool) {
	var sum float64
	var n int
	for k := 0; k < s.NumBins(); k++ {
		f := s.BinFrequency(k)
		if f <= lo || f >= hi {
			continue
		}
		for _, mag := range s.Frames {
			sum += mag[k]
		}
		n += len(s.Frames)
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
