// Package antispoof scores a waveform for presentation attacks.
//
// Two sub-scores are produced and always reported separately:
//
//   - a calibrated spoof probability from a standardized logistic model over
//     (spectral flatness, temporal energy variance, high-band ratio); higher
//     means more speech-like and genuine
//   - a replay suspicion heuristic built from spectral and temporal
//     variability indicators; higher means more likely played back through a
//     loudspeaker
//
// Both are deterministic functions of the audio. A Scorer holds no mutable
// state and may be shared between goroutines.
package antispoof

import (
	"math"
	"math/cmplx"

	"github.com/AIINA17/Livekit-Biometric/pkg/audio/spectrum"
	"github.com/AIINA17/Livekit-Biometric/pkg/audio/waveform"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// TrimTopDB is the silence threshold below peak used before analysis.
	TrimTopDB = 25

	// MinSamples is the shortest trimmed signal that is analyzed.
	MinSamples = 512

	voiceBandLow  = 300.0
	voiceBandHigh = 3400.0
	highBandLow   = 10000.0
	highBandHigh  = 16000.0
	voiceFloor    = 1e-6

	rolloffFraction = 0.85

	// Modulation spectrum bins [0, lowModBins) are "low", [lowModBins, highModBins) "mid".
	lowModBins  = 10
	highModBins = 50
	modEpsilon  = 1e-9
)

// Features are the acoustic descriptors of one utterance.
type Features struct {
	// Classifier inputs.
	Flatness       float64 `json:"flatness" yaml:"flatness"`
	EnergyVariance float64 `json:"energy_variance" yaml:"energy_variance"`
	HighBandRatio  float64 `json:"high_band_ratio" yaml:"high_band_ratio"`

	// Replay heuristic inputs.
	CentroidVariance float64 `json:"centroid_variance" yaml:"centroid_variance"`
	RolloffVariance  float64 `json:"rolloff_variance" yaml:"rolloff_variance"`
	AMVariance       float64 `json:"am_variance" yaml:"am_variance"`
	ModulationRatio  float64 `json:"modulation_ratio" yaml:"modulation_ratio"`

	// Informative is false when the trimmed signal was silent or shorter
	// than MinSamples. All other fields are zero in that case.
	Informative bool `json:"informative" yaml:"informative"`
}

// Vector returns the classifier input triple.
func (f Features) Vector() []float64 {
	return []float64{f.Flatness, f.EnergyVariance, f.HighBandRatio}
}

// Finite reports whether every feature is a finite number.
func (f Features) Finite() bool {
	for _, v := range []float64{
		f.Flatness, f.EnergyVariance, f.HighBandRatio,
		f.CentroidVariance, f.RolloffVariance, f.AMVariance, f.ModulationRatio,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Extractor computes Features. It is safe for concurrent use.
type Extractor struct {
	spec  *spectrum.Extractor
	topDB float64
}

// NewExtractor returns an Extractor with the standard analysis settings
// (16 kHz, 1024-point frames, 512 hop, 25 dB trim).
func NewExtractor() *Extractor {
	return &Extractor{
		spec:  spectrum.New(spectrum.DefaultConfig()),
		topDB: TrimTopDB,
	}
}

var defaultExtractor = NewExtractor()

// Extract computes Features with the default Extractor.
func Extract(w waveform.Waveform) (Features, error) {
	return defaultExtractor.Extract(w)
}

// Extract resamples w to 16 kHz if needed, trims leading and trailing
// silence, and derives the spectral features. Silent or too-short input
// yields zero, non-informative Features and no error.
func (e *Extractor) Extract(w waveform.Waveform) (Features, error) {
	rate := e.spec.Config().SampleRate
	if w.SampleRate != rate {
		rs, err := waveform.Resample(w, rate)
		if err != nil {
			return Features{}, err
		}
		w = rs
	}

	w = w.Trim(e.topDB)
	if w.Len() <= MinSamples || w.IsSilent() {
		return Features{}, nil
	}

	s := e.spec.Compute(w.Samples)

	f := Features{Informative: true}
	f.Flatness = stat.Mean(s.Flatness(), nil)

	env := s.Envelope()
	f.EnergyVariance = normalizedVariance(env)

	voice, _ := s.BandMean(voiceBandLow, voiceBandHigh)
	high, _ := s.BandMean(highBandLow, highBandHigh)
	if voice > voiceFloor {
		f.HighBandRatio = high / voice
	}

	f.CentroidVariance = popVariance(s.Centroid())
	f.RolloffVariance = popVariance(s.Rolloff(rolloffFraction))
	f.AMVariance = popVariance(diff(env))
	f.ModulationRatio = modulationRatio(env)
	return f, nil
}

// normalizedVariance divides env by its maximum and returns the variance.
func normalizedVariance(env []float64) float64 {
	if len(env) == 0 {
		return 0
	}
	norm := append([]float64(nil), env...)
	if m := floats.Max(norm); m > 0 {
		floats.Scale(1/m, norm)
	}
	return popVariance(norm)
}

func popVariance(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.PopVariance(x, nil)
}

func diff(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	for i := range out {
		out[i] = x[i+1] - x[i]
	}
	return out
}

// modulationRatio compares low and mid bands of the envelope's modulation
// spectrum. Envelopes too short to populate the mid band return 0.
func modulationRatio(env []float64) float64 {
	n := len(env)
	if n < 2 {
		return 0
	}
	centered := append([]float64(nil), env...)
	mean := stat.Mean(centered, nil)
	for i := range centered {
		centered[i] -= mean
	}
	coeffs := fourier.NewFFT(n).Coefficients(nil, centered)
	if len(coeffs) <= lowModBins {
		return 0
	}
	mod := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mod[i] = cmplx.Abs(c)
	}
	low := stat.Mean(mod[:lowModBins], nil)
	high := stat.Mean(mod[lowModBins:min(highModBins, len(mod))], nil)
	return low / (high + modEpsilon)
}
