// Package prosody estimates the vocal pitch and speaking rate of an
// utterance and compares them between utterances.
//
// Pitch is tracked with the YIN difference-function method: the mean pitch
// searches 50–300 Hz and the contour used for similarity 80–350 Hz.
// Speaking rate is the number of spectral-flux onsets per second.
package prosody

import (
	"math"

	"github.com/AIINA17/Livekit-Biometric/pkg/audio/spectrum"
	"github.com/AIINA17/Livekit-Biometric/pkg/audio/waveform"
	"gonum.org/v1/gonum/stat"
)

// Config controls prosody analysis.
type Config struct {
	SampleRate int // analysis sample rate (default 16000)

	// Pitch tracking.
	FrameLength int     // YIN frame length in samples (default 2048)
	HopLength   int     // YIN hop in samples (default 512)
	FMin        float64 // lowest mean-pitch candidate in Hz (default 50)
	FMax        float64 // highest mean-pitch candidate in Hz (default 300)
	ContourFMin float64 // lowest contour candidate in Hz (default 80)
	ContourFMax float64 // highest contour candidate in Hz (default 350)
	Threshold   float64 // YIN trough threshold (default 0.1)
	VoicedRMS   float64 // frames quieter than this are unvoiced (default 1e-3)

	// Onset detection.
	OnsetFFTSize int     // STFT size for spectral flux (default 1024)
	OnsetHop     int     // STFT hop (default 256)
	OnsetDelta   float64 // peak threshold above the local mean (default 0.07)
	MinDuration  float64 // shortest utterance in seconds with a defined rate (default 1)
}

// DefaultConfig returns the standard prosody settings.
func DefaultConfig() Config {
	return Config{
		SampleRate:   16000,
		FrameLength:  2048,
		HopLength:    512,
		FMin:         50,
		FMax:         300,
		ContourFMin:  80,
		ContourFMax:  350,
		Threshold:    0.1,
		VoicedRMS:    1e-3,
		OnsetFFTSize: 1024,
		OnsetHop:     256,
		OnsetDelta:   0.07,
		MinDuration:  1,
	}
}

// Features are the prosodic measurements of one utterance.
type Features struct {
	// Pitch is the mean fundamental frequency over voiced frames in Hz,
	// 0 when no frame is voiced.
	Pitch float64 `json:"pitch" yaml:"pitch"`
	// Rate is onsets per second, 0 for utterances shorter than MinDuration.
	Rate float64 `json:"rate" yaml:"rate"`
	// Contour is the per-frame pitch track of voiced frames.
	Contour []float64 `json:"contour,omitempty" yaml:"contour,omitempty"`
}

// Analyzer computes Features. It is safe for concurrent use.
type Analyzer struct {
	cfg   Config
	onset *spectrum.Extractor
}

// New creates an Analyzer. Zero fields in cfg take their defaults.
func New(cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.FrameLength <= 0 {
		cfg.FrameLength = def.FrameLength
	}
	if cfg.HopLength <= 0 {
		cfg.HopLength = def.HopLength
	}
	if cfg.FMin <= 0 {
		cfg.FMin = def.FMin
	}
	if cfg.FMax <= cfg.FMin {
		cfg.FMax = def.FMax
	}
	if cfg.ContourFMin <= 0 {
		cfg.ContourFMin = def.ContourFMin
	}
	if cfg.ContourFMax <= cfg.ContourFMin {
		cfg.ContourFMax = def.ContourFMax
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.VoicedRMS <= 0 {
		cfg.VoicedRMS = def.VoicedRMS
	}
	if cfg.OnsetFFTSize <= 0 {
		cfg.OnsetFFTSize = def.OnsetFFTSize
	}
	if cfg.OnsetHop <= 0 {
		cfg.OnsetHop = def.OnsetHop
	}
	if cfg.OnsetDelta <= 0 {
		cfg.OnsetDelta = def.OnsetDelta
	}
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = def.MinDuration
	}
	return &Analyzer{
		cfg: cfg,
		onset: spectrum.New(spectrum.Config{
			SampleRate: cfg.SampleRate,
			FFTSize:    cfg.OnsetFFTSize,
			HopSize:    cfg.OnsetHop,
		}),
	}
}

// Config returns the effective configuration.
func (a *Analyzer) Config() Config { return a.cfg }

// Analyze resamples w to the analysis rate if needed and measures pitch
// and speaking rate.
func (a *Analyzer) Analyze(w waveform.Waveform) (Features, error) {
	if w.SampleRate != a.cfg.SampleRate {
		rs, err := waveform.Resample(w, a.cfg.SampleRate)
		if err != nil {
			return Features{}, err
		}
		w = rs
	}
	f := Features{Contour: a.ContourTrack(w.Samples), Rate: a.SpeakingRate(w.Samples)}
	if track := a.PitchTrack(w.Samples); len(track) > 0 {
		f.Pitch = stat.Mean(track, nil)
	}
	return f, nil
}

// PitchSimilarity compares two pitch contours by the normalized dot
// product of their z-normalized, length-truncated tracks, mapped to
// [0, 1]. It returns 0 when either contour has 10 or fewer frames.
func PitchSimilarity(a, b []float64) float64 {
	const minFrames = 10
	if len(a) <= minFrames || len(b) <= minFrames {
		return 0
	}
	za, zb := zNormalize(a), zNormalize(b)
	n := min(len(za), len(zb))
	za, zb = za[:n], zb[:n]

	var dot, na, nb float64
	for i := range n {
		dot += za[i] * zb[i]
		na += za[i] * za[i]
		nb += zb[i] * zb[i]
	}
	sim := dot / (math.Sqrt(na)*math.Sqrt(nb) + 1e-6)
	return (sim + 1) / 2
}

func zNormalize(x []float64) []float64 {
	mean, variance := stat.PopMeanVariance(x, nil)
	std := math.Sqrt(variance) + 1e-6
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - mean) / std
	}
	return out
}

// RateSimilarity returns 1 − |r1 − r2| / max(r1, r2), or 0 when either
// rate is not positive.
func RateSimilarity(r1, r2 float64) float64 {
	if r1 <= 0 || r2 <= 0 {
		return 0
	}
	return 1 - math.Abs(r1-r2)/math.Max(r1, r2)
}
