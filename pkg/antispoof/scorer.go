package antispoof

import (
	"fmt"
	"math"

	"github.com/AIINA17/Livekit-Biometric/pkg/audio/waveform"
)

// Result is the outcome of scoring one utterance.
type Result struct {
	// SpoofProb is the calibrated genuineness probability in (0, 1).
	// Higher means more speech-like. Zero for non-informative input.
	SpoofProb float64 `json:"spoof_prob" yaml:"spoof_prob"`

	// ReplayProb is the replay suspicion in [0, 1]. Higher means more
	// likely replayed. Zero for non-informative input.
	ReplayProb float64 `json:"replay_prob" yaml:"replay_prob"`

	Features Features `json:"features" yaml:"features"`
}

// Finite reports whether the result is free of NaN and Inf.
func (r Result) Finite() bool {
	return r.Features.Finite() &&
		!math.IsNaN(r.SpoofProb) && !math.IsInf(r.SpoofProb, 0) &&
		!math.IsNaN(r.ReplayProb) && !math.IsInf(r.ReplayProb, 0)
}

// Scorer evaluates the spoof model and the replay heuristic.
type Scorer struct {
	model     Model
	extractor *Extractor
}

// NewScorer returns a Scorer using m. The model is validated.
func NewScorer(m Model) (*Scorer, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("antispoof: invalid model: %w", err)
	}
	return &Scorer{model: m, extractor: defaultExtractor}, nil
}

// Model returns the classifier parameters in use.
func (s *Scorer) Model() Model { return s.model }

// Score extracts features from w and evaluates both sub-scores.
func (s *Scorer) Score(w waveform.Waveform) (Result, error) {
	f, err := s.extractor.Extract(w)
	if err != nil {
		return Result{}, fmt.Errorf("antispoof: extract: %w", err)
	}
	return s.ScoreFeatures(f), nil
}

// ScoreFeatures evaluates both sub-scores on precomputed features.
func (s *Scorer) ScoreFeatures(f Features) Result {
	if !f.Informative {
		return Result{Features: f}
	}
	return Result{
		SpoofProb:  s.model.Probability(f.Vector()),
		ReplayProb: ReplayProbability(f),
		Features:   f,
	}
}

// ReplayProbability averages four clipped indicators of low spectral and
// temporal variability. Each indicator lies in [0, 1].
func ReplayProbability(f Features) float64 {
	if !f.Informative {
		return 0
	}
	score := clip01((50-f.CentroidVariance)/50) +
		clip01((100-f.RolloffVariance)/100) +
		clip01((1e-4-f.AMVariance)/1e-4) +
		clip01((f.ModulationRatio-1.5)/1.5)
	return score / 4
}

func clip01(x float64) float64 {
	return math.Min(math.Max(x, 0), 1)
}
