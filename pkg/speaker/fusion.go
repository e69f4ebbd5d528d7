package speaker

import (
	"errors"
	"fmt"
	"math"
)

// Weights are the fusion weights of identity, pitch and rate similarity.
// They are non-negative and sum to 1.
type Weights struct {
	Identity float64 `json:"identity" yaml:"identity"`
	Pitch    float64 `json:"pitch" yaml:"pitch"`
	Rate     float64 `json:"rate" yaml:"rate"`
}

// DefaultWeights returns 0.70 identity, 0.15 pitch, 0.15 rate.
func DefaultWeights() Weights {
	return Weights{Identity: 0.70, Pitch: 0.15, Rate: 0.15}
}

// Validate checks the weights are non-negative and sum to 1.
func (w Weights) Validate() error {
	var errs []error
	for _, f := range []struct {
		name string
		v    float64
	}{{"identity", w.Identity}, {"pitch", w.Pitch}, {"rate", w.Rate}} {
		if !(f.v >= 0) {
			errs = append(errs, fmt.Errorf("speaker: %s weight %g is negative", f.name, f.v))
		}
	}
	if sum := w.Identity + w.Pitch + w.Rate; math.Abs(sum-1) > 1e-9 {
		errs = append(errs, fmt.Errorf("speaker: fusion weights sum to %g, want 1", sum))
	}
	return errors.Join(errs...)
}

// Behavioral holds the similarities of the live sample's prosody to the
// enrollment's.
type Behavioral struct {
	PitchSimilarity float64 `json:"pitch_similarity" yaml:"pitch_similarity"`
	RateSimilarity  float64 `json:"rate_similarity" yaml:"rate_similarity"`
}

// Fuse combines the identity similarity with the behavioral terms. With a
// nil b the identity similarity is returned unchanged.
func (w Weights) Fuse(identity float64, b *Behavioral) float64 {
	if b == nil {
		return identity
	}
	return w.Identity*identity + w.Pitch*b.PitchSimilarity + w.Rate*b.RateSimilarity
}
