package behavior

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/AIINA17/Livekit-Biometric/pkg/decision"
)

// Policy is the trusted-update gate. Every condition must hold for a
// sample to be learned.
type Policy struct {
	MinSpeakerScore   float64       `json:"min_speaker_score" yaml:"min_speaker_score"`
	MaxSpoofProb      float64       `json:"max_spoof_prob" yaml:"max_spoof_prob"`
	MinBehaviorScore  float64       `json:"min_behavior_score" yaml:"min_behavior_score"`
	MinSamples        uint64        `json:"min_samples" yaml:"min_samples"`
	MinUpdateInterval time.Duration `json:"min_update_interval" yaml:"min_update_interval"`
	MaxZScore         float64       `json:"max_zscore" yaml:"max_zscore"`
}

// DefaultPolicy returns the standard gate settings.
func DefaultPolicy() Policy {
	return Policy{
		MinSpeakerScore:   0.65,
		MaxSpoofProb:      0.20,
		MinBehaviorScore:  0.60,
		MinSamples:        5,
		MinUpdateInterval: time.Hour,
		MaxZScore:         2.0,
	}
}

// Validate checks that probabilities lie in [0, 1] and limits are
// non-negative.
func (p Policy) Validate() error {
	var errs []error
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"min_speaker_score", p.MinSpeakerScore},
		{"max_spoof_prob", p.MaxSpoofProb},
		{"min_behavior_score", p.MinBehaviorScore},
	} {
		if !(f.v >= 0 && f.v <= 1) {
			errs = append(errs, fmt.Errorf("behavior: %s = %g outside [0, 1]", f.name, f.v))
		}
	}
	if p.MinUpdateInterval < 0 {
		errs = append(errs, fmt.Errorf("behavior: min_update_interval %v is negative", p.MinUpdateInterval))
	}
	if !(p.MaxZScore > 0) {
		errs = append(errs, fmt.Errorf("behavior: max_zscore %g must be positive", p.MaxZScore))
	}
	return errors.Join(errs...)
}

// Attempt is everything the gate looks at for one verification.
type Attempt struct {
	Decision     decision.Decision
	SpeakerScore float64
	// SpoofProb is the spoof risk: higher means more likely an attack.
	SpoofProb float64
	Behavior  Similarity
	// NSamples and LastUpdate describe the profile before this attempt.
	NSamples   uint64
	LastUpdate time.Time
	IsRetry    bool
	Now        time.Time
}

// Refusal names the first gate condition that failed. Empty when the
// update is allowed.
type Refusal string

const (
	RefusedNotVerified     Refusal = "not verified"
	RefusedSpeakerScore    Refusal = "speaker score below learning threshold"
	RefusedSpoofProb       Refusal = "spoof probability too high"
	RefusedBehaviorScore   Refusal = "behavior score too low"
	RefusedTooFewSamples   Refusal = "too few profile samples"
	RefusedRetry           Refusal = "retry attempt"
	RefusedRateLimited     Refusal = "updated too recently"
	RefusedOutlier         Refusal = "behavior z-score outlier"
	RefusedNonFiniteSignal Refusal = "non-finite signal"
)

// ShouldUpdate reports whether a Verified attempt may update an existing
// profile. The behavior-score check is skipped when the profile has no
// samples yet.
func (p Policy) ShouldUpdate(a Attempt) (bool, Refusal) {
	if r := p.common(a); r != "" {
		return false, r
	}
	if a.NSamples > 0 && a.Behavior.Score < p.MinBehaviorScore {
		return false, RefusedBehaviorScore
	}
	if a.NSamples < p.MinSamples {
		return false, RefusedTooFewSamples
	}
	if !a.LastUpdate.IsZero() && a.Now.Sub(a.LastUpdate) < p.MinUpdateInterval {
		return false, RefusedRateLimited
	}
	if math.Abs(a.Behavior.ZPitch) > p.MaxZScore || math.Abs(a.Behavior.ZRate) > p.MaxZScore {
		return false, RefusedOutlier
	}
	return true, ""
}

// ShouldBootstrap reports whether a Verified attempt may create the first
// profile sample for a label that has none. History-dependent conditions
// (behavior score, sample count, rate limit, z-scores) do not apply.
func (p Policy) ShouldBootstrap(a Attempt) (bool, Refusal) {
	if r := p.common(a); r != "" {
		return false, r
	}
	return true, ""
}

func (p Policy) common(a Attempt) Refusal {
	if a.IsRetry {
		return RefusedRetry
	}
	if a.Decision != decision.Verified {
		return RefusedNotVerified
	}
	for _, v := range []float64{a.SpeakerScore, a.SpoofProb, a.Behavior.Score, a.Behavior.ZPitch, a.Behavior.ZRate} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return RefusedNonFiniteSignal
		}
	}
	if a.SpeakerScore < p.MinSpeakerScore {
		return RefusedSpeakerScore
	}
	if a.SpoofProb > p.MaxSpoofProb {
		return RefusedSpoofProb
	}
	return ""
}
