package decision

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("decision: invalid config")

// Config holds the decision thresholds. All values lie in [0, 1].
type Config struct {
	VoiceAccept    float64 `json:"voice_accept" yaml:"voice_accept"`
	VoiceRepeat    float64 `json:"voice_repeat" yaml:"voice_repeat"`
	AbsMinSpeaker  float64 `json:"abs_min_speaker" yaml:"abs_min_speaker"`
	ReplayDeny     float64 `json:"replay_deny" yaml:"replay_deny"`
	ReplayWarn     float64 `json:"replay_warn" yaml:"replay_warn"`
	CombinedAccept float64 `json:"combined_accept" yaml:"combined_accept"`
	CombinedRepeat float64 `json:"combined_repeat" yaml:"combined_repeat"`
}

// DefaultConfig returns the calibrated base thresholds. Deployments should
// re-derive them from their own corpora and override them in configuration.
func DefaultConfig() Config {
	return Config{
		VoiceAccept:    0.45,
		VoiceRepeat:    0.30,
		AbsMinSpeaker:  0.35,
		ReplayDeny:     0.75,
		ReplayWarn:     0.60,
		CombinedAccept: 0.52,
		CombinedRepeat: 0.40,
	}
}

// NewConfig validates c and returns it.
func NewConfig(c Config) (Config, error) {
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every violated constraint: each threshold must be in
// [0, 1], and each "repeat"/"warn" threshold must not exceed its
// "accept"/"deny" counterpart.
func (c Config) Validate() error {
	var errs []error
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"voice_accept", c.VoiceAccept},
		{"voice_repeat", c.VoiceRepeat},
		{"abs_min_speaker", c.AbsMinSpeaker},
		{"replay_deny", c.ReplayDeny},
		{"replay_warn", c.ReplayWarn},
		{"combined_accept", c.CombinedAccept},
		{"combined_repeat", c.CombinedRepeat},
	} {
		if !(f.v >= 0 && f.v <= 1) {
			errs = append(errs, fmt.Errorf("%w: %s = %g outside [0, 1]", ErrInvalidConfig, f.name, f.v))
		}
	}
	if c.VoiceRepeat > c.VoiceAccept {
		errs = append(errs, fmt.Errorf("%w: voice_repeat %g > voice_accept %g", ErrInvalidConfig, c.VoiceRepeat, c.VoiceAccept))
	}
	if c.CombinedRepeat > c.CombinedAccept {
		errs = append(errs, fmt.Errorf("%w: combined_repeat %g > combined_accept %g", ErrInvalidConfig, c.CombinedRepeat, c.CombinedAccept))
	}
	if c.ReplayWarn > c.ReplayDeny {
		errs = append(errs, fmt.Errorf("%w: replay_warn %g > replay_deny %g", ErrInvalidConfig, c.ReplayWarn, c.ReplayDeny))
	}
	return errors.Join(errs...)
}
