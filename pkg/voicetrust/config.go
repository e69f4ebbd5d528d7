package voicetrust

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/AIINA17/Livekit-Biometric/pkg/antispoof"
	"github.com/AIINA17/Livekit-Biometric/pkg/behavior"
	"github.com/AIINA17/Livekit-Biometric/pkg/decision"
	"github.com/AIINA17/Livekit-Biometric/pkg/speaker"
)

// Config is the engine configuration, usually loaded from YAML:
//
//	decision:
//	  voice_accept: 0.45
//	  abs_min_speaker: 0.35
//	policy:
//	  min_update_interval: 1h
//	spoof_model:
//	  min_genuine: 0.2
//	fusion:
//	  enabled: true
//	behavior_gate:
//	  enabled: false
//
// Omitted sections and fields take their defaults.
type Config struct {
	Decision     decision.Config    `yaml:"decision"`
	Policy       behavior.Policy    `yaml:"policy"`
	SpoofModel   SpoofModelConfig   `yaml:"spoof_model"`
	Fusion       FusionConfig       `yaml:"fusion"`
	BehaviorGate BehaviorGateConfig `yaml:"behavior_gate"`
}

// SpoofModelConfig selects the spoof classifier parameters.
type SpoofModelConfig struct {
	antispoof.Model `yaml:",inline"`

	// MinGenuine denies attempts whose calibrated genuineness falls below
	// it. Zero disables the check.
	MinGenuine float64 `yaml:"min_genuine"`
}

// FusionConfig controls behavioral fusion of the speaker score.
type FusionConfig struct {
	Enabled         bool `yaml:"enabled"`
	speaker.Weights `yaml:",inline"`
}

// BehaviorGateConfig optionally lets the behavior score demote a Verified
// decision to Repeat. It only applies once the profile holds
// policy.min_samples samples. Disabled by default: the behavior score then
// gates profile learning only.
type BehaviorGateConfig struct {
	Enabled  bool    `yaml:"enabled"`
	MinScore float64 `yaml:"min_score"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Decision:     decision.DefaultConfig(),
		Policy:       behavior.DefaultPolicy(),
		SpoofModel:   SpoofModelConfig{Model: antispoof.DefaultModel()},
		Fusion:       FusionConfig{Weights: speaker.DefaultWeights()},
		BehaviorGate: BehaviorGateConfig{MinScore: 0.3},
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	var errs []error
	if err := c.Decision.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Policy.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.SpoofModel.Model.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !(c.SpoofModel.MinGenuine >= 0 && c.SpoofModel.MinGenuine <= 1) {
		errs = append(errs, fmt.Errorf("voicetrust: spoof_model.min_genuine = %g outside [0, 1]", c.SpoofModel.MinGenuine))
	}
	if c.Fusion.Enabled {
		if err := c.Fusion.Weights.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if !(c.BehaviorGate.MinScore >= 0 && c.BehaviorGate.MinScore <= 1) {
		errs = append(errs, fmt.Errorf("voicetrust: behavior_gate.min_score = %g outside [0, 1]", c.BehaviorGate.MinScore))
	}
	return errors.Join(errs...)
}

// ParseConfig decodes YAML over DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("voicetrust: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("voicetrust: invalid config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads and parses the YAML file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("voicetrust: read config: %w", err)
	}
	return ParseConfig(data)
}
