// Package decision turns a speaker score and a replay probability into one
// of three verification outcomes.
//
// Rules are evaluated in a fixed precedence order, hard floors first:
//
//  1. speaker score below AbsMinSpeaker     → Denied
//  2. replay probability at/above ReplayDeny → Denied
//  3. replay probability at/above ReplayWarn → Repeat
//  4. combined = 0.7·speaker + 0.3·(1 − replay)
//  5. speaker ≥ VoiceAccept and combined ≥ CombinedAccept → Verified
//  6. speaker ≥ VoiceRepeat and combined ≥ CombinedRepeat → Repeat
//  7. otherwise → Denied
//
// Per-user adaptation ([BuildConfig]) may only make the thresholds
// stricter than the base configuration.
package decision

import (
	"fmt"
	"math"
)

// Decision is a verification outcome.
type Decision int

const (
	// Denied rejects the attempt.
	Denied Decision = iota + 1
	// Repeat asks the speaker to try again.
	Repeat
	// Verified accepts the speaker.
	Verified
)

// String returns a human-readable label.
func (d Decision) String() string {
	switch d {
	case Verified:
		return "VERIFIED"
	case Repeat:
		return "REPEAT"
	case Denied:
		return "DENIED"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Decision) MarshalText() ([]byte, error) {
	switch d {
	case Verified, Repeat, Denied:
		return []byte(d.String()), nil
	}
	return nil, fmt.Errorf("decision: invalid value %d", int(d))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Decision) UnmarshalText(b []byte) error {
	switch string(b) {
	case "VERIFIED":
		*d = Verified
	case "REPEAT":
		*d = Repeat
	case "DENIED":
		*d = Denied
	default:
		return fmt.Errorf("decision: unknown decision %q", b)
	}
	return nil
}

// Reasons attached to each rule.
const (
	ReasonSpeakerTooLow  = "speaker score too low"
	ReasonReplayDetected = "replay attack detected"
	ReasonReplaySuspect  = "potential replay attack detected"
	ReasonVerified       = "speaker verified successfully"
	ReasonUncertain      = "uncertain verification, please repeat"
	ReasonFailed         = "speaker verification failed"
	ReasonInvalidSignal  = "invalid signal"
)

// Outcome is a decision with its reason.
type Outcome struct {
	Decision Decision `json:"decision" yaml:"decision"`
	Reason   string   `json:"reason" yaml:"reason"`
}

func (o Outcome) String() string {
	return o.Decision.String() + ": " + o.Reason
}

// Combination weights for rule 4.
const (
	SpeakerWeight = 0.7
	ReplayWeight  = 0.3
)

// Combined returns 0.7·speaker + 0.3·(1 − replay).
func Combined(speaker, replay float64) float64 {
	return SpeakerWeight*speaker + ReplayWeight*(1-replay)
}

// Decide applies the precedence rules to the scores. Non-finite scores
// are denied as an invalid signal.
func Decide(speaker, replay float64, cfg Config) Outcome {
	if !finite(speaker) || !finite(replay) {
		return Outcome{Denied, ReasonInvalidSignal}
	}
	if speaker < cfg.AbsMinSpeaker {
		return Outcome{Denied, ReasonSpeakerTooLow}
	}
	if replay >= cfg.ReplayDeny {
		return Outcome{Denied, ReasonReplayDetected}
	}
	if replay >= cfg.ReplayWarn {
		return Outcome{Repeat, ReasonReplaySuspect}
	}

	combined := Combined(speaker, replay)
	if speaker >= cfg.VoiceAccept && combined >= cfg.CombinedAccept {
		return Outcome{Verified, ReasonVerified}
	}
	if speaker >= cfg.VoiceRepeat && combined >= cfg.CombinedRepeat {
		return Outcome{Repeat, ReasonUncertain}
	}
	return Outcome{Denied, ReasonFailed}
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
