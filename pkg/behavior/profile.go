// Package behavior keeps per-(user, label) online statistics of vocal pitch
// and speaking rate, scores new samples against them, and decides when a
// sample is trustworthy enough to be learned.
package behavior

import (
	"math"
	"time"
)

// StdFloor is the smallest standard deviation reported by a Profile.
const StdFloor = 1e-6

// Profile holds Welford running statistics for pitch (Hz) and speaking
// rate (onsets per second).
//
// VarPitchAccum and VarRateAccum are the running sums of squared deviations
// (M2). The usable variance is M2 / NSamples.
//
// A Profile is not safe for concurrent mutation; callers serialize Update
// per (user, label).
type Profile struct {
	UserID        string    `json:"user_id" msgpack:"user_id" yaml:"user_id"`
	Label         string    `json:"label" msgpack:"label" yaml:"label"`
	NSamples      uint64    `json:"n_samples" msgpack:"n_samples" yaml:"n_samples"`
	MeanPitch     float64   `json:"mean_pitch" msgpack:"mean_pitch" yaml:"mean_pitch"`
	VarPitchAccum float64   `json:"var_pitch_accum" msgpack:"var_pitch_accum" yaml:"var_pitch_accum"`
	MeanRate      float64   `json:"mean_rate" msgpack:"mean_rate" yaml:"mean_rate"`
	VarRateAccum  float64   `json:"var_rate_accum" msgpack:"var_rate_accum" yaml:"var_rate_accum"`
	LastUpdate    time.Time `json:"last_update" msgpack:"last_update" yaml:"last_update"`
}

// NewProfile returns a profile seeded with one sample.
func NewProfile(userID, label string, pitch, rate float64, ts time.Time) *Profile {
	p := &Profile{UserID: userID, Label: label}
	p.Update(pitch, rate, ts)
	return p
}

// Update folds one (pitch, rate) sample into the statistics.
func (p *Profile) Update(pitch, rate float64, ts time.Time) {
	p.NSamples++
	n := float64(p.NSamples)

	dp := pitch - p.MeanPitch
	p.MeanPitch += dp / n
	p.VarPitchAccum += dp * (pitch - p.MeanPitch)

	dr := rate - p.MeanRate
	p.MeanRate += dr / n
	p.VarRateAccum += dr * (rate - p.MeanRate)

	p.LastUpdate = ts
}

// VarPitch returns the population variance of pitch.
func (p *Profile) VarPitch() float64 { return p.variance(p.VarPitchAccum) }

// VarRate returns the population variance of speaking rate.
func (p *Profile) VarRate() float64 { return p.variance(p.VarRateAccum) }

// StdPitch returns the pitch standard deviation, floored at StdFloor.
func (p *Profile) StdPitch() float64 { return math.Max(math.Sqrt(p.VarPitch()), StdFloor) }

// StdRate returns the speaking-rate standard deviation, floored at StdFloor.
func (p *Profile) StdRate() float64 { return math.Max(math.Sqrt(p.VarRate()), StdFloor) }

func (p *Profile) variance(m2 float64) float64 {
	if p.NSamples == 0 {
		return 0
	}
	return math.Max(m2, 0) / float64(p.NSamples)
}

// Similarity is the Gaussian-kernel similarity of a sample to a profile.
type Similarity struct {
	Score  float64 `json:"score" yaml:"score"`
	ZPitch float64 `json:"z_pitch" yaml:"z_pitch"`
	ZRate  float64 `json:"z_rate" yaml:"z_rate"`
}

// Score compares (pitch, rate) against p:
//
//	z = (x − mean) / std
//	score = 0.5·(exp(−z_pitch²/2) + exp(−z_rate²/2))
//
// The score is 1 at the profile mean and decays with distance in standard
// deviations.
func Score(pitch, rate float64, p *Profile) Similarity {
	zp := (pitch - p.MeanPitch) / p.StdPitch()
	zr := (rate - p.MeanRate) / p.StdRate()
	return Similarity{
		Score:  0.5 * (math.Exp(-0.5*zp*zp) + math.Exp(-0.5*zr*zr)),
		ZPitch: zp,
		ZRate:  zr,
	}
}
