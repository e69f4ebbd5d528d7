package prosody

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Peak-picking windows in seconds.
const (
	onsetMaxWindow  = 0.05
	onsetMeanWindow = 0.1
	onsetWait       = 0.1
)

// SpeakingRate returns detected onsets per second, or 0 when the signal
// is shorter than MinDuration.
func (a *Analyzer) SpeakingRate(samples []float64) float64 {
	duration := float64(len(samples)) / float64(a.cfg.SampleRate)
	if duration <= a.cfg.MinDuration {
		return 0
	}
	return float64(len(a.Onsets(samples))) / duration
}

// Onsets returns the frame indices of detected onsets.
func (a *Analyzer) Onsets(samples []float64) []int {
	return pickPeaks(a.onsetStrength(samples), a.framesPer(onsetMaxWindow), a.framesPer(onsetMeanWindow),
		a.framesPer(onsetWait), a.cfg.OnsetDelta)
}

func (a *Analyzer) framesPer(seconds float64) int {
	return max(1, int(math.Round(seconds*float64(a.cfg.SampleRate)/float64(a.cfg.OnsetHop))))
}

// onsetStrength is the mean positive log-magnitude flux per frame,
// normalized to [0, 1].
func (a *Analyzer) onsetStrength(samples []float64) []float64 {
	s := a.onset.Compute(samples)
	if s == nil || s.NumFrames() < 2 {
		return nil
	}
	env := make([]float64, s.NumFrames())
	prev := logMagnitude(s.Frames[0])
	for t := 1; t < s.NumFrames(); t++ {
		cur := logMagnitude(s.Frames[t])
		var flux float64
		for k := range cur {
			if d := cur[k] - prev[k]; d > 0 {
				flux += d
			}
		}
		env[t] = flux / float64(len(cur))
		prev = cur
	}

	lo, hi := floats.Min(env), floats.Max(env)
	if hi-lo <= 0 {
		return make([]float64, len(env))
	}
	for i := range env {
		env[i] = (env[i] - lo) / (hi - lo)
	}
	return env
}

func logMagnitude(mag []float64) []float64 {
	out := make([]float64, len(mag))
	for k, m := range mag {
		out[k] = math.Log(m)
	}
	return out
}

// pickPeaks returns indices n where env[n] is the maximum within ±maxW,
// at least delta above the mean within ±meanW, and more than wait frames
// after the previous peak.
func pickPeaks(env []float64, maxW, meanW, wait int, delta float64) []int {
	var peaks []int
	last := -wait - 1
	for n := range env {
		lo, hi := max(0, n-maxW), min(len(env), n+maxW+1)
		if env[n] < floats.Max(env[lo:hi]) {
			continue
		}
		lo, hi = max(0, n-meanW), min(len(env), n+meanW+1)
		mean := floats.Sum(env[lo:hi]) / float64(hi-lo)
		if env[n] < mean+delta {
			continue
		}
		if n-last <= wait {
			continue
		}
		peaks = append(peaks, n)
		last = n
	}
	return peaks
}
