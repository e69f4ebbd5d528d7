package prosody

import "math"

// PitchTrack returns the YIN fundamental-frequency estimate of every
// voiced frame within FMin..FMax. Frames are FrameLength samples long and
// start every HopLength samples; frames whose RMS is below VoicedRMS are
// skipped.
func (a *Analyzer) PitchTrack(samples []float64) []float64 {
	return a.track(samples, a.cfg.FMin, a.cfg.FMax)
}

// ContourTrack is PitchTrack over ContourFMin..ContourFMax.
func (a *Analyzer) ContourTrack(samples []float64) []float64 {
	return a.track(samples, a.cfg.ContourFMin, a.cfg.ContourFMax)
}

func (a *Analyzer) track(samples []float64, fmin, fmax float64) []float64 {
	cfg := a.cfg
	tauMin := int(math.Floor(float64(cfg.SampleRate) / fmax))
	tauMax := int(math.Ceil(float64(cfg.SampleRate) / fmin))
	width := cfg.FrameLength - tauMax
	if tauMin < 1 || width <= 0 || len(samples) < cfg.FrameLength {
		return nil
	}

	diff := make([]float64, tauMax+1)
	cmnd := make([]float64, tauMax+1)
	var track []float64
	for start := 0; start+cfg.FrameLength <= len(samples); start += cfg.HopLength {
		frame := samples[start : start+cfg.FrameLength]
		if rms(frame[:width]) < cfg.VoicedRMS {
			continue
		}
		yinDifference(frame, width, diff)
		cumulativeMeanNormalize(diff, cmnd)
		tau := pickPeriod(cmnd, tauMin, tauMax, cfg.Threshold)
		if tau <= 0 {
			continue
		}
		track = append(track, float64(cfg.SampleRate)/tau)
	}
	return track
}

// yinDifference fills d[τ] = Σ_{j<width} (x[j] − x[j+τ])².
func yinDifference(x []float64, width int, d []float64) {
	for tau := range d {
		var sum float64
		for j := 0; j < width; j++ {
			delta := x[j] - x[j+tau]
			sum += delta * delta
		}
		d[tau] = sum
	}
}

// cumulativeMeanNormalize fills out[τ] = d[τ]·τ / Σ_{k=1..τ} d[k], with
// out[0] = 1.
func cumulativeMeanNormalize(d, out []float64) {
	out[0] = 1
	var running float64
	for tau := 1; tau < len(d); tau++ {
		running += d[tau]
		if running == 0 {
			out[tau] = 1
			continue
		}
		out[tau] = d[tau] * float64(tau) / running
	}
}

// pickPeriod returns the refined period in samples: the first local
// minimum of cmnd below threshold within [tauMin, tauMax], or the global
// minimum in that range when none dips below it.
func pickPeriod(cmnd []float64, tauMin, tauMax int, threshold float64) float64 {
	best := -1
	for tau := tauMin; tau <= tauMax; tau++ {
		if cmnd[tau] < threshold {
			for tau+1 <= tauMax && cmnd[tau+1] < cmnd[tau] {
				tau++
			}
			best = tau
			break
		}
	}
	if best < 0 {
		best = tauMin
		for tau := tauMin + 1; tau <= tauMax; tau++ {
			if cmnd[tau] < cmnd[best] {
				best = tau
			}
		}
	}
	return parabolicInterpolate(cmnd, best)
}

// parabolicInterpolate refines the position of the minimum at i.
func parabolicInterpolate(y []float64, i int) float64 {
	if i <= 0 || i >= len(y)-1 {
		return float64(i)
	}
	a, b, c := y[i-1], y[i], y[i+1]
	den := a - 2*b + c
	if den == 0 {
		return float64(i)
	}
	shift := 0.5 * (a - c) / den
	if math.Abs(shift) > 1 {
		return float64(i)
	}
	return float64(i) + shift
}

func rms(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}
