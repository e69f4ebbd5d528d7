package waveform

import "math"

// Trim parameters match the usual speech front-end convention: 2048-sample
// RMS frames with a 512-sample hop, centered on each hop position.
const (
	trimFrameLength = 2048
	trimHopLength   = 512
	trimAmin        = 1e-10
)

// Trim removes leading and trailing segments quieter than topDB decibels
// below the loudest frame. It returns an empty Waveform (same rate) when
// every frame is below the threshold.
//
// Frames are centered on multiples of the hop length with zero padding at
// the edges, so the kept region always starts on a hop boundary.
func (w Waveform) Trim(topDB float64) Waveform {
	n := len(w.Samples)
	if n == 0 {
		return w
	}

	numFrames := 1 + n/trimHopLength
	power := make([]float64, numFrames)
	maxPower := 0.0
	half := trimFrameLength / 2
	for t := 0; t < numFrames; t++ {
		center := t * trimHopLength
		var sum float64
		for i := center - half; i < center+half; i++ {
			if i < 0 || i >= n {
				continue
			}
			sum += w.Samples[i] * w.Samples[i]
		}
		power[t] = sum / trimFrameLength
		if power[t] > maxPower {
			maxPower = power[t]
		}
	}
	if maxPower <= 0 {
		return Waveform{SampleRate: w.SampleRate}
	}

	ref := math.Max(maxPower, trimAmin)
	first, last := -1, -1
	for t, p := range power {
		db := 10 * math.Log10(math.Max(p, trimAmin)/ref)
		if db > -topDB {
			if first < 0 {
				first = t
			}
			last = t
		}
	}
	if first < 0 {
		return Waveform{SampleRate: w.SampleRate}
	}

	start := first * trimHopLength
	end := min(n, (last+1)*trimHopLength)
	return Waveform{Samples: w.Samples[start:end], SampleRate: w.SampleRate}
}
