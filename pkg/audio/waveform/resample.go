package waveform

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts w to the target rate using a pure Go high-quality
// resampler. A waveform already at the target rate is returned unchanged.
//
// The resampler is flushed so the tail of the utterance is kept. The
// result holds round(len·rate/source) samples: the zero ring-out appended
// by the flush is cut, and a short result is padded with silence.
func Resample(w Waveform, rate int) (Waveform, error) {
	if rate <= 0 {
		return Waveform{}, fmt.Errorf("waveform: invalid target rate %d", rate)
	}
	if w.SampleRate <= 0 {
		return Waveform{}, fmt.Errorf("waveform: invalid source rate %d", w.SampleRate)
	}
	if w.SampleRate == rate || len(w.Samples) == 0 {
		return Waveform{Samples: w.Samples, SampleRate: rate}, nil
	}

	out, err := resampling.ResampleMono(w.Samples, float64(w.SampleRate), float64(rate), resampling.QualityHigh)
	if err != nil {
		return Waveform{}, fmt.Errorf("waveform: resample %d->%d: %w", w.SampleRate, rate, err)
	}
	want := resampledLen(len(w.Samples), w.SampleRate, rate)
	if len(out) > want {
		out = out[:want]
	}
	for len(out) < want {
		out = append(out, 0)
	}
	return Waveform{Samples: out, SampleRate: rate}, nil
}

func resampledLen(n, from, to int) int {
	return int(math.Round(float64(n) * float64(to) / float64(from)))
}
