package speaker

import (
	"context"
	"math"

	"github.com/AIINA17/Livekit-Biometric/pkg/audio/spectrum"
	"github.com/AIINA17/Livekit-Biometric/pkg/audio/waveform"
)

// MelConfig controls the MelEmbedder front end.
type MelConfig struct {
	SampleRate int     // default 16000
	FFTSize    int     // default 512
	HopSize    int     // default 160 (10 ms)
	NumMels    int     // default 40
	LowFreq    float64 // default 20
	HighFreq   float64 // default 7600
}

// DefaultMelConfig returns the standard front-end settings.
func DefaultMelConfig() MelConfig {
	return MelConfig{
		SampleRate: 16000,
		FFTSize:    512,
		HopSize:    160,
		NumMels:    40,
		LowFreq:    20,
		HighFreq:   7600,
	}
}

// MelEmbedder is a model-free Embedder: the per-band mean and standard
// deviation of log mel filterbank energies, mean-removed across bands and
// L2-normalized. It is a stand-in for a neural speaker model in offline
// tooling and tests; its output has 2·NumMels dimensions.
type MelEmbedder struct {
	cfg     MelConfig
	spec    *spectrum.Extractor
	melBank [][]float64
}

// NewMelEmbedder creates a MelEmbedder. Zero fields take their defaults.
func NewMelEmbedder(cfg MelConfig) *MelEmbedder {
	def := DefaultMelConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.FFTSize <= 0 {
		cfg.FFTSize = def.FFTSize
	}
	if cfg.HopSize <= 0 {
		cfg.HopSize = def.HopSize
	}
	if cfg.NumMels <= 0 {
		cfg.NumMels = def.NumMels
	}
	if cfg.HighFreq <= cfg.LowFreq {
		cfg.LowFreq, cfg.HighFreq = def.LowFreq, def.HighFreq
	}
	return &MelEmbedder{
		cfg: cfg,
		spec: spectrum.New(spectrum.Config{
			SampleRate: cfg.SampleRate,
			FFTSize:    cfg.FFTSize,
			HopSize:    cfg.HopSize,
		}),
		melBank: melFilterBank(cfg.NumMels, cfg.FFTSize, cfg.SampleRate, cfg.LowFreq, cfg.HighFreq),
	}
}

// Dimension implements Embedder.
func (e *MelEmbedder) Dimension() int { return 2 * e.cfg.NumMels }

// Embed implements Embedder. Audio shorter than one FFT frame yields a
// zero vector.
func (e *MelEmbedder) Embed(ctx context.Context, w waveform.Waveform) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if w.SampleRate != e.cfg.SampleRate {
		rs, err := waveform.Resample(w, e.cfg.SampleRate)
		if err != nil {
			return nil, err
		}
		w = rs
	}
	out := make([]float32, e.Dimension())
	if w.Len() < e.cfg.FFTSize {
		return out, nil
	}

	s := e.spec.Compute(w.Samples)
	numMels := e.cfg.NumMels
	sum := make([]float64, numMels)
	sumSq := make([]float64, numMels)
	for _, mag := range s.Frames {
		for m, filter := range e.melBank {
			var energy float64
			for k, weight := range filter {
				if weight != 0 {
					energy += weight * mag[k] * mag[k]
				}
			}
			v := math.Log(math.Max(energy, 1e-10))
			sum[m] += v
			sumSq[m] += v * v
		}
	}

	n := float64(s.NumFrames())
	var grand float64
	for m := range numMels {
		grand += sum[m] / n
	}
	grand /= float64(numMels)
	for m := range numMels {
		mean := sum[m] / n
		std := math.Sqrt(math.Max(sumSq[m]/n-mean*mean, 0))
		out[m] = float32(mean - grand)
		out[numMels+m] = float32(std)
	}
	return Normalize(out), nil
}

// hzToMel converts frequency in Hz to mel scale.
func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// melToHz converts mel scale frequency back to Hz.
func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// melFilterBank returns [numMels][fftSize/2+1] triangular filters spaced
// evenly on the mel scale between lowFreq and highFreq.
func melFilterBank(numMels, fftSize, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	halfFFT := fftSize/2 + 1
	lowMel, highMel := hzToMel(lowFreq), hzToMel(highFreq)
	step := (highMel - lowMel) / float64(numMels+1)

	bins := make([]int, numMels+2)
	for i := range bins {
		hz := melToHz(lowMel + float64(i)*step)
		bins[i] = min(int(math.Round(hz*float64(fftSize)/float64(sampleRate))), halfFFT-1)
		if i > 0 && bins[i] <= bins[i-1] {
			bins[i] = bins[i-1] + 1
		}
	}

	bank := make([][]float64, numMels)
	for m := range bank {
		filter := make([]float64, halfFFT)
		left, center, right := bins[m], bins[m+1], bins[m+2]
		for k := left; k < center && k < halfFFT; k++ {
			filter[k] = float64(k-left) / float64(center-left)
		}
		for k := center; k <= right && k < halfFFT; k++ {
			filter[k] = float64(right-k) / float64(right-center)
		}
		bank[m] = filter
	}
	return bank
}
