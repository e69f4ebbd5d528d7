package antispoof

import (
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/AIINA17/Livekit-Biometric/pkg/audio/waveform"
)

func tone(freq float64, n, rate int) waveform.Waveform {
	s := make([]float64, n)
	for i := range s {
		s[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return waveform.New(s, rate)
}

func noise(n int, seed uint64) waveform.Waveform {
	rng := rand.New(rand.NewPCG(seed, 99))
	s := make([]float64, n)
	for i := range s {
		s[i] = 0.5 * (rng.Float64()*2 - 1)
	}
	return waveform.New(s, waveform.SampleRate)
}

func TestExtractSilentIsNeutral(t *testing.T) {
	f, err := Extract(waveform.New(make([]float64, 16000), 16000))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if f.Informative {
		t.Error("silent input should not be informative")
	}
	if f != (Features{}) {
		t.Errorf("silent features = %+v, want zero", f)
	}
}

func TestExtractTooShortIsNeutral(t *testing.T) {
	f, err := Extract(tone(440, MinSamples, 16000))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if f.Informative {
		t.Errorf("%d-sample input should not be informative", MinSamples)
	}
}

func TestExtractTone(t *testing.T) {
	f, err := Extract(tone(440, 16000, 16000))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !f.Informative || !f.Finite() {
		t.Fatalf("features = %+v", f)
	}
	if f.Flatness <= 0 || f.Flatness > 1 {
		t.Errorf("flatness = %f, want (0, 1]", f.Flatness)
	}
	// No bin lies above 10 kHz at a 16 kHz sample rate.
	if f.HighBandRatio != 0 {
		t.Errorf("high band ratio = %f, want 0", f.HighBandRatio)
	}
}

func TestExtractResamples(t *testing.T) {
	f, err := Extract(tone(440, 8000, 8000))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !f.Informative {
		t.Error("resampled tone should be informative")
	}
	if _, err := Extract(waveform.New([]float64{0.1, 0.2}, 0)); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestDefaultModel(t *testing.T) {
	m := DefaultModel()
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	got := m.Probability(m.Means)
	want := Sigmoid(m.Bias)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Probability(means) = %f, want %f", got, want)
	}
	// Flatness carries the dominant positive weight.
	hi := m.Probability([]float64{m.Means[0] + m.Scales[0], m.Means[1], 0})
	if hi <= got {
		t.Errorf("higher flatness should raise genuineness: %f <= %f", hi, got)
	}
}

func TestModelValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Model)
		want string
	}{
		{"short means", func(m *Model) { m.Means = m.Means[:2] }, "means"},
		{"zero scale", func(m *Model) { m.Scales[1] = 0 }, "scales[1]"},
		{"nan weight", func(m *Model) { m.Weights[2] = math.NaN() }, "weights[2]"},
		{"inf bias", func(m *Model) { m.Bias = math.Inf(1) }, "bias"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := DefaultModel()
			tt.edit(&m)
			err := m.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
	if _, err := NewScorer(Model{}); err == nil {
		t.Error("NewScorer should reject an empty model")
	}
}

func TestSigmoid(t *testing.T) {
	if Sigmoid(0) != 0.5 {
		t.Errorf("Sigmoid(0) = %f", Sigmoid(0))
	}
	if s := Sigmoid(-1000); s != 0 || math.IsNaN(s) {
		t.Errorf("Sigmoid(-1000) = %f", s)
	}
	if s := Sigmoid(1000); s != 1 {
		t.Errorf("Sigmoid(1000) = %f", s)
	}
}

func TestScoreNonInformative(t *testing.T) {
	s, err := NewScorer(DefaultModel())
	if err != nil {
		t.Fatal(err)
	}
	r, err := s.Score(waveform.New(nil, 16000))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if r.SpoofProb != 0 || r.ReplayProb != 0 {
		t.Errorf("non-informative result = %+v, want zero scores", r)
	}
}

func TestReplayProbabilityIndicators(t *testing.T) {
	tests := []struct {
		name string
		f    Features
		want float64
	}{
		{"all suspicious", Features{Informative: true, ModulationRatio: 3}, 1},
		{"all clean", Features{Informative: true, CentroidVariance: 500, RolloffVariance: 500, AMVariance: 1, ModulationRatio: 0.5}, 0},
		{"half", Features{Informative: true, CentroidVariance: 25, RolloffVariance: 50, AMVariance: 5e-5, ModulationRatio: 2.25}, 0.5},
		{"non-informative", Features{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReplayProbability(tt.f); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("ReplayProbability = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestScoreToneAndNoise(t *testing.T) {
	s, err := NewScorer(DefaultModel())
	if err != nil {
		t.Fatal(err)
	}
	steady, err := s.Score(tone(300, 32000, 16000))
	if err != nil {
		t.Fatal(err)
	}
	live, err := s.Score(noise(32000, 3))
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range []Result{steady, live} {
		if !r.Finite() {
			t.Fatalf("non-finite result %+v", r)
		}
		if r.ReplayProb < 0 || r.ReplayProb > 1 || r.SpoofProb < 0 || r.SpoofProb > 1 {
			t.Errorf("scores out of range: %+v", r)
		}
	}
	// Broadband noise varies frame to frame, so only the modulation
	// indicator can contribute.
	if live.Features.CentroidVariance <= 50 || live.Features.RolloffVariance <= 100 {
		t.Errorf("noise variability too low: %+v", live.Features)
	}
	if live.ReplayProb > 0.25 {
		t.Errorf("noise replay prob = %f, want <= 0.25", live.ReplayProb)
	}
	// Noise is spectrally flat; the model rewards flatness.
	if live.SpoofProb <= steady.SpoofProb {
		t.Errorf("noise spoof prob %f should exceed tone %f", live.SpoofProb, steady.SpoofProb)
	}
}
