package antispoof

import (
	"errors"
	"fmt"
	"math"
)

// NumFeatures is the length of the classifier input vector.
const NumFeatures = 3

// Model holds the standardization and logistic-regression parameters of
// the spoof classifier. It is the output format of offline calibration.
type Model struct {
	Means   []float64 `json:"means" yaml:"means"`
	Scales  []float64 `json:"scales" yaml:"scales"`
	Weights []float64 `json:"weights" yaml:"weights"`
	Bias    float64   `json:"bias" yaml:"bias"`
}

// DefaultModel returns the parameters fitted on the reference corpus.
func DefaultModel() Model {
	return Model{
		Means:   []float64{0.011605034616271345, 0.03527778138717016, 0.0},
		Scales:  []float64{0.010305995506340091, 0.014120233215618267, 1.0},
		Weights: []float64{0.6451673888241342, 0.08283186796791177, 0.0},
		Bias:    0.10828528294764354,
	}
}

// Validate checks vector lengths and that all parameters are finite with
// positive scales.
func (m Model) Validate() error {
	var errs []error
	for name, v := range map[string][]float64{"means": m.Means, "scales": m.Scales, "weights": m.Weights} {
		if len(v) != NumFeatures {
			errs = append(errs, fmt.Errorf("antispoof: %s: want %d values, got %d", name, NumFeatures, len(v)))
			continue
		}
		for i, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				errs = append(errs, fmt.Errorf("antispoof: %s[%d] is not finite", name, i))
			}
		}
	}
	if len(m.Scales) == NumFeatures {
		for i, s := range m.Scales {
			if s <= 0 {
				errs = append(errs, fmt.Errorf("antispoof: scales[%d] must be positive, got %g", i, s))
			}
		}
	}
	if math.IsNaN(m.Bias) || math.IsInf(m.Bias, 0) {
		errs = append(errs, errors.New("antispoof: bias is not finite"))
	}
	return errors.Join(errs...)
}

// Probability evaluates σ(w·z + b) where z is the standardized feature
// vector. m must be valid.
func (m Model) Probability(x []float64) float64 {
	logit := m.Bias
	for i := range NumFeatures {
		z := (x[i] - m.Means[i]) / m.Scales[i]
		logit += m.Weights[i] * z
	}
	return Sigmoid(logit)
}

// Sigmoid is the logistic function.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
