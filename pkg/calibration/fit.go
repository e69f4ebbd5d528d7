package calibration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/AIINA17/Livekit-Biometric/pkg/antispoof"
)

// ErrSingleClass is returned when the training set lacks genuine or spoof
// samples.
var ErrSingleClass = errors.New("calibration: training set needs both genuine and spoof samples")

// Sample is one labeled feature vector for the spoof classifier. Genuine
// is true for live human speech, including impostors, and false for
// replayed or synthetic audio.
type Sample struct {
	Features antispoof.Features
	Genuine  bool
}

// FitOptions tune the logistic regression.
type FitOptions struct {
	// C is the inverse L2 regularization strength. Zero means 1.
	C float64
	// MaxIterations bounds the optimizer. Zero means 1000.
	MaxIterations int
}

func (o FitOptions) withDefaults() FitOptions {
	if o.C <= 0 {
		o.C = 1
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 1000
	}
	return o
}

// FitSpoofModel standardizes the classifier features (population standard
// deviation, zero deviations replaced by 1) and fits an L2-regularized
// logistic regression with class weights balanced by inverse frequency.
// Non-informative samples are skipped.
func FitSpoofModel(samples []Sample, opts FitOptions) (antispoof.Model, error) {
	opts = opts.withDefaults()

	var (
		x     [][]float64
		y     []float64
		nGood int
	)
	for _, s := range samples {
		if !s.Features.Informative || !s.Features.Finite() {
			continue
		}
		x = append(x, s.Features.Vector())
		if s.Genuine {
			y = append(y, 1)
			nGood++
		} else {
			y = append(y, -1)
		}
	}
	n := len(x)
	if nGood == 0 || nGood == n {
		return antispoof.Model{}, ErrSingleClass
	}

	means := make([]float64, antispoof.NumFeatures)
	scales := make([]float64, antispoof.NumFeatures)
	col := make([]float64, n)
	for j := range antispoof.NumFeatures {
		for i := range n {
			col[i] = x[i][j]
		}
		m, v := stat.PopMeanVariance(col, nil)
		means[j] = m
		scales[j] = math.Sqrt(v)
		if scales[j] == 0 {
			scales[j] = 1
		}
	}
	z := make([][]float64, n)
	for i := range n {
		z[i] = make([]float64, antispoof.NumFeatures)
		for j := range antispoof.NumFeatures {
			z[i][j] = (x[i][j] - means[j]) / scales[j]
		}
	}

	// Balanced weights: n / (2 · n_class).
	wPos := float64(n) / (2 * float64(nGood))
	wNeg := float64(n) / (2 * float64(n-nGood))
	sw := make([]float64, n)
	for i := range n {
		if y[i] > 0 {
			sw[i] = wPos
		} else {
			sw[i] = wNeg
		}
	}

	obj := &logistic{z: z, y: y, sw: sw, c: opts.C}
	problem := optimize.Problem{Func: obj.loss, Grad: obj.grad}
	settings := &optimize.Settings{
		MajorIterations:   opts.MaxIterations,
		GradientThreshold: 1e-8,
	}
	res, err := optimize.Minimize(problem, make([]float64, antispoof.NumFeatures+1), settings, &optimize.LBFGS{})
	if res == nil {
		return antispoof.Model{}, fmt.Errorf("calibration: fit: %w", err)
	}
	// A stalled line search near the optimum still leaves a usable point.
	if !allFinite(res.X) {
		return antispoof.Model{}, fmt.Errorf("calibration: fit diverged: %v", err)
	}

	m := antispoof.Model{
		Means:   means,
		Scales:  scales,
		Weights: append([]float64(nil), res.X[:antispoof.NumFeatures]...),
		Bias:    res.X[antispoof.NumFeatures],
	}
	if err := m.Validate(); err != nil {
		return antispoof.Model{}, fmt.Errorf("calibration: fitted model: %w", err)
	}
	return m, nil
}

// logistic is ½‖w‖² + C·Σ sw_i·log(1 + exp(−y_i·(w·z_i + b))). The bias
// is not penalized. params = [w..., b].
type logistic struct {
	z  [][]float64
	y  []float64
	sw []float64
	c  float64
}

func (l *logistic) margin(params []float64, i int) float64 {
	k := len(params) - 1
	return floats.Dot(params[:k], l.z[i]) + params[k]
}

func (l *logistic) loss(params []float64) float64 {
	k := len(params) - 1
	f := 0.5 * floats.Dot(params[:k], params[:k])
	for i := range l.z {
		f += l.c * l.sw[i] * softplus(-l.y[i]*l.margin(params, i))
	}
	return f
}

func (l *logistic) grad(grad, params []float64) {
	k := len(params) - 1
	copy(grad[:k], params[:k])
	grad[k] = 0
	for i := range l.z {
		// d/dm softplus(−y·m) = −y·σ(−y·m)
		g := -l.c * l.sw[i] * l.y[i] * antispoof.Sigmoid(-l.y[i]*l.margin(params, i))
		floats.AddScaled(grad[:k], g, l.z[i])
		grad[k] += g
	}
}

// softplus is log(1 + exp(t)) without overflow.
func softplus(t float64) float64 {
	if t > 0 {
		return t + math.Log1p(math.Exp(-t))
	}
	return math.Log1p(math.Exp(t))
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
