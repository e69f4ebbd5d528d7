// Package calibration derives decision thresholds and spoof-classifier
// parameters from labeled corpora.
package calibration

import (
	"errors"
	"math"
	"slices"

	"github.com/AIINA17/Livekit-Biometric/pkg/decision"
)

var (
	// ErrEmptyScores is returned when either score set is empty.
	ErrEmptyScores = errors.New("calibration: empty score set")

	// ErrNonFiniteScore is returned when a score is NaN or Inf.
	ErrNonFiniteScore = errors.New("calibration: non-finite score")
)

// Point is one candidate threshold with its error rates.
type Point struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
	FAR       float64 `json:"far" yaml:"far"`
	FRR       float64 `json:"frr" yaml:"frr"`
}

// ROC evaluates every distinct score in the union of genuine and impostor
// as a threshold, in ascending order. FAR is the fraction of impostor
// scores at or above the threshold; FRR the fraction of genuine scores
// below it.
func ROC(genuine, impostor []float64) ([]Point, error) {
	if len(genuine) == 0 || len(impostor) == 0 {
		return nil, ErrEmptyScores
	}
	g := sortedCopy(genuine)
	im := sortedCopy(impostor)
	all := slices.Concat(g, im)
	for _, v := range all {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrNonFiniteScore
		}
	}
	slices.Sort(all)
	thresholds := slices.Compact(all)

	points := make([]Point, len(thresholds))
	for i, t := range thresholds {
		below := lowerBound(g, t)
		atOrAbove := len(im) - lowerBound(im, t)
		points[i] = Point{
			Threshold: t,
			FAR:       float64(atOrAbove) / float64(len(im)),
			FRR:       float64(below) / float64(len(g)),
		}
	}
	return points, nil
}

// FindEERThreshold returns the threshold minimizing |FAR − FRR| and the
// equal error rate (FAR + FRR) / 2 at that threshold. Ties resolve to the
// lowest threshold.
func FindEERThreshold(genuine, impostor []float64) (threshold, eer float64, err error) {
	points, err := ROC(genuine, impostor)
	if err != nil {
		return 0, 0, err
	}
	best := points[0]
	for _, p := range points[1:] {
		if math.Abs(p.FAR-p.FRR) < math.Abs(best.FAR-best.FRR) {
			best = p
		}
	}
	return best.Threshold, (best.FAR + best.FRR) / 2, nil
}

// CombinedScores fuses paired speaker scores and replay probabilities the
// way the decision engine does.
func CombinedScores(speaker, replay []float64) ([]float64, error) {
	if len(speaker) != len(replay) {
		return nil, errors.New("calibration: speaker and replay lengths differ")
	}
	out := make([]float64, len(speaker))
	for i := range speaker {
		out[i] = decision.Combined(speaker[i], replay[i])
	}
	return out, nil
}

func sortedCopy(x []float64) []float64 {
	c := slices.Clone(x)
	slices.Sort(c)
	return c
}

// lowerBound is the index of the first element >= t in sorted x.
func lowerBound(x []float64, t float64) int {
	i, _ := slices.BinarySearch(x, t)
	return i
}
