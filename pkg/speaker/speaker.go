// Package speaker compares speaker embeddings against a user's enrollments
// and fuses the identity similarity with optional behavioral similarities.
package speaker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/AIINA17/Livekit-Biometric/pkg/audio/waveform"
)

// MaxEnrollments is the number of enrollments a user may hold.
const MaxEnrollments = 3

var (
	// ErrNoEnrollments is returned when matching against an empty set.
	ErrNoEnrollments = errors.New("speaker: no enrollments")

	// ErrDimensionMismatch is returned when two embeddings differ in length.
	ErrDimensionMismatch = errors.New("speaker: embedding dimension mismatch")
)

// Embedder extracts speaker embedding vectors from audio.
//
// Input audio is mono; implementations resample to their own rate if
// needed. The output is a dense float32 vector whose length is returned by
// Dimension.
//
// Implementations must be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, w waveform.Waveform) ([]float32, error)
	Dimension() int
}

// Enrollment is one stored reference voice for a user. Contour and Rate
// are the prosodic measurements of the enrollment audio, used for
// behavioral fusion; both may be empty.
type Enrollment struct {
	UserID    string    `json:"user_id" msgpack:"user_id" yaml:"user_id"`
	Label     string    `json:"label" msgpack:"label" yaml:"label"`
	Embedding []float32 `json:"embedding" msgpack:"embedding" yaml:"embedding"`
	Contour   []float64 `json:"contour,omitempty" msgpack:"contour,omitempty" yaml:"contour,omitempty"`
	Rate      float64   `json:"rate,omitempty" msgpack:"rate,omitempty" yaml:"rate,omitempty"`
	CreatedAt time.Time `json:"created_at" msgpack:"created_at" yaml:"created_at"`
}

// CosineSimilarity returns a·b / (|a|·|b|) in [-1, 1]. A zero vector has
// similarity 0 with everything.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, sim)), nil
}

// Normalize scales v to unit L2 norm in place and returns it. A zero
// vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// LabelScore is the similarity of a live sample to one enrollment.
type LabelScore struct {
	Label string  `json:"label" yaml:"label"`
	Score float64 `json:"score" yaml:"score"`
}

// Match is the result of comparing a live embedding with every enrollment.
type Match struct {
	BestIndex int          `json:"best_index" yaml:"best_index"`
	BestLabel string       `json:"best_label" yaml:"best_label"`
	BestScore float64      `json:"best_score" yaml:"best_score"`
	AllScores []LabelScore `json:"all_scores" yaml:"all_scores"`
}

// Best compares live with every enrollment and returns the highest
// similarity. Ties keep the earliest enrollment.
func Best(live []float32, enrollments []Enrollment) (Match, error) {
	if len(enrollments) == 0 {
		return Match{}, ErrNoEnrollments
	}
	m := Match{BestIndex: -1, AllScores: make([]LabelScore, 0, len(enrollments))}
	for i, e := range enrollments {
		s, err := CosineSimilarity(live, e.Embedding)
		if err != nil {
			return Match{}, fmt.Errorf("speaker: enrollment %q: %w", e.Label, err)
		}
		m.AllScores = append(m.AllScores, LabelScore{Label: e.Label, Score: s})
		if m.BestIndex < 0 || s > m.BestScore {
			m.BestIndex, m.BestLabel, m.BestScore = i, e.Label, s
		}
	}
	return m, nil
}
