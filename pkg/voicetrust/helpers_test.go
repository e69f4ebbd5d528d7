package voicetrust

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/AIINA17/Livekit-Biometric/pkg/antispoof"
	"github.com/AIINA17/Livekit-Biometric/pkg/audio/waveform"
	"github.com/AIINA17/Livekit-Biometric/pkg/metrics"
	"github.com/AIINA17/Livekit-Biometric/pkg/profilestore"
	"github.com/AIINA17/Livekit-Biometric/pkg/prosody"
)

// utter encodes the measurements the stub collaborators report into the
// first samples of a waveform.
func utter(pitch, rate, score, genuine, replay float64) waveform.Waveform {
	s := make([]float64, 1600)
	s[0], s[1], s[2], s[3], s[4] = pitch/1000, rate/10, score, genuine, replay
	return waveform.New(s, waveform.SampleRate)
}

// embedder maps the encoded score to a unit vector at that cosine from
// [1, 0].
type stubEmbedder struct {
	// block, when set, holds Embed until it is closed.
	block chan struct{}
}

func (e *stubEmbedder) Embed(ctx context.Context, w waveform.Waveform) ([]float32, error) {
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s := w.Samples[2]
	return []float32{float32(s), float32(math.Sqrt(math.Max(0, 1-s*s)))}, nil
}

func (e *stubEmbedder) Dimension() int { return 2 }

// stubScorer reports the encoded genuineness and replay. A negative
// replay value yields NaN.
type stubScorer struct{}

func (stubScorer) Score(w waveform.Waveform) (antispoof.Result, error) {
	replay := w.Samples[4]
	if replay < 0 {
		replay = math.NaN()
	}
	return antispoof.Result{
		SpoofProb:  w.Samples[3],
		ReplayProb: replay,
		Features:   antispoof.Features{Informative: true},
	}, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(w waveform.Waveform) (prosody.Features, error) {
	pitch := w.Samples[0] * 1000
	contour := make([]float64, 20)
	for i := range contour {
		contour[i] = pitch + 5*math.Sin(float64(i))
	}
	return prosody.Features{Pitch: pitch, Rate: w.Samples[1] * 10, Contour: contour}, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type env struct {
	v        *Verifier
	store    *profilestore.Store
	clock    *fakeClock
	reg      *prometheus.Registry
	embedder *stubEmbedder
}

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	e := &env{
		store:    profilestore.New(profilestore.NewMemory()),
		clock:    &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
		reg:      prometheus.NewRegistry(),
		embedder: &stubEmbedder{},
	}
	v, err := New(cfg, e.store, e.embedder,
		WithScorer(stubScorer{}),
		WithAnalyzer(stubAnalyzer{}),
		WithClock(e.clock.Now),
		WithMetrics(metrics.NewCollector("vt", e.reg, nil)),
	)
	require.NoError(t, err)
	e.v = v
	t.Cleanup(func() { e.store.Close() })
	return e
}

// enrollAlice enrolls five utterances with mean pitch 200 Hz and mean
// rate 3.0 /s under label "home".
func (e *env) enrollAlice(t *testing.T) {
	t.Helper()
	_, err := e.v.Enroll(context.Background(), "alice", "home",
		utter(195, 2.9, 1, 0.95, 0.1),
		utter(200, 3.0, 1, 0.95, 0.1),
		utter(205, 3.1, 1, 0.95, 0.1),
		utter(198, 3.0, 1, 0.95, 0.1),
		utter(202, 3.0, 1, 0.95, 0.1),
	)
	require.NoError(t, err)
}

// genuine is a passing attempt close to alice's profile.
func genuine(score float64) waveform.Waveform {
	return utter(201, 3.0, score, 0.95, 0.1)
}
