package calibration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AIINA17/Livekit-Biometric/pkg/antispoof"
	"github.com/AIINA17/Livekit-Biometric/pkg/audio/waveform"
	"github.com/AIINA17/Livekit-Biometric/pkg/decision"
	"github.com/AIINA17/Livekit-Biometric/pkg/prosody"
	"github.com/AIINA17/Livekit-Biometric/pkg/speaker"
)

// Class labels a corpus file.
type Class int

const (
	Genuine Class = iota + 1
	Impostor
	Spoof
)

func (c Class) String() string {
	switch c {
	case Genuine:
		return "genuine"
	case Impostor:
		return "impostor"
	case Spoof:
		return "spoof"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Corpus lists labeled audio files. Enroll holds the reference recordings
// of the genuine speaker; it is only needed for speaker-score calibration.
type Corpus struct {
	Enroll   []string `yaml:"enroll,omitempty"`
	Genuine  []string `yaml:"genuine"`
	Impostor []string `yaml:"impostor,omitempty"`
	Spoof    []string `yaml:"spoof,omitempty"`
}

// CorpusFromDir reads the layout
//
//	dir/enroll*.wav|mp3
//	dir/genuine/
//	dir/impostor/
//	dir/spoof/
//
// Missing subdirectories yield empty classes.
func CorpusFromDir(dir string) (Corpus, error) {
	var c Corpus
	entries, err := os.ReadDir(dir)
	if err != nil {
		return c, fmt.Errorf("calibration: read corpus: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "enroll") && isAudio(e.Name()) {
			c.Enroll = append(c.Enroll, filepath.Join(dir, e.Name()))
		}
	}
	for sub, dst := range map[string]*[]string{"genuine": &c.Genuine, "impostor": &c.Impostor, "spoof": &c.Spoof} {
		files, err := audioFiles(filepath.Join(dir, sub))
		if err != nil {
			return c, err
		}
		*dst = files
	}
	return c, nil
}

func audioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("calibration: read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && isAudio(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(out)
	return out, nil
}

func isAudio(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".mp3":
		return true
	}
	return false
}

// OperatingPoint is an EER threshold fitted on one score type.
type OperatingPoint struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
	EER       float64 `json:"eer" yaml:"eer"`
	Positive  int     `json:"positive" yaml:"positive"`
	Negative  int     `json:"negative" yaml:"negative"`
}

func operatingPoint(pos, neg []float64) (*OperatingPoint, error) {
	t, eer, err := FindEERThreshold(pos, neg)
	if err != nil {
		return nil, err
	}
	return &OperatingPoint{Threshold: t, EER: eer, Positive: len(pos), Negative: len(neg)}, nil
}

// Report is the outcome of a calibration run.
type Report struct {
	// Speaker separates genuine from impostor and spoof speaker scores.
	Speaker *OperatingPoint `json:"speaker,omitempty" yaml:"speaker,omitempty"`
	// Combined does the same on 0.7·speaker + 0.3·(1 − replay).
	Combined *OperatingPoint `json:"combined,omitempty" yaml:"combined,omitempty"`
	// Spoof separates genuine from spoof calibrated spoof probabilities.
	Spoof *OperatingPoint `json:"spoof,omitempty" yaml:"spoof,omitempty"`
	// SpoofModel is fitted with genuine and impostor speech as the
	// positive class, when spoof samples exist.
	SpoofModel *antispoof.Model `json:"spoof_model,omitempty" yaml:"spoof_model,omitempty"`
	Skipped    []string         `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	CreatedAt  time.Time        `json:"created_at" yaml:"created_at"`
}

// DecisionConfig applies the speaker and combined thresholds to base as
// voice_accept and combined_accept, lowering the repeat and floor
// thresholds where needed to stay consistent.
func (r Report) DecisionConfig(base decision.Config) (decision.Config, error) {
	cfg := base
	if r.Speaker != nil {
		cfg.VoiceAccept = r.Speaker.Threshold
		cfg.VoiceRepeat = min(base.VoiceRepeat, cfg.VoiceAccept)
		cfg.AbsMinSpeaker = min(base.AbsMinSpeaker, cfg.VoiceRepeat)
	}
	if r.Combined != nil {
		cfg.CombinedAccept = r.Combined.Threshold
		cfg.CombinedRepeat = min(base.CombinedRepeat, cfg.CombinedAccept)
	}
	return decision.NewConfig(cfg)
}

type options struct {
	embedder    speaker.Embedder
	fusion      *speaker.Weights
	concurrency int
	fit         FitOptions
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures Calibrate.
type Option func(*options)

// WithEmbedder enables speaker and combined score calibration.
func WithEmbedder(e speaker.Embedder) Option { return func(o *options) { o.embedder = e } }

// WithFusion fuses prosodic similarity into speaker scores with w.
func WithFusion(w speaker.Weights) Option { return func(o *options) { o.fusion = &w } }

// WithConcurrency bounds the number of files processed at once.
func WithConcurrency(n int) Option { return func(o *options) { o.concurrency = n } }

// WithFitOptions tunes the spoof model fit.
func WithFitOptions(f FitOptions) Option { return func(o *options) { o.fit = f } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

type scored struct {
	class   Class
	path    string
	ok      bool
	spoof   antispoof.Result
	speaker float64
}

// Calibrate scores every corpus file and fits operating points. Files that
// fail to decode are skipped and listed in the report.
func Calibrate(ctx context.Context, corpus Corpus, scorer *antispoof.Scorer, opts ...Option) (Report, error) {
	o := options{concurrency: runtime.GOMAXPROCS(0), logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	log := o.logger.With("component", "calibration")
	if scorer == nil {
		return Report{}, errors.New("calibration: nil scorer")
	}
	if o.fusion != nil {
		if err := o.fusion.Validate(); err != nil {
			return Report{}, fmt.Errorf("calibration: %w", err)
		}
	}

	analyzer := prosody.New(prosody.DefaultConfig())
	var enrollments []speaker.Enrollment
	if o.embedder != nil {
		var err error
		enrollments, err = enroll(ctx, o.embedder, analyzer, corpus.Enroll)
		if err != nil {
			return Report{}, err
		}
	}

	var items []scored
	for class, paths := range map[Class][]string{Genuine: corpus.Genuine, Impostor: corpus.Impostor, Spoof: corpus.Spoof} {
		for _, p := range paths {
			items = append(items, scored{class: class, path: p})
		}
	}
	slices.SortFunc(items, func(a, b scored) int { return strings.Compare(a.path, b.path) })
	log.Info("calibrating", "files", len(items), "enrollments", len(enrollments), "concurrency", o.concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			it := &items[i]
			w, err := waveform.Load(it.path)
			if err != nil {
				log.Warn("skipping file", "path", it.path, "error", err)
				return nil
			}
			if it.spoof, err = scorer.Score(w); err != nil {
				log.Warn("skipping file", "path", it.path, "error", err)
				return nil
			}
			if len(enrollments) > 0 {
				s, err := speakerScore(gctx, o, analyzer, enrollments, w)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					log.Warn("skipping file", "path", it.path, "error", err)
					return nil
				}
				it.speaker = s
			}
			it.ok = true
			log.Debug("scored", "path", it.path, "class", it.class,
				"spoof_prob", it.spoof.SpoofProb, "replay_prob", it.spoof.ReplayProb, "speaker", it.speaker)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("calibration: %w", err)
	}

	return buildReport(items, len(enrollments) > 0, o)
}

func buildReport(items []scored, withSpeaker bool, o options) (Report, error) {
	r := Report{CreatedAt: o.now().UTC()}
	var (
		spkPos, spkNeg     []float64
		combPos, combNeg   []float64
		spoofPos, spoofNeg []antispoof.Result
		samples            []Sample
	)
	for _, it := range items {
		if !it.ok {
			r.Skipped = append(r.Skipped, it.path)
			continue
		}
		combined := decision.Combined(it.speaker, it.spoof.ReplayProb)
		switch it.class {
		case Genuine:
			spkPos = append(spkPos, it.speaker)
			combPos = append(combPos, combined)
			spoofPos = append(spoofPos, it.spoof)
		case Impostor:
			spkNeg = append(spkNeg, it.speaker)
			combNeg = append(combNeg, combined)
		case Spoof:
			spkNeg = append(spkNeg, it.speaker)
			combNeg = append(combNeg, combined)
			spoofNeg = append(spoofNeg, it.spoof)
		}
		samples = append(samples, Sample{Features: it.spoof.Features, Genuine: it.class != Spoof})
	}

	var err error
	if withSpeaker && len(spkPos) > 0 && len(spkNeg) > 0 {
		if r.Speaker, err = operatingPoint(spkPos, spkNeg); err != nil {
			return Report{}, fmt.Errorf("calibration: speaker: %w", err)
		}
		if r.Combined, err = operatingPoint(combPos, combNeg); err != nil {
			return Report{}, fmt.Errorf("calibration: combined: %w", err)
		}
	}
	if len(spoofPos) > 0 && len(spoofNeg) > 0 {
		m, err := FitSpoofModel(samples, o.fit)
		switch {
		case errors.Is(err, ErrSingleClass):
			// Every spoof file was non-informative.
		case err != nil:
			return Report{}, err
		default:
			r.SpoofModel = &m
		}
		pos, neg, err := spoofProbabilities(spoofPos, spoofNeg, r.SpoofModel)
		if err != nil {
			return Report{}, fmt.Errorf("calibration: spoof: %w", err)
		}
		if r.Spoof, err = operatingPoint(pos, neg); err != nil {
			return Report{}, fmt.Errorf("calibration: spoof: %w", err)
		}
	}
	if r.Speaker == nil && r.Spoof == nil {
		return r, ErrEmptyScores
	}
	return r, nil
}

// spoofProbabilities rescores the results with m so the spoof operating
// point matches the model shipped in the report. Without a fitted model the
// probabilities from scoring are kept.
func spoofProbabilities(pos, neg []antispoof.Result, m *antispoof.Model) ([]float64, []float64, error) {
	prob := func(r antispoof.Result) float64 { return r.SpoofProb }
	if m != nil {
		s, err := antispoof.NewScorer(*m)
		if err != nil {
			return nil, nil, err
		}
		prob = func(r antispoof.Result) float64 { return s.ScoreFeatures(r.Features).SpoofProb }
	}
	probs := func(rs []antispoof.Result) []float64 {
		out := make([]float64, len(rs))
		for i, r := range rs {
			out[i] = prob(r)
		}
		return out
	}
	return probs(pos), probs(neg), nil
}

func enroll(ctx context.Context, e speaker.Embedder, a *prosody.Analyzer, paths []string) ([]speaker.Enrollment, error) {
	if len(paths) == 0 {
		return nil, errors.New("calibration: speaker calibration needs enrollment audio")
	}
	out := make([]speaker.Enrollment, 0, len(paths))
	for _, p := range paths {
		w, err := waveform.Load(p)
		if err != nil {
			return nil, fmt.Errorf("calibration: enroll %s: %w", p, err)
		}
		emb, err := e.Embed(ctx, w)
		if err != nil {
			return nil, fmt.Errorf("calibration: embed %s: %w", p, err)
		}
		pf, err := a.Analyze(w)
		if err != nil {
			return nil, fmt.Errorf("calibration: prosody %s: %w", p, err)
		}
		out = append(out, speaker.Enrollment{
			Label:     filepath.Base(p),
			Embedding: emb,
			Contour:   pf.Contour,
			Rate:      pf.Rate,
		})
	}
	return out, nil
}

func speakerScore(ctx context.Context, o options, a *prosody.Analyzer, enrollments []speaker.Enrollment, w waveform.Waveform) (float64, error) {
	emb, err := o.embedder.Embed(ctx, w)
	if err != nil {
		return 0, err
	}
	m, err := speaker.Best(emb, enrollments)
	if err != nil {
		return 0, err
	}
	best := enrollments[m.BestIndex]
	if o.fusion == nil || len(best.Contour) == 0 || best.Rate == 0 {
		return m.BestScore, nil
	}
	pf, err := a.Analyze(w)
	if err != nil {
		return 0, err
	}
	return o.fusion.Fuse(m.BestScore, &speaker.Behavioral{
		PitchSimilarity: prosody.PitchSimilarity(pf.Contour, best.Contour),
		RateSimilarity:  prosody.RateSimilarity(pf.Rate, best.Rate),
	}), nil
}
