// Package voicetrust sequences speaker matching, spoof scoring, the
// decision engine and the trusted behavior-profile update for one
// verification attempt.
//
// A Verifier is safe for concurrent use. Attempts for different users run
// independently; the load-gate-save cycle of a behavior profile is
// serialized per (user, label), and user statistics per user.
package voicetrust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AIINA17/Livekit-Biometric/pkg/antispoof"
	"github.com/AIINA17/Livekit-Biometric/pkg/audio/waveform"
	"github.com/AIINA17/Livekit-Biometric/pkg/behavior"
	"github.com/AIINA17/Livekit-Biometric/pkg/decision"
	"github.com/AIINA17/Livekit-Biometric/pkg/metrics"
	"github.com/AIINA17/Livekit-Biometric/pkg/profilestore"
	"github.com/AIINA17/Livekit-Biometric/pkg/prosody"
	"github.com/AIINA17/Livekit-Biometric/pkg/speaker"
)

// Reasons added on top of the decision engine's.
const (
	ReasonSyntheticSpeech  = "synthetic speech detected"
	ReasonBehaviorMismatch = "behavior mismatch, please repeat"
)

// refusedNoProsody is reported when the attempt has no voiced pitch or no
// measurable speaking rate to learn from.
const refusedNoProsody behavior.Refusal = "no prosody measured"

var (
	// ErrNotEnrolled is returned when the user has no enrollments.
	ErrNotEnrolled = errors.New("voicetrust: user not enrolled")

	// ErrInvalidRequest is returned for requests without a user.
	ErrInvalidRequest = errors.New("voicetrust: invalid request")
)

// SpoofScorer scores an utterance for spoofing and replay.
// *antispoof.Scorer implements it.
type SpoofScorer interface {
	Score(w waveform.Waveform) (antispoof.Result, error)
}

// ProsodyAnalyzer measures pitch and speaking rate. *prosody.Analyzer
// implements it.
type ProsodyAnalyzer interface {
	Analyze(w waveform.Waveform) (prosody.Features, error)
}

// Verifier runs verification attempts.
type Verifier struct {
	cfg      Config
	store    *profilestore.Store
	embedder speaker.Embedder
	scorer   SpoofScorer
	analyzer ProsodyAnalyzer
	metrics  *metrics.Collector
	logger   *slog.Logger
	now      func() time.Time
	locks    keyedMutex
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithMetrics records every attempt in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(v *Verifier) { v.metrics = c }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithScorer replaces the spoof scorer built from the configured model.
func WithScorer(s SpoofScorer) Option {
	return func(v *Verifier) { v.scorer = s }
}

// WithAnalyzer replaces the default prosody analyzer.
func WithAnalyzer(a ProsodyAnalyzer) Option {
	return func(v *Verifier) { v.analyzer = a }
}

// New creates a Verifier. cfg is validated.
func New(cfg Config, store *profilestore.Store, embedder speaker.Embedder, opts ...Option) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("voicetrust: invalid config: %w", err)
	}
	if store == nil || embedder == nil {
		return nil, errors.New("voicetrust: store and embedder are required")
	}
	v := &Verifier{
		cfg:      cfg,
		store:    store,
		embedder: embedder,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.scorer == nil {
		s, err := antispoof.NewScorer(cfg.SpoofModel.Model)
		if err != nil {
			return nil, err
		}
		v.scorer = s
	}
	if v.analyzer == nil {
		v.analyzer = prosody.New(prosody.DefaultConfig())
	}
	v.logger = v.logger.With("component", "voicetrust")
	return v, nil
}

// Config returns the configuration in use.
func (v *Verifier) Config() Config { return v.cfg }

// Request is one verification attempt.
type Request struct {
	UserID string
	Audio  waveform.Waveform
	// Enrollments overrides the stored enrollments when non-nil.
	Enrollments []speaker.Enrollment
	// IsRetry marks an attempt made right after a failed one. Retries are
	// decided normally but never learned from.
	IsRetry bool
}

// Result is the structured outcome of one attempt.
type Result struct {
	AttemptID string            `json:"attempt_id" yaml:"attempt_id"`
	UserID    string            `json:"user_id" yaml:"user_id"`
	Decision  decision.Decision `json:"decision" yaml:"decision"`
	Reason    string            `json:"reason" yaml:"reason"`

	// SpeakerScore is the score the decision used: the best identity
	// similarity, fused with prosody when fusion is enabled.
	SpeakerScore  float64 `json:"speaker_score" yaml:"speaker_score"`
	IdentityScore float64 `json:"identity_score" yaml:"identity_score"`
	// SpoofProb is the calibrated genuineness; higher is more genuine.
	SpoofProb  float64 `json:"spoof_prob" yaml:"spoof_prob"`
	ReplayProb float64 `json:"replay_prob" yaml:"replay_prob"`

	// BehaviorScore is set when a behavior profile exists for BestLabel.
	BehaviorScore *float64             `json:"behavior_score,omitempty" yaml:"behavior_score,omitempty"`
	BestLabel     string               `json:"best_label,omitempty" yaml:"best_label,omitempty"`
	AllScores     []speaker.LabelScore `json:"all_scores,omitempty" yaml:"all_scores,omitempty"`

	Pitch float64 `json:"pitch" yaml:"pitch"`
	Rate  float64 `json:"rate" yaml:"rate"`

	// Thresholds are the per-user thresholds the decision used.
	Thresholds decision.Config `json:"thresholds" yaml:"thresholds"`

	ProfileUpdated bool   `json:"profile_updated" yaml:"profile_updated"`
	UpdateRefusal  string `json:"update_refusal,omitempty" yaml:"update_refusal,omitempty"`
	IsRetry        bool   `json:"is_retry" yaml:"is_retry"`
}

// Outcome returns the decision with its reason.
func (r *Result) Outcome() decision.Outcome {
	return decision.Outcome{Decision: r.Decision, Reason: r.Reason}
}

// signals are the measurements extracted from the live audio.
type signals struct {
	embedding []float32
	spoof     antispoof.Result
	prosody   prosody.Features
}

// Verify runs one attempt. Decisions, including denials for invalid
// signals, are returned as a Result; errors are reserved for collaborator
// failures, cancellation and users without enrollments.
func (v *Verifier) Verify(ctx context.Context, req Request) (*Result, error) {
	start := v.now()
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidRequest)
	}
	res := &Result{
		AttemptID: uuid.NewString(),
		UserID:    req.UserID,
		IsRetry:   req.IsRetry,
	}
	log := v.logger.With("attempt", res.AttemptID, "user", req.UserID)

	if !req.Audio.Finite() {
		v.deny(res, decision.ReasonInvalidSignal)
		v.finish(log, res, start)
		return res, nil
	}

	enrollments := req.Enrollments
	if enrollments == nil {
		var err error
		if enrollments, err = v.store.Enrollments(ctx, req.UserID); err != nil {
			v.metrics.RecordError("load_enrollments")
			return nil, fmt.Errorf("voicetrust: load enrollments: %w", err)
		}
	}
	if len(enrollments) == 0 {
		return nil, ErrNotEnrolled
	}

	sig, err := v.extract(ctx, req.Audio)
	if err != nil {
		return nil, err
	}
	res.SpoofProb = sig.spoof.SpoofProb
	res.ReplayProb = sig.spoof.ReplayProb
	res.Pitch = sig.prosody.Pitch
	res.Rate = sig.prosody.Rate

	match, err := speaker.Best(sig.embedding, enrollments)
	if err != nil {
		v.metrics.RecordError("match")
		return nil, fmt.Errorf("voicetrust: match: %w", err)
	}
	res.BestLabel = match.BestLabel
	res.AllScores = match.AllScores
	res.IdentityScore = match.BestScore
	res.SpeakerScore = v.fuse(match.BestScore, enrollments[match.BestIndex], sig.prosody)

	if !finite(res.SpeakerScore, res.Pitch, res.Rate) || !sig.spoof.Finite() {
		v.deny(res, decision.ReasonInvalidSignal)
		v.finish(log, res, start)
		return res, nil
	}

	if floor := v.cfg.SpoofModel.MinGenuine; floor > 0 && sig.spoof.Features.Informative && res.SpoofProb < floor {
		v.deny(res, ReasonSyntheticSpeech)
		v.finish(log, res, start)
		return res, nil
	}

	stats, err := v.userStats(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	res.Thresholds = decision.BuildConfig(stats, v.cfg.Decision)
	out := decision.Decide(res.SpeakerScore, res.ReplayProb, res.Thresholds)
	res.Decision, res.Reason = out.Decision, out.Reason

	profile, err := v.profile(ctx, req.UserID, res.BestLabel)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		sim := behavior.Score(res.Pitch, res.Rate, profile)
		res.BehaviorScore = &sim.Score
		if v.demote(res, profile, sim) {
			log.Debug("behavior gate demoted verification", "behavior_score", sim.Score)
		}
	}

	if res.Decision == decision.Verified {
		if err := v.learn(ctx, log, req, res); err != nil {
			return nil, err
		}
	}

	v.finish(log, res, start)
	return res, nil
}

// extract runs embedding, spoof scoring and prosody analysis in parallel.
func (v *Verifier) extract(ctx context.Context, w waveform.Waveform) (signals, error) {
	var sig signals
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		emb, err := v.embedder.Embed(gctx, w)
		if err != nil {
			v.metrics.RecordError("embed")
			return fmt.Errorf("voicetrust: embed: %w", err)
		}
		sig.embedding = emb
		return nil
	})
	g.Go(func() error {
		r, err := v.scorer.Score(w)
		if err != nil {
			v.metrics.RecordError("antispoof")
			return fmt.Errorf("voicetrust: antispoof: %w", err)
		}
		sig.spoof = r
		return nil
	})
	g.Go(func() error {
		p, err := v.analyzer.Analyze(w)
		if err != nil {
			v.metrics.RecordError("prosody")
			return fmt.Errorf("voicetrust: prosody: %w", err)
		}
		sig.prosody = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return signals{}, err
	}
	return sig, nil
}

// fuse applies behavioral fusion against the best enrollment when enabled
// and the enrollment carries prosody.
func (v *Verifier) fuse(identity float64, e speaker.Enrollment, p prosody.Features) float64 {
	if !v.cfg.Fusion.Enabled || len(e.Contour) == 0 || e.Rate == 0 {
		return identity
	}
	return v.cfg.Fusion.Weights.Fuse(identity, &speaker.Behavioral{
		PitchSimilarity: prosody.PitchSimilarity(p.Contour, e.Contour),
		RateSimilarity:  prosody.RateSimilarity(p.Rate, e.Rate),
	})
}

// demote applies the optional behavior gate to a Verified decision.
func (v *Verifier) demote(res *Result, p *behavior.Profile, sim behavior.Similarity) bool {
	g := v.cfg.BehaviorGate
	if !g.Enabled || res.Decision != decision.Verified || p.NSamples < v.cfg.Policy.MinSamples {
		return false
	}
	if sim.Score >= g.MinScore {
		return false
	}
	res.Decision, res.Reason = decision.Repeat, ReasonBehaviorMismatch
	return true
}

// learn runs the trusted-update gate for a Verified attempt and folds the
// attempt into the user statistics. Each read-modify-write runs under its
// key's lock.
func (v *Verifier) learn(ctx context.Context, log *slog.Logger, req Request, res *Result) error {
	result, refusal, err := v.updateProfile(ctx, req, res)
	if err != nil {
		return err
	}
	res.ProfileUpdated = result != ""
	res.UpdateRefusal = string(refusal)
	if res.ProfileUpdated {
		v.metrics.RecordProfileUpdate(result)
	} else {
		v.metrics.RecordProfileUpdate(string(refusal))
		log.Debug("behavior profile not updated", "label", res.BestLabel, "refusal", string(refusal))
	}

	if req.IsRetry {
		return nil
	}
	unlock := v.locks.Lock(statsLockKey(req.UserID))
	defer unlock()
	stats, err := v.userStats(ctx, req.UserID)
	if err != nil {
		return err
	}
	if stats == nil {
		stats = &decision.UserStats{}
	}
	stats.Observe(res.SpeakerScore, res.ReplayProb)
	if err := v.store.SaveUserStats(ctx, req.UserID, stats); err != nil {
		v.metrics.RecordError("save_user_stats")
		return fmt.Errorf("voicetrust: save user stats: %w", err)
	}
	return nil
}

// updateProfile runs the gate and saves the profile. It returns the
// metrics result on success and the refusal otherwise.
func (v *Verifier) updateProfile(ctx context.Context, req Request, res *Result) (string, behavior.Refusal, error) {
	if res.Pitch <= 0 || res.Rate <= 0 {
		return "", refusedNoProsody, nil
	}
	unlock := v.locks.Lock(profileLockKey(req.UserID, res.BestLabel))
	defer unlock()

	now := v.now()
	p, err := v.profile(ctx, req.UserID, res.BestLabel)
	if err != nil {
		return "", "", err
	}
	attempt := behavior.Attempt{
		Decision:     res.Decision,
		SpeakerScore: res.SpeakerScore,
		SpoofProb:    1 - res.SpoofProb,
		IsRetry:      req.IsRetry,
		Now:          now,
	}

	result := metrics.ProfileUpdated
	if p == nil {
		if ok, r := v.cfg.Policy.ShouldBootstrap(attempt); !ok {
			return "", r, nil
		}
		result = metrics.ProfileBootstrapped
		p = behavior.NewProfile(req.UserID, res.BestLabel, res.Pitch, res.Rate, now)
	} else {
		attempt.Behavior = behavior.Score(res.Pitch, res.Rate, p)
		attempt.NSamples = p.NSamples
		attempt.LastUpdate = p.LastUpdate
		if ok, r := v.cfg.Policy.ShouldUpdate(attempt); !ok {
			return "", r, nil
		}
		p.Update(res.Pitch, res.Rate, now)
	}
	if err := v.store.SaveBehaviorProfile(ctx, p); err != nil {
		v.metrics.RecordError("save_profile")
		return "", "", fmt.Errorf("voicetrust: save behavior profile: %w", err)
	}
	return result, "", nil
}

func (v *Verifier) profile(ctx context.Context, user, label string) (*behavior.Profile, error) {
	p, err := v.store.BehaviorProfile(ctx, user, label)
	if errors.Is(err, profilestore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		v.metrics.RecordError("load_profile")
		return nil, fmt.Errorf("voicetrust: load behavior profile: %w", err)
	}
	return p, nil
}

func (v *Verifier) userStats(ctx context.Context, user string) (*decision.UserStats, error) {
	st, err := v.store.UserStats(ctx, user)
	if errors.Is(err, profilestore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		v.metrics.RecordError("load_user_stats")
		return nil, fmt.Errorf("voicetrust: load user stats: %w", err)
	}
	return st, nil
}

func (v *Verifier) deny(res *Result, reason string) {
	res.Decision, res.Reason = decision.Denied, reason
}

func (v *Verifier) finish(log *slog.Logger, res *Result, start time.Time) {
	attrs := []any{
		"decision", res.Decision.String(),
		"reason", res.Reason,
		"speaker_score", res.SpeakerScore,
		"spoof_prob", res.SpoofProb,
		"replay_prob", res.ReplayProb,
		"label", res.BestLabel,
		"retry", res.IsRetry,
		"profile_updated", res.ProfileUpdated,
	}
	if res.BehaviorScore != nil {
		attrs = append(attrs, "behavior_score", *res.BehaviorScore)
	}
	log.Info("verification", attrs...)
	v.metrics.RecordAttempt(metrics.Attempt{
		Decision:      res.Decision.String(),
		Reason:        res.Reason,
		SpeakerScore:  orZero(res.SpeakerScore),
		SpoofProb:     orZero(res.SpoofProb),
		ReplayProb:    orZero(res.ReplayProb),
		BehaviorScore: res.BehaviorScore,
		Seconds:       v.now().Sub(start).Seconds(),
	})
}

func finite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// orZero keeps non-finite values out of histogram sums.
func orZero(x float64) float64 {
	if !finite(x) {
		return 0
	}
	return x
}
