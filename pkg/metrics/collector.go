// Package metrics exposes Prometheus instrumentation for voice
// verification.
package metrics

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector records verification outcomes. A nil *Collector is valid and
// records nothing.
type Collector struct {
	decisionsTotal     *prometheus.CounterVec
	speakerScore       prometheus.Histogram
	spoofProb          prometheus.Histogram
	replayProb         prometheus.Histogram
	behaviorScore      prometheus.Histogram
	profileUpdates     *prometheus.CounterVec
	verifyDuration     prometheus.Histogram
	verificationErrors *prometheus.CounterVec

	logger *slog.Logger
}

var unitBuckets = prometheus.LinearBuckets(0, 0.05, 21)

// NewCollector registers the verification metrics with reg under
// namespace. A nil reg registers with prometheus.DefaultRegisterer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *slog.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := promauto.With(reg)

	c := &Collector{
		decisionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Verification decisions by outcome and reason",
			},
			[]string{"decision", "reason"},
		),
		speakerScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "speaker_score",
			Help:      "Speaker similarity score of each attempt",
			Buckets:   unitBuckets,
		}),
		spoofProb: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "spoof_probability",
			Help:      "Calibrated genuineness probability of each attempt",
			Buckets:   unitBuckets,
		}),
		replayProb: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "replay_probability",
			Help:      "Replay suspicion of each attempt",
			Buckets:   unitBuckets,
		}),
		behaviorScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "behavior_score",
			Help:      "Behavior profile similarity of attempts with a profile",
			Buckets:   unitBuckets,
		}),
		profileUpdates: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "profile_updates_total",
				Help:      "Behavior profile update gate results",
			},
			[]string{"result"},
		),
		verifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verify_duration_seconds",
			Help:      "Time spent in one verification",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		verificationErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verification_errors_total",
				Help:      "Verifications that failed with an error, by stage",
			},
			[]string{"stage"},
		),
		logger: logger.With("component", "metrics"),
	}
	c.logger.Debug("metrics collector registered", "namespace", namespace)
	return c
}

// Attempt describes one completed verification.
type Attempt struct {
	Decision      string
	Reason        string
	SpeakerScore  float64
	SpoofProb     float64
	ReplayProb    float64
	BehaviorScore *float64
	Seconds       float64
}

// RecordAttempt records a completed verification.
func (c *Collector) RecordAttempt(a Attempt) {
	if c == nil {
		return
	}
	c.decisionsTotal.WithLabelValues(a.Decision, a.Reason).Inc()
	c.speakerScore.Observe(a.SpeakerScore)
	c.spoofProb.Observe(a.SpoofProb)
	c.replayProb.Observe(a.ReplayProb)
	if a.BehaviorScore != nil {
		c.behaviorScore.Observe(*a.BehaviorScore)
	}
	c.verifyDuration.Observe(a.Seconds)
}

// Profile update results besides the gate's refusal reasons.
const (
	ProfileUpdated      = "updated"
	ProfileBootstrapped = "bootstrapped"
)

// RecordProfileUpdate records the result of the trusted-update gate:
// ProfileUpdated, ProfileBootstrapped, or the refusal reason.
func (c *Collector) RecordProfileUpdate(result string) {
	if c == nil {
		return
	}
	c.profileUpdates.WithLabelValues(result).Inc()
}

// RecordError records a verification that failed at stage.
func (c *Collector) RecordError(stage string) {
	if c == nil {
		return
	}
	c.verificationErrors.WithLabelValues(stage).Inc()
	c.logger.Debug("verification error recorded", "stage", stage)
}
