package decision

import "math"

// Adaptation constants.
const (
	// MinAdaptiveSamples is the history size below which BuildConfig
	// returns the base config unchanged.
	MinAdaptiveSamples = 5

	acceptSigmas    = 2.0
	repeatSigmas    = 3.0
	replayMargin    = 0.1
	replayWarnFloor = 0.45
)

// UserStats are running statistics over a user's verified attempts.
type UserStats struct {
	N          uint64  `json:"n_samples" msgpack:"n" yaml:"n_samples"`
	MeanScore  float64 `json:"mean_score" msgpack:"ms" yaml:"mean_score"`
	ScoreM2    float64 `json:"score_m2" msgpack:"m2" yaml:"score_m2"`
	MeanReplay float64 `json:"mean_replay" msgpack:"mr" yaml:"mean_replay"`
}

// Observe folds one verified attempt into the statistics using Welford's
// update for the score and a running mean for the replay probability.
func (s *UserStats) Observe(score, replay float64) {
	s.N++
	n := float64(s.N)
	delta := score - s.MeanScore
	s.MeanScore += delta / n
	s.ScoreM2 += delta * (score - s.MeanScore)
	s.MeanReplay += (replay - s.MeanReplay) / n
}

// StdScore returns the population standard deviation of observed scores.
func (s *UserStats) StdScore() float64 {
	if s == nil || s.N == 0 {
		return 0
	}
	return math.Sqrt(math.Max(s.ScoreM2, 0) / float64(s.N))
}

// BuildConfig derives per-user thresholds from stats. With nil stats or
// fewer than MinAdaptiveSamples observations it returns base unchanged.
// Otherwise:
//
//	voice_accept = max(mean − 2·std, base.voice_accept)
//	voice_repeat = max(mean − 3·std, base.voice_repeat)
//	replay_warn  = clamp(min(base.replay_warn, mean_replay + 0.1), 0.45, base.replay_warn)
//
// The derived thresholds are never more permissive than base.
func BuildConfig(stats *UserStats, base Config) Config {
	if stats == nil || stats.N < MinAdaptiveSamples {
		return base
	}
	std := stats.StdScore()
	cfg := base
	cfg.VoiceAccept = math.Max(stats.MeanScore-acceptSigmas*std, base.VoiceAccept)
	cfg.VoiceRepeat = math.Max(stats.MeanScore-repeatSigmas*std, base.VoiceRepeat)

	warn := math.Min(base.ReplayWarn, stats.MeanReplay+replayMargin)
	lower := math.Min(replayWarnFloor, base.ReplayWarn)
	cfg.ReplayWarn = math.Min(math.Max(warn, lower), base.ReplayWarn)
	return cfg
}
