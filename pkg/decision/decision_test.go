package decision

import (
	"errors"
	"math"
	"testing"
)

func TestDecisionString(t *testing.T) {
	tests := []struct {
		d    Decision
		want string
	}{
		{Verified, "VERIFIED"},
		{Repeat, "REPEAT"},
		{Denied, "DENIED"},
		{Decision(0), "Decision(0)"},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("Decision(%d).String() = %q, want %q", int(tt.d), got, tt.want)
		}
	}
}

func TestDecisionText(t *testing.T) {
	for _, d := range []Decision{Verified, Repeat, Denied} {
		b, err := d.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", d, err)
		}
		var got Decision
		if err := got.UnmarshalText(b); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", b, err)
		}
		if got != d {
			t.Errorf("text round trip: got %v, want %v", got, d)
		}
	}
	if _, err := Decision(9).MarshalText(); err == nil {
		t.Error("MarshalText should reject unknown value")
	}
	var d Decision
	if err := d.UnmarshalText([]byte("MAYBE")); err == nil {
		t.Error("UnmarshalText should reject unknown label")
	}
}

func TestDecide(t *testing.T) {
	base := DefaultConfig()
	tests := []struct {
		name    string
		speaker float64
		replay  float64
		want    Outcome
	}{
		{"verified", 0.5, 0.1, Outcome{Verified, ReasonVerified}},
		{"replay warn beats good score", 0.5, 0.65, Outcome{Repeat, ReasonReplaySuspect}},
		{"replay deny", 0.9, 0.75, Outcome{Denied, ReasonReplayDetected}},
		{"floor beats replay", 0.2, 0.9, Outcome{Denied, ReasonSpeakerTooLow}},
		{"floor with clean replay", 0.34, 0.0, Outcome{Denied, ReasonSpeakerTooLow}},
		{"uncertain", 0.40, 0.2, Outcome{Repeat, ReasonUncertain}},
		{"accept score but low combined", 0.45, 0.59, Outcome{Repeat, ReasonUncertain}},
		{"nan speaker", math.NaN(), 0.1, Outcome{Denied, ReasonInvalidSignal}},
		{"inf replay", 0.9, math.Inf(1), Outcome{Denied, ReasonInvalidSignal}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.speaker, tt.replay, base); got != tt.want {
				t.Errorf("Decide(%v, %v) = %v, want %v", tt.speaker, tt.replay, got, tt.want)
			}
		})
	}
}

func TestDecideFailed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AbsMinSpeaker = 0.1
	cfg.VoiceRepeat = 0.2
	got := Decide(0.15, 0.0, cfg)
	if got != (Outcome{Denied, ReasonFailed}) {
		t.Errorf("Decide = %v, want failed", got)
	}
}

func TestCombined(t *testing.T) {
	if got := Combined(0.5, 0.1); math.Abs(got-0.62) > 1e-12 {
		t.Errorf("Combined(0.5, 0.1) = %f, want 0.62", got)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"above one", func(c *Config) { c.VoiceAccept = 1.2 }},
		{"negative", func(c *Config) { c.ReplayDeny = -0.1 }},
		{"nan", func(c *Config) { c.CombinedAccept = math.NaN() }},
		{"repeat above accept", func(c *Config) { c.VoiceRepeat = 0.5 }},
		{"combined repeat above accept", func(c *Config) { c.CombinedRepeat = 0.6 }},
		{"warn above deny", func(c *Config) { c.ReplayWarn = 0.8 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.edit(&c)
			_, err := NewConfig(c)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewConfig error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestBuildConfigColdStart(t *testing.T) {
	base := DefaultConfig()
	if got := BuildConfig(nil, base); got != base {
		t.Errorf("nil stats: got %+v, want base", got)
	}
	stats := &UserStats{}
	for range MinAdaptiveSamples - 1 {
		stats.Observe(0.9, 0.1)
	}
	if got := BuildConfig(stats, base); got != base {
		t.Errorf("%d samples: got %+v, want base", stats.N, got)
	}
}

func TestBuildConfigAdaptive(t *testing.T) {
	base := DefaultConfig()
	stats := &UserStats{}
	for _, s := range []float64{0.80, 0.82, 0.78, 0.80, 0.80} {
		stats.Observe(s, 0.1)
	}
	got := BuildConfig(stats, base)

	std := stats.StdScore()
	if want := 0.80 - 2*std; math.Abs(got.VoiceAccept-want) > 1e-9 {
		t.Errorf("VoiceAccept = %f, want %f", got.VoiceAccept, want)
	}
	if want := 0.80 - 3*std; math.Abs(got.VoiceRepeat-want) > 1e-9 {
		t.Errorf("VoiceRepeat = %f, want %f", got.VoiceRepeat, want)
	}
	// mean replay 0.1 + 0.1 = 0.2 is clamped up to 0.45.
	if got.ReplayWarn != 0.45 {
		t.Errorf("ReplayWarn = %f, want 0.45", got.ReplayWarn)
	}
	if got.AbsMinSpeaker != base.AbsMinSpeaker || got.ReplayDeny != base.ReplayDeny ||
		got.CombinedAccept != base.CombinedAccept || got.CombinedRepeat != base.CombinedRepeat {
		t.Errorf("untouched fields changed: %+v", got)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("derived config invalid: %v", err)
	}
}

func TestBuildConfigNeverBelowBase(t *testing.T) {
	base := DefaultConfig()
	stats := &UserStats{}
	for _, s := range []float64{0.1, 0.9, 0.2, 0.8, 0.3, 0.7} {
		stats.Observe(s, 0.55)
	}
	got := BuildConfig(stats, base)
	if got.VoiceAccept != base.VoiceAccept || got.VoiceRepeat != base.VoiceRepeat {
		t.Errorf("noisy history should fall back to base: %+v", got)
	}
	if got.ReplayWarn != base.ReplayWarn {
		t.Errorf("ReplayWarn = %f, want base %f", got.ReplayWarn, base.ReplayWarn)
	}
}

func TestUserStatsObserve(t *testing.T) {
	var s UserStats
	for _, v := range []float64{0.6, 0.7, 0.8} {
		s.Observe(v, v/10)
	}
	if s.N != 3 {
		t.Fatalf("N = %d, want 3", s.N)
	}
	if math.Abs(s.MeanScore-0.7) > 1e-12 {
		t.Errorf("MeanScore = %f, want 0.7", s.MeanScore)
	}
	if want := math.Sqrt(0.02 / 3); math.Abs(s.StdScore()-want) > 1e-12 {
		t.Errorf("StdScore = %f, want %f", s.StdScore(), want)
	}
	if math.Abs(s.MeanReplay-0.07) > 1e-12 {
		t.Errorf("MeanReplay = %f, want 0.07", s.MeanReplay)
	}
	var nilStats *UserStats
	if nilStats.StdScore() != 0 {
		t.Error("nil stats should have zero std")
	}
}
