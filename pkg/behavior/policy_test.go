package behavior

import (
	"math"
	"testing"
	"time"

	"github.com/AIINA17/Livekit-Biometric/pkg/decision"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func passing() Attempt {
	return Attempt{
		Decision:     decision.Verified,
		SpeakerScore: 0.8,
		SpoofProb:    0.05,
		Behavior:     Similarity{Score: 0.9, ZPitch: 0.5, ZRate: -0.3},
		NSamples:     10,
		LastUpdate:   t0,
		Now:          t0.Add(2 * time.Hour),
	}
}

func TestShouldUpdate(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name string
		edit func(*Attempt)
		want Refusal
	}{
		{"all conditions hold", func(*Attempt) {}, ""},
		{"repeat", func(a *Attempt) { a.Decision = decision.Repeat }, RefusedNotVerified},
		{"denied", func(a *Attempt) { a.Decision = decision.Denied }, RefusedNotVerified},
		{"weak speaker", func(a *Attempt) { a.SpeakerScore = 0.6 }, RefusedSpeakerScore},
		{"spoof risk", func(a *Attempt) { a.SpoofProb = 0.21 }, RefusedSpoofProb},
		{"behavior", func(a *Attempt) { a.Behavior.Score = 0.5 }, RefusedBehaviorScore},
		{"few samples", func(a *Attempt) { a.NSamples = 4 }, RefusedTooFewSamples},
		{"retry", func(a *Attempt) { a.IsRetry = true }, RefusedRetry},
		{"rate limited", func(a *Attempt) { a.Now = t0.Add(59 * time.Minute) }, RefusedRateLimited},
		{"never updated", func(a *Attempt) { a.LastUpdate = time.Time{}; a.Now = t0 }, ""},
		{"pitch outlier", func(a *Attempt) { a.Behavior.ZPitch = -2.1 }, RefusedOutlier},
		{"rate outlier", func(a *Attempt) { a.Behavior.ZRate = 2.5 }, RefusedOutlier},
		{"nan speaker", func(a *Attempt) { a.SpeakerScore = math.NaN() }, RefusedNonFiniteSignal},
		{"boundary values pass", func(a *Attempt) {
			a.SpeakerScore = 0.65
			a.SpoofProb = 0.20
			a.Behavior = Similarity{Score: 0.60, ZPitch: 2, ZRate: -2}
			a.NSamples = 5
			a.Now = t0.Add(time.Hour)
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := passing()
			tt.edit(&a)
			ok, why := p.ShouldUpdate(a)
			assert.Equal(t, tt.want, why)
			assert.Equal(t, tt.want == "", ok)
		})
	}
}

func TestShouldUpdateSkipsBehaviorForEmptyProfile(t *testing.T) {
	p := DefaultPolicy()
	p.MinSamples = 0
	a := passing()
	a.NSamples = 0
	a.LastUpdate = time.Time{}
	a.Behavior = Similarity{}
	ok, why := p.ShouldUpdate(a)
	assert.True(t, ok, why)
}

func TestShouldBootstrap(t *testing.T) {
	p := DefaultPolicy()
	a := passing()
	a.NSamples = 0
	a.Behavior = Similarity{}
	ok, _ := p.ShouldBootstrap(a)
	assert.True(t, ok)

	a.IsRetry = true
	ok, why := p.ShouldBootstrap(a)
	assert.False(t, ok)
	assert.Equal(t, RefusedRetry, why)
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	bad := DefaultPolicy()
	bad.MaxSpoofProb = 1.5
	bad.MaxZScore = 0
	bad.MinUpdateInterval = -time.Second
	err := bad.Validate()
	assert.ErrorContains(t, err, "max_spoof_prob")
	assert.ErrorContains(t, err, "max_zscore")
	assert.ErrorContains(t, err, "min_update_interval")
}

func TestPropertyRetryNeverUpdates(t *testing.T) {
	p := DefaultPolicy()
	decisions := []decision.Decision{decision.Verified, decision.Repeat, decision.Denied}
	rapid.Check(t, func(rt *rapid.T) {
		a := Attempt{
			Decision:     rapid.SampledFrom(decisions).Draw(rt, "decision"),
			SpeakerScore: rapid.Float64Range(0, 1).Draw(rt, "speaker"),
			SpoofProb:    rapid.Float64Range(0, 1).Draw(rt, "spoof"),
			Behavior: Similarity{
				Score:  rapid.Float64Range(0, 1).Draw(rt, "behavior"),
				ZPitch: rapid.Float64Range(-5, 5).Draw(rt, "zPitch"),
				ZRate:  rapid.Float64Range(-5, 5).Draw(rt, "zRate"),
			},
			NSamples: rapid.Uint64Range(0, 1000).Draw(rt, "n"),
			IsRetry:  true,
			Now:      t0,
		}
		if rapid.Bool().Draw(rt, "hasLastUpdate") {
			a.LastUpdate = t0.Add(-time.Duration(rapid.IntRange(0, 100000).Draw(rt, "age")) * time.Second)
		}
		if ok, _ := p.ShouldUpdate(a); ok {
			rt.Fatalf("retry attempt allowed to update: %+v", a)
		}
		if ok, _ := p.ShouldBootstrap(a); ok {
			rt.Fatalf("retry attempt allowed to bootstrap: %+v", a)
		}
	})
}
