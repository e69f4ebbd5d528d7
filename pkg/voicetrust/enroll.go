package voicetrust

import (
	"context"
	"errors"
	"fmt"

	"github.com/AIINA17/Livekit-Biometric/pkg/audio/waveform"
	"github.com/AIINA17/Livekit-Biometric/pkg/behavior"
	"github.com/AIINA17/Livekit-Biometric/pkg/speaker"
)

// ErrNoUtterances is returned by Enroll without audio.
var ErrNoUtterances = errors.New("voicetrust: enrollment needs at least one utterance")

// Enroll creates the (user, label) enrollment from one or more utterances.
// The embedding is the normalized mean of the utterance embeddings and the
// stored prosody is taken from the longest voiced utterance. Every voiced
// utterance seeds the behavior profile unconditionally, so a profile
// enrolled with policy.min_samples utterances is ready for trusted updates.
func (v *Verifier) Enroll(ctx context.Context, user, label string, utterances ...waveform.Waveform) (speaker.Enrollment, error) {
	if user == "" || label == "" {
		return speaker.Enrollment{}, fmt.Errorf("%w: empty user or label", ErrInvalidRequest)
	}
	if len(utterances) == 0 {
		return speaker.Enrollment{}, ErrNoUtterances
	}

	now := v.now()
	mean := make([]float64, v.embedder.Dimension())
	e := speaker.Enrollment{UserID: user, Label: label, CreatedAt: now}
	var profile *behavior.Profile
	for i, w := range utterances {
		if !w.Finite() {
			return speaker.Enrollment{}, fmt.Errorf("voicetrust: utterance %d: non-finite samples", i)
		}
		emb, err := v.embedder.Embed(ctx, w)
		if err != nil {
			return speaker.Enrollment{}, fmt.Errorf("voicetrust: embed utterance %d: %w", i, err)
		}
		if len(emb) != len(mean) {
			return speaker.Enrollment{}, fmt.Errorf("voicetrust: utterance %d: %w", i, speaker.ErrDimensionMismatch)
		}
		for j, x := range speaker.Normalize(emb) {
			mean[j] += float64(x)
		}

		p, err := v.analyzer.Analyze(w)
		if err != nil {
			return speaker.Enrollment{}, fmt.Errorf("voicetrust: prosody utterance %d: %w", i, err)
		}
		if p.Pitch <= 0 || p.Rate <= 0 || !finite(p.Pitch, p.Rate) {
			v.logger.Debug("utterance has no usable prosody", "user", user, "label", label, "index", i)
			continue
		}
		if len(p.Contour) > len(e.Contour) {
			e.Contour, e.Rate = p.Contour, p.Rate
		}
		if profile == nil {
			profile = behavior.NewProfile(user, label, p.Pitch, p.Rate, now)
		} else {
			profile.Update(p.Pitch, p.Rate, now)
		}
	}
	e.Embedding = make([]float32, len(mean))
	for j, x := range mean {
		e.Embedding[j] = float32(x / float64(len(utterances)))
	}
	speaker.Normalize(e.Embedding)

	unlock := v.locks.Lock(profileLockKey(user, label))
	defer unlock()
	if err := v.store.AddEnrollment(ctx, e); err != nil {
		return speaker.Enrollment{}, fmt.Errorf("voicetrust: add enrollment: %w", err)
	}
	if profile != nil {
		if err := v.store.SaveBehaviorProfile(ctx, profile); err != nil {
			return speaker.Enrollment{}, fmt.Errorf("voicetrust: save behavior profile: %w", err)
		}
	}
	v.logger.Info("enrolled", "user", user, "label", label,
		"utterances", len(utterances), "profile_samples", profileSamples(profile))
	return e, nil
}

// Unenroll removes the (user, label) enrollment and its behavior profile.
func (v *Verifier) Unenroll(ctx context.Context, user, label string) error {
	unlock := v.locks.Lock(profileLockKey(user, label))
	defer unlock()
	if err := v.store.DeleteEnrollment(ctx, user, label); err != nil {
		return fmt.Errorf("voicetrust: delete enrollment: %w", err)
	}
	v.logger.Info("unenrolled", "user", user, "label", label)
	return nil
}

func profileSamples(p *behavior.Profile) uint64 {
	if p == nil {
		return 0
	}
	return p.NSamples
}
