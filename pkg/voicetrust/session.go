package voicetrust

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AIINA17/Livekit-Biometric/pkg/audio/waveform"
	"github.com/AIINA17/Livekit-Biometric/pkg/decision"
)

// State is the verification state of a live session.
type State int

const (
	Unverified State = iota
	Verifying
	StateVerified
	StateRepeat
	StateDenied
)

func (s State) String() string {
	switch s {
	case Unverified:
		return "UNVERIFIED"
	case Verifying:
		return "VERIFYING"
	case StateVerified:
		return "VERIFIED"
	case StateRepeat:
		return "REPEAT"
	case StateDenied:
		return "DENIED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func stateOf(d decision.Decision) State {
	switch d {
	case decision.Verified:
		return StateVerified
	case decision.Repeat:
		return StateRepeat
	default:
		return StateDenied
	}
}

// ErrSessionBusy is returned when Verify is called on a session whose
// previous attempt has not finished.
var ErrSessionBusy = errors.New("voicetrust: verification already in progress")

// Session tracks the verification state of one live voice session:
//
//	Unverified → Verifying → {Verified, Repeat, Denied} → Verifying → ...
//
// An attempt that follows a Repeat or Denied outcome in the same session is
// a retry and is never learned from.
type Session struct {
	v    *Verifier
	user string

	mu       sync.Mutex
	state    State
	last     *Result
	attempts int
}

// NewSession starts an Unverified session for user.
func (v *Verifier) NewSession(user string) *Session {
	return &Session{v: v, user: user}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Last returns the most recent completed result, or nil.
func (s *Session) Last() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Attempts returns the number of completed attempts.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Verify runs one attempt for the session's user. On error the session
// returns to its previous state.
func (s *Session) Verify(ctx context.Context, audio waveform.Waveform) (*Result, error) {
	s.mu.Lock()
	if s.state == Verifying {
		s.mu.Unlock()
		return nil, ErrSessionBusy
	}
	prev := s.state
	retry := prev == StateRepeat || prev == StateDenied
	s.state = Verifying
	s.mu.Unlock()

	res, err := s.v.Verify(ctx, Request{UserID: s.user, Audio: audio, IsRetry: retry})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = prev
		return nil, err
	}
	s.state = stateOf(res.Decision)
	s.last = res
	s.attempts++
	return res, nil
}
