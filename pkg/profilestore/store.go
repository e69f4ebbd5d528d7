// Package profilestore persists speaker enrollments, behavior profiles and
// per-user decision statistics on a key-value backend.
//
// Key layout:
//
//	vt:enr:{user}:{label} → msgpack speaker.Enrollment
//	vt:bp:{user}:{label}  → msgpack behavior.Profile
//	vt:us:{user}          → msgpack decision.UserStats
//
// Reads return consistent snapshots. The Store does not serialize
// read-modify-write cycles on behavior profiles; callers hold their own
// per-(user, label) exclusion around load, gate and save.
package profilestore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AIINA17/Livekit-Biometric/pkg/behavior"
	"github.com/AIINA17/Livekit-Biometric/pkg/decision"
	"github.com/AIINA17/Livekit-Biometric/pkg/speaker"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("profilestore: not found")

	// ErrTooManyEnrollments is returned when a user already holds
	// speaker.MaxEnrollments enrollments.
	ErrTooManyEnrollments = errors.New("profilestore: too many enrollments")

	// ErrDuplicateLabel is returned when adding an enrollment whose label
	// the user already uses.
	ErrDuplicateLabel = errors.New("profilestore: duplicate enrollment label")
)

const (
	root         = "vt"
	enrollments  = "enr"
	profiles     = "bp"
	userStatsSeg = "us"
)

func enrollmentKey(user, label string) Key { return Key{root, enrollments, user, label} }
func enrollmentPrefix(user string) Key     { return Key{root, enrollments, user} }
func profileKey(user, label string) Key    { return Key{root, profiles, user, label} }
func profilePrefix(user string) Key        { return Key{root, profiles, user} }
func userStatsKey(user string) Key         { return Key{root, userStatsSeg, user} }

// Store is the typed record layer over a Backend.
type Store struct {
	backend Backend

	// enrollMu makes the enrollment-count check and insert atomic.
	enrollMu sync.Mutex
}

// New returns a Store over backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Close closes the backend.
func (s *Store) Close() error { return s.backend.Close() }

// AddEnrollment stores e. It fails with ErrTooManyEnrollments when the
// user already has speaker.MaxEnrollments enrollments and with
// ErrDuplicateLabel when the label is taken.
func (s *Store) AddEnrollment(ctx context.Context, e speaker.Enrollment) error {
	if err := checkUserLabel(e.UserID, e.Label); err != nil {
		return err
	}
	if len(e.Embedding) == 0 {
		return errors.New("profilestore: enrollment has no embedding")
	}
	data, err := msgpack.Marshal(&e)
	if err != nil {
		return fmt.Errorf("profilestore: marshal enrollment: %w", err)
	}

	s.enrollMu.Lock()
	defer s.enrollMu.Unlock()

	existing, err := s.Enrollments(ctx, e.UserID)
	if err != nil {
		return err
	}
	for _, x := range existing {
		if x.Label == e.Label {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateLabel, e.UserID, e.Label)
		}
	}
	if len(existing) >= speaker.MaxEnrollments {
		return fmt.Errorf("%w: %s has %d", ErrTooManyEnrollments, e.UserID, len(existing))
	}
	return s.backend.Set(ctx, enrollmentKey(e.UserID, e.Label), data)
}

// Enrollments returns the user's enrollments ordered by label. A user
// without enrollments yields an empty slice and no error.
func (s *Store) Enrollments(ctx context.Context, user string) ([]speaker.Enrollment, error) {
	if err := checkSegment("user", user); err != nil {
		return nil, err
	}
	var out []speaker.Enrollment
	for rec, err := range s.backend.Scan(ctx, enrollmentPrefix(user)) {
		if err != nil {
			return nil, fmt.Errorf("profilestore: scan enrollments: %w", err)
		}
		var e speaker.Enrollment
		if err := msgpack.Unmarshal(rec.Value, &e); err != nil {
			return nil, fmt.Errorf("profilestore: decode enrollment %s: %w", rec.Key, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// DeleteEnrollment removes an enrollment together with its behavior
// profile.
func (s *Store) DeleteEnrollment(ctx context.Context, user, label string) error {
	if err := checkUserLabel(user, label); err != nil {
		return err
	}
	s.enrollMu.Lock()
	defer s.enrollMu.Unlock()
	return s.backend.Delete(ctx, enrollmentKey(user, label), profileKey(user, label))
}

// Users returns every user with at least one enrollment, in order.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	var users []string
	for rec, err := range s.backend.Scan(ctx, Key{root, enrollments}) {
		if err != nil {
			return nil, fmt.Errorf("profilestore: scan users: %w", err)
		}
		if len(rec.Key) != 4 {
			continue
		}
		if u := rec.Key[2]; len(users) == 0 || users[len(users)-1] != u {
			users = append(users, u)
		}
	}
	return users, nil
}

// BehaviorProfile loads the profile for (user, label). It returns
// ErrNotFound when none has been created.
func (s *Store) BehaviorProfile(ctx context.Context, user, label string) (*behavior.Profile, error) {
	if err := checkUserLabel(user, label); err != nil {
		return nil, err
	}
	data, err := s.backend.Get(ctx, profileKey(user, label))
	if err != nil {
		return nil, err
	}
	var p behavior.Profile
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("profilestore: decode behavior profile: %w", err)
	}
	return &p, nil
}

// SaveBehaviorProfile stores p under (p.UserID, p.Label).
func (s *Store) SaveBehaviorProfile(ctx context.Context, p *behavior.Profile) error {
	if err := checkUserLabel(p.UserID, p.Label); err != nil {
		return err
	}
	data, err := msgpack.Marshal(p)
	if err != nil {
		return fmt.Errorf("profilestore: marshal behavior profile: %w", err)
	}
	return s.backend.Set(ctx, profileKey(p.UserID, p.Label), data)
}

// BehaviorProfiles returns all profiles of a user ordered by label.
func (s *Store) BehaviorProfiles(ctx context.Context, user string) ([]*behavior.Profile, error) {
	if err := checkSegment("user", user); err != nil {
		return nil, err
	}
	var out []*behavior.Profile
	for rec, err := range s.backend.Scan(ctx, profilePrefix(user)) {
		if err != nil {
			return nil, fmt.Errorf("profilestore: scan behavior profiles: %w", err)
		}
		var p behavior.Profile
		if err := msgpack.Unmarshal(rec.Value, &p); err != nil {
			return nil, fmt.Errorf("profilestore: decode behavior profile %s: %w", rec.Key, err)
		}
		out = append(out, &p)
	}
	return out, nil
}

// UserStats loads the user's decision statistics. It returns ErrNotFound
// for users without verified history.
func (s *Store) UserStats(ctx context.Context, user string) (*decision.UserStats, error) {
	if err := checkSegment("user", user); err != nil {
		return nil, err
	}
	data, err := s.backend.Get(ctx, userStatsKey(user))
	if err != nil {
		return nil, err
	}
	var st decision.UserStats
	if err := msgpack.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("profilestore: decode user stats: %w", err)
	}
	return &st, nil
}

// SaveUserStats stores the user's decision statistics.
func (s *Store) SaveUserStats(ctx context.Context, user string, st *decision.UserStats) error {
	if err := checkSegment("user", user); err != nil {
		return err
	}
	data, err := msgpack.Marshal(st)
	if err != nil {
		return fmt.Errorf("profilestore: marshal user stats: %w", err)
	}
	return s.backend.Set(ctx, userStatsKey(user), data)
}

func checkUserLabel(user, label string) error {
	if err := checkSegment("user", user); err != nil {
		return err
	}
	return checkSegment("label", label)
}
