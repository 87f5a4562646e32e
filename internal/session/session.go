// Package session tracks one mutable exam session per user and validates
// every execution request against it.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Sentinel errors for typed error checking.
var (
	ErrNotFound     = errors.New("session not found")
	ErrExpired      = errors.New("session time budget exhausted")
	ErrDisqualified = errors.New("session disqualified")
	ErrCompleted    = errors.New("session already completed")
)

// Mode distinguishes an untimed practice session from a timed exam.
type Mode string

const (
	ModePractice Mode = "practice"
	ModeTimed    Mode = "timed"
)

// ParseMode validates a mode string from the wire.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePractice, ModeTimed:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown session mode %q", s)
}

// Session is one user's mutable exam record. Disqualified and Completed are
// monotonic and mutually exclusive terminals; StartTime and TimeBudget are
// write-once so a mode switch never restarts a running clock.
type Session struct {
	Mode         Mode
	Disqualified bool
	Completed    bool
	StartTime    time.Time     // zero until the timed clock starts
	TimeBudget   time.Duration // zero until the timed clock starts
}

// Snapshot is a read-only view of a session for the state endpoint.
type Snapshot struct {
	Mode             Mode
	Disqualified     bool
	Completed        bool
	RemainingSeconds *int64 // nil for practice sessions
}

// Recorder receives terminal session transitions for the audit trail.
// Recording is best-effort: failures are logged, never load-bearing.
type Recorder interface {
	RecordEvent(userID, event string) error
}

// Store owns all session records. It is created once at process start and
// injected into the judge and the API layer; entries are never evicted.
// TODO: an eviction or TTL policy is needed before multi-tenant production use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	recorder Recorder
	now      func() time.Time
}

// NewStore creates an empty session store. recorder may be nil.
func NewStore(recorder Recorder) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		recorder: recorder,
		now:      time.Now,
	}
}

// Login creates the user's session, or revalidates an existing one. An
// existing record keeps its terminal flags and its running clock; logging
// in again never resets either.
func (s *Store) Login(userID string, mode Mode, budget time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		sess = &Session{Mode: ModePractice}
		s.sessions[userID] = sess
		log.Info().Str("user_id", userID).Str("mode", string(mode)).Msg("session created")
	}

	if mode == ModeTimed {
		s.startClockLocked(sess, budget)
	}
}

// SwitchToTimed moves a practice session to timed mode. Idempotent: an
// already-timed session keeps its original clock and budget.
func (s *Store) SwitchToTimed(userID string, budget time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return ErrNotFound
	}
	s.startClockLocked(sess, budget)
	return nil
}

// startClockLocked sets mode to timed and starts the clock only if it has
// not been started before.
func (s *Store) startClockLocked(sess *Session, budget time.Duration) {
	sess.Mode = ModeTimed
	if sess.StartTime.IsZero() {
		sess.StartTime = s.now()
		sess.TimeBudget = budget
	}
}

// Validate is called once at the entry of every execution request. A
// terminal session rejects immediately without recomputing elapsed time; a
// timed session past its budget flips to disqualified and rejects.
func (s *Store) Validate(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return ErrNotFound
	}
	if sess.Disqualified {
		return ErrDisqualified
	}
	if sess.Completed {
		return ErrCompleted
	}
	if sess.Mode == ModeTimed && sess.TimeBudget > 0 {
		if s.now().Sub(sess.StartTime) >= sess.TimeBudget {
			s.disqualifyLocked(userID, sess, "time budget exhausted")
			return ErrExpired
		}
	}
	return nil
}

// Disqualify marks the session disqualified, e.g. on a client-reported rule
// violation. Irreversible; a completed session stays completed.
func (s *Store) Disqualify(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return ErrNotFound
	}
	if sess.Completed {
		return ErrCompleted
	}
	if !sess.Disqualified {
		s.disqualifyLocked(userID, sess, "rule violation reported")
	}
	return nil
}

// MarkCompleted transitions a timed session to completed after a full
// graded submission. Only the judge calls this.
func (s *Store) MarkCompleted(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return ErrNotFound
	}
	if sess.Disqualified {
		return ErrDisqualified
	}
	if !sess.Completed {
		sess.Completed = true
		s.record(userID, "completed: graded submission accepted")
		log.Info().Str("user_id", userID).Msg("session completed")
	}
	return nil
}

// Mode returns the session's current mode without side effects.
func (s *Store) Mode(userID string) (Mode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return "", ErrNotFound
	}
	return sess.Mode, nil
}

// State returns a read snapshot. Crossing the budget during the read
// disqualifies as a side effect, so a polling client observes expiry.
func (s *Store) State(userID string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}

	snap := &Snapshot{
		Mode:         sess.Mode,
		Disqualified: sess.Disqualified,
		Completed:    sess.Completed,
	}

	if sess.Mode == ModeTimed && sess.TimeBudget > 0 && !sess.Disqualified && !sess.Completed {
		remaining := sess.TimeBudget - s.now().Sub(sess.StartTime)
		if remaining <= 0 {
			s.disqualifyLocked(userID, sess, "time budget exhausted")
			snap.Disqualified = true
			zero := int64(0)
			snap.RemainingSeconds = &zero
		} else {
			secs := int64(remaining.Seconds())
			snap.RemainingSeconds = &secs
		}
	}

	return snap, nil
}

func (s *Store) disqualifyLocked(userID string, sess *Session, reason string) {
	sess.Disqualified = true
	s.record(userID, "disqualified: "+reason)
	log.Warn().Str("user_id", userID).Str("reason", reason).Msg("session disqualified")
}

func (s *Store) record(userID, event string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordEvent(userID, event); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("audit record failed")
	}
}
