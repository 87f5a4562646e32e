// Package store persists judging outcomes: a per-user append-only audit
// log, a per-user JSON snapshot of the last graded submission, and an
// optional Postgres mirror of audit events.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"exam-judge/internal/judge"
)

var userIDRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// ValidUserID reports whether id is safe to use as a file name component.
func ValidUserID(id string) bool { return userIDRe.MatchString(id) }

// FileStore owns the durable result files under one directory.
// The judge only writes; reads happen through LoadResults.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	mirror *AuditWriter
}

// NewFileStore creates the results directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating results dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// SetMirror attaches an asynchronous Postgres mirror for audit events.
func (s *FileStore) SetMirror(w *AuditWriter) { s.mirror = w }

// RecordEvent appends one timestamped line to the user's audit log.
func (s *FileStore) RecordEvent(userID, event string) error {
	if !userIDRe.MatchString(userID) {
		return fmt.Errorf("invalid user id %q", userID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	line := fmt.Sprintf("%s %s\n", time.Now().UTC().Format(time.RFC3339), event)
	f, err := os.OpenFile(s.logPath(userID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("opening audit log for %s: %w", userID, err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("appending audit log for %s: %w", userID, err)
	}

	if s.mirror != nil {
		s.mirror.Log(&Event{UserID: userID, Detail: event, CreatedAt: time.Now().UTC()})
	}
	return nil
}

// SaveResults replaces the user's last-submission snapshot atomically and
// notes the submission in the audit trail.
func (s *FileStore) SaveResults(userID string, results []judge.TestCaseResult) error {
	if !userIDRe.MatchString(userID) {
		return fmt.Errorf("invalid user id %q", userID)
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results for %s: %w", userID, err)
	}

	s.mu.Lock()
	target := s.snapshotPath(userID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("writing results snapshot for %s: %w", userID, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("replacing results snapshot for %s: %w", userID, err)
	}
	s.mu.Unlock()

	passed := 0
	for _, r := range results {
		if r.Status == judge.StatusSuccess {
			passed++
		}
	}
	event := fmt.Sprintf("graded submission stored: %d/%d cases passed", passed, len(results))
	if err := s.RecordEvent(userID, event); err != nil {
		// The snapshot is the verdict of record; the audit line is best-effort.
		log.Error().Err(err).Str("user_id", userID).Msg("audit append failed")
	}
	return nil
}

// LoadResults returns the last graded submission's verdicts, or an empty
// slice when the user has never submitted.
func (s *FileStore) LoadResults(userID string) ([]judge.TestCaseResult, error) {
	if !userIDRe.MatchString(userID) {
		return nil, fmt.Errorf("invalid user id %q", userID)
	}

	s.mu.Lock()
	data, err := os.ReadFile(s.snapshotPath(userID))
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []judge.TestCaseResult{}, nil
		}
		return nil, fmt.Errorf("reading results snapshot for %s: %w", userID, err)
	}

	var results []judge.TestCaseResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decoding results snapshot for %s: %w", userID, err)
	}
	return results, nil
}

func (s *FileStore) logPath(userID string) string {
	return filepath.Join(s.dir, userID+".log")
}

func (s *FileStore) snapshotPath(userID string) string {
	return filepath.Join(s.dir, userID+".json")
}
