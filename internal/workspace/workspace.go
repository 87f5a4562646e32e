// Package workspace manages per-user scratch directories for compile and
// run artifacts. Access is serialized per user: Acquire blocks while
// another holder has the same user's workspace, so two overlapping grade
// calls can never overwrite each other's source mid-compile.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/rs/zerolog/log"
)

// userIDRe restricts user ids to path-safe characters before they are used
// as directory names.
var userIDRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Manager hands out mutex-guarded workspace handles keyed by user id.
type Manager struct {
	root  string
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a manager rooted at the given scratch directory.
func NewManager(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating scratch root: %w", err)
	}
	return &Manager{
		root:  root,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Acquire locks the named user's workspace and returns a handle to it,
// creating the directory if needed. The caller must Release the handle.
// Distinct users acquire in parallel; the same user serializes.
func (m *Manager) Acquire(userID string) (*Workspace, error) {
	if !userIDRe.MatchString(userID) {
		return nil, fmt.Errorf("invalid user id %q", userID)
	}

	m.mu.Lock()
	lock, ok := m.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[userID] = lock
	}
	m.mu.Unlock()

	lock.Lock()

	dir := filepath.Join(m.root, userID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("creating workspace for %s: %w", userID, err)
	}

	return &Workspace{userID: userID, dir: dir, lock: lock}, nil
}

// Wipe removes the named user's scratch directory. It acquires the user's
// lock first so an in-flight grade is never pulled out from under.
func (m *Manager) Wipe(userID string) error {
	ws, err := m.Acquire(userID)
	if err != nil {
		return err
	}
	defer ws.Release()

	if err := os.RemoveAll(ws.dir); err != nil {
		return fmt.Errorf("wiping workspace for %s: %w", userID, err)
	}
	log.Debug().Str("user_id", userID).Msg("workspace wiped")
	return nil
}

// Workspace is an exclusive handle on one user's scratch directory.
type Workspace struct {
	userID   string
	dir      string
	lock     *sync.Mutex
	released bool
}

// Dir returns the workspace directory path.
func (w *Workspace) Dir() string { return w.dir }

// UserID returns the owning user id.
func (w *Workspace) UserID() string { return w.userID }

// Path returns the absolute path of a file inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// WriteFile writes a file into the workspace.
func (w *Workspace) WriteFile(name, contents string) error {
	if err := os.WriteFile(w.Path(name), []byte(contents), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// Release unlocks the workspace. Safe to call once only.
func (w *Workspace) Release() {
	if w.released {
		return
	}
	w.released = true
	w.lock.Unlock()
}
