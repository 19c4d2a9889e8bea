// Package session holds per-shell-session state: the latest context
// snapshot, the ghost-text toggle, and liveness bookkeeping.
package session

import (
	"errors"
	"os"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidContext is returned for malformed context updates.
// The session keeps its prior snapshot.
var ErrInvalidContext = errors.New("session: invalid context update")

// Snapshot is the shell state a prediction request runs against.
// It is replaced wholesale on every update; generators treat it as read-only.
type Snapshot struct {
	Shell     string
	Cwd       string
	Term      string
	GitBranch string
	UpdatedAt time.Time
}

type entry struct {
	snapshot Snapshot
	ghost    bool
	pid      int
	lastSeen time.Time
}

// Store maps session identifiers to their latest snapshot. Sessions are
// created lazily: operations on unknown sessions register them implicitly,
// which tolerates daemon restarts mid-shell-session.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	logger   *zap.Logger

	// validShell rejects snapshots with an unknown shell type.
	validShell func(string) bool
}

// NewStore creates an empty session store.
func NewStore(logger *zap.Logger, validShell func(string) bool) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		sessions:   make(map[string]*entry),
		logger:     logger,
		validShell: validShell,
	}
}

func (s *Store) get(sessionID string) *entry {
	e, ok := s.sessions[sessionID]
	if !ok {
		e = &entry{ghost: true, lastSeen: time.Now()}
		s.sessions[sessionID] = e
	}
	return e
}

// Update replaces the stored snapshot for the session. A snapshot without a
// recognized shell type is rejected with ErrInvalidContext and the prior
// snapshot is kept.
func (s *Store) Update(sessionID string, snap Snapshot) error {
	if sessionID == "" {
		return ErrInvalidContext
	}
	if s.validShell != nil && !s.validShell(snap.Shell) {
		return ErrInvalidContext
	}
	snap.UpdatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(sessionID)
	e.snapshot = snap
	e.lastSeen = snap.UpdatedAt
	return nil
}

// Get returns the latest snapshot for the session, or a zero-value snapshot
// when the session is unknown. Unknown sessions are not an error so clients
// can register lazily.
func (s *Store) Get(sessionID string) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.sessions[sessionID]; ok {
		return e.snapshot
	}
	return Snapshot{}
}

// Touch records the client PID for liveness checks and refreshes the
// session's last-seen time.
func (s *Store) Touch(sessionID string, pid int) {
	if sessionID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(sessionID)
	if pid > 0 {
		e.pid = pid
	}
	e.lastSeen = time.Now()
}

// ToggleGhost flips the session's ghost-text state and returns the new value.
// New sessions start with ghost text enabled.
func (s *Store) ToggleGhost(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(sessionID)
	e.ghost = !e.ghost
	return e.ghost
}

// GhostEnabled reports whether ghost text is enabled for the session.
func (s *Store) GhostEnabled(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.sessions[sessionID]; ok {
		return e.ghost
	}
	return true
}

// Len returns the number of registered sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Remove drops a session, e.g. when its connection closes for good.
func (s *Store) Remove(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Sweep removes sessions whose client process no longer exists and returns
// the number of sessions dropped. Sessions that never reported a PID are
// dropped once idle for maxIdle.
func (s *Store) Sweep(maxIdle time.Duration) int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		dead := false
		if e.pid > 0 {
			dead = !processAlive(e.pid)
		} else if maxIdle > 0 && now.Sub(e.lastSeen) > maxIdle {
			dead = true
		}
		if dead {
			delete(s.sessions, id)
			removed++
			s.logger.Debug("swept dead session",
				zap.String("session", id), zap.Int("pid", e.pid))
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until stop is closed.
func (s *Store) StartSweeper(interval, maxIdle time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Sweep(maxIdle)
		}
	}
}

// processAlive checks PID existence with a null signal. EPERM still means
// the process exists.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
