package session

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validShell(name string) bool {
	switch name {
	case "bash", "zsh", "fish":
		return true
	}
	return false
}

func TestUpdateThenGet(t *testing.T) {
	s := NewStore(nil, validShell)

	err := s.Update("sess1", Snapshot{Shell: "zsh", Cwd: "/tmp", Term: "xterm-256color"})
	require.NoError(t, err)

	snap := s.Get("sess1")
	assert.Equal(t, "zsh", snap.Shell)
	assert.Equal(t, "/tmp", snap.Cwd)
	assert.False(t, snap.UpdatedAt.IsZero())
}

func TestUpdateSupersedesPriorSnapshot(t *testing.T) {
	s := NewStore(nil, validShell)

	require.NoError(t, s.Update("sess1", Snapshot{Shell: "zsh", Cwd: "/home", GitBranch: "main"}))
	require.NoError(t, s.Update("sess1", Snapshot{Shell: "zsh", Cwd: "/tmp"}))

	snap := s.Get("sess1")
	assert.Equal(t, "/tmp", snap.Cwd)
	// Replaced, not merged: the branch from the first update is gone.
	assert.Empty(t, snap.GitBranch)
}

func TestUpdateMissingShellRejected(t *testing.T) {
	s := NewStore(nil, validShell)

	require.NoError(t, s.Update("sess1", Snapshot{Shell: "bash", Cwd: "/home"}))
	err := s.Update("sess1", Snapshot{Cwd: "/tmp"})
	assert.ErrorIs(t, err, ErrInvalidContext)

	// Session keeps the prior snapshot.
	assert.Equal(t, "/home", s.Get("sess1").Cwd)
}

func TestGetUnknownSessionReturnsZeroSnapshot(t *testing.T) {
	s := NewStore(nil, validShell)
	snap := s.Get("never-seen")
	assert.Equal(t, Snapshot{}, snap)
	assert.Equal(t, 0, s.Len())
}

func TestToggleGhost(t *testing.T) {
	s := NewStore(nil, validShell)

	assert.True(t, s.GhostEnabled("sess1"), "ghost defaults to on")
	assert.False(t, s.ToggleGhost("sess1"))
	assert.False(t, s.GhostEnabled("sess1"))
	assert.True(t, s.ToggleGhost("sess1"))
}

func TestSweepRemovesDeadSessions(t *testing.T) {
	s := NewStore(nil, validShell)

	require.NoError(t, s.Update("alive", Snapshot{Shell: "bash"}))
	s.Touch("alive", os.Getpid())

	require.NoError(t, s.Update("dead", Snapshot{Shell: "bash"}))
	// A PID far beyond pid_max on any reasonable test machine.
	s.Touch("dead", 1<<30)

	removed := s.Sweep(0)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "bash", s.Get("alive").Shell)
}

func TestSweepIdleSessionsWithoutPID(t *testing.T) {
	s := NewStore(nil, validShell)

	require.NoError(t, s.Update("idle", Snapshot{Shell: "fish"}))
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, s.Sweep(time.Hour), "fresh session stays")
	assert.Equal(t, 1, s.Sweep(time.Millisecond), "idle session swept")
}
