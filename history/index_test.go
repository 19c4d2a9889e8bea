package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex() *Index {
	return NewIndex(168*time.Hour, 1000, nil)
}

func TestQueryRanksByFrequency(t *testing.T) {
	idx := newTestIndex()

	now := time.Now()
	for i := 0; i < 10; i++ {
		idx.Add(Record{Command: "git status", Timestamp: now})
	}
	for i := 0; i < 2; i++ {
		idx.Add(Record{Command: "git stash", Timestamp: now})
	}

	entries := idx.Query("git s", 10)
	require.Len(t, entries, 2)
	assert.Equal(t, "git status", entries[0].Command)
	assert.Equal(t, "git stash", entries[1].Command)
	assert.Equal(t, 10, entries[0].Count)
}

func TestQueryRecencyDecay(t *testing.T) {
	idx := NewIndex(time.Hour, 1000, nil)

	// Heavily used long ago vs. lightly used just now. With a one-hour
	// half-life, ten uses from a week ago decay to effectively nothing.
	idx.Add(Record{Command: "cargo build", Timestamp: time.Now().Add(-168 * time.Hour)})
	for i := 0; i < 9; i++ {
		idx.Add(Record{Command: "cargo build", Timestamp: time.Now().Add(-168 * time.Hour)})
	}
	idx.Add(Record{Command: "cargo check", Timestamp: time.Now()})

	entries := idx.Query("cargo", 10)
	require.Len(t, entries, 2)
	assert.Equal(t, "cargo check", entries[0].Command)
}

func TestQueryTieBreaksAreDeterministic(t *testing.T) {
	idx := newTestIndex()
	ts := time.Now()
	idx.Add(Record{Command: "go vet", Timestamp: ts})
	idx.Add(Record{Command: "go version", Timestamp: ts})

	// Same count, same timestamp: lexicographic order decides.
	for i := 0; i < 5; i++ {
		entries := idx.Query("go v", 10)
		require.Len(t, entries, 2)
		assert.Equal(t, "go version", entries[0].Command)
		assert.Equal(t, "go vet", entries[1].Command)
	}
}

func TestQueryTrailingSpaceMeansNextWord(t *testing.T) {
	idx := newTestIndex()
	idx.Add(Record{Command: "git status", Timestamp: time.Now()})
	idx.Add(Record{Command: "gitk", Timestamp: time.Now()})

	entries := idx.Query("git ", 10)
	require.Len(t, entries, 1)
	assert.Equal(t, "git status", entries[0].Command)
}

func TestQueryEmptyPrefixRanksEverything(t *testing.T) {
	idx := newTestIndex()
	idx.Add(Record{Command: "ls", Timestamp: time.Now()})
	idx.Add(Record{Command: "ls", Timestamp: time.Now()})
	idx.Add(Record{Command: "pwd", Timestamp: time.Now()})

	entries := idx.Query("", 10)
	require.Len(t, entries, 2)
	assert.Equal(t, "ls", entries[0].Command)
}

func TestQueryLimit(t *testing.T) {
	idx := newTestIndex()
	idx.Add(Record{Command: "a", Timestamp: time.Now()})
	idx.Add(Record{Command: "b", Timestamp: time.Now()})
	idx.Add(Record{Command: "c", Timestamp: time.Now()})

	assert.Len(t, idx.Query("", 2), 2)
	assert.Nil(t, idx.Query("", 0))
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	idx := newTestIndex()
	idx.Add(Record{Command: "  git   status  ", Timestamp: time.Now()})
	idx.Add(Record{Command: "git status", Timestamp: time.Now()})

	entries := idx.Query("git", 10)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Count)
}

func TestRebuildMatchesIncrementalIndex(t *testing.T) {
	l, err := OpenLog(filepath.Join(t.TempDir(), "history.jsonl"), nil)
	require.NoError(t, err)
	defer l.Close()

	incremental := newTestIndex()
	cmds := []string{
		"git status", "git status", "git stash", "ls -la",
		"git status", "make test", "ls -la", "git push origin main",
	}
	base := time.Now().Add(-time.Hour)
	for i, cmd := range cmds {
		rec := Record{Command: cmd, Timestamp: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, l.Append(rec))
		incremental.Add(rec)
	}

	rebuilt := newTestIndex()
	require.NoError(t, rebuilt.Rebuild(l))

	want := incremental.Query("", 20)
	got := rebuilt.Query("", 20)
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].Command, got[i].Command, "position %d", i)
		assert.Equal(t, want[i].Count, got[i].Count)
	}
}

func TestEvictionKeepsHighScored(t *testing.T) {
	idx := NewIndex(168*time.Hour, 10, nil)

	stale := time.Now().Add(-100 * time.Hour)
	for i := 0; i < 20; i++ {
		idx.Add(Record{Command: "cmd-" + string(rune('a'+i)), Timestamp: stale})
	}
	for i := 0; i < 50; i++ {
		idx.Add(Record{Command: "git status", Timestamp: time.Now()})
	}

	assert.LessOrEqual(t, idx.Len(), 11)
	entries := idx.Query("git", 5)
	require.NotEmpty(t, entries, "hot command survives eviction")
	assert.Equal(t, "git status", entries[0].Command)
}

func TestClear(t *testing.T) {
	idx := newTestIndex()
	idx.Add(Record{Command: "ls", Timestamp: time.Now()})
	idx.Clear()
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.Query("", 10))
}
