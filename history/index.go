package history

import (
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Entry is one ranked historical completion returned by Query.
type Entry struct {
	Command  string
	Count    int
	LastUsed time.Time
	// Score is frequency weighted by recency decay, computed at query time.
	Score float64
}

type stat struct {
	count    int
	lastUsed time.Time
}

type indexSnapshot struct {
	commands map[string]stat
}

// Index maps normalized commands to frequency/recency statistics. Writers
// are serialized behind a single lock; readers work off an immutable
// snapshot swapped in after every update, so queries never block appends.
type Index struct {
	halfLife time.Duration
	maxItems int
	logger   *zap.Logger

	mu   sync.Mutex
	snap atomic.Pointer[indexSnapshot]
}

// NewIndex creates an empty index. halfLife controls recency decay; the
// index keeps at most maxItems distinct commands (lowest-scored evicted).
func NewIndex(halfLife time.Duration, maxItems int, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	if halfLife <= 0 {
		halfLife = 168 * time.Hour
	}
	if maxItems <= 0 {
		maxItems = 1000
	}
	idx := &Index{halfLife: halfLife, maxItems: maxItems, logger: logger}
	idx.snap.Store(&indexSnapshot{commands: make(map[string]stat)})
	return idx
}

// Normalize collapses whitespace runs and trims the command text. Records
// and query prefixes go through the same normalization so lookups line up.
func Normalize(cmd string) string {
	return strings.Join(strings.Fields(cmd), " ")
}

// normalizeQuery collapses whitespace but keeps a single trailing space so
// "git " still means "complete the next word of git".
func normalizeQuery(prefix string) string {
	norm := Normalize(prefix)
	if norm != "" && strings.HasSuffix(prefix, " ") {
		norm += " "
	}
	return norm
}

// Add records one executed command, updating frequency and recency.
func (idx *Index) Add(rec Record) {
	cmd := Normalize(rec.Command)
	if cmd == "" {
		return
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur := idx.snap.Load()
	next := make(map[string]stat, len(cur.commands)+1)
	for k, v := range cur.commands {
		next[k] = v
	}

	st := next[cmd]
	st.count++
	if ts.After(st.lastUsed) {
		st.lastUsed = ts
	}
	next[cmd] = st

	if len(next) > idx.maxItems {
		idx.evict(next)
	}
	idx.snap.Store(&indexSnapshot{commands: next})
}

// evict drops the lowest-scored tenth of entries once the cap is exceeded.
func (idx *Index) evict(commands map[string]stat) {
	type scored struct {
		cmd   string
		score float64
	}
	now := time.Now()
	all := make([]scored, 0, len(commands))
	for cmd, st := range commands {
		all = append(all, scored{cmd, idx.score(st, now)})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score < all[j].score })

	drop := len(commands) / 10
	if drop < 1 {
		drop = 1
	}
	for _, s := range all[:drop] {
		delete(commands, s.cmd)
	}
	idx.logger.Debug("evicted low-scored history entries", zap.Int("dropped", drop))
}

// score is frequency weighted by exponential recency decay:
// count * 0.5^(elapsed/halfLife).
func (idx *Index) score(st stat, now time.Time) float64 {
	elapsed := now.Sub(st.lastUsed)
	if elapsed < 0 {
		elapsed = 0
	}
	return float64(st.count) * math.Exp2(-float64(elapsed)/float64(idx.halfLife))
}

// Query returns up to limit entries whose command starts with prefix, ranked
// by descending score. Ties break by most-recent use, then lexicographic
// order for determinism. An empty prefix ranks the whole index.
func (idx *Index) Query(prefix string, limit int) []Entry {
	if limit <= 0 {
		return nil
	}
	norm := normalizeQuery(prefix)
	now := time.Now()

	snap := idx.snap.Load()
	var entries []Entry
	for cmd, st := range snap.commands {
		if norm != "" && !strings.HasPrefix(cmd, norm) {
			continue
		}
		entries = append(entries, Entry{
			Command:  cmd,
			Count:    st.count,
			LastUsed: st.lastUsed,
			Score:    idx.score(st, now),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.LastUsed.Equal(b.LastUsed) {
			return a.LastUsed.After(b.LastUsed)
		}
		return a.Command < b.Command
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// Len returns the number of distinct commands in the index.
func (idx *Index) Len() int {
	return len(idx.snap.Load().commands)
}

// Rebuild reconstructs the index from the durable log, replacing the
// current snapshot. The log is the source of truth.
func (idx *Index) Rebuild(l *Log) error {
	fresh := make(map[string]stat)
	err := l.Replay(func(rec Record) {
		cmd := Normalize(rec.Command)
		if cmd == "" {
			return
		}
		st := fresh[cmd]
		st.count++
		if rec.Timestamp.After(st.lastUsed) {
			st.lastUsed = rec.Timestamp
		}
		fresh[cmd] = st
	})
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if len(fresh) > idx.maxItems {
		idx.evict(fresh)
	}
	idx.snap.Store(&indexSnapshot{commands: fresh})
	idx.logger.Info("learning index rebuilt", zap.Int("commands", len(fresh)))
	return nil
}

// Clear empties the index, e.g. after a learning reset.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.snap.Store(&indexSnapshot{commands: make(map[string]stat)})
}
