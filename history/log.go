// Package history implements the durable command log and the learning
// index derived from it. The log is the source of truth; the index is a
// rebuildable cache.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio"
	"go.uber.org/zap"
)

// ErrPersistence indicates a durable-log write failure. The in-memory index
// is still updated; the record stays buffered and is retried on the next
// append or on graceful shutdown.
var ErrPersistence = errors.New("history: persistence failure")

// Record is one executed command. Records are append-only and immutable
// once written; only Reset truncates the whole log.
type Record struct {
	Command   string    `json:"command"`
	Cwd       string    `json:"cwd,omitempty"`
	Shell     string    `json:"shell,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is an append-only JSONL file, synced to disk before each append is
// acknowledged.
type Log struct {
	path   string
	logger *zap.Logger

	mu        sync.Mutex
	f         *os.File
	unflushed []Record
}

// OpenLog opens (creating if needed) the log at path.
func OpenLog(path string, logger *zap.Logger) (*Log, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return &Log{path: path, logger: logger, f: f}, nil
}

// Path returns the log file location.
func (l *Log) Path() string {
	return l.path
}

// Append writes the record to the durable log, fsyncing before returning.
// On failure the record is buffered and ErrPersistence is returned; buffered
// records are retried on the next Append or Flush.
func (l *Log) Append(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.unflushed = append(l.unflushed, rec)
	if err := l.flushLocked(); err != nil {
		l.logger.Warn("history log append failed; record buffered",
			zap.Int("unflushed", len(l.unflushed)), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// Flush retries any buffered records. Called on graceful shutdown.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.flushLocked(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// Unflushed returns the number of records awaiting a successful disk write.
func (l *Log) Unflushed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.unflushed)
}

func (l *Log) flushLocked() error {
	if l.f == nil {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return err
		}
		l.f = f
	}
	for len(l.unflushed) > 0 {
		data, err := json.Marshal(l.unflushed[0])
		if err != nil {
			// Unserializable records cannot ever succeed; drop with a log.
			l.logger.Error("dropping unserializable history record", zap.Error(err))
			l.unflushed = l.unflushed[1:]
			continue
		}
		if _, err := l.f.Write(append(data, '\n')); err != nil {
			l.f.Close()
			l.f = nil
			return err
		}
		l.unflushed = l.unflushed[1:]
	}
	if err := l.f.Sync(); err != nil {
		l.f.Close()
		l.f = nil
		return err
	}
	return nil
}

// Replay streams every record in the log, oldest first. Malformed lines are
// skipped rather than failing the whole replay.
func (l *Log) Replay(fn func(Record)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	skipped := 0
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			skipped++
			continue
		}
		fn(rec)
	}
	if skipped > 0 {
		l.logger.Warn("skipped malformed history lines", zap.Int("lines", skipped))
	}
	return scanner.Err()
}

// Reset truncates the log atomically and drops any buffered records.
// Irreversible; confirmation is the caller's responsibility.
func (l *Log) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f != nil {
		l.f.Close()
		l.f = nil
	}
	l.unflushed = nil

	// Atomic replace with an empty file so readers never observe a
	// partially truncated log.
	if err := renameio.WriteFile(l.path, nil, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	l.f = f
	return nil
}

// Close flushes buffered records and releases the file handle.
func (l *Log) Close() error {
	flushErr := l.Flush()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f != nil {
		l.f.Close()
		l.f = nil
	}
	return flushErr
}
