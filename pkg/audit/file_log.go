package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// FileLog appends events to a local JSONL file, one complete record per
// write call. The file is opened O_APPEND so concurrent invocations from
// other processes interleave whole records rather than tearing them; no
// cross-process ordering is promised, only record integrity.
type FileLog struct {
	mu       sync.Mutex
	f        *os.File
	clock    Clock
	prevHash string
}

// OpenFile opens (or creates) the audit log at path and recovers the chain
// head from the last record. A log whose tail cannot be parsed fails the
// open: continuing on top of a corrupt trail would hide the corruption.
func OpenFile(path string, clock Clock) (*FileLog, error) {
	if clock == nil {
		clock = time.Now
	}

	prev, err := tailHash(path)
	if err != nil {
		return nil, fmt.Errorf("audit: recover chain head: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &FileLog{f: f, clock: clock, prevHash: prev}, nil
}

// Append implements Log. The record is written with a single Write call.
func (l *FileLog) Append(_ context.Context, typ EventType, actor string, details map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, err := newEvent(l.clock, typ, actor, details, l.prevHash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if _, err := l.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	l.prevHash = e.Hash
	return nil
}

// Close releases the underlying file handle.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// tailHash returns the hash of the last record in the file, or "" for a
// missing or empty file.
func tailHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	var last string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			last = line
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	if last == "" {
		return "", nil
	}

	var e Event
	if err := json.Unmarshal([]byte(last), &e); err != nil {
		return "", fmt.Errorf("unparseable tail record: %w", err)
	}
	return e.Hash, nil
}

// VerifyFile recomputes the hash chain of the log at path and reports the
// first break, if any.
func VerifyFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer f.Close()

	prev := ""
	idx := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return fmt.Errorf("audit: record %d unparseable: %w", idx, err)
		}
		if e.PreviousHash != prev {
			return fmt.Errorf("audit: chain broken at record %d: previous hash mismatch", idx)
		}
		computed, err := eventHash(e)
		if err != nil {
			return fmt.Errorf("audit: record %d hash recompute: %w", idx, err)
		}
		if computed != e.Hash {
			return fmt.Errorf("audit: record %d content tampered (computed %s, stored %s)", idx, computed, e.Hash)
		}
		prev = e.Hash
		idx++
	}
	return scanner.Err()
}
