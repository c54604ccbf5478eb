package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sentinelops/arbiter/types"
)

// Trail provides the append-only audit log of state transitions.
// Entries are line-delimited JSON; files are never rewritten, so the
// sequence of entries for an action id is its complete ordered history.
type Trail struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	sequence int64
	dir      string
}

// Open creates or opens an audit trail in the specified directory
func Open(dir string) (*Trail, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	// Timestamp in filename supports rotation and retention
	filename := fmt.Sprintf("arbiter-%s.audit", time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644) // #nosec G304 -- path built from configured dir
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}

	t := &Trail{
		file:   file,
		writer: bufio.NewWriter(file),
		dir:    dir,
	}

	t.sequence = lastSequenceInDir(dir)

	return t, nil
}

// Close flushes and closes the trail
func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.writer.Flush(); err != nil {
		return err
	}
	return t.file.Close()
}

// Append records a state transition. The entry's sequence number is
// assigned here; callers fill in the transition fields.
func (t *Trail) Append(actionID string, prev, next types.ActionStatus, actor, details string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sequence++

	entry := types.AuditEntry{
		Sequence:       t.sequence,
		ActionID:       actionID,
		PreviousStatus: prev,
		NewStatus:      next,
		Actor:          actor,
		Timestamp:      time.Now().UTC(),
		Details:        details,
	}

	return t.writeEntry(entry)
}

// writeEntry writes a single entry and syncs for durability
func (t *Trail) writeEntry(entry types.AuditEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := t.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}

	if _, err := t.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	return t.file.Sync()
}

// History returns all entries for a single action id, in append order
func (t *Trail) History(actionID string) ([]types.AuditEntry, error) {
	var entries []types.AuditEntry

	err := Replay(t.dir, time.Time{}, func(e *types.AuditEntry) error {
		if e.ActionID == actionID {
			entries = append(entries, *e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// CountFor returns the number of transitions recorded for an action id
func (t *Trail) CountFor(actionID string) (int, error) {
	entries, err := t.History(actionID)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// lastSequenceInDir scans existing audit files for the highest sequence,
// so reopening a directory continues the sequence instead of restarting it.
func lastSequenceInDir(dir string) int64 {
	var maxSeq int64

	_ = Replay(dir, time.Time{}, func(e *types.AuditEntry) error {
		if e.Sequence > maxSeq {
			maxSeq = e.Sequence
		}
		return nil
	})

	return maxSeq
}

// Reader replays a single audit file
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewReader creates an audit reader for the specified file
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path) // #nosec G304 -- path comes from directory glob
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}

	return &Reader{
		scanner: bufio.NewScanner(file),
		file:    file,
	}, nil
}

// Next reads the next entry from the file
func (r *Reader) Next() (*types.AuditEntry, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var entry types.AuditEntry
	if err := json.Unmarshal(r.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}

	return &entry, nil
}

// Close closes the reader
func (r *Reader) Close() error {
	return r.file.Close()
}

// Replay walks all audit files in a directory, calling handler for every
// entry after the given time. Current state is a fold over this stream.
func Replay(dir string, since time.Time, handler func(*types.AuditEntry) error) error {
	files, err := filepath.Glob(filepath.Join(dir, "arbiter-*.audit"))
	if err != nil {
		return fmt.Errorf("failed to list audit files: %w", err)
	}

	for _, file := range files {
		if err := replayFile(file, since, handler); err != nil {
			return err
		}
	}

	return nil
}

func replayFile(path string, since time.Time, handler func(*types.AuditEntry) error) error {
	reader, err := NewReader(path)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	for {
		entry, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		if entry.Timestamp.After(since) {
			if err := handler(entry); err != nil {
				return err
			}
		}
	}

	return nil
}
