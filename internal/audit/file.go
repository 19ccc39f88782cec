package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"filesafe/internal/atomic"
)

// FileLog keeps events as JSON lines in a single file.
type FileLog struct {
	path string
	mu   sync.Mutex
}

func OpenFile(path string) (*FileLog, error) {
	if path == "" {
		return nil, fmt.Errorf("audit file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), atomic.DirPerm); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return &FileLog{path: path}, nil
}

func (l *FileLog) Store(_ context.Context, event Event) error {
	line, err := json.Marshal(&event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening audit file: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("appending event: %w", err)
	}
	return f.Close()
}

func (l *FileLog) Retrieve(_ context.Context, filter Filter) ([]Event, error) {
	l.mu.Lock()
	events, err := l.readAll()
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return selectEvents(events, filter), nil
}

func (l *FileLog) Count(_ context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	events, err := l.readAll()
	return len(events), err
}

func (l *FileLog) Delete(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readAll()
	if err != nil {
		return err
	}
	kept := events[:0]
	for _, e := range events {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(events) {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return l.rewrite(kept)
}

func (l *FileLog) Maintenance(_ context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readAll()
	if err != nil {
		return 0, err
	}
	kept := make([]Event, 0, len(events))
	for _, e := range events {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(events) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	return removed, l.rewrite(kept)
}

func (l *FileLog) Close() error {
	return nil
}

func (l *FileLog) readAll() ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("opening audit file: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", l.path, lineNo, err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading audit file: %w", err)
	}
	return events, nil
}

// rewrite replaces the file with events, atomically.
func (l *FileLog) rewrite(events []Event) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return fmt.Errorf("encoding event: %w", err)
		}
	}
	return atomic.WriteFile(l.path, buf.Bytes(), 0600)
}
