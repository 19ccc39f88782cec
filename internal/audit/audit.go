// Package audit records completed file operations for later inspection.
// Backends are chosen when the log is opened and share the Log interface.
package audit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"filesafe/shared/types"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var ErrEventNotFound = errors.New("audit event not found")

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Event is one recorded file operation.
type Event struct {
	ID            string               `json:"id"`
	Timestamp     time.Time            `json:"timestamp"`
	Kind          shared.OperationKind `json:"kind"`
	Path          string               `json:"path"`
	Digest        string               `json:"digest,omitempty"`
	BackupID      string               `json:"backup_id,omitempty"`
	TransactionID string               `json:"transaction_id,omitempty"`
	Size          int64                `json:"size"`
}

func (e *Event) GetID() string {
	return e.ID
}

// NewEvent describes a completed operation. txID is empty outside a transaction.
func NewEvent(op shared.FileOperation, txID string) Event {
	ts := op.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Event{
		ID:            uuid.New().String(),
		Timestamp:     ts.UTC(),
		Kind:          op.Kind,
		Path:          absPath(op.Path),
		Digest:        op.Digest,
		BackupID:      op.BackupID,
		TransactionID: txID,
		Size:          op.Size,
	}
}

// absPath makes p absolute so events match the paths backups are keyed by.
func absPath(p string) string {
	if p == "" {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Filter narrows Retrieve. Zero values match everything. A relative Path is
// resolved against the working directory.
type Filter struct {
	Path  string
	Since time.Time
	Limit int
}

func (f Filter) matches(e *Event) bool {
	if f.Path != "" && e.Path != f.Path {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Log stores audit events.
type Log interface {
	Store(ctx context.Context, event Event) error
	// Retrieve returns matching events, newest first.
	Retrieve(ctx context.Context, filter Filter) ([]Event, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, id string) error
	// Maintenance drops events older than olderThan and reports how many went.
	Maintenance(ctx context.Context, olderThan time.Duration) (int, error)
	Close() error
}

type Options struct {
	Backend string
	Path    string
	// DB is used by the badger backend. When nil, a database is opened at Path
	// (in memory if Path is empty) and closed with the Log.
	DB *badger.DB
}

// Open returns the Log for opts.Backend.
func Open(opts Options) (Log, error) {
	switch opts.Backend {
	case BackendFile:
		return OpenFile(opts.Path)
	case BackendSQLite:
		return OpenSQLite(opts.Path)
	case BackendBadger:
		if opts.DB != nil {
			return NewBadgerLog(opts.DB), nil
		}
		return OpenBadgerLog(opts.Path)
	}
	return nil, fmt.Errorf("unknown audit backend %q", opts.Backend)
}

// selectEvents filters events and orders them newest first.
func selectEvents(events []Event, filter Filter) []Event {
	filter.Path = absPath(filter.Path)
	out := make([]Event, 0, len(events))
	for i := range events {
		if filter.matches(&events[i]) {
			out = append(out, events[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}
