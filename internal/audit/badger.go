package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"filesafe/internal/storage"

	"github.com/dgraph-io/badger/v4"
)

// BadgerLog stores events as entities in a badger database.
type BadgerLog struct {
	store *storage.BadgerStore
	// owned is set when the log opened db itself and must close it.
	owned *badger.DB
}

// NewBadgerLog stores events in db under the "audit" prefix. The caller keeps
// ownership of db.
func NewBadgerLog(db *badger.DB) *BadgerLog {
	return &BadgerLog{store: storage.NewBadgerStore(db, "audit")}
}

// OpenBadgerLog opens a dedicated database at dir, in memory when dir is empty.
func OpenBadgerLog(dir string) (*BadgerLog, error) {
	db, err := storage.OpenBadger(dir)
	if err != nil {
		return nil, err
	}
	l := NewBadgerLog(db)
	l.owned = db
	return l, nil
}

func (l *BadgerLog) Store(_ context.Context, event Event) error {
	err := l.store.Create(&event)
	if errors.Is(err, storage.ErrExists) {
		return nil
	}
	return err
}

func (l *BadgerLog) Retrieve(_ context.Context, filter Filter) ([]Event, error) {
	events, err := l.all()
	if err != nil {
		return nil, err
	}
	return selectEvents(events, filter), nil
}

func (l *BadgerLog) Count(_ context.Context) (int, error) {
	ids, err := l.store.IDs()
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return len(ids), nil
}

func (l *BadgerLog) Delete(_ context.Context, id string) error {
	err := l.store.Delete(id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return err
}

func (l *BadgerLog) Maintenance(_ context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	events, err := l.all()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range events {
		if !e.Timestamp.Before(cutoff) {
			continue
		}
		if err := l.store.Delete(e.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return removed, fmt.Errorf("expire event %s: %w", e.ID, err)
		}
		removed++
	}
	return removed, nil
}

func (l *BadgerLog) Close() error {
	if l.owned != nil {
		return l.owned.Close()
	}
	return nil
}

func (l *BadgerLog) all() ([]Event, error) {
	var events []Event
	if err := l.store.List(&events); err != nil {
		return nil, err
	}
	return events, nil
}
