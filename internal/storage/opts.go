package storage

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// inMemoryOptions returns BadgerDB options for an ephemeral, process-local
// database. Nothing touches disk.
func inMemoryOptions() badger.Options {
	return badger.DefaultOptions("").
		WithInMemory(true).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
}

// OpenBadger opens the database under dir, creating it if needed. An empty
// dir yields an in-memory database.
func OpenBadger(dir string) (*badger.DB, error) {
	if dir == "" {
		db, err := badger.Open(inMemoryOptions())
		if err != nil {
			return nil, fmt.Errorf("opening in-memory database: %w", err)
		}
		return db, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	opts := badger.DefaultOptions(dir).
		WithNumVersionsToKeep(1).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return db, nil
}
