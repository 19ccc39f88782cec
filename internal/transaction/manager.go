// Package transaction groups file operations so that they either all take
// effect or none do.
package transaction

import (
	stderrors "errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"filesafe/internal/atomic"
	"filesafe/internal/errors"
	"filesafe/internal/storage"
	"filesafe/internal/validation"
	"filesafe/internal/writer"
	"filesafe/shared/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type entry struct {
	// mu is held for the whole of a commit so operations on one transaction
	// never interleave.
	mu sync.Mutex
	tx *Transaction
}

type Manager struct {
	writer  *writer.SafeWriter
	journal storage.Store
	logger  *zap.Logger

	mu  sync.RWMutex
	txs map[string]*entry
}

// NewManager creates a Manager applying operations through w. journal may be
// nil, in which case state changes are not persisted.
func NewManager(w *writer.SafeWriter, journal storage.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		writer:  w,
		journal: journal,
		logger:  logger.Named("transaction"),
		txs:     make(map[string]*entry),
	}
}

// Begin opens a pending transaction holding ops and returns its ID.
func (m *Manager) Begin(ops ...shared.FileOperation) string {
	tx := &Transaction{
		ID:         uuid.New().String(),
		Operations: append([]shared.FileOperation(nil), ops...),
		State:      Pending,
		CreatedAt:  time.Now(),
	}

	m.mu.Lock()
	m.txs[tx.ID] = &entry{tx: tx}
	m.mu.Unlock()

	m.record(tx)
	m.logger.Debug("transaction started",
		zap.String("tx_id", tx.ID),
		zap.Int("operations", len(ops)))
	return tx.ID
}

// AddOperation appends op to a pending transaction.
func (m *Manager) AddOperation(id string, op shared.FileOperation) error {
	if err := validation.ValidateOperation(op); err != nil {
		return err
	}

	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tx.State != Pending {
		return errors.TransactionNotPending(id, string(e.tx.State))
	}
	e.tx.Operations = append(e.tx.Operations, op)
	m.record(e.tx)
	return nil
}

// Commit applies the queued operations in order. If any operation fails, the
// ones already applied are reverted in reverse order, the transaction ends
// RolledBack, and the failing operation's error is returned. Backups taken
// during the commit are held until it finishes, so retention never evicts
// one a revert still needs.
func (m *Manager) Commit(id string) ([]shared.FileOperation, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := e.tx
	if tx.State != Pending {
		return nil, errors.TransactionNotPending(id, string(tx.State))
	}

	log := m.logger.With(zap.String("tx_id", id))

	for i, op := range tx.Operations {
		if err := validation.ValidateOperation(op); err != nil {
			return nil, m.abort(tx, fmt.Errorf("operation %d (%s): %w", i+1, op.Path, err))
		}
	}

	hold := m.writer.Backups().Hold()
	defer hold.Release()
	w := m.writer.WithHold(hold)

	applied := make([]shared.FileOperation, 0, len(tx.Operations))
	for i, op := range tx.Operations {
		result, err := apply(w, op)
		if err != nil {
			log.Warn("operation failed, reverting",
				zap.Int("index", i+1),
				zap.String("path", op.Path),
				zap.Int("applied", len(applied)),
				zap.Error(err))

			cause := fmt.Errorf("operation %d (%s %s): %w", i+1, op.Kind, op.Path, err)
			if revertErr := m.revert(applied); revertErr != nil {
				cause = stderrors.Join(cause, revertErr)
			}
			return nil, m.abort(tx, cause)
		}
		applied = append(applied, *result)
	}

	tx.State = Committed
	tx.Applied = applied
	tx.FinalizedAt = time.Now()
	m.record(tx)

	log.Info("transaction committed", zap.Int("operations", len(applied)))
	return append([]shared.FileOperation(nil), applied...), nil
}

// Rollback abandons a pending transaction. Nothing has touched disk yet, so
// only the state changes.
func (m *Manager) Rollback(id string) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tx.State != Pending {
		return errors.TransactionNotPending(id, string(e.tx.State))
	}
	e.tx.State = RolledBack
	e.tx.FinalizedAt = time.Now()
	m.record(e.tx)

	m.logger.Info("transaction rolled back", zap.String("tx_id", id))
	return nil
}

// Get returns a snapshot of transaction id.
func (m *Manager) Get(id string) (*Transaction, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tx.clone(), nil
}

// List returns snapshots of every transaction known to this Manager, oldest first.
func (m *Manager) List() []*Transaction {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.txs))
	for _, e := range m.txs {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]*Transaction, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.tx.clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// History returns the journaled transactions, including those recorded by
// earlier processes sharing the journal.
func (m *Manager) History() ([]*Transaction, error) {
	if m.journal == nil {
		return nil, nil
	}
	var txs []*Transaction
	if err := m.journal.List(&txs); err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].CreatedAt.Before(txs[j].CreatedAt) })
	return txs, nil
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.txs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.TransactionNotFound(id)
	}
	return e, nil
}

func apply(w *writer.SafeWriter, op shared.FileOperation) (*shared.FileOperation, error) {
	switch op.Kind {
	case shared.OpCreate, shared.OpUpdate:
		return w.Write(op.Path, op.Content, shared.Overwrite)
	case shared.OpDelete:
		return w.Delete(op.Path)
	}
	return nil, errors.InvalidContent(op.Path, fmt.Sprintf("unknown operation kind %q", op.Kind))
}

// revert undoes applied operations, newest first. Every failure is logged
// and the joined failures are returned.
func (m *Manager) revert(applied []shared.FileOperation) error {
	var errs []error
	for i := len(applied) - 1; i >= 0; i-- {
		op := applied[i]
		if err := m.undo(op); err != nil {
			m.logger.Error("reverting operation",
				zap.String("path", op.Path),
				zap.String("kind", string(op.Kind)),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("reverting %s: %w", op, err))
		}
	}
	return stderrors.Join(errs...)
}

func (m *Manager) undo(op shared.FileOperation) error {
	if op.Kind == shared.OpCreate {
		if err := os.Remove(op.Path); err != nil && !os.IsNotExist(err) {
			return errors.IO("revert create", op.Path, err)
		}
		atomic.RemoveDirs(op.CreatedDirs)
		return nil
	}

	// An update without a backup left the file untouched.
	if op.BackupID == "" {
		return nil
	}

	backups := m.writer.Backups()
	h, err := backups.Get(op.BackupID)
	if err != nil {
		return err
	}
	return backups.Restore(h)
}

func (m *Manager) abort(tx *Transaction, cause error) error {
	tx.State = RolledBack
	tx.Error = cause.Error()
	tx.FinalizedAt = time.Now()
	m.record(tx)
	return cause
}

func (m *Manager) record(tx *Transaction) {
	if m.journal == nil {
		return
	}
	if err := m.journal.Put(tx.journalRecord()); err != nil {
		m.logger.Warn("journaling transaction", zap.String("tx_id", tx.ID), zap.Error(err))
	}
}
