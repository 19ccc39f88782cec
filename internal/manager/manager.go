// Package manager is the entry point for callers: it wires the writer,
// transactions, backups and audit log from a single configuration.
package manager

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"filesafe/internal/audit"
	"filesafe/internal/backup"
	"filesafe/internal/config"
	"filesafe/internal/errors"
	"filesafe/internal/storage"
	"filesafe/internal/transaction"
	"filesafe/internal/validation"
	"filesafe/internal/writer"
	"filesafe/shared/types"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

type FileManager struct {
	cfg     *config.Config
	db      *badger.DB
	backups *backup.Manager
	writer  *writer.SafeWriter
	txs     *transaction.Manager
	audit   audit.Log
	logger  *zap.Logger
}

// New builds a FileManager from cfg. A nil cfg means config.Default().
func New(cfg *config.Config, logger *zap.Logger) (*FileManager, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	maxSize, err := cfg.MaxContentBytes()
	if err != nil {
		return nil, err
	}

	fm := &FileManager{cfg: cfg, logger: logger}

	var backupIndex, journal storage.Store
	if dir := cfg.IndexDir(); dir != "" {
		fm.db, err = storage.OpenBadger(filepath.Join(dir, "index"))
		if err != nil {
			return nil, err
		}
		backupIndex = storage.NewBadgerStore(fm.db, "backup")
		journal = storage.NewBadgerStore(fm.db, "tx")
	} else {
		backupIndex = storage.NewMemoryStore()
		journal = storage.NewMemoryStore()
	}

	fm.backups, err = backup.New(backupIndex, backup.Options{
		Dir:       cfg.BackupDir,
		Retention: cfg.BackupRetention,
		Compress:  cfg.CompressBackups,
		CacheSize: cfg.CacheSize,
	}, logger)
	if err != nil {
		fm.Close()
		return nil, fmt.Errorf("initializing backups: %w", err)
	}

	fm.writer = writer.New(fm.backups, writer.Options{MaxContentSize: maxSize}, logger)
	fm.txs = transaction.NewManager(fm.writer, journal, logger)

	if cfg.AuditBackend != "" {
		fm.audit, err = audit.Open(audit.Options{
			Backend: cfg.AuditBackend,
			Path:    cfg.AuditPath,
			DB:      fm.db,
		})
		if err != nil {
			fm.Close()
			return nil, fmt.Errorf("opening audit log: %w", err)
		}
		if cfg.AuditMaxAge > 0 {
			n, err := fm.audit.Maintenance(context.Background(), cfg.AuditMaxAge)
			if err != nil {
				logger.Warn("audit maintenance failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("expired audit events", zap.Int("removed", n))
			}
		}
	}

	logger.Debug("file manager ready",
		zap.String("backup_dir", fm.backups.Dir()),
		zap.String("state_dir", cfg.IndexDir()),
		zap.String("audit_backend", cfg.AuditBackend))
	return fm, nil
}

// WriteFile writes content to path, overwriting whatever is there.
func (fm *FileManager) WriteFile(path string, content []byte) (*shared.FileOperation, error) {
	return fm.WriteFileWithStrategy(path, content, shared.Overwrite)
}

func (fm *FileManager) WriteFileWithStrategy(path string, content []byte, resolution shared.ConflictResolution) (*shared.FileOperation, error) {
	op, err := fm.writer.Write(path, content, resolution)
	if err != nil {
		return nil, err
	}
	fm.record(*op, "")
	return op, nil
}

func (fm *FileManager) ReadFile(path string) ([]byte, error) {
	if err := validation.ValidatePath(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IO("read", path, err)
	}
	return data, nil
}

func (fm *FileManager) DeleteFile(path string) (*shared.FileOperation, error) {
	op, err := fm.writer.Delete(path)
	if err != nil {
		return nil, err
	}
	fm.record(*op, "")
	return op, nil
}

// FileExists reports whether path names an existing regular file.
func (fm *FileManager) FileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

func (fm *FileManager) BeginTransaction(ops ...shared.FileOperation) string {
	return fm.txs.Begin(ops...)
}

func (fm *FileManager) AddToTransaction(id string, op shared.FileOperation) error {
	return fm.txs.AddOperation(id, op)
}

func (fm *FileManager) CommitTransaction(id string) ([]shared.FileOperation, error) {
	applied, err := fm.txs.Commit(id)
	if err != nil {
		return nil, err
	}
	for _, op := range applied {
		fm.record(op, id)
	}
	return applied, nil
}

func (fm *FileManager) RollbackTransaction(id string) error {
	return fm.txs.Rollback(id)
}

func (fm *FileManager) GetTransaction(id string) (*transaction.Transaction, error) {
	return fm.txs.Get(id)
}

// ListTransactions returns the journaled transactions, oldest first.
func (fm *FileManager) ListTransactions() ([]*transaction.Transaction, error) {
	return fm.txs.History()
}

// ListBackups returns the retained backups of path, newest first.
func (fm *FileManager) ListBackups(path string) ([]*backup.Handle, error) {
	return fm.backups.List(path)
}

// RestoreBackup writes backup id back over its owning path.
func (fm *FileManager) RestoreBackup(id string) (*backup.Handle, error) {
	h, err := fm.backups.Get(id)
	if err != nil {
		return nil, err
	}
	if err := fm.backups.Restore(h); err != nil {
		return nil, err
	}

	op := shared.NewUpdate(h.Path, nil).Completed(shared.OpUpdate, h.Digest, h.ID)
	op.Size = h.Size
	fm.record(op, "")
	return h, nil
}

func (fm *FileManager) Backups() *backup.Manager {
	return fm.backups
}

// Audit returns the configured audit log, or nil.
func (fm *FileManager) Audit() audit.Log {
	return fm.audit
}

func (fm *FileManager) Close() error {
	var errs []error
	if fm.audit != nil {
		if err := fm.audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing audit log: %w", err))
		}
	}
	if fm.backups != nil {
		fm.backups.Close()
	}
	if fm.db != nil {
		if err := fm.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	return stderrors.Join(errs...)
}

// record appends op to the audit log. Failures are logged and never
// surface to the caller.
func (fm *FileManager) record(op shared.FileOperation, txID string) {
	if fm.audit == nil {
		return
	}
	if err := fm.audit.Store(context.Background(), audit.NewEvent(op, txID)); err != nil {
		fm.logger.Warn("recording audit event",
			zap.String("path", op.Path),
			zap.String("kind", string(op.Kind)),
			zap.Error(err))
	}
}
