// Package writer applies single file mutations with conflict detection,
// pre-change backups, atomic replacement and post-write verification.
package writer

import (
	stderrors "errors"
	"os"
	"path/filepath"

	"filesafe/internal/atomic"
	"filesafe/internal/backup"
	"filesafe/internal/conflict"
	"filesafe/internal/content"
	"filesafe/internal/errors"
	"filesafe/internal/validation"
	"filesafe/shared/types"

	"go.uber.org/zap"
)

type Options struct {
	// MaxContentSize caps a single write. Zero means validation.DefaultMaxContentSize.
	MaxContentSize int64
}

type SafeWriter struct {
	backups  *backup.Manager
	resolver *conflict.Resolver
	verifier *content.Verifier
	maxSize  int64
	logger   *zap.Logger

	// hold, when set, pins every backup this writer takes.
	hold *backup.Hold

	// afterWrite runs between the rename and verification. Tests use it to
	// simulate content changing underneath the writer.
	afterWrite func(path string)
}

func New(backups *backup.Manager, opts Options, logger *zap.Logger) *SafeWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SafeWriter{
		backups:  backups,
		resolver: conflict.NewResolver(logger),
		verifier: content.NewVerifier(),
		maxSize:  opts.MaxContentSize,
		logger:   logger.Named("writer"),
	}
}

// WithHold returns a copy of w whose backups are pinned by hold.
func (w *SafeWriter) WithHold(hold *backup.Hold) *SafeWriter {
	cp := *w
	cp.hold = hold
	return &cp
}

func (w *SafeWriter) backup(path string) (*backup.Handle, error) {
	if w.hold != nil {
		return w.hold.Backup(path)
	}
	return w.backups.Backup(path)
}

// Write replaces the content of path with data. If path holds content other
// than data, resolution decides whether the write proceeds, is refused, or
// merges. A write that fails leaves path as it was.
func (w *SafeWriter) Write(path string, data []byte, resolution shared.ConflictResolution) (*shared.FileOperation, error) {
	if err := validation.ValidatePath(path); err != nil {
		return nil, err
	}
	if err := validation.ValidateContent(path, data, w.maxSize); err != nil {
		return nil, err
	}

	log := w.logger.With(zap.String("path", path), zap.String("resolution", string(resolution)))

	existed, err := exists(path)
	if err != nil {
		return nil, err
	}

	info, err := w.resolver.Detect(path, data)
	if err != nil {
		return nil, err
	}

	if existed && info == nil {
		log.Debug("content unchanged, skipping write")
		op := shared.NewUpdate(path, data).Completed(shared.OpUpdate, content.Digest(data), "")
		return &op, nil
	}

	if info != nil {
		log.Debug("conflict detected",
			zap.String("current_digest", info.CurrentDigest),
			zap.String("incoming_digest", info.IncomingDigest))

		data, err = w.resolver.Resolve(resolution, info)
		if err != nil {
			return nil, err
		}
		if content.Digest(data) == info.CurrentDigest {
			log.Debug("resolved content matches disk, skipping write")
			op := shared.NewUpdate(path, data).Completed(shared.OpUpdate, info.CurrentDigest, "")
			return &op, nil
		}
	}

	var handle *backup.Handle
	if existed {
		handle, err = w.backup(path)
		if err != nil {
			return nil, err
		}
		log.Debug("backup captured", zap.String("backup_id", handle.ID))
	}

	created, err := atomic.MkdirAll(filepath.Dir(path))
	if err != nil {
		atomic.RemoveDirs(created)
		return nil, errors.IO("create parent directories", path, err)
	}

	if err := atomic.WriteFile(path, data, atomic.FilePerm); err != nil {
		atomic.RemoveDirs(created)
		return nil, errors.IO("write", path, err)
	}
	log.Debug("content replaced")

	if w.afterWrite != nil {
		w.afterWrite(path)
	}

	if err := w.verifier.VerifyWrite(path, data); err != nil {
		log.Error("post-write verification failed", zap.Error(err))
		return nil, w.undo(path, handle, created, err)
	}

	digest := content.Digest(data)
	kind := shared.OpCreate
	backupID := ""
	if existed {
		kind = shared.OpUpdate
		backupID = handle.ID
	}

	op := shared.NewUpdate(path, data).Completed(kind, digest, backupID)
	op.CreatedDirs = created
	log.Info("file written",
		zap.String("kind", string(kind)),
		zap.String("digest", digest),
		zap.Int64("size", op.Size),
		zap.String("backup_id", backupID))
	return &op, nil
}

// undo puts path back the way it was before a failed write and attaches the
// outcome to cause. created lists parent directories the write made.
func (w *SafeWriter) undo(path string, handle *backup.Handle, created []string, cause error) error {
	var restoreErr error
	if handle != nil {
		restoreErr = w.backups.Restore(handle)
	} else if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		restoreErr = err
	} else {
		atomic.RemoveDirs(created)
	}

	details := map[string]any{"restored": restoreErr == nil}
	if restoreErr != nil {
		details["restore_error"] = restoreErr.Error()
		w.logger.Error("reverting failed write",
			zap.String("path", path),
			zap.Error(restoreErr))
	}

	var fe *errors.Error
	if stderrors.As(cause, &fe) {
		if prev, ok := fe.Details.(map[string]string); ok {
			for k, v := range prev {
				details[k] = v
			}
		}
		return fe.WithDetails(details)
	}
	return cause
}

// Delete removes path after capturing a backup of its content.
func (w *SafeWriter) Delete(path string) (*shared.FileOperation, error) {
	if err := validation.ValidatePath(path); err != nil {
		return nil, err
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, errors.IO("delete", path, err)
	}
	if fi.IsDir() {
		return nil, errors.InvalidContent(path, "path is a directory")
	}

	handle, err := w.backup(path)
	if err != nil {
		return nil, err
	}

	if err := os.Remove(path); err != nil {
		return nil, errors.IO("delete", path, err)
	}

	op := shared.NewDelete(path).Completed(shared.OpDelete, handle.Digest, handle.ID)
	op.Size = handle.Size
	w.logger.Info("file deleted",
		zap.String("path", path),
		zap.String("backup_id", handle.ID))
	return &op, nil
}

// Backups returns the backup manager the writer records into.
func (w *SafeWriter) Backups() *backup.Manager {
	return w.backups
}

func exists(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.IO("stat", path, err)
	}
	if fi.IsDir() {
		return false, errors.InvalidContent(path, "path is a directory")
	}
	return true, nil
}
