package writer

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"filesafe/internal/atomic"
	"filesafe/internal/backup"
	"filesafe/internal/content"
	"filesafe/internal/errors"
	"filesafe/internal/storage"
	"filesafe/shared/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupWriter(t *testing.T, opts Options) (*SafeWriter, string) {
	t.Helper()

	root := t.TempDir()
	backups, err := backup.New(storage.NewMemoryStore(), backup.Options{
		Dir:       filepath.Join(root, ".filesafe", "backups"),
		Retention: 3,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(backups.Close)

	return New(backups, opts, nil), root
}

func readString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestWriteOverwriteSkip(t *testing.T) {
	w, root := setupWriter(t, Options{})
	path := filepath.Join(root, "file.txt")

	op, err := w.Write(path, []byte("content1"), shared.Overwrite)
	require.NoError(t, err)
	assert.Equal(t, shared.OpCreate, op.Kind)
	assert.Equal(t, content.Digest([]byte("content1")), op.Digest)
	assert.Empty(t, op.BackupID)
	assert.Equal(t, "content1", readString(t, path))

	op, err = w.Write(path, []byte("content2"), shared.Overwrite)
	require.NoError(t, err)
	assert.Equal(t, shared.OpUpdate, op.Kind)
	assert.NotEmpty(t, op.BackupID)
	assert.Equal(t, "content2", readString(t, path))

	backed, err := w.Backups().Read(op.BackupID)
	require.NoError(t, err)
	assert.Equal(t, "content1", string(backed))

	_, err = w.Write(path, []byte("content3"), shared.Skip)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrConflict))
	assert.Equal(t, "content2", readString(t, path))
}

func TestWriteIdempotent(t *testing.T) {
	w, root := setupWriter(t, Options{})
	path := filepath.Join(root, "file.txt")

	_, err := w.Write(path, []byte("same"), shared.Overwrite)
	require.NoError(t, err)
	before, err := os.Stat(path)
	require.NoError(t, err)

	op, err := w.Write(path, []byte("same"), shared.Skip)
	require.NoError(t, err)
	assert.Equal(t, shared.OpUpdate, op.Kind)
	assert.Equal(t, content.Digest([]byte("same")), op.Digest)
	assert.Empty(t, op.BackupID)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())

	backups, err := w.Backups().List(path)
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestWriteMerge(t *testing.T) {
	w, root := setupWriter(t, Options{})
	path := filepath.Join(root, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0644))

	op, err := w.Write(path, []byte("a\nb\nc\n"), shared.Merge)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", readString(t, path))
	assert.Equal(t, content.Digest([]byte("a\nb\nc\n")), op.Digest)

	_, err = w.Write(path, []byte("a\nB\nc\n"), shared.Merge)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrConflict))
	assert.Equal(t, "a\nb\nc\n", readString(t, path))
}

func TestWriteCreatesParents(t *testing.T) {
	w, root := setupWriter(t, Options{})
	path := filepath.Join(root, "a", "b", "c.txt")

	_, err := w.Write(path, []byte("deep"), shared.Overwrite)
	require.NoError(t, err)
	assert.Equal(t, "deep", readString(t, path))
}

func TestWritePreservesMode(t *testing.T) {
	w, root := setupWriter(t, Options{})
	path := filepath.Join(root, "script.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0755))

	_, err := w.Write(path, []byte("#!/bin/sh\necho hi\n"), shared.Overwrite)
	require.NoError(t, err)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), fi.Mode().Perm())
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	w, root := setupWriter(t, Options{})
	path := filepath.Join(root, "file.txt")

	for _, c := range []string{"one", "two", "three"} {
		_, err := w.Write(path, []byte(c), shared.Overwrite)
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, atomic.IsTemp(e.Name()), e.Name())
	}
}

func TestWriteValidation(t *testing.T) {
	w, root := setupWriter(t, Options{MaxContentSize: 4})

	_, err := w.Write("", []byte("x"), shared.Overwrite)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidContent))

	path := filepath.Join(root, "big.txt")
	_, err = w.Write(path, []byte("too big"), shared.Overwrite)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidContent))
	assert.NoFileExists(t, path)

	_, err = w.Write(root, []byte("x"), shared.Overwrite)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidContent))
}

func TestWriteUnderRegularFileFails(t *testing.T) {
	w, root := setupWriter(t, Options{})
	blocker := filepath.Join(root, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file"), 0644))

	_, err := w.Write(filepath.Join(blocker, "child.txt"), []byte("x"), shared.Overwrite)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrIO))
}

func TestVerificationFailureRestoresPreviousContent(t *testing.T) {
	w, root := setupWriter(t, Options{})
	path := filepath.Join(root, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("before"), 0644))

	w.afterWrite = func(p string) {
		require.NoError(t, os.WriteFile(p, []byte("clobbered"), 0644))
	}

	_, err := w.Write(path, []byte("after"), shared.Overwrite)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrIntegrity))

	var fe *errors.Error
	require.True(t, stderrors.As(err, &fe))
	details := fe.Details.(map[string]any)
	assert.Equal(t, true, details["restored"])
	assert.Equal(t, content.Digest([]byte("after")), details["expected"])

	assert.Equal(t, "before", readString(t, path))
}

func TestVerificationFailureRemovesCreatedFile(t *testing.T) {
	w, root := setupWriter(t, Options{})
	path := filepath.Join(root, "new.txt")

	w.afterWrite = func(p string) {
		require.NoError(t, os.WriteFile(p, []byte("clobbered"), 0644))
	}

	_, err := w.Write(path, []byte("fresh"), shared.Overwrite)
	assert.True(t, stderrors.Is(err, errors.ErrIntegrity))
	assert.NoFileExists(t, path)
}

func TestVerificationFailureRemovesCreatedParents(t *testing.T) {
	w, root := setupWriter(t, Options{})
	path := filepath.Join(root, "x", "y", "new.txt")

	w.afterWrite = func(p string) {
		require.NoError(t, os.WriteFile(p, []byte("clobbered"), 0644))
	}

	_, err := w.Write(path, []byte("fresh"), shared.Overwrite)
	assert.True(t, stderrors.Is(err, errors.ErrIntegrity))
	assert.NoDirExists(t, filepath.Join(root, "x"))
}

func TestWriteReportsCreatedDirs(t *testing.T) {
	w, root := setupWriter(t, Options{})

	op, err := w.Write(filepath.Join(root, "x", "y", "new.txt"), []byte("fresh"), shared.Overwrite)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "x", "y"), filepath.Join(root, "x")}, op.CreatedDirs)

	op, err = w.Write(filepath.Join(root, "x", "other.txt"), []byte("fresh"), shared.Overwrite)
	require.NoError(t, err)
	assert.Empty(t, op.CreatedDirs)
}

func TestHeldBackupsOutliveRetention(t *testing.T) {
	w, root := setupWriter(t, Options{})
	path := filepath.Join(root, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("v0"), 0644))

	hold := w.Backups().Hold()
	held := w.WithHold(hold)

	first, err := held.Write(path, []byte("v1"), shared.Overwrite)
	require.NoError(t, err)
	for i := 2; i <= 6; i++ {
		_, err := held.Write(path, []byte(fmt.Sprintf("v%d", i)), shared.Overwrite)
		require.NoError(t, err)
	}

	h, err := w.Backups().Get(first.BackupID)
	require.NoError(t, err)
	data, err := w.Backups().Read(h.ID)
	require.NoError(t, err)
	assert.Equal(t, "v0", string(data))

	hold.Release()
	_, err = w.Backups().Get(first.BackupID)
	assert.True(t, stderrors.Is(err, errors.ErrBackupNotFound))

	handles, err := w.Backups().List(path)
	require.NoError(t, err)
	assert.Len(t, handles, 3)
}

func TestDelete(t *testing.T) {
	w, root := setupWriter(t, Options{})
	path := filepath.Join(root, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("bye"), 0644))

	op, err := w.Delete(path)
	require.NoError(t, err)
	assert.Equal(t, shared.OpDelete, op.Kind)
	assert.Equal(t, int64(3), op.Size)
	assert.NoFileExists(t, path)

	h, err := w.Backups().Get(op.BackupID)
	require.NoError(t, err)
	require.NoError(t, w.Backups().Restore(h))
	assert.Equal(t, "bye", readString(t, path))

	_, err = w.Delete(filepath.Join(root, "missing"))
	assert.True(t, stderrors.Is(err, errors.ErrIO))
	assert.True(t, stderrors.Is(err, os.ErrNotExist))
}
