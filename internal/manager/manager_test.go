package manager

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"filesafe/internal/audit"
	"filesafe/internal/config"
	"filesafe/internal/content"
	"filesafe/internal/errors"
	"filesafe/internal/transaction"
	"filesafe/shared/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, root string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.BackupDir = filepath.Join(root, ".filesafe", "backups")
	cfg.BackupRetention = 3
	return cfg
}

func setupManager(t *testing.T, mutate func(*config.Config)) (*FileManager, string) {
	t.Helper()
	root := t.TempDir()
	cfg := testConfig(t, root)
	if mutate != nil {
		mutate(cfg)
	}
	fm, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { fm.Close() })
	return fm, root
}

func TestWriteOverwriteSkip(t *testing.T) {
	fm, root := setupManager(t, nil)
	path := filepath.Join(root, "file.txt")

	op, err := fm.WriteFile(path, []byte("content1"))
	require.NoError(t, err)
	assert.Equal(t, content.Digest([]byte("content1")), op.Digest)
	assert.True(t, fm.FileExists(path))

	_, err = fm.WriteFileWithStrategy(path, []byte("content2"), shared.Overwrite)
	require.NoError(t, err)

	_, err = fm.WriteFileWithStrategy(path, []byte("content3"), shared.Skip)
	assert.True(t, stderrors.Is(err, errors.ErrConflict))

	data, err := fm.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "content2", string(data))
}

func TestTransactions(t *testing.T) {
	fm, root := setupManager(t, nil)
	file1 := filepath.Join(root, "file1")
	file2 := filepath.Join(root, "file2")

	id := fm.BeginTransaction(
		shared.NewCreate(file1, []byte("a")),
		shared.NewCreate(file2, []byte("b")),
	)
	_, err := fm.CommitTransaction(id)
	require.NoError(t, err)

	id = fm.BeginTransaction(shared.NewUpdate(file1, []byte("c")))
	require.NoError(t, fm.AddToTransaction(id, shared.NewCreate(filepath.Join(file2, "child"), []byte("d"))))
	_, err = fm.CommitTransaction(id)
	require.Error(t, err)

	data, err := fm.ReadFile(file1)
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))

	tx, err := fm.GetTransaction(id)
	require.NoError(t, err)
	assert.Equal(t, transaction.RolledBack, tx.State)

	id = fm.BeginTransaction(shared.NewCreate(filepath.Join(root, "never"), []byte("x")))
	require.NoError(t, fm.RollbackTransaction(id))
	assert.False(t, fm.FileExists(filepath.Join(root, "never")))

	history, err := fm.ListTransactions()
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestBackupBound(t *testing.T) {
	fm, root := setupManager(t, nil)
	path := filepath.Join(root, "file.txt")

	var backupIDs []string
	for i := 0; i < 6; i++ {
		op, err := fm.WriteFile(path, []byte(fmt.Sprintf("v%d", i)))
		require.NoError(t, err)
		if op.BackupID != "" {
			backupIDs = append(backupIDs, op.BackupID)
		}
	}
	require.Len(t, backupIDs, 5)

	handles, err := fm.ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, handles, 3)

	_, err = fm.RestoreBackup(backupIDs[0])
	assert.True(t, stderrors.Is(err, errors.ErrBackupNotFound))

	h, err := fm.RestoreBackup(backupIDs[4])
	require.NoError(t, err)
	assert.Equal(t, path, h.Path)

	data, err := fm.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v4", string(data))
}

func TestDeleteFile(t *testing.T) {
	fm, root := setupManager(t, nil)
	path := filepath.Join(root, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("bye"), 0644))

	op, err := fm.DeleteFile(path)
	require.NoError(t, err)
	assert.False(t, fm.FileExists(path))

	_, err = fm.RestoreBackup(op.BackupID)
	require.NoError(t, err)
	assert.True(t, fm.FileExists(path))

	_, err = fm.ReadFile(filepath.Join(root, "missing"))
	assert.True(t, stderrors.Is(err, errors.ErrIO))
}

func TestAuditRecording(t *testing.T) {
	fm, root := setupManager(t, func(c *config.Config) {
		c.AuditBackend = audit.BackendFile
		c.AuditPath = filepath.Join(c.BackupDir, "..", "audit.jsonl")
	})
	path := filepath.Join(root, "file.txt")

	_, err := fm.WriteFile(path, []byte("one"))
	require.NoError(t, err)

	id := fm.BeginTransaction(shared.NewUpdate(path, []byte("two")))
	_, err = fm.CommitTransaction(id)
	require.NoError(t, err)

	// Failed operations are not recorded.
	_, err = fm.WriteFileWithStrategy(path, []byte("three"), shared.Skip)
	require.Error(t, err)

	events, err := fm.Audit().Retrieve(context.Background(), audit.Filter{Path: path})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, id, events[0].TransactionID)
	assert.Equal(t, shared.OpUpdate, events[0].Kind)
	assert.NotEmpty(t, events[0].BackupID)
	assert.Equal(t, shared.OpCreate, events[1].Kind)
}

func TestAuditStoresAbsolutePaths(t *testing.T) {
	fm, root := setupManager(t, func(c *config.Config) {
		c.AuditBackend = audit.BackendSQLite
		c.AuditPath = filepath.Join(c.BackupDir, "..", "audit.db")
	})
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(root))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	_, err = fm.WriteFile("rel.txt", []byte("one"))
	require.NoError(t, err)
	_, err = fm.WriteFile(filepath.Join(root, "rel.txt"), []byte("two"))
	require.NoError(t, err)

	abs, err := filepath.Abs("rel.txt")
	require.NoError(t, err)
	events, err := fm.Audit().Retrieve(context.Background(), audit.Filter{Path: abs})
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, abs, e.Path)
	}
}

func TestConcurrentWrites(t *testing.T) {
	fm, root := setupManager(t, nil)

	const files, writes = 8, 5
	var wg sync.WaitGroup
	errs := make(chan error, files*writes)
	for f := 0; f < files; f++ {
		wg.Add(1)
		go func(f int) {
			defer wg.Done()
			path := filepath.Join(root, fmt.Sprintf("file%d.txt", f))
			for i := 0; i < writes; i++ {
				if _, err := fm.WriteFile(path, []byte(fmt.Sprintf("f%d v%d", f, i))); err != nil {
					errs <- err
				}
			}
		}(f)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for f := 0; f < files; f++ {
		path := filepath.Join(root, fmt.Sprintf("file%d.txt", f))
		data, err := fm.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("f%d v%d", f, writes-1), string(data))

		handles, err := fm.ListBackups(path)
		require.NoError(t, err)
		require.Len(t, handles, 3)
		for _, h := range handles {
			_, err := fm.RestoreBackup(h.ID)
			require.NoError(t, err)
		}
		data, err = fm.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("f%d v%d", f, writes-4), string(data))
	}
}

func TestPersistentState(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root)
	cfg.StateDir = filepath.Join(root, ".filesafe", "state")
	cfg.AuditBackend = audit.BackendBadger
	path := filepath.Join(root, "file.txt")

	fm, err := New(cfg, nil)
	require.NoError(t, err)
	_, err = fm.WriteFile(path, []byte("one"))
	require.NoError(t, err)
	op, err := fm.WriteFile(path, []byte("two"))
	require.NoError(t, err)
	require.NoError(t, fm.Close())

	fm, err = New(cfg, nil)
	require.NoError(t, err)
	defer fm.Close()

	handles, err := fm.ListBackups(path)
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, op.BackupID, handles[0].ID)

	n, err := fm.Audit().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.BackupRetention = 0
	_, err := New(cfg, nil)
	assert.Error(t, err)
}
