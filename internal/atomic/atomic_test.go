package atomic

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	t.Run("creates new file", func(t *testing.T) {
		require.NoError(t, WriteFile(path, []byte("first"), FilePerm))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "first", string(data))
	})

	t.Run("replaces and keeps mode", func(t *testing.T) {
		require.NoError(t, os.Chmod(path, 0600))
		require.NoError(t, WriteFile(path, []byte("second"), FilePerm))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "second", string(data))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("leaves no temp files", func(t *testing.T) {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, IsTemp(e.Name()), "leftover temp file %s", e.Name())
		}
	})

	t.Run("missing parent fails without side effects", func(t *testing.T) {
		err := WriteFile(filepath.Join(dir, "nope", "x.txt"), []byte("x"), FilePerm)
		assert.Error(t, err)
		_, statErr := os.Stat(filepath.Join(dir, "nope"))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("directory target rejected", func(t *testing.T) {
		sub := filepath.Join(dir, "sub")
		require.NoError(t, os.Mkdir(sub, DirPerm))
		assert.Error(t, WriteFile(sub, []byte("x"), FilePerm))
	})
}

func TestIsTemp(t *testing.T) {
	assert.True(t, IsTemp("/a/b/"+TempPrefix+"123"))
	assert.False(t, IsTemp("/a/b/file.txt"))
}

func TestWriteFileThroughSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0644))
	require.NoError(t, os.Symlink(target, link))

	require.NoError(t, WriteFile(link, []byte("new"), FilePerm))

	info, err := os.Lstat(link)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink, "link was replaced by a regular file")

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestMkdirAllAndRemoveDirs(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c")

	created, err := MkdirAll(deep)
	require.NoError(t, err)
	assert.Equal(t, []string{
		deep,
		filepath.Join(root, "a", "b"),
		filepath.Join(root, "a"),
	}, created)
	assert.DirExists(t, deep)

	again, err := MkdirAll(deep)
	require.NoError(t, err)
	assert.Empty(t, again)

	// A directory that gained content stays.
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "keep.txt"), nil, 0644))
	RemoveDirs(created)
	assert.NoDirExists(t, filepath.Join(root, "a", "b"))
	assert.DirExists(t, filepath.Join(root, "a"))
}
