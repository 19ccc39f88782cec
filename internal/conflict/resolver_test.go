package conflict

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"filesafe/internal/content"
	"filesafe/internal/errors"
	"filesafe/shared/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver(nil)

	t.Run("missing path", func(t *testing.T) {
		info, err := r.Detect(filepath.Join(dir, "missing"), []byte("x"))
		require.NoError(t, err)
		assert.Nil(t, info)
	})

	t.Run("identical content", func(t *testing.T) {
		path := writeFile(t, dir, "same.txt", "hello")
		info, err := r.Detect(path, []byte("hello"))
		require.NoError(t, err)
		assert.Nil(t, info)
	})

	t.Run("divergent content", func(t *testing.T) {
		path := writeFile(t, dir, "diff.txt", "old\n")
		info, err := r.Detect(path, []byte("new\n"))
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, content.Digest([]byte("old\n")), info.CurrentDigest)
		assert.Equal(t, content.Digest([]byte("new\n")), info.IncomingDigest)
		assert.Equal(t, int64(4), info.CurrentSize)

		d, err := info.Diff()
		require.NoError(t, err)
		assert.Equal(t, 1, d.Stats.Additions)
		assert.Equal(t, 1, d.Stats.Deletions)
	})

	t.Run("directory", func(t *testing.T) {
		_, err := r.Detect(dir, []byte("x"))
		assert.True(t, stderrors.Is(err, errors.ErrInvalidContent))
	})
}

func TestResolve(t *testing.T) {
	r := NewResolver(nil)
	info := &Info{
		Path:     "f.txt",
		Current:  []byte("a\nb\n"),
		Incoming: []byte("a\nb\nc\n"),
	}

	t.Run("overwrite", func(t *testing.T) {
		out, err := r.Resolve(shared.Overwrite, info)
		require.NoError(t, err)
		assert.Equal(t, info.Incoming, out)
	})

	t.Run("skip", func(t *testing.T) {
		_, err := r.Resolve(shared.Skip, info)
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrConflict))
	})

	t.Run("merge", func(t *testing.T) {
		out, err := r.Resolve(shared.Merge, info)
		require.NoError(t, err)
		assert.Equal(t, "a\nb\nc\n", string(out))
	})

	t.Run("merge irreconcilable", func(t *testing.T) {
		_, err := r.Resolve(shared.Merge, &Info{
			Path:     "f.txt",
			Current:  []byte("a\nb\n"),
			Incoming: []byte("a\nB\n"),
		})
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrConflict))

		var fe *errors.Error
		require.True(t, stderrors.As(err, &fe))
		details := fe.Details.(map[string]any)
		assert.Equal(t, 2, details["current_line"])
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := r.Resolve("rebase", info)
		assert.True(t, stderrors.Is(err, errors.ErrInvalidContent))
	})
}
