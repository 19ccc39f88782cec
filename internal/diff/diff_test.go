package diff

import (
	"errors"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffIdentical(t *testing.T) {
	result, err := NewEngine(3).Diff([]byte("a\nb\n"), []byte("a\nb\n"))
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.Equal(t, 0, result.Stats.Changes)
	assert.Empty(t, result.Format())
}

func TestDiffStats(t *testing.T) {
	result, err := NewEngine(1).Diff(
		[]byte("a\nb\nc\nd\ne\nf\ng\nh\ni\nj\n"),
		[]byte("a\nB\nc\nd\ne\nf\ng\nh\nj\nx\n"),
	)
	require.NoError(t, err)
	require.Len(t, result.Hunks, 2)
	assert.Equal(t, 2, result.Stats.Additions)
	assert.Equal(t, 2, result.Stats.Deletions)
	assert.Equal(t, 4, result.Stats.Changes)

	first := result.Hunks[0]
	assert.Equal(t, 1, first.OldStart)
	assert.Equal(t, 3, first.OldLines)
	assert.Equal(t, Deletion, first.Lines[1].Type)
	assert.Equal(t, 2, first.Lines[1].OldNum)
	assert.Equal(t, Addition, first.Lines[2].Type)
	assert.Equal(t, 2, first.Lines[2].NewNum)
}

func TestDiffFromEmpty(t *testing.T) {
	result, err := NewEngine(3).Diff(nil, []byte("x\ny\n"))
	require.NoError(t, err)
	require.Len(t, result.Hunks, 1)

	h := result.Hunks[0]
	assert.Equal(t, 0, h.OldStart)
	assert.Equal(t, 0, h.OldLines)
	assert.Equal(t, 1, h.NewStart)
	assert.Equal(t, 2, h.NewLines)
	assert.Equal(t, "@@ -0,0 +1,2 @@\n+ x\n+ y\n", result.Format())
}

func TestDiffNearbyChangesShareHunk(t *testing.T) {
	result, err := NewEngine(1).Diff([]byte("a\nb\nc\nd\n"), []byte("A\nb\nc\nD\n"))
	require.NoError(t, err)
	assert.Len(t, result.Hunks, 1)
}

func TestFormatGolden(t *testing.T) {
	result, err := NewEngine(1).Diff(
		[]byte("a\nb\nc\nd\ne\nf\ng\nh\ni\nj\n"),
		[]byte("a\nB\nc\nd\ne\nf\ng\nh\nj\nx\n"),
	)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "two_hunks", []byte(result.Format()))
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		incoming string
		want     string
	}{
		{"identical", "a\nb\n", "a\nb\n", "a\nb\n"},
		{"incoming appends", "a\nb\nc\n", "a\nb\nc\nd\n", "a\nb\nc\nd\n"},
		{"incoming drops a line", "a\nb\nc\n", "a\nc\n", "a\nb\nc\n"},
		{"disjoint edits", "a\nx\nb\n", "a\nb\ny\n", "a\nx\nb\ny\n"},
		{"newline follows incoming", "a", "a\nb", "a\nb"},
		{"empty current", "", "a\n", "a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Merge([]byte(tt.current), []byte(tt.incoming))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMergeReplacementConflicts(t *testing.T) {
	_, err := Merge([]byte("a\nb\nc\n"), []byte("a\nB\nc\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIrreconcilable))

	var conflict *MergeConflict
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, 2, conflict.CurrentLine)
	assert.Equal(t, 2, conflict.IncomingLine)
	assert.Equal(t, []string{"b"}, conflict.Removed)
	assert.Equal(t, []string{"B"}, conflict.Added)
}

func TestMergeTooLarge(t *testing.T) {
	big := strings.Repeat("line\n", MaxMergeLines+1)
	_, err := Merge([]byte(big), []byte("line\n"))
	assert.True(t, errors.Is(err, ErrIrreconcilable))
}
