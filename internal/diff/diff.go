// Package diff computes line diffs between two contents and performs the
// two-way union merge used when resolving write conflicts.
package diff

import (
	"bytes"
	"fmt"
)

// Line represents a single line in a diff with its type and content
type Line struct {
	Type    LineType
	Content string
	OldNum  int // 1-based line number in the old content, 0 for additions
	NewNum  int // 1-based line number in the new content, 0 for deletions
}

// LineType indicates whether a line was added, removed, or is context
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

// DiffResult contains the complete diff information
type DiffResult struct {
	Hunks []Hunk
	Stats struct {
		Additions int
		Deletions int
		Changes   int
	}
}

// Empty reports whether the two contents were line-identical.
func (r *DiffResult) Empty() bool {
	return len(r.Hunks) == 0
}

// Hunk represents a continuous section of changes
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// maxTableCells bounds the LCS table. Regions larger than this are reported
// as a full replacement instead of a minimal edit script.
const maxTableCells = 4 << 20

// Engine provides diffing capabilities
type Engine struct {
	contextLines int
}

// NewEngine creates a new diff engine with specified context lines
func NewEngine(contextLines int) *Engine {
	if contextLines < 0 {
		contextLines = 0
	}
	return &Engine{
		contextLines: contextLines,
	}
}

// Diff generates a line-by-line diff between two contents
func (e *Engine) Diff(oldContent, newContent []byte) (*DiffResult, error) {
	script := editScript(splitLines(oldContent), splitLines(newContent))

	result := &DiffResult{Hunks: e.hunks(script)}
	for _, line := range script {
		switch line.Type {
		case Addition:
			result.Stats.Additions++
		case Deletion:
			result.Stats.Deletions++
		}
	}
	result.Stats.Changes = result.Stats.Additions + result.Stats.Deletions

	return result, nil
}

// splitLines splits content on '\n'. A trailing newline does not start an
// extra line and empty content has no lines.
func splitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	parts := bytes.Split(bytes.TrimSuffix(content, []byte{'\n'}), []byte{'\n'})
	lines := make([]string, len(parts))
	for i, p := range parts {
		lines[i] = string(p)
	}
	return lines
}

// editScript aligns oldLines and newLines along a longest common subsequence.
// Within a change region deletions come before additions.
func editScript(oldLines, newLines []string) []Line {
	prefix := 0
	for prefix < len(oldLines) && prefix < len(newLines) && oldLines[prefix] == newLines[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(oldLines)-prefix && suffix < len(newLines)-prefix &&
		oldLines[len(oldLines)-1-suffix] == newLines[len(newLines)-1-suffix] {
		suffix++
	}

	script := make([]Line, 0, len(oldLines)+len(newLines))
	for i := 0; i < prefix; i++ {
		script = append(script, Line{Type: Context, Content: oldLines[i], OldNum: i + 1, NewNum: i + 1})
	}

	oldMid := oldLines[prefix : len(oldLines)-suffix]
	newMid := newLines[prefix : len(newLines)-suffix]
	script = append(script, middle(oldMid, newMid, prefix)...)

	for k := suffix; k > 0; k-- {
		oi := len(oldLines) - k
		ni := len(newLines) - k
		script = append(script, Line{Type: Context, Content: oldLines[oi], OldNum: oi + 1, NewNum: ni + 1})
	}

	return script
}

// middle diffs the region between the common prefix and suffix. offset is
// the number of lines before the region on both sides.
func middle(oldLines, newLines []string, offset int) []Line {
	n, m := len(oldLines), len(newLines)
	var script []Line

	deletion := func(i int) Line {
		return Line{Type: Deletion, Content: oldLines[i], OldNum: offset + i + 1}
	}
	addition := func(j int) Line {
		return Line{Type: Addition, Content: newLines[j], NewNum: offset + j + 1}
	}

	if n == 0 || m == 0 || (n+1)*(m+1) > maxTableCells {
		for i := 0; i < n; i++ {
			script = append(script, deletion(i))
		}
		for j := 0; j < m; j++ {
			script = append(script, addition(j))
		}
		return script
	}

	// lcs[i][j] is the LCS length of oldLines[i:] and newLines[j:].
	lcs := make([][]int32, n+1)
	for i := range lcs {
		lcs[i] = make([]int32, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if oldLines[i] == newLines[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	i, j := 0, 0
	for i < n && j < m {
		switch {
		case oldLines[i] == newLines[j]:
			script = append(script, Line{
				Type:    Context,
				Content: oldLines[i],
				OldNum:  offset + i + 1,
				NewNum:  offset + j + 1,
			})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			script = append(script, deletion(i))
			i++
		default:
			script = append(script, addition(j))
			j++
		}
	}
	for ; i < n; i++ {
		script = append(script, deletion(i))
	}
	for ; j < m; j++ {
		script = append(script, addition(j))
	}
	return script
}

// hunks groups an edit script into hunks with surrounding context. Changes
// separated by at most twice the context size share a hunk.
func (e *Engine) hunks(script []Line) []Hunk {
	var changes []int
	for k, line := range script {
		if line.Type != Context {
			changes = append(changes, k)
		}
	}
	if len(changes) == 0 {
		return nil
	}

	// oldPos[k] and newPos[k] count the lines consumed before script[k].
	oldPos := make([]int, len(script)+1)
	newPos := make([]int, len(script)+1)
	for k, line := range script {
		oldPos[k+1], newPos[k+1] = oldPos[k], newPos[k]
		if line.Type != Addition {
			oldPos[k+1]++
		}
		if line.Type != Deletion {
			newPos[k+1]++
		}
	}

	var hunks []Hunk
	build := func(start, end int) {
		h := Hunk{
			OldStart: oldPos[start] + 1,
			NewStart: newPos[start] + 1,
			OldLines: oldPos[end] - oldPos[start],
			NewLines: newPos[end] - newPos[start],
			Lines:    append([]Line(nil), script[start:end]...),
		}
		if h.OldLines == 0 {
			h.OldStart--
		}
		if h.NewLines == 0 {
			h.NewStart--
		}
		hunks = append(hunks, h)
	}

	start := max(0, changes[0]-e.contextLines)
	last := changes[0]
	for _, c := range changes[1:] {
		if c-last-1 > 2*e.contextLines {
			build(start, min(len(script), last+e.contextLines+1))
			start = c - e.contextLines
		}
		last = c
	}
	build(start, min(len(script), last+e.contextLines+1))

	return hunks
}

// Format returns a string representation of the diff
func (r *DiffResult) Format() string {
	var buf bytes.Buffer

	for _, hunk := range r.Hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n",
			hunk.OldStart, hunk.OldLines,
			hunk.NewStart, hunk.NewLines)

		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				buf.WriteString("+ ")
			case Deletion:
				buf.WriteString("- ")
			case Context:
				buf.WriteString("  ")
			}
			buf.WriteString(line.Content)
			buf.WriteString("\n")
		}
	}

	return buf.String()
}
