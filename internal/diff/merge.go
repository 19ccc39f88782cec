package diff

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// MaxMergeLines is the largest input, per side, Merge will attempt.
const MaxMergeLines = 10000

// ErrIrreconcilable is returned by Merge when both sides changed the same
// region or an input is too large to merge.
var ErrIrreconcilable = errors.New("irreconcilable changes")

// MergeConflict describes the first region Merge could not combine.
type MergeConflict struct {
	CurrentLine  int
	IncomingLine int
	Removed      []string
	Added        []string
}

func (c *MergeConflict) Error() string {
	return fmt.Sprintf("%s: %d line(s) at current:%d replaced by %d line(s) at incoming:%d",
		ErrIrreconcilable, len(c.Removed), c.CurrentLine, len(c.Added), c.IncomingLine)
}

func (c *MergeConflict) Unwrap() error {
	return ErrIrreconcilable
}

// Merge combines current and incoming line by line. Lines common to both are
// kept once. Lines only in current and lines only in incoming are both kept,
// current first. A region where lines were both removed and added cannot be
// merged and yields a *MergeConflict.
//
// The result ends with a newline exactly when incoming does.
func Merge(current, incoming []byte) ([]byte, error) {
	currentLines := splitLines(current)
	incomingLines := splitLines(incoming)
	if len(currentLines) > MaxMergeLines || len(incomingLines) > MaxMergeLines {
		return nil, fmt.Errorf("%w: input exceeds %d lines", ErrIrreconcilable, MaxMergeLines)
	}

	script := editScript(currentLines, incomingLines)

	out := make([]string, 0, len(script))
	for k := 0; k < len(script); {
		if script[k].Type == Context {
			out = append(out, script[k].Content)
			k++
			continue
		}

		end := k
		for end < len(script) && script[end].Type != Context {
			end++
		}
		region := script[k:end]
		if conflict := replacement(region); conflict != nil {
			return nil, conflict
		}
		for _, line := range region {
			out = append(out, line.Content)
		}
		k = end
	}

	var buf bytes.Buffer
	buf.WriteString(strings.Join(out, "\n"))
	if len(out) > 0 && bytes.HasSuffix(incoming, []byte{'\n'}) {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// replacement returns a conflict if region holds both deletions and additions.
func replacement(region []Line) *MergeConflict {
	c := &MergeConflict{}
	for _, line := range region {
		switch line.Type {
		case Deletion:
			if c.CurrentLine == 0 {
				c.CurrentLine = line.OldNum
			}
			c.Removed = append(c.Removed, line.Content)
		case Addition:
			if c.IncomingLine == 0 {
				c.IncomingLine = line.NewNum
			}
			c.Added = append(c.Added, line.Content)
		}
	}
	if len(c.Removed) == 0 || len(c.Added) == 0 {
		return nil
	}
	return c
}
