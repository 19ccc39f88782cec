// Package conflict detects divergence between on-disk content and a pending
// write, and applies the caller's chosen resolution.
package conflict

import (
	stderrors "errors"
	"fmt"
	"os"

	"filesafe/internal/content"
	"filesafe/internal/diff"
	"filesafe/internal/errors"
	"filesafe/shared/types"

	"go.uber.org/zap"
)

// Info is the evidence of a divergence at Path.
type Info struct {
	Path           string `json:"path"`
	CurrentDigest  string `json:"current_digest"`
	IncomingDigest string `json:"incoming_digest"`
	CurrentSize    int64  `json:"current_size"`
	IncomingSize   int64  `json:"incoming_size"`
	Current        []byte `json:"-"`
	Incoming       []byte `json:"-"`
}

// Diff returns the line diff from current to incoming content.
func (i *Info) Diff() (*diff.DiffResult, error) {
	return diff.NewEngine(3).Diff(i.Current, i.Incoming)
}

// Summary is the loggable part of Info.
func (i *Info) Summary() map[string]any {
	return map[string]any{
		"current_digest":  i.CurrentDigest,
		"incoming_digest": i.IncomingDigest,
		"current_size":    i.CurrentSize,
		"incoming_size":   i.IncomingSize,
	}
}

type Resolver struct {
	logger *zap.Logger
}

func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger.Named("conflict")}
}

// Detect compares the content at path with newContent. It returns nil when
// path does not exist or already holds newContent.
func (r *Resolver) Detect(path string, newContent []byte) (*Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.IO("conflict check", path, err)
	}
	if fi.IsDir() {
		return nil, errors.InvalidContent(path, "path is a directory")
	}

	current, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.IO("conflict check", path, err)
	}

	currentDigest := content.Digest(current)
	incomingDigest := content.Digest(newContent)
	if currentDigest == incomingDigest {
		return nil, nil
	}

	return &Info{
		Path:           path,
		CurrentDigest:  currentDigest,
		IncomingDigest: incomingDigest,
		CurrentSize:    int64(len(current)),
		IncomingSize:   int64(len(newContent)),
		Current:        current,
		Incoming:       newContent,
	}, nil
}

// Resolve returns the content to write for info under resolution.
func (r *Resolver) Resolve(resolution shared.ConflictResolution, info *Info) ([]byte, error) {
	if info == nil {
		return nil, errors.InvalidContent("", "no conflict to resolve")
	}

	switch resolution {
	case shared.Overwrite:
		r.logger.Debug("conflict overwritten",
			zap.String("path", info.Path),
			zap.String("current_digest", info.CurrentDigest))
		return info.Incoming, nil

	case shared.Skip:
		r.logger.Info("conflict skipped", zap.String("path", info.Path))
		return nil, errors.Conflict(info.Path, "on-disk content differs from expected", info.Summary())

	case shared.Merge:
		merged, err := diff.Merge(info.Current, info.Incoming)
		if err != nil {
			r.logger.Info("merge failed", zap.String("path", info.Path), zap.Error(err))
			details := info.Summary()
			var mc *diff.MergeConflict
			if stderrors.As(err, &mc) {
				details["current_line"] = mc.CurrentLine
				details["incoming_line"] = mc.IncomingLine
			}
			return nil, errors.Conflict(info.Path, fmt.Sprintf("merge failed: %v", err), details)
		}
		r.logger.Debug("conflict merged",
			zap.String("path", info.Path),
			zap.Int("merged_size", len(merged)))
		return merged, nil
	}

	return nil, errors.InvalidContent(info.Path, fmt.Sprintf("unknown conflict resolution %q", resolution))
}
