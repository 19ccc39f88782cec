// Package validation checks write requests before anything touches disk.
package validation

import (
	"fmt"
	"strings"

	"filesafe/internal/errors"
	"filesafe/shared/types"

	"github.com/dustin/go-humanize"
)

// DefaultMaxContentSize is the largest payload accepted by default (1 GiB).
const DefaultMaxContentSize int64 = 1 << 30

// Validator is implemented by request values that can check their own shape,
// such as shared.FileOperation.
type Validator interface {
	Validate() error
}

// ValidatePath rejects empty paths and paths containing NUL bytes.
func ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.InvalidContent(path, "path is empty")
	}
	if strings.ContainsRune(path, 0) {
		return errors.InvalidContent(path, "path contains NUL byte")
	}
	return nil
}

// ValidateContent rejects content larger than maxSize. A maxSize of zero or
// less means DefaultMaxContentSize.
func ValidateContent(path string, content []byte, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxContentSize
	}
	if int64(len(content)) > maxSize {
		return errors.InvalidContent(path, fmt.Sprintf("content is %s, limit is %s",
			humanize.IBytes(uint64(len(content))), humanize.IBytes(uint64(maxSize))))
	}
	return nil
}

// ValidateOperation checks a queued operation's shape and path.
func ValidateOperation(op shared.FileOperation) error {
	if err := Validate(op.Path, op); err != nil {
		return err
	}
	return ValidatePath(op.Path)
}

// Validate runs v and converts a plain failure into an InvalidContent error.
func Validate(path string, v Validator) error {
	if err := v.Validate(); err != nil {
		if errors.TypeOf(err) != "" {
			return err
		}
		return errors.InvalidContent(path, err.Error())
	}
	return nil
}
