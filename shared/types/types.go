package shared

import (
	"fmt"
	"strings"
	"time"
)

// OperationKind is the kind of mutation a FileOperation performs.
type OperationKind string

const (
	OpCreate OperationKind = "create"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)

func (k OperationKind) Valid() bool {
	switch k {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// ConflictResolution is the policy applied when on-disk content diverges
// from what a caller is about to write. It is chosen per call.
type ConflictResolution string

const (
	Overwrite ConflictResolution = "overwrite"
	Skip      ConflictResolution = "skip"
	Merge     ConflictResolution = "merge"
)

func ParseResolution(s string) (ConflictResolution, error) {
	switch r := ConflictResolution(strings.ToLower(strings.TrimSpace(s))); r {
	case Overwrite, Skip, Merge:
		return r, nil
	}
	return "", fmt.Errorf("unknown conflict resolution %q", s)
}

// FileOperation is one planned or completed mutation. Treat it as immutable;
// the With* helpers return modified copies.
type FileOperation struct {
	Path      string        `json:"path"`
	Kind      OperationKind `json:"kind"`
	Content   []byte        `json:"content,omitempty"`
	BackupID  string        `json:"backup_id,omitempty"`
	Digest    string        `json:"digest,omitempty"`
	Size      int64         `json:"size"`
	Timestamp time.Time     `json:"timestamp"`

	// CreatedDirs lists parent directories a Create had to make, deepest
	// first, so reverting it can remove them again.
	CreatedDirs []string `json:"created_dirs,omitempty"`
}

func NewCreate(path string, content []byte) FileOperation {
	return FileOperation{Path: path, Kind: OpCreate, Content: content, Size: int64(len(content))}
}

func NewUpdate(path string, content []byte) FileOperation {
	return FileOperation{Path: path, Kind: OpUpdate, Content: content, Size: int64(len(content))}
}

func NewDelete(path string) FileOperation {
	return FileOperation{Path: path, Kind: OpDelete}
}

// Validate checks that the operation is well formed.
func (op FileOperation) Validate() error {
	if op.Path == "" {
		return fmt.Errorf("operation path is empty")
	}
	if !op.Kind.Valid() {
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	return nil
}

// Completed returns a copy of op describing its applied effect.
func (op FileOperation) Completed(kind OperationKind, digest, backupID string) FileOperation {
	op.Kind = kind
	op.Digest = digest
	op.BackupID = backupID
	op.Timestamp = time.Now()
	return op
}

// WithoutContent returns a copy of op without its payload, for journals and logs.
func (op FileOperation) WithoutContent() FileOperation {
	op.Content = nil
	return op
}

func (op FileOperation) String() string {
	return fmt.Sprintf("%s %s", op.Kind, op.Path)
}
