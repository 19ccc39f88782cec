package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeInvalidContent        ErrorType = "INVALID_CONTENT"
	ErrorTypeConflictDetected      ErrorType = "CONFLICT_DETECTED"
	ErrorTypeIO                    ErrorType = "IO_ERROR"
	ErrorTypeIntegrity             ErrorType = "INTEGRITY_ERROR"
	ErrorTypeBackupNotFound        ErrorType = "BACKUP_NOT_FOUND"
	ErrorTypeTransactionNotFound   ErrorType = "TRANSACTION_NOT_FOUND"
	ErrorTypeTransactionNotPending ErrorType = "TRANSACTION_NOT_PENDING"
)

// Sentinels for errors.Is checks. An *Error matches the sentinel of its Type.
var (
	ErrInvalidContent        = &Error{Type: ErrorTypeInvalidContent, Message: "invalid content"}
	ErrConflict              = &Error{Type: ErrorTypeConflictDetected, Message: "conflict detected"}
	ErrIO                    = &Error{Type: ErrorTypeIO, Message: "i/o error"}
	ErrIntegrity             = &Error{Type: ErrorTypeIntegrity, Message: "integrity check failed"}
	ErrBackupNotFound        = &Error{Type: ErrorTypeBackupNotFound, Message: "backup not found"}
	ErrTransactionNotFound   = &Error{Type: ErrorTypeTransactionNotFound, Message: "transaction not found"}
	ErrTransactionNotPending = &Error{Type: ErrorTypeTransactionNotPending, Message: "transaction not pending"}
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Path    string    `json:"path,omitempty"`
	Op      string    `json:"op,omitempty"`
	Details any       `json:"details,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Path)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func InvalidContent(path, message string) *Error {
	return &Error{
		Type:    ErrorTypeInvalidContent,
		Message: message,
		Path:    path,
	}
}

func Conflict(path, message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeConflictDetected,
		Message: message,
		Path:    path,
		Details: details,
	}
}

// IO wraps an underlying filesystem failure for op on path.
func IO(op, path string, err error) *Error {
	return &Error{
		Type:    ErrorTypeIO,
		Message: "i/o failure",
		Path:    path,
		Op:      op,
		Err:     err,
	}
}

func Integrity(path, expected, actual string) *Error {
	return &Error{
		Type:    ErrorTypeIntegrity,
		Message: fmt.Sprintf("digest mismatch: expected %s, got %s", short(expected), short(actual)),
		Path:    path,
		Details: map[string]string{"expected": expected, "actual": actual},
	}
}

func BackupNotFound(id string) *Error {
	return &Error{
		Type:    ErrorTypeBackupNotFound,
		Message: fmt.Sprintf("backup %s not found", id),
	}
}

func TransactionNotFound(id string) *Error {
	return &Error{
		Type:    ErrorTypeTransactionNotFound,
		Message: fmt.Sprintf("transaction %s not found", id),
	}
}

func TransactionNotPending(id, state string) *Error {
	return &Error{
		Type:    ErrorTypeTransactionNotPending,
		Message: fmt.Sprintf("transaction %s is %s", id, state),
	}
}

// TypeOf returns the ErrorType of the first *Error in err's chain, or "".
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ""
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
