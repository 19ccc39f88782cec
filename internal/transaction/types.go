package transaction

import (
	"time"

	"filesafe/shared/types"
)

type State string

const (
	Pending    State = "pending"
	Committed  State = "committed"
	RolledBack State = "rolled_back"
)

// Transaction is an ordered batch of file operations applied all or nothing.
type Transaction struct {
	ID          string                 `json:"id"`
	Operations  []shared.FileOperation `json:"operations"`
	State       State                  `json:"state"`
	Applied     []shared.FileOperation `json:"applied,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	FinalizedAt time.Time              `json:"finalized_at,omitempty"`
}

func (t *Transaction) GetID() string {
	return t.ID
}

// clone returns a deep enough copy for callers to read without locking.
func (t *Transaction) clone() *Transaction {
	cp := *t
	cp.Operations = append([]shared.FileOperation(nil), t.Operations...)
	cp.Applied = append([]shared.FileOperation(nil), t.Applied...)
	return &cp
}

// journalRecord is what gets persisted: the transaction without payloads.
func (t *Transaction) journalRecord() *Transaction {
	cp := t.clone()
	for i := range cp.Operations {
		cp.Operations[i] = cp.Operations[i].WithoutContent()
	}
	for i := range cp.Applied {
		cp.Applied[i] = cp.Applied[i].WithoutContent()
	}
	return cp
}
