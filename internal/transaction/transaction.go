// Package transaction defines the transaction handle passed through the
// storage layer.
package transaction

import "fmt"

// Type distinguishes read-only from write transactions.
type Type uint8

const (
	ReadOnly Type = iota
	Write
)

func (t Type) String() string {
	switch t {
	case ReadOnly:
		return "READ_ONLY"
	case Write:
		return "WRITE"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Transaction is the storage-level view of a transaction. Read-only
// transactions see checkpointed state; the single write transaction also sees
// its own uncommitted and committed-but-not-checkpointed changes.
type Transaction struct {
	ID   uint64
	Type Type
}

// IsWrite reports whether t may modify storage.
func (t *Transaction) IsWrite() bool { return t != nil && t.Type == Write }

// IsReadOnly reports whether t only reads checkpointed state.
func (t *Transaction) IsReadOnly() bool { return t == nil || t.Type == ReadOnly }

// DummyRead is used by internal readers that are not bound to a user transaction.
var DummyRead = &Transaction{ID: 0, Type: ReadOnly}
