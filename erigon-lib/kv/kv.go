// Package kv declares the ordered key-value store contract this core
// consumes (spec.md §6). The store itself - the real MDBX-backed engine -
// is an external collaborator out of this core's scope; only the interface
// is owned here, trimmed from the teacher's full kv.Tx/kv.RwTx surface
// (erigon-lib/kv's kv_interface.go) down to the subset spec.md's stages,
// Collector and Registry actually call.
package kv

import "context"

// Getter is the read side of a transaction.
type Getter interface {
	// GetOne returns the value for an exact key match, or nil if absent.
	GetOne(table string, key []byte) ([]byte, error)
	// Has reports whether key exists in table.
	Has(table string, key []byte) (bool, error)
}

// Putter is the write side of a transaction.
type Putter interface {
	Put(table string, k, v []byte) error
}

// Deleter removes entries by exact key.
type Deleter interface {
	Delete(table string, k []byte) error
}

// Tx is a read transaction. Grounded on kv.Tx in kv_interface.go, trimmed
// to the Range/Cursor-Stream surface this core needs (no Temporal/Domain -
// those belong to the state-history engine, out of scope).
type Tx interface {
	Getter
	// Cursor opens a read cursor over table.
	Cursor(table string) (Cursor, error)
	// Commit and Rollback terminate the transaction.
	Commit() error
	Rollback()
}

// StatelessWriteTx is the append-only/upsert write surface a RwTx exposes,
// named the way the teacher's kv.StatelessWriteTx is (kv_interface.go).
type StatelessWriteTx interface {
	Putter
	Deleter
	// Append inserts k,v at the end of the table's keyspace. The
	// underlying store requires k to be strictly greater than the
	// previously appended key; violating that is a programmer/data error,
	// not a runtime condition to recover from silently (spec.md §4.B,
	// APPEND mode).
	Append(table string, k, v []byte) error
}

// RwTx is a read-write transaction.
type RwTx interface {
	Tx
	StatelessWriteTx
	// RwCursor opens a read-write cursor over table.
	RwCursor(table string) (RwCursor, error)
}

// RoDB is a read-only database handle.
type RoDB interface {
	BeginRo(ctx context.Context) (Tx, error)
	View(ctx context.Context, f func(tx Tx) error) error
}

// RwDB is a read-write database handle. Grounded on kv.RwDB in
// kv_interface.go.
type RwDB interface {
	RoDB
	BeginRw(ctx context.Context) (RwTx, error)
	Update(ctx context.Context, f func(tx RwTx) error) error
	Close()
}

// Cursor walks a table in key order. Grounded on kv.Cursor in
// kv_interface.go.
type Cursor interface {
	First() ([]byte, []byte, error)
	Seek(seek []byte) ([]byte, []byte, error)
	Next() ([]byte, []byte, error)
	Close()
}

// RwCursor additionally supports in-place mutation during a walk, used by
// BlockHashes.unwind's seek-and-erase and Senders.unwind's range delete.
type RwCursor interface {
	Cursor
	Put(k, v []byte) error
	Append(k []byte, v []byte) error
	Delete(k []byte) error
	DeleteCurrent() error
}
