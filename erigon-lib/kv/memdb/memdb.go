// Package memdb implements an in-memory stand-in for the MDBX-backed store
// the teacher's kv.RwDB talks to in production. The real engine is out of
// this core's scope (spec.md §1); memdb exists so the Collector, the
// Registry and the stages have something to run against in tests,
// ordered the same way MDBX orders keys -
// lexicographic on the raw key bytes - using github.com/google/btree, a
// dependency the wider teacher codebase already carries for its own
// in-memory ordered indices.
package memdb

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"

	"github.com/erigontech/chainsync/erigon-lib/kv"
)

type item struct {
	k, v []byte
}

func (a item) Less(b btree.Item) bool {
	return bytes.Compare(a.k, b.(item).k) < 0
}

// DB is a single-process, single-writer, many-reader in-memory database.
// One *btree.BTree per table, guarded by a single RWMutex - MDBX itself
// only ever allows one writer at a time, so this matches the concurrency
// contract the rest of the core is written against.
type DB struct {
	mu     sync.RWMutex
	tables map[string]*btree.BTree
}

// New returns an empty database.
func New() *DB {
	return &DB{tables: make(map[string]*btree.BTree)}
}

func (db *DB) treeFor(table string) *btree.BTree {
	t, ok := db.tables[table]
	if !ok {
		t = btree.New(32)
		db.tables[table] = t
	}
	return t
}

func (db *DB) BeginRo(ctx context.Context) (kv.Tx, error) {
	db.mu.RLock()
	return &roTx{db: db}, nil
}

func (db *DB) View(ctx context.Context, f func(tx kv.Tx) error) error {
	tx, err := db.BeginRo(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return f(tx)
}

func (db *DB) BeginRw(ctx context.Context) (kv.RwTx, error) {
	db.mu.Lock()
	return &rwTx{roTx: roTx{db: db}}, nil
}

func (db *DB) Update(ctx context.Context, f func(tx kv.RwTx) error) error {
	tx, err := db.BeginRw(ctx)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (db *DB) Close() {}

// roTx is a read transaction: it holds the DB's RLock until Rollback.
// There is no Commit-vs-Rollback distinction for a pure reader; Commit is
// accepted as a no-op alias so callers written against kv.Tx don't need to
// special-case read-only use.
type roTx struct {
	db     *DB
	closed bool
}

func (tx *roTx) GetOne(table string, key []byte) ([]byte, error) {
	t, ok := tx.db.tables[table]
	if !ok {
		return nil, nil
	}
	found := t.Get(item{k: key})
	if found == nil {
		return nil, nil
	}
	return append([]byte(nil), found.(item).v...), nil
}

func (tx *roTx) Has(table string, key []byte) (bool, error) {
	v, err := tx.GetOne(table, key)
	return v != nil, err
}

func (tx *roTx) Cursor(table string) (kv.Cursor, error) {
	return &cursor{tx: tx, tree: tx.db.treeFor(table)}, nil
}

func (tx *roTx) Commit() error {
	tx.Rollback()
	return nil
}

func (tx *roTx) Rollback() {
	if tx.closed {
		return
	}
	tx.closed = true
	tx.db.mu.RUnlock()
}

// rwTx is a read-write transaction: it holds the DB's exclusive Lock.
type rwTx struct {
	roTx
}

func (tx *rwTx) Put(table string, k, v []byte) error {
	t := tx.db.treeFor(table)
	t.ReplaceOrInsert(item{k: append([]byte(nil), k...), v: append([]byte(nil), v...)})
	return nil
}

func (tx *rwTx) Delete(table string, k []byte) error {
	t := tx.db.treeFor(table)
	t.Delete(item{k: k})
	return nil
}

// Append behaves like Put in this test double: the in-memory btree keeps
// keys ordered regardless of insertion order, so there is no faster
// append-only path to offer. The contract from kv.StatelessWriteTx - that
// callers must present strictly increasing keys - is still the caller's
// obligation; memdb does not enforce it, the same way the teacher's real
// MDBX-backed Append trusts its caller.
func (tx *rwTx) Append(table string, k, v []byte) error {
	return tx.Put(table, k, v)
}

func (tx *rwTx) RwCursor(table string) (kv.RwCursor, error) {
	return &cursor{tx: &tx.roTx, tree: tx.db.treeFor(table), rw: true}, nil
}

func (tx *rwTx) Commit() error {
	tx.closed = true
	tx.db.mu.Unlock()
	return nil
}

func (tx *rwTx) Rollback() {
	if tx.closed {
		return
	}
	tx.closed = true
	tx.db.mu.Unlock()
}

// cursor walks a table's btree in key order. Positioning is implemented by
// re-querying the tree from the last-seen key on every Next, which is
// O(log n) per step rather than true iterator state, but is sufficient for
// this core's bounded-size test fixtures and example data.
type cursor struct {
	tx      *roTx
	tree    *btree.BTree
	rw      bool
	lastKey []byte
	have    bool
}

func (c *cursor) First() ([]byte, []byte, error) {
	var k, v []byte
	found := false
	c.tree.Ascend(func(i btree.Item) bool {
		it := i.(item)
		k, v = it.k, it.v
		found = true
		return false
	})
	return c.setCurrent(k, v, found)
}

func (c *cursor) Seek(seek []byte) ([]byte, []byte, error) {
	var k, v []byte
	found := false
	c.tree.AscendGreaterOrEqual(item{k: seek}, func(i btree.Item) bool {
		it := i.(item)
		k, v = it.k, it.v
		found = true
		return false
	})
	return c.setCurrent(k, v, found)
}

func (c *cursor) Next() ([]byte, []byte, error) {
	if !c.have {
		return c.First()
	}
	var k, v []byte
	found := false
	// Skip by key equality, not by position: DeleteCurrent/Delete may have
	// removed lastKey between this call and the previous one, in which
	// case the first match at-or-after lastKey is already the correct
	// next entry and must not be discarded.
	c.tree.AscendGreaterOrEqual(item{k: c.lastKey}, func(i btree.Item) bool {
		it := i.(item)
		if bytes.Equal(it.k, c.lastKey) {
			return true
		}
		k, v = it.k, it.v
		found = true
		return false
	})
	return c.setCurrent(k, v, found)
}

func (c *cursor) setCurrent(k, v []byte, found bool) ([]byte, []byte, error) {
	if !found {
		c.have = false
		return nil, nil, nil
	}
	c.lastKey, c.have = k, true
	return append([]byte(nil), k...), append([]byte(nil), v...), nil
}

func (c *cursor) Close() {}

func (c *cursor) Put(k, v []byte) error {
	c.tree.ReplaceOrInsert(item{k: append([]byte(nil), k...), v: append([]byte(nil), v...)})
	return nil
}

func (c *cursor) Append(k []byte, v []byte) error { return c.Put(k, v) }

func (c *cursor) Delete(k []byte) error {
	c.tree.Delete(item{k: k})
	return nil
}

func (c *cursor) DeleteCurrent() error {
	if !c.have {
		return nil
	}
	c.tree.Delete(item{k: c.lastKey})
	return nil
}
