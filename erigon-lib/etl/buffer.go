package etl

import (
	"bytes"
	"sort"
)

// entry is one Collector Entry held in memory before it is either flushed
// to a sorted run or handed straight to Load. seq is the global Collect
// call order, used only to break ties between equal keys under UPSERT -
// the entry with the highest seq is the most recently collected and wins.
type entry struct {
	k, v []byte
	seq  int64
}

// size estimates entry's contribution to the in-memory budget: the key and
// value bytes plus a fixed per-entry slice-header overhead, matching the
// teacher's sortableBuffer accounting (etl.SortableBuffer.SizeLimit).
func (e entry) size() int { return len(e.k) + len(e.v) + 2*24 }

// buffer accumulates Collector Entries in insertion order; it is sorted by
// (key, value) only when flushed to a run or handed to the merge, never
// on Collect - so Collect stays O(1) amortized.
type buffer struct {
	entries []entry
	bytes   int
}

func newBuffer() *buffer { return &buffer{} }

func (b *buffer) put(k, v []byte, seq int64) {
	// Collect's own callers may reuse backing arrays; the buffer always
	// takes ownership of a private copy.
	kk := append([]byte(nil), k...)
	vv := append([]byte(nil), v...)
	e := entry{k: kk, v: vv, seq: seq}
	b.entries = append(b.entries, e)
	b.bytes += e.size()
}

func (b *buffer) sizeBytes() int { return b.bytes }
func (b *buffer) len() int       { return len(b.entries) }

func (b *buffer) reset() {
	b.entries = nil
	b.bytes = 0
}

// sort orders entries lexicographically by key then value, matching the
// Collector Entry ordering from the data model.
func (b *buffer) sort() {
	sort.Slice(b.entries, func(i, j int) bool {
		c := bytes.Compare(b.entries[i].k, b.entries[j].k)
		if c != 0 {
			return c < 0
		}
		return bytes.Compare(b.entries[i].v, b.entries[j].v) < 0
	})
}
