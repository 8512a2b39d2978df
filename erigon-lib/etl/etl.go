// Package etl implements the bounded-memory external-sort operator every
// bulk-derived-data stage collects through: an in-memory buffer that
// spills sorted runs to disk once it crosses a byte budget, and a merging
// loader that replays every collected entry in ascending (key, value)
// order into a destination cursor. Grounded on the shape of the teacher's
// erigon-lib/etl package as used from eth/stagedsync (etl.NewCollector,
// Collector.Collect, Collector.Load, etl.TransformArgs), trimmed to the
// single flush/merge/load pipeline this core's two stages need - no
// bitmap-specific buffer variants, no background flush goroutine.
package etl

import "github.com/c2h5oh/datasize"

// Collector Entry size bounds from the data model: keys up to 4 KiB,
// values up to 1 MiB.
const (
	MaxKeyLength   = 1 << 12
	MaxValueLength = 1 << 20
)

// DefaultBufferSize is the in-memory budget a Collector flushes at absent
// an explicit override, matching the 512 MiB default in the Collector
// contract.
const DefaultBufferSize = 512 * datasize.MB

// LoadMode selects how Collector.Load inserts entries into the
// destination.
type LoadMode int

const (
	// AppendMode requires the merged entry stream to present strictly
	// increasing keys; it uses the destination's append-only insert path.
	AppendMode LoadMode = iota
	// UpsertMode allows duplicate keys; the entry with the highest
	// collection sequence number wins and is written with a regular
	// upsert.
	UpsertMode
)

// TransformFunc optionally remaps or drops an entry as it is loaded.
// Returning ok=false drops the entry from the destination entirely.
type TransformFunc func(k, v []byte) (k2, v2 []byte, ok bool, err error)

// LogEvery names a progress-reporting interval expressed as a percentage
// of the total collected entry count. Load itself takes this interval as
// a plain int (logEveryPercent); zero disables progress logging there.
type LogEvery int
