package etl_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/chainsync/erigon-lib/etl"
	"github.com/erigontech/chainsync/erigon-lib/kv"
	"github.com/erigontech/chainsync/erigon-lib/kv/memdb"
	"github.com/erigontech/chainsync/erigon-lib/log"
)

const testTable = "TestTable"

func newCollector(t *testing.T, bufLimit datasize.ByteSize) *etl.Collector {
	t.Helper()
	return etl.NewCollector("[test]", t.TempDir(), bufLimit, log.NewNop())
}

// openDest returns a fresh in-memory RwTx and a cursor over testTable. The
// caller commits or rolls back the returned tx once assertions are done.
func openDest(t *testing.T) (kv.RwTx, kv.RwCursor) {
	t.Helper()
	db := memdb.New()
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	c, err := tx.RwCursor(testTable)
	require.NoError(t, err)
	return tx, c
}

func readAll(t *testing.T, tx kv.Tx) map[string]string {
	t.Helper()
	c, err := tx.Cursor(testTable)
	require.NoError(t, err)
	defer c.Close()
	got := map[string]string{}
	for k, v, err := c.First(); k != nil; k, v, err = c.Next() {
		require.NoError(t, err)
		got[string(k)] = string(v)
	}
	return got
}

// TestCollectorAppendInMemoryOnly covers a Collect/Load round trip that
// never crosses the in-memory buffer threshold: three distinct keys
// loaded in APPEND mode, following scenario 1 from the Collector contract.
func TestCollectorAppendInMemoryOnly(t *testing.T) {
	t.Parallel()
	c := newCollector(t, 1*datasize.MB)
	require.NoError(t, c.Collect([]byte("b"), []byte("2")))
	require.NoError(t, c.Collect([]byte("a"), []byte("1")))
	require.NoError(t, c.Collect([]byte("c"), []byte("3")))

	tx, dest := openDest(t)
	defer tx.Rollback()
	require.NoError(t, c.Load(dest, nil, etl.AppendMode, 0))

	got := readAll(t, tx)
	require.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, got)
}

// TestCollectorAppendRejectsDuplicateKey exercises the resolved reading of
// the Collector contract's "non-monotone APPEND must fail" rule: since
// Load always replays entries in sorted (key, value) order, the only way
// an APPEND load can see a non-strictly-increasing key sequence is a
// duplicate key surviving the sort. Two Collects of the same key, loaded
// in APPEND mode, must fail with ErrNonMonotoneAppend (see DESIGN.md for
// why this supersedes the spec's literal distinct-letter example).
func TestCollectorAppendRejectsDuplicateKey(t *testing.T) {
	t.Parallel()
	c := newCollector(t, 1*datasize.MB)
	require.NoError(t, c.Collect([]byte("b"), []byte("1")))
	require.NoError(t, c.Collect([]byte("b"), []byte("2")))

	_, dest := openDest(t)
	err := c.Load(dest, nil, etl.AppendMode, 0)
	require.ErrorIs(t, err, etl.ErrNonMonotoneAppend)
}

// TestCollectorUpsertHighestSeqWins confirms UPSERT mode resolves a
// duplicate key to the most recently Collected value, not the
// lexicographically larger one.
func TestCollectorUpsertHighestSeqWins(t *testing.T) {
	t.Parallel()
	c := newCollector(t, 1*datasize.MB)
	// The later value sorts lower, so a lexicographic pick would choose
	// the earlier one.
	require.NoError(t, c.Collect([]byte("a"), []byte("2-older")))
	require.NoError(t, c.Collect([]byte("a"), []byte("1-newer")))

	tx, dest := openDest(t)
	defer tx.Rollback()
	require.NoError(t, c.Load(dest, nil, etl.UpsertMode, 0))

	got := readAll(t, tx)
	require.Equal(t, map[string]string{"a": "1-newer"}, got)
}

// TestCollectorSpillsAcrossMultipleRuns forces a one-byte buffer limit so
// every Collect spills its own sorted run to disk, then checks Load's
// k-way merge reassembles the full, correctly ordered result from those
// runs.
func TestCollectorSpillsAcrossMultipleRuns(t *testing.T) {
	t.Parallel()
	c := newCollector(t, 1) // flush after every single Collect
	keys := []string{"d", "b", "e", "a", "c"}
	for i, k := range keys {
		require.NoError(t, c.Collect([]byte(k), []byte{byte(i)}))
	}

	tx, dest := openDest(t)
	defer tx.Rollback()
	require.NoError(t, c.Load(dest, nil, etl.AppendMode, 0))

	cur, err := tx.Cursor(testTable)
	require.NoError(t, err)
	defer cur.Close()
	var order []string
	for k, _, err := cur.First(); k != nil; k, _, err = cur.Next() {
		require.NoError(t, err)
		order = append(order, string(k))
	}
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, order)
}

// TestCollectorTransformDropsEntries checks Load's transform hook can
// both remap a key/value pair and drop an entry outright (ok=false).
func TestCollectorTransformDropsEntries(t *testing.T) {
	t.Parallel()
	c := newCollector(t, 1*datasize.MB)
	require.NoError(t, c.Collect([]byte("keep"), []byte("1")))
	require.NoError(t, c.Collect([]byte("drop"), []byte("2")))

	tx, dest := openDest(t)
	defer tx.Rollback()
	transform := func(k, v []byte) ([]byte, []byte, bool, error) {
		if string(k) == "drop" {
			return nil, nil, false, nil
		}
		return append([]byte("mapped-"), k...), v, true, nil
	}
	require.NoError(t, c.Load(dest, transform, etl.AppendMode, 0))

	got := readAll(t, tx)
	require.Equal(t, map[string]string{"mapped-keep": "1"}, got)
}

// TestCollectorRejectsOversizeEntries checks the Entry size bounds from
// the data model are enforced at Collect time, before anything is
// buffered or spilled.
func TestCollectorRejectsOversizeEntries(t *testing.T) {
	t.Parallel()
	c := newCollector(t, 1*datasize.MB)
	require.ErrorIs(t, c.Collect(make([]byte, etl.MaxKeyLength+1), []byte("v")), etl.ErrKeyTooLarge)
	require.ErrorIs(t, c.Collect([]byte("k"), make([]byte, etl.MaxValueLength+1)), etl.ErrValueTooLarge)
}

// TestCollectorCloseRemovesRuns checks Close is safe to call multiple
// times and actually removes the spilled run files it created.
func TestCollectorCloseRemovesRuns(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c := etl.NewCollector("[test]", dir, 1, log.NewNop())
	require.NoError(t, c.Collect([]byte("a"), []byte("1")))
	require.NoError(t, c.Collect([]byte("b"), []byte("2")))
	c.Close()
	c.Close() // idempotent

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "Close must remove every spilled run file")
}

// TestCollectorLoadWithoutSpillTouchesNoDisk confirms the hot path: when a
// Collector never crosses its buffer threshold, Load must not write a run
// file at all before streaming from memory.
func TestCollectorLoadWithoutSpillTouchesNoDisk(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c := etl.NewCollector("[test]", dir, 1*datasize.MB, log.NewNop())
	require.NoError(t, c.Collect([]byte("b"), []byte("2")))
	require.NoError(t, c.Collect([]byte("a"), []byte("1")))

	tx, dest := openDest(t)
	defer tx.Rollback()
	require.NoError(t, c.Load(dest, nil, etl.AppendMode, 0))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "Load must not spill to disk when nothing crossed the buffer threshold")

	got := readAll(t, tx)
	require.Equal(t, map[string]string{"a": "1", "b": "2"}, got)
}

// TestNewCollectorSweepsOnlyStaleRunFiles checks construction-time cleanup
// removes a run file old enough to have been abandoned by a crashed prior
// Collector, while leaving a freshly touched one (standing in for a
// concurrently running Collector's own run) alone.
func TestNewCollectorSweepsOnlyStaleRunFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	stale := filepath.Join(dir, "etl-stale123-run.tmp")
	require.NoError(t, os.WriteFile(stale, []byte("leftover"), 0o600))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	fresh := filepath.Join(dir, "etl-fresh456-run.tmp")
	require.NoError(t, os.WriteFile(fresh, []byte("in use"), 0o600))

	c := etl.NewCollector("[test]", dir, 1*datasize.MB, log.NewNop())
	defer c.Close()

	_, err := os.Stat(stale)
	require.True(t, os.IsNotExist(err), "stale run file should have been swept")
	_, err = os.Stat(fresh)
	require.NoError(t, err, "freshly touched run file should not be swept")
}
