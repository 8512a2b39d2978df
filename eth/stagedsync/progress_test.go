package stagedsync_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/chainsync/erigon-lib/kv/memdb"
	"github.com/erigontech/chainsync/eth/stagedsync"
)

func TestRegistryProgressDefaultsToZero(t *testing.T) {
	t.Parallel()
	db := memdb.New()
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()

	r := stagedsync.NewRegistry()
	got, err := r.GetProgress(tx, "SomeStage")
	require.NoError(t, err)
	require.Zero(t, got)
}

func TestRegistryPutGetRoundTrip(t *testing.T) {
	t.Parallel()
	db := memdb.New()
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()

	r := stagedsync.NewRegistry()
	require.NoError(t, r.PutProgress(tx, "Senders", 42))
	got, err := r.GetProgress(tx, "Senders")
	require.NoError(t, err)
	require.Equal(t, uint64(42), got)

	require.NoError(t, r.PutPruneProgress(tx, "Senders", 7))
	gotPrune, err := r.GetPruneProgress(tx, "Senders")
	require.NoError(t, err)
	require.Equal(t, uint64(7), gotPrune)
}

// TestRegistryClearCacheRereadsStore checks ClearCache actually forces the
// next lookup back to the KV store rather than serving a stale cached
// value - the invariant the Sync driver relies on at every cycle boundary.
func TestRegistryClearCacheRereadsStore(t *testing.T) {
	t.Parallel()
	db := memdb.New()
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()

	r := stagedsync.NewRegistry()
	require.NoError(t, r.PutProgress(tx, "BlockHashes", 10))

	// Simulate an external write bypassing the cache (e.g. a rolled-back
	// transaction from a different Registry instance never touched this
	// one's cache).
	require.NoError(t, tx.Put("SyncStageProgress", []byte("BlockHashes"), encodeForTest(20)))

	cached, err := r.GetProgress(tx, "BlockHashes")
	require.NoError(t, err)
	require.Equal(t, uint64(10), cached, "cache should still serve the old value")

	r.ClearCache()
	fresh, err := r.GetProgress(tx, "BlockHashes")
	require.NoError(t, err)
	require.Equal(t, uint64(20), fresh)
}

func encodeForTest(n uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(n)
		n >>= 8
	}
	return b
}
