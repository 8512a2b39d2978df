package stagedsync

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/chainsync/erigon-lib/kv"
	"github.com/erigontech/chainsync/erigon-lib/kv/memdb"
	"github.com/erigontech/chainsync/erigon-lib/log"
)

func be8(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func hashOf(num uint64) []byte {
	h := make([]byte, 32)
	binary.BigEndian.PutUint64(h[24:], num)
	h[0] = 0xAB // distinguishes a hash from a raw block number visually in failures
	return h
}

// seedCanonicalChain writes CanonicalHashes rows for blocks 1..n and
// advances the Bodies stage's progress watermark to n, the external
// upstream input BlockHashes bounds itself against.
func seedCanonicalChain(t *testing.T, tx kv.RwTx, n uint64) {
	t.Helper()
	for i := uint64(1); i <= n; i++ {
		require.NoError(t, tx.Put(kv.CanonicalHashes, be8(i), hashOf(i)))
	}
	require.NoError(t, tx.Put(kv.SyncStageProgress, []byte("Bodies"), be8(n)))
}

func newTestStageState(id string, blockNumber uint64) *StageState {
	return &StageState{ID: id, BlockNumber: blockNumber, registry: NewRegistry()}
}

func newTestUnwindState(id string, unwindPoint uint64) *UnwindState {
	return &UnwindState{ID: id, UnwindPoint: unwindPoint, registry: NewRegistry()}
}

// TestSpawnBlockHashesBuildsInverseIndex covers scenario 1: a fresh
// HeaderNumbers table populated from CanonicalHashes via APPEND mode.
func TestSpawnBlockHashesBuildsInverseIndex(t *testing.T) {
	t.Parallel()
	db := memdb.New()
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	seedCanonicalChain(t, tx, 5)

	cfg := StageBlockHashesCfg(db, t.TempDir())
	s := newTestStageState(BlockHashesStageID, 0)
	require.NoError(t, SpawnBlockHashes(s, tx, cfg, context.Background(), log.NewNop()))

	for i := uint64(1); i <= 5; i++ {
		v, err := tx.GetOne(kv.HeaderNumbers, hashOf(i))
		require.NoError(t, err)
		require.Equal(t, be8(i), v)
	}
}

// TestSpawnBlockHashesNoOpWhenCaughtUp covers the boundary where
// start == target.
func TestSpawnBlockHashesNoOpWhenCaughtUp(t *testing.T) {
	t.Parallel()
	db := memdb.New()
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	seedCanonicalChain(t, tx, 3)

	cfg := StageBlockHashesCfg(db, t.TempDir())
	s := newTestStageState(BlockHashesStageID, 3)
	require.NoError(t, SpawnBlockHashes(s, tx, cfg, context.Background(), log.NewNop()))

	v, err := tx.GetOne(kv.HeaderNumbers, hashOf(1))
	require.NoError(t, err)
	require.Nil(t, v, "no work should have been done past an already-caught-up watermark")
}

// TestSpawnBlockHashesDetectsBadChainSequence covers scenario 2: a gap in
// CanonicalHashes' block-number sequence must fail bad_chain_sequence.
func TestSpawnBlockHashesDetectsBadChainSequence(t *testing.T) {
	t.Parallel()
	db := memdb.New()
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, tx.Put(kv.CanonicalHashes, be8(1), hashOf(1)))
	// block 2 missing - block 3 comes next, breaking the sequence.
	require.NoError(t, tx.Put(kv.CanonicalHashes, be8(3), hashOf(3)))
	require.NoError(t, tx.Put(kv.SyncStageProgress, []byte("Bodies"), be8(3)))

	cfg := StageBlockHashesCfg(db, t.TempDir())
	s := newTestStageState(BlockHashesStageID, 0)
	err = SpawnBlockHashes(s, tx, cfg, context.Background(), log.NewNop())
	require.Error(t, err)
	require.Equal(t, BadChainSequence, AsResultCode(err))
}

// TestSpawnBlockHashesDetectsBadHashLength covers the BadBlockHash edge
// case: a CanonicalHashes value that is not exactly 32 bytes.
func TestSpawnBlockHashesDetectsBadHashLength(t *testing.T) {
	t.Parallel()
	db := memdb.New()
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, tx.Put(kv.CanonicalHashes, be8(1), []byte("short")))
	require.NoError(t, tx.Put(kv.SyncStageProgress, []byte("Bodies"), be8(1)))

	cfg := StageBlockHashesCfg(db, t.TempDir())
	s := newTestStageState(BlockHashesStageID, 0)
	err = SpawnBlockHashes(s, tx, cfg, context.Background(), log.NewNop())
	require.Error(t, err)
	require.Equal(t, BadBlockHash, AsResultCode(err))
}

// TestUnwindBlockHashesErasesAboveUnwindPoint checks unwind removes only
// the HeaderNumbers entries derived from blocks above the new height.
func TestUnwindBlockHashesErasesAboveUnwindPoint(t *testing.T) {
	t.Parallel()
	db := memdb.New()
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	seedCanonicalChain(t, tx, 5)

	cfg := StageBlockHashesCfg(db, t.TempDir())
	s := newTestStageState(BlockHashesStageID, 0)
	require.NoError(t, SpawnBlockHashes(s, tx, cfg, context.Background(), log.NewNop()))

	u := newTestUnwindState(BlockHashesStageID, 2)
	s2 := newTestStageState(BlockHashesStageID, 5)
	require.NoError(t, UnwindBlockHashes(u, s2, tx, context.Background(), log.NewNop()))

	for i := uint64(1); i <= 2; i++ {
		v, err := tx.GetOne(kv.HeaderNumbers, hashOf(i))
		require.NoError(t, err)
		require.Equal(t, be8(i), v)
	}
	for i := uint64(3); i <= 5; i++ {
		v, err := tx.GetOne(kv.HeaderNumbers, hashOf(i))
		require.NoError(t, err)
		require.Nil(t, v)
	}

	progress, err := tx.GetOne(kv.SyncStageProgress, []byte(BlockHashesStageID))
	require.NoError(t, err)
	require.Equal(t, be8(2), progress)
}
