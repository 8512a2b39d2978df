package stagedsync

import (
	"encoding/binary"

	"github.com/erigontech/chainsync/erigon-lib/kv"
)

// Registry tracks every stage's forward and prune watermarks in the
// SyncStageProgress / SyncStagePruneProgress tables, with a per-cycle
// in-memory cache so repeated lookups within one cycle don't keep hitting
// the KV store. The cache mirrors the last value written or read and is
// cleared at cycle boundaries (ClearCache) - it must never survive an
// abort/rollback, since a rolled-back write would otherwise leave the
// cache out of sync with what is actually committed.
type Registry struct {
	progress      map[string]uint64
	pruneProgress map[string]uint64
}

// NewRegistry returns an empty Registry. Call ClearCache at the start of
// every cycle.
func NewRegistry() *Registry {
	return &Registry{
		progress:      make(map[string]uint64),
		pruneProgress: make(map[string]uint64),
	}
}

// ClearCache drops all cached values; the next lookup re-reads the store.
func (r *Registry) ClearCache() {
	r.progress = make(map[string]uint64)
	r.pruneProgress = make(map[string]uint64)
}

func encodeBlockNum(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

func decodeBlockNum(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// GetProgress returns stage's forward watermark, 0 if never set.
func (r *Registry) GetProgress(tx kv.Tx, stageKey string) (uint64, error) {
	if v, ok := r.progress[stageKey]; ok {
		return v, nil
	}
	b, err := tx.GetOne(kv.SyncStageProgress, []byte(stageKey))
	if err != nil {
		return 0, err
	}
	v := decodeBlockNum(b)
	r.progress[stageKey] = v
	return v, nil
}

// GetPruneProgress returns stage's prune watermark, 0 if never set.
func (r *Registry) GetPruneProgress(tx kv.Tx, stageKey string) (uint64, error) {
	if v, ok := r.pruneProgress[stageKey]; ok {
		return v, nil
	}
	b, err := tx.GetOne(kv.SyncStagePruneProgress, []byte(stageKey))
	if err != nil {
		return 0, err
	}
	v := decodeBlockNum(b)
	r.pruneProgress[stageKey] = v
	return v, nil
}

// PutProgress persists stage's new forward watermark and updates the
// cache to match.
func (r *Registry) PutProgress(tx kv.RwTx, stageKey string, blockNum uint64) error {
	if err := tx.Put(kv.SyncStageProgress, []byte(stageKey), encodeBlockNum(blockNum)); err != nil {
		return err
	}
	r.progress[stageKey] = blockNum
	return nil
}

// PutPruneProgress persists stage's new prune watermark and updates the
// cache to match.
func (r *Registry) PutPruneProgress(tx kv.RwTx, stageKey string, blockNum uint64) error {
	if err := tx.Put(kv.SyncStagePruneProgress, []byte(stageKey), encodeBlockNum(blockNum)); err != nil {
		return err
	}
	r.pruneProgress[stageKey] = blockNum
	return nil
}
