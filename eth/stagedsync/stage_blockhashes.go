package stagedsync

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/c2h5oh/datasize"

	"github.com/erigontech/chainsync/erigon-lib/common"
	"github.com/erigontech/chainsync/erigon-lib/etl"
	"github.com/erigontech/chainsync/erigon-lib/kv"
	"github.com/erigontech/chainsync/erigon-lib/log"
)

// BlockHashesStageID is this stage's registry key.
const BlockHashesStageID = "BlockHashes"

// bodiesStageKey names the external, upstream-maintained progress entry
// BlockHashes bounds itself against. No stage in this core owns that
// watermark - it is written by the block-download subsystem, out of
// scope per spec.md §1 - but it lives in the same SyncStageProgress table
// and this stage only ever reads it.
const bodiesStageKey = "Bodies"

// BlockHashesCfg holds the per-construction configuration for the
// BlockHashes stage, following the teacher's *Cfg + constructor-function
// pattern (e.g. LogIndexCfg/StageLogIndexCfg in stage_log_index.go).
type BlockHashesCfg struct {
	db       kv.RwDB
	tmpDir   string
	bufLimit datasize.ByteSize
}

func StageBlockHashesCfg(db kv.RwDB, tmpDir string) BlockHashesCfg {
	return BlockHashesCfg{db: db, tmpDir: tmpDir, bufLimit: etl.DefaultBufferSize}
}

// SpawnBlockHashes runs BlockHashes.forward: derive HeaderNumbers from
// CanonicalHashes over (progress(BlockHashes), progress(Bodies)].
func SpawnBlockHashes(s *StageState, tx kv.RwTx, cfg BlockHashesCfg, ctx context.Context, logger log.Logger) error {
	target, err := s.ExecutionAt(tx, bodiesStageKey)
	if err != nil {
		return NewError(DBError, err)
	}
	start := s.BlockNumber
	if start == target {
		return nil
	}
	if start > target {
		return NewError(InvalidProgress, fmt.Errorf("blockhashes: progress %d ahead of bodies %d", start, target))
	}
	logPrefix := s.LogPrefix()

	collector := etl.NewCollector(logPrefix, cfg.tmpDir, cfg.bufLimit, logger)
	defer collector.Close()

	srcCursor, err := tx.Cursor(kv.CanonicalHashes)
	if err != nil {
		return NewError(DBError, err)
	}
	defer srcCursor.Close()

	expected := start + 1
	var last uint64
	seenAny := false
	for k, v, err := srcCursor.Seek(blockKey(expected)); k != nil; k, v, err = srcCursor.Next() {
		if err != nil {
			return NewError(DBError, err)
		}
		if len(k) != 8 {
			return NewError(BadChainSequence, fmt.Errorf("blockhashes: malformed CanonicalHashes key length %d", len(k)))
		}
		num := binary.BigEndian.Uint64(k)
		if num != expected {
			return NewError(BadChainSequence, fmt.Errorf("blockhashes: expected block %d, got %d", expected, num))
		}
		if len(v) != common.HashLength {
			return NewError(BadBlockHash, fmt.Errorf("blockhashes: hash length %d at block %d", len(v), num))
		}
		if err := collector.Collect(v, k); err != nil {
			return mapCollectorErr(err)
		}
		last = num
		seenAny = true
		expected++
		if num >= target {
			break
		}
	}
	if !seenAny || last != target {
		return NewError(BadChainSequence, fmt.Errorf("blockhashes: iteration ended at %d, expected %d", last, target))
	}

	mode := etl.AppendMode
	empty, err := destEmpty(tx)
	if err != nil {
		return NewError(DBError, err)
	}
	if !empty {
		mode = etl.UpsertMode
	}

	destCursor, err := tx.RwCursor(kv.HeaderNumbers)
	if err != nil {
		return NewError(DBError, err)
	}
	defer destCursor.Close()
	if err := collector.Load(destCursor, nil, mode, 10); err != nil {
		return mapCollectorErr(err)
	}

	if err := s.Update(tx, target); err != nil {
		return NewError(DBError, err)
	}
	return nil
}

func destEmpty(tx kv.Tx) (bool, error) {
	c, err := tx.Cursor(kv.HeaderNumbers)
	if err != nil {
		return false, err
	}
	defer c.Close()
	k, _, err := c.First()
	if err != nil {
		return false, err
	}
	return k == nil, nil
}

// UnwindBlockHashes runs BlockHashes.unwind: erase every HeaderNumbers
// entry derived from CanonicalHashes above the new height h.
func UnwindBlockHashes(u *UnwindState, s *StageState, tx kv.RwTx, ctx context.Context, logger log.Logger) error {
	if s.BlockNumber <= u.UnwindPoint {
		return u.Done(tx)
	}
	logPrefix := s.LogPrefix()

	srcCursor, err := tx.Cursor(kv.CanonicalHashes)
	if err != nil {
		return NewError(DBError, err)
	}
	defer srcCursor.Close()

	destCursor, err := tx.RwCursor(kv.HeaderNumbers)
	if err != nil {
		return NewError(DBError, err)
	}
	defer destCursor.Close()

	for k, v, err := srcCursor.Seek(blockKey(u.UnwindPoint + 1)); k != nil; k, v, err = srcCursor.Next() {
		if err != nil {
			return NewError(DBError, err)
		}
		if len(v) != common.HashLength {
			continue
		}
		existing, err := tx.GetOne(kv.HeaderNumbers, v)
		if err != nil {
			return NewError(DBError, err)
		}
		if existing == nil {
			// Idempotent re-run: a prior unwind call already erased this
			// entry. Logged, not fatal.
			logger.Debug(fmt.Sprintf("%s unwind: missing inverse entry", logPrefix), "hash", fmt.Sprintf("%x", v))
			continue
		}
		if err := destCursor.Delete(v); err != nil {
			return NewError(DBError, err)
		}
	}

	return u.Done(tx)
}

func blockKey(num uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], num)
	return b[:]
}

// mapCollectorErr translates an etl sentinel error into the ResultCode
// taxonomy, per the Collector's Failure modes (§4.B).
func mapCollectorErr(err error) error {
	switch err {
	case etl.ErrStorageFull:
		return NewError(DBError, err) // storage_full has no dedicated code in §7's taxonomy; treated as db_error, see DESIGN.md
	case etl.ErrCorruptRun:
		return NewError(DecodingError, err) // corrupt_temp likewise folds into decoding_error, see DESIGN.md
	case etl.ErrNonMonotoneAppend:
		return NewError(BadChainSequence, err)
	default:
		return NewError(UnexpectedError, err)
	}
}
