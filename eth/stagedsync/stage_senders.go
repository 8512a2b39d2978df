package stagedsync

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"

	"github.com/c2h5oh/datasize"
	"github.com/holiman/uint256"

	"github.com/erigontech/chainsync/chain"
	"github.com/erigontech/chainsync/core/types"
	"github.com/erigontech/chainsync/erigon-lib/etl"
	"github.com/erigontech/chainsync/erigon-lib/kv"
	"github.com/erigontech/chainsync/erigon-lib/log"
	"github.com/erigontech/chainsync/eth/stagedsync/senders"
)

// SendersStageID is this stage's registry key.
const SendersStageID = "Senders"

// blockHashesStageKey is the predecessor this stage bounds its range
// against. With only two stages registered in this core, it also happens
// to be the immediately preceding ordinal, but the dependency is named
// explicitly rather than inferred from position.
const blockHashesStageKey = BlockHashesStageID

// defaultBatchSize is the package count per farm dispatch, matching the
// default in §4.E.
const defaultBatchSize = 50_000

// SendersCfg holds the per-construction configuration for the Senders
// stage.
type SendersCfg struct {
	db         kv.RwDB
	tmpDir     string
	bufLimit   datasize.ByteSize
	chainCfg   *chain.Config
	bodyReader types.BodyReader
	batchSize  int
	numWorkers int
}

func StageSendersCfg(db kv.RwDB, tmpDir string, chainCfg *chain.Config, bodyReader types.BodyReader) SendersCfg {
	return SendersCfg{
		db:         db,
		tmpDir:     tmpDir,
		bufLimit:   etl.DefaultBufferSize,
		chainCfg:   chainCfg,
		bodyReader: bodyReader,
		batchSize:  defaultBatchSize,
		numWorkers: runtime.GOMAXPROCS(0),
	}
}

// SpawnSenders runs Senders.forward: recover every transaction's sender
// over (progress(Senders), progress(BlockHashes)], farming the recovery
// work out to a bounded worker pool and writing results grouped by block.
func SpawnSenders(s *StageState, tx kv.RwTx, cfg SendersCfg, ctx context.Context, logger log.Logger) error {
	target, err := s.ExecutionAt(tx, blockHashesStageKey)
	if err != nil {
		return NewError(DBError, err)
	}
	start := s.BlockNumber
	if start == target {
		return nil
	}
	if start > target {
		return NewError(InvalidProgress, fmt.Errorf("senders: progress %d ahead of blockhashes %d", start, target))
	}
	logPrefix := s.LogPrefix()

	collector := etl.NewCollector(logPrefix, cfg.tmpDir, cfg.bufLimit, logger)
	defer collector.Close()

	farm := senders.NewFarm(ctx, cfg.numWorkers, cfg.batchSize, logger)
	acc := senders.NewBlockAccumulator(collector)
	// The farm must not outlive this call on any exit path - closeFarm
	// joins every worker goroutine exactly once, whether we get here via
	// the happy path below or an early return from the loop.
	farmClosed := false
	closeFarm := func() error {
		if farmClosed {
			return nil
		}
		farmClosed = true
		return farm.Close(acc)
	}
	defer func() { _ = closeFarm() }()

	// stoppedEarly records that the loop broke before reaching target
	// because of cancellation or a worker failure, rather than because it
	// exhausted the range. The worker-failure case resolves to its real
	// ResultCode once closeFarm below surfaces the errgroup's error; a bare
	// context cancellation with no worker error is the only case that
	// still needs to be reported here, as Aborted.
	stoppedEarly := false
	runErr := func() error {
		for num := start + 1; num <= target; num++ {
			if ctx.Err() != nil || farm.Stopping() {
				stoppedEarly = true
				break
			}

			body, ok, err := cfg.bodyReader.ReadBody(num)
			if err != nil {
				return NewError(DecodingError, err)
			}
			if !ok {
				return NewError(MissingSenders, fmt.Errorf("senders: missing body for block %d", num))
			}

			for txnIndex, txn := range body.Txns {
				pkg := senders.RecoveryPackage{
					BlockNum:    num,
					TxnIndex:    txnIndex,
					SigningHash: txn.SigningHash,
					R:           cloneUint256(txn.R),
					S:           cloneUint256(txn.S),
					VParity:     txn.VParity,
					ChainID:     txn.ChainID,
					Homestead:   cfg.chainCfg.IsHomestead(num),
				}
				if err := farm.Submit(pkg); err != nil {
					return translateFarmErr(err)
				}
			}

			if err := farm.DrainHarvest(acc); err != nil {
				return translateFarmErr(err)
			}
		}
		return farm.Flush()
	}()
	if runErr != nil {
		return translateFarmErr(runErr)
	}

	if err := closeFarm(); err != nil {
		return translateFarmErr(err)
	}
	if stoppedEarly {
		return NewError(Aborted, ctx.Err())
	}

	destCursor, err := tx.RwCursor(kv.Senders)
	if err != nil {
		return NewError(DBError, err)
	}
	defer destCursor.Close()
	if err := collector.Load(destCursor, nil, etl.AppendMode, 10); err != nil {
		return mapCollectorErr(err)
	}

	if err := s.Update(tx, target); err != nil {
		return NewError(DBError, err)
	}
	return nil
}

func cloneUint256(v *uint256.Int) *uint256.Int {
	c := new(uint256.Int)
	c.Set(v)
	return c
}

// translateFarmErr maps a farm/worker failure onto the ResultCode
// taxonomy: invalid_transaction for a recovery failure, aborted for
// cooperative cancellation, unexpected_error otherwise. Errors already
// carrying a ResultCode (produced by this stage's own code above the
// farm) pass through unchanged.
func translateFarmErr(err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	code := UnexpectedError
	switch {
	case errors.Is(err, senders.ErrInvalidTransaction):
		code = InvalidTransaction
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = Aborted
	}
	return ErrorOrNil(code, err)
}

// UnwindSenders runs Senders.unwind: delete every Senders row with key
// greater than the new height h.
func UnwindSenders(u *UnwindState, s *StageState, tx kv.RwTx, ctx context.Context, logger log.Logger) error {
	if s.BlockNumber <= u.UnwindPoint {
		return u.Done(tx)
	}

	c, err := tx.RwCursor(kv.Senders)
	if err != nil {
		return NewError(DBError, err)
	}
	defer c.Close()

	for k, _, err := c.Seek(blockKey(u.UnwindPoint + 1)); k != nil; k, _, err = c.Next() {
		if err != nil {
			return NewError(DBError, err)
		}
		if len(k) != 8 || binary.BigEndian.Uint64(k) <= u.UnwindPoint {
			continue
		}
		if err := c.DeleteCurrent(); err != nil {
			return NewError(DBError, err)
		}
	}

	return u.Done(tx)
}
