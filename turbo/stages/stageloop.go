// Package stages drives the continuous staged-sync loop: repeatedly run a
// forward cycle, handle any pending unwind, prune, and wait out the
// configured minimum loop interval before the next iteration.
package stages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erigontech/chainsync/erigon-lib/common"
	"github.com/erigontech/chainsync/erigon-lib/kv"
	"github.com/erigontech/chainsync/erigon-lib/log"
	"github.com/erigontech/chainsync/eth/stagedsync"
)

// StageLoop runs staged sync forever, until ctx is canceled or quit is
// closed, sleeping out loopMinTime between cycles. Grounded on
// turbo/stages/stageloop.go's StageLoop/StageLoopIteration pair, trimmed
// down for this core's two stages: no header-downloader recovery hook, no
// partial-commit bookkeeping, no notification hooks.
func StageLoop(ctx context.Context, db kv.RwDB, sync *stagedsync.Sync, quit <-chan struct{}, loopMinTime time.Duration, logger log.Logger) {
	for {
		start := time.Now()

		select {
		case <-quit:
			return
		default:
		}

		err := StageLoopIteration(ctx, db, sync, logger)
		if err != nil {
			if errors.Is(err, common.ErrStopped) || errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("Staged sync", "err", err)
			time.Sleep(500 * time.Millisecond) // avoid hammering the log with the same failure
			continue
		}

		if loopMinTime != 0 {
			wait := loopMinTime - time.Since(start)
			if wait > 0 {
				c := time.After(wait)
				select {
				case <-ctx.Done():
					return
				case <-quit:
					return
				case <-c:
				}
			}
		}
	}
}

// StageLoopIteration runs exactly one Sync.Run cycle (an unwind cycle if
// one is pending, otherwise a forward cycle) followed by one prune pass,
// recovering a panic from inside sync.Run into an error rather than
// crashing the loop - mirroring the teacher's "avoid crash because
// Erigon's core does many things" comment on the same recover in
// StageLoopIteration. The driver itself (stagedsync.Sync.callForward)
// already recovers panics from individual stages; this outer recover
// guards the loop against anything escaping Run/RunPrune themselves.
func StageLoopIteration(ctx context.Context, db kv.RwDB, sync *stagedsync.Sync, logger log.Logger) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = stagedsync.NewError(stagedsync.UnexpectedError, fmt.Errorf("panic in stage loop: %v", rec))
		}
	}()

	if err := sync.Run(ctx, db); err != nil {
		return err
	}

	if logCtx := sync.PrintTimings(); len(logCtx) > 0 {
		logger.Info("Timings (slower than 50ms)", logCtx...)
	}

	if err := sync.RunPrune(ctx, db); err != nil {
		return err
	}
	return nil
}
