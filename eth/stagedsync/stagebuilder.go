package stagedsync

import (
	"context"

	"github.com/erigontech/chainsync/erigon-lib/kv"
	"github.com/erigontech/chainsync/erigon-lib/log"
)

// DefaultStages wires the two stages this core implements into their
// ordinal order, following the teacher's *Stages functions (e.g.
// MiningStages in the original stagebuilder.go): each Cfg is captured by a
// closure that adapts the stage's Spawn/Unwind free functions to the
// StageFunc/UnwindFunc shape.
func DefaultStages(blockHashesCfg BlockHashesCfg, sendersCfg SendersCfg) []*Stage {
	return []*Stage{
		{
			ID:          BlockHashesStageID,
			Ordinal:     1,
			Description: "Derive header numbers from canonical hashes",
			Forward: func(firstCycle bool, s *StageState, u Unwinder, tx kv.RwTx, ctx context.Context, logger log.Logger) error {
				return SpawnBlockHashes(s, tx, blockHashesCfg, ctx, logger)
			},
			Unwind: func(u *UnwindState, s *StageState, tx kv.RwTx, ctx context.Context, logger log.Logger) error {
				return UnwindBlockHashes(u, s, tx, ctx, logger)
			},
		},
		{
			ID:          SendersStageID,
			Ordinal:     2,
			Description: "Recover transaction sender addresses",
			Forward: func(firstCycle bool, s *StageState, u Unwinder, tx kv.RwTx, ctx context.Context, logger log.Logger) error {
				return SpawnSenders(s, tx, sendersCfg, ctx, logger)
			},
			Unwind: func(u *UnwindState, s *StageState, tx kv.RwTx, ctx context.Context, logger log.Logger) error {
				return UnwindSenders(u, s, tx, ctx, logger)
			},
		},
	}
}
