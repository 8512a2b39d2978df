package stagedsync

import (
	"context"

	"github.com/erigontech/chainsync/erigon-lib/kv"
	"github.com/erigontech/chainsync/erigon-lib/log"
)

// Unwinder lets a stage's forward call request that the driver unwind the
// chain to a lower height - e.g. on discovering a bad block hash. Neither
// BlockHashes nor Senders currently calls UnwindTo (their unwind is only
// ever driven externally), but the capability lives on the interface so a
// future stage can use it without changing the Stage shape.
type Unwinder interface {
	UnwindTo(height uint64, reason error)
}

// StageState is the view of the Registry a single stage's forward call
// gets: its own key and current forward watermark, resolved once by the
// Sync driver before invoking Forward.
type StageState struct {
	ID          string
	BlockNumber uint64

	registry *Registry
}

// LogPrefix returns the "[StageID]" tag the teacher's stage log lines use
// throughout (see SpawnLogIndex's logger.Info(fmt.Sprintf("[%s] ...",
// logPrefix), ...)).
func (s *StageState) LogPrefix() string { return "[" + s.ID + "]" }

// ExecutionAt returns the predecessor stage's forward watermark - the
// upper bound this stage may advance to this cycle. Named after the
// teacher's StageState.ExecutionAt, which plays the identical role
// against the Execution stage specifically; here it is generalized to
// whichever stage key the calling stage passes as predecessorKey.
func (s *StageState) ExecutionAt(tx kv.Tx, predecessorKey string) (uint64, error) {
	return s.registry.GetProgress(tx, predecessorKey)
}

// Update persists this stage's new forward watermark.
func (s *StageState) Update(tx kv.RwTx, blockNum uint64) error {
	return s.registry.PutProgress(tx, s.ID, blockNum)
}

// UnwindState is the view of the Registry a stage's unwind call gets.
type UnwindState struct {
	ID          string
	UnwindPoint uint64

	registry *Registry
}

// Done persists the unwound watermark.
func (u *UnwindState) Done(tx kv.RwTx) error {
	return u.registry.PutProgress(tx, u.ID, u.UnwindPoint)
}

// PruneState is the view of the Registry a stage's prune call gets.
type PruneState struct {
	ID              string
	ForwardProgress uint64
	PruneProgress   uint64

	registry *Registry
}

// DoneAt persists the new prune watermark.
func (p *PruneState) DoneAt(tx kv.RwTx, blockNum uint64) error {
	return p.registry.PutPruneProgress(tx, p.ID, blockNum)
}

// StageFunc is a stage's forward operation.
type StageFunc func(firstCycle bool, s *StageState, u Unwinder, tx kv.RwTx, ctx context.Context, logger log.Logger) error

// UnwindFunc is a stage's unwind operation.
type UnwindFunc func(u *UnwindState, s *StageState, tx kv.RwTx, ctx context.Context, logger log.Logger) error

// PruneFunc is a stage's prune operation. A nil PruneFunc on a stage with
// HasPruning == false is never called; per the default contract in
// §4.C, a stage that implements none still succeeds trivially if the
// driver ever calls it by logging and returning success - DefaultPrune
// below is that default.
type PruneFunc func(p *PruneState, tx kv.RwTx, ctx context.Context, logger log.Logger) error

// DefaultPrune is the log-and-succeed prune the Sync driver's prune cycle
// falls back to for a HasPruning stage whose Prune is nil (stages with
// HasPruning == false are never visited by that cycle).
func DefaultPrune(p *PruneState, tx kv.RwTx, ctx context.Context, logger log.Logger) error {
	logger.Debug("prune not implemented", "stage", p.ID)
	return nil
}

// Stage is a named unit of deterministic transformation with a fixed
// position in the cycle: key, ordinal (>0, globally unique), whether it
// participates in pruning, and whether it is currently disabled.
// Constructed once at startup and reused across cycles, mirroring the
// teacher's []*Stage returned from stagebuilder.go's *Stages functions.
type Stage struct {
	ID          string
	Ordinal     int
	Description string
	HasPruning  bool
	Disabled    bool

	Forward StageFunc
	Unwind  UnwindFunc
	Prune   PruneFunc
}
