package stagedsync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/erigontech/chainsync/erigon-lib/kv"
	"github.com/erigontech/chainsync/erigon-lib/log"
)

// timing threshold for PrintTimings - only stages slower than this show
// up in the summary, matching the teacher's "Timings (slower than 50ms)"
// log line in turbo/stages/stageloop.go.
const slowStageThreshold = 50 * time.Millisecond

// Sync is the staged-sync driver: it holds the ordered stage sequence and
// runs forward/unwind/prune cycles against them. Constructed once at
// startup and reused across cycles (§3's Lifecycles rule).
type Sync struct {
	stages   []*Stage // sorted ascending by Ordinal
	registry *Registry
	logger   log.Logger

	unwindPoint  *uint64
	unwindReason error

	firstCycle bool
	timings    []stageTiming
}

type stageTiming struct {
	id string
	d  time.Duration
}

// New validates the stage set (unique positive ordinals) and returns a
// driver ready to run cycles.
func New(stages []*Stage, logger log.Logger) (*Sync, error) {
	sorted := append([]*Stage(nil), stages...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ordinal < sorted[j].Ordinal })

	seen := make(map[int]bool, len(sorted))
	for _, st := range sorted {
		if st.Ordinal <= 0 {
			return nil, fmt.Errorf("stagedsync: stage %q has non-positive ordinal %d", st.ID, st.Ordinal)
		}
		if seen[st.Ordinal] {
			return nil, fmt.Errorf("stagedsync: duplicate ordinal %d", st.Ordinal)
		}
		seen[st.Ordinal] = true
	}
	return &Sync{stages: sorted, registry: NewRegistry(), logger: logger, firstCycle: true}, nil
}

// UnwindTo implements Unwinder: it records a pending unwind target, acted
// on at the start of the next Run call.
func (s *Sync) UnwindTo(height uint64, reason error) {
	h := height
	s.unwindPoint = &h
	s.unwindReason = reason
}

// IsFirstCycle reports whether no cycle has completed successfully yet.
func (s *Sync) IsFirstCycle() bool { return s.firstCycle }

// Run executes one cycle: an unwind cycle if a target is pending,
// otherwise a forward cycle. The Registry's per-cycle cache is cleared on
// entry, per §4.A.
func (s *Sync) Run(ctx context.Context, db kv.RwDB) error {
	s.registry.ClearCache()
	s.timings = s.timings[:0]

	if s.unwindPoint != nil {
		if err := s.runUnwindCycle(ctx, db); err != nil {
			return err
		}
		return nil
	}

	if err := s.runForwardCycle(ctx, db); err != nil {
		return err
	}
	s.firstCycle = false
	return nil
}

func (s *Sync) runForwardCycle(ctx context.Context, db kv.RwDB) error {
	for _, st := range s.stages {
		if st.Disabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		err := s.runStageForward(ctx, db, st)
		s.timings = append(s.timings, stageTiming{id: st.ID, d: time.Since(start)})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Sync) runStageForward(ctx context.Context, db kv.RwDB, st *Stage) error {
	tx, err := db.BeginRw(ctx)
	if err != nil {
		return NewError(DBError, err)
	}
	defer tx.Rollback()

	blockNumber, err := s.registry.GetProgress(tx, st.ID)
	if err != nil {
		return NewError(DBError, err)
	}
	ss := &StageState{ID: st.ID, BlockNumber: blockNumber, registry: s.registry}

	if err := s.callForward(st, ss, tx, ctx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return NewError(DBError, err)
	}
	return nil
}

// callForward invokes a stage's Forward and converts a panic into
// unexpected_error, the way turbo/stages/stageloop.go's
// StageLoopIteration recovers around sync.Run to "avoid crash because
// Erigon's core does many things".
func (s *Sync) callForward(st *Stage, ss *StageState, tx kv.RwTx, ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(UnexpectedError, fmt.Errorf("panic in stage %s: %v", st.ID, r))
		}
	}()
	return st.Forward(s.firstCycle, ss, s, tx, ctx, s.logger)
}

func (s *Sync) runUnwindCycle(ctx context.Context, db kv.RwDB) error {
	h := *s.unwindPoint
	reversed := make([]*Stage, len(s.stages))
	copy(reversed, s.stages)
	sort.Slice(reversed, func(i, j int) bool { return reversed[i].Ordinal > reversed[j].Ordinal })

	for _, st := range reversed {
		if st.Disabled {
			continue
		}
		if err := s.runStageUnwind(ctx, db, st, h); err != nil {
			return err
		}
	}
	s.unwindPoint = nil
	s.unwindReason = nil
	return nil
}

func (s *Sync) runStageUnwind(ctx context.Context, db kv.RwDB, st *Stage, h uint64) error {
	tx, err := db.BeginRw(ctx)
	if err != nil {
		return NewError(DBError, err)
	}
	defer tx.Rollback()

	progress, err := s.registry.GetProgress(tx, st.ID)
	if err != nil {
		return NewError(DBError, err)
	}
	if progress <= h {
		return tx.Commit()
	}

	us := &UnwindState{ID: st.ID, UnwindPoint: h, registry: s.registry}
	ss := &StageState{ID: st.ID, BlockNumber: progress, registry: s.registry}
	if err := st.Unwind(us, ss, tx, ctx, s.logger); err != nil {
		return err
	}
	return tx.Commit()
}

// RunPrune invokes Prune on every HasPruning stage in ascending order. A
// failure on one stage does not prevent the rest from being attempted;
// the first error encountered is returned once every stage has been
// tried, per §4.F.
func (s *Sync) RunPrune(ctx context.Context, db kv.RwDB) error {
	var firstErr error
	for _, st := range s.stages {
		if st.Disabled || !st.HasPruning {
			continue
		}
		if err := s.runStagePrune(ctx, db, st); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Sync) runStagePrune(ctx context.Context, db kv.RwDB, st *Stage) error {
	tx, err := db.BeginRw(ctx)
	if err != nil {
		return NewError(DBError, err)
	}
	defer tx.Rollback()

	forwardProgress, err := s.registry.GetProgress(tx, st.ID)
	if err != nil {
		return NewError(DBError, err)
	}
	pruneProgress, err := s.registry.GetPruneProgress(tx, st.ID)
	if err != nil {
		return NewError(DBError, err)
	}
	p := &PruneState{ID: st.ID, ForwardProgress: forwardProgress, PruneProgress: pruneProgress, registry: s.registry}

	fn := st.Prune
	if fn == nil {
		fn = DefaultPrune
	}
	if err := fn(p, tx, ctx, s.logger); err != nil {
		return err
	}
	return tx.Commit()
}

// PrintTimings returns keyvals for every stage slower than
// slowStageThreshold in the last cycle, or nil if none were.
func (s *Sync) PrintTimings() []interface{} {
	var out []interface{}
	for _, t := range s.timings {
		if t.d >= slowStageThreshold {
			out = append(out, t.id, t.d.String())
		}
	}
	return out
}
