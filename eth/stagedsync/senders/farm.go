package senders

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/erigontech/chainsync/erigon-lib/common"
	"github.com/erigontech/chainsync/erigon-lib/etl"
	"github.com/erigontech/chainsync/erigon-lib/log"
)

// Batch is one unit of dispatch: a contiguous, ordered slice of Recovery
// Packages and the addresses a worker fills in alongside them. seq is the
// farm's monotonic dispatch counter, used by the harvester to reassemble
// completed batches back into original order regardless of which worker
// finishes first.
type Batch struct {
	seq   int64
	pkgs  []RecoveryPackage
	addrs [][common.AddressLength]byte
}

// Farm is the bounded worker pool that recovers sender addresses. Workers
// are spawned lazily up to maxWorkers and never outlive the farm: Close
// returns only once every worker goroutine has exited.
type Farm struct {
	maxWorkers int
	batchSize  int
	logger     log.Logger

	stopping atomic.Bool

	dispatchCh chan *Batch

	mu          sync.Mutex
	cond        *sync.Cond
	liveWorkers int
	harvestable map[int64]*Batch
	nextSeq     int64 // next dispatch seq to assign
	nextHarvest int64 // next seq the harvester is waiting to consume

	eg    *errgroup.Group
	egCtx context.Context

	cur []RecoveryPackage // the producer's in-progress partial batch
}

// NewFarm constructs a farm with a worker ceiling and per-batch package
// count. ctx governs the errgroup supervising worker goroutines: if a
// worker returns ErrInvalidTransaction, the group's derived context is
// canceled and that propagates to every other worker and to the producer.
func NewFarm(ctx context.Context, maxWorkers, batchSize int, logger log.Logger) *Farm {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	eg, egCtx := errgroup.WithContext(ctx)
	f := &Farm{
		maxWorkers:  maxWorkers,
		batchSize:   batchSize,
		logger:      logger,
		dispatchCh:  make(chan *Batch, maxWorkers),
		harvestable: make(map[int64]*Batch),
		eg:          eg,
		egCtx:       egCtx,
	}
	f.cond = sync.NewCond(&f.mu)
	go func() {
		<-ctx.Done()
		f.stopping.Store(true)
	}()
	return f
}

// Stop sets the shared cancellation flag. Safe to call concurrently and
// repeatedly; it only ever touches the atomic, matching the "safe from a
// signal handler" requirement in §9's worker-farm lifecycle notes.
func (f *Farm) Stop() {
	f.stopping.Store(true)
}

// Stopping reports whether Stop has been called.
func (f *Farm) Stopping() bool {
	return f.stopping.Load()
}

// Submit appends one package to the producer's in-progress batch,
// dispatching it once it reaches batchSize. It blocks if every worker is
// busy and the pool is already at its ceiling (back-pressure, bounding
// memory to roughly batchSize * maxWorkers packages in flight).
func (f *Farm) Submit(pkg RecoveryPackage) error {
	f.cur = append(f.cur, pkg)
	if len(f.cur) < f.batchSize {
		return nil
	}
	return f.dispatchCurrent()
}

// Flush dispatches any partial batch accumulated by Submit.
func (f *Farm) Flush() error {
	if len(f.cur) == 0 {
		return nil
	}
	return f.dispatchCurrent()
}

func (f *Farm) dispatchCurrent() error {
	batch := &Batch{seq: f.nextSeq, pkgs: f.cur, addrs: make([][common.AddressLength]byte, len(f.cur))}
	f.nextSeq++
	f.cur = nil
	return f.dispatch(batch)
}

func (f *Farm) dispatch(batch *Batch) error {
	f.mu.Lock()
	if f.liveWorkers < f.maxWorkers {
		f.liveWorkers++
		f.eg.Go(f.workerLoop)
	}
	f.mu.Unlock()

	select {
	case f.dispatchCh <- batch:
		return nil
	case <-f.egCtx.Done():
		return f.eg.Wait()
	}
}

// workerLoop runs on its own goroutine for the lifetime of the farm,
// pulling whole batches off dispatchCh until it is closed or stopping is
// observed between packages.
func (f *Farm) workerLoop() error {
	defer func() {
		f.mu.Lock()
		f.liveWorkers--
		f.cond.Broadcast()
		f.mu.Unlock()
	}()

	for batch := range f.dispatchCh {
		for i, pkg := range batch.pkgs {
			if f.stopping.Load() {
				return nil
			}
			addr, err := Recover(pkg)
			if err != nil {
				f.stopping.Store(true)
				return err
			}
			batch.addrs[i] = addr
		}
		f.mu.Lock()
		f.harvestable[batch.seq] = batch
		f.cond.Broadcast()
		f.mu.Unlock()
	}
	return nil
}

// DrainHarvest consumes every harvestable batch currently available, in
// strict dispatch-sequence order, accumulating recovered addresses into
// acc grouped by block number. It never blocks: a batch whose seq is not
// yet the next expected one stays in harvestable until its predecessors
// arrive.
func (f *Farm) DrainHarvest(acc *BlockAccumulator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		b, ok := f.harvestable[f.nextHarvest]
		if !ok {
			return nil
		}
		delete(f.harvestable, f.nextHarvest)
		f.nextHarvest++
		for i, pkg := range b.pkgs {
			if err := acc.Add(pkg.BlockNum, b.addrs[i]); err != nil {
				return err
			}
		}
	}
}

// Close signals no further batches will be dispatched and blocks until
// every worker has exited and the harvest queue has been fully drained
// into acc, matching the Completion contract in §4.E: "waits on the
// condition variable until live_workers == 0 and the harvest queue is
// empty".
func (f *Farm) Close(acc *BlockAccumulator) error {
	close(f.dispatchCh)

	f.mu.Lock()
	for f.liveWorkers > 0 {
		f.cond.Wait()
	}
	f.mu.Unlock()

	if err := f.DrainHarvest(acc); err != nil {
		_ = f.eg.Wait()
		return err
	}
	if err := f.eg.Wait(); err != nil {
		return err
	}
	return acc.Flush()
}

// BlockAccumulator groups recovered addresses by block number as they
// arrive in order, flushing each block's concatenated address list into a
// Collector exactly once the next block's first address appears (or Flush
// is called on the accumulator, for the last block).
type BlockAccumulator struct {
	collector *etl.Collector

	haveBlock bool
	curBlock  uint64
	curAddrs  []byte
}

func NewBlockAccumulator(collector *etl.Collector) *BlockAccumulator {
	return &BlockAccumulator{collector: collector}
}

func (a *BlockAccumulator) Add(blockNum uint64, addr [common.AddressLength]byte) error {
	if a.haveBlock && blockNum != a.curBlock {
		if err := a.Flush(); err != nil {
			return err
		}
	}
	a.haveBlock = true
	a.curBlock = blockNum
	a.curAddrs = append(a.curAddrs, addr[:]...)
	return nil
}

func (a *BlockAccumulator) Flush() error {
	if !a.haveBlock {
		return nil
	}
	var key [8]byte
	putBlockNum(key[:], a.curBlock)
	if err := a.collector.Collect(key[:], a.curAddrs); err != nil {
		return err
	}
	a.haveBlock = false
	a.curAddrs = nil
	return nil
}

func putBlockNum(b []byte, n uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(n)
		n >>= 8
	}
}
