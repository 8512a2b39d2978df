package etl

import (
	"container/heap"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/erigontech/chainsync/erigon-lib/kv"
	"github.com/erigontech/chainsync/erigon-lib/log"
)

// staleRunAge bounds the construction-time sweep to files old enough that
// they cannot belong to a Collector still actively spilling runs: a live
// Collector only ever writes into its own runs, never touches another
// Collector's files, and spills at least once every time its buffer fills,
// so a run file untouched for this long was abandoned by a crash rather
// than owned by something still running.
const staleRunAge = time.Hour

// Collector is a per-invocation external-sort buffer: created at the start
// of a stage's forward/unwind, destroyed (with every spill file it wrote)
// before that call returns on any exit path.
type Collector struct {
	logPrefix string
	tmpDir    string
	bufLimit  datasize.ByteSize
	logger    log.Logger

	id      string
	buf     *buffer
	runs    []string // paths of sorted runs already flushed to disk
	nextSeq int64
	count   int64
}

// NewCollector creates a Collector scoped to tmpDir with the given
// in-memory flush threshold. On construction it best-effort sweeps tmpDir
// for run files left by a crashed prior Collector (see sweepStale), the
// same defensive cleanup the Collector contract calls for.
func NewCollector(logPrefix, tmpDir string, bufLimit datasize.ByteSize, logger log.Logger) *Collector {
	if bufLimit == 0 {
		bufLimit = DefaultBufferSize
	}
	c := &Collector{
		logPrefix: logPrefix,
		tmpDir:    tmpDir,
		bufLimit:  bufLimit,
		logger:    logger,
		id:        fmt.Sprintf("%p", &struct{}{}),
		buf:       newBuffer(),
	}
	c.sweepStale()
	return c
}

// sweepStale removes run files left behind by a Collector that crashed
// before its own Close could run. It matches the real run-file pattern
// ("etl-*.tmp", see flushRun), guarded by staleRunAge so it never touches
// a file a concurrently running Collector still owns.
func (c *Collector) sweepStale() {
	entries, err := os.ReadDir(c.tmpDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "etl-") || !strings.HasSuffix(name, ".tmp") {
			continue
		}
		info, err := e.Info()
		if err != nil || time.Since(info.ModTime()) < staleRunAge {
			continue
		}
		_ = os.Remove(filepath.Join(c.tmpDir, name))
	}
}

// Collect adds one entry to the buffer, spilling to a new sorted run if
// the byte budget has been exceeded.
func (c *Collector) Collect(k, v []byte) error {
	if len(k) > MaxKeyLength {
		return ErrKeyTooLarge
	}
	if len(v) > MaxValueLength {
		return ErrValueTooLarge
	}
	c.buf.put(k, v, c.nextSeq)
	c.nextSeq++
	c.count++
	if datasize.ByteSize(c.buf.sizeBytes()) > c.bufLimit {
		return c.flush()
	}
	return nil
}

func (c *Collector) flush() error {
	if c.buf.len() == 0 {
		return nil
	}
	c.buf.sort()
	path, err := flushRun(c.tmpDir, fmt.Sprintf("etl-%s-*.tmp", c.id), c.buf.entries)
	if err != nil {
		return err
	}
	c.runs = append(c.runs, path)
	c.buf.reset()
	return nil
}

// Close removes every sorted-run file this Collector ever created,
// including ones already consumed by a prior Load call. Safe to call
// multiple times.
func (c *Collector) Close() {
	for _, p := range c.runs {
		_ = os.Remove(p)
	}
	c.runs = nil
	c.buf.reset()
}

// mergeSource pairs a dataProvider with its most recently peeked head
// entry, for the k-way merge heap.
type mergeSource struct {
	provider dataProvider
	idx      int // provider's position in Load's list; UPSERT ties go by seq
	k, v     []byte
	seq      int64
}

type mergeHeap []*mergeSource

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	c := cmpBytes(h[i].k, h[j].k)
	if c != 0 {
		return c < 0
	}
	return cmpBytes(h[i].v, h[j].v) < 0
}
func (h mergeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(*mergeSource)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func cmpBytes(a, b []byte) int {
	la, lb := len(a), len(b)
	n := la
	if lb < n {
		n = lb
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	default:
		return 0
	}
}

// Load consumes every collected entry in ascending (key, value) order and
// inserts it into dest. In AppendMode a duplicate key is rejected with
// ErrNonMonotoneAppend before dest is touched for that key; in UpsertMode
// the entry with the highest Collect-order sequence number among a group
// of duplicate keys wins.
func (c *Collector) Load(dest kv.RwCursor, transform TransformFunc, mode LoadMode, logEveryPercent int) error {
	defer c.Close()

	providers := make([]dataProvider, 0, len(c.runs)+1)
	for _, path := range c.runs {
		fp, err := openFileProvider(path)
		if err != nil {
			return ErrCorruptRun
		}
		providers = append(providers, fp)
	}
	// No runs spilled at all (the common case for a small incremental
	// cycle) takes the hot path here: the in-memory buffer is sorted once
	// and streamed straight to dest, with no disk round-trip. When runs do
	// exist, the same in-memory remainder joins the merge as the last
	// provider; on an UPSERT key collision the entry with the highest
	// Collect sequence number wins, whichever provider it came from.
	c.buf.sort()
	providers = append(providers, &memoryProvider{entries: c.buf.entries})
	for _, p := range providers {
		defer p.close()
	}

	h := &mergeHeap{}
	heap.Init(h)
	for i, p := range providers {
		k, v, seq, err := p.next()
		if err == io.EOF {
			continue
		}
		if err != nil {
			return err
		}
		heap.Push(h, &mergeSource{provider: p, idx: i, k: k, v: v, seq: seq})
	}

	var (
		pending     []*mergeSource // all entries sharing the current key
		lastLogged  int
		processed   int64
		total       = c.count
	)

	emitGroup := func() error {
		if len(pending) == 0 {
			return nil
		}
		if mode == AppendMode && len(pending) > 1 {
			return ErrNonMonotoneAppend
		}
		winner := pending[0]
		for _, cand := range pending[1:] {
			if cand.seq > winner.seq {
				winner = cand
			}
		}
		k, v := winner.k, winner.v
		if transform != nil {
			var ok bool
			var err error
			k, v, ok, err = transform(k, v)
			if err != nil {
				return err
			}
			if !ok {
				pending = pending[:0]
				return nil
			}
		}
		var err error
		if mode == AppendMode {
			err = dest.Append(k, v)
		} else {
			err = dest.Put(k, v)
		}
		pending = pending[:0]
		return err
	}

	for h.Len() > 0 {
		top := heap.Pop(h).(*mergeSource)

		if len(pending) > 0 && cmpBytes(pending[0].k, top.k) != 0 {
			if err := emitGroup(); err != nil {
				return err
			}
		}
		pending = append(pending, top)
		processed++

		if logEveryPercent > 0 && total > 0 {
			pct := int(processed * 100 / total)
			if pct >= lastLogged+logEveryPercent {
				lastLogged = pct
				c.logger.Info(fmt.Sprintf("[%s] etl load progress", c.logPrefix), "percent", pct)
			}
		}

		nk, nv, nseq, err := top.provider.next()
		if err == io.EOF {
			continue
		}
		if err != nil {
			return err
		}
		heap.Push(h, &mergeSource{provider: top.provider, idx: top.idx, k: nk, v: nv, seq: nseq})
	}
	return emitGroup()
}
