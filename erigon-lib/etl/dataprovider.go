package etl

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
)

// dataProvider is one ordered source of Collector Entries feeding the
// k-way merge in Collector.Load: either a sorted run spilled to disk, or
// the final in-memory remainder that never reached the flush threshold.
type dataProvider interface {
	// next returns the next entry in ascending (key,value) order, or
	// io.EOF once exhausted.
	next() (k, v []byte, seq int64, err error)
	// close releases any resources (open file handle); for a spilled run
	// this does not remove the file - Collector.Close removes every run
	// file the Collector recorded instead.
	close()
}

// memoryProvider serves entries straight out of a sorted in-memory slice.
// It is always given the highest provider index in a Load's merge; an
// UPSERT key collision is resolved by each entry's Collect sequence
// number, not by provider index.
type memoryProvider struct {
	entries []entry
	pos     int
}

func (p *memoryProvider) next() ([]byte, []byte, int64, error) {
	if p.pos >= len(p.entries) {
		return nil, nil, 0, io.EOF
	}
	e := p.entries[p.pos]
	p.pos++
	return e.k, e.v, e.seq, nil
}

func (p *memoryProvider) close() {}

// fileProvider reads back a sorted run spilled to disk by flushRun. Each
// record is length-prefixed and trailed by a CRC32 checksum so a short
// read or on-disk corruption is detected rather than silently
// misinterpreted as valid entry bytes.
type fileProvider struct {
	f   *os.File
	r   io.Reader
	buf []byte
}

func openFileProvider(path string) (*fileProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &fileProvider{f: f, r: f}, nil
}

func (p *fileProvider) next() ([]byte, []byte, int64, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(p.r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, nil, 0, io.EOF
		}
		return nil, nil, 0, ErrCorruptRun
	}
	klen := binary.BigEndian.Uint32(lenBuf[:])
	k := make([]byte, klen)
	if _, err := io.ReadFull(p.r, k); err != nil {
		return nil, nil, 0, ErrCorruptRun
	}
	if _, err := io.ReadFull(p.r, lenBuf[:]); err != nil {
		return nil, nil, 0, ErrCorruptRun
	}
	vlen := binary.BigEndian.Uint32(lenBuf[:])
	v := make([]byte, vlen)
	if _, err := io.ReadFull(p.r, v); err != nil {
		return nil, nil, 0, ErrCorruptRun
	}
	var seqBuf [8]byte
	if _, err := io.ReadFull(p.r, seqBuf[:]); err != nil {
		return nil, nil, 0, ErrCorruptRun
	}
	seq := int64(binary.BigEndian.Uint64(seqBuf[:]))
	var sumBuf [4]byte
	if _, err := io.ReadFull(p.r, sumBuf[:]); err != nil {
		return nil, nil, 0, ErrCorruptRun
	}
	want := binary.BigEndian.Uint32(sumBuf[:])
	if got := recordChecksum(k, v, seq); got != want {
		return nil, nil, 0, ErrCorruptRun
	}
	return k, v, seq, nil
}

func (p *fileProvider) close() {
	_ = p.f.Close()
}

func recordChecksum(k, v []byte, seq int64) uint32 {
	h := crc32.NewIEEE()
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
	h.Write(lenBuf[:])
	h.Write(k)
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
	h.Write(lenBuf[:])
	h.Write(v)
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], uint64(seq))
	h.Write(seqBuf[:])
	return h.Sum32()
}

// flushRun writes entries (assumed already sorted) to a new file under
// dir and returns its path. The caller is responsible for removing the
// file once the Collector is destroyed.
func flushRun(dir, namePattern string, entries []entry) (path string, err error) {
	f, err := os.CreateTemp(dir, namePattern)
	if err != nil {
		return "", ErrStorageFull
	}
	defer f.Close()

	w := &countingWriter{w: f}
	var lenBuf [4]byte
	var seqBuf [8]byte
	for _, e := range entries {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e.k)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return "", ErrStorageFull
		}
		if _, err := w.Write(e.k); err != nil {
			return "", ErrStorageFull
		}
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e.v)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return "", ErrStorageFull
		}
		if _, err := w.Write(e.v); err != nil {
			return "", ErrStorageFull
		}
		binary.BigEndian.PutUint64(seqBuf[:], uint64(e.seq))
		if _, err := w.Write(seqBuf[:]); err != nil {
			return "", ErrStorageFull
		}
		sum := recordChecksum(e.k, e.v, e.seq)
		binary.BigEndian.PutUint32(lenBuf[:], sum)
		if _, err := w.Write(lenBuf[:]); err != nil {
			return "", ErrStorageFull
		}
	}
	return f.Name(), nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
