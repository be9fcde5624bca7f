// Package chunk implements an append-only byte accumulator addressed by absolute stream offsets.
//
// Bytes are pushed in chunks of arbitrary size. Consumers request ranges by absolute offset and release
// everything before a given offset once they no longer need it. A range that spans several chunks is copied
// into a new slice of exactly the requested length; a range inside a single chunk is returned without copying.
package chunk

import (
	"errors"
	"fmt"

	"golang.org/x/exp/slices"
)

// ErrDiscarded is returned when a requested range starts before the oldest retained byte.
var ErrDiscarded = errors.New("chunk: range has already been discarded")

type span struct {
	off  int64
	data []byte
}

func (s span) end() int64 { return s.off + int64(len(s.data)) }

// Buffer is a run of pushed chunks minus everything already discarded. The zero value is an empty buffer
// starting at offset 0.
type Buffer struct {
	spans []span
	// start is the oldest retained offset, end is one past the newest pushed byte.
	start int64
	end   int64
}

// Push appends p at the logical end of the stream. The buffer retains p; callers must not modify it afterwards.
func (b *Buffer) Push(p []byte) {
	if len(p) == 0 {
		return
	}
	b.spans = append(b.spans, span{off: b.end, data: p})
	b.end += int64(len(p))
}

// Start returns the oldest offset that can still be requested.
func (b *Buffer) Start() int64 { return b.start }

// End returns the offset one past the last pushed byte.
func (b *Buffer) End() int64 { return b.end }

// Len returns the number of retained bytes.
func (b *Buffer) Len() int64 { return b.end - b.start }

// Empty reports whether no bytes are retained.
func (b *Buffer) Empty() bool { return b.end == b.start }

// SliceAt returns the n bytes starting at absolute offset off. ok is false if not all of the bytes have been
// pushed yet. ErrDiscarded is returned if any of them were already discarded. An empty range is always
// available, wherever it lies.
func (b *Buffer) SliceAt(off int64, n int) (p []byte, ok bool, err error) {
	if n < 0 {
		return nil, false, fmt.Errorf("chunk: negative length %d", n)
	}
	if n == 0 {
		return []byte{}, true, nil
	}
	if off < b.start {
		return nil, false, fmt.Errorf("%w: offset %d, start %d", ErrDiscarded, off, b.start)
	}
	end := off + int64(n)
	if end > b.end {
		return nil, false, nil
	}

	i := b.find(off)
	s := b.spans[i]
	if end <= s.end() {
		lo := off - s.off
		return s.data[lo : lo+int64(n) : lo+int64(n)], true, nil
	}

	out := make([]byte, n)
	copied := copy(out, s.data[off-s.off:])
	for _, s := range b.spans[i+1:] {
		if copied == n {
			break
		}
		copied += copy(out[copied:], s.data)
	}
	return out, true, nil
}

// DiscardBefore releases all bytes strictly before off. It returns false, discarding nothing, if off lies beyond
// the bytes pushed so far. Discarding up to an offset that was already discarded is a no-op.
func (b *Buffer) DiscardBefore(off int64) bool {
	if off > b.end {
		return false
	}
	if off <= b.start {
		return true
	}

	drop := 0
	for drop < len(b.spans) && b.spans[drop].end() <= off {
		drop++
	}
	if drop > 0 {
		clear(b.spans[:drop])
		b.spans = b.spans[drop:]
	}
	if len(b.spans) > 0 && b.spans[0].off < off {
		s := &b.spans[0]
		s.data = s.data[off-s.off:]
		s.off = off
	}
	if len(b.spans) == 0 {
		b.spans = nil
	}
	b.start = off
	return true
}

// find returns the index of the span containing off. off must be retained.
func (b *Buffer) find(off int64) int {
	// Usually the first span.
	if len(b.spans) > 0 && off < b.spans[0].end() {
		return 0
	}
	i, _ := slices.BinarySearchFunc(b.spans, off, func(s span, off int64) int {
		switch {
		case s.end() <= off:
			return -1
		case s.off > off:
			return 1
		default:
			return 0
		}
	})
	return i
}
