package store

import (
	"golang.org/x/exp/slices"
	"honnef.co/go/perfdata/mysync"
	"honnef.co/go/perfdata/trace/perf"
)

type sortEntry struct {
	ts  int64
	seq uint64
	rec perf.Record
}

type sorterState struct {
	entries []sortEntry
	seq     uint64
	max     int64
}

// Sorter collects records from any number of tokenizers and releases them in timestamp order. Records with
// equal timestamps keep the order they were pushed in. It is safe for concurrent use.
type Sorter struct {
	mu *mysync.Mutex[*sorterState]
}

func NewSorter() *Sorter {
	return &Sorter{mu: mysync.NewMutex(&sorterState{})}
}

func (s *Sorter) PushRecord(ts int64, r perf.Record) {
	s.mu.Do(func(st *sorterState) {
		st.entries = append(st.entries, sortEntry{ts: ts, seq: st.seq, rec: r})
		st.seq++
		st.max = max(st.max, ts)
	})
}

// MaxTimestamp returns the largest timestamp pushed so far, or 0 if nothing has been pushed.
func (s *Sorter) MaxTimestamp() int64 {
	var ts int64
	s.mu.RDo(func(st *sorterState) { ts = st.max })
	return ts
}

func (s *Sorter) Len() int {
	var n int
	s.mu.RDo(func(st *sorterState) { n = len(st.entries) })
	return n
}

// Flush calls fn for every buffered record in timestamp order and empties the sorter. fn must not push records.
func (s *Sorter) Flush(fn func(ts int64, r perf.Record)) {
	st, unlock := s.mu.Lock()
	entries := st.entries
	st.entries = nil
	unlock.Unlock()

	slices.SortFunc(entries, func(a, b sortEntry) int {
		switch {
		case a.ts < b.ts:
			return -1
		case a.ts > b.ts:
			return 1
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})
	for _, e := range entries {
		fn(e.ts, e.rec)
	}
}
