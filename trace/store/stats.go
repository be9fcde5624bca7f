package store

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
	"honnef.co/go/perfdata/mysync"
	"honnef.co/go/perfdata/trace/perf"
)

type statsState struct {
	counts  [perf.NumStats]int64
	indexed [perf.NumStats]map[int]int64
}

// Stats implements perf.Stats. It is safe for concurrent use.
type Stats struct {
	mu *mysync.Mutex[*statsState]
}

func NewStats() *Stats {
	return &Stats{mu: mysync.NewMutex(&statsState{})}
}

func (s *Stats) Increment(stat perf.Stat) {
	s.mu.Do(func(st *statsState) {
		st.counts[stat]++
	})
}

func (s *Stats) IncrementIndexed(stat perf.Stat, idx int) {
	s.mu.Do(func(st *statsState) {
		if st.indexed[stat] == nil {
			st.indexed[stat] = make(map[int]int64)
		}
		st.indexed[stat][idx]++
	})
}

// Get returns the value of a stat. For indexed stats, it returns the sum over all indices.
func (s *Stats) Get(stat perf.Stat) int64 {
	var n int64
	s.mu.RDo(func(st *statsState) {
		n = st.counts[stat]
		for _, v := range st.indexed[stat] {
			n += v
		}
	})
	return n
}

func (s *Stats) GetIndexed(stat perf.Stat, idx int) int64 {
	var n int64
	s.mu.RDo(func(st *statsState) {
		n = st.indexed[stat][idx]
	})
	return n
}

// String lists all non-zero stats, one per line.
func (s *Stats) String() string {
	var sb strings.Builder
	s.mu.RDo(func(st *statsState) {
		for stat := range perf.NumStats {
			if n := st.counts[stat]; n != 0 {
				fmt.Fprintf(&sb, "%s: %d\n", stat, n)
			}
			keys := make([]int, 0, len(st.indexed[stat]))
			for k := range st.indexed[stat] {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				fmt.Fprintf(&sb, "%s[%d]: %d\n", stat, k, st.indexed[stat][k])
			}
		}
	})
	return sb.String()
}
