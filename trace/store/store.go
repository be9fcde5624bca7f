// Package store holds the in-memory state a perf import produces: the sorter that orders records across
// pipelines, and the trackers records are applied to.
package store

import (
	"fmt"
	"strings"

	"honnef.co/go/perfdata/compress"
	"honnef.co/go/perfdata/trace/perf/record"
)

// Store bundles everything an import writes to. The sorter and the stats, clock, aux and file sinks are safe
// for concurrent use by tokenizers. The trackers are only used by the single goroutine draining the sorter.
type Store struct {
	Strings  *Strings
	Stats    *Stats
	Sorter   *Sorter
	Clock    *Clock
	Mappings *Mappings
	Stacks   *Stacks
	Threads  *Threads
	Counters *Counters
	Samples  *Samples
	CPUs     *CPUs
	Aux      *Aux
	Files    *Files
}

// New returns an empty store. Aux payloads are compressed with auxCodec.
func New(auxCodec compress.Codec) *Store {
	strs := NewStrings()
	return &Store{
		Strings:  strs,
		Stats:    NewStats(),
		Sorter:   NewSorter(),
		Clock:    NewClock(),
		Mappings: NewMappings(),
		Stacks:   NewStacks(),
		Threads:  NewThreads(strs),
		Counters: NewCounters(),
		Samples:  NewSamples(strs),
		CPUs:     NewCPUs(MaxCPUs),
		Aux:      NewAux(auxCodec),
		Files:    NewFiles(),
	}
}

// ParserConfig returns a record parser configuration that applies records to this store.
func (s *Store) ParserConfig() record.Config {
	return record.Config{
		Mappings:  s.Mappings,
		Stacks:    s.Stacks,
		Processes: s.Threads,
		Counters:  s.Counters,
		Samples:   s.Samples,
		CPUs:      s.CPUs,
		Stats:     s.Stats,
	}
}

// Summary describes the store's contents in a few lines.
func (s *Store) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "samples: %d\n", s.Samples.Len())
	fmt.Fprintf(&sb, "threads: %d, processes: %d\n", s.Threads.NumThreads(), s.Threads.NumProcesses())
	fmt.Fprintf(&sb, "mappings: %d\n", s.Mappings.Len())
	fmt.Fprintf(&sb, "frames: %d, callsites: %d\n", s.Stacks.NumFrames(), s.Stacks.NumCallsites())
	fmt.Fprintf(&sb, "counters: %d\n", s.Counters.Len())
	fmt.Fprintf(&sb, "cpus: %d\n", s.CPUs.Len())
	fmt.Fprintf(&sb, "aux records: %d (%d bytes compressed)\n", s.Aux.Len(), s.Aux.CompressedSize())
	fmt.Fprintf(&sb, "simpleperf files: %d\n", s.Files.Len())
	sb.WriteString(s.Stats.String())
	return sb.String()
}
