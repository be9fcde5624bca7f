package store

import (
	"honnef.co/go/perfdata/container"
	"honnef.co/go/perfdata/mem"
	"honnef.co/go/perfdata/trace/perf/record"
)

type Sample struct {
	TS       int64
	UTID     record.UniqueTID
	CPU      uint32
	CPUMode  StringID
	Callsite container.Option[record.CallsiteID]
	Session  int64
}

// Samples implements record.SampleTable.
type Samples struct {
	strings *Strings
	rows    mem.BucketSlice[Sample]
}

func NewSamples(strings *Strings) *Samples {
	return &Samples{strings: strings}
}

func (ss *Samples) InsertSample(row record.SampleRow) {
	ss.rows.Append(Sample{
		TS:       row.TS,
		UTID:     row.UTID,
		CPU:      row.CPU,
		CPUMode:  ss.strings.Intern(row.CPUMode),
		Callsite: row.Callsite,
		Session:  row.Session,
	})
}

func (ss *Samples) Len() int { return ss.rows.Len() }

func (ss *Samples) Get(i int) Sample { return ss.rows.Get(i) }

func (ss *Samples) CPUMode(s Sample) string { return ss.strings.Get(s.CPUMode) }

// All calls fn for each sample in insertion order, stopping early if fn returns false.
func (ss *Samples) All(fn func(i int, s *Sample) bool) { ss.rows.All(fn) }
