package perf

import (
	"fmt"

	"honnef.co/go/perfdata/trace/perf/feature"
)

// ClockID identifies a clock domain, using Linux's clockid_t values.
type ClockID int32

const (
	ClockRealtime     ClockID = 0
	ClockMonotonic    ClockID = 1
	ClockMonotonicRaw ClockID = 4
	ClockBoottime     ClockID = 7
)

func (c ClockID) String() string {
	switch c {
	case ClockRealtime:
		return "realtime"
	case ClockMonotonic:
		return "monotonic"
	case ClockMonotonicRaw:
		return "monotonic_raw"
	case ClockBoottime:
		return "boottime"
	default:
		return fmt.Sprintf("ClockID(%d)", int32(c))
	}
}

// Sorter receives framed records with their trace timestamps. It is shared by all pipelines feeding the same
// trace and establishes the final order of records.
type Sorter interface {
	PushRecord(ts int64, r Record)
	// MaxTimestamp returns the largest timestamp pushed so far by any pipeline.
	MaxTimestamp() int64
}

// ClockTranslator converts timestamps of a clock domain into the trace's time base.
type ClockTranslator interface {
	SetTraceTimeClock(ClockID)
	ToTraceTime(clock ClockID, ts int64) (int64, error)
}

// AuxSink receives records carrying auxiliary trace data, which are not ordered by timestamp.
type AuxSink interface {
	PushAux(r Record)
}

// Stats counts diagnostics. Implementations must be safe for concurrent use.
type Stats interface {
	Increment(s Stat)
	IncrementIndexed(s Stat, idx int)
}

// FileFeatureSink receives the per-binary symbol information that simpleperf stores in its file features.
type FileFeatureSink interface {
	AddSimpleperfFile(f feature.SimpleperfFile)
}
