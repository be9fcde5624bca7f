package perf

import (
	"encoding/binary"
	"fmt"

	"honnef.co/go/perfdata/container"
)

// readTime returns the raw timestamp stored in a record, if its event records one. Samples store the time at a
// fixed offset from the start, other records in the sample_id trailer at a fixed offset from the end.
// Synthesized user records never carry a time.
func readTime(r *Record) (container.Option[uint64], error) {
	if r.Attr == nil || r.Header.Type >= PERF_RECORD_USER_TYPE_START {
		return container.None[uint64](), nil
	}

	if r.Header.Type == PERF_RECORD_SAMPLE {
		off, ok := r.Attr.TimeOffsetFromStart().Get()
		if !ok {
			return container.None[uint64](), nil
		}
		if off+8 > len(r.Payload) {
			return container.None[uint64](), fmt.Errorf("sample of %d bytes too short for time at offset %d", len(r.Payload), off)
		}
		return container.Some(binary.LittleEndian.Uint64(r.Payload[off:])), nil
	}

	off, ok := r.Attr.TimeOffsetFromEnd().Get()
	if !ok {
		return container.None[uint64](), nil
	}
	if off > len(r.Payload) || off < 8 {
		return container.None[uint64](), fmt.Errorf("%s too short for time at offset %d from end", r, off)
	}
	return container.Some(binary.LittleEndian.Uint64(r.Payload[len(r.Payload)-off:])), nil
}

// timestamps converts raw monotonic timestamps to trace time and places records without a timestamp.
type timestamps struct {
	clock  ClockTranslator
	sorter Sorter
	// latest is the largest trace timestamp handed out so far.
	latest int64
}

// resolve returns the trace timestamp of a record. Records without a time of their own are placed at the
// latest known time, which never moves time backwards but may order them after records that happened later.
func (ts *timestamps) resolve(raw container.Option[uint64]) (int64, error) {
	var t int64
	if v, ok := raw.Get(); ok {
		var err error
		t, err = ts.clock.ToTraceTime(ClockMonotonic, int64(v))
		if err != nil {
			return 0, fmt.Errorf("couldn't convert timestamp %d: %w", v, err)
		}
	} else {
		t = max(ts.latest, ts.sorter.MaxTimestamp())
	}
	ts.latest = max(ts.latest, t)
	return t, nil
}
