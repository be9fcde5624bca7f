package record

import (
	"errors"
	"fmt"

	"honnef.co/go/perfdata/container"
	"honnef.co/go/perfdata/trace/perf"
)

// Frame is one entry of a call chain.
type Frame struct {
	Mode perf.CPUMode
	IP   uint64
}

// ReadValue is the value of one counter read along with a sample.
type ReadValue struct {
	EventID container.Option[uint64]
	Value   uint64
}

type PIDTID struct {
	PID, TID uint32
}

// Sample is a decoded PERF_RECORD_SAMPLE. Only the fields up to and including the call chain are decoded.
type Sample struct {
	TS      int64
	Mode    perf.CPUMode
	Attr    *perf.EventAttr
	Session *perf.Session

	ID       container.Option[uint64]
	IP       container.Option[uint64]
	PIDTID   container.Option[PIDTID]
	Time     container.Option[uint64]
	Addr     container.Option[uint64]
	StreamID container.Option[uint64]
	CPU      container.Option[uint32]
	Period   container.Option[uint64]
	// ReadGroups holds the counter values of PERF_SAMPLE_READ.
	ReadGroups []ReadValue
	// Callchain is ordered from the innermost frame to the outermost.
	Callchain []Frame
}

func DecodeSample(ts int64, r perf.Record) (Sample, error) {
	if r.Attr == nil {
		return Sample{}, errors.New("sample without event")
	}
	s := Sample{
		TS:      ts,
		Mode:    r.CPUMode(),
		Attr:    r.Attr,
		Session: r.Session,
	}
	st := r.Attr.SampleType
	f := fields{b: r.Payload}

	f.uint64If(st&perf.PERF_SAMPLE_IDENTIFIER != 0, &s.ID)
	f.uint64If(st&perf.PERF_SAMPLE_IP != 0, &s.IP)
	if st&perf.PERF_SAMPLE_TID != 0 {
		var pt PIDTID
		f.uint32Pair(&pt.PID, &pt.TID)
		s.PIDTID = container.Some(pt)
	}
	f.uint64If(st&perf.PERF_SAMPLE_TIME != 0, &s.Time)
	f.uint64If(st&perf.PERF_SAMPLE_ADDR != 0, &s.Addr)
	f.uint64If(st&perf.PERF_SAMPLE_ID != 0, &s.ID)
	f.uint64If(st&perf.PERF_SAMPLE_STREAM_ID != 0, &s.StreamID)
	if st&perf.PERF_SAMPLE_CPU != 0 {
		var cpu, res uint32
		f.uint32Pair(&cpu, &res)
		s.CPU = container.Some(cpu)
	}
	f.uint64If(st&perf.PERF_SAMPLE_PERIOD != 0, &s.Period)
	if st&perf.PERF_SAMPLE_READ != 0 {
		s.ReadGroups = decodeRead(&f, r.Attr.ReadFormat)
	}
	if st&perf.PERF_SAMPLE_CALLCHAIN != 0 {
		var err error
		if s.Callchain, err = decodeCallchain(&f, s.Mode); err != nil {
			return s, err
		}
	}
	if f.err != nil {
		return s, fmt.Errorf("couldn't decode sample: %w", f.err)
	}
	return s, nil
}

// decodeRead decodes the read_format structure of a sample.
func decodeRead(f *fields, rf perf.ReadFormat) []ReadValue {
	value := func() ReadValue {
		var v ReadValue
		v.Value = f.uint64()
		f.uint64If(rf&perf.PERF_FORMAT_ID != 0, &v.EventID)
		if rf&perf.PERF_FORMAT_LOST != 0 {
			f.uint64()
		}
		return v
	}

	if rf&perf.PERF_FORMAT_GROUP == 0 {
		v := ReadValue{Value: f.uint64()}
		if rf&perf.PERF_FORMAT_TOTAL_TIME_ENABLED != 0 {
			f.uint64()
		}
		if rf&perf.PERF_FORMAT_TOTAL_TIME_RUNNING != 0 {
			f.uint64()
		}
		f.uint64If(rf&perf.PERF_FORMAT_ID != 0, &v.EventID)
		if rf&perf.PERF_FORMAT_LOST != 0 {
			f.uint64()
		}
		return []ReadValue{v}
	}

	nr := f.uint64()
	if rf&perf.PERF_FORMAT_TOTAL_TIME_ENABLED != 0 {
		f.uint64()
	}
	if rf&perf.PERF_FORMAT_TOTAL_TIME_RUNNING != 0 {
		f.uint64()
	}
	if f.err != nil || nr > uint64(len(f.b)/8) {
		f.err = errShort
		return nil
	}
	out := make([]ReadValue, 0, nr)
	for i := uint64(0); i < nr && f.err == nil; i++ {
		out = append(out, value())
	}
	return out
}

// decodeCallchain decodes a call chain. Entries at or above PERF_CONTEXT_MAX are markers that set the CPU mode
// of the frames following them.
func decodeCallchain(f *fields, mode perf.CPUMode) ([]Frame, error) {
	nr := f.uint64()
	if f.err != nil || nr > uint64(len(f.b)/8) {
		f.err = errShort
		return nil, nil
	}
	frames := make([]Frame, 0, nr)
	for i := uint64(0); i < nr; i++ {
		ip := f.uint64()
		if ip >= perf.PERF_CONTEXT_MAX {
			var err error
			if mode, err = contextToCPUMode(ip); err != nil {
				return nil, err
			}
			continue
		}
		frames = append(frames, Frame{Mode: mode, IP: ip})
	}
	return frames, nil
}

func contextToCPUMode(marker uint64) (perf.CPUMode, error) {
	switch marker {
	case perf.PERF_CONTEXT_HV:
		return perf.CPUModeHypervisor, nil
	case perf.PERF_CONTEXT_KERNEL:
		return perf.CPUModeKernel, nil
	case perf.PERF_CONTEXT_USER:
		return perf.CPUModeUser, nil
	case perf.PERF_CONTEXT_GUEST_KERNEL:
		return perf.CPUModeGuestKernel, nil
	case perf.PERF_CONTEXT_GUEST_USER:
		return perf.CPUModeGuestUser, nil
	default:
		return 0, fmt.Errorf("unexpected call chain context %#x", marker)
	}
}
