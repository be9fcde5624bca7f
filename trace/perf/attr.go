package perf

import (
	"encoding/binary"
	"fmt"

	"honnef.co/go/perfdata/container"
)

// EventAttr describes one event recorded in the file: a decoded perf_event_attr plus the numeric event IDs
// that route records to it. EventAttrs are created while parsing the attrs section and are read-only afterwards.
type EventAttr struct {
	Type               EventType
	Size               uint32
	Config             uint64
	SamplePeriodOrFreq uint64
	SampleType         SampleFlag
	ReadFormat         ReadFormat
	Flags              AttrFlag
	WakeupEvents       uint32
	BPType             uint32
	Config1            uint64
	Config2            uint64
	BranchSampleType   uint64
	SampleRegsUser     uint64
	SampleStackUser    uint32
	ClockID            int32
	SampleRegsIntr     uint64
	AuxWatermark       uint32
	SampleMaxStack     uint16
	AuxSampleSize      uint32
	SigData            uint64
	Config3            uint64

	IDs []uint64

	// Index is the position of the attribute in the attrs section.
	Index int

	timeOffsetFromStart container.Option[int]
	timeOffsetFromEnd   container.Option[int]
	idOffsetFromStart   container.Option[int]
	idOffsetFromEnd     container.Option[int]
}

// DecodeEventAttr decodes a perf_event_attr. Attributes written by older kernels are shorter than the layout
// we know about; missing fields are zero. Fields added after PERF_ATTR_SIZE_VER8 are ignored.
func DecodeEventAttr(b []byte) (*EventAttr, error) {
	if len(b) < minAttrSize {
		return nil, fmt.Errorf("perf_event_attr of %d bytes is smaller than the minimum of %d", len(b), minAttrSize)
	}
	le := binary.LittleEndian
	// The file may reserve more space per attribute than the declared size. Bytes beyond the declared size are
	// padding.
	if size := le.Uint32(b[4:]); size >= minAttrSize && int(size) < len(b) {
		b = b[:size]
	}
	var buf [maxAttrSize]byte
	copy(buf[:], b)

	attr := &EventAttr{
		Type:               EventType(le.Uint32(buf[0:])),
		Size:               le.Uint32(buf[4:]),
		Config:             le.Uint64(buf[8:]),
		SamplePeriodOrFreq: le.Uint64(buf[16:]),
		SampleType:         SampleFlag(le.Uint64(buf[24:])),
		ReadFormat:         ReadFormat(le.Uint64(buf[32:])),
		Flags:              AttrFlag(le.Uint64(buf[40:])),
		WakeupEvents:       le.Uint32(buf[48:]),
		BPType:             le.Uint32(buf[52:]),
		Config1:            le.Uint64(buf[56:]),
		Config2:            le.Uint64(buf[64:]),
		BranchSampleType:   le.Uint64(buf[72:]),
		SampleRegsUser:     le.Uint64(buf[80:]),
		SampleStackUser:    le.Uint32(buf[88:]),
		ClockID:            int32(le.Uint32(buf[92:])),
		SampleRegsIntr:     le.Uint64(buf[96:]),
		AuxWatermark:       le.Uint32(buf[104:]),
		SampleMaxStack:     le.Uint16(buf[108:]),
		AuxSampleSize:      le.Uint32(buf[112:]),
		SigData:            le.Uint64(buf[120:]),
		Config3:            le.Uint64(buf[128:]),
	}
	attr.computeOffsets()
	return attr, nil
}

func (attr *EventAttr) computeOffsets() {
	st := attr.SampleType

	// Sample layout: IDENTIFIER, IP, TID, TIME, ADDR, ID, STREAM_ID, CPU, ...
	if st&PERF_SAMPLE_TIME != 0 {
		attr.timeOffsetFromStart = container.Some(8 * st.count(PERF_SAMPLE_IDENTIFIER|PERF_SAMPLE_IP|PERF_SAMPLE_TID))
	}
	if st&PERF_SAMPLE_IDENTIFIER != 0 {
		attr.idOffsetFromStart = container.Some(0)
	} else if st&PERF_SAMPLE_ID != 0 {
		attr.idOffsetFromStart = container.Some(8 * st.count(PERF_SAMPLE_IP|PERF_SAMPLE_TID|PERF_SAMPLE_TIME|PERF_SAMPLE_ADDR))
	}

	if !attr.SampleIDAll() {
		return
	}
	// The sample_id trailer of other records: TID, TIME, ID, STREAM_ID, CPU, IDENTIFIER.
	if st&PERF_SAMPLE_TIME != 0 {
		attr.timeOffsetFromEnd = container.Some(8 + 8*st.count(PERF_SAMPLE_ID|PERF_SAMPLE_STREAM_ID|PERF_SAMPLE_CPU|PERF_SAMPLE_IDENTIFIER))
	}
	if st&PERF_SAMPLE_IDENTIFIER != 0 {
		attr.idOffsetFromEnd = container.Some(8)
	} else if st&PERF_SAMPLE_ID != 0 {
		attr.idOffsetFromEnd = container.Some(8 + 8*st.count(PERF_SAMPLE_STREAM_ID|PERF_SAMPLE_CPU))
	}
}

func (attr *EventAttr) SampleIDAll() bool { return attr.Flags&ATTR_SAMPLE_ID_ALL != 0 }

// Freq reports whether SamplePeriodOrFreq holds a frequency rather than a fixed period.
func (attr *EventAttr) Freq() bool { return attr.Flags&ATTR_FREQ != 0 }

// SamplePeriod returns the fixed sampling period, if the event samples by period.
func (attr *EventAttr) SamplePeriod() container.Option[uint64] {
	if attr.Freq() || attr.SamplePeriodOrFreq == 0 {
		return container.None[uint64]()
	}
	return container.Some(attr.SamplePeriodOrFreq)
}

// TimeOffsetFromStart is the offset of the time field in sample records.
func (attr *EventAttr) TimeOffsetFromStart() container.Option[int] { return attr.timeOffsetFromStart }

// TimeOffsetFromEnd is the distance of the time field from the end of non-sample records. It is only known if
// the event was recorded with sample_id_all.
func (attr *EventAttr) TimeOffsetFromEnd() container.Option[int] { return attr.timeOffsetFromEnd }

func (attr *EventAttr) IDOffsetFromStart() container.Option[int] { return attr.idOffsetFromStart }

func (attr *EventAttr) IDOffsetFromEnd() container.Option[int] { return attr.idOffsetFromEnd }

var hardwareEventNames = [...]string{
	"cycles",
	"instructions",
	"cache-references",
	"cache-misses",
	"branch-instructions",
	"branch-misses",
	"bus-cycles",
	"stalled-cycles-frontend",
	"stalled-cycles-backend",
	"ref-cycles",
}

var softwareEventNames = [...]string{
	"cpu-clock",
	"task-clock",
	"page-faults",
	"context-switches",
	"cpu-migrations",
	"minor-faults",
	"major-faults",
	"alignment-faults",
	"emulation-faults",
	"dummy",
	"bpf-output",
	"cgroup-switches",
}

// defaultName names the event by its type and config, for files that carry no event descriptions.
func (attr *EventAttr) defaultName() string {
	switch attr.Type {
	case PERF_TYPE_HARDWARE:
		if attr.Config < uint64(len(hardwareEventNames)) {
			return hardwareEventNames[attr.Config]
		}
	case PERF_TYPE_SOFTWARE:
		if attr.Config < uint64(len(softwareEventNames)) {
			return softwareEventNames[attr.Config]
		}
	case PERF_TYPE_RAW:
		return fmt.Sprintf("r%x", attr.Config)
	}
	return fmt.Sprintf("type%d/config%#x", attr.Type, attr.Config)
}
