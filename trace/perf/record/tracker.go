package record

import (
	"honnef.co/go/perfdata/container"
	"honnef.co/go/perfdata/trace/perf"
)

type (
	MappingID  uint32
	FrameID    uint32
	CallsiteID uint32
	UniqueTID  uint32
	UniquePID  uint32
)

// NamePriority orders the sources of thread names. A name is only replaced by one of equal or higher priority.
type NamePriority uint8

const (
	NamePriorityOther NamePriority = iota
	NamePriorityFtrace
	NamePriorityProcessTree
	NamePriorityTrackDescriptor
)

// MappingParams describes a mapping of a file into an address space.
type MappingParams struct {
	Start, End uint64
	// PgOff is the file offset of Start.
	PgOff uint64
	// StartOffset is the offset of the object's header in the file, LoadBias the difference between the
	// addresses in the object and those it was loaded at. perf records neither and both are assumed to be 0.
	StartOffset uint64
	LoadBias    uint64
	Name        string
	BuildID     container.Option[perf.BuildID]
}

type Mapping struct {
	ID MappingID
	MappingParams
	// Kernel is true for mappings in the kernel's address space.
	Kernel bool
}

func (m *Mapping) Contains(addr uint64) bool { return addr >= m.Start && addr < m.End }

// RelativePC converts an address in the mapping to an address relative to the object it maps.
func (m *Mapping) RelativePC(pc uint64) uint64 {
	return pc - m.Start + m.PgOff + m.LoadBias - m.StartOffset
}

type MappingTracker interface {
	CreateKernelMapping(p MappingParams) *Mapping
	CreateUserMapping(upid UniquePID, p MappingParams) *Mapping
	// FindKernelMapping and FindUserMapping return nil if no mapping contains addr.
	FindKernelMapping(addr uint64) *Mapping
	FindUserMapping(upid UniquePID, addr uint64) *Mapping
	// DummyMapping returns the mapping that addresses without a mapping are attributed to.
	DummyMapping() *Mapping
}

type StackTracker interface {
	InternFrame(m *Mapping, relPC uint64) FrameID
	// InternCallsite returns the call site for frame at depth, called from parent. Depth 0 has no parent.
	InternCallsite(parent container.Option[CallsiteID], frame FrameID, depth uint32) CallsiteID
}

type ProcessTracker interface {
	// UpdateThread associates tid with pid, creating the thread and process if necessary.
	UpdateThread(tid, pid uint32) (UniqueTID, UniquePID)
	UpdateThreadName(tid uint32, name string, prio NamePriority)
}

// CounterKey identifies the counter of one event on one CPU.
type CounterKey struct {
	Session int64
	// Event is the index of the event in its session.
	Event int
	CPU   uint32
}

type Counter interface {
	// AddDelta increments the counter.
	AddDelta(ts int64, delta float64)
	// AddCount sets the counter to an absolute value, which must not be smaller than the current value.
	AddCount(ts int64, count float64) error
}

type CounterTracker interface {
	// Counter returns the counter for key, creating it with the given name if necessary.
	Counter(key CounterKey, name string) Counter
}

// SampleRow is one row of the sample table.
type SampleRow struct {
	TS       int64
	UTID     UniqueTID
	CPU      uint32
	CPUMode  string
	Callsite container.Option[CallsiteID]
	Session  int64
}

type SampleTable interface {
	InsertSample(row SampleRow)
}

type CPUTracker interface {
	// AddCPU registers a CPU seen in the trace. It fails for CPU numbers outside the supported range.
	AddCPU(cpu uint32) error
}
