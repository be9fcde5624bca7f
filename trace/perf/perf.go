// Package perf tokenizes perf.data files produced by Linux perf and simpleperf.
//
// A file consists of a header, a section of event attributes, a data section of variable-length records and
// optional trailing feature sections. The Tokenizer consumes the file in arbitrarily sized chunks, frames every
// record, resolves the event attribute that governs it, assigns it a trace timestamp and forwards it to a Sorter.
// Decoding the payloads of framed records is the job of package record.
//
// Most file format documentation is outdated or misleading; the authoritative source is
// perf_session__do_write_header in linux/tools/perf/util/header.c.
package perf

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"strings"
)

// Feature identifies an optional feature section. Feature IDs index a 256-bit set in the file header.
type Feature uint8

const (
	HEADER_TRACING_DATA    Feature = 1
	HEADER_BUILD_ID        Feature = 2
	HEADER_HOSTNAME        Feature = 3
	HEADER_OSRELEASE       Feature = 4
	HEADER_VERSION         Feature = 5
	HEADER_ARCH            Feature = 6
	HEADER_NRCPUS          Feature = 7
	HEADER_CPUDESC         Feature = 8
	HEADER_CPUID           Feature = 9
	HEADER_TOTAL_MEM       Feature = 10
	HEADER_CMDLINE         Feature = 11
	HEADER_EVENT_DESC      Feature = 12
	HEADER_CPU_TOPOLOGY    Feature = 13
	HEADER_NUMA_TOPOLOGY   Feature = 14
	HEADER_BRANCH_STACK    Feature = 15
	HEADER_PMU_MAPPINGS    Feature = 16
	HEADER_GROUP_DESC      Feature = 17
	HEADER_AUXTRACE        Feature = 18
	HEADER_STAT            Feature = 19
	HEADER_CACHE           Feature = 20
	HEADER_SAMPLE_TIME     Feature = 21
	HEADER_MEM_TOPOLOGY    Feature = 22
	HEADER_CLOCKID         Feature = 23
	HEADER_DIR_FORMAT      Feature = 24
	HEADER_BPF_PROG_INFO   Feature = 25
	HEADER_BPF_BTF         Feature = 26
	HEADER_COMPRESSED      Feature = 27
	HEADER_CPU_PMU_CAPS    Feature = 28
	HEADER_CLOCK_DATA      Feature = 29
	HEADER_HYBRID_TOPOLOGY Feature = 30
	HEADER_PMU_CAPS        Feature = 31

	// Features written by Android's simpleperf.
	HEADER_SIMPLEPERF_FILE              Feature = 128
	HEADER_SIMPLEPERF_META_INFO         Feature = 129
	HEADER_SIMPLEPERF_DEBUG_UNWIND      Feature = 130
	HEADER_SIMPLEPERF_DEBUG_UNWIND_FILE Feature = 131
	HEADER_SIMPLEPERF_FILE2             Feature = 132
)

var featureNames = map[Feature]string{
	HEADER_TRACING_DATA:                 "tracing data",
	HEADER_BUILD_ID:                     "build id",
	HEADER_HOSTNAME:                     "hostname",
	HEADER_OSRELEASE:                    "OS release",
	HEADER_VERSION:                      "version",
	HEADER_ARCH:                         "arch",
	HEADER_NRCPUS:                       "nrcpus",
	HEADER_CPUDESC:                      "CPU desc",
	HEADER_CPUID:                        "CPU ID",
	HEADER_TOTAL_MEM:                    "total mem",
	HEADER_CMDLINE:                      "cmdline",
	HEADER_EVENT_DESC:                   "event desc",
	HEADER_CPU_TOPOLOGY:                 "CPU topology",
	HEADER_NUMA_TOPOLOGY:                "NUMA topology",
	HEADER_BRANCH_STACK:                 "branch stack",
	HEADER_PMU_MAPPINGS:                 "PMU mappings",
	HEADER_GROUP_DESC:                   "group desc",
	HEADER_AUXTRACE:                     "auxtrace",
	HEADER_STAT:                         "stat",
	HEADER_CACHE:                        "cache",
	HEADER_SAMPLE_TIME:                  "sample time",
	HEADER_MEM_TOPOLOGY:                 "mem topology",
	HEADER_CLOCKID:                      "clockid",
	HEADER_DIR_FORMAT:                   "dir format",
	HEADER_BPF_PROG_INFO:                "BPF prog info",
	HEADER_BPF_BTF:                      "BPF BTF",
	HEADER_COMPRESSED:                   "compressed",
	HEADER_CPU_PMU_CAPS:                 "CPU PMU caps",
	HEADER_CLOCK_DATA:                   "clock data",
	HEADER_HYBRID_TOPOLOGY:              "hybrid topology",
	HEADER_PMU_CAPS:                     "PMU caps",
	HEADER_SIMPLEPERF_FILE:              "simpleperf file",
	HEADER_SIMPLEPERF_META_INFO:         "simpleperf meta info",
	HEADER_SIMPLEPERF_DEBUG_UNWIND:      "simpleperf debug unwind",
	HEADER_SIMPLEPERF_DEBUG_UNWIND_FILE: "simpleperf debug unwind file",
	HEADER_SIMPLEPERF_FILE2:             "simpleperf file2",
}

func (f Feature) String() string {
	if s, ok := featureNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Feature(%d)", uint8(f))
}

type RecordType uint32

const (
	PERF_RECORD_MMAP             RecordType = 1
	PERF_RECORD_LOST             RecordType = 2
	PERF_RECORD_COMM             RecordType = 3
	PERF_RECORD_EXIT             RecordType = 4
	PERF_RECORD_THROTTLE         RecordType = 5
	PERF_RECORD_UNTHROTTLE       RecordType = 6
	PERF_RECORD_FORK             RecordType = 7
	PERF_RECORD_READ             RecordType = 8
	PERF_RECORD_SAMPLE           RecordType = 9
	PERF_RECORD_MMAP2            RecordType = 10
	PERF_RECORD_AUX              RecordType = 11
	PERF_RECORD_ITRACE_START     RecordType = 12
	PERF_RECORD_LOST_SAMPLES     RecordType = 13
	PERF_RECORD_SWITCH           RecordType = 14
	PERF_RECORD_SWITCH_CPU_WIDE  RecordType = 15
	PERF_RECORD_NAMESPACES       RecordType = 16
	PERF_RECORD_KSYMBOL          RecordType = 17
	PERF_RECORD_BPF_EVENT        RecordType = 18
	PERF_RECORD_CGROUP           RecordType = 19
	PERF_RECORD_TEXT_POKE        RecordType = 20
	PERF_RECORD_AUX_OUTPUT_HW_ID RecordType = 21

	// Record types synthesized by the perf tool rather than the kernel. They never carry a sample_id trailer.
	PERF_RECORD_USER_TYPE_START     RecordType = 64
	PERF_RECORD_HEADER_ATTR         RecordType = 64
	PERF_RECORD_HEADER_EVENT_TYPE   RecordType = 65
	PERF_RECORD_HEADER_TRACING_DATA RecordType = 66
	PERF_RECORD_HEADER_BUILD_ID     RecordType = 67
	PERF_RECORD_FINISHED_ROUND      RecordType = 68
	PERF_RECORD_ID_INDEX            RecordType = 69
	PERF_RECORD_AUXTRACE_INFO       RecordType = 70
	PERF_RECORD_AUXTRACE            RecordType = 71
	PERF_RECORD_AUXTRACE_ERROR      RecordType = 72
	PERF_RECORD_THREAD_MAP          RecordType = 73
	PERF_RECORD_CPU_MAP             RecordType = 74
	PERF_RECORD_STAT_CONFIG         RecordType = 75
	PERF_RECORD_STAT                RecordType = 76
	PERF_RECORD_STAT_ROUND          RecordType = 77
	PERF_RECORD_EVENT_UPDATE        RecordType = 78
	PERF_RECORD_TIME_CONV           RecordType = 79
	PERF_RECORD_HEADER_FEATURE      RecordType = 80
	PERF_RECORD_COMPRESSED          RecordType = 81
	PERF_RECORD_FINISHED_INIT       RecordType = 82
	PERF_RECORD_COMPRESSED2         RecordType = 83
)

var recordTypeNames = map[RecordType]string{
	PERF_RECORD_MMAP:                "MMAP",
	PERF_RECORD_LOST:                "LOST",
	PERF_RECORD_COMM:                "COMM",
	PERF_RECORD_EXIT:                "EXIT",
	PERF_RECORD_THROTTLE:            "THROTTLE",
	PERF_RECORD_UNTHROTTLE:          "UNTHROTTLE",
	PERF_RECORD_FORK:                "FORK",
	PERF_RECORD_READ:                "READ",
	PERF_RECORD_SAMPLE:              "SAMPLE",
	PERF_RECORD_MMAP2:               "MMAP2",
	PERF_RECORD_AUX:                 "AUX",
	PERF_RECORD_ITRACE_START:        "ITRACE_START",
	PERF_RECORD_LOST_SAMPLES:        "LOST_SAMPLES",
	PERF_RECORD_SWITCH:              "SWITCH",
	PERF_RECORD_SWITCH_CPU_WIDE:     "SWITCH_CPU_WIDE",
	PERF_RECORD_NAMESPACES:          "NAMESPACES",
	PERF_RECORD_KSYMBOL:             "KSYMBOL",
	PERF_RECORD_BPF_EVENT:           "BPF_EVENT",
	PERF_RECORD_CGROUP:              "CGROUP",
	PERF_RECORD_TEXT_POKE:           "TEXT_POKE",
	PERF_RECORD_AUX_OUTPUT_HW_ID:    "AUX_OUTPUT_HW_ID",
	PERF_RECORD_HEADER_ATTR:         "HEADER_ATTR",
	PERF_RECORD_HEADER_EVENT_TYPE:   "HEADER_EVENT_TYPE",
	PERF_RECORD_HEADER_TRACING_DATA: "HEADER_TRACING_DATA",
	PERF_RECORD_HEADER_BUILD_ID:     "HEADER_BUILD_ID",
	PERF_RECORD_FINISHED_ROUND:      "FINISHED_ROUND",
	PERF_RECORD_ID_INDEX:            "ID_INDEX",
	PERF_RECORD_AUXTRACE_INFO:       "AUXTRACE_INFO",
	PERF_RECORD_AUXTRACE:            "AUXTRACE",
	PERF_RECORD_AUXTRACE_ERROR:      "AUXTRACE_ERROR",
	PERF_RECORD_THREAD_MAP:          "THREAD_MAP",
	PERF_RECORD_CPU_MAP:             "CPU_MAP",
	PERF_RECORD_STAT_CONFIG:         "STAT_CONFIG",
	PERF_RECORD_STAT:                "STAT",
	PERF_RECORD_STAT_ROUND:          "STAT_ROUND",
	PERF_RECORD_EVENT_UPDATE:        "EVENT_UPDATE",
	PERF_RECORD_TIME_CONV:           "TIME_CONV",
	PERF_RECORD_HEADER_FEATURE:      "HEADER_FEATURE",
	PERF_RECORD_COMPRESSED:          "COMPRESSED",
	PERF_RECORD_FINISHED_INIT:       "FINISHED_INIT",
	PERF_RECORD_COMPRESSED2:         "COMPRESSED2",
}

func (typ RecordType) String() string {
	if s, ok := recordTypeNames[typ]; ok {
		return s
	}
	return fmt.Sprintf("RecordType(%d)", uint32(typ))
}

// IsAux reports whether records of this type carry auxiliary trace data. Such records are not ordered by
// timestamp and bypass the Sorter.
func (typ RecordType) IsAux() bool {
	switch typ {
	case PERF_RECORD_AUX, PERF_RECORD_AUXTRACE, PERF_RECORD_AUXTRACE_INFO:
		return true
	default:
		return false
	}
}

type SampleFlag uint64

const (
	PERF_SAMPLE_IP             SampleFlag = 1 << 0
	PERF_SAMPLE_TID            SampleFlag = 1 << 1
	PERF_SAMPLE_TIME           SampleFlag = 1 << 2
	PERF_SAMPLE_ADDR           SampleFlag = 1 << 3
	PERF_SAMPLE_READ           SampleFlag = 1 << 4
	PERF_SAMPLE_CALLCHAIN      SampleFlag = 1 << 5
	PERF_SAMPLE_ID             SampleFlag = 1 << 6
	PERF_SAMPLE_CPU            SampleFlag = 1 << 7
	PERF_SAMPLE_PERIOD         SampleFlag = 1 << 8
	PERF_SAMPLE_STREAM_ID      SampleFlag = 1 << 9
	PERF_SAMPLE_RAW            SampleFlag = 1 << 10
	PERF_SAMPLE_BRANCH_STACK   SampleFlag = 1 << 11
	PERF_SAMPLE_REGS_USER      SampleFlag = 1 << 12
	PERF_SAMPLE_STACK_USER     SampleFlag = 1 << 13
	PERF_SAMPLE_WEIGHT         SampleFlag = 1 << 14
	PERF_SAMPLE_DATA_SRC       SampleFlag = 1 << 15
	PERF_SAMPLE_IDENTIFIER     SampleFlag = 1 << 16
	PERF_SAMPLE_TRANSACTION    SampleFlag = 1 << 17
	PERF_SAMPLE_REGS_INTR      SampleFlag = 1 << 18
	PERF_SAMPLE_PHYS_ADDR      SampleFlag = 1 << 19
	PERF_SAMPLE_AUX            SampleFlag = 1 << 20
	PERF_SAMPLE_CGROUP         SampleFlag = 1 << 21
	PERF_SAMPLE_DATA_PAGE_SIZE SampleFlag = 1 << 22
	PERF_SAMPLE_CODE_PAGE_SIZE SampleFlag = 1 << 23
	PERF_SAMPLE_WEIGHT_STRUCT  SampleFlag = 1 << 24

	PERF_SAMPLE_NUM = 25
	PERF_SAMPLE_MAX = 1 << PERF_SAMPLE_NUM
)

var sampleFlagNames = [PERF_SAMPLE_NUM]string{
	"ip", "tid", "time", "addr", "read", "callchain", "id", "cpu", "period", "stream id", "raw", "branch stack",
	"regs user", "stack user", "weight", "data src", "identifier", "transaction", "regs intr", "phys addr", "aux",
	"cgroup", "data page size", "code page size", "weight struct",
}

func (st SampleFlag) String() string {
	ss := make([]string, 0, bits.OnesCount64(uint64(st)))
	for i, name := range sampleFlagNames {
		if st&(1<<i) != 0 {
			ss = append(ss, name)
		}
	}
	st &^= PERF_SAMPLE_MAX - 1
	if st != 0 {
		ss = append(ss, fmt.Sprintf("%b", uint64(st)))
	}
	return strings.Join(ss, " | ")
}

// count returns how many of the flags in mask are set.
func (st SampleFlag) count(mask SampleFlag) int {
	return bits.OnesCount64(uint64(st & mask))
}

type ReadFormat uint64

const (
	PERF_FORMAT_TOTAL_TIME_ENABLED ReadFormat = 1 << 0
	PERF_FORMAT_TOTAL_TIME_RUNNING ReadFormat = 1 << 1
	PERF_FORMAT_ID                 ReadFormat = 1 << 2
	PERF_FORMAT_GROUP              ReadFormat = 1 << 3
	PERF_FORMAT_LOST               ReadFormat = 1 << 4
)

// AttrFlag is a bit of the flags bitfield of perf_event_attr.
type AttrFlag uint64

const (
	ATTR_DISABLED      AttrFlag = 1 << 0
	ATTR_INHERIT       AttrFlag = 1 << 1
	ATTR_PINNED        AttrFlag = 1 << 2
	ATTR_EXCLUSIVE     AttrFlag = 1 << 3
	ATTR_EXCLUDE_USER  AttrFlag = 1 << 4
	ATTR_EXCLUDE_KERN  AttrFlag = 1 << 5
	ATTR_EXCLUDE_HV    AttrFlag = 1 << 6
	ATTR_EXCLUDE_IDLE  AttrFlag = 1 << 7
	ATTR_MMAP          AttrFlag = 1 << 8
	ATTR_COMM          AttrFlag = 1 << 9
	ATTR_FREQ          AttrFlag = 1 << 10
	ATTR_INHERIT_STAT  AttrFlag = 1 << 11
	ATTR_ENABLE_EXEC   AttrFlag = 1 << 12
	ATTR_TASK          AttrFlag = 1 << 13
	ATTR_WATERMARK     AttrFlag = 1 << 14
	ATTR_MMAP_DATA     AttrFlag = 1 << 17
	ATTR_SAMPLE_ID_ALL AttrFlag = 1 << 18
	ATTR_EXCLUDE_HOST  AttrFlag = 1 << 19
	ATTR_EXCLUDE_GUEST AttrFlag = 1 << 20
	ATTR_MMAP2         AttrFlag = 1 << 23
	ATTR_COMM_EXEC     AttrFlag = 1 << 24
	ATTR_USE_CLOCKID   AttrFlag = 1 << 25
)

type EventType uint32

const (
	PERF_TYPE_HARDWARE   EventType = 0
	PERF_TYPE_SOFTWARE   EventType = 1
	PERF_TYPE_TRACEPOINT EventType = 2
	PERF_TYPE_HW_CACHE   EventType = 3
	PERF_TYPE_RAW        EventType = 4
	PERF_TYPE_BREAKPOINT EventType = 5
)

const (
	PERF_RECORD_MISC_CPUMODE_MASK    = 0b111
	PERF_RECORD_MISC_CPUMODE_UNKNOWN = 0
	PERF_RECORD_MISC_KERNEL          = 1
	PERF_RECORD_MISC_USER            = 2
	PERF_RECORD_MISC_HYPERVISOR      = 3
	PERF_RECORD_MISC_GUEST_KERNEL    = 4
	PERF_RECORD_MISC_GUEST_USER      = 5

	PERF_RECORD_MISC_MMAP_DATA  = 1 << 13
	PERF_RECORD_MISC_COMM_EXEC  = 1 << 13
	PERF_RECORD_MISC_FORK_EXEC  = 1 << 13
	PERF_RECORD_MISC_SWITCH_OUT = 1 << 13

	PERF_RECORD_MISC_EXACT_IP           = 1 << 14
	PERF_RECORD_MISC_SWITCH_OUT_PREEMPT = 1 << 14
	PERF_RECORD_MISC_MMAP_BUILD_ID      = 1 << 14

	PERF_RECORD_MISC_BUILD_ID_SIZE = 1 << 15
)

// CPUMode is the execution mode of the CPU when an event happened, taken from the low bits of a record's misc
// field.
type CPUMode uint8

const (
	CPUModeUnknown     CPUMode = PERF_RECORD_MISC_CPUMODE_UNKNOWN
	CPUModeKernel      CPUMode = PERF_RECORD_MISC_KERNEL
	CPUModeUser        CPUMode = PERF_RECORD_MISC_USER
	CPUModeHypervisor  CPUMode = PERF_RECORD_MISC_HYPERVISOR
	CPUModeGuestKernel CPUMode = PERF_RECORD_MISC_GUEST_KERNEL
	CPUModeGuestUser   CPUMode = PERF_RECORD_MISC_GUEST_USER
)

func (m CPUMode) String() string {
	switch m {
	case CPUModeKernel:
		return "kernel"
	case CPUModeUser:
		return "user"
	case CPUModeHypervisor:
		return "hypervisor"
	case CPUModeGuestKernel:
		return "guest_kernel"
	case CPUModeGuestUser:
		return "guest_user"
	default:
		return "unknown"
	}
}

// InKernel reports whether addresses sampled in this mode belong to the kernel's address space. Hypervisor
// addresses are not looked up among kernel mappings.
func (m CPUMode) InKernel() bool {
	return m == CPUModeKernel || m == CPUModeGuestKernel
}

// Call chain entries at or above PERF_CONTEXT_MAX aren't addresses but switch the mode of the frames that follow.
const (
	PERF_CONTEXT_HV           = ^uint64(32) + 1
	PERF_CONTEXT_KERNEL       = ^uint64(128) + 1
	PERF_CONTEXT_USER         = ^uint64(512) + 1
	PERF_CONTEXT_GUEST        = ^uint64(2048) + 1
	PERF_CONTEXT_GUEST_KERNEL = ^uint64(2176) + 1
	PERF_CONTEXT_GUEST_USER   = ^uint64(2560) + 1
	PERF_CONTEXT_MAX          = ^uint64(4095) + 1
)

var (
	perfMagic        = [8]byte{'P', 'E', 'R', 'F', 'I', 'L', 'E', '2'}
	perfMagicSwapped = [8]byte{'2', 'E', 'L', 'I', 'F', 'R', 'E', 'P'}
)

const (
	headerSize       = 104
	sectionSize      = 16
	recordHeaderSize = 8
	// PERF_ATTR_SIZE_VER0
	minAttrSize = 64
	// PERF_ATTR_SIZE_VER8, the largest layout we decode.
	maxAttrSize = 136
)

type Section struct {
	Offset uint64
	Size   uint64
}

func (s Section) End() uint64 { return s.Offset + s.Size }

func (s Section) String() string {
	return fmt.Sprintf("section{@%d; +%d}", s.Offset, s.Size)
}

func decodeSection(b []byte) Section {
	return Section{
		Offset: binary.LittleEndian.Uint64(b),
		Size:   binary.LittleEndian.Uint64(b[8:]),
	}
}

// FeatureSet is the 256-bit set of present features: the header's flags word followed by its three flags1
// extension words.
type FeatureSet [4]uint64

func (fs *FeatureSet) Has(f Feature) bool {
	return fs[f/64]&(1<<(f%64)) != 0
}

func (fs *FeatureSet) Add(f Feature) {
	fs[f/64] |= 1 << (f % 64)
}

// IDs returns the present features in ascending order, which is also the order of their entries in the
// feature index.
func (fs *FeatureSet) IDs() []Feature {
	n := 0
	for _, w := range fs {
		n += bits.OnesCount64(w)
	}
	out := make([]Feature, 0, n)
	for i, w := range fs {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			out = append(out, Feature(i*64+b))
			w &^= 1 << b
		}
	}
	return out
}

func (fs *FeatureSet) String() string {
	ids := fs.IDs()
	ss := make([]string, len(ids))
	for i, id := range ids {
		ss[i] = id.String()
	}
	return strings.Join(ss, " | ")
}

type Header struct {
	Magic    [8]byte
	Size     uint64
	AttrSize uint64
	// Documentation claims that this points to an array of perf_event_attr, each sized AttrSize, but it's really
	// an array of attributes each followed by the section of their event IDs.
	Attrs Section
	Data  Section
	// EventTypes has been unused since 2013.
	EventTypes Section
	Features   FeatureSet
}

func decodeHeader(b []byte) Header {
	var hdr Header
	copy(hdr.Magic[:], b)
	hdr.Size = binary.LittleEndian.Uint64(b[8:])
	hdr.AttrSize = binary.LittleEndian.Uint64(b[16:])
	hdr.Attrs = decodeSection(b[24:])
	hdr.Data = decodeSection(b[40:])
	hdr.EventTypes = decodeSection(b[56:])
	for i := range hdr.Features {
		hdr.Features[i] = binary.LittleEndian.Uint64(b[72+8*i:])
	}
	return hdr
}

type RecordHeader struct {
	Type RecordType
	Misc uint16
	Size uint16
}

func decodeRecordHeader(b []byte) RecordHeader {
	return RecordHeader{
		Type: RecordType(binary.LittleEndian.Uint32(b)),
		Misc: binary.LittleEndian.Uint16(b[4:]),
		Size: binary.LittleEndian.Uint16(b[6:]),
	}
}

func (hdr RecordHeader) CPUMode() CPUMode {
	return CPUMode(hdr.Misc & PERF_RECORD_MISC_CPUMODE_MASK)
}
