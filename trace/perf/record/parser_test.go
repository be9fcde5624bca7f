package record_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"honnef.co/go/perfdata/container"
	"honnef.co/go/perfdata/trace/perf"
	"honnef.co/go/perfdata/trace/perf/perftest"
	"honnef.co/go/perfdata/trace/perf/record"
	"honnef.co/go/perfdata/trace/store"
)

const sampleType = perf.PERF_SAMPLE_IP | perf.PERF_SAMPLE_TID | perf.PERF_SAMPLE_TIME | perf.PERF_SAMPLE_CPU |
	perf.PERF_SAMPLE_PERIOD

// parse tokenizes f in one go and applies all of its records to a new store.
func parse(t *testing.T, f *perftest.File) *store.Store {
	t.Helper()
	s := store.New(nil)
	tok := perf.NewTokenizer(perf.TokenizerConfig{
		Sorter: s.Sorter,
		Clock:  s.Clock,
		Stats:  s.Stats,
		Aux:    s.Aux,
		Files:  s.Files,
	})
	require.NoError(t, tok.Parse(f.Bytes()))
	require.NoError(t, tok.NotifyEndOfFile())
	p := record.NewParser(s.ParserConfig())
	s.Sorter.Flush(p.Parse)
	return s
}

func sample(st perf.SampleFlag, s perftest.Sample) []byte {
	return s.Encode(st, 0)
}

func TestSingleSample(t *testing.T) {
	var f perftest.File
	f.AddAttr(perftest.Attr{Type: perf.PERF_TYPE_HARDWARE, SampleType: sampleType})
	f.Record(perf.PERF_RECORD_SAMPLE, perf.PERF_RECORD_MISC_USER, sample(sampleType, perftest.Sample{
		IP: 0x1234, PID: 10, TID: 11, Time: 1000, CPU: 2, Period: 100,
	}))
	s := parse(t, &f)

	require.Equal(t, 1, s.Samples.Len())
	row := s.Samples.Get(0)
	require.EqualValues(t, 1000, row.TS)
	require.EqualValues(t, 2, row.CPU)
	require.Equal(t, "user", s.Samples.CPUMode(row))
	th := s.Threads.Thread(row.UTID)
	require.EqualValues(t, 11, th.TID)
	require.EqualValues(t, 10, s.Threads.Process(th.UPID).PID)

	// No mapping covers the IP.
	require.EqualValues(t, 1, s.Stats.Get(perf.StatDummyMappingUsed))
	frames := s.Stacks.Unwind(row.Callsite.MustGet())
	require.Len(t, frames, 1)
	require.Equal(t, s.Mappings.DummyMapping().ID, frames[0].Mapping)
	require.EqualValues(t, 0x1234, frames[0].RelPC)

	c := s.Counters.Lookup(record.CounterKey{Session: 0, Event: 0, CPU: 2})
	require.NotNil(t, c)
	require.Equal(t, "cycles", c.Name)
	require.EqualValues(t, 100, c.Value())
	require.True(t, s.CPUs.Has(2))
}

func TestMmap2BuildID(t *testing.T) {
	var f perftest.File
	f.AddAttr(perftest.Attr{SampleType: sampleType})
	buildID := []byte{0xca, 0xfe, 0xba, 0xbe}
	payload, misc := perftest.Mmap2(10, 10, 0x40000, 0x1000, 0x2000, "/system/bin/app", buildID)
	f.Record(perf.PERF_RECORD_MMAP2, misc|perf.PERF_RECORD_MISC_USER, payload)
	f.Record(perf.PERF_RECORD_SAMPLE, perf.PERF_RECORD_MISC_USER, sample(sampleType, perftest.Sample{
		IP: 0x40010, PID: 10, TID: 10, Time: 5, CPU: 0, Period: 1,
	}))
	s := parse(t, &f)

	require.Zero(t, s.Stats.Get(perf.StatDummyMappingUsed))
	require.Zero(t, s.Stats.Get(perf.StatSamplesSkipped))
	frames := s.Stacks.Unwind(s.Samples.Get(0).Callsite.MustGet())
	require.Len(t, frames, 1)
	m := s.Mappings.Get(frames[0].Mapping)
	require.Equal(t, "/system/bin/app", m.Name)
	require.False(t, m.Kernel)
	require.Equal(t, "cafebabe", m.BuildID.MustGet().String())
	require.EqualValues(t, 0x2010, frames[0].RelPC)
}

func TestMmapBuildIDFromFeature(t *testing.T) {
	var f perftest.File
	f.AddAttr(perftest.Attr{SampleType: sampleType})
	f.Record(perf.PERF_RECORD_MMAP, perf.PERF_RECORD_MISC_KERNEL,
		perftest.Mmap(^uint32(0), 0, 0xffff0000, 0x10000, 0, "[kernel.kallsyms]_text"))
	f.Record(perf.PERF_RECORD_MMAP, perf.PERF_RECORD_MISC_USER,
		perftest.Mmap(10, 10, 0x1000, 0x1000, 0, "/bin/true"))
	f.Feature(perf.HEADER_BUILD_ID, perftest.BuildIDFeature(
		perftest.BuildID{PID: -1, ID: []byte{1}, Filename: "[kernel.kallsyms]_text"},
		perftest.BuildID{PID: 10, ID: []byte{2}, Filename: "/bin/true"},
	))
	s := parse(t, &f)

	require.Equal(t, 2, s.Mappings.Len())
	k := s.Mappings.FindKernelMapping(0xffff0100)
	require.NotNil(t, k)
	require.True(t, k.Kernel)
	require.Equal(t, "01", k.BuildID.MustGet().String())

	utid, ok := s.Threads.Lookup(10)
	require.True(t, ok)
	u := s.Mappings.FindUserMapping(s.Threads.Thread(utid).UPID, 0x1800)
	require.NotNil(t, u)
	require.Equal(t, "02", u.BuildID.MustGet().String())
}

func TestCallchain(t *testing.T) {
	st := sampleType | perf.PERF_SAMPLE_CALLCHAIN
	var f perftest.File
	f.AddAttr(perftest.Attr{SampleType: st})
	f.Record(perf.PERF_RECORD_MMAP, perf.PERF_RECORD_MISC_KERNEL,
		perftest.Mmap(^uint32(0), 0, 0xffff0000, 0x10000, 0, "[kernel.kallsyms]"))
	payload, misc := perftest.Mmap2(10, 10, 0x1000, 0x1000, 0, "/bin/app", nil)
	f.Record(perf.PERF_RECORD_MMAP2, misc|perf.PERF_RECORD_MISC_USER, payload)
	chain := []uint64{
		perf.PERF_CONTEXT_KERNEL, 0xffff0010,
		perf.PERF_CONTEXT_USER, 0x1020, 0x1030,
	}
	for range 2 {
		f.Record(perf.PERF_RECORD_SAMPLE, perf.PERF_RECORD_MISC_KERNEL, sample(st, perftest.Sample{
			IP: 0xffff0010, PID: 10, TID: 10, Time: 5, CPU: 0, Period: 1, Callchain: chain,
		}))
	}
	s := parse(t, &f)

	require.Equal(t, 2, s.Samples.Len())
	require.Equal(t, s.Samples.Get(0).Callsite, s.Samples.Get(1).Callsite)
	leaf := s.Samples.Get(0).Callsite.MustGet()
	require.EqualValues(t, 2, s.Stacks.Callsite(leaf).Depth)
	require.Equal(t, 3, s.Stacks.NumCallsites())

	frames := s.Stacks.Unwind(leaf)
	require.Len(t, frames, 3)
	var names []string
	var pcs []uint64
	for _, fr := range frames {
		names = append(names, s.Mappings.Get(fr.Mapping).Name)
		pcs = append(pcs, fr.RelPC)
	}
	require.Equal(t, []string{"[kernel.kallsyms]", "/bin/app", "/bin/app"}, names)
	require.Equal(t, []uint64{0x10, 0x20, 0x30}, pcs)
	require.Zero(t, s.Stats.Get(perf.StatDummyMappingUsed))
}

func TestGuestCallchainIsRejected(t *testing.T) {
	st := sampleType | perf.PERF_SAMPLE_CALLCHAIN
	var f perftest.File
	f.AddAttr(perftest.Attr{SampleType: st})
	f.Record(perf.PERF_RECORD_SAMPLE, 0, sample(st, perftest.Sample{
		PID: 1, TID: 1, Time: 5, Period: 1, Callchain: []uint64{perf.PERF_CONTEXT_GUEST, 0x10},
	}))
	s := parse(t, &f)
	require.Zero(t, s.Samples.Len())
	require.EqualValues(t, 1, s.Stats.Get(perf.StatSamplesSkipped))
}

func TestReadGroupCounters(t *testing.T) {
	st := perf.PERF_SAMPLE_IDENTIFIER | sampleType | perf.PERF_SAMPLE_READ
	rf := perf.PERF_FORMAT_GROUP | perf.PERF_FORMAT_ID
	var f perftest.File
	f.AddAttr(perftest.Attr{Type: perf.PERF_TYPE_HARDWARE, Config: 0, SampleType: st, ReadFormat: rf, IDs: []uint64{1}})
	f.AddAttr(perftest.Attr{Type: perf.PERF_TYPE_HARDWARE, Config: 1, SampleType: st, ReadFormat: rf, IDs: []uint64{2}})
	add := func(ts uint64, cycles, instrs uint64) {
		s := perftest.Sample{
			Identifier: 1, IP: 0x10, PID: 1, TID: 1, Time: ts, CPU: 3, Period: 1000,
			Read: []perftest.ReadValue{{Value: cycles, ID: 1}, {Value: instrs, ID: 2}},
		}
		f.Record(perf.PERF_RECORD_SAMPLE, perf.PERF_RECORD_MISC_USER, s.Encode(st, rf))
	}
	add(10, 100, 50)
	add(20, 150, 70)
	// Counters must not go backwards.
	add(30, 120, 80)
	f.Feature(perf.HEADER_EVENT_DESC, perftest.EventDescFeature(
		perftest.EventDesc{Name: "cycles:u", IDs: []uint64{1}},
		perftest.EventDesc{Name: "instructions:u", IDs: []uint64{2}},
	))
	s := parse(t, &f)

	require.EqualValues(t, 1, s.Stats.Get(perf.StatSamplesSkipped))
	cycles := s.Counters.Lookup(record.CounterKey{Event: 0, CPU: 3})
	instrs := s.Counters.Lookup(record.CounterKey{Event: 1, CPU: 3})
	require.Equal(t, "cycles:u", cycles.Name)
	require.Equal(t, "instructions:u", instrs.Name)
	require.Equal(t, []store.CounterPoint{{TS: 10, Value: 100}, {TS: 20, Value: 150}}, cycles.Points)
	require.Equal(t, []store.CounterPoint{{TS: 10, Value: 50}, {TS: 20, Value: 70}}, instrs.Points)
}

func TestPeriodFromAttr(t *testing.T) {
	st := sampleType &^ perf.PERF_SAMPLE_PERIOD
	var f perftest.File
	f.AddAttr(perftest.Attr{SampleType: st, SamplePeriod: 4000})
	for i := range 3 {
		f.Record(perf.PERF_RECORD_SAMPLE, 0, sample(st, perftest.Sample{PID: 1, TID: 1, Time: uint64(i), CPU: 0}))
	}
	s := parse(t, &f)
	c := s.Counters.Lookup(record.CounterKey{})
	require.EqualValues(t, 12000, c.Value())

	// With a frequency, there is no fixed period to fall back to.
	f = perftest.File{}
	f.AddAttr(perftest.Attr{SampleType: st, SamplePeriod: 4000, Flags: perf.ATTR_FREQ})
	f.Record(perf.PERF_RECORD_SAMPLE, 0, sample(st, perftest.Sample{PID: 1, TID: 1, Time: 1, CPU: 0}))
	s = parse(t, &f)
	require.EqualValues(t, 1, s.Stats.Get(perf.StatSamplesSkipped))
}

func TestSampleRequiredFields(t *testing.T) {
	for _, missing := range []perf.SampleFlag{perf.PERF_SAMPLE_TIME, perf.PERF_SAMPLE_TID, perf.PERF_SAMPLE_CPU} {
		st := sampleType &^ missing
		var f perftest.File
		f.AddAttr(perftest.Attr{SampleType: st})
		f.Record(perf.PERF_RECORD_SAMPLE, 0, sample(st, perftest.Sample{PID: 1, TID: 1, Time: 1, Period: 1}))
		s := parse(t, &f)
		require.Zero(t, s.Samples.Len(), "without %s", missing)
		require.EqualValues(t, 1, s.Stats.Get(perf.StatSamplesSkipped), "without %s", missing)
	}
}

func TestCPUOutOfRange(t *testing.T) {
	var f perftest.File
	f.AddAttr(perftest.Attr{SampleType: sampleType})
	f.Record(perf.PERF_RECORD_SAMPLE, 0, sample(sampleType, perftest.Sample{
		PID: 1, TID: 1, Time: 1, CPU: store.MaxCPUs, Period: 1,
	}))
	s := parse(t, &f)
	require.Zero(t, s.Samples.Len())
	require.EqualValues(t, 1, s.Stats.Get(perf.StatSamplesSkipped))
}

func TestComm(t *testing.T) {
	var f perftest.File
	f.AddAttr(perftest.Attr{SampleType: sampleType})
	f.Record(perf.PERF_RECORD_COMM, 0, perftest.Comm(7, 8, "kworker/0:1"))
	f.Record(perf.PERF_RECORD_COMM, perf.PERF_RECORD_MISC_COMM_EXEC, perftest.Comm(7, 9, "bad\xffname"))
	s := parse(t, &f)

	utid, ok := s.Threads.Lookup(8)
	require.True(t, ok)
	require.Equal(t, "kworker/0:1", s.Threads.Name(utid))
	utid, ok = s.Threads.Lookup(9)
	require.True(t, ok)
	require.Equal(t, "bad�name", s.Threads.Name(utid))
	require.Equal(t, 1, s.Threads.NumProcesses())
}

func TestUnknownRecordType(t *testing.T) {
	var f perftest.File
	f.AddAttr(perftest.Attr{SampleType: sampleType})
	f.Record(perf.PERF_RECORD_SWITCH, 0, nil)
	f.Record(perf.PERF_RECORD_FINISHED_ROUND, 0, nil)
	f.Record(perf.PERF_RECORD_SWITCH, 0, nil)
	s := parse(t, &f)
	require.EqualValues(t, 2, s.Stats.GetIndexed(perf.StatUnknownRecordType, int(perf.PERF_RECORD_SWITCH)))
	require.EqualValues(t, 1, s.Stats.GetIndexed(perf.StatUnknownRecordType, int(perf.PERF_RECORD_FINISHED_ROUND)))
	require.EqualValues(t, 3, s.Stats.Get(perf.StatRecordSkipped))
}

func TestParserPanicsOnAux(t *testing.T) {
	s := store.New(nil)
	p := record.NewParser(s.ParserConfig())
	require.Panics(t, func() {
		p.Parse(0, perf.Record{Header: perf.RecordHeader{Type: perf.PERF_RECORD_AUXTRACE}})
	})
}

func TestDecodeSampleRead(t *testing.T) {
	attr, err := perf.DecodeEventAttr((&perftest.Attr{
		SampleType: perf.PERF_SAMPLE_TIME | perf.PERF_SAMPLE_READ,
		ReadFormat: perf.PERF_FORMAT_TOTAL_TIME_ENABLED | perf.PERF_FORMAT_TOTAL_TIME_RUNNING | perf.PERF_FORMAT_ID | perf.PERF_FORMAT_LOST,
	}).Encode())
	require.NoError(t, err)
	var b perftest.Buf
	// time, then value, time enabled, time running, id and lost
	b.U64(99)
	b.U64(1234).U64(1).U64(2).U64(7).U64(0)
	s, err := record.DecodeSample(99, perf.Record{
		Header:  perf.RecordHeader{Type: perf.PERF_RECORD_SAMPLE, Misc: perf.PERF_RECORD_MISC_HYPERVISOR},
		Payload: b.B,
		Attr:    attr,
	})
	require.NoError(t, err)
	require.Equal(t, perf.CPUModeHypervisor, s.Mode)
	require.Equal(t, container.Some[uint64](99), s.Time)
	require.Equal(t, []record.ReadValue{{EventID: container.Some[uint64](7), Value: 1234}}, s.ReadGroups)

	_, err = record.DecodeSample(99, perf.Record{Payload: b.B[:30], Attr: attr})
	require.Error(t, err)
}
