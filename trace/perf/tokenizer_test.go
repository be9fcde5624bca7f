package perf_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"honnef.co/go/perfdata/compress"
	"honnef.co/go/perfdata/trace/perf"
	"honnef.co/go/perfdata/trace/perf/feature"
	"honnef.co/go/perfdata/trace/perf/perftest"
	"honnef.co/go/perfdata/trace/store"
)

const sampleType = perf.PERF_SAMPLE_IDENTIFIER | perf.PERF_SAMPLE_IP | perf.PERF_SAMPLE_TID | perf.PERF_SAMPLE_TIME |
	perf.PERF_SAMPLE_CPU | perf.PERF_SAMPLE_PERIOD

type env struct {
	sorter *store.Sorter
	stats  *store.Stats
	clock  *store.Clock
	aux    *store.Aux
	files  *store.Files
}

func newEnv() *env {
	return &env{
		sorter: store.NewSorter(),
		stats:  store.NewStats(),
		clock:  store.NewClock(),
		aux:    store.NewAux(compress.NoOp{}),
		files:  store.NewFiles(),
	}
}

func (e *env) tokenizer() *perf.Tokenizer {
	return perf.NewTokenizer(perf.TokenizerConfig{
		Sorter: e.sorter,
		Clock:  e.clock,
		Stats:  e.stats,
		Aux:    e.aux,
		Files:  e.files,
	})
}

type pushed struct {
	TS      int64
	Type    perf.RecordType
	Payload []byte
}

func (e *env) flush() []pushed {
	var out []pushed
	e.sorter.Flush(func(ts int64, r perf.Record) {
		out = append(out, pushed{ts, r.Header.Type, r.Payload})
	})
	return out
}

// feed passes data to tok in chunks of n bytes, each in freshly allocated memory.
func feed(tok *perf.Tokenizer, data []byte, n int) error {
	for len(data) > 0 {
		m := min(n, len(data))
		if err := tok.Parse(append([]byte(nil), data[:m]...)); err != nil {
			return err
		}
		data = data[m:]
	}
	return tok.NotifyEndOfFile()
}

func sample(id uint64, tid uint32, ts uint64, cpu uint32) []byte {
	s := perftest.Sample{Identifier: id, IP: 0x1000 + ts, PID: tid, TID: tid, Time: ts, CPU: cpu, Period: 100}
	return s.Encode(sampleType, 0)
}

func trailer(id uint64, tid uint32, ts uint64) []byte {
	s := perftest.SampleID{PID: tid, TID: tid, Time: ts, Identifier: id}
	return s.Encode(sampleType)
}

// testFile returns a file with two events, a mix of records and most of the features we decode.
func testFile() []byte {
	var f perftest.File
	f.AddAttr(perftest.Attr{
		Type:       perf.PERF_TYPE_HARDWARE,
		Config:     0,
		SampleType: sampleType,
		Flags:      perf.ATTR_SAMPLE_ID_ALL,
		IDs:        []uint64{1, 2},
	})
	f.AddAttr(perftest.Attr{
		Type:       perf.PERF_TYPE_HARDWARE,
		Config:     1,
		SampleType: sampleType,
		Flags:      perf.ATTR_SAMPLE_ID_ALL,
		IDs:        []uint64{3},
	})

	f.Record(perf.PERF_RECORD_COMM, 0, append(perftest.Comm(10, 10, "worker"), trailer(1, 10, 50)...))
	mmap, misc := perftest.Mmap2(10, 10, 0x1000, 0x1000, 0, "/bin/worker", []byte{0xde, 0xad, 0xbe, 0xef})
	f.Record(perf.PERF_RECORD_MMAP2, misc|perf.PERF_RECORD_MISC_USER, append(mmap, trailer(1, 10, 60)...))
	f.Record(perf.PERF_RECORD_SAMPLE, perf.PERF_RECORD_MISC_USER, sample(1, 10, 300, 0))
	f.Record(perf.PERF_RECORD_SAMPLE, perf.PERF_RECORD_MISC_USER, sample(3, 10, 100, 1))
	f.Record(perf.PERF_RECORD_SAMPLE, perf.PERF_RECORD_MISC_KERNEL, sample(2, 10, 200, 0))
	f.Record(perf.PERF_RECORD_FINISHED_ROUND, 0, nil)

	f.Feature(perf.HEADER_HOSTNAME, perftest.StringFeature("builder"))
	f.Feature(perf.HEADER_CMDLINE, perftest.CmdlineFeature("perf", "record", "-a"))
	f.Feature(perf.HEADER_NRCPUS, perftest.NrCPUsFeature(8, 4))
	f.Feature(perf.HEADER_EVENT_DESC, perftest.EventDescFeature(
		perftest.EventDesc{Name: "cpu-cycles:u", IDs: []uint64{1, 2}},
		perftest.EventDesc{Name: "instructions:u", IDs: []uint64{3}},
	))
	f.Feature(perf.HEADER_BUILD_ID, perftest.BuildIDFeature(
		perftest.BuildID{PID: -1, ID: []byte{1, 2, 3}, Filename: "[kernel.kallsyms]"},
	))
	f.Feature(perf.HEADER_CPU_TOPOLOGY, []byte{1, 2, 3, 4})
	f.Feature(perf.HEADER_GROUP_DESC, new(perftest.Buf).U32(1).PerfString("{cycles,instructions}").U32(0).U32(2).B)
	f.Feature(perf.HEADER_CLOCK_DATA, perftest.ClockDataFeature(1, 1_000_000, 500))
	f.Feature(perf.HEADER_SIMPLEPERF_META_INFO, perftest.MetaInfoFeature(
		"simpleperf_version", "1.build.7",
		"event_type_info", "cpu-cycles,0,0\n",
	))
	f.Feature(perf.HEADER_SIMPLEPERF_FILE2, perftest.File2Feature(perftest.SimpleperfFile{
		Path:     "/system/lib64/libc.so",
		Type:     feature.DSOElfFile,
		MinVaddr: 0x1000,
		Symbols:  []perftest.Symbol{{Vaddr: 0x1100, Len: 16, Name: "malloc"}},
	}))
	return f.Bytes()
}

func TestTokenizer(t *testing.T) {
	e := newEnv()
	tok := e.tokenizer()
	require.NoError(t, feed(tok, testFile(), 1<<20))
	require.Equal(t, perf.StateDone, tok.State())

	recs := e.flush()
	var types []perf.RecordType
	var ts []int64
	for _, r := range recs {
		types = append(types, r.Type)
		ts = append(ts, r.TS)
	}
	require.Equal(t, []perf.RecordType{
		perf.PERF_RECORD_COMM,
		perf.PERF_RECORD_MMAP2,
		perf.PERF_RECORD_SAMPLE,
		perf.PERF_RECORD_SAMPLE,
		perf.PERF_RECORD_SAMPLE,
		perf.PERF_RECORD_FINISHED_ROUND,
	}, types)
	// FINISHED_ROUND has no time of its own and is placed at the latest time seen.
	require.Equal(t, []int64{50, 60, 100, 200, 300, 300}, ts)
	require.Zero(t, e.stats.Get(perf.StatRecordSkipped))

	s := tok.Session()
	require.Len(t, s.Attrs, 2)
	require.Equal(t, []uint64{1, 2}, s.Attrs[0].IDs)
	require.Equal(t, 1, s.Attrs[1].Index)
	require.Equal(t, []string{"perf", "record", "-a"}, s.Cmdline)
	require.Equal(t, "builder", s.Machine.Hostname)
	require.EqualValues(t, 8, s.Machine.CPUsAvailable)
	require.EqualValues(t, 4, s.Machine.CPUsOnline)
	require.Equal(t, "cpu-cycles:u", s.EventName(s.Attrs[0]))
	require.Equal(t, "instructions:u", s.EventName(s.Attrs[1]))
	id, ok := s.LookupBuildID(42, "[kernel.kallsyms]")
	require.True(t, ok)
	require.Equal(t, "010203", id.String())
	cd, ok := s.ClockData.Get()
	require.True(t, ok)
	require.EqualValues(t, 1_000_000, cd.WallClockNs)
	require.Equal(t, "1.build.7", s.Meta["simpleperf_version"])
	require.Equal(t, []feature.GroupDesc{{Name: "{cycles,instructions}", Leader: 0, Members: 2}}, s.Groups)
	require.EqualValues(t, 1, e.stats.GetIndexed(perf.StatFeaturesSkipped, int(perf.HEADER_CPU_TOPOLOGY)))

	f, ok := e.files.Lookup("/system/lib64/libc.so")
	require.True(t, ok)
	require.EqualValues(t, 0x1000, f.MinVaddr)
	require.Equal(t, []feature.Symbol{{Vaddr: 0x1100, Len: 16, Name: "malloc"}}, f.Symbols)
}

// files returns the contents of a file sink.
func files(fs *store.Files) map[string]feature.SimpleperfFile {
	out := make(map[string]feature.SimpleperfFile)
	for _, p := range fs.Paths() {
		out[p], _ = fs.Lookup(p)
	}
	return out
}

// tokenized holds everything a tokenizer produced.
type tokenized struct {
	records []pushed
	stats   string
	session *perf.Session
	files   map[string]feature.SimpleperfFile
}

func (e *env) result(tok *perf.Tokenizer) tokenized {
	return tokenized{
		records: e.flush(),
		stats:   e.stats.String(),
		session: tok.Session(),
		files:   files(e.files),
	}
}

func TestTokenizerChunking(t *testing.T) {
	data := testFile()
	ref := newEnv()
	refTok := ref.tokenizer()
	require.NoError(t, feed(refTok, data, len(data)))
	want := ref.result(refTok)
	require.Len(t, want.files, 1)

	sizes := []int{1, 2, 3, 5, 7, 8, 13, 64, 100, 103, 104, 105, 4096}
	for _, n := range sizes {
		e := newEnv()
		tok := e.tokenizer()
		require.NoError(t, feed(tok, data, n), "chunk size %d", n)
		// The whole session, including cmdline, event names, build ids, groups, meta info and clock data, must
		// not depend on how the input was split.
		require.Equal(t, want, e.result(tok), "chunk size %d", n)
	}
}

func TestTokenizerSplitAtEveryOffset(t *testing.T) {
	data := testFile()
	ref := newEnv()
	refTok := ref.tokenizer()
	require.NoError(t, feed(refTok, data, len(data)))
	want := ref.result(refTok)

	for i := 1; i < len(data); i++ {
		e := newEnv()
		tok := e.tokenizer()
		require.NoError(t, tok.Parse(append([]byte(nil), data[:i]...)), "split at %d", i)
		require.NoError(t, tok.Parse(append([]byte(nil), data[i:]...)), "split at %d", i)
		require.NoError(t, tok.NotifyEndOfFile())
		require.Equal(t, want, e.result(tok), "split at %d", i)
	}
}

func TestTokenizerReleasesInput(t *testing.T) {
	var f perftest.File
	f.AddAttr(perftest.Attr{SampleType: sampleType, Flags: perf.ATTR_SAMPLE_ID_ALL})
	for i := range 1000 {
		f.Record(perf.PERF_RECORD_SAMPLE, perf.PERF_RECORD_MISC_USER, sample(0, 1, uint64(i), 0))
	}
	data := f.Bytes()

	e := newEnv()
	tok := e.tokenizer()
	const chunk = 16
	for len(data) > 0 {
		n := min(chunk, len(data))
		require.NoError(t, tok.Parse(append([]byte(nil), data[:n]...)))
		data = data[n:]
		if tok.State() == perf.StateParseRecords {
			// At most one incomplete record plus the latest chunk.
			require.LessOrEqual(t, tok.BufferedLen(), int64(8+len(sample(0, 1, 0, 0))+chunk))
		}
	}
	require.NoError(t, tok.NotifyEndOfFile())
	require.Equal(t, 1000, e.sorter.Len())
}

func TestTokenizerTimestampsWithoutTime(t *testing.T) {
	// Without sample_id_all, records other than samples have no timestamp.
	var f perftest.File
	f.AddAttr(perftest.Attr{SampleType: sampleType})
	f.Record(perf.PERF_RECORD_COMM, 0, perftest.Comm(1, 1, "early"))
	f.Record(perf.PERF_RECORD_SAMPLE, 0, sample(0, 1, 500, 0))
	f.Record(perf.PERF_RECORD_COMM, 0, perftest.Comm(1, 1, "late"))
	f.Record(perf.PERF_RECORD_SAMPLE, 0, sample(0, 1, 100, 0))

	e := newEnv()
	require.NoError(t, feed(e.tokenizer(), f.Bytes(), 7))
	recs := e.flush()
	require.Len(t, recs, 4)
	var ts []int64
	for _, r := range recs {
		ts = append(ts, r.TS)
	}
	require.Equal(t, []int64{0, 100, 500, 500}, ts)
	require.Equal(t, perftest.Comm(1, 1, "late"), recs[3].Payload)
}

func TestTokenizerUnknownEventID(t *testing.T) {
	var f perftest.File
	f.AddAttr(perftest.Attr{SampleType: sampleType, IDs: []uint64{1}})
	f.AddAttr(perftest.Attr{SampleType: sampleType, IDs: []uint64{2}})
	f.Record(perf.PERF_RECORD_SAMPLE, 0, sample(1, 1, 10, 0))
	f.Record(perf.PERF_RECORD_SAMPLE, 0, sample(999, 1, 20, 0))
	f.Record(perf.PERF_RECORD_SAMPLE, 0, sample(2, 1, 30, 0))

	e := newEnv()
	tok := e.tokenizer()
	require.NoError(t, feed(tok, f.Bytes(), 1<<20))
	require.EqualValues(t, 1, e.stats.Get(perf.StatRecordSkipped))
	recs := e.flush()
	require.Len(t, recs, 2)
	require.EqualValues(t, 10, recs[0].TS)
	require.EqualValues(t, 30, recs[1].TS)
}

func TestTokenizerAmbiguousIDs(t *testing.T) {
	var f perftest.File
	f.AddAttr(perftest.Attr{SampleType: perf.PERF_SAMPLE_IP | perf.PERF_SAMPLE_ID, IDs: []uint64{1}})
	f.AddAttr(perftest.Attr{SampleType: perf.PERF_SAMPLE_IP | perf.PERF_SAMPLE_TIME | perf.PERF_SAMPLE_ID, IDs: []uint64{2}})
	err := feed(newEnv().tokenizer(), f.Bytes(), 1<<20)
	require.ErrorIs(t, err, perf.ErrAmbiguousIDs)
}

func TestTokenizerCompressed(t *testing.T) {
	r1 := perftest.Record(perf.PERF_RECORD_SAMPLE, 0, sample(0, 1, 10, 0))
	r2 := perftest.Record(perf.PERF_RECORD_SAMPLE, 0, sample(0, 1, 20, 0))
	r3 := perftest.Record(perf.PERF_RECORD_SAMPLE, 0, sample(0, 1, 30, 0))

	var f perftest.File
	f.AddAttr(perftest.Attr{SampleType: sampleType})
	f.Raw(perftest.Compressed(r1))
	// r2 straddles two compressed records.
	f.Raw(perftest.Compressed2(r2[:10]))
	f.Raw(perftest.Compressed2(r2[10:], r3))
	f.Feature(perf.HEADER_COMPRESSED, new(perftest.Buf).U32(0).U32(feature.CompressionZstd).U32(1).U32(0).U32(0).B)

	for _, n := range []int{1, 9, 1 << 20} {
		e := newEnv()
		tok := e.tokenizer()
		require.NoError(t, feed(tok, f.Bytes(), n))
		recs := e.flush()
		require.Len(t, recs, 3)
		require.EqualValues(t, 30, recs[2].TS)
		require.Equal(t, r2[8:], recs[1].Payload)
		c, ok := tok.Session().Compression.Get()
		require.True(t, ok)
		require.EqualValues(t, feature.CompressionZstd, c.Type)
		require.Zero(t, e.stats.Get(perf.StatRecordSkipped))
	}
}

func TestTokenizerCorruptCompressedRecord(t *testing.T) {
	var f perftest.File
	f.AddAttr(perftest.Attr{SampleType: sampleType})
	f.Record(perf.PERF_RECORD_COMPRESSED, 0, []byte("definitely not zstd"))
	f.Record(perf.PERF_RECORD_SAMPLE, 0, sample(0, 1, 10, 0))

	e := newEnv()
	require.NoError(t, feed(e.tokenizer(), f.Bytes(), 1<<20))
	require.EqualValues(t, 1, e.stats.Get(perf.StatRecordSkipped))
	require.Len(t, e.flush(), 1)
}

func TestTokenizerCorruptCompressedDropsPartialRecord(t *testing.T) {
	r1 := perftest.Record(perf.PERF_RECORD_SAMPLE, 0, sample(0, 1, 10, 0))
	r2 := perftest.Record(perf.PERF_RECORD_SAMPLE, 0, sample(0, 1, 20, 0))
	r3 := perftest.Record(perf.PERF_RECORD_SAMPLE, 0, sample(0, 1, 30, 0))
	r4 := perftest.Record(perf.PERF_RECORD_SAMPLE, 0, sample(0, 1, 40, 0))

	var f perftest.File
	f.AddAttr(perftest.Attr{SampleType: sampleType})
	f.Raw(perftest.Compressed(r1))
	// The rest of r2 was in the compressed record that got corrupted.
	f.Raw(perftest.Compressed2(r2[:10]))
	f.Record(perf.PERF_RECORD_COMPRESSED, 0, []byte("definitely not zstd"))
	f.Raw(perftest.Compressed2(r3, r4))

	for _, n := range []int{1, 1 << 20} {
		e := newEnv()
		tok := e.tokenizer()
		require.NoError(t, feed(tok, f.Bytes(), n))
		recs := e.flush()
		require.Len(t, recs, 3)
		require.Equal(t, r1[8:], recs[0].Payload)
		require.Equal(t, r3[8:], recs[1].Payload)
		require.Equal(t, r4[8:], recs[2].Payload)
		require.Equal(t, []int64{10, 30, 40}, []int64{recs[0].TS, recs[1].TS, recs[2].TS})
		// The corrupt record and the incomplete r2.
		require.EqualValues(t, 2, e.stats.Get(perf.StatRecordSkipped))
	}
}

func TestTokenizerAttrWithoutIDs(t *testing.T) {
	var f perftest.File
	f.AddAttr(perftest.Attr{SampleType: sampleType})
	f.Record(perf.PERF_RECORD_SAMPLE, 0, sample(0, 1, 10, 0))

	for _, n := range []int{1, 1 << 20} {
		e := newEnv()
		tok := e.tokenizer()
		require.NoError(t, feed(tok, f.Bytes(), n))
		require.Len(t, tok.Session().Attrs, 1)
		require.Empty(t, tok.Session().Attrs[0].IDs)
		require.Len(t, e.flush(), 1)
	}
}

func TestTokenizerSingleAttrTakesAllRecords(t *testing.T) {
	// With a single event, identifiers are not consulted: a sample whose identifier isn't listed still belongs
	// to the only attribute.
	var f perftest.File
	f.AddAttr(perftest.Attr{SampleType: sampleType, IDs: []uint64{1}})
	f.Record(perf.PERF_RECORD_SAMPLE, 0, sample(1, 1, 10, 0))
	f.Record(perf.PERF_RECORD_SAMPLE, 0, sample(999, 1, 20, 0))

	e := newEnv()
	tok := e.tokenizer()
	require.NoError(t, feed(tok, f.Bytes(), 1<<20))
	require.Zero(t, e.stats.Get(perf.StatRecordSkipped))
	var attrs []*perf.EventAttr
	e.sorter.Flush(func(ts int64, r perf.Record) {
		attrs = append(attrs, r.Attr)
	})
	require.Len(t, attrs, 2)
	require.Same(t, tok.Session().Attrs[0], attrs[0])
	require.Same(t, tok.Session().Attrs[0], attrs[1])
}

func TestTokenizerAux(t *testing.T) {
	var f perftest.File
	f.AddAttr(perftest.Attr{SampleType: sampleType})
	f.Record(perf.PERF_RECORD_AUXTRACE_INFO, 0, make([]byte, 16))
	f.Record(perf.PERF_RECORD_AUXTRACE, 0, make([]byte, 32))
	f.Record(perf.PERF_RECORD_SAMPLE, 0, sample(0, 1, 10, 0))
	data := f.Bytes()

	e := newEnv()
	require.NoError(t, feed(e.tokenizer(), data, 1<<20))
	require.Equal(t, 2, e.aux.Len())
	require.Equal(t, perf.PERF_RECORD_AUXTRACE, e.aux.Blob(1).Type)
	require.Equal(t, 1, e.sorter.Len())

	// Without an aux sink, aux records are counted and dropped.
	e = newEnv()
	tok := perf.NewTokenizer(perf.TokenizerConfig{Sorter: e.sorter, Clock: e.clock, Stats: e.stats})
	require.NoError(t, feed(tok, data, 1<<20))
	require.EqualValues(t, 2, e.stats.Get(perf.StatAuxIgnored))
	require.Equal(t, 1, e.sorter.Len())
}

func TestTokenizerErrors(t *testing.T) {
	valid := func() []byte {
		var f perftest.File
		f.AddAttr(perftest.Attr{SampleType: sampleType})
		f.Record(perf.PERF_RECORD_SAMPLE, 0, sample(0, 1, 10, 0))
		return f.Bytes()
	}

	tests := []struct {
		name   string
		modify func() []byte
		want   error
	}{
		{"magic", func() []byte {
			b := valid()
			copy(b, "PERFILE1")
			return b
		}, perf.ErrInvalidMagic},
		{"big endian", func() []byte {
			b := valid()
			copy(b, "2ELIFREP")
			return b
		}, perf.ErrInvalidMagic},
		{"header size", func() []byte {
			b := valid()
			b[8] = 100
			return b
		}, perf.ErrHeaderSize},
		{"short record", func() []byte {
			var f perftest.File
			f.AddAttr(perftest.Attr{SampleType: sampleType})
			f.Raw(new(perftest.Buf).U32(uint32(perf.PERF_RECORD_SAMPLE)).U16(0).U16(4).U32(0).B)
			return f.Bytes()
		}, perf.ErrRecordSize},
		{"record beyond data", func() []byte {
			var f perftest.File
			f.AddAttr(perftest.Attr{SampleType: sampleType})
			f.Raw(new(perftest.Buf).U32(uint32(perf.PERF_RECORD_SAMPLE)).U16(0).U16(64).U64(0).B)
			f.Feature(perf.HEADER_HOSTNAME, perftest.StringFeature("host"))
			return f.Bytes()
		}, perf.ErrRecordSize},
		{"trailing data", func() []byte {
			return append(valid(), "garbage"...)
		}, perf.ErrUnexpectedData},
		{"truncated", func() []byte {
			b := valid()
			return b[:len(b)-3]
		}, perf.ErrTruncated},
		{"truncated header", func() []byte {
			return valid()[:50]
		}, perf.ErrTruncated},
		{"bad feature", func() []byte {
			var f perftest.File
			f.AddAttr(perftest.Attr{SampleType: sampleType})
			f.Feature(perf.HEADER_NRCPUS, []byte{1, 2})
			return f.Bytes()
		}, feature.ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, n := range []int{1, 1 << 20} {
				err := feed(newEnv().tokenizer(), tt.modify(), n)
				require.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestTokenizerStickyError(t *testing.T) {
	e := newEnv()
	tok := e.tokenizer()
	err := tok.Parse([]byte("PERFILE1" + string(make([]byte, 96))))
	require.ErrorIs(t, err, perf.ErrInvalidMagic)
	err2 := tok.Parse(testFile())
	require.True(t, errors.Is(err2, perf.ErrInvalidMagic))
	require.ErrorIs(t, tok.NotifyEndOfFile(), perf.ErrInvalidMagic)
	require.Zero(t, e.sorter.Len())
}

func TestTokenizerNoFeatures(t *testing.T) {
	var f perftest.File
	f.AddAttr(perftest.Attr{SampleType: sampleType})
	data := f.Bytes()

	e := newEnv()
	tok := e.tokenizer()
	require.NoError(t, feed(tok, data, 3))
	require.Equal(t, perf.StateDone, tok.State())
	require.Empty(t, tok.PendingFeatures())
}

func TestNewTokenizerRequiresCollaborators(t *testing.T) {
	require.Panics(t, func() {
		perf.NewTokenizer(perf.TokenizerConfig{Sorter: store.NewSorter()})
	})
}

func FuzzTokenizer(f *testing.F) {
	f.Add(testFile(), uint8(0))
	f.Add(testFile(), uint8(7))
	var pf perftest.File
	pf.AddAttr(perftest.Attr{SampleType: sampleType})
	pf.Raw(perftest.Compressed(perftest.Record(perf.PERF_RECORD_SAMPLE, 0, sample(0, 1, 10, 0))))
	f.Add(pf.Bytes(), uint8(3))

	f.Fuzz(func(t *testing.T, in []byte, chunk uint8) {
		// Tokenizing must terminate without crashing, whatever the input and chunking.
		n := int(chunk)
		if n == 0 {
			n = len(in) + 1
		}
		e := newEnv()
		feed(e.tokenizer(), in, n)
	})
}
