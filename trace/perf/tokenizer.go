package perf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/golang/glog"
	"golang.org/x/exp/slices"
	"honnef.co/go/perfdata/compress"
	myslices "honnef.co/go/perfdata/slices"
	"honnef.co/go/perfdata/trace/chunk"
	"honnef.co/go/perfdata/trace/perf/feature"
)

var (
	ErrInvalidMagic      = errors.New("invalid magic string")
	ErrHeaderSize        = errors.New("unexpected header size")
	ErrRecordSize        = errors.New("invalid record size")
	ErrSectionSize       = errors.New("invalid section size")
	ErrUnexpectedData    = errors.New("unexpected data")
	ErrInconsistentState = errors.New("inconsistent tokenizer state")
	ErrTruncated         = errors.New("file is truncated")
)

type State uint8

const (
	StateParseHeader State = iota
	StateParseAttrs
	StateSeekRecords
	StateParseRecords
	StateParseFeatureSections
	StateParseFeatures
	StateDone
)

func (s State) String() string {
	switch s {
	case StateParseHeader:
		return "parse header"
	case StateParseAttrs:
		return "parse attrs"
	case StateSeekRecords:
		return "seek records"
	case StateParseRecords:
		return "parse records"
	case StateParseFeatureSections:
		return "parse feature sections"
	case StateParseFeatures:
		return "parse features"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// FeatureSection is one entry of the feature index.
type FeatureSection struct {
	ID      Feature
	Section Section
}

type TokenizerConfig struct {
	// Sorter, Clock and Stats are required.
	Sorter Sorter
	Clock  ClockTranslator
	Stats  Stats
	// Aux receives AUX, AUXTRACE and AUXTRACE_INFO records. If nil, they are counted and dropped.
	Aux AuxSink
	// Files receives simpleperf's file features. If nil, they are decoded and dropped.
	Files FileFeatureSink
	// SessionID identifies the file among all files of a trace.
	SessionID int64
}

// Tokenizer incrementally frames the records of one perf.data file. It consumes the file in chunks of arbitrary
// size and never needs more of the file to be resident than the largest record or section.
//
// A Tokenizer is not safe for concurrent use. Multiple Tokenizers may share a Sorter and Stats.
type Tokenizer struct {
	cfg   TokenizerConfig
	state State
	// err is the first fatal error. Once set, the tokenizer refuses all input.
	err error

	buf chunk.Buffer
	hdr Header

	dataStart, dataEnd int64
	featureIDs         []Feature
	featureIndex       Section
	// Pending feature sections sorted by descending offset, so that the next section to parse is the last one.
	pending []FeatureSection

	session *Session
	ts      timestamps

	// inner holds the decompressed contents of compressed records. Records may span several compressed records.
	inner chunk.Buffer
	zstd  compress.Decompressor
}

func NewTokenizer(cfg TokenizerConfig) *Tokenizer {
	if cfg.Sorter == nil || cfg.Clock == nil || cfg.Stats == nil {
		panic("perf: NewTokenizer requires a Sorter, a ClockTranslator and Stats")
	}
	return &Tokenizer{
		cfg:  cfg,
		ts:   timestamps{clock: cfg.Clock, sorter: cfg.Sorter},
		zstd: compress.ZstdCodec{},
	}
}

func (t *Tokenizer) State() State { return t.state }

// Header returns the file header. It is only valid once the tokenizer has left StateParseHeader.
func (t *Tokenizer) Header() Header { return t.hdr }

// Session returns the session of the file, or nil if the attrs section hasn't been parsed yet.
func (t *Tokenizer) Session() *Session { return t.session }

// Parse consumes the next chunk of the file and processes as much of the buffered input as possible. The
// tokenizer retains p, which must not be modified afterwards.
//
// Returned errors are fatal: the file cannot be parsed any further and all subsequent calls return the same
// error. Problems confined to a single record or feature are counted in Stats instead.
func (t *Tokenizer) Parse(p []byte) error {
	if t.err != nil {
		return t.err
	}
	t.buf.Push(p)
	for {
		if t.state == StateDone {
			if !t.buf.Empty() {
				t.err = fmt.Errorf("%w: %d bytes after the last feature section", ErrUnexpectedData, t.buf.Len())
			}
			return t.err
		}
		progress, err := t.step()
		if err != nil {
			t.err = fmt.Errorf("%s: %w", t.state, err)
			return t.err
		}
		if !progress {
			return nil
		}
	}
}

// NotifyEndOfFile reports whether the file ended where it should have. Records framed before the end stay
// framed either way.
func (t *Tokenizer) NotifyEndOfFile() error {
	if t.err != nil {
		return t.err
	}
	if t.state != StateDone {
		return fmt.Errorf("%w: input ended in state %s", ErrTruncated, t.state)
	}
	return nil
}

// step runs the current state once. It returns false if it needs more data.
func (t *Tokenizer) step() (bool, error) {
	switch t.state {
	case StateParseHeader:
		return t.parseHeader()
	case StateParseAttrs:
		return t.parseAttrs()
	case StateSeekRecords:
		return t.seekRecords()
	case StateParseRecords:
		return t.parseRecords()
	case StateParseFeatureSections:
		return t.parseFeatureSections()
	case StateParseFeatures:
		return t.parseFeatures()
	default:
		return false, fmt.Errorf("%w: unexpected state %s", ErrInconsistentState, t.state)
	}
}

// offsetOf converts a file section to buffer offsets.
func offsetOf(s Section) (start, end int64, err error) {
	if s.Offset > math.MaxInt64 || s.Size > math.MaxInt64-s.Offset {
		return 0, 0, fmt.Errorf("%w: %s", ErrSectionSize, s)
	}
	return int64(s.Offset), int64(s.End()), nil
}

func (t *Tokenizer) parseHeader() (bool, error) {
	b, ok, err := t.buf.SliceAt(0, headerSize)
	if err != nil || !ok {
		return false, err
	}
	hdr := decodeHeader(b)
	switch hdr.Magic {
	case perfMagic:
	case perfMagicSwapped:
		return false, fmt.Errorf("%w: big-endian files are not supported", ErrInvalidMagic)
	default:
		return false, fmt.Errorf("%w %q", ErrInvalidMagic, hdr.Magic[:])
	}
	if hdr.Size != headerSize {
		return false, fmt.Errorf("%w: expected %d, found %d", ErrHeaderSize, headerSize, hdr.Size)
	}
	for _, s := range []Section{hdr.Attrs, hdr.Data} {
		if _, _, err := offsetOf(s); err != nil {
			return false, err
		}
	}

	t.hdr = hdr
	t.dataStart, t.dataEnd, _ = offsetOf(hdr.Data)
	t.featureIDs = hdr.Features.IDs()
	t.featureIndex = Section{Offset: hdr.Data.End(), Size: uint64(len(t.featureIDs)) * sectionSize}
	t.cfg.Clock.SetTraceTimeClock(ClockMonotonic)
	glog.V(1).Infof("perf: header: attrs %s, data %s, features %s", hdr.Attrs, hdr.Data, &hdr.Features)

	t.buf.DiscardBefore(headerSize)
	t.state = StateParseAttrs
	return true, nil
}

func (t *Tokenizer) parseAttrs() (bool, error) {
	start, _, _ := offsetOf(t.hdr.Attrs)
	b, ok, err := t.buf.SliceAt(start, int(t.hdr.Attrs.Size))
	if err != nil || !ok {
		return false, err
	}

	entrySize := t.hdr.AttrSize
	if entrySize < sectionSize+minAttrSize {
		return false, fmt.Errorf("%w: attribute entries of %d bytes", ErrSectionSize, entrySize)
	}
	if t.hdr.Attrs.Size%entrySize != 0 {
		return false, fmt.Errorf("%w: attrs section of %d bytes isn't a multiple of the entry size %d",
			ErrSectionSize, t.hdr.Attrs.Size, entrySize)
	}

	builder := NewSessionBuilder(t.cfg.SessionID)
	for len(b) > 0 {
		entry := b[:entrySize]
		b = b[entrySize:]

		attr, err := DecodeEventAttr(entry[:entrySize-sectionSize])
		if err != nil {
			return false, fmt.Errorf("couldn't decode attribute %d: %w", len(builder.attrs), err)
		}
		ids := decodeSection(entry[entrySize-sectionSize:])
		if ids.Size%8 != 0 {
			return false, fmt.Errorf("%w: ids section of %d bytes", ErrSectionSize, ids.Size)
		}
		idsStart, _, err := offsetOf(ids)
		if err != nil {
			return false, err
		}
		raw, ok, err := t.buf.SliceAt(idsStart, int(ids.Size))
		if err != nil || !ok {
			return false, err
		}
		out := make([]uint64, ids.Size/8)
		for i := range out {
			out[i] = binary.LittleEndian.Uint64(raw[8*i:])
		}
		builder.AddAttrAndIds(attr, out)
	}

	session, err := builder.Build()
	if err != nil {
		return false, err
	}
	for _, attr := range session.Attrs {
		glog.V(1).Infof("perf: event %d: type %d config %#x sample type %s, %d ids",
			attr.Index, attr.Type, attr.Config, attr.SampleType, len(attr.IDs))
	}
	t.session = session
	t.state = StateSeekRecords
	return true, nil
}

func (t *Tokenizer) seekRecords() (bool, error) {
	if !t.buf.DiscardBefore(t.dataStart) {
		return false, nil
	}
	if t.buf.Start() != t.dataStart {
		return false, fmt.Errorf("%w: data section at %d starts before consumed offset %d",
			ErrInconsistentState, t.dataStart, t.buf.Start())
	}
	t.state = StateParseRecords
	return true, nil
}

func (t *Tokenizer) parseRecords() (bool, error) {
	for t.buf.Start() < t.dataEnd {
		off := t.buf.Start()
		hdr, payload, ok, err := frame(&t.buf, off)
		if err != nil {
			return false, err
		}
		// A zero size means that not even the header was available yet.
		if hdr.Size != 0 && off+int64(hdr.Size) > t.dataEnd {
			return false, fmt.Errorf("%w: %s record at %d extends beyond the data section ending at %d",
				ErrRecordSize, hdr.Type, off, t.dataEnd)
		}
		if !ok {
			return false, nil
		}
		if err := t.handleRecord(hdr, payload); err != nil {
			return false, err
		}
		t.buf.DiscardBefore(off + int64(hdr.Size))
	}

	if !t.inner.Empty() {
		glog.V(1).Infof("perf: %d bytes of compressed records left over at end of data section", t.inner.Len())
		t.cfg.Stats.Increment(StatRecordSkipped)
		t.inner = chunk.Buffer{}
	}
	t.state = StateParseFeatureSections
	return true, nil
}

// frame reads the record at off. ok is false if the record hasn't been buffered completely.
func frame(buf *chunk.Buffer, off int64) (hdr RecordHeader, payload []byte, ok bool, err error) {
	b, ok, err := buf.SliceAt(off, recordHeaderSize)
	if err != nil || !ok {
		return hdr, nil, false, err
	}
	hdr = decodeRecordHeader(b)
	if hdr.Size < recordHeaderSize {
		return hdr, nil, false, fmt.Errorf("%w: %s record at %d has size %d", ErrRecordSize, hdr.Type, off, hdr.Size)
	}
	payload, ok, err = buf.SliceAt(off+recordHeaderSize, int(hdr.Size)-recordHeaderSize)
	return hdr, payload, ok, err
}

// handleRecord dispatches a framed record. Only desynchronization of compressed records is fatal.
func (t *Tokenizer) handleRecord(hdr RecordHeader, payload []byte) error {
	if hdr.Type == PERF_RECORD_COMPRESSED || hdr.Type == PERF_RECORD_COMPRESSED2 {
		return t.decompress(hdr, payload)
	}
	t.push(hdr, payload)
	return nil
}

func (t *Tokenizer) push(hdr RecordHeader, payload []byte) {
	if err := t.pushRecord(Record{Header: hdr, Payload: payload, Session: t.session}); err != nil {
		glog.V(2).Infof("perf: skipping %s record: %v", hdr.Type, err)
		t.cfg.Stats.Increment(StatRecordSkipped)
	}
}

func (t *Tokenizer) pushRecord(r Record) error {
	attr, err := t.session.FindAttrForRecord(r.Header, r.Payload)
	if err != nil {
		return fmt.Errorf("couldn't determine event: %w", err)
	}
	r.Attr = attr

	raw, err := readTime(&r)
	if err != nil {
		return err
	}
	ts, err := t.ts.resolve(raw)
	if err != nil {
		return err
	}

	if r.Header.Type.IsAux() {
		if t.cfg.Aux == nil {
			t.cfg.Stats.Increment(StatAuxIgnored)
			return nil
		}
		t.cfg.Aux.PushAux(r)
		return nil
	}
	t.cfg.Sorter.PushRecord(ts, r)
	return nil
}

// decompress frames the records contained in a compressed record. Records may straddle compressed records, so
// incomplete trailing records are kept until the next compressed record arrives.
func (t *Tokenizer) decompress(hdr RecordHeader, payload []byte) error {
	data := payload
	if hdr.Type == PERF_RECORD_COMPRESSED2 {
		if len(data) < 8 {
			glog.V(2).Infof("perf: skipping %s record: too short", hdr.Type)
			t.skipCompressed()
			return nil
		}
		n := binary.LittleEndian.Uint64(data)
		if n > uint64(len(data)-8) {
			glog.V(2).Infof("perf: skipping %s record: data size %d exceeds record", hdr.Type, n)
			t.skipCompressed()
			return nil
		}
		data = data[8 : 8+n]
	}
	out, err := t.zstd.Decompress(data)
	if err != nil {
		glog.V(2).Infof("perf: skipping %s record: %v", hdr.Type, err)
		t.skipCompressed()
		return nil
	}
	t.inner.Push(out)

	for {
		off := t.inner.Start()
		hdr, payload, ok, err := frame(&t.inner, off)
		if err != nil {
			return fmt.Errorf("in compressed data: %w", err)
		}
		if !ok {
			return nil
		}
		if hdr.Type == PERF_RECORD_COMPRESSED || hdr.Type == PERF_RECORD_COMPRESSED2 {
			glog.V(2).Infof("perf: skipping nested %s record", hdr.Type)
			t.cfg.Stats.Increment(StatRecordSkipped)
		} else {
			t.push(hdr, payload)
		}
		t.inner.DiscardBefore(off + int64(hdr.Size))
	}
}

// skipCompressed drops a compressed record that couldn't be decoded. A record left incomplete by earlier
// compressed records can no longer be completed, so it is dropped as well.
func (t *Tokenizer) skipCompressed() {
	t.cfg.Stats.Increment(StatRecordSkipped)
	if !t.inner.Empty() {
		glog.V(2).Infof("perf: dropping %d bytes of an incomplete compressed record", t.inner.Len())
		t.cfg.Stats.Increment(StatRecordSkipped)
		t.inner = chunk.Buffer{}
	}
}

func (t *Tokenizer) parseFeatureSections() (bool, error) {
	if t.buf.Start() != t.dataEnd {
		return false, fmt.Errorf("%w: at offset %d instead of the end of the data section %d",
			ErrInconsistentState, t.buf.Start(), t.dataEnd)
	}
	start, end, err := offsetOf(t.featureIndex)
	if err != nil {
		return false, err
	}
	b, ok, err := t.buf.SliceAt(start, int(t.featureIndex.Size))
	if err != nil || !ok {
		return false, err
	}

	pending := make([]FeatureSection, len(t.featureIDs))
	for i, id := range t.featureIDs {
		s := decodeSection(b[i*sectionSize:])
		sstart, _, err := offsetOf(s)
		if err != nil {
			return false, fmt.Errorf("%s feature: %w", id, err)
		}
		if sstart < end && s.Size != 0 {
			return false, fmt.Errorf("%w: %s feature %s overlaps the data section or feature index",
				ErrSectionSize, id, s)
		}
		pending[i] = FeatureSection{ID: id, Section: s}
	}
	slices.SortStableFunc(pending, func(a, b FeatureSection) int {
		// Descending
		switch {
		case a.Section.Offset > b.Section.Offset:
			return -1
		case a.Section.Offset < b.Section.Offset:
			return 1
		default:
			return 0
		}
	})
	t.pending = pending

	t.buf.DiscardBefore(end)
	if len(t.pending) == 0 {
		t.state = StateDone
	} else {
		t.state = StateParseFeatures
	}
	return true, nil
}

// PendingFeatures returns the feature sections that haven't been parsed yet, in the order they will be parsed.
func (t *Tokenizer) PendingFeatures() []FeatureSection {
	out := slices.Clone(t.pending)
	slices.Reverse(out)
	return out
}

func (t *Tokenizer) parseFeatures() (bool, error) {
	for len(t.pending) > 0 {
		fs, _ := myslices.Peek(t.pending)
		start, end, _ := offsetOf(fs.Section)
		b, ok, err := t.buf.SliceAt(start, int(fs.Section.Size))
		if err != nil {
			return false, fmt.Errorf("%w: %s feature %s overlaps another section: %w", ErrSectionSize, fs.ID, fs.Section, err)
		}
		if !ok {
			return false, nil
		}
		if err := t.parseFeature(fs.ID, b); err != nil {
			return false, fmt.Errorf("couldn't parse %s feature: %w", fs.ID, err)
		}
		t.buf.DiscardBefore(end)
		_, t.pending, _ = myslices.Pop(t.pending)
	}
	t.state = StateDone
	return true, nil
}

func (t *Tokenizer) parseFeature(id Feature, b []byte) error {
	s := t.session
	var err error
	switch id {
	case HEADER_CMDLINE:
		s.Cmdline, err = feature.ParseCmdline(b)

	case HEADER_EVENT_DESC:
		err = feature.ParseEventDescs(b, func(desc feature.EventDesc) error {
			for _, id := range desc.IDs {
				s.SetEventName(id, desc.Name)
			}
			return nil
		})

	case HEADER_BUILD_ID:
		err = feature.ParseBuildIDs(b, func(bid feature.BuildID) error {
			s.AddBuildID(bid.PID, bid.Filename, BuildIDFromRaw(bid.ID))
			return nil
		})

	case HEADER_GROUP_DESC:
		s.Groups, err = feature.ParseGroupDescs(b)

	case HEADER_HOSTNAME:
		s.Machine.Hostname, err = feature.ParseString(b)
	case HEADER_OSRELEASE:
		s.Machine.Release, err = feature.ParseString(b)
	case HEADER_VERSION:
		s.Machine.Version, err = feature.ParseString(b)
	case HEADER_ARCH:
		s.Machine.Architecture, err = feature.ParseString(b)
	case HEADER_CPUDESC:
		s.Machine.CPUDesc, err = feature.ParseString(b)
	case HEADER_CPUID:
		s.Machine.CPUID, err = feature.ParseString(b)
	case HEADER_NRCPUS:
		var n feature.NrCPUs
		n, err = feature.ParseNrCPUs(b)
		s.Machine.CPUsAvailable, s.Machine.CPUsOnline = n.Available, n.Online
	case HEADER_TOTAL_MEM:
		s.Machine.TotalMemory, err = feature.ParseTotalMem(b)

	case HEADER_CLOCKID:
		var res uint64
		if res, err = feature.ParseClockID(b); err == nil {
			s.ClockResolution.Put(res)
		}
	case HEADER_CLOCK_DATA:
		var cd feature.ClockData
		if cd, err = feature.ParseClockData(b); err == nil {
			s.ClockData.Put(cd)
		}
	case HEADER_COMPRESSED:
		var c feature.Compression
		if c, err = feature.ParseCompression(b); err == nil {
			s.Compression.Put(c)
			if c.Type != feature.CompressionZstd {
				glog.V(1).Infof("perf: file claims unknown compression type %d", c.Type)
			}
		}

	case HEADER_SIMPLEPERF_META_INFO:
		var meta feature.SimpleperfMetaInfo
		if meta, err = feature.ParseSimpleperfMetaInfo(b); err == nil {
			s.Meta = meta.Values
			for _, et := range meta.EventTypes {
				s.SetEventTypeName(EventType(et.Type), et.Config, et.Name)
			}
		}

	case HEADER_SIMPLEPERF_FILE2:
		err = feature.ParseSimpleperfFile2(b, func(f feature.SimpleperfFile) error {
			if t.cfg.Files != nil {
				t.cfg.Files.AddSimpleperfFile(f)
			}
			return nil
		})

	default:
		glog.V(2).Infof("perf: skipping %s feature of %d bytes", id, len(b))
		t.cfg.Stats.IncrementIndexed(StatFeaturesSkipped, int(id))
	}
	return err
}
