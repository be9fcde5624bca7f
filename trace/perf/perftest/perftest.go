// Package perftest writes synthetic perf.data files for tests.
package perftest

import (
	"encoding/binary"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
	"honnef.co/go/perfdata/compress"
	"honnef.co/go/perfdata/trace/perf"
)

const (
	headerSize = 104
	// AttrSize is the size of the perf_event_attr written for every attribute, PERF_ATTR_SIZE_VER8.
	AttrSize = 136
)

// Buf accumulates little-endian values.
type Buf struct {
	B []byte
}

func (b *Buf) U8(v uint8) *Buf {
	b.B = append(b.B, v)
	return b
}

func (b *Buf) U16(v uint16) *Buf {
	b.B = binary.LittleEndian.AppendUint16(b.B, v)
	return b
}

func (b *Buf) U32(v uint32) *Buf {
	b.B = binary.LittleEndian.AppendUint32(b.B, v)
	return b
}

func (b *Buf) U64(v uint64) *Buf {
	b.B = binary.LittleEndian.AppendUint64(b.B, v)
	return b
}

func (b *Buf) Bytes(p []byte) *Buf {
	b.B = append(b.B, p...)
	return b
}

func (b *Buf) Zero(n int) *Buf {
	b.B = append(b.B, make([]byte, n)...)
	return b
}

// CString appends s with a terminating NUL, padded to a multiple of 8 bytes the way the kernel pads names.
func (b *Buf) CString(s string) *Buf {
	n := (len(s) + 8) &^ 7
	b.B = append(b.B, s...)
	return b.Zero(n - len(s))
}

// PerfString appends a header string: a u32 length followed by the NUL-terminated string padded to 64 bytes.
func (b *Buf) PerfString(s string) *Buf {
	n := (len(s) + 64) &^ 63
	b.U32(uint32(n))
	b.B = append(b.B, s...)
	return b.Zero(n - len(s))
}

func (b *Buf) Len() int { return len(b.B) }

// Record encodes a complete record, header included.
func Record(typ perf.RecordType, misc uint16, payload []byte) []byte {
	size := 8 + len(payload)
	if size > 0xFFFF {
		panic(fmt.Sprintf("record of %d bytes is too large", size))
	}
	var b Buf
	b.U32(uint32(typ)).U16(misc).U16(uint16(size)).Bytes(payload)
	return b.B
}

// Compressed encodes records as the payload of a PERF_RECORD_COMPRESSED record.
func Compressed(records ...[]byte) []byte {
	var raw []byte
	for _, r := range records {
		raw = append(raw, r...)
	}
	data, err := compress.ZstdCodec{}.Compress(raw)
	if err != nil {
		panic(err)
	}
	return Record(perf.PERF_RECORD_COMPRESSED, 0, data)
}

// Compressed2 is like Compressed but produces PERF_RECORD_COMPRESSED2, which prefixes the data with its size
// and pads it to 8 bytes.
func Compressed2(records ...[]byte) []byte {
	var raw []byte
	for _, r := range records {
		raw = append(raw, r...)
	}
	data, err := compress.ZstdCodec{}.Compress(raw)
	if err != nil {
		panic(err)
	}
	var b Buf
	b.U64(uint64(len(data))).Bytes(data)
	b.Zero((8 - len(data)%8) % 8)
	return Record(perf.PERF_RECORD_COMPRESSED2, 0, b.B)
}

type Attr struct {
	Type         perf.EventType
	Config       uint64
	SamplePeriod uint64
	SampleType   perf.SampleFlag
	ReadFormat   perf.ReadFormat
	Flags        perf.AttrFlag
	ClockID      int32
	IDs          []uint64
}

// Encode returns the perf_event_attr of a.
func (a *Attr) Encode() []byte {
	var b Buf
	b.U32(uint32(a.Type)).U32(AttrSize)
	b.U64(a.Config).U64(a.SamplePeriod).U64(uint64(a.SampleType)).U64(uint64(a.ReadFormat)).U64(uint64(a.Flags))
	// wakeup_events, bp_type, config1, config2, branch_sample_type, sample_regs_user, sample_stack_user
	b.Zero(4 + 4 + 8 + 8 + 8 + 8 + 4)
	b.U32(uint32(a.ClockID))
	b.Zero(AttrSize - b.Len())
	return b.B
}

type ReadValue struct {
	Value uint64
	ID    uint64
}

// Sample holds the fields of a PERF_RECORD_SAMPLE. Which of them are written depends on the sample type.
type Sample struct {
	Identifier uint64
	IP         uint64
	PID, TID   uint32
	Time       uint64
	Addr       uint64
	ID         uint64
	StreamID   uint64
	CPU        uint32
	Period     uint64
	Read       []ReadValue
	Callchain  []uint64
}

func (s *Sample) Encode(st perf.SampleFlag, rf perf.ReadFormat) []byte {
	var b Buf
	if st&perf.PERF_SAMPLE_IDENTIFIER != 0 {
		b.U64(s.Identifier)
	}
	if st&perf.PERF_SAMPLE_IP != 0 {
		b.U64(s.IP)
	}
	if st&perf.PERF_SAMPLE_TID != 0 {
		b.U32(s.PID).U32(s.TID)
	}
	if st&perf.PERF_SAMPLE_TIME != 0 {
		b.U64(s.Time)
	}
	if st&perf.PERF_SAMPLE_ADDR != 0 {
		b.U64(s.Addr)
	}
	if st&perf.PERF_SAMPLE_ID != 0 {
		b.U64(s.ID)
	}
	if st&perf.PERF_SAMPLE_STREAM_ID != 0 {
		b.U64(s.StreamID)
	}
	if st&perf.PERF_SAMPLE_CPU != 0 {
		b.U32(s.CPU).U32(0)
	}
	if st&perf.PERF_SAMPLE_PERIOD != 0 {
		b.U64(s.Period)
	}
	if st&perf.PERF_SAMPLE_READ != 0 {
		s.encodeRead(&b, rf)
	}
	if st&perf.PERF_SAMPLE_CALLCHAIN != 0 {
		b.U64(uint64(len(s.Callchain)))
		for _, ip := range s.Callchain {
			b.U64(ip)
		}
	}
	return b.B
}

func (s *Sample) encodeRead(b *Buf, rf perf.ReadFormat) {
	times := func() {
		if rf&perf.PERF_FORMAT_TOTAL_TIME_ENABLED != 0 {
			b.U64(0)
		}
		if rf&perf.PERF_FORMAT_TOTAL_TIME_RUNNING != 0 {
			b.U64(0)
		}
	}
	value := func(v ReadValue) {
		b.U64(v.Value)
		if rf&perf.PERF_FORMAT_ID != 0 {
			b.U64(v.ID)
		}
		if rf&perf.PERF_FORMAT_LOST != 0 {
			b.U64(0)
		}
	}
	if rf&perf.PERF_FORMAT_GROUP == 0 {
		if len(s.Read) != 1 {
			panic("non-group reads have exactly one value")
		}
		b.U64(s.Read[0].Value)
		times()
		if rf&perf.PERF_FORMAT_ID != 0 {
			b.U64(s.Read[0].ID)
		}
		if rf&perf.PERF_FORMAT_LOST != 0 {
			b.U64(0)
		}
		return
	}
	b.U64(uint64(len(s.Read)))
	times()
	for _, v := range s.Read {
		value(v)
	}
}

// SampleID is the trailer that attributes with sample_id_all append to records other than samples.
type SampleID struct {
	PID, TID   uint32
	Time       uint64
	ID         uint64
	StreamID   uint64
	CPU        uint32
	Identifier uint64
}

func (s *SampleID) Encode(st perf.SampleFlag) []byte {
	var b Buf
	if st&perf.PERF_SAMPLE_TID != 0 {
		b.U32(s.PID).U32(s.TID)
	}
	if st&perf.PERF_SAMPLE_TIME != 0 {
		b.U64(s.Time)
	}
	if st&perf.PERF_SAMPLE_ID != 0 {
		b.U64(s.ID)
	}
	if st&perf.PERF_SAMPLE_STREAM_ID != 0 {
		b.U64(s.StreamID)
	}
	if st&perf.PERF_SAMPLE_CPU != 0 {
		b.U32(s.CPU).U32(0)
	}
	if st&perf.PERF_SAMPLE_IDENTIFIER != 0 {
		b.U64(s.Identifier)
	}
	return b.B
}

func Comm(pid, tid uint32, name string) []byte {
	var b Buf
	b.U32(pid).U32(tid).CString(name)
	return b.B
}

func Mmap(pid, tid uint32, addr, length, pgoff uint64, filename string) []byte {
	var b Buf
	b.U32(pid).U32(tid).U64(addr).U64(length).U64(pgoff).CString(filename)
	return b.B
}

// Mmap2 encodes a PERF_RECORD_MMAP2 payload. If buildID is not nil, it is embedded in the record and the
// returned misc flags include PERF_RECORD_MISC_MMAP_BUILD_ID.
func Mmap2(pid, tid uint32, addr, length, pgoff uint64, filename string, buildID []byte) (payload []byte, misc uint16) {
	var b Buf
	b.U32(pid).U32(tid).U64(addr).U64(length).U64(pgoff)
	if buildID != nil {
		b.U8(uint8(len(buildID))).Zero(3)
		b.Bytes(buildID).Zero(20 - len(buildID))
		misc = perf.PERF_RECORD_MISC_MMAP_BUILD_ID
	} else {
		// maj, min, ino, ino_generation
		b.Zero(24)
	}
	b.U32(5).U32(2)
	b.CString(filename)
	return b.B, misc
}

type feat struct {
	id perf.Feature
	b  []byte
}

// File builds a perf.data file. Attribute ID sections are placed between the header and the attrs section,
// as perf does.
type File struct {
	Attrs    []Attr
	data     Buf
	features []feat
}

func (f *File) AddAttr(a Attr) { f.Attrs = append(f.Attrs, a) }

// Record appends a record to the data section.
func (f *File) Record(typ perf.RecordType, misc uint16, payload []byte) {
	f.data.Bytes(Record(typ, misc, payload))
}

// Raw appends already encoded bytes to the data section.
func (f *File) Raw(b []byte) { f.data.Bytes(b) }

// Feature adds a feature section. Features are written in ascending ID order regardless of the order they are
// added in.
func (f *File) Feature(id perf.Feature, b []byte) {
	f.features = append(f.features, feat{id, b})
}

// DataSize returns the size of the data section written so far.
func (f *File) DataSize() int { return f.data.Len() }

func (f *File) Bytes() []byte {
	var fs perf.FeatureSet
	for _, ft := range f.features {
		if fs.Has(ft.id) {
			panic(fmt.Sprintf("duplicate %s feature", ft.id))
		}
		fs.Add(ft.id)
	}
	byID := make(map[perf.Feature][]byte, len(f.features))
	for _, ft := range f.features {
		byID[ft.id] = ft.b
	}

	idsOff := uint64(headerSize)
	idsSize := uint64(0)
	for _, a := range f.Attrs {
		idsSize += 8 * uint64(len(a.IDs))
	}
	attrsOff := idsOff + idsSize
	attrsSize := uint64(len(f.Attrs)) * (AttrSize + 16)
	dataOff := attrsOff + attrsSize
	dataSize := uint64(f.data.Len())

	var b Buf
	b.Bytes([]byte("PERFILE2")).U64(headerSize).U64(AttrSize+16)
	b.U64(attrsOff).U64(attrsSize)
	b.U64(dataOff).U64(dataSize)
	b.U64(0).U64(0)
	for _, w := range fs {
		b.U64(w)
	}

	for _, a := range f.Attrs {
		for _, id := range a.IDs {
			b.U64(id)
		}
	}
	off := idsOff
	for i := range f.Attrs {
		a := &f.Attrs[i]
		n := 8 * uint64(len(a.IDs))
		b.Bytes(a.Encode())
		if n == 0 {
			b.U64(0).U64(0)
		} else {
			b.U64(off).U64(n)
		}
		off += n
	}
	b.Bytes(f.data.B)

	ids := fs.IDs()
	featOff := dataOff + dataSize + 16*uint64(len(ids))
	for _, id := range ids {
		n := uint64(len(byID[id]))
		b.U64(featOff).U64(n)
		featOff += n
	}
	for _, id := range ids {
		b.Bytes(byID[id])
	}
	return b.B
}

func StringFeature(s string) []byte {
	var b Buf
	return b.PerfString(s).B
}

func CmdlineFeature(args ...string) []byte {
	var b Buf
	b.U32(uint32(len(args)))
	for _, arg := range args {
		b.PerfString(arg)
	}
	return b.B
}

type EventDesc struct {
	Attr Attr
	Name string
	IDs  []uint64
}

func EventDescFeature(descs ...EventDesc) []byte {
	var b Buf
	b.U32(uint32(len(descs))).U32(AttrSize)
	for i := range descs {
		d := &descs[i]
		b.Bytes(d.Attr.Encode())
		b.U32(uint32(len(d.IDs)))
		b.PerfString(d.Name)
		for _, id := range d.IDs {
			b.U64(id)
		}
	}
	return b.B
}

type BuildID struct {
	PID      int32
	ID       []byte
	Filename string
}

func BuildIDFeature(ids ...BuildID) []byte {
	var b Buf
	for _, id := range ids {
		var e Buf
		e.U32(uint32(id.PID))
		e.Bytes(id.ID).Zero(20 - len(id.ID))
		e.U8(uint8(len(id.ID))).Zero(3)
		e.CString(id.Filename)
		b.U32(0).U16(1 << 15).U16(uint16(8 + e.Len())).Bytes(e.B)
	}
	return b.B
}

func NrCPUsFeature(available, online uint32) []byte {
	var b Buf
	return b.U32(available).U32(online).B
}

func ClockDataFeature(clockID uint32, wallClockNs, clockTimeNs uint64) []byte {
	var b Buf
	return b.U32(1).U32(clockID).U64(wallClockNs).U64(clockTimeNs).B
}

// MetaInfoFeature encodes simpleperf's meta_info feature from alternating keys and values.
func MetaInfoFeature(kvs ...string) []byte {
	if len(kvs)%2 != 0 {
		panic("odd number of meta info strings")
	}
	var b Buf
	for _, s := range kvs {
		b.Bytes([]byte(s)).U8(0)
	}
	return b.B
}

type Symbol struct {
	Vaddr uint64
	Len   uint32
	Name  string
}

type SimpleperfFile struct {
	Path     string
	Type     uint32
	MinVaddr uint64
	Symbols  []Symbol
}

// File2Feature encodes simpleperf's file2 feature.
func File2Feature(files ...SimpleperfFile) []byte {
	var b Buf
	for _, f := range files {
		var msg []byte
		msg = protowire.AppendTag(msg, 1, protowire.BytesType)
		msg = protowire.AppendString(msg, f.Path)
		msg = protowire.AppendTag(msg, 2, protowire.VarintType)
		msg = protowire.AppendVarint(msg, uint64(f.Type))
		msg = protowire.AppendTag(msg, 3, protowire.VarintType)
		msg = protowire.AppendVarint(msg, f.MinVaddr)
		for _, sym := range f.Symbols {
			var s []byte
			s = protowire.AppendTag(s, 1, protowire.VarintType)
			s = protowire.AppendVarint(s, sym.Vaddr)
			s = protowire.AppendTag(s, 2, protowire.VarintType)
			s = protowire.AppendVarint(s, uint64(sym.Len))
			s = protowire.AppendTag(s, 3, protowire.BytesType)
			s = protowire.AppendString(s, sym.Name)
			msg = protowire.AppendTag(msg, 4, protowire.BytesType)
			msg = protowire.AppendBytes(msg, s)
		}
		b.U32(uint32(len(msg))).Bytes(msg)
	}
	return b.B
}
