// Package feature decodes the optional feature sections that follow the data section of a perf.data file.
//
// Decoders operate on complete, fully buffered sections and do not retain the input.
package feature

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrTruncated = errors.New("section is truncated")

type reader struct {
	b   []byte
	off int
}

func (r *reader) remaining() int { return len(r.b) - r.off }

func (r *reader) next(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, fmt.Errorf("couldn't read %d bytes at offset %d: %w", n, r.off, ErrTruncated)
	}
	b := r.b[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u32(dsts ...*uint32) error {
	for _, dst := range dsts {
		b, err := r.next(4)
		if err != nil {
			return fmt.Errorf("couldn't read u32: %w", err)
		}
		*dst = binary.LittleEndian.Uint32(b)
	}
	return nil
}

func (r *reader) u64(dsts ...*uint64) error {
	for _, dst := range dsts {
		b, err := r.next(8)
		if err != nil {
			return fmt.Errorf("couldn't read u64: %w", err)
		}
		*dst = binary.LittleEndian.Uint64(b)
	}
	return nil
}

// str reads a perf header string: a u32 length followed by that many bytes holding a NUL-terminated, padded
// string.
func (r *reader) str() (string, error) {
	var n uint32
	if err := r.u32(&n); err != nil {
		return "", fmt.Errorf("couldn't read string: %w", err)
	}
	if n == 0 {
		return "", nil
	}
	b, err := r.next(int(n))
	if err != nil {
		return "", fmt.Errorf("couldn't read string: %w", err)
	}
	off := bytes.IndexByte(b, 0)
	if off == -1 {
		return "", fmt.Errorf("found unterminated string")
	}
	return string(b[:off]), nil
}

// cstring reads a NUL-terminated string.
func (r *reader) cstring() (string, error) {
	b := r.b[r.off:]
	off := bytes.IndexByte(b, 0)
	if off == -1 {
		return "", fmt.Errorf("found unterminated string: %w", ErrTruncated)
	}
	r.off += off + 1
	return string(b[:off]), nil
}

// cstringIn returns the NUL-terminated string at the start of b, or all of b if it contains no NUL.
func cstringIn(b []byte) string {
	if off := bytes.IndexByte(b, 0); off != -1 {
		b = b[:off]
	}
	return string(b)
}

// ParseString decodes the string-valued features: hostname, osrelease, version, arch, cpudesc and cpuid.
func ParseString(b []byte) (string, error) {
	r := reader{b: b}
	return r.str()
}

func ParseCmdline(b []byte) ([]string, error) {
	r := reader{b: b}
	var n uint32
	if err := r.u32(&n); err != nil {
		return nil, fmt.Errorf("couldn't read cmdline: %w", err)
	}
	if int64(n)*4 > int64(r.remaining()) {
		return nil, fmt.Errorf("cmdline claims %d arguments: %w", n, ErrTruncated)
	}
	args := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := r.str()
		if err != nil {
			return nil, fmt.Errorf("couldn't read cmdline argument %d: %w", i, err)
		}
		args = append(args, s)
	}
	return args, nil
}

type EventDesc struct {
	// Attr is the raw perf_event_attr of the event.
	Attr []byte
	Name string
	IDs  []uint64
}

// ParseEventDescs decodes the event_desc feature, calling fn for every described event.
func ParseEventDescs(b []byte, fn func(EventDesc) error) error {
	r := reader{b: b}
	var n, attrSize uint32
	if err := r.u32(&n, &attrSize); err != nil {
		return fmt.Errorf("couldn't read event desc: %w", err)
	}
	for i := uint32(0); i < n; i++ {
		var desc EventDesc
		var err error
		if desc.Attr, err = r.next(int(attrSize)); err != nil {
			return fmt.Errorf("couldn't read attribute of event %d: %w", i, err)
		}
		var nids uint32
		if err := r.u32(&nids); err != nil {
			return fmt.Errorf("couldn't read event %d: %w", i, err)
		}
		if desc.Name, err = r.str(); err != nil {
			return fmt.Errorf("couldn't read name of event %d: %w", i, err)
		}
		if int64(nids)*8 > int64(r.remaining()) {
			return fmt.Errorf("event %d claims %d ids: %w", i, nids, ErrTruncated)
		}
		desc.IDs = make([]uint64, nids)
		if err := r.u64(ptrs(desc.IDs)...); err != nil {
			return err
		}
		if err := fn(desc); err != nil {
			return err
		}
	}
	return nil
}

func ptrs[T any](s []T) []*T {
	out := make([]*T, len(s))
	for i := range s {
		out[i] = &s[i]
	}
	return out
}

const buildIDMiscSize = 1 << 15

// BuildID is one entry of the build_id feature.
type BuildID struct {
	PID      int32
	ID       []byte
	Filename string
}

// ParseBuildIDs decodes the build_id feature, calling fn for every entry. Entries are perf_record_header_build_id
// structures, each starting with a record header whose size covers the whole entry.
func ParseBuildIDs(b []byte, fn func(BuildID) error) error {
	const fixed = 8 + 4 + 24
	for len(b) > 0 {
		if len(b) < fixed {
			return fmt.Errorf("couldn't read build id entry: %w", ErrTruncated)
		}
		misc := binary.LittleEndian.Uint16(b[4:])
		size := int(binary.LittleEndian.Uint16(b[6:]))
		if size < fixed || size > len(b) {
			return fmt.Errorf("invalid build id entry size %d", size)
		}

		raw := b[12:36]
		n := 20
		if misc&buildIDMiscSize != 0 {
			n = min(int(raw[20]), 20)
		}
		entry := BuildID{
			PID:      int32(binary.LittleEndian.Uint32(b[8:])),
			ID:       bytes.Clone(raw[:n]),
			Filename: cstringIn(b[fixed:size]),
		}
		if err := fn(entry); err != nil {
			return err
		}
		b = b[size:]
	}
	return nil
}

type GroupDesc struct {
	Name    string
	Leader  uint32
	Members uint32
}

func ParseGroupDescs(b []byte) ([]GroupDesc, error) {
	r := reader{b: b}
	var n uint32
	if err := r.u32(&n); err != nil {
		return nil, fmt.Errorf("couldn't read group desc: %w", err)
	}
	if int64(n)*12 > int64(r.remaining()) {
		return nil, fmt.Errorf("group desc claims %d groups: %w", n, ErrTruncated)
	}
	out := make([]GroupDesc, n)
	for i := range out {
		var err error
		if out[i].Name, err = r.str(); err != nil {
			return nil, fmt.Errorf("couldn't read group %d: %w", i, err)
		}
		if err := r.u32(&out[i].Leader, &out[i].Members); err != nil {
			return nil, fmt.Errorf("couldn't read group %d: %w", i, err)
		}
	}
	return out, nil
}

type NrCPUs struct {
	Available uint32
	Online    uint32
}

func ParseNrCPUs(b []byte) (NrCPUs, error) {
	r := reader{b: b}
	var out NrCPUs
	err := r.u32(&out.Available, &out.Online)
	return out, err
}

// ParseTotalMem returns the total system memory in bytes. The section stores kilobytes.
func ParseTotalMem(b []byte) (uint64, error) {
	r := reader{b: b}
	var kb uint64
	if err := r.u64(&kb); err != nil {
		return 0, err
	}
	return kb * 1024, nil
}

// ParseClockID returns the resolution of the recording clock, in nanoseconds.
func ParseClockID(b []byte) (uint64, error) {
	r := reader{b: b}
	var res uint64
	err := r.u64(&res)
	return res, err
}

// ClockData relates the recording clock to wall-clock time.
type ClockData struct {
	Version     uint32
	ClockID     uint32
	WallClockNs uint64
	ClockTimeNs uint64
}

func ParseClockData(b []byte) (ClockData, error) {
	r := reader{b: b}
	var out ClockData
	if err := r.u32(&out.Version, &out.ClockID); err != nil {
		return out, err
	}
	if err := r.u64(&out.WallClockNs, &out.ClockTimeNs); err != nil {
		return out, err
	}
	return out, nil
}

// Compression describes how PERF_RECORD_COMPRESSED payloads were produced.
type Compression struct {
	Version uint32
	Type    uint32
	Level   uint32
	Ratio   uint32
	MmapLen uint32
}

const CompressionZstd = 1

func ParseCompression(b []byte) (Compression, error) {
	r := reader{b: b}
	var out Compression
	err := r.u32(&out.Version, &out.Type, &out.Level, &out.Ratio, &out.MmapLen)
	return out, err
}

// EventType names a (type, config) pair. simpleperf records these instead of the event_desc feature.
type EventType struct {
	Name   string
	Type   uint32
	Config uint64
}

type SimpleperfMetaInfo struct {
	Values     map[string]string
	EventTypes []EventType
}

// ParseSimpleperfMetaInfo decodes simpleperf's meta_info feature, a sequence of NUL-terminated key and value
// strings. The event_type_info value holds one "name,type,config" line per event.
func ParseSimpleperfMetaInfo(b []byte) (SimpleperfMetaInfo, error) {
	out := SimpleperfMetaInfo{Values: map[string]string{}}
	r := reader{b: b}
	for r.remaining() > 0 {
		key, err := r.cstring()
		if err != nil {
			return out, fmt.Errorf("couldn't read meta info key: %w", err)
		}
		value, err := r.cstring()
		if err != nil {
			return out, fmt.Errorf("couldn't read meta info value for %q: %w", key, err)
		}
		out.Values[key] = value
	}

	info, ok := out.Values["event_type_info"]
	if !ok {
		return out, nil
	}
	for _, line := range strings.Split(info, "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			return out, fmt.Errorf("malformed event type info %q", line)
		}
		typ, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return out, fmt.Errorf("malformed event type in %q: %w", line, err)
		}
		config, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return out, fmt.Errorf("malformed event config in %q: %w", line, err)
		}
		out.EventTypes = append(out.EventTypes, EventType{Name: fields[0], Type: uint32(typ), Config: config})
	}
	return out, nil
}
