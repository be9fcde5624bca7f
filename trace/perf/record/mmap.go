package record

import (
	"fmt"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"honnef.co/go/perfdata/container"
	"honnef.co/go/perfdata/trace/perf"
)

type Comm struct {
	PID, TID uint32
	Name     string
}

func DecodeComm(r perf.Record) (Comm, error) {
	var c Comm
	f := fields{b: r.Payload}
	f.uint32Pair(&c.PID, &c.TID)
	c.Name = sanitize(f.cstring())
	if f.err != nil {
		return c, fmt.Errorf("couldn't decode PERF_RECORD_COMM: %w", f.err)
	}
	return c, nil
}

// sanitize replaces invalid UTF-8 in names taken from the kernel, which copies them without validation.
func sanitize(s string) string {
	out, _, err := transform.String(runes.ReplaceIllFormed(), s)
	if err != nil {
		return s
	}
	return out
}

// Mmap holds the fields shared by PERF_RECORD_MMAP and PERF_RECORD_MMAP2.
type Mmap struct {
	PID, TID uint32
	Addr     uint64
	Len      uint64
	PgOff    uint64
	Filename string
	// BuildID is only set for PERF_RECORD_MMAP2 records that embed one.
	BuildID container.Option[perf.BuildID]

	// Only set for PERF_RECORD_MMAP2.
	Prot, Flags uint32
}

func DecodeMmap(r perf.Record) (Mmap, error) {
	var m Mmap
	f := fields{b: r.Payload}
	f.uint32Pair(&m.PID, &m.TID)
	m.Addr = f.uint64()
	m.Len = f.uint64()
	m.PgOff = f.uint64()
	m.Filename = sanitize(f.cstring())
	if f.err != nil {
		return m, fmt.Errorf("couldn't decode PERF_RECORD_MMAP: %w", f.err)
	}
	return m, nil
}

func DecodeMmap2(r perf.Record) (Mmap, error) {
	var m Mmap
	f := fields{b: r.Payload}
	f.uint32Pair(&m.PID, &m.TID)
	m.Addr = f.uint64()
	m.Len = f.uint64()
	m.PgOff = f.uint64()
	// Either the device and inode of the file, or its build ID.
	id := f.next(24)
	f.uint32Pair(&m.Prot, &m.Flags)
	m.Filename = sanitize(f.cstring())
	if f.err != nil {
		return m, fmt.Errorf("couldn't decode PERF_RECORD_MMAP2: %w", f.err)
	}
	if r.Header.Misc&perf.PERF_RECORD_MISC_MMAP_BUILD_ID != 0 {
		n := min(int(id[0]), 20)
		m.BuildID = container.Some(perf.BuildIDFromRaw(id[4 : 4+n]))
	}
	return m, nil
}

func (m *Mmap) params(buildID container.Option[perf.BuildID]) MappingParams {
	return MappingParams{
		Start:       m.Addr,
		End:         m.Addr + m.Len,
		PgOff:       m.PgOff,
		StartOffset: 0,
		LoadBias:    0,
		Name:        m.Filename,
		BuildID:     buildID,
	}
}
