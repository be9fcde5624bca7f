package record

import (
	"bytes"
	"encoding/binary"
	"errors"

	"honnef.co/go/perfdata/container"
)

var errShort = errors.New("record is too short")

// fields decodes the fields of a record payload in order. The first read past the end of the payload sets err,
// after which all reads yield zero values.
type fields struct {
	b   []byte
	err error
}

func (f *fields) next(n int) []byte {
	if f.err != nil {
		return nil
	}
	if n < 0 || n > len(f.b) {
		f.err = errShort
		return nil
	}
	b := f.b[:n]
	f.b = f.b[n:]
	return b
}

func (f *fields) uint64() uint64 {
	b := f.next(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// uint64If decodes the next 64 bit field into v, if cond is true.
func (f *fields) uint64If(cond bool, v *container.Option[uint64]) {
	if cond {
		x := f.uint64()
		if f.err == nil {
			v.Put(x)
		}
	}
}

// uint32Pair decodes a pair of uint32s into a and b.
func (f *fields) uint32Pair(a, b *uint32) {
	p := f.next(8)
	if p == nil {
		return
	}
	*a = binary.LittleEndian.Uint32(p)
	*b = binary.LittleEndian.Uint32(p[4:])
}

// cstring decodes a NUL-terminated string. The terminator is consumed but not returned.
func (f *fields) cstring() string {
	if f.err != nil {
		return ""
	}
	i := bytes.IndexByte(f.b, 0)
	if i == -1 {
		f.err = errors.New("unterminated string")
		return ""
	}
	s := string(f.b[:i])
	f.b = f.b[i+1:]
	return s
}
