package feature

import (
	"encoding/binary"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
	"honnef.co/go/perfdata/container"
)

// DSO types used by simpleperf's FileFeature.type.
const (
	DSOKernel        = 0
	DSOKernelModule  = 1
	DSOElfFile       = 2
	DSODexFile       = 3
	DSOSymbolMapFile = 4
	DSOUnknownFile   = 5
)

type Symbol struct {
	Vaddr uint64
	Len   uint32
	Name  string
}

// SimpleperfFile is a decoded simpleperf FileFeature message: the symbols simpleperf already resolved for one
// binary, plus the information needed to relate them to mapped addresses.
type SimpleperfFile struct {
	Path     string
	Type     uint32
	MinVaddr uint64
	Symbols  []Symbol

	DexFileOffsets         []uint64
	FileOffsetOfMinVaddr   container.Option[uint64]
	MemoryOffsetOfMinVaddr container.Option[uint64]
}

// ParseSimpleperfFile2 decodes simpleperf's file2 feature, a sequence of u32-length-prefixed FileFeature
// protobuf messages, calling fn for each.
func ParseSimpleperfFile2(b []byte, fn func(SimpleperfFile) error) error {
	for len(b) > 0 {
		if len(b) < 4 {
			return fmt.Errorf("couldn't read file feature size: %w", ErrTruncated)
		}
		n := binary.LittleEndian.Uint32(b)
		b = b[4:]
		if uint64(n) > uint64(len(b)) {
			return fmt.Errorf("file feature of size %d: %w", n, ErrTruncated)
		}
		f, err := parseFileFeature(b[:n])
		if err != nil {
			return fmt.Errorf("couldn't decode file feature: %w", err)
		}
		if err := fn(f); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// fields calls fn for every field of the message in b. fn returns the number of bytes it consumed of the field
// value, or a negative protowire error code.
func fields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m := fn(num, typ, b)
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func parseFileFeature(b []byte) (SimpleperfFile, error) {
	var f SimpleperfFile
	var nested error
	err := fields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			f.Path = string(v)
			return n
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			f.Type = uint32(v)
			return n
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			f.MinVaddr = v
			return n
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				sym, err := parseSymbol(v)
				if err != nil {
					nested = err
					return len(b)
				}
				f.Symbols = append(f.Symbols, sym)
			}
			return n
		case num == 5 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				if err := parseDexFile(v, &f); err != nil {
					nested = err
					return len(b)
				}
			}
			return n
		case num == 6 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				if off, ok, err := singleVarint(v); err != nil {
					nested = err
					return len(b)
				} else if ok {
					f.FileOffsetOfMinVaddr = container.Some(off)
				}
			}
			return n
		case num == 7 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				if off, ok, err := singleVarint(v); err != nil {
					nested = err
					return len(b)
				} else if ok {
					f.MemoryOffsetOfMinVaddr = container.Some(off)
				}
			}
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	if err == nil {
		err = nested
	}
	return f, err
}

func parseSymbol(b []byte) (Symbol, error) {
	var sym Symbol
	err := fields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			sym.Vaddr = v
			return n
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			sym.Len = uint32(v)
			return n
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			sym.Name = string(v)
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return sym, err
}

func parseDexFile(b []byte, f *SimpleperfFile) error {
	return fields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num != 1 {
			return protowire.ConsumeFieldValue(num, typ, b)
		}
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			f.DexFileOffsets = append(f.DexFileOffsets, v)
			return n
		case protowire.BytesType:
			// Packed encoding.
			v, n := protowire.ConsumeBytes(b)
			for len(v) > 0 {
				x, m := protowire.ConsumeVarint(v)
				if m < 0 {
					return m
				}
				f.DexFileOffsets = append(f.DexFileOffsets, x)
				v = v[m:]
			}
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
}

// singleVarint decodes a message whose only interesting field is varint field 1.
func singleVarint(b []byte) (uint64, bool, error) {
	var out uint64
	var ok bool
	err := fields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			out, ok = v, true
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
	return out, ok, err
}
