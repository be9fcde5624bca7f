// Package compress provides the block codecs used for retained record payloads and for decoding compressed
// perf.data records.
package compress

import (
	"fmt"
	"strings"
)

type Compressor interface {
	// Compress returns a newly allocated compressed copy of data.
	Compress(data []byte) ([]byte, error)
}

type Decompressor interface {
	// Decompress returns a newly allocated decompressed copy of data.
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions. Implementations are safe for concurrent use.
type Codec interface {
	Compressor
	Decompressor
}

type Type uint8

const (
	None Type = iota
	Snappy
	S2
	LZ4
	Zstd
)

func (typ Type) String() string {
	switch typ {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	case S2:
		return "s2"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("Type(%d)", uint8(typ))
	}
}

// Decode implements envconfig.Decoder.
func (typ *Type) Decode(value string) error {
	t, err := ParseType(value)
	if err != nil {
		return err
	}
	*typ = t
	return nil
}

// Set implements flag.Value.
func (typ *Type) Set(value string) error { return typ.Decode(value) }

func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return None, nil
	case "snappy":
		return Snappy, nil
	case "s2":
		return S2, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

var builtinCodecs = map[Type]Codec{
	None:   NoOp{},
	Snappy: SnappyCodec{},
	S2:     S2Codec{},
	LZ4:    LZ4Codec{},
	Zstd:   ZstdCodec{},
}

// Get returns the built-in codec for typ.
func Get(typ Type) (Codec, error) {
	if c, ok := builtinCodecs[typ]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("unsupported compression type: %s", typ)
}

type NoOp struct{}

func (NoOp) Compress(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

func (NoOp) Decompress(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}
