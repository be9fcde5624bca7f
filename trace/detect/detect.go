// Package detect guesses the type of a trace from its first bytes.
package detect

import (
	"bytes"
	"strings"
)

type Type uint8

const (
	Unknown Type = iota
	PerfData
	Zip
	Gzip
	Fuchsia
	JSON
	Systrace
	Proto
)

func (typ Type) String() string {
	switch typ {
	case PerfData:
		return "perf data"
	case Zip:
		return "ZIP file"
	case Gzip:
		return "gzip trace"
	case Fuchsia:
		return "fuchsia trace"
	case JSON:
		return "JSON trace"
	case Systrace:
		return "systrace trace"
	case Proto:
		return "proto trace"
	default:
		return "unknown trace"
	}
}

// Lookahead is the number of bytes Guess looks at for types without a binary magic.
const Lookahead = 128

var (
	perfMagic    = []byte("PERFILE2")
	zipMagic     = []byte("PK\x03\x04")
	gzipMagic    = []byte{0x1f, 0x8b}
	fuchsiaMagic = []byte{0x10, 0x00, 0x04, 0x46, 0x78, 0x54, 0x16, 0x00}
)

// Guess returns the type of the trace starting with b. It needs at most Lookahead bytes.
func Guess(b []byte) Type {
	switch {
	case len(b) == 0:
		return Unknown
	case bytes.HasPrefix(b, fuchsiaMagic):
		return Fuchsia
	case bytes.HasPrefix(b, perfMagic):
		return PerfData
	case bytes.HasPrefix(b, zipMagic):
		return Zip
	case bytes.HasPrefix(b, gzipMagic):
		return Gzip
	}

	start := string(b[:min(len(b), Lookahead)])
	compact := strings.Join(strings.Fields(start), "")
	lower := strings.ToLower(start)
	switch {
	case strings.HasPrefix(compact, `{"`), strings.HasPrefix(compact, `[{"`):
		return JSON
	case strings.Contains(start, "# tracer"),
		strings.HasPrefix(lower, "<!doctype html>"),
		strings.HasPrefix(lower, "<html>"),
		strings.Contains(start, "TRACE:\n"),
		strings.HasPrefix(start, " "):
		return Systrace
	case start[0] == '\n':
		return Proto
	default:
		return Unknown
	}
}
