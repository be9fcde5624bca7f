package chunk

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func pushed(chunks ...string) *Buffer {
	var b Buffer
	for _, c := range chunks {
		b.Push([]byte(c))
	}
	return &b
}

func TestSliceAt(t *testing.T) {
	b := pushed("0123", "4567", "89")

	tests := []struct {
		off  int64
		n    int
		want string
		ok   bool
	}{
		{0, 4, "0123", true},
		{1, 2, "12", true},
		{2, 4, "2345", true},
		{3, 7, "3456789", true},
		{9, 1, "9", true},
		{10, 0, "", true},
		{9, 2, "", false},
		{12, 1, "", false},
	}
	for _, tt := range tests {
		got, ok, err := b.SliceAt(tt.off, tt.n)
		require.NoError(t, err)
		require.Equal(t, tt.ok, ok, "SliceAt(%d, %d)", tt.off, tt.n)
		if ok {
			require.Equal(t, tt.want, string(got), "SliceAt(%d, %d)", tt.off, tt.n)
		}
	}
}

func TestSliceAtDoesNotAliasAcrossChunks(t *testing.T) {
	b := pushed("ab", "cd")
	got, ok, err := b.SliceAt(1, 2)
	require.NoError(t, err)
	require.True(t, ok)
	got[0] = 'X'

	again, _, _ := b.SliceAt(0, 4)
	require.Equal(t, "abcd", string(again))
}

func TestDiscardBefore(t *testing.T) {
	b := pushed("0123", "4567", "89")

	require.True(t, b.DiscardBefore(5))
	require.EqualValues(t, 5, b.Start())
	require.EqualValues(t, 5, b.Len())

	got, ok, err := b.SliceAt(5, 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "56789", string(got))

	// Already discarded offsets are tolerated.
	require.True(t, b.DiscardBefore(2))
	require.EqualValues(t, 5, b.Start())

	// Beyond the frontier fails and changes nothing.
	require.False(t, b.DiscardBefore(11))
	require.EqualValues(t, 5, b.Start())

	require.True(t, b.DiscardBefore(10))
	require.True(t, b.Empty())

	b.Push([]byte("ab"))
	got, ok, err = b.SliceAt(10, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ab", string(got))
}

func TestDiscardedDiffersFromNeedMore(t *testing.T) {
	b := pushed("0123")
	require.True(t, b.DiscardBefore(2))

	_, ok, err := b.SliceAt(1, 2)
	require.False(t, ok)
	require.True(t, errors.Is(err, ErrDiscarded))

	_, ok, err = b.SliceAt(2, 8)
	require.False(t, ok)
	require.NoError(t, err)
}

func TestEmptyRangeBelowStart(t *testing.T) {
	b := pushed("0123", "4567")
	require.True(t, b.DiscardBefore(6))

	// Attributes without IDs describe their ids section as offset 0, size 0.
	got, ok, err := b.SliceAt(0, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, got)

	_, ok, err = b.SliceAt(5, 0)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestChunkingInvariance(t *testing.T) {
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i * 7)
	}
	for size := 1; size < 40; size++ {
		var b Buffer
		var out []byte
		off := int64(0)
		for i := 0; i < len(data); i += size {
			end := min(i+size, len(data))
			b.Push(bytes.Clone(data[i:end]))
			for {
				p, ok, err := b.SliceAt(off, 13)
				require.NoError(t, err)
				if !ok {
					break
				}
				out = append(out, p...)
				off += 13
				require.True(t, b.DiscardBefore(off))
			}
		}
		want := data[:len(data)/13*13]
		require.Equal(t, want, out, "chunk size %d", size)
	}
}

func BenchmarkSliceAt(b *testing.B) {
	var buf Buffer
	for i := 0; i < 1024; i++ {
		buf.Push(make([]byte, 4096))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		off := int64(i*8) % (buf.End() - 16)
		if _, ok, _ := buf.SliceAt(off, 16); !ok {
			b.Fatal("short")
		}
	}
}
