package tinylfu

import (
	"encoding/binary"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"
)

func hashInt(k int) uint64 { return xxhash.Sum64(binary.LittleEndian.AppendUint64(nil, uint64(k))) }

func TestAddAlreadyInCache(t *testing.T) {
	c := New[string, string](100, 10000, xxhash.Sum64String)
	c.Add("foo", "bar")
	val, ok := c.Get("foo")
	require.True(t, ok)
	require.Equal(t, "bar", val)

	c.Add("foo", "baz")
	val, _ = c.Get("foo")
	require.Equal(t, "baz", val)
	require.Equal(t, 1, c.Len())
}

func TestBounded(t *testing.T) {
	c := New[int, int](50, 1000, hashInt)
	for i := range 1000 {
		c.Add(i, i)
		require.LessOrEqual(t, c.Len(), 50)
	}
}

func TestFrequentEntriesSurvive(t *testing.T) {
	c := New[int, int](20, 10000, hashInt)
	for i := range 10 {
		c.Add(i, i)
	}
	// Make the first ten entries popular.
	for range 10 {
		for i := range 10 {
			c.Get(i)
		}
	}
	// A scan of entries that are only seen once must not displace them.
	for i := 100; i < 1000; i++ {
		c.Add(i, i)
	}
	for i := range 10 {
		v, ok := c.Get(i)
		require.True(t, ok, "entry %d was evicted", i)
		require.Equal(t, i, v)
	}
}

func TestDoorkeeper(t *testing.T) {
	d := newDoorkeeper(100, 0.01)
	require.False(t, d.allow(0x1234_5678_9abc_def0))
	require.True(t, d.allow(0x1234_5678_9abc_def0))
	d.reset()
	require.False(t, d.allow(0x1234_5678_9abc_def0))
}

var SinkString string
var SinkBool bool

func BenchmarkGet(b *testing.B) {
	t := New[string, string](64, 640, xxhash.Sum64String)
	key := "some arbitrary key"
	val := "some arbitrary value"
	t.Add(key, val)
	for i := 0; i < b.N; i++ {
		SinkString, SinkBool = t.Get(key)
	}
}
