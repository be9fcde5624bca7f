package tinylfu

import (
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"
)

func TestNvec(t *testing.T) {
	n := newNvec(8)

	n.inc(0)
	require.Equal(t, byte(0x01), n[0])
	require.Equal(t, byte(1), n.get(0))
	require.Equal(t, byte(0), n.get(1))

	n.inc(1)
	require.Equal(t, byte(0x11), n[0])
	require.Equal(t, byte(1), n.get(1))

	for range 20 {
		n.inc(1)
	}
	// Counters saturate at 15 without touching their neighbour.
	require.Equal(t, byte(0xf1), n[0])
	require.Equal(t, byte(15), n.get(1))
	require.Equal(t, byte(1), n.get(0))

	n.reset()
	require.Equal(t, byte(0x70), n[0])
	require.Equal(t, byte(7), n.get(1))
	require.Equal(t, byte(0), n.get(0))
}

func TestCM4(t *testing.T) {
	cm := newCM4(32)
	hot := xxhash.Sum64String("hot")
	cold := xxhash.Sum64String("cold")

	for range 5 {
		cm.add(hot)
	}
	cm.add(cold)
	require.Equal(t, byte(5), cm.estimate(hot))
	require.GreaterOrEqual(t, cm.estimate(cold), byte(1))
	require.Less(t, cm.estimate(cold), cm.estimate(hot))

	cm.reset()
	require.Equal(t, byte(2), cm.estimate(hot))
}

func TestIndexKeysFitSketch(t *testing.T) {
	// The aux payload cache keys the sketch with hashed record indices.
	cm := newCM4(64)
	for i := range 64 {
		h := hashInt(i)
		cm.add(h)
		require.GreaterOrEqual(t, cm.estimate(h), byte(1), "index %d", i)
	}
}

var SinkByte byte

func BenchmarkCMEstimate(b *testing.B) {
	cm := newCM4(32)
	hash := xxhash.Sum64String("key")
	cm.add(hash)
	for i := 0; i < b.N; i++ {
		SinkByte = cm.estimate(hash)
	}
}

func BenchmarkCMReset(b *testing.B) {
	cm := newCM4(3200)
	for i := 0; i < b.N; i++ {
		cm.reset()
	}
}
