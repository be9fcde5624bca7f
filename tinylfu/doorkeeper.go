package tinylfu

import "math"

// doorkeeper is a Bloom filter that keeps one-hit wonders out of the main cache. An entry has to be seen twice
// within a sampling period before it is considered for admission.
type doorkeeper struct {
	bits []uint64
	mask uint32
	k    int
}

func newDoorkeeper(capacity int, falsePositiveRate float64) *doorkeeper {
	capacity = max(capacity, 1)
	ln2 := math.Ln2
	m := -float64(capacity) * math.Log(falsePositiveRate) / (ln2 * ln2)
	n := nextPowerOfTwo(uint32(max(m, 64)))
	k := int(math.Ceil(float64(n) / float64(capacity) * ln2))
	return &doorkeeper{
		bits: make([]uint64, n/64),
		mask: n - 1,
		k:    max(min(k, 16), 1),
	}
}

// allow records keyh and reports whether it had been recorded before.
func (d *doorkeeper) allow(keyh uint64) bool {
	h1, h2 := uint32(keyh), uint32(keyh>>32)
	seen := true
	for i := range d.k {
		bit := (h1 + uint32(i)*h2) & d.mask
		word, mask := bit/64, uint64(1)<<(bit%64)
		if d.bits[word]&mask == 0 {
			seen = false
			d.bits[word] |= mask
		}
	}
	return seen
}

func (d *doorkeeper) reset() {
	clear(d.bits)
}

func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
