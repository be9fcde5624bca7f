// Package tinylfu implements a cache using the TinyLFU admission policy (http://arxiv.org/abs/1512.00727) in
// front of a segmented LRU.
//
// A small LRU window admits every new entry. Entries evicted from the window only enter the main segmented
// LRU if their estimated access frequency is at least that of the entry they would displace.
package tinylfu

// T is a TinyLFU cache. It is not safe for concurrent use.
type T[K comparable, V any] struct {
	c       *cm4
	bouncer *doorkeeper
	w       int
	samples int
	lru     *lruCache[K, V]
	slru    *slruCache[K, V]
	data    map[K]*element[K, V]
	hash    func(K) uint64
}

// New returns a cache holding up to size entries. Frequency estimates are halved every samples accesses. hash
// must be a good 64-bit hash of keys.
func New[K comparable, V any](size int, samples int, hash func(K) uint64) *T[K, V] {
	const lruPct = 1

	lruSize := max((lruPct*size)/100, 1)
	slruSize := max(size-lruSize, 1)
	slru20 := max(slruSize/5, 1)

	data := make(map[K]*element[K, V], size)
	return &T[K, V]{
		c:       newCM4(size),
		samples: samples,
		bouncer: newDoorkeeper(samples, 0.01),
		data:    data,
		lru:     newLRU(lruSize, data),
		slru:    newSLRU(slru20, slruSize-slru20, data),
		hash:    hash,
	}
}

func (t *T[K, V]) Get(key K) (V, bool) {
	t.w++
	if t.w == t.samples {
		t.c.reset()
		t.bouncer.reset()
		t.w = 0
	}

	e, ok := t.data[key]
	if !ok {
		t.c.add(t.hash(key))
		return *new(V), false
	}

	item := e.Value
	t.c.add(item.keyh)
	if item.listid == 0 {
		t.lru.get(e)
	} else {
		t.slru.get(e)
	}
	return item.value, true
}

func (t *T[K, V]) Add(key K, val V) {
	if e, ok := t.data[key]; ok {
		// Updating an entry counts as an access.
		item := e.Value
		item.value = val
		t.c.add(item.keyh)
		if item.listid == 0 {
			t.lru.get(e)
		} else {
			t.slru.get(e)
		}
		return
	}

	newitem := slruItem[K, V]{0, key, val, t.hash(key)}
	oitem, evicted := t.lru.add(newitem)
	if !evicted {
		return
	}

	victim := t.slru.victim()
	if victim == nil {
		t.slru.add(oitem)
		return
	}
	if !t.bouncer.allow(oitem.keyh) {
		return
	}
	if t.c.estimate(oitem.keyh) < t.c.estimate(victim.keyh) {
		return
	}
	t.slru.add(oitem)
}

// Len returns the number of cached entries.
func (t *T[K, V]) Len() int { return len(t.data) }
