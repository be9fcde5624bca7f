package tinylfu

type slruItem[K comparable, V any] struct {
	listid int
	key    K
	value  V
	keyh   uint64
}

// slruCache is the main segmented LRU. Entries start on the probation list one and are promoted to the
// protected list two when they are accessed again.
type slruCache[K comparable, V any] struct {
	data           map[K]*element[K, V]
	onecap, twocap int
	one, two       *list[K, V]
}

func newSLRU[K comparable, V any](onecap, twocap int, data map[K]*element[K, V]) *slruCache[K, V] {
	return &slruCache[K, V]{
		data:   data,
		onecap: onecap,
		one:    newList[K, V](),
		twocap: twocap,
		two:    newList[K, V](),
	}
}

// get updates the cache data structures for a get
func (slru *slruCache[K, V]) get(v *element[K, V]) {
	item := v.Value

	// already on list two?
	if item.listid == 2 {
		slru.two.moveToFront(v)
		return
	}

	// must be list one

	// is there space on the next list?
	if slru.two.len < slru.twocap {
		// just do the remove/add
		slru.one.remove(v)
		item.listid = 2
		slru.data[item.key] = slru.two.pushFront(item)
		return
	}

	back := slru.two.back()
	bitem := back.Value

	// swap the key/values
	*bitem, *item = *item, *bitem

	bitem.listid = 2
	item.listid = 1

	// update pointers in the map
	slru.data[item.key] = v
	slru.data[bitem.key] = back

	// move the elements to the front of their lists
	slru.one.moveToFront(v)
	slru.two.moveToFront(back)
}

func (slru *slruCache[K, V]) add(newitem slruItem[K, V]) {
	newitem.listid = 1

	if slru.one.len < slru.onecap || (slru.size() < slru.onecap+slru.twocap) {
		slru.data[newitem.key] = slru.one.pushFront(&newitem)
		return
	}

	// reuse the tail item
	e := slru.one.back()
	item := e.Value

	delete(slru.data, item.key)

	*item = newitem

	slru.data[item.key] = e
	slru.one.moveToFront(e)
}

func (slru *slruCache[K, V]) victim() *slruItem[K, V] {
	if slru.size() < slru.onecap+slru.twocap {
		return nil
	}

	v := slru.one.back()

	return v.Value
}

func (slru *slruCache[K, V]) size() int {
	return slru.one.len + slru.two.len
}
