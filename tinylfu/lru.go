package tinylfu

// lruCache is the admission window.
type lruCache[K comparable, V any] struct {
	data map[K]*element[K, V]
	cap  int
	ll   *list[K, V]
}

func newLRU[K comparable, V any](cap int, data map[K]*element[K, V]) *lruCache[K, V] {
	return &lruCache[K, V]{
		data: data,
		cap:  cap,
		ll:   newList[K, V](),
	}
}

func (lru *lruCache[K, V]) get(e *element[K, V]) {
	lru.ll.moveToFront(e)
}

// add inserts newitem, returning the item it evicted, if any.
func (lru *lruCache[K, V]) add(newitem slruItem[K, V]) (oitem slruItem[K, V], evicted bool) {
	if lru.ll.len < lru.cap {
		lru.data[newitem.key] = lru.ll.pushFront(&newitem)
		return slruItem[K, V]{}, false
	}

	// Reuse the tail element.
	e := lru.ll.back()
	item := e.Value
	delete(lru.data, item.key)

	oitem = *item
	*item = newitem
	lru.data[item.key] = e
	lru.ll.moveToFront(e)
	return oitem, true
}
