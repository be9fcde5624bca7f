package tinylfu

type element[K comparable, V any] struct {
	next, prev *element[K, V]
	Value      *slruItem[K, V]
}

// list is a doubly linked list with a sentinel root, like container/list but typed.
type list[K comparable, V any] struct {
	root element[K, V]
	len  int
}

func newList[K comparable, V any]() *list[K, V] {
	l := &list[K, V]{}
	l.root.next = &l.root
	l.root.prev = &l.root
	return l
}

func (l *list[K, V]) back() *element[K, V] {
	if l.len == 0 {
		return nil
	}
	return l.root.prev
}

func (l *list[K, V]) insertAfter(e, at *element[K, V]) *element[K, V] {
	e.prev = at
	e.next = at.next
	e.prev.next = e
	e.next.prev = e
	l.len++
	return e
}

func (l *list[K, V]) pushFront(v *slruItem[K, V]) *element[K, V] {
	return l.insertAfter(&element[K, V]{Value: v}, &l.root)
}

func (l *list[K, V]) remove(e *element[K, V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.next = nil
	e.prev = nil
	l.len--
}

func (l *list[K, V]) moveToFront(e *element[K, V]) {
	if l.root.next == e {
		return
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = &l.root
	e.next = l.root.next
	e.prev.next = e
	e.next.prev = e
}
