package container

import (
	"golang.org/x/exp/constraints"
)

type Direction uint8
type Color bool

const (
	Left  Direction = 0
	Right Direction = 1
)

const (
	Black Color = false
	Red   Color = true
)

type Comparable[T any] interface {
	Compare(T) int
}

type RBTree[K Comparable[K], V any] struct {
	Root     *RBNode[K, V]
	NumNodes int

	Rotated func(node *RBNode[K, V])
}

type RBNode[K Comparable[K], V any] struct {
	Parent   *RBNode[K, V]
	Children [2]*RBNode[K, V]
	Key      K
	Value    V
	color    Color
}

func NewRBNode[K Comparable[K], V any](k K, v V) *RBNode[K, V] {
	return &RBNode[K, V]{
		Key:   k,
		Value: v,
	}
}

func (t *RBTree[K, V]) Search(k K) (node *RBNode[K, V], found bool, dir Direction) {
	if t.Root == nil {
		return nil, false, 0
	}

	x := t.Root
	for {
		switch k.Compare(x.Key) {
		case -1:
			dir = Left
		case 0:
			return x, true, 0
		case 1:
			dir = Right
		}

		child := x.Children[dir]
		if child == nil {
			return x, false, dir
		}
		x = child
	}
}

func (t *RBTree[K, V]) rotate(p *RBNode[K, V], dir Direction) *RBNode[K, V] {
	g := p.Parent
	s := p.Children[1-dir]
	c := s.Children[dir]
	p.Children[1-dir] = c
	if c != nil {
		c.Parent = p
	}
	s.Children[dir] = p
	p.Parent = s
	s.Parent = g
	if g != nil {
		var child Direction
		if p == g.Children[Right] {
			child = Right
		} else {
			child = Left
		}
		g.Children[child] = s
	} else {
		t.Root = s
	}

	if t.Rotated != nil {
		t.Rotated(p)
	}

	return s
}

func (t *RBTree[K, V]) Insert(k K, v V) *RBNode[K, V] {
	if t.Root == nil {
		t.NumNodes++
		n := NewRBNode(k, v)
		t.insert(n, nil, 0)
		return n
	}

	p, ok, dir := t.Search(k)
	if ok {
		p.Value = v
		return p
	} else {
		t.NumNodes++
		n := NewRBNode(k, v)
		t.insert(n, p, dir)
		return n
	}
}

func (t *RBTree[K, V]) insert(n *RBNode[K, V], p *RBNode[K, V], dir Direction) {
	var g *RBNode[K, V]
	var u *RBNode[K, V]

	n.color = Red
	n.Children[Left] = nil
	n.Children[Right] = nil
	n.Parent = p
	if p == nil {
		t.Root = n
		return
	}
	p.Children[dir] = n

	for {
		if p.color == Black {
			return
		}

		g = p.Parent
		if g == nil {
			p.color = Black
			return
		}

		dir = p.childDir()
		u = g.Children[1-dir]
		if u == nil || u.color == Black {
			if n == p.Children[1-dir] {
				t.rotate(p, dir)
				n = p
				p = g.Children[dir]
			}

			t.rotate(g, 1-dir)
			p.color = Black
			g.color = Red
			return
		}

		p.color = Black
		u.color = Black
		g.color = Red
		n = g

		p = n.Parent
		if p == nil {
			break
		}
	}
}

func (n *RBNode[K, V]) childDir() Direction {
	if n.Parent.Children[Right] == n {
		return Right
	} else {
		return Left
	}
}

type Interval[T constraints.Ordered] struct {
	Min, Max T
}

type Value[T constraints.Ordered, V any] struct {
	MaxSubtree T
	Value      V
}

func (ival Interval[T]) Compare(oval Interval[T]) int {
	if ival.Min < oval.Min {
		return -1
	} else if ival.Min > oval.Min {
		return 1
	} else {
		if ival.Max < oval.Max {
			return -1
		} else if ival.Max > oval.Max {
			return 1
		} else {
			return 0
		}
	}
}

type IntervalTree[T constraints.Ordered, V any] struct {
	RBTree[Interval[T], Value[T, V]]
}

func (t *IntervalTree[T, V]) Insert(min, max T, value V) *RBNode[Interval[T], Value[T, V]] {
	n := t.RBTree.Insert(Interval[T]{min, max}, Value[T, V]{MaxSubtree: max, Value: value})
	t.updateAug(n)
	return n
}

func (t *IntervalTree[T, V]) updateAug(n *RBNode[Interval[T], Value[T, V]]) {
	if n == nil {
		return
	}

	max := n.Key.Max
	if c := n.Children[0]; c != nil && c.Value.MaxSubtree > max {
		max = c.Value.MaxSubtree
	}
	if c := n.Children[1]; c != nil && c.Value.MaxSubtree > max {
		max = c.Value.MaxSubtree
	}

	n.Value.MaxSubtree = max
	t.updateAug(n.Parent)
}

func (t *IntervalTree[T, V]) stab(node *RBNode[Interval[T], Value[T, V]], x T, fn func(node *RBNode[Interval[T], Value[T, V]]) bool) bool {
	if node == nil || x > node.Value.MaxSubtree {
		// Nothing in this subtree reaches x.
		return false
	}
	if t.stab(node.Children[Left], x, fn) {
		return true
	}
	if x < node.Key.Min {
		// Everything to the right starts after x.
		return false
	}
	if x <= node.Key.Max && fn(node) {
		return true
	}
	return t.stab(node.Children[Right], x, fn)
}

func NewIntervalTree[T constraints.Ordered, V any]() *IntervalTree[T, V] {
	t := &IntervalTree[T, V]{}
	t.Rotated = func(node *RBNode[Interval[T], Value[T, V]]) {
		t.updateAug(node)
	}
	return t
}

// Stab calls fn for every interval that contains x, in order of ascending Min. It stops early if fn returns true.
// Subtrees whose largest Max is below x are skipped.
func (t *IntervalTree[T, V]) Stab(x T, fn func(node *RBNode[Interval[T], Value[T, V]]) bool) {
	t.stab(t.Root, x, fn)
}

// Len returns the number of intervals in the tree.
func (t *IntervalTree[T, V]) Len() int {
	return t.NumNodes
}
