package store

import (
	"honnef.co/go/perfdata/container"
	"honnef.co/go/perfdata/mem"
	"honnef.co/go/perfdata/trace/perf/record"
)

// Mappings implements record.MappingTracker. When mappings overlap, the most recently created one wins, which
// matches how a later mmap replaces an earlier one.
type Mappings struct {
	all    mem.BucketSlice[record.Mapping]
	kernel *container.IntervalTree[uint64, record.MappingID]
	user   map[record.UniquePID]*container.IntervalTree[uint64, record.MappingID]
	dummy  *record.Mapping
}

func NewMappings() *Mappings {
	return &Mappings{
		kernel: container.NewIntervalTree[uint64, record.MappingID](),
		user:   make(map[record.UniquePID]*container.IntervalTree[uint64, record.MappingID]),
	}
}

func (ms *Mappings) create(p record.MappingParams, kernel bool) *record.Mapping {
	return ms.all.Append(record.Mapping{
		ID:            record.MappingID(ms.all.Len()),
		MappingParams: p,
		Kernel:        kernel,
	})
}

func (ms *Mappings) CreateKernelMapping(p record.MappingParams) *record.Mapping {
	m := ms.create(p, true)
	if p.End > p.Start {
		ms.kernel.Insert(p.Start, p.End-1, m.ID)
	}
	return m
}

func (ms *Mappings) CreateUserMapping(upid record.UniquePID, p record.MappingParams) *record.Mapping {
	m := ms.create(p, false)
	if p.End > p.Start {
		t, ok := ms.user[upid]
		if !ok {
			t = container.NewIntervalTree[uint64, record.MappingID]()
			ms.user[upid] = t
		}
		t.Insert(p.Start, p.End-1, m.ID)
	}
	return m
}

func (ms *Mappings) find(t *container.IntervalTree[uint64, record.MappingID], addr uint64) *record.Mapping {
	if t == nil {
		return nil
	}
	found := container.None[record.MappingID]()
	t.Stab(addr, func(n *container.RBNode[container.Interval[uint64], container.Value[uint64, record.MappingID]]) bool {
		if id := n.Value.Value; !found.Set() || id > found.MustGet() {
			found = container.Some(id)
		}
		return false
	})
	id, ok := found.Get()
	if !ok {
		return nil
	}
	return ms.all.Ptr(int(id))
}

func (ms *Mappings) FindKernelMapping(addr uint64) *record.Mapping {
	return ms.find(ms.kernel, addr)
}

func (ms *Mappings) FindUserMapping(upid record.UniquePID, addr uint64) *record.Mapping {
	return ms.find(ms.user[upid], addr)
}

// DummyMapping returns a mapping covering no addresses, created on first use. Its relative PCs are the
// absolute addresses.
func (ms *Mappings) DummyMapping() *record.Mapping {
	if ms.dummy == nil {
		ms.dummy = ms.create(record.MappingParams{Name: "/dummy"}, false)
	}
	return ms.dummy
}

func (ms *Mappings) Len() int { return ms.all.Len() }

func (ms *Mappings) Get(id record.MappingID) *record.Mapping { return ms.all.Ptr(int(id)) }
