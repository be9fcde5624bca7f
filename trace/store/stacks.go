package store

import (
	"honnef.co/go/perfdata/container"
	"honnef.co/go/perfdata/mem"
	"honnef.co/go/perfdata/trace/perf/record"
)

type Frame struct {
	Mapping record.MappingID
	RelPC   uint64
}

type Callsite struct {
	Parent container.Option[record.CallsiteID]
	Frame  record.FrameID
	Depth  uint32
}

type callsiteKey struct {
	parent    record.CallsiteID
	hasParent bool
	frame     record.FrameID
	depth     uint32
}

// Stacks implements record.StackTracker. Frames and call sites are stored in arenas and referenced by index.
type Stacks struct {
	frames      mem.BucketSlice[Frame]
	frameIDs    map[Frame]record.FrameID
	callsites   mem.BucketSlice[Callsite]
	callsiteIDs map[callsiteKey]record.CallsiteID
}

func NewStacks() *Stacks {
	return &Stacks{
		frameIDs:    make(map[Frame]record.FrameID),
		callsiteIDs: make(map[callsiteKey]record.CallsiteID),
	}
}

func (s *Stacks) InternFrame(m *record.Mapping, relPC uint64) record.FrameID {
	f := Frame{Mapping: m.ID, RelPC: relPC}
	if id, ok := s.frameIDs[f]; ok {
		return id
	}
	id := record.FrameID(s.frames.Len())
	s.frames.Append(f)
	s.frameIDs[f] = id
	return id
}

func (s *Stacks) InternCallsite(parent container.Option[record.CallsiteID], frame record.FrameID, depth uint32) record.CallsiteID {
	p, hasParent := parent.Get()
	key := callsiteKey{parent: p, hasParent: hasParent, frame: frame, depth: depth}
	if id, ok := s.callsiteIDs[key]; ok {
		return id
	}
	id := record.CallsiteID(s.callsites.Len())
	s.callsites.Append(Callsite{Parent: parent, Frame: frame, Depth: depth})
	s.callsiteIDs[key] = id
	return id
}

func (s *Stacks) Frame(id record.FrameID) Frame { return s.frames.Get(int(id)) }

func (s *Stacks) Callsite(id record.CallsiteID) Callsite { return s.callsites.Get(int(id)) }

func (s *Stacks) NumFrames() int    { return s.frames.Len() }
func (s *Stacks) NumCallsites() int { return s.callsites.Len() }

// Unwind returns the frames of a call site, from the innermost to the outermost.
func (s *Stacks) Unwind(id record.CallsiteID) []Frame {
	var out []Frame
	for {
		cs := s.callsites.Get(int(id))
		out = append(out, s.frames.Get(int(cs.Frame)))
		parent, ok := cs.Parent.Get()
		if !ok {
			return out
		}
		id = parent
	}
}
