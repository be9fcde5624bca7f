package perf

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"honnef.co/go/perfdata/container"
	"honnef.co/go/perfdata/trace/perf/feature"
)

var (
	ErrNoAttrs        = errors.New("session has no event attributes")
	ErrUnknownEventID = errors.New("unknown event ID")
	// ErrAmbiguousIDs is returned when a file records several events but the event ID of a sample cannot be
	// located without already knowing which event it belongs to.
	ErrAmbiguousIDs = errors.New("multiple events but no reliable identifier to identify them")
)

// BuildID is the raw build ID of a binary.
type BuildID string

func BuildIDFromRaw(b []byte) BuildID { return BuildID(b) }

// String returns the lower-case hex form of the build ID.
func (id BuildID) String() string { return hex.EncodeToString([]byte(id)) }

type Machine struct {
	Hostname      string
	Release       string
	Version       string
	Architecture  string
	CPUDesc       string
	CPUID         string
	CPUsAvailable uint32
	CPUsOnline    uint32
	// Total system memory, in bytes
	TotalMemory uint64
}

type eventTypeKey struct {
	typ    EventType
	config uint64
}

type buildIDKey struct {
	pid      int32
	filename string
}

// Session is the state accumulated while reading one perf.data file. The event attributes are fixed once the
// attrs section has been parsed; the remaining fields are filled in as feature sections are decoded.
type Session struct {
	ID    int64
	Attrs []*EventAttr

	byID map[uint64]*EventAttr
	// Offset of the event ID from the start of sample records and from the end of other records, when the file
	// has more than one event.
	sampleIDOffset container.Option[int]
	recordIDOffset container.Option[int]

	Cmdline         []string
	Machine         Machine
	Groups          []feature.GroupDesc
	ClockResolution container.Option[uint64]
	ClockData       container.Option[feature.ClockData]
	Compression     container.Option[feature.Compression]
	// Meta holds simpleperf's meta_info key/value pairs.
	Meta map[string]string

	eventNames     map[uint64]string
	eventTypeNames map[eventTypeKey]string
	buildIDs       map[buildIDKey]BuildID
}

type SessionBuilder struct {
	id    int64
	attrs []*EventAttr
	ids   [][]uint64
}

func NewSessionBuilder(id int64) *SessionBuilder {
	return &SessionBuilder{id: id}
}

func (b *SessionBuilder) AddAttrAndIds(attr *EventAttr, ids []uint64) {
	attr.Index = len(b.attrs)
	attr.IDs = ids
	b.attrs = append(b.attrs, attr)
}

// Build validates that records can be routed to their events and returns the session.
func (b *SessionBuilder) Build() (*Session, error) {
	s := &Session{
		ID:             b.id,
		Attrs:          b.attrs,
		byID:           make(map[uint64]*EventAttr),
		eventNames:     make(map[uint64]string),
		eventTypeNames: make(map[eventTypeKey]string),
		buildIDs:       make(map[buildIDKey]BuildID),
	}
	for _, attr := range b.attrs {
		for _, id := range attr.IDs {
			s.byID[id] = attr
		}
	}
	if len(b.attrs) < 2 {
		return s, nil
	}

	// With several events, samples of different events may have different layouts, so we have to find the event
	// ID before we can decode anything else. This only works if the ID is at the same offset for every event.
	off, ok := sharedOffset(b.attrs, (*EventAttr).IDOffsetFromStart)
	if !ok {
		return nil, fmt.Errorf("couldn't locate event ID in samples: %w", ErrAmbiguousIDs)
	}
	s.sampleIDOffset = container.Some(off)
	// Other records only carry an ID if sample_id_all is set. Without one, we attribute them to the first
	// event, which is good enough for reading their timestamps.
	if off, ok := sharedOffset(b.attrs, (*EventAttr).IDOffsetFromEnd); ok {
		s.recordIDOffset = container.Some(off)
	}
	return s, nil
}

func sharedOffset(attrs []*EventAttr, fn func(*EventAttr) container.Option[int]) (int, bool) {
	first, ok := fn(attrs[0]).Get()
	if !ok {
		return 0, false
	}
	for _, attr := range attrs[1:] {
		if off, ok := fn(attr).Get(); !ok || off != first {
			return 0, false
		}
	}
	return first, true
}

// FindAttrForRecord returns the event that a record belongs to.
func (s *Session) FindAttrForRecord(hdr RecordHeader, payload []byte) (*EventAttr, error) {
	switch {
	case len(s.Attrs) == 0:
		return nil, ErrNoAttrs
	case len(s.Attrs) == 1:
		return s.Attrs[0], nil
	case hdr.Type == PERF_RECORD_SAMPLE:
		off := s.sampleIDOffset.MustGet()
		if off+8 > len(payload) {
			return nil, fmt.Errorf("sample of %d bytes too short for event ID at offset %d", len(payload), off)
		}
		return s.FindAttrForEventID(binary.LittleEndian.Uint64(payload[off:]))
	case hdr.Type >= PERF_RECORD_USER_TYPE_START:
		return s.Attrs[0], nil
	}

	off, ok := s.recordIDOffset.Get()
	if !ok {
		return s.Attrs[0], nil
	}
	if off > len(payload) {
		return nil, fmt.Errorf("%s record of %d bytes too short for event ID at offset %d from end", hdr.Type, len(payload), off)
	}
	return s.FindAttrForEventID(binary.LittleEndian.Uint64(payload[len(payload)-off:]))
}

func (s *Session) FindAttrForEventID(id uint64) (*EventAttr, error) {
	if attr, ok := s.byID[id]; ok {
		return attr, nil
	}
	// Files with a single event frequently don't record its IDs at all.
	if len(s.Attrs) == 1 && len(s.Attrs[0].IDs) == 0 {
		return s.Attrs[0], nil
	}
	return nil, fmt.Errorf("%w %d", ErrUnknownEventID, id)
}

func (s *Session) SetEventName(id uint64, name string) { s.eventNames[id] = name }

func (s *Session) SetEventTypeName(typ EventType, config uint64, name string) {
	s.eventTypeNames[eventTypeKey{typ, config}] = name
}

// EventName returns the human-readable name of an event. Names from event_desc take precedence over names from
// simpleperf's event type table, which take precedence over names derived from the type and config.
func (s *Session) EventName(attr *EventAttr) string {
	for _, id := range attr.IDs {
		if name, ok := s.eventNames[id]; ok {
			return name
		}
	}
	if name, ok := s.eventTypeNames[eventTypeKey{attr.Type, attr.Config}]; ok {
		return name
	}
	return attr.defaultName()
}

func (s *Session) AddBuildID(pid int32, filename string, id BuildID) {
	s.buildIDs[buildIDKey{pid, filename}] = id
}

// LookupBuildID returns the build ID recorded for a file mapped by a process. perf records the build IDs of the
// kernel and of files shared by all processes with a PID of -1.
func (s *Session) LookupBuildID(pid int32, filename string) (BuildID, bool) {
	if id, ok := s.buildIDs[buildIDKey{pid, filename}]; ok {
		return id, true
	}
	id, ok := s.buildIDs[buildIDKey{-1, filename}]
	return id, ok
}

func (s *Session) NumBuildIDs() int { return len(s.buildIDs) }
