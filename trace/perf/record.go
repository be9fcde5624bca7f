package perf

import "fmt"

// Record is one framed entry of the data section.
type Record struct {
	Header RecordHeader
	// Payload is the record without its header. It may alias memory of the chunk it was read from and must not be
	// modified.
	Payload []byte
	// Attr is the event the record belongs to.
	Attr    *EventAttr
	Session *Session
}

func (r *Record) CPUMode() CPUMode { return r.Header.CPUMode() }

func (r *Record) String() string {
	return fmt.Sprintf("%s record of %d bytes", r.Header.Type, r.Header.Size)
}
