package store

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"honnef.co/go/perfdata/compress"
	"honnef.co/go/perfdata/mysync"
	"honnef.co/go/perfdata/tinylfu"
	"honnef.co/go/perfdata/trace/perf"
)

// Number of decompressed payloads kept around for repeated reads.
const auxCacheSize = 64

// AuxBlob is a retained aux record. The payload is stored compressed.
type AuxBlob struct {
	Type    perf.RecordType
	Session int64
	Size    int
	data    []byte
}

type auxState struct {
	blobs []AuxBlob
	err   error
}

// Aux implements perf.AuxSink by retaining the payloads of aux records, compressed with a configurable codec.
// It is safe for concurrent use.
type Aux struct {
	codec compress.Codec
	mu    *mysync.Mutex[*auxState]
	cache *mysync.Mutex[*tinylfu.T[int, []byte]]
}

func NewAux(codec compress.Codec) *Aux {
	if codec == nil {
		codec = compress.NoOp{}
	}
	return &Aux{
		codec: codec,
		mu:    mysync.NewMutex(&auxState{}),
		cache: mysync.NewMutex(tinylfu.New[int, []byte](auxCacheSize, auxCacheSize*10, hashIndex)),
	}
}

func hashIndex(i int) uint64 {
	return xxhash.Sum64(binary.LittleEndian.AppendUint64(nil, uint64(i)))
}

func (a *Aux) PushAux(r perf.Record) {
	data, err := a.codec.Compress(r.Payload)
	var session int64
	if r.Session != nil {
		session = r.Session.ID
	}
	a.mu.Do(func(st *auxState) {
		if err != nil {
			if st.err == nil {
				st.err = fmt.Errorf("couldn't compress %s record: %w", r.Header.Type, err)
			}
			return
		}
		st.blobs = append(st.blobs, AuxBlob{
			Type:    r.Header.Type,
			Session: session,
			Size:    len(r.Payload),
			data:    data,
		})
	})
}

// Err returns the first error encountered while retaining a record.
func (a *Aux) Err() error {
	var err error
	a.mu.RDo(func(st *auxState) { err = st.err })
	return err
}

func (a *Aux) Len() int {
	var n int
	a.mu.RDo(func(st *auxState) { n = len(st.blobs) })
	return n
}

func (a *Aux) Blob(i int) AuxBlob {
	var b AuxBlob
	a.mu.RDo(func(st *auxState) { b = st.blobs[i] })
	return b
}

// Payload returns the decompressed payload of the i-th retained record. Recently used payloads are cached, so
// the returned slice must not be modified.
func (a *Aux) Payload(i int) ([]byte, error) {
	c, unlock := a.cache.Lock()
	defer unlock.Unlock()
	if data, ok := c.Get(i); ok {
		return data, nil
	}
	data, err := a.codec.Decompress(a.Blob(i).data)
	if err != nil {
		return nil, err
	}
	c.Add(i, data)
	return data, nil
}

// CompressedSize returns the total size of all retained payloads after compression.
func (a *Aux) CompressedSize() int {
	var n int
	a.mu.RDo(func(st *auxState) {
		for _, b := range st.blobs {
			n += len(b.data)
		}
	})
	return n
}
