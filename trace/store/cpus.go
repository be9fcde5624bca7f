package store

import (
	"errors"
	"fmt"

	"honnef.co/go/perfdata/container"
	"honnef.co/go/perfdata/mem"
)

// MaxCPUs is the default number of CPUs the importer supports.
const MaxCPUs = 4096

var ErrCPUOutOfRange = errors.New("CPU number out of range")

// CPUs implements record.CPUTracker.
type CPUs struct {
	max  uint32
	seen container.Set[uint32]
	// Number of samples per CPU.
	samples []int
}

// NewCPUs returns a tracker rejecting CPU numbers >= limit. A limit of 0 means MaxCPUs.
func NewCPUs(limit uint32) *CPUs {
	if limit == 0 {
		limit = MaxCPUs
	}
	return &CPUs{max: limit, seen: make(container.Set[uint32])}
}

func (cs *CPUs) AddCPU(cpu uint32) error {
	if cpu >= cs.max {
		return fmt.Errorf("%w: %d >= %d", ErrCPUOutOfRange, cpu, cs.max)
	}
	cs.seen.Add(cpu)
	cs.samples = mem.EnsureLen(cs.samples, int(cpu)+1)
	cs.samples[cpu]++
	return nil
}

func (cs *CPUs) Has(cpu uint32) bool { return cs.seen.Has(cpu) }

func (cs *CPUs) Len() int { return len(cs.seen) }

// Samples returns how often cpu was registered.
func (cs *CPUs) Samples(cpu uint32) int {
	if int(cpu) >= len(cs.samples) {
		return 0
	}
	return cs.samples[cpu]
}
