package store

import (
	"errors"
	"fmt"

	"golang.org/x/exp/slices"
	"honnef.co/go/perfdata/trace/perf/record"
)

var ErrCounterDecreased = errors.New("counter value decreased")

type CounterPoint struct {
	TS    int64
	Value float64
}

// Counter is a cumulative counter. Every update appends a point holding the new total.
type Counter struct {
	Key    record.CounterKey
	Name   string
	Points []CounterPoint
	last   float64
}

func (c *Counter) AddDelta(ts int64, delta float64) {
	c.last += delta
	c.Points = append(c.Points, CounterPoint{TS: ts, Value: c.last})
}

func (c *Counter) AddCount(ts int64, count float64) error {
	if count < c.last {
		return fmt.Errorf("%s: %w from %g to %g", c.Name, ErrCounterDecreased, c.last, count)
	}
	c.last = count
	c.Points = append(c.Points, CounterPoint{TS: ts, Value: count})
	return nil
}

// Value returns the counter's current total.
func (c *Counter) Value() float64 { return c.last }

// Counters implements record.CounterTracker.
type Counters struct {
	byKey map[record.CounterKey]*Counter
}

func NewCounters() *Counters {
	return &Counters{byKey: make(map[record.CounterKey]*Counter)}
}

func (cs *Counters) Counter(key record.CounterKey, name string) record.Counter {
	return cs.get(key, name)
}

func (cs *Counters) get(key record.CounterKey, name string) *Counter {
	if c, ok := cs.byKey[key]; ok {
		return c
	}
	c := &Counter{Key: key, Name: name}
	cs.byKey[key] = c
	return c
}

// Lookup returns the counter for key, or nil.
func (cs *Counters) Lookup(key record.CounterKey) *Counter { return cs.byKey[key] }

func (cs *Counters) Len() int { return len(cs.byKey) }

// All returns all counters, ordered by session, event and CPU.
func (cs *Counters) All() []*Counter {
	out := make([]*Counter, 0, len(cs.byKey))
	for _, c := range cs.byKey {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *Counter) int {
		if c := cmpInt64(a.Key.Session, b.Key.Session); c != 0 {
			return c
		}
		if c := cmpInt64(int64(a.Key.Event), int64(b.Key.Event)); c != 0 {
			return c
		}
		return cmpInt64(int64(a.Key.CPU), int64(b.Key.CPU))
	})
	return out
}
