package store

import (
	"errors"
	"fmt"

	"golang.org/x/exp/slices"
	"honnef.co/go/perfdata/mysync"
	"honnef.co/go/perfdata/trace/perf"
)

var ErrNoSnapshot = errors.New("no clock snapshot relates the clocks")

// Snapshot holds the readings of several clocks taken at the same instant.
type Snapshot map[perf.ClockID]int64

type clockState struct {
	traceClock perf.ClockID
	snapshots  []Snapshot
}

// Clock implements perf.ClockTranslator using snapshots. Timestamps of the trace clock are returned unchanged.
// Timestamps of other clocks are converted using the latest snapshot taken at or before them, or the earliest
// snapshot if they precede all snapshots.
type Clock struct {
	mu *mysync.Mutex[*clockState]
}

func NewClock() *Clock {
	return &Clock{mu: mysync.NewMutex(&clockState{traceClock: perf.ClockMonotonic})}
}

func (c *Clock) SetTraceTimeClock(id perf.ClockID) {
	c.mu.Do(func(st *clockState) { st.traceClock = id })
}

func (c *Clock) TraceTimeClock() perf.ClockID {
	var id perf.ClockID
	c.mu.RDo(func(st *clockState) { id = st.traceClock })
	return id
}

func (c *Clock) AddSnapshot(snap Snapshot) {
	c.mu.Do(func(st *clockState) {
		st.snapshots = append(st.snapshots, snap)
	})
}

func (c *Clock) ToTraceTime(id perf.ClockID, ts int64) (int64, error) {
	st, unlock := c.mu.RLock()
	defer unlock.RUnlock()
	if id == st.traceClock {
		return ts, nil
	}

	var usable []Snapshot
	for _, snap := range st.snapshots {
		_, ok1 := snap[id]
		_, ok2 := snap[st.traceClock]
		if ok1 && ok2 {
			usable = append(usable, snap)
		}
	}
	if len(usable) == 0 {
		return 0, fmt.Errorf("%w %s and %s", ErrNoSnapshot, id, st.traceClock)
	}
	slices.SortFunc(usable, func(a, b Snapshot) int {
		return cmpInt64(a[id], b[id])
	})
	i, found := slices.BinarySearchFunc(usable, ts, func(snap Snapshot, ts int64) int {
		return cmpInt64(snap[id], ts)
	})
	if !found && i > 0 {
		i--
	}
	snap := usable[i]
	return ts - snap[id] + snap[st.traceClock], nil
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
