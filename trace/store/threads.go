package store

import (
	"honnef.co/go/perfdata/trace/perf/record"
)

type Thread struct {
	TID      uint32
	UPID     record.UniquePID
	Name     StringID
	NamePrio record.NamePriority
}

type Process struct {
	PID uint32
}

// Threads implements record.ProcessTracker. A thread or process ID that is reused by a different process
// after the original exited gets a new unique ID.
type Threads struct {
	strings   *Strings
	threads   []Thread
	processes []Process
	// The current unique IDs of thread and process IDs.
	byTID map[uint32]record.UniqueTID
	byPID map[uint32]record.UniquePID
}

func NewThreads(strings *Strings) *Threads {
	return &Threads{
		strings: strings,
		byTID:   make(map[uint32]record.UniqueTID),
		byPID:   make(map[uint32]record.UniquePID),
	}
}

func (ts *Threads) process(pid uint32) record.UniquePID {
	if upid, ok := ts.byPID[pid]; ok {
		return upid
	}
	upid := record.UniquePID(len(ts.processes))
	ts.processes = append(ts.processes, Process{PID: pid})
	ts.byPID[pid] = upid
	return upid
}

func (ts *Threads) UpdateThread(tid, pid uint32) (record.UniqueTID, record.UniquePID) {
	upid := ts.process(pid)
	if utid, ok := ts.byTID[tid]; ok && ts.threads[utid].UPID == upid {
		return utid, upid
	}
	utid := record.UniqueTID(len(ts.threads))
	ts.threads = append(ts.threads, Thread{TID: tid, UPID: upid})
	ts.byTID[tid] = utid
	return utid, upid
}

func (ts *Threads) UpdateThreadName(tid uint32, name string, prio record.NamePriority) {
	utid, ok := ts.byTID[tid]
	if !ok {
		// perf never names a thread it hasn't seen, but be lenient and treat the thread as its own process.
		utid, _ = ts.UpdateThread(tid, tid)
	}
	t := &ts.threads[utid]
	if prio < t.NamePrio {
		return
	}
	t.Name = ts.strings.Intern(name)
	t.NamePrio = prio
}

func (ts *Threads) Thread(utid record.UniqueTID) Thread { return ts.threads[utid] }

func (ts *Threads) Process(upid record.UniquePID) Process { return ts.processes[upid] }

func (ts *Threads) NumThreads() int   { return len(ts.threads) }
func (ts *Threads) NumProcesses() int { return len(ts.processes) }

// Lookup returns the current unique ID of a thread ID.
func (ts *Threads) Lookup(tid uint32) (record.UniqueTID, bool) {
	utid, ok := ts.byTID[tid]
	return utid, ok
}

func (ts *Threads) Name(utid record.UniqueTID) string {
	return ts.strings.Get(ts.threads[utid].Name)
}
