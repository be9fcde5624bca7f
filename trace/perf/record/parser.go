// Package record decodes the payloads of framed perf records and applies them to the trace's trackers.
package record

import (
	"errors"
	"fmt"

	"github.com/golang/glog"
	"honnef.co/go/perfdata/container"
	"honnef.co/go/perfdata/trace/perf"
)

// Config holds the trackers a Parser updates. All fields are required.
type Config struct {
	Mappings  MappingTracker
	Stacks    StackTracker
	Processes ProcessTracker
	Counters  CounterTracker
	Samples   SampleTable
	CPUs      CPUTracker
	Stats     perf.Stats
}

// Parser decodes records in timestamp order, as they leave the sorter.
type Parser struct {
	cfg Config
}

func NewParser(cfg Config) *Parser {
	return &Parser{cfg: cfg}
}

// Parse decodes a record. Records that can't be decoded are counted and dropped.
func (p *Parser) Parse(ts int64, r perf.Record) {
	if err := p.parse(ts, r); err != nil {
		glog.V(2).Infof("perf: dropping %s at %d: %v", &r, ts, err)
		if r.Header.Type == perf.PERF_RECORD_SAMPLE {
			p.cfg.Stats.Increment(perf.StatSamplesSkipped)
		} else {
			p.cfg.Stats.Increment(perf.StatRecordSkipped)
		}
	}
}

func (p *Parser) parse(ts int64, r perf.Record) error {
	switch r.Header.Type {
	case perf.PERF_RECORD_COMM:
		return p.parseComm(r)
	case perf.PERF_RECORD_SAMPLE:
		return p.parseSample(ts, r)
	case perf.PERF_RECORD_MMAP:
		m, err := DecodeMmap(r)
		if err != nil {
			return err
		}
		buildID := container.None[perf.BuildID]()
		if id, ok := r.Session.LookupBuildID(int32(m.PID), m.Filename); ok {
			buildID = container.Some(id)
		}
		p.createMapping(r.CPUMode(), &m, buildID)
		return nil
	case perf.PERF_RECORD_MMAP2:
		m, err := DecodeMmap2(r)
		if err != nil {
			return err
		}
		buildID := m.BuildID
		if !buildID.Set() {
			if id, ok := r.Session.LookupBuildID(int32(m.PID), m.Filename); ok {
				buildID = container.Some(id)
			}
		}
		p.createMapping(r.CPUMode(), &m, buildID)
		return nil
	case perf.PERF_RECORD_AUX, perf.PERF_RECORD_AUXTRACE, perf.PERF_RECORD_AUXTRACE_INFO:
		panic(fmt.Sprintf("%s records must be diverted by the tokenizer", r.Header.Type))
	default:
		p.cfg.Stats.IncrementIndexed(perf.StatUnknownRecordType, int(r.Header.Type))
		return fmt.Errorf("unknown record type %s", r.Header.Type)
	}
}

func (p *Parser) parseComm(r perf.Record) error {
	c, err := DecodeComm(r)
	if err != nil {
		return err
	}
	p.cfg.Processes.UpdateThread(c.TID, c.PID)
	p.cfg.Processes.UpdateThreadName(c.TID, c.Name, NamePriorityFtrace)
	return nil
}

func (p *Parser) createMapping(mode perf.CPUMode, m *Mmap, buildID container.Option[perf.BuildID]) {
	if mode.InKernel() {
		p.cfg.Mappings.CreateKernelMapping(m.params(buildID))
		return
	}
	_, upid := p.cfg.Processes.UpdateThread(m.TID, m.PID)
	p.cfg.Mappings.CreateUserMapping(upid, m.params(buildID))
}

func (p *Parser) parseSample(ts int64, r perf.Record) error {
	s, err := DecodeSample(ts, r)
	if err != nil {
		return err
	}
	if !s.Period.Set() {
		s.Period = s.Attr.SamplePeriod()
	}

	// The tokenizer already converted the time, but samples without one were placed at a guessed timestamp,
	// which isn't good enough for samples.
	if !s.Time.Set() {
		return errors.New("sample has no PERF_SAMPLE_TIME field")
	}
	pt, ok := s.PIDTID.Get()
	if !ok {
		return errors.New("sample has no PERF_SAMPLE_TID field")
	}
	cpu, ok := s.CPU.Get()
	if !ok {
		return errors.New("sample has no PERF_SAMPLE_CPU field")
	}
	if err := p.cfg.CPUs.AddCPU(cpu); err != nil {
		return err
	}

	utid, upid := p.cfg.Processes.UpdateThread(pt.TID, pt.PID)
	if len(s.Callchain) == 0 {
		if ip, ok := s.IP.Get(); ok {
			s.Callchain = []Frame{{Mode: s.Mode, IP: ip}}
		}
	}
	callsite := p.internCallchain(upid, s.Callchain)

	p.cfg.Samples.InsertSample(SampleRow{
		TS:       s.TS,
		UTID:     utid,
		CPU:      cpu,
		CPUMode:  s.Mode.String(),
		Callsite: callsite,
		Session:  s.Session.ID,
	})
	return p.updateCounters(&s, cpu)
}

// internCallchain interns the frames of a call chain from the outermost to the innermost and returns the call
// site of the innermost frame.
func (p *Parser) internCallchain(upid UniquePID, chain []Frame) container.Option[CallsiteID] {
	var parent container.Option[CallsiteID]
	depth := uint32(0)
	for i := len(chain) - 1; i >= 0; i-- {
		fr := chain[i]
		var m *Mapping
		if fr.Mode.InKernel() {
			m = p.cfg.Mappings.FindKernelMapping(fr.IP)
		} else {
			m = p.cfg.Mappings.FindUserMapping(upid, fr.IP)
		}
		if m == nil {
			// Anonymous executable mappings, as used by JITs, have no mapping records.
			p.cfg.Stats.Increment(perf.StatDummyMappingUsed)
			m = p.cfg.Mappings.DummyMapping()
		}
		frame := p.cfg.Stacks.InternFrame(m, m.RelativePC(fr.IP))
		parent = container.Some(p.cfg.Stacks.InternCallsite(parent, frame, depth))
		depth++
	}
	return parent
}

func (p *Parser) updateCounters(s *Sample, cpu uint32) error {
	if len(s.ReadGroups) > 0 {
		for _, v := range s.ReadGroups {
			attr := s.Attr
			if id, ok := v.EventID.Get(); ok {
				var err error
				if attr, err = s.Session.FindAttrForEventID(id); err != nil {
					return err
				}
			} else if len(s.ReadGroups) > 1 {
				return errors.New("read group without PERF_FORMAT_ID")
			}
			if err := p.counter(s.Session, attr, cpu).AddCount(s.TS, float64(v.Value)); err != nil {
				return err
			}
		}
		return nil
	}

	period, ok := s.Period.Get()
	if !ok {
		return errors.New("sample has no period")
	}
	p.counter(s.Session, s.Attr, cpu).AddDelta(s.TS, float64(period))
	return nil
}

func (p *Parser) counter(session *perf.Session, attr *perf.EventAttr, cpu uint32) Counter {
	key := CounterKey{Session: session.ID, Event: attr.Index, CPU: cpu}
	return p.cfg.Counters.Counter(key, session.EventName(attr))
}
