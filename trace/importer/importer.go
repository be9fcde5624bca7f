// Package importer drives perf.data files through the tokenizer and parser and into a store.
//
// An Importer accepts any number of inputs. Every perf.data file gets its own tokenizer, but all of them push
// into the same sorter, so that records of different files are ordered relative to each other. Records are only
// applied to the store's trackers by Finish, once every input has been tokenized.
package importer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"golang.org/x/exp/slices"
	"honnef.co/go/perfdata/compress"
	"honnef.co/go/perfdata/mysync"
	"honnef.co/go/perfdata/trace/detect"
	"honnef.co/go/perfdata/trace/perf"
	"honnef.co/go/perfdata/trace/perf/record"
	"honnef.co/go/perfdata/trace/store"
)

var (
	ErrUnsupported = errors.New("unsupported trace type")
	ErrEmpty       = errors.New("empty input")
	ErrFinished    = errors.New("import already finished")
	ErrTooDeep     = errors.New("archives nested too deeply")
)

// maxDepth limits how many archives may be nested inside each other.
const maxDepth = 4

// Config configures an Importer. The struct tags allow filling it with envconfig.
type Config struct {
	// Number of bytes handed to the tokenizer at once.
	ChunkSize int `split_words:"true" default:"1048576"`
	// Codec used for retaining aux payloads.
	AuxCodec compress.Type `split_words:"true" default:"snappy"`
	// CPU numbers at or above MaxCPUs cause samples to be skipped.
	MaxCPUs uint32 `envconfig:"max_cpus" default:"4096"`
	// Maximum number of archive entries tokenized in parallel.
	Concurrency int `default:"4"`
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:   1 << 20,
		AuxCodec:    compress.Snappy,
		MaxCPUs:     store.MaxCPUs,
		Concurrency: 4,
	}
}

type Importer struct {
	cfg   Config
	store *store.Store

	nextSession atomic.Int64
	sessions    *mysync.Mutex[*[]*perf.Session]
	finished    atomic.Bool
}

func New(cfg Config) (*Importer, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", cfg.ChunkSize)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	codec, err := compress.Get(cfg.AuxCodec)
	if err != nil {
		return nil, err
	}
	st := store.New(codec)
	st.CPUs = store.NewCPUs(cfg.MaxCPUs)
	return &Importer{
		cfg:      cfg,
		store:    st,
		sessions: mysync.NewMutex(new([]*perf.Session)),
	}, nil
}

func (imp *Importer) Store() *store.Store { return imp.store }

// Sessions returns the sessions of all perf.data files imported so far, ordered by session ID.
func (imp *Importer) Sessions() []*perf.Session {
	ss, unlock := imp.sessions.RLock()
	defer unlock.RUnlock()
	out := slices.Clone(*ss)
	slices.SortFunc(out, func(a, b *perf.Session) int {
		return int(a.ID - b.ID)
	})
	return out
}

// ImportFile imports the file at path.
func (imp *Importer) ImportFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return imp.Import(ctx, f, path)
}

// Import reads a perf.data file, or a gzip or zip archive containing perf.data files, from r. name is used in
// errors and log messages. Import may be called concurrently.
func (imp *Importer) Import(ctx context.Context, r io.Reader, name string) error {
	if imp.finished.Load() {
		return ErrFinished
	}
	return imp.route(ctx, r, name, 0)
}

func (imp *Importer) route(ctx context.Context, r io.Reader, name string, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%s: %w", name, ErrTooDeep)
	}
	br := bufio.NewReaderSize(r, max(imp.cfg.ChunkSize, detect.Lookahead))
	head, err := br.Peek(detect.Lookahead)
	if err != nil && err != io.EOF {
		return fmt.Errorf("%s: %w", name, err)
	}
	if len(head) == 0 {
		return fmt.Errorf("%s: %w", name, ErrEmpty)
	}

	typ := detect.Guess(head)
	glog.V(1).Infof("%s: detected %s", name, typ)
	switch typ {
	case detect.PerfData:
		return imp.tokenize(ctx, br, name)
	case detect.Gzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		defer zr.Close()
		return imp.route(ctx, zr, name, depth+1)
	case detect.Zip:
		return imp.importZip(ctx, br, name, depth+1)
	default:
		return fmt.Errorf("%s: %w: %s", name, ErrUnsupported, typ)
	}
}

func (imp *Importer) importZip(ctx context.Context, r io.Reader, name string, depth int) error {
	// The central directory is at the end of the archive, so it has to be read completely.
	b, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	sem := make(chan struct{}, imp.cfg.Concurrency)
	errs := make([]error, len(zr.File))
	var wg sync.WaitGroup
	for i, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}

			entry := name + "/" + zf.Name
			rc, err := zf.Open()
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", entry, err)
				return
			}
			defer rc.Close()
			err = imp.route(ctx, rc, entry, depth)
			if errors.Is(err, ErrUnsupported) || errors.Is(err, ErrEmpty) {
				// Archives routinely contain files next to the traces.
				glog.Warningf("skipping %s: %s", entry, err)
				return
			}
			errs[i] = err
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// tokenize runs one perf.data file through its own tokenizer, pushing its records into the shared sorter.
func (imp *Importer) tokenize(ctx context.Context, r io.Reader, name string) error {
	id := imp.nextSession.Add(1) - 1
	st := imp.store
	tok := perf.NewTokenizer(perf.TokenizerConfig{
		Sorter:    st.Sorter,
		Clock:     st.Clock,
		Stats:     st.Stats,
		Aux:       st.Aux,
		Files:     st.Files,
		SessionID: id,
	})

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		// The tokenizer retains its input, so every chunk needs its own memory.
		chunk := make([]byte, imp.cfg.ChunkSize)
		n, err := io.ReadFull(r, chunk)
		if n > 0 {
			total += int64(n)
			if err := tok.Parse(chunk[:n]); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		} else if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if err := tok.NotifyEndOfFile(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	sess := tok.Session()
	if cd, ok := sess.ClockData.Get(); ok {
		st.Clock.AddSnapshot(store.Snapshot{
			perf.ClockRealtime:       int64(cd.WallClockNs),
			perf.ClockID(cd.ClockID): int64(cd.ClockTimeNs),
		})
	}
	imp.sessions.Do(func(ss *[]*perf.Session) { *ss = append(*ss, sess) })
	glog.V(1).Infof("%s: session %d, %d bytes, %d attrs, %d build ids", name, id, total, len(sess.Attrs), sess.NumBuildIDs())
	return nil
}

// Finish applies all tokenized records to the store in timestamp order. No more inputs can be imported
// afterwards.
func (imp *Importer) Finish() error {
	if !imp.finished.CompareAndSwap(false, true) {
		return ErrFinished
	}
	n := imp.store.Sorter.Len()
	p := record.NewParser(imp.store.ParserConfig())
	imp.store.Sorter.Flush(p.Parse)
	glog.V(1).Infof("parsed %d records", n)
	if err := imp.store.Aux.Err(); err != nil {
		return fmt.Errorf("retaining aux data: %w", err)
	}
	return nil
}
