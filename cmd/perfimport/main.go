// Command perfimport imports perf.data files and prints a summary of their contents.
//
// Usage:
//
//	perfimport [flags] <perf.data | archive>...
//
// Settings are read from PERFIMPORT_* environment variables first and can be overridden with flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/golang/glog"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/exp/slices"
	"honnef.co/go/perfdata/trace/importer"
	"honnef.co/go/perfdata/trace/perf"
	"honnef.co/go/perfdata/trace/store"
)

func main() {
	var cfg importer.Config
	if err := envconfig.Process("PERFIMPORT", &cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	var maxCPUs uint
	var verbose, auxStats bool
	flag.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "number of bytes to tokenize at once")
	flag.Var(&cfg.AuxCodec, "aux-codec", "codec for retained aux data (none, snappy, s2, lz4, zstd)")
	flag.UintVar(&maxCPUs, "max-cpus", uint(cfg.MaxCPUs), "skip samples from CPUs numbered at or above this")
	flag.IntVar(&cfg.Concurrency, "j", cfg.Concurrency, "number of archive entries to import in parallel")
	flag.BoolVar(&verbose, "sessions", false, "print per-file session information")
	flag.BoolVar(&auxStats, "aux", false, "read back retained aux data and print its size per record type")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <perf.data | archive>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	defer glog.Flush()
	cfg.MaxCPUs = uint32(maxCPUs)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	imp, err := importer.New(cfg)
	if err != nil {
		glog.Exitf("invalid configuration: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	for _, path := range flag.Args() {
		if err := imp.ImportFile(ctx, path); err != nil {
			glog.Exitf("couldn't import %s: %s", path, err)
		}
	}
	if err := imp.Finish(); err != nil {
		glog.Warningf("%s", err)
	}

	fmt.Print(imp.Store().Summary())
	if verbose {
		for _, s := range imp.Sessions() {
			printSession(s)
		}
	}
	if auxStats {
		if err := printAux(imp.Store().Aux); err != nil {
			glog.Exitf("couldn't read aux data: %s", err)
		}
	}
}

func printAux(aux *store.Aux) error {
	type usage struct {
		records int
		bytes   int
	}
	byType := map[perf.RecordType]*usage{}
	var types []perf.RecordType
	for i := range aux.Len() {
		data, err := aux.Payload(i)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		typ := aux.Blob(i).Type
		u, ok := byType[typ]
		if !ok {
			u = &usage{}
			byType[typ] = u
			types = append(types, typ)
		}
		u.records++
		u.bytes += len(data)
	}
	slices.Sort(types)
	for _, typ := range types {
		fmt.Printf("%s: %d records, %d bytes\n", typ, byType[typ].records, byType[typ].bytes)
	}
	return nil
}

func printSession(s *perf.Session) {
	fmt.Printf("session %d:\n", s.ID)
	if len(s.Cmdline) > 0 {
		fmt.Printf("\tcmdline: %s\n", strings.Join(s.Cmdline, " "))
	}
	if s.Machine.Hostname != "" {
		fmt.Printf("\thost: %s (%s, %s)\n", s.Machine.Hostname, s.Machine.Release, s.Machine.Architecture)
	}
	for _, attr := range s.Attrs {
		fmt.Printf("\tevent %q: %d ids\n", s.EventName(attr), len(attr.IDs))
	}
	fmt.Printf("\tbuild ids: %d\n", s.NumBuildIDs())
}
