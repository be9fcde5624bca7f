package store

import (
	"golang.org/x/exp/slices"
	"honnef.co/go/perfdata/mysync"
	"honnef.co/go/perfdata/trace/perf/feature"
)

// Files implements perf.FileFeatureSink. A later file with the same path replaces an earlier one.
type Files struct {
	mu *mysync.Mutex[map[string]feature.SimpleperfFile]
}

func NewFiles() *Files {
	return &Files{mu: mysync.NewMutex(make(map[string]feature.SimpleperfFile))}
}

func (fs *Files) AddSimpleperfFile(f feature.SimpleperfFile) {
	fs.mu.Do(func(m map[string]feature.SimpleperfFile) { m[f.Path] = f })
}

func (fs *Files) Lookup(path string) (feature.SimpleperfFile, bool) {
	var (
		f  feature.SimpleperfFile
		ok bool
	)
	fs.mu.RDo(func(m map[string]feature.SimpleperfFile) { f, ok = m[path] })
	return f, ok
}

// Paths returns the paths of all files, sorted.
func (fs *Files) Paths() []string {
	var out []string
	fs.mu.RDo(func(m map[string]feature.SimpleperfFile) {
		for p := range m {
			out = append(out, p)
		}
	})
	slices.Sort(out)
	return out
}

func (fs *Files) Len() int {
	var n int
	fs.mu.RDo(func(m map[string]feature.SimpleperfFile) { n = len(m) })
	return n
}
