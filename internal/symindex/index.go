// Package symindex answers "which library defines this symbol" across a
// fixed set of static archives loaded from one directory.
package symindex

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"bofpass/internal/archive"
	"bofpass/internal/diag"
	"bofpass/internal/trace"
)

// DefaultLibPath is the search directory used when none is configured.
const DefaultLibPath = "c:/msys64/clang64/lib"

// DefaultLibraries lists the system-provider libraries loaded by default.
var DefaultLibraries = []string{
	"advapi32",
	"cabinet",
	"crypt32",
	"gdi32",
	"gdiplus",
	"kernel32",
	"msvcrt",
	"msvcp60",
	"mswsock",
	"ntdll",
	"ole32",
	"oleaut32",
	"rpcrt4",
	"secur32",
	"shell32",
	"shlwapi",
	"user32",
	"winhttp",
	"wininet",
	"ws2_32",
}

// Config describes where archives live and which ones to load.
type Config struct {
	Dir       string
	Libraries []string // nil means DefaultLibraries
	Jobs      int      // parallel loads; <= 0 means GOMAXPROCS
	NoMmap    bool
	Reporter  diag.Reporter
}

// Failure records a library that could not be loaded.
type Failure struct {
	Library string
	Err     error
}

// Index owns the loaded archives. Construct it once and share it; lookups
// are safe for concurrent use once Init has returned.
type Index struct {
	cfg Config

	initMu      sync.Mutex
	initialized atomic.Bool

	mu       sync.RWMutex
	archives map[string]*archive.Archive
	names    []string // sorted keys of archives
	failures map[string]error
}

// New creates an index. Nothing is loaded until Init, Load or the first
// lookup.
func New(cfg Config) *Index {
	if cfg.Dir == "" {
		cfg.Dir = DefaultLibPath
	}
	if cfg.Libraries == nil {
		cfg.Libraries = DefaultLibraries
	}
	if cfg.Reporter == nil {
		cfg.Reporter = diag.NopReporter{}
	}
	return &Index{
		cfg:      cfg,
		archives: make(map[string]*archive.Archive),
		failures: make(map[string]error),
	}
}

// Dir returns the search directory.
func (x *Index) Dir() string { return x.cfg.Dir }

// Initialized reports whether Init has completed.
func (x *Index) Initialized() bool { return x.initialized.Load() }

type loadResult struct {
	name string
	arc  *archive.Archive
	err  error
}

// Init loads every configured library once. Calling it again is a no-op.
// A library that fails to load is reported and left out; the only error
// returned is ctx's, in which case the index stays uninitialized.
func (x *Index) Init(ctx context.Context) error {
	if x.initialized.Load() {
		return nil
	}
	x.initMu.Lock()
	defer x.initMu.Unlock()
	if x.initialized.Load() {
		return nil
	}

	ctx, span := trace.Start(ctx, trace.ScopeStage, "index_init")
	defer span.End("")

	diag.ReportInfo(x.cfg.Reporter, diag.IndexInitialized, "", "static library path: "+x.cfg.Dir).Emit()

	pending := x.pending()
	results := make([]loadResult, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	jobs := x.cfg.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(jobs)
	for i, name := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, lspan := trace.Start(gctx, trace.ScopeUnit, "load "+name)
			arc, err := archive.Load(x.cfg.Dir, name, archive.Options{Reporter: x.cfg.Reporter, NoMmap: x.cfg.NoMmap})
			lspan.End(errString(err))
			results[i] = loadResult{name: name, arc: arc, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, r := range results {
			if r.arc != nil {
				_ = r.arc.Close()
			}
		}
		return err
	}

	// publish in library order so diagnostics come out deterministically
	for _, r := range results {
		x.publish(r.name, r.arc, r.err)
	}
	span.WithExtra("loaded", fmt.Sprint(len(x.Libraries())))
	x.initialized.Store(true)
	return nil
}

// pending returns the configured libraries not loaded yet, de-duplicated,
// in configuration order.
func (x *Index) pending() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	seen := make(map[string]struct{}, len(x.cfg.Libraries))
	out := make([]string, 0, len(x.cfg.Libraries))
	for _, name := range x.cfg.Libraries {
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if _, ok := x.archives[name]; ok {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (x *Index) publish(name string, arc *archive.Archive, err error) {
	if err != nil {
		x.mu.Lock()
		x.failures[name] = err
		x.mu.Unlock()
		x.reportFailure(name, err)
		return
	}
	x.mu.Lock()
	if _, ok := x.archives[name]; ok {
		x.mu.Unlock()
		_ = arc.Close()
		return
	}
	x.archives[name] = arc
	i := sort.SearchStrings(x.names, name)
	x.names = slices.Insert(x.names, i, name)
	delete(x.failures, name)
	x.mu.Unlock()

	if !arc.HasSymbolTable() {
		diag.ReportWarning(x.cfg.Reporter, diag.ArchiveNoSymtab, name,
			"archive "+arc.Path+" has no symbol table").Emit()
	}
	diag.ReportInfo(x.cfg.Reporter, diag.LibraryLoaded, name, "symbols loaded from "+arc.Path).
		WithNote(fmt.Sprintf("%s symbols, %s table, %s", humanize.Comma(int64(arc.Len())), arc.Kind, humanize.Bytes(uint64(arc.Size())))).
		Emit()
}

func (x *Index) reportFailure(name string, err error) {
	code := diag.ArchiveFormat
	if errors.Is(err, archive.ErrIO) {
		code = diag.ArchiveIO
	}
	diag.ReportWarning(x.cfg.Reporter, code, name, err.Error()).Emit()
}

// Load loads one library now, retrying a previous failure. It reports
// whether the library is available afterwards. Load does not mark the
// index initialized.
func (x *Index) Load(name string) bool {
	x.mu.RLock()
	_, ok := x.archives[name]
	x.mu.RUnlock()
	if ok {
		return true
	}
	arc, err := archive.Load(x.cfg.Dir, name, archive.Options{Reporter: x.cfg.Reporter, NoMmap: x.cfg.NoMmap})
	x.publish(name, arc, err)
	return err == nil
}

// ensure runs Init lazily for callers that skipped it.
func (x *Index) ensure() {
	if !x.initialized.Load() {
		_ = x.Init(context.Background())
	}
}

// FindOwner returns the first library, in lexicographic name order, whose
// archive defines sym. Load order never affects the answer.
func (x *Index) FindOwner(sym string) (string, bool) {
	x.ensure()
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, name := range x.names {
		if x.archives[name].Find(sym) {
			return name, true
		}
	}
	return "", false
}

// Owners returns every library defining sym, in lookup order. The first
// element, if any, is what FindOwner returns.
func (x *Index) Owners(sym string) []string {
	x.ensure()
	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []string
	for _, name := range x.names {
		if x.archives[name].Find(sym) {
			out = append(out, name)
		}
	}
	return out
}

// Archive returns a loaded archive by library name.
func (x *Index) Archive(name string) (*archive.Archive, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	a, ok := x.archives[name]
	return a, ok
}

// Libraries returns the loaded library names in lookup order.
func (x *Index) Libraries() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.names)
}

// Failures returns the libraries that failed to load, sorted by name.
func (x *Index) Failures() []Failure {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Failure, 0, len(x.failures))
	for name, err := range x.failures {
		out = append(out, Failure{Library: name, Err: err})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Library < out[j].Library })
	return out
}

// Close releases every archive. The index must not be used afterwards.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	var errs []error
	for _, name := range x.names {
		if err := x.archives[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	x.archives = make(map[string]*archive.Archive)
	x.names = nil
	return errors.Join(errs...)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
