package rewrite

import (
	"context"
	"fmt"

	"bofpass/internal/ir"
	"bofpass/internal/trace"
)

// Index is a Resolver that must be initialized before the first lookup.
type Index interface {
	Resolver
	Init(ctx context.Context) error
}

// Stats counts call sites by outcome. Rewritten includes Builtins;
// Unresolved and Indirect are included in Skipped.
type Stats struct {
	Calls      int
	Rewritten  int
	Builtins   int
	Skipped    int
	Unresolved int
	Indirect   int
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Calls += o.Calls
	s.Rewritten += o.Rewritten
	s.Builtins += o.Builtins
	s.Skipped += o.Skipped
	s.Unresolved += o.Unresolved
	s.Indirect += o.Indirect
}

func (s *Stats) record(d Decision) {
	s.Calls++
	switch d.Action {
	case BuiltinMap:
		s.Rewritten++
		s.Builtins++
	case LibraryQualified:
		s.Rewritten++
	default:
		s.Skipped++
		switch d.Reason {
		case SkipUnresolved:
			s.Unresolved++
		case SkipIndirect:
			s.Indirect++
		}
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("calls=%d rewritten=%d builtins=%d skipped=%d unresolved=%d indirect=%d",
		s.Calls, s.Rewritten, s.Builtins, s.Skipped, s.Unresolved, s.Indirect)
}

// Driver walks functions and rewrites each call once.
type Driver struct {
	index Index
	rw    *Rewriter
}

// NewDriver binds a driver to an index. The index is shared and may be
// used by several drivers at once.
func NewDriver(idx Index, opts Options) *Driver {
	return &Driver{index: idx, rw: NewRewriter(idx, opts)}
}

// Rewriter exposes the underlying call-site rewriter.
func (d *Driver) Rewriter() *Rewriter { return d.rw }

// Process rewrites every call of fn, a function of m, in block order. It
// always completes; per-call problems only show up in Stats and
// diagnostics.
func (d *Driver) Process(ctx context.Context, m *ir.Module, fn *ir.Func) Stats {
	var st Stats
	if m == nil || fn == nil {
		return st
	}
	// an Init error only means ctx ended; lookups initialize lazily then
	_ = d.index.Init(ctx)

	_, span := trace.Start(ctx, trace.ScopeFunc, fn.Name)
	for _, site := range ir.CallSites(m, fn) {
		st.record(d.rw.Rewrite(m, site))
	}
	span.End(st.String())
	return st
}

// ProcessModule runs Process over every function defined in m.
func (d *Driver) ProcessModule(ctx context.Context, m *ir.Module) Stats {
	var total Stats
	if m == nil {
		return total
	}
	ctx, span := trace.Start(ctx, trace.ScopeUnit, m.Name)
	for _, fn := range m.Funcs {
		total.Add(d.Process(ctx, m, fn))
	}
	span.End(total.String())
	return total
}
