// Package rewrite repoints direct calls at library-qualified imports.
//
// For every call whose target can be attributed to a library, the call is
// moved to a new declaration named "<library>$<symbol>" that keeps the
// original signature and calling convention and is marked dllimport.
// Nothing else in the function changes.
package rewrite

import (
	"fmt"
	"strings"

	"bofpass/internal/diag"
	"bofpass/internal/ir"
	"bofpass/internal/mangle"
)

// CallSite is the narrow view of a call instruction the rewriter needs.
type CallSite interface {
	// TargetName returns the callee name; false for indirect calls.
	TargetName() (string, bool)
	// Declared reports whether the direct callee has a declaration.
	Declared() bool
	Signature() ir.Signature
	CallConv() ir.CallConv
	SetTarget(d *ir.Decl)
}

// DeclTable holds the declarations of one compilation unit.
type DeclTable interface {
	GetOrInsertDecl(name string, sig ir.Signature) (*ir.Decl, bool)
}

// Resolver attributes symbols to libraries.
type Resolver interface {
	FindOwner(sym string) (string, bool)
	Owners(sym string) []string
}

// Action is the outcome of rewriting one call.
type Action uint8

const (
	Skip Action = iota
	BuiltinMap
	LibraryQualified
)

func (a Action) String() string {
	switch a {
	case BuiltinMap:
		return "builtin"
	case LibraryQualified:
		return "qualified"
	default:
		return "skip"
	}
}

// SkipReason explains a Skip decision.
type SkipReason uint8

const (
	NotSkipped SkipReason = iota
	SkipIndirect
	SkipQualified
	SkipUnsupportedIntrinsic
	SkipUnresolved
	SkipUnknownCallee
)

func (r SkipReason) String() string {
	switch r {
	case SkipIndirect:
		return "indirect call"
	case SkipQualified:
		return "already qualified"
	case SkipUnsupportedIntrinsic:
		return "unsupported intrinsic"
	case SkipUnresolved:
		return "unresolved symbol"
	case SkipUnknownCallee:
		return "undeclared callee"
	default:
		return ""
	}
}

// Decision records what happened to one call site.
type Decision struct {
	Action Action
	Reason SkipReason
	// Original is the callee name before rewriting.
	Original string
	// Symbol is the normalized lookup key.
	Symbol string
	// Library is the provider, for BuiltinMap and LibraryQualified.
	Library string
	// NewName is the qualified callee name after rewriting.
	NewName string
	// Owners lists every library defining Symbol when ambiguity checks
	// are enabled.
	Owners []string
	// Inserted reports that a new declaration was created.
	Inserted bool
}

// Options configures a Rewriter.
type Options struct {
	Reporter diag.Reporter
	// WarnAmbiguous looks up every owner of a symbol and warns when more
	// than one library defines it. The first owner still wins.
	WarnAmbiguous bool
}

// Rewriter decides and applies the rewrite of single call sites.
type Rewriter struct {
	resolver Resolver
	opts     Options
}

// NewRewriter creates a rewriter resolving symbols through res.
func NewRewriter(res Resolver, opts Options) *Rewriter {
	if opts.Reporter == nil {
		opts.Reporter = diag.NopReporter{}
	}
	return &Rewriter{resolver: res, opts: opts}
}

// Rewrite resolves site and, on success, repoints it at the qualified
// declaration in table. Failures never propagate: the call is left as is.
func (r *Rewriter) Rewrite(table DeclTable, site CallSite) Decision {
	name, ok := site.TargetName()
	if !ok {
		return Decision{Action: Skip, Reason: SkipIndirect}
	}
	dec := Decision{Original: name}
	if !site.Declared() {
		dec.Reason = SkipUnknownCallee
		diag.ReportWarning(r.opts.Reporter, diag.UnknownCallee, printable(name),
			"call to undeclared function "+printable(name)+" left unchanged").Emit()
		return dec
	}

	res := mangle.Normalize(name)
	dec.Symbol = res.Name
	switch res.Kind {
	case mangle.Qualified:
		dec.Reason = SkipQualified
		return dec
	case mangle.UnsupportedIntrinsic:
		dec.Reason = SkipUnsupportedIntrinsic
		diag.ReportWarning(r.opts.Reporter, diag.UnsupportedIntrinsic, name,
			"failed to resolve llvm function: "+name).Emit()
		return dec
	case mangle.BuiltinMapped:
		dec.Action = BuiltinMap
		dec.Symbol = res.Symbol
		dec.Library = res.Provider
		dec.NewName = res.Name
	default:
		owner, owners, found := r.owner(res.Name)
		if !found {
			dec.Reason = SkipUnresolved
			diag.ReportInfo(r.opts.Reporter, diag.UnresolvedSymbol, printable(res.Name),
				"no library defines "+printable(res.Name)).Emit()
			return dec
		}
		dec.Action = LibraryQualified
		dec.Library = owner
		dec.Owners = owners
		dec.NewName = mangle.Qualify(owner, res.Name)
		if len(owners) > 1 {
			diag.ReportWarning(r.opts.Reporter, diag.AmbiguousSymbol, res.Name,
				fmt.Sprintf("%s is defined by %d libraries, using %s", res.Name, len(owners), owner)).
				WithNote("candidates: " + strings.Join(owners, ", ")).
				Emit()
		}
	}

	dec.Inserted = r.replace(table, site, dec.NewName)
	diag.ReportInfo(r.opts.Reporter, diag.SymbolRenamed, printable(name),
		"renamed "+printable(displayName(res))+" to "+dec.NewName).Emit()
	return dec
}

func (r *Rewriter) owner(sym string) (string, []string, bool) {
	if !r.opts.WarnAmbiguous {
		owner, ok := r.resolver.FindOwner(sym)
		return owner, nil, ok
	}
	owners := r.resolver.Owners(sym)
	if len(owners) == 0 {
		return "", nil, false
	}
	return owners[0], owners, true
}

// replace moves site to the declaration named newName, creating it with
// the call's signature when missing. The declaration takes the original
// calling convention and dllimport storage.
func (r *Rewriter) replace(table DeclTable, site CallSite, newName string) bool {
	sig := site.Signature()
	cc := site.CallConv()
	d, inserted := table.GetOrInsertDecl(newName, sig)
	if !inserted && !d.Sig.Equal(sig) {
		diag.ReportWarning(r.opts.Reporter, diag.SignatureMismatch, newName,
			fmt.Sprintf("%s already declared as %s, call uses %s", newName, d.Sig, sig)).
			WithNote("keeping the existing declaration").
			Emit()
	}
	d.CallConv = cc
	d.Storage = ir.StorageDLLImport
	site.SetTarget(d)
	return inserted
}

// displayName is the name shown in rename messages: the lookup key for
// library symbols, the raw intrinsic otherwise.
func displayName(res mangle.Result) string {
	if res.Kind == mangle.BuiltinMapped {
		return res.Raw
	}
	return res.Name
}

// printable escapes control bytes in decorated names.
func printable(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 || name[i] == 0x7f {
			return ir.FormatName(name)
		}
	}
	return name
}
