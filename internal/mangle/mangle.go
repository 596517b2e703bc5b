package mangle

import "strings"

const (
	// Separator joins a library and a symbol in a qualified name.
	Separator = "$"

	// IntrinsicPrefix marks compiler-generated intrinsics.
	IntrinsicPrefix = "llvm."

	// RuntimeProvider is the library providing the memory primitives.
	RuntimeProvider = "msvcrt"

	decorationMarker = '\x01'
)

// memory primitives in match order
var builtinOps = [...]string{"memcpy", "memset", "memmove"}

// Kind classifies a normalization outcome.
type Kind uint8

const (
	// Unchanged: the raw name is the lookup key.
	Unchanged Kind = iota
	// Stripped: decoration was removed; Name is the lookup key.
	Stripped
	// BuiltinMapped: an intrinsic mapped to a fixed qualified name.
	BuiltinMapped
	// UnsupportedIntrinsic: an intrinsic with no known mapping.
	UnsupportedIntrinsic
	// Qualified: the name already carries a library qualifier.
	Qualified
)

func (k Kind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Stripped:
		return "stripped"
	case BuiltinMapped:
		return "builtin"
	case UnsupportedIntrinsic:
		return "unsupported-intrinsic"
	case Qualified:
		return "qualified"
	default:
		return "unknown"
	}
}

// Result describes how a raw name normalizes.
type Result struct {
	Kind Kind
	// Raw is the input name.
	Raw string
	// Name is the lookup key for Unchanged and Stripped, the final
	// qualified name for BuiltinMapped, and Raw otherwise.
	Name string
	// Provider and Symbol are set for BuiltinMapped.
	Provider string
	Symbol   string
}

// Resolvable reports whether Name should be looked up in the index.
func (r Result) Resolvable() bool {
	return r.Kind == Unchanged || r.Kind == Stripped
}

// Normalize classifies raw and computes its lookup key.
func Normalize(raw string) Result {
	if IsQualified(raw) {
		return Result{Kind: Qualified, Raw: raw, Name: raw}
	}
	if IsIntrinsic(raw) {
		op, ok := MapIntrinsic(raw)
		if !ok {
			return Result{Kind: UnsupportedIntrinsic, Raw: raw, Name: raw}
		}
		return Result{
			Kind:     BuiltinMapped,
			Raw:      raw,
			Name:     Qualify(RuntimeProvider, op),
			Provider: RuntimeProvider,
			Symbol:   op,
		}
	}
	if name, ok := StripDecoration(raw); ok {
		return Result{Kind: Stripped, Raw: raw, Name: name}
	}
	return Result{Kind: Unchanged, Raw: raw, Name: raw}
}

// IsIntrinsic reports whether name carries the intrinsic prefix.
func IsIntrinsic(name string) bool {
	return strings.HasPrefix(name, IntrinsicPrefix)
}

// MapIntrinsic returns the memory primitive an intrinsic name starts with,
// right after the prefix. "llvm.memcpy.p0.p0.i64" maps to "memcpy".
func MapIntrinsic(name string) (string, bool) {
	if !IsIntrinsic(name) {
		return "", false
	}
	rest := name[len(IntrinsicPrefix):]
	for _, op := range builtinOps {
		if strings.HasPrefix(rest, op) {
			return op, true
		}
	}
	return "", false
}

// StripDecoration reduces "\x01_Name@N" to "Name". The '@' must sit at
// index 4 or later; otherwise the name is left alone and ok is false.
func StripDecoration(name string) (string, bool) {
	if len(name) < 2 || name[0] != decorationMarker || name[1] != '_' {
		return name, false
	}
	at := strings.IndexByte(name, '@')
	if at <= 3 {
		return name, false
	}
	return name[2:at], true
}

// Qualify builds "<lib>$<sym>".
func Qualify(lib, sym string) string {
	return lib + Separator + sym
}

// IsQualified reports whether name contains the separator.
func IsQualified(name string) bool {
	return strings.Contains(name, Separator)
}

// SplitQualified splits a qualified name at the first separator.
func SplitQualified(name string) (lib, sym string, ok bool) {
	return strings.Cut(name, Separator)
}
