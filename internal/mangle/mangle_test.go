package mangle_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"bofpass/internal/mangle"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want mangle.Result
	}{
		{"Sleep", mangle.Result{Kind: mangle.Unchanged, Raw: "Sleep", Name: "Sleep"}},
		{"", mangle.Result{Kind: mangle.Unchanged, Raw: "", Name: ""}},
		{"llvm.memcpy.p0.p0.i64", mangle.Result{Kind: mangle.BuiltinMapped, Raw: "llvm.memcpy.p0.p0.i64", Name: "msvcrt$memcpy", Provider: "msvcrt", Symbol: "memcpy"}},
		{"llvm.memset.p0.i32", mangle.Result{Kind: mangle.BuiltinMapped, Raw: "llvm.memset.p0.i32", Name: "msvcrt$memset", Provider: "msvcrt", Symbol: "memset"}},
		{"llvm.memmove.p0.p0.i64", mangle.Result{Kind: mangle.BuiltinMapped, Raw: "llvm.memmove.p0.p0.i64", Name: "msvcrt$memmove", Provider: "msvcrt", Symbol: "memmove"}},
		{"llvm.memcpy", mangle.Result{Kind: mangle.BuiltinMapped, Raw: "llvm.memcpy", Name: "msvcrt$memcpy", Provider: "msvcrt", Symbol: "memcpy"}},
		{"llvm.trap", mangle.Result{Kind: mangle.UnsupportedIntrinsic, Raw: "llvm.trap", Name: "llvm.trap"}},
		{"llvm.x.memcpy", mangle.Result{Kind: mangle.UnsupportedIntrinsic, Raw: "llvm.x.memcpy", Name: "llvm.x.memcpy"}},
		{"llvm.", mangle.Result{Kind: mangle.UnsupportedIntrinsic, Raw: "llvm.", Name: "llvm."}},
		{"llvmmemcpy", mangle.Result{Kind: mangle.Unchanged, Raw: "llvmmemcpy", Name: "llvmmemcpy"}},
		{"\x01_Sleep@4", mangle.Result{Kind: mangle.Stripped, Raw: "\x01_Sleep@4", Name: "Sleep"}},
		{"\x01_MessageBoxA@16", mangle.Result{Kind: mangle.Stripped, Raw: "\x01_MessageBoxA@16", Name: "MessageBoxA"}},
		{"\x01_ab@8", mangle.Result{Kind: mangle.Stripped, Raw: "\x01_ab@8", Name: "ab"}},
		{"\x01_a@8", mangle.Result{Kind: mangle.Unchanged, Raw: "\x01_a@8", Name: "\x01_a@8"}},
		{"\x01_Sleep", mangle.Result{Kind: mangle.Unchanged, Raw: "\x01_Sleep", Name: "\x01_Sleep"}},
		{"\x01Sleep@4", mangle.Result{Kind: mangle.Unchanged, Raw: "\x01Sleep@4", Name: "\x01Sleep@4"}},
		{"_Sleep@4", mangle.Result{Kind: mangle.Unchanged, Raw: "_Sleep@4", Name: "_Sleep@4"}},
		{"\x01", mangle.Result{Kind: mangle.Unchanged, Raw: "\x01", Name: "\x01"}},
		{"kernel32$Sleep", mangle.Result{Kind: mangle.Qualified, Raw: "kernel32$Sleep", Name: "kernel32$Sleep"}},
		{"msvcrt$memcpy", mangle.Result{Kind: mangle.Qualified, Raw: "msvcrt$memcpy", Name: "msvcrt$memcpy"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := mangle.Normalize(tt.raw)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Normalize(%q) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

func TestNormalizeOutputIsStable(t *testing.T) {
	// every produced name normalizes to a non-resolvable result
	for _, raw := range []string{"llvm.memcpy.p0.p0.i64", "llvm.memset.p0.i32", "llvm.memmove.p0.p0.i32"} {
		first := mangle.Normalize(raw)
		second := mangle.Normalize(first.Name)
		if second.Kind != mangle.Qualified || second.Resolvable() {
			t.Fatalf("%q: second pass gave %s", raw, second.Kind)
		}
	}
	if got := mangle.Normalize(mangle.Qualify("user32", "MessageBoxA")); got.Resolvable() {
		t.Fatalf("qualified name is resolvable: %+v", got)
	}
}

func TestSplitQualified(t *testing.T) {
	lib, sym, ok := mangle.SplitQualified("kernel32$Sleep")
	if !ok || lib != "kernel32" || sym != "Sleep" {
		t.Fatalf("split = %q %q %v", lib, sym, ok)
	}
	if _, _, ok := mangle.SplitQualified("Sleep"); ok {
		t.Fatalf("plain name reported as qualified")
	}
}

func TestKindString(t *testing.T) {
	if mangle.UnsupportedIntrinsic.String() != "unsupported-intrinsic" || mangle.Kind(99).String() != "unknown" {
		t.Fatalf("unexpected kind names")
	}
}
