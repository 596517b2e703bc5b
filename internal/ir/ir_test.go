package ir_test

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"bofpass/internal/ir"
)

const sample = `; sample module
module beacon

declare stdcall void @"\x01_Sleep@4"(i32)

declare i32 @MessageBoxA(ptr, ptr, ptr, i32)

declare i32 @printf(ptr, ...)

declare void @llvm.memcpy.p0.p0.i64(ptr, ptr, i64, i1)

define void @go(ptr %args, i32 %len) {
entry:
  call @"\x01_Sleep@4"(i32 1000)
  %r = call @MessageBoxA(ptr null, ptr @msg, ptr @title, i32 0)
  call @llvm.memcpy.p0.p0.i64(ptr %dst, ptr %args, i64 16, i1 false)
  br label %next
next:
  %fp = load ptr, ptr %args
  call %fp()
  call @printf(ptr @fmt, i32 %r, i32 %len)
  ret void
}
`

var ignoreIndex = cmpopts.IgnoreUnexported(ir.Module{})

func mustParse(t *testing.T, src string) *ir.Module {
	t.Helper()
	m, err := ir.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return m
}

func TestParseSample(t *testing.T) {
	m := mustParse(t, sample)
	if m.Name != "beacon" || len(m.Decls) != 5 || len(m.Funcs) != 1 {
		t.Fatalf("unexpected module shape: %s %d decls %d funcs", m.Name, len(m.Decls), len(m.Funcs))
	}
	sleep, ok := m.Decl("\x01_Sleep@4")
	if !ok {
		t.Fatalf("decorated declaration missing")
	}
	if sleep.CallConv != ir.CallConvStdcall || sleep.Sig.String() != "void (i32)" {
		t.Fatalf("sleep decl = %+v", sleep)
	}
	printf, _ := m.Decl("printf")
	if !printf.Sig.Variadic || printf.Sig.String() != "i32 (ptr, ...)" {
		t.Fatalf("printf sig = %s", printf.Sig)
	}
	f := m.Funcs[0]
	if diff := cmp.Diff([]ir.Param{{Name: "args", Type: "ptr"}, {Name: "len", Type: "i32"}}, f.Params); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
	if len(f.Blocks) != 2 || f.Calls() != 5 {
		t.Fatalf("blocks=%d calls=%d", len(f.Blocks), f.Calls())
	}
	want := []ir.Instr{
		ir.Call("", "\x01_Sleep@4", "i32 1000"),
		ir.Call("r", "MessageBoxA", "ptr null", "ptr @msg", "ptr @title", "i32 0"),
		ir.Call("", "llvm.memcpy.p0.p0.i64", "ptr %dst", "ptr %args", "i64 16", "i1 false"),
		ir.Other("br label %next"),
	}
	if diff := cmp.Diff(want, f.Blocks[0].Instrs); diff != "" {
		t.Fatalf("entry mismatch (-want +got):\n%s", diff)
	}
	if got := f.Blocks[1].Instrs[1]; got.Kind != ir.InstrCall || got.Call.Callee.Kind != ir.CalleeValue || got.Call.Args != nil {
		t.Fatalf("indirect call = %+v", got)
	}
	if err := ir.Validate(m); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestTextRoundTrip(t *testing.T) {
	m := mustParse(t, sample)
	m.GetOrInsertDecl("kernel32$Sleep", ir.Signature{Result: ir.Void, Params: []ir.Type{"i32"}})
	d, _ := m.Decl("kernel32$Sleep")
	d.Storage = ir.StorageDLLImport
	d.CallConv = ir.CallConvStdcall

	var buf bytes.Buffer
	if err := ir.Dump(&buf, m); err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(buf.String(), "declare dllimport stdcall void @kernel32$Sleep(i32)") {
		t.Fatalf("qualified declaration not printed bare:\n%s", buf.String())
	}
	again, err := ir.Parse(&buf)
	if err != nil {
		t.Fatalf("reparse: %v\n%s", err, m.String())
	}
	if diff := cmp.Diff(m, again, ignoreIndex); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	m := mustParse(t, sample)
	var buf bytes.Buffer
	if err := ir.Encode(&buf, m); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if ir.DetectFormat(buf.Bytes()) != ir.FormatBinary {
		t.Fatalf("binary payload detected as text")
	}
	got, err := ir.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(m, got, ignoreIndex); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if _, ok := got.Decl("MessageBoxA"); !ok {
		t.Fatalf("decoded module lookup failed")
	}
}

func TestFileRoundTrip(t *testing.T) {
	m := mustParse(t, sample)
	dir := t.TempDir()
	for _, format := range []ir.Format{ir.FormatText, ir.FormatBinary} {
		path := filepath.Join(dir, "out"+format.Ext())
		if err := ir.WriteFile(path, m, format); err != nil {
			t.Fatalf("write %s: %v", format, err)
		}
		got, gotFormat, err := ir.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", format, err)
		}
		if gotFormat != format {
			t.Fatalf("format = %s, want %s", gotFormat, format)
		}
		if diff := cmp.Diff(m, got, ignoreIndex); diff != "" {
			t.Fatalf("%s mismatch (-want +got):\n%s", format, diff)
		}
	}
}

func TestDecodeRejectsForeignPayload(t *testing.T) {
	if _, err := ir.Decode(strings.NewReader("\x80")); !errors.Is(err, ir.ErrSchema) {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"no header", "declare void @f()\n", "before module header"},
		{"empty", "", "missing module header"},
		{"unterminated", "module m\ndefine void @f() {\nentry:\n", "unterminated definition"},
		{"duplicate decl", "module m\ndeclare void @f()\ndeclare void @f()\n", "declared twice"},
		{"instr before label", "module m\ndefine void @f() {\n  ret void\n}\n", "before the first label"},
		{"bad quote", "module m\ndeclare void @\"abc(i32)\n", "bad quoted name"},
		{"variadic not last", "module m\ndeclare void @f(..., i32)\n", "must be last"},
		{"named decl param", "module m\ndeclare void @f(i32 %x)\n", "bare types"},
		{"unnamed def param", "module m\ndefine void @f(i32) {\n}\n", "needs a %name"},
		{"broken call", "module m\ndefine void @f() {\nentry:\n  call @g(i32 1\n}\n", "missing ')'"},
		{"unknown keyword", "module m\nglobal @x\n", "unexpected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ir.Parse(strings.NewReader(tt.src))
			var se *ir.SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("expected SyntaxError, got %v", err)
			}
			if !strings.Contains(se.Msg, tt.want) {
				t.Fatalf("error %q does not mention %q", se.Msg, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	m := mustParse(t, "module m\ndeclare void @g(i32)\ndefine void @f() {\nentry:\n  call @g(i32 1, i32 2)\n  call @missing()\n}\n")
	m.Decls = append(m.Decls, &ir.Decl{Name: "imp", Defined: true, Storage: ir.StorageDLLImport})
	err := ir.Validate(m)
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"takes 1 args, call passes 2", "undeclared @missing", "dllimport declaration has a body", "@imp: marked defined but has no body"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error lacks %q:\n%v", want, err)
		}
	}
}

func TestGetOrInsertDecl(t *testing.T) {
	m := ir.NewModule("m")
	sig := ir.Signature{Result: "i32", Params: []ir.Type{"ptr"}}
	d, inserted := m.GetOrInsertDecl("user32$MessageBoxA", sig)
	if !inserted || d.Defined || !d.Sig.Equal(sig) {
		t.Fatalf("insert = %+v, %v", d, inserted)
	}
	sig.Params[0] = "i64"
	if d.Sig.Params[0] != "ptr" {
		t.Fatalf("declaration aliases the caller's params")
	}
	again, inserted := m.GetOrInsertDecl("user32$MessageBoxA", ir.Signature{Result: ir.Void})
	if inserted || again != d {
		t.Fatalf("existing declaration not reused")
	}
	if len(m.Decls) != 1 {
		t.Fatalf("decls = %d", len(m.Decls))
	}
}

func TestCallSites(t *testing.T) {
	m := mustParse(t, sample)
	sites := ir.CallSites(m, m.Funcs[0])
	if len(sites) != 5 {
		t.Fatalf("sites = %d", len(sites))
	}
	name, ok := sites[0].TargetName()
	if !ok || name != "\x01_Sleep@4" || sites[0].CallConv() != ir.CallConvStdcall {
		t.Fatalf("site 0: %q %v %s", name, ok, sites[0].CallConv())
	}
	if _, ok := sites[3].TargetName(); ok {
		t.Fatalf("indirect call reported a target")
	}
	d, _ := m.GetOrInsertDecl("kernel32$Sleep", sites[0].Signature())
	sites[0].SetTarget(d)
	if got := m.Funcs[0].Blocks[0].Instrs[0].Call; got.Callee.Name != "kernel32$Sleep" || got.Args[0] != "i32 1000" {
		t.Fatalf("call after SetTarget = %+v", got)
	}
	if !sites[0].Declared() {
		t.Fatalf("renamed callee lost its declaration")
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]ir.Format{"text": ir.FormatText, "binary": ir.FormatBinary, "BMOD": ir.FormatBinary, "": ir.FormatText} {
		got, err := ir.ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ir.ParseFormat("json"); err == nil {
		t.Fatalf("expected error for json")
	}
}
