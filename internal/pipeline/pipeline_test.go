package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bofpass/internal/config"
	"bofpass/internal/diag"
	"bofpass/internal/ir"
	"bofpass/internal/pipeline"
	"bofpass/internal/rewrite"
	"bofpass/internal/testkit"
)

const moduleA = `module a
declare stdcall void @Sleep(i32)
define void @go() {
entry:
  call @Sleep(i32 10)
  ret void
}
`

const moduleB = `module b
declare stdcall i32 @MessageBoxA(ptr, ptr, ptr, i32)
declare void @llvm.memcpy.p0.p0.i64(ptr, ptr, i64, i1)
define void @go(ptr %p) {
entry:
  %r = call @MessageBoxA(ptr null, ptr %p, ptr %p, i32 0)
  call @llvm.memcpy.p0.p0.i64(ptr %p, ptr %p, i64 1, i1 false)
  ret void
}
`

type fixture struct {
	libDir string
	srcDir string
	outDir string
	cfg    config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{libDir: t.TempDir(), srcDir: t.TempDir(), outDir: t.TempDir()}
	testkit.WriteLibrary(t, f.libDir, "kernel32", testkit.Lib("Sleep"))
	testkit.WriteLibrary(t, f.libDir, "user32", testkit.Lib("MessageBoxA"))
	f.cfg = config.Default()
	f.cfg.LibPath = f.libDir
	f.cfg.Libraries = []string{"kernel32", "user32"}
	f.cfg.Jobs = 2
	return f
}

func (f *fixture) write(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(f.srcDir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func (f *fixture) writeBinary(t *testing.T, name, body string) string {
	t.Helper()
	m, err := ir.Parse(strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(f.srcDir, name)
	if err := ir.WriteFile(path, m, ir.FormatBinary); err != nil {
		t.Fatal(err)
	}
	return path
}

type recorder struct {
	mu     sync.Mutex
	events []pipeline.Event
}

func (r *recorder) OnEvent(e pipeline.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) has(file string, stage pipeline.Stage, status pipeline.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.File == file && e.Stage == stage && e.Status == status {
			return true
		}
	}
	return false
}

func callees(t *testing.T, path string) []string {
	t.Helper()
	m, _, err := ir.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var out []string
	for _, fn := range m.Funcs {
		for _, b := range fn.Blocks {
			for _, in := range b.Instrs {
				if in.Kind == ir.InstrCall {
					out = append(out, in.Call.Callee.Name)
				}
			}
		}
	}
	return out
}

func TestRunRewritesFiles(t *testing.T) {
	f := newFixture(t)
	a := f.write(t, "a.bir", moduleA)
	b := f.writeBinary(t, "b.bmod", moduleB)
	rec := &recorder{}

	res, err := pipeline.Run(context.Background(), &pipeline.Request{
		Files:    []string{a, b},
		BaseDir:  f.srcDir,
		OutDir:   f.outDir,
		Config:   f.cfg,
		Progress: rec,
		Validate: true,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff([]string{rewrite.PassName}, res.Passes); diff != "" {
		t.Fatalf("passes mismatch (-want +got):\n%s", diff)
	}
	want := rewrite.Stats{Calls: 3, Rewritten: 3, Builtins: 1}
	if res.Stats != want {
		t.Fatalf("stats = %s, want %s", res.Stats, want)
	}
	if res.Files[0].File != "a.bir" || res.Files[1].Stats.Builtins != 1 {
		t.Fatalf("file results = %+v", res.Files)
	}
	if diff := cmp.Diff([]string{"kernel32$Sleep"}, callees(t, filepath.Join(f.outDir, "a.bir"))); diff != "" {
		t.Fatalf("a callees mismatch (-want +got):\n%s", diff)
	}
	outB := filepath.Join(f.outDir, "b.bmod")
	if diff := cmp.Diff([]string{"user32$MessageBoxA", "msvcrt$memcpy"}, callees(t, outB)); diff != "" {
		t.Fatalf("b callees mismatch (-want +got):\n%s", diff)
	}
	if _, format, _ := ir.ReadFile(outB); format != ir.FormatBinary {
		t.Fatalf("binary input written as %s", format)
	}
	if !rec.has("", pipeline.StageIndex, pipeline.StatusDone) {
		t.Fatalf("index stage not reported")
	}
	for _, name := range []string{"a.bir", "b.bmod"} {
		if !rec.has(name, "", pipeline.StatusQueued) || !rec.has(name, pipeline.StageWrite, pipeline.StatusDone) {
			t.Fatalf("%s progress incomplete", name)
		}
	}
	if !res.Timings.Has(pipeline.StageIndex) || !res.Timings.Has(pipeline.StageRewrite) {
		t.Fatalf("timings missing")
	}
}

func TestRunWithRenameDisabledCopiesModules(t *testing.T) {
	f := newFixture(t)
	f.cfg.EnableRename = false
	a := f.write(t, "a.bir", moduleA)
	bag := diag.NewBag(10)
	res, err := pipeline.Run(context.Background(), &pipeline.Request{
		Files:    []string{a},
		OutDir:   f.outDir,
		Config:   f.cfg,
		Reporter: diag.BagReporter{Bag: bag},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Passes) != 0 || res.Stats != (rewrite.Stats{}) {
		t.Fatalf("rename ran while disabled: %+v", res)
	}
	if diff := cmp.Diff([]string{"Sleep"}, callees(t, filepath.Join(f.outDir, "a.bir"))); diff != "" {
		t.Fatalf("callees mismatch (-want +got):\n%s", diff)
	}
	if len(bag.WithCode(diag.RewriteDisabled)) != 1 {
		t.Fatalf("disabled notice missing: %+v", bag.Items())
	}
}

func TestRunKeepsGoingAfterFileFailure(t *testing.T) {
	f := newFixture(t)
	bad := f.write(t, "bad.bir", "module bad\ndefine void @f() {\n")
	good := f.write(t, "good.bir", moduleA)
	missing := filepath.Join(f.srcDir, "missing.bir")
	rec := &recorder{}
	bag := diag.NewBag(20)

	res, err := pipeline.Run(context.Background(), &pipeline.Request{
		Files:    []string{bad, good, missing},
		BaseDir:  f.srcDir,
		OutDir:   f.outDir,
		Config:   f.cfg,
		Reporter: diag.BagReporter{Bag: bag},
		Progress: rec,
	})
	if err == nil {
		t.Fatalf("expected an error")
	}
	for _, name := range []string{"bad.bir", "missing.bir"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error does not mention %s: %v", name, err)
		}
	}
	var se *ir.SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("syntax error not preserved: %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("not-exist error not preserved: %v", err)
	}
	if res.Files[1].Err != nil || res.Stats.Rewritten != 1 {
		t.Fatalf("good file not processed: %+v", res.Files[1])
	}
	if _, err := os.Stat(filepath.Join(f.outDir, "good.bir")); err != nil {
		t.Fatalf("good output missing: %v", err)
	}
	if !rec.has("bad.bir", pipeline.StageLoad, pipeline.StatusError) {
		t.Fatalf("load error not reported")
	}
	parseErrs := bag.WithCode(diag.ModuleParse)
	readErrs := bag.WithCode(diag.ModuleRead)
	if len(parseErrs) != 1 || parseErrs[0].Subject != "bad.bir" || len(readErrs) != 1 || readErrs[0].Subject != "missing.bir" {
		t.Fatalf("file diagnostics = %+v", bag.Items())
	}
}

func TestRunValidatesModules(t *testing.T) {
	f := newFixture(t)
	// the call passes one argument to a two-parameter function
	bad := f.write(t, "bad.bir", "module bad\ndeclare void @Sleep(i32, i32)\ndefine void @f() {\nentry:\n  call @Sleep(i32 1)\n}\n")
	bag := diag.NewBag(10)
	_, err := pipeline.Run(context.Background(), &pipeline.Request{
		Files:    []string{bad},
		OutDir:   f.outDir,
		Config:   f.cfg,
		Reporter: diag.BagReporter{Bag: bag},
		Validate: true,
	})
	if !errors.Is(err, pipeline.ErrInvalidModule) {
		t.Fatalf("error = %v", err)
	}
	if len(bag.WithCode(diag.ModuleInvalid)) != 1 {
		t.Fatalf("diagnostics = %+v", bag.Items())
	}
}

func TestRunToStdout(t *testing.T) {
	f := newFixture(t)
	a := f.write(t, "a.bir", moduleA)
	var out bytes.Buffer
	emit := ir.FormatText
	res, err := pipeline.Run(context.Background(), &pipeline.Request{
		Files:  []string{a},
		Stdout: &out,
		Emit:   &emit,
		Config: f.cfg,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Files[0].Output != "-" || !strings.Contains(out.String(), "call @kernel32$Sleep(i32 10)") {
		t.Fatalf("stdout = %q", out.String())
	}
	if !strings.Contains(out.String(), "declare dllimport stdcall void @kernel32$Sleep(i32)") {
		t.Fatalf("qualified declaration missing:\n%s", out.String())
	}
}

func TestRunInPlaceWithEmitOverride(t *testing.T) {
	f := newFixture(t)
	a := f.write(t, "a.bir", moduleA)
	emit := ir.FormatBinary
	if _, err := pipeline.Run(context.Background(), &pipeline.Request{
		Files:   []string{a},
		InPlace: true,
		Emit:    &emit,
		Config:  f.cfg,
	}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, format, err := ir.ReadFile(a); err != nil || format != ir.FormatBinary {
		t.Fatalf("in-place output: %s, %v", format, err)
	}
}

func TestRunRejectsAmbiguousOutputs(t *testing.T) {
	f := newFixture(t)
	a := f.write(t, "a.bir", moduleA)
	b := f.write(t, "b.bir", moduleA)
	if _, err := pipeline.Run(context.Background(), &pipeline.Request{Files: []string{a, b}, Stdout: &bytes.Buffer{}, Config: f.cfg}); !errors.Is(err, pipeline.ErrNoOutput) {
		t.Fatalf("error = %v", err)
	}
	other := filepath.Join(t.TempDir(), "a.bmod")
	if _, err := pipeline.Run(context.Background(), &pipeline.Request{Files: []string{a, other}, OutDir: f.outDir, Config: f.cfg}); err == nil || !strings.Contains(err.Error(), "same output") {
		t.Fatalf("collision error = %v", err)
	}
	if _, err := pipeline.Run(context.Background(), &pipeline.Request{Files: []string{a, a}, InPlace: true, Config: f.cfg}); err == nil || !strings.Contains(err.Error(), "same file") {
		t.Fatalf("duplicate error = %v", err)
	}
}

type namedPass struct {
	name string
	log  *[]string
	err  error
}

func (p namedPass) Name() string { return p.name }

func (p namedPass) Run(_ context.Context, _ *ir.Module, fn *ir.Func) error {
	*p.log = append(*p.log, p.name+":"+fn.Name)
	return p.err
}

func TestFunctionPassManager(t *testing.T) {
	m, err := ir.Parse(strings.NewReader("module m\ndefine void @f() {\n}\ndefine void @g() {\n}\n"))
	if err != nil {
		t.Fatal(err)
	}
	var log []string
	var pm pipeline.FunctionPassManager
	pm.Add(namedPass{name: "one", log: &log})
	pm.Add(namedPass{name: "two", log: &log})
	if err := pm.Run(context.Background(), m); err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff([]string{"one:f", "two:f", "one:g", "two:g"}, log); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}

	boom := errors.New("boom")
	var failing pipeline.FunctionPassManager
	failing.Add(namedPass{name: "bad", log: &log, err: boom})
	if err := failing.Run(context.Background(), m); !errors.Is(err, boom) || !strings.Contains(err.Error(), "bad on @f") {
		t.Fatalf("error = %v", err)
	}
	if diff := cmp.Diff([]string{"one", "two"}, pm.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
}
