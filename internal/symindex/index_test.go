package symindex_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bofpass/internal/archive"
	"bofpass/internal/diag"
	"bofpass/internal/symindex"
	"bofpass/internal/testkit"
)

func writeLibs(t *testing.T, libs map[string][]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, syms := range libs {
		testkit.WriteLibrary(t, dir, name, testkit.Lib(syms...))
	}
	return dir
}

func TestFindOwnerIsDeterministic(t *testing.T) {
	dir := writeLibs(t, map[string][]string{
		"user32":   {"MessageBoxA", "Shared"},
		"kernel32": {"Sleep", "Shared"},
		"advapi32": {"RegOpenKeyA", "Shared"},
	})
	orders := [][]string{
		{"user32", "kernel32", "advapi32"},
		{"advapi32", "kernel32", "user32"},
		{"kernel32", "user32", "advapi32"},
	}
	for _, order := range orders {
		for _, jobs := range []int{1, 8} {
			idx := symindex.New(symindex.Config{Dir: dir, Libraries: order, Jobs: jobs})
			if err := idx.Init(context.Background()); err != nil {
				t.Fatalf("init: %v", err)
			}
			owner, ok := idx.FindOwner("Shared")
			if !ok || owner != "advapi32" {
				t.Fatalf("order %v jobs %d: owner = %q, %v", order, jobs, owner, ok)
			}
			if diff := cmp.Diff([]string{"advapi32", "kernel32", "user32"}, idx.Owners("Shared")); diff != "" {
				t.Fatalf("owners mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"advapi32", "kernel32", "user32"}, idx.Libraries()); diff != "" {
				t.Fatalf("libraries mismatch (-want +got):\n%s", diff)
			}
			if owner, _ := idx.FindOwner("MessageBoxA"); owner != "user32" {
				t.Fatalf("MessageBoxA owner = %q", owner)
			}
			if _, ok := idx.FindOwner("messageboxa"); ok {
				t.Fatalf("lookup must be case-sensitive")
			}
			_ = idx.Close()
		}
	}
}

func TestMissingLibraryIsTolerated(t *testing.T) {
	dir := writeLibs(t, map[string][]string{"kernel32": {"Sleep"}})
	bag := diag.NewBag(20)
	idx := symindex.New(symindex.Config{
		Dir:       dir,
		Libraries: []string{"kernel32", "nosuch"},
		Reporter:  diag.BagReporter{Bag: bag},
	})
	defer idx.Close()
	if err := idx.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !idx.Initialized() {
		t.Fatalf("index not initialized")
	}
	failures := idx.Failures()
	if len(failures) != 1 || failures[0].Library != "nosuch" || !errors.Is(failures[0].Err, archive.ErrIO) {
		t.Fatalf("unexpected failures %+v", failures)
	}
	if _, ok := idx.FindOwner("OnlyInNosuch"); ok {
		t.Fatalf("symbol from a missing library resolved")
	}
	if owner, ok := idx.FindOwner("Sleep"); !ok || owner != "kernel32" {
		t.Fatalf("Sleep owner = %q, %v", owner, ok)
	}
	if got := bag.WithCode(diag.ArchiveIO); len(got) != 1 || got[0].Subject != "nosuch" {
		t.Fatalf("expected one io warning, got %+v", bag.Items())
	}
	if got := bag.WithCode(diag.LibraryLoaded); len(got) != 1 || got[0].Subject != "kernel32" {
		t.Fatalf("expected one loaded info, got %+v", bag.Items())
	}
}

func TestInitIsIdempotentAndFailuresAreMemoized(t *testing.T) {
	dir := writeLibs(t, map[string][]string{"kernel32": {"Sleep"}})
	idx := symindex.New(symindex.Config{Dir: dir, Libraries: []string{"kernel32", "user32"}})
	defer idx.Close()
	if err := idx.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	testkit.WriteLibrary(t, dir, "user32", testkit.Lib("MessageBoxA"))
	if err := idx.Init(context.Background()); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if _, ok := idx.FindOwner("MessageBoxA"); ok {
		t.Fatalf("second Init must not retry failed libraries")
	}
	if len(idx.Failures()) != 1 {
		t.Fatalf("failure forgotten: %+v", idx.Failures())
	}

	if !idx.Load("user32") {
		t.Fatalf("explicit load failed")
	}
	if owner, ok := idx.FindOwner("MessageBoxA"); !ok || owner != "user32" {
		t.Fatalf("MessageBoxA owner = %q, %v", owner, ok)
	}
	if len(idx.Failures()) != 0 {
		t.Fatalf("failure not cleared: %+v", idx.Failures())
	}
	if !idx.Load("kernel32") {
		t.Fatalf("loading a present library must succeed")
	}
}

func TestLookupInitializesLazily(t *testing.T) {
	dir := writeLibs(t, map[string][]string{"kernel32": {"Sleep"}})
	idx := symindex.New(symindex.Config{Dir: dir, Libraries: []string{"kernel32"}})
	defer idx.Close()
	if idx.Initialized() || len(idx.Libraries()) != 0 {
		t.Fatalf("archives loaded before first use")
	}
	if owner, ok := idx.FindOwner("Sleep"); !ok || owner != "kernel32" {
		t.Fatalf("owner = %q, %v", owner, ok)
	}
	if !idx.Initialized() {
		t.Fatalf("lookup did not initialize the index")
	}
}

func TestInitHonoursCancellation(t *testing.T) {
	dir := writeLibs(t, map[string][]string{"kernel32": {"Sleep"}})
	idx := symindex.New(symindex.Config{Dir: dir, Libraries: []string{"kernel32"}})
	defer idx.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := idx.Init(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("init error = %v", err)
	}
	if idx.Initialized() {
		t.Fatalf("cancelled init marked the index initialized")
	}
	if err := idx.Init(context.Background()); err != nil {
		t.Fatalf("retry init: %v", err)
	}
	if _, ok := idx.FindOwner("Sleep"); !ok {
		t.Fatalf("Sleep not found after retry")
	}
}

func TestConcurrentInitAndLookup(t *testing.T) {
	dir := writeLibs(t, map[string][]string{
		"kernel32": {"Sleep", "ExitProcess"},
		"user32":   {"MessageBoxA"},
	})
	bag := diag.NewBag(100)
	idx := symindex.New(symindex.Config{Dir: dir, Libraries: []string{"kernel32", "user32"}, Reporter: diag.BagReporter{Bag: bag}})
	defer idx.Close()

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := idx.Init(context.Background()); err != nil {
				errs <- err.Error()
				return
			}
			for _, tc := range []struct{ sym, owner string }{{"Sleep", "kernel32"}, {"MessageBoxA", "user32"}} {
				if owner, _ := idx.FindOwner(tc.sym); owner != tc.owner {
					errs <- tc.sym + " resolved to " + owner
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
	if got := len(bag.WithCode(diag.LibraryLoaded)); got != 2 {
		t.Fatalf("libraries loaded %d times, want 2", got)
	}
}

func TestArchiveWithoutSymbolTableWarns(t *testing.T) {
	dir := t.TempDir()
	testkit.WriteLibrary(t, dir, "gdiplus", testkit.ArchiveSpec{
		Format:  testkit.FormatNone,
		Objects: []testkit.Object{{Name: "a.o", Symbols: []string{"GdipAlloc"}}},
	})
	bag := diag.NewBag(10)
	idx := symindex.New(symindex.Config{Dir: dir, Libraries: []string{"gdiplus"}, Reporter: diag.BagReporter{Bag: bag}})
	defer idx.Close()
	if err := idx.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, ok := idx.FindOwner("GdipAlloc"); ok {
		t.Fatalf("symbol resolved without a symbol table")
	}
	if len(bag.WithCode(diag.ArchiveNoSymtab)) != 1 {
		t.Fatalf("missing no-symtab warning: %+v", bag.Items())
	}
}

func TestDefaults(t *testing.T) {
	idx := symindex.New(symindex.Config{})
	if idx.Dir() != symindex.DefaultLibPath {
		t.Fatalf("dir = %q", idx.Dir())
	}
	if len(symindex.DefaultLibraries) != 20 {
		t.Fatalf("default libraries = %d", len(symindex.DefaultLibraries))
	}
}
