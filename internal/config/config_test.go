package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bofpass/internal/config"
	"bofpass/internal/symindex"
)

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, config.FileName)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if cfg.LibPath != "c:/msys64/clang64/lib" || !cfg.EnableRename || cfg.Verbose {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if diff := cmp.Diff(symindex.DefaultLibraries, cfg.Libraries); diff != "" {
		t.Fatalf("default libraries mismatch (-want +got):\n%s", diff)
	}
	cfg.Libraries[0] = "changed"
	if symindex.DefaultLibraries[0] != "advapi32" {
		t.Fatalf("Default aliases the shared library list")
	}
}

func TestLoadFileOverlaysDefinedKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, `
lib_path = "/opt/mingw/lib"
verbose = true
extra_libraries = ["dbghelp", "kernel32"]
jobs = 3
`)
	cfg, err := config.LoadFile(path, config.Default())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LibPath != "/opt/mingw/lib" || !cfg.Verbose || cfg.Jobs != 3 || cfg.Source != path {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.EnableRename || !cfg.WarnAmbiguous {
		t.Fatalf("undefined keys lost their defaults: %+v", cfg)
	}
	list := cfg.LibraryList()
	if len(list) != 21 || list[len(list)-1] != "dbghelp" {
		t.Fatalf("library list = %v", list)
	}
}

func TestLoadFileRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"syntax", "lib_path = \n", "failed to parse TOML"},
		{"unknown key", "lib_dir = \"x\"\n", "unknown keys: lib_dir"},
		{"negative jobs", "jobs = -1\n", "jobs must be >= 0"},
		{"bad library", "libraries = [\"kernel32\", \"a/b\"]\n", "invalid library name"},
		{"empty lib path", "lib_path = \"\"\n", "lib_path must not be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.body)
			_, err := config.LoadFile(path, config.Default())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestFindWalksUp(t *testing.T) {
	root := t.TempDir()
	want := writeFile(t, root, "verbose = true\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	got, ok, err := config.Find(nested)
	if err != nil || !ok || got != want {
		t.Fatalf("find = %q %v %v", got, ok, err)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "lib_path = \"/from/file\"\nenable_rename = true\nlibraries = [\"kernel32\"]\n")

	t.Setenv(config.EnvLibPath, "/from/env")
	t.Setenv(config.EnvEnableRename, "false")
	t.Setenv(config.EnvExtraLibraries, " user32, ,ntdll ")
	t.Setenv(config.EnvJobs, "2")

	cfg, err := config.Load(config.LoadOptions{Path: path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LibPath != "/from/env" || cfg.EnableRename || cfg.Jobs != 2 {
		t.Fatalf("env did not override: %+v", cfg)
	}
	if diff := cmp.Diff([]string{"kernel32", "user32", "ntdll"}, cfg.LibraryList()); diff != "" {
		t.Fatalf("library list mismatch (-want +got):\n%s", diff)
	}

	cfg, err = config.Load(config.LoadOptions{Path: path, SkipEnv: true})
	if err != nil {
		t.Fatalf("load without env: %v", err)
	}
	if cfg.LibPath != "/from/file" || !cfg.EnableRename {
		t.Fatalf("file settings lost: %+v", cfg)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := config.Load(config.LoadOptions{StartDir: t.TempDir(), SkipEnv: true})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source != "" && !strings.HasSuffix(cfg.Source, config.FileName) {
		t.Fatalf("source = %q", cfg.Source)
	}
}

func TestWriteTOMLRoundTrip(t *testing.T) {
	want := config.Default()
	want.Verbose = true
	want.ExtraLibraries = []string{"dbghelp"}
	var buf bytes.Buffer
	if err := want.WriteTOML(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	path := writeFile(t, t.TempDir(), buf.String())
	got, err := config.LoadFile(path, config.Config{})
	if err != nil {
		t.Fatalf("reload: %v\n%s", err, buf.String())
	}
	got.Source = ""
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestIndexConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Libraries = []string{"kernel32", "kernel32"}
	cfg.NoMmap = true
	ic := cfg.IndexConfig()
	if ic.Dir != cfg.LibPath || !ic.NoMmap || len(ic.Libraries) != 1 {
		t.Fatalf("index config = %+v", ic)
	}
}
