// Package config resolves the effective settings of a run from defaults,
// an optional bofpass.toml and BOFPASS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/xyproto/env/v2"

	"bofpass/internal/symindex"
)

// FileName is the configuration file looked up from the working directory.
const FileName = "bofpass.toml"

// Config holds every setting of a run.
type Config struct {
	LibPath        string   `toml:"lib_path"`
	EnableRename   bool     `toml:"enable_rename"`
	Verbose        bool     `toml:"verbose"`
	Libraries      []string `toml:"libraries"`
	ExtraLibraries []string `toml:"extra_libraries"`
	Jobs           int      `toml:"jobs"`
	WarnAmbiguous  bool     `toml:"warn_ambiguous"`
	NoMmap         bool     `toml:"no_mmap"`

	// Source is the file the settings came from, if any.
	Source string `toml:"-"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LibPath:       symindex.DefaultLibPath,
		EnableRename:  true,
		Libraries:     slices.Clone(symindex.DefaultLibraries),
		WarnAmbiguous: true,
	}
}

// Find walks up from startDir looking for FileName.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// LoadFile overlays the keys present in path onto base.
func LoadFile(path string, base Config) (Config, error) {
	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return base, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return base, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg := base
	if meta.IsDefined("lib_path") {
		cfg.LibPath = raw.LibPath
	}
	if meta.IsDefined("enable_rename") {
		cfg.EnableRename = raw.EnableRename
	}
	if meta.IsDefined("verbose") {
		cfg.Verbose = raw.Verbose
	}
	if meta.IsDefined("libraries") {
		cfg.Libraries = raw.Libraries
	}
	if meta.IsDefined("extra_libraries") {
		cfg.ExtraLibraries = raw.ExtraLibraries
	}
	if meta.IsDefined("jobs") {
		cfg.Jobs = raw.Jobs
	}
	if meta.IsDefined("warn_ambiguous") {
		cfg.WarnAmbiguous = raw.WarnAmbiguous
	}
	if meta.IsDefined("no_mmap") {
		cfg.NoMmap = raw.NoMmap
	}
	cfg.Source = path
	if err := cfg.Validate(); err != nil {
		return base, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Environment variables recognised by ApplyEnv.
const (
	EnvLibPath        = "BOFPASS_LIB_PATH"
	EnvEnableRename   = "BOFPASS_ENABLE_RENAME"
	EnvVerbose        = "BOFPASS_VERBOSE"
	EnvLibraries      = "BOFPASS_LIBRARIES"
	EnvExtraLibraries = "BOFPASS_EXTRA_LIBRARIES"
	EnvJobs           = "BOFPASS_JOBS"
	EnvWarnAmbiguous  = "BOFPASS_WARN_AMBIGUOUS"
	EnvNoMmap         = "BOFPASS_NO_MMAP"
)

// ApplyEnv overrides settings with the BOFPASS_* variables that are set.
// Library lists are comma separated.
func (c *Config) ApplyEnv() {
	if env.Has(EnvLibPath) {
		c.LibPath = env.Str(EnvLibPath)
	}
	if env.Has(EnvEnableRename) {
		c.EnableRename = env.Bool(EnvEnableRename)
	}
	if env.Has(EnvVerbose) {
		c.Verbose = env.Bool(EnvVerbose)
	}
	if env.Has(EnvLibraries) {
		c.Libraries = SplitList(env.Str(EnvLibraries))
	}
	if env.Has(EnvExtraLibraries) {
		c.ExtraLibraries = SplitList(env.Str(EnvExtraLibraries))
	}
	if env.Has(EnvJobs) {
		c.Jobs = env.Int(EnvJobs, c.Jobs)
	}
	if env.Has(EnvWarnAmbiguous) {
		c.WarnAmbiguous = env.Bool(EnvWarnAmbiguous)
	}
	if env.Has(EnvNoMmap) {
		c.NoMmap = env.Bool(EnvNoMmap)
	}
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadOptions selects the configuration sources.
type LoadOptions struct {
	// Path is an explicit configuration file; it must exist.
	Path string
	// StartDir is where the FileName search begins when Path is empty.
	StartDir string
	// SkipEnv ignores BOFPASS_* variables.
	SkipEnv bool
}

// Load resolves defaults, then the configuration file, then environment.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()
	path := opts.Path
	if path == "" {
		found, ok, err := Find(opts.StartDir)
		if err != nil {
			return cfg, err
		}
		if ok {
			path = found
		}
	}
	if path != "" {
		var err error
		if cfg, err = LoadFile(path, cfg); err != nil {
			return cfg, err
		}
	}
	if !opts.SkipEnv {
		cfg.ApplyEnv()
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings no run can use.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.LibPath) == "" {
		errs = append(errs, errors.New("lib_path must not be empty"))
	}
	if c.Jobs < 0 {
		errs = append(errs, fmt.Errorf("jobs must be >= 0, got %d", c.Jobs))
	}
	for _, name := range slices.Concat(c.Libraries, c.ExtraLibraries) {
		if name == "" || strings.ContainsAny(name, `/\$`) {
			errs = append(errs, fmt.Errorf("invalid library name %q", name))
		}
	}
	return errors.Join(errs...)
}

// LibraryList returns Libraries followed by ExtraLibraries, without
// duplicates.
func (c Config) LibraryList() []string {
	out := make([]string, 0, len(c.Libraries)+len(c.ExtraLibraries))
	seen := make(map[string]struct{}, cap(out))
	for _, name := range slices.Concat(c.Libraries, c.ExtraLibraries) {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// IndexConfig derives the symbol index settings.
func (c Config) IndexConfig() symindex.Config {
	return symindex.Config{
		Dir:       c.LibPath,
		Libraries: c.LibraryList(),
		Jobs:      c.Jobs,
		NoMmap:    c.NoMmap,
	}
}

// WriteTOML prints the settings in bofpass.toml syntax.
func (c Config) WriteTOML(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
