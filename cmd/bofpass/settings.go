package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"bofpass/internal/config"
	"bofpass/internal/diag"
	"bofpass/internal/symindex"
)

// loadSettings resolves the configuration: defaults, bofpass.toml,
// BOFPASS_* variables, then the global flags the user set explicitly.
func loadSettings(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Root().PersistentFlags()
	path, err := flags.GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(config.LoadOptions{Path: path, StartDir: wd})
	if err != nil {
		return cfg, fmt.Errorf("configuration: %w", err)
	}

	if flags.Changed("lib-path") {
		if cfg.LibPath, err = flags.GetString("lib-path"); err != nil {
			return cfg, fmt.Errorf("failed to get lib-path flag: %w", err)
		}
	}
	if flags.Changed("lib") {
		libs, err := flags.GetStringArray("lib")
		if err != nil {
			return cfg, fmt.Errorf("failed to get lib flag: %w", err)
		}
		cfg.Libraries = splitLibs(libs)
		cfg.ExtraLibraries = nil
	}
	for name, dst := range map[string]*bool{
		"enable-rename": &cfg.EnableRename,
		"verbose":       &cfg.Verbose,
		"no-mmap":       &cfg.NoMmap,
	} {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetBool(name); err != nil {
			return cfg, fmt.Errorf("failed to get %s flag: %w", name, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration: %w", err)
	}
	return cfg, nil
}

// splitLibs accepts both "--lib a --lib b" and "--lib a,b".
func splitLibs(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, config.SplitList(v)...)
	}
	return out
}

// newReporter attaches the [BOF] stream reporter in verbose mode. Without
// it diagnostics are dropped; rewriting behaves the same either way.
func newReporter(cmd *cobra.Command, cfg config.Config) diag.Reporter {
	if !cfg.Verbose {
		return diag.NopReporter{}
	}
	return diag.NewStreamReporter(cmd.ErrOrStderr(), diag.WithColor(!color.NoColor))
}

// openIndex builds and initializes the symbol index for a query command.
func openIndex(cmd *cobra.Command, cfg config.Config) (*symindex.Index, error) {
	ic := cfg.IndexConfig()
	ic.Reporter = newReporter(cmd, cfg)
	idx := symindex.New(ic)
	if err := idx.Init(cmd.Context()); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

// warnFailures summarizes libraries that could not be loaded. Verbose runs
// already printed each failure.
func warnFailures(cmd *cobra.Command, cfg config.Config, failures []symindex.Failure) {
	if cfg.Verbose || len(failures) == 0 {
		return
	}
	names := make([]string, len(failures))
	for i, f := range failures {
		names[i] = f.Library
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d libraries not loaded from %s: %s (use -v for details)\n",
		len(failures), cfg.LibPath, strings.Join(names, ", "))
}

func applyColorMode(cmd *cobra.Command) error {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		color.NoColor = color.NoColor || !isTerminal(os.Stderr)
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
	}
	return nil
}
