package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"bofpass/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "bofpass",
	Short: "Rename external calls to library-qualified imports",
	Long: `bofpass resolves the direct call targets of IR modules against static
libraries (<lib-path>/lib<name>.a) and renames them to <library>$<symbol>
dllimport declarations, the form BOF loaders resolve at run time.`,
	SilenceUsage:      true,
	PersistentPreRunE: prepareRun,
}

// runCleanup stops the profilers and flushes the tracer installed by
// prepareRun.
var runCleanup = func(failed bool) {}

// main registers the subcommands and global flags, then executes the root
// command. A command error exits with status 1.
func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(rewriteCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	addGlobalFlags(rootCmd)

	err := rootCmd.Execute()
	runCleanup(err != nil)
	if err != nil {
		os.Exit(1)
	}
}

// addGlobalFlags registers the flags shared by every subcommand.
func addGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "path to bofpass.toml (default: searched upward from the working directory)")
	flags.StringP("lib-path", "L", "", "directory holding the lib<name>.a archives")
	flags.StringArray("lib", nil, "library to index, repeatable (replaces the configured list)")
	flags.Bool("enable-rename", true, "run the rename pass; on by default, unlike the compiler's -bren switch (=false copies modules unchanged)")
	flags.BoolP("verbose", "v", false, "print [BOF] diagnostics to stderr")
	flags.Bool("no-mmap", false, "read archives into memory instead of mapping them")
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.Bool("timings", false, "show timing information")
	flags.String("trace", "", "trace output file (- for stderr)")
	flags.String("trace-level", "off", "trace level (off|error|stage|unit|debug)")
	flags.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	flags.String("trace-format", "auto", "trace format (auto|text|ndjson)")
	flags.Int("trace-ring-size", 4096, "ring buffer capacity for --trace-mode ring|both")
	flags.String("cpu-profile", "", "write a CPU profile to this file")
	flags.String("mem-profile", "", "write a heap profile to this file")
	flags.String("runtime-trace", "", "write a Go runtime trace to this file")
}

func prepareRun(cmd *cobra.Command, _ []string) error {
	if err := applyColorMode(cmd); err != nil {
		return err
	}
	profiles, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	traceCleanup, err := setupTracing(cmd)
	if err != nil {
		_ = profiles.Stop()
		return err
	}
	runCleanup = func(failed bool) {
		traceCleanup(failed)
		if err := profiles.Stop(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "profile: %v\n", err)
		}
	}
	return nil
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
