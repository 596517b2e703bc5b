package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"bofpass/internal/config"
	"bofpass/internal/ir"
	"bofpass/internal/observ"
	"bofpass/internal/pipeline"
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite [flags] <module.bir|module.bmod>...",
	Short: "Rename the external calls of IR modules",
	Long: `Rewrite loads the configured static libraries once, then renames every direct
call whose target one of them defines to <library>$<symbol>. Memory intrinsics
become msvcrt$memcpy, msvcrt$memset and msvcrt$memmove.

A single module is written to stdout unless --out-dir or --in-place is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRewrite,
}

func init() {
	rewriteCmd.Flags().StringP("out-dir", "o", "", "directory for the rewritten modules")
	rewriteCmd.Flags().BoolP("in-place", "i", false, "overwrite the input modules")
	rewriteCmd.Flags().String("emit", "", "output format (text|binary); default keeps the input format")
	rewriteCmd.Flags().Bool("stats", false, "print per-module rename statistics")
	rewriteCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
	rewriteCmd.Flags().Bool("validate", false, "check modules before and after renaming")
	rewriteCmd.Flags().Int("jobs", 0, "max parallel workers (0=config or auto)")
}

// runRewrite executes the "rewrite" command. Per-module failures do not stop
// the other modules; the command fails if any module failed.
func runRewrite(cmd *cobra.Command, args []string) error {
	timer := observ.NewTimer()
	var cfg config.Config
	if err := timer.Measure("config", func() error {
		var err error
		cfg, err = loadSettings(cmd)
		return err
	}); err != nil {
		return err
	}

	outDir, err := cmd.Flags().GetString("out-dir")
	if err != nil {
		return fmt.Errorf("failed to get out-dir flag: %w", err)
	}
	inPlace, err := cmd.Flags().GetBool("in-place")
	if err != nil {
		return fmt.Errorf("failed to get in-place flag: %w", err)
	}
	emitStr, err := cmd.Flags().GetString("emit")
	if err != nil {
		return fmt.Errorf("failed to get emit flag: %w", err)
	}
	showStats, err := cmd.Flags().GetBool("stats")
	if err != nil {
		return fmt.Errorf("failed to get stats flag: %w", err)
	}
	uiStr, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	validate, err := cmd.Flags().GetBool("validate")
	if err != nil {
		return fmt.Errorf("failed to get validate flag: %w", err)
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return fmt.Errorf("failed to get jobs flag: %w", err)
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	mode, err := readUIMode(uiStr)
	if err != nil {
		return err
	}
	if inPlace && outDir != "" {
		return fmt.Errorf("--in-place and --out-dir are mutually exclusive")
	}
	if jobs > 0 {
		cfg.Jobs = jobs
	}

	req := &pipeline.Request{
		Files:    args,
		OutDir:   outDir,
		InPlace:  inPlace,
		Stdout:   cmd.OutOrStdout(),
		Config:   cfg,
		Reporter: newReporter(cmd, cfg),
		Validate: validate,
	}
	if emitStr != "" {
		format, err := ir.ParseFormat(emitStr)
		if err != nil {
			return err
		}
		req.Emit = &format
	}
	if req.BaseDir, err = os.Getwd(); err != nil {
		return err
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	// the progress UI owns the terminal, so it never runs while modules go to stdout
	toStdout := outDir == "" && !inPlace
	phase := timer.Begin("pipeline")
	var res pipeline.Result
	if !toStdout && shouldUseTUI(mode) {
		names, nerr := pipeline.DisplayNames(args, req.BaseDir)
		if nerr != nil {
			return nerr
		}
		res, err = runRewriteWithUI(cmd.Context(), "bofpass rewrite", names, req)
	} else {
		res, err = pipeline.Run(cmd.Context(), req)
	}
	timer.End(phase, fmt.Sprintf("%d modules", len(args)))

	errOut := cmd.ErrOrStderr()
	warnFailures(cmd, cfg, res.Failures)
	if showStats {
		printRewriteStats(errOut, res)
	}
	if showTimings {
		printStageTimings(errOut, res.Timings)
		fmt.Fprint(errOut, timer.Summary())
	}
	return err
}

func printRewriteStats(out io.Writer, res pipeline.Result) {
	if len(res.Files) == 0 {
		return
	}
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Module", "Calls", "Renamed", "Builtins", "Skipped", "Unresolved", "Indirect", "Time"})
	for _, f := range res.Files {
		if f.Err != nil {
			table.Append([]string{f.File, "error", "", "", "", "", "", formatElapsed(f.Elapsed)})
			continue
		}
		table.Append(statsRow(f.File, f.Stats.Calls, f.Stats.Rewritten, f.Stats.Builtins, f.Stats.Skipped, f.Stats.Unresolved, f.Stats.Indirect, formatElapsed(f.Elapsed)))
	}
	s := res.Stats
	table.SetFooter(statsRow("total", s.Calls, s.Rewritten, s.Builtins, s.Skipped, s.Unresolved, s.Indirect, ""))
	table.Render()
}

func statsRow(name string, calls, renamed, builtins, skipped, unresolved, indirect int, elapsed string) []string {
	return []string{
		name,
		strconv.Itoa(calls),
		strconv.Itoa(renamed),
		strconv.Itoa(builtins),
		strconv.Itoa(skipped),
		strconv.Itoa(unresolved),
		strconv.Itoa(indirect),
		elapsed,
	}
}

func formatElapsed(d time.Duration) string {
	return fmt.Sprintf("%.1f ms", toMillis(d))
}
