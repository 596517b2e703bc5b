package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"bofpass/internal/config"
	"bofpass/internal/diag"
	"bofpass/internal/ir"
	"bofpass/internal/rewrite"
	"bofpass/internal/symindex"
	"bofpass/internal/trace"
)

// Request configures one run.
type Request struct {
	Files   []string
	BaseDir string

	// OutDir receives the outputs; InPlace overwrites the inputs. With
	// neither, a single file is written to Stdout.
	OutDir  string
	InPlace bool
	Stdout  io.Writer

	// Emit forces the output format; nil keeps each input's format.
	Emit *ir.Format

	Config   config.Config
	Index    *symindex.Index // optional; built from Config when nil
	Reporter diag.Reporter
	Progress ProgressSink

	// Validate checks every module before and after rewriting.
	Validate bool
}

// FileResult describes one processed file.
type FileResult struct {
	File    string // display name
	Input   string
	Output  string
	Stats   rewrite.Stats
	Err     error
	Elapsed time.Duration
}

// Result aggregates a run.
type Result struct {
	Files    []FileResult
	Stats    rewrite.Stats
	Timings  Timings
	Passes   []string
	Failures []symindex.Failure
}

// ErrNoOutput is returned when several files would go to stdout.
var ErrNoOutput = errors.New("several input files need an output directory or in-place mode")

// ErrInvalidModule wraps validation failures of a module file.
var ErrInvalidModule = errors.New("invalid module")

// Run processes req.Files. Files fail independently: the returned error
// joins every per-file failure, and Result still lists all files.
func Run(ctx context.Context, req *Request) (Result, error) {
	var result Result
	if req == nil {
		return result, fmt.Errorf("missing pipeline request")
	}
	if len(req.Files) > 1 && req.OutDir == "" && !req.InPlace {
		return result, ErrNoOutput
	}
	if req.OutDir == "" && !req.InPlace && req.Stdout == nil {
		return result, fmt.Errorf("no output destination")
	}
	names, err := DisplayNames(req.Files, req.BaseDir)
	if err != nil {
		return result, err
	}
	if req.OutDir != "" && !req.InPlace {
		if err := checkOutputCollisions(req.Files); err != nil {
			return result, err
		}
	}
	reporter := req.Reporter
	if reporter == nil {
		reporter = diag.NopReporter{}
	}

	ctx, span := trace.Start(ctx, trace.ScopeTool, "pipeline")
	defer span.End("")

	emitQueued(req.Progress, names)

	var fpm FunctionPassManager
	var pass *rewrite.Pass
	if req.Config.EnableRename {
		idx := req.Index
		if idx == nil {
			ic := req.Config.IndexConfig()
			ic.Reporter = reporter
			idx = symindex.New(ic)
			defer idx.Close()
		}
		start := time.Now()
		emitOverall(req.Progress, StageIndex, StatusWorking, nil, 0)
		if err := idx.Init(ctx); err != nil {
			emitOverall(req.Progress, StageIndex, StatusError, err, time.Since(start))
			return result, fmt.Errorf("symbol index: %w", err)
		}
		result.Timings.Set(StageIndex, time.Since(start))
		result.Failures = idx.Failures()
		emitOverall(req.Progress, StageIndex, StatusDone, nil, result.Timings.Duration(StageIndex))

		drv := rewrite.NewDriver(idx, rewrite.Options{Reporter: reporter, WarnAmbiguous: req.Config.WarnAmbiguous})
		pass = rewrite.NewPass(drv)
		fpm.Add(pass)
	} else {
		diag.ReportInfo(reporter, diag.RewriteDisabled, "", "function renaming is disabled; modules are copied unchanged").Emit()
	}
	result.Passes = fpm.Names()

	result.Files = make([]FileResult, len(req.Files))
	var (
		mu     sync.Mutex
		merr   *multierror.Error
		stdout sync.Mutex
	)
	jobs := req.Config.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, input := range req.Files {
		g.Go(func() error {
			fr := FileResult{File: names[i], Input: input}
			start := time.Now()
			timings := processFile(gctx, req, reporter, &fpm, pass, &fr, &stdout)
			fr.Elapsed = time.Since(start)

			mu.Lock()
			result.Files[i] = fr
			for stage, dur := range timings {
				result.Timings.Add(stage, dur)
			}
			if fr.Err != nil {
				merr = multierror.Append(merr, fmt.Errorf("%s: %w", fr.File, fr.Err))
			} else {
				result.Stats.Add(fr.Stats)
			}
			mu.Unlock()
			// per-file failures never cancel the other files
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, merr.ErrorOrNil()
}

// processFile runs load, rewrite and write for one file, recording the
// outcome in fr.
func processFile(ctx context.Context, req *Request, reporter diag.Reporter, fpm *FunctionPassManager, pass *rewrite.Pass, fr *FileResult, stdout *sync.Mutex) map[Stage]time.Duration {
	timings := make(map[Stage]time.Duration, 3)
	ctx, span := trace.Start(ctx, trace.ScopeUnit, fr.File)
	defer func() { span.End(errString(fr.Err)) }()

	stage := func(s Stage, fn func() error) bool {
		if fr.Err != nil {
			return false
		}
		if err := ctx.Err(); err != nil {
			fr.Err = err
			return false
		}
		start := time.Now()
		emitFile(req.Progress, fr.File, s, StatusWorking, nil, 0)
		err := fn()
		timings[s] = time.Since(start)
		if err != nil {
			fr.Err = err
			emitFile(req.Progress, fr.File, s, StatusError, err, timings[s])
			diag.ReportError(reporter, fileErrorCode(s, err), fr.File, err.Error()).Emit()
			return false
		}
		emitFile(req.Progress, fr.File, s, StatusDone, nil, timings[s])
		return true
	}

	var (
		m      *ir.Module
		format ir.Format
	)
	stage(StageLoad, func() error {
		var err error
		m, format, err = ir.ReadFile(fr.Input)
		if err != nil {
			return err
		}
		if req.Validate {
			if err := ir.Validate(m); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidModule, err)
			}
		}
		return nil
	})
	stage(StageRewrite, func() error {
		if err := fpm.Run(ctx, m); err != nil {
			return err
		}
		if pass != nil {
			fr.Stats = pass.ModuleStats(m)
		}
		if req.Validate {
			if err := ir.Validate(m); err != nil {
				return fmt.Errorf("%w after renaming: %w", ErrInvalidModule, err)
			}
		}
		return nil
	})
	stage(StageWrite, func() error {
		if req.Emit != nil {
			format = *req.Emit
		}
		if req.OutDir == "" && !req.InPlace {
			stdout.Lock()
			defer stdout.Unlock()
			fr.Output = "-"
			return ir.Write(req.Stdout, m, format)
		}
		fr.Output = outputPath(fr.Input, req.OutDir, req.InPlace, format.Ext())
		if err := ir.WriteFile(fr.Output, m, format); err != nil {
			return fmt.Errorf("write %s: %w", filepath.ToSlash(fr.Output), err)
		}
		return nil
	})
	return timings
}

// fileErrorCode classifies a per-file failure for diagnostics.
func fileErrorCode(s Stage, err error) diag.Code {
	var se *ir.SyntaxError
	switch {
	case errors.Is(err, ErrInvalidModule):
		return diag.ModuleInvalid
	case s == StageWrite:
		return diag.ModuleWrite
	case errors.As(err, &se), errors.Is(err, ir.ErrSchema):
		return diag.ModuleParse
	case s == StageLoad:
		return diag.ModuleRead
	}
	return diag.ModuleInfo
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
