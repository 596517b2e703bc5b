// Package trace records where bofpass spends its time.
//
// Tracing is independent of verbose diagnostics: diagnostics say what the
// rewriter decided, trace events say when each stage, archive load and
// function walk started and ended.
//
// # Usage
//
//	bofpass rewrite --trace=- --trace-level=unit demo.bir
//
// # Tracers
//
//   - Nop: zero-overhead default
//   - StreamTracer: immediate write (file or stderr), text or NDJSON
//   - RingTracer: last N events in memory, dumped on failure
//   - MultiTracer: fan-out
//
// # Scopes and levels
//
// ScopeTool (CLI command) < ScopeStage (index, load, rewrite, write) <
// ScopeUnit (one archive or one module file) < ScopeFunc (one function walk).
// LevelStage emits up to ScopeStage, LevelUnit up to ScopeUnit, LevelDebug
// emits everything.
//
// # Context propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopeStage, "index", 0)
//	defer span.End("")
package trace
