// Package diag defines the diagnostic model shared by the archive loader, the
// symbol index and the call-site rewriter.
//
// # Purpose
//
//   - Give every non-fatal condition (missing archive, malformed symbol table,
//     unsupported intrinsic, unresolved symbol) a stable Code and Severity.
//   - Decouple producers from sinks: producers talk to a Reporter, the CLI
//     decides whether anything is printed.
//
// # Scope
//
// Nothing in this package changes resolution behaviour. A rewrite performed
// with a NopReporter must produce exactly the same module as one performed
// with a StreamReporter attached; diagnostics are observation only.
//
// # Emitting diagnostics
//
// Producers either call Reporter.Report directly or build a diagnostic with
// ReportInfo / ReportWarning / ReportError, chain WithNote and call Emit.
// BagReporter collects diagnostics for tests and summaries, StreamReporter
// renders verbose log lines, MultiReporter fans out to several sinks.
package diag
