package diag

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

var (
	infoColor  = color.New(color.FgCyan)
	warnColor  = color.New(color.FgYellow, color.Bold)
	errorColor = color.New(color.FgRed, color.Bold)
)

// StreamReporter renders diagnostics as verbose log lines:
//
//	[BOF] INFO - renamed Sleep to kernel32$Sleep
//	[BOF] WARN - failed to resolve llvm function: llvm.trap
type StreamReporter struct {
	mu    sync.Mutex
	w     io.Writer
	tag   string
	color bool
	codes bool
}

// StreamOption tweaks a StreamReporter.
type StreamOption func(*StreamReporter)

// WithColor toggles ANSI colouring of the severity label.
func WithColor(on bool) StreamOption {
	return func(r *StreamReporter) { r.color = on }
}

// WithCodes appends the diagnostic code ID to each line.
func WithCodes(on bool) StreamOption {
	return func(r *StreamReporter) { r.codes = on }
}

// WithTag replaces the default "BOF" line tag.
func WithTag(tag string) StreamOption {
	return func(r *StreamReporter) { r.tag = tag }
}

func NewStreamReporter(w io.Writer, opts ...StreamOption) *StreamReporter {
	r := &StreamReporter{w: w, tag: "BOF"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *StreamReporter) Report(code Code, sev Severity, subject, msg string, notes []string) {
	if r == nil || r.w == nil {
		return
	}
	label := sev.String()
	if r.color {
		label = severityColor(sev).Sprint(label)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s - %s", r.tag, label, msg)
	if r.codes {
		fmt.Fprintf(&b, " [%s]", code.ID())
	}
	b.WriteByte('\n')
	for _, note := range notes {
		fmt.Fprintf(&b, "      note: %s\n", note)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// verbose output is best-effort
	_, _ = io.WriteString(r.w, b.String())
}

func severityColor(sev Severity) *color.Color {
	switch sev {
	case SevWarning:
		return warnColor
	case SevError:
		return errorColor
	default:
		return infoColor
	}
}
