package trace

import "time"

// Kind represents the type of trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
)

func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	default:
		return "unknown"
	}
}

// Scope indicates the granularity of the event.
// Lower values are coarser.
type Scope uint8

const (
	ScopeTool  Scope = iota + 1 // CLI command
	ScopeStage                  // index, load, rewrite, write
	ScopeUnit                   // one archive or one module file
	ScopeFunc                   // one function walk
)

func (s Scope) String() string {
	switch s {
	case ScopeTool:
		return "tool"
	case ScopeStage:
		return "stage"
	case ScopeUnit:
		return "unit"
	case ScopeFunc:
		return "func"
	default:
		return "unknown"
	}
}

// Event represents a single trace event.
type Event struct {
	Time     time.Time
	Seq      uint64
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64 // 0 for roots
	Name     string // e.g. "index", "archive:kernel32", "func:main"
	Detail   string
	Extra    map[string]string
}
