package archive

import (
	"errors"
	"fmt"
)

// ErrorKind classifies archive load failures.
type ErrorKind uint8

const (
	// KindIO: the file is missing or unreadable.
	KindIO ErrorKind = iota + 1
	// KindFormat: the file exists but is not a well-formed archive.
	KindFormat
)

func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindFormat:
		return "format"
	default:
		return "unknown"
	}
}

var (
	// ErrIO matches every KindIO LoadError via errors.Is.
	ErrIO = errors.New("archive unreadable")
	// ErrFormat matches every KindFormat LoadError via errors.Is.
	ErrFormat = errors.New("archive malformed")
)

// LoadError reports why a library could not be loaded. It is never fatal:
// callers log it and treat the library as absent.
type LoadError struct {
	Kind    ErrorKind
	Library string
	Path    string
	Err     error
}

func (e *LoadError) Error() string {
	switch e.Kind {
	case KindIO:
		return fmt.Sprintf("failed to open %s: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("failed to load %s: %v", e.Path, e.Err)
	}
}

func (e *LoadError) Unwrap() []error {
	kind := ErrFormat
	if e.Kind == KindIO {
		kind = ErrIO
	}
	return []error{kind, e.Err}
}

// FormatError locates a structural problem inside an archive.
type FormatError struct {
	Offset int
	Msg    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("offset %d: %s", e.Offset, e.Msg)
}

func formatErrorf(off int, format string, args ...any) error {
	return &FormatError{Offset: off, Msg: fmt.Sprintf(format, args...)}
}
