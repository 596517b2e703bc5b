package diag

// Severity defines the importance of a diagnostic.
type Severity uint8

const (
	// SevInfo is for informational diagnostics (library loaded, symbol renamed).
	SevInfo Severity = iota
	// SevWarning is for conditions that degrade resolution but never abort it.
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "INFO"
	case SevWarning:
		return "WARN"
	case SevError:
		return "ERROR"
	}
	return "UNKNOWN"
}
