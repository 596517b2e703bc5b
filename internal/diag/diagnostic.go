package diag

// Diagnostic is a single finding. Subject names what the finding is about:
// a library, a symbol, a function or a module file.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Subject  string
	Message  string
	Notes    []string
}

// WithNote returns a copy of d with an extra note appended.
func (d Diagnostic) WithNote(note string) Diagnostic {
	notes := make([]string, 0, len(d.Notes)+1)
	notes = append(notes, d.Notes...)
	d.Notes = append(notes, note)
	return d
}
