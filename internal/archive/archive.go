package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"bofpass/internal/diag"
)

// ErrClosed is returned by Lookup after Close.
var ErrClosed = errors.New("archive closed")

// Member describes the archive entry defining a symbol.
type Member struct {
	Name   string
	Offset int
	Size   int
}

// Options tune Load.
type Options struct {
	// Reporter receives lookup warnings; nil discards them.
	Reporter diag.Reporter
	// NoMmap forces reading the whole file into memory.
	NoMmap bool
}

// Archive is a loaded static library. The symbol table is parsed once and
// never changes; the backing buffer stays alive until Close.
type Archive struct {
	Name string
	Path string
	Kind SymtabKind
	Thin bool

	data     []byte
	strtab   []byte
	symbols  []Symbol
	reporter diag.Reporter

	closeOnce sync.Once
	release   func() error
	closed    bool
}

// Path returns the conventional location of library name inside dir.
func Path(dir, name string) string {
	return filepath.Join(dir, "lib"+name+".a")
}

// Load opens <dir>/lib<name>.a and parses its symbol table. Any failure is
// returned as a *LoadError and no archive is produced.
func Load(dir, name string, opts Options) (*Archive, error) {
	path := Path(dir, name)
	var (
		data    []byte
		release func() error
		err     error
	)
	if opts.NoMmap {
		data, err = os.ReadFile(path)
	} else {
		data, release, err = mapFile(path)
	}
	if err != nil {
		return nil, &LoadError{Kind: KindIO, Library: name, Path: path, Err: err}
	}
	a, err := Parse(name, path, data)
	if err != nil {
		if release != nil {
			_ = release()
		}
		return nil, &LoadError{Kind: KindFormat, Library: name, Path: path, Err: err}
	}
	a.release = release
	a.reporter = opts.Reporter
	return a, nil
}

// Parse builds an archive over data, which must stay valid for the
// archive's lifetime. Parse does not take ownership of data.
func Parse(name, path string, data []byte) (*Archive, error) {
	a := &Archive{Name: name, Path: path, data: data}
	switch {
	case len(data) >= len(Magic) && string(data[:len(Magic)]) == Magic:
	case len(data) >= len(ThinMagic) && string(data[:len(ThinMagic)]) == ThinMagic:
		a.Thin = true
	default:
		return nil, formatErrorf(0, "not an archive (missing %q header)", Magic[:7])
	}

	seenLinker := false
	off := len(Magic)
	for off < len(data) {
		// a lone padding byte may trail the last member
		if len(data)-off < headerSize && isPadding(data[off:]) {
			break
		}
		hdr, err := readHeader(data, off)
		if err != nil {
			return nil, err
		}
		if !mayBeTable(&hdr) {
			// symbol and name tables precede every regular member
			break
		}
		m, err := readMember(data, off, a.strtab, a.Thin)
		if err != nil {
			return nil, err
		}
		if m.name == "//" {
			a.strtab = m.body
		} else if kind, ok := classifyTable(m.name); ok {
			// COFF import libraries carry two "/" members; the second is the
			// sorted little-endian one.
			if kind == SymtabGNU && seenLinker {
				kind = SymtabCOFF
			}
			if kind == SymtabGNU {
				seenLinker = true
			}
			syms, err := parseTable(kind, m.body, m.offset+headerSize)
			if err != nil {
				return nil, err
			}
			a.Kind = kind
			a.symbols = syms
		} else {
			// symbol and name tables precede every regular member
			break
		}
		off = m.end + m.end%2
	}
	sortSymbols(a.symbols)
	return a, nil
}

// mayBeTable reports whether hdr can introduce a symbol or name table.
// BSD tables hide their name in the body behind a "#1/N" header.
func mayBeTable(hdr *Header) bool {
	switch hdr.rawName() {
	case "/", "//", "/SYM64/":
		return true
	}
	return hdr.startsWith("#1/") || hdr.startsWith("__.SYMDEF")
}

func isPadding(rest []byte) bool {
	for _, b := range rest {
		if b != '\n' {
			return false
		}
	}
	return true
}

// HasSymbolTable reports whether the archive carried any symbol table.
func (a *Archive) HasSymbolTable() bool { return a.Kind != SymtabNone }

// Size is the byte length of the backing buffer.
func (a *Archive) Size() int { return len(a.data) }

// Len is the number of symbol table entries, duplicates included.
func (a *Archive) Len() int { return len(a.symbols) }

// search returns the index of the first entry named sym, or -1.
func (a *Archive) search(sym string) int {
	i := sort.Search(len(a.symbols), func(i int) bool { return a.symbols[i].Name >= sym })
	if i < len(a.symbols) && a.symbols[i].Name == sym {
		return i
	}
	return -1
}

// Lookup finds sym and validates the header of the member defining it.
// The boolean is false when the symbol is not listed; err is non-nil when it
// is listed but the member cannot be read.
func (a *Archive) Lookup(sym string) (Member, bool, error) {
	if a.closed {
		return Member{}, false, ErrClosed
	}
	i := a.search(sym)
	if i < 0 {
		return Member{}, false, nil
	}
	m, err := a.MemberAt(a.symbols[i].Offset)
	if err != nil {
		return Member{}, false, fmt.Errorf("member for %s: %w", sym, err)
	}
	return m, true, nil
}

// MemberAt reads the header of the member starting at off, as listed in a
// symbol table entry.
func (a *Archive) MemberAt(off int) (Member, error) {
	if a.closed {
		return Member{}, ErrClosed
	}
	m, err := readMember(a.data, off, a.strtab, a.Thin)
	if err != nil {
		return Member{}, err
	}
	return Member{Name: m.name, Offset: off, Size: m.size}, nil
}

// Find reports whether the archive defines sym. Matching is exact and
// case-sensitive. A listed symbol whose member is unreadable is reported
// as a warning and counts as not found.
func (a *Archive) Find(sym string) bool {
	_, ok, err := a.Lookup(sym)
	if err != nil {
		diag.ReportWarning(a.reporter, diag.ArchiveLookup, a.Name,
			fmt.Sprintf("failed to look up symbol %s: %v", sym, err)).
			WithNote("library " + a.Path).
			Emit()
		return false
	}
	return ok
}

// Symbols returns the sorted, de-duplicated symbol names.
func (a *Archive) Symbols() []string {
	out := make([]string, 0, len(a.symbols))
	for i, s := range a.symbols {
		if i > 0 && a.symbols[i-1].Name == s.Name {
			continue
		}
		out = append(out, s.Name)
	}
	return out
}

// Entries returns a copy of the sorted symbol table.
func (a *Archive) Entries() []Symbol {
	out := make([]Symbol, len(a.symbols))
	copy(out, a.symbols)
	return out
}

// Close releases the backing buffer. Lookups after Close fail.
func (a *Archive) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.closed = true
		if a.release != nil {
			err = a.release()
		}
		a.data = nil
	})
	return err
}
