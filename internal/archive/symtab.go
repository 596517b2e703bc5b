package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"fortio.org/safecast"
)

// SymtabKind identifies the flavour of the archive symbol table.
type SymtabKind uint8

const (
	SymtabNone  SymtabKind = iota // archive carries no symbol table
	SymtabGNU                     // "/" with big-endian 32-bit offsets
	SymtabGNU64                   // "/SYM64/" with big-endian 64-bit offsets
	SymtabCOFF                    // second "/" linker member, little-endian, sorted
	SymtabBSD                     // "__.SYMDEF" ranlib table
	SymtabBSD64                   // "__.SYMDEF_64" ranlib table
)

func (k SymtabKind) String() string {
	switch k {
	case SymtabNone:
		return "none"
	case SymtabGNU:
		return "gnu"
	case SymtabGNU64:
		return "gnu64"
	case SymtabCOFF:
		return "coff"
	case SymtabBSD:
		return "bsd"
	case SymtabBSD64:
		return "bsd64"
	default:
		return "unknown"
	}
}

// Symbol is one symbol table entry: the name and the offset of the header
// of the member defining it.
type Symbol struct {
	Name   string
	Offset int
}

// sortSymbols orders entries by name. Stable, so for a name listed twice the
// first entry of the on-disk table wins lookups.
func sortSymbols(syms []Symbol) {
	sort.SliceStable(syms, func(i, j int) bool { return syms[i].Name < syms[j].Name })
}

// tableReader walks a symbol table body with bounds checking.
type tableReader struct {
	body  []byte
	pos   int
	order binary.ByteOrder
	base  int // archive offset of body, for error messages
}

func (r *tableReader) fail(format string, args ...any) error {
	return formatErrorf(r.base+r.pos, "symbol table: "+format, args...)
}

func (r *tableReader) u16() (uint16, error) {
	if len(r.body)-r.pos < 2 {
		return 0, r.fail("truncated")
	}
	v := r.order.Uint16(r.body[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *tableReader) u32() (int, error) {
	if len(r.body)-r.pos < 4 {
		return 0, r.fail("truncated")
	}
	v := r.order.Uint32(r.body[r.pos:])
	r.pos += 4
	n, err := safecast.Conv[int](v)
	if err != nil {
		return 0, r.fail("value %d: %v", v, err)
	}
	return n, nil
}

func (r *tableReader) u64() (int, error) {
	if len(r.body)-r.pos < 8 {
		return 0, r.fail("truncated")
	}
	v := r.order.Uint64(r.body[r.pos:])
	r.pos += 8
	n, err := safecast.Conv[int](v)
	if err != nil {
		return 0, r.fail("value %d: %v", v, err)
	}
	return n, nil
}

// word reads a 4- or 8-byte unsigned value.
func (r *tableReader) word(size int) (int, error) {
	if size == 8 {
		return r.u64()
	}
	return r.u32()
}

// need checks that count entries of width bytes fit in the remaining body.
func (r *tableReader) need(count, width int) error {
	if count < 0 || width <= 0 || count > (len(r.body)-r.pos)/width {
		return r.fail("%d entries of %d bytes do not fit in %d bytes", count, width, len(r.body)-r.pos)
	}
	return nil
}

// cstrings reads n NUL-terminated strings starting at the current position.
func (r *tableReader) cstrings(n int) ([]string, error) {
	names := make([]string, 0, n)
	rest := r.body[r.pos:]
	for i := 0; i < n; i++ {
		end := bytes.IndexByte(rest, 0)
		if end == -1 {
			return nil, r.fail("name %d of %d is not terminated", i+1, n)
		}
		names = append(names, string(rest[:end]))
		rest = rest[end+1:]
	}
	r.pos = len(r.body) - len(rest)
	return names, nil
}

// parseGNU reads a "/" or "/SYM64/" table: count, offsets[count], names.
func parseGNU(body []byte, base, wordSize int) ([]Symbol, error) {
	r := &tableReader{body: body, order: binary.BigEndian, base: base}
	count, err := r.word(wordSize)
	if err != nil {
		return nil, err
	}
	if err := r.need(count, wordSize); err != nil {
		return nil, err
	}
	offsets := make([]int, count)
	for i := range offsets {
		if offsets[i], err = r.word(wordSize); err != nil {
			return nil, err
		}
	}
	names, err := r.cstrings(count)
	if err != nil {
		return nil, err
	}
	syms := make([]Symbol, count)
	for i := range syms {
		syms[i] = Symbol{Name: names[i], Offset: offsets[i]}
	}
	return syms, nil
}

// parseCOFF reads the second linker member of a COFF import library:
// members, offsets[members], count, indices[count] (1-based), names.
func parseCOFF(body []byte, base int) ([]Symbol, error) {
	r := &tableReader{body: body, order: binary.LittleEndian, base: base}
	members, err := r.u32()
	if err != nil {
		return nil, err
	}
	if err := r.need(members, 4); err != nil {
		return nil, err
	}
	offsets := make([]int, members)
	for i := range offsets {
		if offsets[i], err = r.u32(); err != nil {
			return nil, err
		}
	}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	if err := r.need(count, 2); err != nil {
		return nil, err
	}
	indices := make([]uint16, count)
	for i := range indices {
		if indices[i], err = r.u16(); err != nil {
			return nil, err
		}
	}
	names, err := r.cstrings(count)
	if err != nil {
		return nil, err
	}
	syms := make([]Symbol, count)
	for i := range syms {
		idx := int(indices[i])
		if idx == 0 || idx > members {
			return nil, r.fail("member index %d out of range 1..%d", idx, members)
		}
		syms[i] = Symbol{Name: names[i], Offset: offsets[idx-1]}
	}
	return syms, nil
}

// parseBSD reads a "__.SYMDEF" table: ranlib byte size, {strx, off}...,
// string table size, string table. All little-endian.
func parseBSD(body []byte, base, wordSize int) ([]Symbol, error) {
	r := &tableReader{body: body, order: binary.LittleEndian, base: base}
	ranlibSize, err := r.word(wordSize)
	if err != nil {
		return nil, err
	}
	entrySize := 2 * wordSize
	if ranlibSize%entrySize != 0 {
		return nil, r.fail("ranlib size %d is not a multiple of %d", ranlibSize, entrySize)
	}
	count := ranlibSize / entrySize
	if err := r.need(count, entrySize); err != nil {
		return nil, err
	}
	type ranlib struct{ strx, off int }
	entries := make([]ranlib, count)
	for i := range entries {
		if entries[i].strx, err = r.word(wordSize); err != nil {
			return nil, err
		}
		if entries[i].off, err = r.word(wordSize); err != nil {
			return nil, err
		}
	}
	strSize, err := r.word(wordSize)
	if err != nil {
		return nil, err
	}
	if err := r.need(strSize, 1); err != nil {
		return nil, err
	}
	strtab := body[r.pos : r.pos+strSize]
	syms := make([]Symbol, count)
	for i, e := range entries {
		if e.strx >= len(strtab) {
			return nil, r.fail("string index %d outside %d-byte string table", e.strx, len(strtab))
		}
		name := strtab[e.strx:]
		if end := bytes.IndexByte(name, 0); end != -1 {
			name = name[:end]
		}
		syms[i] = Symbol{Name: string(name), Offset: e.off}
	}
	return syms, nil
}

// classifyTable maps a special member name to the table flavour it holds.
func classifyTable(name string) (SymtabKind, bool) {
	switch name {
	case "/":
		return SymtabGNU, true
	case "/SYM64/":
		return SymtabGNU64, true
	case "__.SYMDEF", "__.SYMDEF SORTED":
		return SymtabBSD, true
	case "__.SYMDEF_64", "__.SYMDEF_64 SORTED":
		return SymtabBSD64, true
	}
	return SymtabNone, false
}

func parseTable(kind SymtabKind, body []byte, base int) ([]Symbol, error) {
	switch kind {
	case SymtabGNU:
		return parseGNU(body, base, 4)
	case SymtabGNU64:
		return parseGNU(body, base, 8)
	case SymtabCOFF:
		return parseCOFF(body, base)
	case SymtabBSD:
		return parseBSD(body, base, 4)
	case SymtabBSD64:
		return parseBSD(body, base, 8)
	}
	return nil, fmt.Errorf("unsupported symbol table kind %s", kind)
}
