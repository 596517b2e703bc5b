package testkit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// Format selects the symbol table flavour written by BuildArchive.
type Format uint8

const (
	FormatGNU Format = iota
	FormatGNU64
	FormatCOFF
	FormatBSD
	FormatBSD64
	FormatNone // no symbol table at all
)

// Object is one regular archive member and the symbols it defines.
type Object struct {
	Name    string
	Symbols []string
	Body    []byte // defaults to a short placeholder
}

// ArchiveSpec describes a synthetic static library.
type ArchiveSpec struct {
	Format  Format
	Thin    bool
	Objects []Object
	// NULNames ends "//" table entries with NUL the way MSVC lib.exe does.
	NULNames bool
}

// Lib is shorthand for a GNU archive with one object per symbol group.
func Lib(symbols ...string) ArchiveSpec {
	return ArchiveSpec{Objects: []Object{{Name: "obj0.o", Symbols: symbols}}}
}

type symRef struct {
	name string
	obj  int
}

type arMember struct {
	name string // header name field, unpadded
	body []byte // full body including a BSD inline name
	thin bool   // body is not stored in the file
}

func (m arMember) encodedLen() int {
	n := 60
	if !m.thin {
		n += len(m.body) + len(m.body)%2
	}
	return n
}

// BuildArchive encodes spec in ar format.
func BuildArchive(spec ArchiveSpec) ([]byte, error) {
	bsd := spec.Format == FormatBSD || spec.Format == FormatBSD64
	if bsd && spec.Thin {
		return nil, fmt.Errorf("thin archives use GNU naming")
	}

	var refs []symRef
	for i, obj := range spec.Objects {
		for _, s := range obj.Symbols {
			refs = append(refs, symRef{name: s, obj: i})
		}
	}

	// regular members and the GNU long-name table
	var longNames bytes.Buffer
	objs := make([]arMember, len(spec.Objects))
	for i, obj := range spec.Objects {
		body := obj.Body
		if body == nil {
			body = []byte("OBJ:" + obj.Name)
		}
		m := arMember{body: body, thin: spec.Thin}
		switch {
		case bsd && (len(obj.Name) > 16 || strings.ContainsAny(obj.Name, " /")):
			m.name = fmt.Sprintf("#1/%d", len(obj.Name))
			m.body = append([]byte(obj.Name), body...)
		case bsd:
			m.name = obj.Name
		case len(obj.Name) > 15 || spec.Thin:
			m.name = fmt.Sprintf("/%d", longNames.Len())
			longNames.WriteString(obj.Name)
			if spec.NULNames {
				longNames.WriteByte(0)
			} else {
				longNames.WriteString("/\n")
			}
		default:
			m.name = obj.Name + "/"
		}
		objs[i] = m
	}

	// table sizes depend only on names, so lay out with zero offsets first
	tables, err := symbolTables(spec.Format, refs, make([]int, len(objs)), len(objs))
	if err != nil {
		return nil, err
	}
	off := len("!<arch>\n")
	for _, t := range tables {
		off += t.encodedLen()
	}
	var strtab *arMember
	if longNames.Len() > 0 {
		strtab = &arMember{name: "//", body: longNames.Bytes()}
		off += strtab.encodedLen()
	}
	offsets := make([]int, len(objs))
	for i, m := range objs {
		offsets[i] = off
		off += m.encodedLen()
	}
	if tables, err = symbolTables(spec.Format, refs, offsets, len(objs)); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if spec.Thin {
		buf.WriteString("!<thin>\n")
	} else {
		buf.WriteString("!<arch>\n")
	}
	all := append([]arMember{}, tables...)
	if strtab != nil {
		all = append(all, *strtab)
	}
	all = append(all, objs...)
	for _, m := range all {
		if err := writeMember(&buf, m); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// MustBuildArchive is BuildArchive that panics on error.
func MustBuildArchive(spec ArchiveSpec) []byte {
	data, err := BuildArchive(spec)
	if err != nil {
		panic(err)
	}
	return data
}

// WriteLibrary writes spec to <dir>/lib<name>.a and returns the path.
func WriteLibrary(tb testing.TB, dir, name string, spec ArchiveSpec) string {
	tb.Helper()
	data, err := BuildArchive(spec)
	if err != nil {
		tb.Fatalf("build archive %s: %v", name, err)
	}
	path := filepath.Join(dir, "lib"+name+".a")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		tb.Fatalf("write archive %s: %v", name, err)
	}
	return path
}

func writeMember(buf *bytes.Buffer, m arMember) error {
	if len(m.name) > 16 {
		return fmt.Errorf("member name %q does not fit header", m.name)
	}
	fmt.Fprintf(buf, "%-16s%-12s%-6s%-6s%-8s%-10d`\n", m.name, "0", "0", "0", "644", len(m.body))
	if m.thin {
		return nil
	}
	buf.Write(m.body)
	if len(m.body)%2 == 1 {
		buf.WriteByte('\n')
	}
	return nil
}

func symbolTables(format Format, refs []symRef, offsets []int, members int) ([]arMember, error) {
	switch format {
	case FormatNone:
		return nil, nil
	case FormatGNU:
		return []arMember{{name: "/", body: gnuTable(refs, offsets, 4)}}, nil
	case FormatGNU64:
		return []arMember{{name: "/SYM64/", body: gnuTable(refs, offsets, 8)}}, nil
	case FormatCOFF:
		return []arMember{
			{name: "/", body: gnuTable(refs, offsets, 4)},
			{name: "/", body: coffTable(refs, offsets, members)},
		}, nil
	case FormatBSD:
		return []arMember{bsdTable("__.SYMDEF SORTED", refs, offsets, 4)}, nil
	case FormatBSD64:
		return []arMember{bsdTable("__.SYMDEF_64", refs, offsets, 8)}, nil
	}
	return nil, fmt.Errorf("unknown format %d", format)
}

func putWord(buf *bytes.Buffer, order binary.ByteOrder, size, v int) {
	if size == 8 {
		_ = binary.Write(buf, order, uint64(v))
		return
	}
	_ = binary.Write(buf, order, uint32(v))
}

func gnuTable(refs []symRef, offsets []int, size int) []byte {
	var buf bytes.Buffer
	putWord(&buf, binary.BigEndian, size, len(refs))
	for _, r := range refs {
		putWord(&buf, binary.BigEndian, size, offsets[r.obj])
	}
	for _, r := range refs {
		buf.WriteString(r.name)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func coffTable(refs []symRef, offsets []int, members int) []byte {
	sorted := append([]symRef{}, refs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })
	var buf bytes.Buffer
	putWord(&buf, binary.LittleEndian, 4, members)
	for i := 0; i < members; i++ {
		putWord(&buf, binary.LittleEndian, 4, offsets[i])
	}
	putWord(&buf, binary.LittleEndian, 4, len(sorted))
	for _, r := range sorted {
		_ = binary.Write(&buf, binary.LittleEndian, uint16(r.obj+1))
	}
	for _, r := range sorted {
		buf.WriteString(r.name)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func bsdTable(name string, refs []symRef, offsets []int, size int) arMember {
	var strs bytes.Buffer
	strx := make([]int, len(refs))
	for i, r := range refs {
		strx[i] = strs.Len()
		strs.WriteString(r.name)
		strs.WriteByte(0)
	}
	for strs.Len()%size != 0 {
		strs.WriteByte(0)
	}
	var buf bytes.Buffer
	// inline name padded with NULs to a multiple of 4
	inline := []byte(name)
	for len(inline)%4 != 0 || len(inline) == len(name) {
		inline = append(inline, 0)
	}
	buf.Write(inline)
	putWord(&buf, binary.LittleEndian, size, len(refs)*2*size)
	for i, r := range refs {
		putWord(&buf, binary.LittleEndian, size, strx[i])
		putWord(&buf, binary.LittleEndian, size, offsets[r.obj])
	}
	putWord(&buf, binary.LittleEndian, size, strs.Len())
	buf.Write(strs.Bytes())
	return arMember{name: fmt.Sprintf("#1/%d", len(inline)), body: buf.Bytes()}
}
