package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

const (
	// Magic opens a regular ar archive.
	Magic = "!<arch>\n"
	// ThinMagic opens a thin archive whose members live outside the file.
	ThinMagic = "!<thin>\n"

	headerSize = 60
	headerFmag = "`\n"
)

// Header is the fixed 60-byte member header.
type Header struct {
	Name [16]byte
	Date [12]byte
	UID  [6]byte
	GID  [6]byte
	Mode [8]byte
	Size [10]byte
	Fmag [2]byte
}

func readHeader(data []byte, off int) (Header, error) {
	var hdr Header
	if off < 0 || len(data)-off < headerSize {
		return hdr, formatErrorf(off, "truncated member header")
	}
	if err := binary.Read(bytes.NewReader(data[off:off+headerSize]), binary.LittleEndian, &hdr); err != nil {
		return hdr, formatErrorf(off, "unreadable member header: %v", err)
	}
	if string(hdr.Fmag[:]) != headerFmag {
		return hdr, formatErrorf(off, "bad member header terminator %q", hdr.Fmag[:])
	}
	return hdr, nil
}

func (h *Header) rawName() string {
	return strings.TrimRight(string(h.Name[:]), " ")
}

func (h *Header) startsWith(s string) bool {
	return strings.HasPrefix(string(h.Name[:]), s)
}

// size is the member body length as recorded in the header.
func (h *Header) size() (int, error) {
	text := strings.TrimSpace(string(h.Size[:]))
	v, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad member size %q", text)
	}
	n, err := safecast.Conv[int](v)
	if err != nil {
		return 0, fmt.Errorf("member size %d: %w", v, err)
	}
	return n, nil
}

// bsdNameLen returns N for a BSD "#1/N" header, where the real name is
// stored in the first N bytes of the body.
func (h *Header) bsdNameLen() (int, bool, error) {
	if !h.startsWith("#1/") {
		return 0, false, nil
	}
	text := strings.TrimSpace(string(h.Name[3:]))
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return 0, true, fmt.Errorf("bad BSD name length %q", text)
	}
	return n, true, nil
}

// member is one parsed archive entry.
type member struct {
	hdr    Header
	offset int    // header offset
	name   string // resolved member name
	body   []byte // body without a BSD inline name; nil for thin members
	size   int    // recorded size without a BSD inline name
	end    int    // offset following the body (unaligned)
}

// readMember parses the member whose header starts at off. strtab is the
// GNU long-name table ("//") seen so far. Thin archives do not store bodies
// for regular members, only for symbol and name tables.
func readMember(data []byte, off int, strtab []byte, thin bool) (*member, error) {
	hdr, err := readHeader(data, off)
	if err != nil {
		return nil, err
	}
	size, err := hdr.size()
	if err != nil {
		return nil, formatErrorf(off, "%v", err)
	}
	m := &member{hdr: hdr, offset: off, size: size}
	bodyStart := off + headerSize

	raw := hdr.rawName()
	special := raw == "/" || raw == "//" || raw == "/SYM64/" || strings.HasPrefix(raw, "__.SYMDEF")
	if thin && !special && !hdr.startsWith("#1/") {
		m.name, err = resolveName(&hdr, strtab)
		if err != nil {
			return nil, formatErrorf(off, "%v", err)
		}
		m.end = bodyStart
		return m, nil
	}

	if size > len(data)-bodyStart {
		return nil, formatErrorf(off, "member body of %d bytes exceeds archive", size)
	}
	body := data[bodyStart : bodyStart+size]
	m.end = bodyStart + size

	nameLen, isBSD, err := hdr.bsdNameLen()
	if err != nil {
		return nil, formatErrorf(off, "%v", err)
	}
	if isBSD {
		if nameLen > len(body) {
			return nil, formatErrorf(off, "BSD name longer than member body")
		}
		name := body[:nameLen]
		if end := bytes.IndexByte(name, 0); end != -1 {
			name = name[:end]
		}
		m.name = string(name)
		m.body = body[nameLen:]
		m.size = size - nameLen
		return m, nil
	}

	m.body = body
	if special {
		m.name = raw
		return m, nil
	}
	m.name, err = resolveName(&hdr, strtab)
	if err != nil {
		return nil, formatErrorf(off, "%v", err)
	}
	return m, nil
}

func resolveName(hdr *Header, strtab []byte) (string, error) {
	raw := hdr.rawName()
	// SysV / GNU long name: "/<offset into //>"
	if len(raw) > 1 && raw[0] == '/' {
		start, err := strconv.Atoi(strings.TrimSpace(raw[1:]))
		if err != nil {
			return "", fmt.Errorf("bad long name reference %q", raw)
		}
		if start < 0 || start >= len(strtab) {
			return "", fmt.Errorf("long name reference %d outside name table", start)
		}
		end := longNameEnd(strtab[start:])
		if end == -1 {
			return "", fmt.Errorf("unterminated long name at %d", start)
		}
		return string(strtab[start : start+end]), nil
	}
	// short name, GNU terminates with '/'
	if end := strings.IndexByte(raw, '/'); end != -1 {
		return raw[:end], nil
	}
	return raw, nil
}

// longNameEnd returns the length of the name at the start of rest. GNU ends
// names with "/\n", MSVC with NUL, and some SysV writers with a bare "\n".
func longNameEnd(rest []byte) int {
	end := -1
	for _, term := range [][]byte{[]byte("/\n"), {0}, {'\n'}} {
		if i := bytes.Index(rest, term); i != -1 && (end == -1 || i < end) {
			end = i
		}
	}
	return end
}
