package ir

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// SyntaxError locates a problem in a text module.
type SyntaxError struct {
	File string
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// ParseFile reads a text module from disk.
func ParseFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(bytes.NewReader(data))
	var se *SyntaxError
	if errors.As(err, &se) {
		se.File = path
	}
	return m, err
}

// Parse reads the text format written by Dump.
func Parse(r io.Reader) (*Module, error) {
	p := &parser{m: &Module{}}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<24)
	for sc.Scan() {
		p.line++
		if err := p.parseLine(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if p.fn != nil {
		return nil, p.errorf("unterminated definition of @%s", p.fn.Name)
	}
	if !p.sawModule {
		return nil, p.errorf("missing module header")
	}
	return p.m, nil
}

type parser struct {
	m         *Module
	line      int
	sawModule bool
	fn        *Func // definition being read
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseLine(raw string) error {
	text := strings.TrimSpace(raw)
	if text == "" || strings.HasPrefix(text, ";") {
		return nil
	}
	if p.fn != nil {
		return p.parseBodyLine(text)
	}
	s := &scanner{src: text}
	kw := s.word()
	switch kw {
	case "module":
		if p.sawModule {
			return p.errorf("duplicate module header")
		}
		name, err := s.name()
		if err != nil {
			return p.errorf("module name: %v", err)
		}
		p.m.Name = name
		p.sawModule = true
	case "declare", "define":
		if !p.sawModule {
			return p.errorf("%s before module header", kw)
		}
		return p.parseHeader(kw == "define", s)
	default:
		return p.errorf("unexpected %q", kw)
	}
	if !s.done() {
		return p.errorf("trailing text %q", s.rest())
	}
	return nil
}

func (p *parser) parseHeader(define bool, s *scanner) error {
	d := &Decl{Defined: define}
	tok := s.word()
	if st, ok := ParseStorage(tok); ok {
		d.Storage = st
		tok = s.word()
	}
	if cc, ok := ParseCallConv(tok); ok {
		d.CallConv = cc
		tok = s.word()
	}
	if tok == "" {
		return p.errorf("missing result type")
	}
	d.Sig.Result = Type(tok)
	if !s.consume('@') {
		return p.errorf("expected @name after result type")
	}
	name, err := s.name()
	if err != nil {
		return p.errorf("function name: %v", err)
	}
	d.Name = name
	if _, dup := p.m.Decl(name); dup {
		return p.errorf("@%s declared twice", name)
	}
	items, err := s.parenList()
	if err != nil {
		return p.errorf("@%s parameters: %v", name, err)
	}
	var params []Param
	for i, item := range items {
		if item == "..." {
			if i != len(items)-1 {
				return p.errorf("@%s: '...' must be last", name)
			}
			d.Sig.Variadic = true
			continue
		}
		ps := &scanner{src: item}
		typ := ps.word()
		if typ == "" {
			return p.errorf("@%s: empty parameter", name)
		}
		d.Sig.Params = append(d.Sig.Params, Type(typ))
		if !define {
			if !ps.done() {
				return p.errorf("@%s: declarations take bare types, got %q", name, item)
			}
			continue
		}
		if !ps.consume('%') {
			return p.errorf("@%s: parameter %q needs a %%name", name, item)
		}
		pname, err := ps.name()
		if err != nil {
			return p.errorf("@%s: parameter name: %v", name, err)
		}
		params = append(params, Param{Name: pname, Type: Type(typ)})
	}
	if define {
		if !s.consume('{') {
			return p.errorf("@%s: expected '{'", name)
		}
		p.fn = &Func{Name: name, Params: params}
	}
	if !s.done() {
		return p.errorf("trailing text %q", s.rest())
	}
	p.m.Decls = append(p.m.Decls, d)
	return nil
}

func (p *parser) parseBodyLine(text string) error {
	if text == "}" {
		p.m.Funcs = append(p.m.Funcs, p.fn)
		p.fn = nil
		return nil
	}
	if label, ok := p.label(text); ok {
		p.fn.Blocks = append(p.fn.Blocks, Block{Label: label})
		return nil
	}
	if len(p.fn.Blocks) == 0 {
		return p.errorf("@%s: instruction before the first label", p.fn.Name)
	}
	in, err := parseInstr(text)
	if err != nil {
		return p.errorf("%v", err)
	}
	b := &p.fn.Blocks[len(p.fn.Blocks)-1]
	b.Instrs = append(b.Instrs, in)
	return nil
}

// label recognises "name:" lines.
func (p *parser) label(text string) (string, bool) {
	if !strings.HasSuffix(text, ":") {
		return "", false
	}
	s := &scanner{src: strings.TrimSuffix(text, ":")}
	name, err := s.name()
	if err != nil || !s.done() {
		return "", false
	}
	return name, true
}

func parseInstr(text string) (Instr, error) {
	s := &scanner{src: text}
	var dst string
	if s.peek() == '%' {
		save := s.pos
		s.pos++
		name, err := s.name()
		s.skipSpace()
		if err != nil || !s.consume('=') {
			// not an assignment of a call; keep verbatim
			s.pos = save
			return Other(text), nil
		}
		dst = name
	}
	if s.word() != "call" {
		return Other(text), nil
	}
	kind := CalleeSym
	switch {
	case s.consume('@'):
	case s.consume('%'):
		kind = CalleeValue
	default:
		// typed or attributed calls are not interpreted
		return Other(text), nil
	}
	name, err := s.name()
	if err != nil {
		return Instr{}, fmt.Errorf("callee: %v", err)
	}
	args, err := s.parenList()
	if err != nil {
		return Instr{}, fmt.Errorf("call to %s: %v", name, err)
	}
	if !s.done() {
		return Instr{}, fmt.Errorf("trailing text %q after call", s.rest())
	}
	return Instr{Kind: InstrCall, Call: CallInstr{Dst: dst, Callee: Callee{Kind: kind, Name: name}, Args: args}}, nil
}

type scanner struct {
	src string
	pos int
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.src) && (s.src[s.pos] == ' ' || s.src[s.pos] == '\t') {
		s.pos++
	}
}

func (s *scanner) done() bool {
	s.skipSpace()
	return s.pos >= len(s.src)
}

func (s *scanner) rest() string { return s.src[s.pos:] }

func (s *scanner) peek() byte {
	s.skipSpace()
	if s.pos >= len(s.src) {
		return 0
	}
	return s.src[s.pos]
}

func (s *scanner) consume(c byte) bool {
	if s.peek() == c {
		s.pos++
		return true
	}
	return false
}

// word reads up to the next space or punctuation.
func (s *scanner) word() string {
	s.skipSpace()
	start := s.pos
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if c == ' ' || c == '\t' || c == '(' || c == ')' || c == ',' || c == '@' || c == '%' || c == '{' {
			break
		}
		s.pos++
	}
	return s.src[start:s.pos]
}

// name reads a bare or Go-quoted name.
func (s *scanner) name() (string, error) {
	s.skipSpace()
	if s.pos < len(s.src) && s.src[s.pos] == '"' {
		quoted, err := strconv.QuotedPrefix(s.src[s.pos:])
		if err != nil {
			return "", fmt.Errorf("bad quoted name: %v", err)
		}
		s.pos += len(quoted)
		return strconv.Unquote(quoted)
	}
	start := s.pos
	for s.pos < len(s.src) && isPlainName(s.src[s.pos:s.pos+1]) {
		s.pos++
	}
	if start == s.pos {
		return "", fmt.Errorf("expected a name at %q", s.rest())
	}
	return s.src[start:s.pos], nil
}

// parenList reads "( item, item )" splitting on top-level commas. Quotes
// and nested brackets are kept intact.
func (s *scanner) parenList() ([]string, error) {
	if !s.consume('(') {
		return nil, fmt.Errorf("expected '('")
	}
	var (
		items []string
		depth int
		start = s.pos
	)
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch c {
		case '"':
			quoted, err := strconv.QuotedPrefix(s.src[s.pos:])
			if err != nil {
				return nil, fmt.Errorf("bad quoted text: %v", err)
			}
			s.pos += len(quoted)
			continue
		case '(', '[', '{', '<':
			depth++
		case ']', '}', '>':
			depth--
		case ')':
			if depth == 0 {
				last := strings.TrimSpace(s.src[start:s.pos])
				if last != "" || len(items) > 0 {
					if last == "" {
						return nil, fmt.Errorf("empty item")
					}
					items = append(items, last)
				}
				s.pos++
				return items, nil
			}
			depth--
		case ',':
			if depth == 0 {
				item := strings.TrimSpace(s.src[start:s.pos])
				if item == "" {
					return nil, fmt.Errorf("empty item")
				}
				items = append(items, item)
				start = s.pos + 1
			}
		}
		s.pos++
	}
	return nil, fmt.Errorf("missing ')'")
}
