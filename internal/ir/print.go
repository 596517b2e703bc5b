package ir

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// plain names are printed bare; everything else is Go-quoted
func isPlainName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_', c == '.', c == '$', c == '-':
		default:
			return false
		}
	}
	return true
}

// FormatName renders a global or local name for the text format.
func FormatName(s string) string {
	if isPlainName(s) {
		return s
	}
	return strconv.Quote(s)
}

// Dump writes m in the text format accepted by Parse.
func Dump(w io.Writer, m *Module) error {
	if w == nil || m == nil {
		return nil
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "module %s\n", FormatName(m.Name))
	for _, d := range m.Decls {
		bw.WriteByte('\n')
		if !d.Defined {
			fmt.Fprintf(bw, "declare %s@%s(%s)\n", declPrefix(d), FormatName(d.Name), paramTypes(d.Sig))
			continue
		}
		f, ok := m.Func(d.Name)
		if !ok {
			return fmt.Errorf("@%s: marked defined but has no body", d.Name)
		}
		dumpFunc(bw, d, f)
	}
	return bw.Flush()
}

// String renders m in the text format.
func (m *Module) String() string {
	var sb strings.Builder
	if err := Dump(&sb, m); err != nil {
		return "; " + err.Error()
	}
	return sb.String()
}

func declPrefix(d *Decl) string {
	var sb strings.Builder
	if d.Storage != StorageDefault {
		sb.WriteString(d.Storage.String())
		sb.WriteByte(' ')
	}
	if d.CallConv != CallConvC {
		sb.WriteString(d.CallConv.String())
		sb.WriteByte(' ')
	}
	sb.WriteString(string(d.Sig.Result))
	sb.WriteByte(' ')
	return sb.String()
}

func paramTypes(sig Signature) string {
	parts := make([]string, 0, len(sig.Params)+1)
	for _, p := range sig.Params {
		parts = append(parts, string(p))
	}
	if sig.Variadic {
		parts = append(parts, "...")
	}
	return strings.Join(parts, ", ")
}

func dumpFunc(w *bufio.Writer, d *Decl, f *Func) {
	parts := make([]string, 0, len(f.Params)+1)
	for _, p := range f.Params {
		parts = append(parts, string(p.Type)+" %"+FormatName(p.Name))
	}
	if d.Sig.Variadic {
		parts = append(parts, "...")
	}
	fmt.Fprintf(w, "define %s@%s(%s) {\n", declPrefix(d), FormatName(d.Name), strings.Join(parts, ", "))
	for _, b := range f.Blocks {
		fmt.Fprintf(w, "%s:\n", FormatName(b.Label))
		for _, in := range b.Instrs {
			w.WriteString("  ")
			w.WriteString(FormatInstr(in))
			w.WriteByte('\n')
		}
	}
	w.WriteString("}\n")
}

// FormatInstr renders one instruction.
func FormatInstr(in Instr) string {
	if in.Kind != InstrCall {
		return in.Text
	}
	c := in.Call
	var sb strings.Builder
	if c.Dst != "" {
		sb.WriteString("%" + FormatName(c.Dst) + " = ")
	}
	sb.WriteString("call ")
	if c.Callee.Kind == CalleeValue {
		sb.WriteByte('%')
	} else {
		sb.WriteByte('@')
	}
	sb.WriteString(FormatName(c.Callee.Name))
	sb.WriteByte('(')
	sb.WriteString(strings.Join(c.Args, ", "))
	sb.WriteByte(')')
	return sb.String()
}
