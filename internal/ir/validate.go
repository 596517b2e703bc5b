package ir

import (
	"errors"
	"fmt"
)

// Validate checks module invariants and joins every violation found.
func Validate(m *Module) error {
	if m == nil {
		return nil
	}
	var errs []error

	decls := make(map[string]*Decl, len(m.Decls))
	for _, d := range m.Decls {
		if d == nil {
			errs = append(errs, errors.New("nil declaration"))
			continue
		}
		if d.Name == "" {
			errs = append(errs, errors.New("declaration without a name"))
			continue
		}
		if _, dup := decls[d.Name]; dup {
			errs = append(errs, fmt.Errorf("@%s: declared twice", d.Name))
			continue
		}
		decls[d.Name] = d
		if d.Defined && d.Storage == StorageDLLImport {
			errs = append(errs, fmt.Errorf("@%s: dllimport declaration has a body", d.Name))
		}
	}

	funcs := make(map[string]bool, len(m.Funcs))
	for _, f := range m.Funcs {
		if f == nil {
			errs = append(errs, errors.New("nil function"))
			continue
		}
		if funcs[f.Name] {
			errs = append(errs, fmt.Errorf("@%s: defined twice", f.Name))
		}
		funcs[f.Name] = true
		d, ok := decls[f.Name]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("@%s: definition without declaration", f.Name))
		case !d.Defined:
			errs = append(errs, fmt.Errorf("@%s: body for a declaration not marked defined", f.Name))
		case len(d.Sig.Params) != len(f.Params):
			errs = append(errs, fmt.Errorf("@%s: %d params, signature has %d", f.Name, len(f.Params), len(d.Sig.Params)))
		}
		if err := validateFunc(f, decls); err != nil {
			errs = append(errs, fmt.Errorf("function %s: %w", f.Name, err))
		}
	}
	for name, d := range decls {
		if d.Defined && !funcs[name] {
			errs = append(errs, fmt.Errorf("@%s: marked defined but has no body", name))
		}
	}
	return errors.Join(errs...)
}

func validateFunc(f *Func, decls map[string]*Decl) error {
	var errs []error
	labels := make(map[string]bool, len(f.Blocks))
	for bi, b := range f.Blocks {
		if b.Label == "" {
			errs = append(errs, fmt.Errorf("block %d: missing label", bi))
		} else if labels[b.Label] {
			errs = append(errs, fmt.Errorf("block %s: duplicate label", b.Label))
		}
		labels[b.Label] = true
		for ii, in := range b.Instrs {
			if in.Kind != InstrCall {
				continue
			}
			c := in.Call
			if c.Callee.Name == "" {
				errs = append(errs, fmt.Errorf("%s[%d]: call without callee", b.Label, ii))
				continue
			}
			if c.Callee.Kind != CalleeSym {
				continue
			}
			d, ok := decls[c.Callee.Name]
			if !ok {
				errs = append(errs, fmt.Errorf("%s[%d]: call to undeclared @%s", b.Label, ii, c.Callee.Name))
				continue
			}
			if !d.Sig.Variadic && len(c.Args) != len(d.Sig.Params) {
				errs = append(errs, fmt.Errorf("%s[%d]: @%s takes %d args, call passes %d", b.Label, ii, c.Callee.Name, len(d.Sig.Params), len(c.Args)))
			}
		}
	}
	return errors.Join(errs...)
}
