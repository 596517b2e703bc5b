package ir

// Decl is a function declaration. Defined declarations have a Func body
// with the same name.
type Decl struct {
	Name     string    `msgpack:"name"`
	Sig      Signature `msgpack:"sig"`
	CallConv CallConv  `msgpack:"cc,omitempty"`
	Storage  Storage   `msgpack:"storage,omitempty"`
	Defined  bool      `msgpack:"defined,omitempty"`
}

// Module is one compilation unit.
type Module struct {
	Name  string  `msgpack:"name"`
	Decls []*Decl `msgpack:"decls"`
	Funcs []*Func `msgpack:"funcs"`

	byName map[string]*Decl
}

// NewModule returns an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name}
}

func (m *Module) index() map[string]*Decl {
	if m.byName == nil || len(m.byName) != len(m.Decls) {
		m.byName = make(map[string]*Decl, len(m.Decls))
		for _, d := range m.Decls {
			if _, dup := m.byName[d.Name]; !dup {
				m.byName[d.Name] = d
			}
		}
	}
	return m.byName
}

// Decl returns the declaration named name.
func (m *Module) Decl(name string) (*Decl, bool) {
	d, ok := m.index()[name]
	return d, ok
}

// GetOrInsertDecl returns the declaration named name, appending a new
// undefined one with signature sig if none exists. inserted reports
// whether a declaration was created. An existing declaration is returned
// as is, even if its signature differs.
func (m *Module) GetOrInsertDecl(name string, sig Signature) (d *Decl, inserted bool) {
	if d, ok := m.Decl(name); ok {
		return d, false
	}
	d = &Decl{Name: name, Sig: sig.Clone()}
	m.Decls = append(m.Decls, d)
	m.index()[name] = d
	return d, true
}

// Func returns the function defined under name.
func (m *Module) Func(name string) (*Func, bool) {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// AddFunc appends a definition together with its declaration.
func (m *Module) AddFunc(f *Func, sig Signature, cc CallConv) *Decl {
	d, _ := m.GetOrInsertDecl(f.Name, sig)
	d.Defined = true
	d.CallConv = cc
	m.Funcs = append(m.Funcs, f)
	return d
}

