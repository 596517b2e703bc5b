package ir

// Site addresses one call instruction inside a module. It gives the
// rewriter the callee name, signature and convention, and lets it repoint
// the call without knowing the rest of the module layout.
type Site struct {
	Module *Module
	Func   *Func
	Block  int
	Index  int
}

// CallSites returns every call instruction of f in block order.
func CallSites(m *Module, f *Func) []*Site {
	var out []*Site
	for bi := range f.Blocks {
		for ii := range f.Blocks[bi].Instrs {
			if f.Blocks[bi].Instrs[ii].Kind == InstrCall {
				out = append(out, &Site{Module: m, Func: f, Block: bi, Index: ii})
			}
		}
	}
	return out
}

// Instr returns the addressed call.
func (s *Site) Instr() *CallInstr {
	return &s.Func.Blocks[s.Block].Instrs[s.Index].Call
}

func (s *Site) decl() (*Decl, bool) {
	in := s.Instr()
	if in.Callee.Kind != CalleeSym {
		return nil, false
	}
	return s.Module.Decl(in.Callee.Name)
}

// TargetName returns the callee name of a direct call.
func (s *Site) TargetName() (string, bool) {
	in := s.Instr()
	if in.Callee.Kind != CalleeSym {
		return "", false
	}
	return in.Callee.Name, true
}

// Declared reports whether the direct callee has a declaration.
func (s *Site) Declared() bool {
	_, ok := s.decl()
	return ok
}

// Signature is the function type of the current callee declaration.
func (s *Site) Signature() Signature {
	if d, ok := s.decl(); ok {
		return d.Sig
	}
	return Signature{}
}

// CallConv is the calling convention of the current callee declaration.
func (s *Site) CallConv() CallConv {
	if d, ok := s.decl(); ok {
		return d.CallConv
	}
	return CallConvC
}

// SetTarget repoints the call at d. Arguments and result are untouched.
func (s *Site) SetTarget(d *Decl) {
	s.Instr().Callee = Callee{Kind: CalleeSym, Name: d.Name}
}
