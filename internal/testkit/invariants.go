package testkit

import (
	"fmt"

	"bofpass/internal/ir"
	"bofpass/internal/mangle"
)

// CheckRenameInvariants compares a module before and after the rename pass:
// 1) functions, blocks and instructions keep their shape and arguments
// 2) a renamed direct call targets "<lib>$<sym>" where sym is the
//    normalized original name (or the mapped memory primitive)
// 3) the renamed declaration is dllimport and keeps the original signature
//    and calling convention
func CheckRenameInvariants(before, after *ir.Module) error {
	if before == nil || after == nil {
		return fmt.Errorf("nil module")
	}
	if len(before.Funcs) != len(after.Funcs) {
		return fmt.Errorf("function count changed: %d -> %d", len(before.Funcs), len(after.Funcs))
	}
	for fi, bf := range before.Funcs {
		af := after.Funcs[fi]
		if bf.Name != af.Name || len(bf.Blocks) != len(af.Blocks) {
			return fmt.Errorf("function @%s changed shape", bf.Name)
		}
		for bi, bb := range bf.Blocks {
			ab := af.Blocks[bi]
			if len(bb.Instrs) != len(ab.Instrs) {
				return fmt.Errorf("@%s/%s: instruction count changed", bf.Name, bb.Label)
			}
			for ii, bin := range bb.Instrs {
				if err := checkInstr(before, after, bin, ab.Instrs[ii]); err != nil {
					return fmt.Errorf("@%s/%s#%d: %w", bf.Name, bb.Label, ii, err)
				}
			}
		}
	}
	return nil
}

func checkInstr(before, after *ir.Module, bin, ain ir.Instr) error {
	if bin.Kind != ain.Kind {
		return fmt.Errorf("instruction kind changed")
	}
	if bin.Kind != ir.InstrCall {
		if bin.Text != ain.Text {
			return fmt.Errorf("instruction text changed: %q -> %q", bin.Text, ain.Text)
		}
		return nil
	}
	bc, ac := bin.Call, ain.Call
	if bc.Dst != ac.Dst || bc.Callee.Kind != ac.Callee.Kind || fmt.Sprint(bc.Args) != fmt.Sprint(ac.Args) {
		return fmt.Errorf("call operands changed")
	}
	if bc.Callee.Name == ac.Callee.Name {
		return nil
	}
	if bc.Callee.Kind != ir.CalleeSym {
		return fmt.Errorf("indirect call target changed")
	}

	lib, sym, ok := mangle.SplitQualified(ac.Callee.Name)
	if !ok {
		return fmt.Errorf("@%s renamed to unqualified @%s", bc.Callee.Name, ac.Callee.Name)
	}
	res := mangle.Normalize(bc.Callee.Name)
	switch {
	case res.Kind == mangle.BuiltinMapped:
		if lib != res.Provider || sym != res.Symbol {
			return fmt.Errorf("@%s mapped to @%s, want @%s", bc.Callee.Name, ac.Callee.Name, res.Name)
		}
	case res.Resolvable():
		if sym != res.Name {
			return fmt.Errorf("@%s renamed to @%s, symbol should be %s", bc.Callee.Name, ac.Callee.Name, res.Name)
		}
	default:
		return fmt.Errorf("@%s (%s) must not be renamed", bc.Callee.Name, res.Kind)
	}

	orig, ok := before.Decl(bc.Callee.Name)
	if !ok {
		return fmt.Errorf("undeclared callee @%s was renamed", bc.Callee.Name)
	}
	decl, ok := after.Decl(ac.Callee.Name)
	if !ok {
		return fmt.Errorf("@%s is not declared", ac.Callee.Name)
	}
	if decl.Storage != ir.StorageDLLImport {
		return fmt.Errorf("@%s is %s, want dllimport", decl.Name, decl.Storage)
	}
	if decl.Defined {
		return fmt.Errorf("@%s has a body", decl.Name)
	}
	if decl.CallConv != orig.CallConv {
		return fmt.Errorf("@%s calling convention %s, want %s", decl.Name, decl.CallConv, orig.CallConv)
	}
	if !decl.Sig.Equal(orig.Sig) {
		return fmt.Errorf("@%s signature %s, want %s", decl.Name, decl.Sig, orig.Sig)
	}
	return nil
}
