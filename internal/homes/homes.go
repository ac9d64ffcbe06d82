// Package homes implements C8: assign homes, substituting every
// virtual variable (x86ir.AXVar) with the concrete register or stack
// slot the C7 coloring result assigned it (spec §4.7).
package homes

import (
	"github.com/tinylang/xcc/internal/regalloc"
	"github.com/tinylang/xcc/internal/x86ir"
)

// Program rewrites every function in p in place, substituting virtual
// variables per the matching coloring result in results (keyed by
// function symbol id).
func Program(p *x86ir.Program, results map[uint64]*regalloc.Result) {
	for _, sym := range p.Order {
		fn := p.Funcs[sym.ID()]
		Function(fn, results[sym.ID()])
	}
}

// Function rewrites fn's blocks, replacing AXVar operands with the
// register or RBP-relative Deref the coloring result assigned, and
// records the saved-callee set on fn for C10. The spill-slot count
// stays on res, which C10 reads to size the frame.
func Function(fn *x86ir.Function, res *regalloc.Result) {
	fn.SavedCallee = res.SavedCallee
	for _, lbl := range fn.Order {
		blk, _ := fn.Block(lbl)
		for i := range blk.Instrs {
			rewriteInstr(&blk.Instrs[i], res)
		}
	}
}

func rewriteInstr(in *x86ir.Instruction, res *regalloc.Result) {
	in.Src = rewriteArg(in.Src, res)
	in.Dst = rewriteArg(in.Dst, res)
	in.Operand = rewriteArg(in.Operand, res)
	in.CallSrc = rewriteArg(in.CallSrc, res)
}

// rewriteArg substitutes a's virtual variable, if any, with its
// assigned home. Immediates, concrete registers, and derefs (whose
// base is already a concrete register by this point) pass through
// unchanged.
func rewriteArg(a x86ir.Arg, res *regalloc.Result) x86ir.Arg {
	if a.Kind != x86ir.AXVar {
		return a
	}
	home, ok := res.Homes[a.Var.ID()]
	if !ok {
		// A virtual variable the interference graph never saw (e.g. one
		// that is written but never read) still needs a slot; treat it
		// as its own isolated spill so assignment stays total.
		res.SpillSlots++
		home = regalloc.Home{Spill: res.SpillSlots}
		res.Homes[a.Var.ID()] = home
	}
	if home.IsReg {
		return x86ir.RegArg(home.Reg)
	}
	return x86ir.Deref(x86ir.RBP, regalloc.StackOffset(home.Spill))
}
