// Package patch implements C9: rewriting instructions that violate
// x86-64 operand legality after homes have been assigned (spec §4.8).
package patch

import "github.com/tinylang/xcc/internal/x86ir"

// Program patches every function in p in place.
func Program(p *x86ir.Program) {
	for _, sym := range p.Order {
		Function(p.Funcs[sym.ID()])
	}
}

// Function rewrites fn's blocks: two-memory-operand instructions and
// Cmp-with-immediate-destination are split into a pair using RAX as
// scratch, and no-op register-to-itself Movs are dropped.
func Function(fn *x86ir.Function) {
	for _, lbl := range fn.Order {
		blk, _ := fn.Block(lbl)
		blk.Instrs = patchBlock(blk.Instrs)
	}
}

func patchBlock(instrs []x86ir.Instruction) []x86ir.Instruction {
	out := make([]x86ir.Instruction, 0, len(instrs))
	for _, in := range instrs {
		out = append(out, patchInstr(in)...)
	}
	return out
}

// patchInstr rewrites a single instruction into one or more legal
// instructions (spec §4.8).
func patchInstr(in x86ir.Instruction) []x86ir.Instruction {
	if !in.IsTwoOperand() {
		return []x86ir.Instruction{in}
	}

	if in.Op == x86ir.IMov && isNoOpMove(in) {
		return nil
	}

	if in.Op == x86ir.ICmp && in.Dst.IsImm() {
		// Cmp forbids an immediate destination: swap operands and
		// negate the comparison's sense is not available here (the
		// condition code already baked into a later Setcc), so instead
		// stage the destination immediate through RAX.
		scratch := x86ir.RegArg(x86ir.RAX)
		return []x86ir.Instruction{
			x86ir.Mov(in.Dst, scratch),
			x86ir.Cmp(in.Src, scratch),
		}
	}

	if in.Src.IsMem() && in.Dst.IsMem() {
		scratch := x86ir.RegArg(x86ir.RAX)
		first := x86ir.Mov(in.Src, scratch)
		second := rebuildWithSrc(in, scratch)
		return []x86ir.Instruction{first, second}
	}

	return []x86ir.Instruction{in}
}

// isNoOpMove reports whether in is a Mov between the same register
// (spec §4.8: "no-op moves are dropped").
func isNoOpMove(in x86ir.Instruction) bool {
	return in.Src.IsReg() && in.Dst.IsReg() && in.Src.Reg == in.Dst.Reg
}

// rebuildWithSrc returns a copy of in with its Src operand replaced,
// preserving Op and Dst.
func rebuildWithSrc(in x86ir.Instruction, src x86ir.Arg) x86ir.Instruction {
	in.Src = src
	return in
}
