// Package conclude implements C10: finalizing a whole x86 IR program
// into one flat block map ready for encoding (spec §4.9) — rewriting
// the frame-size sentinel, normalizing call/label targets to
// entry-block symbols, and synthesizing the runtime trampoline that
// calls the entry function and exits via the Linux syscall ABI.
package conclude

import (
	"github.com/tinylang/xcc/internal/ir"
	"github.com/tinylang/xcc/internal/regalloc"
	"github.com/tinylang/xcc/internal/x86ir"
)

// sysExit is the Linux x86-64 exit syscall number (spec §6).
const sysExit = 0x3C

// stackFixupSentinel mirrors internal/isel's placeholder; kept local
// so this package does not need to import isel for one constant.
const stackFixupSentinel = 0x1000

// Result is a fully concluded program: one block map spanning every
// function plus the synthesized runtime entry, the block order, and
// the runtime entry's label. It holds no byte offsets; encoding
// computes those.
type Result struct {
	Blocks     map[uint64]*x86ir.Block
	Order      []ir.Symbol
	RuntimeLbl ir.Symbol
}

// Program concludes every function in p, using results (keyed by
// function symbol id) for each function's stack space and
// saved-callee set, and returns the merged block map plus the
// synthesized runtime trampoline label.
func Program(p *x86ir.Program, results map[uint64]*regalloc.Result) *Result {
	out := &Result{Blocks: make(map[uint64]*x86ir.Block)}

	entryPoints := make(map[uint64]ir.Symbol)
	for _, sym := range p.Order {
		fn := p.Funcs[sym.ID()]
		entryPoints[sym.ID()] = fn.Entry
	}

	for _, sym := range p.Order {
		fn := p.Funcs[sym.ID()]
		res := results[sym.ID()]
		stackSpace := res.StackSpace()
		concludeFunction(fn, stackSpace, entryPoints)
		insertCalleeSavedSpills(fn)

		for _, lbl := range fn.Order {
			blk, _ := fn.Block(lbl)
			out.Blocks[lbl.ID()] = blk
			out.Order = append(out.Order, lbl)
		}
	}

	runtimeLbl := ir.NewSymbol("_start")
	out.Blocks[runtimeLbl.ID()] = runtimeTrampoline(entryPoints[p.Entry.ID()])
	out.Order = append(out.Order, runtimeLbl)
	out.RuntimeLbl = runtimeLbl

	return out
}

// concludeFunction rewrites fn's sentinel stack-size immediates and
// label operands in place.
func concludeFunction(fn *x86ir.Function, stackSpace int, entryPoints map[uint64]ir.Symbol) {
	for _, lbl := range fn.Order {
		blk, _ := fn.Block(lbl)
		for i := range blk.Instrs {
			in := &blk.Instrs[i]
			rewriteStackFixup(in, stackSpace)
			rewriteCallTarget(in, entryPoints)
		}
	}
}

// rewriteStackFixup replaces the isel-emitted sentinel immediate in
// the prologue Sub / epilogue Add with the real computed stack space
// (spec §4.9).
func rewriteStackFixup(in *x86ir.Instruction, stackSpace int) {
	if (in.Op == x86ir.ISub || in.Op == x86ir.IAdd) && in.Src.IsImm() && in.Src.Imm == stackFixupSentinel {
		in.Src = x86ir.Imm(int32(stackSpace))
	}
}

// rewriteCallTarget normalizes CallDirect/LoadLbl operands that name a
// function symbol into that function's entry-block symbol, so every
// label the encoder resolves refers to an actual block (spec §4.9).
func rewriteCallTarget(in *x86ir.Instruction, entryPoints map[uint64]ir.Symbol) {
	switch in.Op {
	case x86ir.ICallDirect, x86ir.ILoadLbl:
		if entry, ok := entryPoints[in.Label.ID()]; ok {
			in.Label = entry
		}
	}
}

// prologueFixedLen is isel.Function's fixed prologue length (Push RBP;
// Mov RSP,RBP; Sub <sentinel>,RSP) before any parameter-loading Movs —
// homes and patch never reorder or drop these three, since none of
// them is a virtual variable or an illegal operand shape.
const prologueFixedLen = 3

// epilogueFixedLen is isel.Function's fixed epilogue length (Add
// <sentinel>,RSP; Pop RBP; Ret), appended as-is to the exit block's
// tail for the same reason.
const epilogueFixedLen = 3

// insertCalleeSavedSpills threads a Push/Pop pair around the body for
// every register the colorer put in fn.SavedCallee (spec §4.6 point
// 4): pushed right after the frame is allocated in the entry block,
// popped in reverse order right before it is deallocated in the exit
// block. Without this, liveness's killCallerSaved assumption that
// RBX/R12-R15 survive a Call across the whole dataflow model is never
// made true by any emitted instruction.
func insertCalleeSavedSpills(fn *x86ir.Function) {
	if len(fn.SavedCallee) == 0 {
		return
	}

	entryBlk, _ := fn.Block(fn.Entry)
	pushes := make([]x86ir.Instruction, len(fn.SavedCallee))
	for i, r := range fn.SavedCallee {
		pushes[i] = x86ir.Push(x86ir.RegArg(r))
	}
	entryBlk.Instrs = spliceAt(entryBlk.Instrs, prologueFixedLen, pushes)

	exitBlk, _ := fn.Block(fn.Exit)
	pops := make([]x86ir.Instruction, len(fn.SavedCallee))
	for i, r := range fn.SavedCallee {
		pops[len(fn.SavedCallee)-1-i] = x86ir.Pop(x86ir.RegArg(r))
	}
	popAt := len(exitBlk.Instrs) - epilogueFixedLen
	exitBlk.Instrs = spliceAt(exitBlk.Instrs, popAt, pops)
}

// spliceAt inserts ins into instrs at index i without disturbing order.
func spliceAt(instrs []x86ir.Instruction, i int, ins []x86ir.Instruction) []x86ir.Instruction {
	out := make([]x86ir.Instruction, 0, len(instrs)+len(ins))
	out = append(out, instrs[:i]...)
	out = append(out, ins...)
	out = append(out, instrs[i:]...)
	return out
}

// runtimeTrampoline builds the freestanding program's real entry
// point: call the compiled entry function, move its return value into
// RDI, and exit(2) with it (spec §4.9), grounded on the teacher's
// _start construction for its buildELF64 output.
func runtimeTrampoline(entrySym ir.Symbol) *x86ir.Block {
	return &x86ir.Block{Instrs: []x86ir.Instruction{
		x86ir.CallDirect(entrySym, 0),
		x86ir.Mov(x86ir.RegArg(x86ir.RAX), x86ir.RegArg(x86ir.RDI)),
		x86ir.Mov(x86ir.Imm(sysExit), x86ir.RegArg(x86ir.RAX)),
		x86ir.Syscall(1),
	}}
}
