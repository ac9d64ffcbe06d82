// Package explicate implements C3: lowering the let/if/loop/seq
// structure of the source expression tree into labeled tail-form basic
// blocks (spec §4.2). Translation proceeds with an explicit
// continuation: the Tail that should run after the expression being
// translated produces its effect or value.
package explicate

import (
	"github.com/tinylang/xcc/internal/ir"
	"github.com/tinylang/xcc/internal/tailir"
)

// loopCtx records the two labels a loop body's break/continue resolve
// to.
type loopCtx struct {
	continueLbl ir.Symbol
	breakLbl    ir.Symbol
}

// ctx carries the per-function state explicate threads through the
// mutually recursive translation functions: the function under
// construction (new blocks are registered into it as a side effect —
// spec §5 "within a stage mutation is local"), the synthetic result
// variable and exit label every return path converges on, and the
// active loop stack for break/continue.
type ctx struct {
	fn        *tailir.Function
	exitLbl   ir.Symbol
	resultSym ir.Symbol
	loops     []loopCtx
}

// Program explicates every function in p.
func Program(p *ir.Program) *tailir.Program {
	out := tailir.NewProgram(p.Entry)
	for _, sym := range p.Order {
		out.AddFunc(Function(p.Funcs[sym.ID()]))
	}
	return out
}

// Function explicates one function body into tail-form blocks.
func Function(fn *ir.FnDef) *tailir.Function {
	out := tailir.NewFunction(fn.Sym, fn.Params, fn.Ret)
	c := &ctx{
		fn:        out,
		exitLbl:   ir.NewSymbol(fn.Sym.Hint + ".exit"),
		resultSym: ir.NewSymbol("result"),
	}
	entryLbl := ir.NewSymbol(fn.Sym.Hint + ".entry")
	entryTail := explicateTail(c, fn.Body)
	out.Entry = entryLbl
	out.Exit = c.exitLbl
	out.AddBlock(entryLbl, entryTail)
	out.AddBlock(c.exitLbl, tailir.Return(tailir.CAtomExpr(tailir.AtomSym(c.resultSym))))
	return out
}

// createBlock registers tail under a fresh label and returns that label
// (or, when tail is already a Goto, its target), so a continuation used from more than one branch is emitted
// once (block deduplication beyond this is not required, spec §4.2).
func createBlock(c *ctx, tail *tailir.Tail) ir.Symbol {
	if tail.Kind == tailir.TGoto {
		return tail.Target
	}
	lbl := ir.NewSymbol("block")
	c.fn.AddBlock(lbl, tail)
	return lbl
}

func atomOf(e ir.Expr) tailir.Atom {
	if e.Kind == ir.EAtomLit {
		return tailir.AtomLit(e.Lit)
	}
	return tailir.AtomSym(e.Var)
}

// explicateTail translates e as if it produced the function's return
// value: bind it to the result symbol, then jump to the exit block.
func explicateTail(c *ctx, e ir.Expr) *tailir.Tail {
	return explicateAssign(c, e, c.resultSym, tailir.Goto(c.exitLbl))
}

// explicateAssign translates e so its value is bound to sym, then
// control proceeds with cont.
func explicateAssign(c *ctx, e ir.Expr, sym ir.Symbol, cont *tailir.Tail) *tailir.Tail {
	switch e.Kind {
	case ir.EAtomLit:
		return tailir.SeqT(sym, tailir.CAtomExpr(tailir.AtomLit(e.Lit)), cont)
	case ir.EAtomVar:
		return tailir.SeqT(sym, tailir.CAtomExpr(tailir.AtomSym(e.Var)), cont)
	case ir.EFunRef:
		return tailir.SeqT(sym, tailir.CFunRefExpr(e.Fun), cont)

	case ir.EPrim:
		args := make([]tailir.Atom, len(e.Args))
		for i, a := range e.Args {
			args[i] = atomOf(a)
		}
		return tailir.SeqT(sym, tailir.CPrimExpr(e.Op, args...), cont)

	case ir.EApply:
		callee := e.CalleeExpr()
		args := e.CallArgs()
		atoms := make([]tailir.Atom, len(args))
		for i, a := range args {
			atoms[i] = atomOf(a)
		}
		if callee.Kind == ir.EFunRef {
			return tailir.SeqT(sym, tailir.CApplyExpr(tailir.AtomSym(callee.Fun), true, atoms...), cont)
		}
		return tailir.SeqT(sym, tailir.CApplyExpr(atomOf(callee), false, atoms...), cont)

	case ir.ELet:
		bodyTail := explicateAssign(c, *e.Body, sym, cont)
		return explicateAssign(c, *e.Init, e.Bind, bodyTail)

	case ir.EIf:
		contLbl := createBlock(c, cont)
		contTail := tailir.Goto(contLbl)
		thenTail := explicateAssign(c, *e.Then, sym, contTail)
		elseTail := explicateAssign(c, *e.Else, sym, contTail)
		return explicatePred(c, *e.Cond, thenTail, elseTail)

	case ir.ELoop:
		// A loop has unit type; its value (unit) is bound then control
		// proceeds with cont, same as explicateEffect plus the trivial
		// unit bind.
		unitBind := tailir.SeqT(sym, tailir.CAtomExpr(tailir.AtomLit(ir.Unit())), cont)
		loopTail := explicateLoop(c, e, unitBind)
		return loopTail

	case ir.ESeq:
		restTail := explicateAssign(c, *e.Rest, sym, cont)
		return explicateEffect(c, *e.First, restTail)

	case ir.EReturn:
		return explicateTail(c, *e.Value)

	case ir.EBreak:
		return explicateBreak(c)
	case ir.EContinue:
		return explicateContinue(c)

	default:
		return cont
	}
}

// explicateEffect translates e for its side effects only, discarding
// any value it produces, then proceeds with cont.
func explicateEffect(c *ctx, e ir.Expr, cont *tailir.Tail) *tailir.Tail {
	switch e.Kind {
	case ir.EAtomLit, ir.EAtomVar, ir.EFunRef:
		return cont // pure, no effect to sequence

	case ir.EPrim:
		if e.Op != ir.OpPrint {
			// Arithmetic/comparison/read-less primitives have no
			// observable effect when their value is discarded.
			if e.Op == ir.OpRead {
				// read() still consumes a byte of stdin; keep the call.
				tmp := ir.NewSymbol("_")
				args := make([]tailir.Atom, len(e.Args))
				for i, a := range e.Args {
					args[i] = atomOf(a)
				}
				return tailir.SeqT(tmp, tailir.CPrimExpr(e.Op, args...), cont)
			}
			return cont
		}
		tmp := ir.NewSymbol("_")
		args := make([]tailir.Atom, len(e.Args))
		for i, a := range e.Args {
			args[i] = atomOf(a)
		}
		return tailir.SeqT(tmp, tailir.CPrimExpr(e.Op, args...), cont)

	case ir.EApply:
		tmp := ir.NewSymbol("_")
		return explicateAssign(c, e, tmp, cont)

	case ir.ELet:
		bodyTail := explicateEffect(c, *e.Body, cont)
		return explicateAssign(c, *e.Init, e.Bind, bodyTail)

	case ir.EIf:
		contLbl := createBlock(c, cont)
		contTail := tailir.Goto(contLbl)
		thenTail := explicateEffect(c, *e.Then, contTail)
		elseTail := explicateEffect(c, *e.Else, contTail)
		return explicatePred(c, *e.Cond, thenTail, elseTail)

	case ir.ELoop:
		return explicateLoop(c, e, cont)

	case ir.ESeq:
		restTail := explicateEffect(c, *e.Rest, cont)
		return explicateEffect(c, *e.First, restTail)

	case ir.EReturn:
		return explicateTail(c, *e.Value)

	case ir.EBreak:
		return explicateBreak(c)
	case ir.EContinue:
		return explicateContinue(c)

	default:
		return cont
	}
}

// explicateLoop builds the header block (re-entering itself), pushes
// the loop's continue/break targets, translates the body in effect
// position, and returns a Goto into the header.
func explicateLoop(c *ctx, e ir.Expr, cont *tailir.Tail) *tailir.Tail {
	headerLbl := ir.NewSymbol("loop.header")
	afterLbl := createBlock(c, cont)

	c.loops = append(c.loops, loopCtx{continueLbl: headerLbl, breakLbl: afterLbl})
	bodyTail := explicateEffect(c, *e.LoopBody, tailir.Goto(headerLbl))
	c.loops = c.loops[:len(c.loops)-1]

	c.fn.AddBlock(headerLbl, bodyTail)
	return tailir.Goto(headerLbl)
}

func explicateBreak(c *ctx) *tailir.Tail {
	top := c.loops[len(c.loops)-1]
	return tailir.Goto(top.breakLbl)
}

func explicateContinue(c *ctx) *tailir.Tail {
	top := c.loops[len(c.loops)-1]
	return tailir.Goto(top.continueLbl)
}

// explicatePred translates cond in predicate position, producing an
// If that branches to blocks wrapping thenTail/elseTail.
func explicatePred(c *ctx, cond ir.Expr, thenTail, elseTail *tailir.Tail) *tailir.Tail {
	switch cond.Kind {
	case ir.EAtomVar:
		thenLbl := createBlock(c, thenTail)
		elseLbl := createBlock(c, elseTail)
		return tailir.IfT(tailir.AtomSym(cond.Var), thenLbl, elseLbl)

	case ir.EAtomLit:
		if cond.Lit.Bool {
			return thenTail
		}
		return elseTail

	case ir.EPrim:
		switch {
		case cond.Op == ir.OpNot:
			return explicatePred(c, cond.Args[0], elseTail, thenTail)
		case cond.Op.IsComparison():
			thenLbl := createBlock(c, thenTail)
			elseLbl := createBlock(c, elseTail)
			tmp := ir.NewSymbol("cond")
			args := make([]tailir.Atom, len(cond.Args))
			for i, a := range cond.Args {
				args[i] = atomOf(a)
			}
			ifTail := tailir.IfT(tailir.AtomSym(tmp), thenLbl, elseLbl)
			return tailir.SeqT(tmp, tailir.CPrimExpr(cond.Op, args...), ifTail)
		default:
			// Any other primitive used as a condition (e.g. a boolean
			// stored through `and`/`or`) is evaluated then tested for
			// non-zero, same as a plain atom.
			thenLbl := createBlock(c, thenTail)
			elseLbl := createBlock(c, elseTail)
			tmp := ir.NewSymbol("cond")
			args := make([]tailir.Atom, len(cond.Args))
			for i, a := range cond.Args {
				args[i] = atomOf(a)
			}
			ifTail := tailir.IfT(tailir.AtomSym(tmp), thenLbl, elseLbl)
			return tailir.SeqT(tmp, tailir.CPrimExpr(cond.Op, args...), ifTail)
		}

	case ir.ELet:
		bodyTail := explicatePred(c, *cond.Body, thenTail, elseTail)
		return explicateAssign(c, *cond.Init, cond.Bind, bodyTail)

	case ir.EIf:
		thenLbl := createBlock(c, thenTail)
		elseLbl := createBlock(c, elseTail)
		innerThen := explicatePred(c, *cond.Then, tailir.Goto(thenLbl), tailir.Goto(elseLbl))
		innerElse := explicatePred(c, *cond.Else, tailir.Goto(thenLbl), tailir.Goto(elseLbl))
		return explicatePred(c, *cond.Cond, innerThen, innerElse)

	case ir.ESeq:
		restTail := explicatePred(c, *cond.Rest, thenTail, elseTail)
		return explicateEffect(c, *cond.First, restTail)

	default:
		thenLbl := createBlock(c, thenTail)
		elseLbl := createBlock(c, elseTail)
		tmp := ir.NewSymbol("cond")
		return tailir.SeqT(tmp, tailir.CAtomExpr(atomOf(cond)), tailir.IfT(tailir.AtomSym(tmp), thenLbl, elseLbl))
	}
}
