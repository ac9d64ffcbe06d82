// Package atomize implements C2: forcing every primitive/call operand
// to be an atom by hoisting non-atomic arguments into fresh let
// bindings (spec §4.1). Traversal is left-to-right so evaluation order
// of side effects is preserved.
package atomize

import "github.com/tinylang/xcc/internal/ir"

// Program atomizes every function body in p, returning a new program
// (spec's IRs are immutable between stages: the input program is never
// mutated).
func Program(p *ir.Program) *ir.Program {
	out := ir.NewProgram(p.Entry)
	for _, sym := range p.Order {
		fn := p.Funcs[sym.ID()]
		out.AddFunc(&ir.FnDef{
			Sym:    fn.Sym,
			Params: fn.Params,
			Ret:    fn.Ret,
			Body:   Expr(fn.Body),
		})
	}
	return out
}

// Expr atomizes e, returning an equivalent expression in which every
// primitive/call operand is an atom (literal or variable reference).
func Expr(e ir.Expr) ir.Expr {
	switch e.Kind {
	case ir.EAtomLit, ir.EAtomVar, ir.EFunRef:
		return e

	case ir.EPrim:
		args, binds := atomizeArgs(e.Args)
		return wrapBinds(binds, ir.Expr{Kind: ir.EPrim, Type: e.Type, Op: e.Op, Args: args})

	case ir.EApply:
		args, binds := atomizeArgs(e.Args)
		return wrapBinds(binds, ir.Expr{Kind: ir.EApply, Type: e.Type, Args: args})

	case ir.ELet:
		return ir.Let(e.Bind, Expr(*e.Init), Expr(*e.Body))

	case ir.EIf:
		return ir.If(Expr(*e.Cond), Expr(*e.Then), Expr(*e.Else))

	case ir.ELoop:
		return ir.Loop(Expr(*e.LoopBody))

	case ir.EBreak, ir.EContinue:
		return e

	case ir.ESeq:
		return ir.Seq(Expr(*e.First), Expr(*e.Rest))

	case ir.EReturn:
		// A return's value must itself be an atom for the Select stage's
		// Return(atom) shape — but that requirement is enforced by
		// explicate, not here; atomize only atomizes operator/call
		// arguments (spec §4.1 scope). Recurse so nested control flow
		// inside the returned expression still gets atomized.
		return ir.Return(Expr(*e.Value))

	default:
		return e
	}
}

// bind is one hoisted temporary: a fresh symbol bound to a non-atomic
// argument expression, in the order it was introduced.
type bind struct {
	sym  ir.Symbol
	expr ir.Expr
}

// atomizeArgs atomizes each argument in order, hoisting any non-atom
// into a fresh temporary, and returns the rewritten (all-atom)
// argument list alongside the binds to wrap the result in.
func atomizeArgs(args []ir.Expr) ([]ir.Expr, []bind) {
	var binds []bind
	out := make([]ir.Expr, len(args))
	for i, a := range args {
		a = Expr(a)
		if isAtom(a) {
			out[i] = a
			continue
		}
		tmp := ir.NewSymbol("tmp")
		binds = append(binds, bind{sym: tmp, expr: a})
		ref := ir.VarRef(tmp)
		ref.Type = a.Type
		out[i] = ref
	}
	return out, binds
}

func isAtom(e ir.Expr) bool {
	return e.Kind == ir.EAtomLit || e.Kind == ir.EAtomVar
}

// wrapBinds reintroduces the hoisted lets, innermost (last-introduced)
// first so evaluation order matches the original left-to-right
// argument order.
func wrapBinds(binds []bind, inner ir.Expr) ir.Expr {
	result := inner
	for i := len(binds) - 1; i >= 0; i-- {
		result = ir.Let(binds[i].sym, binds[i].expr, result)
	}
	return result
}
