package atomize

import (
	"testing"

	"github.com/tinylang/xcc/internal/ir"
)

// isAtomRec reports whether every primitive/call operand reachable
// from e is an atom — the invariant C2 must establish (spec §8
// property 2).
func isAtomRec(t *testing.T, e ir.Expr) {
	t.Helper()
	switch e.Kind {
	case ir.EPrim, ir.EApply:
		for _, a := range e.Args {
			if !isAtom(a) {
				t.Fatalf("non-atom operand %+v in %v", a, e.Kind)
			}
		}
	case ir.ELet:
		isAtomRec(t, *e.Init)
		isAtomRec(t, *e.Body)
	case ir.EIf:
		isAtomRec(t, *e.Cond)
		isAtomRec(t, *e.Then)
		isAtomRec(t, *e.Else)
	case ir.ELoop:
		isAtomRec(t, *e.LoopBody)
	case ir.ESeq:
		isAtomRec(t, *e.First)
		isAtomRec(t, *e.Rest)
	case ir.EReturn:
		isAtomRec(t, *e.Value)
	}
}

func TestAtomizeNestedArith(t *testing.T) {
	// (1 + 2) * (3 + 4)
	e := ir.Prim(ir.OpMul,
		ir.Prim(ir.OpAdd, ir.Lit(ir.Int(1)), ir.Lit(ir.Int(2))),
		ir.Prim(ir.OpAdd, ir.Lit(ir.Int(3)), ir.Lit(ir.Int(4))),
	)
	out := Expr(e)
	isAtomRec(t, out)
	if out.Kind != ir.ELet {
		t.Fatalf("expected hoisted let, got %v", out.Kind)
	}
}

func TestAtomizePreservesAtomsUnchanged(t *testing.T) {
	x := ir.NewSymbol("x")
	e := ir.Prim(ir.OpAdd, ir.VarRef(x), ir.Lit(ir.Int(1)))
	out := Expr(e)
	if out.Kind != ir.EPrim {
		t.Fatalf("expected no hoisting when args are already atoms, got %v", out.Kind)
	}
}

func TestAtomizeLeftToRightOrder(t *testing.T) {
	// g(g(), h()) hoists the callee reference, then g()'s temp, then
	// h()'s, preserving left-to-right evaluation order (spec §4.1
	// contract).
	g := ir.NewSymbol("g")
	h := ir.NewSymbol("h")
	call := ir.Apply(ir.FunRef(g), ir.Apply(ir.FunRef(g)), ir.Apply(ir.FunRef(h)))
	out := Expr(call)
	isAtomRec(t, out)

	// Walk the let chain and confirm its first two levels are lets.
	if out.Kind != ir.ELet {
		t.Fatalf("expected outer let, got %v", out.Kind)
	}
	inner := *out.Body
	if inner.Kind != ir.ELet {
		t.Fatalf("expected inner let, got %v", inner.Kind)
	}
}

func TestAtomizeIfBranches(t *testing.T) {
	cond := ir.Prim(ir.OpLt, ir.Lit(ir.Int(1)), ir.Lit(ir.Int(2)))
	thenE := ir.Prim(ir.OpAdd, ir.Prim(ir.OpAdd, ir.Lit(ir.Int(1)), ir.Lit(ir.Int(1))), ir.Lit(ir.Int(1)))
	e := ir.If(cond, thenE, ir.Lit(ir.Int(0)))
	out := Expr(e)
	isAtomRec(t, out)
}
