package regalloc

import (
	"testing"

	"github.com/tinylang/xcc/internal/atomize"
	"github.com/tinylang/xcc/internal/explicate"
	"github.com/tinylang/xcc/internal/interfere"
	"github.com/tinylang/xcc/internal/ir"
	"github.com/tinylang/xcc/internal/isel"
	"github.com/tinylang/xcc/internal/liveness"
	"github.com/tinylang/xcc/internal/x86ir"
)

func buildGraph(t *testing.T, body ir.Expr) *interfere.Graph {
	t.Helper()
	sym := ir.NewSymbol("f")
	fn := &ir.FnDef{Sym: sym, Ret: ir.I64(), Body: atomize.Expr(body)}
	tailFn := explicate.Function(fn)
	x86fn, err := isel.Function(tailFn)
	if err != nil {
		t.Fatalf("isel: %v", err)
	}
	annotated := liveness.Analyze(x86fn)
	return interfere.Build(annotated)
}

// TestColorSoundness checks spec §8 property 6: for every interference
// edge {u,v}, the assigned homes must differ.
func TestColorSoundness(t *testing.T) {
	a, b, c := ir.NewSymbol("a"), ir.NewSymbol("b"), ir.NewSymbol("c")
	body := ir.Let(a, ir.Lit(ir.Int(1)),
		ir.Let(b, ir.Lit(ir.Int(2)),
			ir.Let(c, ir.Prim(ir.OpAdd, ir.VarRef(a), ir.VarRef(b)),
				ir.Return(ir.Prim(ir.OpMul, ir.VarRef(c), ir.VarRef(a))))))

	g := buildGraph(t, body)
	res := Color(g)

	for _, n := range g.Nodes() {
		homeN, ok := res.Homes[n.Key()]
		if !ok {
			if n.IsReg {
				continue
			}
			t.Fatalf("no home assigned for node %v", n)
		}
		for _, nb := range g.Neighbors(n) {
			homeNb, ok := res.Homes[nb.Key()]
			if !ok {
				continue
			}
			if homeN == homeNb {
				t.Fatalf("neighbors %v and %v share home %+v", n, nb, homeN)
			}
		}
	}
}

// TestColorSpillsWhenPaletteExhausted forces more simultaneously-live
// virtual variables than the allocatable palette holds, requiring at
// least one spill slot (spec §4.6, §8 property 6).
func TestColorSpillsWhenPaletteExhausted(t *testing.T) {
	n := len(x86ir.Allocatable) + 4
	syms := make([]ir.Symbol, n)
	for i := range syms {
		syms[i] = ir.NewSymbol("v")
	}

	// Build: v0 = 1; v1 = 1; ...; vN-1 = 1; sum = v0+v1+...+vN-1; return sum
	var inner ir.Expr
	var sumArgs []ir.Expr
	for _, s := range syms {
		sumArgs = append(sumArgs, ir.VarRef(s))
	}
	sum := ir.NewSymbol("sum")
	inner = ir.Let(sum, sumAll(sumArgs), ir.Return(ir.VarRef(sum)))
	for i := len(syms) - 1; i >= 0; i-- {
		inner = ir.Let(syms[i], ir.Lit(ir.Int(1)), inner)
	}

	g := buildGraph(t, inner)
	res := Color(g)

	if res.SpillSlots == 0 {
		t.Fatalf("expected at least one spill slot with %d simultaneously-live vars", n)
	}
}

func sumAll(args []ir.Expr) ir.Expr {
	if len(args) == 1 {
		return args[0]
	}
	acc := ir.Prim(ir.OpAdd, args[0], args[1])
	for _, a := range args[2:] {
		acc = ir.Prim(ir.OpAdd, acc, a)
	}
	return acc
}

func TestStackSpaceAlignment(t *testing.T) {
	res := &Result{SpillSlots: 1, SavedCallee: []x86ir.Reg{x86ir.RBX}}
	space := res.StackSpace()
	if (space+8*len(res.SavedCallee)+8)%16 != 0 {
		t.Fatalf("stack space %d not aligned with saved callee bytes", space)
	}
}
