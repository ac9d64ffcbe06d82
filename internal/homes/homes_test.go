package homes

import (
	"testing"

	"github.com/tinylang/xcc/internal/explicate"
	"github.com/tinylang/xcc/internal/interfere"
	"github.com/tinylang/xcc/internal/ir"
	"github.com/tinylang/xcc/internal/isel"
	"github.com/tinylang/xcc/internal/liveness"
	"github.com/tinylang/xcc/internal/regalloc"
	"github.com/tinylang/xcc/internal/x86ir"
)

func TestAssignHomesEliminatesXVar(t *testing.T) {
	a, b := ir.NewSymbol("a"), ir.NewSymbol("b")
	body := ir.Let(a, ir.Lit(ir.Int(1)),
		ir.Let(b, ir.Lit(ir.Int(2)),
			ir.Return(ir.Prim(ir.OpAdd, ir.VarRef(a), ir.VarRef(b)))))

	sym := ir.NewSymbol("f")
	fn := &ir.FnDef{Sym: sym, Ret: ir.I64(), Body: body}
	tailFn := explicate.Function(fn)
	x86fn, err := isel.Function(tailFn)
	if err != nil {
		t.Fatalf("isel: %v", err)
	}
	annotated := liveness.Analyze(x86fn)
	g := interfere.Build(annotated)
	res := regalloc.Color(g)

	Function(x86fn, res)

	for _, lbl := range x86fn.Order {
		blk, _ := x86fn.Block(lbl)
		for _, in := range blk.Instrs {
			for _, arg := range []x86ir.Arg{in.Src, in.Dst, in.Operand, in.CallSrc} {
				if arg.IsXVar() {
					t.Fatalf("virtual variable %v survived assign-homes", arg)
				}
			}
		}
	}
}
