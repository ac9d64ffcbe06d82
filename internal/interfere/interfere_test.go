package interfere

import (
	"testing"

	"github.com/tinylang/xcc/internal/explicate"
	"github.com/tinylang/xcc/internal/ir"
	"github.com/tinylang/xcc/internal/isel"
	"github.com/tinylang/xcc/internal/liveness"
	"github.com/tinylang/xcc/internal/x86ir"
)

func TestInterfereSimultaneouslyLiveVarsInterfere(t *testing.T) {
	// x = 1; y = 2; z = x + y; return z
	// x and y are simultaneously live at the point z is computed, so
	// they must interfere.
	x, y := ir.NewSymbol("x"), ir.NewSymbol("y")
	body := ir.Let(x, ir.Lit(ir.Int(1)),
		ir.Let(y, ir.Lit(ir.Int(2)),
			ir.Return(ir.Prim(ir.OpAdd, ir.VarRef(x), ir.VarRef(y)))))

	sym := ir.NewSymbol("f")
	fn := &ir.FnDef{Sym: sym, Ret: ir.I64(), Body: body}
	tailFn := explicate.Function(fn)
	x86fn, err := isel.Function(tailFn)
	if err != nil {
		t.Fatalf("isel: %v", err)
	}
	annotated := liveness.Analyze(x86fn)
	g := Build(annotated)

	if len(g.Nodes()) == 0 {
		t.Fatalf("expected at least one interference node")
	}
	if !g.Interferes(x86ir.LArgVar(x), x86ir.LArgVar(y)) {
		t.Fatalf("expected x and y to interfere")
	}
}
