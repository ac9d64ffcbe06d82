package isel

import (
	"testing"

	"github.com/tinylang/xcc/internal/explicate"
	"github.com/tinylang/xcc/internal/ir"
	"github.com/tinylang/xcc/internal/x86ir"
)

func lowerBody(t *testing.T, body ir.Expr) *x86ir.Function {
	t.Helper()
	sym := ir.NewSymbol("f")
	fn := &ir.FnDef{Sym: sym, Ret: ir.I64(), Body: body}
	tailFn := explicate.Function(fn)
	out, err := Function(tailFn)
	if err != nil {
		t.Fatalf("Function: %v", err)
	}
	return out
}

func allInstrs(fn *x86ir.Function) []x86ir.Instruction {
	var all []x86ir.Instruction
	for _, lbl := range fn.Order {
		blk, _ := fn.Block(lbl)
		all = append(all, blk.Instrs...)
	}
	return all
}

func TestSelectAddLowersToMovAdd(t *testing.T) {
	body := ir.Return(ir.Prim(ir.OpAdd, ir.Lit(ir.Int(1)), ir.Lit(ir.Int(2))))
	fn := lowerBody(t, body)
	instrs := allInstrs(fn)

	foundMov, foundAdd := false, false
	for _, in := range instrs {
		if in.Op == x86ir.IMov {
			foundMov = true
		}
		if in.Op == x86ir.IAdd {
			foundAdd = true
		}
	}
	if !foundMov || !foundAdd {
		t.Fatalf("expected Mov+Add lowering, got %+v", instrs)
	}
}

func TestSelectComparisonLowersToCmpSetccMov(t *testing.T) {
	body := ir.Return(ir.Prim(ir.OpLt, ir.Lit(ir.Int(1)), ir.Lit(ir.Int(2))))
	fn := lowerBody(t, body)
	instrs := allInstrs(fn)

	var ops []x86ir.OpKind
	for _, in := range instrs {
		ops = append(ops, in.Op)
	}
	foundCmp, foundSetcc := false, false
	for _, op := range ops {
		if op == x86ir.ICmp {
			foundCmp = true
		}
		if op == x86ir.ISetcc {
			foundSetcc = true
		}
	}
	if !foundCmp || !foundSetcc {
		t.Fatalf("expected Cmp+Setcc lowering, got ops=%v", ops)
	}
}

func TestSelectPrologueEpilogueShape(t *testing.T) {
	body := ir.Return(ir.Lit(ir.Int(42)))
	fn := lowerBody(t, body)

	entry, _ := fn.Block(fn.Entry)
	if len(entry.Instrs) < 3 {
		t.Fatalf("entry block missing prologue")
	}
	if entry.Instrs[0].Op != x86ir.IPush || entry.Instrs[1].Op != x86ir.IMov || entry.Instrs[2].Op != x86ir.ISub {
		t.Fatalf("expected Push RBP; Mov RSP,RBP; Sub sentinel,RSP prologue, got %+v", entry.Instrs[:3])
	}

	exit, _ := fn.Block(fn.Exit)
	n := len(exit.Instrs)
	if n < 3 || exit.Instrs[n-3].Op != x86ir.IAdd || exit.Instrs[n-2].Op != x86ir.IPop || exit.Instrs[n-1].Op != x86ir.IRet {
		t.Fatalf("expected Add sentinel,RSP; Pop RBP; Ret epilogue, got %+v", exit.Instrs)
	}
}

func TestSelectUnsupportedArity(t *testing.T) {
	sym := ir.NewSymbol("manyargs")
	var params []ir.Param
	for i := 0; i < 20; i++ {
		params = append(params, ir.Param{Sym: ir.NewSymbol("p"), Type: ir.I64()})
	}
	fn := &ir.FnDef{Sym: sym, Params: params, Ret: ir.I64(), Body: ir.Return(ir.Lit(ir.Int(0)))}
	tailFn := explicate.Function(fn)
	_, err := Function(tailFn)
	if err == nil {
		t.Fatalf("expected UnsupportedArity error for 20 params")
	}
}
