package liveness

import (
	"testing"

	"github.com/tinylang/xcc/internal/explicate"
	"github.com/tinylang/xcc/internal/ir"
	"github.com/tinylang/xcc/internal/isel"
	"github.com/tinylang/xcc/internal/x86ir"
)

func lower(t *testing.T, body ir.Expr) *x86ir.Function {
	t.Helper()
	sym := ir.NewSymbol("f")
	fn := &ir.FnDef{Sym: sym, Ret: ir.I64(), Body: body}
	tailFn := explicate.Function(fn)
	out, err := isel.Function(tailFn)
	if err != nil {
		t.Fatalf("isel.Function: %v", err)
	}
	return out
}

func TestLivenessSimpleAdd(t *testing.T) {
	// x = 1 + 2; return x — by the time Mov 1,x executes, x must be
	// live (it feeds the Add and then the Return).
	body := ir.Return(ir.Prim(ir.OpAdd, ir.Lit(ir.Int(1)), ir.Lit(ir.Int(2))))
	fn := lower(t, body)
	annotated := Analyze(fn)

	if len(annotated.Blocks) == 0 {
		t.Fatalf("expected at least one annotated block")
	}
	// Ret reads RAX: the annotated Ret instruction's live-after set is
	// irrelevant (nothing follows it), but the Mov RAX,dst before it
	// must show RAX is live-after (since Ret consumes it transitively
	// via the exit block) is covered by the cross-block before_map.
}

func TestLivenessCallKillsCallerSaved(t *testing.T) {
	// A direct call with 1 argument: RCX carries the arg (read-write),
	// every other caller-saved register must be dead immediately after
	// the call if nothing else uses it.
	g := ir.NewSymbol("g")
	body := ir.Return(ir.Apply(ir.FunRef(g), ir.Lit(ir.Int(5))))
	fn := lower(t, body)
	annotated := Analyze(fn)

	var sawCall bool
	for _, lbl := range fn.Order {
		blk := annotated.Blocks[lbl.ID()]
		for _, ann := range blk.Instrs {
			if ann.Instr.Op == x86ir.ICallDirect {
				sawCall = true
				if ann.LiveAfter.Has(x86ir.LArgReg(x86ir.RDX)) {
					t.Fatalf("RDX should be dead after a 1-arg call, got live: %v", ann.LiveAfter)
				}
			}
		}
	}
	if !sawCall {
		t.Fatalf("expected a CallDirect instruction in lowered output")
	}
}

func TestSetUnionAndEqual(t *testing.T) {
	a := NewSet()
	a.Add(x86ir.LArgReg(x86ir.RAX))
	b := NewSet()
	b.Add(x86ir.LArgReg(x86ir.RBX))

	changed := a.Union(b)
	if !changed {
		t.Fatalf("expected Union to report a change")
	}
	if !a.Has(x86ir.LArgReg(x86ir.RBX)) {
		t.Fatalf("expected RBX to be present after union")
	}

	c := a.Clone()
	if !c.Equal(a) {
		t.Fatalf("clone should equal original")
	}
	c.Add(x86ir.LArgReg(x86ir.RCX))
	if c.Equal(a) {
		t.Fatalf("sets should differ after mutating the clone")
	}
}
