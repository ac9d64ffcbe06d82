package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinylang/xcc/internal/interp"
	"github.com/tinylang/xcc/internal/ir"
	"github.com/tinylang/xcc/internal/x86ir"
)

func program(body ir.Expr) *ir.Program {
	sym := ir.NewSymbol("main")
	fn := &ir.FnDef{Sym: sym, Ret: ir.I64(), Body: body}
	prog := ir.NewProgram(sym)
	prog.AddFunc(fn)
	return prog
}

// assertWellFormedPipeline compiles body as a one-function program and
// checks that Compile succeeds and emits non-empty code. It does not
// inspect the intermediate x86 IR, which Compile does not return.
func assertWellFormedPipeline(t *testing.T, body ir.Expr) *Output {
	t.Helper()
	prog := program(body)

	out, err := Compile(prog, Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Code)
	return out
}

// TestScenarioConstantReturn covers spec.md §8's `fn main(): i64 { 42
// }` end-to-end scenario: the interpreter must agree on the return
// value, and the pipeline must compile without error.
func TestScenarioConstantReturn(t *testing.T) {
	body := ir.Return(ir.Lit(ir.Int(42)))
	prog := program(body)

	res, err := interp.Run(prog, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.Value)
	assert.Empty(t, res.Output)

	out := assertWellFormedPipeline(t, body)
	assert.Greater(t, out.EntryOffset, -1)
}

// TestScenarioPrintAB covers `print(65); print(10); 0` → stdout "A\n".
func TestScenarioPrintAB(t *testing.T) {
	body := ir.Seq(ir.Prim(ir.OpPrint, ir.Lit(ir.Int(65))),
		ir.Seq(ir.Prim(ir.OpPrint, ir.Lit(ir.Int(10))),
			ir.Return(ir.Lit(ir.Int(0)))))
	prog := program(body)

	res, err := interp.Run(prog, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Value)
	assert.Equal(t, []byte{0x41, 0x0A}, res.Output)

	assertWellFormedPipeline(t, body)
}

// TestScenarioLoopSum covers the loop-summing-0..9 scenario → 45.
func TestScenarioLoopSum(t *testing.T) {
	x, i := ir.NewSymbol("x"), ir.NewSymbol("i")
	loopBody := ir.If(ir.Prim(ir.OpEq, ir.VarRef(i), ir.Lit(ir.Int(10))),
		ir.Break(),
		ir.Let(x, ir.Prim(ir.OpAdd, ir.VarRef(x), ir.VarRef(i)),
			ir.Let(i, ir.Prim(ir.OpAdd, ir.VarRef(i), ir.Lit(ir.Int(1))),
				ir.Continue())),
	)
	body := ir.Let(x, ir.Lit(ir.Int(0)),
		ir.Let(i, ir.Lit(ir.Int(0)),
			ir.Seq(ir.Loop(loopBody), ir.Return(ir.VarRef(x)))))
	prog := program(body)

	res, err := interp.Run(prog, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(45), res.Value)

	assertWellFormedPipeline(t, body)
}

// TestScenarioFactorial covers the recursive factorial scenario.
func TestScenarioFactorial(t *testing.T) {
	n := ir.NewSymbol("n")
	factSym := ir.NewSymbol("fact")
	factBody := ir.Return(ir.If(ir.Prim(ir.OpEq, ir.VarRef(n), ir.Lit(ir.Int(0))),
		ir.Lit(ir.Int(1)),
		ir.Prim(ir.OpMul, ir.VarRef(n),
			ir.Apply(ir.FunRef(factSym), ir.Prim(ir.OpSub, ir.VarRef(n), ir.Lit(ir.Int(1)))))))
	factFn := &ir.FnDef{Sym: factSym, Params: []ir.Param{{Sym: n, Type: ir.I64()}}, Ret: ir.I64(), Body: factBody}

	mainSym := ir.NewSymbol("main")
	mainFn := &ir.FnDef{Sym: mainSym, Ret: ir.I64(),
		Body: ir.Return(ir.Apply(ir.FunRef(factSym), ir.Lit(ir.Int(5))))}

	prog := ir.NewProgram(mainSym)
	prog.AddFunc(factFn)
	prog.AddFunc(mainFn)

	res, err := interp.Run(prog, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(120), res.Value)

	out, err := Compile(prog, Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Code)
}

// TestScenarioReadSum covers the read-3-bytes-and-sum scenario.
func TestScenarioReadSum(t *testing.T) {
	a, b, c := ir.NewSymbol("a"), ir.NewSymbol("b"), ir.NewSymbol("c")
	body := ir.Let(a, ir.Prim(ir.OpRead),
		ir.Let(b, ir.Prim(ir.OpRead),
			ir.Let(c, ir.Prim(ir.OpRead),
				ir.Return(ir.Prim(ir.OpMod,
					ir.Prim(ir.OpAdd, ir.Prim(ir.OpAdd, ir.VarRef(a), ir.VarRef(b)), ir.VarRef(c)),
					ir.Lit(ir.Int(256)))))))
	prog := program(body)

	res, err := interp.Run(prog, []byte{10, 20, 30})
	require.NoError(t, err)
	assert.Equal(t, int64(60), res.Value)

	assertWellFormedPipeline(t, body)
}

// TestScenarioForcesSpill binds len(Allocatable)+4 variables that all
// stay live until a chain of additions sums them, so the allocator has
// to spill; it checks the interpreter's sum and that Compile succeeds.
func TestScenarioForcesSpill(t *testing.T) {
	n := len(x86ir.Allocatable) + 4
	syms := make([]ir.Symbol, n)
	for i := range syms {
		syms[i] = ir.NewSymbol("v")
	}

	var sumExpr ir.Expr = ir.VarRef(syms[0])
	for _, s := range syms[1:] {
		sumExpr = ir.Prim(ir.OpAdd, sumExpr, ir.VarRef(s))
	}
	body := ir.Return(sumExpr)
	for i := len(syms) - 1; i >= 0; i-- {
		body = ir.Let(syms[i], ir.Lit(ir.Int(int64(i))), body)
	}

	prog := program(body)

	want := int64(0)
	for i := 0; i < n; i++ {
		want += int64(i)
	}
	res, err := interp.Run(prog, nil)
	require.NoError(t, err)
	assert.Equal(t, want, res.Value)

	out, err := Compile(prog, Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Code)
}

func TestCompileWithCustomPalette(t *testing.T) {
	body := ir.Return(ir.Prim(ir.OpAdd, ir.Lit(ir.Int(1)), ir.Lit(ir.Int(2))))
	prog := program(body)

	out, err := Compile(prog, Options{Palette: []x86ir.Reg{x86ir.RBX}})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Code)
}
