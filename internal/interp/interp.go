// Package interp provides tree-walking interpreters for the source
// Expr IR and for tail-form IR, used to differentially test that each
// lowering pass preserves program semantics (spec §8 property 1:
// interpret(P(Π)) == interpret(Π)).
package interp

import (
	"github.com/tinylang/xcc/internal/ir"
	"github.com/tinylang/xcc/internal/xerr"
)

func errUnsupported(msg string) error {
	return xerr.Unreachable("%s", msg)
}

// Result is the observable outcome of running a program: its return
// value and whatever bytes it wrote via print.
type Result struct {
	Value  int64
	Output []byte
}

// env binds symbol ids to values within one function activation.
type env map[uint64]int64

// machine threads the call table and the syscall-backed I/O streams
// through evaluation.
type machine struct {
	prog   *ir.Program
	input  []byte
	inPos  int
	output []byte
}

// controlSignal distinguishes a plain value from a loop break/continue
// unwinding through Eval's recursive calls.
type controlSignal int

const (
	sigNone controlSignal = iota
	sigBreak
	sigContinue
)

type evalOutcome struct {
	value  int64
	signal controlSignal
}

// Run interprets prog's entry function against input, returning its
// final return value and any bytes written via print.
func Run(prog *ir.Program, input []byte) (Result, error) {
	m := &machine{prog: prog, input: input}
	entry, ok := prog.Lookup(prog.Entry)
	if !ok {
		return Result{}, errUnsupported("program has no entry function")
	}
	out, err := m.call(entry, nil)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: out, Output: m.output}, nil
}

func (m *machine) call(fn *ir.FnDef, args []int64) (int64, error) {
	e := make(env, len(fn.Params))
	for i, p := range fn.Params {
		e[p.Sym.ID()] = args[i]
	}
	out, err := m.eval(fn.Body, e)
	if err != nil {
		return 0, err
	}
	return out.value, nil
}

func (m *machine) eval(ex ir.Expr, e env) (evalOutcome, error) {
	switch ex.Kind {
	case ir.EAtomLit:
		return evalOutcome{value: litValue(ex.Lit)}, nil

	case ir.EAtomVar:
		return evalOutcome{value: e[ex.Var.ID()]}, nil

	case ir.EFunRef:
		return evalOutcome{value: int64(ex.Fun.ID())}, nil

	case ir.EPrim:
		return m.evalPrim(ex, e)

	case ir.EApply:
		callee := ex.CalleeExpr()
		if callee.Kind != ir.EFunRef {
			return evalOutcome{}, errUnsupported("indirect calls are not modeled by the interpreter")
		}
		fn, ok := m.prog.Lookup(callee.Fun)
		if !ok {
			return evalOutcome{}, errUnsupported("call to unknown function symbol")
		}
		var args []int64
		for _, a := range ex.CallArgs() {
			v, err := m.eval(a, e)
			if err != nil {
				return evalOutcome{}, err
			}
			args = append(args, v.value)
		}
		v, err := m.call(fn, args)
		return evalOutcome{value: v}, err

	case ir.ELet:
		v, err := m.eval(*ex.Init, e)
		if err != nil {
			return evalOutcome{}, err
		}
		e[ex.Bind.ID()] = v.value
		return m.eval(*ex.Body, e)

	case ir.EIf:
		cond, err := m.eval(*ex.Cond, e)
		if err != nil {
			return evalOutcome{}, err
		}
		if cond.value != 0 {
			return m.eval(*ex.Then, e)
		}
		return m.eval(*ex.Else, e)

	case ir.ELoop:
		for {
			out, err := m.eval(*ex.LoopBody, e)
			if err != nil {
				return evalOutcome{}, err
			}
			switch out.signal {
			case sigBreak:
				return evalOutcome{value: out.value}, nil
			case sigContinue:
				continue
			}
		}

	case ir.EBreak:
		return evalOutcome{signal: sigBreak}, nil

	case ir.EContinue:
		return evalOutcome{signal: sigContinue}, nil

	case ir.ESeq:
		first, err := m.eval(*ex.First, e)
		if err != nil {
			return evalOutcome{}, err
		}
		if first.signal != sigNone {
			return first, nil
		}
		return m.eval(*ex.Rest, e)

	case ir.EReturn:
		v, err := m.eval(*ex.Value, e)
		return v, err

	default:
		return evalOutcome{}, errUnsupported("unknown expression kind")
	}
}

func (m *machine) evalPrim(ex ir.Expr, e env) (evalOutcome, error) {
	var args []int64
	for _, a := range ex.Args {
		v, err := m.eval(a, e)
		if err != nil {
			return evalOutcome{}, err
		}
		args = append(args, v.value)
	}

	switch ex.Op {
	case ir.OpAdd:
		return evalOutcome{value: args[0] + args[1]}, nil
	case ir.OpSub:
		return evalOutcome{value: args[0] - args[1]}, nil
	case ir.OpMul:
		return evalOutcome{value: args[0] * args[1]}, nil
	case ir.OpDiv:
		return evalOutcome{value: args[0] / args[1]}, nil
	case ir.OpMod:
		return evalOutcome{value: args[0] % args[1]}, nil
	case ir.OpAnd:
		return evalOutcome{value: args[0] & args[1]}, nil
	case ir.OpOr:
		return evalOutcome{value: args[0] | args[1]}, nil
	case ir.OpXor:
		return evalOutcome{value: args[0] ^ args[1]}, nil
	case ir.OpNot:
		return evalOutcome{value: boolToInt(args[0] == 0)}, nil
	case ir.OpLt:
		return evalOutcome{value: boolToInt(args[0] < args[1])}, nil
	case ir.OpLe:
		return evalOutcome{value: boolToInt(args[0] <= args[1])}, nil
	case ir.OpGt:
		return evalOutcome{value: boolToInt(args[0] > args[1])}, nil
	case ir.OpGe:
		return evalOutcome{value: boolToInt(args[0] >= args[1])}, nil
	case ir.OpEq:
		return evalOutcome{value: boolToInt(args[0] == args[1])}, nil
	case ir.OpNe:
		return evalOutcome{value: boolToInt(args[0] != args[1])}, nil
	case ir.OpPrint:
		m.output = append(m.output, byte(args[0]))
		return evalOutcome{value: 0}, nil
	case ir.OpRead:
		if m.inPos >= len(m.input) {
			return evalOutcome{value: 0}, nil
		}
		v := int64(m.input[m.inPos])
		m.inPos++
		return evalOutcome{value: v}, nil
	default:
		return evalOutcome{}, errUnsupported("unsupported primitive op")
	}
}

func litValue(l ir.Literal) int64 {
	switch l.Kind {
	case ir.LitBool:
		return boolToInt(l.Bool)
	case ir.LitUnit:
		return 0
	default:
		return l.Int
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
