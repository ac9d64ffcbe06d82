package interp

import (
	"github.com/tinylang/xcc/internal/ir"
	"github.com/tinylang/xcc/internal/tailir"
)

// tailMachine interprets tail-form IR directly, so its output can be
// differentially compared against the source-tree interpreter for the
// same program (spec §8 property 1).
type tailMachine struct {
	prog   *tailir.Program
	input  []byte
	inPos  int
	output []byte
}

// RunTail interprets prog's entry function against input.
func RunTail(prog *tailir.Program, input []byte) (Result, error) {
	m := &tailMachine{prog: prog, input: input}
	fn, ok := prog.Funcs[prog.Entry.ID()]
	if !ok {
		return Result{}, errUnsupported("tail program has no entry function")
	}
	v, err := m.runFunc(fn, nil)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: v, Output: m.output}, nil
}

func (m *tailMachine) runFunc(fn *tailir.Function, args []int64) (int64, error) {
	vars := make(map[uint64]int64, len(fn.Params))
	for i, p := range fn.Params {
		vars[p.Sym.ID()] = args[i]
	}

	lbl := fn.Entry
	for {
		tail, ok := fn.Block(lbl)
		if !ok {
			return 0, errUnsupported("jump to unknown block label")
		}

		// Walk the Seq chain within this block, updating vars, until a
		// Return/If/Goto decides what happens next.
		for tail.Kind == tailir.TSeq {
			v, err := m.evalCExpr(tail.Bind, vars)
			if err != nil {
				return 0, err
			}
			vars[tail.Sym.ID()] = v
			tail = tail.Next
		}

		switch tail.Kind {
		case tailir.TReturn:
			return m.evalCExpr(tail.Value, vars)
		case tailir.TIf:
			lbl = m.branch(tail, vars)
		case tailir.TGoto:
			lbl = tail.Target
		default:
			return 0, errUnsupported("unknown tail kind")
		}
	}
}

func (m *tailMachine) branch(tail *tailir.Tail, vars map[uint64]int64) ir.Symbol {
	if m.atomValue(tail.Cond, vars) != 0 {
		return tail.ThenLbl
	}
	return tail.ElseLbl
}

func (m *tailMachine) atomValue(a tailir.Atom, vars map[uint64]int64) int64 {
	if a.IsLit {
		return litValue(a.Lit)
	}
	return vars[a.Sym.ID()]
}

func (m *tailMachine) evalCExpr(ce tailir.CExpr, vars map[uint64]int64) (int64, error) {
	switch ce.Kind {
	case tailir.CAtom:
		return m.atomValue(ce.Atom, vars), nil

	case tailir.CFunRef:
		return int64(ce.Fun.ID()), nil

	case tailir.CApply:
		if !ce.Direct {
			return 0, errUnsupported("indirect calls are not modeled by the interpreter")
		}
		fn, ok := m.prog.Funcs[ce.Callee.Sym.ID()]
		if !ok {
			return 0, errUnsupported("call to unknown function symbol")
		}
		var args []int64
		for _, a := range ce.Args {
			args = append(args, m.atomValue(a, vars))
		}
		return m.runFunc(fn, args)

	case tailir.CPrim:
		return m.evalPrim(ce, vars)

	default:
		return 0, errUnsupported("unknown C-expression kind")
	}
}

func (m *tailMachine) evalPrim(ce tailir.CExpr, vars map[uint64]int64) (int64, error) {
	var args []int64
	for _, a := range ce.Args {
		args = append(args, m.atomValue(a, vars))
	}

	switch ce.Op {
	case ir.OpAdd:
		return args[0] + args[1], nil
	case ir.OpSub:
		return args[0] - args[1], nil
	case ir.OpMul:
		return args[0] * args[1], nil
	case ir.OpDiv:
		return args[0] / args[1], nil
	case ir.OpMod:
		return args[0] % args[1], nil
	case ir.OpAnd:
		return args[0] & args[1], nil
	case ir.OpOr:
		return args[0] | args[1], nil
	case ir.OpXor:
		return args[0] ^ args[1], nil
	case ir.OpNot:
		return boolToInt(args[0] == 0), nil
	case ir.OpLt:
		return boolToInt(args[0] < args[1]), nil
	case ir.OpLe:
		return boolToInt(args[0] <= args[1]), nil
	case ir.OpGt:
		return boolToInt(args[0] > args[1]), nil
	case ir.OpGe:
		return boolToInt(args[0] >= args[1]), nil
	case ir.OpEq:
		return boolToInt(args[0] == args[1]), nil
	case ir.OpNe:
		return boolToInt(args[0] != args[1]), nil
	case ir.OpPrint:
		m.output = append(m.output, byte(args[0]))
		return 0, nil
	case ir.OpRead:
		if m.inPos >= len(m.input) {
			return 0, nil
		}
		v := int64(m.input[m.inPos])
		m.inPos++
		return v, nil
	default:
		return 0, errUnsupported("unsupported primitive op")
	}
}
