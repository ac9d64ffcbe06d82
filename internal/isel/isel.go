// Package isel implements C4: lowering tail-form IR into x86 IR over
// virtual variables (spec §4.3). Each function gets a fixed
// prologue and epilogue whose stack-size immediates are sentinels;
// C10 (conclude) rewrites them to the computed frame size.
package isel

import (
	"github.com/tinylang/xcc/internal/ir"
	"github.com/tinylang/xcc/internal/tailir"
	"github.com/tinylang/xcc/internal/x86ir"
	"github.com/tinylang/xcc/internal/xerr"
)

// stackFixupSentinel is the placeholder immediate C10 rewrites to the
// computed frame size (spec §4.3, §4.9).
const stackFixupSentinel = 0x1000

// Program lowers every function in p.
func Program(p *tailir.Program) (*x86ir.Program, error) {
	out := x86ir.NewProgram(p.Entry)
	for _, sym := range p.Order {
		fn, err := Function(p.Funcs[sym.ID()])
		if err != nil {
			return nil, err
		}
		out.AddFunc(fn)
	}
	return out, nil
}

// Function lowers one tail-form function into an x86 IR function.
func Function(fn *tailir.Function) (*x86ir.Function, error) {
	out := x86ir.NewFunction(fn.Sym)
	out.Entry = fn.Entry
	out.Exit = fn.Exit
	for _, p := range fn.Params {
		out.Params = append(out.Params, p.Sym)
	}

	for _, lbl := range fn.Order {
		tail, _ := fn.Block(lbl)
		blk, err := selectBlock(tail, fn.Exit)
		if err != nil {
			return nil, err
		}
		out.AddBlock(lbl, blk)
	}

	// Prologue: entry block gets Push RBP; Mov RSP,RBP; Sub <sentinel>,RSP
	// prepended, plus parameter loads from ArgRegs.
	entryBlk, _ := out.Block(fn.Entry)
	prologue := []x86ir.Instruction{
		x86ir.Push(x86ir.RegArg(x86ir.RBP)),
		x86ir.Mov(x86ir.RegArg(x86ir.RSP), x86ir.RegArg(x86ir.RBP)),
		x86ir.Sub(x86ir.Imm(stackFixupSentinel), x86ir.RegArg(x86ir.RSP)),
	}
	if len(fn.Params) > len(x86ir.ArgRegs) {
		return nil, xerr.UnsupportedArity("function "+fn.Sym.String(), len(fn.Params), len(x86ir.ArgRegs))
	}
	for i, p := range fn.Params {
		prologue = append(prologue, x86ir.Mov(x86ir.RegArg(x86ir.ArgRegs[i]), x86ir.XVar(p.Sym)))
	}
	entryBlk.Instrs = append(prologue, entryBlk.Instrs...)

	// Epilogue: exit block gets Add <sentinel>,RSP; Pop RBP; Ret appended.
	// The exit block's own Return lowered to a Jmp back to the exit
	// label; drop it so control falls through into the epilogue.
	exitBlk, _ := out.Block(fn.Exit)
	if n := len(exitBlk.Instrs); n > 0 && exitBlk.Instrs[n-1].Op == x86ir.IJmp && exitBlk.Instrs[n-1].Label == fn.Exit {
		exitBlk.Instrs = exitBlk.Instrs[:n-1]
	}
	exitBlk.Instrs = append(exitBlk.Instrs,
		x86ir.Add(x86ir.Imm(stackFixupSentinel), x86ir.RegArg(x86ir.RSP)),
		x86ir.Pop(x86ir.RegArg(x86ir.RBP)),
		x86ir.Ret(),
	)

	return out, nil
}

func atomToArg(a tailir.Atom) x86ir.Arg {
	if a.IsLit {
		switch a.Lit.Kind {
		case ir.LitBool:
			if a.Lit.Bool {
				return x86ir.Imm(1)
			}
			return x86ir.Imm(0)
		case ir.LitUnit:
			return x86ir.Imm(0)
		default:
			return x86ir.Imm(int32(a.Lit.Int))
		}
	}
	return x86ir.XVar(a.Sym)
}

// selectBlock lowers a single tail into an instruction list, per the
// table in spec §4.3.
func selectBlock(tail *tailir.Tail, exitLbl ir.Symbol) (*x86ir.Block, error) {
	blk := &x86ir.Block{}
	for {
		switch tail.Kind {
		case tailir.TReturn:
			instrs, err := selectCExpr(tail.Value, x86ir.RegArg(x86ir.RAX))
			if err != nil {
				return nil, err
			}
			blk.Instrs = append(blk.Instrs, instrs...)
			blk.Instrs = append(blk.Instrs, x86ir.Jmp(exitLbl))
			return blk, nil

		case tailir.TSeq:
			instrs, err := selectCExpr(tail.Bind, x86ir.XVar(tail.Sym))
			if err != nil {
				return nil, err
			}
			blk.Instrs = append(blk.Instrs, instrs...)
			tail = tail.Next
			continue

		case tailir.TIf:
			cond := atomToArg(tail.Cond)
			blk.Instrs = append(blk.Instrs,
				x86ir.Cmp(x86ir.Imm(0), cond),
				x86ir.Jcc(x86ir.CondNE, tail.ThenLbl),
				x86ir.Jmp(tail.ElseLbl),
			)
			return blk, nil

		case tailir.TGoto:
			blk.Instrs = append(blk.Instrs, x86ir.Jmp(tail.Target))
			return blk, nil

		default:
			return nil, xerr.Unreachable("unknown tail kind %v", tail.Kind)
		}
	}
}

// selectCExpr lowers a C-expression's computation into instructions
// that leave its result in dst.
func selectCExpr(ce tailir.CExpr, dst x86ir.Arg) ([]x86ir.Instruction, error) {
	switch ce.Kind {
	case tailir.CAtom:
		src := atomToArg(ce.Atom)
		if argsEqual(src, dst) {
			return nil, nil
		}
		return []x86ir.Instruction{x86ir.Mov(src, dst)}, nil

	case tailir.CFunRef:
		return []x86ir.Instruction{x86ir.LoadLbl(ce.Fun, dst)}, nil

	case tailir.CPrim:
		return selectPrim(ce, dst)

	case tailir.CApply:
		return selectApply(ce, dst)

	default:
		return nil, xerr.Unreachable("unknown C-expression kind %v", ce.Kind)
	}
}

func argsEqual(a, b x86ir.Arg) bool {
	return a.Kind == b.Kind && a.Reg == b.Reg && a.Var == b.Var && a.Imm == b.Imm && a.Off == b.Off
}

func selectPrim(ce tailir.CExpr, dst x86ir.Arg) ([]x86ir.Instruction, error) {
	args := ce.Args
	switch ce.Op {
	case ir.OpAdd, ir.OpSub, ir.OpAnd, ir.OpOr, ir.OpXor:
		a, b := atomToArg(args[0]), atomToArg(args[1])
		var op func(x86ir.Arg, x86ir.Arg) x86ir.Instruction
		switch ce.Op {
		case ir.OpAdd:
			op = x86ir.Add
		case ir.OpSub:
			op = x86ir.Sub
		case ir.OpAnd:
			op = x86ir.And
		case ir.OpOr:
			op = x86ir.Or
		case ir.OpXor:
			op = x86ir.Xor
		}
		return []x86ir.Instruction{x86ir.Mov(a, dst), op(b, dst)}, nil

	case ir.OpMul:
		a, b := atomToArg(args[0]), atomToArg(args[1])
		return []x86ir.Instruction{
			x86ir.Mov(a, x86ir.RegArg(x86ir.RAX)),
			x86ir.Mul(b),
			x86ir.Mov(x86ir.RegArg(x86ir.RAX), dst),
		}, nil

	case ir.OpDiv, ir.OpMod:
		a, b := atomToArg(args[0]), atomToArg(args[1])
		resultReg := x86ir.RegArg(x86ir.RAX)
		if ce.Op == ir.OpMod {
			resultReg = x86ir.RegArg(x86ir.RDX)
		}
		return []x86ir.Instruction{
			x86ir.Mov(a, x86ir.RegArg(x86ir.RAX)),
			x86ir.Mov(x86ir.Imm(0), x86ir.RegArg(x86ir.RDX)),
			x86ir.Div(b),
			x86ir.Mov(resultReg, dst),
		}, nil

	case ir.OpNot:
		a := atomToArg(args[0])
		return []x86ir.Instruction{
			x86ir.Mov(a, dst),
			x86ir.Xor(x86ir.Imm(1), dst),
		}, nil

	default:
		if ce.Op.IsComparison() {
			a, b := atomToArg(args[0]), atomToArg(args[1])
			cond := condFor(ce.Op)
			return []x86ir.Instruction{
				x86ir.Cmp(b, a),
				x86ir.Setcc(cond),
				x86ir.Mov(x86ir.RegArg(x86ir.RAX), dst),
			}, nil
		}
		if ce.Op == ir.OpPrint {
			return selectSyscall(1, []x86ir.Arg{atomToArg(args[0])}, dst)
		}
		if ce.Op == ir.OpRead {
			return selectSyscall(0, nil, dst)
		}
		return nil, xerr.Unreachable("unsupported primitive op %v", ce.Op)
	}
}

func condFor(op ir.Op) x86ir.Cond {
	switch op {
	case ir.OpLt:
		return x86ir.CondL
	case ir.OpLe:
		return x86ir.CondLE
	case ir.OpGt:
		return x86ir.CondG
	case ir.OpGe:
		return x86ir.CondGE
	case ir.OpEq:
		return x86ir.CondE
	case ir.OpNe:
		return x86ir.CondNE
	}
	return x86ir.CondE
}

// selectSyscall lowers print/read to a raw Linux syscall (spec §4.3,
// §6): syscall number in RAX, arguments in SYSCALL_REGS order.
func selectSyscall(number int64, args []x86ir.Arg, dst x86ir.Arg) ([]x86ir.Instruction, error) {
	if len(args) > len(x86ir.SyscallRegs) {
		return nil, xerr.UnsupportedArity("syscall", len(args), len(x86ir.SyscallRegs))
	}
	var instrs []x86ir.Instruction
	instrs = append(instrs, x86ir.Mov(x86ir.Imm(int32(number)), x86ir.RegArg(x86ir.RAX)))
	for i, a := range args {
		instrs = append(instrs, x86ir.Mov(a, x86ir.RegArg(x86ir.SyscallRegs[i])))
	}
	instrs = append(instrs, x86ir.Syscall(len(args)))
	instrs = append(instrs, x86ir.Mov(x86ir.RegArg(x86ir.RAX), dst))
	return instrs, nil
}

// selectApply lowers an (in)direct call, placing arguments in ArgRegs
// order (spec §4.3 CALLER_SAVED[0..n]) and moving the result out of RAX.
func selectApply(ce tailir.CExpr, dst x86ir.Arg) ([]x86ir.Instruction, error) {
	if len(ce.Args) > len(x86ir.ArgRegs) {
		return nil, xerr.UnsupportedArity("call", len(ce.Args), len(x86ir.ArgRegs))
	}
	var instrs []x86ir.Instruction
	for i, a := range ce.Args {
		instrs = append(instrs, x86ir.Mov(atomToArg(a), x86ir.RegArg(x86ir.ArgRegs[i])))
	}
	if ce.Direct {
		instrs = append(instrs, x86ir.CallDirect(ce.Callee.Sym, len(ce.Args)))
	} else {
		instrs = append(instrs, x86ir.CallIndirect(atomToArg(ce.Callee), len(ce.Args)))
	}
	instrs = append(instrs, x86ir.Mov(x86ir.RegArg(x86ir.RAX), dst))
	return instrs, nil
}
