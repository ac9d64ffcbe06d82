package x86ir

import "github.com/tinylang/xcc/internal/ir"

// Cond is a condition code for Jcc/Setcc.
type Cond int

const (
	CondE Cond = iota
	CondNE
	CondL
	CondLE
	CondG
	CondGE
)

func (c Cond) String() string {
	names := [...]string{"e", "ne", "l", "le", "g", "ge"}
	if int(c) < len(names) {
		return names[c]
	}
	return "c?"
}

// Negate returns the logical negation of a condition code. Instruction
// selection does not use it: If lowers to a Jcc to the then branch
// followed by a Jmp to the else branch.
func (c Cond) Negate() Cond {
	switch c {
	case CondE:
		return CondNE
	case CondNE:
		return CondE
	case CondL:
		return CondGE
	case CondLE:
		return CondG
	case CondG:
		return CondLE
	case CondGE:
		return CondL
	}
	return c
}

// OpKind tags the instruction shapes defined in spec §3.
type OpKind int

const (
	IAdd OpKind = iota
	ISub
	IAnd
	IOr
	IXor
	ICmp
	IMov
	IPush
	IPop
	INeg
	INot
	IMul
	IDiv
	IJmp
	IJcc
	ISetcc
	ILoadLbl
	ICallDirect
	ICallIndirect
	ISyscall
	IRet
)

// Instruction is one x86 IR instruction (spec §3). Only the fields
// relevant to Op are populated; the rest are zero.
type Instruction struct {
	Op OpKind

	// two-operand forms: Add/Sub/And/Or/Xor/Cmp/Mov
	Src Arg
	Dst Arg

	// one-operand forms: Push/Pop/Neg/Not/Mul/Div
	Operand Arg

	// control transfer
	Label ir.Symbol // Jmp, Jcc, LoadLbl, CallDirect target
	Cond  Cond       // Jcc, Setcc

	// CallDirect, CallIndirect, Syscall
	Arity int
	// CallIndirect
	CallSrc Arg
}

func Add(src, dst Arg) Instruction  { return Instruction{Op: IAdd, Src: src, Dst: dst} }
func Sub(src, dst Arg) Instruction  { return Instruction{Op: ISub, Src: src, Dst: dst} }
func And(src, dst Arg) Instruction  { return Instruction{Op: IAnd, Src: src, Dst: dst} }
func Or(src, dst Arg) Instruction   { return Instruction{Op: IOr, Src: src, Dst: dst} }
func Xor(src, dst Arg) Instruction  { return Instruction{Op: IXor, Src: src, Dst: dst} }
func Cmp(src, dst Arg) Instruction  { return Instruction{Op: ICmp, Src: src, Dst: dst} }
func Mov(src, dst Arg) Instruction  { return Instruction{Op: IMov, Src: src, Dst: dst} }
func Push(src Arg) Instruction      { return Instruction{Op: IPush, Operand: src} }
func Pop(dst Arg) Instruction       { return Instruction{Op: IPop, Operand: dst} }
func Neg(dst Arg) Instruction       { return Instruction{Op: INeg, Operand: dst} }
func Not(dst Arg) Instruction       { return Instruction{Op: INot, Operand: dst} }
func Mul(src Arg) Instruction       { return Instruction{Op: IMul, Operand: src} }
func Div(divisor Arg) Instruction   { return Instruction{Op: IDiv, Operand: divisor} }
func Jmp(lbl ir.Symbol) Instruction { return Instruction{Op: IJmp, Label: lbl} }
func Jcc(cond Cond, lbl ir.Symbol) Instruction {
	return Instruction{Op: IJcc, Cond: cond, Label: lbl}
}
func Setcc(cond Cond) Instruction { return Instruction{Op: ISetcc, Cond: cond} }
func LoadLbl(lbl ir.Symbol, dst Arg) Instruction {
	return Instruction{Op: ILoadLbl, Label: lbl, Dst: dst}
}
func CallDirect(lbl ir.Symbol, arity int) Instruction {
	return Instruction{Op: ICallDirect, Label: lbl, Arity: arity}
}
func CallIndirect(src Arg, arity int) Instruction {
	return Instruction{Op: ICallIndirect, CallSrc: src, Arity: arity}
}
func Syscall(arity int) Instruction { return Instruction{Op: ISyscall, Arity: arity} }
func Ret() Instruction               { return Instruction{Op: IRet} }

// IsTwoOperand reports whether the instruction has a Src/Dst pair
// (the shape patching's no-two-memory-operand rule applies to).
func (i Instruction) IsTwoOperand() bool {
	switch i.Op {
	case IAdd, ISub, IAnd, IOr, IXor, ICmp, IMov:
		return true
	default:
		return false
	}
}

// Block is an ordered sequence of instructions.
type Block struct {
	Instrs []Instruction
}

// Function is an x86 IR function: its blocks by label, entry/exit
// labels, and (after C8) its saved callee registers.
type Function struct {
	Sym        ir.Symbol
	Params     []ir.Symbol
	Blocks     map[uint64]*Block
	Order      []ir.Symbol
	Entry      ir.Symbol
	Exit       ir.Symbol
	StackSpace int // not set by the pipeline; C10 takes the frame size from regalloc.Result.StackSpace
	SavedCallee []Reg
}

func NewFunction(sym ir.Symbol) *Function {
	return &Function{Sym: sym, Blocks: make(map[uint64]*Block)}
}

func (f *Function) AddBlock(label ir.Symbol, block *Block) {
	if _, exists := f.Blocks[label.ID()]; !exists {
		f.Order = append(f.Order, label)
	}
	f.Blocks[label.ID()] = block
}

func (f *Function) Block(label ir.Symbol) (*Block, bool) {
	b, ok := f.Blocks[label.ID()]
	return b, ok
}

// Program is the whole x86 IR module: every function plus its
// declaration order.
type Program struct {
	Funcs map[uint64]*Function
	Order []ir.Symbol
	Entry ir.Symbol
}

func NewProgram(entry ir.Symbol) *Program {
	return &Program{Funcs: make(map[uint64]*Function), Entry: entry}
}

func (p *Program) AddFunc(fn *Function) {
	if _, exists := p.Funcs[fn.Sym.ID()]; !exists {
		p.Order = append(p.Order, fn.Sym)
	}
	p.Funcs[fn.Sym.ID()] = fn
}
